//go:build opencv
// +build opencv

package opencv

import (
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"github.com/banshee-data/marker.tracker/internal/pose"
	"github.com/banshee-data/marker.tracker/internal/tracking"
	"github.com/banshee-data/marker.tracker/internal/vision"
)

var (
	textColor   = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	markerColor = gocv.NewScalar(0, 255, 0, 0)
	xAxisColor  = color.RGBA{R: 255, A: 0}
	yAxisColor  = color.RGBA{G: 255, A: 0}
	zAxisColor  = color.RGBA{B: 255, A: 0}
)

// Window shows each frame with the detected markers, the chosen pose's axes
// and the record fields. Pressing q ends the session.
type Window struct {
	win        *gocv.Window
	calib      vision.Calibration
	axisLength float64
}

func NewWindow(title string, calib vision.Calibration, axisLength float64) *Window {
	return &Window{win: gocv.NewWindow(title), calib: calib, axisLength: axisLength}
}

func (w *Window) Render(frame vision.Frame, candidates []vision.Candidate, chosen *pose.Transform, rec tracking.DetectionRecord) bool {
	img, err := matOf(frame)
	if err != nil {
		return false
	}
	if len(candidates) > 0 {
		corners := make([][]gocv.Point2f, len(candidates))
		ids := make([]int, len(candidates))
		for i, c := range candidates {
			ids[i] = c.ID
			for _, p := range c.Corners {
				corners[i] = append(corners[i], gocv.Point2f{X: float32(p.X), Y: float32(p.Y)})
			}
		}
		gocv.ArucoDrawDetectedMarkers(img, corners, ids, markerColor)
	}
	if chosen != nil {
		if axes, ok := projectAxes(*chosen, w.calib, w.axisLength); ok {
			origin := pixel(axes.Origin)
			gocv.Line(&img, origin, pixel(axes.X), xAxisColor, 2)
			gocv.Line(&img, origin, pixel(axes.Y), yAxisColor, 2)
			gocv.Line(&img, origin, pixel(axes.Z), zAxisColor, 2)
		}
	}
	for i, line := range overlayLines(rec) {
		gocv.PutText(&img, line, image.Pt(10, 25+22*i), gocv.FontHersheySimplex, 0.6, textColor, 2)
	}
	w.win.IMShow(img)
	key := w.win.WaitKey(1)
	return key == 'q' || key == 'Q'
}

func (w *Window) Close() error { return w.win.Close() }

func pixel(p vision.Point2) image.Point {
	return image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
}
