//go:build opencv
// +build opencv

package opencv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/banshee-data/marker.tracker/internal/tracking"
	"github.com/banshee-data/marker.tracker/internal/vision"
)

// cv::aruco::CORNER_REFINE_CONTOUR
const cornerRefineContour = 2

const adaptiveThreshConstant = 7

// Devices opens OpenCV backed devices.
type Devices struct{}

func (Devices) OpenCamera(device, width, height int) (vision.FrameSource, error) {
	return OpenCamera(device, width, height)
}

func (Devices) NewDetector() (vision.Detector, error) { return NewArucoDetector(), nil }

func (Devices) NewPoseSolver() (vision.PoseSolver, error) { return PnPSolver{}, nil }

func (Devices) NewOverlay(title string, calib vision.Calibration, axisLength float64) (tracking.Overlay, error) {
	return NewWindow(title, calib, axisLength), nil
}

// Frame is a captured image. Close releases the underlying Mat.
type Frame struct {
	Mat gocv.Mat
	at  time.Time
}

func (f *Frame) CapturedAt() time.Time { return f.at }
func (f *Frame) Close() error          { return f.Mat.Close() }

// Camera reads frames from a V4L/AVFoundation device.
type Camera struct {
	mu     sync.Mutex
	cap    *gocv.VideoCapture
	device int
	closed bool
}

// OpenCamera opens device and requests width x height frames. The driver may
// pick a different size.
func OpenCamera(device, width, height int) (*Camera, error) {
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, err
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("camera %d did not open", device)
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
	return &Camera{cap: vc, device: device}, nil
}

// Read grabs the next frame. A closed camera returns vision.ErrDeviceClosed;
// an empty grab is a transient error.
func (c *Camera) Read(ctx context.Context) (vision.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.cap.IsOpened() {
		return nil, vision.ErrDeviceClosed
	}
	img := gocv.NewMat()
	if ok := c.cap.Read(&img); !ok || img.Empty() {
		img.Close()
		return nil, fmt.Errorf("camera %d: empty frame", c.device)
	}
	return &Frame{Mat: img, at: time.Now()}, nil
}

func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.cap.Close()
}

func matOf(frame vision.Frame) (gocv.Mat, error) {
	f, ok := frame.(*Frame)
	if !ok {
		return gocv.Mat{}, fmt.Errorf("unsupported frame type %T", frame)
	}
	return f.Mat, nil
}

// ArucoDetector finds 6x6 ArUco markers on the grayscale image with contour
// corner refinement.
type ArucoDetector struct {
	det gocv.ArucoDetector
}

func NewArucoDetector() *ArucoDetector {
	params := gocv.NewArucoDetectorParameters()
	params.SetAdaptiveThreshConstant(adaptiveThreshConstant)
	params.SetCornerRefinementMethod(cornerRefineContour)
	dict := gocv.GetPredefinedDictionary(gocv.ArucoDict6x6_250)
	return &ArucoDetector{det: gocv.NewArucoDetectorWithParams(dict, params)}
}

func (d *ArucoDetector) Detect(frame vision.Frame) ([]vision.Detection, error) {
	img, err := matOf(frame)
	if err != nil {
		return nil, err
	}
	gray := gocv.NewMat()
	defer gray.Close()
	if err := gocv.CvtColor(img, &gray, gocv.ColorBGRToGray); err != nil {
		return nil, fmt.Errorf("aruco: grayscale: %w", err)
	}
	corners, ids, _ := d.det.DetectMarkers(gray)
	if len(corners) != len(ids) {
		return nil, errors.New("aruco: corner and id counts differ")
	}
	out := make([]vision.Detection, 0, len(ids))
	for i, id := range ids {
		if len(corners[i]) != 4 {
			continue
		}
		det := vision.Detection{ID: id}
		for k, p := range corners[i] {
			det.Corners[k] = vision.Point2{X: float64(p.X), Y: float64(p.Y)}
		}
		out = append(out, det)
	}
	return out, nil
}

func (d *ArucoDetector) Close() error { return d.det.Close() }
