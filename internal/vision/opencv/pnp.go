//go:build opencv
// +build opencv

package opencv

import (
	"errors"

	"gocv.io/x/gocv"

	"github.com/banshee-data/marker.tracker/internal/pose"
	"github.com/banshee-data/marker.tracker/internal/vision"
)

// cv::SOLVEPNP_IPPE_SQUARE
const solvePnPIPPESquare = 7

// PnPSolver solves a square marker's pose with SOLVEPNP_IPPE_SQUARE.
type PnPSolver struct{}

// squareObjectPoints is the marker outline in its own frame, in the corner
// order ArUco reports.
func squareObjectPoints(length float64) []gocv.Point3f {
	h := float32(length / 2)
	return []gocv.Point3f{
		{X: -h, Y: h, Z: 0},
		{X: h, Y: h, Z: 0},
		{X: h, Y: -h, Z: 0},
		{X: -h, Y: -h, Z: 0},
	}
}

func (PnPSolver) Solve(corners [4]vision.Point2, markerLength float64, calib vision.Calibration) (pose.Vec3, pose.Vec3, error) {
	obj := gocv.NewPoint3fVectorFromPoints(squareObjectPoints(markerLength))
	defer obj.Close()

	pts := make([]gocv.Point2f, 4)
	for i, c := range corners {
		pts[i] = gocv.Point2f{X: float32(c.X), Y: float32(c.Y)}
	}
	img := gocv.NewPoint2fVectorFromPoints(pts)
	defer img.Close()

	camMtx := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	defer camMtx.Close()
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			camMtx.SetDoubleAt(r, c, calib.CameraMatrix.At(r, c))
		}
	}
	dist := gocv.NewMatWithSize(1, len(calib.Distortion), gocv.MatTypeCV64F)
	defer dist.Close()
	for i, v := range calib.Distortion {
		dist.SetDoubleAt(0, i, v)
	}

	rvec, tvec := gocv.NewMat(), gocv.NewMat()
	defer rvec.Close()
	defer tvec.Close()
	if !gocv.SolvePnP(obj, img, camMtx, dist, &rvec, &tvec, false, solvePnPIPPESquare) {
		return pose.Vec3{}, pose.Vec3{}, errors.New("solvePnP found no solution")
	}

	var r, t pose.Vec3
	for i := 0; i < 3; i++ {
		r[i] = rvec.GetDoubleAt(i, 0)
		t[i] = tvec.GetDoubleAt(i, 0)
	}
	return r, t, nil
}
