//go:build !opencv
// +build !opencv

package opencv

import (
	"github.com/banshee-data/marker.tracker/internal/tracking"
	"github.com/banshee-data/marker.tracker/internal/vision"
)

// Devices is the stub used when OpenCV is not compiled in.
type Devices struct{}

func (Devices) OpenCamera(device, width, height int) (vision.FrameSource, error) {
	return nil, ErrUnavailable
}

func (Devices) NewDetector() (vision.Detector, error) { return nil, ErrUnavailable }

func (Devices) NewPoseSolver() (vision.PoseSolver, error) { return nil, ErrUnavailable }

func (Devices) NewOverlay(string, vision.Calibration, float64) (tracking.Overlay, error) {
	return nil, ErrUnavailable
}
