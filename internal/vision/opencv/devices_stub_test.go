//go:build !opencv
// +build !opencv

package opencv

import (
	"errors"
	"testing"

	"github.com/banshee-data/marker.tracker/internal/vision"
)

func TestStubDevices(t *testing.T) {
	var d Devices
	if _, err := d.OpenCamera(0, 1280, 720); !errors.Is(err, ErrUnavailable) {
		t.Errorf("OpenCamera error = %v, want ErrUnavailable", err)
	}
	if _, err := d.NewDetector(); !errors.Is(err, ErrUnavailable) {
		t.Errorf("NewDetector error = %v, want ErrUnavailable", err)
	}
	if _, err := d.NewPoseSolver(); !errors.Is(err, ErrUnavailable) {
		t.Errorf("NewPoseSolver error = %v, want ErrUnavailable", err)
	}
	if _, err := d.NewOverlay("x", vision.Calibration{}, 0.05); !errors.Is(err, ErrUnavailable) {
		t.Errorf("NewOverlay error = %v, want ErrUnavailable", err)
	}
}
