package vision

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// File names inside a calibration directory.
const (
	CameraMatrixFile = "cam_mtx.npy"
	DistortionFile   = "dist.npy"
)

// Calibration holds the camera intrinsics. It is loaded once per session and
// never mutated afterwards.
type Calibration struct {
	CameraMatrix *mat.Dense
	Distortion   []float64
}

// Validate checks the shape and finiteness of the intrinsics.
func (c Calibration) Validate() error {
	if c.CameraMatrix == nil {
		return fmt.Errorf("camera matrix is missing")
	}
	if r, col := c.CameraMatrix.Dims(); r != 3 || col != 3 {
		return fmt.Errorf("camera matrix is %dx%d, want 3x3", r, col)
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if v := c.CameraMatrix.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("camera matrix element (%d,%d) is %v", i, j, v)
			}
		}
	}
	if c.CameraMatrix.At(0, 0) <= 0 || c.CameraMatrix.At(1, 1) <= 0 {
		return fmt.Errorf("focal lengths must be positive")
	}
	switch len(c.Distortion) {
	case 4, 5, 8, 12, 14:
	default:
		return fmt.Errorf("unsupported distortion coefficient count %d", len(c.Distortion))
	}
	return nil
}

// LoadCalibration reads cam_mtx.npy and dist.npy from dir.
func LoadCalibration(dir string) (Calibration, error) {
	camData, err := readNPY(filepath.Join(dir, CameraMatrixFile))
	if err != nil {
		return Calibration{}, err
	}
	if len(camData) != 9 {
		return Calibration{}, fmt.Errorf("%s: expected 9 values, got %d", CameraMatrixFile, len(camData))
	}

	dist, err := readNPY(filepath.Join(dir, DistortionFile))
	if err != nil {
		return Calibration{}, err
	}

	calib := Calibration{
		CameraMatrix: mat.NewDense(3, 3, camData),
		Distortion:   dist,
	}
	if err := calib.Validate(); err != nil {
		return Calibration{}, fmt.Errorf("calibration in %s: %w", dir, err)
	}
	return calib, nil
}

// SaveCalibration writes calib to dir in the layout LoadCalibration reads.
func SaveCalibration(dir string, calib Calibration) error {
	if err := calib.Validate(); err != nil {
		return err
	}
	if err := writeNPY(filepath.Join(dir, CameraMatrixFile), mat.DenseCopyOf(calib.CameraMatrix).RawMatrix().Data); err != nil {
		return err
	}
	return writeNPY(filepath.Join(dir, DistortionFile), calib.Distortion)
}

func readNPY(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var data []float64
	if err := npyio.Read(f, &data); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func writeNPY(path string, data []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := npyio.Write(f, data); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
