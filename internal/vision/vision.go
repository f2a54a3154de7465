// Package vision turns camera frames into candidate marker poses. The corner
// detector and the pose-from-corners solver are collaborators behind
// interfaces; internal/vision/opencv provides the production implementations.
package vision

import (
	"context"
	"errors"
	"time"

	"github.com/banshee-data/marker.tracker/internal/pose"
)

// ErrDeviceClosed is returned by a FrameSource that can no longer deliver
// frames.
var ErrDeviceClosed = errors.New("capture device closed")

// Point2 is an image-space coordinate in pixels.
type Point2 struct {
	X, Y float64
}

// Detection is one marker found in a frame. Corners are in the detector's
// order: top-left, top-right, bottom-right, bottom-left.
type Detection struct {
	ID      int
	Corners [4]Point2
}

// Candidate is a detected marker with its solved camera-space pose.
type Candidate struct {
	ID      int
	Corners [4]Point2
	RVec    pose.Vec3
	TVec    pose.Vec3
}

// Transform returns the candidate's pose as a homogeneous transform.
func (c Candidate) Transform() pose.Transform {
	return pose.FromRotationTranslation(c.RVec, c.TVec)
}

// Frame is a captured image. Its pixel representation belongs to the
// FrameSource implementation; the pipeline only forwards it to the Detector
// and overlay and releases it with Close.
type Frame interface {
	CapturedAt() time.Time
	Close() error
}

// FrameSource delivers frames from a capture device.
type FrameSource interface {
	Read(ctx context.Context) (Frame, error)
	Close() error
}

// Detector finds fiducial markers in a frame.
type Detector interface {
	Detect(frame Frame) ([]Detection, error)
}

// PoseSolver recovers a marker's pose from its four corners.
type PoseSolver interface {
	Solve(corners [4]Point2, markerLength float64, calib Calibration) (rvec, tvec pose.Vec3, err error)
}
