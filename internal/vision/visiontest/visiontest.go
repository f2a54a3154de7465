// Package visiontest provides scripted frame sources, detectors and pose
// solvers for exercising the pipeline without a camera.
package visiontest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/marker.tracker/internal/pose"
	"github.com/banshee-data/marker.tracker/internal/vision"
)

// Frame is a placeholder image carrying only a sequence number.
type Frame struct {
	Seq    int
	At     time.Time
	closed atomic.Bool
}

func (f *Frame) CapturedAt() time.Time { return f.At }

func (f *Frame) Close() error {
	f.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (f *Frame) Closed() bool { return f.closed.Load() }

// Source hands out numbered frames. After Limit frames (0 means unlimited)
// every Read fails with Err, or vision.ErrDeviceClosed when Err is nil.
type Source struct {
	Limit int
	Err   error
	Now   func() time.Time

	mu     sync.Mutex
	frames []*Frame
	closed bool
}

// Read returns the next frame.
func (s *Source) Read(ctx context.Context) (vision.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, vision.ErrDeviceClosed
	}
	if s.Limit > 0 && len(s.frames) >= s.Limit {
		if s.Err != nil {
			return nil, s.Err
		}
		return nil, vision.ErrDeviceClosed
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	f := &Frame{Seq: len(s.frames), At: now()}
	s.frames = append(s.frames, f)
	return f, nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Frames returns every frame handed out so far.
func (s *Source) Frames() []*Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Frame(nil), s.frames...)
}

// IsClosed reports whether the source was closed.
func (s *Source) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// DetectorFunc adapts a function to vision.Detector.
type DetectorFunc func(frame vision.Frame) ([]vision.Detection, error)

func (f DetectorFunc) Detect(frame vision.Frame) ([]vision.Detection, error) { return f(frame) }

// Script returns a detector that reports script[seq] for the frame with that
// sequence number and nothing for frames past the end.
func Script(script ...[]vision.Detection) vision.Detector {
	return DetectorFunc(func(frame vision.Frame) ([]vision.Detection, error) {
		f, ok := frame.(*Frame)
		if !ok {
			return nil, fmt.Errorf("unexpected frame type %T", frame)
		}
		if f.Seq >= len(script) {
			return nil, nil
		}
		return script[f.Seq], nil
	})
}

// Repeat returns a detector that reports the same markers on every frame.
func Repeat(detections ...vision.Detection) vision.Detector {
	return DetectorFunc(func(vision.Frame) ([]vision.Detection, error) {
		return detections, nil
	})
}

// Pose is a solved rotation vector and translation.
type Pose struct {
	RVec pose.Vec3
	TVec pose.Vec3
}

// Marker builds a detection whose corners encode key so that a Table solver
// can look its pose up. Several detections may share an ID with different keys.
func Marker(id, key int) vision.Detection {
	k := float64(key)
	return vision.Detection{
		ID:      id,
		Corners: [4]vision.Point2{{X: k, Y: 0}, {X: k, Y: 1}, {X: k, Y: 2}, {X: k, Y: 3}},
	}
}

// Table is a PoseSolver that returns the pose registered under the key encoded
// by Marker. Unknown keys fail to solve.
type Table map[int]Pose

func (t Table) Solve(corners [4]vision.Point2, markerLength float64, calib vision.Calibration) (pose.Vec3, pose.Vec3, error) {
	p, ok := t[int(corners[0].X)]
	if !ok {
		return pose.Vec3{}, pose.Vec3{}, fmt.Errorf("no pose for key %v", corners[0].X)
	}
	return p.RVec, p.TVec, nil
}
