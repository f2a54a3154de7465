package marker

import (
	"fmt"

	"github.com/banshee-data/marker.tracker/internal/pose"
	"github.com/banshee-data/marker.tracker/internal/vision"
)

// Selection is the pose chosen for a frame.
type Selection struct {
	MarkerID int
	Pose     pose.Transform
}

// Selector applies a Settings variant, the global offset and rigid transform
// validation to a frame's candidates.
type Selector struct {
	Settings  Settings
	Offset    pose.Transform
	Tolerance float64
}

// Select picks this frame's pose with the default validation tolerance.
func Select(s Settings, candidates []vision.Candidate, offset pose.Transform) (pose.Transform, bool, error) {
	sel, ok, err := Selector{Settings: s, Offset: offset, Tolerance: pose.DefaultTolerance}.Select(candidates)
	return sel.Pose, ok, err
}

// Select returns the offset-adjusted pose of the chosen marker. ok is false
// when no candidate qualifies; err is set alongside ok=false when a candidate
// was chosen but could not be turned into a valid pose.
func (s Selector) Select(candidates []vision.Candidate) (Selection, bool, error) {
	var (
		chosen Selection
		ok     bool
		err    error
	)

	switch settings := s.Settings.(type) {
	case SingleMarker:
		chosen, ok = selectSingle(settings, candidates)
	case Cube:
		chosen, ok, err = selectCube(settings, candidates)
	default:
		return Selection{}, false, fmt.Errorf("%w: %T", ErrUnknownMode, s.Settings)
	}
	if !ok {
		return Selection{}, false, err
	}

	chosen.Pose = pose.Apply(chosen.Pose, s.Offset)
	if err := pose.Validate(chosen.Pose, s.Tolerance); err != nil {
		return Selection{}, false, fmt.Errorf("marker %d: %w", chosen.MarkerID, err)
	}
	return chosen, true, nil
}

func selectSingle(s SingleMarker, candidates []vision.Candidate) (Selection, bool) {
	for _, c := range candidates {
		if c.ID == s.MarkerID {
			return Selection{MarkerID: c.ID, Pose: c.Transform()}, true
		}
	}
	return Selection{}, false
}

// selectCube picks the face closest to the camera along Z. Ties keep the
// earliest detection.
func selectCube(s Cube, candidates []vision.Candidate) (Selection, bool, error) {
	best := -1
	for i, c := range candidates {
		if best < 0 || c.TVec[2] < candidates[best].TVec[2] {
			best = i
		}
	}
	if best < 0 {
		return Selection{}, false, nil
	}

	c := candidates[best]
	p := c.Transform()
	if c.ID != s.UpMarkerID {
		correction, ok := s.Transformations[c.ID]
		if !ok {
			return Selection{}, false, fmt.Errorf("%w: %d", ErrUnknownFace, c.ID)
		}
		p = pose.Apply(p, correction)
	}
	return Selection{MarkerID: c.ID, Pose: p}, true, nil
}
