// Package marker decides which detected marker, if any, gives this frame's
// pose.
package marker

import (
	"errors"
	"fmt"

	"github.com/banshee-data/marker.tracker/internal/config"
	"github.com/banshee-data/marker.tracker/internal/pose"
)

var (
	// ErrUnknownMode is returned when the detection mode is neither single
	// nor cube.
	ErrUnknownMode = errors.New("unknown detection mode")
	// ErrUnknownFace is returned when the nearest cube face has no
	// corrective transform configured.
	ErrUnknownFace = errors.New("no transformation for cube face")
)

// Settings is either SingleMarker or Cube.
type Settings interface {
	MarkerLength() float64
	// Wants reports whether a detected marker ID can take part in selection.
	Wants(id int) bool
	isSettings()
}

// SingleMarker tracks one marker ID.
type SingleMarker struct {
	MarkerID int
	Length   float64
}

func (s SingleMarker) MarkerLength() float64 { return s.Length }
func (s SingleMarker) Wants(id int) bool     { return id == s.MarkerID }
func (SingleMarker) isSettings()             {}

// Cube tracks a cube with a marker on each face. Transformations maps every
// face except UpMarkerID to the correction that re-expresses that face's pose
// as the up face's pose.
type Cube struct {
	Length          float64
	UpMarkerID      int
	Transformations map[int]pose.Transform
}

func (c Cube) MarkerLength() float64 { return c.Length }

// Wants accepts every ID: the nearest marker decides the face, and a face
// without a transformation is reported by Select rather than hidden here.
func (c Cube) Wants(id int) bool { return true }

func (Cube) isSettings() {}

// NewSettings builds the selection settings for a detection config.
func NewSettings(d config.DetectionConfig) (Settings, error) {
	switch d.Mode {
	case config.ModeSingle:
		return SingleMarker{MarkerID: d.MarkerID, Length: d.MarkerLength}, nil
	case config.ModeCube:
		transforms := make(map[int]pose.Transform, len(d.Transformations))
		for id, t := range d.Transformations {
			transforms[id] = t
		}
		return Cube{
			Length:          d.MarkerLength,
			UpMarkerID:      d.UpMarkerID,
			Transformations: transforms,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, d.Mode)
	}
}
