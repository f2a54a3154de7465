// Package tracking runs the per-frame loop: capture, detect, select, filter
// and hand the resulting records to the publisher.
package tracking

import (
	"encoding/json"

	"github.com/banshee-data/marker.tracker/internal/pose"
)

// DetectionRecord is one frame's result. Translation and Orientation are only
// meaningful when Success is true and are left out of the JSON otherwise.
type DetectionRecord struct {
	Timestamp   float64 // Unix seconds
	Success     bool
	Translation pose.Vec3
	Orientation pose.Basis

	// Local bookkeeping, not part of the datagram.
	MarkerID int
	Frozen   bool
}

// Failure returns an unsuccessful record for ts.
func Failure(ts float64) DetectionRecord {
	return DetectionRecord{Timestamp: ts}
}

type wireRecord struct {
	Timestamp float64 `json:"timestamp"`
	Success   bool    `json:"success"`

	TranslationX *float64 `json:"translation_x,omitempty"`
	TranslationY *float64 `json:"translation_y,omitempty"`
	TranslationZ *float64 `json:"translation_z,omitempty"`

	RightX *float64 `json:"rotation_right_x,omitempty"`
	RightY *float64 `json:"rotation_right_y,omitempty"`
	RightZ *float64 `json:"rotation_right_z,omitempty"`

	UpX *float64 `json:"rotation_up_x,omitempty"`
	UpY *float64 `json:"rotation_up_y,omitempty"`
	UpZ *float64 `json:"rotation_up_z,omitempty"`

	ForwardX *float64 `json:"rotation_forward_x,omitempty"`
	ForwardY *float64 `json:"rotation_forward_y,omitempty"`
	ForwardZ *float64 `json:"rotation_forward_z,omitempty"`
}

// MarshalJSON writes the flat datagram layout consumed by the receiver.
func (r DetectionRecord) MarshalJSON() ([]byte, error) {
	w := wireRecord{Timestamp: r.Timestamp, Success: r.Success}
	if r.Success {
		t, o := r.Translation, r.Orientation
		w.TranslationX, w.TranslationY, w.TranslationZ = &t[0], &t[1], &t[2]
		w.RightX, w.RightY, w.RightZ = &o.Right[0], &o.Right[1], &o.Right[2]
		w.UpX, w.UpY, w.UpZ = &o.Up[0], &o.Up[1], &o.Up[2]
		w.ForwardX, w.ForwardY, w.ForwardZ = &o.Forward[0], &o.Forward[1], &o.Forward[2]
	}
	return json.Marshal(w)
}

// UnmarshalJSON reads the flat datagram layout.
func (r *DetectionRecord) UnmarshalJSON(data []byte) error {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = DetectionRecord{Timestamp: w.Timestamp, Success: w.Success}
	if !w.Success {
		return nil
	}
	r.Translation = pose.Vec3{val(w.TranslationX), val(w.TranslationY), val(w.TranslationZ)}
	r.Orientation = pose.Basis{
		Right:   pose.Vec3{val(w.RightX), val(w.RightY), val(w.RightZ)},
		Up:      pose.Vec3{val(w.UpX), val(w.UpY), val(w.UpZ)},
		Forward: pose.Vec3{val(w.ForwardX), val(w.ForwardY), val(w.ForwardZ)},
	}
	return nil
}

func val(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
