package tracking

import (
	"fmt"

	"github.com/banshee-data/marker.tracker/internal/filter"
	"github.com/banshee-data/marker.tracker/internal/marker"
)

// BuildRecords turns one frame's selection into its raw and filtered records.
// It steps kf only when sel is non-nil. prev is the filtered record of the
// previous frame; the guard is consulted only when prev succeeded.
//
// Both records carry the filtered position. The raw record keeps the
// solver's orientation while the filtered one may hold prev's orientation.
func BuildRecords(ts float64, sel *marker.Selection, kf *filter.Kalman, guard filter.OscillationGuard, prev DetectionRecord) (raw, filtered DetectionRecord, err error) {
	if sel == nil {
		return Failure(ts), Failure(ts), nil
	}

	position, err := kf.Step(sel.Pose.Translation())
	if err != nil {
		return Failure(ts), Failure(ts), fmt.Errorf("marker %d: %w", sel.MarkerID, err)
	}

	raw = DetectionRecord{
		Timestamp:   ts,
		Success:     true,
		Translation: position,
		Orientation: sel.Pose.Basis(),
		MarkerID:    sel.MarkerID,
	}
	filtered = raw
	if prev.Success {
		filtered.Orientation, filtered.Frozen = guard.Apply(prev.Orientation, raw.Orientation)
	}
	return raw, filtered, nil
}
