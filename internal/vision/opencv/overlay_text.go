package opencv

import (
	"fmt"

	"github.com/banshee-data/marker.tracker/internal/pose"
	"github.com/banshee-data/marker.tracker/internal/tracking"
)

// overlayLines formats a record the way the window prints it.
func overlayLines(rec tracking.DetectionRecord) []string {
	lines := []string{
		fmt.Sprintf("timestamp: %.3f", rec.Timestamp),
		fmt.Sprintf("success: %v", rec.Success),
	}
	if rec.Success {
		t, o := rec.Translation, rec.Orientation
		euler := pose.Degrees(pose.RotationToEuler(pose.FromBasis(o, t)))
		lines = append(lines,
			fmt.Sprintf("translation: %.3f %.3f %.3f", t[0], t[1], t[2]),
			fmt.Sprintf("right: %.3f %.3f %.3f", o.Right[0], o.Right[1], o.Right[2]),
			fmt.Sprintf("up: %.3f %.3f %.3f", o.Up[0], o.Up[1], o.Up[2]),
			fmt.Sprintf("forward: %.3f %.3f %.3f", o.Forward[0], o.Forward[1], o.Forward[2]),
			fmt.Sprintf("euler deg: %.1f %.1f %.1f", euler[0], euler[1], euler[2]),
		)
		if rec.Frozen {
			lines = append(lines, "orientation frozen")
		}
	}
	return append(lines, "Q - Quit")
}
