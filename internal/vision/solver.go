package vision

import (
	"fmt"

	"github.com/banshee-data/marker.tracker/internal/monitoring"
)

var solverLogf = monitoring.Prefixed("vision")

// Solver combines a Detector and a PoseSolver.
type Solver struct {
	Detector Detector
	Poses    PoseSolver
}

// NewSolver returns a Solver over the given collaborators.
func NewSolver(d Detector, p PoseSolver) *Solver {
	return &Solver{Detector: d, Poses: p}
}

// Candidates detects markers in frame, keeps the ones want accepts (all when
// want is nil) and solves a pose for each, preserving detection order. A frame
// without markers yields an empty slice. A marker whose pose cannot be solved
// is dropped; only a detector failure is returned as an error.
func (s *Solver) Candidates(frame Frame, calib Calibration, markerLength float64, want func(id int) bool) ([]Candidate, error) {
	detections, err := s.Detector.Detect(frame)
	if err != nil {
		return nil, fmt.Errorf("detect markers: %w", err)
	}

	candidates := make([]Candidate, 0, len(detections))
	for _, d := range detections {
		if want != nil && !want(d.ID) {
			continue
		}
		rvec, tvec, err := s.Poses.Solve(d.Corners, markerLength, calib)
		if err != nil {
			solverLogf("marker %d: pose solve failed: %v", d.ID, err)
			continue
		}
		candidates = append(candidates, Candidate{
			ID:      d.ID,
			Corners: d.Corners,
			RVec:    rvec,
			TVec:    tvec,
		})
	}
	return candidates, nil
}
