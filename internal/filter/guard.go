package filter

import (
	"math"

	"github.com/banshee-data/marker.tracker/internal/pose"
)

// DefaultOscillationThreshold is the per-component change below which an
// orientation is treated as unchanged.
const DefaultOscillationThreshold = 0.01

// OscillationGuard holds the previous orientation while the solver only
// jitters around it, which hides the sign flips planar markers are prone to.
type OscillationGuard struct {
	Threshold float64
}

// Apply returns prev and true when every one of the nine basis components of
// cur is strictly within Threshold of prev. Otherwise cur is returned as is.
func (g OscillationGuard) Apply(prev, cur pose.Basis) (pose.Basis, bool) {
	p, c := prev.Components(), cur.Components()
	for i := range p {
		if !(math.Abs(c[i]-p[i]) < g.Threshold) {
			return cur, false
		}
	}
	return prev, true
}
