package pose

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultTolerance bounds |R^T R - I|, |det R - 1| and the bottom row.
const DefaultTolerance = 1e-6

// ErrNotOrthonormal marks a transform that is not a proper rigid motion.
var ErrNotOrthonormal = errors.New("transform is not orthonormal")

// Validate checks that t is a proper rigid transform: finite, orthonormal
// rotation with determinant +1, and bottom row [0 0 0 1].
func Validate(t Transform, tol float64) error {
	for i, v := range t {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: element %d is %v", ErrNotOrthonormal, i, v)
		}
	}

	if math.Abs(t[12]) > tol || math.Abs(t[13]) > tol || math.Abs(t[14]) > tol || math.Abs(t[15]-1) > tol {
		return fmt.Errorf("%w: bottom row [%g %g %g %g]", ErrNotOrthonormal, t[12], t[13], t[14], t[15])
	}

	r := t.Rotation()
	var rtr mat.Dense
	rtr.Mul(r.T(), r)
	eye := mat.NewDiagDense(3, []float64{1, 1, 1})
	if !mat.EqualApprox(&rtr, eye, tol) {
		return fmt.Errorf("%w: R^T R deviates from identity", ErrNotOrthonormal)
	}

	if det := mat.Det(r); math.Abs(det-1) > tol {
		return fmt.Errorf("%w: det %g", ErrNotOrthonormal, det)
	}
	return nil
}
