// Package filter smooths marker positions with a constant-acceleration Kalman
// filter and suppresses small orientation flicker.
package filter

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/marker.tracker/internal/pose"
)

// State layout: x y z, vx vy vz, ax ay az.
const (
	stateDim   = 9
	measureDim = 3
)

// ErrDiverged is returned when a correction produces a non-finite state. The
// filter is reset before it is returned.
var ErrDiverged = errors.New("kalman state diverged")

// Params configures the filter model.
type Params struct {
	// Timestep is the fixed prediction interval in seconds. It is not measured
	// per frame.
	Timestep         float64
	ProcessNoise     float64
	MeasurementNoise float64
}

// DefaultParams matches a ~30 fps camera.
func DefaultParams() Params {
	return Params{
		Timestep:         0.0334,
		ProcessNoise:     1e-5,
		MeasurementNoise: 1e-4,
	}
}

// Kalman is the per-session position filter. It is owned by a single
// pipeline and is not safe for concurrent use.
type Kalman struct {
	params Params

	f *mat.Dense // transition
	h *mat.Dense // measurement
	q *mat.Dense // process noise
	r *mat.Dense // measurement noise

	x *mat.VecDense // state
	p *mat.Dense    // covariance

	steps int
}

// NewKalman returns a filter with zero state and identity covariance.
func NewKalman(params Params) *Kalman {
	dt := params.Timestep
	f := identity(stateDim, 1)
	for axis := 0; axis < 3; axis++ {
		f.Set(axis, axis+3, dt)        // position += velocity*dt
		f.Set(axis+3, axis+6, dt)      // velocity += acceleration*dt
		f.Set(axis, axis+6, 0.5*dt*dt) // position += acceleration*dt²/2
	}

	h := mat.NewDense(measureDim, stateDim, nil)
	for axis := 0; axis < 3; axis++ {
		h.Set(axis, axis, 1)
	}

	k := &Kalman{
		params: params,
		f:      f,
		h:      h,
		q:      identity(stateDim, params.ProcessNoise),
		r:      identity(measureDim, params.MeasurementNoise),
	}
	k.Reset()
	return k
}

// Reset restores the initial state: zero position, velocity and
// acceleration with identity covariance.
func (k *Kalman) Reset() {
	k.x = mat.NewVecDense(stateDim, nil)
	k.p = identity(stateDim, 1)
	k.steps = 0
}

// Params returns the model parameters.
func (k *Kalman) Params() Params { return k.params }

// Steps returns how many measurements have been folded in since Reset.
func (k *Kalman) Steps() int { return k.steps }

// Predict advances the state by one timestep.
func (k *Kalman) Predict() {
	var x mat.VecDense
	x.MulVec(k.f, k.x)
	k.x = &x

	// P = F P Fᵀ + Q
	var fp, p mat.Dense
	fp.Mul(k.f, k.p)
	p.Mul(&fp, k.f.T())
	p.Add(&p, k.q)
	k.p = &p
}

// Correct folds in a position measurement.
func (k *Kalman) Correct(z pose.Vec3) error {
	var hx mat.VecDense
	hx.MulVec(k.h, k.x)
	y := mat.NewVecDense(measureDim, []float64{
		z[0] - hx.AtVec(0),
		z[1] - hx.AtVec(1),
		z[2] - hx.AtVec(2),
	})

	// S = H P Hᵀ + R
	var pht, s mat.Dense
	pht.Mul(k.p, k.h.T())
	s.Mul(k.h, &pht)
	s.Add(&s, k.r)

	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		return fmt.Errorf("innovation covariance: %w", err)
	}

	// K = P Hᵀ S⁻¹
	var gain mat.Dense
	gain.Mul(&pht, &sInv)

	var ky mat.VecDense
	ky.MulVec(&gain, y)
	k.x.AddVec(k.x, &ky)

	// P = (I - K H) P
	var kh, ikh, p mat.Dense
	kh.Mul(&gain, k.h)
	ikh.Sub(identity(stateDim, 1), &kh)
	p.Mul(&ikh, k.p)
	k.p = &p

	if !k.isFinite() {
		k.Reset()
		return ErrDiverged
	}
	k.steps++
	return nil
}

// Step predicts one timestep, corrects with z and returns the filtered
// position.
func (k *Kalman) Step(z pose.Vec3) (pose.Vec3, error) {
	k.Predict()
	if err := k.Correct(z); err != nil {
		return pose.Vec3{}, err
	}
	return k.Position(), nil
}

// Position returns the current position estimate.
func (k *Kalman) Position() pose.Vec3 {
	return pose.Vec3{k.x.AtVec(0), k.x.AtVec(1), k.x.AtVec(2)}
}

// Velocity returns the current velocity estimate.
func (k *Kalman) Velocity() pose.Vec3 {
	return pose.Vec3{k.x.AtVec(3), k.x.AtVec(4), k.x.AtVec(5)}
}

func (k *Kalman) isFinite() bool {
	for i := 0; i < stateDim; i++ {
		if v := k.x.AtVec(i); math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
		if v := k.p.At(i, i); math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func identity(n int, scale float64) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, scale)
	}
	return m
}
