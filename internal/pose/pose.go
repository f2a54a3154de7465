// Package pose holds the rigid transform algebra used between the pose
// solver and the temporal filter: Rodrigues conversion, composition and
// orthonormality checks on 4x4 homogeneous transforms.
package pose

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Vec3 is a 3-vector in camera space (meters for translations, radians for
// rotation vectors).
type Vec3 [3]float64

// Norm returns the Euclidean length of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// Scale returns v multiplied by s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v[0] * s, v[1] * s, v[2] * s}
}

// Basis is the orientation of a tracked object expressed as the three columns
// of its rotation matrix.
type Basis struct {
	Right   Vec3
	Up      Vec3
	Forward Vec3
}

// Components returns the nine basis values in Right, Up, Forward order.
func (b Basis) Components() [9]float64 {
	return [9]float64{
		b.Right[0], b.Right[1], b.Right[2],
		b.Up[0], b.Up[1], b.Up[2],
		b.Forward[0], b.Forward[1], b.Forward[2],
	}
}

// Transform is a 4x4 homogeneous rigid transform stored row-major:
// m00,m01,m02,m03, m10,... The translation lives in the last column.
type Transform [16]float64

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// At returns element (row, col).
func (t Transform) At(row, col int) float64 {
	return t[row*4+col]
}

// Translation returns the translation column.
func (t Transform) Translation() Vec3 {
	return Vec3{t[3], t[7], t[11]}
}

// Rotation returns the upper-left 3x3 block as a gonum matrix.
func (t Transform) Rotation() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		t[0], t[1], t[2],
		t[4], t[5], t[6],
		t[8], t[9], t[10],
	})
}

// Basis returns the columns of the rotation block.
func (t Transform) Basis() Basis {
	return Basis{
		Right:   Vec3{t[0], t[4], t[8]},
		Up:      Vec3{t[1], t[5], t[9]},
		Forward: Vec3{t[2], t[6], t[10]},
	}
}

// FromBasis is the inverse of Basis and Translation.
func FromBasis(b Basis, translation Vec3) Transform {
	return Transform{
		b.Right[0], b.Up[0], b.Forward[0], translation[0],
		b.Right[1], b.Up[1], b.Forward[1], translation[1],
		b.Right[2], b.Up[2], b.Forward[2], translation[2],
		0, 0, 0, 1,
	}
}

// Dense returns a copy of t as a 4x4 gonum matrix.
func (t Transform) Dense() *mat.Dense {
	data := make([]float64, 16)
	copy(data, t[:])
	return mat.NewDense(4, 4, data)
}

// Apply composes p with t as p·t. t is expressed in the local frame of p, so
// this is how per-face corrections and the global offset are attached to a
// solved marker pose.
func Apply(p, t Transform) Transform {
	var out Transform
	dst := mat.NewDense(4, 4, out[:])
	dst.Mul(p.Dense(), t.Dense())
	return out
}

// ApplyPoint maps a point through t.
func (t Transform) ApplyPoint(v Vec3) Vec3 {
	return Vec3{
		t[0]*v[0] + t[1]*v[1] + t[2]*v[2] + t[3],
		t[4]*v[0] + t[5]*v[1] + t[6]*v[2] + t[7],
		t[8]*v[0] + t[9]*v[1] + t[10]*v[2] + t[11],
	}
}

// FromRotationTranslation builds the homogeneous transform for a Rodrigues
// rotation vector and a translation.
func FromRotationTranslation(rvec, tvec Vec3) Transform {
	r := RotationFromVector(rvec)
	return Transform{
		r[0], r[1], r[2], tvec[0],
		r[3], r[4], r[5], tvec[1],
		r[6], r[7], r[8], tvec[2],
		0, 0, 0, 1,
	}
}

// ToRotationTranslation is the inverse of FromRotationTranslation.
func ToRotationTranslation(t Transform) (rvec, tvec Vec3) {
	r := [9]float64{
		t[0], t[1], t[2],
		t[4], t[5], t[6],
		t[8], t[9], t[10],
	}
	return VectorFromRotation(r), t.Translation()
}

// ApproxEqual reports whether every element of a and b differs by at most tol.
func ApproxEqual(a, b Transform, tol float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}
