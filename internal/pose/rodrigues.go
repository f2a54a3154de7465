package pose

import "math"

// Below this sin(theta) the antisymmetric part of R no longer pins down the
// axis well enough when theta is close to pi.
const nearPiSin = 1e-4

// RotationFromVector converts a Rodrigues rotation vector (axis * angle) into
// a row-major 3x3 rotation matrix.
func RotationFromVector(rvec Vec3) [9]float64 {
	theta := rvec.Norm()
	if theta < 1e-12 {
		// First order: I + [r]x
		return [9]float64{
			1, -rvec[2], rvec[1],
			rvec[2], 1, -rvec[0],
			-rvec[1], rvec[0], 1,
		}
	}

	kx, ky, kz := rvec[0]/theta, rvec[1]/theta, rvec[2]/theta
	c, s := math.Cos(theta), math.Sin(theta)
	v := 1 - c

	// R = cI + (1-c)kk^T + s[k]x
	return [9]float64{
		c + v*kx*kx, v*kx*ky - s*kz, v*kx*kz + s*ky,
		v*ky*kx + s*kz, c + v*ky*ky, v*ky*kz - s*kx,
		v*kz*kx - s*ky, v*kz*ky + s*kx, c + v*kz*kz,
	}
}

// VectorFromRotation converts a row-major rotation matrix into a Rodrigues
// vector with angle in [0, pi].
func VectorFromRotation(r [9]float64) Vec3 {
	// vee(R - R^T) = 2 sin(theta) k
	w := Vec3{r[7] - r[5], r[2] - r[6], r[3] - r[1]}
	s := 0.5 * w.Norm()
	c := 0.5 * (r[0] + r[4] + r[8] - 1)
	theta := math.Atan2(s, c)

	if s == 0 && c > 0 {
		return Vec3{}
	}

	if c > 0 || s >= nearPiSin {
		return w.Scale(theta / (2 * s))
	}

	// Near pi: recover the axis from the symmetric part,
	// (R + R^T)/2 = cI + (1-c)kk^T.
	v := 1 - c
	var kk [9]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			kk[i*3+j] = 0.5 * (r[i*3+j] + r[j*3+i])
			if i == j {
				kk[i*3+j] -= c
			}
			kk[i*3+j] /= v
		}
	}

	col := 0
	for i := 1; i < 3; i++ {
		if kk[i*3+i] > kk[col*3+col] {
			col = i
		}
	}
	norm := math.Sqrt(kk[col*3+col])
	k := Vec3{kk[0*3+col] / norm, kk[1*3+col] / norm, kk[2*3+col] / norm}

	// Either sign describes the same rotation at exactly pi; otherwise follow w.
	if k[0]*w[0]+k[1]*w[1]+k[2]*w[2] < 0 {
		k = k.Scale(-1)
	}
	return k.Scale(theta)
}
