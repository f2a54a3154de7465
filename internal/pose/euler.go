package pose

import "math"

// RotationToEuler returns the x, y, z Euler angles (radians) of the rotation
// block of t for the R = Rz·Ry·Rx convention. In gimbal lock the z angle is
// reported as 0.
func RotationToEuler(t Transform) Vec3 {
	sy := math.Hypot(t[0], t[4])
	if sy < 1e-6 {
		return Vec3{
			math.Atan2(-t[6], t[5]),
			math.Atan2(-t[8], sy),
			0,
		}
	}
	return Vec3{
		math.Atan2(t[9], t[10]),
		math.Atan2(-t[8], sy),
		math.Atan2(t[4], t[0]),
	}
}

// EulerToRotation builds a pure rotation transform from x, y, z Euler angles
// (radians), R = Rz·Ry·Rx.
func EulerToRotation(angles Vec3) Transform {
	cx, sx := math.Cos(angles[0]), math.Sin(angles[0])
	cy, sy := math.Cos(angles[1]), math.Sin(angles[1])
	cz, sz := math.Cos(angles[2]), math.Sin(angles[2])

	return Transform{
		cz * cy, cz*sy*sx - sz*cx, cz*sy*cx + sz*sx, 0,
		sz * cy, sz*sy*sx + cz*cx, sz*sy*cx - cz*sx, 0,
		-sy, cy * sx, cy * cx, 0,
		0, 0, 0, 1,
	}
}

// Degrees converts each component of v from radians to degrees.
func Degrees(v Vec3) Vec3 {
	return v.Scale(180 / math.Pi)
}
