package opencv

import (
	"github.com/banshee-data/marker.tracker/internal/pose"
	"github.com/banshee-data/marker.tracker/internal/vision"
)

// axisPoints are the image positions of a pose's origin and the tips of its
// X, Y and Z axes.
type axisPoints struct {
	Origin  vision.Point2
	X, Y, Z vision.Point2
}

// projectAxes projects the axes of p, each length long, through the camera
// model in calib. It reports false when any point lies on or behind the
// camera plane.
func projectAxes(p pose.Transform, calib vision.Calibration, length float64) (axisPoints, bool) {
	var pts [4]vision.Point2
	for i, local := range [4]pose.Vec3{{}, {length, 0, 0}, {0, length, 0}, {0, 0, length}} {
		pt, ok := projectPoint(p.ApplyPoint(local), calib)
		if !ok {
			return axisPoints{}, false
		}
		pts[i] = pt
	}
	return axisPoints{Origin: pts[0], X: pts[1], Y: pts[2], Z: pts[3]}, true
}

// projectPoint maps a camera-frame point to pixels with the pinhole model and
// the radial, tangential and thin prism distortion terms. Tilted sensor
// coefficients (the last two of 14) are ignored.
func projectPoint(v pose.Vec3, calib vision.Calibration) (vision.Point2, bool) {
	if v[2] <= 0 {
		return vision.Point2{}, false
	}
	x, y := v[0]/v[2], v[1]/v[2]

	var k [12]float64
	copy(k[:], calib.Distortion)
	k1, k2, p1, p2, k3 := k[0], k[1], k[2], k[3], k[4]
	k4, k5, k6 := k[5], k[6], k[7]
	s1, s2, s3, s4 := k[8], k[9], k[10], k[11]

	r2 := x*x + y*y
	r4 := r2 * r2
	r6 := r4 * r2
	radial := (1 + k1*r2 + k2*r4 + k3*r6) / (1 + k4*r2 + k5*r4 + k6*r6)
	xd := x*radial + 2*p1*x*y + p2*(r2+2*x*x) + s1*r2 + s2*r4
	yd := y*radial + p1*(r2+2*y*y) + 2*p2*x*y + s3*r2 + s4*r4

	m := calib.CameraMatrix
	return vision.Point2{
		X: m.At(0, 0)*xd + m.At(0, 1)*yd + m.At(0, 2),
		Y: m.At(1, 1)*yd + m.At(1, 2),
	}, true
}
