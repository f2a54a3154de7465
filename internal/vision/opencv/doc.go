// Package opencv binds the vision interfaces to OpenCV through gocv: camera
// capture, ArUco detection, IPPE square pose solving and the operator
// window. It needs OpenCV at build time and is only compiled with the
// "opencv" build tag; without it every constructor returns ErrUnavailable.
package opencv

import "errors"

// ErrUnavailable is returned by the stub build.
var ErrUnavailable = errors.New("OpenCV support not compiled in (build with -tags opencv)")
