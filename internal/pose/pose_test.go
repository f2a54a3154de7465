package pose

import (
	"errors"
	"math"
	"testing"
)

const roundTripTol = 1e-9

func TestRoundTrip_ApplyThenRodrigues(t *testing.T) {
	cases := []struct {
		name string
		p    Transform
		t    Transform
	}{
		{
			name: "identity pair",
			p:    Identity(),
			t:    Identity(),
		},
		{
			name: "marker with face correction",
			p:    FromRotationTranslation(Vec3{0.1, -0.2, 0.3}, Vec3{0.05, -0.02, 0.6}),
			t:    FromRotationTranslation(Vec3{math.Pi / 2, 0, 0}, Vec3{0, 0, -0.025}),
		},
		{
			name: "tiny rotation",
			p:    FromRotationTranslation(Vec3{1e-9, 0, -2e-9}, Vec3{0, 0, 1}),
			t:    Identity(),
		},
		{
			name: "composed to near pi",
			p:    FromRotationTranslation(Vec3{0, math.Pi/2 - 1e-7, 0}, Vec3{0.3, 0.1, 0.9}),
			t:    FromRotationTranslation(Vec3{0, math.Pi / 2, 0}, Vec3{0.01, 0.02, 0.03}),
		},
		{
			name: "exactly pi about x",
			p:    FromRotationTranslation(Vec3{math.Pi, 0, 0}, Vec3{1, 2, 3}),
			t:    Identity(),
		},
		{
			name: "large generic angle",
			p:    FromRotationTranslation(Vec3{1.2, 1.1, -1.9}, Vec3{-0.4, 0.2, 2.5}),
			t:    FromRotationTranslation(Vec3{-0.3, 0.8, 0.05}, Vec3{0.1, 0, 0}),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			composed := Apply(tc.p, tc.t)
			rvec, tvec := ToRotationTranslation(composed)
			rebuilt := FromRotationTranslation(rvec, tvec)

			if !ApproxEqual(composed, rebuilt, roundTripTol) {
				t.Errorf("round trip mismatch\n got  %v\n want %v", rebuilt, composed)
			}
			if angle := rvec.Norm(); angle > math.Pi+1e-12 {
				t.Errorf("rotation angle %v exceeds pi", angle)
			}
			if err := Validate(rebuilt, DefaultTolerance); err != nil {
				t.Errorf("rebuilt transform invalid: %v", err)
			}
		})
	}
}

func TestRoundTrip_RepeatedDoesNotDrift(t *testing.T) {
	tr := FromRotationTranslation(Vec3{0.7, -0.4, 2.2}, Vec3{0.1, 0.2, 0.3})
	cur := tr
	for i := 0; i < 1000; i++ {
		cur = FromRotationTranslation(ToRotationTranslation(cur))
	}
	if !ApproxEqual(cur, tr, roundTripTol) {
		t.Errorf("transform drifted after repeated round trips: %v", cur)
	}
}

func TestApply_RightMultiplies(t *testing.T) {
	// Rotate 90 degrees about z, then move 1m along the local x axis.
	p := FromRotationTranslation(Vec3{0, 0, math.Pi / 2}, Vec3{})
	local := Identity()
	local[3] = 1

	got := Apply(p, local).Translation()
	want := Vec3{0, 1, 0}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Fatalf("translation = %v, want %v", got, want)
		}
	}
}

func TestTransform_BasisColumns(t *testing.T) {
	tr := FromRotationTranslation(Vec3{0, 0, math.Pi / 2}, Vec3{})
	b := tr.Basis()

	want := Basis{
		Right:   Vec3{0, 1, 0},
		Up:      Vec3{-1, 0, 0},
		Forward: Vec3{0, 0, 1},
	}
	got := b.Components()
	exp := want.Components()
	for i := range exp {
		if math.Abs(got[i]-exp[i]) > 1e-12 {
			t.Fatalf("basis = %+v, want %+v", b, want)
		}
	}
}

func TestFromBasis_Inverse(t *testing.T) {
	tr := FromRotationTranslation(Vec3{0.3, -0.1, 0.7}, Vec3{0.1, 0.2, 0.9})
	back := FromBasis(tr.Basis(), tr.Translation())
	if back != tr {
		t.Fatalf("FromBasis = %v, want %v", back, tr)
	}
}

func TestApplyPoint(t *testing.T) {
	tr := FromRotationTranslation(Vec3{0, math.Pi / 2, 0}, Vec3{1, 0, 0})
	got := tr.ApplyPoint(Vec3{0, 0, 1})
	want := Vec3{2, 0, 0}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Fatalf("ApplyPoint = %v, want %v", got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := FromRotationTranslation(Vec3{0.3, 0.2, 0.1}, Vec3{1, 2, 3})

	scaled := valid
	for _, i := range []int{0, 1, 2, 4, 5, 6, 8, 9, 10} {
		scaled[i] *= 1.1
	}

	reflected := valid
	reflected[0], reflected[4], reflected[8] = -reflected[0], -reflected[4], -reflected[8]

	badRow := valid
	badRow[12] = 0.5

	withNaN := valid
	withNaN[5] = math.NaN()

	tests := []struct {
		name    string
		tr      Transform
		wantErr bool
	}{
		{"identity", Identity(), false},
		{"solved pose", valid, false},
		{"scaled rotation", scaled, true},
		{"reflection", reflected, true},
		{"bad bottom row", badRow, true},
		{"nan element", withNaN, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.tr, DefaultTolerance)
			if tt.wantErr {
				if !errors.Is(err, ErrNotOrthonormal) {
					t.Errorf("Validate() error = %v, want ErrNotOrthonormal", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestEulerRoundTrip(t *testing.T) {
	angles := []Vec3{
		{0, 0, 0},
		{0.1, -0.2, 0.3},
		{-1.0, 0.5, 2.8},
	}
	for _, a := range angles {
		got := RotationToEuler(EulerToRotation(a))
		for i := range a {
			if math.Abs(got[i]-a[i]) > 1e-9 {
				t.Errorf("RotationToEuler(EulerToRotation(%v)) = %v", a, got)
				break
			}
		}
	}
}

func TestEulerToRotation_MatchesRodrigues(t *testing.T) {
	// A pure yaw is the same as a Rodrigues rotation about z.
	got := EulerToRotation(Vec3{0, 0, 0.7})
	want := FromRotationTranslation(Vec3{0, 0, 0.7}, Vec3{})
	if !ApproxEqual(got, want, 1e-12) {
		t.Errorf("EulerToRotation = %v, want %v", got, want)
	}
}

func TestDegrees(t *testing.T) {
	got := Degrees(Vec3{math.Pi, math.Pi / 2, 0})
	if math.Abs(got[0]-180) > 1e-12 || math.Abs(got[1]-90) > 1e-12 || got[2] != 0 {
		t.Errorf("Degrees() = %v", got)
	}
}
