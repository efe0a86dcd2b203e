package geom

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestSphToXYZAxes(t *testing.T) {
	cases := []struct {
		name     string
		el, az   float64
		expected r3.Vec
	}{
		{"plus_x", 0, 0, r3.Vec{X: 1}},
		{"plus_y", 0, 90, r3.Vec{Y: 1}},
		{"minus_x", 0, 180, r3.Vec{X: -1}},
		{"plus_z", 90, 0, r3.Vec{Z: 1}},
		{"minus_z", -90, 45, r3.Vec{Z: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SphToXYZ(tc.el, tc.az)
			if r3.Norm(r3.Sub(got, tc.expected)) > 1e-12 {
				t.Errorf("SphToXYZ(%v, %v) = %v, want %v", tc.el, tc.az, got, tc.expected)
			}
		})
	}
}

func TestSphericalRoundTrip(t *testing.T) {
	for el := -80.0; el <= 80; el += 20 {
		for az := -170.0; az <= 170; az += 34 {
			gotEl, gotAz := XYZToSph(SphToXYZ(el, az))
			if math.Abs(gotEl-el) > 1e-9 || math.Abs(gotAz-az) > 1e-9 {
				t.Fatalf("round trip (%v, %v) -> (%v, %v)", el, az, gotEl, gotAz)
			}
		}
	}
}

func TestHorizontalFrameOrthonormal(t *testing.T) {
	for _, n := range []r3.Vec{SphToXYZ(20, 0), SphToXYZ(-35, 110), Up, {Z: -1}} {
		v0, v1 := HorizontalFrame(n)
		if math.Abs(v0.Z) > 1e-12 {
			t.Errorf("v0 not horizontal for n=%v: %v", n, v0)
		}
		for _, pair := range [][2]r3.Vec{{n, v0}, {n, v1}, {v0, v1}} {
			if d := r3.Dot(pair[0], pair[1]); math.Abs(d) > 1e-12 {
				t.Errorf("vectors %v and %v not orthogonal (dot=%g)", pair[0], pair[1], d)
			}
		}
		if math.Abs(r3.Norm(v0)-1) > 1e-12 || math.Abs(r3.Norm(v1)-1) > 1e-12 {
			t.Errorf("frame not unit length: |v0|=%g |v1|=%g", r3.Norm(v0), r3.Norm(v1))
		}
	}
}

func TestShiftDoesNotMutate(t *testing.T) {
	pts := NewPoints([3]float64{0, 0, 1}, [3]float64{1, 2, 3})
	moved := pts.Shift(r3.Vec{Z: 10})
	if pts[0].Z != 1 || pts[1].Z != 3 {
		t.Fatalf("Shift mutated input: %v", pts)
	}
	if moved[0].Z != 11 || moved[1].Z != 13 {
		t.Fatalf("unexpected shifted points: %v", moved)
	}
}

func TestProject(t *testing.T) {
	pts := NewPoints([3]float64{5, 0, 0}, [3]float64{-1, 3, 0})
	d := pts.Project(r3.Vec{X: 1}, r3.Vec{X: 1})
	if d[0] != 4 || d[1] != -2 {
		t.Fatalf("Project = %v, want [4 -2]", d)
	}
}
