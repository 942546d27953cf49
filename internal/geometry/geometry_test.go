package geometry

import (
	"math"
	"testing"
)

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) < eps
}

func TestAngleUnitRange(t *testing.T) {
	cases := []struct{ a, b Vec3 }{
		{Vec3{1, 0, 0}, Vec3{1, 0, 0}},
		{Vec3{1, 0, 0}, Vec3{-1, 0, 0}},
		{Vec3{1, 0, 0}, Vec3{0, 1, 0}},
		{SphericalToSpatial(0.3, 0.4), SphericalToSpatial(1.1, -0.2)},
	}
	for _, c := range cases {
		a := AngleUnit(c.a.Normalize(), c.b.Normalize())
		if a < 0 || a > math.Pi {
			t.Fatalf("angle %v out of [0, pi]", a)
		}
	}
}

func TestAngleUnitClampsOverShoot(t *testing.T) {
	v := Vec3{1, 0, 0}
	// simulate floating point overshoot past 1.0 on an otherwise-parallel pair
	got := AngleUnit(v, Vec3{1 + 1e-9, 0, 0})
	if math.IsNaN(got) {
		t.Fatalf("AngleUnit produced NaN on near-parallel overshoot")
	}
}

func TestSphericalRoundTrip(t *testing.T) {
	ras := []float64{0, 0.1, 1.0, 3.0, 6.0}
	decs := []float64{-1.5, -0.5, 0, 0.5, 1.5}
	for _, ra := range ras {
		for _, dec := range decs {
			v := SphericalToSpatial(ra, dec)
			ra2, dec2 := SpatialToSpherical(v)
			v2 := SphericalToSpatial(ra2, dec2)
			if !almostEqual(v.X, v2.X, 1e-6) || !almostEqual(v.Y, v2.Y, 1e-6) || !almostEqual(v.Z, v2.Z, 1e-6) {
				t.Fatalf("round trip mismatch: ra=%v dec=%v -> %v, reconstructed %v", ra, dec, v, v2)
			}
		}
	}
}

func TestQuaternionConjugateIsIdentity(t *testing.T) {
	q := QuaternionFromAxisAngle(Vec3{0, 0, 1}, 1.234).Normalize()
	id := q.Mul(q.Conjugate())
	if !almostEqual(id.W, 1, 1e-6) || !almostEqual(id.X, 0, 1e-6) ||
		!almostEqual(id.Y, 0, 1e-6) || !almostEqual(id.Z, 0, 1e-6) {
		t.Fatalf("q * q.conj() != identity, got %+v", id)
	}
}

func TestSphericalQuaternionRoundTrip(t *testing.T) {
	cases := []struct{ ra, dec, roll float64 }{
		{0.1, 0.2, 0.3},
		{3.0, -1.0, 5.0},
		{0, 0, 0},
	}
	for _, c := range cases {
		q := SphericalToQuaternion(c.ra, c.dec, c.roll)
		ra, dec, roll := q.ToSpherical()
		q2 := SphericalToQuaternion(ra, dec, roll)
		// compare rotations applied to a reference vector rather than raw
		// Euler components, since the triple is not unique at poles.
		v := Vec3{1, 0, 0}
		r1 := q.Rotate(v)
		r2 := q2.Rotate(v)
		if !almostEqual(r1.X, r2.X, 1e-5) || !almostEqual(r1.Y, r2.Y, 1e-5) || !almostEqual(r1.Z, r2.Z, 1e-5) {
			t.Fatalf("spherical round trip mismatch for %+v: %+v vs %+v", c, r1, r2)
		}
	}
}

func TestDCMFromQuaternionMatchesRotate(t *testing.T) {
	q := QuaternionFromAxisAngle(Vec3{0, 1, 0}, 0.7).Normalize()
	m := DCMFromQuaternion(q)
	v := Vec3{0.3, -0.4, 0.8}
	viaQuat := q.Rotate(v)
	viaDCM := m.MulVec(v)
	if !almostEqual(viaQuat.X, viaDCM.X, 1e-6) || !almostEqual(viaQuat.Y, viaDCM.Y, 1e-6) || !almostEqual(viaQuat.Z, viaDCM.Z, 1e-6) {
		t.Fatalf("DCM rotation disagrees with quaternion rotation: %+v vs %+v", viaQuat, viaDCM)
	}
}

func TestCrossAndDot(t *testing.T) {
	a := Vec3{1, 0, 0}
	b := Vec3{0, 1, 0}
	c := a.Cross(b)
	if !almostEqual(c.X, 0, 1e-9) || !almostEqual(c.Y, 0, 1e-9) || !almostEqual(c.Z, 1, 1e-9) {
		t.Fatalf("cross product wrong: %+v", c)
	}
	if a.Dot(b) != 0 {
		t.Fatalf("dot product of orthogonal vectors should be 0")
	}
}
