package geometry

import "math"

// Quaternion is a Hamilton quaternion (w, x, y, z) representing a rotation.
// Canonical form has W >= 0; Canonicalize enforces this and is always
// applied before a quaternion is handed back to a caller.
type Quaternion struct {
	W float64
	X float64
	Y float64
	Z float64
}

// Identity is the no-rotation quaternion.
var Identity = Quaternion{W: 1}

// QuaternionFromVector builds a pure (real part zero) quaternion from a
// vector, the form used internally when rotating a vector by conjugation.
func QuaternionFromVector(v Vec3) Quaternion {
	return Quaternion{0, v.X, v.Y, v.Z}
}

// QuaternionFromAxisAngle builds a rotation quaternion from a unit axis and
// an angle in radians.
func QuaternionFromAxisAngle(axis Vec3, theta float64) Quaternion {
	s := math.Sin(theta / 2)
	return Quaternion{
		W: math.Cos(theta / 2),
		X: axis.X * s,
		Y: axis.Y * s,
		Z: axis.Z * s,
	}
}

// Mul returns the Hamilton product q*other.
func (q Quaternion) Mul(other Quaternion) Quaternion {
	return Quaternion{
		W: q.W*other.W - q.X*other.X - q.Y*other.Y - q.Z*other.Z,
		X: q.W*other.X + other.W*q.X + q.Y*other.Z - q.Z*other.Y,
		Y: q.W*other.Y + other.W*q.Y + q.Z*other.X - q.X*other.Z,
		Z: q.W*other.Z + other.W*q.Z + q.X*other.Y - q.Y*other.X,
	}
}

// Conjugate returns the conjugate of q (negated vector part).
func (q Quaternion) Conjugate() Quaternion {
	return Quaternion{q.W, -q.X, -q.Y, -q.Z}
}

// Vector returns the vector (x, y, z) part of q.
func (q Quaternion) Vector() Vec3 {
	return Vec3{q.X, q.Y, q.Z}
}

// Norm returns the Euclidean norm of q as a 4-vector.
func (q Quaternion) Norm() float64 {
	return math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
}

// Normalize returns q scaled to unit norm.
func (q Quaternion) Normalize() Quaternion {
	n := q.Norm()
	if n == 0 {
		return Identity
	}
	return Quaternion{q.W / n, q.X / n, q.Y / n, q.Z / n}
}

// Canonicalize flips q to its equivalent -q if needed so that W >= 0. Every
// quaternion returned across a package boundary is canonicalized so
// equality tests are stable.
func (q Quaternion) Canonicalize() Quaternion {
	if q.W < 0 {
		return Quaternion{-q.W, -q.X, -q.Y, -q.Z}
	}
	return q
}

// Rotate applies q's rotation to v, via q*Quaternion(v)*q.Conjugate().
func (q Quaternion) Rotate(v Vec3) Vec3 {
	return q.Mul(QuaternionFromVector(v)).Mul(q.Conjugate()).Vector()
}

// Angle returns the rotation angle encoded by q, in [0, 2*pi].
func (q Quaternion) Angle() float64 {
	return 2 * math.Acos(clamp(q.W, -1, 1))
}

// ToSpherical decomposes q into the (ra, dec, roll) Euler triple of an
// improper z-y'-x' rotation, the inverse of SphericalToQuaternion.
func (q Quaternion) ToSpherical() (ra, dec, roll float64) {
	ra = -math.Atan2(-2*q.X*q.Y+2*q.W*q.Z, 2*q.W*q.W+2*q.X*q.X-1)
	dec = -math.Asin(clamp(-2*q.X*q.Z-2*q.W*q.Y, -1, 1))
	roll = -math.Atan2(2*q.Y*q.Z-2*q.W*q.X, 2*q.W*q.W+2*q.Z*q.Z-1)
	if ra < 0 {
		ra += 2 * math.Pi
	}
	if roll < 0 {
		roll += 2 * math.Pi
	}
	return ra, dec, roll
}

// SphericalToQuaternion returns a quaternion that reorients the coordinate
// axes so that the x-axis points at the given right ascension and
// declination (radians), then rolls the axes. This is an "improper"
// z-y'-x' Euler rotation: the rotations are composed left to right because
// we are rotating the coordinate axes, not a vector.
func SphericalToQuaternion(ra, dec, roll float64) Quaternion {
	a := QuaternionFromAxisAngle(Vec3{0, 0, 1}, ra)
	b := QuaternionFromAxisAngle(Vec3{0, 1, 0}, -dec)
	c := QuaternionFromAxisAngle(Vec3{1, 0, 0}, -roll)
	return a.Mul(b).Mul(c).Conjugate().Canonicalize()
}
