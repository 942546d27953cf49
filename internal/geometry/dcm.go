package geometry

// DCM is a 3x3 direction cosine matrix, row-major.
type DCM [3][3]float64

// MulVec applies the DCM to a vector.
func (m DCM) MulVec(v Vec3) Vec3 {
	return Vec3{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// Transpose returns the transpose of m, which for an orthonormal DCM is
// also its inverse.
func (m DCM) Transpose() DCM {
	var t DCM
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			t[j][i] = m[i][j]
		}
	}
	return t
}

// DCMFromQuaternion converts a rotation quaternion to its equivalent
// direction cosine matrix.
func DCMFromQuaternion(q Quaternion) DCM {
	w, x, y, z := q.W, q.X, q.Y, q.Z
	return DCM{
		{1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y)},
		{2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x)},
		{2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y)},
	}
}
