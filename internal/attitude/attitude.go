// Package attitude implements the Davenport q-method solution to Wahba's
// problem: given matched unit-direction pairs in the camera frame and the
// inertial frame, find the quaternion that best rotates one onto the
// other in a least-squares sense.
package attitude

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/darkdragonsastro/lost/internal/geometry"
)

// ErrInsufficientInput is returned when fewer than 2 non-parallel
// direction pairs are supplied.
var ErrInsufficientInput = errors.New("attitude: need at least 2 non-parallel direction pairs")

// illConditionedEpsilon bounds how close the top two eigenvalues of K may
// be before a solution is flagged as ambiguous rather than confidently
// optimal.
const illConditionedEpsilon = 1e-6

// Pair is one matched (measured, catalog) direction pair: b is the unit
// direction in the camera frame, r is the corresponding unit direction in
// the inertial frame. Weight defaults to 1 when left at zero.
type Pair struct {
	B      geometry.Vec3
	R      geometry.Vec3
	Weight float64
}

// Result is the outcome of a q-method solve.
type Result struct {
	Quaternion     geometry.Quaternion
	IllConditioned bool
}

// Solve computes the optimal quaternion rotating each pair's R onto its B
// in the least-squares sense. Requires at least 2 pairs whose R directions
// are not all parallel; returns ErrInsufficientInput otherwise.
func Solve(pairs []Pair) (Result, error) {
	if len(pairs) < 2 {
		return Result{}, ErrInsufficientInput
	}
	if allParallel(pairs) {
		return Result{}, ErrInsufficientInput
	}

	var bMat [3][3]float64 // B = sum a_k * b_k * r_k^T
	for _, p := range pairs {
		weight := p.Weight
		if weight == 0 {
			weight = 1
		}
		b, r := p.B, p.R
		bMat[0][0] += weight * b.X * r.X
		bMat[0][1] += weight * b.X * r.Y
		bMat[0][2] += weight * b.X * r.Z
		bMat[1][0] += weight * b.Y * r.X
		bMat[1][1] += weight * b.Y * r.Y
		bMat[1][2] += weight * b.Y * r.Z
		bMat[2][0] += weight * b.Z * r.X
		bMat[2][1] += weight * b.Z * r.Y
		bMat[2][2] += weight * b.Z * r.Z
	}

	sigma := bMat[0][0] + bMat[1][1] + bMat[2][2]
	z := [3]float64{
		bMat[1][2] - bMat[2][1],
		bMat[2][0] - bMat[0][2],
		bMat[0][1] - bMat[1][0],
	}

	k := mat.NewSymDense(4, nil)
	k.SetSym(0, 0, sigma)
	k.SetSym(0, 1, z[0])
	k.SetSym(0, 2, z[1])
	k.SetSym(0, 3, z[2])
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			s := bMat[i][j] + bMat[j][i]
			if i == j {
				s -= sigma
			}
			k.SetSym(1+i, 1+j, s)
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(k, true); !ok {
		return Result{}, fmt.Errorf("attitude: eigendecomposition of K failed")
	}

	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	bestIdx, secondIdx := topTwoIndices(values)
	illConditioned := values[bestIdx]-values[secondIdx] < illConditionedEpsilon

	q := geometry.Quaternion{
		W: vectors.At(0, bestIdx),
		X: vectors.At(1, bestIdx),
		Y: vectors.At(2, bestIdx),
		Z: vectors.At(3, bestIdx),
	}
	// The eigenvector of K rotates each B onto its R; its conjugate is the
	// rotation from R onto B.
	q = q.Conjugate().Normalize().Canonicalize()

	return Result{Quaternion: q, IllConditioned: illConditioned}, nil
}

func topTwoIndices(values []float64) (best, second int) {
	best, second = 0, 1
	if values[second] > values[best] {
		best, second = second, best
	}
	for i := 2; i < len(values); i++ {
		if values[i] > values[best] {
			best, second = i, best
		} else if values[i] > values[second] {
			second = i
		}
	}
	return best, second
}

func allParallel(pairs []Pair) bool {
	first := pairs[0].R.Normalize()
	for _, p := range pairs[1:] {
		r := p.R.Normalize()
		cross := first.Cross(r)
		if cross.Magnitude() > 1e-9 {
			return false
		}
	}
	return true
}
