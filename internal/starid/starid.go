// Package starid implements the Pyramid star-identification algorithm:
// given a handful of detected centroid directions and a pair-distance
// database, it picks four centroids whose six pairwise catalog-indexed
// distances uniquely identify four catalog stars, then propagates those
// identifications to the rest of the centroids.
package starid

import (
	"math"
	"sort"

	"github.com/darkdragonsastro/lost/internal/camera"
	"github.com/darkdragonsastro/lost/internal/catalog"
	"github.com/darkdragonsastro/lost/internal/geometry"
	"github.com/darkdragonsastro/lost/internal/pairdb"
)

// Centroid is a detected bright spot in an image, located to sub-pixel
// precision. Magnitude here is image-derived intensity, not catalog
// magnitude.
type Centroid struct {
	Position  geometry.Vec2
	RadiusX   float64
	RadiusY   float64
	Magnitude float64
}

// StarIdentifier pairs a detected centroid with a catalog star.
type StarIdentifier struct {
	CentroidIndex int
	CatalogIndex  int
	Weight        float64
}

// Params configures a Pyramid identification run.
type Params struct {
	// Tolerance is the angular error, in radians, expected in measured
	// inter-star distances.
	Tolerance float64

	// NumFalseStars estimates dead/hot pixels across the full celestial
	// sphere. The reference mismatch formula derives its constant from
	// catalog size alone; NumFalseStars is carried here for callers that
	// want to log or tune against it, and for future mismatch-formula
	// refinements, but does not currently scale the threshold itself.
	NumFalseStars int

	// MaxMismatchProbability is the per-pattern upper bound on the chance
	// that a pyramid match is coincidental. A value <= 0 selects the
	// reference default of 1e-2.
	MaxMismatchProbability float64

	// Cutoff bounds the number of candidate pyramids examined. Exhausting
	// the cutoff without a confirmed match is a legal outcome: Identify
	// returns whatever was gathered so far (possibly nothing).
	Cutoff int

	// Strict requires the surviving 4-tuple of catalog indices to be the
	// only one found across the entire search, rather than accepting the
	// first pattern match encountered.
	Strict bool

	// OnProgress, if non-nil, is called periodically with the number of
	// candidate pyramids examined so far. Callers that want to report
	// progress on a long search (e.g. over a websocket) can use this
	// instead of polling; it has no effect on the search itself.
	OnProgress func(iterations int)
}

// progressInterval bounds how often OnProgress fires - often enough to feel
// live, rarely enough that it never dominates the search's own cost.
const progressInterval = 5000

const defaultMaxMismatchProbability = 1e-2

// Identify runs the Pyramid algorithm over centroidSpatials (unit
// direction vectors in the camera frame, already back-projected via a
// Camera) against db, returning identifications for the chosen pyramid
// plus any remaining centroids it can propagate to. Returns an empty slice
// if fewer than 4 usable centroids are supplied, no pyramid matches before
// the cutoff, or (in strict mode) more than one pyramid matches.
func Identify(centroidSpatials []geometry.Vec3, cat catalog.Catalog, db *pairdb.Database, params Params) []StarIdentifier {
	if len(centroidSpatials) < 4 {
		return nil
	}
	maxMismatch := params.MaxMismatchProbability
	if maxMismatch <= 0 {
		maxMismatch = defaultMaxMismatchProbability
	}

	expectedMismatchConstant := mismatchConstant(len(cat), params.Tolerance)

	n := len(centroidSpatials)
	var matches []pyramidMatch
	iterations := 0

	for dj := 1; dj < n-1; dj++ {
		for dk := 1; dk < n-dj-1; dk++ {
			for dr := 1; dr < n-dk-dj; dr++ {
				for i := 0; i < n-dj-dk-dr; i++ {
					iterations++
					if params.OnProgress != nil && iterations%progressInterval == 0 {
						params.OnProgress(iterations)
					}
					if params.Cutoff > 0 && iterations > params.Cutoff {
						return finalizeMatches(matches, params.Strict, centroidSpatials, cat, db, params.Tolerance)
					}

					j := i + dj
					k := j + dk
					r := k + dr

					found := tryPyramid(i, j, k, r, centroidSpatials, cat, db, params.Tolerance, expectedMismatchConstant, maxMismatch, params.Strict)
					if len(found) == 0 {
						continue
					}
					matches = append(matches, found...)
					if !params.Strict {
						return finalizeMatches(matches, params.Strict, centroidSpatials, cat, db, params.Tolerance)
					}
				}
			}
		}
	}

	return finalizeMatches(matches, params.Strict, centroidSpatials, cat, db, params.Tolerance)
}

func mismatchConstant(catalogSize int, tolerance float64) float64 {
	x := float64(catalogSize) * tolerance
	return x * x * x * x / math.Pi
}

type pyramidMatch struct {
	i, j, k, r             int
	iCat, jCat, kCat, rCat int
}

func finalizeMatches(matches []pyramidMatch, strict bool, centroidSpatials []geometry.Vec3, cat catalog.Catalog, db *pairdb.Database, tolerance float64) []StarIdentifier {
	if len(matches) == 0 {
		return nil
	}
	if strict && len(matches) != 1 {
		return nil
	}
	m := matches[0]
	identified := []StarIdentifier{
		{CentroidIndex: m.i, CatalogIndex: m.iCat, Weight: 1},
		{CentroidIndex: m.j, CatalogIndex: m.jCat, Weight: 1},
		{CentroidIndex: m.k, CatalogIndex: m.kCat, Weight: 1},
		{CentroidIndex: m.r, CatalogIndex: m.rCat, Weight: 1},
	}
	return identifyRemainingStars(identified, centroidSpatials, cat, db, tolerance)
}

// tryPyramid checks whether the four centroids (i, j, k, r) form a pyramid
// matching a combination of catalog stars, per the mismatch pre-filter,
// pattern match, and spectrality steps. When all is false it stops at the
// first surviving catalog assignment; when all is true it keeps searching
// and returns every one, so the caller can confirm the assignment is
// unique rather than merely first-found.
func tryPyramid(i, j, k, r int, spatials []geometry.Vec3, cat catalog.Catalog, db *pairdb.Database, tolerance, mismatchConst, maxMismatch float64, all bool) []pyramidMatch {
	iSpatial, jSpatial, kSpatial, rSpatial := spatials[i], spatials[j], spatials[k], spatials[r]

	ijDist := geometry.AngleUnit(iSpatial, jSpatial)
	ikDist := geometry.AngleUnit(iSpatial, kSpatial)
	irDist := geometry.AngleUnit(iSpatial, rSpatial)
	jkDist := geometry.AngleUnit(jSpatial, kSpatial)
	jrDist := geometry.AngleUnit(jSpatial, rSpatial)
	krDist := geometry.AngleUnit(kSpatial, rSpatial)

	iSinInner := sinOf(geometry.Angle(jSpatial.Sub(iSpatial), kSpatial.Sub(iSpatial)))
	jSinInner := sinOf(geometry.Angle(iSpatial.Sub(jSpatial), kSpatial.Sub(jSpatial)))
	kSinInner := sinOf(geometry.Angle(iSpatial.Sub(kSpatial), jSpatial.Sub(kSpatial)))

	maxSinInner := iSinInner
	if jSinInner > maxSinInner {
		maxSinInner = jSinInner
	}
	if kSinInner > maxSinInner {
		maxSinInner = kSinInner
	}
	if kSinInner == 0 || maxSinInner == 0 {
		return nil
	}

	expectedMismatches := mismatchConst * sinOf(ijDist) / kSinInner / maxSinInner
	if expectedMismatches > maxMismatch {
		return nil
	}

	ijPairs := db.FindPairsLiberal(ijDist-tolerance, ijDist+tolerance)
	ikPairs := db.FindPairsLiberal(ikDist-tolerance, ikDist+tolerance)
	irPairs := db.FindPairsLiberal(irDist-tolerance, irDist+tolerance)

	var found []pyramidMatch
	for _, iCandidate := range uniqueValues(ijPairs) {
		for jt := newInvolvingIterator(ijPairs, iCandidate); jt.hasValue(); jt.next() {
			jCandidate := jt.value()

			for kt := newInvolvingIterator(ikPairs, iCandidate); kt.hasValue(); kt.next() {
				kCandidate := kt.value()

				jkCandidateDist := geometry.AngleUnit(cat[jCandidate].Spatial, cat[kCandidate].Spatial)
				if jkCandidateDist < jkDist-tolerance || jkCandidateDist > jkDist+tolerance {
					continue
				}

				for rt := newInvolvingIterator(irPairs, iCandidate); rt.hasValue(); rt.next() {
					rCandidate := rt.value()

					jrCandidateDist := geometry.AngleUnit(cat[jCandidate].Spatial, cat[rCandidate].Spatial)
					if jrCandidateDist < jrDist-tolerance || jrCandidateDist > jrDist+tolerance {
						continue
					}
					krCandidateDist := geometry.AngleUnit(cat[kCandidate].Spatial, cat[rCandidate].Spatial)
					if krCandidateDist < krDist-tolerance || krCandidateDist > krDist+tolerance {
						continue
					}

					if !spectralityMatches(iSpatial, jSpatial, kSpatial, rSpatial,
						cat[iCandidate].Spatial, cat[jCandidate].Spatial, cat[kCandidate].Spatial, cat[rCandidate].Spatial) {
						continue
					}

					found = append(found, pyramidMatch{i: i, j: j, k: k, r: r,
						iCat: int(iCandidate), jCat: int(jCandidate), kCat: int(kCandidate), rCat: int(rCandidate)})
					if !all {
						return found
					}
				}
			}
		}
	}
	return found
}

// spectralityMatches compares the sign of the scalar triple product of
// relative position vectors between the measured (camera-frame) and
// catalog (inertial-frame) configurations, rejecting mirror-image matches.
func spectralityMatches(iM, jM, kM, rM, iC, jC, kC, rC geometry.Vec3) bool {
	measured := jM.Sub(iM).Cross(kM.Sub(iM)).Dot(rM.Sub(iM))
	reference := jC.Sub(iC).Cross(kC.Sub(iC)).Dot(rC.Sub(iC))
	return signOf(measured) == signOf(reference)
}

func signOf(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

func sinOf(x float64) float64 {
	return math.Sin(x)
}

// IdentifyThirdStar returns the catalog indices of every star whose
// distance to catalog star index1 lies within tolerance of distance1,
// whose distance to index2 lies within tolerance of distance2, and which
// sits on the positive side of the plane spanned by the two (the
// i x j . k > 0 spectrality convention), so a mirror-image third star is
// never returned. Swapping index1 and index2 flips which side of the
// plane qualifies.
func IdentifyThirdStar(db *pairdb.Database, cat catalog.Catalog, index1, index2 int16, distance1, distance2, tolerance float64) []int16 {
	spatial1 := cat[index1].Spatial
	spatial2 := cat[index2].Spatial
	cross := spatial1.Cross(spatial2)

	pairs := db.FindPairsLiberal(distance1-tolerance, distance1+tolerance)
	var result []int16
	for it := newInvolvingIterator(pairs, index1); it.hasValue(); it.next() {
		candidate := it.value()
		if candidate == index2 {
			continue
		}
		candidateSpatial := cat[candidate].Spatial
		// the liberal query can over-return; recheck both distances exactly
		d1 := geometry.AngleUnit(spatial1, candidateSpatial)
		if d1 < distance1-tolerance || d1 > distance1+tolerance {
			continue
		}
		d2 := geometry.AngleUnit(spatial2, candidateSpatial)
		if d2 < distance2-tolerance || d2 > distance2+tolerance {
			continue
		}
		if cross.Dot(candidateSpatial) <= 0 {
			continue
		}
		result = append(result, candidate)
	}
	return result
}

// identifyRemainingStars extends a confirmed 4-star pyramid identification
// to every other centroid whose distance pattern to the pyramid uniquely
// matches a catalog star.
func identifyRemainingStars(pyramid []StarIdentifier, spatials []geometry.Vec3, cat catalog.Catalog, db *pairdb.Database, tolerance float64) []StarIdentifier {
	identified := make([]StarIdentifier, len(pyramid))
	copy(identified, pyramid)

	inPyramid := make(map[int]bool, len(pyramid))
	for _, id := range pyramid {
		inPyramid[id.CentroidIndex] = true
	}

	for p := 0; p < len(spatials); p++ {
		if inPyramid[p] {
			continue
		}
		pSpatial := spatials[p]
		ipDist := geometry.AngleUnit(spatials[pyramid[0].CentroidIndex], pSpatial)
		ipPairs := db.FindPairsLiberal(ipDist-tolerance, ipDist+tolerance)

		var candidates []int16
		for it := newInvolvingIterator(ipPairs, int16(pyramid[0].CatalogIndex)); it.hasValue(); it.next() {
			candidate := it.value()
			ok := true
			for l := 1; l < len(pyramid); l++ {
				actualDist := geometry.AngleUnit(pSpatial, spatials[pyramid[l].CentroidIndex])
				expectedDist := geometry.AngleUnit(cat[candidate].Spatial, cat[pyramid[l].CatalogIndex].Spatial)
				if actualDist < expectedDist-tolerance || actualDist > expectedDist+tolerance {
					ok = false
					break
				}
			}
			if ok {
				candidates = append(candidates, candidate)
			}
		}

		if len(candidates) == 1 {
			identified = append(identified, StarIdentifier{CentroidIndex: p, CatalogIndex: int(candidates[0]), Weight: 1})
		}
	}

	return identified
}

// involvingIterator walks a flat (i0,j0,i1,j1,...) pair slice, yielding the
// "other" catalog index of each pair that contains involving.
type involvingIterator struct {
	pairs     []int16
	pos       int
	involving int16
	cur       int16
}

func newInvolvingIterator(pairs []int16, involving int16) *involvingIterator {
	it := &involvingIterator{pairs: pairs, involving: involving}
	it.forward()
	return it
}

func (it *involvingIterator) forward() {
	for it.pos < len(it.pairs) {
		if it.pairs[it.pos] == it.involving {
			it.cur = it.pairs[it.pos+1]
			return
		}
		if it.pairs[it.pos+1] == it.involving {
			it.cur = it.pairs[it.pos]
			return
		}
		it.pos += 2
	}
}

func (it *involvingIterator) hasValue() bool { return it.pos < len(it.pairs) }
func (it *involvingIterator) value() int16   { return it.cur }
func (it *involvingIterator) next() {
	it.pos += 2
	it.forward()
}

// uniqueValues returns the sorted, deduplicated set of catalog indices
// appearing anywhere in a flat pair slice. Sorted so the candidate search
// order is deterministic.
func uniqueValues(pairs []int16) []int16 {
	seen := make(map[int16]bool)
	var out []int16
	for _, v := range pairs {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

// CentroidSpatials back-projects each centroid through cam, skipping (and
// omitting) any centroid that falls outside the sensor - those cannot
// contribute a usable direction.
func CentroidSpatials(centroids []Centroid, cam camera.Camera) []geometry.Vec3 {
	out := make([]geometry.Vec3, 0, len(centroids))
	for _, c := range centroids {
		v, err := cam.CameraToSpatial(c.Position)
		if err != nil {
			continue
		}
		out = append(out, v.Normalize())
	}
	return out
}
