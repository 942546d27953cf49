package starid

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/darkdragonsastro/lost/internal/catalog"
	"github.com/darkdragonsastro/lost/internal/geometry"
	"github.com/darkdragonsastro/lost/internal/pairdb"
)

// latticeCatalog builds the 14-star (ra, de) lattice: ra in {0, pi/4,
// pi/2, 3pi/4} crossed with de in {-pi/2, -pi/4, 0, pi/4, pi/2}, each
// pole collapsed to a single entry (every ra lands on the same point
// there). Star 42 is (1,0,0), 44 is (0,1,0), 50 the north pole, 58 the
// south pole.
func latticeCatalog() catalog.Catalog {
	ras := []float64{0, math.Pi / 4, math.Pi / 2, 3 * math.Pi / 4}
	entry := func(ra, de float64, name int) catalog.CatalogStar {
		return catalog.CatalogStar{
			Spatial:   geometry.SphericalToSpatial(ra, de),
			Magnitude: 300,
			Name:      name,
		}
	}
	var cat catalog.Catalog
	for i, ra := range ras {
		cat = append(cat, entry(ra, 0, 42+i))
	}
	for i, ra := range ras {
		cat = append(cat, entry(ra, math.Pi/4, 46+i))
	}
	cat = append(cat, entry(0, math.Pi/2, 50))
	for i, ra := range ras {
		cat = append(cat, entry(ra, -math.Pi/4, 54+i))
	}
	cat = append(cat, entry(0, -math.Pi/2, 58))
	return cat
}

func findName(t *testing.T, cat catalog.Catalog, name int) int16 {
	t.Helper()
	for i, s := range cat {
		if s.Name == name {
			return int16(i)
		}
	}
	t.Fatalf("no catalog star named %d", name)
	return -1
}

func TestIdentifyRejectsFewerThanFourCentroids(t *testing.T) {
	cat := latticeCatalog()
	buf := pairdb.Build(cat, 0, math.Pi, 200)
	db, err := pairdb.Parse(buf, binary.LittleEndian)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	spatials := []geometry.Vec3{
		geometry.SphericalToSpatial(0, 0),
		geometry.SphericalToSpatial(0.1, 0),
		geometry.SphericalToSpatial(0.2, 0),
	}
	got := Identify(spatials, cat, db, Params{Tolerance: 1e-5, Cutoff: 10000})
	if got != nil {
		t.Fatalf("expected nil for <4 centroids, got %v", got)
	}
}

func TestIdentifyRecoversUnrotatedPyramid(t *testing.T) {
	cat := latticeCatalog()
	buf := pairdb.Build(cat, 0, math.Pi, 1000)
	db, err := pairdb.Parse(buf, binary.LittleEndian)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	// Treat four catalog stars' own directions as the "measured" centroid
	// directions directly (an identity attitude). The half-turn about the
	// equatorial axis at ra 3pi/8 maps this set onto itself with 0<->3 and
	// 6<->10 swapped, so a second assignment also survives; non-strict
	// mode returns the identity one because candidates are tried in
	// ascending catalog-index order.
	chosen := []int{0, 3, 6, 10} // (0,0), (3pi/4,0), (pi/2,pi/4), (pi/4,-pi/4)
	var spatials []geometry.Vec3
	for _, idx := range chosen {
		spatials = append(spatials, cat[idx].Spatial)
	}

	params := Params{Tolerance: 1e-5, Cutoff: 1_000_000}
	got := Identify(spatials, cat, db, params)
	if len(got) < 4 {
		t.Fatalf("expected at least 4 identifications, got %v", got)
	}

	gotCatalogIdx := make(map[int]int) // centroidIndex -> catalogIndex
	for _, id := range got {
		gotCatalogIdx[id.CentroidIndex] = id.CatalogIndex
	}
	for ci, wantCat := range chosen {
		if gotCatalogIdx[ci] != wantCat {
			t.Fatalf("centroid %d: expected catalog index %d, got %d (full: %v)", ci, wantCat, gotCatalogIdx[ci], got)
		}
	}
}

func TestIdentifyStrictConfirmsUniquePyramid(t *testing.T) {
	cat := latticeCatalog()
	// Move star 10 off the lattice: on the full lattice the half-turn about
	// the equatorial axis at ra 3pi/8 maps the pyramid below onto itself
	// with relabelled stars, which strict mode would rightly reject.
	cat[10].Spatial = geometry.SphericalToSpatial(math.Pi/4+0.1, -math.Pi/4)
	buf := pairdb.Build(cat, 0, math.Pi, 1000)
	db, err := pairdb.Parse(buf, binary.LittleEndian)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	// Same pyramid as the non-strict test, with star 10 moved: exactly one
	// catalog assignment survives, so strict mode confirms it instead of
	// bailing.
	chosen := []int{0, 3, 6, 10}
	var spatials []geometry.Vec3
	for _, idx := range chosen {
		spatials = append(spatials, cat[idx].Spatial)
	}

	got := Identify(spatials, cat, db, Params{Tolerance: 1e-5, Cutoff: 1_000_000, Strict: true})
	if len(got) < 4 {
		t.Fatalf("expected a confirmed identification in strict mode, got %v", got)
	}
	gotCatalogIdx := make(map[int]int)
	for _, id := range got {
		gotCatalogIdx[id.CentroidIndex] = id.CatalogIndex
	}
	for ci, wantCat := range chosen {
		if gotCatalogIdx[ci] != wantCat {
			t.Fatalf("centroid %d: expected catalog index %d, got %d", ci, wantCat, gotCatalogIdx[ci])
		}
	}
}

func TestIdentifyStrictRejectsAmbiguousPyramid(t *testing.T) {
	cat := latticeCatalog()
	buf := pairdb.Build(cat, 0, math.Pi, 1000)
	db, err := pairdb.Parse(buf, binary.LittleEndian)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	// {0, 1, 5, 6} maps onto {1, 2, 6, 7} under an exact z-rotation by one
	// lattice step (pi/4), so two catalog assignments survive for the same
	// four centroids.
	chosen := []int{0, 1, 5, 6}
	var spatials []geometry.Vec3
	for _, idx := range chosen {
		spatials = append(spatials, cat[idx].Spatial)
	}

	params := Params{Tolerance: 1e-5, Cutoff: 1_000_000}
	if got := Identify(spatials, cat, db, params); len(got) < 4 {
		t.Fatalf("non-strict mode should accept the first surviving match, got %v", got)
	}

	params.Strict = true
	if got := Identify(spatials, cat, db, params); got != nil {
		t.Fatalf("strict mode should return nothing for an ambiguous pyramid, got %v", got)
	}
}

func TestIdentifyRemainingStarsPropagatesToWholeField(t *testing.T) {
	// A 10x10 grid of 100 synthetic stars with pairwise-distinct
	// positions. Seed three pre-identified stars and let propagation pick
	// up the other 97.
	var cat catalog.Catalog
	for i := 0; i < 10; i++ {
		for j := 0; j < 10; j++ {
			cat = append(cat, catalog.CatalogStar{
				Spatial:   geometry.SphericalToSpatial(float64(i)*0.05, float64(j)*0.05),
				Magnitude: 300,
				Name:      i*10 + j,
			})
		}
	}
	buf := pairdb.Build(cat, 0, math.Pi, 2000)
	db, err := pairdb.Parse(buf, binary.LittleEndian)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	spatials := make([]geometry.Vec3, len(cat))
	for i, s := range cat {
		spatials[i] = s.Spatial
	}
	seed := []StarIdentifier{
		{CentroidIndex: 0, CatalogIndex: 0, Weight: 1},
		{CentroidIndex: 14, CatalogIndex: 14, Weight: 1},
		{CentroidIndex: 73, CatalogIndex: 73, Weight: 1},
	}

	got := identifyRemainingStars(seed, spatials, cat, db, 1e-6)
	if len(got) != len(cat) {
		t.Fatalf("expected all %d stars identified, got %d", len(cat), len(got))
	}
	for _, id := range got {
		if id.CentroidIndex != id.CatalogIndex {
			t.Fatalf("centroid %d misidentified as catalog %d", id.CentroidIndex, id.CatalogIndex)
		}
	}
}

func latticeDB(t *testing.T) (*pairdb.Database, catalog.Catalog) {
	t.Helper()
	cat := latticeCatalog()
	buf := pairdb.Build(cat, 0, math.Pi, 1000)
	db, err := pairdb.Parse(buf, binary.LittleEndian)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return db, cat
}

func TestIdentifyThirdStarFindsNorthPole(t *testing.T) {
	db, cat := latticeDB(t)
	i := findName(t, cat, 42) // (1,0,0)
	j := findName(t, cat, 44) // (0,1,0)

	stars := IdentifyThirdStar(db, cat, i, j, math.Pi/2, math.Pi/2, 1e-6)
	if len(stars) != 1 {
		t.Fatalf("expected exactly one third star, got %v", stars)
	}
	if cat[stars[0]].Name != 50 {
		t.Fatalf("expected the north pole (50), got star named %d", cat[stars[0]].Name)
	}
}

func TestIdentifyThirdStarReversedSpectrality(t *testing.T) {
	db, cat := latticeDB(t)
	i := findName(t, cat, 44) // (0,1,0)
	j := findName(t, cat, 42) // (1,0,0)

	// same two stars in the opposite order flip which side of their plane
	// qualifies: the answer moves from pole to pole.
	stars := IdentifyThirdStar(db, cat, i, j, math.Pi/2, math.Pi/2, 1e-6)
	if len(stars) != 1 {
		t.Fatalf("expected exactly one third star, got %v", stars)
	}
	if cat[stars[0]].Name != 58 {
		t.Fatalf("expected the south pole (58), got star named %d", cat[stars[0]].Name)
	}
}

func TestIdentifyThirdStarWithLooseTolerance(t *testing.T) {
	db, cat := latticeDB(t)
	i := findName(t, cat, 42)
	j := findName(t, cat, 44)

	offset := math.Pi / 180 // one degree off on both distances
	stars := IdentifyThirdStar(db, cat, i, j, math.Pi/2-offset, math.Pi/2+offset, 0.1)
	if len(stars) != 1 || cat[stars[0]].Name != 50 {
		t.Fatalf("expected only the north pole within 0.1 rad, got %v", stars)
	}
}

func TestIdentifyThirdStarNoMatch(t *testing.T) {
	db, cat := latticeDB(t)
	i := findName(t, cat, 42)
	j := findName(t, cat, 44)

	stars := IdentifyThirdStar(db, cat, i, j, 1, math.Pi/2, 1e-6)
	if len(stars) != 0 {
		t.Fatalf("expected no third star at distance 1 rad, got %v", stars)
	}
}

func TestSpectralityRejectsMirrorMatch(t *testing.T) {
	a := geometry.Vec3{X: 1, Y: 0, Z: 0}
	b := geometry.Vec3{X: 0, Y: 1, Z: 0}
	c := geometry.Vec3{X: 0, Y: 0, Z: 1}
	d := geometry.Vec3{X: 1, Y: 1, Z: 1}.Normalize()

	if !spectralityMatches(a, b, c, d, a, b, c, d) {
		t.Fatal("identical configuration should match spectrality")
	}
	// Mirror the reference configuration through the origin by negating
	// one axis; the sign of the triple product flips.
	mirrored := func(v geometry.Vec3) geometry.Vec3 { return geometry.Vec3{X: -v.X, Y: v.Y, Z: v.Z} }
	if spectralityMatches(a, b, c, d, mirrored(a), mirrored(b), mirrored(c), mirrored(d)) {
		t.Fatal("mirrored configuration should fail spectrality check")
	}
}
