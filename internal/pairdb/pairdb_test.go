package pairdb

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/darkdragonsastro/lost/internal/catalog"
	"github.com/darkdragonsastro/lost/internal/geometry"
)

func lineCatalog() catalog.Catalog {
	// Three stars on the celestial equator at ra = 0, pi/4, pi/2 - adjacent
	// pairs are pi/4 apart, the end pair is pi/2 apart.
	return catalog.Catalog{
		{Spatial: geometry.SphericalToSpatial(0, 0), Magnitude: 100, Name: 0},
		{Spatial: geometry.SphericalToSpatial(math.Pi/4, 0), Magnitude: 100, Name: 1},
		{Spatial: geometry.SphericalToSpatial(math.Pi/2, 0), Magnitude: 100, Name: 2},
	}
}

func TestBuildAndQueryLiberalFindsAdjacentPairs(t *testing.T) {
	cat := lineCatalog()
	buf := Build(cat, 0, math.Pi, 100)
	db, err := Parse(buf, binary.LittleEndian)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	pairs := db.FindPairsLiberal(math.Pi/4-1e-4, math.Pi/4+1e-4)
	if len(pairs) < 4 {
		t.Fatalf("expected at least 2 pairs (0,1) and (1,2), got %v", pairs)
	}
	found := map[[2]int16]bool{}
	for i := 0; i+1 < len(pairs); i += 2 {
		found[[2]int16{pairs[i], pairs[i+1]}] = true
	}
	if !found[[2]int16{0, 1}] || !found[[2]int16{1, 2}] {
		t.Fatalf("expected pairs (0,1) and (1,2) in %v", found)
	}
}

func TestFindPairsExactRespectsBounds(t *testing.T) {
	cat := lineCatalog()
	buf := Build(cat, 0, math.Pi, 100)
	db, err := Parse(buf, binary.LittleEndian)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	qMin, qMax := math.Pi/4-0.01, math.Pi/4+0.01
	pairs := db.FindPairsExact(cat, qMin, qMax)
	for i := 0; i+1 < len(pairs); i += 2 {
		d := geometry.AngleUnit(cat[pairs[i]].Spatial, cat[pairs[i+1]].Spatial)
		if d < qMin || d > qMax {
			t.Fatalf("pair (%d,%d) distance %v outside [%v,%v]", pairs[i], pairs[i+1], d, qMin, qMax)
		}
	}
}

func TestStarDistances(t *testing.T) {
	cat := lineCatalog()
	buf := Build(cat, 0, math.Pi, 100)
	db, err := Parse(buf, binary.LittleEndian)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	dists := db.StarDistances(1, cat)
	if len(dists) != 2 {
		t.Fatalf("expected star 1 to have 2 pair distances, got %v", dists)
	}
}

func TestNumPairsAndBounds(t *testing.T) {
	cat := lineCatalog()
	buf := Build(cat, 0, math.Pi, 100)
	db, err := Parse(buf, binary.LittleEndian)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if db.NumPairs() != 3 {
		t.Fatalf("expected 3 pairs (all unordered pairs of 3 stars), got %d", db.NumPairs())
	}
}
