package pipeline

import (
	"context"
	"math"
	"testing"

	"github.com/darkdragonsastro/lost/internal/camera"
	"github.com/darkdragonsastro/lost/internal/catalog"
	"github.com/darkdragonsastro/lost/internal/database"
	"github.com/darkdragonsastro/lost/internal/eventbus"
	"github.com/darkdragonsastro/lost/internal/geometry"
	"github.com/darkdragonsastro/lost/internal/starid"
)

// smallFieldCatalog builds a tight lattice of stars all within a narrow
// cone around the +x axis, so their inertial directions double as valid
// camera-frame directions (x > 0) under an identity attitude.
func smallFieldCatalog() catalog.Catalog {
	ras := []float64{-0.08, -0.04, 0, 0.04, 0.08}
	decs := []float64{-0.08, -0.04, 0, 0.04, 0.08}
	var cat catalog.Catalog
	name := 0
	for _, dec := range decs {
		for _, ra := range ras {
			cat = append(cat, catalog.CatalogStar{
				Spatial:   geometry.SphericalToSpatial(ra, dec),
				Magnitude: 300,
				Name:      name,
			})
			name++
		}
	}
	return cat
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxMagnitude = 600
	cfg.MinSeparation = 0
	cfg.PairMinDistance = 0
	cfg.PairMaxDistance = math.Pi
	cfg.NumBins = 200
	cfg.Tolerance = 1e-5
	cfg.Cutoff = 1_000_000
	return cfg
}

func TestBuildDatabaseRoundTripsThroughSolve(t *testing.T) {
	ctx := context.Background()
	cat := smallFieldCatalog()
	bus := eventbus.NewInMemoryBus()
	cache := database.NewInMemoryDB()
	driver := NewDriver(bus, cache, testConfig())

	var built bool
	_, err := bus.Subscribe(ctx, TopicDatabaseBuilt, func(eventbus.Event) { built = true })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	dbBuf, err := driver.BuildDatabase(ctx, cat)
	if err != nil {
		t.Fatalf("BuildDatabase: %v", err)
	}
	if len(dbBuf) == 0 {
		t.Fatal("expected non-empty database buffer")
	}
	if !built {
		t.Fatal("expected TopicDatabaseBuilt to be published")
	}

	var stats buildStats
	if err := cache.GetJSON(ctx, "pipeline:last-build", &stats); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if stats.NumStarsInput != len(cat) {
		t.Fatalf("expected %d input stars cached, got %d", len(cat), stats.NumStarsInput)
	}

	cam := camera.New(0.6, 1000, 1000)
	// The chosen stars span both ra extremes of the lattice so that no
	// exact z-rotation by a lattice step maps them onto a different valid
	// catalog subset; the identification is unique, not just first-found.
	chosen := []int{5, 9, 12, 17}
	var centroids []starid.Centroid
	for _, idx := range chosen {
		pixel, err := cam.SpatialToCamera(cat[idx].Spatial)
		if err != nil {
			t.Fatalf("SpatialToCamera: %v", err)
		}
		centroids = append(centroids, starid.Centroid{Position: pixel})
	}

	result, err := driver.Solve(ctx, centroids, cam, dbBuf)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(result.Identifications) < 4 {
		t.Fatalf("expected at least 4 identifications, got %v", result.Identifications)
	}
	if !result.HasAttitude {
		t.Fatal("expected an attitude solution")
	}

	gotByCentroid := make(map[int]int)
	for _, id := range result.Identifications {
		gotByCentroid[id.CentroidIndex] = id.CatalogIndex
	}
	for ci, wantCat := range chosen {
		if gotByCentroid[ci] != wantCat {
			t.Fatalf("centroid %d: expected catalog index %d, got %d", ci, wantCat, gotByCentroid[ci])
		}
	}
}

func TestSolveReportsFailureOnTooFewCentroids(t *testing.T) {
	ctx := context.Background()
	cat := smallFieldCatalog()
	driver := NewDriver(nil, nil, testConfig())

	dbBuf, err := driver.BuildDatabase(ctx, cat)
	if err != nil {
		t.Fatalf("BuildDatabase: %v", err)
	}

	cam := camera.New(0.6, 1000, 1000)
	pixel, _ := cam.SpatialToCamera(cat[0].Spatial)
	centroids := []starid.Centroid{{Position: pixel}}

	result, err := driver.Solve(ctx, centroids, cam, dbBuf)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(result.Identifications) != 0 || result.HasAttitude {
		t.Fatalf("expected no identifications, got %+v", result)
	}
}

func TestCompareTalliesCorrectIncorrectMissing(t *testing.T) {
	truth := []starid.StarIdentifier{
		{CentroidIndex: 0, CatalogIndex: 10},
		{CentroidIndex: 1, CatalogIndex: 11},
		{CentroidIndex: 2, CatalogIndex: 12},
	}
	got := []starid.StarIdentifier{
		{CentroidIndex: 0, CatalogIndex: 10}, // correct
		{CentroidIndex: 1, CatalogIndex: 99}, // incorrect
		// centroid 2 missing entirely
	}

	result := Compare(got, truth)
	if result.Correct != 1 || result.Incorrect != 1 || result.Missing != 1 {
		t.Fatalf("unexpected comparison result: %+v", result)
	}
}
