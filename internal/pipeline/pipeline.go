// Package pipeline composes the core subsystems - catalog, pair-distance
// database, Pyramid star identification, and the Davenport attitude
// solver - into the two operations a caller actually wants: build a
// database from a catalog, and solve an attitude from a set of detected
// centroids against that database. It also publishes progress over an
// event bus and exposes standard service lifecycle hooks so it can be
// supervised the same way the rest of this module's services are.
package pipeline

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/darkdragonsastro/lost/internal/attitude"
	"github.com/darkdragonsastro/lost/internal/camera"
	"github.com/darkdragonsastro/lost/internal/catalog"
	"github.com/darkdragonsastro/lost/internal/common/service"
	"github.com/darkdragonsastro/lost/internal/database"
	"github.com/darkdragonsastro/lost/internal/eventbus"
	"github.com/darkdragonsastro/lost/internal/multidb"
	"github.com/darkdragonsastro/lost/internal/pairdb"
	"github.com/darkdragonsastro/lost/internal/starid"
)

// Event topics published over the driver's event bus.
const (
	TopicDatabaseBuilt   = "pipeline.database.built"
	TopicSolved          = "pipeline.solved"
	TopicFailed          = "pipeline.failed"
	TopicPyramidProgress = "pipeline.pyramid.progress"
)

// Config holds every tunable parameter the pipeline's two operations need.
// The zero Config is not valid; use DefaultConfig and override fields as
// needed.
type Config struct {
	// Catalog narrowing.
	MaxMagnitude  int
	MinSeparation float64
	MaxStars      int

	// Pair-distance database construction.
	PairMinDistance float64
	PairMaxDistance float64
	NumBins         int

	// Pyramid identification.
	Tolerance              float64
	NumFalseStars          int
	MaxMismatchProbability float64
	Cutoff                 int
	Strict                 bool

	ByteOrder binary.ByteOrder
}

// DefaultConfig returns reasonable defaults for a wide-field camera and a
// catalog narrowed to naked-eye-bright stars.
func DefaultConfig() Config {
	return Config{
		MaxMagnitude:           600, // magnitude 6.00
		MinSeparation:          0.0005,
		MaxStars:               0,
		PairMinDistance:        0.001,
		PairMaxDistance:        3.15, // just over pi
		NumBins:                4000,
		Tolerance:              1e-4,
		NumFalseStars:          1000,
		MaxMismatchProbability: 1e-2,
		Cutoff:                 1_000_000,
		Strict:                 false,
		ByteOrder:              binary.LittleEndian,
	}
}

// Driver owns the event bus and cache a pipeline run reports through, and
// exposes Initialize/Start/Stop/Health like every other long-lived
// component in this module.
type Driver struct {
	*service.BaseService
	bus   eventbus.EventBus
	cache database.Database
	cfg   Config
}

// NewDriver creates a Driver. Either dependency may be nil: a nil bus
// disables event publication, a nil cache disables build-stat caching.
func NewDriver(bus eventbus.EventBus, cache database.Database, cfg Config) *Driver {
	return &Driver{
		BaseService: service.NewBaseService("pipeline"),
		bus:         bus,
		cache:       cache,
		cfg:         cfg,
	}
}

// buildStats is what BuildDatabase caches for diagnostic retrieval - not
// the database bytes themselves, which belong to the caller that asked
// for them.
type buildStats struct {
	NumStarsInput    int `json:"num_stars_input"`
	NumStarsNarrowed int `json:"num_stars_narrowed"`
	NumPairs         int `json:"num_pairs"`
}

// BuildDatabase narrows cat per d.cfg, builds a pair-distance database
// over the result, and packages both into a MultiDatabase buffer under
// the reserved catalog and pair-distance magic numbers.
func (d *Driver) BuildDatabase(ctx context.Context, cat catalog.Catalog) ([]byte, error) {
	narrowed, err := cat.Narrow(d.cfg.MaxMagnitude, d.cfg.MinSeparation, d.cfg.MaxStars)
	if err != nil {
		return nil, fmt.Errorf("pipeline: narrow catalog: %w", err)
	}

	pairBuf := pairdb.Build(narrowed, d.cfg.PairMinDistance, d.cfg.PairMaxDistance, d.cfg.NumBins)
	catalogBuf := narrowed.Serialize(d.cfg.ByteOrder)

	builder := multidb.NewBuilder(multidb.DefaultMaxSubDatabases, d.cfg.ByteOrder)
	builder.AddSubDatabase(catalog.MagicValue, catalogBuf)
	builder.AddSubDatabase(pairdb.MagicValue, pairBuf)
	buf := builder.Finish()

	parsedPairs, err := pairdb.Parse(pairBuf, d.cfg.ByteOrder)
	numPairs := 0
	if err == nil {
		numPairs = parsedPairs.NumPairs()
	}

	if d.cache != nil {
		_ = d.cache.SetJSON(ctx, "pipeline:last-build", buildStats{
			NumStarsInput:    len(cat),
			NumStarsNarrowed: len(narrowed),
			NumPairs:         numPairs,
		})
	}
	d.publish(ctx, TopicDatabaseBuilt, buildStats{
		NumStarsInput:    len(cat),
		NumStarsNarrowed: len(narrowed),
		NumPairs:         numPairs,
	})

	return buf, nil
}

// DatabaseCatalog deserializes the narrowed catalog stored inside a
// MultiDatabase buffer produced by BuildDatabase. Every catalog index in
// the buffer's pair-distance sub-database refers into this catalog, so
// anything that interprets those indices must load the catalog from the
// same buffer rather than reuse the unnarrowed input catalog.
func DatabaseCatalog(mdb *multidb.MultiDatabase, order binary.ByteOrder) (catalog.Catalog, error) {
	catalogBuf, err := mdb.SubDatabase(catalog.MagicValue)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	cat, err := catalog.Deserialize(catalogBuf, order)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	return cat, nil
}

// pyramidProgress is published over TopicPyramidProgress while a Solve
// call's pyramid search is in flight.
type pyramidProgress struct {
	Iterations int `json:"iterations"`
	Cutoff     int `json:"cutoff"`
}

// SolveResult is the outcome of a Solve call.
type SolveResult struct {
	Identifications []starid.StarIdentifier
	Attitude        attitude.Result
	HasAttitude     bool
}

// Solve runs Pyramid identification over centroids (back-projected
// through cam) against the pair-distance sub-database inside dbBuf, then
// feeds any resulting identifications into the attitude solver. The
// catalog used for matching is the narrowed one stored inside dbBuf
// itself - its indices are the ones the pair array refers to, which the
// caller's unnarrowed catalog's are not.
// Insufficient centroids or identifications are not themselves errors:
// they're reported via an empty or partial SolveResult, matching this
// module's InsufficientInput handling elsewhere.
func (d *Driver) Solve(ctx context.Context, centroids []starid.Centroid, cam camera.Camera, dbBuf []byte) (SolveResult, error) {
	mdb, err := multidb.Parse(dbBuf, multidb.DefaultMaxSubDatabases, d.cfg.ByteOrder)
	if err != nil {
		return SolveResult{}, fmt.Errorf("pipeline: parse database: %w", err)
	}
	cat, err := DatabaseCatalog(mdb, d.cfg.ByteOrder)
	if err != nil {
		d.publish(ctx, TopicFailed, err.Error())
		return SolveResult{}, err
	}
	pairBuf, err := mdb.SubDatabase(pairdb.MagicValue)
	if err != nil {
		d.publish(ctx, TopicFailed, err.Error())
		return SolveResult{}, fmt.Errorf("pipeline: %w", err)
	}
	pairDB, err := pairdb.Parse(pairBuf, d.cfg.ByteOrder)
	if err != nil {
		return SolveResult{}, fmt.Errorf("pipeline: parse pair database: %w", err)
	}

	spatials := starid.CentroidSpatials(centroids, cam)
	identifications := starid.Identify(spatials, cat, pairDB, starid.Params{
		Tolerance:              d.cfg.Tolerance,
		NumFalseStars:          d.cfg.NumFalseStars,
		MaxMismatchProbability: d.cfg.MaxMismatchProbability,
		Cutoff:                 d.cfg.Cutoff,
		Strict:                 d.cfg.Strict,
		OnProgress: func(iterations int) {
			d.publish(ctx, TopicPyramidProgress, pyramidProgress{Iterations: iterations, Cutoff: d.cfg.Cutoff})
		},
	})

	result := SolveResult{Identifications: identifications}
	if len(identifications) < 2 {
		d.publish(ctx, TopicFailed, "insufficient identifications")
		return result, nil
	}

	var pairs []attitude.Pair
	for _, id := range identifications {
		pairs = append(pairs, attitude.Pair{
			B:      spatials[id.CentroidIndex],
			R:      cat[id.CatalogIndex].Spatial,
			Weight: id.Weight,
		})
	}
	attResult, err := attitude.Solve(pairs)
	if err != nil {
		d.publish(ctx, TopicFailed, err.Error())
		return result, nil
	}

	result.Attitude = attResult
	result.HasAttitude = true
	d.publish(ctx, TopicSolved, attResult.Quaternion)
	return result, nil
}

// ComparisonResult tallies how a set of identifications agrees with a
// known-true reference set, keyed by centroid index.
type ComparisonResult struct {
	Correct   int
	Incorrect int
	Missing   int
}

// Compare scores got against truth: a centroid present in both with the
// same catalog index is Correct, present in both but disagreeing is
// Incorrect, and present in truth but absent from got is Missing.
func Compare(got, truth []starid.StarIdentifier) ComparisonResult {
	gotByCentroid := make(map[int]int, len(got))
	for _, id := range got {
		gotByCentroid[id.CentroidIndex] = id.CatalogIndex
	}

	var result ComparisonResult
	for _, t := range truth {
		catIdx, ok := gotByCentroid[t.CentroidIndex]
		switch {
		case !ok:
			result.Missing++
		case catIdx == t.CatalogIndex:
			result.Correct++
		default:
			result.Incorrect++
		}
	}
	return result
}

func (d *Driver) publish(ctx context.Context, topic string, data any) {
	if d.bus == nil {
		return
	}
	_ = d.bus.Publish(ctx, topic, data)
}
