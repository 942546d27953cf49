// Package pairdb implements the pair-distance database: a k-vector index
// over every catalog star-pair angular distance that falls in a chosen
// range, backed by a bulk array of the (catalogIndex1, catalogIndex2)
// pairs sorted by that distance. This is the database the Pyramid
// algorithm queries to turn a measured inter-centroid distance into a
// short list of candidate catalog star pairs.
package pairdb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/darkdragonsastro/lost/internal/catalog"
	"github.com/darkdragonsastro/lost/internal/geometry"
	"github.com/darkdragonsastro/lost/internal/kvector"
	"github.com/darkdragonsastro/lost/internal/serialize"
)

// MagicValue is the value this database is registered under inside a
// MultiDatabase's table of contents.
const MagicValue int32 = 0x2536F009

// ErrCorrupt wraps a kvector.ErrCorrupt or a pair-array length mismatch.
var ErrCorrupt = errors.New("pairdb: corrupt database")

type pair struct {
	i, j int16
	d    float32
}

// pairsForCatalog computes every unordered catalog pair whose angular
// distance falls in [minDist, maxDist], sorted ascending by distance.
func pairsForCatalog(cat catalog.Catalog, minDist, maxDist float64) []pair {
	var pairs []pair
	for i := 0; i < len(cat); i++ {
		for j := i + 1; j < len(cat); j++ {
			d := geometry.AngleUnit(cat[i].Spatial, cat[j].Spatial)
			if d >= minDist && d <= maxDist {
				pairs = append(pairs, pair{int16(i), int16(j), float32(d)})
			}
		}
	}
	sort.Slice(pairs, func(a, b int) bool { return pairs[a].d < pairs[b].d })
	return pairs
}

// Build serializes a pair-distance database over cat restricted to pairs
// whose distance lies in [minDist, maxDist], using numBins k-vector bins.
func Build(cat catalog.Catalog, minDist, maxDist float64, numBins int) []byte {
	pairs := pairsForCatalog(cat, minDist, maxDist)

	distances := make([]float32, len(pairs))
	for i, p := range pairs {
		distances[i] = p.d
	}

	var indexBuf []byte
	if len(distances) == 0 {
		// Build panics on empty input; a database with zero pairs still
		// needs a well-formed (degenerate) index so downstream readers
		// don't special-case it.
		indexBuf = kvector.Build([]float32{float32(minDist)}, float32(minDist), float32(maxDist), numBins)
	} else {
		indexBuf = kvector.Build(distances, float32(minDist), float32(maxDist), numBins)
	}

	bulk := make([]int16, 0, len(pairs)*2)
	for _, p := range pairs {
		bulk = append(bulk, p.i, p.j)
	}
	w := serialize.NewWriter(binary.LittleEndian)
	w.WriteInt16Array(bulk)
	bulkBuf := w.Finish()

	buf := make([]byte, 0, len(indexBuf)+len(bulkBuf))
	buf = append(buf, indexBuf...)
	buf = append(buf, bulkBuf...)
	return buf
}

// Database is a deserialized pair-distance database. Parse copies the bulk
// pair array out of the buffer, so the Database does not reference that
// buffer afterwards.
type Database struct {
	index *kvector.Index
	pairs []int16
}

// Parse reads a Database from buf.
func Parse(buf []byte, order binary.ByteOrder) (*Database, error) {
	idx, consumed, err := kvector.Parse(buf, order)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	r := serialize.NewReader(buf[consumed:], order)
	pairs, err := r.Int16Array(idx.NumValues() * 2)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &Database{index: idx, pairs: pairs}, nil
}

// NumPairs returns the exact number of stored pairs.
func (db *Database) NumPairs() int { return db.index.NumValues() }

// MinDistance returns the lower bound on stored pair distances.
func (db *Database) MinDistance() float64 { return float64(db.index.Min()) }

// MaxDistance returns the upper bound on stored pair distances.
func (db *Database) MaxDistance() float64 { return float64(db.index.Max()) }

// FindPairsLiberal returns the flat (i0,j0,i1,j1,...) slice of catalog
// index pairs whose distance lies in [qMin, qMax], possibly with up to one
// bin-width of extra pairs included on either end.
func (db *Database) FindPairsLiberal(qMin, qMax float64) []int16 {
	start, count := db.index.QueryLiberal(float32(qMin), float32(qMax))
	return db.pairs[start*2 : (start+count)*2]
}

// FindPairsExact is FindPairsLiberal, narrowed by dropping pairs from each
// end of the liberal result whose recomputed angular distance actually
// falls outside [qMin, qMax]. Because the bulk array is sorted by
// distance, the kept region is a contiguous sub-slice of the liberal one.
func (db *Database) FindPairsExact(cat catalog.Catalog, qMin, qMax float64) []int16 {
	liberal := db.FindPairsLiberal(qMin, qMax)
	n := len(liberal) / 2

	lo := 0
	for lo < n {
		i, j := liberal[lo*2], liberal[lo*2+1]
		d := geometry.AngleUnit(cat[i].Spatial, cat[j].Spatial)
		if d >= qMin {
			break
		}
		lo++
	}
	hi := n
	for hi > lo {
		i, j := liberal[(hi-1)*2], liberal[(hi-1)*2+1]
		d := geometry.AngleUnit(cat[i].Spatial, cat[j].Spatial)
		if d <= qMax {
			break
		}
		hi--
	}
	return liberal[lo*2 : hi*2]
}

// StarDistances returns the angular distance from star to every other
// catalog star it is paired with in this database. Diagnostic only.
func (db *Database) StarDistances(star int16, cat catalog.Catalog) []float64 {
	var result []float64
	for i := 0; i < db.NumPairs(); i++ {
		a, b := db.pairs[i*2], db.pairs[i*2+1]
		if a == star || b == star {
			result = append(result, geometry.AngleUnit(cat[a].Spatial, cat[b].Spatial))
		}
	}
	return result
}
