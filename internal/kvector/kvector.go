// Package kvector implements the uniform-bin prefix-count index that every
// other on-disk database in this module is built on top of: given a sorted
// array of values, it answers "which index range covers [qMin, qMax]?" in
// O(1) expected time, at the cost of sometimes returning up to one
// bin-width of extra entries on either side (its "liberal" semantics).
//
// An Index never owns the sorted array it indexes - it only ever appears
// embedded inside a larger database (pair-distance, triple-distance, ...)
// that also stores the bulk data the index refers to.
package kvector

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/darkdragonsastro/lost/internal/serialize"
)

// ErrCorrupt is returned when a serialized index fails a basic sanity
// check: a negative min, max <= min, non-positive numBins, or a bins array
// that isn't monotone non-decreasing.
var ErrCorrupt = errors.New("kvector: corrupt index")

// clampEpsilon nudges query endpoints strictly inside (min, max) so that
// BinFor always lands in [1, numBins] for the lower endpoint - see the
// precondition note on QueryLiberal below. It must be much smaller than any
// realistic bin width; QueryLiberal always uses this fixed value.
const clampEpsilon = 1e-5

// Build constructs the serialized byte form of a k-vector index over a
// sorted, ascending, non-empty slice of values, all of which must satisfy
// min <= values[i] <= max. Build panics if values is not sorted or a value
// falls outside [min, max]: these are programmer errors, not recoverable
// runtime conditions (the builder is only ever called with data the caller
// just computed and sorted itself).
func Build(values []float32, min, max float32, numBins int) []byte {
	if len(values) == 0 {
		panic("kvector: Build called with empty values")
	}
	if numBins <= 0 {
		panic("kvector: Build called with non-positive numBins")
	}
	if max <= min {
		panic("kvector: Build called with max <= min")
	}
	for i, v := range values {
		if v < min || v > max {
			panic(fmt.Sprintf("kvector: Build: values[%d]=%v out of [%v, %v]", i, v, min, max))
		}
		if i > 0 && values[i-1] > v {
			panic(fmt.Sprintf("kvector: Build: values not sorted at index %d", i))
		}
	}

	binWidth := (max - min) / float32(numBins)
	bins := make([]int32, numBins+1)

	lastBin := 0
	for i, v := range values {
		thisBin := int(math.Ceil(float64((v - min) / binWidth)))
		// A value equal to min is counted from bin 1 so that bins[0] stays 0,
		// as Parse requires.
		if thisBin < 1 {
			thisBin = 1
		}
		if thisBin > numBins {
			thisBin = numBins
		}
		for bin := lastBin; bin < thisBin; bin++ {
			bins[bin] = int32(i)
		}
		lastBin = thisBin
	}
	for bin := lastBin; bin <= numBins; bin++ {
		bins[bin] = int32(len(values))
	}

	w := serialize.NewWriter(binary.LittleEndian)
	w.WriteInt32(int32(len(values)))
	w.WriteFloat32(min)
	w.WriteFloat32(max)
	w.WriteInt32(int32(numBins))
	w.WriteInt32Array(bins)
	return w.Finish()
}

// Index is a deserialized k-vector index. Parse copies the bins array out
// of the buffer, so the Index does not reference that buffer afterwards.
type Index struct {
	numValues int
	min       float32
	max       float32
	binWidth  float32
	numBins   int
	bins      []int32
}

// Parse reads an Index from the start of buf and reports how many bytes it
// consumed, so callers embedding an Index inside a larger payload (such as
// the pair-distance database) know where the bulk data begins.
func Parse(buf []byte, order binary.ByteOrder) (idx *Index, consumed int, err error) {
	r := serialize.NewReader(buf, order)

	numValues, err := r.Int32()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	min, err := r.Float32()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	max, err := r.Float32()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	numBins, err := r.Int32()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if numBins <= 0 {
		return nil, 0, fmt.Errorf("%w: numBins %d <= 0", ErrCorrupt, numBins)
	}
	if max <= min {
		return nil, 0, fmt.Errorf("%w: max %v <= min %v", ErrCorrupt, max, min)
	}
	if min < 0 {
		return nil, 0, fmt.Errorf("%w: min %v < 0", ErrCorrupt, min)
	}
	if numValues < 0 {
		return nil, 0, fmt.Errorf("%w: numValues %d < 0", ErrCorrupt, numValues)
	}

	bins, err := r.Int32Array(int(numBins) + 1)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if !sort.SliceIsSorted(bins, func(i, j int) bool { return bins[i] < bins[j] }) {
		return nil, 0, fmt.Errorf("%w: bins not monotone non-decreasing", ErrCorrupt)
	}
	if bins[0] != 0 || int(bins[len(bins)-1]) != int(numValues) {
		return nil, 0, fmt.Errorf("%w: bins endpoints inconsistent with numValues", ErrCorrupt)
	}

	return &Index{
		numValues: int(numValues),
		min:       min,
		max:       max,
		binWidth:  (max - min) / float32(numBins),
		numBins:   int(numBins),
		bins:      bins,
	}, r.Offset(), nil
}

// NumValues returns the number of data points in the array this index
// refers to.
func (idx *Index) NumValues() int { return idx.numValues }

// NumBins returns the number of bins.
func (idx *Index) NumBins() int { return idx.numBins }

// Min returns the inclusive lower bound on indexed values.
func (idx *Index) Min() float32 { return idx.min }

// Max returns the exclusive upper bound on indexed values.
func (idx *Index) Max() float32 { return idx.max }

// BinFor returns ceil((q-min)/binWidth), the first bin that could contain
// entries >= q. The caller must ensure q lies in [min, max]; this is a
// programmer precondition, not a runtime check.
func (idx *Index) BinFor(q float32) int {
	bin := int(math.Ceil(float64((q - idx.min) / idx.binWidth)))
	if bin < 0 {
		bin = 0
	}
	if bin > idx.numBins {
		bin = idx.numBins
	}
	return bin
}

// QueryLiberal returns [startIndex, startIndex+count) such that the range
// covers every entry in [qMin, qMax], and may additionally include up to
// one bin-width of extra entries on either side. Returns count = 0 if the
// query range falls entirely outside [min, max].
//
// Precondition this relies on internally: after clamping qMin up to
// min+clampEpsilon, BinFor(qMin) is always >= 1, so bins[BinFor(qMin)-1]
// never indexes before the start of the bins array.
func (idx *Index) QueryLiberal(qMin, qMax float32) (startIndex, count int) {
	if qMax >= idx.max {
		qMax = idx.max - clampEpsilon
	}
	if qMin <= idx.min {
		qMin = idx.min + clampEpsilon
	}
	if qMin > idx.max || qMax < idx.min {
		return 0, 0
	}

	lowerBin := idx.BinFor(qMin)
	upperBin := idx.BinFor(qMax)
	if lowerBin < 1 {
		lowerBin = 1
	}

	lowerIndex := int(idx.bins[lowerBin-1])
	if lowerIndex >= idx.numValues {
		return 0, 0
	}
	upperIndex := int(idx.bins[upperBin]) - 1
	count = upperIndex - lowerIndex + 1
	if count < 0 {
		count = 0
	}
	return lowerIndex, count
}
