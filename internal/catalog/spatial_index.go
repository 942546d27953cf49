package catalog

import (
	"math"
	"sort"
)

// spatialIndex provides coarse spatial indexing over RA/Dec (degrees),
// used only to accelerate the minimum-separation narrowing filter. It uses
// a zone-based scheme that divides the sky into declination bands with
// adaptive RA zones based on latitude, giving near-constant-time lookup of
// nearby candidates for a given search radius.
type spatialIndex struct {
	// zones[decBand][raZone] holds catalog indices in that sky region.
	zones [][][]int

	decBandSize    float64
	numDecBands    int
	raZonesPerBand []int
}

// newSpatialIndex creates an index sized for queries at roughly
// minSeparationDeg radius: the band size is four times the radius (10
// degrees when that would be zero or over 15), so a query only ever needs
// to touch a handful of neighboring bands.
func newSpatialIndex(minSeparationDeg float64) *spatialIndex {
	decBandSize := minSeparationDeg * 4
	if decBandSize <= 0 || decBandSize > 15 {
		decBandSize = 10.0
	}

	numDecBands := int(math.Ceil(180.0 / decBandSize))

	raZonesPerBand := make([]int, numDecBands)
	for i := 0; i < numDecBands; i++ {
		decCenter := -90.0 + (float64(i)+0.5)*decBandSize
		cosWeight := math.Abs(math.Cos(decCenter * math.Pi / 180.0))
		numZones := int(math.Max(4, math.Round(36.0*cosWeight)))
		raZonesPerBand[i] = numZones
	}

	zones := make([][][]int, numDecBands)
	for i := 0; i < numDecBands; i++ {
		zones[i] = make([][]int, raZonesPerBand[i])
	}

	return &spatialIndex{
		zones:          zones,
		decBandSize:    decBandSize,
		numDecBands:    numDecBands,
		raZonesPerBand: raZonesPerBand,
	}
}

func (si *spatialIndex) getDecBand(dec float64) int {
	if dec < -90 {
		dec = -90
	}
	if dec > 90 {
		dec = 90
	}
	band := int((dec + 90) / si.decBandSize)
	if band >= si.numDecBands {
		band = si.numDecBands - 1
	}
	return band
}

func normalizeRA(ra float64) float64 {
	for ra < 0 {
		ra += 360
	}
	for ra >= 360 {
		ra -= 360
	}
	return ra
}

func (si *spatialIndex) getRAZone(ra float64, decBand int) int {
	ra = normalizeRA(ra)
	numZones := si.raZonesPerBand[decBand]
	zone := int(ra * float64(numZones) / 360.0)
	if zone >= numZones {
		zone = numZones - 1
	}
	return zone
}

// add inserts a catalog index at the given RA/Dec (degrees).
func (si *spatialIndex) add(ra, dec float64, index int) {
	decBand := si.getDecBand(dec)
	raZone := si.getRAZone(ra, decBand)
	si.zones[decBand][raZone] = append(si.zones[decBand][raZone], index)
}

// query returns indices of stars that might lie within radius (degrees) of
// (ra, dec); it is a coarse filter and the caller must still check exact
// angular separation on the returned candidates.
func (si *spatialIndex) query(ra, dec, radius float64) []int {
	minDec := dec - radius
	maxDec := dec + radius

	minDecBand := si.getDecBand(minDec)
	maxDecBand := si.getDecBand(maxDec)

	seen := make(map[int]bool)
	var candidates []int

	for decBand := minDecBand; decBand <= maxDecBand; decBand++ {
		decCenter := -90.0 + (float64(decBand)+0.5)*si.decBandSize
		cosDec := math.Cos(decCenter * math.Pi / 180.0)

		var raExtent float64
		if cosDec < 0.001 {
			raExtent = 180.0
		} else {
			raExtent = radius / cosDec
		}

		numZones := si.raZonesPerBand[decBand]
		zoneWidth := 360.0 / float64(numZones)

		minRA := normalizeRA(ra - raExtent)
		maxRA := normalizeRA(ra + raExtent)

		if raExtent >= 180 || maxRA < minRA {
			for zone := 0; zone < numZones; zone++ {
				for _, idx := range si.zones[decBand][zone] {
					if !seen[idx] {
						seen[idx] = true
						candidates = append(candidates, idx)
					}
				}
			}
			continue
		}

		minZone := int(minRA / zoneWidth)
		maxZone := int(maxRA / zoneWidth)
		if minZone >= numZones {
			minZone = numZones - 1
		}
		if maxZone >= numZones {
			maxZone = numZones - 1
		}

		for zone := minZone; zone <= maxZone; zone++ {
			for _, idx := range si.zones[decBand][zone] {
				if !seen[idx] {
					seen[idx] = true
					candidates = append(candidates, idx)
				}
			}
		}
	}

	return candidates
}

// compact sorts each zone's indices for better cache locality once
// construction is complete.
func (si *spatialIndex) compact() {
	for i := range si.zones {
		for j := range si.zones[i] {
			sort.Ints(si.zones[i][j])
		}
	}
}
