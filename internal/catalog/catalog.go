// Package catalog provides the ordered star catalog the rest of the
// pipeline indexes: a CatalogStar is nothing more than a unit direction, an
// integer magnitude, and an integer name, parsed once from a text catalog
// file and immutable for the lifetime of the process.
package catalog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/darkdragonsastro/lost/internal/geometry"
)

// Sentinel errors for catalog operations.
var (
	// ErrMalformedLine is returned when a catalog text line cannot be parsed.
	ErrMalformedLine = errors.New("catalog: malformed line")

	// ErrInvalidQuery is returned when narrowing parameters are invalid.
	ErrInvalidQuery = errors.New("catalog: invalid query parameters")
)

// CatalogStar is a single entry in the star catalog: a unit direction in
// the inertial frame, a magnitude in hundredths (so 523 means 5.23), and an
// integer name identifier (e.g. a Hipparcos number).
type CatalogStar struct {
	Spatial   geometry.Vec3
	Magnitude int
	Name      int
}

// Catalog is an ordered, immutable-after-construction sequence of catalog
// stars. A star's index in the slice is its "catalog index", referenced
// throughout the pair-distance database and star-ID algorithm.
type Catalog []CatalogStar

const degToRadFactor = 3.141592653589793 / 180.0

func degToRad(deg float64) float64 {
	return deg * degToRadFactor
}

// ParseText parses the pipe-delimited catalog text format:
//
//	ra|dec|name|flag|mag.decimal
//
// ra and dec are decimal degrees; name is an integer identifier; flag is a
// single character (' ' for normal entries); the magnitude field carries an
// integer part and a decimal part separated by '.'. Parsing is exact about
// sign: when the integer part is negative, the decimal part's contribution
// is negated too (a magnitude of "-5.23" is -523 hundredths, not -477).
func ParseText(r io.Reader) (Catalog, error) {
	scanner := bufio.NewScanner(r)
	var cat Catalog

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		star, err := parseCatalogLine(line)
		if err != nil {
			return nil, fmt.Errorf("catalog: line %d: %w", lineNum, err)
		}
		cat = append(cat, star)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("catalog: read: %w", err)
	}
	return cat, nil
}

func parseCatalogLine(line string) (CatalogStar, error) {
	fields := strings.Split(line, "|")
	if len(fields) != 5 {
		return CatalogStar{}, fmt.Errorf("%w: expected 5 fields, got %d", ErrMalformedLine, len(fields))
	}

	ra, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil {
		return CatalogStar{}, fmt.Errorf("%w: ra: %v", ErrMalformedLine, err)
	}
	dec, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return CatalogStar{}, fmt.Errorf("%w: dec: %v", ErrMalformedLine, err)
	}
	name, err := strconv.Atoi(strings.TrimSpace(fields[2]))
	if err != nil {
		return CatalogStar{}, fmt.Errorf("%w: name: %v", ErrMalformedLine, err)
	}
	flag := strings.TrimRight(fields[3], "\r")
	if len(flag) != 1 {
		return CatalogStar{}, fmt.Errorf("%w: flag must be exactly one character, got %q", ErrMalformedLine, flag)
	}

	mag, err := parseMagnitude(strings.TrimSpace(fields[4]))
	if err != nil {
		return CatalogStar{}, err
	}

	return CatalogStar{
		Spatial:   geometry.SphericalToSpatial(degToRad(ra), degToRad(dec)),
		Magnitude: mag,
		Name:      name,
	}, nil
}

// parseMagnitude parses "intPart.decPart" into hundredths, applying the
// integer part's sign to the decimal part as well.
func parseMagnitude(s string) (int, error) {
	intPart, decPart, ok := strings.Cut(s, ".")
	if !ok {
		decPart = "0"
	}

	negative := strings.HasPrefix(intPart, "-")
	intAbs := strings.TrimPrefix(intPart, "-")
	intAbs = strings.TrimPrefix(intAbs, "+")

	intVal, err := strconv.Atoi(intAbs)
	if err != nil {
		return 0, fmt.Errorf("%w: magnitude integer part %q: %v", ErrMalformedLine, intPart, err)
	}

	// Normalize the decimal part to exactly two digits (hundredths).
	switch len(decPart) {
	case 0:
		decPart = "00"
	case 1:
		decPart += "0"
	default:
		decPart = decPart[:2]
	}
	decVal, err := strconv.Atoi(decPart)
	if err != nil {
		return 0, fmt.Errorf("%w: magnitude decimal part %q: %v", ErrMalformedLine, decPart, err)
	}

	magnitude := intVal*100 + decVal
	if negative {
		magnitude = -magnitude
	}
	return magnitude, nil
}

// Narrow applies the three narrowing filters in order: drop stars dimmer
// than maxMagnitude, then drop any two stars
// closer together than minSeparation (removing both), then keep only the
// maxStars brightest survivors. Passing maxMagnitude <= 0 or maxStars <= 0
// disables the corresponding filter.
func (c Catalog) Narrow(maxMagnitude int, minSeparation float64, maxStars int) (Catalog, error) {
	if minSeparation < 0 {
		return nil, fmt.Errorf("%w: minSeparation must be >= 0", ErrInvalidQuery)
	}

	narrowed := c.dropDimmerThan(maxMagnitude)
	narrowed = narrowed.dropTooClose(minSeparation)
	narrowed = narrowed.keepBrightest(maxStars)
	return narrowed, nil
}

func (c Catalog) dropDimmerThan(maxMagnitude int) Catalog {
	if maxMagnitude <= 0 {
		out := make(Catalog, len(c))
		copy(out, c)
		return out
	}
	out := make(Catalog, 0, len(c))
	for _, s := range c {
		if s.Magnitude <= maxMagnitude {
			out = append(out, s)
		}
	}
	return out
}

// dropTooClose removes both members of any pair whose angular separation
// is below minSeparation (radians). It uses a coarse spatial index (see
// spatial_index.go) to avoid the O(n^2) all-pairs scan for large catalogs:
// only stars in nearby sky zones are ever compared precisely.
func (c Catalog) dropTooClose(minSeparation float64) Catalog {
	if minSeparation <= 0 || len(c) == 0 {
		out := make(Catalog, len(c))
		copy(out, c)
		return out
	}

	minSeparationDeg := minSeparation / degToRadFactor
	idx := newSpatialIndex(minSeparationDeg)
	ras := make([]float64, len(c))
	decs := make([]float64, len(c))
	for i, s := range c {
		ra, dec := geometry.SpatialToSpherical(s.Spatial)
		ras[i], decs[i] = ra/degToRadFactor, dec/degToRadFactor
		idx.add(ras[i], decs[i], i)
	}
	idx.compact()

	toDrop := make([]bool, len(c))
	for i, s := range c {
		for _, j := range idx.query(ras[i], decs[i], minSeparationDeg) {
			if j <= i {
				continue
			}
			if geometry.AngleUnit(s.Spatial, c[j].Spatial) < minSeparation {
				toDrop[i] = true
				toDrop[j] = true
			}
		}
	}

	out := make(Catalog, 0, len(c))
	for i, s := range c {
		if !toDrop[i] {
			out = append(out, s)
		}
	}
	return out
}

func (c Catalog) keepBrightest(maxStars int) Catalog {
	if maxStars <= 0 || maxStars >= len(c) {
		out := make(Catalog, len(c))
		copy(out, c)
		return out
	}
	out := make(Catalog, len(c))
	copy(out, c)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Magnitude < out[j].Magnitude
	})
	return out[:maxStars]
}
