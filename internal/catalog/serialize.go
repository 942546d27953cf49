package catalog

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/darkdragonsastro/lost/internal/geometry"
	"github.com/darkdragonsastro/lost/internal/serialize"
)

// MagicValue is the value this payload is registered under inside a
// MultiDatabase's table of contents. 0xF9A283BC doesn't fit in a signed
// int32, so it's expressed via the same uint32->int32 reinterpretation a
// reader applying the reserved magic number would perform.
var magicValueU32 uint32 = 0xF9A283BC
var MagicValue = int32(magicValueU32)

const (
	flagIncludesMagnitude = 1 << 0
	flagIncludesName      = 1 << 1
)

// Serialize writes c as `int16 numStars | int8 flags | [numStars x
// catalog_star]`, where each catalog_star is `Vec3 (3 x float32) [|
// float32 magnitude] [| int16 name]`, conditional on the flags bits this
// call sets. Both fields are always included; the flags exist so a reader
// written against a future, leaner payload can skip fields it doesn't
// need.
func (c Catalog) Serialize(order binary.ByteOrder) []byte {
	w := serialize.NewWriter(order)
	w.WriteInt16(int16(len(c)))
	// flags rides in the low byte of an int16; see DESIGN.md on the
	// deviation from the single-byte field the format describes.
	w.WriteInt16(int16(flagIncludesMagnitude | flagIncludesName))
	for _, s := range c {
		w.WriteFloat32(float32(s.Spatial.X))
		w.WriteFloat32(float32(s.Spatial.Y))
		w.WriteFloat32(float32(s.Spatial.Z))
		w.WriteFloat32(float32(s.Magnitude) / 100)
		w.WriteInt16(int16(s.Name))
	}
	return w.Finish()
}

// Deserialize parses a buffer written by Serialize.
func Deserialize(buf []byte, order binary.ByteOrder) (Catalog, error) {
	r := serialize.NewReader(buf, order)

	numStars, err := r.Int16()
	if err != nil {
		return nil, fmt.Errorf("catalog: deserialize: %w", err)
	}
	flagsField, err := r.Int16()
	if err != nil {
		return nil, fmt.Errorf("catalog: deserialize: %w", err)
	}
	flags := flagsField & 0xFF
	hasMagnitude := flags&flagIncludesMagnitude != 0
	hasName := flags&flagIncludesName != 0

	cat := make(Catalog, 0, numStars)
	for i := 0; i < int(numStars); i++ {
		x, err := r.Float32()
		if err != nil {
			return nil, fmt.Errorf("catalog: deserialize: star %d: %w", i, err)
		}
		y, err := r.Float32()
		if err != nil {
			return nil, fmt.Errorf("catalog: deserialize: star %d: %w", i, err)
		}
		z, err := r.Float32()
		if err != nil {
			return nil, fmt.Errorf("catalog: deserialize: star %d: %w", i, err)
		}

		star := CatalogStar{Spatial: geometry.Vec3{X: float64(x), Y: float64(y), Z: float64(z)}}

		if hasMagnitude {
			mag, err := r.Float32()
			if err != nil {
				return nil, fmt.Errorf("catalog: deserialize: star %d: %w", i, err)
			}
			star.Magnitude = int(math.Round(float64(mag) * 100))
		}
		if hasName {
			name, err := r.Int16()
			if err != nil {
				return nil, fmt.Errorf("catalog: deserialize: star %d: %w", i, err)
			}
			star.Name = int(name)
		}

		cat = append(cat, star)
	}
	return cat, nil
}
