// Package mapstore exposes generated maps in the compact row-major transmit
// format consumed by clients, plus the enum mapping tables that decode it.
package mapstore

import (
	"errors"
	"math"

	"github.com/greylag/landgrab/server/internal/mapgen"
)

var ErrBadRowRange = errors.New("invalid row range")

// Mappings are the reverse lookup tables sent with the first chunk.
type Mappings struct {
	Biomes    []string `json:"biomes"`
	Features  []string `json:"features"`
	Resources []string `json:"resources"`
}

// DefaultMappings returns the enum tables in wire-index order.
func DefaultMappings() Mappings {
	return Mappings{
		Biomes:    mapgen.BiomeNames,
		Features:  mapgen.FeatureNames,
		Resources: mapgen.ResourceNames,
	}
}

// Metadata describes a map without its cells.
type Metadata struct {
	Width  int           `json:"width"`
	Height int           `json:"height"`
	Config mapgen.Config `json:"config"`
}

// Chunk is a row-major slice of the map in transmit format. Each cell is
// [elevation, moisture, temperature, biomeIdx, riverFlag, [featureIdx...],
// [resourceIdx...]].
type Chunk struct {
	StartRow  int       `json:"startRow"`
	EndRow    int       `json:"endRow"`
	TotalRows int       `json:"totalRows"`
	Rows      [][][]any `json:"chunk"`
	Mappings  *Mappings `json:"mappings,omitempty"`
}

// round3 keeps the wire floats compact.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// EncodeRows produces the transmit-format chunk for rows [startRow, endRow).
// The first chunk (startRow 0) carries the mapping tables.
func EncodeRows(m *mapgen.Map, startRow, endRow int) (*Chunk, error) {
	if startRow < 0 || endRow <= startRow || endRow > m.Height {
		return nil, ErrBadRowRange
	}
	rows := make([][][]any, 0, endRow-startRow)
	for y := startRow; y < endRow; y++ {
		row := make([][]any, m.Width)
		for x := 0; x < m.Width; x++ {
			c := m.At(x, y)
			river := 0
			if c.IsRiver {
				river = 1
			}
			features := make([]any, len(c.Features))
			for i, f := range c.Features {
				features[i] = int(f)
			}
			resources := make([]any, len(c.Resources))
			for i, r := range c.Resources {
				resources[i] = int(r)
			}
			row[x] = []any{
				round3(c.Elevation),
				round3(c.Moisture),
				math.Round(c.Temperature*10) / 10,
				int(c.Biome),
				river,
				features,
				resources,
			}
		}
		rows = append(rows, row)
	}
	chunk := &Chunk{
		StartRow:  startRow,
		EndRow:    endRow,
		TotalRows: m.Height,
		Rows:      rows,
	}
	if startRow == 0 {
		mp := DefaultMappings()
		chunk.Mappings = &mp
	}
	return chunk, nil
}

// MetadataFor extracts the metadata of a map.
func MetadataFor(m *mapgen.Map) Metadata {
	return Metadata{Width: m.Width, Height: m.Height, Config: m.Config}
}
