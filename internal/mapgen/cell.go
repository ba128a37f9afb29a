package mapgen

// Biome classifies a cell. The numeric values are the wire indices used by
// the chunked transmit format, so they must stay stable.
type Biome uint8

const (
	BiomeOcean Biome = iota
	BiomeCoastal
	BiomeMountain
	BiomeDesert
	BiomeSavanna
	BiomeTropicalForest
	BiomeRainforest
	BiomeTundra
	BiomeTaiga
	BiomeGrassland
	BiomeWoodland
	BiomeForest
	BiomeRiver
)

// BiomeNames maps wire indices to names, in index order.
var BiomeNames = []string{
	"OCEAN", "COASTAL", "MOUNTAIN", "DESERT", "SAVANNA", "TROPICAL_FOREST",
	"RAINFOREST", "TUNDRA", "TAIGA", "GRASSLAND", "WOODLAND", "FOREST", "RIVER",
}

func (b Biome) String() string {
	if int(b) < len(BiomeNames) {
		return BiomeNames[b]
	}
	return "UNKNOWN"
}

// Feature is a terrain tag assigned alongside the biome.
type Feature uint8

const (
	FeaturePeaks Feature = iota
	FeatureCliffs
	FeatureHills
	FeatureSprings
	FeatureLowlands
	FeatureWetlands
	FeatureMarshes
	FeatureFertileValleys
	FeatureRiver
)

// FeatureNames maps wire indices to names, in index order.
var FeatureNames = []string{
	"peaks", "cliffs", "hills", "springs", "lowlands",
	"wetlands", "marshes", "fertile_valleys", "river",
}

// Resource is a harvestable resource tag.
type Resource uint8

const (
	ResourceFood Resource = iota
	ResourceWood
	ResourceStone
	ResourceIron
	ResourceGold
)

// ResourceNames maps wire indices to names, in index order.
var ResourceNames = []string{"food", "wood", "stone", "iron", "gold"}

func (r Resource) String() string {
	if int(r) < len(ResourceNames) {
		return ResourceNames[r]
	}
	return "unknown"
}

// Cell is one grid cell. Cells are immutable after generation.
type Cell struct {
	X, Y        int
	Elevation   float64
	Moisture    float64
	Temperature float64
	Biome       Biome
	IsRiver     bool
	Features    []Feature
	Resources   []Resource
}

// Map is a generated width x height grid of cells in row-major order.
type Map struct {
	Width  int
	Height int
	Seed   uint32
	Config Config
	Cells  []Cell
}

// At returns the cell at (x,y). Callers must pass in-bounds coordinates.
func (m *Map) At(x, y int) *Cell {
	return &m.Cells[y*m.Width+x]
}

// InBounds reports whether (x,y) lies on the grid.
func (m *Map) InBounds(x, y int) bool {
	return x >= 0 && x < m.Width && y >= 0 && y < m.Height
}

// IsLand reports whether (x,y) is at or above sea level.
func (m *Map) IsLand(x, y int) bool {
	return m.At(x, y).Elevation >= m.Config.SeaLevel
}

// LandCells counts cells at or above sea level.
func (m *Map) LandCells() int {
	n := 0
	for i := range m.Cells {
		if m.Cells[i].Elevation >= m.Config.SeaLevel {
			n++
		}
	}
	return n
}
