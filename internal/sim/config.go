package sim

import (
	"encoding/json"

	"github.com/greylag/landgrab/server/internal/mapgen"
)

// ArmyStats tunes arrow movement and combat strength.
type ArmyStats struct {
	Speed          float64 `json:"speed"`
	Power          float64 `json:"power"`
	PopulationCost float64 `json:"populationCost"`
}

// PopulationConfig tunes per-tick population dynamics.
type PopulationConfig struct {
	GrowthRate      float64 `json:"growthRate"`
	MaxPerTerritory float64 `json:"maxPerTerritory"`
}

// ResourceConfig tunes per-tick resource regeneration.
type ResourceConfig struct {
	BaseYield float64 `json:"baseYield"`
}

// DesirabilityBonus tunes expansion scoring.
type DesirabilityBonus struct {
	AdjacentWeight float64 `json:"adjacentWeight"`
}

// Config holds every gameplay tunable consumed by the nation updater.
// Missing keys in a client-supplied document fall back to the defaults.
type Config struct {
	WinConditionPercentage float64                       `json:"winConditionPercentage"`
	Population             PopulationConfig              `json:"population"`
	CityBonus              float64                       `json:"cityBonus"`
	Resource               ResourceConfig                `json:"resource"`
	CellDesirabilityBonus  DesirabilityBonus             `json:"cellDesirabilityBonus"`
	BiomeDesirability      map[string]float64            `json:"biomeDesirabilityScores"`
	BuildCosts             map[string]map[string]float64 `json:"buildCosts"`
	Armies                 struct {
		Stats ArmyStats `json:"stats"`
	} `json:"armies"`
	Structures struct {
		Descriptions map[string]string `json:"descriptions"`
	} `json:"structures"`
	ExpansionCost   map[string]float64 `json:"expansionCost"`
	MaxAttackArrows int                `json:"maxAttackArrows"`
	RefoundEnabled  bool               `json:"refoundEnabled"`
	AutoCityPerCell int                `json:"autoCityPerCells"`
}

// DefaultConfig returns the standard gameplay constants.
func DefaultConfig() Config {
	c := Config{
		WinConditionPercentage: 75,
		Population:             PopulationConfig{GrowthRate: 0.02, MaxPerTerritory: 100},
		CityBonus:              500,
		Resource:               ResourceConfig{BaseYield: 1},
		CellDesirabilityBonus:  DesirabilityBonus{AdjacentWeight: 40},
		BiomeDesirability: map[string]float64{
			"GRASSLAND": 50, "WOODLAND": 45, "FOREST": 40, "RIVER": 60,
			"COASTAL": 55, "SAVANNA": 35, "TROPICAL_FOREST": 30, "RAINFOREST": 25,
			"TAIGA": 20, "TUNDRA": 10, "DESERT": 8, "MOUNTAIN": 5,
		},
		BuildCosts: map[string]map[string]float64{
			"city":     {"wood": 100, "stone": 50, "food": 50},
			"fort":     {"wood": 50, "stone": 150},
			"farm":     {"wood": 40, "food": 10},
			"sawmill":  {"wood": 20, "stone": 40},
			"mine":     {"wood": 60, "stone": 80},
			"barracks": {"wood": 80, "stone": 60, "food": 40},
		},
		ExpansionCost:   map[string]float64{"food": 2},
		MaxAttackArrows: 3,
		RefoundEnabled:  false,
		AutoCityPerCell: 50,
	}
	c.Armies.Stats = ArmyStats{Speed: 1.0, Power: 1.0, PopulationCost: 1.0}
	c.Structures.Descriptions = map[string]string{
		"city":     "grows population and focuses expansion",
		"fort":     "multiplies the defense of nearby cells",
		"farm":     "boosts food yield",
		"sawmill":  "boosts wood yield",
		"mine":     "boosts stone, iron and gold yield",
		"barracks": "boosts arrow power",
	}
	return c
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.WinConditionPercentage == 0 {
		c.WinConditionPercentage = d.WinConditionPercentage
	}
	if c.Population.GrowthRate == 0 {
		c.Population.GrowthRate = d.Population.GrowthRate
	}
	if c.Population.MaxPerTerritory == 0 {
		c.Population.MaxPerTerritory = d.Population.MaxPerTerritory
	}
	if c.CityBonus == 0 {
		c.CityBonus = d.CityBonus
	}
	if c.Resource.BaseYield == 0 {
		c.Resource.BaseYield = d.Resource.BaseYield
	}
	if c.CellDesirabilityBonus.AdjacentWeight == 0 {
		c.CellDesirabilityBonus.AdjacentWeight = d.CellDesirabilityBonus.AdjacentWeight
	}
	if c.BiomeDesirability == nil {
		c.BiomeDesirability = d.BiomeDesirability
	}
	if c.BuildCosts == nil {
		c.BuildCosts = d.BuildCosts
	}
	if c.ExpansionCost == nil {
		c.ExpansionCost = d.ExpansionCost
	}
	if c.MaxAttackArrows == 0 {
		c.MaxAttackArrows = d.MaxAttackArrows
	}
	if c.AutoCityPerCell == 0 {
		c.AutoCityPerCell = d.AutoCityPerCell
	}
	if c.Armies.Stats.Speed == 0 {
		c.Armies.Stats.Speed = d.Armies.Stats.Speed
	}
	if c.Armies.Stats.Power == 0 {
		c.Armies.Stats.Power = d.Armies.Stats.Power
	}
	if c.Armies.Stats.PopulationCost == 0 {
		c.Armies.Stats.PopulationCost = d.Armies.Stats.PopulationCost
	}
	if c.Structures.Descriptions == nil {
		c.Structures.Descriptions = d.Structures.Descriptions
	}
	return c
}

// ParseConfig decodes a JSON gameplay config, applying defaults for missing
// keys. A nil or empty document yields the defaults.
func ParseConfig(raw json.RawMessage) (Config, error) {
	if len(raw) == 0 {
		return DefaultConfig(), nil
	}
	var c Config
	if err := json.Unmarshal(raw, &c); err != nil {
		return Config{}, err
	}
	return c.withDefaults(), nil
}

// DesirabilityOf returns the expansion score of a biome.
func (c Config) DesirabilityOf(b mapgen.Biome) float64 {
	return c.BiomeDesirability[b.String()]
}

// movementCost scales arrow advancement per biome. Open terrain is cheap,
// mountains and thick forest are slow.
var movementCost = map[mapgen.Biome]float64{
	mapgen.BiomeGrassland:      1.0,
	mapgen.BiomeCoastal:        1.0,
	mapgen.BiomeSavanna:        1.1,
	mapgen.BiomeWoodland:       1.2,
	mapgen.BiomeRiver:          1.3,
	mapgen.BiomeForest:         1.5,
	mapgen.BiomeTropicalForest: 1.6,
	mapgen.BiomeTaiga:          1.6,
	mapgen.BiomeDesert:         1.4,
	mapgen.BiomeTundra:         1.5,
	mapgen.BiomeRainforest:     1.8,
	mapgen.BiomeMountain:       2.5,
}

// MovementCostOf returns the arrow movement cost of a biome.
func MovementCostOf(b mapgen.Biome) float64 {
	if c, ok := movementCost[b]; ok {
		return c
	}
	return 1.0
}
