package mapgen

import "encoding/json"

// Config holds every tunable of the generation pipeline. Zero values are
// replaced with the defaults below, so a partially-populated config (for
// example one decoded from a room-creation request) is always usable.
type Config struct {
	SeaLevel        float64 `json:"seaLevel"`
	CoastalLevel    float64 `json:"coastalLevel"`
	MountainLevel   float64 `json:"mountainLevel"`
	ElevationOffset float64 `json:"elevationOffset"`

	NoiseWeight    float64 `json:"noiseWeight"`
	AnchorWeight   float64 `json:"anchorWeight"`
	Warp1Scale     float64 `json:"warp1Scale"`
	Warp1Amplitude float64 `json:"warp1Amplitude"`
	Warp2Scale     float64 `json:"warp2Scale"`
	Warp2Amplitude float64 `json:"warp2Amplitude"`

	FBMOctaves     int     `json:"fbmOctaves"`
	FBMFrequency   float64 `json:"fbmFrequency"`
	FBMPersistence float64 `json:"fbmPersistence"`
	BorderWidth    float64 `json:"borderWidth"`

	AnchorMargin        float64 `json:"anchorMargin"`
	AnchorMinStrength   float64 `json:"anchorMinStrength"`
	AnchorStrengthRange float64 `json:"anchorStrengthRange"`
	AnchorMinSigma      float64 `json:"anchorMinSigma"`
	AnchorSigmaRange    float64 `json:"anchorSigmaRange"`

	PeakAmplifyStrength float64 `json:"peakAmplifyStrength"`
	SubSeaPush          float64 `json:"subSeaPush"`

	RiverFlowMultiplier  float64 `json:"riverFlowMultiplier"`
	RiverWidenMultiplier float64 `json:"riverWidenMultiplier"`

	MoistureInfluenceRadius int     `json:"moistureInfluenceRadius"`
	RainShadowDecay         float64 `json:"rainShadowDecay"`
	MoistureSmoothPasses    int     `json:"moistureSmoothPasses"`
}

// DefaultConfig returns the standard generation constants.
func DefaultConfig() Config {
	return Config{
		SeaLevel:        0.35,
		CoastalLevel:    0.40,
		MountainLevel:   0.85,
		ElevationOffset: 0.40,

		NoiseWeight:    0.6,
		AnchorWeight:   0.4,
		Warp1Scale:     0.003,
		Warp1Amplitude: 40,
		Warp2Scale:     0.006,
		Warp2Amplitude: 20,

		FBMOctaves:     6,
		FBMFrequency:   0.008,
		FBMPersistence: 0.5,
		BorderWidth:    0.18,

		AnchorMargin:        0.15,
		AnchorMinStrength:   0.4,
		AnchorStrengthRange: 0.35,
		AnchorMinSigma:      0.15,
		AnchorSigmaRange:    0.12,

		PeakAmplifyStrength: 0.8,
		SubSeaPush:          0.6,

		RiverFlowMultiplier:  0.12,
		RiverWidenMultiplier: 4,

		MoistureInfluenceRadius: 15,
		RainShadowDecay:         0.92,
		MoistureSmoothPasses:    3,
	}
}

// withDefaults fills any zero-valued field from DefaultConfig. A missing
// key in a client-supplied JSON config must fall back to the default.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SeaLevel == 0 {
		c.SeaLevel = d.SeaLevel
	}
	if c.CoastalLevel == 0 {
		c.CoastalLevel = d.CoastalLevel
	}
	if c.MountainLevel == 0 {
		c.MountainLevel = d.MountainLevel
	}
	if c.ElevationOffset == 0 {
		c.ElevationOffset = d.ElevationOffset
	}
	if c.NoiseWeight == 0 {
		c.NoiseWeight = d.NoiseWeight
	}
	if c.AnchorWeight == 0 {
		c.AnchorWeight = d.AnchorWeight
	}
	if c.Warp1Scale == 0 {
		c.Warp1Scale = d.Warp1Scale
	}
	if c.Warp1Amplitude == 0 {
		c.Warp1Amplitude = d.Warp1Amplitude
	}
	if c.Warp2Scale == 0 {
		c.Warp2Scale = d.Warp2Scale
	}
	if c.Warp2Amplitude == 0 {
		c.Warp2Amplitude = d.Warp2Amplitude
	}
	if c.FBMOctaves == 0 {
		c.FBMOctaves = d.FBMOctaves
	}
	if c.FBMFrequency == 0 {
		c.FBMFrequency = d.FBMFrequency
	}
	if c.FBMPersistence == 0 {
		c.FBMPersistence = d.FBMPersistence
	}
	if c.BorderWidth == 0 {
		c.BorderWidth = d.BorderWidth
	}
	if c.AnchorMargin == 0 {
		c.AnchorMargin = d.AnchorMargin
	}
	if c.AnchorMinStrength == 0 {
		c.AnchorMinStrength = d.AnchorMinStrength
	}
	if c.AnchorStrengthRange == 0 {
		c.AnchorStrengthRange = d.AnchorStrengthRange
	}
	if c.AnchorMinSigma == 0 {
		c.AnchorMinSigma = d.AnchorMinSigma
	}
	if c.AnchorSigmaRange == 0 {
		c.AnchorSigmaRange = d.AnchorSigmaRange
	}
	if c.PeakAmplifyStrength == 0 {
		c.PeakAmplifyStrength = d.PeakAmplifyStrength
	}
	if c.SubSeaPush == 0 {
		c.SubSeaPush = d.SubSeaPush
	}
	if c.RiverFlowMultiplier == 0 {
		c.RiverFlowMultiplier = d.RiverFlowMultiplier
	}
	if c.RiverWidenMultiplier == 0 {
		c.RiverWidenMultiplier = d.RiverWidenMultiplier
	}
	if c.MoistureInfluenceRadius == 0 {
		c.MoistureInfluenceRadius = d.MoistureInfluenceRadius
	}
	if c.RainShadowDecay == 0 {
		c.RainShadowDecay = d.RainShadowDecay
	}
	if c.MoistureSmoothPasses == 0 {
		c.MoistureSmoothPasses = d.MoistureSmoothPasses
	}
	return c
}

// ParseConfig decodes a JSON config, applying defaults for missing keys.
// A nil or empty document yields the defaults.
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
