// Package mapgen produces the deterministic tile grids that seed each room:
// domain-warped FBM elevation, connectivity repair, flow-accumulation
// rivers, moisture, temperature, biomes and resources.
package mapgen

import (
	"context"
	"errors"
	"math"
	"sort"
)

var (
	ErrBadDimensions = errors.New("map dimensions must be positive")
	ErrBadBlobCount  = errors.New("numBlobs must be at least 1")
	ErrBadConfig     = errors.New("config contains NaN or infinite values")
)

// Rainfall constants for the flow-accumulation pass.
const (
	rainNoise          = 0.5
	rainElevationBonus = 2.0
)

type anchor struct {
	x, y     float64
	strength float64
	sigma    float64
}

type generator struct {
	w, h  int
	cfg   Config
	rng   *Rand
	noise *Noise2D

	elev     []float64
	bias     []float64 // anchor gaussian bias per cell
	noiseVal []float64 // raw warped FBM per cell
	moisture []float64
	temp     []float64
	flow     []float64
	isRiver  []bool
}

// Generate builds a Map from (width, height, numBlobs, seed, cfg). Given
// identical inputs the output is byte-identical: all randomness flows
// through the seeded PRNG and cells are visited in raster order.
// Cancellation is honored between pipeline phases.
func Generate(ctx context.Context, width, height, numBlobs int, seed uint32, cfg Config) (*Map, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrBadDimensions
	}
	if numBlobs < 1 {
		return nil, ErrBadBlobCount
	}
	cfg = cfg.withDefaults()
	if badFloat(cfg.SeaLevel, cfg.MountainLevel, cfg.NoiseWeight, cfg.AnchorWeight,
		cfg.ElevationOffset, cfg.FBMFrequency, cfg.FBMPersistence, cfg.BorderWidth) {
		return nil, ErrBadConfig
	}

	g := &generator{
		w:        width,
		h:        height,
		cfg:      cfg,
		rng:      NewRand(seed),
		noise:    NewNoise2D(seed),
		elev:     make([]float64, width*height),
		bias:     make([]float64, width*height),
		noiseVal: make([]float64, width*height),
		moisture: make([]float64, width*height),
		temp:     make([]float64, width*height),
		flow:     make([]float64, width*height),
		isRiver:  make([]bool, width*height),
	}

	phases := []func(){
		func() { g.buildElevation(numBlobs) },
		g.repairConnectivity,
		g.carveRivers,
		g.buildMoisture,
		g.buildTemperature,
	}
	for _, phase := range phases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		phase()
	}

	m := &Map{Width: width, Height: height, Seed: seed, Config: cfg,
		Cells: make([]Cell, width*height)}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.assignBiomes(m)
	g.assignResources(m)
	g.smoothInterior(m)
	return m, nil
}

// border reports whether (x, y) lies on the outer ring. The border fade
// pins these cells to elevation zero; later phases that lift elevation must
// leave them alone.
func (g *generator) border(x, y int) bool {
	return x == 0 || y == 0 || x == g.w-1 || y == g.h-1
}

func badFloat(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}

// --- phase 1: elevation ---

func (g *generator) buildElevation(numBlobs int) {
	cfg := g.cfg
	anchors := make([]anchor, numBlobs)
	minDim := float64(min(g.w, g.h))
	for i := range anchors {
		a := anchor{
			x:        g.rng.Range(cfg.AnchorMargin*float64(g.w), (1-2*cfg.AnchorMargin)*float64(g.w)),
			y:        g.rng.Range(cfg.AnchorMargin*float64(g.h), (1-2*cfg.AnchorMargin)*float64(g.h)),
			strength: g.rng.Range(cfg.AnchorMinStrength, cfg.AnchorStrengthRange),
			sigma:    g.rng.Range(cfg.AnchorMinSigma, cfg.AnchorSigmaRange) * minDim,
		}
		// The first anchor is the guaranteed mountain seed.
		if i == 0 && a.strength < 0.55 {
			a.strength = 0.55
		}
		anchors[i] = a
	}

	borderFade := cfg.BorderWidth * float64(g.w)
	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			i := y*g.w + x
			fx, fy := float64(x), float64(y)

			// Two-layer domain warp feeding FBM.
			w1 := cfg.Warp1Amplitude * g.noise.At(fx*cfg.Warp1Scale, fy*cfg.Warp1Scale)
			w2 := cfg.Warp2Amplitude * g.noise.At((fx+w1)*cfg.Warp2Scale, (fy+w1)*cfg.Warp2Scale)
			nv := g.noise.FBM(fx+w1+w2, fy+w1+w2, cfg.FBMOctaves, cfg.FBMFrequency, cfg.FBMPersistence)
			g.noiseVal[i] = nv

			bias := 0.0
			for _, a := range anchors {
				dx, dy := fx-a.x, fy-a.y
				v := a.strength * math.Exp(-(dx*dx+dy*dy)/(2*a.sigma*a.sigma))
				if v > bias {
					bias = v
				}
			}
			g.bias[i] = bias

			e := nv*cfg.NoiseWeight + bias*cfg.AnchorWeight + cfg.ElevationOffset
			if bias > 0.2 && nv > 0.15 {
				e += (bias - 0.2) * nv * cfg.PeakAmplifyStrength
			}

			edge := float64(min(min(x, y), min(g.w-1-x, g.h-1-y)))
			e *= smoothStep(0, borderFade, edge)

			if e < cfg.SeaLevel {
				e *= cfg.SubSeaPush
			}
			g.elev[i] = clamp01(e)
		}
	}

	g.guaranteePeak()
}

// guaranteePeak raises a small radial dome around the highest cell when no
// cell reaches near the mountain threshold, so every map has at least one
// mountain seed.
func (g *generator) guaranteePeak() {
	maxI, maxE := 0, 0.0
	for i, e := range g.elev {
		if e > maxE {
			maxE, maxI = e, i
		}
	}
	if maxE >= g.cfg.MountainLevel+0.03 {
		return
	}
	target := g.cfg.MountainLevel + 0.07
	cx, cy := maxI%g.w, maxI/g.w
	const radius, sigma = 6, 3.0
	for y := max(0, cy-radius); y <= min(g.h-1, cy+radius); y++ {
		for x := max(0, cx-radius); x <= min(g.w-1, cx+radius); x++ {
			if g.border(x, y) {
				continue
			}
			dx, dy := float64(x-cx), float64(y-cy)
			dome := target * math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma))
			i := y*g.w + x
			if dome > g.elev[i] {
				g.elev[i] = clamp01(dome)
			}
		}
	}
}

// --- phase 2: connectivity repair ---

var cardinal = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}

// labelComponents labels 4-connected land components, returning the label
// grid (-1 for water) and per-component sizes.
func (g *generator) labelComponents() ([]int, []int) {
	labels := make([]int, g.w*g.h)
	for i := range labels {
		labels[i] = -1
	}
	var sizes []int
	queue := make([]int, 0, g.w*g.h)
	for start := range g.elev {
		if g.elev[start] < g.cfg.SeaLevel || labels[start] >= 0 {
			continue
		}
		id := len(sizes)
		size := 0
		labels[start] = id
		queue = append(queue[:0], start)
		for len(queue) > 0 {
			i := queue[0]
			queue = queue[1:]
			size++
			x, y := i%g.w, i/g.w
			for _, d := range cardinal {
				nx, ny := x+d[0], y+d[1]
				if nx < 0 || nx >= g.w || ny < 0 || ny >= g.h {
					continue
				}
				n := ny*g.w + nx
				if labels[n] < 0 && g.elev[n] >= g.cfg.SeaLevel {
					labels[n] = id
					queue = append(queue, n)
				}
			}
		}
		sizes = append(sizes, size)
	}
	return labels, sizes
}

// repairConnectivity bridges secondary land components toward the main one
// with chains of gaussian blobs until the land is (near-)fully connected.
func (g *generator) repairConnectivity() {
	for pass := 0; pass < 4; pass++ {
		labels, sizes := g.labelComponents()
		if len(sizes) <= 1 {
			return
		}
		main := 0
		for id, sz := range sizes {
			if sz > sizes[main] {
				main = id
			}
		}

		// Multi-source BFS from the main component across the whole grid,
		// recording for every cell its distance and the originating main cell.
		dist := make([]int, g.w*g.h)
		origin := make([]int, g.w*g.h)
		for i := range dist {
			dist[i] = -1
		}
		queue := make([]int, 0, g.w*g.h)
		for i, l := range labels {
			if l == main {
				dist[i] = 0
				origin[i] = i
				queue = append(queue, i)
			}
		}
		for len(queue) > 0 {
			i := queue[0]
			queue = queue[1:]
			x, y := i%g.w, i/g.w
			for _, d := range cardinal {
				nx, ny := x+d[0], y+d[1]
				if nx < 0 || nx >= g.w || ny < 0 || ny >= g.h {
					continue
				}
				n := ny*g.w + nx
				if dist[n] < 0 {
					dist[n] = dist[i] + 1
					origin[n] = origin[i]
					queue = append(queue, n)
				}
			}
		}

		// Closest cell of each secondary component to the main component.
		type gap struct{ cell, mainCell, d int }
		closest := make(map[int]gap)
		for i, l := range labels {
			if l < 0 || l == main || dist[i] < 0 {
				continue
			}
			if best, ok := closest[l]; !ok || dist[i] < best.d {
				closest[l] = gap{cell: i, mainCell: origin[i], d: dist[i]}
			}
		}

		ids := make([]int, 0, len(closest))
		for id := range closest {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			g.bridge(closest[id].mainCell, closest[id].cell)
		}
	}
}

// bridge lifts 2-4 gaussian blobs at jittered points between two cells so
// a land path forms between them.
func (g *generator) bridge(from, to int) {
	fx, fy := float64(from%g.w), float64(from/g.w)
	tx, ty := float64(to%g.w), float64(to/g.w)
	span := math.Hypot(tx-fx, ty-fy)
	blobs := 2 + g.rng.Intn(3)

	for b := 1; b <= blobs; b++ {
		t := float64(b) / float64(blobs+1)
		jx := g.noise.At(fx*0.1+float64(b)*13.7, fy*0.1) * 2
		jy := g.noise.At(fx*0.1, fy*0.1+float64(b)*7.3) * 2
		cx := fx + (tx-fx)*t + jx
		cy := fy + (ty-fy)*t + jy

		// Overlapping blobs: sigma scales with spacing so the chain connects.
		sigma := math.Max(1.5, span/(2*float64(blobs+1)))
		r := int(sigma*3) + 1
		for y := max(0, int(cy)-r); y <= min(g.h-1, int(cy)+r); y++ {
			for x := max(0, int(cx)-r); x <= min(g.w-1, int(cx)+r); x++ {
				if g.border(x, y) {
					continue
				}
				dx, dy := float64(x)-cx, float64(y)-cy
				falloff := math.Exp(-(dx*dx + dy*dy) / (2 * sigma * sigma))
				target := math.Min(0.9, g.cfg.SeaLevel+0.12*falloff)
				i := y*g.w + x
				if falloff > 0.35 && target > g.elev[i] {
					g.elev[i] = target
				}
			}
		}
	}
}

// --- phase 3: rivers by flow accumulation ---

func (g *generator) carveRivers() {
	land := make([]int, 0, g.w*g.h)
	total := 0.0
	for i, e := range g.elev {
		if e < g.cfg.SeaLevel {
			continue
		}
		x, y := i%g.w, i/g.w
		n01 := (g.noise.At(float64(x)*0.03, float64(y)*0.03) + 1) / 2
		g.flow[i] = 1 + n01*rainNoise + math.Max(0, e-0.4)*rainElevationBonus
		total += g.flow[i]
		land = append(land, i)
	}

	// Descending elevation; index tie-break keeps the order stable.
	sort.Slice(land, func(a, b int) bool {
		if g.elev[land[a]] != g.elev[land[b]] {
			return g.elev[land[a]] > g.elev[land[b]]
		}
		return land[a] < land[b]
	})

	// Each cell drains its entire flow to its steepest lower 4-neighbor.
	for _, i := range land {
		x, y := i%g.w, i/g.w
		best, bestE := -1, g.elev[i]
		for _, d := range cardinal {
			nx, ny := x+d[0], y+d[1]
			if nx < 0 || nx >= g.w || ny < 0 || ny >= g.h {
				continue
			}
			n := ny*g.w + nx
			if g.elev[n] < bestE {
				best, bestE = n, g.elev[n]
			}
		}
		if best >= 0 {
			g.flow[best] += g.flow[i]
		}
	}

	threshold := math.Max(25, math.Sqrt(total)*g.cfg.RiverFlowMultiplier)
	widen := threshold * g.cfg.RiverWidenMultiplier
	for _, i := range land {
		if g.flow[i] >= threshold {
			g.isRiver[i] = true
		}
		if g.flow[i] >= widen {
			x, y := i%g.w, i/g.w
			for _, d := range cardinal {
				nx, ny := x+d[0], y+d[1]
				if nx < 0 || nx >= g.w || ny < 0 || ny >= g.h {
					continue
				}
				n := ny*g.w + nx
				if g.elev[n] >= g.cfg.SeaLevel {
					g.isRiver[n] = true
				}
			}
		}
	}
}

// --- phase 4: moisture ---

func (g *generator) buildMoisture() {
	radius := g.cfg.MoistureInfluenceRadius

	// BFS distance to the nearest water or river cell, clipped at radius.
	dist := make([]int, g.w*g.h)
	for i := range dist {
		dist[i] = -1
	}
	queue := make([]int, 0, g.w*g.h)
	for i := range g.elev {
		if g.elev[i] < g.cfg.SeaLevel || g.isRiver[i] {
			dist[i] = 0
			queue = append(queue, i)
		}
	}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		if dist[i] >= radius {
			continue
		}
		x, y := i%g.w, i/g.w
		for _, d := range cardinal {
			nx, ny := x+d[0], y+d[1]
			if nx < 0 || nx >= g.w || ny < 0 || ny >= g.h {
				continue
			}
			n := ny*g.w + nx
			if dist[n] < 0 {
				dist[n] = dist[i] + 1
				queue = append(queue, n)
			}
		}
	}

	r := float64(radius)
	for i := range g.moisture {
		if g.elev[i] < g.cfg.SeaLevel {
			g.moisture[i] = 1.0
			continue
		}
		m := 0.3
		if dist[i] >= 0 && dist[i] <= radius {
			m += (r - float64(dist[i])) / r * 0.7
		}
		g.moisture[i] = m
	}

	// Rain shadow sweeping west to east: mountains accumulate a shadow that
	// decays with distance and suppresses moisture downwind.
	for y := 0; y < g.h; y++ {
		shadow := 0.0
		for x := 0; x < g.w; x++ {
			i := y*g.w + x
			if g.elev[i] > 0.6 {
				shadow += (g.elev[i] - 0.6) * 0.4
			}
			g.moisture[i] -= shadow
			shadow *= g.cfg.RainShadowDecay
		}
	}

	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			i := y*g.w + x
			g.moisture[i] = clamp01(g.moisture[i] + g.noise.At(float64(x)*0.05+512, float64(y)*0.05+512)*0.05)
		}
	}

	g.moisture = boxBlur(g.moisture, g.w, g.h, g.cfg.MoistureSmoothPasses, nil)
}

// boxBlur applies n passes of a 3x3 mean over the field, double-buffered.
// When keep is non-nil, cells where keep is false pass through unblurred.
func boxBlur(field []float64, w, h, passes int, keep []bool) []float64 {
	src := field
	dst := make([]float64, len(field))
	for p := 0; p < passes; p++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := y*w + x
				if keep != nil && !keep[i] {
					dst[i] = src[i]
					continue
				}
				sum, n := 0.0, 0
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						nx, ny := x+dx, y+dy
						if nx < 0 || nx >= w || ny < 0 || ny >= h {
							continue
						}
						j := ny*w + nx
						if keep != nil && !keep[j] {
							continue
						}
						sum += src[j]
						n++
					}
				}
				dst[i] = sum / float64(n)
			}
		}
		src, dst = dst, src
	}
	return src
}

// --- phase 5: temperature ---

func (g *generator) buildTemperature() {
	for y := 0; y < g.h; y++ {
		lat := math.Abs(float64(y)/float64(g.h) - 0.5) * 1.25
		base := 25 * (1 - math.Pow(lat, 1.5))
		for x := 0; x < g.w; x++ {
			i := y*g.w + x
			n := g.noise.At(float64(x)*0.01+2048, float64(y)*0.01+2048)*3 +
				g.noise.At(float64(x)*0.05+4096, float64(y)*0.05+4096)*1.5
			g.temp[i] = base + n - 5*g.elev[i]
		}
	}
}

// --- phase 6: biomes and features ---

func (g *generator) assignBiomes(m *Map) {
	cfg := g.cfg
	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			i := y*g.w + x
			c := &m.Cells[i]
			c.X, c.Y = x, y
			c.Elevation = g.elev[i]
			c.Moisture = g.moisture[i]
			c.Temperature = g.temp[i]
			c.IsRiver = g.isRiver[i]

			jitter := g.noise.At(float64(x)*0.1+8192, float64(y)*0.1+8192) * 0.02
			e := c.Elevation + jitter
			switch {
			case c.Elevation < cfg.SeaLevel:
				c.Biome = BiomeOcean
			case e < cfg.CoastalLevel:
				c.Biome = BiomeCoastal
			case e > cfg.MountainLevel:
				c.Biome = BiomeMountain
			default:
				c.Biome = climateBiome(c.Temperature, c.Moisture)
			}
			if c.IsRiver {
				c.Biome = BiomeRiver
			}
			c.Features = cellFeatures(c, cfg)
		}
	}
}

// climateBiome projects the temperature and moisture factors into the
// desert/savanna/tropical/rainforest, tundra/taiga, grassland/woodland/forest
// matrix.
func climateBiome(temp, moisture float64) Biome {
	tf := smoothStep(-5, 25, temp)
	switch {
	case tf > 0.65: // hot
		switch {
		case moisture < 0.25:
			return BiomeDesert
		case moisture < 0.5:
			return BiomeSavanna
		case moisture < 0.75:
			return BiomeTropicalForest
		default:
			return BiomeRainforest
		}
	case tf < 0.25: // cold
		if moisture < 0.4 {
			return BiomeTundra
		}
		return BiomeTaiga
	default: // temperate
		switch {
		case moisture < 0.35:
			return BiomeGrassland
		case moisture < 0.6:
			return BiomeWoodland
		default:
			return BiomeForest
		}
	}
}

func cellFeatures(c *Cell, cfg Config) []Feature {
	if c.Elevation < cfg.SeaLevel {
		return nil
	}
	var fs []Feature
	switch {
	case c.Elevation > cfg.MountainLevel+0.05:
		fs = append(fs, FeaturePeaks)
	case c.Elevation > cfg.MountainLevel:
		fs = append(fs, FeatureCliffs)
	case c.Elevation > 0.7:
		fs = append(fs, FeatureHills)
	case c.Elevation < cfg.CoastalLevel:
		fs = append(fs, FeatureLowlands)
	}
	if c.IsRiver {
		fs = append(fs, FeatureRiver)
		if c.Elevation > 0.7 {
			fs = append(fs, FeatureSprings)
		}
		if c.Moisture > 0.6 && c.Elevation < 0.6 {
			fs = append(fs, FeatureFertileValleys)
		}
	}
	if c.Moisture > 0.9 {
		fs = append(fs, FeatureMarshes)
	} else if c.Moisture > 0.8 {
		fs = append(fs, FeatureWetlands)
	}
	return fs
}

// --- phase 7: resources ---

type resourceWeight struct {
	res    Resource
	weight float64
}

type resourceTable struct {
	prob  float64
	picks []resourceWeight
}

var biomeResources = map[Biome]resourceTable{
	BiomeCoastal:        {0.20, []resourceWeight{{ResourceFood, 70}, {ResourceStone, 20}, {ResourceGold, 10}}},
	BiomeMountain:       {0.30, []resourceWeight{{ResourceStone, 40}, {ResourceIron, 35}, {ResourceGold, 25}}},
	BiomeDesert:         {0.08, []resourceWeight{{ResourceStone, 50}, {ResourceGold, 30}, {ResourceIron, 20}}},
	BiomeSavanna:        {0.15, []resourceWeight{{ResourceFood, 60}, {ResourceWood, 25}, {ResourceStone, 15}}},
	BiomeTropicalForest: {0.22, []resourceWeight{{ResourceWood, 55}, {ResourceFood, 35}, {ResourceGold, 10}}},
	BiomeRainforest:     {0.25, []resourceWeight{{ResourceWood, 60}, {ResourceFood, 30}, {ResourceGold, 10}}},
	BiomeTundra:         {0.06, []resourceWeight{{ResourceStone, 50}, {ResourceIron, 40}, {ResourceFood, 10}}},
	BiomeTaiga:          {0.15, []resourceWeight{{ResourceWood, 55}, {ResourceFood, 25}, {ResourceIron, 20}}},
	BiomeGrassland:      {0.20, []resourceWeight{{ResourceFood, 70}, {ResourceStone, 15}, {ResourceWood, 10}, {ResourceGold, 5}}},
	BiomeWoodland:       {0.22, []resourceWeight{{ResourceWood, 50}, {ResourceFood, 35}, {ResourceStone, 15}}},
	BiomeForest:         {0.25, []resourceWeight{{ResourceWood, 60}, {ResourceFood, 25}, {ResourceStone, 10}, {ResourceIron, 5}}},
	BiomeRiver:          {0.30, []resourceWeight{{ResourceFood, 75}, {ResourceGold, 15}, {ResourceStone, 10}}},
}

func (g *generator) assignResources(m *Map) {
	for i := range m.Cells {
		c := &m.Cells[i]
		table, ok := biomeResources[c.Biome]
		if !ok {
			continue
		}
		if g.rng.Float64() >= table.prob {
			continue
		}
		// Ore gets heavier at altitude.
		total := 0.0
		weights := make([]float64, len(table.picks))
		for j, p := range table.picks {
			w := p.weight
			if (p.res == ResourceIron || p.res == ResourceGold) && c.Elevation > 0.5 {
				w += (c.Elevation - 0.5) * 40
			}
			weights[j] = w
			total += w
		}
		roll := g.rng.Float64() * total
		for j, p := range table.picks {
			roll -= weights[j]
			if roll <= 0 {
				c.Resources = append(c.Resources, p.res)
				break
			}
		}
	}
}

// --- phase 8: interior smoothing ---

// smoothInterior runs one 3x3 mean over non-coastal cells with elevation in
// [0.35, 0.7] whose neighbors also satisfy that predicate.
func (g *generator) smoothInterior(m *Map) {
	keep := make([]bool, len(m.Cells))
	for i := range m.Cells {
		c := &m.Cells[i]
		keep[i] = c.Biome != BiomeCoastal && c.Elevation >= 0.35 && c.Elevation <= 0.7
	}
	elev := make([]float64, len(m.Cells))
	for i := range m.Cells {
		elev[i] = m.Cells[i].Elevation
	}
	smoothed := boxBlur(elev, m.Width, m.Height, 1, keep)
	for i := range m.Cells {
		if keep[i] {
			m.Cells[i].Elevation = smoothed[i]
		}
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
