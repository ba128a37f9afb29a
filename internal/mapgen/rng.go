package mapgen

import "math"

// Rand is a deterministic 32-bit mixing PRNG (mulberry32). Every random
// decision in map generation flows through one of these so that identical
// seeds produce byte-identical maps.
type Rand struct {
	state uint32
}

// NewRand creates a Rand seeded with the given value.
func NewRand(seed uint32) *Rand {
	return &Rand{state: seed}
}

// Uint32 advances the state and returns the next 32-bit output.
func (r *Rand) Uint32() uint32 {
	r.state += 0x6D2B79F5
	z := r.state
	z = (z ^ (z >> 15)) * (z | 1)
	z ^= z + (z^(z>>7))*(z|61)
	return z ^ (z >> 14)
}

// Float64 returns a uniform float in [0,1).
func (r *Rand) Float64() float64 {
	return float64(r.Uint32()) / 4294967296.0
}

// Range returns a uniform float in [lo, lo+span).
func (r *Rand) Range(lo, span float64) float64 {
	return lo + r.Float64()*span
}

// Intn returns a uniform int in [0,n).
func (r *Rand) Intn(n int) int {
	return int(r.Uint32() % uint32(n))
}

// smoothStep is the classic cubic t*t*(3-2t) on the clamped fraction of x
// between a and b.
func smoothStep(a, b, x float64) float64 {
	if a == b {
		if x < a {
			return 0
		}
		return 1
	}
	t := (x - a) / (b - a)
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return t * t * (3 - 2*t)
}

// gradients are the 12 fixed gradient vectors for the noise lattice.
var gradients = [12][2]float64{
	{1, 1}, {-1, 1}, {1, -1}, {-1, -1},
	{1, 0}, {-1, 0}, {1, 0}, {-1, 0},
	{0, 1}, {0, -1}, {0, 1}, {0, -1},
}

// Noise2D is seeded 2D gradient noise. Values are in [-1,1].
type Noise2D struct {
	perm [512]uint8
}

// NewNoise2D builds a noise source whose 256-entry permutation table is
// shuffled by a PRNG seeded with the given value.
func NewNoise2D(seed uint32) *Noise2D {
	n := &Noise2D{}
	var p [256]uint8
	for i := range p {
		p[i] = uint8(i)
	}
	rng := NewRand(seed)
	for i := 255; i > 0; i-- {
		j := rng.Intn(i + 1)
		p[i], p[j] = p[j], p[i]
	}
	for i := 0; i < 512; i++ {
		n.perm[i] = p[i&255]
	}
	return n
}

func (n *Noise2D) grad(ix, iy int, dx, dy float64) float64 {
	h := n.perm[(int(n.perm[ix&255])+iy)&255] % 12
	g := gradients[h]
	return g[0]*dx + g[1]*dy
}

// At samples the noise field at (x,y). Output is in [-1,1].
func (n *Noise2D) At(x, y float64) float64 {
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	fx := x - float64(x0)
	fy := y - float64(y0)

	v00 := n.grad(x0, y0, fx, fy)
	v10 := n.grad(x0+1, y0, fx-1, fy)
	v01 := n.grad(x0, y0+1, fx, fy-1)
	v11 := n.grad(x0+1, y0+1, fx-1, fy-1)

	sx := smoothStep(0, 1, fx)
	sy := smoothStep(0, 1, fy)

	a := v00 + sx*(v10-v00)
	b := v01 + sx*(v11-v01)
	v := a + sy*(b-a)

	// Unit-length axis gradients bound the raw value to ~[-0.71, 0.71];
	// rescale so the advertised range is [-1,1].
	v *= 1.41421356
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return v
}

// FBM samples fractal brownian motion: octaves of At with doubling
// frequency and persistence-scaled amplitude, normalized by the amplitude
// sum so the result stays in [-1,1].
func (n *Noise2D) FBM(x, y float64, octaves int, frequency, persistence float64) float64 {
	var sum, amp, ampSum float64
	amp = 1
	freq := frequency
	for i := 0; i < octaves; i++ {
		sum += n.At(x*freq, y*freq) * amp
		ampSum += amp
		amp *= persistence
		freq *= 2
	}
	return sum / ampSum
}
