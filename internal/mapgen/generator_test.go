package mapgen

import (
	"context"
	"testing"
)

func testMap(t *testing.T, w, h int, seed uint32) *Map {
	t.Helper()
	m, err := Generate(context.Background(), w, h, 3, seed, Config{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return m
}

func TestGenerateRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	if _, err := Generate(ctx, 0, 100, 3, 1, Config{}); err != ErrBadDimensions {
		t.Errorf("zero width: err = %v, want ErrBadDimensions", err)
	}
	if _, err := Generate(ctx, 100, -1, 3, 1, Config{}); err != ErrBadDimensions {
		t.Errorf("negative height: err = %v, want ErrBadDimensions", err)
	}
	if _, err := Generate(ctx, 100, 100, 0, 1, Config{}); err != ErrBadBlobCount {
		t.Errorf("zero blobs: err = %v, want ErrBadBlobCount", err)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	a := testMap(t, 80, 80, 777)
	b := testMap(t, 80, 80, 777)
	if len(a.Cells) != len(b.Cells) {
		t.Fatalf("cell counts differ: %d vs %d", len(a.Cells), len(b.Cells))
	}
	for i := range a.Cells {
		ca, cb := a.Cells[i], b.Cells[i]
		if ca.Elevation != cb.Elevation || ca.Biome != cb.Biome || ca.IsRiver != cb.IsRiver ||
			ca.Moisture != cb.Moisture || ca.Temperature != cb.Temperature {
			t.Fatalf("cell %d differs between identical seeds", i)
		}
	}
}

func TestGenerateSeedsDiffer(t *testing.T) {
	a := testMap(t, 80, 80, 1)
	b := testMap(t, 80, 80, 2)
	same := 0
	for i := range a.Cells {
		if a.Cells[i].Elevation == b.Cells[i].Elevation {
			same++
		}
	}
	if same == len(a.Cells) {
		t.Error("different seeds produced identical elevation fields")
	}
}

func TestElevationBoundsAndBorder(t *testing.T) {
	m := testMap(t, 100, 100, 99)
	for i := range m.Cells {
		e := m.Cells[i].Elevation
		if e < 0 || e > 1 {
			t.Fatalf("cell %d elevation %v out of [0,1]", i, e)
		}
	}
	// The border fade guarantees open water on the outermost ring.
	for x := 0; x < m.Width; x++ {
		if m.IsLand(x, 0) || m.IsLand(x, m.Height-1) {
			t.Fatalf("border cell (%d, edge) is land", x)
		}
	}
	for y := 0; y < m.Height; y++ {
		if m.IsLand(0, y) || m.IsLand(m.Width-1, y) {
			t.Fatalf("border cell (edge, %d) is land", y)
		}
	}
}

// TestBorderElevationExactlyZero covers the peak guarantee and bridge
// passes: both lift elevation after the border fade, and neither may touch
// the outer ring. Small maps force the peak dome near the edges.
func TestBorderElevationExactlyZero(t *testing.T) {
	for _, dim := range []struct{ w, h int }{{1, 1}, {3, 3}, {8, 8}, {100, 100}} {
		m := testMap(t, dim.w, dim.h, 9)
		for i := range m.Cells {
			c := &m.Cells[i]
			if c.X != 0 && c.Y != 0 && c.X != m.Width-1 && c.Y != m.Height-1 {
				continue
			}
			if c.Elevation != 0 {
				t.Fatalf("%dx%d: border cell (%d,%d) elevation %v, want 0",
					dim.w, dim.h, c.X, c.Y, c.Elevation)
			}
		}
	}
}

func TestGenerateProducesLandAndPeak(t *testing.T) {
	m := testMap(t, 100, 100, 4242)
	if m.LandCells() == 0 {
		t.Fatal("map has no land")
	}
	hasPeak := false
	for i := range m.Cells {
		if m.Cells[i].Elevation >= m.Config.MountainLevel {
			hasPeak = true
			break
		}
	}
	if !hasPeak {
		t.Error("map has no mountain-level cell")
	}
}

// TestLandConnectivity verifies connectivity repair: nearly all land belongs
// to one 4-connected component.
func TestLandConnectivity(t *testing.T) {
	m := testMap(t, 120, 120, 31337)
	total := m.LandCells()
	if total == 0 {
		t.Fatal("map has no land")
	}

	// BFS from the first land cell of the biggest component. Label all
	// components and measure the largest.
	labels := make([]int, m.Width*m.Height)
	next := 1
	sizes := map[int]int{}
	for start := range m.Cells {
		c := &m.Cells[start]
		if c.Elevation < m.Config.SeaLevel || labels[start] != 0 {
			continue
		}
		queue := []int{start}
		labels[start] = next
		size := 0
		for len(queue) > 0 {
			idx := queue[0]
			queue = queue[1:]
			size++
			x, y := idx%m.Width, idx/m.Width
			for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
				nx, ny := x+d[0], y+d[1]
				if !m.InBounds(nx, ny) || !m.IsLand(nx, ny) {
					continue
				}
				ni := ny*m.Width + nx
				if labels[ni] == 0 {
					labels[ni] = next
					queue = append(queue, ni)
				}
			}
		}
		sizes[next] = size
		next++
	}

	largest := 0
	for _, s := range sizes {
		if s > largest {
			largest = s
		}
	}
	if frac := float64(largest) / float64(total); frac < 0.99 {
		t.Errorf("largest land component holds %.3f of land, want >= 0.99", frac)
	}
}

func TestRiversAreLandAndBiomeConsistent(t *testing.T) {
	m := testMap(t, 120, 120, 2024)
	for i := range m.Cells {
		c := &m.Cells[i]
		if c.IsRiver {
			if c.Elevation < m.Config.SeaLevel {
				t.Fatalf("river cell (%d,%d) is below sea level", c.X, c.Y)
			}
			if c.Biome != BiomeRiver {
				t.Fatalf("river cell (%d,%d) has biome %s", c.X, c.Y, c.Biome)
			}
		} else if c.Biome == BiomeRiver {
			t.Fatalf("cell (%d,%d) has RIVER biome without river flag", c.X, c.Y)
		}
	}
}

func TestBiomesAssignedEverywhere(t *testing.T) {
	m := testMap(t, 80, 80, 55)
	for i := range m.Cells {
		c := &m.Cells[i]
		if int(c.Biome) >= len(BiomeNames) {
			t.Fatalf("cell (%d,%d) has out-of-range biome %d", c.X, c.Y, c.Biome)
		}
		if c.Elevation < m.Config.SeaLevel && c.Biome != BiomeOcean {
			t.Fatalf("water cell (%d,%d) has biome %s", c.X, c.Y, c.Biome)
		}
	}
}

func TestTinyMapDoesNotPanic(t *testing.T) {
	m, err := Generate(context.Background(), 1, 1, 1, 9, Config{})
	if err != nil {
		t.Fatalf("Generate 1x1: %v", err)
	}
	if len(m.Cells) != 1 {
		t.Fatalf("1x1 map has %d cells", len(m.Cells))
	}
}

func TestGenerateHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Generate(ctx, 200, 200, 3, 1, Config{}); err == nil {
		t.Error("expected error from canceled context")
	}
}
