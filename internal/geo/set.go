// Package geo provides packed-coordinate cell sets used for nation
// territories and the delta math between them.
package geo

import "sort"

// Coord is a cell position on the map grid.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Pack encodes (x,y) into a single uint32. Maps are capped at 65535
// cells per axis, so 16 bits per coordinate is enough.
func Pack(x, y int) uint32 {
	return uint32(x)<<16 | uint32(y)&0xffff
}

// Unpack decodes a packed coordinate.
func Unpack(p uint32) (x, y int) {
	return int(p >> 16), int(p & 0xffff)
}

// Set is a set of packed cell coordinates.
type Set map[uint32]struct{}

// NewSet creates an empty Set.
func NewSet() Set {
	return make(Set)
}

// Add inserts (x,y).
func (s Set) Add(x, y int) {
	s[Pack(x, y)] = struct{}{}
}

// AddPacked inserts an already-packed coordinate.
func (s Set) AddPacked(p uint32) {
	s[p] = struct{}{}
}

// Has reports whether (x,y) is in the set.
func (s Set) Has(x, y int) bool {
	_, ok := s[Pack(x, y)]
	return ok
}

// Remove deletes (x,y) if present.
func (s Set) Remove(x, y int) {
	delete(s, Pack(x, y))
}

// Len returns the number of cells.
func (s Set) Len() int {
	return len(s)
}

// Clone returns a copy of the set.
func (s Set) Clone() Set {
	cp := make(Set, len(s))
	for p := range s {
		cp[p] = struct{}{}
	}
	return cp
}

// Packed returns the packed coordinates in ascending order.
// Sorting keeps broadcasts and tests deterministic.
func (s Set) Packed() []uint32 {
	out := make([]uint32, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// XYLists is the wire form of a coordinate set: two parallel arrays.
type XYLists struct {
	X []int `json:"x"`
	Y []int `json:"y"`
}

// ToXY materializes the set as parallel coordinate arrays in packed order.
// Empty sets produce empty (non-nil) slices so they serialize as [] not null.
func (s Set) ToXY() XYLists {
	packed := s.Packed()
	xs := make([]int, len(packed))
	ys := make([]int, len(packed))
	for i, p := range packed {
		xs[i], ys[i] = Unpack(p)
	}
	return XYLists{X: xs, Y: ys}
}

// FromXY builds a Set from parallel coordinate arrays.
func FromXY(l XYLists) Set {
	s := make(Set, len(l.X))
	for i := range l.X {
		s.Add(l.X[i], l.Y[i])
	}
	return s
}
