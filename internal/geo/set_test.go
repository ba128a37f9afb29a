package geo

import (
	"reflect"
	"testing"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	tests := []struct{ x, y int }{
		{0, 0},
		{1, 0},
		{0, 1},
		{123, 456},
		{65535, 65535},
	}
	for _, tt := range tests {
		x, y := Unpack(Pack(tt.x, tt.y))
		if x != tt.x || y != tt.y {
			t.Errorf("Unpack(Pack(%d,%d)) = (%d,%d)", tt.x, tt.y, x, y)
		}
	}
}

func TestSetOperations(t *testing.T) {
	s := NewSet()
	if s.Len() != 0 {
		t.Fatalf("new set Len = %d, want 0", s.Len())
	}
	s.Add(3, 4)
	s.Add(3, 4)
	s.Add(5, 6)
	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Len())
	}
	if !s.Has(3, 4) || !s.Has(5, 6) || s.Has(4, 3) {
		t.Error("Has gave wrong membership")
	}
	s.Remove(3, 4)
	if s.Has(3, 4) || s.Len() != 1 {
		t.Error("Remove did not delete the cell")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	s := NewSet()
	s.Add(1, 1)
	cp := s.Clone()
	cp.Add(2, 2)
	if s.Has(2, 2) {
		t.Error("mutating the clone changed the original")
	}
}

func TestPackedIsSorted(t *testing.T) {
	s := NewSet()
	for _, c := range []Coord{{9, 9}, {0, 0}, {5, 1}, {1, 5}} {
		s.Add(c.X, c.Y)
	}
	packed := s.Packed()
	for i := 1; i < len(packed); i++ {
		if packed[i-1] >= packed[i] {
			t.Fatalf("Packed not strictly ascending at %d: %v", i, packed)
		}
	}
}

func TestToXYFromXYRoundTrip(t *testing.T) {
	s := NewSet()
	s.Add(2, 3)
	s.Add(7, 1)
	s.Add(0, 0)

	l := s.ToXY()
	if len(l.X) != 3 || len(l.Y) != 3 {
		t.Fatalf("ToXY lengths = %d,%d, want 3,3", len(l.X), len(l.Y))
	}
	back := FromXY(l)
	if !reflect.DeepEqual(s, back) {
		t.Errorf("FromXY(ToXY(s)) = %v, want %v", back, s)
	}
}

func TestToXYEmptyIsNonNil(t *testing.T) {
	l := NewSet().ToXY()
	if l.X == nil || l.Y == nil {
		t.Error("empty set should produce empty, non-nil slices")
	}
}
