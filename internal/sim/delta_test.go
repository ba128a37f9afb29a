package sim

import (
	"reflect"
	"testing"

	"github.com/greylag/landgrab/server/internal/geo"
)

func setOf(coords ...geo.Coord) geo.Set {
	s := geo.NewSet()
	for _, c := range coords {
		s.Add(c.X, c.Y)
	}
	return s
}

func TestDiffApplyRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		old, cur geo.Set
	}{
		{"growth", setOf(geo.Coord{X: 1, Y: 1}), setOf(geo.Coord{X: 1, Y: 1}, geo.Coord{X: 2, Y: 1}, geo.Coord{X: 1, Y: 2})},
		{"loss", setOf(geo.Coord{X: 1, Y: 1}, geo.Coord{X: 2, Y: 1}), setOf(geo.Coord{X: 1, Y: 1})},
		{"churn", setOf(geo.Coord{X: 0, Y: 0}, geo.Coord{X: 5, Y: 5}), setOf(geo.Coord{X: 5, Y: 5}, geo.Coord{X: 9, Y: 9})},
		{"identical", setOf(geo.Coord{X: 3, Y: 3}), setOf(geo.Coord{X: 3, Y: 3})},
		{"from empty", geo.NewSet(), setOf(geo.Coord{X: 7, Y: 7})},
		{"to empty", setOf(geo.Coord{X: 7, Y: 7}), geo.NewSet()},
		{"both empty", geo.NewSet(), geo.NewSet()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Diff(tt.old, tt.cur)
			got := ApplyDelta(tt.old, d)
			if !reflect.DeepEqual(got, tt.cur) {
				t.Errorf("ApplyDelta(old, Diff(old,cur)) = %v, want %v", got, tt.cur)
			}
		})
	}
}

func TestDiffEmptyOnNoChange(t *testing.T) {
	s := setOf(geo.Coord{X: 1, Y: 2}, geo.Coord{X: 3, Y: 4})
	d := Diff(s, s)
	if len(d.Add.X) != 0 || len(d.Sub.X) != 0 {
		t.Errorf("diff of identical sets = %+v, want empty", d)
	}
}

func TestApplyDeltaDoesNotMutateInput(t *testing.T) {
	old := setOf(geo.Coord{X: 1, Y: 1})
	cur := setOf(geo.Coord{X: 2, Y: 2})
	ApplyDelta(old, Diff(old, cur))
	if !old.Has(1, 1) || old.Has(2, 2) {
		t.Error("ApplyDelta mutated its input set")
	}
}

func TestPackUnpackDeltaRoundTrip(t *testing.T) {
	old := setOf(geo.Coord{X: 10, Y: 10}, geo.Coord{X: 11, Y: 10}, geo.Coord{X: 400, Y: 2})
	cur := setOf(geo.Coord{X: 10, Y: 10}, geo.Coord{X: 12, Y: 10}, geo.Coord{X: 0, Y: 0}, geo.Coord{X: 65535, Y: 65535})

	d := Diff(old, cur)
	packed := PackDelta(d)
	back, err := UnpackDelta(packed)
	if err != nil {
		t.Fatalf("UnpackDelta: %v", err)
	}
	if !reflect.DeepEqual(geo.FromXY(back.Add), geo.FromXY(d.Add)) {
		t.Errorf("add = %+v, want %+v", back.Add, d.Add)
	}
	if !reflect.DeepEqual(geo.FromXY(back.Sub), geo.FromXY(d.Sub)) {
		t.Errorf("sub = %+v, want %+v", back.Sub, d.Sub)
	}

	// Applying the decoded delta yields the same target territory.
	if got := ApplyDelta(old, back); !reflect.DeepEqual(got, cur) {
		t.Errorf("ApplyDelta with decoded delta = %v, want %v", got, cur)
	}
}

func TestPackEmptyDelta(t *testing.T) {
	d := Diff(geo.NewSet(), geo.NewSet())
	back, err := UnpackDelta(PackDelta(d))
	if err != nil {
		t.Fatalf("UnpackDelta: %v", err)
	}
	if len(back.Add.X) != 0 || len(back.Sub.X) != 0 {
		t.Errorf("decoded empty delta = %+v", back)
	}
}

func TestUnpackDeltaRejectsMalformed(t *testing.T) {
	good := PackDelta(Diff(geo.NewSet(), setOf(geo.Coord{X: 3, Y: 3})))

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated count", good[:1]},
		{"truncated coords", good[:len(good)-1]},
		{"trailing bytes", append(append([]byte{}, good...), 0x01)},
		{"count without payload", []byte{0x05}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := UnpackDelta(tt.data); err != ErrBadPackedDelta {
				t.Errorf("err = %v, want ErrBadPackedDelta", err)
			}
		})
	}
}
