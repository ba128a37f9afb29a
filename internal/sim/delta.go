package sim

import (
	"encoding/binary"
	"errors"

	"github.com/greylag/landgrab/server/internal/geo"
	"github.com/greylag/landgrab/server/internal/model"
)

var ErrBadPackedDelta = errors.New("malformed packed delta")

// Diff computes the territory delta from old to new: add = new \ old,
// sub = old \ new, both in packed-coordinate order.
func Diff(old, cur geo.Set) model.Delta {
	add := geo.NewSet()
	sub := geo.NewSet()
	for p := range cur {
		if _, ok := old[p]; !ok {
			add.AddPacked(p)
		}
	}
	for p := range old {
		if _, ok := cur[p]; !ok {
			sub.AddPacked(p)
		}
	}
	return model.Delta{Add: add.ToXY(), Sub: sub.ToXY()}
}

// ApplyDelta applies (sub, then add) to a territory snapshot, returning a
// new set. Idempotent when add is disjoint from t and sub is contained in t.
func ApplyDelta(t geo.Set, d model.Delta) geo.Set {
	out := t.Clone()
	for i := range d.Sub.X {
		out.Remove(d.Sub.X[i], d.Sub.Y[i])
	}
	for i := range d.Add.X {
		out.Add(d.Add.X[i], d.Add.Y[i])
	}
	return out
}

// PackDelta encodes a delta as two varint streams: for each of add and sub,
// a count followed by the first packed coordinate and ascending gaps. The
// packed form is an optional per-connection negotiation; the paired-array
// form is the default.
func PackDelta(d model.Delta) []byte {
	buf := make([]byte, 0, 8+len(d.Add.X)*2+len(d.Sub.X)*2)
	buf = packCoords(buf, d.Add)
	buf = packCoords(buf, d.Sub)
	return buf
}

func packCoords(buf []byte, l geo.XYLists) []byte {
	packed := geo.FromXY(l).Packed()
	buf = binary.AppendUvarint(buf, uint64(len(packed)))
	prev := uint64(0)
	for i, p := range packed {
		v := uint64(p)
		if i == 0 {
			buf = binary.AppendUvarint(buf, v)
		} else {
			buf = binary.AppendUvarint(buf, v-prev)
		}
		prev = v
	}
	return buf
}

// UnpackDelta decodes the varint form back to paired arrays.
func UnpackDelta(b []byte) (model.Delta, error) {
	add, rest, err := unpackCoords(b)
	if err != nil {
		return model.Delta{}, err
	}
	sub, rest, err := unpackCoords(rest)
	if err != nil {
		return model.Delta{}, err
	}
	if len(rest) != 0 {
		return model.Delta{}, ErrBadPackedDelta
	}
	return model.Delta{Add: add, Sub: sub}, nil
}

func unpackCoords(b []byte) (geo.XYLists, []byte, error) {
	count, n := binary.Uvarint(b)
	if n <= 0 {
		return geo.XYLists{}, nil, ErrBadPackedDelta
	}
	b = b[n:]
	out := geo.XYLists{X: make([]int, 0, count), Y: make([]int, 0, count)}
	prev := uint64(0)
	for i := uint64(0); i < count; i++ {
		v, n := binary.Uvarint(b)
		if n <= 0 {
			return geo.XYLists{}, nil, ErrBadPackedDelta
		}
		b = b[n:]
		if i > 0 {
			v += prev
		}
		if v > 0xffffffff {
			return geo.XYLists{}, nil, ErrBadPackedDelta
		}
		prev = v
		x, y := geo.Unpack(uint32(v))
		out.X = append(out.X, x)
		out.Y = append(out.Y, y)
	}
	return out, b, nil
}
