package vm

import (
	"encoding/binary"
	"math"

	"github.com/splanck/viper/internal/bridge"
	"github.com/splanck/viper/internal/il"
)

// handleTable boxes opaque-typed values (str, error, resumetok) behind a
// small integer handle so they can live in the byte-addressable arena
// alongside scalar types, the same way a real ABI's "opaque pointer"
// actually addresses a boxed runtime object rather than inline bytes.
type handleTable struct {
	next   int64
	values map[int64]bridge.Value
}

func newHandleTable() *handleTable {
	return &handleTable{next: 1, values: make(map[int64]bridge.Value)}
}

func (h *handleTable) box(v bridge.Value) int64 {
	id := h.next
	h.next++
	h.values[id] = v
	return id
}

func (h *handleTable) unbox(id int64) bridge.Value {
	if id == 0 {
		return bridge.Value{}
	}
	return h.values[id]
}

// encode writes v's bit pattern for type t into a fresh byte slice of
// t.Size() bytes.
func encode(t il.Type, v bridge.Value, h *handleTable) []byte {
	buf := make([]byte, t.Size())
	switch t {
	case il.I1:
		if v.I != 0 {
			buf[0] = 1
		}
	case il.I16:
		binary.LittleEndian.PutUint16(buf, uint16(v.I))
	case il.I32:
		binary.LittleEndian.PutUint32(buf, uint32(v.I))
	case il.I64:
		binary.LittleEndian.PutUint64(buf, uint64(v.I))
	case il.F64:
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v.F))
	case il.Ptr:
		binary.LittleEndian.PutUint64(buf, uint64(v.I))
	case il.Str, il.Error, il.ResumeTok:
		binary.LittleEndian.PutUint64(buf, uint64(h.box(v)))
	}
	return buf
}

// decode is encode's inverse, given t.Size() bytes previously written by
// encode for the same type.
func decode(t il.Type, buf []byte, h *handleTable) bridge.Value {
	switch t {
	case il.I1:
		return bridge.Int(t, int64(buf[0]))
	case il.I16:
		return bridge.Int(t, int64(int16(binary.LittleEndian.Uint16(buf))))
	case il.I32:
		return bridge.Int(t, int64(int32(binary.LittleEndian.Uint32(buf))))
	case il.I64:
		return bridge.Int(t, int64(binary.LittleEndian.Uint64(buf)))
	case il.F64:
		return bridge.Float(math.Float64frombits(binary.LittleEndian.Uint64(buf)))
	case il.Ptr:
		return bridge.Ptr(int64(binary.LittleEndian.Uint64(buf)))
	case il.Str, il.Error, il.ResumeTok:
		v := h.unbox(int64(binary.LittleEndian.Uint64(buf)))
		v.Typ = t
		return v
	default:
		return bridge.Value{}
	}
}
