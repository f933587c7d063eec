package il

import (
	"fmt"
	"strings"
)

// ValueKind discriminates the tagged union that is an SSA Value.
type ValueKind uint8

const (
	ValTemp ValueKind = iota
	ValConstInt
	ValConstFloat
	ValConstBool
	ValConstNull
	ValGlobal
	ValBlockAddr
)

// Value is the SSA operand/result representation. It is intentionally a
// small trivial payload — construction never allocates on the Value itself;
// global/block-address references carry an interned name rather than a
// pointer into the module graph, so Values remain comparable with ==.
type Value struct {
	Kind ValueKind

	// ValTemp
	Temp TempID

	// ValConstInt
	Int int64

	// ValConstFloat
	Float float64

	// ValConstBool
	Bool bool

	// ValGlobal, ValBlockAddr(func)
	Sym string

	// ValBlockAddr(block within Sym's function)
	Block string
}

// TempID identifies an SSA temporary, dense and unique within its defining
// function.
type TempID uint32

// Type reports the static type of a constant value. Temporaries carry their
// type from their defining instruction's declared result type and are not
// self-describing; callers must consult that instruction.
func (v Value) Type() (Type, bool) {
	switch v.Kind {
	case ValConstInt:
		return I64, true
	case ValConstFloat:
		return F64, true
	case ValConstBool:
		return I1, true
	case ValConstNull:
		return Ptr, true
	default:
		return Void, false
	}
}

func (v Value) String() string {
	switch v.Kind {
	case ValTemp:
		return fmt.Sprintf("%%%d", v.Temp)
	case ValConstInt:
		return fmt.Sprintf("%d", v.Int)
	case ValConstFloat:
		s := fmt.Sprintf("%g", v.Float)
		if !strings.ContainsAny(s, ".eEnN") {
			s += ".0" // an integral float must not re-parse as an integer literal
		}
		return s
	case ValConstBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case ValConstNull:
		return "null"
	case ValGlobal:
		return "@" + v.Sym
	case ValBlockAddr:
		return "@" + v.Sym + "/^" + v.Block
	default:
		return "<invalid value>"
	}
}

// Equal reports whether two Values have identical kind and payload, per §4.1.
func (v Value) Equal(o Value) bool {
	return v == o
}

func Temp(id TempID) Value           { return Value{Kind: ValTemp, Temp: id} }
func ConstInt(i int64) Value         { return Value{Kind: ValConstInt, Int: i} }
func ConstFloat(f float64) Value     { return Value{Kind: ValConstFloat, Float: f} }
func ConstBool(b bool) Value         { return Value{Kind: ValConstBool, Bool: b} }
func ConstNull() Value               { return Value{Kind: ValConstNull} }
func GlobalRef(name string) Value    { return Value{Kind: ValGlobal, Sym: name} }
func BlockAddr(fn, blk string) Value { return Value{Kind: ValBlockAddr, Sym: fn, Block: blk} }
