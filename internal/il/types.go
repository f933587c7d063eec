// Package il defines the in-memory representation of the Viper intermediate
// language: the primitive type lattice, SSA values, the module/function/
// block/instruction graph, and the opcode catalog that the verifier, the
// VM, and the optimizer passes all consult as their single source of truth.
package il

import "fmt"

// Type is the closed primitive type sum. There is no user-defined type
// construction at the IL level; frontends lower their own type systems onto
// this lattice.
type Type uint8

const (
	Void Type = iota
	I1
	I16
	I32
	I64
	F64
	Ptr
	Str
	Error
	ResumeTok
)

var typeNames = [...]string{
	Void:      "void",
	I1:        "i1",
	I16:       "i16",
	I32:       "i32",
	I64:       "i64",
	F64:       "f64",
	Ptr:       "ptr",
	Str:       "str",
	Error:     "error",
	ResumeTok: "resumetok",
}

func (t Type) String() string {
	if int(t) < len(typeNames) && typeNames[t] != "" {
		return typeNames[t]
	}
	return fmt.Sprintf("type#%d", uint8(t))
}

// ParseType maps a textual mnemonic to a Type. Used by the IL parser.
func ParseType(s string) (Type, bool) {
	for i, n := range typeNames {
		if n == s {
			return Type(i), true
		}
	}
	return Void, false
}

// IsOpaque reports whether the type is a runtime-managed handle (str, error,
// resumetok) rather than a value the VM manipulates directly as bits.
func (t Type) IsOpaque() bool {
	return t == Str || t == Error || t == ResumeTok
}

// Size returns the in-memory size in bytes of a value of this type, as
// stored in frame/alloca storage. Void has no size.
func (t Type) Size() int {
	switch t {
	case Void:
		return 0
	case I1:
		return 1
	case I16:
		return 2
	case I32:
		return 4
	case I64, F64, Ptr, Str, Error, ResumeTok:
		return 8
	}
	return 0
}

// Align returns the required alignment in bytes. Only I1 may sit at
// arbitrary byte offsets; every other type requires natural alignment, and
// I64/F64/Ptr/Str additionally require 8-byte alignment per §3.
func (t Type) Align() int {
	switch t {
	case I1:
		return 1
	case I16:
		return 2
	case I32:
		return 4
	default:
		return 8
	}
}

// RequiresEightByteAlignment reports whether t is one of the types the VM's
// load/store trap-on-misalignment check applies to.
func (t Type) RequiresEightByteAlignment() bool {
	switch t {
	case I64, F64, Ptr, Str:
		return true
	}
	return false
}
