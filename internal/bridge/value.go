// Package bridge is the Runtime Bridge (C9, §4.9): a type-directed thunk
// layer dispatching VM calls to Go-implemented externs. There is no cgo in
// this tree, so the "C ABI" is simulated — a registry of Go functions
// keyed by stable rt_* symbol, each declaring the same parameter/return
// shape a real C function would, marshaling VM values in and out exactly
// as a real bridge would marshal across the language boundary.
package bridge

import (
	"fmt"

	"github.com/splanck/viper/internal/il"
)

// Value is the bridge's wire representation of a VM value crossing the
// extern boundary. Integer-family types travel in I (sign-extended to
// int64, matching §4.9's "integer types to the appropriate C integer
// width with sign-extension"); f64 travels in F; str and ptr travel as
// opaque handles the bridge never retains or releases — str as a Go
// string value, ptr as a raw address into the VM's own address space.
type Value struct {
	Typ il.Type
	I   int64
	F   float64
	S   string
	Err *ErrorRecord
}

// ErrorRecord is the reified trap record an error-typed value carries:
// {kind, code, ip, line} per §4.8's trap model. kind is one of the closed
// taxonomy names (DivideByZero, Overflow, ...); code matches err.get_code's
// declared i32 result — the catalog has no instruction that lets a
// frontend set it, so it is always 0 today and exists for forward
// compatibility with a future user-defined sub-code.
type ErrorRecord struct {
	Kind string
	Code int32
	IP   int64
	Line int32
}

func Int(t il.Type, v int64) Value { return Value{Typ: t, I: v} }
func Float(v float64) Value        { return Value{Typ: il.F64, F: v} }
func Str(s string) Value           { return Value{Typ: il.Str, S: s} }
func Ptr(addr int64) Value         { return Value{Typ: il.Ptr, I: addr} }
func Void() Value                  { return Value{Typ: il.Void} }
func ErrVal(rec *ErrorRecord) Value { return Value{Typ: il.Error, Err: rec} }

func (v Value) String() string {
	switch v.Typ {
	case il.F64:
		return fmt.Sprintf("%g", v.F)
	case il.Str:
		return v.S
	case il.Ptr:
		return fmt.Sprintf("0x%x", v.I)
	case il.Error:
		if v.Err == nil {
			return "<error>"
		}
		return fmt.Sprintf("%s(%d)", v.Err.Kind, v.Err.Code)
	default:
		return fmt.Sprintf("%d", v.I)
	}
}
