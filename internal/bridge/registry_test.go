package bridge

import (
	"bytes"
	"strings"
	"testing"

	"github.com/splanck/viper/internal/il"
)

func TestConsolePrintWritesToHostStdout(t *testing.T) {
	var out bytes.Buffer
	h := NewHost(&out, strings.NewReader(""))
	r := NewRegistry()

	if _, rep := r.Dispatch(h, "rt_print_i64", []Value{Int(il.I64, 42)}); rep != nil {
		t.Fatalf("unexpected trap: %+v", rep)
	}
	if out.String() != "42" {
		t.Errorf("stdout = %q, want %q", out.String(), "42")
	}
}

func TestStringsConcatAndLen(t *testing.T) {
	h := NewHost(&bytes.Buffer{}, strings.NewReader(""))
	r := NewRegistry()

	v, rep := r.Dispatch(h, "rt_concat", []Value{Str("foo"), Str("bar")})
	if rep != nil || v.S != "foobar" {
		t.Fatalf("concat = %+v, %+v", v, rep)
	}
	v, rep = r.Dispatch(h, "rt_len", []Value{Str("foobar")})
	if rep != nil || v.I != 6 {
		t.Fatalf("len = %+v, %+v", v, rep)
	}
}

func TestMidOutOfRangeTraps(t *testing.T) {
	h := NewHost(&bytes.Buffer{}, strings.NewReader(""))
	r := NewRegistry()

	_, rep := r.Dispatch(h, "rt_mid", []Value{Str("abc"), Int(il.I64, 10), Int(il.I64, 1)})
	if rep == nil {
		t.Fatalf("expected a trap for an out-of-range mid")
	}
	if rep.Code != "BadIndex" {
		t.Errorf("trap code = %s, want BadIndex", rep.Code)
	}
}

func TestConvertToIntRejectsMalformedInput(t *testing.T) {
	h := NewHost(&bytes.Buffer{}, strings.NewReader(""))
	r := NewRegistry()

	_, rep := r.Dispatch(h, "rt_to_int", []Value{Str("not a number")})
	if rep == nil || rep.Code != "InvalidCast" {
		t.Fatalf("Dispatch(rt_to_int, \"not a number\") = %+v, want InvalidCast trap", rep)
	}
}

func TestMemoryAllocReturnsDistinctAddresses(t *testing.T) {
	h := NewHost(&bytes.Buffer{}, strings.NewReader(""))
	r := NewRegistry()

	a, _ := r.Dispatch(h, "rt_alloc", []Value{Int(il.I64, 8)})
	b, _ := r.Dispatch(h, "rt_alloc", []Value{Int(il.I64, 8)})
	if a.I == b.I {
		t.Errorf("two allocations returned the same address %d", a.I)
	}
}
