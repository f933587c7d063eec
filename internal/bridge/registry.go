package bridge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/splanck/viper/internal/diag"
	"github.com/splanck/viper/internal/il"
)

// Func is one bridge-side extern implementation: it receives already
// type-checked, already-marshaled argument Values and returns a result
// Value plus an optional trap signal. A returned TrapKind models "the
// runtime setting a trap flag that the bridge observes on return" (§4.9):
// the VM is responsible for turning it into a full diag trap record with
// ip/line, since the bridge has no notion of VM program position.
type Func func(h *Host, args []Value) (Value, string)

// Registry maps a stable rt_* symbol to its Go implementation. Grouped by
// namespace (console, strings, convert, memory), following the teacher's
// builtins.Registry layout of one register*() function per concern.
type Registry struct {
	funcs map[string]Func
}

// NewRegistry builds the registry with every core ABI extern (§6) wired
// in, plus the trap-flag extern the pending-trap protocol depends on.
func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]Func)}
	r.registerConsole()
	r.registerStrings()
	r.registerConvert()
	r.registerMemory()
	r.registerRuntime()
	return r
}

// Lookup resolves a symbol to its Go implementation.
func (r *Registry) Lookup(symbol string) (Func, bool) {
	f, ok := r.funcs[symbol]
	return f, ok
}

// Dispatch invokes symbol with args against host, translating a trap
// signal into an error the VM can render. Arity/type agreement with the
// declared signature is the caller's responsibility (the verifier already
// checked it against the rtname catalog at compile time).
func (r *Registry) Dispatch(h *Host, symbol string, args []Value) (Value, *diag.Report) {
	f, ok := r.funcs[symbol]
	if !ok {
		return Value{}, diag.New("vm", diag.TrapInvalidOperation, fmt.Sprintf("unresolved runtime symbol %s", symbol))
	}
	result, trapKind := f(h, args)
	if trapKind != "" {
		return Value{}, diag.New("vm", trapKind, fmt.Sprintf("%s trapped", symbol))
	}
	return result, nil
}

func (r *Registry) register(symbol string, f Func) {
	r.funcs[symbol] = f
}

func (r *Registry) registerConsole() {
	r.register("rt_print_i64", func(h *Host, args []Value) (Value, string) {
		fmt.Fprintf(h.Stdout, "%d", args[0].I)
		return Void(), ""
	})
	r.register("rt_print_f64", func(h *Host, args []Value) (Value, string) {
		fmt.Fprintf(h.Stdout, "%g", args[0].F)
		return Void(), ""
	})
	r.register("rt_print_str", func(h *Host, args []Value) (Value, string) {
		fmt.Fprint(h.Stdout, args[0].S)
		return Void(), ""
	})
	r.register("rt_read_line", func(h *Host, args []Value) (Value, string) {
		line, err := h.Stdin.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if err != nil && line == "" {
			return Str(""), ""
		}
		return Str(line), ""
	})
}

func (r *Registry) registerStrings() {
	r.register("rt_concat", func(h *Host, args []Value) (Value, string) {
		return Str(args[0].S + args[1].S), ""
	})
	r.register("rt_len", func(h *Host, args []Value) (Value, string) {
		return Int(il.I64, int64(len(args[0].S))), ""
	})
	r.register("rt_mid", func(h *Host, args []Value) (Value, string) {
		s, start, length := args[0].S, args[1].I, args[2].I
		if start < 0 || length < 0 || start > int64(len(s)) {
			return Value{}, diag.TrapBadIndex
		}
		end := start + length
		if end > int64(len(s)) {
			end = int64(len(s))
		}
		return Str(s[start:end]), ""
	})
	r.register("rt_str_from_int", func(h *Host, args []Value) (Value, string) {
		return Str(strconv.FormatInt(args[0].I, 10)), ""
	})
	r.register("rt_str_from_double", func(h *Host, args []Value) (Value, string) {
		return Str(strconv.FormatFloat(args[0].F, 'g', -1, 64)), ""
	})
}

func (r *Registry) registerConvert() {
	r.register("rt_to_int", func(h *Host, args []Value) (Value, string) {
		v, err := strconv.ParseInt(strings.TrimSpace(args[0].S), 10, 64)
		if err != nil {
			return Value{}, diag.TrapInvalidCast
		}
		return Int(il.I64, v), ""
	})
	r.register("rt_to_double", func(h *Host, args []Value) (Value, string) {
		v, err := strconv.ParseFloat(strings.TrimSpace(args[0].S), 64)
		if err != nil {
			return Value{}, diag.TrapInvalidCast
		}
		return Float(v), ""
	})
}

func (r *Registry) registerMemory() {
	r.register("rt_alloc", func(h *Host, args []Value) (Value, string) {
		addr, ok := h.Heap.Alloc(args[0].I)
		if !ok {
			return Value{}, diag.TrapInvalidOperation
		}
		return Ptr(addr), ""
	})
}

func (r *Registry) registerRuntime() {
	r.register("rt_trap_flag", func(h *Host, args []Value) (Value, string) {
		return Int(il.I32, 0), ""
	})
}
