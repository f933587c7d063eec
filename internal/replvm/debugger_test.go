package replvm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/splanck/viper/internal/ast"
	"github.com/splanck/viper/internal/bridge"
	"github.com/splanck/viper/internal/il"
	"github.com/splanck/viper/internal/ilbuilder"
	"github.com/splanck/viper/internal/vm"
)

// buildModule constructs: double(x) = x + x; main() = ret double(21).
func buildModule(t *testing.T) *il.Module {
	t.Helper()
	b := ilbuilder.New(il.Version{Major: 0, Minor: 1})

	double, err := b.StartFunction("double", il.I64, []string{"x"}, []il.Type{il.I64})
	if err != nil {
		t.Fatalf("StartFunction double: %v", err)
	}
	entry, err := double.CreateBlock("entry", nil, nil)
	if err != nil {
		t.Fatalf("CreateBlock: %v", err)
	}
	double.SetInsertPoint(entry)
	sum, err := double.Emit(il.OpAdd, il.I64, ast.Pos{}, il.Temp(0), il.Temp(0))
	if err != nil {
		t.Fatalf("Emit add: %v", err)
	}
	if err := double.EmitTerminator(&il.Instruction{Op: il.OpRet, Operands: []il.Value{sum}}); err != nil {
		t.Fatalf("EmitTerminator: %v", err)
	}
	if err := b.Finish(double); err != nil {
		t.Fatalf("Finish double: %v", err)
	}

	main, err := b.StartFunction("main", il.I64, nil, nil)
	if err != nil {
		t.Fatalf("StartFunction main: %v", err)
	}
	mainEntry, err := main.CreateBlock("entry", nil, nil)
	if err != nil {
		t.Fatalf("CreateBlock: %v", err)
	}
	main.SetInsertPoint(mainEntry)
	r, err := main.EmitCall("double", il.I64, ast.Pos{}, il.ConstInt(21))
	if err != nil {
		t.Fatalf("EmitCall: %v", err)
	}
	if err := main.EmitTerminator(&il.Instruction{Op: il.OpRet, Operands: []il.Value{r}}); err != nil {
		t.Fatalf("EmitTerminator: %v", err)
	}
	if err := b.Finish(main); err != nil {
		t.Fatalf("Finish main: %v", err)
	}
	return b.Module()
}

func newDebugger(t *testing.T, mod *il.Module) *Debugger {
	t.Helper()
	var stderr bytes.Buffer
	host := bridge.NewHost(&bytes.Buffer{}, strings.NewReader(""))
	reg := bridge.NewRegistry()
	m := vm.New(mod, host, reg, &stderr)
	dbg := New(m)
	if err := dbg.Start("main"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return dbg
}

func TestStepInstrReachesExit(t *testing.T) {
	dbg := newDebugger(t, buildModule(t))
	for !dbg.Exited {
		dbg.StepInstr()
	}
	if dbg.Status != vm.StepExited {
		t.Fatalf("Status = %v, want StepExited", dbg.Status)
	}
	if dbg.ExitCode != 42 {
		t.Fatalf("ExitCode = %d, want 42", dbg.ExitCode)
	}
}

// StepOver across the call to double must not stop inside double's own
// entry block; it should land back at main's return.
func TestStepOverSkipsCallee(t *testing.T) {
	dbg := newDebugger(t, buildModule(t))
	dbg.StepOver() // the call instruction, running double to completion
	if dbg.Exited {
		t.Fatalf("program exited after one step-over, want still at main's ret")
	}
	line := dbg.CurrentLine()
	if !strings.HasPrefix(line, "@main entry#1:") {
		t.Fatalf("CurrentLine = %q, want the instruction after the call in @main", line)
	}
	dbg.StepOver()
	if !dbg.Exited || dbg.ExitCode != 42 {
		t.Fatalf("Exited=%v ExitCode=%d, want true/42", dbg.Exited, dbg.ExitCode)
	}
}

func TestBreakpointStopsContinue(t *testing.T) {
	dbg := newDebugger(t, buildModule(t))
	dbg.AddBreakpoint(Breakpoint{Func: "double", Block: "entry", Index: 0})
	dbg.Continue()
	if dbg.Exited {
		t.Fatalf("program exited, want stopped at the breakpoint inside double")
	}
	bt := dbg.Backtrace()
	if len(bt) != 2 {
		t.Fatalf("Backtrace() = %v, want 2 frames (main, double)", bt)
	}
	if !strings.Contains(bt[0], "@double") {
		t.Fatalf("Backtrace()[0] = %q, want the innermost frame (@double)", bt[0])
	}
	dbg.Continue()
	if !dbg.Exited || dbg.ExitCode != 42 {
		t.Fatalf("Exited=%v ExitCode=%d, want true/42 after continuing past the breakpoint", dbg.Exited, dbg.ExitCode)
	}
}

func TestLocalsAndTemp(t *testing.T) {
	dbg := newDebugger(t, buildModule(t))
	dbg.AddBreakpoint(Breakpoint{Func: "double", Block: "entry", Index: 0})
	dbg.Continue()

	v, err := dbg.Temp(0)
	if err != nil {
		t.Fatalf("Temp: %v", err)
	}
	if v.I != 21 {
		t.Fatalf("%%0 = %d, want 21 (double's parameter)", v.I)
	}

	locals, err := dbg.Locals()
	if err != nil {
		t.Fatalf("Locals: %v", err)
	}
	if len(locals) != 1 || !strings.Contains(locals[0], "21") {
		t.Fatalf("Locals() = %v, want a single entry for %%0 = 21", locals)
	}
}

func TestDuplicateBreakpointRejected(t *testing.T) {
	dbg := newDebugger(t, buildModule(t))
	bp := Breakpoint{Func: "main", Block: "entry", Index: 0}
	if !dbg.AddBreakpoint(bp) {
		t.Fatalf("first AddBreakpoint should succeed")
	}
	if dbg.AddBreakpoint(bp) {
		t.Fatalf("duplicate AddBreakpoint should report false")
	}
}
