package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/splanck/viper/internal/ast"
	"github.com/splanck/viper/internal/bridge"
	"github.com/splanck/viper/internal/il"
	"github.com/splanck/viper/internal/ilbuilder"
)

func newVM(mod *il.Module, stdout, stderr *bytes.Buffer) *VM {
	host := bridge.NewHost(stdout, strings.NewReader(""))
	reg := bridge.NewRegistry()
	return New(mod, host, reg, stderr)
}

// Hello world: a single block that calls rt_print_str with a const_str
// global and returns 0.
func TestRunHelloWorld(t *testing.T) {
	b := ilbuilder.New(il.Version{Major: 0, Minor: 1})
	if err := b.AddGlobalStr("greeting", true, "hello, viper\n"); err != nil {
		t.Fatalf("AddGlobalStr: %v", err)
	}
	if err := b.DeclareExtern("rt_print_str", il.Void, il.Str); err != nil {
		t.Fatalf("DeclareExtern: %v", err)
	}

	fn, err := b.StartFunction("main", il.I64, nil, nil)
	if err != nil {
		t.Fatalf("StartFunction: %v", err)
	}
	entry, err := fn.CreateBlock("entry", nil, nil)
	if err != nil {
		t.Fatalf("CreateBlock: %v", err)
	}
	fn.SetInsertPoint(entry)

	s, err := fn.Emit(il.OpConstStr, il.Str, ast.Pos{}, il.GlobalRef("greeting"))
	if err != nil {
		t.Fatalf("Emit const_str: %v", err)
	}
	if _, err := fn.EmitCall("rt_print_str", il.Void, ast.Pos{}, s); err != nil {
		t.Fatalf("EmitCall: %v", err)
	}
	if err := fn.EmitTerminator(&il.Instruction{Op: il.OpRet, Operands: []il.Value{il.ConstInt(0)}}); err != nil {
		t.Fatalf("EmitTerminator: %v", err)
	}
	if err := b.Finish(fn); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	var stdout, stderr bytes.Buffer
	vm := newVM(b.Module(), &stdout, &stderr)
	code, err := vm.Run("main")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if stdout.String() != "hello, viper\n" {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

// Arithmetic plus a conditional branch: main computes 2+3, compares it
// against 5 via icmp.eq, and branches to one of two blocks that each
// return a distinct constant via a shared exit block's parameter.
func TestRunArithmeticAndBranch(t *testing.T) {
	b := ilbuilder.New(il.Version{Major: 0, Minor: 1})
	fn, err := b.StartFunction("main", il.I64, nil, nil)
	if err != nil {
		t.Fatalf("StartFunction: %v", err)
	}

	entry, err := fn.CreateBlock("entry", nil, nil)
	if err != nil {
		t.Fatalf("CreateBlock entry: %v", err)
	}
	thenBlk, err := fn.CreateBlock("then", nil, nil)
	if err != nil {
		t.Fatalf("CreateBlock then: %v", err)
	}
	elseBlk, err := fn.CreateBlock("else", nil, nil)
	if err != nil {
		t.Fatalf("CreateBlock else: %v", err)
	}
	exit, err := fn.CreateBlock("exit", []il.Type{il.I64}, []string{"result"})
	if err != nil {
		t.Fatalf("CreateBlock exit: %v", err)
	}

	fn.SetInsertPoint(entry)
	sum, err := fn.Emit(il.OpAdd, il.I64, ast.Pos{}, il.ConstInt(2), il.ConstInt(3))
	if err != nil {
		t.Fatalf("Emit add: %v", err)
	}
	eq, err := fn.Emit(il.OpICmpEq, il.I1, ast.Pos{}, sum, il.ConstInt(5))
	if err != nil {
		t.Fatalf("Emit icmp.eq: %v", err)
	}
	if err := fn.EmitTerminator(&il.Instruction{
		Op:       il.OpCbr,
		Operands: []il.Value{eq},
		Targets: []il.BranchTarget{
			{Label: "then"},
			{Label: "else"},
		},
	}); err != nil {
		t.Fatalf("EmitTerminator cbr: %v", err)
	}

	fn.SetInsertPoint(thenBlk)
	if err := fn.EmitTerminator(&il.Instruction{
		Op:      il.OpBr,
		Targets: []il.BranchTarget{{Label: "exit", Args: []il.Value{il.ConstInt(42)}}},
	}); err != nil {
		t.Fatalf("EmitTerminator br then: %v", err)
	}

	fn.SetInsertPoint(elseBlk)
	if err := fn.EmitTerminator(&il.Instruction{
		Op:      il.OpBr,
		Targets: []il.BranchTarget{{Label: "exit", Args: []il.Value{il.ConstInt(-1)}}},
	}); err != nil {
		t.Fatalf("EmitTerminator br else: %v", err)
	}

	fn.SetInsertPoint(exit)
	if err := fn.EmitTerminator(&il.Instruction{Op: il.OpRet, Operands: []il.Value{il.Temp(exit.Params[0].Temp)}}); err != nil {
		t.Fatalf("EmitTerminator ret: %v", err)
	}

	if err := b.Finish(fn); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	var stdout, stderr bytes.Buffer
	vm := newVM(b.Module(), &stdout, &stderr)
	code, err := vm.Run("main")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != 42 {
		t.Fatalf("exit code = %d, want 42", code)
	}
}

// An unhandled sdiv.chk0 by zero terminates the whole process with the
// DivideByZero exit code and a stderr diagnostic naming the trap.
func TestRunUnhandledDivideByZero(t *testing.T) {
	b := ilbuilder.New(il.Version{Major: 0, Minor: 1})
	fn, err := b.StartFunction("main", il.I64, nil, nil)
	if err != nil {
		t.Fatalf("StartFunction: %v", err)
	}
	entry, err := fn.CreateBlock("entry", nil, nil)
	if err != nil {
		t.Fatalf("CreateBlock: %v", err)
	}
	fn.SetInsertPoint(entry)

	q, err := fn.Emit(il.OpSDivChk0, il.I64, ast.Pos{}, il.ConstInt(10), il.ConstInt(0))
	if err != nil {
		t.Fatalf("Emit sdiv.chk0: %v", err)
	}
	if err := fn.EmitTerminator(&il.Instruction{Op: il.OpRet, Operands: []il.Value{q}}); err != nil {
		t.Fatalf("EmitTerminator: %v", err)
	}
	if err := b.Finish(fn); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	var stdout, stderr bytes.Buffer
	vm := newVM(b.Module(), &stdout, &stderr)
	code, err := vm.Run("main")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != 2 {
		t.Fatalf("exit code = %d, want 2 (DivideByZero)", code)
	}
	if !strings.Contains(stderr.String(), "DivideByZero") {
		t.Fatalf("stderr = %q, want it to mention DivideByZero", stderr.String())
	}
}

// switch.i32 with no matching case falls through to its default edge.
func TestRunSwitchDefault(t *testing.T) {
	b := ilbuilder.New(il.Version{Major: 0, Minor: 1})
	fn, err := b.StartFunction("main", il.I64, nil, nil)
	if err != nil {
		t.Fatalf("StartFunction: %v", err)
	}

	entry, err := fn.CreateBlock("entry", nil, nil)
	if err != nil {
		t.Fatalf("CreateBlock entry: %v", err)
	}
	one, err := fn.CreateBlock("one", nil, nil)
	if err != nil {
		t.Fatalf("CreateBlock one: %v", err)
	}
	dflt, err := fn.CreateBlock("dflt", nil, nil)
	if err != nil {
		t.Fatalf("CreateBlock dflt: %v", err)
	}

	fn.SetInsertPoint(entry)
	if err := fn.EmitTerminator(&il.Instruction{
		Op:       il.OpSwitchI32,
		Operands: []il.Value{il.ConstInt(99)},
		Cases: []il.SwitchCase{
			{Key: 1, Target: il.BranchTarget{Label: "one"}},
		},
		Default: il.BranchTarget{Label: "dflt"},
	}); err != nil {
		t.Fatalf("EmitTerminator switch.i32: %v", err)
	}

	fn.SetInsertPoint(one)
	if err := fn.EmitTerminator(&il.Instruction{Op: il.OpRet, Operands: []il.Value{il.ConstInt(1)}}); err != nil {
		t.Fatalf("EmitTerminator ret one: %v", err)
	}

	fn.SetInsertPoint(dflt)
	if err := fn.EmitTerminator(&il.Instruction{Op: il.OpRet, Operands: []il.Value{il.ConstInt(7)}}); err != nil {
		t.Fatalf("EmitTerminator ret dflt: %v", err)
	}

	if err := b.Finish(fn); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	var stdout, stderr bytes.Buffer
	vm := newVM(b.Module(), &stdout, &stderr)
	code, err := vm.Run("main")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != 7 {
		t.Fatalf("exit code = %d, want 7 (default arm)", code)
	}
}

// A handled trap: eh.push brackets a call to a function that divides by
// zero; the handler block reads the error's kind via err.get_kind and
// returns it as the exit code, proving the handler stack correctly
// unwinds the callee's frame back to the pusher.
func TestRunHandledTrapAcrossCall(t *testing.T) {
	b := ilbuilder.New(il.Version{Major: 0, Minor: 1})

	failing, err := b.StartFunction("failing", il.I64, nil, nil)
	if err != nil {
		t.Fatalf("StartFunction failing: %v", err)
	}
	fblk, err := failing.CreateBlock("entry", nil, nil)
	if err != nil {
		t.Fatalf("CreateBlock: %v", err)
	}
	failing.SetInsertPoint(fblk)
	q, err := failing.Emit(il.OpSDivChk0, il.I64, ast.Pos{}, il.ConstInt(1), il.ConstInt(0))
	if err != nil {
		t.Fatalf("Emit sdiv.chk0: %v", err)
	}
	if err := failing.EmitTerminator(&il.Instruction{Op: il.OpRet, Operands: []il.Value{q}}); err != nil {
		t.Fatalf("EmitTerminator: %v", err)
	}
	if err := b.Finish(failing); err != nil {
		t.Fatalf("Finish failing: %v", err)
	}

	main, err := b.StartFunction("main", il.I64, nil, nil)
	if err != nil {
		t.Fatalf("StartFunction main: %v", err)
	}
	entry, err := main.CreateBlock("entry", nil, nil)
	if err != nil {
		t.Fatalf("CreateBlock entry: %v", err)
	}
	handler, err := main.CreateBlock("handler", nil, nil)
	if err != nil {
		t.Fatalf("CreateBlock handler: %v", err)
	}

	main.SetInsertPoint(entry)
	// eh.push carries a handler label the builder's generic Emit has no
	// parameter for; append it directly to the entry block.
	entry.Instrs = append(entry.Instrs, &il.Instruction{Op: il.OpEHPush, Handler: "handler"})
	if _, err := main.EmitCall("failing", il.I64, ast.Pos{}); err != nil {
		t.Fatalf("EmitCall failing: %v", err)
	}
	if err := main.EmitTerminator(&il.Instruction{Op: il.OpRet, Operands: []il.Value{il.ConstInt(0)}}); err != nil {
		t.Fatalf("EmitTerminator entry ret: %v", err)
	}

	main.SetInsertPoint(handler)
	errv, err := main.Emit(il.OpEHEntry, il.Error, ast.Pos{})
	if err != nil {
		t.Fatalf("Emit eh.entry: %v", err)
	}
	kind, err := main.Emit(il.OpErrGetKind, il.I32, ast.Pos{}, errv)
	if err != nil {
		t.Fatalf("Emit err.get_kind: %v", err)
	}
	if err := main.EmitTerminator(&il.Instruction{Op: il.OpRet, Operands: []il.Value{kind}}); err != nil {
		t.Fatalf("EmitTerminator handler ret: %v", err)
	}

	if err := b.Finish(main); err != nil {
		t.Fatalf("Finish main: %v", err)
	}

	var stdout, stderr bytes.Buffer
	vm := newVM(b.Module(), &stdout, &stderr)
	code, err := vm.Run("main")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	wantKind := 0
	for i, k := range trapKindOrder {
		if k == "DivideByZero" {
			wantKind = i
		}
	}
	if code != wantKind {
		t.Fatalf("exit code = %d, want %d (DivideByZero's trap.kind index, handled so it is the return value not the process exit mapping)", code, wantKind)
	}
}
