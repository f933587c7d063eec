package constfold

import (
	"testing"

	"github.com/splanck/viper/internal/ast"
	"github.com/splanck/viper/internal/il"
	"github.com/splanck/viper/internal/ilbuilder"
	"github.com/splanck/viper/internal/rtname"
)

func declareMath(t *testing.T, b *ilbuilder.Builder) {
	t.Helper()
	if err := b.DeclareExtern("rt_abs_i64", il.I64, il.I64); err != nil {
		t.Fatalf("DeclareExtern rt_abs_i64: %v", err)
	}
	if err := b.DeclareExtern("rt_sqrt", il.F64, il.F64); err != nil {
		t.Fatalf("DeclareExtern rt_sqrt: %v", err)
	}
	if err := b.DeclareExtern("rt_fabs", il.F64, il.F64); err != nil {
		t.Fatalf("DeclareExtern rt_fabs: %v", err)
	}
	if err := b.DeclareExtern("rt_pow", il.F64, il.F64, il.F64); err != nil {
		t.Fatalf("DeclareExtern rt_pow: %v", err)
	}
	if err := b.DeclareExtern("rt_sin", il.F64, il.F64); err != nil {
		t.Fatalf("DeclareExtern rt_sin: %v", err)
	}
}

// A negative integer literal ABS folds directly to its magnitude; the
// caller's ret operand is rewritten to the literal once the call is gone.
func TestFoldIntegerAbs(t *testing.T) {
	names, err := rtname.Load()
	if err != nil {
		t.Fatalf("rtname.Load: %v", err)
	}
	b := ilbuilder.New(il.Version{Major: 0, Minor: 1})
	declareMath(t, b)
	fn, err := b.StartFunction("main", il.I64, nil, nil)
	if err != nil {
		t.Fatalf("StartFunction: %v", err)
	}
	entry, err := fn.CreateBlock("entry", nil, nil)
	if err != nil {
		t.Fatalf("CreateBlock: %v", err)
	}
	fn.SetInsertPoint(entry)
	r, err := fn.EmitCall("rt_abs_i64", il.I64, ast.Pos{}, il.ConstInt(-7))
	if err != nil {
		t.Fatalf("EmitCall: %v", err)
	}
	if err := fn.EmitTerminator(&il.Instruction{Op: il.OpRet, Operands: []il.Value{r}}); err != nil {
		t.Fatalf("EmitTerminator: %v", err)
	}
	if err := b.Finish(fn); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	built := fn.Func()
	stats := Run(built, names)
	if stats.Folded != 1 {
		t.Fatalf("Folded = %d, want 1", stats.Folded)
	}
	if n := stats.ByBuiltin["Viper.Math.AbsI"]; n != 1 {
		t.Fatalf("ByBuiltin[AbsI] = %d, want 1", n)
	}
	entryBlk, _ := built.Block("entry")
	if len(entryBlk.Instrs) != 0 {
		t.Fatalf("%d instruction(s) remain, want the call dropped entirely", len(entryBlk.Instrs))
	}
	ret := entryBlk.Term
	if ret.Operands[0].Kind != il.ValConstInt || ret.Operands[0].Int != 7 {
		t.Fatalf("ret operand = %+v, want the literal 7", ret.Operands[0])
	}
}

// A negative-operand AbsF is left untouched: §4.10.2 restricts the float
// Abs/Floor/Ceil/Sqr group to a non-negative literal operand, unlike the
// integer Abs, which has no such restriction.
func TestAbsFNegativeOperandNotFolded(t *testing.T) {
	names, err := rtname.Load()
	if err != nil {
		t.Fatalf("rtname.Load: %v", err)
	}
	b := ilbuilder.New(il.Version{Major: 0, Minor: 1})
	declareMath(t, b)
	fn, err := b.StartFunction("main", il.F64, nil, nil)
	if err != nil {
		t.Fatalf("StartFunction: %v", err)
	}
	entry, err := fn.CreateBlock("entry", nil, nil)
	if err != nil {
		t.Fatalf("CreateBlock: %v", err)
	}
	fn.SetInsertPoint(entry)
	r, err := fn.EmitCall("rt_fabs", il.F64, ast.Pos{}, il.ConstFloat(-4))
	if err != nil {
		t.Fatalf("EmitCall: %v", err)
	}
	if err := fn.EmitTerminator(&il.Instruction{Op: il.OpRet, Operands: []il.Value{r}}); err != nil {
		t.Fatalf("EmitTerminator: %v", err)
	}
	if err := b.Finish(fn); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	built := fn.Func()
	stats := Run(built, names)
	if stats.Folded != 0 {
		t.Fatalf("Folded = %d, want 0 (negative operand is out of AbsF's domain)", stats.Folded)
	}
	entryBlk, _ := built.Block("entry")
	if len(entryBlk.Instrs) != 1 {
		t.Fatalf("%d instruction(s) remain, want the call left in place", len(entryBlk.Instrs))
	}
}

// A negative-operand Sqr (square root, by BASIC convention) is left
// untouched: the pass only folds the non-negative domain.
func TestSqrNegativeOperandNotFolded(t *testing.T) {
	names, err := rtname.Load()
	if err != nil {
		t.Fatalf("rtname.Load: %v", err)
	}
	b := ilbuilder.New(il.Version{Major: 0, Minor: 1})
	declareMath(t, b)
	fn, err := b.StartFunction("main", il.F64, nil, nil)
	if err != nil {
		t.Fatalf("StartFunction: %v", err)
	}
	entry, err := fn.CreateBlock("entry", nil, nil)
	if err != nil {
		t.Fatalf("CreateBlock: %v", err)
	}
	fn.SetInsertPoint(entry)
	r, err := fn.EmitCall("rt_sqrt", il.F64, ast.Pos{}, il.ConstFloat(-4))
	if err != nil {
		t.Fatalf("EmitCall: %v", err)
	}
	if err := fn.EmitTerminator(&il.Instruction{Op: il.OpRet, Operands: []il.Value{r}}); err != nil {
		t.Fatalf("EmitTerminator: %v", err)
	}
	if err := b.Finish(fn); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	built := fn.Func()
	stats := Run(built, names)
	if stats.Folded != 0 {
		t.Fatalf("Folded = %d, want 0 (negative operand is out of Sqr's domain)", stats.Folded)
	}
	entryBlk, _ := built.Block("entry")
	if len(entryBlk.Instrs) != 1 {
		t.Fatalf("%d instruction(s) remain, want the call left in place", len(entryBlk.Instrs))
	}
}

// Pow folds for a small integer exponent but not a fractional one, per
// §4.10.2's |exp| <= 16 integer-exponent restriction.
func TestPowIntegerExponentOnly(t *testing.T) {
	names, err := rtname.Load()
	if err != nil {
		t.Fatalf("rtname.Load: %v", err)
	}
	b := ilbuilder.New(il.Version{Major: 0, Minor: 1})
	declareMath(t, b)
	fn, err := b.StartFunction("main", il.F64, nil, nil)
	if err != nil {
		t.Fatalf("StartFunction: %v", err)
	}
	entry, err := fn.CreateBlock("entry", nil, nil)
	if err != nil {
		t.Fatalf("CreateBlock: %v", err)
	}
	fn.SetInsertPoint(entry)
	good, err := fn.EmitCall("rt_pow", il.F64, ast.Pos{}, il.ConstFloat(2), il.ConstFloat(10))
	if err != nil {
		t.Fatalf("EmitCall good: %v", err)
	}
	bad, err := fn.EmitCall("rt_pow", il.F64, ast.Pos{}, il.ConstFloat(2), il.ConstFloat(1.5))
	if err != nil {
		t.Fatalf("EmitCall bad: %v", err)
	}
	sum, err := fn.Emit(il.OpFAdd, il.F64, ast.Pos{}, good, bad)
	if err != nil {
		t.Fatalf("Emit fadd: %v", err)
	}
	if err := fn.EmitTerminator(&il.Instruction{Op: il.OpRet, Operands: []il.Value{sum}}); err != nil {
		t.Fatalf("EmitTerminator: %v", err)
	}
	if err := b.Finish(fn); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	built := fn.Func()
	stats := Run(built, names)
	if stats.Folded != 1 {
		t.Fatalf("Folded = %d, want 1 (only the integer-exponent call)", stats.Folded)
	}
	entryBlk, _ := built.Block("entry")
	var calls int
	for _, instr := range entryBlk.Instrs {
		if instr.Op == il.OpCall {
			calls++
		}
	}
	if calls != 1 {
		t.Fatalf("%d call(s) remain, want 1 (the fractional-exponent call survives)", calls)
	}
	add := entryBlk.Instrs[len(entryBlk.Instrs)-1]
	if add.Op != il.OpFAdd {
		t.Fatalf("last instruction = %s, want fadd", add.Op)
	}
	if add.Operands[0].Kind != il.ValConstFloat || add.Operands[0].Float != 1024 {
		t.Fatalf("fadd's folded operand = %+v, want the literal 1024", add.Operands[0])
	}
}

// Sin only folds the literal-zero case; any other literal argument is left
// as a call, since general trig evaluation is out of scope (§4.10.2).
func TestSinOnlyFoldsZero(t *testing.T) {
	names, err := rtname.Load()
	if err != nil {
		t.Fatalf("rtname.Load: %v", err)
	}
	b := ilbuilder.New(il.Version{Major: 0, Minor: 1})
	declareMath(t, b)
	fn, err := b.StartFunction("main", il.F64, nil, nil)
	if err != nil {
		t.Fatalf("StartFunction: %v", err)
	}
	entry, err := fn.CreateBlock("entry", nil, nil)
	if err != nil {
		t.Fatalf("CreateBlock: %v", err)
	}
	fn.SetInsertPoint(entry)
	r, err := fn.EmitCall("rt_sin", il.F64, ast.Pos{}, il.ConstFloat(1.0))
	if err != nil {
		t.Fatalf("EmitCall: %v", err)
	}
	if err := fn.EmitTerminator(&il.Instruction{Op: il.OpRet, Operands: []il.Value{r}}); err != nil {
		t.Fatalf("EmitTerminator: %v", err)
	}
	if err := b.Finish(fn); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	built := fn.Func()
	stats := Run(built, names)
	if stats.Folded != 0 {
		t.Fatalf("Folded = %d, want 0 (sin(1.0) is not the folded special case)", stats.Folded)
	}
}
