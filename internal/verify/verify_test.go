package verify

import (
	"testing"

	"github.com/splanck/viper/internal/il"
)

// buildAddOne builds: func @add_one(%0: i64) -> i64 { entry: %1 = add %0, 1; ret %1 }
func buildAddOne() *il.Module {
	mod := il.NewModule(il.Version{Major: 0, Minor: 1})
	fn := &il.Function{
		Name:    "add_one",
		Ret:     il.I64,
		Params:  []il.Param{{Name: "x", Typ: il.I64, Temp: 0}},
		NumTemp: 2,
	}
	entry := &il.BasicBlock{
		Label: "entry",
		Instrs: []*il.Instruction{
			{Op: il.OpAdd, HasResult: true, Result: 1, Operands: []il.Value{il.Temp(0), il.ConstInt(1)}},
		},
		Term: &il.Instruction{Op: il.OpRet, Operands: []il.Value{il.Temp(1)}},
	}
	fn.Blocks = []*il.BasicBlock{entry}
	mod.Funcs = []*il.Function{fn}
	return mod
}

func TestModuleAcceptsWellFormedFunction(t *testing.T) {
	acc, ok := Module(buildAddOne())
	if !ok {
		t.Fatalf("expected well-formed module, got errors: %+v", acc.Errors())
	}
}

func TestMissingTerminatorIsRejected(t *testing.T) {
	mod := buildAddOne()
	mod.Funcs[0].Blocks[0].Term = nil
	acc, ok := Module(mod)
	if ok {
		t.Fatalf("expected verification failure for missing terminator")
	}
	if len(acc.Errors()) == 0 {
		t.Fatalf("expected at least one error report")
	}
	if acc.Errors()[0].Code != "VFY001" {
		t.Errorf("got code %s, want VFY001", acc.Errors()[0].Code)
	}
}

func TestUndefinedLabelIsRejected(t *testing.T) {
	mod := buildAddOne()
	mod.Funcs[0].Blocks[0].Term = &il.Instruction{
		Op:      il.OpBr,
		Targets: []il.BranchTarget{{Label: "nowhere"}},
	}
	_, ok := Module(mod)
	if ok {
		t.Fatalf("expected verification failure for undefined branch target")
	}
}

func TestBlockParamArityMismatchIsRejected(t *testing.T) {
	mod := il.NewModule(il.Version{Major: 0, Minor: 1})
	fn := &il.Function{Name: "f", Ret: il.Void, NumTemp: 1}
	loop := &il.BasicBlock{
		Label:  "loop",
		Params: []il.BlockParam{{Name: "i", Typ: il.I64, Temp: 0}},
		Term:   &il.Instruction{Op: il.OpRet},
	}
	entry := &il.BasicBlock{
		Label: "entry",
		Term: &il.Instruction{
			Op:      il.OpBr,
			Targets: []il.BranchTarget{{Label: "loop"}}, // missing the one argument "loop" declares
		},
	}
	fn.Blocks = []*il.BasicBlock{entry, loop}
	mod.Funcs = []*il.Function{fn}

	acc, ok := Module(mod)
	if ok {
		t.Fatalf("expected verification failure for block param arity mismatch")
	}
	found := false
	for _, r := range acc.Errors() {
		if r.Code == "VFY003" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a VFY003 report, got %+v", acc.Errors())
	}
}

func TestUseNotDominatedByDefinitionIsRejected(t *testing.T) {
	mod := il.NewModule(il.Version{Major: 0, Minor: 1})
	fn := &il.Function{Name: "f", Ret: il.I64, NumTemp: 1}
	a := &il.BasicBlock{
		Label: "a",
		Term:  &il.Instruction{Op: il.OpBr, Targets: []il.BranchTarget{{Label: "b"}}},
	}
	b := &il.BasicBlock{
		Label:  "b",
		Instrs: []*il.Instruction{{Op: il.OpAdd, HasResult: true, Result: 0, Operands: []il.Value{il.ConstInt(1), il.ConstInt(1)}}},
		Term:   &il.Instruction{Op: il.OpRet, Operands: []il.Value{il.Temp(0)}},
	}
	c := &il.BasicBlock{
		// c is a sibling of b, not dominated by it, but uses b's temp
		Label: "c",
		Term:  &il.Instruction{Op: il.OpRet, Operands: []il.Value{il.Temp(0)}},
	}
	a.Term = &il.Instruction{Op: il.OpCbr, Operands: []il.Value{il.ConstBool(true)},
		Targets: []il.BranchTarget{{Label: "b"}, {Label: "c"}}}
	fn.Blocks = []*il.BasicBlock{a, b, c}
	mod.Funcs = []*il.Function{fn}

	_, ok := Module(mod)
	if ok {
		t.Fatalf("expected verification failure for non-dominated use")
	}
}
