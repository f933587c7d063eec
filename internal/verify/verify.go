// Package verify implements the IL verifier (C5, §4.5): the gate every
// module must pass before optimization or execution. It checks structure,
// symbol resolution, typing, block-parameter contracts, dominance, call
// contracts, and exception-handling shape, accumulating every violation
// found rather than stopping at the first (§7).
package verify

import (
	"fmt"

	"github.com/splanck/viper/internal/diag"
	"github.com/splanck/viper/internal/il"
)

// Module verifies every function in mod and returns the accumulated
// diagnostics plus whether the module is well-formed (no Error-severity
// reports).
func Module(mod *il.Module) (*diag.Accumulator, bool) {
	acc := &diag.Accumulator{}
	for _, fn := range mod.Funcs {
		verifyFunc(mod, fn, acc)
	}
	return acc, !acc.HasErrors()
}

func verifyFunc(mod *il.Module, fn *il.Function, acc *diag.Accumulator) {
	if len(fn.Blocks) == 0 {
		acc.Add(diag.New("verify", diag.VfyStructure, fmt.Sprintf("function @%s has no blocks", fn.Name)))
		return
	}

	types := newTypeEnv(fn)
	v := &funcVerifier{mod: mod, fn: fn, acc: acc, types: types}

	v.checkStructure()
	v.checkSymbolsAndTyping()
	v.checkBlockParams()
	v.checkCallContracts()
	v.checkEHShape()
	v.checkDominance()
}

type funcVerifier struct {
	mod   *il.Module
	fn    *il.Function
	acc   *diag.Accumulator
	types *typeEnv
}

func (v *funcVerifier) errf(code, format string, args ...any) {
	v.acc.Add(diag.New("verify", code, fmt.Sprintf("@%s: "+format, append([]any{v.fn.Name}, args...)...)))
}

// typeEnv maps every temp id defined in a function to its static type, built
// in one pass over params, block params, and instruction results before any
// other check runs (every later check needs to resolve operand types).
type typeEnv struct {
	t map[il.TempID]il.Type
}

func newTypeEnv(fn *il.Function) *typeEnv {
	e := &typeEnv{t: make(map[il.TempID]il.Type)}
	for _, p := range fn.Params {
		e.t[p.Temp] = p.Typ
	}
	for _, blk := range fn.Blocks {
		for _, p := range blk.Params {
			e.t[p.Temp] = p.Typ
		}
		for _, instr := range allInstrs(blk) {
			if !instr.HasResult {
				continue
			}
			e.t[instr.Result] = e.resultType(instr)
			if instr.HasResult2 {
				e.t[instr.Result2] = instr.Result2Type
			}
		}
	}
	return e
}

// resultType computes an instruction's declared result type per its
// opcode's ResultKind (§4.4): fixed, declared on the instruction itself, or
// mirrored from operand 0 — which may itself be a temp already resolved
// earlier in this same pass, since definitions dominate uses.
func (e *typeEnv) resultType(instr *il.Instruction) il.Type {
	info := instr.Op.Describe()
	switch info.Result {
	case il.ResultFixed:
		return info.FixedResult
	case il.ResultDeclared:
		return instr.ResultType
	case il.ResultSameAsArg0:
		if len(instr.Operands) == 0 {
			return il.Void
		}
		if t, ok := e.typeOf(instr.Operands[0]); ok {
			return t
		}
		return il.Void
	default:
		return il.Void
	}
}

func (e *typeEnv) typeOf(v il.Value) (il.Type, bool) {
	if v.Kind == il.ValTemp {
		t, ok := e.t[v.Temp]
		return t, ok
	}
	return v.Type()
}

func allInstrs(blk *il.BasicBlock) []*il.Instruction {
	if blk.Term == nil {
		return blk.Instrs
	}
	return append(append([]*il.Instruction{}, blk.Instrs...), blk.Term)
}

// checkStructure verifies every block carries exactly one terminator. The
// in-memory representation keeps Instrs and Term in separate fields, so
// "instructions after the terminator" cannot arise by construction; what
// remains checkable here is that Term was actually set.
func (v *funcVerifier) checkStructure() {
	for _, blk := range v.fn.Blocks {
		if blk.Term == nil {
			v.errf(diag.VfyStructure, "block %s has no terminator", blk.Label)
		}
	}
}
