package verify

import (
	"github.com/splanck/viper/internal/diag"
	"github.com/splanck/viper/internal/il"
)

// checkSymbolsAndTyping resolves every label and symbol operand and checks
// opcode-specific typing constraints the table alone cannot express:
// cbr's condition, switch.i32's scrutinee, load/store's element type, and
// operand-type agreement within an arithmetic family.
func (v *funcVerifier) checkSymbolsAndTyping() {
	for _, blk := range v.fn.Blocks {
		for _, instr := range allInstrs(blk) {
			v.checkTargets(blk, instr)
			v.checkOperandTypes(blk, instr)
		}
	}
}

func (v *funcVerifier) checkTargets(blk *il.BasicBlock, instr *il.Instruction) {
	for _, t := range instr.Targets {
		v.resolveLabel(blk, t.Label)
	}
	for _, c := range instr.Cases {
		v.resolveLabel(blk, c.Target.Label)
	}
	if instr.Op == il.OpSwitchI32 {
		v.resolveLabel(blk, instr.Default.Label)
	}
	if instr.Op == il.OpEHPush {
		v.resolveLabel(blk, instr.Handler)
	}
}

func (v *funcVerifier) resolveLabel(blk *il.BasicBlock, label string) {
	if _, ok := v.fn.Block(label); !ok {
		v.errf(diag.VfyUndefinedLabel, "block %s references undefined label ^%s", blk.Label, label)
	}
}

func (v *funcVerifier) checkOperandTypes(blk *il.BasicBlock, instr *il.Instruction) {
	switch instr.Op {
	case il.OpRet:
		v.checkRet(blk, instr)
	case il.OpCbr:
		v.expectOperandType(blk, instr, 0, il.I1)
	case il.OpSwitchI32:
		v.expectOperandType(blk, instr, 0, il.I32)
	case il.OpLoad:
		if instr.ResultType == il.Void {
			v.errf(diag.VfyTypeMismatch, "block %s: load has void element type", blk.Label)
		}
		v.expectOperandType(blk, instr, 0, il.Ptr)
	case il.OpStore:
		if instr.ResultType == il.Void {
			v.errf(diag.VfyTypeMismatch, "block %s: store has void element type", blk.Label)
		}
		v.expectOperandType(blk, instr, 0, il.Ptr)
		v.expectOperandType(blk, instr, 1, instr.ResultType)
	case il.OpAlloca:
		v.expectOperandType(blk, instr, 0, il.I64)
	case il.OpGep:
		v.expectOperandType(blk, instr, 0, il.Ptr)
		v.expectOperandType(blk, instr, 1, il.I64)
	case il.OpIdxChk:
		v.expectOperandType(blk, instr, 0, il.I64)
		v.expectOperandType(blk, instr, 1, il.I64)
	case il.OpResumeSame, il.OpResumeNext:
		v.expectOperandType(blk, instr, 0, il.ResumeTok)
	case il.OpResumeLabel:
		v.expectOperandType(blk, instr, 0, il.ResumeTok)
	case il.OpTrapErr, il.OpTrapFromErr:
		v.expectOperandType(blk, instr, 0, il.Error)
	case il.OpErrGetKind, il.OpErrGetCode, il.OpErrGetIP, il.OpErrGetLine:
		v.expectOperandType(blk, instr, 0, il.Error)
	case il.OpAdd, il.OpSub, il.OpMul, il.OpSDiv, il.OpUDiv, il.OpSRem, il.OpURem,
		il.OpIAddOvf, il.OpISubOvf, il.OpIMulOvf, il.OpSDivChk0, il.OpUDivChk0, il.OpSRemChk0, il.OpURemChk0,
		il.OpAnd, il.OpOr, il.OpXor, il.OpShl, il.OpLShr, il.OpAShr:
		v.expectSameType(blk, instr)
	case il.OpFAdd, il.OpFSub, il.OpFMul, il.OpFDiv,
		il.OpFCmpEq, il.OpFCmpNe, il.OpFCmpLt, il.OpFCmpLe, il.OpFCmpGt, il.OpFCmpGe:
		v.expectOperandType(blk, instr, 0, il.F64)
		v.expectOperandType(blk, instr, 1, il.F64)
	case il.OpICmpEq, il.OpICmpNe, il.OpSCmpLt, il.OpSCmpLe, il.OpSCmpGt, il.OpSCmpGe,
		il.OpUCmpLt, il.OpUCmpLe, il.OpUCmpGt, il.OpUCmpGe:
		v.expectSameType(blk, instr)
	}
}

func (v *funcVerifier) checkRet(blk *il.BasicBlock, instr *il.Instruction) {
	if v.fn.Ret == il.Void {
		if len(instr.Operands) != 0 {
			v.errf(diag.VfyTypeMismatch, "block %s: ret supplies a value but @%s returns void", blk.Label, v.fn.Name)
		}
		return
	}
	if len(instr.Operands) != 1 {
		v.errf(diag.VfyArityMismatch, "block %s: ret must supply exactly one value for a %s-returning function", blk.Label, v.fn.Ret)
		return
	}
	v.expectOperandType(blk, instr, 0, v.fn.Ret)
}

func (v *funcVerifier) expectOperandType(blk *il.BasicBlock, instr *il.Instruction, idx int, want il.Type) {
	if idx >= len(instr.Operands) {
		v.errf(diag.VfyArityMismatch, "block %s: %s missing operand %d", blk.Label, instr.Op, idx)
		return
	}
	got, ok := v.types.typeOf(instr.Operands[idx])
	if !ok {
		v.errf(diag.VfyUndefinedSymbol, "block %s: %s operand %d references an unresolved temp", blk.Label, instr.Op, idx)
		return
	}
	if got != want {
		v.errf(diag.VfyTypeMismatch, "block %s: %s operand %d is %s, want %s", blk.Label, instr.Op, idx, got, want)
	}
}

func (v *funcVerifier) expectSameType(blk *il.BasicBlock, instr *il.Instruction) {
	if len(instr.Operands) < 2 {
		v.errf(diag.VfyArityMismatch, "block %s: %s needs 2 operands", blk.Label, instr.Op)
		return
	}
	t0, ok0 := v.types.typeOf(instr.Operands[0])
	t1, ok1 := v.types.typeOf(instr.Operands[1])
	if !ok0 || !ok1 {
		v.errf(diag.VfyUndefinedSymbol, "block %s: %s has an unresolved operand", blk.Label, instr.Op)
		return
	}
	if t0 != t1 {
		v.errf(diag.VfyTypeMismatch, "block %s: %s operand types disagree (%s vs %s)", blk.Label, instr.Op, t0, t1)
	}
}

// checkBlockParams checks every branch edge supplies exactly the arity and
// types its target block's parameter list declares (§4.2: block parameters
// are this IL's replacement for phi nodes).
func (v *funcVerifier) checkBlockParams() {
	for _, blk := range v.fn.Blocks {
		if blk.Term == nil {
			continue
		}
		for _, t := range blk.Term.Targets {
			v.checkEdge(blk, t)
		}
		for _, c := range blk.Term.Cases {
			v.checkEdge(blk, c.Target)
		}
		if blk.Term.Op == il.OpSwitchI32 {
			v.checkEdge(blk, blk.Term.Default)
		}
	}
}

func (v *funcVerifier) checkEdge(from *il.BasicBlock, t il.BranchTarget) {
	target, ok := v.fn.Block(t.Label)
	if !ok {
		return // already reported by resolveLabel
	}
	if len(t.Args) != len(target.Params) {
		v.errf(diag.VfyBlockParam, "edge %s -> ^%s supplies %d argument(s), target declares %d",
			from.Label, t.Label, len(t.Args), len(target.Params))
		return
	}
	for i, a := range t.Args {
		got, ok := v.types.typeOf(a)
		if !ok {
			v.errf(diag.VfyUndefinedSymbol, "edge %s -> ^%s argument %d references an unresolved temp", from.Label, t.Label, i)
			continue
		}
		if got != target.Params[i].Typ {
			v.errf(diag.VfyBlockParam, "edge %s -> ^%s argument %d is %s, target parameter %d is %s",
				from.Label, t.Label, i, got, i, target.Params[i].Typ)
		}
	}
}

// checkCallContracts verifies call and call.indirect against the callee's
// declared signature: direct calls resolve the module-level symbol table
// (function or extern); indirect calls trust the instruction's own
// CalleeSig metadata, since there is no global declaration to consult for a
// pointer value.
func (v *funcVerifier) checkCallContracts() {
	for _, blk := range v.fn.Blocks {
		for _, instr := range allInstrs(blk) {
			switch instr.Op {
			case il.OpCall:
				v.checkDirectCall(blk, instr)
			case il.OpCallIndirect:
				v.checkIndirectCall(blk, instr)
			}
		}
	}
}

func (v *funcVerifier) checkDirectCall(blk *il.BasicBlock, instr *il.Instruction) {
	sig, ok := v.mod.FindCallable(instr.Callee)
	if !ok {
		v.errf(diag.VfyUndefinedSymbol, "block %s: call references undefined symbol @%s", blk.Label, instr.Callee)
		return
	}
	v.checkCallArgs(blk, instr, sig)
	if instr.ResultType != sig.Ret {
		v.errf(diag.VfyCallContract, "block %s: call to @%s declares result type %s, callee returns %s",
			blk.Label, instr.Callee, instr.ResultType, sig.Ret)
	}
}

func (v *funcVerifier) checkIndirectCall(blk *il.BasicBlock, instr *il.Instruction) {
	if len(instr.Operands) == 0 {
		v.errf(diag.VfyArityMismatch, "block %s: call.indirect missing callee operand", blk.Label)
		return
	}
	fnType, ok := v.types.typeOf(instr.Operands[0])
	if !ok || fnType != il.Ptr {
		v.errf(diag.VfyTypeMismatch, "block %s: call.indirect callee operand must be ptr", blk.Label)
	}
	if instr.CalleeSig == nil {
		v.errf(diag.VfyCallContract, "block %s: call.indirect missing declared signature", blk.Label)
		return
	}
	argsInstr := &il.Instruction{Op: instr.Op, Operands: instr.Operands[1:], ResultType: instr.ResultType}
	v.checkCallArgs(blk, argsInstr, *instr.CalleeSig)
}

func (v *funcVerifier) checkCallArgs(blk *il.BasicBlock, instr *il.Instruction, sig il.Signature) {
	if len(instr.Operands) != len(sig.Params) {
		v.errf(diag.VfyCallContract, "block %s: call supplies %d argument(s), signature declares %d",
			blk.Label, len(instr.Operands), len(sig.Params))
		return
	}
	for i, arg := range instr.Operands {
		got, ok := v.types.typeOf(arg)
		if !ok {
			v.errf(diag.VfyUndefinedSymbol, "block %s: call argument %d references an unresolved temp", blk.Label, i)
			continue
		}
		if got != sig.Params[i] {
			v.errf(diag.VfyCallContract, "block %s: call argument %d is %s, signature wants %s", blk.Label, i, got, sig.Params[i])
		}
	}
}
