package vm

import (
	"math"

	"github.com/splanck/viper/internal/bridge"
	"github.com/splanck/viper/internal/il"
)

type ctlKind int

const (
	ctlNext   ctlKind = iota
	ctlJump           // branch to the start of block
	ctlGoto           // resume.same/resume.next: jump to a specific instruction index
	ctlCall           // push a new frame for callee and suspend here until it returns
	ctlReturn
)

type ctl struct {
	kind   ctlKind
	block  *il.BasicBlock
	index  int
	value  bridge.Value
	callee *il.Function
	args   []bridge.Value
}

// trapKindOrder is the fixed closed set trap.kind's i32 operand indexes
// into (§7's error taxonomy, excluding the parse/verify-only members).
var trapKindOrder = []string{
	"DivideByZero", "Overflow", "InvalidCast", "NullPointer", "Misaligned",
	"BadIndex", "StackOverflow", "OutOfMemory", "User", "InvalidOperation",
	"UnknownOpcode",
}

// resolve evaluates an operand Value against frame-local state: temps read
// the frame's locals (already typed from whatever defined them); constants
// carry their own natural type per §4.1; globals and block addresses
// resolve through the VM's symbol tables.
func (vm *VM) resolve(frame *Frame, v il.Value) bridge.Value {
	switch v.Kind {
	case il.ValTemp:
		return frame.Locals[v.Temp]
	case il.ValConstInt:
		return bridge.Int(il.I64, v.Int)
	case il.ValConstFloat:
		return bridge.Float(v.Float)
	case il.ValConstBool:
		b := int64(0)
		if v.Bool {
			b = 1
		}
		return bridge.Int(il.I1, b)
	case il.ValConstNull:
		return bridge.Ptr(0)
	case il.ValGlobal:
		return vm.resolveSymbol(v.Sym)
	case il.ValBlockAddr:
		return vm.resolveSymbol(v.Sym)
	default:
		return bridge.Value{}
	}
}

// resolveSymbol resolves a global or callable name to its address-space
// value: data globals resolve to an arena pointer, functions and externs
// resolve to a negative pseudo-address minted at VM construction.
func (vm *VM) resolveSymbol(name string) bridge.Value {
	if addr, ok := vm.calleeAddr[name]; ok {
		return bridge.Ptr(addr)
	}
	if addr, ok := vm.globalAddr[name]; ok {
		return bridge.Ptr(addr)
	}
	return bridge.Value{}
}

func (vm *VM) trapAt(frame *Frame, instr *il.Instruction, kind, detail string) *Trap {
	return &Trap{
		Kind:   kind,
		Detail: detail,
		Func:   frame.Fn.Name,
		Block:  frame.Block.Label,
		Index:  frame.IP,
		Line:   instr.Loc.Line,
	}
}

// exec evaluates one instruction, returning its result (if any), the
// control-flow disposition (ctlNext except for terminators and calls
// into local functions), and a trap
// if its precondition was violated. Per §9's trap-precision property, no
// result is ever written and no branch is ever taken when a trap fires.
func (vm *VM) exec(frame *Frame, instr *il.Instruction) (bridge.Value, ctl, *Trap) {
	switch instr.Op {

	// Integer arithmetic, unchecked (wraps).
	case il.OpAdd, il.OpSub, il.OpMul, il.OpAnd, il.OpOr, il.OpXor,
		il.OpShl, il.OpLShr, il.OpAShr:
		return vm.execIntBinary(frame, instr)

	case il.OpSDiv, il.OpUDiv, il.OpSRem, il.OpURem,
		il.OpSDivChk0, il.OpUDivChk0, il.OpSRemChk0, il.OpURemChk0:
		return vm.execIntDivRem(frame, instr)

	case il.OpIAddOvf, il.OpISubOvf, il.OpIMulOvf:
		return vm.execOvf(frame, instr)

	// Float arithmetic.
	case il.OpFAdd, il.OpFSub, il.OpFMul, il.OpFDiv:
		return vm.execFloatBinary(frame, instr)

	// Integer comparisons.
	case il.OpICmpEq, il.OpICmpNe, il.OpSCmpLt, il.OpSCmpLe, il.OpSCmpGt, il.OpSCmpGe,
		il.OpUCmpLt, il.OpUCmpLe, il.OpUCmpGt, il.OpUCmpGe:
		return vm.execIntCmp(frame, instr)

	// Float comparisons.
	case il.OpFCmpEq, il.OpFCmpNe, il.OpFCmpLt, il.OpFCmpLe, il.OpFCmpGt, il.OpFCmpGe:
		return vm.execFloatCmp(frame, instr)

	// Conversions.
	case il.OpSIToFP, il.OpFPToSI, il.OpZext1, il.OpTrunc1,
		il.OpCastSIToFP, il.OpCastUIToFP,
		il.OpCastFPToSIRteChk, il.OpCastFPToUIRteChk,
		il.OpCastSINarrowChk, il.OpCastUINarrowChk:
		return vm.execConvert(frame, instr)

	// Memory.
	case il.OpAlloca, il.OpGep, il.OpIdxChk, il.OpLoad, il.OpStore,
		il.OpAddrOf, il.OpConstStr, il.OpConstNull:
		return vm.execMemory(frame, instr)

	// Control flow.
	case il.OpBr, il.OpCbr, il.OpSwitchI32, il.OpRet:
		return vm.execControl(frame, instr)

	case il.OpTrap, il.OpTrapKind, il.OpTrapErr, il.OpTrapFromErr:
		return vm.execRaise(frame, instr)

	// Calls.
	case il.OpCall, il.OpCallIndirect:
		return vm.execCall(frame, instr)

	// Exception handling.
	case il.OpEHPush, il.OpEHPop, il.OpEHEntry,
		il.OpResumeSame, il.OpResumeNext, il.OpResumeLabel,
		il.OpErrGetKind, il.OpErrGetCode, il.OpErrGetIP, il.OpErrGetLine:
		return vm.execEH(frame, instr)
	}

	return bridge.Value{}, ctl{}, vm.trapAt(frame, instr, "UnknownOpcode", instr.Op.String())
}

func bitWidth(t il.Type) int {
	switch t {
	case il.I1:
		return 1
	case il.I16:
		return 16
	case il.I32:
		return 32
	default:
		return 64
	}
}

func signedRange(w int) (min, max int64) {
	switch w {
	case 1:
		return -1, 0
	case 16:
		return math.MinInt16, math.MaxInt16
	case 32:
		return math.MinInt32, math.MaxInt32
	default:
		return math.MinInt64, math.MaxInt64
	}
}

// wrapInt truncates raw to t's width with sign extension, implementing
// two's-complement wraparound for unchecked arithmetic.
func wrapInt(t il.Type, raw int64) int64 {
	switch t {
	case il.I1:
		return raw & 1
	case il.I16:
		return int64(int16(raw))
	case il.I32:
		return int64(int32(raw))
	default:
		return raw
	}
}

// unsignedMask returns raw reinterpreted as an unsigned value of t's width,
// still carried in an int64 (used for unsigned comparisons and divisions).
func unsignedMask(t il.Type, raw int64) uint64 {
	switch t {
	case il.I1:
		return uint64(raw) & 1
	case il.I16:
		return uint64(uint16(raw))
	case il.I32:
		return uint64(uint32(raw))
	default:
		return uint64(raw)
	}
}

func (vm *VM) execIntBinary(frame *Frame, instr *il.Instruction) (bridge.Value, ctl, *Trap) {
	a := vm.resolve(frame, instr.Operands[0])
	b := vm.resolve(frame, instr.Operands[1])
	t := a.Typ

	var raw int64
	switch instr.Op {
	case il.OpAdd:
		raw = a.I + b.I
	case il.OpSub:
		raw = a.I - b.I
	case il.OpMul:
		raw = a.I * b.I
	case il.OpAnd:
		raw = a.I & b.I
	case il.OpOr:
		raw = a.I | b.I
	case il.OpXor:
		raw = a.I ^ b.I
	case il.OpShl:
		raw = a.I << (uint64(b.I) % 64)
	case il.OpLShr:
		raw = int64(unsignedMask(t, a.I) >> (uint64(b.I) % 64))
	case il.OpAShr:
		raw = a.I >> (uint64(b.I) % 64)
	}
	return bridge.Int(t, wrapInt(t, raw)), ctl{kind: ctlNext}, nil
}

func (vm *VM) execIntDivRem(frame *Frame, instr *il.Instruction) (bridge.Value, ctl, *Trap) {
	a := vm.resolve(frame, instr.Operands[0])
	b := vm.resolve(frame, instr.Operands[1])
	t := a.Typ
	w := bitWidth(t)
	min, _ := signedRange(w)

	signed := instr.Op == il.OpSDiv || instr.Op == il.OpSRem ||
		instr.Op == il.OpSDivChk0 || instr.Op == il.OpSRemChk0
	rem := instr.Op == il.OpSRem || instr.Op == il.OpURem ||
		instr.Op == il.OpSRemChk0 || instr.Op == il.OpURemChk0

	if signed {
		if b.I == 0 {
			return bridge.Value{}, ctl{}, vm.trapAt(frame, instr, "DivideByZero", "")
		}
		if a.I == min && b.I == -1 {
			return bridge.Value{}, ctl{}, vm.trapAt(frame, instr, "Overflow", "")
		}
		if rem {
			return bridge.Int(t, wrapInt(t, a.I%b.I)), ctl{kind: ctlNext}, nil
		}
		return bridge.Int(t, wrapInt(t, a.I/b.I)), ctl{kind: ctlNext}, nil
	}

	ua, ub := unsignedMask(t, a.I), unsignedMask(t, b.I)
	if ub == 0 {
		return bridge.Value{}, ctl{}, vm.trapAt(frame, instr, "DivideByZero", "")
	}
	if rem {
		return bridge.Int(t, wrapInt(t, int64(ua%ub))), ctl{kind: ctlNext}, nil
	}
	return bridge.Int(t, wrapInt(t, int64(ua/ub))), ctl{kind: ctlNext}, nil
}

func (vm *VM) execOvf(frame *Frame, instr *il.Instruction) (bridge.Value, ctl, *Trap) {
	a := vm.resolve(frame, instr.Operands[0])
	b := vm.resolve(frame, instr.Operands[1])
	t := a.Typ
	w := bitWidth(t)

	var raw int64
	var overflowed bool
	switch instr.Op {
	case il.OpIAddOvf:
		raw = a.I + b.I
		if w == 64 {
			overflowed = (a.I > 0 && b.I > 0 && raw < 0) || (a.I < 0 && b.I < 0 && raw >= 0)
		}
	case il.OpISubOvf:
		raw = a.I - b.I
		if w == 64 {
			overflowed = (a.I >= 0 && b.I < 0 && raw < 0) || (a.I < 0 && b.I >= 0 && raw >= 0)
		}
	case il.OpIMulOvf:
		raw = a.I * b.I
		if w == 64 {
			if a.I != 0 && (raw/a.I != b.I || (a.I == -1 && b.I == math.MinInt64)) {
				overflowed = true
			}
		}
	}
	if w != 64 {
		min, max := signedRange(w)
		if raw < min || raw > max {
			overflowed = true
		}
	}
	if overflowed {
		return bridge.Value{}, ctl{}, vm.trapAt(frame, instr, "Overflow", "")
	}
	return bridge.Int(t, wrapInt(t, raw)), ctl{kind: ctlNext}, nil
}

func (vm *VM) execFloatBinary(frame *Frame, instr *il.Instruction) (bridge.Value, ctl, *Trap) {
	a := vm.resolve(frame, instr.Operands[0])
	b := vm.resolve(frame, instr.Operands[1])
	var r float64
	switch instr.Op {
	case il.OpFAdd:
		r = a.F + b.F
	case il.OpFSub:
		r = a.F - b.F
	case il.OpFMul:
		r = a.F * b.F
	case il.OpFDiv:
		r = a.F / b.F
	}
	return bridge.Float(r), ctl{kind: ctlNext}, nil
}

func (vm *VM) execIntCmp(frame *Frame, instr *il.Instruction) (bridge.Value, ctl, *Trap) {
	a := vm.resolve(frame, instr.Operands[0])
	b := vm.resolve(frame, instr.Operands[1])
	t := a.Typ
	var r bool
	switch instr.Op {
	case il.OpICmpEq:
		r = a.I == b.I
	case il.OpICmpNe:
		r = a.I != b.I
	case il.OpSCmpLt:
		r = a.I < b.I
	case il.OpSCmpLe:
		r = a.I <= b.I
	case il.OpSCmpGt:
		r = a.I > b.I
	case il.OpSCmpGe:
		r = a.I >= b.I
	case il.OpUCmpLt:
		r = unsignedMask(t, a.I) < unsignedMask(t, b.I)
	case il.OpUCmpLe:
		r = unsignedMask(t, a.I) <= unsignedMask(t, b.I)
	case il.OpUCmpGt:
		r = unsignedMask(t, a.I) > unsignedMask(t, b.I)
	case il.OpUCmpGe:
		r = unsignedMask(t, a.I) >= unsignedMask(t, b.I)
	}
	return bridge.Int(il.I1, boolInt(r)), ctl{kind: ctlNext}, nil
}

func (vm *VM) execFloatCmp(frame *Frame, instr *il.Instruction) (bridge.Value, ctl, *Trap) {
	a := vm.resolve(frame, instr.Operands[0])
	b := vm.resolve(frame, instr.Operands[1])
	nan := math.IsNaN(a.F) || math.IsNaN(b.F)
	var r bool
	switch instr.Op {
	case il.OpFCmpEq:
		r = !nan && a.F == b.F
	case il.OpFCmpNe:
		r = nan || a.F != b.F
	case il.OpFCmpLt:
		r = !nan && a.F < b.F
	case il.OpFCmpLe:
		r = !nan && a.F <= b.F
	case il.OpFCmpGt:
		r = !nan && a.F > b.F
	case il.OpFCmpGe:
		r = !nan && a.F >= b.F
	}
	return bridge.Int(il.I1, boolInt(r)), ctl{kind: ctlNext}, nil
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func (vm *VM) execConvert(frame *Frame, instr *il.Instruction) (bridge.Value, ctl, *Trap) {
	a := vm.resolve(frame, instr.Operands[0])
	switch instr.Op {
	case il.OpSIToFP:
		return bridge.Float(float64(a.I)), ctl{kind: ctlNext}, nil
	case il.OpFPToSI:
		return bridge.Int(il.I64, int64(a.F)), ctl{kind: ctlNext}, nil
	case il.OpZext1:
		return bridge.Int(instr.ResultType, a.I&1), ctl{kind: ctlNext}, nil
	case il.OpTrunc1:
		r := int64(0)
		if a.I != 0 {
			r = 1
		}
		return bridge.Int(il.I1, r), ctl{kind: ctlNext}, nil
	case il.OpCastSIToFP:
		return bridge.Float(float64(a.I)), ctl{kind: ctlNext}, nil
	case il.OpCastUIToFP:
		return bridge.Float(float64(unsignedMask(a.Typ, a.I))), ctl{kind: ctlNext}, nil
	case il.OpCastFPToSIRteChk:
		rounded := math.RoundToEven(a.F)
		w := bitWidth(instr.ResultType)
		min, max := signedRange(w)
		if math.IsNaN(rounded) || rounded < float64(min) || rounded > float64(max) {
			return bridge.Value{}, ctl{}, vm.trapAt(frame, instr, "InvalidCast", "")
		}
		return bridge.Int(instr.ResultType, int64(rounded)), ctl{kind: ctlNext}, nil
	case il.OpCastFPToUIRteChk:
		rounded := math.RoundToEven(a.F)
		w := bitWidth(instr.ResultType)
		max := uint64(1)<<uint(w) - 1
		if w == 64 {
			max = math.MaxUint64
		}
		if math.IsNaN(rounded) || rounded < 0 || rounded > float64(max) {
			return bridge.Value{}, ctl{}, vm.trapAt(frame, instr, "InvalidCast", "")
		}
		return bridge.Int(instr.ResultType, int64(uint64(rounded))), ctl{kind: ctlNext}, nil
	case il.OpCastSINarrowChk:
		w := bitWidth(instr.ResultType)
		min, max := signedRange(w)
		if a.I < min || a.I > max {
			return bridge.Value{}, ctl{}, vm.trapAt(frame, instr, "InvalidCast", "")
		}
		return bridge.Int(instr.ResultType, wrapInt(instr.ResultType, a.I)), ctl{kind: ctlNext}, nil
	case il.OpCastUINarrowChk:
		w := bitWidth(instr.ResultType)
		srcW := bitWidth(a.Typ)
		max := uint64(1)<<uint(w) - 1
		u := unsignedMask(a.Typ, a.I)
		if srcW > w && u > max {
			return bridge.Value{}, ctl{}, vm.trapAt(frame, instr, "InvalidCast", "")
		}
		return bridge.Int(instr.ResultType, int64(u&max)), ctl{kind: ctlNext}, nil
	}
	return bridge.Value{}, ctl{}, vm.trapAt(frame, instr, "InvalidOperation", instr.Op.String())
}
