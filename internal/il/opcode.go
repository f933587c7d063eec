package il

// Opcode enumerates every instruction the IL knows about. The Opcode table
// (opcodeInfo, below) is the single source of truth for signatures,
// side-effects, and the terminator bit: the verifier and the VM are
// table-driven against it and carry no opcode-specific code except for
// calls, idx.chk, and the handful of instructions tied to the runtime
// contract (§4.4).
type Opcode uint16

const (
	OpInvalid Opcode = iota

	// Integer arithmetic (unchecked, wraps)
	OpAdd
	OpSub
	OpMul
	OpSDiv
	OpUDiv
	OpSRem
	OpURem

	// Checked arithmetic
	OpIAddOvf
	OpISubOvf
	OpIMulOvf
	OpSDivChk0
	OpUDivChk0
	OpSRemChk0
	OpURemChk0

	// Bitwise / shifts
	OpAnd
	OpOr
	OpXor
	OpShl
	OpLShr
	OpAShr

	// Float arithmetic
	OpFAdd
	OpFSub
	OpFMul
	OpFDiv

	// Integer comparisons
	OpICmpEq
	OpICmpNe
	OpSCmpLt
	OpSCmpLe
	OpSCmpGt
	OpSCmpGe
	OpUCmpLt
	OpUCmpLe
	OpUCmpGt
	OpUCmpGe

	// Float comparisons
	OpFCmpEq
	OpFCmpNe
	OpFCmpLt
	OpFCmpLe
	OpFCmpGt
	OpFCmpGe

	// Conversions
	OpSIToFP
	OpFPToSI
	OpZext1
	OpTrunc1
	OpCastSIToFP
	OpCastUIToFP
	OpCastFPToSIRteChk
	OpCastFPToUIRteChk
	OpCastSINarrowChk
	OpCastUINarrowChk

	// Memory
	OpAlloca
	OpGep
	OpIdxChk
	OpLoad
	OpStore
	OpAddrOf
	OpConstStr
	OpConstNull

	// Control flow
	OpBr
	OpCbr
	OpSwitchI32
	OpRet
	OpTrap
	OpTrapKind
	OpTrapErr
	OpTrapFromErr

	// Calls
	OpCall
	OpCallIndirect

	// Exception handling
	OpEHPush
	OpEHPop
	OpEHEntry
	OpResumeSame
	OpResumeNext
	OpResumeLabel
	OpErrGetKind
	OpErrGetCode
	OpErrGetIP
	OpErrGetLine

	opcodeCount
)

// ResultKind describes how an instruction's result type is determined.
type ResultKind uint8

const (
	ResultNone       ResultKind = iota // no result temp
	ResultFixed                        // result type is Info.FixedResult
	ResultDeclared                     // result type is the instruction's own declared type (e.g. load, call, alloca)
	ResultSameAsArg0                   // result type equals operand 0's type (e.g. unchecked arithmetic)
)

// Info is the static descriptor for one opcode: the table C4 specifies.
type Info struct {
	Mnemonic    string
	NumOperands int // -1 means variable arity (calls, switch)
	Result      ResultKind
	FixedResult Type // valid when Result == ResultFixed
	Terminator  bool
	SideEffect  bool
	MayTrap     bool
}

var opcodeInfo = [opcodeCount]Info{
	OpAdd:  {"add", 2, ResultSameAsArg0, Void, false, false, false},
	OpSub:  {"sub", 2, ResultSameAsArg0, Void, false, false, false},
	OpMul:  {"mul", 2, ResultSameAsArg0, Void, false, false, false},
	OpSDiv: {"sdiv", 2, ResultSameAsArg0, Void, false, false, true},
	OpUDiv: {"udiv", 2, ResultSameAsArg0, Void, false, false, true},
	OpSRem: {"srem", 2, ResultSameAsArg0, Void, false, false, true},
	OpURem: {"urem", 2, ResultSameAsArg0, Void, false, false, true},

	OpIAddOvf:  {"iadd.ovf", 2, ResultSameAsArg0, Void, false, false, true},
	OpISubOvf:  {"isub.ovf", 2, ResultSameAsArg0, Void, false, false, true},
	OpIMulOvf:  {"imul.ovf", 2, ResultSameAsArg0, Void, false, false, true},
	OpSDivChk0: {"sdiv.chk0", 2, ResultSameAsArg0, Void, false, false, true},
	OpUDivChk0: {"udiv.chk0", 2, ResultSameAsArg0, Void, false, false, true},
	OpSRemChk0: {"srem.chk0", 2, ResultSameAsArg0, Void, false, false, true},
	OpURemChk0: {"urem.chk0", 2, ResultSameAsArg0, Void, false, false, true},

	OpAnd:  {"and", 2, ResultSameAsArg0, Void, false, false, false},
	OpOr:   {"or", 2, ResultSameAsArg0, Void, false, false, false},
	OpXor:  {"xor", 2, ResultSameAsArg0, Void, false, false, false},
	OpShl:  {"shl", 2, ResultSameAsArg0, Void, false, false, false},
	OpLShr: {"lshr", 2, ResultSameAsArg0, Void, false, false, false},
	OpAShr: {"ashr", 2, ResultSameAsArg0, Void, false, false, false},

	OpFAdd: {"fadd", 2, ResultFixed, F64, false, false, false},
	OpFSub: {"fsub", 2, ResultFixed, F64, false, false, false},
	OpFMul: {"fmul", 2, ResultFixed, F64, false, false, false},
	OpFDiv: {"fdiv", 2, ResultFixed, F64, false, false, false},

	OpICmpEq: {"icmp_eq", 2, ResultFixed, I1, false, false, false},
	OpICmpNe: {"icmp_ne", 2, ResultFixed, I1, false, false, false},
	OpSCmpLt: {"scmp_lt", 2, ResultFixed, I1, false, false, false},
	OpSCmpLe: {"scmp_le", 2, ResultFixed, I1, false, false, false},
	OpSCmpGt: {"scmp_gt", 2, ResultFixed, I1, false, false, false},
	OpSCmpGe: {"scmp_ge", 2, ResultFixed, I1, false, false, false},
	OpUCmpLt: {"ucmp_lt", 2, ResultFixed, I1, false, false, false},
	OpUCmpLe: {"ucmp_le", 2, ResultFixed, I1, false, false, false},
	OpUCmpGt: {"ucmp_gt", 2, ResultFixed, I1, false, false, false},
	OpUCmpGe: {"ucmp_ge", 2, ResultFixed, I1, false, false, false},

	OpFCmpEq: {"fcmp_eq", 2, ResultFixed, I1, false, false, false},
	OpFCmpNe: {"fcmp_ne", 2, ResultFixed, I1, false, false, false},
	OpFCmpLt: {"fcmp_lt", 2, ResultFixed, I1, false, false, false},
	OpFCmpLe: {"fcmp_le", 2, ResultFixed, I1, false, false, false},
	OpFCmpGt: {"fcmp_gt", 2, ResultFixed, I1, false, false, false},
	OpFCmpGe: {"fcmp_ge", 2, ResultFixed, I1, false, false, false},

	OpSIToFP:           {"sitofp", 1, ResultFixed, F64, false, false, false},
	OpFPToSI:           {"fptosi", 1, ResultFixed, I64, false, false, false},
	OpZext1:            {"zext1", 1, ResultDeclared, Void, false, false, false},
	OpTrunc1:           {"trunc1", 1, ResultFixed, I1, false, false, false},
	OpCastSIToFP:       {"cast.si_to_fp", 1, ResultFixed, F64, false, false, false},
	OpCastUIToFP:       {"cast.ui_to_fp", 1, ResultFixed, F64, false, false, false},
	OpCastFPToSIRteChk: {"cast.fp_to_si.rte.chk", 1, ResultDeclared, Void, false, false, true},
	OpCastFPToUIRteChk: {"cast.fp_to_ui.rte.chk", 1, ResultDeclared, Void, false, false, true},
	OpCastSINarrowChk:  {"cast.si_narrow.chk", 1, ResultDeclared, Void, false, false, true},
	OpCastUINarrowChk:  {"cast.ui_narrow.chk", 1, ResultDeclared, Void, false, false, true},

	OpAlloca:   {"alloca", 1, ResultFixed, Ptr, false, true, true},
	OpGep:      {"gep", 2, ResultFixed, Ptr, false, false, false},
	OpIdxChk:   {"idx.chk", 2, ResultFixed, I64, false, false, true},
	OpLoad:     {"load", 1, ResultDeclared, Void, false, false, true},
	OpStore:    {"store", 2, ResultNone, Void, false, true, true},
	OpAddrOf:   {"addr_of", 1, ResultFixed, Ptr, false, false, false},
	OpConstStr: {"const_str", 1, ResultFixed, Str, false, false, false},
	OpConstNull: {"const_null", 0, ResultFixed, Ptr, false, false, false},

	OpBr:        {"br", -1, ResultNone, Void, true, false, false},
	OpCbr:       {"cbr", -1, ResultNone, Void, true, false, false},
	OpSwitchI32: {"switch.i32", -1, ResultNone, Void, true, false, false},
	OpRet:       {"ret", -1, ResultNone, Void, true, false, false},
	OpTrap:      {"trap", 0, ResultNone, Void, true, true, true},
	OpTrapKind:  {"trap.kind", 1, ResultNone, Void, true, true, true},
	OpTrapErr:   {"trap.err", 1, ResultNone, Void, true, true, true},
	OpTrapFromErr: {"trap.from_err", 1, ResultNone, Void, true, true, true},

	OpCall:         {"call", -1, ResultDeclared, Void, false, true, true},
	OpCallIndirect: {"call.indirect", -1, ResultDeclared, Void, false, true, true},

	OpEHPush:      {"eh.push", 1, ResultNone, Void, false, true, false},
	OpEHPop:       {"eh.pop", 0, ResultNone, Void, false, true, false},
	OpEHEntry:     {"eh.entry", 0, ResultDeclared, Void, false, false, false},
	OpResumeSame:  {"resume.same", 1, ResultNone, Void, true, true, false},
	OpResumeNext:  {"resume.next", 1, ResultNone, Void, true, true, false},
	OpResumeLabel: {"resume.label", -1, ResultNone, Void, true, true, false},
	OpErrGetKind:  {"err.get_kind", 1, ResultFixed, I32, false, false, false},
	OpErrGetCode:  {"err.get_code", 1, ResultFixed, I32, false, false, false},
	OpErrGetIP:    {"err.get_ip", 1, ResultFixed, I64, false, false, false},
	OpErrGetLine:  {"err.get_line", 1, ResultFixed, I32, false, false, false},
}

var mnemonicToOpcode map[string]Opcode

func init() {
	mnemonicToOpcode = make(map[string]Opcode, opcodeCount)
	for op := OpAdd; op < opcodeCount; op++ {
		if m := opcodeInfo[op].Mnemonic; m != "" {
			mnemonicToOpcode[m] = op
		}
	}
}

// LookupOpcode resolves a textual mnemonic to an Opcode. Used by the parser;
// unknown mnemonics are a parse-time BadVersion-sibling failure mode
// (UnknownOpcode), not a panic.
func LookupOpcode(mnemonic string) (Opcode, bool) {
	op, ok := mnemonicToOpcode[mnemonic]
	return op, ok
}

// Describe returns the static descriptor for op. Calling Describe on an
// opcode value outside the catalog (e.g. a loader holding a stale build)
// returns the zero Info with Mnemonic "" — callers must check.
func (op Opcode) Describe() Info {
	if op < opcodeCount {
		return opcodeInfo[op]
	}
	return Info{}
}

func (op Opcode) String() string {
	if op < opcodeCount && opcodeInfo[op].Mnemonic != "" {
		return opcodeInfo[op].Mnemonic
	}
	return "opcode#" + itoa(uint16(op))
}

func itoa(v uint16) string {
	if v == 0 {
		return "0"
	}
	var buf [6]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// IsTerminator reports whether op ends a basic block.
func (op Opcode) IsTerminator() bool { return op.Describe().Terminator }

// MayTrap reports whether op is in the "may trap" set the VM must check a
// precondition for before producing a result.
func (op Opcode) MayTrap() bool { return op.Describe().MayTrap }

// HasSideEffect reports whether op is observable even if its result is unused.
func (op Opcode) HasSideEffect() bool { return op.Describe().SideEffect }
