package iltext

import (
	"fmt"
	"strconv"

	"github.com/splanck/viper/internal/ast"
	"github.com/splanck/viper/internal/diag"
	"github.com/splanck/viper/internal/il"
)

// ParseResult is what Parse returns: the module (possibly partial, on
// error) and the accumulated diagnostics. Parsing never stops at the first
// error; it keeps going so a caller sees every problem in one pass.
type ParseResult struct {
	Module *il.Module
	Diags  *diag.Accumulator
}

// Parse lexes and parses a single textual IL module.
func Parse(file string, src []byte) *ParseResult {
	p := &parser{
		lex:   newLexer(file, src),
		file:  file,
		diags: &diag.Accumulator{},
	}
	p.advance()
	mod := p.parseModule()
	return &ParseResult{Module: mod, Diags: p.diags}
}

type parser struct {
	lex   *lexer
	file  string
	tok   token
	prev  token
	diags *diag.Accumulator

	curFn    *il.Function
	curTemps map[string]il.TempID
}

// temp interns a textual temp name to a dense TempID within the function
// currently being parsed, reserving a fresh id the first time the name is
// seen. Names are assigned in parse order — for a well-formed module that
// matches the builder's own monotonic-reservation discipline (§3).
func (p *parser) temp(name string) il.TempID {
	if id, ok := p.curTemps[name]; ok {
		return id
	}
	id := p.curFn.NumTemp
	p.curFn.NumTemp++
	p.curTemps[name] = id
	return id
}

func (p *parser) advance() {
	p.prev = p.tok
	p.tok = p.lex.next()
}

func (p *parser) pos() ast.Pos {
	return ast.Pos{File: p.file, Line: p.tok.line, Column: p.tok.col}
}

func (p *parser) errorf(code string, pos ast.Pos, format string, args ...any) {
	p.diags.Add(diag.New(diag.PhaseOf(code), code, fmt.Sprintf(format, args...)).At(ast.Span{Start: pos, End: pos}))
}

// intLiteral converts the current tokInt's scanned text to an int64,
// reporting ILMalformedLiteral for an out-of-range literal (the lexer only
// delimits the digits; strconv does the correctly-rounded conversion and
// the overflow check).
func (p *parser) intLiteral() int64 {
	v, err := strconv.ParseInt(p.tok.text, 10, 64)
	if err != nil {
		p.errorf(diag.ILMalformedLiteral, p.pos(), "malformed integer literal %q: %v", p.tok.text, err)
	}
	return v
}

// floatLiteral converts the current tokFloat's scanned text to a float64 via
// strconv.ParseFloat, the same routine that must invert il.Value.String()'s
// %g serialization for the round-trip property to hold.
func (p *parser) floatLiteral() float64 {
	v, err := strconv.ParseFloat(p.tok.text, 64)
	if err != nil {
		p.errorf(diag.ILMalformedLiteral, p.pos(), "malformed float literal %q: %v", p.tok.text, err)
	}
	return v
}

func (p *parser) atPunct(s string) bool { return p.tok.kind == tokPunct && p.tok.text == s }
func (p *parser) atIdent(s string) bool { return p.tok.kind == tokIdent && p.tok.text == s }

func (p *parser) expectPunct(s string) bool {
	if p.atPunct(s) {
		p.advance()
		return true
	}
	p.errorf(diag.ILArityMismatch, p.pos(), "expected %q, got %q", s, p.tok.text)
	return false
}

// parseModule parses: version header, optional target, then externs,
// globals, and functions in any order (source order is preserved for
// symbols of the same kind; the serializer re-groups them canonically).
func (p *parser) parseModule() *il.Module {
	v := p.parseVersionHeader()
	mod := il.NewModule(v)

	for p.tok.kind != tokEOF {
		switch {
		case p.atIdent("target"):
			p.advance()
			if p.tok.kind == tokString {
				mod.Target = p.tok.text
				p.advance()
			}
		case p.atIdent("extern"):
			p.parseExtern(mod)
		case p.atIdent("global"):
			p.parseGlobal(mod)
		case p.atIdent("func"):
			p.parseFunc(mod)
		default:
			p.errorf(diag.ILUnknownOpcode, p.pos(), "unexpected top-level token %q", p.tok.text)
			p.advance()
		}
	}
	return mod
}

func (p *parser) parseVersionHeader() il.Version {
	if !p.atIdent("il") {
		p.errorf(diag.ILBadVersion, p.pos(), "module must begin with an `il <major>.<minor>` version header")
		return il.Version{}
	}
	p.advance()
	if p.tok.kind != tokIdent && p.tok.kind != tokInt && p.tok.kind != tokFloat {
		p.errorf(diag.ILBadVersion, p.pos(), "malformed version header")
		return il.Version{}
	}
	// The number scanner reads "0.1" as a float literal; a patch component,
	// as in "0.1.2", follows as a separate "." punct and integer token and is
	// appended here. A bare major version with no dot lexes as tokInt.
	text := p.tok.text
	p.advance()
	if p.atPunct(".") {
		p.advance()
		if p.tok.kind == tokInt {
			text += "." + p.tok.text
			p.advance()
		}
	}
	major, minor, patch := 0, 0, 0
	n, _ := fmt.Sscanf(text, "%d.%d.%d", &major, &minor, &patch)
	if n < 2 {
		n2, _ := fmt.Sscanf(text, "%d.%d", &major, &minor)
		if n2 < 2 {
			p.errorf(diag.ILBadVersion, p.pos(), "malformed version %q", text)
		}
	}
	if major != 0 {
		p.errorf(diag.ILBadVersion, p.pos(), "unsupported major version %d", major)
	}
	return il.Version{Major: major, Minor: minor, Patch: patch}
}

func (p *parser) parseType() il.Type {
	if p.tok.kind != tokIdent {
		p.errorf(diag.ILTypeMismatch, p.pos(), "expected a type, got %q", p.tok.text)
		return il.Void
	}
	t, ok := il.ParseType(p.tok.text)
	if !ok {
		p.errorf(diag.ILTypeMismatch, p.pos(), "unknown type %q", p.tok.text)
	}
	p.advance()
	return t
}

func (p *parser) parseExtern(mod *il.Module) {
	p.advance() // 'extern'
	if p.tok.kind != tokGlobalSym {
		p.errorf(diag.ILUndefinedSymbol, p.pos(), "extern name must start with @")
		return
	}
	name := p.tok.text
	p.advance()
	sig := p.parseSignature()
	added, conflict := mod.AddExtern(&il.Extern{Name: name, Sig: sig})
	if conflict {
		p.errorf(diag.ILDuplicateDefinition, p.pos(), "extern @%s redeclared with conflicting signature", name)
	}
	_ = added
}

func (p *parser) parseSignature() il.Signature {
	p.expectPunct("(")
	var params []il.Type
	for !p.atPunct(")") && p.tok.kind != tokEOF {
		params = append(params, p.parseType())
		if p.atPunct(",") {
			p.advance()
		}
	}
	p.expectPunct(")")
	p.expectPunct("->")
	ret := p.parseType()
	return il.Signature{Params: params, Ret: ret}
}

func (p *parser) parseGlobal(mod *il.Module) {
	p.advance() // 'global'
	isConst := false
	if p.atIdent("const") {
		isConst = true
		p.advance()
	}
	typ := p.parseType()
	if p.tok.kind != tokGlobalSym {
		p.errorf(diag.ILUndefinedSymbol, p.pos(), "global name must start with @")
		return
	}
	name := p.tok.text
	p.advance()
	g := &il.Global{Name: name, Typ: typ, Const: isConst}
	if p.atPunct("=") {
		p.advance()
		switch p.tok.kind {
		case tokString:
			g.StrInit = p.tok.text
			g.HasInit = true
			p.advance()
		case tokInt:
			g.IntInit = p.intLiteral()
			g.HasInit = true
			p.advance()
		default:
			p.errorf(diag.ILMalformedLiteral, p.pos(), "malformed global initializer")
		}
	}
	if _, dup := mod.AddGlobal(g); dup {
		p.errorf(diag.ILDuplicateDefinition, p.pos(), "global @%s redefined", name)
	}
}

func (p *parser) parseFunc(mod *il.Module) {
	p.advance() // 'func'
	if p.tok.kind != tokGlobalSym {
		p.errorf(diag.ILUndefinedSymbol, p.pos(), "function name must start with @")
		return
	}
	name := p.tok.text
	p.advance()

	fn := &il.Function{Name: name}
	p.curFn = fn
	p.curTemps = make(map[string]il.TempID)

	p.expectPunct("(")
	var params []il.Param
	for !p.atPunct(")") && p.tok.kind != tokEOF {
		if p.tok.kind != tokTemp {
			p.errorf(diag.ILTypeMismatch, p.pos(), "expected parameter name")
			break
		}
		pname := p.tok.text
		p.advance()
		p.expectPunct(":")
		pt := p.parseType()
		params = append(params, il.Param{Name: pname, Typ: pt, Temp: p.temp(pname)})
		if p.atPunct(",") {
			p.advance()
		}
	}
	p.expectPunct(")")
	p.expectPunct("->")
	ret := p.parseType()

	fn.Ret = ret
	fn.Params = params
	p.expectPunct("{")
	for !p.atPunct("}") && p.tok.kind != tokEOF {
		p.parseBlock(fn)
	}
	p.expectPunct("}")

	if added, dup := mod.AddFunc(fn); dup {
		p.errorf(diag.ILDuplicateDefinition, p.pos(), "function @%s redefined", name)
	} else if !added {
		p.errorf(diag.ILDuplicateDefinition, p.pos(), "function @%s redefined", name)
	}
}

func (p *parser) parseBlock(fn *il.Function) {
	// The entry block's label is a bare identifier; non-entry labels may
	// optionally be written with the same leading '^' used at reference
	// sites, matching the textual form worked examples use (§8, E6).
	if p.tok.kind != tokIdent && p.tok.kind != tokLabelRef {
		p.errorf(diag.ILUndefinedLabel, p.pos(), "expected a block label")
		p.advance()
		return
	}
	label := p.tok.text
	p.advance()

	var params []il.BlockParam
	if p.atPunct("(") {
		p.advance()
		for !p.atPunct(")") && p.tok.kind != tokEOF {
			if p.tok.kind != tokTemp {
				p.errorf(diag.ILTypeMismatch, p.pos(), "expected block parameter")
				break
			}
			pname := p.tok.text
			p.advance()
			p.expectPunct(":")
			pt := p.parseType()
			params = append(params, il.BlockParam{Name: pname, Typ: pt, Temp: p.temp(pname)})
			if p.atPunct(",") {
				p.advance()
			}
		}
		p.expectPunct(")")
	}
	p.expectPunct(":")

	blk := &il.BasicBlock{Label: label, Params: params}
	fn.Blocks = append(fn.Blocks, blk)

	for {
		if p.tok.kind == tokEOF || p.atPunct("}") {
			break
		}
		// A new label starts the next block: bare identifier (or ^-prefixed
		// label) immediately followed by ':' or '(' and not a known opcode
		// mnemonic. Well-formed blocks never reach this (they stop at their
		// terminator below); this is a recovery guard for malformed input.
		if p.tok.kind == tokLabelRef {
			break
		}
		if p.tok.kind == tokIdent {
			if _, isOp := il.LookupOpcode(p.tok.text); !isOp && p.startsNewLabel() {
				break
			}
		}
		instr := p.parseInstruction(fn)
		if instr == nil {
			break
		}
		if instr.Op.IsTerminator() {
			blk.Term = instr
			break
		}
		blk.Instrs = append(blk.Instrs, instr)
	}
}

// startsNewLabel peeks whether the current identifier token is a label
// introducer (`name:` or `name(`) rather than an opcode mnemonic.
func (p *parser) startsNewLabel() bool {
	save := *p.lex
	savedTok, savedPrev := p.tok, p.prev
	p.advance()
	isLabel := p.atPunct(":") || p.atPunct("(")
	*p.lex = save
	p.tok, p.prev = savedTok, savedPrev
	return isLabel
}

func (p *parser) parseValue() il.Value {
	switch p.tok.kind {
	case tokTemp:
		name := p.tok.text
		p.advance()
		return il.Temp(p.temp(name))
	case tokInt:
		v := p.intLiteral()
		p.advance()
		return il.ConstInt(v)
	case tokFloat:
		v := p.floatLiteral()
		p.advance()
		return il.ConstFloat(v)
	case tokGlobalSym:
		name := p.tok.text
		p.advance()
		return il.GlobalRef(name)
	case tokIdent:
		switch p.tok.text {
		case "true":
			p.advance()
			return il.ConstBool(true)
		case "false":
			p.advance()
			return il.ConstBool(false)
		case "null":
			p.advance()
			return il.ConstNull()
		}
	}
	p.errorf(diag.ILMalformedLiteral, p.pos(), "expected a value, got %q", p.tok.text)
	return il.Value{}
}

func (p *parser) parseLabelRef() string {
	if p.tok.kind != tokLabelRef {
		p.errorf(diag.ILUndefinedLabel, p.pos(), "expected a ^label")
		return ""
	}
	l := p.tok.text
	p.advance()
	return l
}

func (p *parser) parseBranchTarget() il.BranchTarget {
	label := p.parseLabelRef()
	var args []il.Value
	if p.atPunct("(") {
		p.advance()
		for !p.atPunct(")") && p.tok.kind != tokEOF {
			args = append(args, p.parseValue())
			if p.atPunct(",") {
				p.advance()
			}
		}
		p.expectPunct(")")
	}
	return il.BranchTarget{Label: label, Args: args}
}

// parseInstruction parses one instruction, `%result = ` being optional and
// present only when the opcode produces a value.
func (p *parser) parseInstruction(fn *il.Function) *il.Instruction {
	loc := p.pos()
	var resultName string
	hasResult := false
	var result2Name string
	hasResult2 := false

	if p.tok.kind == tokTemp {
		resultName = p.tok.text
		p.advance()
		if p.atPunct(",") {
			// eh.entry binds two results: "%err, %tok = eh.entry"
			p.advance()
			if p.tok.kind == tokTemp {
				result2Name = p.tok.text
				hasResult2 = true
				p.advance()
			}
		}
		if !p.expectPunct("=") {
			return nil
		}
		hasResult = true
	}

	if p.tok.kind != tokIdent {
		p.errorf(diag.ILUnknownOpcode, loc, "expected an opcode, got %q", p.tok.text)
		p.advance()
		return nil
	}
	mnemonic := p.tok.text
	op, ok := il.LookupOpcode(mnemonic)
	if !ok {
		p.errorf(diag.ILUnknownOpcode, loc, "unknown opcode %q", mnemonic)
		p.advance()
		return nil
	}
	p.advance()

	instr := &il.Instruction{Op: op, Loc: loc}
	if hasResult {
		instr.HasResult = true
		instr.Result = p.temp(resultName)
	}
	if hasResult2 {
		instr.HasResult2 = true
		instr.Result2 = p.temp(result2Name)
		instr.Result2Type = il.ResumeTok
	}

	p.parseOperandsFor(instr, fn)
	return instr
}

func (p *parser) parseOperandsFor(instr *il.Instruction, fn *il.Function) {
	switch instr.Op {
	case il.OpBr:
		instr.Targets = []il.BranchTarget{p.parseBranchTarget()}
	case il.OpCbr:
		cond := p.parseValue()
		p.expectPunct(",")
		t := p.parseBranchTarget()
		p.expectPunct(",")
		f := p.parseBranchTarget()
		instr.Operands = []il.Value{cond}
		instr.Targets = []il.BranchTarget{t, f}
	case il.OpSwitchI32:
		scrut := p.parseValue()
		p.expectPunct(",")
		instr.Default = p.parseBranchTarget()
		instr.Operands = []il.Value{scrut}
		for p.atPunct(",") {
			p.advance()
			if p.tok.kind != tokInt {
				break
			}
			key := int32(p.intLiteral())
			p.advance()
			p.expectPunct("->")
			tgt := p.parseBranchTarget()
			instr.Cases = append(instr.Cases, il.SwitchCase{Key: key, Target: tgt})
		}
	case il.OpRet:
		if p.atValueStart() {
			instr.Operands = []il.Value{p.parseValue()}
		}
	case il.OpResumeLabel:
		tok := p.parseValue()
		p.expectPunct(",")
		instr.Operands = []il.Value{tok}
		instr.Targets = []il.BranchTarget{p.parseBranchTarget()}
	case il.OpEHPush:
		instr.Handler = p.parseLabelRef()
	case il.OpEHPop, il.OpEHEntry, il.OpTrap:
		// no operands
	case il.OpCall:
		p.parseCallOperands(instr)
	case il.OpAlloca, il.OpLoad, il.OpStore, il.OpGep:
		p.parseTypedMemOperands(instr, fn)
	case il.OpZext1, il.OpCastFPToSIRteChk, il.OpCastFPToUIRteChk, il.OpCastSINarrowChk, il.OpCastUINarrowChk:
		// Sized conversions carry their declared target type textually,
		// e.g. "cast.si_narrow.chk i16, %v" (§4.4).
		instr.ResultType = p.parseType()
		p.expectPunct(",")
		instr.Operands = []il.Value{p.parseValue()}
	case il.OpCallIndirect:
		p.parseCallOperands(instr)
		if p.atPunct(":") {
			p.advance()
			sig := p.parseSignature()
			instr.CalleeSig = &sig
			instr.ResultType = sig.Ret
		}
	default:
		n := instr.Op.Describe().NumOperands
		for i := 0; n < 0 || i < n; i++ {
			if n < 0 && (p.atBlockBoundary() || p.atPunct("}")) {
				break
			}
			instr.Operands = append(instr.Operands, p.parseValue())
			if i+1 != n && p.atPunct(",") {
				p.advance()
			} else {
				break
			}
		}
	}
}

func (p *parser) atBlockBoundary() bool {
	return p.tok.kind == tokEOF
}

// atValueStart reports whether the current token can begin a Value.
func (p *parser) atValueStart() bool {
	switch p.tok.kind {
	case tokTemp, tokInt, tokFloat, tokGlobalSym:
		return true
	case tokIdent:
		return p.tok.text == "true" || p.tok.text == "false" || p.tok.text == "null"
	default:
		return false
	}
}

func (p *parser) parseCallOperands(instr *il.Instruction) {
	if instr.Op == il.OpCall {
		if p.tok.kind != tokGlobalSym {
			p.errorf(diag.ILUndefinedSymbol, p.pos(), "call target must be @symbol")
			return
		}
		instr.Callee = p.tok.text
		p.advance()
	} else {
		fv := p.parseValue()
		instr.Operands = append(instr.Operands, fv)
	}
	p.expectPunct("(")
	for !p.atPunct(")") && p.tok.kind != tokEOF {
		instr.Operands = append(instr.Operands, p.parseValue())
		if p.atPunct(",") {
			p.advance()
		}
	}
	p.expectPunct(")")
}

func (p *parser) parseTypedMemOperands(instr *il.Instruction, fn *il.Function) {
	switch instr.Op {
	case il.OpAlloca:
		instr.Operands = []il.Value{p.parseValue()}
		instr.ResultType = il.Ptr
	case il.OpLoad:
		et := p.parseType()
		p.expectPunct(",")
		instr.Operands = []il.Value{p.parseValue()}
		instr.ResultType = et
	case il.OpStore:
		et := p.parseType()
		p.expectPunct(",")
		addr := p.parseValue()
		p.expectPunct(",")
		val := p.parseValue()
		instr.Operands = []il.Value{addr, val}
		instr.ResultType = et
	case il.OpGep:
		base := p.parseValue()
		p.expectPunct(",")
		off := p.parseValue()
		instr.Operands = []il.Value{base, off}
	}
}
