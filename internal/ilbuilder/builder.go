// Package ilbuilder is the fluent construction API every frontend routes
// its IL lowering through (C6, §4.6). Routing all mutation through this
// API is what keeps a frontend from accidentally violating the
// single-terminator or unique-temp invariants the verifier later checks.
package ilbuilder

import (
	"fmt"

	"github.com/splanck/viper/internal/ast"
	"github.com/splanck/viper/internal/il"
)

// Builder constructs one Module.
type Builder struct {
	mod *il.Module
}

// New starts a builder for a fresh module at the given version.
func New(v il.Version) *Builder {
	return &Builder{mod: il.NewModule(v)}
}

// Module returns the module under construction. Safe to call at any point;
// frontends typically call it once after lowering completes.
func (b *Builder) Module() *il.Module { return b.mod }

// DeclareExtern is idempotent: re-declaring the same signature is a no-op
// success. A conflicting re-declaration is reported as an error.
func (b *Builder) DeclareExtern(name string, ret il.Type, params ...il.Type) error {
	_, conflict := b.mod.AddExtern(&il.Extern{Name: name, Sig: il.Signature{Params: params, Ret: ret}})
	if conflict {
		return fmt.Errorf("extern @%s redeclared with a conflicting signature", name)
	}
	return nil
}

// AddGlobalInt adds an integer-initialized global object.
func (b *Builder) AddGlobalInt(name string, typ il.Type, isConst bool, init int64) error {
	if _, dup := b.mod.AddGlobal(&il.Global{Name: name, Typ: typ, Const: isConst, IntInit: init, HasInit: true}); dup {
		return fmt.Errorf("global @%s redefined", name)
	}
	return nil
}

// AddGlobalStr adds a string-initialized global object.
func (b *Builder) AddGlobalStr(name string, isConst bool, init string) error {
	if _, dup := b.mod.AddGlobal(&il.Global{Name: name, Typ: il.Str, Const: isConst, StrInit: init, HasInit: true}); dup {
		return fmt.Errorf("global @%s redefined", name)
	}
	return nil
}

// FuncHandle is a handle to a function shell under construction.
type FuncHandle struct {
	fn         *il.Function
	cur        *il.BasicBlock
	terminated map[string]bool
}

// StartFunction allocates parameter temp ids %0..%n-1 and returns a handle
// bound to an empty function shell. The function is not yet attached to
// the module's function table — call Finish to attach it (this lets a
// frontend abandon a partially-built function on error without leaving a
// half-defined entry in the module).
func (b *Builder) StartFunction(name string, ret il.Type, paramNames []string, paramTypes []il.Type) (*FuncHandle, error) {
	if len(paramNames) != len(paramTypes) {
		return nil, fmt.Errorf("parameter name/type count mismatch for @%s", name)
	}
	params := make([]il.Param, len(paramNames))
	for i := range paramNames {
		params[i] = il.Param{Name: paramNames[i], Typ: paramTypes[i], Temp: il.TempID(i)}
	}
	fn := &il.Function{Name: name, Ret: ret, Params: params, NumTemp: il.TempID(len(params))}
	return &FuncHandle{fn: fn, terminated: map[string]bool{}}, nil
}

// Finish attaches the function to the module. Returns an error if the name
// is already taken, or if any block is missing its terminator (a
// structural precondition the builder itself should never violate, but is
// cheap to double-check here rather than only at verify time).
func (b *Builder) Finish(h *FuncHandle) error {
	if len(h.fn.Blocks) == 0 {
		return fmt.Errorf("function @%s has no blocks", h.fn.Name)
	}
	for _, blk := range h.fn.Blocks {
		if blk.Term == nil {
			return fmt.Errorf("block %s in @%s has no terminator", blk.Label, h.fn.Name)
		}
	}
	if _, dup := b.mod.AddFunc(h.fn); dup {
		return fmt.Errorf("function @%s redefined", h.fn.Name)
	}
	return nil
}

// CreateBlock creates a new block with a unique label within the function
// and returns it; it does not become the insert point until SetInsertPoint
// is called.
func (h *FuncHandle) CreateBlock(label string, paramTypes []il.Type, paramNames []string) (*il.BasicBlock, error) {
	if _, exists := h.fn.Block(label); exists {
		return nil, fmt.Errorf("block %s already exists in @%s", label, h.fn.Name)
	}
	var params []il.BlockParam
	for i, t := range paramTypes {
		name := ""
		if i < len(paramNames) {
			name = paramNames[i]
		}
		params = append(params, il.BlockParam{Name: name, Typ: t, Temp: h.reserveTemp()})
	}
	blk := &il.BasicBlock{Label: label, Params: params}
	h.fn.AddBlock(blk)
	return blk, nil
}

func (h *FuncHandle) reserveTemp() il.TempID {
	id := h.fn.NumTemp
	h.fn.NumTemp++
	return id
}

// SetInsertPoint makes blk the target of subsequent Emit calls.
func (h *FuncHandle) SetInsertPoint(blk *il.BasicBlock) {
	h.cur = blk
}

// Emit appends a non-terminator instruction to the current insert point,
// reserving a result temp id when the opcode produces a value. Emitting
// into a block whose terminator has already been written is rejected.
func (h *FuncHandle) Emit(op il.Opcode, resultType il.Type, loc ast.Pos, operands ...il.Value) (il.Value, error) {
	if h.cur == nil {
		return il.Value{}, fmt.Errorf("no insert point set")
	}
	if h.cur.Term != nil {
		return il.Value{}, fmt.Errorf("block %s already terminated", h.cur.Label)
	}
	instr := &il.Instruction{Op: op, Operands: operands, Loc: loc, ResultType: resultType}
	info := op.Describe()
	if info.Terminator {
		return il.Value{}, fmt.Errorf("opcode %s is a terminator; use EmitTerminator", op)
	}
	var result il.Value
	if info.Result != il.ResultNone {
		id := h.reserveTemp()
		instr.HasResult = true
		instr.Result = id
		result = il.Temp(id)
	}
	h.cur.Instrs = append(h.cur.Instrs, instr)
	return result, nil
}

// EmitCall emits a direct call to the named callee, reserving a result temp
// if the callee's return type is non-void. It does not emit call.indirect.
func (h *FuncHandle) EmitCall(callee string, retType il.Type, loc ast.Pos, args ...il.Value) (il.Value, error) {
	if h.cur == nil || h.cur.Term != nil {
		return il.Value{}, fmt.Errorf("no open insert point")
	}
	instr := &il.Instruction{Op: il.OpCall, Callee: callee, Operands: args, Loc: loc, ResultType: retType}
	var result il.Value
	if retType != il.Void {
		id := h.reserveTemp()
		instr.HasResult = true
		instr.Result = id
		result = il.Temp(id)
	}
	h.cur.Instrs = append(h.cur.Instrs, instr)
	return result, nil
}

// EmitTerminator marks the block terminated; further emission into it is
// rejected by Emit/EmitTerminator.
func (h *FuncHandle) EmitTerminator(instr *il.Instruction) error {
	if h.cur == nil {
		return fmt.Errorf("no insert point set")
	}
	if h.cur.Term != nil {
		return fmt.Errorf("block %s already terminated", h.cur.Label)
	}
	if !instr.Op.IsTerminator() {
		return fmt.Errorf("opcode %s is not a terminator", instr.Op)
	}
	h.cur.Term = instr
	return nil
}

// ReserveTemp exposes monotonic temp-id reservation for frontends that
// construct instructions directly rather than via Emit.
func (h *FuncHandle) ReserveTemp() il.TempID { return h.reserveTemp() }

// Func returns the function under construction.
func (h *FuncHandle) Func() *il.Function { return h.fn }
