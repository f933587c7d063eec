package vm

import (
	"github.com/splanck/viper/internal/bridge"
	"github.com/splanck/viper/internal/il"
)

// jumpTo resolves target's block within frame's function and binds its
// block-parameter temps from the edge's arguments, evaluated against the
// frame's current locals before the jump takes effect.
func (vm *VM) jumpTo(frame *Frame, target il.BranchTarget) ctl {
	blk, _ := frame.Fn.Block(target.Label)
	args := make([]bridge.Value, len(target.Args))
	for i, a := range target.Args {
		args[i] = vm.resolve(frame, a)
	}
	for i, p := range blk.Params {
		frame.Locals[p.Temp] = args[i]
	}
	return ctl{kind: ctlJump, block: blk}
}

func (vm *VM) execControl(frame *Frame, instr *il.Instruction) (bridge.Value, ctl, *Trap) {
	switch instr.Op {
	case il.OpBr:
		return bridge.Value{}, vm.jumpTo(frame, instr.Targets[0]), nil

	case il.OpCbr:
		cond := vm.resolve(frame, instr.Operands[0])
		if cond.I != 0 {
			return bridge.Value{}, vm.jumpTo(frame, instr.Targets[0]), nil
		}
		return bridge.Value{}, vm.jumpTo(frame, instr.Targets[1]), nil

	case il.OpSwitchI32:
		scrut := vm.resolve(frame, instr.Operands[0])
		for _, c := range instr.Cases {
			if int32(scrut.I) == c.Key {
				return bridge.Value{}, vm.jumpTo(frame, c.Target), nil
			}
		}
		return bridge.Value{}, vm.jumpTo(frame, instr.Default), nil

	case il.OpRet:
		if len(instr.Operands) == 0 {
			return bridge.Value{}, ctl{kind: ctlReturn, value: bridge.Void()}, nil
		}
		return bridge.Value{}, ctl{kind: ctlReturn, value: vm.resolve(frame, instr.Operands[0])}, nil
	}
	return bridge.Value{}, ctl{}, vm.trapAt(frame, instr, "InvalidOperation", instr.Op.String())
}

// execRaise implements trap, trap.kind, trap.err, and trap.from_err: the
// four ways IL can unconditionally signal an error (§4.4, §4.8).
func (vm *VM) execRaise(frame *Frame, instr *il.Instruction) (bridge.Value, ctl, *Trap) {
	switch instr.Op {
	case il.OpTrap:
		return bridge.Value{}, ctl{}, vm.trapAt(frame, instr, "User", "")

	case il.OpTrapKind:
		k := vm.resolve(frame, instr.Operands[0])
		idx := int(k.I)
		if idx < 0 || idx >= len(trapKindOrder) {
			return bridge.Value{}, ctl{}, vm.trapAt(frame, instr, "InvalidOperation", "bad trap.kind index")
		}
		return bridge.Value{}, ctl{}, vm.trapAt(frame, instr, trapKindOrder[idx], "")

	case il.OpTrapErr:
		e := vm.resolve(frame, instr.Operands[0])
		if e.Err == nil {
			return bridge.Value{}, ctl{}, vm.trapAt(frame, instr, "User", "")
		}
		return bridge.Value{}, ctl{}, &Trap{Kind: e.Err.Kind, Code: e.Err.Code, Func: frame.Fn.Name, Block: frame.Block.Label, Index: int(e.Err.IP), Line: int(e.Err.Line)}

	case il.OpTrapFromErr:
		e := vm.resolve(frame, instr.Operands[0])
		kind, code := "User", int32(0)
		if e.Err != nil {
			kind, code = e.Err.Kind, e.Err.Code
		}
		trap := vm.trapAt(frame, instr, kind, "")
		trap.Code = code
		return bridge.Value{}, ctl{}, trap
	}
	return bridge.Value{}, ctl{}, vm.trapAt(frame, instr, "InvalidOperation", instr.Op.String())
}

// execCall dispatches a direct or indirect call to either a local function
// (suspending the current frame and pushing a new one via ctlCall) or an
// extern (dispatching synchronously through the bridge, since externs never
// have IL frames of their own).
func (vm *VM) execCall(frame *Frame, instr *il.Instruction) (bridge.Value, ctl, *Trap) {
	var symbol string
	var argOperands []il.Value

	if instr.Op == il.OpCall {
		symbol = instr.Callee
		argOperands = instr.Operands
	} else {
		target := vm.resolve(frame, instr.Operands[0])
		name, ok := vm.calleeName[target.I]
		if !ok {
			return bridge.Value{}, ctl{}, vm.trapAt(frame, instr, "InvalidOperation", "call.indirect through a non-function pointer")
		}
		symbol = name
		argOperands = instr.Operands[1:]
	}

	args := make([]bridge.Value, len(argOperands))
	for i, a := range argOperands {
		args[i] = vm.resolve(frame, a)
	}

	if fn, ok := vm.Mod.FindFunc(symbol); ok {
		if len(vm.frames) >= maxCallDepth {
			return bridge.Value{}, ctl{}, vm.trapAt(frame, instr, "StackOverflow", "")
		}
		return bridge.Value{}, ctl{kind: ctlCall, callee: fn, args: args}, nil
	}

	result, rep := vm.Bridge.Dispatch(vm.Host, symbol, args)
	if rep != nil {
		return bridge.Value{}, ctl{}, vm.trapAt(frame, instr, rep.Code, rep.Message)
	}
	return result, ctl{kind: ctlNext}, nil
}

const maxCallDepth = 4096
