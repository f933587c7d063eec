package vm

import (
	"github.com/splanck/viper/internal/bridge"
	"github.com/splanck/viper/internal/il"
)

// execEH implements the exception-handling family: the handler stack
// brackets (eh.push/eh.pop), the handler entry point (eh.entry), the three
// resume forms, and the error-record accessors (§4.8).
func (vm *VM) execEH(frame *Frame, instr *il.Instruction) (bridge.Value, ctl, *Trap) {
	switch instr.Op {
	case il.OpEHPush:
		vm.handlers = append(vm.handlers, &handlerEntry{
			frameDepth:   len(vm.frames) - 1,
			handlerLabel: instr.Handler,
			savedMark:    vm.Arena.Mark(),
		})
		return bridge.Value{}, ctl{kind: ctlNext}, nil

	case il.OpEHPop:
		if len(vm.handlers) == 0 {
			return bridge.Value{}, ctl{}, vm.trapAt(frame, instr, "InvalidOperation", "eh.pop with an empty handler stack")
		}
		vm.handlers = vm.handlers[:len(vm.handlers)-1]
		return bridge.Value{}, ctl{kind: ctlNext}, nil

	case il.OpEHEntry:
		trap := vm.pendingTrap
		vm.pendingTrap = nil
		if trap == nil {
			return bridge.Value{}, ctl{}, vm.trapAt(frame, instr, "InvalidOperation", "eh.entry outside a handler")
		}
		errVal := bridge.ErrVal(&bridge.ErrorRecord{Kind: trap.Kind, Code: trap.Code, IP: int64(trap.Index), Line: int32(trap.Line)})
		resumeVal := bridge.Value{Typ: il.ResumeTok, S: trap.Block, I: int64(trap.Index)}
		if instr.HasResult2 {
			frame.Locals[instr.Result2] = resumeVal
		}
		return errVal, ctl{kind: ctlNext}, nil

	case il.OpResumeSame:
		tok := vm.resolve(frame, instr.Operands[0])
		blk, ok := frame.Fn.Block(tok.S)
		if !ok {
			return bridge.Value{}, ctl{}, vm.trapAt(frame, instr, "InvalidOperation", "resumetok references an unknown block")
		}
		return bridge.Value{}, ctl{kind: ctlGoto, block: blk, index: int(tok.I)}, nil

	case il.OpResumeNext:
		tok := vm.resolve(frame, instr.Operands[0])
		blk, ok := frame.Fn.Block(tok.S)
		if !ok {
			return bridge.Value{}, ctl{}, vm.trapAt(frame, instr, "InvalidOperation", "resumetok references an unknown block")
		}
		return bridge.Value{}, ctl{kind: ctlGoto, block: blk, index: int(tok.I) + 1}, nil

	case il.OpResumeLabel:
		return bridge.Value{}, vm.jumpTo(frame, instr.Targets[0]), nil

	case il.OpErrGetKind:
		e := vm.resolve(frame, instr.Operands[0])
		return bridge.Int(il.I32, int64(trapKindIndex(e.Err))), ctl{kind: ctlNext}, nil

	case il.OpErrGetCode:
		e := vm.resolve(frame, instr.Operands[0])
		if e.Err == nil {
			return bridge.Int(il.I32, 0), ctl{kind: ctlNext}, nil
		}
		return bridge.Int(il.I32, int64(e.Err.Code)), ctl{kind: ctlNext}, nil

	case il.OpErrGetIP:
		e := vm.resolve(frame, instr.Operands[0])
		if e.Err == nil {
			return bridge.Int(il.I64, 0), ctl{kind: ctlNext}, nil
		}
		return bridge.Int(il.I64, e.Err.IP), ctl{kind: ctlNext}, nil

	case il.OpErrGetLine:
		e := vm.resolve(frame, instr.Operands[0])
		if e.Err == nil {
			return bridge.Int(il.I32, 0), ctl{kind: ctlNext}, nil
		}
		return bridge.Int(il.I32, int64(e.Err.Line)), ctl{kind: ctlNext}, nil
	}
	return bridge.Value{}, ctl{}, vm.trapAt(frame, instr, "InvalidOperation", instr.Op.String())
}

func trapKindIndex(e *bridge.ErrorRecord) int {
	if e == nil {
		return -1
	}
	for i, k := range trapKindOrder {
		if k == e.Kind {
			return i
		}
	}
	return -1
}
