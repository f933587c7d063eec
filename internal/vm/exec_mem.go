package vm

import (
	"github.com/splanck/viper/internal/bridge"
	"github.com/splanck/viper/internal/il"
)

func (vm *VM) execMemory(frame *Frame, instr *il.Instruction) (bridge.Value, ctl, *Trap) {
	switch instr.Op {
	case il.OpAlloca:
		size := vm.resolve(frame, instr.Operands[0])
		if size.I < 0 {
			return bridge.Value{}, ctl{}, vm.trapAt(frame, instr, "InvalidOperation", "negative alloca size")
		}
		addr := vm.Arena.Alloc(size.I)
		return bridge.Ptr(addr), ctl{kind: ctlNext}, nil

	case il.OpGep:
		base := vm.resolve(frame, instr.Operands[0])
		off := vm.resolve(frame, instr.Operands[1])
		return bridge.Ptr(base.I + off.I), ctl{kind: ctlNext}, nil

	case il.OpIdxChk:
		i := vm.resolve(frame, instr.Operands[0])
		b := vm.resolve(frame, instr.Operands[1])
		if i.I < 0 || i.I >= b.I {
			return bridge.Value{}, ctl{}, vm.trapAt(frame, instr, "BadIndex", "")
		}
		return bridge.Int(il.I64, i.I), ctl{kind: ctlNext}, nil

	case il.OpLoad:
		addr := vm.resolve(frame, instr.Operands[0])
		if trap := vm.checkAddr(frame, instr, addr.I, instr.ResultType); trap != nil {
			return bridge.Value{}, ctl{}, trap
		}
		buf, ok := vm.Arena.Bytes(addr.I, int64(instr.ResultType.Size()))
		if !ok {
			return bridge.Value{}, ctl{}, vm.trapAt(frame, instr, "InvalidOperation", "load out of bounds")
		}
		return decode(instr.ResultType, buf, vm.handles), ctl{kind: ctlNext}, nil

	case il.OpStore:
		addr := vm.resolve(frame, instr.Operands[0])
		val := vm.resolve(frame, instr.Operands[1])
		if trap := vm.checkAddr(frame, instr, addr.I, val.Typ); trap != nil {
			return bridge.Value{}, ctl{}, trap
		}
		buf, ok := vm.Arena.Bytes(addr.I, int64(val.Typ.Size()))
		if !ok {
			return bridge.Value{}, ctl{}, vm.trapAt(frame, instr, "InvalidOperation", "store out of bounds")
		}
		copy(buf, encode(val.Typ, val, vm.handles))
		return bridge.Value{}, ctl{kind: ctlNext}, nil

	case il.OpAddrOf:
		return vm.resolve(frame, instr.Operands[0]), ctl{kind: ctlNext}, nil

	case il.OpConstStr:
		g, ok := vm.Mod.FindGlobal(instr.Operands[0].Sym)
		if !ok {
			return bridge.Value{}, ctl{}, vm.trapAt(frame, instr, "InvalidOperation", "undefined global")
		}
		return bridge.Str(g.StrInit), ctl{kind: ctlNext}, nil

	case il.OpConstNull:
		return bridge.Ptr(0), ctl{kind: ctlNext}, nil
	}
	return bridge.Value{}, ctl{}, vm.trapAt(frame, instr, "InvalidOperation", instr.Op.String())
}

// checkAddr enforces load/store's null and 8-byte-alignment preconditions
// (§4.8: "load/store check null and 8-byte alignment for 8-byte element
// types and trap otherwise").
func (vm *VM) checkAddr(frame *Frame, instr *il.Instruction, addr int64, elemType il.Type) *Trap {
	if addr == 0 {
		return vm.trapAt(frame, instr, "NullPointer", "")
	}
	if elemType.RequiresEightByteAlignment() && addr%8 != 0 {
		return vm.trapAt(frame, instr, "Misaligned", "")
	}
	return nil
}
