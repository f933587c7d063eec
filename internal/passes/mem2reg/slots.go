package mem2reg

import "github.com/splanck/viper/internal/il"

// slot describes one candidate alloca for promotion: its defining
// instruction, the element type its loads/stores agree on, and whether its
// address escapes.
type slot struct {
	alloca *il.Instruction
	typ    il.Type // agreed element type across every load/store; Void if never loaded or stored
	escape bool
}

// promotableSlots runs the escape analysis step of §4.10.1: a slot is
// promotable iff every use of its address is exactly the address operand of
// a load or store, and every load/store referencing it agrees on one of
// i1, i64, or f64.
func promotableSlots(fn *il.Function) map[il.TempID]*slot {
	slots := make(map[il.TempID]*slot)
	for _, blk := range fn.Blocks {
		for _, instr := range blk.Instrs {
			if instr.Op == il.OpAlloca && instr.HasResult {
				slots[instr.Result] = &slot{alloca: instr}
			}
		}
	}
	if len(slots) == 0 {
		return nil
	}

	mark := func(v il.Value, safe bool) {
		if v.Kind != il.ValTemp {
			return
		}
		if s, ok := slots[v.Temp]; ok && !safe {
			s.escape = true
		}
	}
	markArgs := func(args []il.Value) {
		for _, a := range args {
			mark(a, false)
		}
	}

	for _, blk := range fn.Blocks {
		all := blk.Instrs
		if blk.Term != nil {
			all = append(append([]*il.Instruction{}, blk.Instrs...), blk.Term)
		}
		for _, instr := range all {
			for i, opnd := range instr.Operands {
				addressOperand := i == 0 && (instr.Op == il.OpLoad || instr.Op == il.OpStore)
				mark(opnd, addressOperand)
			}
			for _, t := range instr.Targets {
				markArgs(t.Args)
			}
			for _, c := range instr.Cases {
				markArgs(c.Target.Args)
			}
			markArgs(instr.Default.Args)
		}
	}

	// A second scan records each non-escaping slot's agreed element type;
	// a disagreement (or a type outside the promotable scope) also
	// disqualifies it, same as an address escape.
	for _, instr := range loadsAndStores(fn) {
		addr := instr.Operands[0]
		if addr.Kind != il.ValTemp {
			continue
		}
		s, ok := slots[addr.Temp]
		if !ok || s.escape {
			continue
		}
		if s.typ == il.Void {
			s.typ = instr.ResultType
		} else if s.typ != instr.ResultType {
			s.escape = true
		}
	}

	out := make(map[il.TempID]*slot)
	for temp, s := range slots {
		if s.escape {
			continue
		}
		if s.typ != il.Void && s.typ != il.I1 && s.typ != il.I64 && s.typ != il.F64 {
			continue
		}
		out[temp] = s
	}
	return out
}

// loadsAndStores flattens every load/store instruction in fn, regardless of
// block, for the slot-type agreement scan above.
func loadsAndStores(fn *il.Function) []*il.Instruction {
	var out []*il.Instruction
	for _, blk := range fn.Blocks {
		for _, instr := range blk.Instrs {
			if instr.Op == il.OpLoad || instr.Op == il.OpStore {
				out = append(out, instr)
			}
		}
	}
	return out
}
