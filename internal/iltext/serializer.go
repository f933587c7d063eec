package iltext

import (
	"fmt"
	"sort"
	"strings"

	"github.com/splanck/viper/internal/il"
)

// Serialize renders a module to its canonical textual form (§4.3):
// version, optional target, externs, globals, and functions each in
// insertion order; within a function, blocks in a stable depth-first
// preorder from the entry block (ties broken by label), and temp ids
// renumbered into the canonical dense range at emission time.
func Serialize(mod *il.Module) string {
	var b strings.Builder
	fmt.Fprintf(&b, "il %s\n", mod.Version)
	if mod.Target != "" {
		fmt.Fprintf(&b, "target %q\n", mod.Target)
	}
	for _, e := range mod.Externs {
		fmt.Fprintf(&b, "extern @%s%s\n", e.Name, sigString(e.Sig))
	}
	for _, g := range mod.Globals {
		b.WriteString(serializeGlobal(g))
	}
	for _, fn := range mod.Funcs {
		b.WriteString(serializeFunc(fn))
	}
	return b.String()
}

func sigString(sig il.Signature) string {
	parts := make([]string, len(sig.Params))
	for i, p := range sig.Params {
		parts[i] = p.String()
	}
	return fmt.Sprintf("(%s) -> %s", strings.Join(parts, ", "), sig.Ret)
}

func serializeGlobal(g *il.Global) string {
	kw := "global"
	constKw := ""
	if g.Const {
		constKw = "const "
	}
	if g.Typ == il.Str {
		return fmt.Sprintf("%s %s%s @%s = %q\n", kw, constKw, g.Typ, g.Name, g.StrInit)
	}
	if g.HasInit {
		return fmt.Sprintf("%s %s%s @%s = %d\n", kw, constKw, g.Typ, g.Name, g.IntInit)
	}
	return fmt.Sprintf("%s %s%s @%s\n", kw, constKw, g.Typ, g.Name)
}

// canonicalBlockOrder walks the CFG depth-first from the entry block,
// breaking ties between sibling successors by label, and returns blocks in
// that order. Blocks not reached through terminator successors (such as a
// handler block named only by eh.push) are appended afterward in source
// order.
func canonicalBlockOrder(fn *il.Function) []*il.BasicBlock {
	if len(fn.Blocks) == 0 {
		return nil
	}
	visited := make(map[string]bool, len(fn.Blocks))
	var order []*il.BasicBlock
	var visit func(b *il.BasicBlock)
	visit = func(b *il.BasicBlock) {
		if b == nil || visited[b.Label] {
			return
		}
		visited[b.Label] = true
		order = append(order, b)
		succs := successorLabels(fn, b)
		sort.Strings(succs)
		for _, l := range succs {
			if next, ok := fn.Block(l); ok {
				visit(next)
			}
		}
	}
	visit(fn.Entry())
	for _, b := range fn.Blocks {
		if !visited[b.Label] {
			visited[b.Label] = true
			order = append(order, b)
		}
	}
	return order
}

func successorLabels(fn *il.Function, b *il.BasicBlock) []string {
	if b.Term == nil {
		return nil
	}
	var out []string
	for _, t := range b.Term.Targets {
		out = append(out, t.Label)
	}
	for _, c := range b.Term.Cases {
		out = append(out, c.Target.Label)
	}
	if b.Term.Default.Label != "" {
		out = append(out, b.Term.Default.Label)
	}
	return out
}

type tempRenumberer struct {
	next int
	m    map[il.TempID]il.TempID
}

func newTempRenumberer() *tempRenumberer {
	return &tempRenumberer{m: make(map[il.TempID]il.TempID)}
}

func (r *tempRenumberer) id(old il.TempID) il.TempID {
	if n, ok := r.m[old]; ok {
		return n
	}
	n := il.TempID(r.next)
	r.next++
	r.m[old] = n
	return n
}

func (r *tempRenumberer) value(v il.Value) il.Value {
	if v.Kind == il.ValTemp {
		v.Temp = r.id(v.Temp)
	}
	return v
}

func serializeFunc(fn *il.Function) string {
	var b strings.Builder
	r := newTempRenumberer()

	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = fmt.Sprintf("%%%d: %s", r.id(p.Temp), p.Typ)
	}
	fmt.Fprintf(&b, "func @%s(%s) -> %s {\n", fn.Name, strings.Join(params, ", "), fn.Ret)

	for _, blk := range canonicalBlockOrder(fn) {
		writeBlock(&b, blk, r)
	}
	b.WriteString("}\n")
	return b.String()
}

func writeBlock(b *strings.Builder, blk *il.BasicBlock, r *tempRenumberer) {
	if len(blk.Params) == 0 {
		fmt.Fprintf(b, "%s:\n", blk.Label)
	} else {
		parts := make([]string, len(blk.Params))
		for i, p := range blk.Params {
			parts[i] = fmt.Sprintf("%%%d: %s", r.id(p.Temp), p.Typ)
		}
		fmt.Fprintf(b, "%s(%s):\n", blk.Label, strings.Join(parts, ", "))
	}
	for _, instr := range blk.Instrs {
		b.WriteString("  ")
		writeInstr(b, instr, r)
		b.WriteString("\n")
	}
	if blk.Term != nil {
		b.WriteString("  ")
		writeInstr(b, blk.Term, r)
		b.WriteString("\n")
	}
}

func writeTarget(t il.BranchTarget, r *tempRenumberer) string {
	if len(t.Args) == 0 {
		return "^" + t.Label
	}
	args := make([]string, len(t.Args))
	for i, a := range t.Args {
		args[i] = r.value(a).String()
	}
	return fmt.Sprintf("^%s(%s)", t.Label, strings.Join(args, ", "))
}

func writeInstr(b *strings.Builder, instr *il.Instruction, r *tempRenumberer) {
	if instr.HasResult {
		fmt.Fprintf(b, "%%%d", r.id(instr.Result))
		if instr.HasResult2 {
			fmt.Fprintf(b, ", %%%d", r.id(instr.Result2))
		}
		b.WriteString(" = ")
	}
	b.WriteString(instr.Op.String())

	switch instr.Op {
	case il.OpBr:
		fmt.Fprintf(b, " %s", writeTarget(instr.Targets[0], r))
	case il.OpCbr:
		fmt.Fprintf(b, " %s, %s, %s", r.value(instr.Operands[0]), writeTarget(instr.Targets[0], r), writeTarget(instr.Targets[1], r))
	case il.OpSwitchI32:
		fmt.Fprintf(b, " %s, %s", r.value(instr.Operands[0]), writeTarget(instr.Default, r))
		for _, c := range instr.Cases {
			fmt.Fprintf(b, ", %d -> %s", c.Key, writeTarget(c.Target, r))
		}
	case il.OpResumeLabel:
		fmt.Fprintf(b, " %s, %s", r.value(instr.Operands[0]), writeTarget(instr.Targets[0], r))
	case il.OpEHPush:
		fmt.Fprintf(b, " ^%s", instr.Handler)
	case il.OpEHPop, il.OpEHEntry, il.OpTrap:
		// no operands
	case il.OpCall:
		args := make([]string, len(instr.Operands))
		for i, a := range instr.Operands {
			args[i] = r.value(a).String()
		}
		fmt.Fprintf(b, " @%s(%s)", instr.Callee, strings.Join(args, ", "))
	case il.OpCallIndirect:
		fn := r.value(instr.Operands[0])
		args := make([]string, len(instr.Operands)-1)
		for i, a := range instr.Operands[1:] {
			args[i] = r.value(a).String()
		}
		fmt.Fprintf(b, " %s(%s)", fn, strings.Join(args, ", "))
		if instr.CalleeSig != nil {
			fmt.Fprintf(b, " : %s", sigString(*instr.CalleeSig))
		}
	case il.OpAlloca:
		fmt.Fprintf(b, " %s", r.value(instr.Operands[0]))
	case il.OpLoad:
		fmt.Fprintf(b, " %s, %s", instr.ResultType, r.value(instr.Operands[0]))
	case il.OpStore:
		fmt.Fprintf(b, " %s, %s, %s", instr.ResultType, r.value(instr.Operands[0]), r.value(instr.Operands[1]))
	case il.OpGep:
		fmt.Fprintf(b, " %s, %s", r.value(instr.Operands[0]), r.value(instr.Operands[1]))
	case il.OpZext1, il.OpCastFPToSIRteChk, il.OpCastFPToUIRteChk, il.OpCastSINarrowChk, il.OpCastUINarrowChk:
		fmt.Fprintf(b, " %s, %s", instr.ResultType, r.value(instr.Operands[0]))
	case il.OpRet:
		if len(instr.Operands) > 0 {
			fmt.Fprintf(b, " %s", r.value(instr.Operands[0]))
		}
	default:
		parts := make([]string, len(instr.Operands))
		for i, o := range instr.Operands {
			parts[i] = r.value(o).String()
		}
		if len(parts) > 0 {
			b.WriteString(" ")
			b.WriteString(strings.Join(parts, ", "))
		}
	}
}
