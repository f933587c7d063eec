package mem2reg

import "github.com/splanck/viper/internal/il"

// successors, predecessors, and reversePostorder mirror the teacher-shaped
// helpers internal/verify's dominance check uses — this pass needs its own
// copy because it also needs addressable *il.BranchTarget handles into
// predecessor terminators (to append new block-parameter arguments),
// something a read-only verifier pass never needs.
func successors(instr *il.Instruction) []string {
	if instr == nil {
		return nil
	}
	var out []string
	for _, t := range instr.Targets {
		out = append(out, t.Label)
	}
	for _, c := range instr.Cases {
		out = append(out, c.Target.Label)
	}
	if instr.Op == il.OpSwitchI32 && instr.Default.Label != "" {
		out = append(out, instr.Default.Label)
	}
	return out
}

func predecessors(fn *il.Function) map[string][]string {
	preds := make(map[string][]string)
	for _, blk := range fn.Blocks {
		for _, s := range successors(blk.Term) {
			preds[s] = append(preds[s], blk.Label)
		}
	}
	return preds
}

// reversePostorder walks the CFG depth-first from the entry block. Blocks
// unreachable from entry are omitted — mem2reg never touches them.
func reversePostorder(fn *il.Function) []string {
	visited := make(map[string]bool)
	var post []string
	var visit func(label string)
	visit = func(label string) {
		if visited[label] {
			return
		}
		visited[label] = true
		blk, ok := fn.Block(label)
		if !ok {
			return
		}
		for _, s := range successors(blk.Term) {
			visit(s)
		}
		post = append(post, label)
	}
	entry := fn.Entry()
	if entry == nil {
		return nil
	}
	visit(entry.Label)

	order := make([]string, len(post))
	for i, label := range post {
		order[len(post)-1-i] = label
	}
	return order
}

// edge is one incoming branch into a block: the predecessor it comes from
// and an addressable handle into the actual terminator operand carrying its
// argument list, so appending a new block-parameter argument mutates the
// terminator in place.
type edge struct {
	pred   string
	target *il.BranchTarget
}

// incomingEdges returns every edge targeting label, found by scanning every
// block's terminator.
func incomingEdges(fn *il.Function, label string) []edge {
	var edges []edge
	for _, blk := range fn.Blocks {
		term := blk.Term
		if term == nil {
			continue
		}
		for i := range term.Targets {
			if term.Targets[i].Label == label {
				edges = append(edges, edge{pred: blk.Label, target: &term.Targets[i]})
			}
		}
		for i := range term.Cases {
			if term.Cases[i].Target.Label == label {
				edges = append(edges, edge{pred: blk.Label, target: &term.Cases[i].Target})
			}
		}
		if term.Op == il.OpSwitchI32 && term.Default.Label == label {
			edges = append(edges, edge{pred: blk.Label, target: &term.Default})
		}
	}
	return edges
}
