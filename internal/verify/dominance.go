package verify

import (
	"github.com/splanck/viper/internal/diag"
	"github.com/splanck/viper/internal/il"
)

// checkDominance verifies every temp use is dominated by its definition
// (§4.5): the classic SSA requirement, computed here with the standard
// iterative Cooper/Harvey/Kennedy algorithm over the function's CFG rather
// than a full dominator-tree library, since the graphs involved are small
// and the iterative fixpoint converges in a handful of passes.
func (v *funcVerifier) checkDominance() {
	order, rpoIndex := reversePostorder(v.fn)
	if len(order) == 0 {
		return
	}
	preds := predecessors(v.fn)
	idom := computeIdom(order, rpoIndex, preds)

	defBlock, defIndex := definitionSites(v.fn)

	for _, blk := range v.fn.Blocks {
		for i, instr := range blk.Instrs {
			v.checkUses(blk, i, instr, defBlock, defIndex, idom, rpoIndex)
		}
		if blk.Term != nil {
			v.checkUses(blk, len(blk.Instrs), blk.Term, defBlock, defIndex, idom, rpoIndex)
		}
	}
}

func (v *funcVerifier) checkUses(blk *il.BasicBlock, useIndex int, instr *il.Instruction,
	defBlock map[il.TempID]string, defIndex map[il.TempID]int,
	idom map[string]string, rpoIndex map[string]int) {

	for _, operand := range instr.Operands {
		v.checkUse(blk, useIndex, operand, defBlock, defIndex, idom, rpoIndex)
	}
	for _, t := range instr.Targets {
		for _, a := range t.Args {
			v.checkUse(blk, useIndex, a, defBlock, defIndex, idom, rpoIndex)
		}
	}
	for _, c := range instr.Cases {
		for _, a := range c.Target.Args {
			v.checkUse(blk, useIndex, a, defBlock, defIndex, idom, rpoIndex)
		}
	}
	for _, a := range instr.Default.Args {
		v.checkUse(blk, useIndex, a, defBlock, defIndex, idom, rpoIndex)
	}
}

func (v *funcVerifier) checkUse(blk *il.BasicBlock, useIndex int, val il.Value,
	defBlock map[il.TempID]string, defIndex map[il.TempID]int,
	idom map[string]string, rpoIndex map[string]int) {

	if val.Kind != il.ValTemp {
		return
	}
	dLabel, ok := defBlock[val.Temp]
	if !ok {
		v.errf(diag.VfyDominance, "block %s: use of %%%d has no reaching definition", blk.Label, val.Temp)
		return
	}
	if dLabel == blk.Label {
		if defIndex[val.Temp] < useIndex {
			return
		}
		v.errf(diag.VfyDominance, "block %s: %%%d used before its definition", blk.Label, val.Temp)
		return
	}
	if !strictlyDominates(dLabel, blk.Label, idom, rpoIndex) {
		v.errf(diag.VfyDominance, "block %s: use of %%%d is not dominated by its definition in %s", blk.Label, val.Temp, dLabel)
	}
}

// definitionSites maps each temp to the block (and, for same-block use
// checks, the instruction index) where it is defined. Function parameters
// and entry-block are treated as defined at index -1 of the entry block, so
// any use anywhere in the function is accepted; block parameters are
// likewise defined at index -1 of their own block.
func definitionSites(fn *il.Function) (map[il.TempID]string, map[il.TempID]int) {
	block := make(map[il.TempID]string)
	index := make(map[il.TempID]int)
	entry := fn.Entry()
	for _, p := range fn.Params {
		block[p.Temp] = entry.Label
		index[p.Temp] = -1
	}
	for _, blk := range fn.Blocks {
		for _, p := range blk.Params {
			block[p.Temp] = blk.Label
			index[p.Temp] = -1
		}
		for i, instr := range blk.Instrs {
			if instr.HasResult {
				block[instr.Result] = blk.Label
				index[instr.Result] = i
			}
			if instr.HasResult2 {
				block[instr.Result2] = blk.Label
				index[instr.Result2] = i
			}
		}
		if instr := blk.Term; instr != nil {
			if instr.HasResult {
				block[instr.Result] = blk.Label
				index[instr.Result] = len(blk.Instrs)
			}
		}
	}
	return block, index
}

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

// reversePostorder walks the CFG depth-first from the entry block and
// returns blocks in reverse postorder, the order the dominator fixpoint
// needs to converge quickly. Unreachable blocks are omitted.
func reversePostorder(fn *il.Function) ([]string, map[string]int) {
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
		return nil, nil
	}
	visit(entry.Label)

	order := make([]string, len(post))
	rpoIndex := make(map[string]int, len(post))
	for i, label := range post {
		order[len(post)-1-i] = label
		rpoIndex[label] = len(post) - 1 - i
	}
	return order, rpoIndex
}

func computeIdom(order []string, rpoIndex map[string]int, preds map[string][]string) map[string]string {
	idom := make(map[string]string, len(order))
	entry := order[0]
	idom[entry] = entry

	changed := true
	for changed {
		changed = false
		for _, label := range order[1:] {
			var newIdom string
			first := true
			for _, p := range preds[label] {
				if _, ok := idom[p]; !ok {
					continue
				}
				if first {
					newIdom = p
					first = false
					continue
				}
				newIdom = intersect(newIdom, p, idom, rpoIndex)
			}
			if newIdom != "" && idom[label] != newIdom {
				idom[label] = newIdom
				changed = true
			}
		}
	}
	return idom
}

func intersect(a, b string, idom map[string]string, rpoIndex map[string]int) string {
	for a != b {
		for rpoIndex[a] > rpoIndex[b] {
			a = idom[a]
		}
		for rpoIndex[b] > rpoIndex[a] {
			b = idom[b]
		}
	}
	return a
}

// strictlyDominates reports whether def strictly dominates use (def != use
// and every path from entry to use passes through def).
func strictlyDominates(def, use string, idom map[string]string, rpoIndex map[string]int) bool {
	if def == use {
		return false
	}
	cur, ok := idom[use]
	if !ok {
		return false
	}
	for {
		if cur == def {
			return true
		}
		parent, ok := idom[cur]
		if !ok || parent == cur {
			return cur == def
		}
		cur = parent
	}
}
