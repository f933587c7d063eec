// Package mem2reg implements stack-slot-to-SSA promotion (C10.1, §4.10.1):
// seal-and-rename over a verified function, replacing alloca/load/store
// triples with block-parameter threading wherever a slot's address never
// escapes a load or store.
package mem2reg

import "github.com/splanck/viper/internal/il"

// Stats reports the pass's observable effect (§4.10.1: "counts of promoted
// variables and eliminated loads/stores are exposed as pass statistics").
type Stats struct {
	PromotedSlots    int
	EliminatedLoads  int
	EliminatedStores int
}

// Run promotes every eligible stack slot in fn, mutating fn in place, and
// returns the pass's statistics. fn is assumed already verified: every
// branch argument list matches its target's parameter list, and every use
// is dominated by its definition.
func Run(fn *il.Function) Stats {
	slots := promotableSlots(fn)
	if len(slots) == 0 {
		return Stats{}
	}

	order := reversePostorder(fn)
	rpoIndex := make(map[string]int, len(order))
	for i, label := range order {
		rpoIndex[label] = i
	}

	p := &promoter{
		fn:            fn,
		slots:         slots,
		rpoIndex:      rpoIndex,
		currentAtExit: make(map[string]map[il.TempID]il.Value),
		subst:         make(map[il.TempID]il.Value),
		pendingFixups: make(map[string][]fixup),
		dropInstr:     make(map[*il.Instruction]bool),
	}
	for _, s := range slots {
		p.dropInstr[s.alloca] = true // every use is a load/store, both dropped below; the slot itself always becomes dead
	}

	for _, label := range order {
		blk, _ := fn.Block(label)
		p.processBlock(blk)
		for _, fx := range p.pendingFixups[label] {
			fx.target.Args[fx.argIdx] = p.exitValue(label, fx.slotTemp)
		}
		delete(p.pendingFixups, label)
	}

	p.collapseTrivialParams()
	p.removeTrivialParams()
	p.rewriteAll()
	p.dropDeadInstructions()

	p.stats.PromotedSlots = len(slots)
	return p.stats
}

// fixup is a deferred branch argument: the value flowing into block's
// edge at argIdx isn't known until pred (a loop back edge at the time the
// placeholder was created) finishes processing.
type fixup struct {
	target   *il.BranchTarget
	argIdx   int
	slotTemp il.TempID
}

// paramRef names one block parameter mem2reg introduced, for the
// trivial-phi collapse pass.
type paramRef struct {
	block     string
	paramTemp il.TempID
}

type promoter struct {
	fn            *il.Function
	slots         map[il.TempID]*slot
	rpoIndex      map[string]int
	currentAtExit map[string]map[il.TempID]il.Value
	subst         map[il.TempID]il.Value
	pendingFixups map[string][]fixup
	introduced    []paramRef
	dropInstr     map[*il.Instruction]bool
	stats         Stats
}

// processBlock replaces this block's loads/stores of promotable slots with
// current-value tracking, per §4.10.1 steps 2-4.
func (p *promoter) processBlock(blk *il.BasicBlock) {
	current := make(map[il.TempID]il.Value)
	p.currentAtExit[blk.Label] = current

	for _, instr := range blk.Instrs {
		switch instr.Op {
		case il.OpLoad:
			if val, ok := p.slotLoadValue(blk.Label, current, instr); ok {
				if instr.HasResult {
					p.subst[instr.Result] = val
				}
				p.dropInstr[instr] = true
				p.stats.EliminatedLoads++
			}
		case il.OpStore:
			if p.slotStoreValue(current, instr) {
				p.dropInstr[instr] = true
				p.stats.EliminatedStores++
			}
		}
	}
}

func (p *promoter) slotLoadValue(label string, current map[il.TempID]il.Value, instr *il.Instruction) (il.Value, bool) {
	addr := instr.Operands[0]
	if addr.Kind != il.ValTemp {
		return il.Value{}, false
	}
	if _, ok := p.slots[addr.Temp]; !ok {
		return il.Value{}, false
	}
	val, ok := current[addr.Temp]
	if !ok {
		val = p.entryValue(label, addr.Temp)
		current[addr.Temp] = val
	}
	return val, true
}

func (p *promoter) slotStoreValue(current map[il.TempID]il.Value, instr *il.Instruction) bool {
	addr := instr.Operands[0]
	if addr.Kind != il.ValTemp {
		return false
	}
	if _, ok := p.slots[addr.Temp]; !ok {
		return false
	}
	current[addr.Temp] = p.chase(instr.Operands[1])
	return true
}

// chase follows a temp through mem2reg's own substitution map (dropped
// loads, and later collapsed trivial block parameters) to its final value.
func (p *promoter) chase(v il.Value) il.Value {
	for v.Kind == il.ValTemp {
		r, ok := p.subst[v.Temp]
		if !ok {
			break
		}
		v = r
	}
	return v
}

// exitValue is the current value of slotTemp at the end of label, computing
// and caching it on first request — lazily, so a slot a block never
// touches only ever gets a pass-through entry looked up when something
// downstream actually needs it.
func (p *promoter) exitValue(label string, slotTemp il.TempID) il.Value {
	m, ok := p.currentAtExit[label]
	if !ok {
		m = make(map[il.TempID]il.Value)
		p.currentAtExit[label] = m
	}
	if v, ok2 := m[slotTemp]; ok2 {
		return p.chase(v)
	}
	v := p.entryValue(label, slotTemp)
	m[slotTemp] = v
	return p.chase(v)
}

// entryValue computes the value flowing into label for slotTemp from its
// predecessors (§4.10.1 step 5): no predecessor means an unread stack slot
// at function entry, one already-processed predecessor means a plain
// pass-through, and anything else needs a block-parameter placeholder.
func (p *promoter) entryValue(label string, slotTemp il.TempID) il.Value {
	edges := incomingEdges(p.fn, label)
	preds := uniquePreds(edges)
	if len(preds) == 0 {
		return zeroValue(p.slots[slotTemp].typ)
	}
	if len(preds) == 1 && p.rpoIndex[preds[0]] < p.rpoIndex[label] {
		return p.exitValue(preds[0], slotTemp)
	}
	return p.newPlaceholder(label, slotTemp, edges)
}

// newPlaceholder adds a fresh block parameter to label for slotTemp and
// backfills every incoming edge's argument: immediately for predecessors
// already processed, or via a recorded fixup for a loop's not-yet-processed
// back edge. The parameter is recorded as a trivial-phi collapse candidate
// regardless of how many edges fed it.
func (p *promoter) newPlaceholder(label string, slotTemp il.TempID, edges []edge) il.Value {
	blk, _ := p.fn.Block(label)
	paramTemp := p.fn.NumTemp
	p.fn.NumTemp++
	blk.Params = append(blk.Params, il.BlockParam{Typ: p.slots[slotTemp].typ, Temp: paramTemp})
	p.introduced = append(p.introduced, paramRef{block: label, paramTemp: paramTemp})

	val := il.Temp(paramTemp)
	if p.currentAtExit[label] == nil {
		p.currentAtExit[label] = make(map[il.TempID]il.Value)
	}
	p.currentAtExit[label][slotTemp] = val // self-reference sees the placeholder, not an infinite recursion

	for _, e := range edges {
		e.target.Args = append(e.target.Args, il.Value{})
		argIdx := len(e.target.Args) - 1
		if p.rpoIndex[e.pred] < p.rpoIndex[label] {
			e.target.Args[argIdx] = p.exitValue(e.pred, slotTemp)
		} else {
			p.pendingFixups[e.pred] = append(p.pendingFixups[e.pred], fixup{target: e.target, argIdx: argIdx, slotTemp: slotTemp})
		}
	}
	return val
}

// collapseTrivialParams resolves every mem2reg-introduced parameter whose
// incoming edges (ignoring self-references) all agree on one value,
// per §4.10.1 step 5's "remove the parameter and redirect uses to the
// unique incoming value." Iterates to a fixpoint since collapsing one
// parameter can make another (feeding it) trivial in turn.
func (p *promoter) collapseTrivialParams() {
	changed := true
	for changed {
		changed = false
		for _, ref := range p.introduced {
			if _, done := p.subst[ref.paramTemp]; done {
				continue
			}
			blk, ok := p.fn.Block(ref.block)
			if !ok {
				continue
			}
			idx := paramIndex(blk, ref.paramTemp)
			if idx < 0 {
				continue
			}
			edges := incomingEdges(p.fn, ref.block)
			var common il.Value
			haveCommon, trivial := false, true
			for _, e := range edges {
				if idx >= len(e.target.Args) {
					trivial = false
					break
				}
				v := p.chase(e.target.Args[idx])
				if v.Kind == il.ValTemp && v.Temp == ref.paramTemp {
					continue
				}
				if !haveCommon {
					common, haveCommon = v, true
					continue
				}
				if !common.Equal(v) {
					trivial = false
					break
				}
			}
			if trivial && haveCommon {
				p.subst[ref.paramTemp] = common
				changed = true
			}
		}
	}
}

// removeTrivialParams physically deletes every collapsed parameter from
// its block's Params and the matching argument from every incoming edge.
func (p *promoter) removeTrivialParams() {
	byBlock := make(map[string][]il.TempID)
	for _, ref := range p.introduced {
		if _, ok := p.subst[ref.paramTemp]; ok {
			byBlock[ref.block] = append(byBlock[ref.block], ref.paramTemp)
		}
	}
	for label, temps := range byBlock {
		blk, ok := p.fn.Block(label)
		if !ok {
			continue
		}
		edges := incomingEdges(p.fn, label)
		for {
			removedOne := false
			for _, t := range temps {
				idx := paramIndex(blk, t)
				if idx < 0 {
					continue
				}
				blk.Params = append(blk.Params[:idx], blk.Params[idx+1:]...)
				for _, e := range edges {
					if idx < len(e.target.Args) {
						e.target.Args = append(e.target.Args[:idx], e.target.Args[idx+1:]...)
					}
				}
				removedOne = true
				break
			}
			if !removedOne {
				break
			}
		}
	}
}

// rewriteAll applies the final chased substitution map to every remaining
// operand and branch argument in the function.
func (p *promoter) rewriteAll() {
	for _, blk := range p.fn.Blocks {
		for _, instr := range blk.Instrs {
			p.rewriteInstr(instr)
		}
		if blk.Term != nil {
			p.rewriteInstr(blk.Term)
		}
	}
}

func (p *promoter) rewriteInstr(instr *il.Instruction) {
	for i, v := range instr.Operands {
		instr.Operands[i] = p.chase(v)
	}
	for i := range instr.Targets {
		p.rewriteArgs(instr.Targets[i].Args)
	}
	for i := range instr.Cases {
		p.rewriteArgs(instr.Cases[i].Target.Args)
	}
	p.rewriteArgs(instr.Default.Args)
}

func (p *promoter) rewriteArgs(args []il.Value) {
	for i, v := range args {
		args[i] = p.chase(v)
	}
}

// dropDeadInstructions removes every dropped load/store and every now-dead
// promoted alloca from its owning block.
func (p *promoter) dropDeadInstructions() {
	if len(p.dropInstr) == 0 {
		return
	}
	for _, blk := range p.fn.Blocks {
		kept := blk.Instrs[:0]
		for _, instr := range blk.Instrs {
			if p.dropInstr[instr] {
				continue
			}
			kept = append(kept, instr)
		}
		blk.Instrs = kept
	}
}

func uniquePreds(edges []edge) []string {
	seen := make(map[string]bool, len(edges))
	var out []string
	for _, e := range edges {
		if !seen[e.pred] {
			seen[e.pred] = true
			out = append(out, e.pred)
		}
	}
	return out
}

func paramIndex(blk *il.BasicBlock, temp il.TempID) int {
	for i, pm := range blk.Params {
		if pm.Temp == temp {
			return i
		}
	}
	return -1
}

// zeroValue is the value an unwritten stack slot reads as at function
// entry: a type-correct zero, since the IL has no "uninitialized" value.
func zeroValue(t il.Type) il.Value {
	switch t {
	case il.I1:
		return il.ConstBool(false)
	case il.F64:
		return il.ConstFloat(0)
	default:
		return il.ConstInt(0)
	}
}
