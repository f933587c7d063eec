package verify

import (
	"github.com/splanck/viper/internal/diag"
	"github.com/splanck/viper/internal/il"
)

// checkEHShape verifies the exception-handling instruction family's
// placement rules (§4.7): eh.entry may appear only as the first
// instruction of a block that is the declared handler target of some
// eh.push, and resume.* only operates on a resumetok value (already
// checked by checkOperandTypes; this pass adds the placement rule).
func (v *funcVerifier) checkEHShape() {
	handlerTargets := make(map[string]bool)
	for _, blk := range v.fn.Blocks {
		for _, instr := range blk.Instrs {
			if instr.Op == il.OpEHPush {
				handlerTargets[instr.Handler] = true
			}
		}
	}

	for _, blk := range v.fn.Blocks {
		for i, instr := range blk.Instrs {
			if instr.Op != il.OpEHEntry {
				continue
			}
			if i != 0 {
				v.errf(diag.VfyEHShape, "block %s: eh.entry must be the first instruction", blk.Label)
			}
			if !handlerTargets[blk.Label] {
				v.errf(diag.VfyEHShape, "block %s: eh.entry used in a block that is not a pushed handler target", blk.Label)
			}
			if instr.Result2Type != il.ResumeTok {
				v.errf(diag.VfyEHShape, "block %s: eh.entry must bind a resumetok second result", blk.Label)
			}
		}
		if blk.Term != nil && (blk.Term.Op == il.OpResumeSame || blk.Term.Op == il.OpResumeNext || blk.Term.Op == il.OpResumeLabel) {
			if !blockHasEntry(blk) {
				v.errf(diag.VfyEHShape, "block %s: resume.* used without a preceding eh.entry in the same block", blk.Label)
			}
		}
	}
}

func blockHasEntry(blk *il.BasicBlock) bool {
	for _, instr := range blk.Instrs {
		if instr.Op == il.OpEHEntry {
			return true
		}
	}
	return false
}
