// Package replvm is an interactive IL-level debugger: it single-steps a
// *vm.VM instruction by instruction, honoring breakpoints set on a
// function/block/index triple, and lets a user inspect frames and
// locals between steps. This is IL-level stepping over an already
//-built module, not source-level debugging — spec.md's Non-goals only
// exclude "source-level debugging beyond location annotations", and
// there is no source language here for that exclusion to apply to.
//
// It is grounded on the teacher's internal/repl: the same
// github.com/peterh/liner history-backed prompt and
// github.com/fatih/color status coloring, and the same
// command-prefixed-with-":"  dispatch shape, driving a VM frame stack
// instead of a tree-walking evaluator.
package replvm

import (
	"fmt"

	"github.com/splanck/viper/internal/bridge"
	"github.com/splanck/viper/internal/il"
	"github.com/splanck/viper/internal/vm"
)

// Breakpoint identifies one instruction to stop before executing: the
// owning function, the block within it, and the instruction's index in
// that block (len(Instrs) denotes the block's terminator).
type Breakpoint struct {
	Func  string
	Block string
	Index int
}

func (b Breakpoint) String() string {
	return fmt.Sprintf("@%s %s#%d", b.Func, b.Block, b.Index)
}

// Debugger drives a *vm.VM one instruction at a time.
type Debugger struct {
	VM          *vm.VM
	Breakpoints []Breakpoint

	Exited   bool
	Status   vm.StepStatus
	ExitCode int
}

// New wraps an already-constructed VM. Start must be called before any
// stepping.
func New(m *vm.VM) *Debugger {
	return &Debugger{VM: m}
}

// Start pushes entry's initial frame without executing anything.
func (d *Debugger) Start(entry string) error {
	return d.VM.Start(entry)
}

// AddBreakpoint registers a new breakpoint, returning false if an
// identical one is already set.
func (d *Debugger) AddBreakpoint(bp Breakpoint) bool {
	for _, existing := range d.Breakpoints {
		if existing == bp {
			return false
		}
	}
	d.Breakpoints = append(d.Breakpoints, bp)
	return true
}

// ClearBreakpoints removes every registered breakpoint.
func (d *Debugger) ClearBreakpoints() {
	d.Breakpoints = nil
}

// atBreakpoint reports whether the instruction about to execute matches
// a registered breakpoint.
func (d *Debugger) atBreakpoint() (Breakpoint, bool) {
	if d.VM.Depth() == 0 {
		return Breakpoint{}, false
	}
	frames := d.VM.Frames()
	f := frames[len(frames)-1]
	for _, bp := range d.Breakpoints {
		if bp.Func == f.Fn.Name && bp.Block == f.Block.Label && bp.Index == f.IP {
			return bp, true
		}
	}
	return Breakpoint{}, false
}

func (d *Debugger) recordStep() {
	d.Status, d.ExitCode = d.VM.Step()
	if d.Status != vm.StepMore {
		d.Exited = true
	}
}

// StepInstr executes exactly one instruction of the current frame.
func (d *Debugger) StepInstr() {
	if d.Exited {
		return
	}
	d.recordStep()
}

// StepOver executes instructions until control returns to the current
// depth or shallower: a call's callee runs uninterrupted (unless one of
// its own instructions is itself a breakpoint) instead of stopping on
// its first instruction.
func (d *Debugger) StepOver() {
	if d.Exited {
		return
	}
	start := d.VM.Depth()
	for {
		d.recordStep()
		if d.Exited {
			return
		}
		if d.VM.Depth() <= start {
			return
		}
		if _, hit := d.atBreakpoint(); hit {
			return
		}
	}
}

// Continue steps until a breakpoint is reached or the program ends. It
// always takes at least one step first, so continuing from a stop at a
// breakpoint doesn't immediately re-trigger it.
func (d *Debugger) Continue() {
	if d.Exited {
		return
	}
	for {
		d.recordStep()
		if d.Exited {
			return
		}
		if _, hit := d.atBreakpoint(); hit {
			return
		}
	}
}

// CurrentLine describes the instruction about to execute, or "" once the
// program has exited.
func (d *Debugger) CurrentLine() string {
	if d.Exited || d.VM.Depth() == 0 {
		return ""
	}
	frames := d.VM.Frames()
	f := frames[len(frames)-1]
	instr := f.Fn.Name
	return fmt.Sprintf("@%s %s#%d: %s", instr, f.Block.Label, f.IP, FormatInstr(f.Block, f.IP))
}

// Backtrace lists every live frame, innermost first.
func (d *Debugger) Backtrace() []string {
	frames := d.VM.Frames()
	out := make([]string, 0, len(frames))
	for i := len(frames) - 1; i >= 0; i-- {
		f := frames[i]
		out = append(out, fmt.Sprintf("#%d @%s %s#%d", len(frames)-1-i, f.Fn.Name, f.Block.Label, f.IP))
	}
	return out
}

// Locals reports the current frame's parameter and live-temp values,
// formatted %N = value, skipping temps never assigned (bridge.Value's
// zero value for a temp that hasn't been written).
func (d *Debugger) Locals() ([]string, error) {
	if d.VM.Depth() == 0 {
		return nil, fmt.Errorf("replvm: program has exited, no frame to inspect")
	}
	frames := d.VM.Frames()
	f := frames[len(frames)-1]
	out := make([]string, 0, len(f.Locals))
	for i, v := range f.Locals {
		if v.Typ == il.Void {
			continue
		}
		out = append(out, fmt.Sprintf("%%%d = %s", i, v.String()))
	}
	return out, nil
}

// Temp returns one temp's current value in the topmost frame.
func (d *Debugger) Temp(id il.TempID) (bridge.Value, error) {
	if d.VM.Depth() == 0 {
		return bridge.Value{}, fmt.Errorf("replvm: program has exited, no frame to inspect")
	}
	frames := d.VM.Frames()
	f := frames[len(frames)-1]
	if int(id) >= len(f.Locals) {
		return bridge.Value{}, fmt.Errorf("replvm: %%%d out of range (function has %d temps)", id, len(f.Locals))
	}
	return f.Locals[id], nil
}

// FormatInstr renders the instruction at (blk, index) — the block's
// terminator if index == len(blk.Instrs) — in roughly the textual IL's
// mnemonic form, for the debugger's step/backtrace display. This is
// deliberately a debugger-display shortcut, not a round-trippable
// serialization: iltext.Serialize is the source of truth for that.
func FormatInstr(blk *il.BasicBlock, index int) string {
	var instr *il.Instruction
	if index < len(blk.Instrs) {
		instr = blk.Instrs[index]
	} else {
		instr = blk.Term
	}
	if instr == nil {
		return "<none>"
	}
	s := instr.Op.String()
	if instr.HasResult {
		s = fmt.Sprintf("%%%d = %s", instr.Result, s)
	}
	for _, v := range instr.Operands {
		s += " " + v.String()
	}
	if instr.Callee != "" {
		s += " @" + instr.Callee
	}
	for _, t := range instr.Targets {
		s += " ^" + t.Label
	}
	return s
}
