// Package vm is the VM Interpreter (C8, §4.8): a single-threaded,
// deterministic tree-of-frames evaluator over a verified il.Module. It
// owns the value stack (a dense per-frame vector indexed by temp id), the
// frame stack, a handler stack separate from the call stack, and a
// per-frame bump allocator for alloca storage.
package vm

import (
	"fmt"
	"io"

	"github.com/splanck/viper/internal/bridge"
	"github.com/splanck/viper/internal/il"
)

// Frame is one active call's activation record.
type Frame struct {
	Fn         *il.Function
	Locals     []bridge.Value
	Block      *il.BasicBlock
	IP         int // index into Block.Instrs; Block.Term sits at IP == len(Instrs)
	AllocaMark int64
}

func (f *Frame) current() *il.Instruction {
	if f.IP < len(f.Block.Instrs) {
		return f.Block.Instrs[f.IP]
	}
	return f.Block.Term
}

// handlerEntry is one eh.push bracket, per §4.8's handler-stack dispatch
// algorithm.
type handlerEntry struct {
	frameDepth   int // index into vm.frames at push time
	handlerLabel string
	savedMark    int64
}

// Trap is the reified error record §4.8 describes: {kind, code, ip, line},
// plus a human-readable Detail carried only for the unhandled-trap
// diagnostic line (§7) — never exposed to err.get_*.
type Trap struct {
	Kind   string
	Code   int32
	Detail string

	Func  string
	Block string
	Index int
	Line  int
}

func (t *Trap) Error() string {
	return fmt.Sprintf("%s in @%s at %s#%d", t.Kind, t.Func, t.Block, t.Index)
}

// VM executes one module to completion or to an unhandled trap. Frames are
// an explicit stack rather than Go call recursion, so a trap can unwind
// several call levels at once to reach its handler without needing Go-level
// panic/recover.
type VM struct {
	Mod    *il.Module
	Host   *bridge.Host
	Bridge *bridge.Registry
	Stderr io.Writer
	Arena  *Arena

	handles *handleTable

	calleeAddr map[string]int64 // function/extern name -> pseudo-address
	calleeName map[int64]string // inverse of calleeAddr
	globalAddr map[string]int64 // non-str global name -> arena address

	frames      []*Frame
	handlers    []*handlerEntry
	pendingTrap *Trap // set by dispatchTrap, consumed by eh.entry
}

// New creates a VM over mod, dispatching externs against host via reg. It
// lays out the module's globals in the arena and mints pseudo-addresses for
// every function and extern so addr_of/call.indirect have something to
// resolve against.
func New(mod *il.Module, host *bridge.Host, reg *bridge.Registry, stderr io.Writer) *VM {
	vm := &VM{
		Mod:        mod,
		Host:       host,
		Bridge:     reg,
		Stderr:     stderr,
		Arena:      NewArena(),
		handles:    newHandleTable(),
		calleeAddr: make(map[string]int64),
		calleeName: make(map[int64]string),
		globalAddr: make(map[string]int64),
	}

	next := int64(-1)
	for _, fn := range mod.Funcs {
		vm.calleeAddr[fn.Name] = next
		vm.calleeName[next] = fn.Name
		next--
	}
	for _, e := range mod.Externs {
		vm.calleeAddr[e.Name] = next
		vm.calleeName[next] = e.Name
		next--
	}

	for _, g := range mod.Globals {
		if g.Typ == il.Str {
			continue // resolved directly from Global.StrInit by const_str
		}
		addr := vm.Arena.Alloc(int64(g.Typ.Size()))
		if g.HasInit {
			buf, _ := vm.Arena.Bytes(addr, int64(g.Typ.Size()))
			copy(buf, encode(g.Typ, bridge.Int(g.Typ, g.IntInit), vm.handles))
		}
		vm.globalAddr[g.Name] = addr
	}

	return vm
}

// Run executes entry with no arguments to completion and returns its
// process exit code: the function's return value truncated to an int if it
// returned normally, or a trap-kind-derived non-zero code if an unhandled
// trap terminated the program (per §4.8, an unhandled trap always
// terminates the whole process, not just the trapping function).
func (vm *VM) Run(entry string) (int, error) {
	if err := vm.Start(entry); err != nil {
		return 1, err
	}
	for {
		status, code := vm.Step()
		if status != StepMore {
			return code, nil
		}
	}
}

// Start pushes entry's initial frame without executing anything, so a
// caller (the debugger, replvm) can inspect the program before its first
// instruction runs.
func (vm *VM) Start(entry string) error {
	fn, ok := vm.Mod.FindFunc(entry)
	if !ok {
		return fmt.Errorf("vm: entry function @%s not found", entry)
	}
	vm.pushFrame(fn, nil)
	return nil
}

// StepStatus reports what Step did.
type StepStatus int

const (
	// StepMore means the program is still running; call Step again.
	StepMore StepStatus = iota
	// StepExited means the entry function returned; Step's code is the
	// process exit code.
	StepExited
	// StepTrapped means an unhandled trap terminated the program; Step's
	// code is the trap-kind-derived exit code.
	StepTrapped
)

// Step executes exactly one instruction of the topmost frame (or, for a
// call, pushes the callee's frame without executing any of its
// instructions yet) and reports whether the program is still running.
// It is Run's loop body, factored out so a debugger can interleave
// breakpoint checks and inspection between instructions.
func (vm *VM) Step() (StepStatus, int) {
	if len(vm.frames) == 0 {
		return StepExited, 0
	}
	frame := vm.frames[len(vm.frames)-1]
	instr := frame.current()

	result, c, trap := vm.exec(frame, instr)
	if trap != nil {
		if !vm.dispatchTrap(trap) {
			if trap.Detail != "" {
				fmt.Fprintf(vm.Stderr, "unhandled trap: %s (%s): function @%s, %s#%d\n", trap.Kind, trap.Detail, trap.Func, trap.Block, trap.Index)
			} else {
				fmt.Fprintf(vm.Stderr, "unhandled trap: %s: function @%s, %s#%d\n", trap.Kind, trap.Func, trap.Block, trap.Index)
			}
			return StepTrapped, exitCodeForTrap(trap.Kind)
		}
		return StepMore, 0
	}

	switch c.kind {
	case ctlNext:
		if instr.HasResult {
			frame.Locals[instr.Result] = result
		}
		frame.IP++
	case ctlJump:
		frame.Block = c.block
		frame.IP = 0
	case ctlGoto:
		frame.Block = c.block
		frame.IP = c.index
	case ctlCall:
		vm.pushFrame(c.callee, c.args)
	case ctlReturn:
		vm.popFrame()
		if len(vm.frames) == 0 {
			return StepExited, int(c.value.I)
		}
		caller := vm.frames[len(vm.frames)-1]
		callInstr := caller.current()
		if callInstr.HasResult {
			caller.Locals[callInstr.Result] = c.value
		}
		caller.IP++
	}
	return StepMore, 0
}

// Frames returns the live call stack, outermost first. The debugger uses
// this for backtraces and local inspection; callers must not mutate the
// returned slice.
func (vm *VM) Frames() []*Frame { return vm.frames }

// Depth returns the number of live frames.
func (vm *VM) Depth() int { return len(vm.frames) }

// pushFrame activates a new frame for fn with args bound to its parameters.
func (vm *VM) pushFrame(fn *il.Function, args []bridge.Value) {
	frame := &Frame{
		Fn:         fn,
		Locals:     make([]bridge.Value, fn.NumTemp),
		Block:      fn.Entry(),
		AllocaMark: vm.Arena.Mark(),
	}
	for i, p := range fn.Params {
		if i < len(args) {
			frame.Locals[p.Temp] = args[i]
		}
	}
	vm.frames = append(vm.frames, frame)
}

// popFrame discards the top frame and frees its alloca storage.
func (vm *VM) popFrame() {
	top := vm.frames[len(vm.frames)-1]
	vm.Arena.Truncate(top.AllocaMark)
	vm.frames = vm.frames[:len(vm.frames)-1]
}

// dispatchTrap implements the handler-stack algorithm (§4.8 steps 3-4): pop
// the topmost handler entry (by construction it always belongs to the
// current or an ancestor frame), unwind frames and allocas back to its
// push point, and enter its handler block.
func (vm *VM) dispatchTrap(trap *Trap) bool {
	if len(vm.handlers) == 0 {
		return false
	}
	h := vm.handlers[len(vm.handlers)-1]
	vm.handlers = vm.handlers[:len(vm.handlers)-1]

	vm.Arena.Truncate(h.savedMark)
	vm.frames = vm.frames[:h.frameDepth+1]

	target := vm.frames[h.frameDepth]
	blk, ok := target.Fn.Block(h.handlerLabel)
	if !ok {
		return false
	}
	target.Block = blk
	target.IP = 0
	vm.pendingTrap = trap
	return true
}

func exitCodeForTrap(kind string) int {
	// Deterministic, stable, but otherwise arbitrary mapping: distinct
	// trap kinds must map to distinct non-zero codes so scripts driving
	// the VM can distinguish failure classes without parsing stderr.
	codes := map[string]int{
		"DivideByZero":     2,
		"Overflow":         3,
		"InvalidCast":      4,
		"NullPointer":      5,
		"Misaligned":       6,
		"BadIndex":         7,
		"StackOverflow":    8,
		"OutOfMemory":      9,
		"User":             10,
		"InvalidOperation": 11,
		"UnknownOpcode":    12,
	}
	if c, ok := codes[kind]; ok {
		return c
	}
	return 1
}

