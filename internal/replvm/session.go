package replvm

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/peterh/liner"

	"github.com/splanck/viper/internal/il"
	"github.com/splanck/viper/internal/vm"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
	dim    = color.New(color.Faint).SprintFunc()
)

// Session is the interactive front end over a Debugger: a liner prompt
// with history, command dispatch, and colorized status lines, in the
// shape of the teacher's REPL.Start loop.
type Session struct {
	dbg     *Debugger
	history []string
}

// NewSession builds a session over an already-started debugger.
func NewSession(dbg *Debugger) *Session {
	return &Session{dbg: dbg}
}

func (s *Session) prompt() string {
	if s.dbg.Exited {
		return "(exited)> "
	}
	return "vi-dbg> "
}

// Run drives the interactive loop until :quit or EOF.
func (s *Session) Run(out io.Writer) {
	line := liner.NewLiner()
	defer line.Close()

	historyFile := filepath.Join(os.TempDir(), ".viper_dbg_history")
	if f, err := os.Open(historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}

	fmt.Fprintln(out, bold("viper debugger"))
	fmt.Fprintln(out, dim("Type :help for commands, :quit to exit"))
	s.printCurrentLine(out)

	line.SetCompleter(func(input string) (c []string) {
		if strings.HasPrefix(input, ":") {
			commands := []string{":help", ":quit", ":break", ":delete", ":continue",
				":step", ":next", ":backtrace", ":locals", ":print"}
			for _, cmd := range commands {
				if strings.HasPrefix(cmd, input) {
					c = append(c, cmd)
				}
			}
		}
		return
	})

	for {
		input, err := line.Prompt(s.prompt())
		if err == io.EOF {
			fmt.Fprintln(out, green("\nGoodbye!"))
			break
		}
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", red("Error"), err)
			continue
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)
		s.history = append(s.history, input)

		if input == ":quit" || input == ":q" {
			fmt.Fprintln(out, green("Goodbye!"))
			break
		}
		s.handleCommand(input, out)
	}

	if f, err := os.Create(historyFile); err == nil {
		_, _ = line.WriteHistory(f)
		f.Close()
	}
}

func (s *Session) handleCommand(cmd string, out io.Writer) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return
	}
	switch parts[0] {
	case ":help", ":h":
		s.printHelp(out)

	case ":break", ":b":
		if len(parts) != 4 {
			fmt.Fprintln(out, "Usage: :break <func> <block> <index>")
			return
		}
		idx, err := strconv.Atoi(parts[3])
		if err != nil {
			fmt.Fprintf(out, "%s: index must be an integer: %v\n", red("Error"), err)
			return
		}
		bp := Breakpoint{Func: parts[1], Block: parts[2], Index: idx}
		if s.dbg.AddBreakpoint(bp) {
			fmt.Fprintf(out, "Breakpoint set at %s\n", yellow(bp.String()))
		} else {
			fmt.Fprintf(out, "Breakpoint already set at %s\n", yellow(bp.String()))
		}

	case ":delete":
		s.dbg.ClearBreakpoints()
		fmt.Fprintln(out, "All breakpoints cleared")

	case ":continue", ":c":
		s.dbg.Continue()
		s.reportStop(out)

	case ":step", ":s":
		s.dbg.StepInstr()
		s.reportStop(out)

	case ":next", ":n":
		s.dbg.StepOver()
		s.reportStop(out)

	case ":backtrace", ":bt":
		for _, line := range s.dbg.Backtrace() {
			fmt.Fprintln(out, line)
		}

	case ":locals", ":l":
		locals, err := s.dbg.Locals()
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", red("Error"), err)
			return
		}
		if len(locals) == 0 {
			fmt.Fprintln(out, dim("(no live temps)"))
		}
		for _, l := range locals {
			fmt.Fprintln(out, l)
		}

	case ":print", ":p":
		if len(parts) != 2 {
			fmt.Fprintln(out, "Usage: :print %N")
			return
		}
		n, err := strconv.Atoi(strings.TrimPrefix(parts[1], "%"))
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", red("Error"), err)
			return
		}
		v, err := s.dbg.Temp(il.TempID(n))
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", red("Error"), err)
			return
		}
		fmt.Fprintf(out, "%%%d = %s\n", n, cyan(v.String()))

	default:
		fmt.Fprintf(out, "Unknown command: %s\n", cmd)
		fmt.Fprintln(out, "Type :help for help")
	}
}

func (s *Session) reportStop(out io.Writer) {
	if s.dbg.Exited {
		switch s.dbg.Status {
		case vm.StepExited:
			fmt.Fprintf(out, "%s (exit code %d)\n", green("Program exited"), s.dbg.ExitCode)
		case vm.StepTrapped:
			fmt.Fprintf(out, "%s (exit code %d)\n", red("Program trapped"), s.dbg.ExitCode)
		}
		return
	}
	s.printCurrentLine(out)
}

func (s *Session) printCurrentLine(out io.Writer) {
	if line := s.dbg.CurrentLine(); line != "" {
		fmt.Fprintln(out, cyan(line))
	}
}

func (s *Session) printHelp(out io.Writer) {
	fmt.Fprintln(out, bold("Debugger commands:"))
	fmt.Fprintln(out, "  :help, :h                 Show this help")
	fmt.Fprintln(out, "  :quit, :q                 Exit the debugger")
	fmt.Fprintln(out, "  :break, :b <fn> <blk> <i> Set a breakpoint before instruction i of blk in fn")
	fmt.Fprintln(out, "  :delete                   Clear all breakpoints")
	fmt.Fprintln(out, "  :continue, :c             Run until the next breakpoint or exit")
	fmt.Fprintln(out, "  :step, :s                 Execute one instruction")
	fmt.Fprintln(out, "  :next, :n                 Execute one instruction, stepping over calls")
	fmt.Fprintln(out, "  :backtrace, :bt           Show the live call stack")
	fmt.Fprintln(out, "  :locals, :l               Show the current frame's temp values")
	fmt.Fprintln(out, "  :print, :p %N             Show one temp's value")
}
