// Package constfold implements the literal-folding pass (C10.2, §4.10.2):
// calls to a handful of math externs are replaced by their evaluated
// result when every operand is a literal matching that builtin's folding
// rule. It is narrower than a general constant-propagation pass — it never
// chases a value through a temp to see if it happens to be constant, and
// it never performs algebraic simplification.
package constfold

import (
	"math"

	"github.com/splanck/viper/internal/il"
	"github.com/splanck/viper/internal/rtname"
)

// Stats reports how many call sites the pass folded, broken down by the
// math builtin it recognized.
type Stats struct {
	Folded    int
	ByBuiltin map[string]int
}

// Run folds every eligible call in fn, mutating it in place, and returns
// the pass's statistics. names resolves a call's callee symbol to its
// canonical runtime name.
func Run(fn *il.Function, names *rtname.Map) Stats {
	stats := Stats{ByBuiltin: make(map[string]int)}
	subst := make(map[il.TempID]il.Value)
	drop := make(map[*il.Instruction]bool)

	for _, blk := range fn.Blocks {
		for _, instr := range blk.Instrs {
			if instr.Op != il.OpCall {
				continue
			}
			canonical, ok := names.Canonical(instr.Callee)
			if !ok {
				continue
			}
			folded, ok := fold(canonical, instr.Operands)
			if !ok {
				continue
			}
			if instr.HasResult {
				subst[instr.Result] = folded
			}
			drop[instr] = true
			stats.Folded++
			stats.ByBuiltin[canonical]++
		}
	}
	if stats.Folded == 0 {
		return Stats{ByBuiltin: map[string]int{}}
	}

	rewrite(fn, subst)
	dropDead(fn, drop)
	return stats
}

// fold evaluates one call per §4.10.2's pattern table, reporting ok=false
// for anything outside the narrow set of literal shapes it recognizes.
func fold(canonical string, operands []il.Value) (il.Value, bool) {
	switch canonical {
	case "Viper.Math.AbsI":
		if len(operands) != 1 || operands[0].Kind != il.ValConstInt {
			return il.Value{}, false
		}
		n := operands[0].Int
		if n < 0 {
			n = -n
		}
		return il.ConstInt(n), true

	case "Viper.Math.AbsF":
		f, ok := nonNegativeLiteralFloat(operands, 0)
		if !ok {
			return il.Value{}, false
		}
		return il.ConstFloat(math.Abs(f)), true

	case "Viper.Math.Floor":
		f, ok := nonNegativeLiteralFloat(operands, 0)
		if !ok {
			return il.Value{}, false
		}
		return il.ConstFloat(math.Floor(f)), true

	case "Viper.Math.Ceil":
		f, ok := nonNegativeLiteralFloat(operands, 0)
		if !ok {
			return il.Value{}, false
		}
		return il.ConstFloat(math.Ceil(f)), true

	case "Viper.Math.Sqr":
		f, ok := nonNegativeLiteralFloat(operands, 0)
		if !ok {
			return il.Value{}, false
		}
		return il.ConstFloat(math.Sqrt(f)), true

	case "Viper.Math.Pow":
		if len(operands) != 2 {
			return il.Value{}, false
		}
		base, ok := literalFloat(operands, 0)
		if !ok {
			return il.Value{}, false
		}
		exp, ok := literalFloat(operands, 1)
		if !ok || math.Trunc(exp) != exp || math.Abs(exp) > 16 {
			return il.Value{}, false
		}
		return il.ConstFloat(math.Pow(base, exp)), true

	case "Viper.Math.Sin":
		f, ok := literalFloat(operands, 0)
		if !ok || f != 0 {
			return il.Value{}, false
		}
		return il.ConstFloat(0), true

	case "Viper.Math.Cos":
		f, ok := literalFloat(operands, 0)
		if !ok || f != 0 {
			return il.Value{}, false
		}
		return il.ConstFloat(1), true

	default:
		return il.Value{}, false
	}
}

func literalFloat(operands []il.Value, i int) (float64, bool) {
	if i >= len(operands) || operands[i].Kind != il.ValConstFloat {
		return 0, false
	}
	return operands[i].Float, true
}

func nonNegativeLiteralFloat(operands []il.Value, i int) (float64, bool) {
	f, ok := literalFloat(operands, i)
	if !ok || f < 0 {
		return 0, false
	}
	return f, true
}

func rewrite(fn *il.Function, subst map[il.TempID]il.Value) {
	chase := func(v il.Value) il.Value {
		for v.Kind == il.ValTemp {
			r, ok := subst[v.Temp]
			if !ok {
				break
			}
			v = r
		}
		return v
	}
	rewriteArgs := func(args []il.Value) {
		for i, v := range args {
			args[i] = chase(v)
		}
	}
	for _, blk := range fn.Blocks {
		for _, instr := range blk.Instrs {
			for i, v := range instr.Operands {
				instr.Operands[i] = chase(v)
			}
		}
		term := blk.Term
		if term == nil {
			continue
		}
		for i, v := range term.Operands {
			term.Operands[i] = chase(v)
		}
		for i := range term.Targets {
			rewriteArgs(term.Targets[i].Args)
		}
		for i := range term.Cases {
			rewriteArgs(term.Cases[i].Target.Args)
		}
		rewriteArgs(term.Default.Args)
	}
}

func dropDead(fn *il.Function, drop map[*il.Instruction]bool) {
	for _, blk := range fn.Blocks {
		kept := blk.Instrs[:0]
		for _, instr := range blk.Instrs {
			if drop[instr] {
				continue
			}
			kept = append(kept, instr)
		}
		blk.Instrs = kept
	}
}
