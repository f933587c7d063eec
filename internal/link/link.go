// Package link merges several independently-parsed IL modules into one
// (§4 SUPPLEMENTED FEATURES: multi-module linking). It generalizes C2's
// "symbols within each namespace are unique" invariant from a single
// module to a linked set: externs, globals, and functions are folded into
// one module's symbol tables, and a name that collides across units is
// reported rather than silently shadowed.
//
// A flat merge has no dependency edges to order by, so cycle detection
// (the teacher's linker's main job) is moot here. What survives from that
// shape is the deterministic-ordering discipline: units are always merged
// in a stable, input-independent order so two links of the same file set
// produce byte-identical output regardless of the order they were named
// on the command line.
package link

import (
	"sort"

	"github.com/splanck/viper/internal/diag"
	"github.com/splanck/viper/internal/il"
)

// Unit is one independently-parsed .il file awaiting merge.
type Unit struct {
	Path   string
	Module *il.Module
}

// Merge folds units into a single module, in Path-sorted order, and
// returns every duplicate-definition or conflicting-signature diagnostic
// found along the way. The returned module is always non-nil, even when
// diagnostics were reported, so a caller can still inspect what merged
// cleanly; the returned module is not a runnable program unless
// diags.HasErrors() is false.
func Merge(units []Unit) (*il.Module, *diag.Accumulator) {
	diags := &diag.Accumulator{}
	ordered := sortUnits(units)

	out := il.NewModule(il.Version{})
	if len(ordered) > 0 {
		out.Version = ordered[0].Module.Version
	}
	for _, u := range ordered {
		if out.Target == "" {
			out.Target = u.Module.Target
		}
	}

	for _, u := range ordered {
		mergeExterns(out, u, diags)
		mergeGlobals(out, u, diags)
		mergeFuncs(out, u, diags)
	}
	return out, diags
}

// sortUnits returns units in lexicographic Path order. This is the flat
// merge's stand-in for the teacher's dependency-based topological sort:
// there is no import graph to order by, so filename order is the
// deterministic tiebreak instead.
func sortUnits(units []Unit) []Unit {
	ordered := make([]Unit, len(units))
	copy(ordered, units)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Path < ordered[j].Path })
	return ordered
}

func mergeExterns(out *il.Module, u Unit, diags *diag.Accumulator) {
	for _, e := range u.Module.Externs {
		_, conflict := out.AddExtern(e)
		if conflict {
			diags.Add(diag.New("link", diag.LinkSignatureConflict,
				"extern '"+e.Name+"' redeclared with a conflicting signature in "+u.Path).
				WithData("symbol", e.Name).
				WithData("unit", u.Path))
		}
	}
}

func mergeGlobals(out *il.Module, u Unit, diags *diag.Accumulator) {
	for _, g := range u.Module.Globals {
		if _, duplicate := out.AddGlobal(g); duplicate {
			diags.Add(diag.New("link", diag.LinkDuplicateSymbol,
				"global '"+g.Name+"' already defined, redefined in "+u.Path).
				WithData("symbol", g.Name).
				WithData("unit", u.Path))
		}
	}
}

func mergeFuncs(out *il.Module, u Unit, diags *diag.Accumulator) {
	for _, f := range u.Module.Funcs {
		if _, duplicate := out.AddFunc(f); duplicate {
			diags.Add(diag.New("link", diag.LinkDuplicateSymbol,
				"function '"+f.Name+"' already defined, redefined in "+u.Path).
				WithData("symbol", f.Name).
				WithData("unit", u.Path))
		}
	}
}
