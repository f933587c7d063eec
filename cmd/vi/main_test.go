package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/splanck/viper/internal/il"
	"github.com/splanck/viper/internal/ilbuilder"
	"github.com/splanck/viper/internal/iltext"
)

// writeModule serializes a trivially-built module to a temp .il file and
// returns its path.
func writeModule(t *testing.T, dir, name string, build func(*ilbuilder.Builder)) string {
	t.Helper()
	b := ilbuilder.New(il.Version{Major: 0, Minor: 1})
	build(b)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(iltext.Serialize(b.Module())), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func constFunc(name string, value int64) func(*ilbuilder.Builder) {
	return func(b *ilbuilder.Builder) {
		fn, err := b.StartFunction(name, il.I64, nil, nil)
		if err != nil {
			panic(err)
		}
		blk, err := fn.CreateBlock("entry", nil, nil)
		if err != nil {
			panic(err)
		}
		fn.SetInsertPoint(blk)
		if err := fn.EmitTerminator(&il.Instruction{Op: il.OpRet, Operands: []il.Value{il.ConstInt(value)}}); err != nil {
			panic(err)
		}
		if err := b.Finish(fn); err != nil {
			panic(err)
		}
	}
}

func TestLoadAndLinkSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := writeModule(t, dir, "a.il", constFunc("main", 7))

	mod, diags := loadAndLink([]string{path})
	if diags.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", diags.Reports)
	}
	if _, ok := mod.FindFunc("main"); !ok {
		t.Fatalf("linked module missing @main")
	}
}

func TestLoadAndLinkMergesMultipleFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeModule(t, dir, "a.il", constFunc("main", 1))
	bFile := writeModule(t, dir, "b.il", constFunc("helper", 2))

	mod, diags := loadAndLink([]string{a, bFile})
	if diags.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", diags.Reports)
	}
	if len(mod.Funcs) != 2 {
		t.Fatalf("len(Funcs) = %d, want 2", len(mod.Funcs))
	}
}

func TestLoadAndLinkDetectsDuplicateFunction(t *testing.T) {
	dir := t.TempDir()
	a := writeModule(t, dir, "a.il", constFunc("main", 1))
	bFile := writeModule(t, dir, "b.il", constFunc("main", 2))

	_, diags := loadAndLink([]string{a, bFile})
	if !diags.HasErrors() {
		t.Fatalf("want a duplicate-symbol diagnostic, got none")
	}
	found := false
	for _, r := range diags.Errors() {
		if r.Code == "LINK001" {
			found = true
		}
	}
	if !found {
		t.Fatalf("want a LINK001 diagnostic, got %v", diags.Errors())
	}
}

func TestLoadAndLinkNoInputs(t *testing.T) {
	_, diags := loadAndLink(nil)
	if !diags.HasErrors() {
		t.Fatalf("want an error for no inputs")
	}
}

func TestParseAndVerifyAcceptsWellFormedModule(t *testing.T) {
	dir := t.TempDir()
	path := writeModule(t, dir, "ok.il", constFunc("main", 42))

	mod, ok := parseAndVerify([]string{path}, false)
	if !ok || mod == nil {
		t.Fatalf("parseAndVerify failed on a well-formed module")
	}
}

func TestResolveInputsLeavesExistingPathsUnchanged(t *testing.T) {
	dir := t.TempDir()
	path := writeModule(t, dir, "x.il", constFunc("main", 0))

	resolved := resolveInputs([]string{path})
	if len(resolved) != 1 || resolved[0] != path {
		t.Fatalf("resolveInputs(%q) = %v, want unchanged", path, resolved)
	}
}

func TestReportJSONContainsCode(t *testing.T) {
	_, diags := loadAndLink(nil)
	for _, r := range diags.Reports {
		s, err := r.ToJSON(true)
		if err != nil {
			t.Fatalf("ToJSON: %v", err)
		}
		if !strings.Contains(s, r.Code) {
			t.Fatalf("JSON %q missing code %q", s, r.Code)
		}
	}
}
