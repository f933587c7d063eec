package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultDualNamespace(t *testing.T) {
	m := Default()
	if !m.ResolveDualNamespace() {
		t.Fatalf("ResolveDualNamespace() = false, want true (DefaultDualNamespace)")
	}
}

func TestLoadOverridesDualNamespace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte("dual_namespace: false\ntarget: x86_64-pc-viper\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.ResolveDualNamespace() {
		t.Fatalf("ResolveDualNamespace() = true, want false (manifest overrides it)")
	}
	if m.Target != "x86_64-pc-viper" {
		t.Fatalf("Target = %q, want x86_64-pc-viper", m.Target)
	}
}

func TestFindWalksUpToAncestor(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, FileName), []byte("target: t1\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	found, err := Find(nested)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	want := filepath.Join(root, FileName)
	if found != want {
		t.Fatalf("Find = %q, want %q", found, want)
	}
}

func TestFindReturnsEmptyWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	found, err := Find(dir)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if found != "" {
		t.Fatalf("Find = %q, want empty (no manifest anywhere up to root)", found)
	}
}

func TestLoadFromDirDefaultsWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	m, err := LoadFromDir(dir)
	if err != nil {
		t.Fatalf("LoadFromDir: %v", err)
	}
	if !m.ResolveDualNamespace() {
		t.Fatalf("ResolveDualNamespace() = false, want true (Default())")
	}
}

func TestResolveSearchPath(t *testing.T) {
	dir := t.TempDir()
	libDir := filepath.Join(dir, "lib")
	if err := os.MkdirAll(libDir, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	target := filepath.Join(libDir, "util.il")
	if err := os.WriteFile(target, []byte(""), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	m := &Manifest{SearchPaths: []string{libDir}}
	resolved := m.ResolveSearchPath("util.il")
	if resolved != target {
		t.Fatalf("ResolveSearchPath = %q, want %q", resolved, target)
	}
	if got := m.ResolveSearchPath("missing.il"); got != "missing.il" {
		t.Fatalf("ResolveSearchPath(missing) = %q, want unchanged", got)
	}
}
