// Package manifest loads the optional project manifest (`viper.yaml`) a
// driver invocation may sit next to: a target triple, the search paths
// consulted for `.il` inputs named without a directory, and an override
// of the dual-namespace loader flag (§4.7). The driver reads only the
// search paths; it does not apply Target or DualNamespace, and it has no
// command-line flag for either. A project with no manifest gets
// Default(), which matches spec.md §9's load-time decision
// (dual-namespace on for load).
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultDualNamespace is the dual-namespace default absent an explicit
// manifest setting (spec.md §9: "this
// spec treats it as on for load").
const DefaultDualNamespace = true

// FileName is the manifest's conventional name, searched for alongside
// the driver's working directory and its ancestors.
const FileName = "viper.yaml"

// Manifest is the project-level configuration a driver invocation reads
// once at startup, before processing any `.il` input.
type Manifest struct {
	// Target is the optional target triple for this project, in the same
	// form as il.Module.Target (§3). Nothing copies it onto modules.
	Target string `yaml:"target,omitempty"`

	// SearchPaths is consulted, in order, for a `.il` input named
	// without a directory component.
	SearchPaths []string `yaml:"search_paths,omitempty"`

	// DualNamespace overrides DefaultDualNamespace when set. A nil
	// value (the field absent from the YAML) defers to the default.
	DualNamespace *bool `yaml:"dual_namespace,omitempty"`
}

// Default returns the manifest a project with no viper.yaml gets.
func Default() *Manifest {
	return &Manifest{}
}

// Load reads and parses a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return &m, nil
}

// Find searches startDir and each of its ancestors for a viper.yaml,
// returning the first match. It returns "" with no error if none is
// found anywhere up to the filesystem root — an absent manifest is not
// itself an error, since every field defaults sensibly.
func Find(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// LoadFromDir is the driver's usual entry point: search for a manifest
// starting at dir, and return Default() rather than an error when none
// exists.
func LoadFromDir(dir string) (*Manifest, error) {
	path, err := Find(dir)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// ResolveDualNamespace applies the manifest's override, if any, falling
// back to DefaultDualNamespace.
func (m *Manifest) ResolveDualNamespace() bool {
	if m == nil || m.DualNamespace == nil {
		return DefaultDualNamespace
	}
	return *m.DualNamespace
}

// ResolveSearchPath resolves name against each configured search path in
// order, returning the first path that exists on disk. If name already
// names an existing file, or no search path resolves it, name is
// returned unchanged (the caller's subsequent os.Open reports the real
// error for a truly missing file).
func (m *Manifest) ResolveSearchPath(name string) string {
	if _, err := os.Stat(name); err == nil {
		return name
	}
	if m == nil {
		return name
	}
	for _, dir := range m.SearchPaths {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return name
}
