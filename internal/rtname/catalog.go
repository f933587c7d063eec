// Package rtname is the Runtime Name Map (C7, §4.7): it resolves a
// canonical Namespace.Class.Member runtime name to its stable C-ABI
// symbol, and back, from a single declarative catalog rather than a
// hand-maintained pair of switch statements. The catalog also carries
// each entry's signature and owning class. The constfold pass is its
// consumer; the verifier, builder, and bridge do not read it.
package rtname

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/splanck/viper/internal/il"
)

//go:embed catalog.yaml
var catalogFS embed.FS

// Entry is one catalog row.
type Entry struct {
	Canonical string   `yaml:"canonical"`
	Symbol    string   `yaml:"symbol"`
	Class     string   `yaml:"class"`
	Params    []string `yaml:"params"`
	Ret       string   `yaml:"ret"`
	Aliases   []string `yaml:"aliases"`

	Sig il.Signature // resolved from Params/Ret at load time
}

type rawCatalog struct {
	Entries []Entry `yaml:"entries"`
}

// Map is the loaded, queryable catalog.
type Map struct {
	byCanonical map[string]*Entry
	bySymbol    map[string]*Entry
	byAlias     map[string]*Entry
	entries     []*Entry
}

// Load parses the embedded catalog and resolves every entry's textual
// param/ret types against the IL type lattice. A malformed type name or a
// duplicate canonical/symbol is a load-time error — this catalog ships
// with the binary, so such an error indicates a broken build, not bad
// user input.
func Load() (*Map, error) {
	data, err := catalogFS.ReadFile("catalog.yaml")
	if err != nil {
		return nil, fmt.Errorf("rtname: reading embedded catalog: %w", err)
	}
	var raw rawCatalog
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("rtname: parsing catalog: %w", err)
	}

	m := &Map{
		byCanonical: make(map[string]*Entry, len(raw.Entries)),
		bySymbol:    make(map[string]*Entry, len(raw.Entries)),
		byAlias:     make(map[string]*Entry),
	}
	for i := range raw.Entries {
		e := &raw.Entries[i]
		sig, err := resolveSig(e)
		if err != nil {
			return nil, fmt.Errorf("rtname: %s: %w", e.Canonical, err)
		}
		e.Sig = sig

		if _, dup := m.byCanonical[e.Canonical]; dup {
			return nil, fmt.Errorf("rtname: duplicate canonical name %s", e.Canonical)
		}
		if _, dup := m.bySymbol[e.Symbol]; dup {
			return nil, fmt.Errorf("rtname: duplicate symbol %s", e.Symbol)
		}
		m.byCanonical[e.Canonical] = e
		m.bySymbol[e.Symbol] = e
		for _, a := range e.Aliases {
			m.byAlias[a] = e
		}
		m.entries = append(m.entries, e)
	}
	return m, nil
}

// MustLoad is Load, panicking on failure. Intended for package-level
// catalog initialization where a load failure is a build defect.
func MustLoad() *Map {
	m, err := Load()
	if err != nil {
		panic(err)
	}
	return m
}

func resolveSig(e *Entry) (il.Signature, error) {
	ret, ok := il.ParseType(e.Ret)
	if !ok {
		return il.Signature{}, fmt.Errorf("unknown return type %q", e.Ret)
	}
	params := make([]il.Type, len(e.Params))
	for i, p := range e.Params {
		t, ok := il.ParseType(p)
		if !ok {
			return il.Signature{}, fmt.Errorf("unknown parameter type %q", p)
		}
		params[i] = t
	}
	return il.Signature{Params: params, Ret: ret}, nil
}

// Entries returns every catalog row in declaration order.
func (m *Map) Entries() []*Entry { return m.entries }

// Symbol resolves a canonical name to its stable C-ABI symbol.
func (m *Map) Symbol(canonical string) (string, bool) {
	if e, ok := m.byCanonical[canonical]; ok {
		return e.Symbol, true
	}
	return "", false
}

// Canonical resolves a symbol back to its canonical name.
func (m *Map) Canonical(symbol string) (string, bool) {
	if e, ok := m.bySymbol[symbol]; ok {
		return e.Canonical, true
	}
	return "", false
}

// Resolve looks a name up by canonical form, stable symbol, or — when
// acceptAliases is true (the dual-namespace flag, on for load) — by a
// legacy rt_* alias. Canonical names are always emitted on output
// regardless of this flag (§4.7).
func (m *Map) Resolve(name string, acceptAliases bool) (*Entry, bool) {
	if e, ok := m.byCanonical[name]; ok {
		return e, true
	}
	if e, ok := m.bySymbol[name]; ok {
		return e, true
	}
	if acceptAliases {
		if e, ok := m.byAlias[name]; ok {
			return e, true
		}
	}
	return nil, false
}

// Classes groups entries by owning class; within each class, entries keep
// declaration order. The map itself has no defined class order.
func (m *Map) Classes() map[string][]*Entry {
	out := make(map[string][]*Entry)
	for _, e := range m.entries {
		out[e.Class] = append(out[e.Class], e)
	}
	return out
}
