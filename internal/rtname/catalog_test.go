package rtname

import (
	"testing"

	"github.com/splanck/viper/internal/il"
)

func TestLoadResolvesCoreExterns(t *testing.T) {
	m, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		canonical string
		symbol    string
		ret       il.Type
		numParams int
	}{
		{"Viper.Console.PrintI64", "rt_print_i64", il.Void, 1},
		{"Viper.Strings.Concat", "rt_concat", il.Str, 2},
		{"Viper.Memory.Alloc", "rt_alloc", il.Ptr, 1},
	}
	for _, tt := range tests {
		sym, ok := m.Symbol(tt.canonical)
		if !ok || sym != tt.symbol {
			t.Errorf("Symbol(%s) = %s, %v; want %s, true", tt.canonical, sym, ok, tt.symbol)
		}
		e, ok := m.Resolve(tt.canonical, false)
		if !ok {
			t.Fatalf("Resolve(%s) failed", tt.canonical)
		}
		if e.Sig.Ret != tt.ret {
			t.Errorf("%s: ret = %s, want %s", tt.canonical, e.Sig.Ret, tt.ret)
		}
		if len(e.Sig.Params) != tt.numParams {
			t.Errorf("%s: %d params, want %d", tt.canonical, len(e.Sig.Params), tt.numParams)
		}
	}
}

func TestAliasResolutionRespectsDualNamespaceFlag(t *testing.T) {
	m, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := m.Resolve("rt_str_concat", false); ok {
		t.Errorf("legacy alias resolved with acceptAliases=false")
	}
	e, ok := m.Resolve("rt_str_concat", true)
	if !ok || e.Canonical != "Viper.Strings.Concat" {
		t.Errorf("Resolve(rt_str_concat, true) = %+v, %v; want Viper.Strings.Concat", e, ok)
	}
}

func TestCanonicalRoundTripsFromSymbol(t *testing.T) {
	m, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c, ok := m.Canonical("rt_to_double")
	if !ok || c != "Viper.Convert.ToDouble" {
		t.Errorf("Canonical(rt_to_double) = %s, %v; want Viper.Convert.ToDouble", c, ok)
	}
}
