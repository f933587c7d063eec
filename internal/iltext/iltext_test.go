package iltext

import (
	"strings"
	"testing"

	"github.com/splanck/viper/internal/diag"
)

// roundTripSrc exercises block params, branches, a switch, a call, eh.push/
// eh.pop, labels written both bare and `^`-prefixed, and both comment styles
// (`#` and `//`) in one module.
const roundTripSrc = `il 0.1
target "x86_64-viper"

extern @Viper.Console.PrintI64(i64) -> void

global i64 @counter = 5
global const str @greeting = "hi"

func @choose(%0: i64, %1: i1) -> i64 {
entry:
  eh.push ^handler
  cbr %1, ^T(%0), ^F(%0)
T(%2: i64):
  # double the value on the true edge
  %3 = add %2, %2
  br ^Join(%3)
F(%4: i64):
  // triple the value on the false edge
  %5 = mul %4, 3
  br ^Join(%5)
Join(%6: i64):
  eh.pop
  call @Viper.Console.PrintI64(%6)
  switch.i32 %6, ^d, 1 -> ^one, 2 -> ^two
^one:
  ret 1
^two:
  ret 2
^d:
  ret 0
handler:
  %err, %tok = eh.entry
  resume.next %tok
}
`

// TestRoundTripFixedPoint verifies Testable Property #1 (spec §8:
// parse(serialize(M)) ≡ M) by checking that serialization is a fixed point:
// serializing a parsed module, re-parsing that text, and serializing again
// produces byte-identical output. Comparing re-serializations sidesteps
// needing a deep structural equality check between two independently
// allocated *il.Module graphs.
func TestRoundTripFixedPoint(t *testing.T) {
	res1 := Parse("roundtrip.il", []byte(roundTripSrc))
	if res1.Diags.HasErrors() {
		t.Fatalf("unexpected diagnostics parsing source: %+v", res1.Diags.Errors())
	}
	if res1.Module.Target != "x86_64-viper" {
		t.Fatalf("Target = %q, want x86_64-viper", res1.Module.Target)
	}
	if len(res1.Module.Externs) != 1 {
		t.Fatalf("len(Externs) = %d, want 1", len(res1.Module.Externs))
	}
	if len(res1.Module.Globals) != 2 {
		t.Fatalf("len(Globals) = %d, want 2", len(res1.Module.Globals))
	}
	if _, ok := res1.Module.FindFunc("choose"); !ok {
		t.Fatalf("function @choose not found")
	}

	text1 := Serialize(res1.Module)

	res2 := Parse("roundtrip.il", []byte(text1))
	if res2.Diags.HasErrors() {
		t.Fatalf("unexpected diagnostics re-parsing serialized text: %+v\n%s", res2.Diags.Errors(), text1)
	}

	text2 := Serialize(res2.Module)
	if text1 != text2 {
		t.Fatalf("serialize(parse(text)) is not a fixed point:\n--- first ---\n%s\n--- second ---\n%s", text1, text2)
	}
}

func firstErrorCode(diags *diag.Accumulator) string {
	errs := diags.Errors()
	if len(errs) == 0 {
		return ""
	}
	return errs[0].Code
}

func TestParseDiagnostics(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "bad version header, no header at all",
			src:  "fn 0.1\nfunc @main() -> i64 { entry: ret 0 }",
			want: diag.ILBadVersion,
		},
		{
			name: "bad version header, unsupported major version",
			src:  "il 1.0\nfunc @main() -> i64 { entry: ret 0 }",
			want: diag.ILBadVersion,
		},
		{
			name: "unknown opcode mnemonic",
			src:  "il 0.1\nfunc @main() -> i64 { entry: bogus.op }",
			want: diag.ILUnknownOpcode,
		},
		{
			name: "unknown type name in a return type",
			src:  "il 0.1\nfunc @main() -> bogus { entry: ret 0 }",
			want: diag.ILTypeMismatch,
		},
		{
			name: "malformed signature, missing arrow",
			src:  "il 0.1\nfunc @main() i64 { entry: ret 0 }",
			want: diag.ILArityMismatch,
		},
		{
			name: "branch target missing its ^label",
			src:  "il 0.1\nfunc @main() -> i64 { entry: br 5 }",
			want: diag.ILUndefinedLabel,
		},
		{
			name: "extern name missing its @ sigil",
			src:  "il 0.1\nextern Foo() -> void\nfunc @main() -> i64 { entry: ret 0 }",
			want: diag.ILUndefinedSymbol,
		},
		{
			name: "duplicate function definition",
			src:  "il 0.1\nfunc @main() -> i64 { entry: ret 0 }\nfunc @main() -> i64 { entry: ret 1 }",
			want: diag.ILDuplicateDefinition,
		},
		{
			name: "integer literal overflows int64",
			src:  "il 0.1\nfunc @main() -> i64 { entry: ret 99999999999999999999999 }",
			want: diag.ILMalformedLiteral,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Parse("bad.il", []byte(tt.src))
			if !res.Diags.HasErrors() {
				t.Fatalf("want a %s diagnostic, got none", tt.want)
			}
			got := firstErrorCode(res.Diags)
			found := false
			for _, e := range res.Diags.Errors() {
				if e.Code == tt.want {
					found = true
					break
				}
			}
			if !found {
				t.Fatalf("diagnostics = %+v, want one with code %s (first was %s)", res.Diags.Errors(), tt.want, got)
			}
		})
	}
}

// TestMalformedGlobalInitializer covers the one ILMalformedLiteral site that
// isn't a numeric-literal conversion failure: a global initializer that is
// neither a string nor an integer literal.
func TestMalformedGlobalInitializer(t *testing.T) {
	src := "il 0.1\nglobal i64 @g = true\nfunc @main() -> i64 { entry: ret 0 }"
	res := Parse("bad.il", []byte(src))
	if !res.Diags.HasErrors() {
		t.Fatalf("want an ILMalformedLiteral diagnostic, got none")
	}
	found := false
	for _, e := range res.Diags.Errors() {
		if e.Code == diag.ILMalformedLiteral {
			found = true
		}
	}
	if !found {
		t.Fatalf("diagnostics = %+v, want one with code %s", res.Diags.Errors(), diag.ILMalformedLiteral)
	}
}

// TestFloatLiteralRoundTrips confirms a float literal with enough
// significant digits to be sensitive to rounding survives parse/serialize
// exactly, which strconv.ParseFloat guarantees and hand-rolled digit
// accumulation does not.
func TestFloatLiteralRoundTrips(t *testing.T) {
	src := "il 0.1\nfunc @main() -> f64 { entry: ret 0.10000000000000002 }"
	res := Parse("float.il", []byte(src))
	if res.Diags.HasErrors() {
		t.Fatalf("unexpected diagnostics: %+v", res.Diags.Errors())
	}
	text := Serialize(res.Module)
	if !strings.Contains(text, "0.10000000000000002") {
		t.Fatalf("serialized text = %q, want it to retain full float precision", text)
	}
}
