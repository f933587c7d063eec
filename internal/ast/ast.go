// Package ast holds the source-location primitives shared by the IL text
// layer and the diagnostics package. The surface-language AST that used to
// live here belongs to the frontends (BASIC, Zia); those are external
// collaborators to this repository and are not implemented here.
package ast

import "fmt"

// Pos represents a position in a source file: a textual IL module, or a
// frontend source file referenced by a location annotation carried through
// to IL instructions.
type Pos struct {
	Line   int
	Column int
	File   string
	Offset int
}

func (p Pos) String() string {
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Column)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// IsZero reports whether p carries no location information.
func (p Pos) IsZero() bool {
	return p == Pos{}
}

// Span represents a half-open range in source code.
type Span struct {
	Start Pos
	End   Pos
}

func (s Span) String() string {
	if s.Start.File == s.End.File && s.Start.Line == s.End.Line {
		return fmt.Sprintf("%s:%d:%d-%d", s.Start.File, s.Start.Line, s.Start.Column, s.End.Column)
	}
	return fmt.Sprintf("%s-%s", s.Start, s.End)
}
