// Package iltext implements the textual form of the IL: lexing, parsing,
// and deterministic serialization (C3, §4.3). The grammar is exactly the
// one described in spec §4.3 — version header, `@`-prefixed module-level
// symbols, `%`-prefixed temporaries, bare-identifier labels with optional
// parameter lists, `#` and `//` comments.
package iltext

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var bomUTF8 = []byte{0xEF, 0xBB, 0xBF}

// Normalize strips a UTF-8 BOM and applies Unicode NFC normalization to the
// raw module bytes before lexing, so that lexically equivalent source
// produces an identical token stream regardless of encoding variations in
// identifiers or string literals.
func Normalize(src []byte) []byte {
	src = bytes.TrimPrefix(src, bomUTF8)
	if !norm.NFC.IsNormal(src) {
		src = norm.NFC.Bytes(src)
	}
	return src
}

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokIdent
	tokGlobalSym // @name
	tokTemp      // %name or %123
	tokLabelRef  // ^name
	tokInt
	tokFloat
	tokString
	tokPunct // one of ( ) , : = { } -> ! .
)

type token struct {
	kind tokenKind
	text string
	line int
	col  int
}

type lexer struct {
	src    string
	file   string
	pos    int
	ch     rune
	width  int
	line   int
	col    int
}

func newLexer(file string, src []byte) *lexer {
	l := &lexer{src: string(Normalize(src)), file: file, line: 1, col: 0}
	l.advance()
	return l
}

func (l *lexer) advance() {
	if l.pos >= len(l.src) {
		l.ch = 0
		l.width = 0
		return
	}
	r, w := utf8.DecodeRuneInString(l.src[l.pos:])
	l.ch = r
	l.width = w
	l.pos += w
	l.col++
	if r == '\n' {
		l.line++
		l.col = 0
	}
}

func (l *lexer) peekByte() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentCont(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9') || r == '.' || r == '_'
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func (l *lexer) skipTrivia() {
	for {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\r' || l.ch == '\n':
			l.advance()
		case l.ch == '#':
			for l.ch != '\n' && l.ch != 0 {
				l.advance()
			}
		case l.ch == '/' && l.peekByte() == '/':
			for l.ch != '\n' && l.ch != 0 {
				l.advance()
			}
		default:
			return
		}
	}
}

func (l *lexer) next() token {
	l.skipTrivia()
	line, col := l.line, l.col

	if l.ch == 0 {
		return token{kind: tokEOF, line: line, col: col}
	}

	switch {
	case l.ch == '@':
		l.advance()
		return token{kind: tokGlobalSym, text: l.readIdentOrQuoted(), line: line, col: col}
	case l.ch == '%':
		l.advance()
		return token{kind: tokTemp, text: l.readIdentOrNumber(), line: line, col: col}
	case l.ch == '^':
		l.advance()
		return token{kind: tokLabelRef, text: l.readIdent(), line: line, col: col}
	case l.ch == '"':
		s := l.readString()
		return token{kind: tokString, text: s, line: line, col: col}
	case isIdentStart(l.ch):
		id := l.readIdent()
		return token{kind: tokIdent, text: id, line: line, col: col}
	case isDigit(l.ch) || (l.ch == '-' && isDigit(l.peekRune())):
		return l.readNumber(line, col)
	default:
		ch := l.ch
		l.advance()
		// Recognize the two-rune "->" punctuation as one token.
		if ch == '-' && l.ch == '>' {
			l.advance()
			return token{kind: tokPunct, text: "->", line: line, col: col}
		}
		return token{kind: tokPunct, text: string(ch), line: line, col: col}
	}
}

func (l *lexer) peekRune() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.src[l.pos:])
	return r
}

func (l *lexer) readIdent() string {
	start := l.pos - l.width
	for isIdentCont(l.ch) {
		l.advance()
	}
	return l.src[start : l.pos-l.width]
}

func (l *lexer) readIdentOrQuoted() string {
	if l.ch == '"' {
		return l.readString()
	}
	return l.readIdent()
}

func (l *lexer) readIdentOrNumber() string {
	start := l.pos - l.width
	for isIdentCont(l.ch) {
		l.advance()
	}
	return l.src[start : l.pos-l.width]
}

func (l *lexer) readNumber(line, col int) token {
	start := l.pos - l.width
	if l.ch == '-' {
		l.advance()
	}
	isFloat := false
	for isDigit(l.ch) {
		l.advance()
	}
	if l.ch == '.' && isDigit(l.peekRune()) {
		isFloat = true
		l.advance()
		for isDigit(l.ch) {
			l.advance()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		isFloat = true
		l.advance()
		if l.ch == '+' || l.ch == '-' {
			l.advance()
		}
		for isDigit(l.ch) {
			l.advance()
		}
	}
	text := l.src[start : l.pos-l.width]
	kind := tokInt
	if isFloat {
		kind = tokFloat
	}
	return token{kind: kind, text: text, line: line, col: col}
}

func (l *lexer) readString() string {
	l.advance() // opening quote
	var buf []byte
	for l.ch != '"' && l.ch != 0 {
		if l.ch == '\\' {
			l.advance()
			switch l.ch {
			case 'n':
				buf = append(buf, '\n')
			case 't':
				buf = append(buf, '\t')
			case 'r':
				buf = append(buf, '\r')
			case '"':
				buf = append(buf, '"')
			case '\\':
				buf = append(buf, '\\')
			default:
				buf = append(buf, string(l.ch)...)
			}
			l.advance()
			continue
		}
		buf = append(buf, string(l.ch)...)
		l.advance()
	}
	l.advance() // closing quote
	return string(buf)
}
