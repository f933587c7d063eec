// Package diag provides the centralized diagnostic type used across every
// phase of the toolchain — parsing, verification, the VM, and the
// optimizer passes (C11). It is adapted from the teacher's error-reporting
// package: a structured Report with a stable code, phase, message, and
// optional source span, wrapped so it survives errors.As() unwrapping.
package diag

import (
	"encoding/json"
	"errors"

	"github.com/splanck/viper/internal/ast"
)

// Severity classifies a Report.
type Severity int

const (
	Note Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Note:
		return "note"
	case Warning:
		return "warning"
	default:
		return "error"
	}
}

// Report is the canonical structured diagnostic. Every failure mode named
// in spec §4.3, §7 carries one of these.
type Report struct {
	Schema   string         `json:"schema"`
	Code     string         `json:"code"`
	Phase    string         `json:"phase"`
	Severity string         `json:"severity"`
	Message  string         `json:"message"`
	Span     *ast.Span      `json:"span,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// ReportError wraps a Report as a Go error.
type ReportError struct {
	Rep *Report
}

func (e *ReportError) Error() string {
	if e.Rep == nil {
		return "unknown error"
	}
	return e.Rep.Code + ": " + e.Rep.Message
}

// AsReport extracts the *Report from an error chain, if any.
func AsReport(err error) (*Report, bool) {
	var re *ReportError
	if errors.As(err, &re) {
		return re.Rep, true
	}
	return nil, false
}

// WrapReport wraps r as an error.
func WrapReport(r *Report) error {
	if r == nil {
		return nil
	}
	return &ReportError{Rep: r}
}

// New builds a Report at Error severity.
func New(phase, code, message string) *Report {
	return &Report{Schema: "viper.diag/v1", Code: code, Phase: phase, Severity: Error.String(), Message: message}
}

// At attaches a source span to the report, returning it for chaining.
func (r *Report) At(span ast.Span) *Report {
	r.Span = &span
	return r
}

// WithData attaches a structured data field.
func (r *Report) WithData(key string, value any) *Report {
	if r.Data == nil {
		r.Data = map[string]any{}
	}
	r.Data[key] = value
	return r
}

// ToJSON renders the Report deterministically.
func (r *Report) ToJSON(compact bool) (string, error) {
	var data []byte
	var err error
	if compact {
		data, err = json.Marshal(r)
	} else {
		data, err = json.MarshalIndent(r, "", "  ")
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
