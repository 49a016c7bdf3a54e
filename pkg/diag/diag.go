// Package diag holds source positions, recoverable compilation failures and
// the Handler that collects them. Internal invariant violations are not
// failures: they panic through Internal and are never reported to a Handler.
package diag

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Position identifies a location in a MIL input.
type Position struct {
	File string
	Line int
	Col  int
}

// Builtin is the position given to definitions that have no source.
var Builtin = Position{File: "<builtin>"}

func (p Position) String() string {
	if p.File == "" && p.Line == 0 {
		return "<unknown>"
	}
	if p.Line == 0 {
		return p.File
	}
	if p.Col == 0 {
		return fmt.Sprintf("%s:%d", p.File, p.Line)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Col)
}

// Kind categorizes a recoverable failure.
type Kind int

const (
	TypeError Kind = iota
	StructuralError
	RuntimeError
	LoadError
)

func (k Kind) String() string {
	switch k {
	case TypeError:
		return "type error"
	case StructuralError:
		return "structural error"
	case RuntimeError:
		return "runtime error"
	case LoadError:
		return "load error"
	}
	return "error"
}

// Failure is a user-facing compilation error with a position.
type Failure struct {
	Pos  Position
	Kind Kind
	Msg  string
}

// Errorf builds a Failure.
func Errorf(pos Position, kind Kind, format string, args ...any) *Failure {
	return &Failure{Pos: pos, Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s: %s", f.Pos, f.Kind, f.Msg)
}

// ErrFailures is returned by stages that stop because failures were reported.
var ErrFailures = errors.New("compilation failed")

// Handler collects failures so that checking can continue past the first
// error. It never prints; callers decide how to display Failures().
type Handler struct {
	failures []*Failure
	log      *slog.Logger
}

// NewHandler creates a Handler. A nil logger disables logging.
func NewHandler(log *slog.Logger) *Handler {
	return &Handler{log: log}
}

// Report records a failure. Errors that are not Failures are wrapped with an
// unknown position.
func (h *Handler) Report(err error) {
	var f *Failure
	if !errors.As(err, &f) {
		f = &Failure{Kind: StructuralError, Msg: err.Error()}
	}
	h.failures = append(h.failures, f)
	if h.log != nil {
		h.log.Debug("failure reported", "pos", f.Pos.String(), "kind", f.Kind.String(), "msg", f.Msg)
	}
}

// HasFailures reports whether anything was reported.
func (h *Handler) HasFailures() bool {
	return len(h.failures) > 0
}

// Failures returns the reported failures in report order.
func (h *Handler) Failures() []*Failure {
	return h.failures
}

// Err returns nil when no failures were reported, otherwise an error wrapping
// ErrFailures that lists every failure.
func (h *Handler) Err() error {
	if len(h.failures) == 0 {
		return nil
	}
	msgs := make([]string, len(h.failures))
	for i, f := range h.failures {
		msgs[i] = f.Error()
	}
	return fmt.Errorf("%w: %d error(s)\n%s", ErrFailures, len(h.failures), strings.Join(msgs, "\n"))
}

// InternalError signals a compiler bug. It is raised with panic by Internal.
type InternalError struct {
	Err error
}

func (e *InternalError) Error() string {
	return "internal error: " + e.Err.Error()
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Internal aborts compilation with an InternalError carrying a stack trace.
func Internal(format string, args ...any) {
	panic(&InternalError{Err: pkgerrors.Errorf(format, args...)})
}

// Recover converts an InternalError panic into an error stored in *errp.
// Other panics are re-raised.
func Recover(errp *error) {
	if r := recover(); r != nil {
		if ie, ok := r.(*InternalError); ok {
			*errp = ie
			return
		}
		panic(r)
	}
}
