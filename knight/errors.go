package knight

import (
	"errors"
	"fmt"
	"strings"
)

type Error interface {
	error
	GetLocation() Loc
}

type ErrorType int

const (
	ErrorRuntime ErrorType = iota
	ErrorParse
	ErrorCompile
	ErrorFatal
)

func (t ErrorType) String() string {
	return []string{
		"RuntimeError",
		"ParseError",
		"CompileError",
		"FatalError",
	}[t]
}

// ErrorKind refines runtime errors.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindTypeMismatch
	KindDomain
	KindOverflow
	KindUndefinedVariable
	KindIndexOutOfRange
	KindIO
	KindConversion
	KindUser
	KindStackOverflow
)

func (k ErrorKind) String() string {
	return []string{
		"none",
		"type-mismatch",
		"domain",
		"overflow",
		"undefined-variable",
		"index-out-of-range",
		"io",
		"conversion",
		"user",
		"stack-overflow",
	}[k]
}

// Callsite is one frame of a captured stack trace.
type Callsite struct {
	Block string
	Loc   Loc
}

func (c Callsite) String() string {
	if c.Loc.IsZero() {
		return c.Block
	}
	return fmt.Sprintf("%s (called at %s)", c.Block, c.Loc)
}

type KnightError struct {
	Type  ErrorType
	Kind  ErrorKind
	Msg   string
	Loc   Loc
	Trace []Callsite

	// Incomplete marks parse errors caused by running out of input.
	Incomplete bool
}

func (e *KnightError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Type.String())
	if e.Kind != KindNone {
		fmt.Fprintf(&sb, " [%s]", e.Kind)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Msg)
	if e.Loc.FileName != "" {
		fmt.Fprintf(&sb, " at %s:%s", e.Loc.FileName, e.Loc.String())
	} else if !e.Loc.IsZero() {
		fmt.Fprintf(&sb, " at %s", e.Loc.String())
	}
	for _, c := range e.Trace {
		sb.WriteString("\n    in ")
		sb.WriteString(c.String())
	}
	return sb.String()
}

func (e *KnightError) GetLocation() Loc {
	return e.Loc
}

func (e *KnightError) ShowSource(source string) string {
	lines := strings.Split(source, "\n")
	if e.Loc.Line > 0 && e.Loc.Line <= len(lines) {
		line := lines[e.Loc.Line-1]
		width := 1
		if e.Loc.ColEnd != nil && *e.Loc.ColEnd >= e.Loc.ColStart {
			width = *e.Loc.ColEnd - e.Loc.ColStart + 1
		}
		col := max(e.Loc.ColStart-1, 0)
		underline := strings.Repeat(" ", col) + strings.Repeat("^", width)
		return fmt.Sprintf("%s\n%s\n%s", e.Error(), line, underline)
	}
	return e.Error()
}

func NewParseError(msg string, loc Loc) *KnightError {
	return &KnightError{Type: ErrorParse, Msg: msg, Loc: loc}
}

func NewCompileError(msg string, loc Loc) *KnightError {
	return &KnightError{Type: ErrorCompile, Msg: msg, Loc: loc}
}

func NewRuntimeError(kind ErrorKind, msg string) *KnightError {
	return &KnightError{Type: ErrorRuntime, Kind: kind, Msg: msg}
}

func NewFatalError(msg string, loc Loc) *KnightError {
	return &KnightError{Type: ErrorFatal, Msg: msg, Loc: loc}
}

func typeError(fn string, v Value) *KnightError {
	return NewRuntimeError(KindTypeMismatch, fmt.Sprintf("invalid type %s given to %s", v.TypeName(), fn))
}

func domainError(format string, args ...any) *KnightError {
	return NewRuntimeError(KindDomain, fmt.Sprintf(format, args...))
}

func overflowError(fn string) *KnightError {
	return NewRuntimeError(KindOverflow, fmt.Sprintf("integer overflow in %s", fn))
}

// ExitSignal is raised by QUIT. It travels as an error so that it unwinds
// every frame, but it is not a failure.
type ExitSignal struct {
	Code int
}

func (e *ExitSignal) Error() string {
	return fmt.Sprintf("exit %d", e.Code)
}

func (e *ExitSignal) GetLocation() Loc {
	return Loc{}
}

func AsExit(err error) (*ExitSignal, bool) {
	var exit *ExitSignal
	if errors.As(err, &exit) {
		return exit, true
	}
	return nil, false
}

func AsKnightError(err error) (*KnightError, bool) {
	var kerr *KnightError
	if errors.As(err, &kerr) {
		return kerr, true
	}
	return nil, false
}

func IsRuntime(err error) bool {
	kerr, ok := AsKnightError(err)
	return ok && kerr.Type == ErrorRuntime
}

func IsFatal(err error) bool {
	kerr, ok := AsKnightError(err)
	return ok && kerr.Type == ErrorFatal
}

// IsKind reports whether err is a runtime error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	kerr, ok := AsKnightError(err)
	return ok && kerr.Type == ErrorRuntime && kerr.Kind == kind
}

type Result[T any] struct {
	Value T
	Err   Error
}

func ResOk[T any](value T) Result[T] {
	return Result[T]{Value: value, Err: nil}
}

func ResErr[T any](err Error) Result[T] {
	return Result[T]{Err: err}
}

func (r Result[T]) IsOk() bool {
	return r.Err == nil
}

func (r Result[T]) IsErr() bool {
	return r.Err != nil
}
