package shade

import (
	"fmt"
	"strings"
)

// ErrorKind categorizes compile failures.
type ErrorKind uint8

const (
	// KindMalformedBlock indicates a stage block that does not fit the
	// start-marker, type, content shape.
	KindMalformedBlock ErrorKind = iota + 1

	// KindMalformedDirective indicates a line that starts with a directive
	// anchor but does not fit the directive's syntax.
	KindMalformedDirective

	// KindDirectiveScope indicates a directive used where its stage or
	// position rules forbid it.
	KindDirectiveScope

	// KindUnresolvedRequest indicates a @request with no matching @provide
	// in an earlier stage.
	KindUnresolvedRequest

	// KindTypeMismatch indicates a @provide/@request pair that disagree on type.
	KindTypeMismatch

	// KindExtendsCycle indicates a circular #extends chain.
	KindExtendsCycle

	// KindUnknownStruct indicates a @require of a struct type with no
	// registered shape.
	KindUnknownStruct

	// KindMissingSource indicates a parent shader or library the loader
	// could not provide.
	KindMissingSource

	// KindAmbiguousUniform indicates the same uniform name declared with
	// different types.
	KindAmbiguousUniform

	// KindArrayBound indicates a light array larger than its fixed maximum.
	KindArrayBound
)

// String returns a human-readable error kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindMalformedBlock:
		return "MalformedBlock"
	case KindMalformedDirective:
		return "MalformedDirective"
	case KindDirectiveScope:
		return "DirectiveScope"
	case KindUnresolvedRequest:
		return "UnresolvedRequest"
	case KindTypeMismatch:
		return "TypeMismatch"
	case KindExtendsCycle:
		return "ExtendsCycle"
	case KindUnknownStruct:
		return "UnknownStruct"
	case KindMissingSource:
		return "MissingSource"
	case KindAmbiguousUniform:
		return "AmbiguousUniform"
	case KindArrayBound:
		return "ArrayBound"
	default:
		return "Unknown"
	}
}

// Sentinels for errors.Is. An *Error matches the sentinel of its kind.
var (
	ErrMalformedBlock     = &Error{Kind: KindMalformedBlock}
	ErrMalformedDirective = &Error{Kind: KindMalformedDirective}
	ErrDirectiveScope     = &Error{Kind: KindDirectiveScope}
	ErrUnresolvedRequest  = &Error{Kind: KindUnresolvedRequest}
	ErrTypeMismatch       = &Error{Kind: KindTypeMismatch}
	ErrExtendsCycle       = &Error{Kind: KindExtendsCycle}
	ErrUnknownStruct      = &Error{Kind: KindUnknownStruct}
	ErrMissingSource      = &Error{Kind: KindMissingSource}
	ErrAmbiguousUniform   = &Error{Kind: KindAmbiguousUniform}
	ErrArrayBound         = &Error{Kind: KindArrayBound}
)

// Error is a compile failure. Every failure aborts the whole program.
type Error struct {
	Kind ErrorKind

	// Program, Stage and Line locate the failure when known.
	Program string
	Stage   string
	Line    int

	// Directive is the offending directive line or block chunk.
	Directive string

	Message string

	// Err is the underlying cause, e.g. a loader error.
	Err error
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	if loc := e.location(); loc != "" {
		sb.WriteString("[")
		sb.WriteString(loc)
		sb.WriteString("] ")
	}
	sb.WriteString(e.Kind.String())
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Directive != "" {
		fmt.Fprintf(&sb, " (%q)", e.Directive)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) location() string {
	parts := make([]string, 0, 3)
	if e.Program != "" {
		parts = append(parts, e.Program)
	}
	if e.Stage != "" {
		parts = append(parts, e.Stage)
	}
	if e.Line > 0 {
		parts = append(parts, fmt.Sprintf("%d", e.Line))
	}
	return strings.Join(parts, ":")
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Program == "" && t.Stage == ""
}

// at fills in missing location fields and returns e.
func (e *Error) at(program, stage string, line int) *Error {
	if e.Program == "" {
		e.Program = program
	}
	if e.Stage == "" {
		e.Stage = stage
	}
	if e.Line == 0 {
		e.Line = line
	}
	return e
}

// withProgram stamps the program name on a compile error.
func withProgram(err error, program string) error {
	if e, ok := err.(*Error); ok {
		e.at(program, "", 0)
		return e
	}
	return err
}
