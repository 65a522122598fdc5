package check

import (
	"fmt"

	"github.com/loom-run/loom/types"
)

// ErrorKind discriminates a CompileError, matching the compile-time
// error taxonomy. Exact names are test contracts, not just diagnostics.
type ErrorKind string

const (
	UndefinedVariable        ErrorKind = "UndefinedVariable"
	UndefinedFunction        ErrorKind = "UndefinedFunction"
	UndefinedType            ErrorKind = "UndefinedType"
	UndefinedNamespace       ErrorKind = "UndefinedNamespace"
	AmbiguousFunction        ErrorKind = "AmbiguousFunction"
	TypeMismatch             ErrorKind = "TypeMismatch"
	TypeError                ErrorKind = "TypeError"
	UnsupportedArithmetic    ErrorKind = "UnsupportedArithmetic"
	UnsupportedComparison    ErrorKind = "UnsupportedComparison"
	IncompatibleMerge        ErrorKind = "IncompatibleMerge"
	InvalidProjection        ErrorKind = "InvalidProjection"
	InvalidFieldAccess       ErrorKind = "InvalidFieldAccess"
	InvalidLambdaContext     ErrorKind = "InvalidLambdaContext"
	LambdaNeedsAnnotation    ErrorKind = "LambdaNeedsAnnotation"
	LambdaArityMismatch      ErrorKind = "LambdaArityMismatch"
	UnknownHigherOrderFunc   ErrorKind = "UnknownHigherOrderFunction"
	ParseError               ErrorKind = "ParseError"
	InternalError            ErrorKind = "InternalError"
)

// CompileError is one type-checking failure, carrying everything a
// caller needs to render a diagnostic without re-deriving context.
type CompileError struct {
	Kind       ErrorKind
	Message    string
	Name       string
	Field      string
	Op         string
	Expected   types.SemanticType
	Actual     types.SemanticType
	LeftType   types.SemanticType
	RightType  types.SemanticType
	Candidates []string
	Span       Span
}

func (e *CompileError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	switch e.Kind {
	case UndefinedVariable, UndefinedFunction, UndefinedType, UndefinedNamespace:
		return fmt.Sprintf("%s: %q", e.Kind, e.Name)
	case AmbiguousFunction:
		return fmt.Sprintf("%s: %q matches %v", e.Kind, e.Name, e.Candidates)
	case TypeMismatch:
		return fmt.Sprintf("%s: expected %s, found %s", e.Kind, e.Expected.Kind, e.Actual.Kind)
	case UnsupportedArithmetic, UnsupportedComparison:
		return fmt.Sprintf("%s: %s on %s and %s", e.Kind, e.Op, e.LeftType.Kind, e.RightType.Kind)
	case IncompatibleMerge:
		return fmt.Sprintf("%s: cannot merge %s and %s", e.Kind, e.LeftType.Kind, e.RightType.Kind)
	case InvalidProjection, InvalidFieldAccess:
		return fmt.Sprintf("%s: field %q on %s", e.Kind, e.Field, e.Actual.Kind)
	default:
		return string(e.Kind)
	}
}

func errUndefinedVariable(name string, span Span) *CompileError {
	return &CompileError{Kind: UndefinedVariable, Name: name, Span: span}
}

func errUndefinedFunction(name string, span Span) *CompileError {
	return &CompileError{Kind: UndefinedFunction, Name: name, Span: span}
}

func errUndefinedType(name string, span Span) *CompileError {
	return &CompileError{Kind: UndefinedType, Name: name, Span: span}
}

func errUndefinedNamespace(name string, span Span) *CompileError {
	return &CompileError{Kind: UndefinedNamespace, Name: name, Span: span}
}

func errAmbiguousFunction(name string, candidates []string, span Span) *CompileError {
	return &CompileError{Kind: AmbiguousFunction, Name: name, Candidates: candidates, Span: span}
}

func errTypeMismatch(expected, actual types.SemanticType, span Span) *CompileError {
	return &CompileError{Kind: TypeMismatch, Expected: expected, Actual: actual, Span: span}
}

func errTypeMismatchMsg(expected, actual types.SemanticType, msg string, span Span) *CompileError {
	return &CompileError{Kind: TypeMismatch, Expected: expected, Actual: actual, Message: msg, Span: span}
}

func errTypeError(msg string, span Span) *CompileError {
	return &CompileError{Kind: TypeError, Message: msg, Span: span}
}

func errUnsupportedArithmetic(op string, left, right types.SemanticType, span Span) *CompileError {
	return &CompileError{Kind: UnsupportedArithmetic, Op: op, LeftType: left, RightType: right, Span: span}
}

func errUnsupportedComparison(op string, left, right types.SemanticType, span Span) *CompileError {
	return &CompileError{Kind: UnsupportedComparison, Op: op, LeftType: left, RightType: right, Span: span}
}

func errIncompatibleMerge(left, right types.SemanticType, span Span) *CompileError {
	return &CompileError{Kind: IncompatibleMerge, LeftType: left, RightType: right, Span: span}
}

func errInvalidProjection(field string, base types.SemanticType, span Span) *CompileError {
	return &CompileError{Kind: InvalidProjection, Field: field, Actual: base, Span: span}
}

func errInvalidFieldAccess(field string, base types.SemanticType, span Span) *CompileError {
	return &CompileError{Kind: InvalidFieldAccess, Field: field, Actual: base, Span: span}
}

func errInvalidLambdaContext(span Span) *CompileError {
	return &CompileError{Kind: InvalidLambdaContext, Span: span}
}

func errLambdaNeedsAnnotation(span Span) *CompileError {
	return &CompileError{Kind: LambdaNeedsAnnotation, Span: span}
}

func errLambdaArityMismatch(span Span) *CompileError {
	return &CompileError{Kind: LambdaArityMismatch, Span: span}
}

// Warning is a non-fatal observation the checker may record without
// aborting (e.g. a shadowed binding).
type Warning struct {
	Message string
	Span    Span
}
