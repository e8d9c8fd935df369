package idlfile

import (
	"fmt"

	"l4idl/internal/diag"
)

// ErrorKind classifies description errors.
type ErrorKind uint8

const (
	ErrSyntax ErrorKind = iota + 1
	ErrMissingField
	ErrUnknownType
	ErrUnknownAttribute
	ErrMisplacedAttribute
	ErrUnresolvedRef
	ErrDuplicateInterface
	ErrDuplicateOperation
	ErrDuplicateParameter
	ErrUnknownBase
	ErrCycle
	ErrBadBound
	ErrFormat
)

// DecodeError reports a malformed or inconsistent interface description.
type DecodeError struct {
	Kind    ErrorKind
	File    string
	Element string
	Detail  string
	Err     error
}

func (e *DecodeError) Error() string {
	where := e.File
	if e.Element != "" {
		where += ": " + e.Element
	}
	switch e.Kind {
	case ErrSyntax:
		return fmt.Sprintf("%s: malformed description: %v", where, e.Err)
	case ErrMissingField:
		return fmt.Sprintf("%s: missing %s", where, e.Detail)
	case ErrUnknownType:
		return fmt.Sprintf("%s: unknown type %q", where, e.Detail)
	case ErrUnknownAttribute:
		return fmt.Sprintf("%s: %v", where, e.Err)
	case ErrMisplacedAttribute:
		return fmt.Sprintf("%s: attribute %s not allowed here", where, e.Detail)
	case ErrUnresolvedRef:
		return fmt.Sprintf("%s: %s refers to no parameter of the operation", where, e.Detail)
	case ErrDuplicateInterface:
		return fmt.Sprintf("%s: duplicate interface %q", where, e.Detail)
	case ErrDuplicateOperation:
		return fmt.Sprintf("%s: duplicate operation %q", where, e.Detail)
	case ErrDuplicateParameter:
		return fmt.Sprintf("%s: duplicate parameter %q", where, e.Detail)
	case ErrUnknownBase:
		return fmt.Sprintf("%s: unknown base interface %q", where, e.Detail)
	case ErrCycle:
		return fmt.Sprintf("%s: inheritance cycle through %s", where, e.Detail)
	case ErrBadBound:
		return fmt.Sprintf("%s: invalid array bound %q", where, e.Detail)
	case ErrFormat:
		return fmt.Sprintf("%s: unsupported description format %q", where, e.Detail)
	}
	return fmt.Sprintf("%s: %s", where, e.Detail)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is matches on Kind so callers can test errors.Is(err, &DecodeError{Kind: ErrCycle}).
func (e *DecodeError) Is(target error) bool {
	t, ok := target.(*DecodeError)
	return ok && t.Kind == e.Kind
}

// Code maps the error to its diagnostic code.
func (e *DecodeError) Code() diag.Code {
	switch e.Kind {
	case ErrSyntax, ErrFormat:
		return diag.DescSyntax
	case ErrMissingField:
		return diag.DescMissingField
	case ErrUnknownType:
		return diag.DescUnknownType
	case ErrUnknownAttribute:
		return diag.DescUnknownAttribute
	case ErrMisplacedAttribute:
		return diag.DescAttributeMisplaced
	case ErrUnresolvedRef:
		return diag.DescUnresolvedRef
	case ErrDuplicateInterface, ErrDuplicateOperation:
		return diag.DescDuplicateOperation
	case ErrDuplicateParameter:
		return diag.DescDuplicateParameter
	case ErrUnknownBase:
		return diag.DescUnknownBase
	case ErrCycle:
		return diag.DescInheritanceCycle
	case ErrBadBound:
		return diag.DescBadBound
	}
	return diag.DescSyntax
}
