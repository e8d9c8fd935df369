package layout

import "fmt"

// ErrorKind classifies planning failures.
type ErrorKind uint8

const (
	// ErrOverflow means the planned message exceeds the target capacity.
	ErrOverflow ErrorKind = iota + 1
	// ErrMissingElement means a required slot is absent from the layout.
	ErrMissingElement
	// ErrUnsupported marks declarations the planner cannot place.
	ErrUnsupported
)

func (k ErrorKind) String() string {
	switch k {
	case ErrOverflow:
		return "overflow"
	case ErrMissingElement:
		return "missing element"
	case ErrUnsupported:
		return "unsupported"
	}
	return "unknown"
}

// Error is returned by the planner and by slot lookups.
type Error struct {
	Kind      ErrorKind
	Operation string
	Element   string
	Size      int
	Limit     int
	Detail    string
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrOverflow:
		return fmt.Sprintf("layout of %s: %s needs %d, capacity is %d", e.Operation, e.Element, e.Size, e.Limit)
	case ErrMissingElement:
		return fmt.Sprintf("layout of %s: no element %q", e.Operation, e.Element)
	case ErrUnsupported:
		if e.Operation == "" {
			return fmt.Sprintf("cannot lay out %s: %s", e.Element, e.Detail)
		}
		return fmt.Sprintf("layout of %s: cannot place %s: %s", e.Operation, e.Element, e.Detail)
	}
	return "layout error"
}

// Is matches errors of the same kind so callers can use errors.Is with a
// template such as &Error{Kind: ErrOverflow}.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}
