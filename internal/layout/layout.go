package layout

import (
	"l4idl/internal/idl"
	"l4idl/internal/target"
)

// Shape is the message-shape variant a layout is planned for.
type Shape uint8

const (
	ClientCall Shape = iota + 1
	ServerDispatch
	ComponentReply
)

func (s Shape) String() string {
	switch s {
	case ClientCall:
		return "client-call"
	case ServerDispatch:
		return "server-dispatch"
	case ComponentReply:
		return "component-reply"
	}
	return "unknown"
}

// ServerSide reports shapes used by the dispatcher and component code. They
// address the buffer with runtime offsets.
func (s Shape) ServerSide() bool { return s == ServerDispatch || s == ComponentReply }

// Class is the planner's classification of a slot.
type Class uint8

const (
	ClassFixed Class = iota + 1
	ClassVariable
	ClassFlexpage
	ClassString
	ClassHeader
)

func (c Class) String() string {
	switch c {
	case ClassFixed:
		return "fixed"
	case ClassVariable:
		return "variable"
	case ClassFlexpage:
		return "flexpage"
	case ClassString:
		return "string"
	case ClassHeader:
		return "header"
	}
	return "unknown"
}

// Names of synthetic slots.
const (
	OpcodeSlot    = "_dice_opcode"
	ExceptionSlot = "_dice_exception"
)

// Slot places one parameter, or a synthetic word, in the message.
type Slot struct {
	Name     string `msgpack:"name"`
	Class    Class  `msgpack:"class"`
	Offset   int    `msgpack:"offset"` // bytes from the start of the dword region (strings: descriptor table), -1 if runtime
	Size     int    `msgpack:"size"`   // bytes; the upper bound for variable slots
	Align    int    `msgpack:"align"`
	Count    int    `msgpack:"count"` // elements (flexpages, array elements, string bytes)
	ElemSize int    `msgpack:"elem_size"`
	Index    int    `msgpack:"index"` // descriptor index of strings, first flexpage index
	Bounded  bool   `msgpack:"bounded"`
}

// Static reports whether the slot offset is known at generation time.
func (s Slot) Static() bool { return s.Offset >= 0 }

// FlexpageRegion is the leading run of flexpage descriptors.
type FlexpageRegion struct {
	Own       int    `msgpack:"own"` // flexpages this operation sends (upper bound for arrays)
	Max       int    `msgpack:"max"` // maximum over every operation sharing the receive buffer
	Delimited bool   `msgpack:"delimited"`
	Runtime   bool   `msgpack:"runtime"` // own count is known only at runtime
	Slots     []Slot `msgpack:"slots"`
}

// Reserved is the number of two-word descriptors reserved, delimiter included.
func (f FlexpageRegion) Reserved() int {
	if f.Max == 0 {
		return 0
	}
	if f.Delimited {
		return f.Max + 1
	}
	return f.Max
}

// Bytes is the region size on a target with the given word size.
func (f FlexpageRegion) Bytes(word int) int { return f.Reserved() * 2 * word }

// DelimiterOffset is where the zero/zero terminator sits.
func (f FlexpageRegion) DelimiterOffset(word int) int { return f.Max * 2 * word }

// Layout is the planned message of one operation in one direction.
type Layout struct {
	Interface  string         `msgpack:"interface"`
	Operation  string         `msgpack:"operation"`
	Dir        idl.Direction  `msgpack:"dir"`
	Shape      Shape          `msgpack:"shape"`
	Profile    target.Profile `msgpack:"profile"`
	WordSize   int            `msgpack:"word_size"`
	DopeWords  int            `msgpack:"dope_words"`
	ShortWords int            `msgpack:"short_words"`

	Flexpages     FlexpageRegion `msgpack:"flexpages"`
	Header        *Slot          `msgpack:"header"`
	HeaderShared  bool           `msgpack:"header_shared"` // exception word aliases flexpage slot 0
	Fixed         []Slot         `msgpack:"fixed"`
	FixedBytes    int            `msgpack:"fixed_bytes"` // flexpages, header and fixed params, word aligned
	Variable      []Slot         `msgpack:"variable"`
	VariableBytes int            `msgpack:"variable_bytes"` // upper bound
	Strings       []Slot         `msgpack:"strings"`

	VariableSized bool `msgpack:"variable_sized"`
	Dynamic       bool `msgpack:"dynamic"` // offsets past the fixed region are computed at runtime
}

// FixedWords is the statically known dword count.
func (l *Layout) FixedWords() int { return l.FixedBytes / l.WordSize }

// MaxWords is the dword count including the variable region at its maximum.
func (l *Layout) MaxWords() int { return (l.FixedBytes + l.VariableBytes) / l.WordSize }

// StringWords is the size of the descriptor table in words.
func (l *Layout) StringWords() int { return len(l.Strings) * l.DopeWords }

// TotalBytes is the maximum wire footprint of the message.
func (l *Layout) TotalBytes() int { return (l.MaxWords() + l.StringWords()) * l.WordSize }

// HasFlexpages reports whether the direction reserves a flexpage region.
func (l *Layout) HasFlexpages() bool { return l.Flexpages.Max > 0 }

// HasException reports whether an exception word is carried.
func (l *Layout) HasException() bool { return l.Header != nil && l.Header.Name == ExceptionSlot }

// HasOpcode reports whether an opcode word is carried.
func (l *Layout) HasOpcode() bool { return l.Header != nil && l.Header.Name == OpcodeSlot }

// ShortEligible reports whether the message fits the register budget.
func (l *Layout) ShortEligible() bool {
	return !l.VariableSized && len(l.Strings) == 0 && l.MaxWords() <= l.ShortWords
}

// Slot finds a slot by parameter name.
func (l *Layout) Slot(name string) (Slot, error) {
	if l.Header != nil && l.Header.Name == name {
		return *l.Header, nil
	}
	for _, group := range [][]Slot{l.Flexpages.Slots, l.Fixed, l.Variable, l.Strings} {
		for _, s := range group {
			if s.Name == name {
				return s, nil
			}
		}
	}
	return Slot{}, &Error{Kind: ErrMissingElement, Operation: l.Operation, Element: name}
}

// Exception returns the exception word slot.
func (l *Layout) Exception() (Slot, error) {
	if !l.HasException() {
		return Slot{}, &Error{Kind: ErrMissingElement, Operation: l.Operation, Element: ExceptionSlot}
	}
	return *l.Header, nil
}

// Opcode returns the opcode word slot.
func (l *Layout) Opcode() (Slot, error) {
	if !l.HasOpcode() {
		return Slot{}, &Error{Kind: ErrMissingElement, Operation: l.Operation, Element: OpcodeSlot}
	}
	return *l.Header, nil
}
