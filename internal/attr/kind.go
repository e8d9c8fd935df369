package attr

import "strings"

// Kind is a closed enumeration of IDL attributes understood by the generator.
type Kind uint8

const (
	Invalid Kind = iota

	// parameter attributes
	In
	Out
	Ref
	String
	SizeIs
	LengthIs
	FirstIs
	LastIs
	MaxIs
	MinIs
	IIDIs
	ContextHandle
	PreallocClient
	PreallocServer
	TransmitAs

	// operation attributes
	Idempotent
	NoOpcode
	NoExceptions
	SchedDonate
	DefaultTimeout
	AllowReplyOnly
	Oneway
	UUID

	kindCount
)

// Target tells where an attribute may appear.
type Target uint8

const (
	OnParameter Target = 1 << iota
	OnOperation
)

type kindInfo struct {
	name string
	arg  bool
	on   Target
}

var kinds = [kindCount]kindInfo{
	Invalid:        {name: "invalid"},
	In:             {name: "in", on: OnParameter},
	Out:            {name: "out", on: OnParameter},
	Ref:            {name: "ref", on: OnParameter},
	String:         {name: "string", on: OnParameter},
	SizeIs:         {name: "size_is", arg: true, on: OnParameter},
	LengthIs:       {name: "length_is", arg: true, on: OnParameter},
	FirstIs:        {name: "first_is", arg: true, on: OnParameter},
	LastIs:         {name: "last_is", arg: true, on: OnParameter},
	MaxIs:          {name: "max_is", arg: true, on: OnParameter},
	MinIs:          {name: "min_is", arg: true, on: OnParameter},
	IIDIs:          {name: "iid_is", arg: true, on: OnParameter},
	ContextHandle:  {name: "context_handle", on: OnParameter},
	PreallocClient: {name: "prealloc_client", on: OnParameter},
	PreallocServer: {name: "prealloc_server", on: OnParameter},
	TransmitAs:     {name: "transmit_as", arg: true, on: OnParameter},
	Idempotent:     {name: "idempotent", on: OnOperation},
	NoOpcode:       {name: "noopcode", on: OnOperation},
	NoExceptions:   {name: "noexceptions", on: OnOperation},
	SchedDonate:    {name: "sched_donate", on: OnOperation},
	DefaultTimeout: {name: "default_timeout", on: OnOperation},
	AllowReplyOnly: {name: "allow_reply_only", on: OnOperation},
	Oneway:         {name: "oneway", on: OnOperation},
	UUID:           {name: "uuid", arg: true, on: OnOperation},
}

var byName = func() map[string]Kind {
	m := make(map[string]Kind, kindCount)
	for k := Kind(1); k < kindCount; k++ {
		m[kinds[k].name] = k
	}
	return m
}()

func (k Kind) String() string {
	if k >= kindCount {
		return "unknown"
	}
	return kinds[k].name
}

// TakesArgument reports whether the attribute is written as name(arg).
func (k Kind) TakesArgument() bool {
	return k < kindCount && kinds[k].arg
}

// AppliesTo reports whether the attribute is legal on t.
func (k Kind) AppliesTo(t Target) bool {
	return k > Invalid && k < kindCount && kinds[k].on&t != 0
}

// Lookup resolves an attribute name, case-insensitively.
func Lookup(name string) (Kind, bool) {
	k, ok := byName[strings.ToLower(strings.TrimSpace(name))]
	return k, ok
}
