package comm

import (
	"fmt"

	"l4idl/internal/cgen"
	"l4idl/internal/diag"
	"l4idl/internal/layout"
	"l4idl/internal/marshal"
	"l4idl/internal/naming"
	"l4idl/internal/source"
	"l4idl/internal/target"
	"l4idl/internal/tracehook"
)

// State is a step of the emitter. The steps run strictly in order.
type State uint8

const (
	Start State = iota
	SizesComputed
	SizeSelected
	VariantSelected
	CallEmitted
	Done
)

func (s State) String() string {
	switch s {
	case Start:
		return "start"
	case SizesComputed:
		return "sizes_computed"
	case SizeSelected:
		return "size_selected"
	case VariantSelected:
		return "variant_selected"
	case CallEmitted:
		return "call_emitted"
	case Done:
		return "done"
	}
	return "unknown"
}

// StateError reports an emitter step taken out of order.
type StateError struct {
	Step string
	Have State
	Want State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("comm: %s in state %s (want %s)", e.Step, e.Have, e.Want)
}

// Error is a generation-time failure of the emitter.
type Error struct {
	Code      diag.Code
	Operation string
	Msg       string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Operation, e.Msg) }

// Request describes the invocation a stub needs.
type Request struct {
	Kind      Kind
	Interface string
	Operation string
	// Send and Recv are the planned layouts of the two phases. Recv is nil
	// for a server receiving any operation of its interface.
	Send *layout.Layout
	Recv *layout.Layout
	// Retry wraps call and send in the abort retry loop.
	Retry bool
	// Pointer is set when the message buffer variable is a pointer.
	Pointer bool
	Timeout string
	// Return leaves the stub after a failed IPC.
	Return   string
	Names    naming.Namer
	Hook     tracehook.Hook
	Reporter diag.Reporter
	Loc      source.Loc
}

// Sizes are the word and string counts of both phases.
type Sizes struct {
	SendWords     int
	SendStrings   int
	SendVariable  bool
	RecvWords     int
	RecvStrings   int
	RecvVariable  bool
	RecvAny       bool // receive shape is the interface-wide buffer
	RegisterWords int
}

// Emitter walks the emission steps for one invocation:
//
//	e.ComputeSizes()
//	e.SelectShortOrLong()
//	e.SelectFlexpageVariant(result.Flexpages)
//	e.EmitCall(b)
//	e.EmitErrorCheck(b)
type Emitter struct {
	req      Request
	names    naming.Namer
	profile  target.Profile
	strategy Strategy

	state   State
	sizes   Sizes
	send    Variant
	recv    Variant
	invoked Invocation
}

// New prepares an emitter for profile p using the strategies in reg.
func New(reg *Registry, p target.Profile, req Request) (*Emitter, error) {
	s, err := reg.Lookup(p)
	if err != nil {
		diag.ReportError(req.Reporter, diag.ComNoStrategy, req.Loc, err.Error()).
			WithNote(source.Loc{Element: "target"}, p.String()).
			Emit()
		return nil, err
	}
	names := req.Names
	if names == nil {
		names = naming.New()
	}
	return &Emitter{req: req, names: names, profile: p, strategy: s}, nil
}

// State returns the current step.
func (e *Emitter) State() State { return e.state }

// Strategy returns the strategy selected for the profile.
func (e *Emitter) Strategy() Strategy { return e.strategy }

// Sizes returns the counts recorded by ComputeSizes.
func (e *Emitter) Sizes() Sizes { return e.sizes }

// Variant returns the send variant chosen so far.
func (e *Emitter) Variant() Variant { return e.send }

// ReceiveVariant returns the receive variant chosen so far.
func (e *Emitter) ReceiveVariant() Variant { return e.recv }

func (e *Emitter) step(name string, want State) error {
	if e.state == want {
		return nil
	}
	err := &StateError{Step: name, Have: e.state, Want: want}
	diag.ReportError(e.req.Reporter, diag.ComBadState, e.req.Loc, err.Error()).Emit()
	return err
}

func (e *Emitter) fail(msg string) error {
	err := &Error{Code: diag.ComUnsupportedOp, Operation: e.req.Operation, Msg: msg}
	diag.ReportError(e.req.Reporter, err.Code, e.req.Loc, err.Error()).Emit()
	return err
}

// ComputeSizes records the word and string counts of both phases and checks
// that the layouts match the invocation kind.
func (e *Emitter) ComputeSizes() (Sizes, error) {
	if err := e.step("ComputeSizes", Start); err != nil {
		return Sizes{}, err
	}
	k := e.req.Kind
	if k < Call || k > Reply {
		return Sizes{}, e.fail(fmt.Sprintf("unknown invocation kind %d", k))
	}
	if k.Sends() && e.req.Send == nil {
		return Sizes{}, e.fail(fmt.Sprintf("%v needs a send layout", k))
	}
	if k == Call && e.req.Recv == nil {
		return Sizes{}, e.fail("call needs a receive layout")
	}
	s := Sizes{RegisterWords: target.MustNew(e.profile).ShortWords}
	if l := e.req.Send; k.Sends() {
		s.SendWords, s.SendStrings, s.SendVariable = l.MaxWords(), len(l.Strings), l.VariableSized
	}
	if k.Receives() {
		if l := e.req.Recv; l != nil {
			s.RecvWords, s.RecvStrings, s.RecvVariable = l.MaxWords(), len(l.Strings), l.VariableSized
		} else {
			s.RecvAny = true
		}
	}
	e.sizes = s
	e.state = SizesComputed
	return s, nil
}

func shortEligible(l *layout.Layout) bool {
	return l != nil && l.ShortEligible()
}

// SelectShortOrLong picks the size class of each phase from its own layout.
// It returns the send class, or the receive class for a wait. An
// interface-wide receive is always long.
func (e *Emitter) SelectShortOrLong() (Size, error) {
	if err := e.step("SelectShortOrLong", SizesComputed); err != nil {
		return 0, err
	}
	class := func(ok bool) Size {
		if ok {
			return Short
		}
		return Long
	}
	k := e.req.Kind
	if k.Sends() {
		e.send.Size = class(shortEligible(e.req.Send))
	}
	if k.Receives() {
		e.recv.Size = class(shortEligible(e.req.Recv))
	}
	e.state = SizeSelected
	if k == Wait {
		return e.recv.Size, nil
	}
	return e.send.Size, nil
}

// SelectFlexpageVariant applies the flexpage sub-variant once the send pass
// is known to have marshalled flexpages. The receive side opens a flexpage
// window when its layout expects one.
func (e *Emitter) SelectFlexpageVariant(flexpages int) (Variant, error) {
	if err := e.step("SelectFlexpageVariant", SizeSelected); err != nil {
		return Variant{}, err
	}
	k := e.req.Kind
	e.send.Flexpage = k.Sends() && flexpages > 0
	e.recv.Flexpage = k.Receives() && e.req.Recv != nil && e.req.Recv.HasFlexpages()
	e.state = VariantSelected
	return e.send, nil
}

func (e *Emitter) buffer() string {
	if e.req.Pointer {
		return e.names.MsgBuffer()
	}
	return "&" + e.names.MsgBuffer()
}

func (e *Emitter) words() string {
	if e.req.Pointer {
		return e.names.MsgBuffer() + "->_word"
	}
	return e.names.MsgBuffer() + "._word"
}

func (e *Emitter) timeout() string {
	if e.req.Timeout != "" {
		return e.req.Timeout
	}
	switch e.req.Kind {
	case Wait:
		return "L4_IPC_NEVER"
	case ReplyWait, Reply:
		return "L4_IPC_SEND_TIMEOUT_0"
	}
	return e.names.Env() + "->timeout"
}

// Result names the IPC result variable.
func (e *Emitter) Result() string { return e.names.Local("result") }

// invocation assembles the strategy input from the chosen variants.
func (e *Emitter) invocation() Invocation {
	return Invocation{
		Kind:      e.req.Kind,
		Send:      e.send,
		Recv:      e.recv,
		Buffer:    e.buffer(),
		Words:     e.words(),
		Dest:      e.names.Object(),
		Timeout:   e.timeout(),
		Result:    e.Result(),
		RcvFpage:  e.names.Env() + "->rcv_fpage",
		LocalName: e.names.Local,
	}
}

// Locals lists the variables the emitted call and check rely on. It is
// valid once the variant has been selected.
func (e *Emitter) Locals() []marshal.Local {
	out := []marshal.Local{{Name: e.Result(), Type: "l4_msgdope_t"}}
	return append(out, e.strategy.Locals(e.invocation())...)
}

func points(k Kind) (before, after tracehook.Point) {
	switch k {
	case Send:
		return tracehook.BeforeSend, tracehook.AfterSend
	case Wait:
		return tracehook.BeforeWait, tracehook.AfterWait
	case ReplyWait:
		return tracehook.BeforeReplyWait, tracehook.AfterReplyWait
	case Reply:
		return tracehook.BeforeReplyOnly, tracehook.AfterReplyOnly
	}
	return tracehook.BeforeCall, tracehook.AfterCall
}

// EmitCall writes the invocation, wrapped in the retry loop when requested,
// between the before and after trace points.
func (e *Emitter) EmitCall(b *cgen.Block) error {
	if err := e.step("EmitCall", VariantSelected); err != nil {
		return err
	}
	inv := e.invocation()
	before, after := points(inv.Kind)
	site := tracehook.Site{Point: before, Interface: e.req.Interface, Operation: e.req.Operation}
	tracehook.Invoke(e.req.Hook, b, site)

	retry := e.req.Retry && inv.Kind.Retryable()
	if retry {
		b.Open("do {")
	}
	if err := e.strategy.Emit(b, inv); err != nil {
		return e.fail(err.Error())
	}
	if retry {
		b.Close(fmt.Sprintf("} while (L4_IPC_ERROR(%s) == L4_IPC_SEABORTED || L4_IPC_ERROR(%s) == L4_IPC_SECANCELED);", inv.Result, inv.Result))
	}

	site.Point, site.Result = after, inv.Result
	tracehook.Invoke(e.req.Hook, b, site)
	e.invoked = inv
	e.state = CallEmitted
	return nil
}

// EmitErrorCheck writes the post-IPC check: a failed IPC becomes a system
// exception carrying the IPC error code, and the stub returns before any
// unmarshalling.
func (e *Emitter) EmitErrorCheck(b *cgen.Block) error {
	if err := e.step("EmitErrorCheck", CallEmitted); err != nil {
		return err
	}
	env := e.names.Env() + "->"
	r := e.invoked.Result
	ret := e.req.Return
	if ret == "" {
		ret = "return;"
	}
	b.Open("if (L4_IPC_IS_ERROR(%s)) {", r)
	b.Linef("%smajor = CORBA_SYSTEM_EXCEPTION;", env)
	b.Linef("%sipc_error = L4_IPC_ERROR(%s);", env, r)
	b.Line(ret)
	b.Close()
	e.state = Done
	return nil
}
