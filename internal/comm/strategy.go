package comm

import (
	"fmt"
	"slices"
	"sync"

	"l4idl/internal/cgen"
	"l4idl/internal/marshal"
	"l4idl/internal/target"
)

// Invocation is one IPC as a strategy spells it. All fields are C
// expressions.
type Invocation struct {
	Kind      Kind
	Send      Variant // zero for Wait
	Recv      Variant // zero for Send and Reply; Flexpage opens a flexpage window
	Buffer    string  // address of the message buffer
	Words     string  // the dword array, indexable
	Dest      string  // pointer to the partner thread id
	Timeout   string
	Result    string // l4_msgdope_t result variable
	RcvFpage  string // receive flexpage of the environment
	LocalName func(string) string
}

func (inv Invocation) local(name string) string {
	if inv.LocalName == nil {
		return "_dice_" + name
	}
	return inv.LocalName(name)
}

func (inv Invocation) word(i int) string { return fmt.Sprintf("%s[%d]", inv.Words, i) }

// SendDescriptor is the send message descriptor.
func (inv Invocation) SendDescriptor() string {
	switch {
	case !inv.Kind.Sends():
		return "L4_IPC_NIL_DESCRIPTOR"
	case inv.Send.Size == Short && inv.Send.Flexpage:
		return "L4_IPC_SHORT_FPAGE"
	case inv.Send.Size == Short:
		return "L4_IPC_SHORT_MSG"
	case inv.Send.Flexpage:
		return fmt.Sprintf("(void*)((l4_umword_t)%s | 2)", inv.Buffer)
	}
	return inv.Buffer
}

// ReceiveDescriptor is the receive message descriptor. A buffer receive
// takes its flexpage window from the buffer's _rcv_fpage.
func (inv Invocation) ReceiveDescriptor() string {
	switch {
	case !inv.Kind.Receives():
		return "L4_IPC_NIL_DESCRIPTOR"
	case inv.Recv.Size == Short && inv.Recv.Flexpage:
		return fmt.Sprintf("(void*)(%s.raw | L4_IPC_SHORT_FPAGE)", inv.RcvFpage)
	case inv.Recv.Size == Short:
		return "L4_IPC_SHORT_MSG"
	}
	return inv.Buffer
}

// Strategy emits invocations for one target profile.
type Strategy interface {
	Name() string
	Emit(b *cgen.Block, inv Invocation) error
	// Locals lists the scratch variables Emit relies on.
	Locals(inv Invocation) []marshal.Local
}

// LookupError is returned for profiles without a registered strategy.
type LookupError struct {
	Profile target.Profile
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("no emission strategy registered for %v", e.Profile)
}

// Registry maps target profiles to strategies.
type Registry struct {
	mu         sync.RWMutex
	byProfile  map[target.Profile]Strategy
	registered []target.Profile
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byProfile: make(map[target.Profile]Strategy)}
}

// Register binds s to p. Rebinding a profile is an error.
func (r *Registry) Register(p target.Profile, s Strategy) error {
	if !p.Valid() {
		return fmt.Errorf("register strategy: invalid profile %v", p)
	}
	if s == nil {
		return fmt.Errorf("register strategy for %v: nil strategy", p)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byProfile[p]; ok {
		return fmt.Errorf("register strategy %s: %v already uses %s", s.Name(), p, old.Name())
	}
	r.byProfile[p] = s
	r.registered = append(r.registered, p)
	return nil
}

// Lookup returns the strategy for p.
func (r *Registry) Lookup(p target.Profile) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byProfile[p]
	if !ok {
		return nil, &LookupError{Profile: p}
	}
	return s, nil
}

// Profiles returns the registered profiles in registration order.
func (r *Registry) Profiles() []target.Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.registered)
}

// Len returns the number of registered profiles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byProfile)
}

// DefaultRegistry returns a fresh registry with a strategy for every
// profile in target.All: inline assembly on ia32, the C IPC bindings
// elsewhere.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, p := range target.All() {
		var s Strategy = Binding{Family: p.Family}
		if p.Arch == target.ArchIA32 {
			s = &IA32Asm{Family: p.Family, PIC: p.Code == target.CodePIC}
		}
		if err := r.Register(p, s); err != nil {
			panic(err)
		}
	}
	return r
}
