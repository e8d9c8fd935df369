package comm

import (
	"fmt"
	"strings"

	"l4idl/internal/cgen"
	"l4idl/internal/marshal"
	"l4idl/internal/target"
)

// Binding calls the C IPC bindings of the kernel interface library. X0
// uses the three-word variants.
type Binding struct {
	Family target.Family
}

func (s Binding) Name() string { return "binding-" + s.Family.String() }

func (s Binding) shortWords() int {
	if s.Family == target.FamilyX0 {
		return 3
	}
	return 2
}

func (s Binding) suffix() string {
	if s.Family == target.FamilyX0 {
		return "_w3"
	}
	return ""
}

func (s Binding) Emit(b *cgen.Block, inv Invocation) error {
	n := s.shortWords()
	snd := make([]string, 0, n)
	rcv := make([]string, 0, n)
	for i := range n {
		snd = append(snd, inv.word(i))
		rcv = append(rcv, "&"+inv.word(i))
	}
	sw, rw := strings.Join(snd, ", "), strings.Join(rcv, ", ")
	result := "&" + inv.Result
	switch inv.Kind {
	case Call:
		b.Linef("l4_ipc_call%s(*%s, %s, %s, %s, %s, %s, %s);", s.suffix(),
			inv.Dest, inv.SendDescriptor(), sw, inv.ReceiveDescriptor(), rw, inv.Timeout, result)
	case Send, Reply:
		b.Linef("l4_ipc_send%s(*%s, %s, %s, %s, %s);", s.suffix(),
			inv.Dest, inv.SendDescriptor(), sw, inv.Timeout, result)
	case Wait:
		b.Linef("l4_ipc_wait%s(%s, %s, %s, %s, %s);", s.suffix(),
			inv.Dest, inv.ReceiveDescriptor(), rw, inv.Timeout, result)
	case ReplyWait:
		b.Linef("l4_ipc_reply_and_wait%s(*%s, %s, %s, %s, %s, %s, %s, %s);", s.suffix(),
			inv.Dest, inv.SendDescriptor(), sw, inv.Dest, inv.ReceiveDescriptor(), rw, inv.Timeout, result)
	default:
		return fmt.Errorf("%s: unsupported invocation kind %v", s.Name(), inv.Kind)
	}
	return nil
}

func (s Binding) Locals(Invocation) []marshal.Local { return nil }
