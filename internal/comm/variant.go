// Package comm emits the IPC invocation of a stub: the choice between a
// register-only and a buffer transfer, the flexpage sub-variant, the
// profile-specific invocation sequence and the post-call error check.
package comm

import (
	"fmt"
	"strings"
)

// Size is the transfer size class.
type Size uint8

const (
	Short Size = iota + 1 // whole message in registers
	Long                  // message buffer referenced by a register
)

func (s Size) String() string {
	switch s {
	case Short:
		return "short"
	case Long:
		return "long"
	}
	return "unknown"
}

// Variant is one of the four send descriptor forms.
type Variant struct {
	Size     Size
	Flexpage bool
}

func (v Variant) String() string {
	if v.Flexpage {
		return v.Size.String() + "-fpage"
	}
	return v.Size.String()
}

// Variants lists the four combinations in a stable order.
func Variants() []Variant {
	return []Variant{{Short, false}, {Short, true}, {Long, false}, {Long, true}}
}

// ParseVariant accepts the names printed by Variant.String.
func ParseVariant(s string) (Variant, error) {
	for _, v := range Variants() {
		if v.String() == strings.ToLower(strings.TrimSpace(s)) {
			return v, nil
		}
	}
	return Variant{}, fmt.Errorf("invalid transfer variant %q (expected short|short-fpage|long|long-fpage)", s)
}

// Kind is the IPC primitive a stub issues.
type Kind uint8

const (
	Call      Kind = iota + 1 // send and wait for the reply from the same partner
	Send                      // send only
	Wait                      // open wait for any request
	ReplyWait                 // reply, then open wait
	Reply                     // reply only
)

func (k Kind) String() string {
	switch k {
	case Call:
		return "call"
	case Send:
		return "send"
	case Wait:
		return "wait"
	case ReplyWait:
		return "reply_and_wait"
	case Reply:
		return "reply"
	}
	return "unknown"
}

// Sends reports whether the primitive has a send phase.
func (k Kind) Sends() bool { return k != Wait }

// Receives reports whether the primitive has a receive phase.
func (k Kind) Receives() bool { return k == Call || k == Wait || k == ReplyWait }

// Retryable reports whether the primitive may be wrapped in the abort retry
// loop. Server primitives never are.
func (k Kind) Retryable() bool { return k == Call || k == Send }
