// Package naming decides the C identifiers used by generated stubs.
package naming

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// FuncKind selects a generated function.
type FuncKind uint8

const (
	FuncCall FuncKind = iota + 1
	FuncSend
	FuncComponent
	FuncServerOp
	FuncReply
	FuncDispatch
	FuncWaitAny
	FuncReplyWait
	FuncServerLoop
)

// Namer is consulted by every generator component instead of hard-coded
// spellings.
type Namer interface {
	// Local names a generator-owned local variable.
	Local(name string) string
	// Storage names the server-side value backing a by-reference parameter.
	Storage(param string) string
	MsgBuffer() string
	// MsgBufferType names the buffer typedef; op == "" means the
	// interface-wide server buffer.
	MsgBufferType(iface, op string) string
	Env() string
	Object() string
	Opcode(iface, op string) string
	Function(kind FuncKind, iface, op string) string
	HeaderGuard(file string) string
}

// Default reproduces the conventional _dice_ spellings.
type Default struct {
	Prefix string
}

// New returns the default namer.
func New() Default { return Default{Prefix: "_dice_"} }

func (d Default) prefix() string {
	if d.Prefix == "" {
		return "_dice_"
	}
	return d.Prefix
}

func (d Default) Local(name string) string   { return d.prefix() + name }
func (d Default) Storage(param string) string { return d.prefix() + "val_" + param }
func (d Default) MsgBuffer() string           { return d.prefix() + "msg_buffer" }
func (d Default) Env() string                 { return d.prefix() + "corba_env" }
func (d Default) Object() string              { return d.prefix() + "corba_obj" }

func (d Default) MsgBufferType(iface, op string) string {
	if op == "" {
		return Sanitize(iface) + "_msg_buffer_t"
	}
	return Sanitize(iface) + "_" + Sanitize(op) + "_msg_buffer_t"
}

func (d Default) Opcode(iface, op string) string {
	return upper.String(Sanitize(iface) + "_" + Sanitize(op) + "_opcode")
}

func (d Default) Function(kind FuncKind, iface, op string) string {
	base := Sanitize(iface)
	switch kind {
	case FuncCall:
		return base + "_" + Sanitize(op) + "_call"
	case FuncSend:
		return base + "_" + Sanitize(op) + "_send"
	case FuncComponent:
		return base + "_" + Sanitize(op) + "_component"
	case FuncServerOp:
		return base + "_" + Sanitize(op) + "_srv"
	case FuncReply:
		return base + "_" + Sanitize(op) + "_reply"
	case FuncDispatch:
		return base + "_dispatch"
	case FuncWaitAny:
		return base + "_wait_any"
	case FuncReplyWait:
		return base + "_reply_and_wait"
	case FuncServerLoop:
		return base + "_server_loop"
	}
	return base + "_" + Sanitize(op)
}

func (d Default) HeaderGuard(file string) string {
	return "__" + upper.String(Sanitize(file)) + "__"
}

var upper = cases.Upper(language.Und)

// Sanitize turns a description name into a C identifier: NFC-normalised,
// scope separators and other punctuation mapped to '_'.
func Sanitize(name string) string {
	name = norm.NFC.String(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "::", "_")
	var sb strings.Builder
	for i, r := range name {
		switch {
		case r == '_' || r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if i == 0 && unicode.IsDigit(r) {
				sb.WriteByte('_')
			}
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}
