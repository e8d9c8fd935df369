package comm

import (
	"fmt"
	"strings"

	"l4idl/internal/cgen"
	"l4idl/internal/marshal"
	"l4idl/internal/target"
)

// IA32Asm issues call and send through the int $0x30 trap with inline
// assembly. Server primitives go through the C bindings.
//
// Register use on entry: eax send descriptor, ecx timeout, edx and ebx the
// first two dwords, ebp the receive descriptor, esi/edi the partner id on
// V2 (esi only on X0, where edi carries the third dword). ebx is the GOT
// pointer in PIC code, so PIC variants load dword 1 from memory and hand it
// back in ecx.
type IA32Asm struct {
	Family target.Family
	PIC    bool
}

func (s *IA32Asm) Name() string {
	code := "abs"
	if s.PIC {
		code = "pic"
	}
	return fmt.Sprintf("ia32-asm-%s-%s", s.Family, code)
}

func (s *IA32Asm) Emit(b *cgen.Block, inv Invocation) error {
	if inv.Kind != Call && inv.Kind != Send {
		return Binding{Family: s.Family}.Emit(b, inv)
	}
	prog := s.program(inv)
	b.Open("asm volatile(")
	for _, ins := range prog.text {
		b.Line(fmt.Sprintf("%q", fmt.Sprintf("%-24s", ins)+"\n\t"))
	}
	b.Line(": " + strings.Join(prog.out, ", "))
	b.Line(": " + strings.Join(prog.in, ", "))
	b.Line(`: "memory"`)
	b.Close(");")
	return nil
}

func (s *IA32Asm) Locals(inv Invocation) []marshal.Local {
	if inv.Kind != Call && inv.Kind != Send {
		return nil
	}
	out := []marshal.Local{{Name: inv.local("esi"), Type: "l4_umword_t"}}
	if s.Family == target.FamilyV2 {
		out = append(out, marshal.Local{Name: inv.local("edi"), Type: "l4_umword_t"})
	}
	if !s.PIC {
		out = append(out, marshal.Local{Name: inv.local("ecx"), Type: "l4_umword_t"})
	}
	return out
}

type asmProgram struct {
	text []string
	out  []string
	in   []string
}

func operand(constraint, expr string) string {
	return fmt.Sprintf("%q (%s)", constraint, expr)
}

func (s *IA32Asm) program(inv Invocation) asmProgram {
	snd := "(l4_umword_t)(" + inv.SendDescriptor() + ")"
	rcv := "(l4_umword_t)(" + inv.ReceiveDescriptor() + ")"
	timeout := inv.Timeout + ".raw"
	words := "(l4_umword_t)&" + inv.word(0)
	result := inv.Result + ".msgdope"
	esi, edi, ecx := inv.local("esi"), inv.local("edi"), inv.local("ecx")

	switch {
	case s.Family == target.FamilyV2 && !s.PIC:
		return asmProgram{
			text: []string{"pushl %%ebp", "movl %%edi, %%ebp", "movl 4(%%esi), %%edi", "movl (%%esi), %%esi", "int $0x30", "popl %%ebp"},
			out: []string{operand("=a", result), operand("=d", inv.word(0)), operand("=b", inv.word(1)),
				operand("=S", esi), operand("=D", edi), operand("=c", ecx)},
			in: []string{operand("0", snd), operand("1", inv.word(0)), operand("2", inv.word(1)),
				operand("3", inv.Dest), operand("4", rcv), operand("5", timeout)},
		}
	case s.Family == target.FamilyV2:
		return asmProgram{
			text: []string{"pushl %%ebx", "pushl %%ebp", "movl %%edi, %%ebp", "movl 4(%%edx), %%ebx", "movl (%%edx), %%edx",
				"movl 4(%%esi), %%edi", "movl (%%esi), %%esi", "int $0x30", "popl %%ebp", "movl %%ebx, %%ecx", "popl %%ebx"},
			out: []string{operand("=a", result), operand("=d", inv.word(0)), operand("=c", inv.word(1)),
				operand("=S", esi), operand("=D", edi)},
			in: []string{operand("0", snd), operand("1", words), operand("2", timeout),
				operand("3", inv.Dest), operand("4", rcv)},
		}
	case !s.PIC:
		return asmProgram{
			text: []string{"pushl %%ebp", "movl %%edi, %%ebp", "movl 8(%%edx), %%edi", "movl 4(%%edx), %%ebx", "movl (%%edx), %%edx", "int $0x30", "popl %%ebp"},
			out: []string{operand("=a", result), operand("=d", inv.word(0)), operand("=b", inv.word(1)),
				operand("=D", inv.word(2)), operand("=S", esi), operand("=c", ecx)},
			in: []string{operand("0", snd), operand("1", words), operand("3", rcv),
				operand("4", inv.Dest+"->raw"), operand("5", timeout)},
		}
	}
	return asmProgram{
		text: []string{"pushl %%ebx", "pushl %%ebp", "movl %%edi, %%ebp", "movl 4(%%edx), %%ebx", "movl 8(%%edx), %%edi", "movl (%%edx), %%edx",
			"int $0x30", "popl %%ebp", "movl %%ebx, %%ecx", "popl %%ebx"},
		out: []string{operand("=a", result), operand("=d", inv.word(0)), operand("=c", inv.word(1)),
			operand("=D", inv.word(2)), operand("=S", esi)},
		in: []string{operand("0", snd), operand("1", words), operand("2", timeout),
			operand("3", rcv), operand("4", inv.Dest+"->raw")},
	}
}
