package comm

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"l4idl/internal/attr"
	"l4idl/internal/cgen"
	"l4idl/internal/diag"
	"l4idl/internal/idl"
	"l4idl/internal/layout"
	"l4idl/internal/target"
	"l4idl/internal/tracehook"
)

var (
	v2abs   = target.Profile{Family: target.FamilyV2, Arch: target.ArchIA32, Code: target.CodeAbsolute}
	v2pic   = target.Profile{Family: target.FamilyV2, Arch: target.ArchIA32, Code: target.CodePIC}
	x0abs   = target.Profile{Family: target.FamilyX0, Arch: target.ArchIA32, Code: target.CodeAbsolute}
	v2amd64 = target.Profile{Family: target.FamilyV2, Arch: target.ArchAMD64, Code: target.CodeAbsolute}
	x0arm   = target.Profile{Family: target.FamilyX0, Arch: target.ArchARM, Code: target.CodePIC}
)

func prm(t *testing.T, typ, name string, stars int, attrs ...string) *idl.Parameter {
	t.Helper()
	set, err := attr.ParseAll(attrs)
	if err != nil {
		t.Fatal(err)
	}
	return &idl.Parameter{Type: idl.MustBuiltin(typ), Decl: idl.Declarator{Name: name, Stars: stars}, Attrs: set}
}

func operation(t *testing.T, name string, opAttrs []string, params ...*idl.Parameter) *idl.Operation {
	t.Helper()
	set, err := attr.ParseAll(opAttrs)
	if err != nil {
		t.Fatal(err)
	}
	return &idl.Operation{Name: name, Params: params, Attrs: set}
}

// callRequest plans both directions of op on p.
func callRequest(t *testing.T, p target.Profile, op *idl.Operation) Request {
	t.Helper()
	pl := layout.NewPlanner(target.MustNew(p))
	in, err := pl.Plan(nil, op, idl.In, layout.ClientCall)
	if err != nil {
		t.Fatal(err)
	}
	out, err := pl.Plan(nil, op, idl.Out, layout.ClientCall)
	if err != nil {
		t.Fatal(err)
	}
	return Request{Kind: Call, Interface: "fs", Operation: op.Name, Send: in, Recv: out}
}

// run walks every step and returns the emitted call and check.
func run(t *testing.T, p target.Profile, req Request, flexpages int) (*Emitter, *cgen.Block) {
	t.Helper()
	e, err := New(DefaultRegistry(), p, req)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.ComputeSizes(); err != nil {
		t.Fatal(err)
	}
	if _, err := e.SelectShortOrLong(); err != nil {
		t.Fatal(err)
	}
	if _, err := e.SelectFlexpageVariant(flexpages); err != nil {
		t.Fatal(err)
	}
	b := &cgen.Block{}
	if err := e.EmitCall(b); err != nil {
		t.Fatal(err)
	}
	if err := e.EmitErrorCheck(b); err != nil {
		t.Fatal(err)
	}
	if e.State() != Done || !b.Balanced() {
		t.Fatalf("state %v, balanced %v", e.State(), b.Balanced())
	}
	return e, b
}

func TestScenarioAShortCall(t *testing.T) {
	op := operation(t, "add", []string{"noopcode"}, prm(t, "int", "a", 0, "in"), prm(t, "int", "b", 0, "in"))
	e, b := run(t, v2abs, callRequest(t, v2abs, op), 0)
	if e.Variant().String() != "short" || e.ReceiveVariant().String() != "short" {
		t.Fatalf("variants %v/%v", e.Variant(), e.ReceiveVariant())
	}
	if got := e.Sizes(); got.SendWords != 2 || got.RegisterWords != 2 {
		t.Fatalf("sizes %+v", got)
	}
	for _, want := range []string{
		`"0" ((l4_umword_t)(L4_IPC_SHORT_MSG))`,
		`"4" ((l4_umword_t)(L4_IPC_SHORT_MSG))`,
		`"1" (_dice_msg_buffer._word[0])`,
		`"=a" (_dice_result.msgdope)`,
		`"int $0x30`,
	} {
		if !b.Contains(want) {
			t.Errorf("missing %q in:\n%s", want, b)
		}
	}
}

func TestScenarioBLongCall(t *testing.T) {
	op := operation(t, "name", []string{"noexceptions"}, prm(t, "char", "s", 2, "out", "ref", "string", "max_is(64)"))
	e, b := run(t, v2abs, callRequest(t, v2abs, op), 0)
	if e.ReceiveVariant() != (Variant{Size: Long}) {
		t.Fatalf("receive variant %v", e.ReceiveVariant())
	}
	if !b.Contains(`"4" ((l4_umword_t)(&_dice_msg_buffer))`) {
		t.Fatalf("string reply should land in the buffer:\n%s", b)
	}
	// the opcode alone still fits the registers
	if e.Variant() != (Variant{Size: Short}) || !b.Contains(`"0" ((l4_umword_t)(L4_IPC_SHORT_MSG))`) {
		t.Fatalf("send variant %v:\n%s", e.Variant(), b)
	}
}

func TestPhasesPickSizeIndependently(t *testing.T) {
	for _, tc := range []struct {
		name       string
		op         *idl.Operation
		send, recv Size
	}{
		{"both", operation(t, "get", []string{"noexceptions"},
			prm(t, "char", "key", 1, "in", "ref", "string"),
			prm(t, "char", "s", 2, "out", "ref", "string", "max_is(64)")), Long, Long},
		{"send", operation(t, "put", nil, prm(t, "char", "key", 1, "in", "ref", "string")), Long, Short},
		{"neither", operation(t, "add", nil, prm(t, "int", "a", 0, "in")), Short, Short},
	} {
		e, b := run(t, v2amd64, callRequest(t, v2amd64, tc.op), 0)
		if e.Variant().Size != tc.send || e.ReceiveVariant().Size != tc.recv {
			t.Errorf("%s: variants %v/%v", tc.name, e.Variant(), e.ReceiveVariant())
		}
		if got := strings.Count(b.Lines()[0], "&_dice_msg_buffer,"); got != btoi(tc.send == Long)+btoi(tc.recv == Long) {
			t.Errorf("%s: buffer passed %d times: %s", tc.name, got, b.Lines()[0])
		}
	}
}

func btoi(ok bool) int {
	if ok {
		return 1
	}
	return 0
}

func TestScenarioCShortFlexpage(t *testing.T) {
	op := operation(t, "map", []string{"noopcode"}, prm(t, "fpage", "page", 0, "in"))
	e, b := run(t, v2abs, callRequest(t, v2abs, op), 1)
	if e.Variant().String() != "short-fpage" {
		t.Fatalf("variant %v", e.Variant())
	}
	if n := b.Count("L4_IPC_SHORT_FPAGE"); n != 1 {
		t.Fatalf("flexpage bit appears %d times:\n%s", n, b)
	}
	if b.Contains("&_dice_msg_buffer") {
		t.Fatalf("short call must not pass a buffer:\n%s", b)
	}
}

func TestLongFlexpageDescriptor(t *testing.T) {
	op := operation(t, "share", nil,
		prm(t, "fpage", "page", 0, "in"),
		prm(t, "char", "tag", 1, "in", "ref", "string"))
	e, b := run(t, v2amd64, callRequest(t, v2amd64, op), 1)
	if e.Variant().String() != "long-fpage" {
		t.Fatalf("variant %v", e.Variant())
	}
	want := "l4_ipc_call(*_dice_corba_obj, (void*)((l4_umword_t)&_dice_msg_buffer | 2), " +
		"_dice_msg_buffer._word[0], _dice_msg_buffer._word[1], L4_IPC_SHORT_MSG, " +
		"&_dice_msg_buffer._word[0], &_dice_msg_buffer._word[1], _dice_corba_env->timeout, &_dice_result);"
	if b.Lines()[0] != want {
		t.Fatalf("call = %q", b.Lines()[0])
	}
}

func TestReceiveFlexpageWindow(t *testing.T) {
	op := operation(t, "fault", []string{"noopcode"}, prm(t, "fpage", "page", 1, "out"))
	e, b := run(t, x0arm, callRequest(t, x0arm, op), 0)
	if e.ReceiveVariant().String() != "short-fpage" {
		t.Fatalf("receive variant %v", e.ReceiveVariant())
	}
	if !b.Contains("l4_ipc_call_w3(") || !b.Contains("(void*)(_dice_corba_env->rcv_fpage.raw | L4_IPC_SHORT_FPAGE)") {
		t.Fatalf("call:\n%s", b)
	}
}

func TestRetryLoopAndErrorCheck(t *testing.T) {
	op := operation(t, "add", []string{"noopcode"}, prm(t, "int", "a", 0, "in"))
	req := callRequest(t, v2amd64, op)
	req.Retry = true
	req.Return = "return -1;"
	_, b := run(t, v2amd64, req, 0)
	want := []string{
		"do {",
		"l4_ipc_call(*_dice_corba_obj, L4_IPC_SHORT_MSG, _dice_msg_buffer._word[0], _dice_msg_buffer._word[1], " +
			"L4_IPC_SHORT_MSG, &_dice_msg_buffer._word[0], &_dice_msg_buffer._word[1], _dice_corba_env->timeout, &_dice_result);",
		"} while (L4_IPC_ERROR(_dice_result) == L4_IPC_SEABORTED || L4_IPC_ERROR(_dice_result) == L4_IPC_SECANCELED);",
		"if (L4_IPC_IS_ERROR(_dice_result)) {",
		"_dice_corba_env->major = CORBA_SYSTEM_EXCEPTION;",
		"_dice_corba_env->ipc_error = L4_IPC_ERROR(_dice_result);",
		"return -1;",
		"}",
	}
	if diff := cmp.Diff(want, b.Lines()); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestServerPrimitivesNeverRetry(t *testing.T) {
	op := operation(t, "add", nil, prm(t, "int", "a", 0, "in"))
	reply, err := layout.NewPlanner(target.MustNew(v2abs)).Plan(nil, op, idl.Out, layout.ComponentReply)
	if err != nil {
		t.Fatal(err)
	}
	req := Request{Kind: ReplyWait, Operation: "server_loop", Send: reply, Retry: true, Pointer: true, Return: "continue;"}
	e, b := run(t, v2abs, req, 0)
	if b.Contains("do {") {
		t.Fatalf("reply and wait wrapped in retry loop:\n%s", b)
	}
	if e.ReceiveVariant().Size != Long || !e.Sizes().RecvAny {
		t.Fatalf("open wait must receive into the buffer: %+v", e.Sizes())
	}
	want := "l4_ipc_reply_and_wait(*_dice_corba_obj, L4_IPC_SHORT_MSG, _dice_msg_buffer->_word[0], _dice_msg_buffer->_word[1], " +
		"_dice_corba_obj, _dice_msg_buffer, &_dice_msg_buffer->_word[0], &_dice_msg_buffer->_word[1], L4_IPC_SEND_TIMEOUT_0, &_dice_result);"
	if !b.Contains(want) {
		t.Fatalf("reply and wait:\n%s", b)
	}
}

func TestSendOnlyOmitsReceive(t *testing.T) {
	op := operation(t, "notify", []string{"oneway", "noopcode"}, prm(t, "int", "ev", 0, "in"))
	in, err := layout.NewPlanner(target.MustNew(x0abs)).Plan(nil, op, idl.In, layout.ClientCall)
	if err != nil {
		t.Fatal(err)
	}
	e, b := run(t, x0abs, Request{Kind: Send, Operation: "notify", Send: in}, 0)
	if !b.Contains(`"3" ((l4_umword_t)(L4_IPC_NIL_DESCRIPTOR))`) {
		t.Fatalf("send should have a nil receive descriptor:\n%s", b)
	}
	names := make([]string, 0)
	for _, l := range e.Locals() {
		names = append(names, l.Name)
	}
	if !cmp.Equal(names, []string{"_dice_result", "_dice_esi", "_dice_ecx"}) {
		t.Fatalf("locals %v", names)
	}
}

func TestPICKeepsEBX(t *testing.T) {
	op := operation(t, "add", []string{"noopcode"}, prm(t, "int", "a", 0, "in"))
	_, b := run(t, v2pic, callRequest(t, v2pic, op), 0)
	for _, want := range []string{`"pushl %%ebx`, `"popl %%ebx`, `"=c" (_dice_msg_buffer._word[1])`, `"1" ((l4_umword_t)&_dice_msg_buffer._word[0])`} {
		if !b.Contains(want) {
			t.Errorf("missing %q", want)
		}
	}
	if b.Contains(`"=b"`) {
		t.Fatal("PIC code must not bind ebx")
	}
}

func TestTraceHookPoints(t *testing.T) {
	op := operation(t, "read", []string{"noopcode"}, prm(t, "int", "fd", 0, "in"))
	req := callRequest(t, v2amd64, op)
	req.Hook = tracehook.Printf{}
	_, b := run(t, v2amd64, req, 0)
	lines := b.Lines()
	if lines[0] != `LOG_printf("before_call fs::read\n");` {
		t.Fatalf("first line %q", lines[0])
	}
	if lines[2] != `LOG_printf("after_call fs::read result=%lx\n", (unsigned long)_dice_result.msgdope);` {
		t.Fatalf("after line %q", lines[2])
	}
}

func TestStepsOutOfOrder(t *testing.T) {
	op := operation(t, "add", []string{"noopcode"}, prm(t, "int", "a", 0, "in"))
	bag := diag.NewBag(0)
	req := callRequest(t, v2abs, op)
	req.Reporter = diag.BagReporter{Bag: bag}
	e, err := New(DefaultRegistry(), v2abs, req)
	if err != nil {
		t.Fatal(err)
	}
	err = e.EmitCall(&cgen.Block{})
	var se *StateError
	if !errors.As(err, &se) || se.Have != Start || se.Want != VariantSelected {
		t.Fatalf("err = %v", err)
	}
	if !bag.HasCode(diag.ComBadState) {
		t.Fatal("no diagnostic for out-of-order step")
	}
	if _, err := e.ComputeSizes(); err != nil {
		t.Fatal(err)
	}
	if _, err := e.ComputeSizes(); !errors.As(err, &se) {
		t.Fatalf("second ComputeSizes: %v", err)
	}
}

func TestKindNeedsLayouts(t *testing.T) {
	e, err := New(DefaultRegistry(), v2abs, Request{Kind: Call, Operation: "x"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.ComputeSizes()
	var ce *Error
	if !errors.As(err, &ce) || ce.Code != diag.ComUnsupportedOp {
		t.Fatalf("err = %v", err)
	}
}

func TestDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry()
	if reg.Len() != len(target.All()) || reg.Len() != 12 {
		t.Fatalf("registry has %d profiles", reg.Len())
	}
	if diff := cmp.Diff(target.All(), reg.Profiles()); diff != "" {
		t.Fatalf("profiles (-want +got):\n%s", diff)
	}
	for _, p := range target.All() {
		s, err := reg.Lookup(p)
		if err != nil {
			t.Fatalf("%v: %v", p, err)
		}
		if asm := strings.HasPrefix(s.Name(), "ia32-asm-"); asm != (p.Arch == target.ArchIA32) {
			t.Errorf("%v uses %s", p, s.Name())
		}
	}
	if err := reg.Register(v2abs, Binding{Family: target.FamilyV2}); err == nil {
		t.Fatal("duplicate registration accepted")
	}

	bag := diag.NewBag(0)
	_, err := New(NewRegistry(), v2abs, Request{Kind: Call, Reporter: diag.BagReporter{Bag: bag}})
	var le *LookupError
	if !errors.As(err, &le) || le.Profile != v2abs || !bag.HasCode(diag.ComNoStrategy) {
		t.Fatalf("err = %v", err)
	}
}

func TestParseVariant(t *testing.T) {
	for _, v := range Variants() {
		got, err := ParseVariant(v.String())
		if err != nil || got != v {
			t.Errorf("ParseVariant(%q) = %v, %v", v, got, err)
		}
	}
	if _, err := ParseVariant("medium"); err == nil {
		t.Fatal("accepted unknown variant")
	}
}
