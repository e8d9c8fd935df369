package marshal

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"l4idl/internal/attr"
	"l4idl/internal/declpath"
	"l4idl/internal/diag"
	"l4idl/internal/idl"
	"l4idl/internal/layout"
	"l4idl/internal/target"
)

var v2ia32 = target.MustNew(target.Profile{Family: target.FamilyV2, Arch: target.ArchIA32, Code: target.CodeAbsolute})

func prm(t *testing.T, typ, name string, stars int, attrs ...string) *idl.Parameter {
	t.Helper()
	set, err := attr.ParseAll(attrs)
	if err != nil {
		t.Fatal(err)
	}
	return &idl.Parameter{Type: idl.MustBuiltin(typ), Decl: idl.Declarator{Name: name, Stars: stars}, Attrs: set}
}

func plan(t *testing.T, iface *idl.Interface, op *idl.Operation, dir idl.Direction, shape layout.Shape) *layout.Layout {
	t.Helper()
	l, err := layout.NewPlanner(v2ia32).Plan(iface, op, dir, shape)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

type pathOnly struct {
	Class layout.Class
	Path  string
}

func paths(r Result) []pathOnly {
	out := make([]pathOnly, 0, len(r.Accesses))
	for _, a := range r.Accesses {
		out = append(out, pathOnly{a.Class, a.Path})
	}
	return out
}

func replyOp(t *testing.T) *idl.Operation {
	return &idl.Operation{
		Name:   "get",
		Return: idl.MustBuiltin("int"),
		Params: []*idl.Parameter{
			prm(t, "fpage", "fp", 1, "out"),
			prm(t, "long", "n", 1, "out"),
			prm(t, "char", "name", 2, "out", "ref", "string", "max_is(64)"),
		},
	}
}

func TestReplyRoundTrip(t *testing.T) {
	op := replyOp(t)
	iface := &idl.Interface{Name: "mem", Ops: []*idl.Operation{op}}

	srvLayout := plan(t, iface, op, idl.Out, layout.ComponentReply)
	_, packed, err := Marshal(op, srvLayout, Server, Options{Pointer: true, Long: true})
	if err != nil {
		t.Fatal(err)
	}
	cliLayout := plan(t, iface, op, idl.Out, layout.ClientCall)
	_, unpacked, err := Unmarshal(op, cliLayout, Client, Options{})
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(paths(packed), paths(unpacked)); diff != "" {
		t.Fatalf("access paths differ (-server +client):\n%s", diff)
	}
	want := []string{"_dice_corba_env->major", "(*fp)", "_dice_return", "(*n)", "(**name)"}
	got := make([]string, 0, len(want))
	for _, a := range unpacked.Accesses {
		got = append(got, a.Path)
	}
	if !cmp.Equal(got, want) {
		t.Fatalf("paths = %q", got)
	}
	for i, a := range packed.Accesses {
		if a.Class == layout.ClassFixed && a.Offset != unpacked.Accesses[i].Offset {
			t.Errorf("%s: server offset %d, client offset %d", a.Path, a.Offset, unpacked.Accesses[i].Offset)
		}
	}
	if !packed.Branch || !unpacked.Branch {
		t.Fatal("exception/flexpage branch missing")
	}
}

func TestReplyBranches(t *testing.T) {
	op := replyOp(t)
	srv, _, err := Marshal(op, plan(t, nil, op, idl.Out, layout.ComponentReply), Server, Options{Pointer: true, Long: true})
	if err != nil {
		t.Fatal(err)
	}
	text := srv.String()
	for _, want := range []string{
		"if (_dice_corba_env->major != CORBA_NO_EXCEPTION) {",
		"_dice_msg_buffer->_send = L4_IPC_DOPE(1, 0);",
		"_dice_off = 8;",
		"_dice_off_save = _dice_off;",
		"_dice_off = _dice_msg_buffer->_size.md.dwords * sizeof(l4_umword_t);",
		"_dice_msg_buffer->_send = L4_IPC_DOPE(((_dice_off + 3) / 4), 1);",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("server reply lacks %q:\n%s", want, text)
		}
	}
	if !srv.Balanced() {
		t.Fatal("unbalanced block")
	}

	cli, _, err := Unmarshal(op, plan(t, nil, op, idl.Out, layout.ClientCall), Client, Options{Return: "return _dice_return;"})
	if err != nil {
		t.Fatal(err)
	}
	lines := cli.Lines()
	if lines[0] != "if (l4_ipc_fpage_received(_dice_result)) {" {
		t.Fatalf("first line = %q", lines[0])
	}
	if got := lines[len(lines)-2]; got != "_dice_corba_env->major = (CORBA_exception_type)*(l4_umword_t*)(&_dice_msg_buffer._word[0]);" {
		t.Fatalf("exception path = %q", got)
	}
	if !cli.Contains("(*name) = (char*)(_dice_msg_buffer._strings[0].rcv_str);") {
		t.Fatalf("string unpack missing:\n%s", cli)
	}
}

func TestFlexpageDelimiter(t *testing.T) {
	one := &idl.Operation{Name: "one", Params: []*idl.Parameter{prm(t, "fpage", "a", 0, "in")}}
	two := &idl.Operation{Name: "two", Params: []*idl.Parameter{prm(t, "fpage", "a", 0, "in"), prm(t, "fpage", "b", 0, "in")}}
	iface := &idl.Interface{Name: "pager", Ops: []*idl.Operation{one, two}}

	b, res, err := Marshal(one, plan(t, iface, one, idl.In, layout.ClientCall), Client, Options{})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"/* a */",
		"_dice_msg_buffer._word[0] = a.snd_base;",
		"_dice_msg_buffer._word[1] = a.fpage.raw;",
		"/* delimiter */",
		"_dice_msg_buffer._word[2] = 0;",
		"_dice_msg_buffer._word[3] = 0;",
		"_dice_msg_buffer._word[4] = 0;",
		"_dice_msg_buffer._word[5] = 0;",
		"*(l4_umword_t*)(&_dice_msg_buffer._word[6]) = PAGER_ONE_OPCODE;",
	}
	if diff := cmp.Diff(want, b.Lines()); diff != "" {
		t.Fatalf("marshal one (-want +got):\n%s", diff)
	}
	if res.Flexpages != 1 || res.Words != 7 {
		t.Fatalf("result = %+v", res)
	}

	b, res, err = Marshal(two, plan(t, iface, two, idl.In, layout.ClientCall), Client, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !b.Contains("_word[4] = 0;") || b.Contains("_word[2] = 0;") || res.Flexpages != 2 {
		t.Fatalf("marshal two:\n%s", b)
	}
}

func TestPassesDoNotShareCounters(t *testing.T) {
	op := &idl.Operation{Name: "op", Params: []*idl.Parameter{
		prm(t, "fpage", "a", 0, "in"),
		prm(t, "char", "s1", 1, "in", "ref", "string"),
		prm(t, "char", "s2", 1, "in", "ref", "string"),
	}}
	l := plan(t, nil, op, idl.In, layout.ClientCall)
	first, r1, err := Marshal(op, l, Client, Options{})
	if err != nil {
		t.Fatal(err)
	}
	second, r2, err := Marshal(op, l, Client, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if first.String() != second.String() {
		t.Fatalf("second pass differs:\n%s\n---\n%s", first, second)
	}
	if diff := cmp.Diff(r1, r2); diff != "" {
		t.Fatalf("results differ:\n%s", diff)
	}
	if r1.Strings != 2 || !first.Contains("_dice_msg_buffer._strings[1].snd_str = (l4_umword_t)(s2);") {
		t.Fatalf("strings:\n%s", first)
	}
}

func TestStringSizes(t *testing.T) {
	op := &idl.Operation{Name: "put", Params: []*idl.Parameter{
		prm(t, "int", "len", 0, "in"),
		prm(t, "char", "data", 1, "in", "ref", "size_is(len)"),
		prm(t, "char", "path", 1, "in", "ref", "string"),
		prm(t, "char", "tag", 1, "in", "ref", "string", "max_is(16)"),
		prm(t, "int", "vals", 1, "in", "ref", "size_is(len)"),
	}}
	b, _, err := Marshal(op, plan(t, nil, op, idl.In, layout.ClientCall), Client, Options{})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"_dice_msg_buffer._strings[0].snd_size = len;",
		"_dice_msg_buffer._strings[1].snd_size = strlen(path) + 1;",
		"_dice_size = strlen(tag) + 1;",
		"if (_dice_size > 16) {",
		"_dice_msg_buffer._strings[2].snd_size = _dice_size;",
		"_dice_msg_buffer._strings[3].snd_size = (len) * sizeof(int);",
	} {
		if !b.Contains(want) {
			t.Errorf("missing %q in:\n%s", want, b)
		}
	}
}

func TestVariableItems(t *testing.T) {
	op := &idl.Operation{Name: "write", Params: []*idl.Parameter{
		prm(t, "int", "n", 0, "in"),
		prm(t, "char", "buf", 1, "in", "size_is(n)", "max_is(128)"),
	}}
	cli, res, err := Marshal(op, plan(t, nil, op, idl.In, layout.ClientCall), Client, Options{Long: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Words != -1 || !res.Runtime {
		t.Fatalf("result = %+v", res)
	}
	for _, want := range []string{
		"_dice_off = 4;",
		"_dice_size = n;",
		"if (_dice_size > 128) {",
		"memcpy(&((l4_uint8_t*)_dice_msg_buffer._word)[_dice_off], buf, _dice_size * sizeof(char));",
		"_dice_off += (_dice_size * sizeof(char) + 3) & ~3;",
	} {
		if !cli.Contains(want) {
			t.Errorf("client lacks %q:\n%s", want, cli)
		}
	}
	names := make([]string, 0, len(res.Locals))
	for _, l := range res.Locals {
		names = append(names, l.Name)
	}
	if !cmp.Equal(names, []string{"_dice_off", "_dice_size"}) {
		t.Fatalf("locals = %v", names)
	}

	srv, _, err := Unmarshal(op, plan(t, nil, op, idl.In, layout.ServerDispatch), Server, Options{Pointer: true})
	if err != nil {
		t.Fatal(err)
	}
	if !srv.Contains("buf = (char*)(&((l4_uint8_t*)_dice_msg_buffer->_word)[_dice_off]);") {
		t.Fatalf("server should point into the buffer:\n%s", srv)
	}
	if srv.Contains("OPCODE") {
		t.Fatal("server unmarshal must not touch the opcode")
	}
}

func TestStructMembers(t *testing.T) {
	rec := idl.NewStruct("rec", false, prm(t, "char", "c", 0), prm(t, "int", "i", 0))
	op := &idl.Operation{Name: "set", Attrs: attr.Set{{Kind: attr.NoOpcode}}, Params: []*idl.Parameter{
		{Type: rec, Decl: idl.Declarator{Name: "r", Stars: 1}, Attrs: attr.Set{{Kind: attr.In}}},
	}}
	b, _, err := Marshal(op, plan(t, nil, op, idl.In, layout.ClientCall), Client, Options{})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"/* r */",
		"*(char*)(&_dice_msg_buffer._word[0]) = (*r).c;",
		"*(int*)(&_dice_msg_buffer._word[1]) = (*r).i;",
	}
	if diff := cmp.Diff(want, b.Lines()); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}

	bag := diag.NewBag(0)
	_, _, err = Marshal(op, plan(t, nil, op, idl.In, layout.ClientCall), Client, Options{MaxNesting: 1, Reporter: diag.BagReporter{Bag: bag}})
	var de *declpath.DepthError
	if !errors.As(err, &de) || !bag.HasCode(diag.MarPathTooDeep) {
		t.Fatalf("depth limit: %v", err)
	}
}

func TestWrongSideRejected(t *testing.T) {
	op := &idl.Operation{Name: "x", Params: []*idl.Parameter{prm(t, "int", "a", 0, "in")}}
	l := plan(t, nil, op, idl.In, layout.ClientCall)
	_, _, err := Unmarshal(op, l, Client, Options{})
	var me *Error
	if !errors.As(err, &me) || me.Code != diag.MarUnsupported {
		t.Fatalf("err = %v", err)
	}
}

func TestExceptionEarlyReturn(t *testing.T) {
	op := &idl.Operation{Name: "size", Params: []*idl.Parameter{prm(t, "long", "n", 1, "out")}}
	b, _, err := Unmarshal(op, plan(t, nil, op, idl.Out, layout.ClientCall), Client, Options{Return: "return -1;"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"_dice_corba_env->major = (CORBA_exception_type)*(l4_umword_t*)(&_dice_msg_buffer._word[0]);",
		"if (_dice_corba_env->major != CORBA_NO_EXCEPTION) {",
		"return -1;",
		"}",
		"/* n */",
		"(*n) = *(long*)(&_dice_msg_buffer._word[1]);",
	}
	if diff := cmp.Diff(want, b.Lines()); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestReceiveWindows(t *testing.T) {
	op := &idl.Operation{Name: "read", Params: []*idl.Parameter{
		prm(t, "int", "len", 0, "in"),
		prm(t, "char", "data", 2, "out", "ref", "prealloc_client", "size_is(len)", "max_is(256)"),
		prm(t, "char", "note", 2, "out", "ref", "string", "max_is(32)"),
	}}
	in := plan(t, nil, op, idl.In, layout.ClientCall)
	out := plan(t, nil, op, idl.Out, layout.ClientCall)
	buf := layout.NewBuffer(v2ia32, in, out)
	b := ReceiveWindows(buf, out, op, Options{})
	want := []string{
		"_dice_msg_buffer._size = L4_IPC_DOPE(2, 2);",
		"_dice_msg_buffer._rcv_fpage.raw = 0;",
		"_dice_msg_buffer._strings[0].rcv_str = (l4_umword_t)((*data));",
		"_dice_msg_buffer._strings[0].rcv_size = (len) * sizeof(char);",
		"_dice_msg_buffer._strings[1].rcv_str = (l4_umword_t)(_dice_corba_env->malloc(32));",
		"_dice_msg_buffer._strings[1].rcv_size = 32;",
	}
	if diff := cmp.Diff(want, b.Lines()); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}

	srv := ReceiveWindows(layout.Buffer{Dwords: 8, Strings: 1, StringMax: []int{64}, DopeWords: 4, Dynamic: true, Flexpages: 1}, nil, nil, Options{Pointer: true})
	if !srv.Contains("_dice_msg_buffer->_rcv_fpage = _dice_corba_env->rcv_fpage;") ||
		!srv.Contains("(*(l4_strdope_t*)(&_dice_msg_buffer->_word[_dice_msg_buffer->_size.md.dwords + 0])).rcv_size = 64;") {
		t.Fatalf("server windows:\n%s", srv)
	}

	if set := ReceiveWindows(buf, out, op, Options{SizeSet: true}); set.Contains("_size = ") || set.Lines()[0] != want[1] {
		t.Fatalf("size dope written twice:\n%s", set)
	}
}

func TestClientOutStrings(t *testing.T) {
	op := &idl.Operation{Name: "read", Params: []*idl.Parameter{
		prm(t, "int", "len", 0, "in"),
		prm(t, "char", "buf", 1, "out", "ref", "size_is(len)", "max_is(512)"),
		prm(t, "char", "note", 2, "out", "ref", "string", "max_is(32)"),
		prm(t, "char", "data", 1, "out", "ref", "prealloc_client", "size_is(len)", "max_is(64)"),
	}}
	b, _, err := Unmarshal(op, plan(t, nil, op, idl.Out, layout.ClientCall), Client, Options{Return: "return;"})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"_dice_size = len;",
		"if (_dice_size > 512) {",
		"memcpy(buf, (char*)(_dice_msg_buffer._strings[0].rcv_str), _dice_size);",
		"_dice_corba_env->free((void*)(_dice_msg_buffer._strings[0].rcv_str));",
		"(*note) = (char*)(_dice_msg_buffer._strings[1].rcv_str);",
	} {
		if !b.Contains(want) {
			t.Errorf("missing %q in:\n%s", want, b)
		}
	}
	if b.Contains("buf = (char*)(") || b.Contains("_strings[2].rcv_str") {
		t.Fatalf("caller buffers reassigned:\n%s", b)
	}
	if n := b.Count("->free("); n != 1 {
		t.Fatalf("%d frees:\n%s", n, b)
	}

	srvOp := &idl.Operation{Name: "write", Params: []*idl.Parameter{prm(t, "char", "buf", 1, "in", "ref", "string")}}
	srv, _, err := Unmarshal(srvOp, plan(t, nil, srvOp, idl.In, layout.ServerDispatch), Server, Options{Pointer: true})
	if err != nil {
		t.Fatal(err)
	}
	if srv.Contains("memcpy(") || !srv.Contains("buf = (char*)(") {
		t.Fatalf("server should point into the window:\n%s", srv)
	}
}

func TestStringDescriptorFollowsBuffer(t *testing.T) {
	op := &idl.Operation{Name: "log", Params: []*idl.Parameter{prm(t, "char", "msg", 1, "in", "ref", "string")}}
	in := plan(t, nil, op, idl.In, layout.ClientCall)
	if in.Dynamic || in.Strings[0].Offset != 0 {
		t.Fatalf("string slot = %+v", in.Strings[0])
	}
	buf := layout.NewBuffer(v2ia32, in)
	if buf.Dwords <= in.FixedWords() {
		t.Fatalf("buffer %+v does not exceed the layout's %d words", buf, in.FixedWords())
	}
	descOffset := func(r Result) int {
		for _, a := range r.Accesses {
			if a.Class == layout.ClassString {
				return a.Offset
			}
		}
		t.Fatal("no string access")
		return 0
	}

	b, res, err := Marshal(op, in, Client, Options{Buffer: buf, Long: true})
	if err != nil {
		t.Fatal(err)
	}
	if got := descOffset(res); got != buf.Dwords*v2ia32.WordSize {
		t.Fatalf("descriptor recorded at %d, table starts at %d", got, buf.Dwords*v2ia32.WordSize)
	}
	if !b.Contains("_dice_msg_buffer._strings[0].snd_str = (l4_umword_t)(msg);") {
		t.Fatalf("static buffer:\n%s", b)
	}

	dyn := buf
	dyn.Dynamic = true
	b, res, err = Marshal(op, in, Client, Options{Buffer: dyn, Long: true})
	if err != nil {
		t.Fatal(err)
	}
	want := fmt.Sprintf("(*(l4_strdope_t*)(&_dice_msg_buffer._word[%d])).snd_str = (l4_umword_t)(msg);", dyn.Dwords)
	if !b.Contains(want) || b.Contains("_strings[") {
		t.Fatalf("dynamic buffer lacks %q:\n%s", want, b)
	}
	if got := descOffset(res); got != dyn.Dwords*v2ia32.WordSize {
		t.Fatalf("descriptor recorded at %d", got)
	}
	if got := SizeDope(dyn, Options{}).Lines(); !cmp.Equal(got, []string{fmt.Sprintf("_dice_msg_buffer._size = L4_IPC_DOPE(%d, 1);", dyn.Dwords)}) {
		t.Fatalf("size dope = %q", got)
	}

	if _, res, err = Marshal(op, in, Client, Options{Long: true}); err != nil || descOffset(res) != -1 {
		t.Fatalf("unknown buffer: offset %d, err %v", descOffset(res), err)
	}
}
