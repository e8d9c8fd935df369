package idl

import (
	"testing"

	"l4idl/internal/attr"
)

func param(typ, name string, attrs ...attr.Kind) *Parameter {
	p := &Parameter{Type: MustBuiltin(typ), Decl: Declarator{Name: name}}
	for _, k := range attrs {
		p.Attrs = p.Attrs.With(attr.Attribute{Kind: k})
	}
	return p
}

func TestActiveParameters(t *testing.T) {
	op := &Operation{
		Name:   "read",
		Return: MustBuiltin("int"),
		Params: []*Parameter{
			param("int", "fd"),
			param("int", "len", attr.In, attr.Out),
			param("char", "buf", attr.Out),
		},
	}
	in := op.Active(In)
	if len(in) != 2 || in[0].Name() != "fd" || in[1].Name() != "len" {
		t.Fatalf("in = %v", names(in))
	}
	out := op.Active(Out)
	if len(out) != 3 || out[0].Name() != ReturnName || out[2].Name() != "buf" {
		t.Fatalf("out = %v", names(out))
	}
	if op.ReturnParam() != op.ReturnParam() {
		t.Fatal("return parameter must be stable")
	}
	if op.Param(ReturnName) == nil || op.Param("nope") != nil {
		t.Fatal("Param lookup")
	}

	oneway := &Operation{Name: "notify", Attrs: attr.Set{{Kind: attr.Oneway}}, Return: MustBuiltin("int")}
	if len(oneway.Active(Out)) != 0 {
		t.Fatal("oneway operations have no reply parameters")
	}
}

func TestOpcodesAndInheritance(t *testing.T) {
	open := &Operation{Name: "open"}
	closeOp := &Operation{Name: "close"}
	read := &Operation{Name: "read"}
	explicit := &Operation{Name: "stat", Opcode: 0x77}
	base := &Interface{Name: "file", Number: 1, Ops: []*Operation{open, closeOp}}
	derived := &Interface{Name: "stream", Number: 2, Ops: []*Operation{read, explicit}, Bases: []*Interface{base, base}}

	all := derived.AllOperations()
	if len(all) != 4 || all[0] != open || all[2] != read {
		t.Fatalf("AllOperations order wrong: %v", all)
	}
	if got := derived.OpcodeOf(closeOp); got != 1<<OpcodeShift|2 {
		t.Fatalf("OpcodeOf(close) = %#x", got)
	}
	if got := derived.OpcodeOf(read); got != 2<<OpcodeShift|1 {
		t.Fatalf("OpcodeOf(read) = %#x", got)
	}
	if derived.OpcodeOf(explicit) != 0x77 {
		t.Fatal("explicit opcode ignored")
	}
	if derived.Owner(open) != base {
		t.Fatal("owner of inherited op")
	}
}

func TestDeclarator(t *testing.T) {
	d := Declarator{Name: "m", Stars: 1, Bounds: []Bound{{Size: 4}, {Expr: "n"}}}
	if d.C() != "*m[4][n]" {
		t.Fatalf("C() = %q", d.C())
	}
	if _, ok := d.FixedElements(); ok {
		t.Fatal("symbolic bound is not fixed")
	}
	n, ok := Declarator{Bounds: []Bound{{Size: 4}, {Size: 3}}}.FixedElements()
	if !ok || n != 12 {
		t.Fatalf("FixedElements = %d %v", n, ok)
	}
	if !(Bound{}).Unbounded() {
		t.Fatal("zero bound is unbounded")
	}
}

func names(ps []*Parameter) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name()
	}
	return out
}
