package layout

import (
	"testing"

	"l4idl/internal/attr"
	"l4idl/internal/idl"
	"l4idl/internal/target"
)

var v2ia32 = target.MustNew(target.Profile{Family: target.FamilyV2, Arch: target.ArchIA32, Code: target.CodeAbsolute})

func prm(t *testing.T, typ, decl string, stars int, attrs ...string) *idl.Parameter {
	t.Helper()
	set, err := attr.ParseAll(attrs)
	if err != nil {
		t.Fatalf("attrs %v: %v", attrs, err)
	}
	return &idl.Parameter{Type: idl.MustBuiltin(typ), Decl: idl.Declarator{Name: decl, Stars: stars}, Attrs: set}
}

func arr(p *idl.Parameter, bounds ...idl.Bound) *idl.Parameter {
	p.Decl.Bounds = bounds
	return p
}

func operation(t *testing.T, name string, opAttrs []string, params ...*idl.Parameter) *idl.Operation {
	t.Helper()
	set, err := attr.ParseAll(opAttrs)
	if err != nil {
		t.Fatalf("op attrs %v: %v", opAttrs, err)
	}
	return &idl.Operation{Name: name, Params: params, Attrs: set}
}

func plan(t *testing.T, p *Planner, iface *idl.Interface, op *idl.Operation, dir idl.Direction) *Layout {
	t.Helper()
	l, err := p.Plan(iface, op, dir, ClientCall)
	if err != nil {
		t.Fatalf("plan %s/%v: %v", op.Name, dir, err)
	}
	return l
}

func mustAttr(t *testing.T, text string) attr.Attribute {
	t.Helper()
	a, err := attr.Parse(text)
	if err != nil {
		t.Fatal(err)
	}
	return a
}
