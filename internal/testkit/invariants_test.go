package testkit

import (
	"strings"
	"testing"

	"l4idl/internal/attr"
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

func TestPlannedLayoutsPass(t *testing.T) {
	ops := []*idl.Operation{
		{Name: "stat", Return: idl.MustBuiltin("int"), Params: []*idl.Parameter{
			prm(t, "char", "c", 0, "in"),
			prm(t, "long", "n", 0, "in"),
			prm(t, "long", "size", 1, "out"),
		}},
		{Name: "map", Params: []*idl.Parameter{
			prm(t, "fpage", "fp", 1, "out"),
			prm(t, "char", "name", 2, "out", "ref", "string", "max_is(64)"),
		}},
		{Name: "write", Params: []*idl.Parameter{
			prm(t, "int", "n", 0, "in"),
			prm(t, "char", "buf", 1, "in", "size_is(n)", "max_is(128)"),
		}},
	}
	iface := &idl.Interface{Name: "fs", Number: 1, Ops: ops}
	pl := layout.NewPlanner(v2ia32)
	for _, shape := range []layout.Shape{layout.ClientCall, layout.ServerDispatch, layout.ComponentReply} {
		var all []*layout.Layout
		for _, dir := range []idl.Direction{idl.In, idl.Out} {
			ls, err := pl.PlanInterface(iface, dir, shape)
			if err != nil {
				t.Fatal(err)
			}
			for _, l := range ls {
				if err := CheckLayout(l); err != nil {
					t.Errorf("%s %v %v: %v", l.Operation, dir, shape, err)
				}
			}
			all = append(all, ls...)
		}
		if err := CheckBuffer(layout.NewBuffer(v2ia32, all...), all...); err != nil {
			t.Errorf("%v buffer: %v", shape, err)
		}
	}
}

func TestBrokenLayoutsFail(t *testing.T) {
	base := func() *layout.Layout {
		return &layout.Layout{
			Operation:  "x",
			WordSize:   4,
			FixedBytes: 8,
			Fixed: []layout.Slot{
				{Name: "a", Offset: 0, Size: 4, Align: 4},
				{Name: "b", Offset: 4, Size: 4, Align: 4},
			},
		}
	}
	if err := CheckLayout(base()); err != nil {
		t.Fatalf("valid layout rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(l *layout.Layout)
		want   string
	}{
		{"overlap", func(l *layout.Layout) { l.Fixed[1].Offset = 2; l.Fixed[1].Align = 2 }, "overlap"},
		{"past fixed", func(l *layout.Layout) { l.Fixed[1].Size = 8 }, "past fixed region"},
		{"runtime fixed", func(l *layout.Layout) { l.Fixed[0].Offset = -1 }, "no static offset"},
		{"misaligned", func(l *layout.Layout) { l.Fixed[1].Offset = 5 }, "not aligned"},
		{"static variable", func(l *layout.Layout) {
			l.Variable = []layout.Slot{{Name: "v", Offset: 8}}
		}, "static offset"},
		{"string index", func(l *layout.Layout) {
			l.Strings = []layout.Slot{{Name: "s", Offset: 8, Index: 1}}
		}, "index 1"},
		{"shared header", func(l *layout.Layout) {
			l.Header = &layout.Slot{Name: layout.ExceptionSlot}
			l.HeaderShared = true
		}, "without flexpages"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := base()
			tt.mutate(l)
			err := CheckLayout(l)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
		})
	}

	l := base()
	l.Strings = []layout.Slot{{Name: "s", Index: 0, Count: 64}}
	if err := CheckBuffer(layout.Buffer{Dwords: 8, Strings: 1, StringMax: []int{16}}, l); err == nil {
		t.Fatal("small receive window accepted")
	}
}
