package layout

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"l4idl/internal/idl"
	"l4idl/internal/target"
)

func TestAggregateLayout(t *testing.T) {
	st := idl.NewStruct("rec", false,
		prm(t, "char", "c", 0),
		prm(t, "int", "i", 0),
		prm(t, "short", "s", 0),
	)
	got, err := LayoutOf(v2ia32, st)
	if err != nil {
		t.Fatal(err)
	}
	want := TypeLayout{Size: 12, Align: 4, FieldOffsets: []int{0, 4, 8}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("struct layout (-want +got):\n%s", diff)
	}

	un := idl.NewUnion("u", true, prm(t, "char", "c", 0), arr(prm(t, "short", "s", 0), idl.Bound{Size: 3}))
	got, err = LayoutOf(v2ia32, un)
	if err != nil {
		t.Fatal(err)
	}
	if got.Size != 6 || got.Align != 2 {
		t.Fatalf("union layout = %+v", got)
	}
}

func TestScalarSizesFollowWord(t *testing.T) {
	amd := target.MustNew(target.Profile{Family: target.FamilyX0, Arch: target.ArchAMD64, Code: target.CodePIC})
	cases := []struct {
		typ        string
		ia32, am64 int
	}{
		{"char", 1, 1},
		{"short", 2, 2},
		{"int", 4, 4},
		{"long", 4, 8},
		{"l4_uint64_t", 8, 8},
		{"l4_threadid_t", 8, 8},
		{"fpage", 8, 16},
	}
	for _, tc := range cases {
		a, _ := LayoutOf(v2ia32, idl.MustBuiltin(tc.typ))
		b, _ := LayoutOf(amd, idl.MustBuiltin(tc.typ))
		if a.Size != tc.ia32 || b.Size != tc.am64 {
			t.Errorf("%s: ia32 %d amd64 %d", tc.typ, a.Size, b.Size)
		}
	}
}

func TestRecursiveAggregateRejected(t *testing.T) {
	st := idl.NewStruct("node", false)
	st.Members = append(st.Members, &idl.Parameter{Type: st, Decl: idl.Declarator{Name: "next"}})
	if _, err := LayoutOf(v2ia32, st); err == nil {
		t.Fatal("recursive struct accepted")
	}
	st.Members[0].Decl.Stars = 1
	if l, err := LayoutOf(v2ia32, st); err != nil || l.Size != 4 {
		t.Fatalf("pointer member: %+v %v", l, err)
	}
}

func TestBufferMerge(t *testing.T) {
	op := operation(t, "op", nil,
		prm(t, "char", "in1", 1, "in", "ref", "string", "max_is(10)"),
		prm(t, "char", "out1", 2, "out", "ref", "string", "max_is(20)"),
		prm(t, "char", "out2", 2, "out", "ref", "string", "max_is(30)"),
	)
	p := NewPlanner(v2ia32)
	in := plan(t, p, nil, op, idl.In)
	out := plan(t, p, nil, op, idl.Out)
	b := NewBuffer(v2ia32, in, out)
	if b.Dwords != 2 || b.Strings != 2 || b.Dynamic {
		t.Fatalf("buffer = %+v", b)
	}
	if !cmp.Equal(b.StringMax, []int{20, 30}) {
		t.Fatalf("windows = %v", b.StringMax)
	}
	if b.Bytes() != (3+2+8)*4 || b.WordSlots() != 2 {
		t.Fatalf("bytes=%d slots=%d", b.Bytes(), b.WordSlots())
	}
}
