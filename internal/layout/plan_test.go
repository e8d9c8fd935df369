package layout

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"l4idl/internal/diag"
	"l4idl/internal/idl"
)

func TestTwoScalarsFitRegisters(t *testing.T) {
	op := operation(t, "add", []string{"noopcode", "noexceptions"},
		prm(t, "int", "a", 0, "in"),
		prm(t, "int", "b", 0, "in"),
	)
	l := plan(t, NewPlanner(v2ia32), nil, op, idl.In)
	if l.FixedBytes != 8 || l.Header != nil || l.HasFlexpages() || len(l.Strings) != 0 {
		t.Fatalf("layout = %+v", l)
	}
	if got := []int{l.Fixed[0].Offset, l.Fixed[1].Offset}; !cmp.Equal(got, []int{0, 4}) {
		t.Fatalf("offsets = %v", got)
	}
	if !l.ShortEligible() {
		t.Fatal("two words should fit the v2 register budget")
	}
}

func TestOutStringForcesLong(t *testing.T) {
	op := operation(t, "name", []string{"noexceptions"},
		prm(t, "char", "s", 2, "out", "ref", "string", "max_is(64)"),
	)
	p := NewPlanner(v2ia32)
	in := plan(t, p, nil, op, idl.In)
	out := plan(t, p, nil, op, idl.Out)

	if !in.HasOpcode() || in.FixedBytes != 4 || len(in.Fixed) != 0 {
		t.Fatalf("in layout = %+v", in)
	}
	if out.FixedBytes != 0 || out.Header != nil || len(out.Strings) != 1 {
		t.Fatalf("out layout = %+v", out)
	}
	if s := out.Strings[0]; s.Count != 64 || s.Size != 16 || s.Offset != 0 {
		t.Fatalf("string slot = %+v", s)
	}
	if out.ShortEligible() {
		t.Fatal("strings must forbid the short transfer")
	}
}

func TestSingleFlexpageShort(t *testing.T) {
	op := operation(t, "map", []string{"noopcode"},
		prm(t, "fpage", "page", 0, "in"),
	)
	l := plan(t, NewPlanner(v2ia32), nil, op, idl.In)
	if l.Flexpages.Own != 1 || l.Flexpages.Max != 1 || l.Flexpages.Delimited {
		t.Fatalf("flexpages = %+v", l.Flexpages)
	}
	if l.FixedBytes != 8 || !l.ShortEligible() {
		t.Fatalf("fixed=%d short=%v", l.FixedBytes, l.ShortEligible())
	}
}

func TestFlexpageDelimiterAtFamilyMax(t *testing.T) {
	one := operation(t, "one", nil, prm(t, "fpage", "a", 0, "in"))
	two := operation(t, "two", nil, prm(t, "fpage", "a", 0, "in"), prm(t, "fpage", "b", 0, "in"))
	iface := &idl.Interface{Name: "pager", Number: 3, Ops: []*idl.Operation{one, two}}

	p := NewPlanner(v2ia32)
	l := plan(t, p, iface, one, idl.In)
	if l.Flexpages.Max != 2 || !l.Flexpages.Delimited || l.Flexpages.Reserved() != 3 {
		t.Fatalf("flexpages = %+v", l.Flexpages)
	}
	if off := l.Flexpages.DelimiterOffset(l.WordSize); off != 2*2*4 {
		t.Fatalf("delimiter offset = %d", off)
	}
	op, err := l.Opcode()
	if err != nil {
		t.Fatal(err)
	}
	if op.Offset != 24 || l.FixedBytes != 28 {
		t.Fatalf("opcode at %d, fixed %d", op.Offset, l.FixedBytes)
	}

	full := plan(t, p, iface, two, idl.In)
	if full.Flexpages.Own != 2 || full.Flexpages.Slots[1].Offset != 8 {
		t.Fatalf("second op flexpages = %+v", full.Flexpages)
	}
}

func TestExceptionSharesFlexpageSlot(t *testing.T) {
	op := operation(t, "get", nil, prm(t, "fpage", "page", 1, "out"))
	l := plan(t, NewPlanner(v2ia32), nil, op, idl.Out)
	exc, err := l.Exception()
	if err != nil {
		t.Fatal(err)
	}
	if !l.HeaderShared || exc.Offset != 0 || l.FixedBytes != 8 {
		t.Fatalf("shared=%v exc=%+v fixed=%d", l.HeaderShared, exc, l.FixedBytes)
	}

	plain := operation(t, "size", nil, prm(t, "long", "n", 1, "out"))
	l = plan(t, NewPlanner(v2ia32), nil, plain, idl.Out)
	if l.HeaderShared || l.Header.Offset != 0 || l.Fixed[0].Offset != 4 || l.FixedBytes != 8 {
		t.Fatalf("exception layout = %+v", l)
	}
}

func TestRegionSumMatchesParameters(t *testing.T) {
	ops := []*idl.Operation{
		operation(t, "mixed", nil,
			prm(t, "fpage", "fp", 0, "in"),
			prm(t, "long", "a", 0, "in"),
			prm(t, "l4_umword_t", "b", 1, "in", "out"),
			prm(t, "char", "s", 1, "in", "ref", "string", "max_is(32)"),
			prm(t, "l4_threadid_t", "tid", 1, "out"),
		),
		operation(t, "reply", []string{"noopcode"},
			prm(t, "fpage", "fp", 1, "out"),
			prm(t, "int", "x", 1, "out"),
		),
	}
	w := v2ia32.WordSize
	sizeOf := func(p *idl.Parameter) int {
		switch Classify(p) {
		case ClassFlexpage:
			return 2 * w
		case ClassString:
			return v2ia32.DopeWords * w
		}
		if p.Type.Kind == idl.TypeThreadID {
			return v2ia32.ThreadIDBytes
		}
		return w
	}
	for _, op := range ops {
		for _, dir := range []idl.Direction{idl.In, idl.Out} {
			l := plan(t, NewPlanner(v2ia32), nil, op, dir)
			want := 0
			for _, p := range op.Active(dir) {
				want += sizeOf(p)
			}
			if l.Header != nil && !l.HeaderShared {
				want += w
			}
			got := l.FixedBytes + l.VariableBytes + l.StringWords()*w
			if got != want {
				t.Errorf("%s/%v: regions %d, parameters %d", op.Name, dir, got, want)
			}
		}
	}
}

func TestStringSlotsIgnoreOrdering(t *testing.T) {
	a := operation(t, "a", nil,
		prm(t, "char", "s1", 1, "in", "ref", "string"),
		prm(t, "int", "x", 0, "in"),
		prm(t, "char", "s2", 1, "in", "ref", "string"),
		prm(t, "int", "y", 0, "in"),
	)
	b := operation(t, "b", nil,
		prm(t, "int", "y", 0, "in"),
		prm(t, "char", "s1", 1, "in", "ref", "string"),
		prm(t, "int", "x", 0, "in"),
		prm(t, "char", "s2", 1, "in", "ref", "string"),
	)
	p := NewPlanner(v2ia32)
	for _, op := range []*idl.Operation{a, b} {
		l, err := p.Plan(nil, op, idl.In, ServerDispatch)
		if err != nil {
			t.Fatal(err)
		}
		if !l.Dynamic || l.FixedWords() != 3 {
			t.Fatalf("%s: dynamic=%v fixed words=%d", op.Name, l.Dynamic, l.FixedWords())
		}
		for k, s := range l.Strings {
			if s.Static() || s.Index != k {
				t.Fatalf("%s: descriptor %d = %+v", op.Name, k, s)
			}
			if got := NewBuffer(v2ia32, l).StringSlotWord(k); got != 3+k*4 {
				t.Fatalf("%s: slot %d at word %d", op.Name, k, got)
			}
		}
		if l.Strings[0].Name != "s1" || l.Strings[1].Name != "s2" {
			t.Fatalf("%s: string order %v", op.Name, l.Strings)
		}
	}
}

func TestPlanIsIdempotent(t *testing.T) {
	op := operation(t, "op", nil,
		prm(t, "fpage", "fp", 0, "in"),
		prm(t, "int", "n", 0, "in"),
		arr(prm(t, "char", "buf", 0, "in", "size_is(n)", "max_is(100)"), idl.Bound{}),
		prm(t, "char", "s", 1, "in", "ref", "string"),
	)
	other := operation(t, "other", nil, prm(t, "fpage", "a", 0, "in"), prm(t, "fpage", "b", 0, "in"))
	iface := &idl.Interface{Name: "x", Ops: []*idl.Operation{op, other}}

	p := NewPlanner(v2ia32)
	first := plan(t, p, iface, op, idl.In)
	plan(t, p, iface, other, idl.In)
	second := plan(t, p, iface, op, idl.In)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("second plan differs (-first +second):\n%s", diff)
	}
}

func TestVariableRegion(t *testing.T) {
	op := operation(t, "write", nil,
		prm(t, "int", "n", 0, "in"),
		arr(prm(t, "char", "buf", 0, "in", "size_is(n)", "max_is(62)"), idl.Bound{}),
		prm(t, "char", "name", 1, "in", "string"),
	)
	bag := diag.NewBag(0)
	p := NewPlanner(v2ia32, WithReporter(diag.BagReporter{Bag: bag}))
	l := plan(t, p, nil, op, idl.In)
	if !l.VariableSized || !l.Dynamic || l.ShortEligible() {
		t.Fatalf("variable flags: %+v", l)
	}
	if s := l.Variable[0]; s.Offset != -1 || s.Size != 4+64 || !s.Bounded {
		t.Fatalf("buf slot = %+v", s)
	}
	if s := l.Variable[1]; s.Bounded || s.Count != v2ia32.DefaultStringMax {
		t.Fatalf("name slot = %+v", s)
	}
	if !bag.HasCode(diag.LayNoMaxSize) || bag.HasErrors() {
		t.Fatalf("diagnostics: %v", diag.FormatShort(bag.Items(), false))
	}
}

func TestOverflow(t *testing.T) {
	small := v2ia32
	small.MaxDwords = 4
	op := operation(t, "big", nil, arr(prm(t, "int", "v", 0, "in"), idl.Bound{Size: 16}))
	bag := diag.NewBag(0)
	_, err := NewPlanner(small, WithReporter(diag.BagReporter{Bag: bag})).Plan(nil, op, idl.In, ClientCall)
	if !errors.Is(err, &Error{Kind: ErrOverflow}) {
		t.Fatalf("err = %v", err)
	}
	var le *Error
	if !errors.As(err, &le) || le.Size != 17 || le.Limit != 4 {
		t.Fatalf("error detail = %+v", le)
	}
	if !bag.HasCode(diag.LayOverflow) {
		t.Fatal("overflow not reported")
	}
}

func TestMissingElement(t *testing.T) {
	op := operation(t, "ping", nil)
	l := plan(t, NewPlanner(v2ia32), nil, op, idl.In)
	if _, err := l.Exception(); !errors.Is(err, &Error{Kind: ErrMissingElement}) {
		t.Fatalf("exception on in: %v", err)
	}
	if _, err := l.Slot("nope"); !errors.Is(err, &Error{Kind: ErrMissingElement}) {
		t.Fatalf("slot lookup: %v", err)
	}
	if _, err := l.Slot(OpcodeSlot); err != nil {
		t.Fatal(err)
	}
}

func TestVariableFlexpageNeedsBound(t *testing.T) {
	op := operation(t, "pages", nil,
		prm(t, "int", "n", 0, "in"),
		arr(prm(t, "fpage", "fps", 0, "in", "size_is(n)"), idl.Bound{}),
	)
	_, err := NewPlanner(v2ia32).Plan(nil, op, idl.In, ClientCall)
	if !errors.Is(err, &Error{Kind: ErrUnsupported}) {
		t.Fatalf("err = %v", err)
	}

	op.Params[1].Attrs = op.Params[1].Attrs.With(mustAttr(t, "max_is(4)"))
	l := plan(t, NewPlanner(v2ia32), nil, op, idl.In)
	if !l.Flexpages.Runtime || !l.Flexpages.Delimited || l.Flexpages.Reserved() != 5 {
		t.Fatalf("flexpages = %+v", l.Flexpages)
	}
}

func TestCacheServesRepeatPlans(t *testing.T) {
	c := NewMemoryCache()
	p := NewPlanner(v2ia32, WithCache(c, "digest"))
	op := operation(t, "op", nil, prm(t, "int", "a", 0, "in"))
	first := plan(t, p, nil, op, idl.In)
	second := plan(t, p, nil, op, idl.In)
	if first != second || c.Len() != 1 {
		t.Fatalf("cache miss: len=%d", c.Len())
	}
}

func TestCacheKeepsTargetsApart(t *testing.T) {
	c := NewMemoryCache()
	op := operation(t, "big", nil, arr(prm(t, "int", "v", 0, "in"), idl.Bound{Size: 16}))
	if _, err := NewPlanner(v2ia32, WithCache(c, "d")).Plan(nil, op, idl.In, ClientCall); err != nil {
		t.Fatal(err)
	}

	small := v2ia32
	small.MaxDwords = 4
	bag := diag.NewBag(0)
	_, err := NewPlanner(small, WithCache(c, "d"), WithReporter(diag.BagReporter{Bag: bag})).Plan(nil, op, idl.In, ClientCall)
	if !errors.Is(err, &Error{Kind: ErrOverflow}) || !bag.HasCode(diag.LayOverflow) {
		t.Fatalf("smaller target served from cache: err = %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("cache holds %d plans", c.Len())
	}
}

func TestCacheHitRepeatsWarnings(t *testing.T) {
	c := NewMemoryCache()
	op := operation(t, "put", nil,
		prm(t, "int", "n", 0, "in"),
		prm(t, "char", "data", 1, "in", "size_is(n)"),
		prm(t, "char", "name", 1, "in", "ref", "string"),
	)
	var counts []int
	for range 2 {
		bag := diag.NewBag(0)
		p := NewPlanner(v2ia32, WithCache(c, "d"), WithReporter(diag.BagReporter{Bag: bag}))
		plan(t, p, nil, op, idl.In)
		n := 0
		for _, d := range bag.Items() {
			if d.Code == diag.LayNoMaxSize {
				n++
			}
		}
		counts = append(counts, n)
	}
	if counts[0] != 2 || counts[1] != counts[0] {
		t.Fatalf("no-max warnings per run = %v", counts)
	}
}
