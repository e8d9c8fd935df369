package diag

import (
	"strings"
	"testing"

	"l4idl/internal/source"
)

func TestBagLimitAndErrors(t *testing.T) {
	b := NewBag(2)
	loc := source.Loc{File: "fs.yaml", Element: "fs.read"}
	if !b.Add(New(SevWarning, LayNoMaxSize, loc, "no max")) {
		t.Fatal("first add rejected")
	}
	if b.HasErrors() {
		t.Fatal("warning counted as error")
	}
	b.Add(NewError(LayOverflow, loc, "too big"))
	if b.Add(NewError(LayOverflow, loc, "dropped")) {
		t.Fatal("limit not enforced")
	}
	if !b.HasErrors() || !b.HasWarnings() || !b.HasCode(LayOverflow) {
		t.Fatalf("unexpected state: %+v", b.Items())
	}
}

func TestDedupReporter(t *testing.T) {
	b := NewBag(10)
	r := NewDedupReporter(BagReporter{Bag: b})
	loc := source.Loc{Element: "fs.read.buf"}
	for range 3 {
		ReportWarning(r, LayNoMaxSize, loc, "no max_is").Emit()
	}
	ReportWarning(r, LayNoMaxSize, loc, "other").Emit()
	if b.Len() != 2 {
		t.Fatalf("expected 2 diagnostics, got %d", b.Len())
	}
}

func TestBuilderEmitsOnce(t *testing.T) {
	b := NewBag(10)
	rb := ReportError(BagReporter{Bag: b}, ComNoStrategy, source.Loc{}, "none").
		WithNote(source.Loc{Element: "target"}, "v2-arm-pic")
	rb.Emit()
	rb.Emit()
	if b.Len() != 1 || len(b.Items()[0].Notes) != 1 {
		t.Fatalf("got %+v", b.Items())
	}
	var nilBuilder *ReportBuilder
	nilBuilder.WithNote(source.Loc{}, "x").Emit()
}

func TestFormatShortSorted(t *testing.T) {
	diags := []Diagnostic{
		NewError(LayOverflow, source.Loc{File: "b.yaml", Element: "x"}, "second"),
		New(SevWarning, LayNoMaxSize, source.Loc{File: "a.yaml", Element: "y"}, "first").
			WithNote(source.Loc{File: "a.yaml", Element: "y.z"}, "here"),
	}
	got := FormatShort(diags, true)
	want := strings.Join([]string{
		"WARNING LAY2003 a.yaml: y: first",
		"  note a.yaml: y.z: here",
		"ERROR LAY2001 b.yaml: x: second",
		"",
	}, "\n")
	if got != want {
		t.Fatalf("FormatShort:\n%s\nwant:\n%s", got, want)
	}
}
