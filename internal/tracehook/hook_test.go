package tracehook

import (
	"testing"

	"l4idl/internal/cgen"
)

func TestPointsAreClosed(t *testing.T) {
	pts := Points()
	if len(pts) != 16 {
		t.Fatalf("got %d points", len(pts))
	}
	for _, p := range pts {
		back, err := ParsePoint(p.String())
		if err != nil || back != p {
			t.Errorf("%v: round trip %v %v", p, back, err)
		}
	}
	if !AfterCall.After() || BeforeDispatch.After() {
		t.Fatal("After() pairing")
	}
	if _, err := ParsePoint("sometime"); err == nil {
		t.Fatal("unknown point accepted")
	}
}

func TestPrintfAndFilter(t *testing.T) {
	var b cgen.Block
	h := NewFilter(Printf{Func: "trace"}, BeforeCall, AfterCall)
	h.Emit(&b, Site{Point: BeforeCall, Interface: "fs", Operation: "read"})
	h.Emit(&b, Site{Point: BeforeMarshal, Interface: "fs", Operation: "read"})
	h.Emit(&b, Site{Point: AfterCall, Interface: "fs", Operation: "read", Result: "_dice_result"})
	lines := b.Lines()
	if len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
	if lines[0] != `trace("before_call fs::read\n");` {
		t.Fatalf("before line = %s", lines[0])
	}
	if lines[1] != `trace("after_call fs::read result=%lx\n", (unsigned long)_dice_result.msgdope);` {
		t.Fatalf("after line = %s", lines[1])
	}

	var nb cgen.Block
	Invoke(nil, &nb, Site{Point: BeforeCall})
	Invoke(Nop{}, &nb, Site{Point: BeforeCall})
	if nb.Len() != 0 {
		t.Fatal("nop emitted")
	}
}
