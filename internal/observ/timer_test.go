package observ

import (
	"strings"
	"sync"
	"testing"
	"time"

	"l4idl/internal/diag"
)

// fakeClock advances by step on every reading.
func fakeClock(step time.Duration) func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(step)
		return t
	}
}

func TestReportUsesWallTime(t *testing.T) {
	tm := NewTimer()
	tm.now = fakeClock(time.Millisecond)

	outer := tm.Begin("gen")   // t=1
	end := tm.Track("plan:fs") // t=2
	end("4 layouts")           // t=3
	tm.End(outer, "")          // t=4
	tm.End(42, "ignored")

	r := tm.Report()
	if len(r.Phases) != 2 {
		t.Fatalf("phases = %+v", r.Phases)
	}
	if r.Phases[0].DurationMS != 3 || r.Phases[1].DurationMS != 1 {
		t.Fatalf("durations = %+v", r.Phases)
	}
	if r.TotalMS != 3 {
		t.Fatalf("total = %v, nested phases must not be summed", r.TotalMS)
	}
	if s := tm.Summary(); !strings.Contains(s, "// 4 layouts") || !strings.HasPrefix(s, "timings:\n") {
		t.Fatalf("summary = %q", s)
	}
}

func TestConcurrentPhases(t *testing.T) {
	tm := NewTimer()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tm.Track("iface")("")
		}()
	}
	wg.Wait()
	if n := len(tm.Phases()); n != 16 {
		t.Fatalf("phases = %d", n)
	}
}

func TestEmitReportsTimings(t *testing.T) {
	tm := NewTimer()
	tm.Track("write:fs")("3 files")
	bag := diag.NewBag(8)
	tm.Emit(diag.BagReporter{Bag: bag})
	if !bag.HasCode(diag.ObsTimings) || bag.HasErrors() {
		t.Fatalf("bag = %+v", bag.Items())
	}
	if (&Timer{}).Report().Phases != nil {
		t.Fatal("empty timer must report nothing")
	}
}
