// Package tracehook defines the instrumentation call-outs that generated
// stubs may contain. The generator invokes a Hook at fixed points and never
// looks at what it emitted.
package tracehook

import (
	"fmt"
	"strings"

	"l4idl/internal/cgen"
)

// Point is a fixed call-out location.
type Point uint8

const (
	BeforeCall Point = iota + 1
	AfterCall
	BeforeSend
	AfterSend
	BeforeWait
	AfterWait
	BeforeReplyWait
	AfterReplyWait
	BeforeReplyOnly
	AfterReplyOnly
	BeforeMarshal
	AfterMarshal
	BeforeUnmarshal
	AfterUnmarshal
	BeforeDispatch
	AfterDispatch

	pointCount
)

var pointNames = [pointCount]string{
	BeforeCall:      "before_call",
	AfterCall:       "after_call",
	BeforeSend:      "before_send",
	AfterSend:       "after_send",
	BeforeWait:      "before_wait",
	AfterWait:       "after_wait",
	BeforeReplyWait: "before_reply_wait",
	AfterReplyWait:  "after_reply_wait",
	BeforeReplyOnly: "before_reply_only",
	AfterReplyOnly:  "after_reply_only",
	BeforeMarshal:   "before_marshal",
	AfterMarshal:    "after_marshal",
	BeforeUnmarshal: "before_unmarshal",
	AfterUnmarshal:  "after_unmarshal",
	BeforeDispatch:  "before_dispatch",
	AfterDispatch:   "after_dispatch",
}

func (p Point) String() string {
	if p == 0 || p >= pointCount {
		return "unknown"
	}
	return pointNames[p]
}

// After reports whether the point follows the traced action.
func (p Point) After() bool { return p != 0 && p%2 == 0 }

// Points lists every point in order.
func Points() []Point {
	out := make([]Point, 0, pointCount-1)
	for p := BeforeCall; p < pointCount; p++ {
		out = append(out, p)
	}
	return out
}

// ParsePoint accepts the names printed by String.
func ParsePoint(s string) (Point, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for p := BeforeCall; p < pointCount; p++ {
		if pointNames[p] == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown trace point %q", s)
}

// Site describes where the hook is invoked.
type Site struct {
	Point     Point
	Interface string
	Operation string
	Result    string // name of the IPC result variable, if any
}

// Hook emits instrumentation statements into b.
type Hook interface {
	Emit(b *cgen.Block, site Site)
}

// Nop emits nothing.
type Nop struct{}

func (Nop) Emit(*cgen.Block, Site) {}

// Printf emits a call to a printf-like function. With Func empty it emits
// "LOG_printf".
type Printf struct {
	Func string
}

func (h Printf) Emit(b *cgen.Block, site Site) {
	fn := h.Func
	if fn == "" {
		fn = "LOG_printf"
	}
	name := site.Operation
	if site.Interface != "" {
		name = site.Interface + "::" + site.Operation
	}
	if site.Result != "" && site.Point.After() {
		b.Linef("%s(\"%s %s result=%%lx\\n\", (unsigned long)%s.msgdope);", fn, site.Point, name, site.Result)
		return
	}
	b.Linef("%s(\"%s %s\\n\");", fn, site.Point, name)
}

// Filter forwards only the listed points.
type Filter struct {
	Hook   Hook
	Points map[Point]bool
}

// NewFilter restricts h to points.
func NewFilter(h Hook, points ...Point) Filter {
	set := make(map[Point]bool, len(points))
	for _, p := range points {
		set[p] = true
	}
	return Filter{Hook: h, Points: set}
}

func (f Filter) Emit(b *cgen.Block, site Site) {
	if f.Hook == nil || !f.Points[site.Point] {
		return
	}
	f.Hook.Emit(b, site)
}

// Invoke calls h when it is non-nil.
func Invoke(h Hook, b *cgen.Block, site Site) {
	if h == nil {
		return
	}
	h.Emit(b, site)
}
