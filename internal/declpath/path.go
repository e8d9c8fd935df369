// Package declpath renders C access expressions for nested declarators.
//
// A Path is a stack of frames, one per nesting level: the outermost
// parameter first, then struct or union members, each optionally indexed.
// The marshaller pushes a frame when it descends into a member and pops it
// on the way back; Render produces the expression for the current top.
//
//	p := declpath.New(0)
//	p.Push(param)          // (*st)
//	p.PushIndex(member, "_i") // (*st).items[_i]
//	p.Render(true)         // &(*st).items[_i]
package declpath

import (
	"fmt"
	"strings"

	"l4idl/internal/idl"
)

// Frame is one nesting level.
type Frame struct {
	Param   *idl.Parameter
	Indices []string
}

// Path is a growable declarator stack. The zero value is usable and
// unbounded.
type Path struct {
	frames []Frame
	limit  int
}

// New creates a path. limit <= 0 means no depth limit.
func New(limit int) *Path {
	return &Path{limit: limit}
}

// DepthError is returned when a push exceeds the configured limit.
type DepthError struct {
	Limit int
	Param string
	Path  string
}

func (e *DepthError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("declarator nesting exceeds %d levels at %s (pushing %s)", e.Limit, e.Path, e.Param)
}

// Push adds a frame without index.
func (p *Path) Push(param *idl.Parameter) error {
	return p.push(Frame{Param: param})
}

// PushIndex adds a frame indexed by a literal number or an index variable.
func (p *Path) PushIndex(param *idl.Parameter, index ...string) error {
	return p.push(Frame{Param: param, Indices: index})
}

func (p *Path) push(f Frame) error {
	if f.Param == nil {
		return fmt.Errorf("declpath: nil parameter")
	}
	if p.limit > 0 && len(p.frames) >= p.limit {
		return &DepthError{Limit: p.limit, Param: f.Param.Name(), Path: p.Render(false)}
	}
	p.frames = append(p.frames, f)
	return nil
}

// Pop removes the top frame. Popping an empty path is a no-op.
func (p *Path) Pop() {
	if len(p.frames) == 0 {
		return
	}
	p.frames[len(p.frames)-1] = Frame{}
	p.frames = p.frames[:len(p.frames)-1]
}

// Len returns the nesting depth.
func (p *Path) Len() int { return len(p.frames) }

// Top returns the innermost frame.
func (p *Path) Top() (Frame, bool) {
	if len(p.frames) == 0 {
		return Frame{}, false
	}
	return p.frames[len(p.frames)-1], true
}

// Root returns the outermost parameter.
func (p *Path) Root() *idl.Parameter {
	if len(p.frames) == 0 {
		return nil
	}
	return p.frames[0].Param
}

// Render returns the access expression for the top frame. With asPointer
// the expression yields the address of the element instead of its value.
func (p *Path) Render(asPointer bool) string {
	if len(p.frames) == 0 {
		return ""
	}
	parts := make([]string, 0, len(p.frames))
	addr := false
	last := len(p.frames) - 1
	for i, f := range p.frames {
		decl := f.Param.Decl
		stars := decl.Stars
		dims := len(decl.Bounds)
		// indices beyond the declared bounds go through pointer stars
		if extra := len(f.Indices) - dims; extra > 0 {
			stars -= min(extra, stars)
		}
		if i == last && asPointer {
			switch {
			case len(f.Indices) < dims:
				// array value already decays to a pointer
			case stars > 0:
				stars--
			default:
				addr = true
			}
		}
		var sb strings.Builder
		if stars > 0 {
			sb.WriteByte('(')
			sb.WriteString(strings.Repeat("*", stars))
			sb.WriteString(decl.Name)
			sb.WriteByte(')')
		} else {
			sb.WriteString(decl.Name)
		}
		for _, idx := range f.Indices {
			sb.WriteByte('[')
			sb.WriteString(idx)
			sb.WriteByte(']')
		}
		parts = append(parts, sb.String())
	}
	expr := strings.Join(parts, ".")
	if addr {
		return "&" + expr
	}
	return expr
}

// String renders the value form.
func (p *Path) String() string { return p.Render(false) }
