package idl

import (
	"strconv"
	"strings"

	"l4idl/internal/attr"
	"l4idl/internal/source"
)

// Bound is one array dimension: a constant (Size > 0), a symbolic
// expression, or unbounded ([]).
type Bound struct {
	Size int
	Expr string
}

func (b Bound) Fixed() bool     { return b.Expr == "" && b.Size > 0 }
func (b Bound) Unbounded() bool { return b.Expr == "" && b.Size <= 0 }

func (b Bound) String() string {
	switch {
	case b.Expr != "":
		return b.Expr
	case b.Size > 0:
		return strconv.Itoa(b.Size)
	}
	return ""
}

// Declarator is a named declarator with pointer and array decoration.
type Declarator struct {
	Name   string
	Stars  int
	Bounds []Bound
}

// IsArray reports whether the declarator has array bounds.
func (d Declarator) IsArray() bool { return len(d.Bounds) > 0 }

// FixedElements returns the product of all bounds when every bound is
// constant.
func (d Declarator) FixedElements() (int, bool) {
	n := 1
	for _, b := range d.Bounds {
		if !b.Fixed() {
			return 0, false
		}
		n *= b.Size
	}
	return n, true
}

// C renders the declarator as it appears in a C declaration.
func (d Declarator) C() string {
	var sb strings.Builder
	sb.WriteString(strings.Repeat("*", d.Stars))
	sb.WriteString(d.Name)
	for _, b := range d.Bounds {
		sb.WriteByte('[')
		sb.WriteString(b.String())
		sb.WriteByte(']')
	}
	return sb.String()
}

// Parameter is a typed declarator with attributes. Struct members use the
// same representation.
type Parameter struct {
	Type  *Type
	Decl  Declarator
	Attrs attr.Set
	Loc   source.Loc
}

func (p *Parameter) Name() string { return p.Decl.Name }

// Has reports whether the parameter carries attribute k.
func (p *Parameter) Has(k attr.Kind) bool {
	return p != nil && p.Attrs.Has(k)
}

// Attr returns the attribute of kind k.
func (p *Parameter) Attr(k attr.Kind) (attr.Attribute, bool) {
	if p == nil {
		return attr.Attribute{}, false
	}
	return p.Attrs.Get(k)
}

// IsIn reports the in direction. Parameters without direction default to in.
func (p *Parameter) IsIn() bool {
	return p.Has(attr.In) || !p.Has(attr.Out)
}

func (p *Parameter) IsOut() bool { return p.Has(attr.Out) }

// Active reports whether the parameter is transferred in direction d.
func (p *Parameter) Active(d Direction) bool {
	if d == In {
		return p.IsIn()
	}
	return p.IsOut()
}

// C renders the parameter as a C parameter declaration.
func (p *Parameter) C() string {
	return p.Type.String() + " " + p.Decl.C()
}

// HasAttribute is the attribute query used across the generator.
func HasAttribute(p *Parameter, k attr.Kind) bool {
	return p.Has(k)
}
