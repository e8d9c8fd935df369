package layout

import (
	"l4idl/internal/attr"
	"l4idl/internal/idl"
)

// Classify returns where a parameter travels. Flexpage typing wins over
// everything else; a ref parameter becomes an indirect string and a
// parameter with a runtime length is carried in-band in the variable region.
func Classify(p *idl.Parameter) Class {
	switch {
	case p.Type.IsFlexpage():
		return ClassFlexpage
	case p.Has(attr.Ref):
		return ClassString
	case IsVariable(p):
		return ClassVariable
	}
	return ClassFixed
}

// IsVariable reports whether the element count of p is only known at
// runtime.
func IsVariable(p *idl.Parameter) bool {
	if p.Has(attr.SizeIs) || p.Has(attr.LengthIs) || p.Has(attr.String) {
		return true
	}
	for _, b := range p.Decl.Bounds {
		if !b.Fixed() {
			return true
		}
	}
	return false
}

// Elements returns the fixed element count of a non-variable parameter.
func Elements(p *idl.Parameter) int {
	if n, ok := p.Decl.FixedElements(); ok && p.Decl.IsArray() {
		return n
	}
	return 1
}

// MaxElements returns the upper bound on the element count of a variable or
// string parameter, and whether the bound was declared. Undeclared bounds fall
// back to fallbackBytes worth of elements.
func MaxElements(p *idl.Parameter, elemSize, fallbackBytes int) (int, bool) {
	if a, ok := p.Attr(attr.MaxIs); ok && a.IsConst && a.Value > 0 {
		return a.Value, true
	}
	if p.Decl.IsArray() {
		if n, ok := p.Decl.FixedElements(); ok {
			return n, true
		}
	}
	return max(fallbackBytes/max(elemSize, 1), 1), false
}

// StringElements is MaxElements for indirect strings. A ref parameter
// without string or size attributes and without bounds is a single element.
func StringElements(p *idl.Parameter, elemSize, fallbackBytes int) (int, bool) {
	if !IsVariable(p) && !p.Has(attr.MaxIs) {
		return Elements(p), true
	}
	return MaxElements(p, elemSize, fallbackBytes)
}
