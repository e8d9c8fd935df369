package layout

import (
	"fmt"

	"l4idl/internal/idl"
	"l4idl/internal/target"
)

// TypeLayout describes the in-memory size, alignment and member offsets of a
// type on one target.
type TypeLayout struct {
	Size         int
	Align        int
	FieldOffsets []int
}

// sizer computes type layouts for a target and memoises aggregates.
type sizer struct {
	t     target.Target
	cache map[*idl.Type]TypeLayout
	stack map[*idl.Type]bool
}

func newSizer(t target.Target) *sizer {
	return &sizer{
		t:     t,
		cache: make(map[*idl.Type]TypeLayout),
		stack: make(map[*idl.Type]bool),
	}
}

// LayoutOf returns the layout of typ on t.
func LayoutOf(t target.Target, typ *idl.Type) (TypeLayout, error) {
	return newSizer(t).layoutOf(typ)
}

func (s *sizer) layoutOf(typ *idl.Type) (TypeLayout, error) {
	if typ == nil {
		return TypeLayout{Size: 0, Align: 1}, nil
	}
	if l, ok := s.cache[typ]; ok {
		return l, nil
	}
	var (
		l   TypeLayout
		err error
	)
	switch typ.Kind {
	case idl.TypeVoid:
		l = TypeLayout{Size: 0, Align: 1}
	case idl.TypeChar, idl.TypeShort, idl.TypeInt, idl.TypeLong, idl.TypeLongLong, idl.TypeWord:
		size := s.scalarBytes(typ.Kind)
		l = TypeLayout{Size: size, Align: min(size, s.t.WordSize)}
	case idl.TypeThreadID:
		l = TypeLayout{Size: s.t.ThreadIDBytes, Align: s.t.WordSize}
	case idl.TypeFlexpage:
		l = TypeLayout{Size: s.t.FlexpageWords * s.t.WordSize, Align: s.t.WordSize}
	case idl.TypeStruct, idl.TypeUnion:
		if s.stack[typ] {
			return TypeLayout{}, &Error{Kind: ErrUnsupported, Element: typ.Name, Detail: "recursive aggregate"}
		}
		s.stack[typ] = true
		l, err = s.aggregateLayout(typ)
		delete(s.stack, typ)
	default:
		return TypeLayout{}, &Error{Kind: ErrUnsupported, Element: typ.Name, Detail: fmt.Sprintf("type kind %v", typ.Kind)}
	}
	if err != nil {
		return TypeLayout{}, err
	}
	s.cache[typ] = l
	return l, nil
}

func (s *sizer) scalarBytes(k idl.TypeKind) int {
	switch k {
	case idl.TypeChar:
		return 1
	case idl.TypeShort:
		return 2
	case idl.TypeInt:
		return 4
	case idl.TypeLongLong:
		return 8
	default: // long, word
		return s.t.WordSize
	}
}

// memberLayout returns the storage of one declarator of typ: pointers take a
// word, fixed arrays repeat the element.
func (s *sizer) memberLayout(m *idl.Parameter) (TypeLayout, error) {
	if m.Decl.Stars > 0 {
		return TypeLayout{Size: s.t.WordSize, Align: s.t.WordSize}, nil
	}
	elem, err := s.layoutOf(m.Type)
	if err != nil {
		return TypeLayout{}, err
	}
	if !m.Decl.IsArray() {
		return elem, nil
	}
	n, ok := m.Decl.FixedElements()
	if !ok {
		return TypeLayout{}, &Error{Kind: ErrUnsupported, Element: m.Decl.Name, Detail: "variable array member"}
	}
	stride := roundUp(elem.Size, elem.Align)
	return TypeLayout{Size: stride * n, Align: elem.Align}, nil
}

func (s *sizer) aggregateLayout(typ *idl.Type) (TypeLayout, error) {
	offset := 0
	maxAlign := 1
	maxSize := 0
	offsets := make([]int, 0, len(typ.Members))
	for _, m := range typ.Members {
		ml, err := s.memberLayout(m)
		if err != nil {
			return TypeLayout{}, err
		}
		align := max(ml.Align, 1)
		maxAlign = max(maxAlign, align)
		if typ.Kind == idl.TypeUnion {
			offsets = append(offsets, 0)
			maxSize = max(maxSize, ml.Size)
			continue
		}
		offset = roundUp(offset, align)
		offsets = append(offsets, offset)
		offset += ml.Size
	}
	size := offset
	if typ.Kind == idl.TypeUnion {
		size = maxSize
	}
	return TypeLayout{Size: roundUp(size, maxAlign), Align: maxAlign, FieldOffsets: offsets}, nil
}

func roundUp(n, align int) int {
	if align <= 1 {
		return n
	}
	rem := n % align
	if rem == 0 {
		return n
	}
	return n + (align - rem)
}
