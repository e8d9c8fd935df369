package idl

import (
	"strings"
)

// TypeKind classifies a type for layout purposes. Sizes are target-dependent
// and resolved by the layout planner.
type TypeKind uint8

const (
	TypeVoid TypeKind = iota
	TypeChar
	TypeShort
	TypeInt
	TypeLong
	TypeLongLong
	TypeWord
	TypeThreadID
	TypeFlexpage
	TypeStruct
	TypeUnion
)

func (k TypeKind) String() string {
	switch k {
	case TypeVoid:
		return "void"
	case TypeChar:
		return "char"
	case TypeShort:
		return "short"
	case TypeInt:
		return "int"
	case TypeLong:
		return "long"
	case TypeLongLong:
		return "long long"
	case TypeWord:
		return "word"
	case TypeThreadID:
		return "threadid"
	case TypeFlexpage:
		return "flexpage"
	case TypeStruct:
		return "struct"
	case TypeUnion:
		return "union"
	}
	return "unknown"
}

// Type is a resolved type descriptor. Name is the C spelling used in
// generated code.
type Type struct {
	Kind     TypeKind
	Name     string
	Unsigned bool
	Members  []*Parameter // struct and union members
}

func (t *Type) String() string {
	if t == nil {
		return "void"
	}
	return t.Name
}

// IsScalar reports whether values of t fit a single machine access.
func (t *Type) IsScalar() bool {
	if t == nil {
		return false
	}
	switch t.Kind {
	case TypeChar, TypeShort, TypeInt, TypeLong, TypeLongLong, TypeWord:
		return true
	}
	return false
}

// IsAggregate reports whether t is a struct or union.
func (t *Type) IsAggregate() bool {
	return t != nil && (t.Kind == TypeStruct || t.Kind == TypeUnion)
}

// IsFlexpage reports whether t is the flexpage descriptor type.
func (t *Type) IsFlexpage() bool {
	return t != nil && t.Kind == TypeFlexpage
}

// Member returns the aggregate member called name.
func (t *Type) Member(name string) *Parameter {
	if t == nil {
		return nil
	}
	for _, m := range t.Members {
		if m.Decl.Name == name {
			return m
		}
	}
	return nil
}

var builtins = map[string]Type{
	"void":               {Kind: TypeVoid, Name: "void"},
	"char":               {Kind: TypeChar, Name: "char"},
	"unsigned char":      {Kind: TypeChar, Name: "unsigned char", Unsigned: true},
	"short":              {Kind: TypeShort, Name: "short"},
	"unsigned short":     {Kind: TypeShort, Name: "unsigned short", Unsigned: true},
	"int":                {Kind: TypeInt, Name: "int"},
	"unsigned int":       {Kind: TypeInt, Name: "unsigned int", Unsigned: true},
	"unsigned":           {Kind: TypeInt, Name: "unsigned int", Unsigned: true},
	"long":               {Kind: TypeLong, Name: "long"},
	"unsigned long":      {Kind: TypeLong, Name: "unsigned long", Unsigned: true},
	"long long":          {Kind: TypeLongLong, Name: "long long"},
	"unsigned long long": {Kind: TypeLongLong, Name: "unsigned long long", Unsigned: true},
	"l4_umword_t":        {Kind: TypeWord, Name: "l4_umword_t", Unsigned: true},
	"l4_mword_t":         {Kind: TypeWord, Name: "l4_mword_t"},
	"l4_uint8_t":         {Kind: TypeChar, Name: "l4_uint8_t", Unsigned: true},
	"l4_uint16_t":        {Kind: TypeShort, Name: "l4_uint16_t", Unsigned: true},
	"l4_uint32_t":        {Kind: TypeInt, Name: "l4_uint32_t", Unsigned: true},
	"l4_uint64_t":        {Kind: TypeLongLong, Name: "l4_uint64_t", Unsigned: true},
	"l4_threadid_t":      {Kind: TypeThreadID, Name: "l4_threadid_t"},
	"l4_snd_fpage_t":     {Kind: TypeFlexpage, Name: "l4_snd_fpage_t"},
	"fpage":              {Kind: TypeFlexpage, Name: "l4_snd_fpage_t"},
	"flexpage":           {Kind: TypeFlexpage, Name: "l4_snd_fpage_t"},
}

// Builtin resolves a predeclared type name. Each call returns a fresh value.
func Builtin(name string) (*Type, bool) {
	t, ok := builtins[strings.Join(strings.Fields(name), " ")]
	if !ok {
		return nil, false
	}
	return &t, true
}

// MustBuiltin is Builtin for names known at compile time.
func MustBuiltin(name string) *Type {
	t, ok := Builtin(name)
	if !ok {
		panic("idl: unknown builtin type " + name)
	}
	return t
}

// NewStruct builds a struct type. The C spelling is "struct name" unless
// typedef is set.
func NewStruct(name string, typedef bool, members ...*Parameter) *Type {
	spelling := "struct " + name
	if typedef {
		spelling = name
	}
	return &Type{Kind: TypeStruct, Name: spelling, Members: members}
}

// NewUnion builds a union type.
func NewUnion(name string, typedef bool, members ...*Parameter) *Type {
	spelling := "union " + name
	if typedef {
		spelling = name
	}
	return &Type{Kind: TypeUnion, Name: spelling, Members: members}
}
