package idlfile

import (
	"strconv"
	"strings"

	"l4idl/internal/attr"
	"l4idl/internal/idl"
	"l4idl/internal/source"
)

// refKinds are the attributes whose argument may name another parameter.
var refKinds = []attr.Kind{attr.SizeIs, attr.LengthIs, attr.MaxIs, attr.MinIs, attr.FirstIs, attr.LastIs, attr.IIDIs}

type builder struct {
	path  string
	types map[string]*idl.Type
	desc  *Description
	errs  []error
}

func build(path string, raw *rawFile) (*Description, []error) {
	b := &builder{path: path, types: make(map[string]*idl.Type), desc: &Description{Path: path}}
	for i := range raw.Types {
		b.declareType(&raw.Types[i])
	}
	for i := range raw.Types {
		b.fillType(&raw.Types[i])
	}
	byName := make(map[string]*idl.Interface)
	for i := range raw.Interfaces {
		it := b.iface(&raw.Interfaces[i], i)
		if it == nil {
			continue
		}
		if _, dup := byName[it.Name]; dup {
			b.fail(&DecodeError{Kind: ErrDuplicateInterface, Element: it.Name, Detail: it.Name})
			continue
		}
		byName[it.Name] = it
		b.desc.Interfaces = append(b.desc.Interfaces, it)
	}
	for i := range raw.Interfaces {
		b.bases(&raw.Interfaces[i], byName)
	}
	b.cycles()
	return b.desc, b.errs
}

func (b *builder) fail(err *DecodeError) {
	err.File = b.path
	b.errs = append(b.errs, err)
}

func (b *builder) loc(element string) source.Loc {
	return source.Loc{File: b.path, Element: element}
}

func (b *builder) declareType(rt *rawType) {
	if rt.Name == "" {
		b.fail(&DecodeError{Kind: ErrMissingField, Element: "type", Detail: "type name"})
		return
	}
	var t *idl.Type
	switch rt.Kind {
	case "struct", "":
		t = idl.NewStruct(rt.Name, rt.Typedef)
	case "union":
		t = idl.NewUnion(rt.Name, rt.Typedef)
	default:
		b.fail(&DecodeError{Kind: ErrUnknownType, Element: rt.Name, Detail: rt.Kind})
		return
	}
	b.types[rt.Name] = t
	b.types[t.Name] = t
	b.desc.Types = append(b.desc.Types, t)
}

func (b *builder) fillType(rt *rawType) {
	t := b.types[rt.Name]
	if t == nil {
		return
	}
	seen := make(map[string]bool)
	for i := range rt.Members {
		m := b.param(&rt.Members[i], rt.Name, nil)
		if m == nil {
			continue
		}
		if seen[m.Name()] {
			b.fail(&DecodeError{Kind: ErrDuplicateParameter, Element: rt.Name, Detail: m.Name()})
			continue
		}
		seen[m.Name()] = true
		t.Members = append(t.Members, m)
	}
}

func (b *builder) lookupType(name string) (*idl.Type, bool) {
	if t, ok := idl.Builtin(name); ok {
		return t, true
	}
	t, ok := b.types[strings.Join(strings.Fields(name), " ")]
	return t, ok
}

// param builds one declarator. scope lists the sibling parameter names that
// attribute references and symbolic bounds may use; nil skips the check.
func (b *builder) param(rp *rawParam, owner string, scope map[string]bool) *idl.Parameter {
	element := owner + "." + rp.Name
	if rp.Name == "" {
		b.fail(&DecodeError{Kind: ErrMissingField, Element: owner, Detail: "parameter name"})
		return nil
	}
	typ, ok := b.lookupType(rp.Type)
	if !ok {
		b.fail(&DecodeError{Kind: ErrUnknownType, Element: element, Detail: rp.Type})
		return nil
	}
	p := &idl.Parameter{
		Type: typ,
		Decl: idl.Declarator{Name: rp.Name, Stars: rp.Stars},
		Loc:  b.loc(element),
	}
	if rp.Stars < 0 {
		b.fail(&DecodeError{Kind: ErrBadBound, Element: element, Detail: strconv.Itoa(rp.Stars)})
		return nil
	}
	for _, text := range rp.Bounds {
		bound, ok := b.bound(text, element, scope)
		if !ok {
			return nil
		}
		p.Decl.Bounds = append(p.Decl.Bounds, bound)
	}
	set, ok := b.attrs(rp.Attrs, element, attr.OnParameter)
	if !ok {
		return nil
	}
	p.Attrs = set
	return p
}

func (b *builder) bound(text, element string, scope map[string]bool) (idl.Bound, bool) {
	text = strings.TrimSpace(text)
	switch {
	case text == "" || text == "*":
		return idl.Bound{}, true
	case text[0] >= '0' && text[0] <= '9':
		n, err := strconv.Atoi(text)
		if err != nil || n <= 0 {
			b.fail(&DecodeError{Kind: ErrBadBound, Element: element, Detail: text})
			return idl.Bound{}, false
		}
		return idl.Bound{Size: n}, true
	}
	if scope != nil && !scope[text] {
		b.fail(&DecodeError{Kind: ErrUnresolvedRef, Element: element, Detail: "bound " + text})
		return idl.Bound{}, false
	}
	return idl.Bound{Expr: text}, true
}

func (b *builder) attrs(texts []string, element string, on attr.Target) (attr.Set, bool) {
	set := make(attr.Set, 0, len(texts))
	ok := true
	for _, text := range texts {
		a, err := attr.Parse(text)
		if err != nil {
			b.fail(&DecodeError{Kind: ErrUnknownAttribute, Element: element, Err: err})
			ok = false
			continue
		}
		if !a.Kind.AppliesTo(on) {
			b.fail(&DecodeError{Kind: ErrMisplacedAttribute, Element: element, Detail: a.Kind.String()})
			ok = false
			continue
		}
		set = set.With(a)
	}
	return set, ok
}

func (b *builder) iface(ri *rawInterface, index int) *idl.Interface {
	if ri.Name == "" {
		b.fail(&DecodeError{Kind: ErrMissingField, Element: "interface", Detail: "interface name"})
		return nil
	}
	it := &idl.Interface{Name: ri.Name, Number: ri.Number, Loc: b.loc(ri.Name)}
	if it.Number == 0 {
		it.Number = index + 1
	}
	seen := make(map[string]bool)
	for i := range ri.Operations {
		op := b.operation(&ri.Operations[i], ri.Name)
		if op == nil {
			continue
		}
		if seen[op.Name] {
			b.fail(&DecodeError{Kind: ErrDuplicateOperation, Element: ri.Name, Detail: op.Name})
			continue
		}
		seen[op.Name] = true
		it.Ops = append(it.Ops, op)
	}
	return it
}

func (b *builder) operation(ro *rawOp, owner string) *idl.Operation {
	element := owner + "." + ro.Name
	if ro.Name == "" {
		b.fail(&DecodeError{Kind: ErrMissingField, Element: owner, Detail: "operation name"})
		return nil
	}
	op := &idl.Operation{Name: ro.Name, Loc: b.loc(element)}
	if ro.Return != "" {
		t, ok := b.lookupType(ro.Return)
		if !ok {
			b.fail(&DecodeError{Kind: ErrUnknownType, Element: element, Detail: ro.Return})
			return nil
		}
		op.Return = t
	}
	set, ok := b.attrs(ro.Attrs, element, attr.OnOperation)
	if !ok {
		return nil
	}
	op.Attrs = set
	if a, ok := set.Get(attr.UUID); ok {
		if !a.IsConst {
			b.fail(&DecodeError{Kind: ErrBadBound, Element: element, Detail: a.String()})
			return nil
		}
		op.Opcode = a.Value
	}

	scope := make(map[string]bool, len(ro.Params))
	for i := range ro.Params {
		if scope[ro.Params[i].Name] {
			b.fail(&DecodeError{Kind: ErrDuplicateParameter, Element: element, Detail: ro.Params[i].Name})
			return nil
		}
		scope[ro.Params[i].Name] = true
	}
	valid := true
	for i := range ro.Params {
		p := b.param(&ro.Params[i], element, scope)
		if p == nil {
			valid = false
			continue
		}
		for _, k := range refKinds {
			if a, ok := p.Attr(k); ok && !a.IsConst && !scope[a.Ref] {
				b.fail(&DecodeError{Kind: ErrUnresolvedRef, Element: p.Loc.Element, Detail: a.String()})
				valid = false
			}
		}
		op.Params = append(op.Params, p)
	}
	if !valid {
		return nil
	}
	return op
}

func (b *builder) bases(ri *rawInterface, byName map[string]*idl.Interface) {
	it := byName[ri.Name]
	if it == nil {
		return
	}
	for _, name := range ri.Bases {
		base, ok := byName[name]
		if !ok {
			b.fail(&DecodeError{Kind: ErrUnknownBase, Element: ri.Name, Detail: name})
			continue
		}
		it.Bases = append(it.Bases, base)
	}
}

// cycles rejects interfaces that inherit from themselves.
func (b *builder) cycles() {
	const (
		unvisited = iota
		active
		finished
	)
	state := make(map[*idl.Interface]int)
	var visit func(it *idl.Interface, path []string) bool
	visit = func(it *idl.Interface, path []string) bool {
		switch state[it] {
		case active:
			b.fail(&DecodeError{Kind: ErrCycle, Element: path[0], Detail: strings.Join(append(path, it.Name), " -> ")})
			return false
		case finished:
			return true
		}
		state[it] = active
		for _, base := range it.Bases {
			if !visit(base, append(path, it.Name)) {
				return false
			}
		}
		state[it] = finished
		return true
	}
	for _, it := range b.desc.Interfaces {
		if state[it] == unvisited && !visit(it, nil) {
			return
		}
	}
}
