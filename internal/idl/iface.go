package idl

import (
	"l4idl/internal/attr"
	"l4idl/internal/source"
)

// Direction of a transfer.
type Direction uint8

const (
	In  Direction = iota // client to server
	Out                  // server to client
)

func (d Direction) String() string {
	if d == In {
		return "in"
	}
	return "out"
}

// Opposite returns the reverse direction.
func (d Direction) Opposite() Direction {
	if d == In {
		return Out
	}
	return In
}

// ReturnName is the declarator name of the synthetic return parameter.
const ReturnName = "_dice_return"

// Operation is one interface method.
type Operation struct {
	Name   string
	Params []*Parameter
	Return *Type // nil or void means no return value
	Attrs  attr.Set
	Opcode int // explicit opcode from uuid(), 0 if derived
	Loc    source.Loc

	ret *Parameter
}

func (o *Operation) Has(k attr.Kind) bool { return o.Attrs.Has(k) }

// HasReturn reports whether the operation returns a value.
func (o *Operation) HasReturn() bool {
	return o.Return != nil && o.Return.Kind != TypeVoid
}

// IsSendOnly reports operations that never receive a reply.
func (o *Operation) IsSendOnly() bool {
	return o.Has(attr.Oneway)
}

// ReturnParam returns the synthetic out parameter carrying the return value.
func (o *Operation) ReturnParam() *Parameter {
	if !o.HasReturn() {
		return nil
	}
	if o.ret == nil {
		o.ret = &Parameter{
			Type:  o.Return,
			Decl:  Declarator{Name: ReturnName},
			Attrs: attr.Set{{Kind: attr.Out}},
			Loc:   o.Loc.Child("return"),
		}
	}
	return o.ret
}

// Active lists the parameters transferred in direction d. The return value
// comes first on Out.
func (o *Operation) Active(d Direction) []*Parameter {
	out := make([]*Parameter, 0, len(o.Params)+1)
	if d == Out {
		if o.IsSendOnly() {
			return out
		}
		if r := o.ReturnParam(); r != nil {
			out = append(out, r)
		}
	}
	for _, p := range o.Params {
		if p.Active(d) {
			out = append(out, p)
		}
	}
	return out
}

// Param finds a parameter by name, including the return parameter.
func (o *Operation) Param(name string) *Parameter {
	if name == ReturnName {
		return o.ReturnParam()
	}
	for _, p := range o.Params {
		if p.Decl.Name == name {
			return p
		}
	}
	return nil
}

// Interface groups operations that share one server loop and one receive
// buffer.
type Interface struct {
	Name   string
	Number int
	Ops    []*Operation
	Bases  []*Interface
	Loc    source.Loc
}

// OpcodeShift positions the interface number above the operation index.
const OpcodeShift = 20

// AllOperations returns the operations of the bases (depth first, in
// declaration order) followed by the interface's own operations. Each
// operation appears once.
func (i *Interface) AllOperations() []*Operation {
	seen := make(map[*Operation]bool)
	visited := make(map[*Interface]bool)
	var out []*Operation
	var walk func(*Interface)
	walk = func(it *Interface) {
		if it == nil || visited[it] {
			return
		}
		visited[it] = true
		for _, b := range it.Bases {
			walk(b)
		}
		for _, op := range it.Ops {
			if !seen[op] {
				seen[op] = true
				out = append(out, op)
			}
		}
	}
	walk(i)
	return out
}

// Owner returns the interface that declares op, searching bases.
func (i *Interface) Owner(op *Operation) *Interface {
	visited := make(map[*Interface]bool)
	var find func(*Interface) *Interface
	find = func(it *Interface) *Interface {
		if it == nil || visited[it] {
			return nil
		}
		visited[it] = true
		for _, o := range it.Ops {
			if o == op {
				return it
			}
		}
		for _, b := range it.Bases {
			if owner := find(b); owner != nil {
				return owner
			}
		}
		return nil
	}
	return find(i)
}

// OpcodeOf returns the wire opcode of op. Explicit uuid() values win;
// otherwise the owner's number is combined with the 1-based index.
func (i *Interface) OpcodeOf(op *Operation) int {
	if op.Opcode != 0 {
		return op.Opcode
	}
	owner := i.Owner(op)
	if owner == nil {
		return 0
	}
	for idx, o := range owner.Ops {
		if o == op {
			return owner.Number<<OpcodeShift | (idx + 1)
		}
	}
	return 0
}
