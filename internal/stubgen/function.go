package stubgen

import (
	"strings"

	"l4idl/internal/cgen"
	"l4idl/internal/marshal"
)

// function is a C function under construction. Locals are declared in the
// order they were first requested; a name requested twice is declared once.
type function struct {
	ret    string
	name   string
	params []string

	decls []string
	seen  map[string]bool
	body  cgen.Block
}

func newFunction(ret, name string, params ...string) *function {
	return &function{ret: ret, name: name, params: params, seen: make(map[string]bool)}
}

func (f *function) declare(name, line string) {
	if f.seen[name] {
		return
	}
	f.seen[name] = true
	f.decls = append(f.decls, line)
}

func (f *function) local(typ, name string) {
	f.addLocals([]marshal.Local{{Name: name, Type: typ}})
}

func (f *function) addLocals(ls []marshal.Local) {
	for _, l := range ls {
		if f.seen[l.Name] {
			continue
		}
		f.seen[l.Name] = true
		f.decls = append(f.decls, l.Type+" "+l.Name+";")
	}
}

func (f *function) prototype() string {
	params := "void"
	if len(f.params) > 0 {
		params = strings.Join(f.params, ", ")
	}
	return f.ret + " " + f.name + "(" + params + ")"
}

func (f *function) emit(b *cgen.Block) {
	b.Line(f.prototype())
	b.Open("{")
	for _, d := range f.decls {
		b.Line(d)
	}
	if len(f.decls) > 0 && f.body.Len() > 0 {
		b.Blank()
	}
	b.Append(&f.body)
	b.Close()
}
