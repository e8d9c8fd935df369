package stubgen

import (
	"context"
	"fmt"
	"strings"

	"l4idl/internal/attr"
	"l4idl/internal/cgen"
	"l4idl/internal/idl"
	"l4idl/internal/layout"
	"l4idl/internal/naming"
	"l4idl/internal/trace"
)

// Header builds the shared header: reply codes, opcodes, the description's
// aggregate types, message buffer types and every prototype.
func (g *Generator) Header(ctx context.Context, iface *idl.Interface) (*cgen.Block, error) {
	_, span := trace.Start(ctx, trace.ScopeOperation, "header")
	defer span.End("")

	file := FileName(iface.Name, UnitHeader)
	guard := g.names.HeaderGuard(file)
	ops := iface.AllOperations()

	b := &cgen.Block{}
	b.Directive("#ifndef %s", guard)
	b.Directive("#define %s", guard)
	b.Blank()
	b.Directive("#include <l4/sys/types.h>")
	b.Directive("#include <l4/sys/ipc.h>")
	b.Directive("#include \"dice/dice.h\"")
	b.Blank()
	for _, d := range [][2]string{
		{"DICE_NO_REPLY", "0"},
		{"DICE_REPLY", "1"},
		{"DICE_REPLY_FPAGE", "2"},
		{"DICE_INVALID_OPCODE", "((l4_umword_t)~0UL)"},
	} {
		b.Directive("#ifndef %s", d[0])
		b.Directive("#define %s %s", d[0], d[1])
		b.Directive("#endif")
	}

	b.Blank()
	b.Comment("opcodes")
	for _, op := range ops {
		if op.Has(attr.NoOpcode) {
			continue
		}
		b.Directive("#define %s %#x", g.names.Opcode(iface.Name, op.Name), iface.OpcodeOf(op))
	}

	if types := aggregates(ops); len(types) > 0 {
		b.Blank()
		b.Comment("types")
		for _, t := range types {
			emitType(b, t)
		}
	}

	b.Blank()
	b.Comment("message buffers")
	for _, op := range ops {
		buf, err := g.clientBuffer(iface, op)
		if err != nil {
			return nil, opError(iface, op, err)
		}
		emitBuffer(b, g.names.MsgBufferType(iface.Name, op.Name), buf)
	}
	sp, err := g.planServer(iface)
	if err != nil {
		return nil, err
	}
	emitBuffer(b, g.names.MsgBufferType(iface.Name, ""), sp.buf)

	b.Blank()
	b.Comment("client")
	for _, op := range ops {
		_, fk := g.clientKind(op)
		b.Linef("%s;", newFunction(returnType(op), g.names.Function(fk, iface.Name, op.Name), g.clientParams(op)...).prototype())
	}

	b.Blank()
	b.Comment("server")
	seen := make(map[string]bool)
	for _, op := range sp.ops {
		name := g.names.Function(naming.FuncComponent, sp.owner(op), op.Name)
		if seen[name] {
			continue
		}
		seen[name] = true
		b.Linef("%s;", newFunction(returnType(op), name, g.componentParams(op)...).prototype())
	}
	for _, op := range sp.ops {
		b.Linef("%s;", newFunction("int", g.names.Function(naming.FuncServerOp, iface.Name, op.Name), g.serverParamsFor(sp)...).prototype())
	}
	b.Linef("%s;", g.dispatch(sp).prototype())
	b.Linef("%s;", newFunction("l4_umword_t", g.names.Function(naming.FuncWaitAny, iface.Name, ""), g.serverParamsFor(sp)...).prototype())
	if sp.replies {
		params := g.serverParamsFor(sp)
		params = append(params[:1:1], append([]string{"int " + g.names.Local("reply")}, params[1:]...)...)
		b.Linef("%s;", newFunction("l4_umword_t", g.names.Function(naming.FuncReplyWait, iface.Name, ""), params...).prototype())
	}
	b.Linef("%s;", g.serverLoop(sp).prototype())
	for _, op := range sp.ops {
		if !op.Has(attr.AllowReplyOnly) || op.IsSendOnly() {
			continue
		}
		params := []string{"CORBA_Object " + g.names.Object()}
		for _, p := range op.Active(idl.Out) {
			params = append(params, p.C())
		}
		params = append(params, "CORBA_Server_Environment *"+g.names.Env())
		b.Linef("%s;", newFunction("void", g.names.Function(naming.FuncReply, iface.Name, op.Name), params...).prototype())
	}

	b.Blank()
	b.Directive("#endif /* %s */", guard)
	return b, nil
}

func (g *Generator) componentParams(op *idl.Operation) []string {
	params := []string{"CORBA_Object " + g.names.Object()}
	for _, p := range op.Params {
		params = append(params, p.C())
	}
	return append(params, "CORBA_Server_Environment *"+g.names.Env())
}

func (g *Generator) clientBuffer(iface *idl.Interface, op *idl.Operation) (layout.Buffer, error) {
	in, err := g.planner.Plan(iface, op, idl.In, layout.ClientCall)
	if err != nil {
		return layout.Buffer{}, err
	}
	var out *layout.Layout
	if !op.IsSendOnly() {
		if out, err = g.planner.Plan(iface, op, idl.Out, layout.ClientCall); err != nil {
			return layout.Buffer{}, err
		}
	}
	return layout.NewBuffer(g.opts.Target, in, out), nil
}

// emitBuffer writes the message buffer typedef. The field order is the
// kernel's: receive flexpage window, size dope, send dope, words, string
// descriptors. Dynamic buffers keep their descriptors inside _word.
func emitBuffer(b *cgen.Block, name string, buf layout.Buffer) {
	b.Open("typedef struct {")
	b.Line("l4_fpage_t _rcv_fpage;")
	b.Line("l4_msgdope_t _size;")
	b.Line("l4_msgdope_t _send;")
	b.Linef("l4_umword_t _word[%d];", buf.WordSlots())
	if buf.Strings > 0 && !buf.Dynamic {
		b.Linef("l4_strdope_t _strings[%d];", buf.Strings)
	}
	b.Close(fmt.Sprintf("} %s;", name))
}

// aggregates lists the struct and union types the operations mention,
// members before the types containing them.
func aggregates(ops []*idl.Operation) []*idl.Type {
	var out []*idl.Type
	seen := make(map[*idl.Type]bool)
	var visit func(t *idl.Type)
	visit = func(t *idl.Type) {
		if t == nil || !t.IsAggregate() || seen[t] {
			return
		}
		seen[t] = true
		for _, m := range t.Members {
			visit(m.Type)
		}
		out = append(out, t)
	}
	for _, op := range ops {
		visit(op.Return)
		for _, p := range op.Params {
			visit(p.Type)
		}
	}
	return out
}

func emitType(b *cgen.Block, t *idl.Type) {
	keyword := "struct"
	if t.Kind == idl.TypeUnion {
		keyword = "union"
	}
	if strings.HasPrefix(t.Name, keyword+" ") {
		b.Open("%s {", t.Name)
		emitMembers(b, t)
		b.Close("};")
		return
	}
	b.Open("typedef %s {", keyword)
	emitMembers(b, t)
	b.Close(fmt.Sprintf("} %s;", t.Name))
}

func emitMembers(b *cgen.Block, t *idl.Type) {
	for _, m := range t.Members {
		b.Linef("%s;", m.C())
	}
}
