package stubgen

import (
	"context"

	"go.uber.org/zap"

	"l4idl/internal/cgen"
	"l4idl/internal/comm"
	"l4idl/internal/idl"
	"l4idl/internal/layout"
	"l4idl/internal/marshal"
	"l4idl/internal/naming"
	"l4idl/internal/trace"
	"l4idl/internal/tracehook"
)

// Client builds the client unit: one call stub per operation, or a send
// stub for oneway operations.
func (g *Generator) Client(ctx context.Context, iface *idl.Interface) (*cgen.Block, error) {
	b := &cgen.Block{}
	b.Comment("client stubs for interface %s", iface.Name)
	b.Directive("#include \"%s\"", FileName(iface.Name, UnitHeader))
	for _, op := range iface.AllOperations() {
		f, err := g.clientStub(ctx, iface, op)
		if err != nil {
			return nil, opError(iface, op, err)
		}
		b.Blank()
		f.emit(b)
	}
	return b, nil
}

func (g *Generator) clientParams(op *idl.Operation) []string {
	params := []string{"CORBA_Object " + g.names.Object()}
	for _, p := range op.Params {
		params = append(params, p.C())
	}
	return append(params, "CORBA_Environment *"+g.names.Env())
}

func (g *Generator) clientKind(op *idl.Operation) (comm.Kind, naming.FuncKind) {
	if op.IsSendOnly() {
		return comm.Send, naming.FuncSend
	}
	return comm.Call, naming.FuncCall
}

func (g *Generator) clientStub(ctx context.Context, iface *idl.Interface, op *idl.Operation) (*function, error) {
	ctx, span := trace.Start(ctx, trace.ScopeOperation, "op:"+op.Name)
	defer span.End("client")

	kind, fk := g.clientKind(op)
	in, err := g.planner.Plan(iface, op, idl.In, layout.ClientCall)
	if err != nil {
		return nil, err
	}
	var out *layout.Layout
	if kind == comm.Call {
		if out, err = g.planner.Plan(iface, op, idl.Out, layout.ClientCall); err != nil {
			return nil, err
		}
	}

	f := newFunction(returnType(op), g.names.Function(fk, iface.Name, op.Name), g.clientParams(op)...)
	ret := "return;"
	if op.HasReturn() {
		rp := op.ReturnParam()
		if op.Return.IsScalar() {
			f.declare(rp.Name(), rp.C()+" = 0;")
		} else {
			f.declare(rp.Name(), rp.C()+";")
		}
		ret = "return " + rp.Name() + ";"
	}
	f.local(g.names.MsgBufferType(iface.Name, op.Name), g.names.MsgBuffer())

	e, err := comm.New(g.reg, g.opts.Target.Profile, comm.Request{
		Kind:      kind,
		Interface: iface.Name,
		Operation: op.Name,
		Send:      in,
		Recv:      out,
		Retry:     g.opts.Retry,
		Timeout:   g.opts.Timeout,
		Return:    ret,
		Names:     g.names,
		Hook:      g.opts.Hook,
		Reporter:  g.opts.Reporter,
		Loc:       op.Loc,
	})
	if err != nil {
		return nil, err
	}
	if _, err := e.ComputeSizes(); err != nil {
		return nil, err
	}
	size, err := e.SelectShortOrLong()
	if err != nil {
		return nil, err
	}

	var locals []marshal.Local
	body := &f.body
	buf := layout.NewBuffer(g.opts.Target, in, out)
	opts := g.marshalOptions(false, size == comm.Long, ret, e.Result())
	opts.Buffer = buf
	if size == comm.Long {
		body.Append(marshal.SizeDope(buf, opts))
	}
	g.site(body, tracehook.BeforeMarshal, iface.Name, op.Name)
	mb, mres, err := marshal.Marshal(op, in, marshal.Client, opts)
	if err != nil {
		return nil, err
	}
	body.Append(mb)
	g.site(body, tracehook.AfterMarshal, iface.Name, op.Name)
	locals = append(locals, mres.Locals...)

	if _, err := e.SelectFlexpageVariant(mres.Flexpages); err != nil {
		return nil, err
	}
	trace.Point(ctx, trace.ScopeStep, "comm:variant", variantDetail(e))
	recvOpts := g.marshalOptions(false, false, ret, e.Result())
	recvOpts.Buffer = buf
	if out != nil && e.ReceiveVariant().Size == comm.Long {
		windows := recvOpts
		windows.SizeSet = size == comm.Long
		body.Append(marshal.ReceiveWindows(buf, out, op, windows))
	}
	if err := e.EmitCall(body); err != nil {
		return nil, err
	}
	if err := e.EmitErrorCheck(body); err != nil {
		return nil, err
	}

	if out != nil {
		g.site(body, tracehook.BeforeUnmarshal, iface.Name, op.Name)
		ub, ures, err := marshal.Unmarshal(op, out, marshal.Client, recvOpts)
		if err != nil {
			return nil, err
		}
		body.Append(ub)
		g.site(body, tracehook.AfterUnmarshal, iface.Name, op.Name)
		locals = append(locals, ures.Locals...)
	}
	if op.HasReturn() {
		body.Line(ret)
	}

	f.addLocals(e.Locals())
	f.addLocals(locals)
	span.WithExtra("variant", e.Variant().String())
	Logger().Debug("client stub",
		zap.String("function", f.name),
		zap.Stringer("send", e.Variant()),
		zap.Stringer("recv", e.ReceiveVariant()),
		zap.Int("words", mres.Words))
	return f, nil
}
