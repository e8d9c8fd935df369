package stubgen

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"l4idl/internal/attr"
	"l4idl/internal/cgen"
	"l4idl/internal/comm"
	"l4idl/internal/idl"
	"l4idl/internal/layout"
	"l4idl/internal/marshal"
	"l4idl/internal/naming"
	"l4idl/internal/trace"
	"l4idl/internal/tracehook"
)

// serverPlan is every layout the server side of an interface uses.
type serverPlan struct {
	iface   *idl.Interface
	ops     []*idl.Operation // dispatchable, in opcode order
	in      map[*idl.Operation]*layout.Layout
	out     map[*idl.Operation]*layout.Layout
	buf     layout.Buffer
	replies bool // some operation answers
	fpages  bool // some reply carries flexpages
}

func (g *Generator) planServer(iface *idl.Interface) (*serverPlan, error) {
	sp := &serverPlan{
		iface: iface,
		in:    make(map[*idl.Operation]*layout.Layout),
		out:   make(map[*idl.Operation]*layout.Layout),
	}
	var all []*layout.Layout
	for _, op := range iface.AllOperations() {
		if op.Has(attr.NoOpcode) {
			Logger().Debug("operation without opcode is not dispatched", zap.String("operation", op.Name))
			continue
		}
		in, err := g.planner.Plan(iface, op, idl.In, layout.ServerDispatch)
		if err != nil {
			return nil, opError(iface, op, err)
		}
		sp.in[op] = in
		all = append(all, in)
		if !op.IsSendOnly() {
			out, err := g.planner.Plan(iface, op, idl.Out, layout.ComponentReply)
			if err != nil {
				return nil, opError(iface, op, err)
			}
			sp.out[op] = out
			all = append(all, out)
			sp.replies = true
			sp.fpages = sp.fpages || out.HasFlexpages()
		}
		sp.ops = append(sp.ops, op)
	}
	sp.buf = layout.NewBuffer(g.opts.Target, all...)
	return sp, nil
}

// Server builds the server unit: per-operation unmarshal functions, the
// dispatcher, the receive primitives, the server loop and the reply-only
// functions.
func (g *Generator) Server(ctx context.Context, iface *idl.Interface) (*cgen.Block, error) {
	sp, err := g.planServer(iface)
	if err != nil {
		return nil, err
	}
	b := &cgen.Block{}
	b.Comment("server stubs for interface %s", iface.Name)
	b.Directive("#include \"%s\"", FileName(iface.Name, UnitHeader))

	for _, op := range sp.ops {
		f, err := g.serverOp(ctx, sp, op)
		if err != nil {
			return nil, opError(iface, op, err)
		}
		b.Blank()
		f.emit(b)
	}
	funcs := []*function{g.dispatch(sp)}
	wait, err := g.waitAny(ctx, sp)
	if err != nil {
		return nil, err
	}
	funcs = append(funcs, wait)
	if sp.replies {
		rw, err := g.replyAndWait(ctx, sp)
		if err != nil {
			return nil, err
		}
		funcs = append(funcs, rw)
	}
	funcs = append(funcs, g.serverLoop(sp))
	for _, op := range sp.ops {
		if !op.Has(attr.AllowReplyOnly) || op.IsSendOnly() {
			continue
		}
		f, err := g.replyOnly(ctx, sp, op)
		if err != nil {
			return nil, opError(iface, op, err)
		}
		funcs = append(funcs, f)
	}
	for _, f := range funcs {
		b.Blank()
		f.emit(b)
	}
	return b, nil
}

// declareServerParam declares the server-side variable of p. By-reference
// parameters point at local storage unless the unmarshaller points them
// into the message buffer. Outgoing buffers get room for their maximum
// element count.
func (g *Generator) declareServerParam(f *function, p *idl.Parameter) {
	stars := p.Decl.Stars
	switch {
	case stars == 0 || p.Decl.IsArray():
		f.declare(p.Name(), p.C()+";")
	case stars == 1 && p.IsIn() && intoBuffer(p):
		f.declare(p.Name(), p.C()+";")
	case stars == 1 && intoBuffer(p):
		n, _ := layout.MaxElements(p, 1, g.opts.Target.DefaultStringMax)
		storage := g.names.Storage(p.Name())
		f.declare(storage, fmt.Sprintf("%s %s[%d];", p.Type, storage, n))
		f.declare(p.Name(), fmt.Sprintf("%s = %s;", p.C(), storage))
	default:
		storage := g.names.Storage(p.Name())
		f.declare(storage, fmt.Sprintf("%s %s%s;", p.Type, strings.Repeat("*", stars-1), storage))
		f.declare(p.Name(), fmt.Sprintf("%s = &%s;", p.C(), storage))
	}
}

func intoBuffer(p *idl.Parameter) bool {
	c := layout.Classify(p)
	return c == layout.ClassString || c == layout.ClassVariable
}

func (g *Generator) componentCall(op *idl.Operation, iface string) string {
	args := []string{g.names.Object()}
	for _, p := range op.Params {
		args = append(args, p.Name())
	}
	args = append(args, g.names.Env())
	call := fmt.Sprintf("%s(%s);", g.names.Function(naming.FuncComponent, iface, op.Name), strings.Join(args, ", "))
	if op.HasReturn() {
		return op.ReturnParam().Name() + " = " + call
	}
	return call
}

func (g *Generator) serverOp(ctx context.Context, sp *serverPlan, op *idl.Operation) (*function, error) {
	ctx, span := trace.Start(ctx, trace.ScopeOperation, "op:"+op.Name)
	defer span.End("server")
	iface := sp.iface.Name

	f := newFunction("int", g.names.Function(naming.FuncServerOp, iface, op.Name), g.serverParamsFor(sp)...)
	for _, p := range op.Params {
		g.declareServerParam(f, p)
	}
	if op.HasReturn() {
		g.declareServerParam(f, op.ReturnParam())
	}
	body := &f.body

	g.site(body, tracehook.BeforeUnmarshal, iface, op.Name)
	ub, ures, err := marshal.Unmarshal(op, sp.in[op], marshal.Server, g.serverOptions(sp, true, false, "return DICE_NO_REPLY;"))
	if err != nil {
		return nil, err
	}
	body.Append(ub)
	g.site(body, tracehook.AfterUnmarshal, iface, op.Name)
	f.addLocals(ures.Locals)
	trace.Point(ctx, trace.ScopeStep, "unmarshal", fmt.Sprintf("%d accesses", len(ures.Accesses)))

	body.Line(g.componentCall(op, sp.owner(op)))
	if op.IsSendOnly() {
		body.Line("return DICE_NO_REPLY;")
		return f, nil
	}

	out := sp.out[op]
	g.site(body, tracehook.BeforeMarshal, iface, op.Name)
	mb, mres, err := marshal.Marshal(op, out, marshal.Server, g.serverOptions(sp, true, true, "return DICE_REPLY;"))
	if err != nil {
		return nil, err
	}
	body.Append(mb)
	g.site(body, tracehook.AfterMarshal, iface, op.Name)
	f.addLocals(mres.Locals)
	trace.Point(ctx, trace.ScopeStep, "marshal", fmt.Sprintf("%d accesses", len(mres.Accesses)))

	if out.HasFlexpages() {
		body.Linef("return (%s->major == CORBA_NO_EXCEPTION) ? DICE_REPLY_FPAGE : DICE_REPLY;", g.names.Env())
	} else {
		body.Line("return DICE_REPLY;")
	}
	return f, nil
}

// dispatch switches on the opcode. Unknown opcodes raise a system
// exception and are not answered.
func (g *Generator) dispatch(sp *serverPlan) *function {
	iface := sp.iface.Name
	opcode := g.names.Local("opcode")
	reply := g.names.Local("reply")
	params := g.serverParamsFor(sp)
	params = append(params[:1:1], append([]string{"l4_umword_t " + opcode}, params[1:]...)...)
	f := newFunction("int", g.names.Function(naming.FuncDispatch, iface, ""), params...)
	f.local("int", reply)
	body := &f.body

	g.site(body, tracehook.BeforeDispatch, iface, "")
	body.Open("switch (%s) {", opcode)
	for _, op := range sp.ops {
		body.Open("case %s: {", g.names.Opcode(iface, op.Name))
		body.Linef("%s = %s(%s, %s, %s);", reply, g.names.Function(naming.FuncServerOp, iface, op.Name), g.names.Object(), g.names.MsgBuffer(), g.names.Env())
		body.Line("break;")
		body.Close()
	}
	body.Open("default: {")
	body.Linef("%s->major = CORBA_SYSTEM_EXCEPTION;", g.names.Env())
	body.Linef("%s->repos_id = CORBA_DICE_EXCEPTION_WRONG_OPCODE;", g.names.Env())
	body.Linef("%s = DICE_NO_REPLY;", reply)
	body.Line("break;")
	body.Close()
	body.Close()
	g.site(body, tracehook.AfterDispatch, iface, "")
	body.Linef("return %s;", reply)
	return f
}

// opcodeReturn reads the opcode of the received message. Operations with
// flexpages carry it behind the flexpage region of their family.
func (g *Generator) opcodeReturn(b *cgen.Block, sp *serverPlan, result string) {
	words := g.names.MsgBuffer() + "->_word"
	word := -1
	for _, op := range sp.ops {
		l := sp.in[op]
		if !l.HasFlexpages() {
			continue
		}
		if s, err := l.Opcode(); err == nil && s.Static() {
			word = s.Offset / l.WordSize
			break
		}
	}
	if word > 0 {
		b.Open("if (l4_ipc_fpage_received(%s)) {", result)
		b.Linef("return %s[%d];", words, word)
		b.Close()
	}
	b.Linef("return %s[0];", words)
}

func (g *Generator) receiveEmitter(sp *serverPlan, kind comm.Kind, send *layout.Layout) (*comm.Emitter, error) {
	return comm.New(g.reg, g.opts.Target.Profile, comm.Request{
		Kind:      kind,
		Interface: sp.iface.Name,
		Send:      send,
		Pointer:   true,
		Return:    "return DICE_INVALID_OPCODE;",
		Names:     g.names,
		Hook:      g.opts.Hook,
		Reporter:  g.opts.Reporter,
		Loc:       sp.iface.Loc,
	})
}

func (g *Generator) waitAny(ctx context.Context, sp *serverPlan) (*function, error) {
	ctx, span := trace.Start(ctx, trace.ScopeOperation, "wait_any")
	defer span.End("")

	f := newFunction("l4_umword_t", g.names.Function(naming.FuncWaitAny, sp.iface.Name, ""), g.serverParamsFor(sp)...)
	body := &f.body
	body.Append(marshal.ReceiveWindows(sp.buf, nil, nil, g.marshalOptions(true, false, "", "")))
	e, err := g.receiveEmitter(sp, comm.Wait, nil)
	if err != nil {
		return nil, err
	}
	if err := g.emitIPC(ctx, e, body, 0); err != nil {
		return nil, err
	}
	g.opcodeReturn(body, sp, e.Result())
	f.addLocals(e.Locals())
	return f, nil
}

// replyAndWait answers with the reply the dispatcher left in the buffer and
// waits for the next request. A flexpage reply needs its own send
// descriptor, so the variant is chosen at run time from the reply code.
func (g *Generator) replyAndWait(ctx context.Context, sp *serverPlan) (*function, error) {
	ctx, span := trace.Start(ctx, trace.ScopeOperation, "reply_and_wait")
	defer span.End("")

	reply := g.names.Local("reply")
	params := g.serverParamsFor(sp)
	params = append(params[:1:1], append([]string{"int " + reply}, params[1:]...)...)
	f := newFunction("l4_umword_t", g.names.Function(naming.FuncReplyWait, sp.iface.Name, ""), params...)
	body := &f.body

	var send *layout.Layout
	for _, op := range sp.ops {
		l := sp.out[op]
		if l != nil && (send == nil || send.ShortEligible() && !l.ShortEligible()) {
			send = l
		}
	}
	emit := func(fpages int) (*comm.Emitter, error) {
		e, err := g.receiveEmitter(sp, comm.ReplyWait, send)
		if err != nil {
			return nil, err
		}
		return e, g.emitIPC(ctx, e, body, fpages)
	}

	body.Append(marshal.ReceiveWindows(sp.buf, nil, nil, g.marshalOptions(true, false, "", "")))
	var e *comm.Emitter
	var err error
	if sp.fpages {
		body.Open("if (%s == DICE_REPLY_FPAGE) {", reply)
		if e, err = emit(1); err != nil {
			return nil, err
		}
		f.addLocals(e.Locals())
		body.Reopen("} else {")
		if e, err = emit(0); err != nil {
			return nil, err
		}
		body.Close()
	} else if e, err = emit(0); err != nil {
		return nil, err
	}
	f.addLocals(e.Locals())
	g.opcodeReturn(body, sp, e.Result())
	return f, nil
}

// serverLoop waits for a request, dispatches it and answers, forever.
func (g *Generator) serverLoop(sp *serverPlan) *function {
	iface := sp.iface.Name
	param := g.names.Local("server_param")
	f := newFunction("void", g.names.Function(naming.FuncServerLoop, iface, ""), "void *"+param)

	partner := g.names.Local("partner")
	env := g.names.Local("env")
	msg := g.names.Local("msg")
	opcode := g.names.Local("opcode")
	reply := g.names.Local("reply")
	f.local("l4_threadid_t", partner)
	f.local("CORBA_Server_Environment", env)
	f.local(g.names.MsgBufferType(iface, ""), msg)
	f.declare(g.names.Object(), fmt.Sprintf("CORBA_Object %s = &%s;", g.names.Object(), partner))
	f.declare(g.names.Env(), fmt.Sprintf("CORBA_Server_Environment *%s = &%s;", g.names.Env(), env))
	f.declare(g.names.MsgBuffer(), fmt.Sprintf("%s *%s = &%s;", g.names.MsgBufferType(iface, ""), g.names.MsgBuffer(), msg))
	f.local("l4_umword_t", opcode)
	f.local("int", reply)

	args := func(extra string) string {
		parts := []string{g.names.Object()}
		if extra != "" {
			parts = append(parts, extra)
		}
		return strings.Join(append(parts, g.names.MsgBuffer(), g.names.Env()), ", ")
	}
	wait := fmt.Sprintf("%s = %s(%s);", opcode, g.names.Function(naming.FuncWaitAny, iface, ""), args(""))

	body := &f.body
	body.Open("if (%s) {", param)
	body.Linef("%s = *(CORBA_Server_Environment*)%s;", env, param)
	body.Reopen("} else {")
	body.Linef("%s = dice_default_server_environment;", env)
	body.Close()
	body.Line(wait)
	body.Open("while (1) {")
	body.Linef("%s = %s(%s);", reply, g.names.Function(naming.FuncDispatch, iface, ""), args(opcode))
	if sp.replies {
		body.Open("if (%s == DICE_NO_REPLY) {", reply)
		body.Line(wait)
		body.Reopen("} else {")
		body.Linef("%s = %s(%s);", opcode, g.names.Function(naming.FuncReplyWait, iface, ""), args(reply))
		body.Close()
	} else {
		body.Line(wait)
	}
	body.Close()
	return f
}

// replyOnly sends the reply of op without waiting, for components that
// answer later from another context.
func (g *Generator) replyOnly(ctx context.Context, sp *serverPlan, op *idl.Operation) (*function, error) {
	ctx, span := trace.Start(ctx, trace.ScopeOperation, "reply:"+op.Name)
	defer span.End("")
	iface := sp.iface.Name

	params := []string{"CORBA_Object " + g.names.Object()}
	for _, p := range op.Active(idl.Out) {
		params = append(params, p.C())
	}
	params = append(params, "CORBA_Server_Environment *"+g.names.Env())
	f := newFunction("void", g.names.Function(naming.FuncReply, iface, op.Name), params...)
	f.local(g.names.MsgBufferType(iface, ""), g.names.MsgBuffer())
	body := &f.body

	out := sp.out[op]
	opts := g.serverOptions(sp, false, true, "return;")
	if !out.ShortEligible() {
		body.Append(marshal.SizeDope(sp.buf, opts))
	}
	g.site(body, tracehook.BeforeMarshal, iface, op.Name)
	mb, mres, err := marshal.Marshal(op, out, marshal.Server, opts)
	if err != nil {
		return nil, err
	}
	body.Append(mb)
	g.site(body, tracehook.AfterMarshal, iface, op.Name)
	f.addLocals(mres.Locals)

	e, err := comm.New(g.reg, g.opts.Target.Profile, comm.Request{
		Kind:      comm.Reply,
		Interface: iface,
		Operation: op.Name,
		Send:      out,
		Return:    "return;",
		Names:     g.names,
		Hook:      g.opts.Hook,
		Reporter:  g.opts.Reporter,
		Loc:       op.Loc,
	})
	if err != nil {
		return nil, err
	}
	if err := g.emitIPC(ctx, e, body, mres.Flexpages); err != nil {
		return nil, err
	}
	f.addLocals(e.Locals())
	return f, nil
}

// serverOptions configures a pass over the interface-wide buffer.
func (g *Generator) serverOptions(sp *serverPlan, pointer, long bool, ret string) marshal.Options {
	opts := g.marshalOptions(pointer, long, ret, "")
	opts.Buffer = sp.buf
	return opts
}

func (g *Generator) serverParamsFor(sp *serverPlan) []string {
	return []string{
		"CORBA_Object " + g.names.Object(),
		g.names.MsgBufferType(sp.iface.Name, "") + " *" + g.names.MsgBuffer(),
		"CORBA_Server_Environment *" + g.names.Env(),
	}
}

// owner names the interface whose component implements op.
func (sp *serverPlan) owner(op *idl.Operation) string {
	if o := sp.iface.Owner(op); o != nil {
		return o.Name
	}
	return sp.iface.Name
}
