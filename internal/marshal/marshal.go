package marshal

import (
	"errors"
	"fmt"

	"l4idl/internal/cgen"
	"l4idl/internal/diag"
	"l4idl/internal/idl"
	"l4idl/internal/layout"
)

// Error is a generation-time marshalling failure.
type Error struct {
	Code      diag.Code
	Operation string
	Element   string
	Msg       string
}

func (e *Error) Error() string {
	if e.Element == "" {
		return fmt.Sprintf("%s: %s", e.Operation, e.Msg)
	}
	return fmt.Sprintf("%s.%s: %s", e.Operation, e.Element, e.Msg)
}

// Marshal packs the parameters of op travelling in l.Dir. The client packs
// requests, the server packs replies.
func Marshal(op *idl.Operation, l *layout.Layout, side Side, opts Options) (*cgen.Block, Result, error) {
	return run(Pack, op, l, side, opts)
}

// Unmarshal unpacks the parameters of op travelling in l.Dir. The server
// unpacks requests, the client unpacks replies.
func Unmarshal(op *idl.Operation, l *layout.Layout, side Side, opts Options) (*cgen.Block, Result, error) {
	return run(Unpack, op, l, side, opts)
}

func run(mode Mode, op *idl.Operation, l *layout.Layout, side Side, opts Options) (*cgen.Block, Result, error) {
	if op == nil || l == nil {
		return nil, Result{}, errors.New("marshal: nil operation or layout")
	}
	sending := (side == Client) == (l.Dir == idl.In)
	if sending != (mode == Pack) {
		err := &Error{Code: diag.MarUnsupported, Operation: op.Name, Msg: fmt.Sprintf("%v cannot %v %v parameters", side, mode, l.Dir)}
		diag.ReportError(opts.Reporter, err.Code, op.Loc, err.Error()).Emit()
		return nil, Result{}, err
	}
	c := newContext(mode, side, op, l, opts)
	b, err := c.pass()
	if err != nil {
		return nil, Result{}, err
	}
	return b, c.result, nil
}

// pass visits the message in its fixed order: exception word, the
// exception/flexpage branch, flexpages and delimiter, header word, fixed
// parameters, variable items, indirect strings.
func (c *Context) pass() (*cgen.Block, error) {
	l := c.layout
	var exc, body cgen.Block

	if l.HasException() {
		c.block = &exc
		if err := c.exception(); err != nil {
			return nil, err
		}
	}

	c.block = &body
	if err := c.flexpageRegion(); err != nil {
		return nil, err
	}
	if l.HasOpcode() && !(c.mode == Unpack && c.side == Server) {
		c.opcode()
	}
	if l.Dynamic && len(l.Fixed)+len(l.Variable)+len(l.Strings) > 0 {
		c.cursor = l.Flexpages.Bytes(l.WordSize)
		if l.Header != nil && !l.HeaderShared {
			c.cursor += l.WordSize
		}
		c.block.Linef("%s = %d;", c.offVar(), c.cursor)
	}
	for _, s := range l.Fixed {
		if err := c.fixed(s); err != nil {
			return nil, err
		}
	}
	for _, s := range l.Variable {
		if err := c.variable(s); err != nil {
			return nil, err
		}
	}
	for i, s := range l.Strings {
		if err := c.indirect(s, i == len(l.Strings)-1); err != nil {
			return nil, err
		}
	}
	c.words()
	if c.mode == Pack && c.opts.Long {
		c.block.Linef("%s_send = L4_IPC_DOPE(%s, %d);", c.buf(), c.result.WordsExpr, len(l.Strings))
	}
	c.result.Strings = c.strings

	out := &cgen.Block{}
	switch {
	case l.HasException() && l.HasFlexpages():
		c.result.Branch = true
		c.branch(out, &exc, &body)
	default:
		out.Append(&exc)
		out.Append(&body)
	}
	return out, nil
}

// branch joins the exception path and the flexpage path. A reply carrying
// flexpages never carries an exception and vice versa.
func (c *Context) branch(out, exc, body *cgen.Block) {
	if c.mode == Pack {
		out.Open("if (%smajor != CORBA_NO_EXCEPTION) {", c.env())
		out.Append(exc)
		if c.opts.Long {
			out.Linef("%s_send = L4_IPC_DOPE(1, 0);", c.buf())
		}
		out.Reopen("} else {")
		out.Append(body)
		out.Close()
		return
	}
	result := c.opts.Result
	if result == "" {
		result = c.names.Local("result")
	}
	out.Open("if (l4_ipc_fpage_received(%s)) {", result)
	out.Linef("%smajor = CORBA_NO_EXCEPTION;", c.env())
	out.Append(body)
	out.Reopen("} else {")
	out.Append(exc)
	out.Close()
}

func (c *Context) exception() error {
	s, err := c.layout.Exception()
	if err != nil {
		c.report(diag.LayMissingElement, nil, err.Error())
		return err
	}
	word := c.staticAt(s.Offset, "l4_umword_t")
	path := c.env() + "major"
	c.record(layout.ClassHeader, s.Offset, path)
	if c.mode == Pack {
		c.block.Linef("%s = (l4_umword_t)%s;", word, path)
		return nil
	}
	c.block.Linef("%s = (CORBA_exception_type)%s;", path, word)
	if !c.layout.HasFlexpages() {
		c.block.Open("if (%s != CORBA_NO_EXCEPTION) {", path)
		c.block.Line(c.returnStmt())
		c.block.Close()
	}
	return nil
}

func (c *Context) returnStmt() string {
	if c.opts.Return != "" {
		return c.opts.Return
	}
	return "return;"
}

func (c *Context) opcode() {
	s, _ := c.layout.Opcode()
	word := c.staticAt(s.Offset, "l4_umword_t")
	c.record(layout.ClassHeader, s.Offset, c.names.Local("opcode"))
	if c.mode == Pack {
		op := c.opts.Opcode
		if op == "" {
			op = c.names.Opcode(c.layout.Interface, c.op.Name)
		}
		c.block.Linef("%s = %s;", word, op)
		return
	}
	c.block.Linef("%s = %s;", c.names.Local("opcode"), word)
}

// words computes the dword count of the pass.
func (c *Context) words() {
	l := c.layout
	c.result.Runtime = l.Flexpages.Runtime
	if !l.Dynamic || len(l.Fixed)+len(l.Variable)+len(l.Strings) == 0 {
		c.result.Words = l.FixedWords()
		c.result.WordsExpr = fmt.Sprint(l.FixedWords())
		return
	}
	w := l.WordSize
	c.result.Words = -1
	c.result.Runtime = true
	c.result.WordsExpr = fmt.Sprintf("((%s + %d) / %d)", c.offVar(), w-1, w)
}

// Names returns the parameter order a pass visits, for diagnostics and
// reports.
func Names(l *layout.Layout) []string {
	var out []string
	if l.HasException() {
		out = append(out, layout.ExceptionSlot)
	}
	for _, s := range l.Flexpages.Slots {
		out = append(out, s.Name)
	}
	if l.HasOpcode() {
		out = append(out, layout.OpcodeSlot)
	}
	for _, group := range [][]layout.Slot{l.Fixed, l.Variable, l.Strings} {
		for _, s := range group {
			out = append(out, s.Name)
		}
	}
	return out
}
