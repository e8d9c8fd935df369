// Package marshal emits the C statements that pack an operation's
// parameters into a message buffer and unpack them again. Every pass works
// on a freshly constructed Context so counters never carry over between
// operations or directions.
package marshal

import (
	"fmt"

	"l4idl/internal/cgen"
	"l4idl/internal/declpath"
	"l4idl/internal/diag"
	"l4idl/internal/idl"
	"l4idl/internal/layout"
	"l4idl/internal/naming"
)

// Side is the translation unit the code is generated for.
type Side uint8

const (
	Client Side = iota + 1
	Server
)

func (s Side) String() string {
	if s == Client {
		return "client"
	}
	return "server"
}

// Mode is the pass direction.
type Mode uint8

const (
	Pack Mode = iota + 1
	Unpack
)

func (m Mode) String() string {
	if m == Pack {
		return "marshal"
	}
	return "unmarshal"
}

// Options carry the spellings and limits a pass needs from its caller.
type Options struct {
	Names naming.Namer
	// Pointer is set when the message buffer variable is a pointer.
	Pointer bool
	// Long makes the pack pass finish with the send dope.
	Long bool
	// Opcode is the expression stored into the opcode word.
	Opcode string
	// Return is the statement that leaves the stub after an exception.
	Return string
	// Result names the IPC result variable checked for received flexpages.
	Result string
	// Buffer is the merged buffer the pass works on. Zero when unknown.
	Buffer layout.Buffer
	// SizeSet tells ReceiveWindows the size dope is already written.
	SizeSet    bool
	MaxNesting int
	Reporter   diag.Reporter
}

// access is the member access prefix of the message buffer.
func (o Options) access() string {
	if o.Pointer {
		return o.names().MsgBuffer() + "->"
	}
	return o.names().MsgBuffer() + "."
}

func (o Options) names() naming.Namer {
	if o.Names == nil {
		return naming.New()
	}
	return o.Names
}

// Access records one transfer of a declarator.
type Access struct {
	Class  layout.Class
	Offset int // byte offset in the dword region, -1 when computed at runtime
	Path   string
}

// Local is a generator-owned local variable a pass relies on.
type Local struct {
	Name string
	Type string
}

// Result summarises a pass.
type Result struct {
	Flexpages int  // flexpage descriptors written or read (upper bound for arrays)
	Runtime   bool // flexpage count or word count depends on runtime values
	Strings   int
	Words     int    // static dword count, -1 when runtime
	WordsExpr string // C expression of the dword count
	Branch    bool   // exception/flexpage branch emitted
	Accesses  []Access
	Locals    []Local
}

// Context is the per-pass state. It is built by Marshal and Unmarshal and
// discarded afterwards.
type Context struct {
	mode   Mode
	side   Side
	op     *idl.Operation
	layout *layout.Layout
	opts   Options
	names  naming.Namer
	path   *declpath.Path
	block  *cgen.Block

	flexpages int // descriptors emitted so far, counts up from zero
	strings   int // next descriptor index
	cursor    int // static mirror of the runtime offset cursor
	saved     bool
	result    Result
	locals    map[string]bool
}

func newContext(mode Mode, side Side, op *idl.Operation, l *layout.Layout, opts Options) *Context {
	return &Context{
		mode:   mode,
		side:   side,
		op:     op,
		layout: l,
		opts:   opts,
		names:  opts.names(),
		path:   declpath.New(opts.MaxNesting),
		locals: make(map[string]bool),
	}
}

// buf is the message buffer with its member access operator.
func (c *Context) buf() string {
	if c.opts.Pointer {
		return c.names.MsgBuffer() + "->"
	}
	return c.names.MsgBuffer() + "."
}

func (c *Context) env() string { return c.names.Env() + "->" }

func (c *Context) word(i int) string {
	return fmt.Sprintf("%s_word[%d]", c.buf(), i)
}

// at returns an lvalue of type typ at byte offset off of the dword region.
func (c *Context) at(off, typ string) string {
	return fmt.Sprintf("*(%s*)(%s)", typ, c.addr(off))
}

// addr returns the address of byte offset off of the dword region.
func (c *Context) addr(off string) string {
	return fmt.Sprintf("&((l4_uint8_t*)%s_word)[%s]", c.buf(), off)
}

// staticAt returns an lvalue for a static byte offset, preferring word
// indexing for aligned offsets.
func (c *Context) staticAt(off int, typ string) string {
	if off%c.layout.WordSize == 0 {
		return fmt.Sprintf("*(%s*)(&%s)", typ, c.word(off/c.layout.WordSize))
	}
	return c.at(fmt.Sprint(off), typ)
}

func (c *Context) local(name, typ string) string {
	n := c.names.Local(name)
	if !c.locals[n] {
		c.locals[n] = true
		c.result.Locals = append(c.result.Locals, Local{Name: n, Type: typ})
	}
	return n
}

func (c *Context) offVar() string { return c.local("off", "unsigned long") }

func (c *Context) record(class layout.Class, offset int, path string) {
	c.result.Accesses = append(c.result.Accesses, Access{Class: class, Offset: offset, Path: path})
}

// with runs fn with the declarator path extended by p.
func (c *Context) with(p *idl.Parameter, fn func() error, index ...string) error {
	var err error
	if len(index) > 0 {
		err = c.path.PushIndex(p, index...)
	} else {
		err = c.path.Push(p)
	}
	if err != nil {
		c.report(diag.MarPathTooDeep, p, err.Error())
		return err
	}
	defer c.path.Pop()
	return fn()
}

func (c *Context) report(code diag.Code, p *idl.Parameter, msg string) {
	loc := c.op.Loc
	if p != nil && (p.Loc.File != "" || p.Loc.Element != "") {
		loc = p.Loc
	}
	diag.ReportError(c.opts.Reporter, code, loc, msg).Emit()
}
