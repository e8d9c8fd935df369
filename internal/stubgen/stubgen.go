// Package stubgen assembles the header, client and server translation units
// of an interface from planned layouts, marshalling passes and IPC
// emission.
package stubgen

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"l4idl/internal/cgen"
	"l4idl/internal/comm"
	"l4idl/internal/diag"
	"l4idl/internal/idl"
	"l4idl/internal/layout"
	"l4idl/internal/marshal"
	"l4idl/internal/naming"
	"l4idl/internal/target"
	"l4idl/internal/trace"
	"l4idl/internal/tracehook"
)

// Unit is one generated file.
type Unit uint8

const (
	UnitHeader Unit = iota + 1
	UnitClient
	UnitServer
)

func (u Unit) String() string {
	switch u {
	case UnitHeader:
		return "header"
	case UnitClient:
		return "client"
	case UnitServer:
		return "server"
	}
	return "unknown"
}

// Suffix is appended to the sanitised interface name to form the file name.
func (u Unit) Suffix() string {
	switch u {
	case UnitHeader:
		return "-sys.h"
	case UnitClient:
		return "-client.c"
	case UnitServer:
		return "-server.c"
	}
	return ""
}

// FileName names the file of unit u for iface.
func FileName(iface string, u Unit) string { return naming.Sanitize(iface) + u.Suffix() }

// Options configure a Generator.
type Options struct {
	Target target.Target
	// Registry defaults to comm.DefaultRegistry().
	Registry *comm.Registry
	Names    naming.Namer
	Hook     tracehook.Hook
	Reporter diag.Reporter
	// Cache and Digest memoise layout plans across runs.
	Cache  layout.Cache
	Digest string
	// Retry and Timeout apply to client calls and sends only.
	Retry      bool
	Timeout    string
	MaxNesting int
}

// Generator produces the translation units of interfaces for one target.
// It keeps no per-interface state and may be reused.
type Generator struct {
	opts    Options
	names   naming.Namer
	reg     *comm.Registry
	planner *layout.Planner
}

// Output holds the generated units of one interface. Units that were not
// requested are nil.
type Output struct {
	Interface string
	Header    *cgen.Block
	Client    *cgen.Block
	Server    *cgen.Block
}

// Unit returns the block for u.
func (o *Output) Unit(u Unit) *cgen.Block {
	switch u {
	case UnitHeader:
		return o.Header
	case UnitClient:
		return o.Client
	case UnitServer:
		return o.Server
	}
	return nil
}

// New validates the target and builds a generator.
func New(opts Options) (*Generator, error) {
	if err := opts.Target.Validate(); err != nil {
		return nil, fmt.Errorf("stubgen: %w", err)
	}
	g := &Generator{opts: opts, names: opts.Names, reg: opts.Registry}
	if g.names == nil {
		g.names = naming.New()
	}
	if g.reg == nil {
		g.reg = comm.DefaultRegistry()
	}
	if _, err := g.reg.Lookup(opts.Target.Profile); err != nil {
		return nil, fmt.Errorf("stubgen: %w", err)
	}
	if g.opts.Hook == nil {
		g.opts.Hook = tracehook.Nop{}
	}
	popts := []layout.Option{layout.WithReporter(opts.Reporter)}
	if opts.Cache != nil {
		popts = append(popts, layout.WithCache(opts.Cache, opts.Digest))
	}
	g.planner = layout.NewPlanner(opts.Target, popts...)
	return g, nil
}

// Generate builds every unit of iface.
func (g *Generator) Generate(ctx context.Context, iface *idl.Interface) (*Output, error) {
	return g.GenerateUnits(ctx, iface, UnitHeader, UnitClient, UnitServer)
}

// GenerateUnits builds the listed units of iface.
func (g *Generator) GenerateUnits(ctx context.Context, iface *idl.Interface, units ...Unit) (*Output, error) {
	if iface == nil {
		return nil, errors.New("stubgen: nil interface")
	}
	ctx, span := trace.Start(ctx, trace.ScopeInterface, "iface:"+iface.Name)
	defer span.End("")

	out := &Output{Interface: iface.Name}
	for _, u := range units {
		var (
			b   *cgen.Block
			err error
		)
		switch u {
		case UnitHeader:
			b, err = g.Header(ctx, iface)
			out.Header = b
		case UnitClient:
			b, err = g.Client(ctx, iface)
			out.Client = b
		case UnitServer:
			b, err = g.Server(ctx, iface)
			out.Server = b
		default:
			err = fmt.Errorf("stubgen: unknown unit %d", u)
		}
		if err != nil {
			span.WithExtra("failed", u.String())
			return nil, err
		}
	}
	Logger().Debug("interface generated",
		zap.String("interface", iface.Name),
		zap.Int("operations", len(iface.AllOperations())),
		zap.Int("units", len(units)))
	return out, nil
}

func (g *Generator) marshalOptions(pointer, long bool, ret, result string) marshal.Options {
	return marshal.Options{
		Names:      g.names,
		Pointer:    pointer,
		Long:       long,
		Return:     ret,
		Result:     result,
		MaxNesting: g.opts.MaxNesting,
		Reporter:   g.opts.Reporter,
	}
}

func (g *Generator) site(b *cgen.Block, p tracehook.Point, iface, op string) {
	tracehook.Invoke(g.opts.Hook, b, tracehook.Site{Point: p, Interface: iface, Operation: op})
}

// emitIPC runs the emitter steps in order and records each one as a trace
// point.
func (g *Generator) emitIPC(ctx context.Context, e *comm.Emitter, b *cgen.Block, flexpages int) error {
	if _, err := e.ComputeSizes(); err != nil {
		return err
	}
	if _, err := e.SelectShortOrLong(); err != nil {
		return err
	}
	if _, err := e.SelectFlexpageVariant(flexpages); err != nil {
		return err
	}
	trace.Point(ctx, trace.ScopeStep, "comm:variant", variantDetail(e))
	if err := e.EmitCall(b); err != nil {
		return err
	}
	if err := e.EmitErrorCheck(b); err != nil {
		return err
	}
	trace.Point(ctx, trace.ScopeStep, "comm:done", e.Strategy().Name())
	return nil
}

func variantDetail(e *comm.Emitter) string {
	if e.Variant().Size == 0 {
		return "recv " + e.ReceiveVariant().String()
	}
	return e.Variant().String()
}

func returnType(op *idl.Operation) string {
	if op.HasReturn() {
		return op.Return.String()
	}
	return "void"
}

func opError(iface *idl.Interface, op *idl.Operation, err error) error {
	return fmt.Errorf("%s.%s: %w", iface.Name, op.Name, err)
}
