package layout

import (
	"errors"
	"fmt"

	"l4idl/internal/attr"
	"l4idl/internal/diag"
	"l4idl/internal/idl"
	"l4idl/internal/target"
)

// Planner computes message layouts for one target. It holds no per-pass
// state; every Plan call starts from scratch.
type Planner struct {
	target   target.Target
	reporter diag.Reporter
	cache    Cache
	digest   string
}

// Option configures a Planner.
type Option func(*Planner)

// WithReporter routes planning diagnostics to r.
func WithReporter(r diag.Reporter) Option {
	return func(p *Planner) { p.reporter = r }
}

// WithCache memoises plans in c. digest identifies the interface
// description the plans derive from.
func WithCache(c Cache, digest string) Option {
	return func(p *Planner) {
		p.cache = c
		p.digest = digest
	}
}

// NewPlanner builds a planner for t.
func NewPlanner(t target.Target, opts ...Option) *Planner {
	p := &Planner{target: t, reporter: diag.NopReporter{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Target returns the size model the planner uses.
func (p *Planner) Target() target.Target { return p.target }

// Plan lays out op in direction dir for the given shape. iface is the
// interface whose operations share the receive buffer; it may be nil.
func (p *Planner) Plan(iface *idl.Interface, op *idl.Operation, dir idl.Direction, shape Shape) (*Layout, error) {
	key := Key{Digest: p.digest, Target: p.target, Operation: op.Name, Dir: dir, Shape: shape}
	if iface != nil {
		key.Interface = iface.Name
	}
	if p.cache != nil {
		if l, ok := p.cache.Get(key); ok {
			p.replayWarnings(op, l)
			return l, nil
		}
	}
	l, err := p.plan(iface, op, dir, shape)
	if err != nil {
		p.report(op, err)
		return nil, err
	}
	if p.cache != nil {
		p.cache.Put(key, l)
	}
	return l, nil
}

// PlanInterface plans every operation of iface, base operations first.
func (p *Planner) PlanInterface(iface *idl.Interface, dir idl.Direction, shape Shape) ([]*Layout, error) {
	ops := iface.AllOperations()
	out := make([]*Layout, 0, len(ops))
	var errs []error
	for _, op := range ops {
		l, err := p.Plan(iface, op, dir, shape)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, l)
	}
	return out, errors.Join(errs...)
}

func (p *Planner) report(op *idl.Operation, err error) {
	var le *Error
	if !errors.As(err, &le) {
		diag.ReportError(p.reporter, diag.LayUnsupported, op.Loc, err.Error()).Emit()
		return
	}
	code := diag.LayUnsupported
	switch le.Kind {
	case ErrOverflow:
		code = diag.LayOverflow
	case ErrMissingElement:
		code = diag.LayMissingElement
	}
	diag.ReportError(p.reporter, code, op.Loc, le.Error()).Emit()
}

func (p *Planner) plan(iface *idl.Interface, op *idl.Operation, dir idl.Direction, shape Shape) (*Layout, error) {
	t := p.target
	w := t.WordSize
	sz := newSizer(t)
	l := &Layout{
		Operation:  op.Name,
		Dir:        dir,
		Shape:      shape,
		Profile:    t.Profile,
		WordSize:   w,
		DopeWords:  t.DopeWords,
		ShortWords: t.ShortWords,
	}
	if iface != nil {
		l.Interface = iface.Name
	}
	active := op.Active(dir)

	// flexpages
	own, runtime, err := flexpageCount(op, dir)
	if err != nil {
		return nil, err
	}
	if own > 0 {
		fam, err := FlexpageFamily(iface, op, dir)
		if err != nil {
			return nil, err
		}
		l.Flexpages = FlexpageRegion{
			Own:       own,
			Max:       fam.Max,
			Delimited: fam.Varies || runtime,
			Runtime:   runtime,
		}
		idx := 0
		fpBytes := t.FlexpageWords * w
		for _, prm := range active {
			if Classify(prm) != ClassFlexpage {
				continue
			}
			n := Elements(prm)
			if IsVariable(prm) {
				n, _ = MaxElements(prm, 1, 0)
			}
			l.Flexpages.Slots = append(l.Flexpages.Slots, Slot{
				Name:     prm.Name(),
				Class:    ClassFlexpage,
				Offset:   idx * fpBytes,
				Size:     n * fpBytes,
				Align:    w,
				Count:    n,
				ElemSize: fpBytes,
				Index:    idx,
				Bounded:  true,
			})
			idx += n
			if IsVariable(prm) && idx != own {
				return nil, &Error{Kind: ErrUnsupported, Operation: op.Name, Element: prm.Name(), Detail: "variable flexpage array must be the last flexpage"}
			}
		}
	}
	cursor := l.Flexpages.Bytes(w)

	// header word
	switch {
	case dir == idl.In && !op.Has(attr.NoOpcode):
		l.Header = &Slot{Name: OpcodeSlot, Class: ClassHeader, Offset: cursor, Size: w, Align: w, Count: 1, ElemSize: w}
		cursor += w
	case dir == idl.Out && !op.Has(attr.NoExceptions) && !op.IsSendOnly():
		l.Header = &Slot{Name: ExceptionSlot, Class: ClassHeader, Size: w, Align: w, Count: 1, ElemSize: w}
		if l.HasFlexpages() {
			l.HeaderShared = true
			l.Header.Offset = 0
		} else {
			l.Header.Offset = cursor
			cursor += w
		}
	}

	// fixed parameters in declaration order
	var variable, strings []*idl.Parameter
	for _, prm := range active {
		switch Classify(prm) {
		case ClassFlexpage:
			continue
		case ClassString:
			strings = append(strings, prm)
			continue
		case ClassVariable:
			variable = append(variable, prm)
			continue
		}
		elem, err := sz.layoutOf(prm.Type)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", op.Name, prm.Name(), err)
		}
		n := Elements(prm)
		stride := roundUp(elem.Size, elem.Align)
		align := min(max(elem.Align, 1), w)
		cursor = roundUp(cursor, align)
		l.Fixed = append(l.Fixed, Slot{
			Name:     prm.Name(),
			Class:    ClassFixed,
			Offset:   cursor,
			Size:     stride * n,
			Align:    align,
			Count:    n,
			ElemSize: stride,
			Bounded:  true,
		})
		cursor += stride * n
	}
	l.FixedBytes = roundUp(cursor, w)

	// variable region
	for _, prm := range variable {
		elem, err := sz.layoutOf(prm.Type)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", op.Name, prm.Name(), err)
		}
		stride := roundUp(max(elem.Size, 1), elem.Align)
		n, bounded := MaxElements(prm, stride, t.DefaultStringMax)
		if !bounded {
			p.warnNoMax(prm, n*stride)
		}
		l.Variable = append(l.Variable, Slot{
			Name:     prm.Name(),
			Class:    ClassVariable,
			Offset:   -1,
			Size:     w + roundUp(n*stride, w),
			Align:    w,
			Count:    n,
			ElemSize: stride,
			Bounded:  bounded,
		})
		l.VariableBytes += w + roundUp(n*stride, w)
	}
	l.VariableSized = len(l.Variable) > 0
	l.Dynamic = l.VariableSized || shape.ServerSide()

	// indirect strings
	for k, prm := range strings {
		elem, err := sz.layoutOf(prm.Type)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", op.Name, prm.Name(), err)
		}
		stride := roundUp(max(elem.Size, 1), elem.Align)
		n, bounded := StringElements(prm, stride, t.DefaultStringMax)
		if !bounded {
			p.warnNoMax(prm, n*stride)
		}
		off := -1
		if !l.Dynamic {
			off = k * t.DopeWords * w
		}
		l.Strings = append(l.Strings, Slot{
			Name:     prm.Name(),
			Class:    ClassString,
			Offset:   off,
			Size:     t.DopeWords * w,
			Align:    w,
			Count:    n * stride,
			ElemSize: stride,
			Index:    k,
			Bounded:  bounded,
		})
	}

	if words := l.MaxWords(); words > t.MaxDwords {
		return nil, &Error{Kind: ErrOverflow, Operation: op.Name, Element: dir.String() + " dwords", Size: words, Limit: t.MaxDwords}
	}
	if n := len(l.Strings); n > t.MaxStrings {
		return nil, &Error{Kind: ErrOverflow, Operation: op.Name, Element: dir.String() + " strings", Size: n, Limit: t.MaxStrings}
	}
	return l, nil
}

// replayWarnings reports the assumed sizes of a cached plan again.
func (p *Planner) replayWarnings(op *idl.Operation, l *Layout) {
	for _, group := range [][]Slot{l.Variable, l.Strings} {
		for _, s := range group {
			if s.Bounded {
				continue
			}
			prm := op.Param(s.Name)
			if prm == nil {
				continue
			}
			assumed := s.Count
			if s.Class == ClassVariable {
				assumed = s.Count * s.ElemSize
			}
			p.warnNoMax(prm, assumed)
		}
	}
}

func (p *Planner) warnNoMax(prm *idl.Parameter, assumed int) {
	diag.ReportWarning(p.reporter, diag.LayNoMaxSize, prm.Loc,
		fmt.Sprintf("%s has no max_is or constant bound, assuming %d bytes", prm.Name(), assumed)).Emit()
}
