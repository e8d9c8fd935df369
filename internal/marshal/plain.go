package marshal

import (
	"fmt"

	"l4idl/internal/attr"
	"l4idl/internal/diag"
	"l4idl/internal/idl"
	"l4idl/internal/layout"
	"l4idl/internal/target"
)

func (c *Context) param(name string) (*idl.Parameter, error) {
	p := c.op.Param(name)
	if p == nil {
		err := &layout.Error{Kind: layout.ErrMissingElement, Operation: c.op.Name, Element: name}
		c.report(diag.LayMissingElement, nil, err.Error())
		return nil, err
	}
	return p, nil
}

// location returns the byte offset expression for a slot and advances the
// cursor in dynamic layouts.
func (c *Context) location(s layout.Slot) (static int, expr string) {
	if !c.layout.Dynamic {
		return s.Offset, fmt.Sprint(s.Offset)
	}
	off := c.offVar()
	if s.Offset >= 0 && s.Offset != c.cursor {
		if rem := c.cursor % s.Align; rem != 0 {
			c.block.Linef("%s = (%s + %d) & ~%d;", off, off, s.Align-1, s.Align-1)
		} else {
			c.block.Linef("%s += %d;", off, s.Offset-c.cursor)
		}
		c.cursor = s.Offset
	}
	return -1, off
}

func (c *Context) advance(n int) {
	if !c.layout.Dynamic {
		return
	}
	c.block.Linef("%s += %d;", c.offVar(), n)
	c.cursor += n
}

func (c *Context) lvalue(static int, expr, typ string) string {
	if static >= 0 {
		return c.staticAt(static, typ)
	}
	return c.at(expr, typ)
}

// fixed copies one fixed-size parameter.
func (c *Context) fixed(s layout.Slot) error {
	p, err := c.param(s.Name)
	if err != nil {
		return err
	}
	return c.with(p, func() error {
		static, off := c.location(s)
		c.block.Comment("%s", p.Name())
		c.record(layout.ClassFixed, s.Offset, c.path.Render(false))
		if err := c.copyValue(p, s.Offset, static, off); err != nil {
			return err
		}
		c.advance(s.Size)
		return nil
	})
}

// copyValue emits the transfer of the current path top, whose storage
// starts at byte offset base.
func (c *Context) copyValue(p *idl.Parameter, base, static int, off string) error {
	switch {
	case p.Decl.IsArray():
		return c.copyBytes(static, off, c.path.Render(true), fmt.Sprintf("%d", c.sizeOf(p)))
	case p.Type.Kind == idl.TypeStruct:
		return c.copyStruct(p, base, static, off)
	case p.Type.Kind == idl.TypeUnion:
		return c.copyBytes(static, off, c.path.Render(true), fmt.Sprintf("sizeof(%s)", p.Type.Name))
	}
	c.assign(c.lvalue(static, off, p.Type.Name), c.path.Render(false), p.Type.Name)
	return nil
}

func (c *Context) assign(wire, value, typ string) {
	if c.mode == Pack {
		c.block.Linef("%s = %s;", wire, value)
		return
	}
	c.block.Linef("%s = %s;", value, wire)
}

func (c *Context) copyBytes(static int, off, ptr, size string) error {
	where := c.addr(off)
	if static >= 0 {
		where = c.addr(fmt.Sprint(static))
	}
	if c.mode == Pack {
		c.block.Linef("memcpy(%s, %s, %s);", where, ptr, size)
	} else {
		c.block.Linef("memcpy(%s, %s, %s);", ptr, where, size)
	}
	return nil
}

// copyStruct transfers a struct member by member, descending through the
// declarator path.
func (c *Context) copyStruct(p *idl.Parameter, base, static int, off string) error {
	tl, err := layout.LayoutOf(c.target(), p.Type)
	if err != nil {
		return err
	}
	for i, m := range p.Type.Members {
		fieldOff := tl.FieldOffsets[i]
		mStatic, mOff := -1, off
		if static >= 0 {
			mStatic = static + fieldOff
		} else if fieldOff > 0 {
			mOff = fmt.Sprintf("%s + %d", off, fieldOff)
		}
		err := c.with(m, func() error {
			if m.Decl.Stars > 0 {
				c.assign(c.lvalue(mStatic, mOff, "l4_umword_t"), "(l4_umword_t)"+c.path.Render(false), "l4_umword_t")
				return nil
			}
			return c.copyValue(m, base+fieldOff, mStatic, mOff)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Context) target() target.Target {
	return target.MustNew(c.layout.Profile)
}

func (c *Context) sizeOf(p *idl.Parameter) int {
	tl, err := layout.LayoutOf(c.target(), p.Type)
	if err != nil {
		return 0
	}
	return tl.Size * layout.Elements(p)
}

// lengthExpr returns the element count of a variable parameter: length_is
// first, then size_is, then strlen+1 for strings.
func (c *Context) lengthExpr(p *idl.Parameter, ptr string) (string, error) {
	for _, k := range []attr.Kind{attr.LengthIs, attr.SizeIs} {
		a, ok := p.Attr(k)
		if !ok {
			continue
		}
		if a.IsConst {
			return fmt.Sprint(a.Value), nil
		}
		ref := c.op.Param(a.Ref)
		if ref == nil {
			err := &Error{Code: diag.MarNoSizeSource, Operation: c.op.Name, Element: p.Name(), Msg: fmt.Sprintf("%s refers to unknown parameter %q", k, a.Ref)}
			c.report(err.Code, p, err.Error())
			return "", err
		}
		return c.valueOf(ref), nil
	}
	if p.Has(attr.String) {
		return fmt.Sprintf("strlen(%s) + 1", ptr), nil
	}
	return "", nil
}

// valueOf renders the value expression of a top-level parameter.
func (c *Context) valueOf(p *idl.Parameter) string {
	return render(p, false)
}

func (c *Context) maxIs(p *idl.Parameter) (int, bool) {
	a, ok := p.Attr(attr.MaxIs)
	if !ok || !a.IsConst {
		return 0, false
	}
	return a.Value, true
}

// variable transfers a length word followed by the word-padded data.
func (c *Context) variable(s layout.Slot) error {
	p, err := c.param(s.Name)
	if err != nil {
		return err
	}
	return c.with(p, func() error {
		w := c.layout.WordSize
		_, off := c.location(s)
		if c.cursor >= 0 && c.cursor%w != 0 {
			c.block.Linef("%s = (%s + %d) & ~%d;", off, off, w-1, w-1)
		}
		c.cursor = -1 // word aligned, value known only at runtime
		ptr := c.path.Render(true)
		size := c.local("size", "unsigned long")
		elem := elemType(p)
		c.block.Comment("%s", p.Name())
		c.record(layout.ClassVariable, -1, c.path.Render(false))
		lenWord := c.at(off, "l4_umword_t")
		if c.mode == Pack {
			n, err := c.lengthExpr(p, ptr)
			if err != nil {
				return err
			}
			clamp := n != "" && s.Bounded
			if n == "" {
				n = fmt.Sprint(s.Count)
			}
			c.block.Linef("%s = %s;", size, n)
			if clamp {
				c.block.Open("if (%s > %d) {", size, s.Count)
				c.block.Linef("%s = %d;", size, s.Count)
				c.block.Close()
			}
			c.block.Linef("%s = %s;", lenWord, size)
		} else {
			c.block.Linef("%s = %s;", size, lenWord)
		}
		c.block.Linef("%s += %d;", off, w)
		bytes := fmt.Sprintf("%s * sizeof(%s)", size, elem)
		switch {
		case c.mode == Pack:
			c.block.Linef("memcpy(%s, %s, %s);", c.addr(off), ptr, bytes)
		case c.side == Server && p.Decl.Stars > 0:
			c.block.Linef("%s = (%s*)(%s);", ptr, elem, c.addr(off))
		default:
			c.block.Linef("memcpy(%s, %s, %s);", ptr, c.addr(off), bytes)
		}
		c.block.Linef("%s += (%s + %d) & ~%d;", off, bytes, w-1, w-1)
		return nil
	})
}

func elemType(p *idl.Parameter) string {
	if p.Type == nil {
		return "void"
	}
	return p.Type.Name
}
