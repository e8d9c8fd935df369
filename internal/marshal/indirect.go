package marshal

import (
	"fmt"

	"l4idl/internal/attr"
	"l4idl/internal/idl"
	"l4idl/internal/layout"
)

// descriptor returns the string descriptor for slot s. Static layouts use the
// _strings table, or its word in a dynamic buffer; dynamic layouts address
// the descriptor through the cursor, which the first string moves to the
// table start.
func (c *Context) descriptor(s layout.Slot) string {
	switch {
	case c.layout.Dynamic:
		return fmt.Sprintf("(*(l4_strdope_t*)(%s))", c.addr(c.offVar()))
	case c.opts.Buffer.Dynamic:
		return fmt.Sprintf("(*(l4_strdope_t*)(&%s))", c.word(c.opts.Buffer.StringSlotWord(s.Index)))
	}
	return fmt.Sprintf("%s_strings[%d]", c.buf(), s.Index)
}

// descriptorOffset is the byte position of the descriptor of s in the dword
// region, -1 when it depends on runtime sizes or the buffer is unknown.
func (c *Context) descriptorOffset(s layout.Slot) int {
	if !s.Static() || c.opts.Buffer.Dwords == 0 {
		return -1
	}
	return c.opts.Buffer.StringSlotWord(s.Index) * c.layout.WordSize
}

// indirect transfers a (pointer, size) pair for one indirect string.
func (c *Context) indirect(s layout.Slot, last bool) error {
	p, err := c.param(s.Name)
	if err != nil {
		return err
	}
	return c.with(p, func() error {
		dyn := c.layout.Dynamic
		off := ""
		if dyn {
			off = c.offVar()
		}
		if dyn && !c.saved {
			save := c.local("off_save", "unsigned long")
			c.block.Linef("%s = %s;", save, off)
			c.block.Linef("%s = %s_size.md.dwords * sizeof(l4_umword_t);", off, c.buf())
			c.saved = true
		}
		desc := c.descriptor(s)
		ptr := c.path.Render(true)
		c.block.Comment("%s", p.Name())
		c.record(layout.ClassString, c.descriptorOffset(s), c.path.Render(false))
		if c.mode == Pack {
			size, err := c.stringSize(p, s, ptr)
			if err != nil {
				return err
			}
			c.block.Linef("%s.snd_str = (l4_umword_t)(%s);", desc, ptr)
			c.block.Linef("%s.snd_size = %s;", desc, size)
		} else if err := c.unpackString(p, s, desc, ptr); err != nil {
			return err
		}
		c.strings++
		if dyn {
			c.block.Linef("%s += sizeof(l4_strdope_t);", off)
			if last {
				c.block.Linef("%s = %s;", off, c.names.Local("off_save"))
				c.saved = false
			}
		}
		return nil
	})
}

// unpackString hands a received string to its parameter. Server variables
// and double pointers are pointed at the receive window. A client buffer
// behind a single pointer gets a copy and the window is freed; a
// prealloc_client window is the caller's buffer already.
func (c *Context) unpackString(p *idl.Parameter, s layout.Slot, desc, ptr string) error {
	if c.side == Client && p.Has(attr.PreallocClient) {
		return nil
	}
	if c.side == Server || p.Decl.Stars != 1 {
		c.block.Linef("%s = (%s*)(%s.rcv_str);", ptr, elemType(p), desc)
		return nil
	}
	src := fmt.Sprintf("(%s*)(%s.rcv_str)", elemType(p), desc)
	size, err := c.stringSize(p, s, src)
	if err != nil {
		return err
	}
	c.block.Linef("memcpy(%s, %s, %s);", ptr, src, size)
	c.block.Linef("%sfree((void*)(%s.rcv_str));", c.env(), desc)
	return nil
}

// stringSize returns the byte count sent for an indirect string: the linked
// size or length parameter, else strlen+1 for strings, else the declared
// maximum. A constant max_is caps computed sizes.
func (c *Context) stringSize(p *idl.Parameter, s layout.Slot, ptr string) (string, error) {
	n, err := c.lengthExpr(p, ptr)
	if err != nil {
		return "", err
	}
	if n == "" {
		return fmt.Sprint(s.Count), nil
	}
	if !p.Has(attr.String) && s.ElemSize > 1 {
		n = fmt.Sprintf("(%s) * sizeof(%s)", n, elemType(p))
	}
	limit, ok := c.maxIs(p)
	if !ok {
		return n, nil
	}
	limit *= max(s.ElemSize, 1)
	size := c.local("size", "unsigned long")
	c.block.Linef("%s = %s;", size, n)
	c.block.Open("if (%s > %d) {", size, limit)
	c.block.Linef("%s = %d;", size, limit)
	c.block.Close()
	return size, nil
}
