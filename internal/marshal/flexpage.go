package marshal

import (
	"fmt"

	"l4idl/internal/diag"
	"l4idl/internal/idl"
	"l4idl/internal/layout"
)

// A flexpage travels as two plain words: the send base and the page
// descriptor.
var (
	fpBase = &idl.Parameter{Type: idl.MustBuiltin("l4_umword_t"), Decl: idl.Declarator{Name: "snd_base"}}
	fpDesc = &idl.Parameter{Type: idl.MustBuiltin("l4_umword_t"), Decl: idl.Declarator{Name: "fpage"}}
	fpRaw  = &idl.Parameter{Type: idl.MustBuiltin("l4_umword_t"), Decl: idl.Declarator{Name: "raw"}}
)

func (c *Context) flexpageRegion() error {
	fr := c.layout.Flexpages
	if fr.Max == 0 {
		return nil
	}
	for _, s := range fr.Slots {
		if err := c.flexpage(s); err != nil {
			return err
		}
	}
	if c.flexpages != fr.Own {
		err := &Error{Code: diag.MarCounterMisuse, Operation: c.op.Name, Msg: fmt.Sprintf("flexpage counter at %d, layout expects %d", c.flexpages, fr.Own)}
		c.report(err.Code, nil, err.Error())
		return err
	}
	c.result.Flexpages = c.flexpages
	return nil
}

// flexpage transfers one flexpage parameter. The counter starts at zero for
// every pass; once it reaches the operation's own count the remaining
// reserved slots and the delimiter are cleared.
func (c *Context) flexpage(s layout.Slot) error {
	p, err := c.param(s.Name)
	if err != nil {
		return err
	}
	c.block.Comment("%s", p.Name())
	var path string
	if err := c.with(p, func() error { path = c.path.Render(false); return nil }); err != nil {
		return err
	}
	c.record(layout.ClassFlexpage, s.Offset, path)
	switch {
	case layout.IsVariable(p):
		return c.flexpageArray(p, s)
	case p.Decl.IsArray():
		for j := 0; j < s.Count; j++ {
			if err := c.with(p, func() error { return c.flexpageWords(s.Index+j, "") }, fmt.Sprint(j)); err != nil {
				return err
			}
			c.flexpages++
		}
	default:
		if err := c.with(p, func() error { return c.flexpageWords(s.Index, "") }); err != nil {
			return err
		}
		c.flexpages++
	}
	if c.mode == Pack && c.flexpages == c.layout.Flexpages.Own {
		c.clearTail(fmt.Sprint(c.flexpages))
	}
	return nil
}

// flexpageWords copies the two words of the flexpage at the top of the path
// into descriptor slot idx (plus the runtime index variable, if any).
func (c *Context) flexpageWords(idx int, runtime string) error {
	slot := func(k int) string {
		if runtime == "" {
			return c.word(2*idx + k)
		}
		return fmt.Sprintf("%s_word[2 * (%d + %s) + %d]", c.buf(), idx, runtime, k)
	}
	if err := c.with(fpBase, func() error {
		c.assign(slot(0), c.path.Render(false), "l4_umword_t")
		return nil
	}); err != nil {
		return err
	}
	return c.with(fpDesc, func() error {
		return c.with(fpRaw, func() error {
			c.assign(slot(1), c.path.Render(false), "l4_umword_t")
			return nil
		})
	})
}

// flexpageArray handles a flexpage array whose length is a runtime value.
// It is always the last flexpage of the message.
func (c *Context) flexpageArray(p *idl.Parameter, s layout.Slot) error {
	i := c.local("i", "int")
	if c.mode == Pack {
		n, err := c.lengthExpr(p, p.Name())
		if err != nil {
			return err
		}
		if n == "" {
			n = fmt.Sprint(s.Count)
		}
		c.block.Open("for (%s = 0; %s < (%s) && %s < %d; %s++) {", i, i, n, i, s.Count, i)
	} else {
		// received descriptors end at the first zero page
		c.block.Open("for (%s = 0; %s < %d && %s_word[2 * (%d + %s) + 1] != 0; %s++) {", i, i, s.Count, c.buf(), s.Index, i, i)
	}
	if err := c.with(p, func() error { return c.flexpageWords(s.Index, i) }, i); err != nil {
		return err
	}
	c.block.Close()
	c.flexpages += s.Count
	if c.mode == Pack && c.flexpages == c.layout.Flexpages.Own {
		c.clearTail(fmt.Sprintf("%d + %s", s.Index, i))
	}
	return nil
}

// clearTail zeroes descriptors from index from up to the delimiter. Without
// a delimiter the region is exactly filled and nothing is written.
func (c *Context) clearTail(from string) {
	fr := c.layout.Flexpages
	if !fr.Delimited {
		return
	}
	if fr.Runtime {
		i := c.local("i", "int")
		c.block.Comment("clear unused flexpages and the delimiter")
		c.block.Open("for (%s = %s; %s <= %d; %s++) {", i, from, i, fr.Max, i)
		c.block.Linef("%s_word[2 * %s] = 0;", c.buf(), i)
		c.block.Linef("%s_word[2 * %s + 1] = 0;", c.buf(), i)
		c.block.Close()
		return
	}
	c.block.Comment("delimiter")
	for k := c.flexpages; k <= fr.Max; k++ {
		c.block.Linef("%s = 0;", c.word(2*k))
		c.block.Linef("%s = 0;", c.word(2*k+1))
	}
}
