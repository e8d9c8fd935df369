package marshal

import (
	"fmt"

	"l4idl/internal/attr"
	"l4idl/internal/cgen"
	"l4idl/internal/declpath"
	"l4idl/internal/idl"
	"l4idl/internal/layout"
)

// SizeDope records the capacity of buf in its size dope. Dynamic string
// descriptors are addressed through it, so it is written before any pass
// that places them.
func SizeDope(buf layout.Buffer, opts Options) *cgen.Block {
	b := &cgen.Block{}
	b.Linef("%s_size = L4_IPC_DOPE(%d, %d);", opts.access(), buf.Dwords, buf.Strings)
	return b
}

// ReceiveWindows prepares buf for a receive: the size dope unless
// opts.SizeSet, the flexpage window and one receive window per indirect
// string. recv and op describe the message the caller expects; both are nil
// for a server receiving any operation, in which case every window is
// allocated at its maximum.
func ReceiveWindows(buf layout.Buffer, recv *layout.Layout, op *idl.Operation, opts Options) *cgen.Block {
	b := &cgen.Block{}
	acc := opts.access()
	env := opts.names().Env() + "->"

	if !opts.SizeSet {
		b.Append(SizeDope(buf, opts))
	}
	fpages := buf.Flexpages > 0
	if recv != nil {
		fpages = recv.HasFlexpages()
	}
	if fpages {
		b.Linef("%s_rcv_fpage = %srcv_fpage;", acc, env)
	} else {
		b.Linef("%s_rcv_fpage.raw = 0;", acc)
	}

	count := buf.Strings
	if recv != nil {
		count = len(recv.Strings)
	}
	for k := 0; k < count; k++ {
		desc := fmt.Sprintf("%s_strings[%d]", acc, k)
		if buf.Dynamic {
			desc = fmt.Sprintf("(*(l4_strdope_t*)(&%s_word[%s_size.md.dwords + %d]))", acc, acc, k*buf.DopeWords)
		}
		size := 0
		if k < len(buf.StringMax) {
			size = buf.StringMax[k]
		}
		ptr := fmt.Sprintf("%smalloc(%d)", env, size)
		sizeExpr := fmt.Sprint(size)
		if p, s, ok := preallocated(recv, op, k); ok {
			ptr = render(p, true)
			if a, ok := p.Attr(attr.SizeIs); ok && !a.IsConst && op.Param(a.Ref) != nil {
				sizeExpr = fmt.Sprintf("(%s) * sizeof(%s)", render(op.Param(a.Ref), false), elemType(p))
			} else {
				sizeExpr = fmt.Sprint(s.Count)
			}
		}
		b.Linef("%s.rcv_str = (l4_umword_t)(%s);", desc, ptr)
		b.Linef("%s.rcv_size = %s;", desc, sizeExpr)
	}
	return b
}

func preallocated(recv *layout.Layout, op *idl.Operation, k int) (*idl.Parameter, layout.Slot, bool) {
	if recv == nil || op == nil || k >= len(recv.Strings) {
		return nil, layout.Slot{}, false
	}
	s := recv.Strings[k]
	p := op.Param(s.Name)
	if p == nil || !p.Has(attr.PreallocClient) {
		return nil, layout.Slot{}, false
	}
	return p, s, true
}

// render returns the value or address form of a top-level parameter.
func render(p *idl.Parameter, asPointer bool) string {
	path := declpath.New(0)
	if err := path.Push(p); err != nil {
		return p.Name()
	}
	return path.Render(asPointer)
}
