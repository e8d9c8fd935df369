// Package testkit holds structural checks shared by the generator's tests.
package testkit

import (
	"errors"
	"fmt"
	"sort"

	"fortio.org/safecast"

	"l4idl/internal/layout"
	"l4idl/internal/target"
)

type span struct {
	name       string
	start, end uint32
}

// CheckLayout verifies a planned layout:
// 1) flexpage slots lie inside the reserved region, the delimiter after them
// 2) the header word and every fixed slot are static, aligned, disjoint and
// inside FixedBytes; a shared exception word sits at offset 0
// 3) variable slots have runtime offsets and a dynamic layout
// 4) string descriptors are numbered 0..n-1 and fit the message dope
func CheckLayout(l *layout.Layout) error {
	if l == nil {
		return errors.New("nil layout")
	}
	if l.WordSize <= 0 || l.FixedBytes%l.WordSize != 0 {
		return fmt.Errorf("fixed region %d not word aligned (word %d)", l.FixedBytes, l.WordSize)
	}

	// 1) flexpage region
	fp := l.Flexpages
	region := uint32(0)
	if fp.Max > 0 {
		if fp.Own > fp.Max {
			return fmt.Errorf("own flexpages %d exceed family max %d", fp.Own, fp.Max)
		}
		b, err := safecast.Conv[uint32](fp.Bytes(l.WordSize))
		if err != nil {
			return fmt.Errorf("flexpage region: %w", err)
		}
		region = b
		for _, s := range fp.Slots {
			end := s.Offset + s.Size
			if s.Offset < 0 || end > fp.DelimiterOffset(l.WordSize) {
				return fmt.Errorf("flexpage %s [%d,%d) outside the region before the delimiter", s.Name, s.Offset, end)
			}
		}
	}

	// 2) static slots
	var spans []span
	add := func(s layout.Slot) error {
		start, err := safecast.Conv[uint32](s.Offset)
		if err != nil {
			return fmt.Errorf("slot %s has no static offset: %w", s.Name, err)
		}
		if s.Align > 0 && s.Offset%s.Align != 0 {
			return fmt.Errorf("slot %s at %d not aligned to %d", s.Name, s.Offset, s.Align)
		}
		end := start + uint32(max(s.Size, 0))
		if int(end) > l.FixedBytes {
			return fmt.Errorf("slot %s ends at %d past fixed region %d", s.Name, end, l.FixedBytes)
		}
		spans = append(spans, span{s.Name, start, end})
		return nil
	}
	if h := l.Header; h != nil {
		if l.HeaderShared {
			if h.Offset != 0 || fp.Max == 0 {
				return fmt.Errorf("shared header at %d without flexpages", h.Offset)
			}
		} else {
			if err := add(*h); err != nil {
				return err
			}
			if uint32(h.Offset) < region {
				return fmt.Errorf("header at %d inside the flexpage region", h.Offset)
			}
		}
	}
	for _, s := range l.Fixed {
		if err := add(s); err != nil {
			return err
		}
		if uint32(s.Offset) < region {
			return fmt.Errorf("slot %s at %d inside the flexpage region", s.Name, s.Offset)
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	for i := 1; i < len(spans); i++ {
		if spans[i].start < spans[i-1].end {
			return fmt.Errorf("slots %s and %s overlap", spans[i-1].name, spans[i].name)
		}
	}

	// 3) variable region
	for _, s := range l.Variable {
		if s.Static() {
			return fmt.Errorf("variable slot %s has a static offset", s.Name)
		}
		if !l.Dynamic {
			return fmt.Errorf("variable slot %s in a static layout", s.Name)
		}
	}

	// 4) string descriptors
	if len(l.Strings) > target.MaxDopeStrings {
		return fmt.Errorf("%d strings exceed the dope limit %d", len(l.Strings), target.MaxDopeStrings)
	}
	for k, s := range l.Strings {
		if s.Index != k {
			return fmt.Errorf("string %s has index %d, want %d", s.Name, s.Index, k)
		}
		if l.Dynamic == s.Static() {
			return fmt.Errorf("string %s: static offset %v in dynamic layout %v", s.Name, s.Static(), l.Dynamic)
		}
	}
	if _, err := safecast.Conv[uint16](l.MaxWords()); err != nil || l.MaxWords() > target.MaxDopeDwords {
		return fmt.Errorf("%d dwords exceed the dope limit", l.MaxWords())
	}
	return nil
}

// CheckBuffer verifies that buf is large enough for every layout merged
// into it.
func CheckBuffer(buf layout.Buffer, layouts ...*layout.Layout) error {
	for _, l := range layouts {
		if l == nil {
			continue
		}
		switch {
		case l.MaxWords() > buf.Dwords:
			return fmt.Errorf("%s %v: %d dwords, buffer has %d", l.Operation, l.Dir, l.MaxWords(), buf.Dwords)
		case len(l.Strings) > buf.Strings:
			return fmt.Errorf("%s %v: %d strings, buffer has %d", l.Operation, l.Dir, len(l.Strings), buf.Strings)
		case l.Flexpages.Reserved() > buf.Flexpages:
			return fmt.Errorf("%s %v: %d flexpage descriptors, buffer has %d", l.Operation, l.Dir, l.Flexpages.Reserved(), buf.Flexpages)
		case l.Dynamic && !buf.Dynamic:
			return fmt.Errorf("%s %v: dynamic layout in a static buffer", l.Operation, l.Dir)
		}
		for _, s := range l.Strings {
			if s.Index >= len(buf.StringMax) || buf.StringMax[s.Index] < s.Count {
				return fmt.Errorf("%s %v: receive window %d too small for %s", l.Operation, l.Dir, s.Index, s.Name)
			}
		}
	}
	return nil
}
