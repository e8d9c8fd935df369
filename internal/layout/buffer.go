package layout

import "l4idl/internal/target"

// Buffer is the message buffer shape shared by a set of layouts: both
// directions of one client call, or every operation a server receives.
type Buffer struct {
	WordSize    int   `msgpack:"word_size"`
	HeaderWords int   `msgpack:"header_words"`
	DopeWords   int   `msgpack:"dope_words"`
	Dwords      int   `msgpack:"dwords"`
	Strings     int   `msgpack:"strings"`
	StringMax   []int `msgpack:"string_max"` // receive window per descriptor index
	Flexpages   int   `msgpack:"flexpages"`  // descriptors reserved, delimiter included
	Variable    bool  `msgpack:"variable"`
	Dynamic     bool  `msgpack:"dynamic"`
}

// NewBuffer merges layouts into one buffer. The dword capacity never drops
// below the register budget so a short reply always fits.
func NewBuffer(t target.Target, layouts ...*Layout) Buffer {
	b := Buffer{
		WordSize:    t.WordSize,
		HeaderWords: t.HeaderWords,
		DopeWords:   t.DopeWords,
		Dwords:      t.ShortWords,
	}
	for _, l := range layouts {
		if l == nil {
			continue
		}
		b.Dwords = max(b.Dwords, l.MaxWords())
		b.Strings = max(b.Strings, len(l.Strings))
		b.Flexpages = max(b.Flexpages, l.Flexpages.Reserved())
		b.Variable = b.Variable || l.VariableSized
		b.Dynamic = b.Dynamic || l.Dynamic
		for _, s := range l.Strings {
			for len(b.StringMax) <= s.Index {
				b.StringMax = append(b.StringMax, 0)
			}
			b.StringMax[s.Index] = max(b.StringMax[s.Index], s.Count)
		}
	}
	return b
}

// WordSlots is the length of the _word array. Dynamic buffers keep the
// descriptor table inside it, after the runtime dword count.
func (b Buffer) WordSlots() int {
	if b.Dynamic {
		return b.Dwords + b.Strings*b.DopeWords
	}
	return b.Dwords
}

// StringSlotWord is the word index of descriptor k counted from the start of
// the dword region. The table follows the dword capacity; dynamic code applies
// the same formula to the runtime dword count.
func (b Buffer) StringSlotWord(k int) int { return b.Dwords + k*b.DopeWords }

// Bytes is the in-memory size of the buffer.
func (b Buffer) Bytes() int {
	return (b.HeaderWords + b.Dwords + b.Strings*b.DopeWords) * b.WordSize
}
