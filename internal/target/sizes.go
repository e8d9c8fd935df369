package target

import "fmt"

const (
	// msgdope field widths on v2-era kernels
	dopeDwordBits  = 19
	dopeStringBits = 5

	MaxDopeDwords  = 1<<dopeDwordBits - 1
	MaxDopeStrings = 1<<dopeStringBits - 1

	defaultMaxDwords  = 1024
	defaultStringMax  = 1024
	flexpageWords     = 2
	strDopeWords      = 4 // snd_size, snd_str, rcv_size, rcv_str
	bufferHeaderWords = 3 // rcv fpage, size dope, send dope
	shortWordsV2      = 2
	shortWordsX0      = 3
	wordSizeIA32ARM   = 4
	wordSizeAMD64     = 8
	threadIDBytesV2   = 8
)

// Target carries the size constants of one profile.
type Target struct {
	Profile

	WordSize      int // bytes per machine word
	ShortWords    int // register budget of a short transfer
	FlexpageWords int // words per flexpage (snd_base, fpage)
	DopeWords     int // words per indirect string descriptor
	HeaderWords   int // words preceding the dword region of a message buffer
	ThreadIDBytes int

	MaxDwords        int // capacity of the dword region
	MaxStrings       int // capacity of the string region
	DefaultStringMax int // bytes assumed for unbounded variable data
}

// New returns the default size model for p.
func New(p Profile) (Target, error) {
	if !p.Valid() {
		return Target{}, fmt.Errorf("invalid target profile %v", p)
	}
	t := Target{
		Profile:          p,
		FlexpageWords:    flexpageWords,
		DopeWords:        strDopeWords,
		HeaderWords:      bufferHeaderWords,
		MaxDwords:        defaultMaxDwords,
		MaxStrings:       MaxDopeStrings,
		DefaultStringMax: defaultStringMax,
	}
	switch p.Arch {
	case ArchAMD64:
		t.WordSize = wordSizeAMD64
	default:
		t.WordSize = wordSizeIA32ARM
	}
	switch p.Family {
	case FamilyV2:
		t.ShortWords = shortWordsV2
		t.ThreadIDBytes = threadIDBytesV2
	case FamilyX0:
		t.ShortWords = shortWordsX0
		t.ThreadIDBytes = t.WordSize
	}
	return t, nil
}

// MustNew is New for profiles known to be valid.
func MustNew(p Profile) Target {
	t, err := New(p)
	if err != nil {
		panic(err)
	}
	return t
}

// CapacityBytes is the transfer capacity of the dword region.
func (t Target) CapacityBytes() int {
	return t.MaxDwords * t.WordSize
}

// Words rounds a byte count up to whole words.
func (t Target) Words(bytes int) int {
	return (bytes + t.WordSize - 1) / t.WordSize
}

// AlignWord rounds a byte count up to a word boundary.
func (t Target) AlignWord(bytes int) int {
	return t.Words(bytes) * t.WordSize
}

// Validate checks overrides against the message dope limits.
func (t Target) Validate() error {
	switch {
	case t.WordSize <= 0:
		return fmt.Errorf("%v: word size must be positive", t.Profile)
	case t.MaxDwords < t.ShortWords || t.MaxDwords > MaxDopeDwords:
		return fmt.Errorf("%v: max dwords %d outside [%d, %d]", t.Profile, t.MaxDwords, t.ShortWords, MaxDopeDwords)
	case t.MaxStrings < 0 || t.MaxStrings > MaxDopeStrings:
		return fmt.Errorf("%v: max strings %d outside [0, %d]", t.Profile, t.MaxStrings, MaxDopeStrings)
	case t.DefaultStringMax <= 0:
		return fmt.Errorf("%v: default string max must be positive", t.Profile)
	}
	return nil
}
