package attr

import (
	"fmt"
	"strconv"
	"strings"
)

// Attribute is a single attribute occurrence. Arguments are either a
// reference to another declarator (Ref) or an integer constant (Value).
type Attribute struct {
	Kind    Kind
	Ref     string
	Value   int
	IsConst bool
}

func (a Attribute) String() string {
	if !a.Kind.TakesArgument() {
		return a.Kind.String()
	}
	if a.IsConst {
		return fmt.Sprintf("%s(%d)", a.Kind, a.Value)
	}
	return fmt.Sprintf("%s(%s)", a.Kind, a.Ref)
}

// Set is an ordered attribute list. Treat it as immutable: With returns a copy.
type Set []Attribute

// Has reports whether an attribute of kind k is present.
func (s Set) Has(k Kind) bool {
	for i := range s {
		if s[i].Kind == k {
			return true
		}
	}
	return false
}

// Get returns the first attribute of kind k.
func (s Set) Get(k Kind) (Attribute, bool) {
	for i := range s {
		if s[i].Kind == k {
			return s[i], true
		}
	}
	return Attribute{}, false
}

// With returns a copy of s with a appended, replacing an earlier attribute
// of the same kind.
func (s Set) With(a Attribute) Set {
	out := make(Set, 0, len(s)+1)
	for _, x := range s {
		if x.Kind != a.Kind {
			out = append(out, x)
		}
	}
	return append(out, a)
}

func (s Set) String() string {
	parts := make([]string, 0, len(s))
	for _, a := range s {
		parts = append(parts, a.String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Parse reads one attribute in IDL notation, e.g. "size_is(len)" or "max_is(512)".
func Parse(text string) (Attribute, error) {
	text = strings.TrimSpace(text)
	name, arg, hasArg := text, "", false
	if i := strings.IndexByte(text, '('); i >= 0 {
		if !strings.HasSuffix(text, ")") {
			return Attribute{}, fmt.Errorf("attribute %q: missing ')'", text)
		}
		name = strings.TrimSpace(text[:i])
		arg = strings.TrimSpace(text[i+1 : len(text)-1])
		hasArg = true
	}
	k, ok := Lookup(name)
	if !ok {
		return Attribute{}, fmt.Errorf("unknown attribute %q", name)
	}
	if k.TakesArgument() != hasArg {
		if hasArg {
			return Attribute{}, fmt.Errorf("attribute %s takes no argument", k)
		}
		return Attribute{}, fmt.Errorf("attribute %s requires an argument", k)
	}
	a := Attribute{Kind: k}
	if !hasArg {
		return a, nil
	}
	if arg == "" {
		return Attribute{}, fmt.Errorf("attribute %s: empty argument", k)
	}
	if v, err := strconv.ParseInt(arg, 0, 64); err == nil {
		a.Value = int(v)
		a.IsConst = true
		return a, nil
	}
	a.Ref = arg
	return a, nil
}

// ParseAll parses a list of attributes, stopping at the first error.
func ParseAll(texts []string) (Set, error) {
	out := make(Set, 0, len(texts))
	for _, t := range texts {
		a, err := Parse(t)
		if err != nil {
			return nil, err
		}
		out = out.With(a)
	}
	return out, nil
}
