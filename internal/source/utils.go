package source

import (
	"bytes"
	"fmt"
	"path/filepath"
	"slices"
)

// normalizeCRLF turns every \r\n into \n. A lone \r is kept. The flag
// reports whether anything was replaced.
func normalizeCRLF(content []byte) ([]byte, bool) {
	if !slices.Contains(content, '\r') {
		return content, false
	}
	out := make([]byte, 0, len(content))
	changed := false
	for i := 0; i < len(content); i++ {
		if content[i] == '\r' && i+1 < len(content) && content[i+1] == '\n' {
			changed = true
			continue
		}
		out = append(out, content[i])
	}
	return out, changed
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func removeBOM(content []byte) ([]byte, bool) {
	if bytes.HasPrefix(content, utf8BOM) {
		return content[len(utf8BOM):], true
	}
	return content, false
}

// normalizePath gives descriptions the same spelling on every platform.
func normalizePath(p string) string {
	return filepath.ToSlash(filepath.Clean(p))
}

// Loc points at an element of an interface description, for example
// "fs.read.buf" inside fs.yaml.
type Loc struct {
	File    string
	Element string
}

func (l Loc) String() string {
	switch {
	case l.File == "" && l.Element == "":
		return "<unknown>"
	case l.File == "":
		return l.Element
	case l.Element == "":
		return l.File
	}
	return fmt.Sprintf("%s: %s", l.File, l.Element)
}

// Child returns a location one element deeper.
func (l Loc) Child(name string) Loc {
	if l.Element == "" {
		return Loc{File: l.File, Element: name}
	}
	return Loc{File: l.File, Element: l.Element + "." + name}
}
