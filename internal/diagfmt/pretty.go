package diagfmt

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"l4idl/internal/diag"
	"l4idl/internal/source"
)

// Pretty renders diagnostics for a terminal. bag is expected to be sorted.
// Each diagnostic prints as
//
//	<path>: <SEV> <CODE>: <message>
//	  --> <element>
//
// followed by its notes when ShowNotes is set. Messages wrap at Width.
func Pretty(w io.Writer, bag *diag.Bag, opts PrettyOpts) error {
	items := bag.Items()
	n := limit(len(items), opts.Max)
	p := newPalette(opts.Color)

	for _, d := range items[:n] {
		head := fmt.Sprintf("%s %s: ", p.severity(d.Severity), p.code.Sprint(d.Code.ID()))
		if path := formatPath(d.Primary.File, opts.PathMode, opts.BaseDir); path != "" {
			head = p.path.Sprint(path) + ": " + head
		}
		if _, err := fmt.Fprintf(w, "%s%s\n", head, wrap(d.Message, opts.Width, visibleWidth(head))); err != nil {
			return err
		}
		if d.Primary.Element != "" {
			if _, err := fmt.Fprintf(w, "  %s %s\n", p.arrow.Sprint("-->"), d.Primary.Element); err != nil {
				return err
			}
		}
		if !opts.ShowNotes {
			continue
		}
		for _, note := range d.Notes {
			if _, err := fmt.Fprintf(w, "  %s %s: %s\n", p.note.Sprint("note"), noteLoc(note.Loc, opts), note.Msg); err != nil {
				return err
			}
		}
	}
	if hidden := len(items) - n; hidden > 0 {
		if _, err := fmt.Fprintf(w, "... %d more diagnostics not shown\n", hidden); err != nil {
			return err
		}
	}
	return nil
}

func noteLoc(l source.Loc, opts PrettyOpts) string {
	l.File = formatPath(l.File, opts.PathMode, opts.BaseDir)
	return l.String()
}

type palette struct {
	err, warn, info  *color.Color
	code, path, note *color.Color
	arrow            *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		err:   color.New(color.FgRed, color.Bold),
		warn:  color.New(color.FgYellow, color.Bold),
		info:  color.New(color.FgCyan),
		code:  color.New(color.Bold),
		path:  color.New(color.FgWhite, color.Bold),
		note:  color.New(color.FgGreen),
		arrow: color.New(color.FgBlue),
	}
	for _, c := range []*color.Color{p.err, p.warn, p.info, p.code, p.path, p.note, p.arrow} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) severity(s diag.Severity) string {
	switch s {
	case diag.SevError:
		return p.err.Sprint(s)
	case diag.SevWarning:
		return p.warn.Sprint(s)
	}
	return p.info.Sprint(s)
}

// visibleWidth measures text without its ANSI escapes.
func visibleWidth(s string) int {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == 0x1b {
			for i < len(s) && s[i] != 'm' {
				i++
			}
			continue
		}
		sb.WriteByte(s[i])
	}
	return runewidth.StringWidth(sb.String())
}

// wrap breaks msg at word boundaries so no line passes width columns. The
// first line starts at column indent; continuation lines are indented by
// four spaces.
func wrap(msg string, width, indent int) string {
	if width <= 0 || indent+runewidth.StringWidth(msg) <= width {
		return msg
	}
	const cont = "    "
	var sb strings.Builder
	col := indent
	for i, word := range strings.Fields(msg) {
		ww := runewidth.StringWidth(word)
		if i > 0 {
			if col+1+ww > width {
				sb.WriteString("\n" + cont)
				col = len(cont)
			} else {
				sb.WriteByte(' ')
				col++
			}
		}
		sb.WriteString(word)
		col += ww
	}
	return sb.String()
}
