// Package cgen holds the ordered C statement sequence produced by the
// marshaller and communication emitter, and renders it as text.
package cgen

import (
	"fmt"
	"io"
	"strings"
)

// StmtKind classifies a statement for rendering.
type StmtKind uint8

const (
	StmtLine      StmtKind = iota + 1 // plain line at current depth
	StmtOpen                          // line ending a block opener, depth+1 after
	StmtClose                         // depth-1 before, then line
	StmtReopen                        // "} else {": depth-1 before, depth+1 after
	StmtDirective                     // preprocessor line, always column 0
	StmtBlank
	StmtComment
)

// Stmt is one rendered line.
type Stmt struct {
	Kind StmtKind
	Text string
}

// Block is an append-only statement sequence. The zero value is ready for use.
type Block struct {
	stmts []Stmt
	depth int
}

// Linef appends a formatted statement line.
func (b *Block) Linef(format string, args ...any) {
	b.stmts = append(b.stmts, Stmt{Kind: StmtLine, Text: fmt.Sprintf(format, args...)})
}

// Line appends a statement line verbatim.
func (b *Block) Line(text string) {
	b.stmts = append(b.stmts, Stmt{Kind: StmtLine, Text: text})
}

// Open appends a block opener such as "if (x) {".
func (b *Block) Open(format string, args ...any) {
	b.stmts = append(b.stmts, Stmt{Kind: StmtOpen, Text: fmt.Sprintf(format, args...)})
	b.depth++
}

// Reopen closes the current block and opens a sibling, e.g. "} else {".
func (b *Block) Reopen(format string, args ...any) {
	b.stmts = append(b.stmts, Stmt{Kind: StmtReopen, Text: fmt.Sprintf(format, args...)})
}

// Close ends the current block with "}" or the given text.
func (b *Block) Close(text ...string) {
	t := "}"
	if len(text) > 0 {
		t = text[0]
	}
	b.stmts = append(b.stmts, Stmt{Kind: StmtClose, Text: t})
	if b.depth > 0 {
		b.depth--
	}
}

// Directive appends a preprocessor line.
func (b *Block) Directive(format string, args ...any) {
	b.stmts = append(b.stmts, Stmt{Kind: StmtDirective, Text: fmt.Sprintf(format, args...)})
}

// Comment appends a C comment line.
func (b *Block) Comment(format string, args ...any) {
	b.stmts = append(b.stmts, Stmt{Kind: StmtComment, Text: "/* " + fmt.Sprintf(format, args...) + " */"})
}

// Blank appends an empty line.
func (b *Block) Blank() {
	b.stmts = append(b.stmts, Stmt{Kind: StmtBlank})
}

// Append copies other's statements to the end of b.
func (b *Block) Append(other *Block) {
	if other == nil {
		return
	}
	b.stmts = append(b.stmts, other.stmts...)
	b.depth += other.depth
}

// Stmts returns the statements. Do not modify the slice.
func (b *Block) Stmts() []Stmt { return b.stmts }

// Len returns the number of statements.
func (b *Block) Len() int { return len(b.stmts) }

// Balanced reports whether every opened block was closed.
func (b *Block) Balanced() bool { return b.depth == 0 }

// Lines returns the statement texts without indentation.
func (b *Block) Lines() []string {
	out := make([]string, 0, len(b.stmts))
	for _, s := range b.stmts {
		out = append(out, s.Text)
	}
	return out
}

// Contains reports whether any statement contains substr.
func (b *Block) Contains(substr string) bool {
	for _, s := range b.stmts {
		if strings.Contains(s.Text, substr) {
			return true
		}
	}
	return false
}

// Count returns the number of statements containing substr.
func (b *Block) Count(substr string) int {
	n := 0
	for _, s := range b.stmts {
		if strings.Contains(s.Text, substr) {
			n++
		}
	}
	return n
}

// Index returns the position of the first statement containing substr, or -1.
func (b *Block) Index(substr string) int {
	for i, s := range b.stmts {
		if strings.Contains(s.Text, substr) {
			return i
		}
	}
	return -1
}

// WriteTo renders the block with indent per nesting level.
func (b *Block) WriteTo(w io.Writer) (int64, error) {
	return Render(w, b, "  ")
}

func (b *Block) String() string {
	var sb strings.Builder
	_, _ = Render(&sb, b, "  ")
	return sb.String()
}

// Render writes the statements of b to w.
func Render(w io.Writer, b *Block, indent string) (int64, error) {
	var total int64
	depth := 0
	write := func(level int, text string) error {
		var line string
		if text != "" {
			line = strings.Repeat(indent, max(level, 0)) + text
		}
		n, err := io.WriteString(w, line+"\n")
		total += int64(n)
		return err
	}
	for _, s := range b.stmts {
		var err error
		switch s.Kind {
		case StmtOpen:
			err = write(depth, s.Text)
			depth++
		case StmtClose:
			depth--
			err = write(depth, s.Text)
		case StmtReopen:
			err = write(depth-1, s.Text)
		case StmtDirective:
			err = write(0, s.Text)
		case StmtBlank:
			err = write(0, "")
		default:
			err = write(depth, s.Text)
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
