package diag

import (
	"fmt"
	"strings"
)

// FormatShort renders diagnostics one per line in a stable order:
//
//	<SEV> <ID> <loc>: <message>
//
// Notes follow their diagnostic, indented by two spaces.
func FormatShort(diags []Diagnostic, includeNotes bool) string {
	if len(diags) == 0 {
		return ""
	}
	tmp := &Bag{items: append([]Diagnostic(nil), diags...), max: 0xFFFF}
	tmp.Sort()

	var sb strings.Builder
	for _, d := range tmp.items {
		fmt.Fprintf(&sb, "%s %s %s: %s\n", d.Severity, d.Code.ID(), d.Primary, d.Message)
		if !includeNotes {
			continue
		}
		for _, n := range d.Notes {
			fmt.Fprintf(&sb, "  note %s: %s\n", n.Loc, n.Msg)
		}
	}
	return sb.String()
}
