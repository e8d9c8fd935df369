package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"l4idl/internal/attr"
	"l4idl/internal/diag"
	"l4idl/internal/idl"
	"l4idl/internal/idlfile"
	"l4idl/internal/layout"
)

var layoutCmd = &cobra.Command{
	Use:   "layout [flags] file",
	Short: "Show the planned message layouts of a description",
	Args:  cobra.ExactArgs(1),
	RunE:  runLayout,
}

func init() {
	layoutCmd.Flags().String("target", "", "emission profile (overrides [target].profile)")
	layoutCmd.Flags().String("iface", "", "only this interface")
	layoutCmd.Flags().String("op", "", "only this operation")
	layoutCmd.Flags().Bool("server", false, "show the server-side shapes instead of the client call")
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func runLayout(cmd *cobra.Command, args []string) error {
	m, err := loadManifest(cmd)
	if err != nil {
		return err
	}
	cfg := m.Config
	if cmd.Flags().Changed("target") {
		cfg.Target.Profile, _ = cmd.Flags().GetString("target")
	}
	tgt, err := cfg.TargetModel()
	if err != nil {
		return err
	}
	ifaceName, _ := cmd.Flags().GetString("iface")
	opName, _ := cmd.Flags().GetString("op")
	server, _ := cmd.Flags().GetBool("server")

	bag := diag.NewBag(0)
	reporter := diag.BagReporter{Bag: bag}
	desc, err := idlfile.NewLoader(nil, reporter).LoadFile(args[0])
	if err != nil {
		if perr := printDiagnostics(cmd, bag, args); perr != nil {
			return perr
		}
		return err
	}

	useColor, err := colorEnabled(cmd, stdoutFile(cmd))
	if err != nil {
		return err
	}
	planner := layout.NewPlanner(tgt, layout.WithReporter(reporter))
	out := cmd.OutOrStdout()
	matched := false
	for _, iface := range desc.Interfaces {
		if ifaceName != "" && iface.Name != ifaceName {
			continue
		}
		// the server buffer is shared by every dispatched operation
		var shared []*layout.Layout
		var shown [][]*layout.Layout
		for _, op := range iface.AllOperations() {
			selected := opName == "" || op.Name == opName
			if !selected && (!server || op.Has(attr.NoOpcode)) {
				continue
			}
			var ls []*layout.Layout
			for _, lp := range layoutsFor(op, server) {
				l, err := planner.Plan(iface, op, lp.dir, lp.shape)
				if err != nil {
					continue
				}
				ls = append(ls, l)
			}
			if server && !op.Has(attr.NoOpcode) {
				shared = append(shared, ls...)
			}
			if selected {
				matched = true
				shown = append(shown, ls)
			}
		}
		for _, ls := range shown {
			buf := layout.NewBuffer(tgt, ls...)
			if server {
				buf = layout.NewBuffer(tgt, shared...)
			}
			for _, l := range ls {
				if err := renderLayout(out, l, buf, useColor); err != nil {
					return err
				}
			}
		}
	}
	if !matched {
		return fmt.Errorf("no operation matches --iface %q --op %q in %s", ifaceName, opName, args[0])
	}
	return printDiagnostics(cmd, bag, args)
}

type layoutPlan struct {
	dir   idl.Direction
	shape layout.Shape
}

func layoutsFor(op *idl.Operation, server bool) []layoutPlan {
	if server {
		out := []layoutPlan{{idl.In, layout.ServerDispatch}}
		if !op.IsSendOnly() {
			out = append(out, layoutPlan{idl.Out, layout.ComponentReply})
		}
		return out
	}
	out := []layoutPlan{{idl.In, layout.ClientCall}}
	if !op.IsSendOnly() {
		out = append(out, layoutPlan{idl.Out, layout.ClientCall})
	}
	return out
}

// renderLayout prints the slots of l. String rows show where their
// descriptor sits in buf.
func renderLayout(w io.Writer, l *layout.Layout, buf layout.Buffer, useColor bool) error {
	style := func(s lipgloss.Style, text string) string {
		if !useColor {
			return text
		}
		return s.Render(text)
	}

	title := fmt.Sprintf("%s.%s %s (%s, %s)", l.Interface, l.Operation, l.Dir, l.Shape, l.Profile)
	summary := fmt.Sprintf("%d fixed + %d variable bytes, %d strings, %d flexpage descriptors", l.FixedBytes, l.VariableBytes, len(l.Strings), l.Flexpages.Reserved())
	if l.ShortEligible() {
		summary += ", short IPC"
	}
	if l.Dynamic {
		summary += ", dynamic offsets"
	}

	rows := [][]string{{"slot", "class", "offset", "size", "count", "align"}}
	add := func(s layout.Slot) {
		off := "runtime"
		switch {
		case s.Static() && s.Class == layout.ClassString:
			off = strconv.Itoa(buf.StringSlotWord(s.Index) * l.WordSize)
		case s.Static():
			off = strconv.Itoa(s.Offset)
		}
		rows = append(rows, []string{s.Name, s.Class.String(), off, strconv.Itoa(s.Size), strconv.Itoa(s.Count), strconv.Itoa(s.Align)})
	}
	for _, s := range l.Flexpages.Slots {
		add(s)
	}
	if l.Header != nil {
		add(*l.Header)
	}
	for _, group := range [][]layout.Slot{l.Fixed, l.Variable, l.Strings} {
		for _, s := range group {
			add(s)
		}
	}

	lines := []string{style(titleStyle, title), style(dimStyle, summary)}
	for i, row := range table(rows) {
		if i == 0 {
			row = style(headerStyle, row)
		}
		lines = append(lines, "  "+row)
	}
	_, err := fmt.Fprintln(w, lipgloss.JoinVertical(lipgloss.Left, lines...)+"\n")
	return err
}

// table pads every column to its widest cell.
func table(rows [][]string) []string {
	var widths []int
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}
	out := make([]string, len(rows))
	for r, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = runewidth.FillRight(cell, widths[i])
		}
		out[r] = strings.TrimRight(strings.Join(cells, "  "), " ")
	}
	return out
}
