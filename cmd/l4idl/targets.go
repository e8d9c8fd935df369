package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"l4idl/internal/comm"
	"l4idl/internal/target"
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List the registered emission profiles",
	Args:  cobra.NoArgs,
	RunE:  runTargets,
}

func init() {
	targetsCmd.Flags().String("format", "pretty", "output format (pretty|json)")
}

type targetRow struct {
	Profile    string `json:"profile"`
	Strategy   string `json:"strategy"`
	WordSize   int    `json:"word_size"`
	ShortWords int    `json:"short_words"`
	MaxDwords  int    `json:"max_dwords"`
	MaxStrings int    `json:"max_strings"`
}

func runTargets(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	reg := comm.DefaultRegistry()

	rows := make([]targetRow, 0, reg.Len())
	for _, p := range reg.Profiles() {
		s, err := reg.Lookup(p)
		if err != nil {
			return err
		}
		t, err := target.New(p)
		if err != nil {
			return err
		}
		rows = append(rows, targetRow{
			Profile:    p.String(),
			Strategy:   s.Name(),
			WordSize:   t.WordSize,
			ShortWords: t.ShortWords,
			MaxDwords:  t.MaxDwords,
			MaxStrings: t.MaxStrings,
		})
	}

	out := cmd.OutOrStdout()
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "pretty":
		cells := [][]string{{"profile", "strategy", "word", "short", "dwords", "strings"}}
		for _, r := range rows {
			cells = append(cells, []string{r.Profile, r.Strategy, fmt.Sprint(r.WordSize), fmt.Sprint(r.ShortWords), fmt.Sprint(r.MaxDwords), fmt.Sprint(r.MaxStrings)})
		}
		for _, line := range table(cells) {
			if _, err := fmt.Fprintln(out, line); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
}
