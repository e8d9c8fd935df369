package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"l4idl/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show l4idl build fingerprints",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		info := version.Current()
		out := cmd.OutOrStdout()

		switch strings.ToLower(format) {
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		case "pretty":
			colored, err := colorEnabled(cmd, stdoutFile(cmd))
			if err != nil {
				return err
			}
			for _, line := range info.Lines(colored) {
				if _, err := fmt.Fprintln(out, line); err != nil {
					return err
				}
			}
			return nil
		}
		return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
	},
}

func init() {
	versionCmd.Flags().String("format", "pretty", "output format (pretty|json)")
}
