package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"l4idl/internal/config"
	"l4idl/internal/diag"
	"l4idl/internal/diagfmt"
	"l4idl/internal/version"
)

// loadManifest reads --config, or the nearest l4idl.toml.
func loadManifest(cmd *cobra.Command) (*config.Manifest, error) {
	path, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	if path != "" {
		return config.Load(path)
	}
	m, _, err := config.Discover(".")
	return m, err
}

// colorEnabled resolves --color against the terminal and NO_COLOR.
func colorEnabled(cmd *cobra.Command, f *os.File) (bool, error) {
	mode, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return false, fmt.Errorf("failed to get color flag: %w", err)
	}
	switch strings.ToLower(mode) {
	case "on", "always", "true":
		return true, nil
	case "off", "never", "false":
		return false, nil
	case "auto", "":
		if _, ok := os.LookupEnv("NO_COLOR"); ok {
			return false, nil
		}
		return isTerminal(f), nil
	}
	return false, fmt.Errorf("invalid color mode %q (expected: auto|on|off)", mode)
}

func isTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// stdoutFile is the command's output when it is a file.
func stdoutFile(cmd *cobra.Command) *os.File {
	f, _ := cmd.OutOrStdout().(*os.File)
	return f
}

func terminalWidth(f *os.File) int {
	if !isTerminal(f) {
		return 0
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return w
}

// printDiagnostics renders bag to stderr in the --diagnostics-format and
// returns errDiagnostics when it holds errors.
func printDiagnostics(cmd *cobra.Command, bag *diag.Bag, args []string) error {
	if bag.Len() == 0 {
		return nil
	}
	bag.Dedup()
	bag.Sort()

	flags := cmd.Root().PersistentFlags()
	format, err := flags.GetString("diagnostics-format")
	if err != nil {
		return err
	}
	maxDiags, err := flags.GetInt("max-diagnostics")
	if err != nil {
		return err
	}
	quiet, err := flags.GetBool("quiet")
	if err != nil {
		return err
	}
	pathFlag, err := flags.GetString("path-mode")
	if err != nil {
		return err
	}
	pathMode, ok := diagfmt.ParsePathMode(pathFlag)
	if !ok {
		return fmt.Errorf("invalid path mode %q", pathFlag)
	}

	var out io.Writer = cmd.ErrOrStderr()
	switch strings.ToLower(format) {
	case "pretty":
		if quiet && !bag.HasErrors() {
			break
		}
		useColor, err := colorEnabled(cmd, os.Stderr)
		if err != nil {
			return err
		}
		err = diagfmt.Pretty(out, bag, diagfmt.PrettyOpts{
			Color:     useColor,
			PathMode:  pathMode,
			Width:     terminalWidth(os.Stderr),
			ShowNotes: true,
			Max:       maxDiags,
		})
		if err != nil {
			return err
		}
	case "json":
		if err := diagfmt.JSON(out, bag, diagfmt.JSONOpts{PathMode: pathMode, Max: maxDiags, IncludeNotes: true}); err != nil {
			return err
		}
	case "sarif":
		meta := diagfmt.SarifRunMeta{ToolName: "l4idl", ToolVersion: version.Version, InvocationArgs: args, PathMode: pathMode}
		if err := diagfmt.Sarif(out, bag, meta); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid diagnostics format %q (expected: pretty|json|sarif)", format)
	}
	if bag.HasErrors() {
		return errDiagnostics
	}
	return nil
}
