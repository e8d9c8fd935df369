package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"l4idl/internal/lcache"
	"l4idl/internal/stubgen"
	"l4idl/internal/version"
)

// errDiagnostics is returned after error diagnostics have been printed.
var errDiagnostics = errors.New("errors reported")

var rootCmd = &cobra.Command{
	Use:           "l4idl",
	Short:         "Generate L4 IPC stubs from interface descriptions",
	Long:          `l4idl plans message buffers and emits client stubs, server loops and headers for L4 microkernels`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupRun(cmd)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return teardownRun()
	},
}

func init() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(genCmd)
	rootCmd.AddCommand(layoutCmd)
	rootCmd.AddCommand(targetsCmd)
	rootCmd.AddCommand(versionCmd)

	flags := rootCmd.PersistentFlags()
	flags.String("color", "auto", "colorize output (auto|on|off)")
	flags.Bool("quiet", false, "suppress non-essential output")
	flags.Bool("timings", false, "show timing information")
	flags.Bool("verbose", false, "log generator internals to stderr")
	flags.String("config", "", "path to l4idl.toml (default: search upwards from the working directory)")
	flags.Int("max-diagnostics", 100, "maximum number of diagnostics to show")
	flags.String("diagnostics-format", "pretty", "diagnostics output (pretty|json|sarif)")
	flags.String("path-mode", "auto", "how paths are shown in diagnostics (auto|absolute|relative|basename)")

	flags.String("trace", "", "write generation trace events to this file (- for stderr)")
	flags.String("trace-level", "off", "trace level (off|phase|detail|debug)")
	flags.String("trace-mode", "stream", "trace storage (stream|ring|both)")
	flags.Int("trace-ring-size", 4096, "events kept by the ring tracer")

	flags.String("cpu-profile", "", "write a CPU profile to this file")
	flags.String("mem-profile", "", "write a heap profile to this file")
	flags.String("runtime-trace", "", "write a Go runtime trace to this file")
}

func main() {
	err := rootCmd.Execute()
	if terr := teardownRun(); terr != nil && err == nil {
		err = terr
	}
	if err != nil {
		if !errors.Is(err, errDiagnostics) {
			fmt.Fprintf(os.Stderr, "l4idl: %v\n", err)
		}
		os.Exit(1)
	}
}

var cleanups []func() error

// setupRun installs the logger, the tracer and the profilers for the
// command about to run.
func setupRun(cmd *cobra.Command) error {
	verbose, err := cmd.Root().PersistentFlags().GetBool("verbose")
	if err != nil {
		return err
	}
	if verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		stubgen.SetLogger(logger)
		lcache.SetLogger(logger)
		cleanups = append(cleanups, func() error {
			_ = logger.Sync()
			return nil
		})
	}

	stopTrace, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	cleanups = append(cleanups, stopTrace)

	stopProf, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	cleanups = append(cleanups, stopProf)
	return nil
}

// teardownRun runs the cleanups in reverse order. Running it twice is a
// no-op.
func teardownRun() error {
	var errs []error
	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	cleanups = nil
	return errors.Join(errs...)
}
