package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"l4idl/internal/trace"
)

// setupTracing reads the trace flags and attaches a tracer to the command
// context. The returned function flushes and closes it.
func setupTracing(cmd *cobra.Command) (func() error, error) {
	root := cmd.Root()

	traceOutput, err := root.PersistentFlags().GetString("trace")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace flag: %w", err)
	}
	levelStr, err := root.PersistentFlags().GetString("trace-level")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace-level flag: %w", err)
	}
	modeStr, err := root.PersistentFlags().GetString("trace-mode")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace-mode flag: %w", err)
	}
	ringSize, err := root.PersistentFlags().GetInt("trace-ring-size")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace-ring-size flag: %w", err)
	}

	level, err := trace.ParseLevel(levelStr)
	if err != nil {
		return nil, fmt.Errorf("invalid trace level: %w", err)
	}
	// an output file alone turns on phase tracing
	if level == trace.LevelOff && traceOutput != "" {
		level = trace.LevelPhase
	}
	if level == trace.LevelOff {
		cmd.SetContext(trace.WithTracer(cmd.Context(), trace.Nop))
		return func() error { return nil }, nil
	}

	mode, err := trace.ParseMode(modeStr)
	if err != nil {
		return nil, fmt.Errorf("invalid trace mode: %w", err)
	}

	tracer, err := trace.New(trace.Config{
		Level:      level,
		Mode:       mode,
		AutoFormat: true,
		OutputPath: traceOutput,
		RingSize:   ringSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}

	ctx := trace.WithTracer(cmd.Context(), tracer)
	cmd.SetContext(ctx)

	return func() error {
		if ring, ok := tracer.(*trace.RingTracer); ok && traceOutput != "" {
			if err := dumpRing(ring, traceOutput); err != nil {
				return err
			}
		}
		if err := tracer.Flush(); err != nil {
			return fmt.Errorf("trace: flush error: %w", err)
		}
		if err := tracer.Close(); err != nil {
			return fmt.Errorf("trace: close error: %w", err)
		}
		return nil
	}, nil
}

// dumpRing writes the retained tail of a ring-only tracer to path.
func dumpRing(ring *trace.RingTracer, path string) (err error) {
	if path == "-" {
		return ring.Dump(os.Stderr, trace.FormatFor(path))
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("trace: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return ring.Dump(f, trace.FormatFor(path))
}
