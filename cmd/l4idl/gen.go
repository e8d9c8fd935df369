package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"l4idl/internal/comm"
	"l4idl/internal/config"
	"l4idl/internal/declpath"
	"l4idl/internal/diag"
	"l4idl/internal/idlfile"
	"l4idl/internal/lcache"
	"l4idl/internal/naming"
	"l4idl/internal/observ"
	"l4idl/internal/source"
	"l4idl/internal/stubgen"
	"l4idl/internal/trace"
)

var genCmd = &cobra.Command{
	Use:   "gen [flags] file...",
	Short: "Generate stubs for interface descriptions",
	Long: `Generate the client stubs, server loop and shared header of every interface
in the given description files. Files are written as <iface>-client.c,
<iface>-server.c and <iface>-sys.h.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGen,
}

func init() {
	genCmd.Flags().String("target", "", "emission profile, e.g. v2-ia32-pic (overrides [target].profile)")
	genCmd.Flags().StringP("out", "o", "", "output directory (overrides [output].dir)")
	genCmd.Flags().Bool("client", false, "emit the client unit")
	genCmd.Flags().Bool("server", false, "emit the server unit")
	genCmd.Flags().Bool("header", false, "emit the shared header")
	genCmd.Flags().Bool("no-cache", false, "do not read or write the layout cache")
	genCmd.Flags().Bool("retry", false, "retry client calls interrupted by the kernel")
	genCmd.Flags().String("timeout", "", "timeout expression of client calls")
}

// genSettings is the config file with the flags applied.
type genSettings struct {
	cfg    config.Config
	outDir string
	cache  string
	units  []stubgen.Unit
}

func resolveGenSettings(cmd *cobra.Command, m *config.Manifest) (genSettings, error) {
	cfg := m.Config
	flags := cmd.Flags()
	if flags.Changed("target") {
		cfg.Target.Profile, _ = flags.GetString("target")
	}
	if flags.Changed("out") {
		cfg.Output.Dir, _ = flags.GetString("out")
	}
	if flags.Changed("retry") {
		cfg.IPC.Retry, _ = flags.GetBool("retry")
	}
	if flags.Changed("timeout") {
		cfg.IPC.Timeout, _ = flags.GetString("timeout")
	}
	// naming any unit selects exactly the named ones
	if flags.Changed("client") || flags.Changed("server") || flags.Changed("header") {
		cfg.Output.Client, _ = flags.GetBool("client")
		cfg.Output.Server, _ = flags.GetBool("server")
		cfg.Output.Header, _ = flags.GetBool("header")
	}
	if err := cfg.Validate(); err != nil {
		return genSettings{}, err
	}

	s := genSettings{cfg: cfg, outDir: cfg.Output.Dir}
	if !flags.Changed("out") {
		s.outDir = m.Resolve(cfg.Output.Dir)
	}
	if noCache, _ := flags.GetBool("no-cache"); !noCache && cfg.Output.Cache != "" {
		s.cache = m.Resolve(cfg.Output.Cache)
	}
	if cfg.Output.Header {
		s.units = append(s.units, stubgen.UnitHeader)
	}
	if cfg.Output.Client {
		s.units = append(s.units, stubgen.UnitClient)
	}
	if cfg.Output.Server {
		s.units = append(s.units, stubgen.UnitServer)
	}
	if len(s.units) == 0 {
		return genSettings{}, errors.New("no output unit selected")
	}
	return s, nil
}

func runGen(cmd *cobra.Command, args []string) error {
	m, err := loadManifest(cmd)
	if err != nil {
		return err
	}
	s, err := resolveGenSettings(cmd, m)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.outDir, 0o755); err != nil {
		return fmt.Errorf("output directory: %w", err)
	}

	ctx, span := trace.Start(cmd.Context(), trace.ScopeDriver, "gen")
	defer span.End("")

	timer := observ.NewTimer()
	bag := diag.NewBag(0)

	var cache *lcache.Cache
	if s.cache != "" {
		if cache, err = lcache.Open(s.cache); err != nil {
			diag.ReportWarning(diag.BagReporter{Bag: bag}, diag.DrvCacheError, source.Loc{File: s.cache}, err.Error()).Emit()
			cache = nil
		}
	}

	// one bag per file; reportFailure looks only at its own file
	var werr error
	for _, path := range args {
		fileBag := diag.NewBag(0)
		werr = genFile(ctx, s, cache, timer, fileBag, path)
		bag.Merge(fileBag)
		if werr != nil {
			break
		}
	}

	if cache != nil {
		st := cache.Stats()
		span.WithExtra("cache", fmt.Sprintf("%d hits, %d misses, %d writes", st.Hits, st.Misses, st.Writes))
	}
	if err := reportTimings(cmd, timer, bag); err != nil {
		return err
	}
	if err := printDiagnostics(cmd, bag, os.Args[1:]); err != nil {
		return err
	}
	return werr
}

// genFile loads one description and writes the units of its interfaces.
// Description and planning problems land in bag; the returned error is
// reserved for failures that should stop the run.
func genFile(ctx context.Context, s genSettings, cache *lcache.Cache, timer *observ.Timer, bag *diag.Bag, path string) error {
	reporter := diag.NewDedupReporter(diag.BagReporter{Bag: bag})

	done := timer.Track("load:" + filepath.Base(path))
	desc, err := idlfile.NewLoader(nil, reporter).LoadFile(path)
	done("")
	if err != nil {
		reportFailure(reporter, bag, path, err)
		return nil
	}

	tgt, err := s.cfg.TargetModel()
	if err != nil {
		return err
	}
	hook, err := s.cfg.Hook()
	if err != nil {
		return err
	}
	opts := stubgen.Options{
		Target:     tgt,
		Names:      naming.Default{Prefix: s.cfg.Marshal.Prefix},
		Hook:       hook,
		Reporter:   reporter,
		Digest:     desc.Digest,
		Retry:      s.cfg.IPC.Retry,
		Timeout:    s.cfg.IPC.Timeout,
		MaxNesting: s.cfg.Marshal.MaxNesting,
	}
	if cache != nil {
		opts.Cache = cache
	}
	gen, err := stubgen.New(opts)
	if err != nil {
		return err
	}

	for _, iface := range desc.Interfaces {
		if err := ctx.Err(); err != nil {
			return err
		}
		done := timer.Track("gen:" + iface.Name)
		out, err := gen.GenerateUnits(ctx, iface, s.units...)
		done(path)
		if err != nil {
			reportFailure(reporter, bag, path, err)
			continue
		}
		write := timer.Track("write:" + iface.Name)
		for _, u := range s.units {
			name := filepath.Join(s.outDir, stubgen.FileName(iface.Name, u))
			if err := os.WriteFile(name, []byte(out.Unit(u).String()), 0o644); err != nil {
				write("")
				return fmt.Errorf("write %s: %w", name, err)
			}
		}
		write(fmt.Sprintf("%d files", len(s.units)))
	}
	return nil
}

// reportFailure turns err into a diagnostic unless the component that
// failed has reported it already.
func reportFailure(r diag.Reporter, bag *diag.Bag, path string, err error) {
	if bag.HasErrors() {
		return
	}
	diag.ReportError(r, failureCode(err), source.Loc{File: path}, err.Error()).Emit()
}

func failureCode(err error) diag.Code {
	var (
		de *idlfile.DecodeError
		se *comm.StateError
		ce *comm.Error
		pe *declpath.DepthError
	)
	switch {
	case errors.As(err, &de):
		return de.Code()
	case errors.As(err, &se):
		return diag.ComBadState
	case errors.As(err, &ce):
		return diag.ComUnsupportedOp
	case errors.As(err, &pe):
		return diag.MarPathTooDeep
	case errors.Is(err, os.ErrNotExist), errors.Is(err, os.ErrPermission):
		return diag.DrvIO
	}
	return diag.UnknownCode
}

// reportTimings prints the phase table with --timings. Machine-readable
// diagnostics formats get the phases as info diagnostics instead.
func reportTimings(cmd *cobra.Command, timer *observ.Timer, bag *diag.Bag) error {
	flags := cmd.Root().PersistentFlags()
	show, err := flags.GetBool("timings")
	if err != nil || !show {
		return err
	}
	if format, _ := flags.GetString("diagnostics-format"); format != "pretty" {
		timer.Emit(diag.BagReporter{Bag: bag})
		return nil
	}
	_, err = fmt.Fprint(cmd.ErrOrStderr(), timer.Summary())
	return err
}
