// =============================================================================
// netres - Net Resolution Entry Point
// =============================================================================
//
// netres reads an elaborated design hierarchy exported by the simulator and
// finds nets with more than one driver. Nets that need arbitration are handed
// to an external generator, and the generated resolver is cached until the
// net topology changes.
//
// THE PIPELINE:
//   1. Load and schema-check the hierarchy export (CUE)
//   2. Walk the hierarchy: suffix pairing + port-map grouping
//   3. Classify nets (default policy, optional Rego exemptions)
//   4. Fingerprint the topology and consult the cache
//   5. Generate, persist and compile the resolver on a miss
//
// =============================================================================

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/robert-at-pretension-io/vhdl-netres/internal/config"
	"github.com/robert-at-pretension-io/vhdl-netres/internal/discovery"
	"github.com/robert-at-pretension-io/vhdl-netres/internal/netlist"
	"github.com/robert-at-pretension-io/vhdl-netres/internal/resolver"
)

// Exit codes.
const (
	exitOK         = 0
	exitIncomplete = 1
	exitFatal      = 2
)

var (
	configPath string
	jsonOutput bool
	verbose    bool
	cacheMode  string
	noBuild    bool
	timingFlag bool
	timingPath string
	debounce   time.Duration
	forceInit  bool
)

func main() {
	os.Exit(run())
}

func run() int {
	root := newRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		var ec exitCode
		if errors.As(err, &ec) {
			return int(ec)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, discovery.ErrNoRoot) {
			return exitFatal
		}
		return exitIncomplete
	}
	return exitOK
}

// exitCode lets a command set the process status without printing.
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "netres",
		Short:         "Find multi-driver nets and keep their generated resolvers current",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: search netres.json)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging, including the hierarchy trace")

	analyze := &cobra.Command{
		Use:   "analyze <hierarchy.yaml|hierarchy.json>",
		Short: "Run one resolution pass over a hierarchy export",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze,
	}
	addRunFlags(analyze)

	watch := &cobra.Command{
		Use:   "watch <hierarchy.yaml|hierarchy.json>",
		Short: "Rerun the pass whenever the hierarchy export changes",
		Args:  cobra.ExactArgs(1),
		RunE:  runWatch,
	}
	addRunFlags(watch)
	watch.Flags().DurationVar(&debounce, "debounce", resolver.DefaultDebounce, "quiet time before a rerun")

	fingerprint := &cobra.Command{
		Use:   "fingerprint <hierarchy.yaml|hierarchy.json>",
		Short: "Print the topology hash without generating anything",
		Args:  cobra.ExactArgs(1),
		RunE:  runFingerprint,
	}

	clearCache := &cobra.Command{
		Use:   "clear-cache [path]",
		Short: "Remove cached resolver artifacts",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runClearCache,
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create a netres.json configuration file",
		Args:  cobra.NoArgs,
		RunE:  runInit,
	}
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "overwrite an existing netres.json")

	root.AddCommand(analyze, watch, fingerprint, clearCache, initCmd)
	return root
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "write the run summary as JSON")
	cmd.Flags().StringVar(&cacheMode, "mode", "", "cache mode: design or artifact (default from config)")
	cmd.Flags().BoolVar(&noBuild, "no-build", false, "skip compiling generated artifacts")
	cmd.Flags().BoolVar(&timingFlag, "timing", false, "append per-phase timing to timing.jsonl")
	cmd.Flags().StringVar(&timingPath, "timing-path", "", "timing JSONL path")
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, err
	}
	if cacheMode != "" {
		cfg.Cache.Mode = cacheMode
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func newResolver(ctx context.Context, path string, logger *slog.Logger) (*resolver.Resolver, error) {
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	r := resolver.New(cfg, logger)
	r.JSONOutput = jsonOutput
	r.NoBuild = noBuild
	r.Timing = timingFlag
	r.TimingPath = timingPath

	files, err := cfg.ResolvePolicyFiles(resolver.BaseDir(path))
	if err != nil {
		return nil, fmt.Errorf("resolve policy files: %w", err)
	}
	if len(files) > 0 {
		policy, err := netlist.NewRegoPolicy(ctx, files)
		if err != nil {
			return nil, fmt.Errorf("load exemption rules: %w", err)
		}
		r.Exemptions = policy
		logger.Debug("exemption rules loaded", "files", len(files))
	}
	return r, nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := newLogger()
	r, err := newResolver(ctx, args[0], logger)
	if err != nil {
		return err
	}
	r.Out = cmd.OutOrStdout()

	summary, err := r.RunFile(ctx, args[0])
	if err != nil {
		return err
	}
	if !summary.OK() {
		return exitCode(exitIncomplete)
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger()
	r, err := newResolver(ctx, args[0], logger)
	if err != nil {
		return err
	}
	r.Out = cmd.OutOrStdout()
	logger.Info("watching hierarchy export", "file", args[0])
	return r.Watch(ctx, args[0], debounce, nil)
}

func runFingerprint(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	r, err := newResolver(cmd.Context(), args[0], logger)
	if err != nil {
		return err
	}
	fp, err := r.FingerprintFile(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%016x\n", fp)
	return nil
}

func runClearCache(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) == 1 {
		path = args[0]
	}
	cfg, err := loadConfig(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	r := resolver.New(cfg, newLogger())
	dir, err := r.ClearCache(resolver.BaseDir(path))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", dir)
	return nil
}

func runInit(cmd *cobra.Command, _ []string) error {
	const path = "netres.json"
	if _, err := os.Stat(path); err == nil && !forceInit {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.DefaultConfig().Save(path); err != nil {
		return fmt.Errorf("creating config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created %s\n", path)
	fmt.Fprintln(out, "\nEdit this file to configure:")
	fmt.Fprintln(out, "  - Driver/others suffixes and bidirectional primitives")
	fmt.Fprintln(out, "  - Generator command (or set NETRES_GENERATOR_BIN)")
	fmt.Fprintln(out, "  - Cache mode and build settings")
	return nil
}
