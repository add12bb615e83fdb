// Package resolver runs one analysis pass: walk the hierarchy, classify the
// nets, and regenerate resolution logic only when the topology changed.
package resolver

// =============================================================================
// RESOLVER PHILOSOPHY: ONE PASS, NOTHING SILENT
// =============================================================================
//
// A run is single-threaded and synchronous. It walks the hierarchy exactly
// once, asks the generator at most once and touches the cache directory only
// after the generator gave a valid answer.
//
// Every net that was a candidate for resolution and did not get it ends up
// in Summary.Unresolved with a reason. A failing generator is not a reason
// to stop reporting; the only fatal condition is a hierarchy without a root.
// =============================================================================

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/robert-at-pretension-io/vhdl-netres/internal/build"
	"github.com/robert-at-pretension-io/vhdl-netres/internal/cache"
	"github.com/robert-at-pretension-io/vhdl-netres/internal/config"
	"github.com/robert-at-pretension-io/vhdl-netres/internal/discovery"
	"github.com/robert-at-pretension-io/vhdl-netres/internal/generator"
	"github.com/robert-at-pretension-io/vhdl-netres/internal/hierarchy"
	"github.com/robert-at-pretension-io/vhdl-netres/internal/netlist"
	"github.com/robert-at-pretension-io/vhdl-netres/internal/validator"
)

// Resolver runs analysis passes with one configuration.
type Resolver struct {
	// Configuration loaded from netres.json
	Config *config.Config

	Logger *slog.Logger

	// Out receives the report; nil means os.Stdout
	Out io.Writer

	// JSON output mode
	JSONOutput bool

	// Generator produces resolver artifacts. Nil builds a Process from
	// the configured command.
	Generator generator.Generator

	// Compiler checks written artifacts. Nil builds NVC from the
	// configured build section.
	Compiler build.Compiler

	// Exemptions are optional site rules applied after the default policy.
	Exemptions netlist.Exemptions

	// NoBuild skips the compile step regardless of configuration
	NoBuild bool

	// Timing output (JSONL)
	Timing     bool
	TimingPath string
}

// New returns a resolver for cfg logging to logger.
func New(cfg *config.Config, logger *slog.Logger) *Resolver {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{Config: cfg, Logger: logger}
}

// RunFile loads the hierarchy export at path and runs one pass on it.
// Artifacts and the cache live next to the export.
func (r *Resolver) RunFile(ctx context.Context, path string) (*Summary, error) {
	tree, err := loadExport(path)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, tree, filepath.Dir(path))
}

// Run performs one analysis pass over src. baseDir anchors relative cache
// and timing paths. The returned error is non-nil only when nothing could be
// analyzed; generation, write and compile failures are in the summary.
func (r *Resolver) Run(ctx context.Context, src hierarchy.Source, baseDir string) (*Summary, error) {
	runStart := time.Now()
	if r.Config == nil {
		r.Config = config.DefaultConfig()
	}
	logger := r.logger()
	runID := uuid.NewString()
	logger = logger.With("run_id", runID)

	timing := newTimingRecorder(runID, runStart, r.resolveTimingPath(baseDir))
	if err := timing.Err(); err != nil {
		logger.Warn("timing output disabled", "error", err)
	}
	defer timing.Close()

	// 1. Walk
	stepStart := time.Now()
	walker := discovery.New(logger, r.strategies()...)
	reg, walkStats, err := walker.Walk(src)
	if err != nil {
		timing.RecordPhase("walk", stepStart, "error")
		return nil, err
	}
	timing.RecordPhase("walk", stepStart, "")

	// 2. Classify
	stepStart = time.Now()
	if err := netlist.ClassifyWith(ctx, reg, r.Exemptions); err != nil {
		logger.Warn("exemption rules failed; using default policy", "error", err)
		netlist.Classify(reg)
	}
	timing.RecordPhase("classify", stepStart, "")

	design := designName(src)
	summary := &Summary{
		RunID:       runID,
		Design:      design,
		CacheMode:   r.Config.Cache.Mode,
		Nets:        []NetSummary{},
		Unresolved:  []UnresolvedNet{},
		NotResolved: []UnresolvedNet{},
		Files:       []cache.FileResult{},
		Stats: Stats{
			Regions:          walkStats.Regions,
			SignalsScanned:   walkStats.Signals,
			InstancesScanned: walkStats.Instances,
			NetsDiscovered:   reg.Len(),
			Skipped:          walkStats.Skipped,
			Warnings:         walkStats.Warnings,
		},
	}
	if summary.CacheMode == "" {
		summary.CacheMode = config.CacheModeDesign
	}

	for _, n := range reg.Nets() {
		switch n.Reason {
		case netlist.ReasonConflict:
			logger.Warn("net produced by both discovery strategies; not resolved", "net", n.Name)
			summary.Stats.Conflicts++
			summary.Unresolved = append(summary.Unresolved, unresolved(n, string(netlist.ReasonConflict)))
		case netlist.ReasonExempt:
			summary.Stats.Exempt++
			summary.NotResolved = append(summary.NotResolved, unresolved(n, string(n.Reason)))
		case netlist.ReasonIncompletePair:
			logger.Warn("suffix pair has only one side; not resolved", "net", n.Name,
				"driver", n.Pair.DriverRef, "others", n.Pair.OthersRef)
			summary.NotResolved = append(summary.NotResolved, unresolved(n, string(n.Reason)))
		default:
			if !n.NeedsResolution {
				logger.Debug("net needs no resolution", "net", n.Name, "reason", n.Reason)
				summary.NotResolved = append(summary.NotResolved, unresolved(n, string(n.Reason)))
			}
		}
	}

	needing := reg.NeedingResolution()
	sort.Slice(needing, func(i, j int) bool { return needing[i].Name < needing[j].Name })
	summary.Stats.NetsRequiringResolution = len(needing)
	for _, n := range needing {
		summary.Nets = append(summary.Nets, summarizeNet(n))
	}

	// 3. Fingerprint
	stepStart = time.Now()
	fp := netlist.Fingerprint(reg)
	summary.Fingerprint = fmt.Sprintf("%016x", fp)
	timing.RecordPhase("fingerprint", stepStart, "")
	logger.Info("topology", "design", design, "nets", reg.Len(), "requiring_resolution", len(needing), "fingerprint", summary.Fingerprint)

	r.resolve(ctx, logger, timing, summary, reg, needing, fp, baseDir)

	summary.DurationMS = durationToMS(time.Since(runStart))
	timing.RecordPhase("total", runStart, "")

	if path := r.Config.Output.MetricsPath; path != "" {
		if !filepath.IsAbs(path) && baseDir != "" {
			path = filepath.Join(baseDir, path)
		}
		if err := writeMetrics(path, summary); err != nil {
			logger.Warn("metrics output failed", "file", path, "error", err)
		}
	}

	if err := r.report(summary); err != nil {
		return summary, err
	}
	return summary, nil
}

// FingerprintFile walks and classifies the export at path and returns its
// topology fingerprint without generating or writing anything.
func (r *Resolver) FingerprintFile(ctx context.Context, path string) (uint64, error) {
	tree, err := loadExport(path)
	if err != nil {
		return 0, err
	}
	if r.Config == nil {
		r.Config = config.DefaultConfig()
	}
	reg, _, err := discovery.New(r.logger(), r.strategies()...).Walk(tree)
	if err != nil {
		return 0, err
	}
	if err := netlist.ClassifyWith(ctx, reg, r.Exemptions); err != nil {
		r.logger().Warn("exemption rules failed; using default policy", "error", err)
		netlist.Classify(reg)
	}
	return netlist.Fingerprint(reg), nil
}

// resolve runs cache lookup, generation, persistence and build for the nets
// needing resolution and records the outcome in summary.
func (r *Resolver) resolve(ctx context.Context, logger *slog.Logger, timing *timingRecorder, summary *Summary, reg *netlist.Registry, needing []*netlist.Net, fp uint64, baseDir string) {
	if fp == 0 {
		summary.Cache = CacheSkipped
		summary.Generation = GenerationNothing
		logger.Info("no nets require resolution")
		return
	}

	store := cache.New(cache.ResolveDir(baseDir, r.Config), logger)
	designMode := summary.CacheMode == config.CacheModeDesign

	// 4. Cache lookup
	summary.Cache = CacheDisabled
	if r.Config.CacheEnabled() && designMode {
		stepStart := time.Now()
		hit, err := store.DesignHit(summary.Design, fp)
		if err != nil {
			logger.Warn("cache lookup failed; regenerating", "error", err)
		}
		if hit {
			summary.Cache = CacheHit
			summary.Generation = GenerationSkipped
			summary.Counts.Cached = 1
			summary.Files = append(summary.Files, cache.FileResult{
				Name:   cache.SlotName(summary.Design),
				Path:   store.SlotPath(summary.Design),
				Status: cache.StatusCached,
			})
			summary.BuildHint = r.buildHint(summary.Design)
			timing.RecordPhase("cache", stepStart, "hit")
			logger.Info("topology unchanged; reusing cached resolver", "file", store.SlotPath(summary.Design))
			return
		}
		summary.Cache = CacheMiss
		timing.RecordPhase("cache", stepStart, "miss")
	} else if r.Config.CacheEnabled() {
		summary.Cache = CacheMiss
	}

	// 5. Generate
	stepStart := time.Now()
	gen, err := r.generator(logger)
	var result generator.Result
	if err == nil {
		result, err = generator.Generate(ctx, gen, summary.Design, needing)
	}
	if err != nil {
		timing.RecordPhase("generate", stepStart, "error")
		names := make([]string, 0, len(needing))
		for _, n := range needing {
			names = append(names, n.Name)
			summary.Unresolved = append(summary.Unresolved, unresolved(n, ReasonGeneratorError))
		}
		summary.Generation = GenerationError
		summary.Message = err.Error()
		logger.Error("resolver generation failed; cache left untouched",
			"error", err,
			"malformed", errors.Is(err, generator.ErrMalformedResponse),
			"unresolved", names)
		return
	}
	timing.RecordPhase("generate", stepStart, result.Outcome.String())

	switch result.Outcome {
	case generator.OutcomeNothing:
		summary.Generation = GenerationNothing
		return
	case generator.OutcomeDeclined:
		summary.Generation = GenerationDeclined
		summary.Message = result.Message
		for _, n := range needing {
			summary.Unresolved = append(summary.Unresolved, unresolved(n, ReasonDeclined))
		}
		logger.Info("generator declined to produce a resolver", "message", result.Message)
		return
	}
	summary.Generation = GenerationArtifacts

	// 6. Persist
	stepStart = time.Now()
	var persisted cache.Report
	switch {
	case designMode:
		persisted = store.WriteDesign(summary.Design, fp, result.Artifacts)
	case r.Config.CacheEnabled():
		persisted = store.Reconcile(result.Artifacts)
	default:
		persisted = store.WriteAll(result.Artifacts)
	}
	summary.Files = persisted.Files
	summary.Counts.Written = persisted.Written
	summary.Counts.Cached = persisted.Cached
	summary.Counts.Failed = persisted.Failed
	timing.RecordPhase("persist", stepStart, "")

	r.recordDelta(logger, store, summary, reg, persisted.Failed == 0)

	// 7. Build
	if r.NoBuild || !r.Config.BuildEnabled() {
		return
	}
	paths := compilable(persisted.WrittenPaths())
	if len(paths) == 0 {
		if persisted.Failed == 0 {
			summary.BuildHint = r.buildHint(summary.Design)
		}
		return
	}
	stepStart = time.Now()
	report := build.Dispatch(ctx, r.compiler(), paths, logger)
	summary.Build = &report
	summary.Counts.Validated = report.Validated
	summary.Counts.Failed += report.Failed
	timing.RecordPhase("build", stepStart, "")
	if report.Failed == 0 && persisted.Failed == 0 {
		summary.BuildHint = r.buildHint(summary.Design)
	}
}

// recordDelta compares the new topology with the one the previous
// artifacts were built from, and stores the new one when every artifact
// was persisted.
func (r *Resolver) recordDelta(logger *slog.Logger, store *cache.Store, summary *Summary, reg *netlist.Registry, save bool) {
	next := netlist.TakeSnapshot(reg)
	prev, err := store.LoadSnapshot()
	if err != nil {
		logger.Warn("previous topology unreadable", "error", err)
	}
	if prev != nil {
		delta := netlist.ComputeDelta(*prev, next)
		summary.Delta = &delta
	}
	if !save {
		return
	}
	if err := store.SaveSnapshot(next); err != nil {
		logger.Warn("topology snapshot not saved", "error", err)
	}
}

func (r *Resolver) report(summary *Summary) error {
	out := r.Out
	if out == nil {
		out = os.Stdout
	}
	if !r.JSONOutput {
		summary.WriteText(out)
		return nil
	}
	v, err := validator.NewSummaryValidator()
	if err != nil {
		return fmt.Errorf("init summary validator: %w", err)
	}
	if err := v.Validate(summary); err != nil {
		return fmt.Errorf("run summary invalid: %w", err)
	}
	return summary.WriteJSON(out)
}

func (r *Resolver) strategies() []discovery.Strategy {
	var out []discovery.Strategy
	d := r.Config.Discovery
	if r.Config.StrategyEnabled(config.StrategySuffix) {
		out = append(out, discovery.SuffixPairing{DriverSuffix: d.DriverSuffix, OthersSuffix: d.OthersSuffix})
	}
	if r.Config.StrategyEnabled(config.StrategyPortMap) {
		out = append(out, discovery.PortMapGrouping{Primitives: d.BidirectionalPrimitives})
	}
	return out
}

func (r *Resolver) generator(logger *slog.Logger) (generator.Generator, error) {
	if r.Generator != nil {
		return r.Generator, nil
	}
	return generator.NewProcess(r.Config.GeneratorCommand(), r.Config.Generator.Env, logger)
}

func (r *Resolver) compiler() build.Compiler {
	if r.Compiler != nil {
		return r.Compiler
	}
	return build.NVC{
		Binary:  r.Config.Build.Command,
		Std:     r.Config.Build.Std,
		WorkDir: r.Config.BuildWorkDir(),
	}
}

func (r *Resolver) buildHint(design string) []string {
	return BuildHint(design, r.Config.Build.Std, r.Config.BuildWorkDir())
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// loadExport reads the export at path. Only a missing export means there is
// no root; a parse or contract failure is an ordinary error.
func loadExport(path string) (*hierarchy.Tree, error) {
	tree, err := hierarchy.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", discovery.ErrNoRoot, err)
		}
		return nil, err
	}
	return tree, nil
}

func designName(src hierarchy.Source) string {
	if dn, ok := src.(hierarchy.DesignNamer); ok {
		if name := dn.DesignName(); name != "" {
			return name
		}
	}
	if root, err := src.Root(); err == nil && root.Name != "" {
		return hierarchy.Normalize(root.Name)[1:]
	}
	return "design"
}

func compilable(paths []string) []string {
	var out []string
	for _, p := range paths {
		switch filepath.Ext(p) {
		case ".vhd", ".vhdl":
			out = append(out, p)
		}
	}
	return out
}
