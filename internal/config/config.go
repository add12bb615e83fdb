package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DefaultCacheDir is where generated resolver artifacts are kept.
	DefaultCacheDir = "_sv2vhdl_cache"

	// GeneratorEnv overrides the generator command.
	GeneratorEnv = "NETRES_GENERATOR_BIN"

	// WorkDirEnv overrides the compiler work library directory.
	WorkDirEnv = "NVC_WORK"
)

// Strategy names accepted in Discovery.Strategies.
const (
	StrategySuffix  = "suffix"
	StrategyPortMap = "portmap"
)

// Cache modes accepted in Cache.Mode.
const (
	CacheModeDesign   = "design"
	CacheModeArtifact = "artifact"
)

// Config is the top-level configuration for netres
type Config struct {
	// Discovery controls how candidate nets are found in the hierarchy
	Discovery DiscoveryConfig `json:"discovery,omitempty"`

	// Cache controls reuse of generated resolver artifacts
	Cache CacheConfig `json:"cache,omitempty"`

	// Generator describes the external resolver generator
	Generator GeneratorConfig `json:"generator,omitempty"`

	// Build describes the downstream compile step
	Build BuildConfig `json:"build,omitempty"`

	// Policy lists optional Rego rules that exempt nets from resolution
	Policy PolicyConfig `json:"policy,omitempty"`

	// Output controls optional run artifacts (timing, metrics)
	Output OutputConfig `json:"output,omitempty"`
}

// DiscoveryConfig contains net discovery options
type DiscoveryConfig struct {
	// DriverSuffix marks the driver half of a signal pair
	DriverSuffix string `json:"driverSuffix,omitempty"`

	// OthersSuffix marks the receiver half of a signal pair
	OthersSuffix string `json:"othersSuffix,omitempty"`

	// BidirectionalPrimitives is the allow-list of pass-through primitive entities
	BidirectionalPrimitives []string `json:"bidirectionalPrimitives,omitempty"`

	// Strategies enables "suffix" and/or "portmap"
	Strategies []string `json:"strategies,omitempty"`
}

// CacheConfig controls generation cache behavior
type CacheConfig struct {
	// Enabled turns on cache usage
	Enabled *bool `json:"enabled,omitempty"`

	// Dir is the cache directory (relative to project root if not absolute)
	Dir string `json:"dir,omitempty"`

	// Mode is "design" (one topology digest) or "artifact" (per-file digest)
	Mode string `json:"mode,omitempty"`
}

// GeneratorConfig describes the generator process
type GeneratorConfig struct {
	// Command is the generator argv; NETRES_GENERATOR_BIN replaces Command[0]
	Command []string `json:"command,omitempty"`

	// Env is extra KEY=VALUE environment for the generator
	Env []string `json:"env,omitempty"`
}

// BuildConfig describes the compile step for generated artifacts
type BuildConfig struct {
	// Enabled turns the compile step on
	Enabled *bool `json:"enabled,omitempty"`

	// Command is the compiler binary
	Command string `json:"command,omitempty"`

	// Std is the VHDL standard passed to the compiler
	Std string `json:"std,omitempty"`

	// WorkDir is the compiler work library (NVC_WORK overrides it)
	WorkDir string `json:"workDir,omitempty"`
}

// PolicyConfig lists Rego modules
type PolicyConfig struct {
	// Files is a list of glob patterns for .rego files
	Files []string `json:"files,omitempty"`

	// Exclude is a list of glob patterns to exclude
	Exclude []string `json:"exclude,omitempty"`
}

// OutputConfig controls optional run artifacts
type OutputConfig struct {
	// TimingPath appends one JSONL record per run when set
	TimingPath string `json:"timingPath,omitempty"`

	// MetricsPath writes a Prometheus textfile when set
	MetricsPath string `json:"metricsPath,omitempty"`
}

// DefaultPrimitives is the default bidirectional primitive allow-list.
var DefaultPrimitives = []string{
	"sv_tran", "sv_tranif0", "sv_tranif1",
	"sv_rtran", "sv_rtranif0", "sv_rtranif1",
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Discovery: DiscoveryConfig{
			DriverSuffix:            "_driver",
			OthersSuffix:            "_others",
			BidirectionalPrimitives: append([]string(nil), DefaultPrimitives...),
			Strategies:              []string{StrategySuffix, StrategyPortMap},
		},
		Cache: CacheConfig{
			Enabled: boolPtr(true),
			Dir:     DefaultCacheDir,
			Mode:    CacheModeDesign,
		},
		Build: BuildConfig{
			Enabled: boolPtr(true),
			Command: "nvc",
			Std:     "2008",
			WorkDir: "work",
		},
	}
}

func boolPtr(v bool) *bool {
	return &v
}

// Load finds and loads the configuration file
// Search order:
//  1. ./netres.json (current working directory)
//  2. ./.netres.json (current working directory)
//  3. <rootPath>/netres.json (if different from cwd)
//  4. ~/.config/netres/config.json
//
// Returns DefaultConfig if no config file is found
func Load(rootPath string) (*Config, error) {
	cwd, _ := os.Getwd()

	searchPaths := []string{
		filepath.Join(cwd, "netres.json"),
		filepath.Join(cwd, ".netres.json"),
	}

	// rootPath may be the hierarchy export itself
	rootDir := rootPath
	if info, err := os.Stat(rootPath); err == nil && !info.IsDir() {
		rootDir = filepath.Dir(rootPath)
	}
	if absRoot, err := filepath.Abs(rootDir); err == nil && absRoot != cwd {
		searchPaths = append(searchPaths,
			filepath.Join(rootDir, "netres.json"),
			filepath.Join(rootDir, ".netres.json"),
		)
	}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".config", "netres", "config.json"))
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}

	return DefaultConfig(), nil
}

// LoadFile loads configuration from a specific file
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &cfg, nil
}

// applyDefaults fills in missing configuration with defaults
func (c *Config) applyDefaults() {
	def := DefaultConfig()

	if c.Discovery.DriverSuffix == "" {
		c.Discovery.DriverSuffix = def.Discovery.DriverSuffix
	}
	if c.Discovery.OthersSuffix == "" {
		c.Discovery.OthersSuffix = def.Discovery.OthersSuffix
	}
	if c.Discovery.BidirectionalPrimitives == nil {
		c.Discovery.BidirectionalPrimitives = def.Discovery.BidirectionalPrimitives
	}
	if len(c.Discovery.Strategies) == 0 {
		c.Discovery.Strategies = def.Discovery.Strategies
	}

	if c.Cache.Dir == "" {
		c.Cache.Dir = DefaultCacheDir
	}
	if c.Cache.Enabled == nil {
		c.Cache.Enabled = boolPtr(true)
	}
	if c.Cache.Mode == "" {
		c.Cache.Mode = CacheModeDesign
	}

	if c.Build.Enabled == nil {
		c.Build.Enabled = boolPtr(true)
	}
	if c.Build.Command == "" {
		c.Build.Command = def.Build.Command
	}
	if c.Build.Std == "" {
		c.Build.Std = def.Build.Std
	}
	if c.Build.WorkDir == "" {
		c.Build.WorkDir = def.Build.WorkDir
	}
}

// Validate rejects values no component can act on.
func (c *Config) Validate() error {
	switch c.Cache.Mode {
	case CacheModeDesign, CacheModeArtifact:
	default:
		return fmt.Errorf("cache.mode must be %q or %q, got %q", CacheModeDesign, CacheModeArtifact, c.Cache.Mode)
	}
	for _, s := range c.Discovery.Strategies {
		switch strings.ToLower(s) {
		case StrategySuffix, StrategyPortMap:
		default:
			return fmt.Errorf("unknown discovery strategy %q", s)
		}
	}
	if c.StrategyEnabled(StrategySuffix) && strings.EqualFold(c.Discovery.DriverSuffix, c.Discovery.OthersSuffix) {
		return fmt.Errorf("driverSuffix and othersSuffix must differ")
	}
	return nil
}

// Save writes the configuration to a file
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// StrategyEnabled reports whether the named discovery strategy is on.
func (c *Config) StrategyEnabled(name string) bool {
	for _, s := range c.Discovery.Strategies {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}

// CacheEnabled reports whether generated artifacts should be cached.
func (c *Config) CacheEnabled() bool {
	return c.Cache.Enabled == nil || *c.Cache.Enabled
}

// BuildEnabled reports whether generated artifacts should be compiled.
func (c *Config) BuildEnabled() bool {
	return c.Build.Enabled == nil || *c.Build.Enabled
}

// GeneratorCommand returns the generator argv with NETRES_GENERATOR_BIN
// applied. An empty result means no generator is configured.
func (c *Config) GeneratorCommand() []string {
	cmd := append([]string(nil), c.Generator.Command...)
	if bin := os.Getenv(GeneratorEnv); bin != "" {
		if len(cmd) == 0 {
			return []string{bin}
		}
		cmd[0] = bin
	}
	return cmd
}

// BuildWorkDir returns the compiler work directory with NVC_WORK applied.
func (c *Config) BuildWorkDir() string {
	if dir := os.Getenv(WorkDirEnv); dir != "" {
		return dir
	}
	return c.Build.WorkDir
}
