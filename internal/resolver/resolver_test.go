package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-at-pretension-io/vhdl-netres/internal/cache"
	"github.com/robert-at-pretension-io/vhdl-netres/internal/config"
	"github.com/robert-at-pretension-io/vhdl-netres/internal/discovery"
	"github.com/robert-at-pretension-io/vhdl-netres/internal/generator"
	"github.com/robert-at-pretension-io/vhdl-netres/internal/hierarchy"
)

const fixtures = "../../testdata/hierarchy"

type stubGenerator struct {
	requests []generator.Request
	result   generator.Result
	err      error
}

func (g *stubGenerator) Resolve(_ context.Context, req generator.Request) (generator.Result, error) {
	g.requests = append(g.requests, req)
	return g.result, g.err
}

func artifactsFor(design string) *stubGenerator {
	return &stubGenerator{result: generator.Result{
		Outcome: generator.OutcomeArtifacts,
		Artifacts: map[string]string{
			design + "_resolver.vhd": "entity resolved_" + design + " is end entity;\n",
			design + "_pkg.vhd":      "package " + design + "_pkg is end package;\n",
		},
	}}
}

type fakeCompiler struct {
	paths []string
	fail  map[string]bool
}

func (c *fakeCompiler) Compile(_ context.Context, path string) (string, error) {
	c.paths = append(c.paths, path)
	if c.fail[filepath.Base(path)] {
		return "** Error: syntax error", errors.New("exit status 1")
	}
	return "", nil
}

func newTestResolver(t *testing.T, gen generator.Generator) (*Resolver, *fakeCompiler, string) {
	t.Helper()
	t.Setenv(TimingEnv, "")
	t.Setenv(config.WorkDirEnv, "")

	cacheDir := filepath.Join(t.TempDir(), "cache")
	cfg := config.DefaultConfig()
	cfg.Cache.Dir = cacheDir

	compiler := &fakeCompiler{}
	r := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.Out = io.Discard
	r.Generator = gen
	r.Compiler = compiler
	return r, compiler, cacheDir
}

// vectorDoc is one scalar suffix pair and one suffix pair of the given width.
func vectorDoc(width int) *hierarchy.Document {
	sig := func(name string, size int, typ string) hierarchy.SignalDoc {
		return hierarchy.SignalDoc{Name: name, FullName: ":TOP:" + name, Size: size, Type: typ, ElemType: "std_logic"}
	}
	return &hierarchy.Document{
		Design: "top",
		Root: hierarchy.RegionDoc{
			Name:     "TOP",
			FullName: ":TOP",
			Kind:     "instance",
			Signals: []hierarchy.SignalDoc{
				sig("EN_DRIVER", 1, "std_logic"),
				sig("EN_OTHERS", 1, "std_logic"),
				sig("BUS_DRIVER", width, "std_logic_vector"),
				sig("BUS_OTHERS", width, "std_logic_vector"),
			},
		},
	}
}

func TestRunGeneratesForVectorPairOnly(t *testing.T) {
	gen := artifactsFor("top")
	r, compiler, cacheDir := newTestResolver(t, gen)

	s, err := r.RunFile(context.Background(), filepath.Join(fixtures, "vector_pairs.yaml"))
	require.NoError(t, err)
	require.True(t, s.OK())

	require.Len(t, gen.requests, 1)
	req := gen.requests[0]
	assert.Equal(t, "top", req.Design)
	require.Len(t, req.Nets, 1)
	net := req.Nets[0]
	assert.Equal(t, ".top.bus", net.Name)
	assert.Equal(t, generator.FormSuffixPair, net.Form)
	assert.Equal(t, 8, net.Length)
	assert.Equal(t, "std_logic_vector", net.Type)
	assert.Equal(t, "std_logic", net.ElemType)
	assert.Equal(t, ".top.bus_driver", net.DriverRef)
	assert.Equal(t, ".top.bus_others", net.OthersRef)

	assert.Equal(t, 2, s.Stats.NetsDiscovered)
	assert.Equal(t, 1, s.Stats.NetsRequiringResolution)
	assert.Equal(t, CacheMiss, s.Cache)
	assert.Equal(t, GenerationArtifacts, s.Generation)
	assert.Equal(t, 2, s.Counts.Written)
	assert.Equal(t, 2, s.Counts.Validated)
	assert.Empty(t, s.Unresolved)
	assert.NotEmpty(t, s.BuildHint)

	slot := filepath.Join(cacheDir, "top_resolver.vhd")
	data, err := os.ReadFile(slot)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "-- Topology hash: "+s.Fingerprint+"\n"))
	assert.Equal(t, []string{filepath.Join(cacheDir, "top_pkg.vhd"), slot}, compiler.paths)
}

func TestSecondRunHitsCache(t *testing.T) {
	gen := artifactsFor("top")
	r, compiler, _ := newTestResolver(t, gen)
	path := filepath.Join(fixtures, "vector_pairs.yaml")

	first, err := r.RunFile(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, CacheMiss, first.Cache)

	second, err := r.RunFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, CacheHit, second.Cache)
	assert.Equal(t, GenerationSkipped, second.Generation)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, 1, second.Counts.Cached)
	assert.Equal(t, 0, second.Counts.Written)
	assert.NotEmpty(t, second.BuildHint)

	assert.Len(t, gen.requests, 1, "cache hit must not call the generator")
	assert.Len(t, compiler.paths, 2, "cache hit must not recompile")
}

func TestTopologyChangeMissesCache(t *testing.T) {
	gen := artifactsFor("top")
	r, _, _ := newTestResolver(t, gen)
	baseDir := t.TempDir()

	first, err := r.Run(context.Background(), hierarchy.NewTree(vectorDoc(8)), baseDir)
	require.NoError(t, err)
	second, err := r.Run(context.Background(), hierarchy.NewTree(vectorDoc(16)), baseDir)
	require.NoError(t, err)

	assert.Equal(t, CacheMiss, second.Cache)
	assert.NotEqual(t, first.Fingerprint, second.Fingerprint)
	require.Len(t, gen.requests, 2)
	assert.Equal(t, 16, gen.requests[1].Nets[0].Length)
	require.NotNil(t, second.Delta)
}

func TestNothingToResolve(t *testing.T) {
	gen := artifactsFor("top")
	r, compiler, cacheDir := newTestResolver(t, gen)

	doc := vectorDoc(8)
	doc.Root.Signals = doc.Root.Signals[:2]
	s, err := r.Run(context.Background(), hierarchy.NewTree(doc), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "0000000000000000", s.Fingerprint)
	assert.Equal(t, CacheSkipped, s.Cache)
	assert.Equal(t, GenerationNothing, s.Generation)
	assert.Equal(t, 1, s.Stats.NetsDiscovered)
	assert.Empty(t, gen.requests)
	assert.Empty(t, compiler.paths)
	assert.NoDirExists(t, cacheDir)
}

func TestDeclinedLeavesCacheUntouched(t *testing.T) {
	gen := artifactsFor("top")
	r, _, cacheDir := newTestResolver(t, gen)
	baseDir := t.TempDir()

	_, err := r.Run(context.Background(), hierarchy.NewTree(vectorDoc(8)), baseDir)
	require.NoError(t, err)
	slot := filepath.Join(cacheDir, "top_resolver.vhd")
	before, err := os.ReadFile(slot)
	require.NoError(t, err)

	gen.result = generator.Result{Outcome: generator.OutcomeDeclined, Message: "unsupported type"}
	s, err := r.Run(context.Background(), hierarchy.NewTree(vectorDoc(16)), baseDir)
	require.NoError(t, err)

	assert.True(t, s.OK())
	assert.Equal(t, GenerationDeclined, s.Generation)
	assert.Equal(t, "unsupported type", s.Message)
	require.Len(t, s.Unresolved, 1)
	assert.Equal(t, UnresolvedNet{Name: ".top.bus", Type: "std_logic_vector", Endpoints: 16, Reason: ReasonDeclined}, s.Unresolved[0])
	assert.Empty(t, s.Files)

	after, err := os.ReadFile(slot)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestGeneratorErrorReportsUnresolved(t *testing.T) {
	gen := &stubGenerator{err: errors.New("generator exited with status 3")}
	r, compiler, cacheDir := newTestResolver(t, gen)

	s, err := r.Run(context.Background(), hierarchy.NewTree(vectorDoc(8)), t.TempDir())
	require.NoError(t, err)

	assert.False(t, s.OK())
	assert.Equal(t, GenerationError, s.Generation)
	assert.Contains(t, s.Message, "status 3")
	require.Len(t, s.Unresolved, 1)
	assert.Equal(t, ReasonGeneratorError, s.Unresolved[0].Reason)
	assert.Empty(t, compiler.paths)
	assert.NoFileExists(t, filepath.Join(cacheDir, "top_resolver.vhd"))
}

func TestArtifactModeReconciles(t *testing.T) {
	gen := artifactsFor("top")
	r, compiler, cacheDir := newTestResolver(t, gen)
	r.Config.Cache.Mode = config.CacheModeArtifact
	baseDir := t.TempDir()

	first, err := r.Run(context.Background(), hierarchy.NewTree(vectorDoc(8)), baseDir)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Counts.Written)

	pkg := filepath.Join(cacheDir, "top_pkg.vhd")
	data, err := os.ReadFile(pkg)
	require.NoError(t, err)
	assert.Equal(t, "package top_pkg is end package;\n", string(data), "artifact mode writes content verbatim")

	second, err := r.Run(context.Background(), hierarchy.NewTree(vectorDoc(8)), baseDir)
	require.NoError(t, err)
	assert.Len(t, gen.requests, 2, "artifact mode always asks the generator")
	assert.Equal(t, 0, second.Counts.Written)
	assert.Equal(t, 2, second.Counts.Cached)
	assert.Len(t, compiler.paths, 2, "unchanged artifacts are not recompiled")
	for _, f := range second.Files {
		assert.Equal(t, cache.StatusCached, f.Status)
	}
}

func TestNetsLeftAloneAreReported(t *testing.T) {
	gen := artifactsFor("top")
	r, _, _ := newTestResolver(t, gen)
	var out bytes.Buffer
	r.Out = &out

	doc := vectorDoc(8)
	doc.Root.Signals = append(doc.Root.Signals, hierarchy.SignalDoc{
		Name: "LONE_DRIVER", FullName: ":TOP:LONE_DRIVER", Size: 8, Type: "std_logic_vector", ElemType: "std_logic",
	})
	s, err := r.Run(context.Background(), hierarchy.NewTree(doc), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 3, s.Stats.NetsDiscovered)
	assert.Equal(t, 1, s.Stats.NetsRequiringResolution)
	require.Len(t, gen.requests, 1)
	require.Len(t, gen.requests[0].Nets, 1)
	assert.Empty(t, s.Unresolved)
	assert.Equal(t, []UnresolvedNet{
		{Name: ".top.en", Type: "std_logic", Endpoints: 1, Reason: "scalar"},
		{Name: ".top.lone", Type: "std_logic_vector", Endpoints: 8, Reason: "incomplete_pair"},
	}, s.NotResolved)

	text := out.String()
	assert.Contains(t, text, "=== Not Resolved ===")
	assert.Contains(t, text, ".top.lone (8 endpoints, type std_logic_vector) [incomplete_pair]")
}

func TestMalformedPortIsSkipped(t *testing.T) {
	r, _, _ := newTestResolver(t, artifactsFor("top"))
	path := filepath.Join(t.TempDir(), "ports.yaml")
	export := `design: top
root:
  name: TOP
  full_name: ":TOP"
  instances:
    - name: SW
      full_name: ":TOP:SW"
      entity: sv_tran
      port_map: "A=N1"
      ports:
        - {name: "", mode: inout}
        - {name: A, mode: Inout, type: std_logic}
`
	require.NoError(t, os.WriteFile(path, []byte(export), 0o644))

	s, err := r.RunFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Stats.Skipped)
	assert.Equal(t, 1, s.Stats.Warnings)
	assert.Equal(t, []UnresolvedNet{
		{Name: ".top.n1", Type: "std_logic", Endpoints: 1, Reason: "single_endpoint"},
	}, s.NotResolved)
}

func TestUnparsableExportIsNotNoRoot(t *testing.T) {
	r, _, _ := newTestResolver(t, artifactsFor("top"))
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("root: [unclosed\n"), 0o644))

	_, err := r.RunFile(context.Background(), path)
	require.Error(t, err)
	assert.False(t, errors.Is(err, discovery.ErrNoRoot))
}

func TestCompileFailureCounted(t *testing.T) {
	gen := artifactsFor("top")
	r, compiler, cacheDir := newTestResolver(t, gen)
	compiler.fail = map[string]bool{"top_pkg.vhd": true}

	s, err := r.Run(context.Background(), hierarchy.NewTree(vectorDoc(8)), t.TempDir())
	require.NoError(t, err)

	assert.False(t, s.OK())
	require.NotNil(t, s.Build)
	assert.Equal(t, 1, s.Build.Failed)
	assert.Equal(t, 1, s.Counts.Validated)
	assert.Equal(t, 1, s.Counts.Failed)
	assert.Empty(t, s.BuildHint)
	assert.FileExists(t, filepath.Join(cacheDir, "top_pkg.vhd"), "failed artifacts stay on disk")
}

func TestNoBuildSkipsCompiler(t *testing.T) {
	r, compiler, _ := newTestResolver(t, artifactsFor("top"))
	r.NoBuild = true

	s, err := r.Run(context.Background(), hierarchy.NewTree(vectorDoc(8)), t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, s.Build)
	assert.Empty(t, compiler.paths)
}

func TestJSONOutputValidates(t *testing.T) {
	r, _, _ := newTestResolver(t, artifactsFor("tb"))
	var out bytes.Buffer
	r.Out = &out
	r.JSONOutput = true

	_, err := r.RunFile(context.Background(), filepath.Join(fixtures, "switches.yaml"))
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "tb", got["design"])
	assert.Equal(t, "artifacts", got["generation"])
	stats := got["stats"].(map[string]interface{})
	assert.EqualValues(t, 4, stats["nets_requiring_resolution"])
	assert.Len(t, got["nets"], 4)
}

func TestTextReport(t *testing.T) {
	r, _, _ := newTestResolver(t, &stubGenerator{result: generator.Result{Outcome: generator.OutcomeDeclined}})
	var out bytes.Buffer
	r.Out = &out

	_, err := r.Run(context.Background(), hierarchy.NewTree(vectorDoc(8)), t.TempDir())
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "=== Nets Requiring Resolution ===")
	assert.Contains(t, text, ".top.bus: std_logic_vector, length 8")
	assert.Contains(t, text, "UNRESOLVED .top.bus (8 endpoints, type std_logic_vector) [declined]")
	assert.Contains(t, text, "Nets requiring resolution: 1")
}

func TestMetricsAndTimingOutput(t *testing.T) {
	r, _, _ := newTestResolver(t, artifactsFor("top"))
	baseDir := t.TempDir()
	r.Config.Output.MetricsPath = "metrics/netres.prom"
	r.TimingPath = filepath.Join(baseDir, "timing.jsonl")

	_, err := r.Run(context.Background(), hierarchy.NewTree(vectorDoc(8)), baseDir)
	require.NoError(t, err)

	metrics, err := os.ReadFile(filepath.Join(baseDir, "metrics", "netres.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `netres_nets_requiring_resolution{design="top"} 1`)
	assert.Contains(t, string(metrics), `netres_artifacts{design="top",outcome="written"} 2`)

	timing, err := os.ReadFile(r.TimingPath)
	require.NoError(t, err)
	phases := map[string]bool{}
	for _, line := range strings.Split(strings.TrimSpace(string(timing)), "\n") {
		var ev timingEvent
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		assert.NotEmpty(t, ev.RunID)
		phases[ev.Phase] = true
	}
	for _, phase := range []string{"walk", "classify", "fingerprint", "cache", "generate", "persist", "build", "total"} {
		assert.True(t, phases[phase], "missing phase %s", phase)
	}
}

func TestFingerprintFileMatchesRun(t *testing.T) {
	r, _, _ := newTestResolver(t, artifactsFor("top"))
	path := filepath.Join(fixtures, "vector_pairs.yaml")

	fp, err := r.FingerprintFile(context.Background(), path)
	require.NoError(t, err)
	s, err := r.RunFile(context.Background(), path)
	require.NoError(t, err)
	assert.NotZero(t, fp)
	assert.Equal(t, fmt.Sprintf("%016x", fp), s.Fingerprint)
}

func TestMissingExportIsNoRoot(t *testing.T) {
	r, _, _ := newTestResolver(t, artifactsFor("top"))
	_, err := r.RunFile(context.Background(), filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, discovery.ErrNoRoot))
}

func TestClearCache(t *testing.T) {
	r, _, cacheDir := newTestResolver(t, artifactsFor("top"))
	baseDir := t.TempDir()

	_, err := r.Run(context.Background(), hierarchy.NewTree(vectorDoc(8)), baseDir)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(cacheDir, "top_resolver.vhd"))

	dir, err := r.ClearCache(baseDir)
	require.NoError(t, err)
	assert.Equal(t, cacheDir, dir)
	assert.NoFileExists(t, filepath.Join(cacheDir, "top_resolver.vhd"))

	s, err := r.Run(context.Background(), hierarchy.NewTree(vectorDoc(8)), baseDir)
	require.NoError(t, err)
	assert.Equal(t, CacheMiss, s.Cache)
}
