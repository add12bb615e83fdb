package resolver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeExport(t *testing.T, path string, width int) {
	t.Helper()
	data, err := json.Marshal(vectorDoc(width))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestWatchRerunsOnChange(t *testing.T) {
	gen := artifactsFor("top")
	r, _, _ := newTestResolver(t, gen)
	path := filepath.Join(t.TempDir(), "hierarchy.json")
	writeExport(t, path, 8)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	runs := make(chan *Summary, 4)
	done := make(chan error, 1)
	go func() {
		done <- r.Watch(ctx, path, 100*time.Millisecond, func(s *Summary, err error) {
			if err != nil {
				t.Errorf("run failed: %v", err)
			}
			runs <- s
		})
	}()

	var first *Summary
	select {
	case first = <-runs:
	case <-ctx.Done():
		t.Fatal("initial run never happened")
	}
	require.Equal(t, CacheMiss, first.Cache)

	writeExport(t, path, 16)

	var second *Summary
	select {
	case second = <-runs:
	case <-ctx.Done():
		t.Fatal("no rerun after the export changed")
	}
	require.NotEqual(t, first.Fingerprint, second.Fingerprint)
	require.Equal(t, CacheMiss, second.Cache)

	cancel()
	require.NoError(t, <-done)
	require.GreaterOrEqual(t, len(gen.requests), 2)
	require.Equal(t, 16, gen.requests[len(gen.requests)-1].Nets[0].Length)
}
