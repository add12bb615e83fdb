package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolvePolicyFiles(t *testing.T) {
	root := t.TempDir()
	policyDir := filepath.Join(root, "policy", "site")
	if err := os.MkdirAll(policyDir, 0o755); err != nil {
		t.Fatalf("mkdir policy: %v", err)
	}

	files := map[string]string{
		filepath.Join(root, "policy", "base.rego"): "package netres",
		filepath.Join(policyDir, "exempt.rego"):    "package netres",
		filepath.Join(policyDir, "draft.rego"):     "package netres",
		filepath.Join(policyDir, "notes.txt"):      "not a policy",
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}

	cfg := Config{Policy: PolicyConfig{
		Files:   []string{"policy/**/*.rego"},
		Exclude: []string{"policy/site/draft.rego"},
	}}

	got, err := cfg.ResolvePolicyFiles(root)
	if err != nil {
		t.Fatalf("ResolvePolicyFiles: %v", err)
	}
	want := []string{
		filepath.Join(root, "policy", "base.rego"),
		filepath.Join(policyDir, "exempt.rego"),
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d files, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("file %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestResolvePolicyFilesNoPatterns(t *testing.T) {
	cfg := DefaultConfig()
	got, err := cfg.ResolvePolicyFiles(t.TempDir())
	if err != nil {
		t.Fatalf("ResolvePolicyFiles: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no policy files, got %v", got)
	}
}
