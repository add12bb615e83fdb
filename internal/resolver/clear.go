package resolver

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/robert-at-pretension-io/vhdl-netres/internal/cache"
)

// ClearCache removes every cached artifact and the stored topology for the
// project rooted at baseDir. It returns the directory that was cleared.
func (r *Resolver) ClearCache(baseDir string) (string, error) {
	dir := cache.ResolveDir(baseDir, r.Config)
	if err := cache.New(dir, r.logger()).Clear(); err != nil {
		return dir, fmt.Errorf("clear cache: %w", err)
	}
	return dir, nil
}

// BaseDir returns the directory a hierarchy export path lives in, or path
// itself when it is a directory.
func BaseDir(path string) string {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return path
	}
	return filepath.Dir(path)
}
