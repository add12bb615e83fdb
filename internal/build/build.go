// Package build hands generated artifacts to an external VHDL compiler and
// counts which ones it accepted.
package build

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Compiler analyzes one source file. A nil error means the file was
// accepted; the returned output is the compiler's diagnostics either way.
type Compiler interface {
	Compile(ctx context.Context, path string) (output string, err error)
}

// NVC runs `nvc --std=<Std> --work=<WorkDir> -a <file>`.
type NVC struct {
	Binary  string
	Std     string
	WorkDir string
}

// Compile implements Compiler.
func (n NVC) Compile(ctx context.Context, path string) (string, error) {
	bin := n.Binary
	if bin == "" {
		bin = "nvc"
	}
	var args []string
	if n.Std != "" {
		args = append(args, "--std="+n.Std)
	}
	if n.WorkDir != "" {
		if err := os.MkdirAll(n.WorkDir, 0o755); err != nil {
			return "", fmt.Errorf("work dir: %w", err)
		}
		args = append(args, "--work="+n.WorkDir)
	}
	args = append(args, "-a", path)

	cmd := exec.CommandContext(ctx, bin, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("%s -a %s: %w", bin, path, err)
	}
	return out.String(), nil
}

// FileOutcome is the compile result for one artifact.
type FileOutcome struct {
	Path  string `json:"path"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Report aggregates compile results.
type Report struct {
	Files     []FileOutcome `json:"files"`
	Validated int           `json:"validated"`
	Failed    int           `json:"failed"`
}

// Dispatch compiles each path in order. A failure is logged and counted;
// later files are still compiled and nothing already written is removed.
func Dispatch(ctx context.Context, c Compiler, paths []string, logger *slog.Logger) Report {
	if logger == nil {
		logger = slog.Default()
	}
	report := Report{Files: []FileOutcome{}}
	for _, path := range paths {
		output, err := c.Compile(ctx, path)
		logOutput(logger, path, output)
		if err != nil {
			logger.Warn("artifact failed to compile", "file", path, "error", err)
			report.Files = append(report.Files, FileOutcome{Path: path, Error: err.Error()})
			report.Failed++
			continue
		}
		logger.Info("artifact compiled", "file", path)
		report.Files = append(report.Files, FileOutcome{Path: path, OK: true})
		report.Validated++
	}
	return report
}

func logOutput(logger *slog.Logger, path, output string) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		if line := strings.TrimRight(scanner.Text(), "\r"); line != "" {
			logger.Debug("compiler", "file", path, "line", line)
		}
	}
}
