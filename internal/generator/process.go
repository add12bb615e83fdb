package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/robert-at-pretension-io/vhdl-netres/internal/validator"
)

// DefaultBinary is looked up on PATH when no generator command is configured.
const DefaultBinary = "netres-generator"

// maxStderrLog bounds how much generator stderr is attached to an error.
const maxStderrLog = 4096

// Process runs an external generator: one JSON request on stdin, one JSON
// response on stdout.
type Process struct {
	// Command is the generator argv. Empty means DefaultBinary on PATH.
	Command []string

	// Env is extra KEY=VALUE environment appended to the current one.
	Env []string

	// Validator checks both directions of the protocol. Nil skips the
	// checks.
	Validator *validator.GeneratorValidator

	Logger *slog.Logger
}

type response struct {
	Kind      string            `json:"kind"`
	Artifacts map[string]string `json:"artifacts"`
	Message   string            `json:"message"`
}

// NewProcess returns a generator process for command with the protocol
// validator attached.
func NewProcess(command, env []string, logger *slog.Logger) (*Process, error) {
	v, err := validator.NewGeneratorValidator()
	if err != nil {
		return nil, fmt.Errorf("init generator validator: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Process{Command: command, Env: env, Validator: v, Logger: logger}, nil
}

// Resolve implements Generator.
func (p *Process) Resolve(ctx context.Context, req Request) (Result, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("marshal generator request: %w", err)
	}
	if p.Validator != nil {
		if err := p.Validator.ValidateRequestJSON(payload); err != nil {
			return Result{}, fmt.Errorf("generator request schema invalid: %w", err)
		}
	}

	argv, err := p.argv()
	if err != nil {
		return Result{}, err
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), p.Env...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Info("invoking generator", "command", argv[0], "design", req.Design, "nets", len(req.Nets))
	if err := cmd.Run(); err != nil {
		return Result{}, fmt.Errorf("generator %s failed: %w%s", argv[0], err, stderrTail(stderr.Bytes()))
	}
	if stderr.Len() > 0 {
		logger.Debug("generator stderr", "output", strings.TrimSpace(stderr.String()))
	}

	return p.decode(bytes.TrimSpace(stdout.Bytes()))
}

func (p *Process) decode(out []byte) (Result, error) {
	if len(out) == 0 {
		return Result{}, fmt.Errorf("%w: empty output", ErrMalformedResponse)
	}
	// A bare null is the generator's way of saying "no artifact".
	if bytes.Equal(out, []byte("null")) {
		return Result{Outcome: OutcomeDeclined}, nil
	}
	if p.Validator != nil {
		if err := p.Validator.ValidateResponseJSON(out); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}

	var resp response
	if err := json.Unmarshal(out, &resp); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	switch resp.Kind {
	case "artifacts":
		return Result{Outcome: OutcomeArtifacts, Artifacts: resp.Artifacts}, nil
	case "declined":
		return Result{Outcome: OutcomeDeclined, Message: resp.Message}, nil
	case "error":
		return Result{}, fmt.Errorf("generator error: %s", resp.Message)
	default:
		return Result{}, fmt.Errorf("%w: unknown kind %q", ErrMalformedResponse, resp.Kind)
	}
}

func (p *Process) argv() ([]string, error) {
	if len(p.Command) > 0 && p.Command[0] != "" {
		return p.Command, nil
	}
	bin, err := exec.LookPath(DefaultBinary)
	if err != nil {
		return nil, fmt.Errorf("generator unavailable: %w", err)
	}
	return []string{bin}, nil
}

func stderrTail(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return ""
	}
	if len(b) > maxStderrLog {
		b = b[len(b)-maxStderrLog:]
	}
	return ": " + string(b)
}

// IsUnavailable reports whether err means the generator binary could not
// be found or started.
func IsUnavailable(err error) bool {
	var execErr *exec.Error
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.As(err, &execErr)
}
