package resolver

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// TimingEnv names a JSONL file that receives per-phase timing records,
// regardless of the Timing flag.
const TimingEnv = "NETRES_TIMING_JSONL"

type timingEvent struct {
	RunID      string  `json:"run_id"`
	Phase      string  `json:"phase"`
	Status     string  `json:"status,omitempty"`
	StartMS    float64 `json:"start_ms"`
	DurationMS float64 `json:"duration_ms"`
	EndMS      float64 `json:"end_ms"`
}

// timingRecorder appends one JSONL record per phase. A recorder with no
// path records nothing. Runs append, so watch mode keeps every run.
type timingRecorder struct {
	enabled bool
	runID   string
	start   time.Time
	events  []timingEvent
	file    *os.File
	enc     *json.Encoder
	err     error
}

func newTimingRecorder(runID string, start time.Time, path string) *timingRecorder {
	tr := &timingRecorder{runID: runID, start: start}
	if path == "" {
		return tr
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		tr.err = err
		return tr
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		tr.err = err
		return tr
	}
	tr.enabled = true
	tr.file = f
	tr.enc = json.NewEncoder(f)
	return tr
}

func (tr *timingRecorder) Enabled() bool {
	return tr != nil && tr.enabled
}

func (tr *timingRecorder) Err() error {
	if tr == nil {
		return nil
	}
	return tr.err
}

func (tr *timingRecorder) Close() {
	if tr == nil || tr.file == nil {
		return
	}
	_ = tr.file.Close()
}

// RecordPhase records one phase that started at start.
func (tr *timingRecorder) RecordPhase(phase string, start time.Time, status string) {
	if !tr.Enabled() {
		return
	}
	startMS := durationToMS(start.Sub(tr.start))
	durationMS := durationToMS(time.Since(start))
	event := timingEvent{
		RunID:      tr.runID,
		Phase:      phase,
		Status:     status,
		StartMS:    startMS,
		DurationMS: durationMS,
		EndMS:      startMS + durationMS,
	}
	tr.events = append(tr.events, event)
	_ = tr.enc.Encode(event)
}

func (r *Resolver) resolveTimingPath(baseDir string) string {
	if envPath := os.Getenv(TimingEnv); envPath != "" {
		return envPath
	}
	if r.TimingPath != "" {
		return r.TimingPath
	}
	if r.Config != nil && r.Config.Output.TimingPath != "" {
		return r.Config.Output.TimingPath
	}
	if r.Timing {
		if baseDir == "" {
			return "timing.jsonl"
		}
		return filepath.Join(baseDir, "timing.jsonl")
	}
	return ""
}
