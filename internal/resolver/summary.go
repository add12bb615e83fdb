package resolver

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/robert-at-pretension-io/vhdl-netres/internal/build"
	"github.com/robert-at-pretension-io/vhdl-netres/internal/cache"
	"github.com/robert-at-pretension-io/vhdl-netres/internal/netlist"
)

// Cache states reported in Summary.Cache.
const (
	CacheDisabled = "disabled"
	CacheHit      = "hit"
	CacheMiss     = "miss"
	CacheSkipped  = "skipped"
)

// Generation states reported in Summary.Generation.
const (
	GenerationNothing   = "nothing"
	GenerationSkipped   = "skipped"
	GenerationDeclined  = "declined"
	GenerationArtifacts = "artifacts"
	GenerationError     = "error"
)

// Unresolved reasons beyond the policy reasons.
const (
	ReasonDeclined       = "declined"
	ReasonGeneratorError = "generator_error"
)

// Summary is the structured result of one run. It can be serialized to JSON
// for programmatic consumption.
type Summary struct {
	RunID       string `json:"run_id"`
	Design      string `json:"design"`
	Fingerprint string `json:"fingerprint"`
	CacheMode   string `json:"cache_mode"`
	Cache       string `json:"cache"`
	Generation  string `json:"generation"`
	Message     string `json:"message,omitempty"`

	Stats  Stats  `json:"stats"`
	Counts Counts `json:"counts"`

	// Nets lists every net needing resolution, sorted by name.
	Nets []NetSummary `json:"nets"`

	// Unresolved lists every discovered net that ends the run without
	// resolution logic although it was a candidate for it.
	Unresolved []UnresolvedNet `json:"unresolved"`

	// NotResolved lists every discovered net the policy left alone, with
	// the policy's reason (scalar, incomplete_pair, single_endpoint,
	// exempt).
	NotResolved []UnresolvedNet `json:"not_resolved"`

	Files []cache.FileResult `json:"files"`
	Delta *netlist.Delta     `json:"delta,omitempty"`
	Build *build.Report      `json:"build,omitempty"`

	// BuildHint is the elaborate/run command pair for the resolved wrapper.
	BuildHint []string `json:"build_hint,omitempty"`

	DurationMS float64 `json:"duration_ms"`
}

// Stats counts what the walk and the policy saw.
type Stats struct {
	Regions                 int `json:"regions"`
	SignalsScanned          int `json:"signals_scanned"`
	InstancesScanned        int `json:"instances_scanned"`
	NetsDiscovered          int `json:"nets_discovered"`
	NetsRequiringResolution int `json:"nets_requiring_resolution"`
	Conflicts               int `json:"conflicts"`
	Exempt                  int `json:"exempt"`
	Skipped                 int `json:"skipped"`
	Warnings                int `json:"warnings"`
}

// Counts aggregates artifact outcomes.
type Counts struct {
	Written   int `json:"written"`
	Cached    int `json:"cached"`
	Validated int `json:"validated"`
	Failed    int `json:"failed"`
}

// NetSummary describes one net needing resolution.
type NetSummary struct {
	Name      string   `json:"name"`
	Origin    string   `json:"origin"`
	Type      string   `json:"type"`
	ElemType  string   `json:"elem_type,omitempty"`
	Length    int      `json:"length"`
	Endpoints int      `json:"endpoints"`
	Refs      []string `json:"refs"`
	Reason    string   `json:"reason"`
}

// UnresolvedNet is a net left without resolution logic.
type UnresolvedNet struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Endpoints int    `json:"endpoints"`
	Reason    string `json:"reason"`
}

// OK reports whether the run finished without generation, write or compile
// failures.
func (s *Summary) OK() bool {
	return s.Generation != GenerationError && s.Counts.Failed == 0
}

func summarizeNet(n *netlist.Net) NetSummary {
	ns := NetSummary{
		Name:      n.Name,
		Origin:    n.Origins.String(),
		Type:      n.ValueType(),
		ElemType:  n.ElemType,
		Length:    n.Length,
		Endpoints: n.EndpointCount(),
		Reason:    string(n.Reason),
	}
	if n.Origins == netlist.OriginSuffix {
		ns.Refs = []string{n.Pair.DriverRef, n.Pair.OthersRef}
	} else {
		for _, ep := range n.Endpoints {
			ns.Refs = append(ns.Refs, ep.Driver, ep.Receiver)
		}
	}
	if ns.Refs == nil {
		ns.Refs = []string{}
	}
	return ns
}

func unresolved(n *netlist.Net, reason string) UnresolvedNet {
	return UnresolvedNet{
		Name:      n.Name,
		Type:      n.ValueType(),
		Endpoints: n.EndpointCount(),
		Reason:    reason,
	}
}

// BuildHint returns the commands that elaborate and run the resolved
// wrapper of design.
func BuildHint(design, std, workDir string) []string {
	flags := fmt.Sprintf("--std=%s --work=%s", std, workDir)
	top := "resolved_" + design
	return []string{
		fmt.Sprintf("nvc %s -e %s", flags, top),
		fmt.Sprintf("nvc %s -r %s", flags, top),
	}
}

// WriteJSON writes s as indented JSON.
func (s *Summary) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	return nil
}

// WriteText writes the human-readable report.
func (s *Summary) WriteText(w io.Writer) {
	if len(s.Nets) > 0 {
		fmt.Fprintf(w, "\n=== Nets Requiring Resolution ===\n")
		for _, n := range s.Nets {
			if n.Origin == netlist.OriginSuffix.String() {
				fmt.Fprintf(w, "  %s: %s, length %d\n", n.Name, n.Type, n.Length)
			} else {
				fmt.Fprintf(w, "  %s: %d endpoints, type %s\n", n.Name, n.Endpoints, n.Type)
			}
			for _, ref := range n.Refs {
				fmt.Fprintf(w, "    %s\n", ref)
			}
		}
	}

	if s.Delta != nil && !s.Delta.Empty() {
		fmt.Fprintf(w, "\n=== Topology Changes ===\n")
		for _, r := range s.Delta.Added {
			fmt.Fprintf(w, "  + %s (%s, %d endpoints)\n", r.Name, r.Type, r.Endpoints)
		}
		for _, r := range s.Delta.Removed {
			fmt.Fprintf(w, "  - %s (%s, %d endpoints)\n", r.Name, r.Type, r.Endpoints)
		}
	}

	if len(s.Files) > 0 {
		fmt.Fprintf(w, "\n=== Artifacts ===\n")
		for _, f := range s.Files {
			if f.Error != "" {
				fmt.Fprintf(w, "  %-8s %s: %s\n", f.Status, f.Path, f.Error)
				continue
			}
			fmt.Fprintf(w, "  %-8s %s\n", f.Status, f.Path)
		}
	}

	if len(s.NotResolved) > 0 {
		fmt.Fprintf(w, "\n=== Not Resolved ===\n")
		for _, u := range s.NotResolved {
			fmt.Fprintf(w, "  %s (%d endpoints, type %s) [%s]\n", u.Name, u.Endpoints, u.Type, u.Reason)
		}
	}

	if len(s.Unresolved) > 0 {
		fmt.Fprintf(w, "\n=== Unresolved ===\n")
		for _, u := range s.Unresolved {
			fmt.Fprintf(w, "  UNRESOLVED %s (%d endpoints, type %s) [%s]\n", u.Name, u.Endpoints, u.Type, u.Reason)
		}
	}

	fmt.Fprintf(w, "\n=== Resolution Summary ===\n")
	fmt.Fprintf(w, "  Design:                    %s\n", s.Design)
	fmt.Fprintf(w, "  Signals scanned:           %d\n", s.Stats.SignalsScanned)
	fmt.Fprintf(w, "  Instances scanned:         %d\n", s.Stats.InstancesScanned)
	fmt.Fprintf(w, "  Nets discovered:           %d\n", s.Stats.NetsDiscovered)
	fmt.Fprintf(w, "  Nets requiring resolution: %d\n", s.Stats.NetsRequiringResolution)
	if s.Stats.Conflicts > 0 {
		fmt.Fprintf(w, "  Conflicting nets:          %d\n", s.Stats.Conflicts)
	}
	if s.Stats.Warnings > 0 {
		fmt.Fprintf(w, "  Warnings:                  %d\n", s.Stats.Warnings)
	}
	fmt.Fprintf(w, "  Topology hash:             %s\n", s.Fingerprint)
	fmt.Fprintf(w, "  Cache:                     %s (%s)\n", s.Cache, s.CacheMode)
	fmt.Fprintf(w, "  Generation:                %s\n", s.Generation)
	if s.Message != "" {
		fmt.Fprintf(w, "  Message:                   %s\n", s.Message)
	}
	fmt.Fprintf(w, "  Written: %d  Cached: %d  Validated: %d  Failed: %d\n",
		s.Counts.Written, s.Counts.Cached, s.Counts.Validated, s.Counts.Failed)

	if len(s.BuildHint) > 0 {
		fmt.Fprintf(w, "\n=== Next Steps ===\n")
		fmt.Fprintf(w, "  %s\n", strings.Join(s.BuildHint, "\n  "))
	}
}

func durationToMS(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1_000_000.0
}
