package netlist

import (
	"sort"
	"strconv"
)

// NetRow is the persisted form of a net needing resolution.
type NetRow struct {
	Name      string `json:"name"`
	Origin    string `json:"origin"`
	Type      string `json:"type"`
	Endpoints int    `json:"endpoints"`
}

// Snapshot is the topology a set of generated artifacts was built from.
type Snapshot struct {
	Fingerprint uint64   `json:"fingerprint"`
	Nets        []NetRow `json:"nets"`
}

// Delta captures nets added and removed between two snapshots. A net whose
// type or endpoint count changed shows up in both lists.
type Delta struct {
	Added   []NetRow `json:"added"`
	Removed []NetRow `json:"removed"`
}

// Empty reports whether the two snapshots describe the same topology.
func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// TakeSnapshot records the nets needing resolution, sorted by name.
func TakeSnapshot(r *Registry) Snapshot {
	nets := r.NeedingResolution()
	rows := make([]NetRow, 0, len(nets))
	for _, n := range nets {
		rows = append(rows, NetRow{
			Name:      n.Name,
			Origin:    n.Origins.String(),
			Type:      n.ValueType(),
			Endpoints: n.EndpointCount(),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return Snapshot{Fingerprint: Fingerprint(r), Nets: rows}
}

// ComputeDelta computes row-level additions and removals between two
// snapshots.
func ComputeDelta(prev, next Snapshot) Delta {
	return Delta{
		Added:   diffRows(prev.Nets, next.Nets, netRowKey),
		Removed: diffRows(next.Nets, prev.Nets, netRowKey),
	}
}

func netRowKey(r NetRow) string {
	return r.Name + "|" + r.Origin + "|" + r.Type + "|" + strconv.Itoa(r.Endpoints)
}

func diffRows[T any](from, to []T, key func(T) string) []T {
	fromSet := make(map[string]T, len(from))
	for _, row := range from {
		fromSet[key(row)] = row
	}
	var diff []T
	for _, row := range to {
		rowKey := key(row)
		if _, ok := fromSet[rowKey]; !ok {
			diff = append(diff, row)
		}
	}
	if diff == nil {
		diff = []T{}
	}
	return diff
}
