package netlist

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestComputeDelta(t *testing.T) {
	prev := TakeSnapshot(registryOf(
		suffixNet(".top.bus", 8, 8, true, true),
		portNet(".top.ac(2)", 2),
	))
	next := TakeSnapshot(registryOf(
		suffixNet(".top.bus", 8, 8, true, true),
		portNet(".top.ac(2)", 3),
		suffixNet(".top.data", 4, 4, true, true),
	))

	delta := ComputeDelta(prev, next)
	wantAdded := []NetRow{
		{Name: ".top.ac(2)", Origin: "port_map", Type: "real", Endpoints: 3},
		{Name: ".top.data", Origin: "suffix_pair", Type: "std_logic_vector", Endpoints: 4},
	}
	wantRemoved := []NetRow{
		{Name: ".top.ac(2)", Origin: "port_map", Type: "real", Endpoints: 2},
	}
	if diff := cmp.Diff(wantAdded, delta.Added); diff != "" {
		t.Errorf("added mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantRemoved, delta.Removed); diff != "" {
		t.Errorf("removed mismatch (-want +got):\n%s", diff)
	}
	if delta.Empty() {
		t.Fatal("expected non-empty delta")
	}
}

func TestComputeDeltaUnchanged(t *testing.T) {
	snap := TakeSnapshot(registryOf(suffixNet(".top.bus", 8, 8, true, true)))
	delta := ComputeDelta(snap, snap)
	if !delta.Empty() {
		t.Fatalf("expected empty delta, got %+v", delta)
	}
	if delta.Added == nil || delta.Removed == nil {
		t.Fatal("expected empty slices, not nil")
	}
}
