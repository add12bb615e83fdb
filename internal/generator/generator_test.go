package generator

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robert-at-pretension-io/vhdl-netres/internal/netlist"
)

type stubGenerator struct {
	calls  int
	req    Request
	result Result
	err    error
}

func (s *stubGenerator) Resolve(_ context.Context, req Request) (Result, error) {
	s.calls++
	s.req = req
	return s.result, s.err
}

func vectorPair() *netlist.Net {
	n := &netlist.Net{Name: ".top.bus"}
	n.AttachSuffix(netlist.RoleDriver, ".top.bus_driver", 8, "std_logic_vector", "std_logic")
	n.AttachSuffix(netlist.RoleOthers, ".top.bus_others", 8, "std_logic_vector", "std_logic")
	n.NeedsResolution = true
	return n
}

func portMapNet() *netlist.Net {
	n := &netlist.Net{Name: ".tb.ac(2)"}
	n.AttachEndpoint(netlist.Endpoint{Driver: ".tb.sw1.b.driver", Receiver: ".tb.sw1.b.other", ValueType: "real"})
	n.AttachEndpoint(netlist.Endpoint{Driver: ".tb.sw2.a.driver", Receiver: ".tb.sw2.a.other", ValueType: "real"})
	n.NeedsResolution = true
	return n
}

func writeStub(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stub generator requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "generator.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func newTestProcess(t *testing.T, script string) *Process {
	t.Helper()
	p, err := NewProcess([]string{writeStub(t, script)}, nil, nil)
	require.NoError(t, err)
	return p
}

func TestGenerateEmptyShortCircuits(t *testing.T) {
	g := &stubGenerator{}
	res, err := Generate(context.Background(), g, "top", nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeNothing, res.Outcome)
	require.Zero(t, g.calls)
}

func TestGenerateEmptyArtifactsIsDecline(t *testing.T) {
	g := &stubGenerator{result: Result{Outcome: OutcomeArtifacts, Artifacts: map[string]string{}}}
	res, err := Generate(context.Background(), g, "top", []*netlist.Net{vectorPair()})
	require.NoError(t, err)
	require.Equal(t, OutcomeDeclined, res.Outcome)
	require.Equal(t, 1, g.calls)
}

func TestGenerateRejectsNothingFromGenerator(t *testing.T) {
	g := &stubGenerator{result: Result{Outcome: OutcomeNothing}}
	_, err := Generate(context.Background(), g, "top", []*netlist.Net{vectorPair()})
	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestDescribeForms(t *testing.T) {
	descs := Describe([]*netlist.Net{vectorPair(), portMapNet()})
	require.Len(t, descs, 2)

	require.Equal(t, FormSuffixPair, descs[0].Form)
	require.Equal(t, 8, descs[0].Length)
	require.Equal(t, ".top.bus_driver", descs[0].DriverRef)
	require.Equal(t, ".top.bus_others", descs[0].OthersRef)

	require.Equal(t, FormPortMap, descs[1].Form)
	require.Equal(t, 2, descs[1].Length)
	require.Equal(t, "real", descs[1].Type)
	require.Equal(t, ".tb.sw1.b.driver", descs[1].Endpoints[0].Driver)

	raw, err := json.Marshal(descs[1])
	require.NoError(t, err)
	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &fields))
	require.NotContains(t, fields, "driver_ename")
	require.NotContains(t, fields, "elem_type")
	require.Contains(t, fields, "endpoints")
}

func TestProcessArtifacts(t *testing.T) {
	p := newTestProcess(t, `cat > "$(dirname "$0")/request.json"
printf '%s' '{"kind":"artifacts","artifacts":{"top_resolver.vhd":"entity x is end;\n"}}'
`)
	res, err := Generate(context.Background(), p, "top", []*netlist.Net{vectorPair(), portMapNet()})
	require.NoError(t, err)
	require.Equal(t, OutcomeArtifacts, res.Outcome)
	require.Equal(t, "entity x is end;\n", res.Artifacts["top_resolver.vhd"])

	raw, err := os.ReadFile(filepath.Join(filepath.Dir(p.Command[0]), "request.json"))
	require.NoError(t, err)
	var req struct {
		Design string                   `json:"design"`
		Nets   []map[string]interface{} `json:"nets"`
	}
	require.NoError(t, json.Unmarshal(raw, &req))
	require.Equal(t, "top", req.Design)
	require.Len(t, req.Nets, 2)
	require.Equal(t, ".top.bus", req.Nets[0]["net_name"])
	require.Equal(t, "port_map", req.Nets[1]["form"])
}

func TestProcessDeclines(t *testing.T) {
	for name, reply := range map[string]string{
		"null":     `null`,
		"declined": `{"kind":"declined","message":"no model for real nets"}`,
	} {
		t.Run(name, func(t *testing.T) {
			p := newTestProcess(t, "cat >/dev/null\nprintf '%s' '"+reply+"'\n")
			res, err := Generate(context.Background(), p, "top", []*netlist.Net{vectorPair()})
			require.NoError(t, err)
			require.Equal(t, OutcomeDeclined, res.Outcome)
		})
	}
}

func TestProcessMalformed(t *testing.T) {
	for name, reply := range map[string]string{
		"wrong field":   `{"kind":"artifacts","files":{"a.vhd":"x"}}`,
		"not json":      `resolver generated`,
		"empty":         ``,
		"unknown kind":  `{"kind":"maybe"}`,
		"bad file name": `{"kind":"artifacts","artifacts":{"../escape.vhd":"x"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			p := newTestProcess(t, "cat >/dev/null\nprintf '%s' '"+reply+"'\n")
			_, err := Generate(context.Background(), p, "top", []*netlist.Net{vectorPair()})
			require.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestProcessErrorReply(t *testing.T) {
	p := newTestProcess(t, "cat >/dev/null\nprintf '%s' '{\"kind\":\"error\",\"message\":\"boom\"}'\n")
	_, err := Generate(context.Background(), p, "top", []*netlist.Net{vectorPair()})
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
	require.False(t, errors.Is(err, ErrMalformedResponse))
}

func TestProcessExitFailure(t *testing.T) {
	p := newTestProcess(t, "cat >/dev/null\necho 'traceback: bad net' >&2\nexit 3\n")
	_, err := Generate(context.Background(), p, "top", []*netlist.Net{vectorPair()})
	require.Error(t, err)
	require.Contains(t, err.Error(), "traceback: bad net")
}

func TestProcessUnavailable(t *testing.T) {
	p := &Process{Command: []string{filepath.Join(t.TempDir(), "missing-generator")}}
	_, err := Generate(context.Background(), p, "top", []*netlist.Net{vectorPair()})
	require.Error(t, err)
	require.True(t, IsUnavailable(err))
}
