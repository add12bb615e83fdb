// Package generator dispatches nets that need resolution to the external
// resolver generator and checks what comes back.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/robert-at-pretension-io/vhdl-netres/internal/netlist"
)

// ErrMalformedResponse is returned when the generator reply does not match
// the generator protocol.
var ErrMalformedResponse = errors.New("malformed generator response")

// Form values of a NetDescription.
const (
	FormSuffixPair = "suffix_pair"
	FormPortMap    = "port_map"
)

// NetDescription is the per-net payload sent to the generator.
type NetDescription struct {
	Name     string
	Form     string
	Type     string
	ElemType string
	Length   int

	// DriverRef and OthersRef are set for the suffix-pair form.
	DriverRef string
	OthersRef string

	// Endpoints is set for the port-map form, in discovery order.
	Endpoints []netlist.Endpoint
}

type suffixPairWire struct {
	Name        string `json:"net_name"`
	Form        string `json:"form"`
	Type        string `json:"type"`
	ElemType    string `json:"elem_type"`
	Length      int    `json:"length"`
	DriverEName string `json:"driver_ename"`
	OthersEName string `json:"others_ename"`
}

type portMapWire struct {
	Name      string             `json:"net_name"`
	Form      string             `json:"form"`
	Type      string             `json:"type"`
	Length    int                `json:"length"`
	Endpoints []netlist.Endpoint `json:"endpoints"`
}

// MarshalJSON emits only the fields of the description's form.
func (d NetDescription) MarshalJSON() ([]byte, error) {
	if d.Form == FormPortMap {
		return json.Marshal(portMapWire{
			Name:      d.Name,
			Form:      d.Form,
			Type:      d.Type,
			Length:    d.Length,
			Endpoints: d.Endpoints,
		})
	}
	return json.Marshal(suffixPairWire{
		Name:        d.Name,
		Form:        d.Form,
		Type:        d.Type,
		ElemType:    d.ElemType,
		Length:      d.Length,
		DriverEName: d.DriverRef,
		OthersEName: d.OthersRef,
	})
}

// Describe builds the request payload for nets, in the given order.
func Describe(nets []*netlist.Net) []NetDescription {
	out := make([]NetDescription, 0, len(nets))
	for _, n := range nets {
		if n.Origins == netlist.OriginPortMap {
			out = append(out, NetDescription{
				Name:      n.Name,
				Form:      FormPortMap,
				Type:      n.ValueType(),
				Length:    len(n.Endpoints),
				Endpoints: append([]netlist.Endpoint(nil), n.Endpoints...),
			})
			continue
		}
		out = append(out, NetDescription{
			Name:      n.Name,
			Form:      FormSuffixPair,
			Type:      n.Type,
			ElemType:  n.ElemType,
			Length:    n.Length,
			DriverRef: n.Pair.DriverRef,
			OthersRef: n.Pair.OthersRef,
		})
	}
	return out
}

// Request is one generator invocation.
type Request struct {
	Design string           `json:"design"`
	Nets   []NetDescription `json:"nets"`
}

// Outcome tags a generator Result.
type Outcome int

const (
	// OutcomeNothing: no net needed resolution; the generator was not called.
	OutcomeNothing Outcome = iota

	// OutcomeDeclined: the generator produced no artifact for this input.
	OutcomeDeclined

	// OutcomeArtifacts: the generator produced one or more named artifacts.
	OutcomeArtifacts
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNothing:
		return "nothing"
	case OutcomeDeclined:
		return "declined"
	case OutcomeArtifacts:
		return "artifacts"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result is what a generation step produced.
type Result struct {
	Outcome Outcome

	// Artifacts maps file name to text content when Outcome is
	// OutcomeArtifacts.
	Artifacts map[string]string

	// Message is the generator's explanation for a decline, if any.
	Message string
}

// Generator turns a request into artifacts. Implementations return
// OutcomeDeclined for a legitimate empty answer and an error for anything
// that is not a valid answer.
type Generator interface {
	Resolve(ctx context.Context, req Request) (Result, error)
}

// Generate runs one generation step for the nets needing resolution.
// An empty net list short-circuits to OutcomeNothing without calling g.
func Generate(ctx context.Context, g Generator, design string, nets []*netlist.Net) (Result, error) {
	if len(nets) == 0 {
		return Result{Outcome: OutcomeNothing}, nil
	}
	if g == nil {
		return Result{}, errors.New("no generator configured")
	}

	res, err := g.Resolve(ctx, Request{Design: design, Nets: Describe(nets)})
	if err != nil {
		return Result{}, err
	}

	switch res.Outcome {
	case OutcomeDeclined:
		return Result{Outcome: OutcomeDeclined, Message: res.Message}, nil
	case OutcomeArtifacts:
		if len(res.Artifacts) == 0 {
			return Result{Outcome: OutcomeDeclined, Message: res.Message}, nil
		}
		return res, nil
	default:
		return Result{}, fmt.Errorf("%w: unexpected outcome %s", ErrMalformedResponse, res.Outcome)
	}
}
