package netlist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/open-policy-agent/opa/rego"
)

// ExemptQuery is the rule RegoPolicy evaluates. It must produce a set (or
// array) of canonical net names.
const ExemptQuery = "data.netres.exempt"

// RegoPolicy evaluates site-specific OPA rules that exempt nets from
// resolution, for example nets a hand-written resolver already covers.
type RegoPolicy struct {
	query rego.PreparedEvalQuery
}

// regoNet is the per-net input document seen by the rules.
type regoNet struct {
	Name            string `json:"name"`
	Origin          string `json:"origin"`
	Type            string `json:"type"`
	Length          int    `json:"length"`
	Endpoints       int    `json:"endpoints"`
	NeedsResolution bool   `json:"needs_resolution"`
	Reason          string `json:"reason"`
}

// NewRegoPolicy compiles the given .rego files into one exempt query.
func NewRegoPolicy(ctx context.Context, files []string) (*RegoPolicy, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no policy files given")
	}
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)

	opts := []func(*rego.Rego){rego.Query(ExemptQuery)}
	for _, f := range sorted {
		content, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f, err)
		}
		opts = append(opts, rego.Module(f, string(content)))
	}
	return newRegoPolicy(ctx, opts...)
}

// NewRegoPolicyFromSource compiles a single in-memory module.
func NewRegoPolicyFromSource(ctx context.Context, name, source string) (*RegoPolicy, error) {
	return newRegoPolicy(ctx, rego.Query(ExemptQuery), rego.Module(name, source))
}

func newRegoPolicy(ctx context.Context, opts ...func(*rego.Rego)) (*RegoPolicy, error) {
	query, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("preparing exempt query: %w", err)
	}
	return &RegoPolicy{query: query}, nil
}

// Exempt implements Exemptions.
func (p *RegoPolicy) Exempt(ctx context.Context, nets []*Net) ([]string, error) {
	input, err := regoInput(nets)
	if err != nil {
		return nil, fmt.Errorf("converting input: %w", err)
	}

	rs, err := p.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("evaluating exempt rules: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, nil
	}

	values, ok := rs[0].Expressions[0].Value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%s: expected a set of net names, got %T", ExemptQuery, rs[0].Expressions[0].Value)
	}
	names := make([]string, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s: expected string net name, got %T", ExemptQuery, v)
		}
		names = append(names, s)
	}
	return names, nil
}

func regoInput(nets []*Net) (map[string]interface{}, error) {
	rows := make([]regoNet, 0, len(nets))
	for _, n := range nets {
		rows = append(rows, regoNet{
			Name:            n.Name,
			Origin:          n.Origins.String(),
			Type:            n.ValueType(),
			Length:          n.Length,
			Endpoints:       n.EndpointCount(),
			NeedsResolution: n.NeedsResolution,
			Reason:          string(n.Reason),
		})
	}
	data, err := json.Marshal(map[string]interface{}{"nets": rows})
	if err != nil {
		return nil, err
	}
	var input map[string]interface{}
	err = json.Unmarshal(data, &input)
	return input, err
}
