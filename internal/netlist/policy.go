package netlist

import (
	"context"
	"fmt"
	"sort"
)

// Reason explains a classification decision.
type Reason string

const (
	// ReasonMultipleEndpoints: a port-map net with two or more endpoints.
	ReasonMultipleEndpoints Reason = "multiple_endpoints"

	// ReasonVectorPair: a complete suffix pair with vector length > 1.
	ReasonVectorPair Reason = "vector_pair"

	// ReasonScalar: a complete suffix pair of length 1 has exactly one
	// possible driver.
	ReasonScalar Reason = "scalar"

	// ReasonIncompletePair: only one of the _driver/_others signals exists.
	ReasonIncompletePair Reason = "incomplete_pair"

	// ReasonSingleEndpoint: a port-map net with one endpoint (a leaf).
	ReasonSingleEndpoint Reason = "single_endpoint"

	// ReasonConflict: both strategies produced a net with this name.
	ReasonConflict Reason = "conflict"

	// ReasonExempt: a site policy rule exempted the net.
	ReasonExempt Reason = "exempt"
)

// Classify applies the default resolution policy to every net. It must run
// after discovery over the whole hierarchy has finished, since a port-map
// net can gain endpoints from instances anywhere below its scope.
func Classify(r *Registry) {
	for _, n := range r.Nets() {
		n.NeedsResolution, n.Reason = decide(n)
	}
}

func decide(n *Net) (bool, Reason) {
	switch n.Origins {
	case OriginPortMap:
		if len(n.Endpoints) >= 2 {
			return true, ReasonMultipleEndpoints
		}
		return false, ReasonSingleEndpoint
	case OriginSuffix:
		if !n.Pair.Complete() {
			return false, ReasonIncompletePair
		}
		if n.Length > 1 {
			return true, ReasonVectorPair
		}
		return false, ReasonScalar
	case OriginSuffix | OriginPortMap:
		return false, ReasonConflict
	default:
		return false, ReasonSingleEndpoint
	}
}

// Exemptions names nets a site policy wants left alone even though the
// default policy would resolve them.
type Exemptions interface {
	Exempt(ctx context.Context, nets []*Net) ([]string, error)
}

// ClassifyWith applies the default policy and then the exemptions, if any.
// Exemptions can only clear NeedsResolution, never set it.
func ClassifyWith(ctx context.Context, r *Registry, ex Exemptions) error {
	Classify(r)
	if ex == nil {
		return nil
	}
	names, err := ex.Exempt(ctx, r.Nets())
	if err != nil {
		return fmt.Errorf("evaluating exemptions: %w", err)
	}
	for _, name := range names {
		n, ok := r.Get(name)
		if !ok || !n.NeedsResolution {
			continue
		}
		n.NeedsResolution = false
		n.Reason = ReasonExempt
	}
	return nil
}

// Conflicts returns the nets both strategies claimed.
func (r *Registry) Conflicts() []*Net {
	var out []*Net
	for _, n := range r.nets {
		if n.Origins == OriginSuffix|OriginPortMap {
			out = append(out, n)
		}
	}
	return out
}

func (n *Net) endpointTypes() []string {
	seen := make(map[string]bool, len(n.Endpoints))
	var types []string
	for _, ep := range n.Endpoints {
		if seen[ep.ValueType] {
			continue
		}
		seen[ep.ValueType] = true
		types = append(types, ep.ValueType)
	}
	sort.Strings(types)
	return types
}
