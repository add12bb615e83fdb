// Package netlist holds the nets discovered in one analysis run, the policy
// that decides which of them need generated resolution logic, and the
// topology fingerprint used as the generation cache key.
package netlist

import "strings"

// Origin records which discovery strategy contributed to a net.
type Origin uint8

const (
	// OriginSuffix marks a net found by pairing _driver/_others signals.
	OriginSuffix Origin = 1 << iota

	// OriginPortMap marks a net found by grouping bidirectional primitive
	// port-map actuals.
	OriginPortMap
)

// String returns the report spelling of the origin set.
func (o Origin) String() string {
	switch o {
	case OriginSuffix:
		return "suffix_pair"
	case OriginPortMap:
		return "port_map"
	case OriginSuffix | OriginPortMap:
		return "conflict"
	default:
		return "none"
	}
}

// Role is the side of a suffix-paired net a signal represents.
type Role int

const (
	RoleDriver Role = iota
	RoleOthers
)

// Endpoint is one terminal of a net: the implicit signal carrying what the
// terminal drives, and the one carrying what it sees from everyone else.
type Endpoint struct {
	Driver    string `json:"driver"`
	Receiver  string `json:"receiver"`
	ValueType string `json:"value_type"`
}

// SuffixPair is the driver/others signal pair of a suffix-paired net.
type SuffixPair struct {
	DriverRef string
	OthersRef string
	HasDriver bool
	HasOthers bool
}

// Complete reports whether both sides of the pair were found.
func (p SuffixPair) Complete() bool {
	return p.HasDriver && p.HasOthers
}

// Net is a named connection point that may have several drivers.
type Net struct {
	// Name is the canonical external name (".top.sig" or ".top.ac(2)").
	Name string

	// Type and ElemType are the declared signal and element types of a
	// suffix-paired net.
	Type     string
	ElemType string

	// Length is the vector length of a suffix-paired net (1 for scalars).
	Length int

	Pair      SuffixPair
	Endpoints []Endpoint
	Origins   Origin

	// NeedsResolution and Reason are owned by the resolution policy.
	NeedsResolution bool
	Reason          Reason
}

// AttachSuffix records one side of a suffix-paired net. The net length
// becomes the larger of the two declared sizes; a non-positive size counts
// as a scalar.
func (n *Net) AttachSuffix(role Role, ref string, size int, typ, elemType string) {
	n.Origins |= OriginSuffix
	if size <= 0 {
		size = 1
	}
	if n.Type == "" {
		n.Type = typ
	}
	if n.ElemType == "" {
		n.ElemType = elemType
	}
	switch role {
	case RoleDriver:
		n.Pair.DriverRef = ref
		n.Pair.HasDriver = true
	case RoleOthers:
		n.Pair.OthersRef = ref
		n.Pair.HasOthers = true
	}
	if size > n.Length {
		n.Length = size
	}
}

// AttachEndpoint appends a port-map endpoint.
func (n *Net) AttachEndpoint(ep Endpoint) {
	n.Origins |= OriginPortMap
	n.Endpoints = append(n.Endpoints, ep)
}

// EndpointCount is the number of switch endpoints on the net: the vector
// length for a suffix-paired net, the endpoint list length otherwise.
func (n *Net) EndpointCount() int {
	if n.Origins == OriginSuffix {
		return n.Length
	}
	return len(n.Endpoints)
}

// ValueType is the declared type of a suffix-paired net, or the endpoint
// value types of a port-map net joined by '|'.
func (n *Net) ValueType() string {
	if n.Origins == OriginSuffix {
		return n.Type
	}
	return strings.Join(n.endpointTypes(), "|")
}

// Registry maps canonical net names to nets, in discovery order. Names
// compare case-insensitively.
type Registry struct {
	nets  []*Net
	index map[string]int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// FindOrCreate returns the net named name, creating it if it does not
// exist yet. created reports whether a new net was made.
func (r *Registry) FindOrCreate(name string) (net *Net, created bool) {
	key := strings.ToLower(name)
	if i, ok := r.index[key]; ok {
		return r.nets[i], false
	}
	net = &Net{Name: name}
	r.index[key] = len(r.nets)
	r.nets = append(r.nets, net)
	return net, true
}

// Get looks a net up by name.
func (r *Registry) Get(name string) (*Net, bool) {
	i, ok := r.index[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return r.nets[i], true
}

// Nets returns every net in discovery order.
func (r *Registry) Nets() []*Net {
	return r.nets
}

// Len returns the number of nets.
func (r *Registry) Len() int {
	return len(r.nets)
}

// NeedingResolution returns the nets the policy marked, in discovery order.
func (r *Registry) NeedingResolution() []*Net {
	var out []*Net
	for _, n := range r.nets {
		if n.NeedsResolution {
			out = append(out, n)
		}
	}
	return out
}
