package netlist

import (
	"sort"
	"strconv"
)

const (
	djb2Seed       uint64 = 5381
	djb2Multiplier uint64 = 33
)

// Fingerprint hashes the set of nets needing resolution into a cache key.
//
// Nets are sorted by name (byte order) and each contributes
// "name:type:length"; port-map nets use their endpoint value types and
// endpoint count in place of type and length. The result does not depend on
// discovery order. Zero means nothing needs resolution.
func Fingerprint(r *Registry) uint64 {
	nets := r.NeedingResolution()
	if len(nets) == 0 {
		return 0
	}
	sort.Slice(nets, func(i, j int) bool { return nets[i].Name < nets[j].Name })

	h := djb2Seed
	for _, n := range nets {
		h = djb2(fingerprintKey(n), h)
	}
	if h == 0 {
		// Zero is reserved for "nothing to resolve".
		h = 1
	}
	return h
}

func fingerprintKey(n *Net) string {
	return n.Name + ":" + n.ValueType() + ":" + strconv.Itoa(n.EndpointCount())
}

func djb2(s string, h uint64) uint64 {
	for i := 0; i < len(s); i++ {
		h = h*djb2Multiplier + uint64(s[i])
	}
	return h
}
