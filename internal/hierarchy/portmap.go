package hierarchy

import "strings"

// PortMap maps a formal port name (lowercased) to the actual expression
// connected to it, exactly as the hierarchy source reported it.
type PortMap map[string]string

// ParsePortMap parses the serialized "FORMAL=ACTUAL;FORMAL=ACTUAL" form some
// simulators expose. Each actual is taken verbatim up to the next ';'.
// Entries with an empty formal or actual are dropped.
func ParsePortMap(serialized string) PortMap {
	pm := make(PortMap)
	for _, entry := range strings.Split(serialized, ";") {
		formal, actual, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		formal = strings.TrimSpace(formal)
		actual = strings.TrimSpace(actual)
		if formal == "" || actual == "" {
			continue
		}
		pm[strings.ToLower(formal)] = actual
	}
	return pm
}

// Actual returns the actual connected to formal. The lookup is an exact,
// case-insensitive match on the formal name.
func (pm PortMap) Actual(formal string) (string, bool) {
	actual, ok := pm[strings.ToLower(formal)]
	return actual, ok
}
