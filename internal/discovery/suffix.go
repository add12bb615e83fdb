package discovery

import (
	"strings"

	"github.com/robert-at-pretension-io/vhdl-netres/internal/hierarchy"
	"github.com/robert-at-pretension-io/vhdl-netres/internal/netlist"
)

// SuffixPairing finds nets declared as a pair of vector signals, <base> +
// DriverSuffix and <base> + OthersSuffix, in the same region.
type SuffixPairing struct {
	DriverSuffix string
	OthersSuffix string
}

func (SuffixPairing) Name() string { return "suffix" }

func (p SuffixPairing) Discover(c *Context, s Scope) {
	for _, sig := range s.Signals {
		if sig.Name == "" {
			c.Stats.Skipped++
			c.Warn("skipping signal without a name", "region", s.Path, "full_name", sig.FullName)
			continue
		}
		role, base, ok := p.match(sig.Name)
		if !ok {
			continue
		}
		if base == "" {
			c.Warn("signal name is only a suffix", "region", s.Path, "signal", sig.Name)
			continue
		}

		ref := hierarchy.Join(s.Path, sig.Name)
		if sig.FullName != "" {
			ref = sig.CanonicalPath()
		}

		net, _ := c.Registry.FindOrCreate(hierarchy.Join(s.Path, base))
		net.AttachSuffix(role, ref, sig.Size, sig.Type, sig.ElemType)

		c.Logger.Debug("signal",
			"name", sig.Name,
			"size", sig.Size,
			"type", sig.ElemType,
			"ename", ref,
		)
	}
}

// match reports the role of name and its base with the suffix stripped.
func (p SuffixPairing) match(name string) (netlist.Role, string, bool) {
	if base, ok := cutSuffixFold(name, p.DriverSuffix); ok {
		return netlist.RoleDriver, base, true
	}
	if base, ok := cutSuffixFold(name, p.OthersSuffix); ok {
		return netlist.RoleOthers, base, true
	}
	return 0, "", false
}

func cutSuffixFold(s, suffix string) (string, bool) {
	if suffix == "" || len(suffix) > len(s) {
		return "", false
	}
	if !strings.EqualFold(s[len(s)-len(suffix):], suffix) {
		return "", false
	}
	return s[:len(s)-len(suffix)], true
}
