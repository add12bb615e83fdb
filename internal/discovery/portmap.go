package discovery

import (
	"strings"

	"github.com/robert-at-pretension-io/vhdl-netres/internal/hierarchy"
	"github.com/robert-at-pretension-io/vhdl-netres/internal/netlist"
)

// Discriminator segments appended to a port path to name its implicit
// signals.
const (
	DriverSegment = "driver"
	OtherSegment  = "other"
)

// PortMapGrouping finds nets shared by bidirectional switch primitives. Each
// inout port of an allow-listed instance becomes an endpoint of the net its
// port-map actual names. Two ports whose actuals name the same array element
// land on the same net.
type PortMapGrouping struct {
	// Primitives is the allow-list of entity names, compared
	// case-insensitively.
	Primitives []string
}

func (PortMapGrouping) Name() string { return "portmap" }

func (g PortMapGrouping) Discover(c *Context, s Scope) {
	for _, inst := range s.Instances {
		if inst.Name == "" || inst.FullName == "" {
			c.Stats.Skipped++
			c.Warn("skipping instance without a name", "region", s.Path, "full_name", inst.FullName)
			continue
		}
		c.Logger.Debug("instance", "path", inst.FullName, "entity", inst.Entity)
		if !g.isPrimitive(inst.Entity) {
			continue
		}

		pm, err := c.Source.PortMap(inst.FullName)
		if err != nil {
			c.Warn("no port map for bidirectional instance", "instance", inst.FullName, "error", err)
			continue
		}

		instPath := hierarchy.Join(s.Path, inst.Name)
		for _, port := range inst.Ports {
			if port.Name == "" {
				c.Stats.Skipped++
				c.Warn("skipping port without a name", "instance", inst.FullName, "mode", port.Mode)
				continue
			}
			if port.Mode != hierarchy.ModeInout {
				continue
			}
			actual, ok := pm.Actual(port.Name)
			if !ok {
				c.Warn("port missing from port map", "instance", inst.FullName, "port", port.Name)
				continue
			}

			portPath := hierarchy.Join(instPath, port.Name)
			ep := netlist.Endpoint{
				Driver:    portPath + "." + DriverSegment,
				Receiver:  portPath + "." + OtherSegment,
				ValueType: implicitType(c.Source, inst, port),
			}
			net, _ := c.Registry.FindOrCreate(s.SignalScope + "." + strings.ToLower(actual))
			net.AttachEndpoint(ep)
		}
	}
}

func (g PortMapGrouping) isPrimitive(entity string) bool {
	for _, p := range g.Primitives {
		if strings.EqualFold(p, entity) {
			return true
		}
	}
	return false
}

// implicitType prefers the type the source reports for the port's implicit
// driver pair, then the port's element type, then its declared type.
func implicitType(src hierarchy.Source, inst hierarchy.Instance, port hierarchy.Port) string {
	if t, ok := src.DriverType(inst.FullName, port.Name); ok && t != "" {
		return t
	}
	if port.ElemType != "" {
		return port.ElemType
	}
	return port.Type
}
