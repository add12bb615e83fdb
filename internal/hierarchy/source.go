// Package hierarchy describes the read-only, already-elaborated design tree
// that net discovery walks, and the canonical path scheme used to name
// objects in it.
package hierarchy

import (
	"errors"
	"strings"
)

// ErrNotFound is returned (wrapped) when a lookup path does not resolve to
// an object in the hierarchy.
var ErrNotFound = errors.New("hierarchy path not found")

// RegionKind classifies a region by how it scopes signal declarations.
type RegionKind int

const (
	// RegionInstance is a component/entity instance. It opens a new
	// declarative scope for port-map actuals.
	RegionInstance RegionKind = iota

	// RegionGenerate is a for/if generate construct.
	RegionGenerate

	// RegionBlock is a block statement.
	RegionBlock
)

// String returns the export spelling of the kind.
func (k RegionKind) String() string {
	switch k {
	case RegionInstance:
		return "instance"
	case RegionGenerate:
		return "generate"
	case RegionBlock:
		return "block"
	default:
		return "unknown"
	}
}

// OpensScope reports whether descending into a region of this kind changes
// the scope that port-map actuals are resolved against. Generate and block
// constructs are transparent.
func (k RegionKind) OpensScope() bool {
	return k == RegionInstance
}

// ParseRegionKind parses the export spelling of a region kind. Unknown or
// empty values are treated as instances.
func ParseRegionKind(s string) RegionKind {
	switch strings.ToLower(s) {
	case "generate", "for_generate", "if_generate":
		return RegionGenerate
	case "block":
		return RegionBlock
	default:
		return RegionInstance
	}
}

// Region is one node of the design tree.
type Region struct {
	Name     string
	FullName string
	Kind     RegionKind
}

// Signal is a signal declaration inside a region.
type Signal struct {
	Name     string
	FullName string
	Size     int
	Type     string
	ElemType string
}

// CanonicalPath returns the normalized external name of the signal.
func (s Signal) CanonicalPath() string {
	return Normalize(s.FullName)
}

// PortMode is the direction of an entity port.
type PortMode string

const (
	ModeIn      PortMode = "in"
	ModeOut     PortMode = "out"
	ModeInout   PortMode = "inout"
	ModeBuffer  PortMode = "buffer"
	ModeLinkage PortMode = "linkage"
)

// Port is a formal port of an instantiated entity.
type Port struct {
	Name     string
	Mode     PortMode
	Type     string
	ElemType string
}

// Instance is a component instantiation statement inside a region.
type Instance struct {
	Name     string
	FullName string
	// Entity is the name of the referenced design unit.
	Entity string
	Ports  []Port
}

// CanonicalPath returns the normalized external name of the instance.
func (i Instance) CanonicalPath() string {
	return Normalize(i.FullName)
}

// Source is the query surface of an elaborated design. All lookups take the
// native full name of the object; an unknown path yields an error wrapping
// ErrNotFound.
type Source interface {
	// Root returns the top-level region.
	Root() (Region, error)

	// Regions lists the child regions of a region.
	Regions(path string) ([]Region, error)

	// Signals lists the signal declarations of a region.
	Signals(path string) ([]Signal, error)

	// Instances lists the instantiation statements of a region.
	Instances(path string) ([]Instance, error)

	// PortMap returns the formal->actual associations of an instance.
	PortMap(instance string) (PortMap, error)

	// DriverType returns the type of the implicit driver/receiver signal
	// pair of a port, when the source can supply it.
	DriverType(instance, port string) (string, bool)
}

// DesignNamer is implemented by sources that know the design name
// independently of the root region.
type DesignNamer interface {
	DesignName() string
}
