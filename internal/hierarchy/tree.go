package hierarchy

import (
	"fmt"
	"strings"
)

// Document is a hierarchy export: a serialized snapshot of an elaborated
// design, as written by a simulator plugin or by hand for tests.
type Document struct {
	Design string    `json:"design,omitempty" yaml:"design,omitempty"`
	Root   RegionDoc `json:"root" yaml:"root"`
}

// RegionDoc is the export form of a region and everything below it.
type RegionDoc struct {
	Name      string        `json:"name,omitempty" yaml:"name,omitempty"`
	FullName  string        `json:"full_name,omitempty" yaml:"full_name,omitempty"`
	Kind      string        `json:"kind,omitempty" yaml:"kind,omitempty"`
	Signals   []SignalDoc   `json:"signals,omitempty" yaml:"signals,omitempty"`
	Instances []InstanceDoc `json:"instances,omitempty" yaml:"instances,omitempty"`
	Regions   []RegionDoc   `json:"regions,omitempty" yaml:"regions,omitempty"`
}

// SignalDoc is the export form of a signal declaration.
type SignalDoc struct {
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	FullName string `json:"full_name,omitempty" yaml:"full_name,omitempty"`
	Size     int    `json:"size,omitempty" yaml:"size,omitempty"`
	Type     string `json:"type,omitempty" yaml:"type,omitempty"`
	ElemType string `json:"elem_type,omitempty" yaml:"elem_type,omitempty"`
}

// InstanceDoc is the export form of an instantiation statement. PortMap uses
// the serialized "FORMAL=ACTUAL;..." form; nil means the exporter could not
// obtain one.
type InstanceDoc struct {
	Name     string    `json:"name,omitempty" yaml:"name,omitempty"`
	FullName string    `json:"full_name,omitempty" yaml:"full_name,omitempty"`
	Entity   string    `json:"entity,omitempty" yaml:"entity,omitempty"`
	PortMap  *string   `json:"port_map,omitempty" yaml:"port_map,omitempty"`
	Ports    []PortDoc `json:"ports,omitempty" yaml:"ports,omitempty"`
}

// PortDoc is the export form of a formal port.
type PortDoc struct {
	Name       string `json:"name" yaml:"name"`
	Mode       string `json:"mode,omitempty" yaml:"mode,omitempty"`
	Type       string `json:"type,omitempty" yaml:"type,omitempty"`
	ElemType   string `json:"elem_type,omitempty" yaml:"elem_type,omitempty"`
	DriverType string `json:"driver_type,omitempty" yaml:"driver_type,omitempty"`
}

// Tree is an in-memory Source backed by a Document.
type Tree struct {
	design    string
	root      *RegionDoc
	regions   map[string]*RegionDoc
	instances map[string]*instanceEntry
}

type instanceEntry struct {
	doc     *InstanceDoc
	portMap PortMap
}

// NewTree indexes a document by native full name. Nodes without a full name
// stay reachable from their parent listing but cannot be looked up.
func NewTree(doc *Document) *Tree {
	t := &Tree{
		regions:   make(map[string]*RegionDoc),
		instances: make(map[string]*instanceEntry),
	}
	if doc == nil {
		return t
	}
	t.design = doc.Design
	t.root = &doc.Root
	t.index(&doc.Root)
	return t
}

func (t *Tree) index(r *RegionDoc) {
	if r.FullName != "" {
		t.regions[r.FullName] = r
	}
	for i := range r.Instances {
		inst := &r.Instances[i]
		if inst.FullName == "" {
			continue
		}
		entry := &instanceEntry{doc: inst}
		if inst.PortMap != nil {
			entry.portMap = ParsePortMap(*inst.PortMap)
		}
		t.instances[inst.FullName] = entry
	}
	for i := range r.Regions {
		t.index(&r.Regions[i])
	}
}

// DesignName returns the design named in the export, or the lowercased root
// name when the export does not carry one.
func (t *Tree) DesignName() string {
	if t.design != "" {
		return strings.ToLower(t.design)
	}
	if t.root != nil {
		return strings.ToLower(t.root.Name)
	}
	return ""
}

func (t *Tree) Root() (Region, error) {
	if t.root == nil {
		return Region{}, fmt.Errorf("root region: %w", ErrNotFound)
	}
	return regionFromDoc(t.root), nil
}

func (t *Tree) Regions(path string) ([]Region, error) {
	r, err := t.region(path)
	if err != nil {
		return nil, err
	}
	out := make([]Region, 0, len(r.Regions))
	for i := range r.Regions {
		out = append(out, regionFromDoc(&r.Regions[i]))
	}
	return out, nil
}

func (t *Tree) Signals(path string) ([]Signal, error) {
	r, err := t.region(path)
	if err != nil {
		return nil, err
	}
	out := make([]Signal, 0, len(r.Signals))
	for _, s := range r.Signals {
		out = append(out, Signal{
			Name:     s.Name,
			FullName: s.FullName,
			Size:     s.Size,
			Type:     s.Type,
			ElemType: s.ElemType,
		})
	}
	return out, nil
}

func (t *Tree) Instances(path string) ([]Instance, error) {
	r, err := t.region(path)
	if err != nil {
		return nil, err
	}
	out := make([]Instance, 0, len(r.Instances))
	for _, inst := range r.Instances {
		ports := make([]Port, 0, len(inst.Ports))
		for _, p := range inst.Ports {
			ports = append(ports, Port{
				Name:     p.Name,
				Mode:     PortMode(strings.ToLower(p.Mode)),
				Type:     p.Type,
				ElemType: p.ElemType,
			})
		}
		out = append(out, Instance{
			Name:     inst.Name,
			FullName: inst.FullName,
			Entity:   inst.Entity,
			Ports:    ports,
		})
	}
	return out, nil
}

func (t *Tree) PortMap(instance string) (PortMap, error) {
	entry, ok := t.instances[instance]
	if !ok {
		return nil, fmt.Errorf("instance %s: %w", instance, ErrNotFound)
	}
	if entry.portMap == nil {
		return nil, fmt.Errorf("instance %s has no port map", instance)
	}
	return entry.portMap, nil
}

func (t *Tree) DriverType(instance, port string) (string, bool) {
	entry, ok := t.instances[instance]
	if !ok {
		return "", false
	}
	for _, p := range entry.doc.Ports {
		if strings.EqualFold(p.Name, port) && p.DriverType != "" {
			return p.DriverType, true
		}
	}
	return "", false
}

func (t *Tree) region(path string) (*RegionDoc, error) {
	r, ok := t.regions[path]
	if !ok {
		return nil, fmt.Errorf("region %s: %w", path, ErrNotFound)
	}
	return r, nil
}

func regionFromDoc(r *RegionDoc) Region {
	return Region{
		Name:     r.Name,
		FullName: r.FullName,
		Kind:     ParseRegionKind(r.Kind),
	}
}
