// Package discovery walks an elaborated design hierarchy and collects the
// nets that may have more than one driver.
//
// Two path accumulators are carried down the walk. The structural path grows
// by one segment per level and names where things physically are. The
// signal scope only changes when the walk enters a component instance: a
// port-map actual such as "ac(2)" is written relative to the enclosing
// declarative scope, however deeply generate and block constructs nest
// inside it.
package discovery

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/robert-at-pretension-io/vhdl-netres/internal/hierarchy"
	"github.com/robert-at-pretension-io/vhdl-netres/internal/netlist"
)

// ErrNoRoot is returned when the hierarchy root cannot be obtained. Nothing
// else in a run can proceed without it.
var ErrNoRoot = errors.New("cannot obtain hierarchy root")

// Scope is what a strategy sees at one region.
type Scope struct {
	Region hierarchy.Region

	// Path is the structural path of the region.
	Path string

	// SignalScope is the path port-map actuals resolve against.
	SignalScope string

	Depth     int
	Signals   []hierarchy.Signal
	Instances []hierarchy.Instance
}

// Context is shared by all strategies during one walk.
type Context struct {
	Source   hierarchy.Source
	Registry *netlist.Registry
	Logger   *slog.Logger
	Stats    *Stats
}

// Warn logs a recoverable problem and counts it.
func (c *Context) Warn(msg string, args ...any) {
	c.Stats.Warnings++
	c.Logger.Warn(msg, args...)
}

// Strategy is one way of finding multiply-driven nets. Strategies run at
// every region and add to the shared registry through FindOrCreate.
type Strategy interface {
	Name() string
	Discover(c *Context, s Scope)
}

// Stats counts what the walk saw.
type Stats struct {
	Regions   int `json:"regions"`
	Signals   int `json:"signals"`
	Instances int `json:"instances"`
	Skipped   int `json:"skipped"`
	Warnings  int `json:"warnings"`
}

// Walker visits a hierarchy depth first: a region, then its instances, then
// its child regions.
type Walker struct {
	Strategies []Strategy
	Logger     *slog.Logger
}

// New returns a walker running the given strategies in order.
func New(logger *slog.Logger, strategies ...Strategy) *Walker {
	return &Walker{Strategies: strategies, Logger: logger}
}

// Walk visits the whole hierarchy and returns the populated registry. Only a
// missing root is an error; malformed nodes below it are skipped with a
// warning.
func (w *Walker) Walk(src hierarchy.Source) (*netlist.Registry, Stats, error) {
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stats := &Stats{}
	c := &Context{
		Source:   src,
		Registry: netlist.NewRegistry(),
		Logger:   logger,
		Stats:    stats,
	}

	root, err := src.Root()
	if err != nil {
		return nil, *stats, fmt.Errorf("%w: %v", ErrNoRoot, err)
	}
	if root.Name == "" || root.FullName == "" {
		return nil, *stats, fmt.Errorf("%w: root region has no name", ErrNoRoot)
	}

	path := hierarchy.Join("", root.Name)
	w.visit(c, root, path, path, 0)
	return c.Registry, *stats, nil
}

func (w *Walker) visit(c *Context, region hierarchy.Region, path, signalScope string, depth int) {
	c.Stats.Regions++
	c.Logger.Debug("region",
		"path", path,
		"kind", region.Kind.String(),
		"scope", signalScope,
		"depth", depth,
	)

	signals, err := c.Source.Signals(region.FullName)
	if err != nil {
		c.Warn("cannot list signals", "region", path, "error", err)
	}
	instances, err := c.Source.Instances(region.FullName)
	if err != nil {
		c.Warn("cannot list instances", "region", path, "error", err)
	}
	c.Stats.Signals += len(signals)
	c.Stats.Instances += len(instances)

	scope := Scope{
		Region:      region,
		Path:        path,
		SignalScope: signalScope,
		Depth:       depth,
		Signals:     signals,
		Instances:   instances,
	}
	for _, s := range w.Strategies {
		s.Discover(c, scope)
	}

	children, err := c.Source.Regions(region.FullName)
	if err != nil {
		c.Warn("cannot list child regions", "region", path, "error", err)
		return
	}
	for _, child := range children {
		if child.Name == "" || child.FullName == "" {
			c.Stats.Skipped++
			c.Warn("skipping region without a name", "parent", path, "full_name", child.FullName)
			continue
		}
		childPath := hierarchy.Join(path, child.Name)
		childScope := signalScope
		if child.Kind.OpensScope() {
			childScope = childPath
		}
		w.visit(c, child, childPath, childScope, depth+1)
	}
}
