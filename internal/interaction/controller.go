// Package interaction translates pointer events into layout pin state,
// viewport changes and hover selection.
package interaction

import (
	"errors"
	"math"

	"go.uber.org/zap"

	"token-graph-lab/internal/domain"
	"token-graph-lab/internal/graph"
	"token-graph-lab/internal/layout"
)

// Zoom limits.
const (
	DefaultMinScale         = 0.1
	DefaultMaxScale         = 4.0
	DefaultWheelSensitivity = 0.002
)

// Layout is the part of the layout engine the controller drives.
type Layout interface {
	SetGraph(nodes []domain.Node, links []domain.Link) error
	Pin(id string, x, y float64) error
	Unpin(id string)
	Reheat()
}

var _ Layout = (*layout.Simulation)(nil)

// Options configures a Controller.
type Options struct {
	MinScale         float64
	MaxScale         float64
	WheelSensitivity float64
	Logger           *zap.Logger
}

// Controller owns the viewport transform, the drag gesture and the hover
// selection. Layout failures are held in Err instead of propagating.
type Controller struct {
	layout Layout
	opts   Options
	logger *zap.Logger

	transform Transform
	dragging  string
	panning   bool
	last      Point

	adjacency graph.Adjacency
	hovered   string

	err error
}

// NewController creates a controller over l with the identity transform.
func NewController(l Layout, opts Options) *Controller {
	if opts.MinScale <= 0 {
		opts.MinScale = DefaultMinScale
	}
	if opts.MaxScale <= 0 {
		opts.MaxScale = DefaultMaxScale
	}
	if opts.WheelSensitivity <= 0 {
		opts.WheelSensitivity = DefaultWheelSensitivity
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		layout:    l,
		opts:      opts,
		logger:    logger,
		transform: Identity,
		adjacency: graph.Adjacency{},
	}
}

// Load hands a visible graph to the layout and refreshes the hover index.
// A hovered node that is no longer visible is cleared.
func (c *Controller) Load(vg domain.VisibleGraph) {
	if err := c.layout.SetGraph(vg.Nodes, vg.Links); err != nil {
		c.Fail(err)
		return
	}
	c.adjacency = graph.Neighbors(vg.Nodes, vg.Links)
	if _, ok := c.adjacency[c.hovered]; !ok {
		c.hovered = ""
	}
	if _, ok := c.adjacency[c.dragging]; !ok {
		c.dragging = ""
	}
}

// DragStart pins id under the pointer and reheats the layout.
func (c *Controller) DragStart(id string, p Point) {
	w := c.transform.Invert(p)
	if err := c.layout.Pin(id, w.X, w.Y); err != nil {
		c.Fail(err)
		return
	}
	c.dragging = id
	c.panning = false
	c.last = p
	c.layout.Reheat()
}

// PointerDown starts a pan gesture at p.
func (c *Controller) PointerDown(p Point) {
	if c.dragging != "" {
		return
	}
	c.panning = true
	c.last = p
}

// DragMove moves the dragged node, or pans when no node is dragged. A move
// outside any gesture starts a pan anchored at p.
func (c *Controller) DragMove(p Point) {
	switch {
	case c.dragging != "":
		w := c.transform.Invert(p)
		if err := c.layout.Pin(c.dragging, w.X, w.Y); err != nil {
			c.Fail(err)
			c.dragging = ""
			return
		}
		c.layout.Reheat()
	case c.panning:
		c.transform.X += p.X - c.last.X
		c.transform.Y += p.Y - c.last.Y
	default:
		c.panning = true
	}
	c.last = p
}

// DragEnd releases the dragged node or ends the pan. Alpha decays naturally.
func (c *Controller) DragEnd() {
	if c.dragging != "" {
		c.layout.Unpin(c.dragging)
		c.dragging = ""
	}
	c.panning = false
}

// Dragging returns the id of the dragged node, or "".
func (c *Controller) Dragging() string {
	return c.dragging
}

// Wheel zooms by exp(-delta*sensitivity), keeping the world point under p
// fixed on screen.
func (c *Controller) Wheel(delta float64, p Point) {
	k := c.transform.K * math.Exp(-delta*c.opts.WheelSensitivity)
	k = math.Min(c.opts.MaxScale, math.Max(c.opts.MinScale, k))

	anchor := c.transform.Invert(p)
	c.transform = Transform{
		X: p.X - anchor.X*k,
		Y: p.Y - anchor.Y*k,
		K: k,
	}
}

// SetTransform replaces the viewport transform, clamping its scale.
func (c *Controller) SetTransform(t Transform) {
	t.K = math.Min(c.opts.MaxScale, math.Max(c.opts.MinScale, t.K))
	c.transform = t
}

// Transform returns the current viewport transform.
func (c *Controller) Transform() Transform {
	return c.transform
}

// Hover selects id and its neighbors. An empty or unknown id clears it.
func (c *Controller) Hover(id string) {
	if _, ok := c.adjacency[id]; !ok {
		c.hovered = ""
		return
	}
	c.hovered = id
}

// HoveredNode returns the hovered id, or "".
func (c *Controller) HoveredNode() string {
	return c.hovered
}

// SelectedNeighbors returns the ids linked to the hovered node.
func (c *Controller) SelectedNeighbors() map[string]struct{} {
	out := make(map[string]struct{})
	for id := range c.adjacency.Of(c.hovered) {
		out[id] = struct{}{}
	}
	return out
}

// LinkSelected reports whether a link touches the hovered node.
func (c *Controller) LinkSelected(source, target string) bool {
	return c.hovered != "" && (source == c.hovered || target == c.hovered)
}

// Fail records a layout error.
func (c *Controller) Fail(err error) {
	if err == nil {
		return
	}
	c.err = err
	c.logger.Warn("layout error", zap.Error(err), zap.Bool("needs_rebuild", c.NeedsRebuild()))
}

// Err returns the last layout error.
func (c *Controller) Err() error {
	return c.err
}

// NeedsRebuild reports whether the last error left the layout unusable
// until the graph is rebuilt.
func (c *Controller) NeedsRebuild() bool {
	var dangling *layout.DanglingReferenceError
	return errors.As(c.err, &dangling) || errors.Is(c.err, layout.ErrFramePanic)
}

// Reset clears the error and gesture state.
func (c *Controller) Reset() {
	c.err = nil
	c.dragging = ""
	c.panning = false
	c.hovered = ""
}
