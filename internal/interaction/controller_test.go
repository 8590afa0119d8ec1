package interaction

import (
	"errors"
	"math"
	"testing"

	"token-graph-lab/internal/domain"
	"token-graph-lab/internal/layout"
)

func newTestController(t *testing.T) (*Controller, *layout.Simulation) {
	t.Helper()
	sim := layout.New(layout.Options{Seed: 1})
	c := NewController(sim, Options{})
	c.Load(domain.VisibleGraph{
		Nodes: []domain.Node{{ID: "A", Radius: 20}, {ID: "B", Radius: 15}, {ID: "C", Radius: 15}},
		Links: []domain.Link{{Source: "A", Target: "B"}, {Source: "B", Target: "C"}},
	})
	if c.Err() != nil {
		t.Fatalf("Load failed: %v", c.Err())
	}
	return c, sim
}

func TestController_DragPinsUnderPointer(t *testing.T) {
	c, sim := newTestController(t)
	c.SetTransform(Transform{X: 100, Y: 50, K: 2})
	sim.RunToConvergence(1000)

	c.DragStart("A", Point{X: 300, Y: 250})
	if sim.State() != layout.StateReheated {
		t.Errorf("Expected reheat on drag start, got %s", sim.State())
	}
	if p, _ := sim.Position("A"); p != (domain.Position{X: 100, Y: 100}) {
		t.Errorf("Expected A pinned at world (100,100), got %v", p)
	}

	c.DragMove(Point{X: 100, Y: 50})
	for i := 0; i < 10; i++ {
		sim.Tick()
	}
	if p, _ := sim.Position("A"); p != (domain.Position{X: 0, Y: 0}) {
		t.Errorf("Expected A held at origin, got %v", p)
	}
	if c.Transform() != (Transform{X: 100, Y: 50, K: 2}) {
		t.Error("Dragging a node must not pan")
	}

	c.DragEnd()
	if sim.Pinned("A") || c.Dragging() != "" {
		t.Error("Expected pin released on drag end")
	}
}

func TestController_PanWithoutNode(t *testing.T) {
	c, _ := newTestController(t)

	c.PointerDown(Point{X: 10, Y: 10})
	c.DragMove(Point{X: 25, Y: 5})
	c.DragMove(Point{X: 30, Y: 0})
	c.DragEnd()

	if got := c.Transform(); got.X != 20 || got.Y != -10 || got.K != 1 {
		t.Errorf("Expected pan by (20,-10), got %+v", got)
	}

	// A move outside a gesture anchors a new pan without jumping.
	c.DragMove(Point{X: 500, Y: 500})
	if got := c.Transform(); got.X != 20 || got.Y != -10 {
		t.Errorf("First move must not jump, got %+v", got)
	}
	c.DragMove(Point{X: 510, Y: 495})
	if got := c.Transform(); got.X != 30 || got.Y != -15 {
		t.Errorf("Expected pan by (10,-5) without PointerDown, got %+v", got)
	}
	c.DragEnd()
}

func TestController_WheelClampsAndAnchors(t *testing.T) {
	c, _ := newTestController(t)
	anchor := Point{X: 400, Y: 300}
	before := c.Transform().Invert(anchor)

	c.Wheel(-200, anchor)
	after := c.Transform().Invert(anchor)
	if math.Abs(before.X-after.X) > 1e-9 || math.Abs(before.Y-after.Y) > 1e-9 {
		t.Errorf("World point under cursor moved: %v -> %v", before, after)
	}
	if want := math.Exp(0.4); math.Abs(c.Transform().K-want) > 1e-9 {
		t.Errorf("Expected scale %v, got %v", want, c.Transform().K)
	}

	for i := 0; i < 50; i++ {
		c.Wheel(-1000, anchor)
	}
	if c.Transform().K != DefaultMaxScale {
		t.Errorf("Expected scale clamped to %v, got %v", DefaultMaxScale, c.Transform().K)
	}
	for i := 0; i < 50; i++ {
		c.Wheel(1000, anchor)
	}
	if c.Transform().K != DefaultMinScale {
		t.Errorf("Expected scale clamped to %v, got %v", DefaultMinScale, c.Transform().K)
	}
}

func TestController_Hover(t *testing.T) {
	c, sim := newTestController(t)
	snap := sim.Snapshot()
	state := sim.State()

	c.Hover("B")
	if c.HoveredNode() != "B" {
		t.Fatalf("Expected B hovered, got %q", c.HoveredNode())
	}
	n := c.SelectedNeighbors()
	if len(n) != 2 {
		t.Errorf("Expected 2 neighbors, got %v", n)
	}
	if !c.LinkSelected("A", "B") || c.LinkSelected("A", "C") {
		t.Error("Unexpected link selection")
	}

	c.Hover("")
	if c.HoveredNode() != "" || len(c.SelectedNeighbors()) != 0 {
		t.Error("Expected hover cleared")
	}
	c.Hover("ghost")
	if c.HoveredNode() != "" {
		t.Error("Unknown id must not be hovered")
	}

	if sim.State() != state {
		t.Error("Hover must not change layout state")
	}
	for id, p := range sim.Snapshot() {
		if snap[id] != p {
			t.Errorf("Hover moved %s", id)
		}
	}
}

func TestController_ErrorBoundary(t *testing.T) {
	c, _ := newTestController(t)

	c.DragStart("ghost", Point{})
	if !errors.Is(c.Err(), layout.ErrUnknownNode) {
		t.Errorf("Expected ErrUnknownNode, got %v", c.Err())
	}
	if c.NeedsRebuild() {
		t.Error("Unknown drag target must not require a rebuild")
	}

	c.Load(domain.VisibleGraph{
		Nodes: []domain.Node{{ID: "A"}},
		Links: []domain.Link{{Source: "A", Target: "Z"}},
	})
	if !c.NeedsRebuild() {
		t.Errorf("Expected rebuild after dangling link, got %v", c.Err())
	}

	c.Reset()
	if c.Err() != nil || c.NeedsRebuild() {
		t.Error("Expected error cleared by Reset")
	}
}

func TestTransform_BoundsAndInvert(t *testing.T) {
	tr := Transform{X: -100, Y: 50, K: 2}
	b := tr.Bounds(800, 600)
	if b != (Bounds{X1: 50, Y1: -25, X2: 450, Y2: 275}) {
		t.Errorf("Unexpected bounds %+v", b)
	}
	if !b.Contains(domain.Position{X: 50, Y: 0}) || b.Contains(domain.Position{X: 451, Y: 0}) {
		t.Error("Unexpected containment")
	}

	p := domain.Position{X: 12.5, Y: -3}
	if got := tr.Invert(tr.Apply(p)); got != p {
		t.Errorf("Invert(Apply(%v)) = %v", p, got)
	}
}
