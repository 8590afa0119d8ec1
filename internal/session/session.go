// Package session holds one dashboard view: the retained full graph, the
// filter selection, the layout engine and the interaction controller.
//
// A Session is single-threaded. Every method, including the frames of its
// scheduler, must run on the goroutine that owns it.
package session

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"token-graph-lab/internal/domain"
	"token-graph-lab/internal/filter"
	"token-graph-lab/internal/interaction"
	"token-graph-lab/internal/layout"
)

// Options configures a Session.
type Options struct {
	MonthsBack   int
	HiddenIDs    []string
	HideIsolated bool

	Layout      layout.Options
	Interaction interaction.Options
	Scheduler   layout.Scheduler // nil leaves ticking to the caller
	OnFrame     func()           // called after each scheduled tick

	Clock  func() time.Time
	Logger *zap.Logger
}

// RenderNode is a visible node with its current position.
type RenderNode struct {
	domain.Node
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Pinned   bool    `json:"pinned,omitempty"`
	Selected bool    `json:"selected,omitempty"` // hovered or neighbor of hovered
}

// RenderLink is a visible link with resolved endpoint positions.
type RenderLink struct {
	Source   string  `json:"source"`
	Target   string  `json:"target"`
	SourceX  float64 `json:"sourceX"`
	SourceY  float64 `json:"sourceY"`
	TargetX  float64 `json:"targetX"`
	TargetY  float64 `json:"targetY"`
	Value    float64 `json:"value"`
	Count    int     `json:"count"`
	Color    string  `json:"color"`
	Selected bool    `json:"selected,omitempty"`
}

// Wallet is one row of the wallet list.
type Wallet struct {
	ID          string  `json:"id"`
	Value       float64 `json:"value"`
	Percentage  float64 `json:"percentage"`
	Color       string  `json:"color"`
	IsTreasury  bool    `json:"isTreasury"`
	IsAggregate bool    `json:"isAggregate"`
	Hidden      bool    `json:"hidden"`
}

// Session is one interactive view over a graph.
type Session struct {
	opts   Options
	logger *zap.Logger

	full    *domain.Graph
	filter  filter.Options
	visible domain.VisibleGraph

	sim    *layout.Simulation
	ctrl   *interaction.Controller
	runner *layout.Runner
}

// New creates a session over g and lays out its visible subgraph.
func New(g *domain.Graph, opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Layout.Logger == nil {
		opts.Layout.Logger = logger
	}
	if opts.Interaction.Logger == nil {
		opts.Interaction.Logger = logger
	}

	s := &Session{
		opts:   opts,
		logger: logger,
		full:   g,
		filter: filter.Options{
			MonthsBack:   opts.MonthsBack,
			HiddenIDs:    toSet(opts.HiddenIDs),
			HideIsolated: opts.HideIsolated,
		},
	}
	s.attach(interaction.Identity)
	s.refresh()
	return s
}

// attach creates a fresh engine, controller and runner.
func (s *Session) attach(t interaction.Transform) {
	s.sim = layout.New(s.opts.Layout)
	s.ctrl = interaction.NewController(s.sim, s.opts.Interaction)
	s.ctrl.SetTransform(t)
	if s.opts.Scheduler != nil {
		s.runner = layout.NewRunner(s.sim, s.opts.Scheduler, layout.RunnerOptions{
			OnFrame: s.opts.OnFrame,
			OnError: s.ctrl.Fail,
		})
	}
}

// refresh re-runs the filter and hands the result to the layout.
func (s *Session) refresh() {
	s.filter.Now = s.opts.Clock()
	s.visible = filter.Apply(s.full, s.filter)
	s.ctrl.Load(s.visible)
	s.logger.Debug("visible graph updated",
		zap.Int("nodes", len(s.visible.Nodes)),
		zap.Int("links", len(s.visible.Links)),
		zap.Int("months_back", s.filter.MonthsBack),
		zap.Int("hidden", len(s.filter.HiddenIDs)),
	)
}

// SetMonthsBack changes the time window; <= 0 disables it.
func (s *Session) SetMonthsBack(m int) {
	s.filter.MonthsBack = m
	s.refresh()
}

// MonthsBack returns the current time window.
func (s *Session) MonthsBack() int {
	return s.filter.MonthsBack
}

// SetHidden replaces the hidden wallet set.
func (s *Session) SetHidden(ids []string) {
	s.filter.HiddenIDs = toSet(ids)
	s.refresh()
}

// ToggleWallet hides a visible wallet or shows a hidden one.
func (s *Session) ToggleWallet(id string) {
	next := make(map[string]struct{}, len(s.filter.HiddenIDs)+1)
	for k := range s.filter.HiddenIDs {
		next[k] = struct{}{}
	}
	if _, ok := next[id]; ok {
		delete(next, id)
	} else {
		next[id] = struct{}{}
	}
	s.filter.HiddenIDs = next
	s.refresh()
}

// Hidden returns the hidden ids in sorted order.
func (s *Session) Hidden() []string {
	out := make([]string, 0, len(s.filter.HiddenIDs))
	for id := range s.filter.HiddenIDs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// SetHideIsolated toggles hiding nodes without a visible link.
func (s *Session) SetHideIsolated(v bool) {
	s.filter.HideIsolated = v
	s.refresh()
}

// Rebuild replaces the full graph and discards all position and pin state.
// The viewport transform and filter selection are kept.
func (s *Session) Rebuild(g *domain.Graph) {
	t := s.ctrl.Transform()
	if s.runner != nil {
		s.runner.Stop()
	}
	s.full = g
	s.attach(t)
	s.refresh()
}

// Close stops scheduled ticking. It is idempotent.
func (s *Session) Close() {
	if s.runner != nil {
		s.runner.Stop()
	}
}

// Graph returns the retained full graph.
func (s *Session) Graph() *domain.Graph { return s.full }

// Visible returns the current visible subgraph.
func (s *Session) Visible() domain.VisibleGraph { return s.visible }

// Simulation returns the layout engine.
func (s *Session) Simulation() *layout.Simulation { return s.sim }

// Controller returns the interaction controller.
func (s *Session) Controller() *interaction.Controller { return s.ctrl }

// VisibleNodes returns visible nodes with their current positions.
func (s *Session) VisibleNodes() []RenderNode {
	hovered := s.ctrl.HoveredNode()
	neighbors := s.ctrl.SelectedNeighbors()

	out := make([]RenderNode, 0, len(s.visible.Nodes))
	for _, n := range s.visible.Nodes {
		out = append(out, s.renderNode(n, hovered, neighbors))
	}
	return out
}

func (s *Session) renderNode(n domain.Node, hovered string, neighbors map[string]struct{}) RenderNode {
	p, _ := s.sim.Position(n.ID)
	_, near := neighbors[n.ID]
	return RenderNode{
		Node:     n,
		X:        p.X,
		Y:        p.Y,
		Pinned:   s.sim.Pinned(n.ID),
		Selected: n.ID == hovered || near,
	}
}

// VisibleLinks returns visible links with endpoint positions resolved.
func (s *Session) VisibleLinks() []RenderLink {
	out := make([]RenderLink, 0, len(s.visible.Links))
	for _, l := range s.visible.Links {
		src, _ := s.sim.Position(l.Source)
		dst, _ := s.sim.Position(l.Target)
		out = append(out, RenderLink{
			Source:   l.Source,
			Target:   l.Target,
			SourceX:  src.X,
			SourceY:  src.Y,
			TargetX:  dst.X,
			TargetY:  dst.Y,
			Value:    l.Value,
			Count:    l.Count,
			Color:    l.Color,
			Selected: s.ctrl.LinkSelected(l.Source, l.Target),
		})
	}
	return out
}

// HoveredNode returns the hovered node, if any.
func (s *Session) HoveredNode() (RenderNode, bool) {
	id := s.ctrl.HoveredNode()
	if id == "" {
		return RenderNode{}, false
	}
	for _, n := range s.visible.Nodes {
		if n.ID == id {
			return s.renderNode(n, id, s.ctrl.SelectedNeighbors()), true
		}
	}
	return RenderNode{}, false
}

// SelectedNeighbors returns the ids linked to the hovered node.
func (s *Session) SelectedNeighbors() map[string]struct{} {
	return s.ctrl.SelectedNeighbors()
}

// ViewportTransform returns the current viewport transform.
func (s *Session) ViewportTransform() interaction.Transform {
	return s.ctrl.Transform()
}

// CulledNodes returns the visible nodes whose circle intersects a w x h
// viewport.
func (s *Session) CulledNodes(w, h float64) []RenderNode {
	bounds := s.ctrl.Transform().Bounds(w, h)
	hovered := s.ctrl.HoveredNode()
	neighbors := s.ctrl.SelectedNeighbors()

	var out []RenderNode
	for _, n := range s.visible.Nodes {
		p, _ := s.sim.Position(n.ID)
		if !bounds.Expand(n.Radius).Contains(p) {
			continue
		}
		out = append(out, s.renderNode(n, hovered, neighbors))
	}
	return out
}

// Wallets lists every node of the full graph by value, largest first,
// filtered by a case-insensitive id substring.
func (s *Session) Wallets(search string) []Wallet {
	if s.full == nil {
		return nil
	}
	search = strings.ToLower(strings.TrimSpace(search))

	out := make([]Wallet, 0, len(s.full.Nodes))
	for _, n := range s.full.Nodes {
		if search != "" && !strings.Contains(strings.ToLower(n.ID), search) {
			continue
		}
		_, hidden := s.filter.HiddenIDs[n.ID]
		out = append(out, Wallet{
			ID:          n.ID,
			Value:       n.Value,
			Percentage:  n.Percentage,
			Color:       n.Color,
			IsTreasury:  n.IsTreasury,
			IsAggregate: n.IsAggregate,
			Hidden:      hidden,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}
