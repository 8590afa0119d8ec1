// Package layout implements the iterative force simulation that positions
// visible nodes, and the frame driver that ticks it.
package layout

import (
	"math"
	"math/rand"

	"go.uber.org/zap"

	"token-graph-lab/internal/domain"
)

// Options configures a Simulation.
type Options struct {
	Params       Params
	Rand         *rand.Rand // seeding source; nil uses rand.New(rand.NewSource(Seed))
	Seed         int64
	OnTransition func(from, to State)
	Logger       *zap.Logger
}

type vec struct{ x, y float64 }

type pin struct {
	x, y float64
	set  bool
}

type linkRef struct {
	source, target int
	strength       float64
	bias           float64
}

// Simulation is a force-directed layout over one node set. It is not safe
// for concurrent use; mutate it only between ticks on the goroutine that
// drives it.
type Simulation struct {
	params Params
	rng    *rand.Rand
	logger *zap.Logger

	state State
	alpha float64

	// position arena, indexed by node
	ids    []string
	index  map[string]int
	pos    []domain.Position
	vel    []vec
	pins   []pin
	radius []float64
	links  []linkRef

	listeners []func(from, to State)
	ticks     int
}

// New creates an idle simulation.
func New(opts Options) *Simulation {
	if opts.Params == (Params{}) {
		opts.Params = DefaultParams()
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(opts.Seed))
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Simulation{
		params: opts.Params,
		rng:    rng,
		logger: logger,
		state:  StateIdle,
		index:  make(map[string]int),
	}
	if opts.OnTransition != nil {
		s.listeners = append(s.listeners, opts.OnTransition)
	}
	return s
}

// Subscribe registers fn for state transitions.
func (s *Simulation) Subscribe(fn func(from, to State)) {
	s.listeners = append(s.listeners, fn)
}

// State returns the current lifecycle state.
func (s *Simulation) State() State { return s.state }

// Alpha returns the current cooling parameter.
func (s *Simulation) Alpha() float64 { return s.alpha }

// Ticks returns the number of ticks run since creation.
func (s *Simulation) Ticks() int { return s.ticks }

// Len returns the number of laid out nodes.
func (s *Simulation) Len() int { return len(s.ids) }

// Params returns the simulation parameters.
func (s *Simulation) Params() Params { return s.params }

func (s *Simulation) transition(to State) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	s.logger.Debug("layout transition",
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.Float64("alpha", s.alpha),
	)
	for _, fn := range s.listeners {
		fn(from, to)
	}
}

// SetGraph replaces the node and link set. Surviving ids keep their
// position, velocity and pin; new ids are seeded. On a dangling link the
// simulation is left unchanged.
func (s *Simulation) SetGraph(nodes []domain.Node, links []domain.Link) error {
	index := make(map[string]int, len(nodes))
	for i := range nodes {
		index[nodes[i].ID] = i
	}
	refs := make([]linkRef, 0, len(links))
	degree := make([]int, len(nodes))
	for i, l := range links {
		src, ok := index[l.Source]
		if !ok {
			return &DanglingReferenceError{LinkIndex: i, NodeID: l.Source}
		}
		dst, ok := index[l.Target]
		if !ok {
			return &DanglingReferenceError{LinkIndex: i, NodeID: l.Target}
		}
		refs = append(refs, linkRef{source: src, target: dst})
		degree[src]++
		degree[dst]++
	}
	for i := range refs {
		src, dst := refs[i].source, refs[i].target
		refs[i].bias = float64(degree[src]) / float64(degree[src]+degree[dst])
		refs[i].strength = s.params.LinkStrength
		if refs[i].strength == 0 {
			refs[i].strength = 1 / float64(min(degree[src], degree[dst]))
		}
	}

	hadNodes := len(s.ids) > 0
	prevIndex, prevPos, prevVel, prevPins := s.index, s.pos, s.vel, s.pins

	s.ids = make([]string, len(nodes))
	s.pos = make([]domain.Position, len(nodes))
	s.vel = make([]vec, len(nodes))
	s.pins = make([]pin, len(nodes))
	s.radius = make([]float64, len(nodes))
	s.index = index
	s.links = refs

	if len(nodes) == 0 {
		s.alpha = 0
		s.transition(StateIdle)
		return nil
	}

	s.transition(StateSeeding)
	seeded := 0
	for i := range nodes {
		s.ids[i] = nodes[i].ID
		s.radius[i] = nodes[i].Radius
		if j, ok := prevIndex[nodes[i].ID]; ok && j < len(prevPos) {
			s.pos[i] = prevPos[j]
			s.vel[i] = prevVel[j]
			s.pins[i] = prevPins[j]
			continue
		}
		s.pos[i] = s.seedPosition(i)
		seeded++
	}
	s.logger.Debug("layout graph set",
		zap.Int("nodes", len(nodes)),
		zap.Int("links", len(refs)),
		zap.Int("seeded", seeded),
	)

	if hadNodes {
		s.alpha = math.Max(s.alpha, s.params.AlphaRestart)
		s.transition(StateReheated)
		return nil
	}
	s.alpha = s.params.AlphaStart
	s.transition(StateRunning)
	return nil
}

// seedPosition places node i on a phyllotaxis spiral with a little jitter
// from the seeded source.
func (s *Simulation) seedPosition(i int) domain.Position {
	const goldenAngle = math.Pi * (3 - 2.23606797749979) // pi * (3 - sqrt(5))
	r := s.params.SeedRadius * math.Sqrt(0.5+float64(i))
	a := float64(i) * goldenAngle
	j := s.params.SeedJitter
	return domain.Position{
		X: r*math.Cos(a) + (s.rng.Float64()-0.5)*j,
		Y: r*math.Sin(a) + (s.rng.Float64()-0.5)*j,
	}
}

// Tick advances the simulation one step and reports whether it is still
// active. Idle and settled simulations do nothing.
func (s *Simulation) Tick() bool {
	if !s.state.Active() {
		return false
	}
	if s.state == StateReheated {
		s.transition(StateRunning)
	}

	s.alpha *= s.params.AlphaDecayFactor
	s.applyCharge()
	s.applyLinks()
	s.applyCollide()
	s.applyCenter()
	s.integrate()
	s.ticks++

	if s.alpha < s.params.AlphaMin {
		s.transition(StateSettled)
		return false
	}
	return true
}

func (s *Simulation) integrate() {
	keep := 1 - s.params.VelocityDecay
	for i := range s.pos {
		if s.pins[i].set {
			s.pos[i] = domain.Position{X: s.pins[i].x, Y: s.pins[i].y}
			s.vel[i] = vec{}
			continue
		}
		s.vel[i].x *= keep
		s.vel[i].y *= keep
		s.pos[i].X += s.vel[i].x
		s.pos[i].Y += s.vel[i].y
	}
}

// RunToConvergence ticks until the simulation settles or maxTicks is reached
// and returns the number of ticks run.
func (s *Simulation) RunToConvergence(maxTicks int) int {
	start := s.ticks
	for s.ticks-start < maxTicks && s.Tick() {
	}
	return s.ticks - start
}

// Reheat resets alpha to AlphaRestart and resumes ticking.
func (s *Simulation) Reheat() {
	if len(s.ids) == 0 {
		return
	}
	s.alpha = s.params.AlphaRestart
	s.transition(StateReheated)
}

// Pin holds node id at (x, y) until Unpin.
func (s *Simulation) Pin(id string, x, y float64) error {
	i, ok := s.index[id]
	if !ok {
		return ErrUnknownNode
	}
	s.pins[i] = pin{x: x, y: y, set: true}
	s.pos[i] = domain.Position{X: x, Y: y}
	s.vel[i] = vec{}
	return nil
}

// Unpin releases a pinned node. Unknown ids are ignored.
func (s *Simulation) Unpin(id string) {
	if i, ok := s.index[id]; ok {
		s.pins[i] = pin{}
	}
}

// Pinned reports whether id is pinned.
func (s *Simulation) Pinned(id string) bool {
	i, ok := s.index[id]
	return ok && s.pins[i].set
}

// Position returns the current position of id.
func (s *Simulation) Position(id string) (domain.Position, bool) {
	i, ok := s.index[id]
	if !ok {
		return domain.Position{}, false
	}
	return s.pos[i], true
}

// Snapshot returns a copy of every position keyed by node id.
func (s *Simulation) Snapshot() map[string]domain.Position {
	out := make(map[string]domain.Position, len(s.ids))
	for i, id := range s.ids {
		out[id] = s.pos[i]
	}
	return out
}
