package layout

import "fmt"

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	OnFrame func()      // called after every tick
	OnError func(error) // called when a frame panics
}

// Runner keeps one scheduler registration alive while the simulation is
// active and releases it when the simulation settles or the runner stops.
type Runner struct {
	sim   *Simulation
	sched Scheduler
	opts  RunnerOptions

	cancel  func()
	gen     int
	stopped bool
}

// NewRunner attaches a runner to sim. Frames start as soon as sim is active.
func NewRunner(sim *Simulation, sched Scheduler, opts RunnerOptions) *Runner {
	r := &Runner{sim: sim, sched: sched, opts: opts}
	sim.Subscribe(func(_, to State) {
		if to.Active() {
			r.wake()
		}
	})
	if sim.State().Active() {
		r.wake()
	}
	return r
}

func (r *Runner) wake() {
	if r.stopped || r.cancel != nil {
		return
	}
	r.gen++
	gen := r.gen
	r.cancel = r.sched.Schedule(func() { r.frame(gen) })
}

func (r *Runner) frame(gen int) {
	// A frame dispatched before its registration was released is dropped.
	if r.stopped || r.cancel == nil || gen != r.gen {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.release()
			if r.opts.OnError != nil {
				r.opts.OnError(fmt.Errorf("%w: %v", ErrFramePanic, p))
			}
		}
	}()

	active := r.sim.Tick()
	if r.opts.OnFrame != nil {
		r.opts.OnFrame()
	}
	if !active {
		r.release()
	}
}

func (r *Runner) release() {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

// Registered reports whether a frame registration is held.
func (r *Runner) Registered() bool {
	return r.cancel != nil
}

// Stop releases the registration. Further transitions do not restart the
// runner. Stop is idempotent.
func (r *Runner) Stop() {
	r.stopped = true
	r.release()
}
