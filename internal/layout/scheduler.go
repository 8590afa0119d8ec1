package layout

import (
	"sort"
	"sync"
	"time"
)

// Scheduler calls a registered function once per frame until the returned
// cancel function is called. Cancel must be idempotent.
type Scheduler interface {
	Schedule(fn func()) (cancel func())
}

// ManualScheduler runs frames only when Frame is called. Used for tests and
// synchronous batch layout.
type ManualScheduler struct {
	next      int
	callbacks map[int]func()
}

// NewManualScheduler creates an empty ManualScheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{callbacks: make(map[int]func())}
}

// Schedule implements Scheduler.
func (m *ManualScheduler) Schedule(fn func()) func() {
	id := m.next
	m.next++
	m.callbacks[id] = fn
	return func() { delete(m.callbacks, id) }
}

// Frame invokes every registered callback once in registration order and
// returns how many ran. Callbacks registered during the frame run next time.
func (m *ManualScheduler) Frame() int {
	ids := make([]int, 0, len(m.callbacks))
	for id := range m.callbacks {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	ran := 0
	for _, id := range ids {
		if fn, ok := m.callbacks[id]; ok {
			fn()
			ran++
		}
	}
	return ran
}

// Registered returns the number of live registrations.
func (m *ManualScheduler) Registered() int {
	return len(m.callbacks)
}

// DefaultFrameInterval is roughly one display frame.
const DefaultFrameInterval = 16 * time.Millisecond

// TickerScheduler drives frames from a time.Ticker. Dispatch hands each
// callback to the goroutine that owns the simulation; when nil the callback
// runs on the ticker goroutine.
type TickerScheduler struct {
	Interval time.Duration
	Dispatch func(fn func())
}

// Schedule implements Scheduler.
func (t *TickerScheduler) Schedule(fn func()) func() {
	interval := t.Interval
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	dispatch := t.Dispatch
	if dispatch == nil {
		dispatch = func(f func()) { f() }
	}

	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				dispatch(fn)
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
