// Package filter selects the visible subgraph of a retained graph for a time
// window and a set of hidden wallets.
package filter

import (
	"errors"
	"fmt"
	"time"

	"token-graph-lab/internal/domain"
)

// ErrInvalidMonths is returned by ValidateMonths.
var ErrInvalidMonths = errors.New("invalid months window")

// AllowedMonths are the selectable time windows.
var AllowedMonths = []int{1, 2, 3, 4, 6}

// DefaultMonths is the initial time window.
const DefaultMonths = 6

// Options selects the visible subgraph.
type Options struct {
	MonthsBack   int                 // <= 0 disables the time window
	HiddenIDs    map[string]struct{} // nodes removed from view with their links
	Now          time.Time           // window end; zero means time.Now()
	HideIsolated bool                // also hide nodes left without a visible link
}

// ValidateMonths reports whether m is one of AllowedMonths.
func ValidateMonths(m int) error {
	for _, a := range AllowedMonths {
		if a == m {
			return nil
		}
	}
	return fmt.Errorf("%w: %d (allowed %v)", ErrInvalidMonths, m, AllowedMonths)
}

// Window returns the inclusive [from, to] range for opts. ok is false when
// the time window is disabled.
func Window(opts Options) (from, to time.Time, ok bool) {
	if opts.MonthsBack <= 0 {
		return time.Time{}, time.Time{}, false
	}
	to = opts.Now
	if to.IsZero() {
		to = time.Now()
	}
	return to.AddDate(0, -opts.MonthsBack, 0), to, true
}

// Apply returns the visible subgraph of g. A link is visible when neither
// endpoint is hidden and at least one of its transfers falls inside the
// window. The result always holds fresh slices.
func Apply(g *domain.Graph, opts Options) domain.VisibleGraph {
	if g == nil {
		return domain.VisibleGraph{Nodes: []domain.Node{}, Links: []domain.Link{}}
	}
	from, to, windowed := Window(opts)

	links := make([]domain.Link, 0, len(g.Links))
	linked := make(map[string]struct{})
	for _, l := range g.Links {
		if hidden(opts.HiddenIDs, l.Source) || hidden(opts.HiddenIDs, l.Target) {
			continue
		}
		if windowed && !inWindow(l, from, to) {
			continue
		}
		links = append(links, l)
		if opts.HideIsolated {
			linked[l.Source] = struct{}{}
			linked[l.Target] = struct{}{}
		}
	}

	nodes := make([]domain.Node, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if hidden(opts.HiddenIDs, n.ID) {
			continue
		}
		if opts.HideIsolated {
			if _, ok := linked[n.ID]; !ok {
				continue
			}
		}
		nodes = append(nodes, n)
	}

	return domain.VisibleGraph{Nodes: nodes, Links: links}
}

func hidden(ids map[string]struct{}, id string) bool {
	_, ok := ids[id]
	return ok
}

func inWindow(l domain.Link, from, to time.Time) bool {
	if len(l.Timestamps) == 0 {
		return within(l.Timestamp, from, to)
	}
	for _, ts := range l.Timestamps {
		if within(ts, from, to) {
			return true
		}
	}
	return false
}

func within(ts, from, to time.Time) bool {
	return !ts.IsZero() && !ts.Before(from) && !ts.After(to)
}
