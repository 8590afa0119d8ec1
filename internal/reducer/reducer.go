// Package reducer bounds graph size for layout by folding low-significance
// nodes into aggregate bucket nodes and merging parallel links.
package reducer

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"token-graph-lab/internal/domain"
	"token-graph-lab/internal/graph"
	"token-graph-lab/internal/ledgerid"
)

// ErrConservation is returned when the reduced graph does not carry the same
// total value as its input.
var ErrConservation = errors.New("reduction did not conserve total value")

// Defaults.
const (
	DefaultMaxNodes           = 1000
	DefaultMinBalanceFraction = 0.001 // 0.1% of supply
	DefaultBucketWidth        = 1.0   // percentage points

	conservationTolerance = 1e-6
)

// Options configures Reduce.
type Options struct {
	MaxNodes           int     // node budget; <= 0 disables reduction
	MinBalanceFraction float64 // share of supply above which a node stays individual
	BucketWidth        float64 // bucket width in percentage points
	RadiusMin          float64
	RadiusMax          float64
	Logger             *zap.Logger
}

// DefaultOptions returns the default reduction budget.
func DefaultOptions() Options {
	return Options{
		MaxNodes:           DefaultMaxNodes,
		MinBalanceFraction: DefaultMinBalanceFraction,
		BucketWidth:        DefaultBucketWidth,
		RadiusMin:          graph.DefaultRadiusMin,
		RadiusMax:          graph.DefaultRadiusMax,
	}
}

// bucket collects the members of one aggregate node.
type bucket struct {
	key     int
	value   float64
	members []string
}

// Reduce returns a graph with at most opts.MaxNodes nodes. When the input is
// already within budget the same pointer is returned.
func Reduce(g *domain.Graph, opts Options) (*domain.Graph, error) {
	if g == nil || opts.MaxNodes <= 0 || len(g.Nodes) <= opts.MaxNodes {
		return g, nil
	}
	if opts.BucketWidth <= 0 {
		opts.BucketWidth = DefaultBucketWidth
	}
	if opts.RadiusMin == 0 && opts.RadiusMax == 0 {
		opts.RadiusMin, opts.RadiusMax = graph.DefaultRadiusMin, graph.DefaultRadiusMax
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var significant, insignificant []domain.Node
	for _, n := range g.Nodes {
		if isSignificant(n, g.TotalSupply, opts.MinBalanceFraction) {
			significant = append(significant, n)
		} else {
			insignificant = append(insignificant, n)
		}
	}
	sortByValue(significant)

	buckets := make(map[int]*bucket)
	add := func(n domain.Node) {
		key := bucketKey(n.Percentage, opts.BucketWidth)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{key: key}
			buckets[key] = b
		}
		b.value += n.Value
		b.members = append(b.members, n.ID)
	}
	for _, n := range insignificant {
		add(n)
	}

	// Buckets can always merge down to one group, so significant nodes are
	// demoted only while they leave no room for it. The treasury goes last.
	for len(significant)+min(len(buckets), 1) > opts.MaxNodes && len(significant) > 0 {
		i := smallestDemotable(significant, len(buckets), opts.MaxNodes)
		if i < 0 {
			break
		}
		add(significant[i])
		significant = append(significant[:i], significant[i+1:]...)
	}

	groups := mergeBuckets(buckets, opts.MaxNodes-len(significant))

	treasuryID := ""
	for _, n := range significant {
		if n.IsTreasury {
			treasuryID = n.ID
		}
	}

	scale := graph.NewSqrtScale(g.MaxBalance, opts.RadiusMin, opts.RadiusMax)
	mapping := make(map[string]string, len(g.Nodes))
	nodes := make([]domain.Node, 0, len(significant)+len(groups))
	for _, n := range significant {
		mapping[n.ID] = n.ID
		nodes = append(nodes, n)
	}
	for _, grp := range groups {
		id := ledgerid.AggregateID(grp.key)
		for _, m := range grp.members {
			mapping[m] = id
		}
		pct := graph.Percentage(grp.value, g.TotalSupply)
		nodes = append(nodes, domain.Node{
			ID:               id,
			Value:            grp.value,
			Percentage:       pct,
			Radius:           scale.Radius(grp.value),
			Color:            graph.NodeColor(pct, false, true),
			IsAggregate:      true,
			ConstituentCount: len(grp.members),
			Kind:             string(ledgerid.KindAggregate),
		})
	}
	sortByValue(nodes)

	out := &domain.Graph{
		Nodes:       nodes,
		Links:       mergeLinks(g.Links, mapping, treasuryID),
		TotalSupply: g.TotalSupply,
		TreasuryID:  treasuryID,
		MaxBalance:  g.MaxBalance,
	}

	before, after := g.TotalValue(), out.TotalValue()
	if math.Abs(before-after) > conservationTolerance*math.Max(1, math.Abs(before)) {
		return nil, fmt.Errorf("%w: before %g, after %g", ErrConservation, before, after)
	}

	logger.Debug("graph reduced",
		zap.Int("nodes_in", len(g.Nodes)),
		zap.Int("nodes_out", len(out.Nodes)),
		zap.Int("aggregates", len(groups)),
		zap.Int("links_in", len(g.Links)),
		zap.Int("links_out", len(out.Links)),
	)
	return out, nil
}

func isSignificant(n domain.Node, supply, minFraction float64) bool {
	if n.IsTreasury {
		return true
	}
	if n.IsAggregate || supply <= 0 {
		return false
	}
	return n.Value/supply > minFraction
}

func bucketKey(percentage, width float64) int {
	return int(math.Floor(percentage / width))
}

// smallestDemotable returns the index of the significant node to fold next.
// significant is sorted by value descending.
func smallestDemotable(significant []domain.Node, buckets, maxNodes int) int {
	for i := len(significant) - 1; i >= 0; i-- {
		if !significant[i].IsTreasury {
			return i
		}
	}
	// Only the treasury is left. Keep it if a single bucket fits beside it.
	if len(significant)+min(buckets, 1) <= maxNodes {
		return -1
	}
	return 0
}

// mergeBuckets folds adjacent buckets into at most limit groups. Each group
// keeps the key of its lowest bucket.
func mergeBuckets(buckets map[int]*bucket, limit int) []*bucket {
	keys := make([]int, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	if limit <= 0 || len(keys) <= limit {
		out := make([]*bucket, 0, len(keys))
		for _, k := range keys {
			out = append(out, buckets[k])
		}
		return out
	}

	out := make([]*bucket, 0, limit)
	for g := 0; g < limit; g++ {
		lo, hi := g*len(keys)/limit, (g+1)*len(keys)/limit
		merged := &bucket{key: keys[lo]}
		for _, k := range keys[lo:hi] {
			merged.value += buckets[k].value
			merged.members = append(merged.members, buckets[k].members...)
		}
		out = append(out, merged)
	}
	return out
}

// mergeLinks substitutes endpoints, drops links collapsed onto one node and
// merges parallel links by ordered pair.
func mergeLinks(links []domain.Link, mapping map[string]string, treasuryID string) []domain.Link {
	type pair struct{ source, target string }

	merged := make(map[pair]*domain.Link)
	for _, l := range links {
		src, okSrc := mapping[l.Source]
		dst, okDst := mapping[l.Target]
		if !okSrc || !okDst || src == dst {
			continue
		}

		key := pair{src, dst}
		m, ok := merged[key]
		if !ok {
			m = &domain.Link{Source: src, Target: dst}
			merged[key] = m
		}
		m.Value += l.Value
		m.Count += max(l.Count, 1)
		if len(l.Timestamps) > 0 {
			m.Timestamps = append(m.Timestamps, l.Timestamps...)
		} else {
			m.Timestamps = append(m.Timestamps, l.Timestamp)
		}
		if l.Timestamp.After(m.Timestamp) {
			m.Timestamp = l.Timestamp
		}
	}

	out := make([]domain.Link, 0, len(merged))
	for _, m := range merged {
		sort.Slice(m.Timestamps, func(i, j int) bool { return m.Timestamps[i].Before(m.Timestamps[j]) })
		m.Timestamp = latest(m.Timestamp, m.Timestamps)
		m.Color = graph.LinkColor(m.Source, m.Target, treasuryID)
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Target < out[j].Target
	})
	return out
}

func latest(t time.Time, ts []time.Time) time.Time {
	if n := len(ts); n > 0 && ts[n-1].After(t) {
		return ts[n-1]
	}
	return t
}

func sortByValue(nodes []domain.Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Value != nodes[j].Value {
			return nodes[i].Value > nodes[j].Value
		}
		return nodes[i].ID < nodes[j].ID
	})
}
