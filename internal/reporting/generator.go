package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"token-graph-lab/internal/domain"
	"token-graph-lab/internal/graph"
	"token-graph-lab/internal/layout"
	"token-graph-lab/internal/reducer"
	"token-graph-lab/internal/storage"
)

// DefaultMaxTicks bounds the static layout run.
const DefaultMaxTicks = 1000

// Options configures a Generator.
type Options struct {
	Graph   graph.Options
	Reduce  bool
	Reducer reducer.Options
	Layout  layout.Options
	// MaxTicks bounds the layout run. Negative skips the layout.
	MaxTicks int
	Logger   *zap.Logger
}

// Generator produces reports from stored datasets.
type Generator struct {
	datasets  storage.DatasetStore
	transfers storage.TransferStore // optional
	opts      Options
	logger    *zap.Logger
	now       func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator. transfers may be nil.
func NewGenerator(datasets storage.DatasetStore, transfers storage.TransferStore, opts Options) *Generator {
	if opts.MaxTicks == 0 {
		opts.MaxTicks = DefaultMaxTicks
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		datasets:  datasets,
		transfers: transfers,
		opts:      opts,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds, optionally reduces and lays out the latest dataset of
// tokenID and summarizes the result.
func (g *Generator) Generate(ctx context.Context, tokenID string) (*Report, error) {
	ds, err := g.datasets.Latest(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("load dataset %s: %w", tokenID, err)
	}

	full, stats, err := graph.BuildWithStats(ds.Accounts, ds.Transfers, g.opts.Graph)
	if err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}
	if g.opts.Reduce {
		full, err = reducer.Reduce(full, g.opts.Reducer)
		if err != nil {
			return nil, fmt.Errorf("reduce graph: %w", err)
		}
	}

	var positions map[string]domain.Position
	var layoutSummary LayoutSummary
	if g.opts.MaxTicks > 0 && len(full.Nodes) > 0 {
		positions, layoutSummary, err = runLayout(full, g.opts.Layout, g.opts.MaxTicks)
		if err != nil {
			return nil, err
		}
	}

	var volume []domain.MonthlyVolume
	if g.transfers != nil {
		volume, err = g.transfers.MonthlyVolume(ctx, tokenID)
		if err != nil {
			return nil, fmt.Errorf("load monthly volume: %w", err)
		}
	}

	report := &Report{
		GeneratedAt: g.now(),
		TokenID:     tokenID,
		FetchedAt:   ds.FetchedAt,
		Summary:     summarize(full, stats, len(ds.Transfers)),
		Nodes:       nodeRows(full, positions),
		Links:       linkRows(full.Links),
		Volume:      volume,
		Layout:      layoutSummary,
	}

	g.logger.Info("report generated",
		zap.String("token", tokenID),
		zap.Int("nodes", report.Summary.Nodes),
		zap.Int("links", report.Summary.Links),
		zap.Int("ticks", layoutSummary.Ticks),
	)
	return report, nil
}

func runLayout(g *domain.Graph, opts layout.Options, maxTicks int) (map[string]domain.Position, LayoutSummary, error) {
	start := time.Now()
	sim := layout.New(opts)
	if err := sim.SetGraph(g.Nodes, g.Links); err != nil {
		return nil, LayoutSummary{}, fmt.Errorf("layout graph: %w", err)
	}
	ticks := sim.RunToConvergence(maxTicks)
	return sim.Snapshot(), LayoutSummary{
		Ticks:    ticks,
		State:    sim.State().String(),
		Settled:  sim.State() == layout.StateSettled,
		Duration: time.Since(start),
	}, nil
}

func summarize(g *domain.Graph, stats graph.BuildStats, transfers int) Summary {
	s := Summary{
		Accounts:         stats.Accounts,
		Transfers:        transfers,
		Nodes:            len(g.Nodes),
		Links:            len(g.Links),
		ZeroBalance:      stats.ZeroBalance,
		DroppedTransfers: stats.DroppedTransfers,
		SelfTransfers:    stats.SelfTransfers,
		TotalSupply:      g.TotalSupply,
		TreasuryID:       g.TreasuryID,
	}
	for _, n := range g.Nodes {
		if n.IsAggregate {
			s.AggregateNodes++
		}
		if n.IsTreasury {
			s.TreasuryPercentage = n.Percentage
		}
	}
	return s
}

func nodeRows(g *domain.Graph, positions map[string]domain.Position) []NodeRow {
	adj := graph.Neighbors(g.Nodes, g.Links)
	rows := make([]NodeRow, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		p := positions[n.ID]
		rows = append(rows, NodeRow{
			ID:           n.ID,
			Kind:         n.Kind,
			Value:        n.Value,
			Percentage:   n.Percentage,
			Radius:       n.Radius,
			Color:        n.Color,
			IsTreasury:   n.IsTreasury,
			IsAggregate:  n.IsAggregate,
			Constituents: n.ConstituentCount,
			Neighbors:    len(adj.Of(n.ID)),
			X:            p.X,
			Y:            p.Y,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Value != rows[j].Value {
			return rows[i].Value > rows[j].Value
		}
		return rows[i].ID < rows[j].ID
	})
	return rows
}

func linkRows(links []domain.Link) []LinkRow {
	rows := make([]LinkRow, 0, len(links))
	for _, l := range links {
		rows = append(rows, LinkRow{
			Source: l.Source,
			Target: l.Target,
			Value:  l.Value,
			Count:  l.Count,
			Latest: l.Timestamp,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Value != rows[j].Value {
			return rows[i].Value > rows[j].Value
		}
		if rows[i].Source != rows[j].Source {
			return rows[i].Source < rows[j].Source
		}
		return rows[i].Target < rows[j].Target
	})
	return rows
}
