// Package graph derives the sized, colored node-link graph from parsed
// accounts and transfers.
package graph

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"token-graph-lab/internal/domain"
	"token-graph-lab/internal/ledgerid"
)

var (
	// ErrMultipleTreasuries is returned when more than one account is flagged.
	ErrMultipleTreasuries = errors.New("more than one treasury account")
	// ErrDuplicateAccount is returned when an account id appears twice.
	ErrDuplicateAccount = errors.New("duplicate account")
)

// Default radius range in pixels.
const (
	DefaultRadiusMin = 15.0
	DefaultRadiusMax = 60.0
)

// Options configures Build.
type Options struct {
	RadiusMin float64
	RadiusMax float64
	Logger    *zap.Logger
}

// DefaultOptions returns the default radius range.
func DefaultOptions() Options {
	return Options{
		RadiusMin: DefaultRadiusMin,
		RadiusMax: DefaultRadiusMax,
	}
}

// BuildStats summarizes one build.
type BuildStats struct {
	Accounts         int
	Nodes            int
	Links            int
	ZeroBalance      int // accounts without a node
	DroppedTransfers int // transfers touching an account without a node
	SelfTransfers    int // sender == receiver, never linked
}

// Build derives a graph from accounts and transfers.
func Build(accounts []domain.Account, transfers []domain.Transfer, opts Options) (*domain.Graph, error) {
	g, _, err := BuildWithStats(accounts, transfers, opts)
	return g, err
}

// BuildWithStats is Build that also reports what was dropped.
func BuildWithStats(accounts []domain.Account, transfers []domain.Transfer, opts Options) (*domain.Graph, BuildStats, error) {
	if opts.RadiusMin == 0 && opts.RadiusMax == 0 {
		opts.RadiusMin, opts.RadiusMax = DefaultRadiusMin, DefaultRadiusMax
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	stats := BuildStats{Accounts: len(accounts)}
	g := &domain.Graph{}

	seen := make(map[string]struct{}, len(accounts))
	for _, a := range accounts {
		if _, dup := seen[a.ID]; dup {
			return nil, stats, fmt.Errorf("%w: %s", ErrDuplicateAccount, a.ID)
		}
		seen[a.ID] = struct{}{}

		if a.IsTreasury {
			if g.TreasuryID != "" {
				return nil, stats, fmt.Errorf("%w: %s and %s", ErrMultipleTreasuries, g.TreasuryID, a.ID)
			}
			g.TreasuryID = a.ID
		}
		g.TotalSupply += a.Balance
		if a.Balance > g.MaxBalance {
			g.MaxBalance = a.Balance
		}
	}

	scale := NewSqrtScale(g.MaxBalance, opts.RadiusMin, opts.RadiusMax)
	present := make(map[string]struct{}, len(accounts))
	g.Nodes = make([]domain.Node, 0, len(accounts))
	for _, a := range accounts {
		if a.Balance <= 0 {
			stats.ZeroBalance++
			continue
		}
		pct := Percentage(a.Balance, g.TotalSupply)
		g.Nodes = append(g.Nodes, domain.Node{
			ID:         a.ID,
			Value:      a.Balance,
			Percentage: pct,
			Radius:     scale.Radius(a.Balance),
			Color:      NodeColor(pct, a.IsTreasury, false),
			IsTreasury: a.IsTreasury,
			Kind:       string(ledgerid.Classify(a.ID)),
		})
		present[a.ID] = struct{}{}
	}

	// A flagged treasury without a positive balance has no node.
	if _, ok := present[g.TreasuryID]; !ok {
		g.TreasuryID = ""
	}

	g.Links = make([]domain.Link, 0, len(transfers))
	for _, tx := range transfers {
		_, okSrc := present[tx.Sender]
		_, okDst := present[tx.Receiver]
		if !okSrc || !okDst {
			stats.DroppedTransfers++
			continue
		}
		if tx.Sender == tx.Receiver {
			stats.SelfTransfers++
			continue
		}
		g.Links = append(g.Links, domain.Link{
			Source:     tx.Sender,
			Target:     tx.Receiver,
			Value:      tx.Amount,
			Count:      1,
			Timestamp:  tx.Timestamp,
			Timestamps: []time.Time{tx.Timestamp},
			Color:      LinkColor(tx.Sender, tx.Receiver, g.TreasuryID),
		})
	}

	stats.Nodes = len(g.Nodes)
	stats.Links = len(g.Links)
	logger.Debug("graph built",
		zap.Int("accounts", stats.Accounts),
		zap.Int("nodes", stats.Nodes),
		zap.Int("links", stats.Links),
		zap.Int("dropped_transfers", stats.DroppedTransfers),
		zap.String("treasury", g.TreasuryID),
	)
	return g, stats, nil
}
