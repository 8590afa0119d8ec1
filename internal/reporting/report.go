package reporting

import (
	"time"

	"token-graph-lab/internal/domain"
)

// Report describes the holder graph of one token.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	TokenID     string
	FetchedAt   time.Time

	Summary Summary

	// Nodes sorted by value DESC, then id
	Nodes []NodeRow
	// Links sorted by value DESC, then source, target
	Links []LinkRow

	// Monthly transfer volume, empty without a transfer store
	Volume []domain.MonthlyVolume

	Layout LayoutSummary
}

// Summary contains graph totals.
type Summary struct {
	Accounts           int
	Transfers          int
	Nodes              int
	Links              int
	AggregateNodes     int
	ZeroBalance        int
	DroppedTransfers   int
	SelfTransfers      int
	TotalSupply        float64
	TreasuryID         string
	TreasuryPercentage float64
}

// NodeRow represents one row in the node table.
type NodeRow struct {
	ID           string
	Kind         string
	Value        float64
	Percentage   float64
	Radius       float64
	Color        string
	IsTreasury   bool
	IsAggregate  bool
	Constituents int
	Neighbors    int
	X            float64
	Y            float64
}

// LinkRow represents one row in the link table.
type LinkRow struct {
	Source string
	Target string
	Value  float64
	Count  int
	Latest time.Time // zero when no constituent had a timestamp
}

// LayoutSummary describes the static layout run. Ticks is 0 when the
// layout was skipped.
type LayoutSummary struct {
	Ticks    int
	State    string
	Settled  bool
	Duration time.Duration
}
