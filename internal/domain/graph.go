package domain

import "time"

// Node colors. Styling is presentation only; these are the defaults the
// dashboard ships with.
const (
	ColorHigh      = "#FF3B9A" // > 10% of supply
	ColorMedium    = "#7A73FF" // > 1% of supply
	ColorLow       = "#42C7FF"
	ColorTreasury  = "#FFD700"
	ColorAggregate = "#808080"
	ColorLink      = "#42C7FF"
)

// Node is the visual representation of an account or of a bucket of
// low-significance accounts. Positions are not stored here; the layout
// engine owns them.
type Node struct {
	ID               string  `json:"id"`
	Value            float64 `json:"value"`      // balance, or sum of constituent balances
	Percentage       float64 `json:"percentage"` // Value / TotalSupply * 100
	Radius           float64 `json:"radius"`
	Color            string  `json:"color"`
	IsTreasury       bool    `json:"isTreasury"`
	IsAggregate      bool    `json:"isAggregate"`
	ConstituentCount int     `json:"constituentCount,omitempty"` // set only for aggregates
	Kind             string  `json:"kind,omitempty"`             // ledger identifier class
}

// Link is the visual representation of one or more transfers between two
// nodes. Source and Target are always node identifiers.
type Link struct {
	Source     string      `json:"source"`
	Target     string      `json:"target"`
	Value      float64     `json:"value"`     // summed transfer amount
	Count      int         `json:"count"`     // number of merged raw transfers
	Timestamp  time.Time   `json:"timestamp"` // most recent constituent timestamp
	Timestamps []time.Time `json:"-"`         // every constituent timestamp
	Color      string      `json:"color"`
}

// Graph is the full derived node-link graph retained in memory.
type Graph struct {
	Nodes       []Node
	Links       []Link
	TotalSupply float64
	TreasuryID  string // empty when no account is flagged
	MaxBalance  float64
}

// NodeIndex returns a map from node id to its index in g.Nodes.
func (g *Graph) NodeIndex() map[string]int {
	idx := make(map[string]int, len(g.Nodes))
	for i := range g.Nodes {
		idx[g.Nodes[i].ID] = i
	}
	return idx
}

// TotalValue returns the sum of all node values.
func (g *Graph) TotalValue() float64 {
	var sum float64
	for i := range g.Nodes {
		sum += g.Nodes[i].Value
	}
	return sum
}

// VisibleGraph is the subgraph selected by the time/visibility filter.
type VisibleGraph struct {
	Nodes []Node
	Links []Link
}

// Empty reports the empty-graph condition: nothing to show. It is a valid
// terminal state, not an error.
func (v VisibleGraph) Empty() bool {
	return len(v.Nodes) == 0
}

// Position is a 2D layout coordinate in world space.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}
