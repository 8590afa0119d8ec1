package graph

import "token-graph-lab/internal/domain"

// Percentage thresholds for node color categories.
const (
	HighThreshold   = 10.0
	MediumThreshold = 1.0
)

// NodeColor returns the color category for a node. Treasury and aggregate
// override the percentage thresholds.
func NodeColor(percentage float64, isTreasury, isAggregate bool) string {
	switch {
	case isTreasury:
		return domain.ColorTreasury
	case isAggregate:
		return domain.ColorAggregate
	case percentage > HighThreshold:
		return domain.ColorHigh
	case percentage > MediumThreshold:
		return domain.ColorMedium
	default:
		return domain.ColorLow
	}
}

// LinkColor returns the treasury color when either endpoint is the treasury.
func LinkColor(source, target, treasuryID string) string {
	if treasuryID != "" && (source == treasuryID || target == treasuryID) {
		return domain.ColorTreasury
	}
	return domain.ColorLink
}

// Percentage returns value as a percentage of supply, or 0 for an empty supply.
func Percentage(value, supply float64) float64 {
	if supply <= 0 {
		return 0
	}
	return value / supply * 100
}
