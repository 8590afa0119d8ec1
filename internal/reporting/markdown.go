package reporting

import (
	"fmt"
	"strings"
	"time"
)

// DefaultTopHolders is the number of holders listed in the markdown report.
const DefaultTopHolders = 20

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# Holder Graph: %s\n\n", r.TokenID))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	if !r.FetchedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("Data fetched: %s\n\n", r.FetchedAt.Format(time.RFC3339)))
	}

	// Summary
	s := r.Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Accounts | %s |\n", FormatNumber(float64(s.Accounts))))
	sb.WriteString(fmt.Sprintf("| Transfers | %s |\n", FormatNumber(float64(s.Transfers))))
	sb.WriteString(fmt.Sprintf("| Nodes | %d |\n", s.Nodes))
	sb.WriteString(fmt.Sprintf("| Links | %d |\n", s.Links))
	sb.WriteString(fmt.Sprintf("| Aggregate Nodes | %d |\n", s.AggregateNodes))
	sb.WriteString(fmt.Sprintf("| Total Supply | %s |\n", FormatNumber(s.TotalSupply)))
	if s.TreasuryID != "" {
		sb.WriteString(fmt.Sprintf("| Treasury | %s (%s) |\n", s.TreasuryID, FormatPercent(s.TreasuryPercentage)))
	} else {
		sb.WriteString("| Treasury | none |\n")
	}
	sb.WriteString(fmt.Sprintf("| Zero-Balance Accounts | %d |\n", s.ZeroBalance))
	sb.WriteString(fmt.Sprintf("| Dropped Transfers | %d |\n", s.DroppedTransfers))
	sb.WriteString(fmt.Sprintf("| Self Transfers | %d |\n", s.SelfTransfers))
	sb.WriteString("\n")

	// Top holders
	sb.WriteString("## Top Holders\n\n")
	var holders []NodeRow
	var aggregates []NodeRow
	for _, n := range r.Nodes {
		if n.IsAggregate {
			aggregates = append(aggregates, n)
		} else if len(holders) < DefaultTopHolders {
			holders = append(holders, n)
		}
	}
	if len(holders) > 0 {
		sb.WriteString("| # | Account | Kind | Balance | Share | Links |\n")
		sb.WriteString("|---|---------|------|---------|-------|-------|\n")
		for i, n := range holders {
			id := n.ID
			if n.IsTreasury {
				id += " (treasury)"
			}
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s | %d |\n",
				i+1, id, n.Kind, FormatNumber(n.Value), FormatPercent(n.Percentage), n.Neighbors))
		}
	} else {
		sb.WriteString("No holders.\n")
	}
	sb.WriteString("\n")

	// Aggregates
	if len(aggregates) > 0 {
		sb.WriteString("## Aggregated Holders\n\n")
		sb.WriteString("| Node | Accounts | Balance | Share |\n")
		sb.WriteString("|------|----------|---------|-------|\n")
		for _, n := range aggregates {
			sb.WriteString(fmt.Sprintf("| %s | %d | %s | %s |\n",
				n.ID, n.Constituents, FormatNumber(n.Value), FormatPercent(n.Percentage)))
		}
		sb.WriteString("\n")
	}

	// Volume
	if len(r.Volume) > 0 {
		sb.WriteString("## Monthly Volume\n\n")
		sb.WriteString("| Month | Transfers | Volume |\n")
		sb.WriteString("|-------|-----------|--------|\n")
		for _, v := range r.Volume {
			sb.WriteString(fmt.Sprintf("| %s | %d | %s |\n",
				v.Month.Format("2006-01"), v.Transfers, FormatNumber(v.Volume)))
		}
		sb.WriteString("\n")
	}

	// Layout
	sb.WriteString("## Layout\n\n")
	if r.Layout.Ticks > 0 {
		sb.WriteString(fmt.Sprintf("%d ticks, final state %s, took %s.\n",
			r.Layout.Ticks, r.Layout.State, FormatDuration(r.Layout.Duration)))
	} else {
		sb.WriteString("Layout not run.\n")
	}

	return sb.String()
}
