package reporting

import (
	"encoding/csv"
	"strconv"
	"strings"
	"time"
)

// RenderNodesCSV renders node rows as CSV string.
func RenderNodesCSV(rows []NodeRow) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	w.Write([]string{"id", "kind", "value", "percentage", "radius", "color",
		"is_treasury", "is_aggregate", "constituents", "neighbors", "x", "y"})
	for _, r := range rows {
		w.Write([]string{
			r.ID,
			r.Kind,
			formatFloat(r.Value),
			strconv.FormatFloat(r.Percentage, 'f', 6, 64),
			strconv.FormatFloat(r.Radius, 'f', 3, 64),
			r.Color,
			strconv.FormatBool(r.IsTreasury),
			strconv.FormatBool(r.IsAggregate),
			strconv.Itoa(r.Constituents),
			strconv.Itoa(r.Neighbors),
			strconv.FormatFloat(r.X, 'f', 3, 64),
			strconv.FormatFloat(r.Y, 'f', 3, 64),
		})
	}
	w.Flush()

	return sb.String()
}

// RenderLinksCSV renders link rows as CSV string.
func RenderLinksCSV(rows []LinkRow) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	w.Write([]string{"source", "target", "value", "count", "latest"})
	for _, r := range rows {
		latest := ""
		if !r.Latest.IsZero() {
			latest = r.Latest.UTC().Format(time.RFC3339)
		}
		w.Write([]string{r.Source, r.Target, formatFloat(r.Value), strconv.Itoa(r.Count), latest})
	}
	w.Flush()

	return sb.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
