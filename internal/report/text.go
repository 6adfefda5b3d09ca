package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"healthwatch/internal/models"
)

// WriteText renders the human-readable one-shot report used by check.
func WriteText(w io.Writer, agg models.AggregateResult) error {
	results := make([]models.ServiceResult, len(agg.Results))
	copy(results, agg.Results)
	sort.Slice(results, func(i, j int) bool {
		return strings.ToLower(results[i].Name) < strings.ToLower(results[j].Name)
	})

	nameWidth := 0
	for _, r := range results {
		if len(r.Name) > nameWidth {
			nameWidth = len(r.Name)
		}
	}

	for _, r := range results {
		line := fmt.Sprintf("%-*s  %-8s", nameWidth, r.Name, r.Status)
		if r.LatencyMS != nil {
			line += fmt.Sprintf("  %7.1fms", *r.LatencyMS)
		}
		if r.Version != "" {
			line += "  " + r.Version
		}
		if r.Error != "" {
			line += "  " + r.Error
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(w, "\nfleet: %s", agg.Status); err != nil {
		return err
	}
	if !agg.Latency.Empty {
		if _, err := fmt.Fprintf(w, "  p50=%.1fms p95=%.1fms p99=%.1fms",
			agg.Latency.P50, agg.Latency.P95, agg.Latency.P99); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}
