package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"healthwatch/internal/models"
)

// statusGauge maps the status vocabulary onto the exported gauge.
func statusGauge(s models.Status) string {
	switch s {
	case models.StatusOK:
		return "1"
	case models.StatusDegraded:
		return "0.5"
	default:
		return "0"
	}
}

// escapeLabel applies the Prometheus label-value escaping rules.
func escapeLabel(v string) string {
	r := strings.NewReplacer(`\`, `\\`, "\n", `\n`, `"`, `\"`)
	return r.Replace(v)
}

func labels(r models.ServiceResult) string {
	b := strings.Builder{}
	b.WriteString(`{service="`)
	b.WriteString(escapeLabel(r.Name))
	b.WriteString(`"`)
	if r.Region != "" {
		b.WriteString(`,region="`)
		b.WriteString(escapeLabel(r.Region))
		b.WriteString(`"`)
	}
	b.WriteString("}")
	return b.String()
}

// WritePrometheus renders the aggregate in the textfile-collector
// format: health_status per service, health_latency_ms where known,
// and the scrape timestamp. LF-terminated with a trailing newline.
func WritePrometheus(w io.Writer, agg models.AggregateResult) error {
	var b strings.Builder

	b.WriteString("# HELP health_status 1=ok, 0.5=degraded, 0=down\n")
	b.WriteString("# TYPE health_status gauge\n")
	for _, r := range agg.Results {
		b.WriteString("health_status")
		b.WriteString(labels(r))
		b.WriteString(" ")
		b.WriteString(statusGauge(r.Status))
		b.WriteString("\n")
	}

	b.WriteString("# HELP health_latency_ms last observed latency\n")
	b.WriteString("# TYPE health_latency_ms gauge\n")
	for _, r := range agg.Results {
		if r.LatencyMS == nil {
			continue
		}
		b.WriteString("health_latency_ms")
		b.WriteString(labels(r))
		b.WriteString(" ")
		b.WriteString(strconv.FormatFloat(*r.LatencyMS, 'f', -1, 64))
		b.WriteString("\n")
	}

	b.WriteString("# HELP health_scrape_timestamp_ms unix epoch ms\n")
	b.WriteString("# TYPE health_scrape_timestamp_ms gauge\n")
	fmt.Fprintf(&b, "health_scrape_timestamp_ms %d\n", agg.CompletedAt.UnixMilli())

	_, err := io.WriteString(w, b.String())
	return err
}
