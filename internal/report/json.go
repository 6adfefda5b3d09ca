// Package report renders aggregates for the one-shot and export
// surfaces: JSON, NDJSON, Prometheus textfile, and plain text.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"healthwatch/internal/models"
)

type jsonResult struct {
	Name      string   `json:"name"`
	Status    string   `json:"status"`
	LatencyMS *float64 `json:"latency_ms,omitempty"`
	Version   string   `json:"version,omitempty"`
	Region    string   `json:"region,omitempty"`
	CheckedAt string   `json:"checked_at,omitempty"`
	URL       string   `json:"url,omitempty"`
	Error     string   `json:"error,omitempty"`
}

type jsonDocument struct {
	Aggregate string       `json:"aggregate"`
	CheckedAt string       `json:"checked_at"`
	Results   []jsonResult `json:"results"`
}

func toJSONResult(r models.ServiceResult) jsonResult {
	out := jsonResult{
		Name:      r.Name,
		Status:    string(r.Status),
		LatencyMS: r.LatencyMS,
		Version:   r.Version,
		Region:    r.Region,
		URL:       r.URL,
		Error:     r.Error,
	}
	if !r.CheckedAt.IsZero() {
		out.CheckedAt = r.CheckedAt.UTC().Format(time.RFC3339)
	}
	return out
}

// WriteJSON renders the aggregate as an indented JSON document with a
// trailing newline.
func WriteJSON(w io.Writer, agg models.AggregateResult) error {
	doc := jsonDocument{
		Aggregate: string(agg.Status),
		CheckedAt: agg.CompletedAt.UTC().Format(time.RFC3339),
		Results:   make([]jsonResult, 0, len(agg.Results)),
	}
	for _, r := range agg.Results {
		doc.Results = append(doc.Results, toJSONResult(r))
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode json report: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// WriteNDJSON renders one result object per line. No results means no
// output at all.
func WriteNDJSON(w io.Writer, agg models.AggregateResult) error {
	for _, r := range agg.Results {
		line, err := json.Marshal(toJSONResult(r))
		if err != nil {
			return fmt.Errorf("encode ndjson result: %w", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return err
		}
	}
	return nil
}
