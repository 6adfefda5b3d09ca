package store

import (
	"math"
	"sort"
	"time"

	"healthwatch/internal/models"
)

// Aggregate builds the cycle summary from the latest observation of
// each listed service. Services with no observations yet are skipped.
func Aggregate(s *ObservationStore, services []models.Service, startedAt, completedAt time.Time) models.AggregateResult {
	results := make([]models.ServiceResult, 0, len(services))
	statuses := make([]models.Status, 0, len(services))
	latencies := make([]float64, 0, len(services))

	for _, svc := range services {
		latest, ok := s.Latest(svc.Name)
		if !ok {
			continue
		}

		age := completedAt.Sub(latest.CheckedAt).Milliseconds()
		if age < 0 {
			age = 0
		}
		res := models.ServiceResult{
			Name:      svc.Name,
			URL:       svc.URL,
			Status:    latest.Status,
			LatencyMS: latest.LatencyMS,
			AgeMS:     age,
			Version:   latest.Version,
			Region:    latest.Region,
			CheckedAt: latest.CheckedAt,
		}
		if latest.Error != nil {
			res.Error = latest.Error.Error()
		}
		results = append(results, res)
		statuses = append(statuses, latest.Status)
		if latest.LatencyMS != nil && isFinite(*latest.LatencyMS) {
			latencies = append(latencies, *latest.LatencyMS)
		}
	}

	return models.AggregateResult{
		Status:      models.WorstStatus(statuses),
		Results:     results,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Latency:     Percentiles(latencies),
	}
}

// Percentiles computes the p50/p95/p99 summary by linear interpolation
// over the sorted sample. An empty sample yields an empty summary.
func Percentiles(samples []float64) models.LatencySummary {
	if len(samples) == 0 {
		return models.LatencySummary{Empty: true}
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	return models.LatencySummary{
		P50: percentile(sorted, 0.50),
		P95: percentile(sorted, 0.95),
		P99: percentile(sorted, 0.99),
	}
}

// percentile interpolates at position p × (n−1) in a sorted sample.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
