package metrics

import (
	"sort"
	"strings"
	"time"

	"healthwatch/internal/models"
	"healthwatch/internal/store"
)

// ServiceUptime summarises the retained history of a monitored service.
type ServiceUptime struct {
	Name          string  `json:"name"`
	UptimePercent float64 `json:"uptime_percent"`
	TotalChecks   int     `json:"total_checks"`
	Passing       int     `json:"passing"`
	Degraded      int     `json:"degraded"`
	Failing       int     `json:"failing"`
	LastStatus    string  `json:"last_status,omitempty"`
	LastChecked   string  `json:"last_checked,omitempty"`
}

// ComputeServiceUptime aggregates uptime statistics per service from
// the observation store. A probe counts as passing unless it came back
// down; degraded responses are tallied separately.
func ComputeServiceUptime(s *store.ObservationStore, services []models.Service) []ServiceUptime {
	results := make([]ServiceUptime, 0, len(services))
	for _, svc := range services {
		history := s.History(svc.Name)
		if len(history) == 0 {
			continue
		}

		summary := ServiceUptime{Name: svc.Name}
		var lastChecked time.Time
		for _, obs := range history {
			switch obs.Status {
			case models.StatusDown:
				summary.Failing++
			case models.StatusDegraded:
				summary.Degraded++
				summary.Passing++
			default:
				summary.Passing++
			}
			if obs.CheckedAt.After(lastChecked) {
				lastChecked = obs.CheckedAt
				summary.LastStatus = string(obs.Status)
			}
		}
		summary.TotalChecks = summary.Passing + summary.Failing
		if summary.TotalChecks > 0 {
			summary.UptimePercent = float64(summary.Passing) / float64(summary.TotalChecks) * 100
		}
		if !lastChecked.IsZero() {
			summary.LastChecked = lastChecked.UTC().Format(time.RFC3339)
		}
		results = append(results, summary)
	}

	sort.Slice(results, func(i, j int) bool {
		return strings.ToLower(results[i].Name) < strings.ToLower(results[j].Name)
	})
	return results
}
