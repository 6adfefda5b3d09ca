package tui

import (
	"sort"
	"strings"
	"time"

	"healthwatch/internal/models"
)

// DefaultTimelinePoints controls how many cells the history strip has.
const DefaultTimelinePoints = 60

// TimelinePoint is one bucket of a service's history strip.
type TimelinePoint struct {
	Status  models.Status
	HasData bool
	Start   time.Time
	End     time.Time
}

// BuildTimeline buckets observations into a fixed number of cells,
// keeping the worst status seen inside each bucket.
func BuildTimeline(observations []models.Observation, start, end time.Time, points int) []TimelinePoint {
	if points <= 0 {
		points = DefaultTimelinePoints
	}
	if !end.After(start) {
		end = start.Add(time.Minute)
	}

	samples := make([]models.Observation, len(observations))
	copy(samples, observations)
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].CheckedAt.Before(samples[j].CheckedAt)
	})

	bucket := end.Sub(start) / time.Duration(points)
	if bucket <= 0 {
		bucket = time.Second
	}

	output := make([]TimelinePoint, 0, points)
	cursor := 0
	for i := 0; i < points; i++ {
		bucketStart := start.Add(time.Duration(i) * bucket)
		bucketEnd := bucketStart.Add(bucket)
		if i == points-1 {
			bucketEnd = end
		}

		point := TimelinePoint{Start: bucketStart, End: bucketEnd}
		for cursor < len(samples) && samples[cursor].CheckedAt.Before(bucketEnd) {
			if !samples[cursor].CheckedAt.Before(bucketStart) {
				if !point.HasData || samples[cursor].Status.Worse(point.Status) {
					point.Status = samples[cursor].Status
				}
				point.HasData = true
			}
			cursor++
		}
		output = append(output, point)
	}
	return output
}

// renderTimeline draws the strip as colored cells.
func renderTimeline(points []TimelinePoint) string {
	var b strings.Builder
	for _, p := range points {
		if !p.HasData {
			b.WriteString(dotNoData)
			continue
		}
		b.WriteString(statusStyle(p.Status).Render("▄"))
	}
	return b.String()
}
