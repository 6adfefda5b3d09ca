// Package probe normalizes raw HTTP health responses into the
// three-valued status vocabulary and resolves the reported latency.
package probe

import (
	"encoding/json"
	"math"
	"strconv"

	"healthwatch/internal/models"
)

// Payload is the recognized shape of a health endpoint body. Unknown
// fields are ignored; every field is optional.
type Payload struct {
	Status  string          `json:"status"`
	Version string          `json:"version"`
	Region  string          `json:"region"`
	Timings *PayloadTimings `json:"timings"`
}

// PayloadTimings mirrors the wire timing block, where numbers may
// arrive as JSON numbers or numeric strings.
type PayloadTimings struct {
	TotalMS json.RawMessage `json:"total_ms"`
	TTFBMS  json.RawMessage `json:"ttfb_ms"`
	DNSMS   json.RawMessage `json:"dns_ms"`
	TCPMS   json.RawMessage `json:"tcp_ms"`
	TLSMS   json.RawMessage `json:"tls_ms"`
}

// ParsePayload decodes body as a health payload. A nil result with nil
// error means the body was valid JSON but not an object.
func ParsePayload(body []byte) (*Payload, error) {
	var probeAny any
	if err := json.Unmarshal(body, &probeAny); err != nil {
		return nil, err
	}
	if _, ok := probeAny.(map[string]any); !ok {
		return nil, nil
	}
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// NormalizeStatus maps an HTTP status plus parsed payload onto the
// status vocabulary. Non-2xx is down; a recognized payload status wins;
// otherwise the missing-status policy applies.
func NormalizeStatus(httpStatus int, payload *Payload, missing models.Status) models.Status {
	if httpStatus < 200 || httpStatus > 299 {
		return models.StatusDown
	}
	if payload != nil {
		if s, ok := models.ParseStatus(payload.Status); ok {
			return s
		}
	}
	if !missing.Valid() {
		missing = models.StatusDown
	}
	return missing
}

// ResolveLatency prefers the payload-reported total over the measured
// wall-clock latency. When neither is usable the latency is zero.
func ResolveLatency(payload *Payload, measuredMS float64) (float64, *models.Timings) {
	if payload != nil && payload.Timings != nil {
		if total, ok := coerceNumber(payload.Timings.TotalMS); ok {
			t := &models.Timings{TotalMS: total}
			if v, ok := coerceNumber(payload.Timings.TTFBMS); ok {
				t.TTFBMS = &v
			}
			if v, ok := coerceNumber(payload.Timings.DNSMS); ok {
				t.DNSMS = &v
			}
			if v, ok := coerceNumber(payload.Timings.TCPMS); ok {
				t.TCPMS = &v
			}
			if v, ok := coerceNumber(payload.Timings.TLSMS); ok {
				t.TLSMS = &v
			}
			return total, t
		}
	}
	if !math.IsNaN(measuredMS) && !math.IsInf(measuredMS, 0) && measuredMS >= 0 {
		return measuredMS, nil
	}
	return 0, nil
}

// coerceNumber accepts a JSON number or a numeric string.
func coerceNumber(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		n, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
