// Package server exposes the live monitor over HTTP: status and
// history endpoints, a websocket pushing each new aggregate, and a
// Prometheus metrics endpoint.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"healthwatch/internal/metrics"
	"healthwatch/internal/models"
	"healthwatch/internal/monitor"
)

const (
	defaultHistoryLimit = 100
	historyCapacity     = 256
)

// Server wraps HTTP serving of the monitor's live state.
type Server struct {
	httpServer *http.Server
	mon        *monitor.Monitor
	logger     *slog.Logger
	upgrader   websocket.Upgrader

	registry    *prometheus.Registry
	statusGauge *prometheus.GaugeVec
	latencyMS   *prometheus.GaugeVec
	scrapeTS    prometheus.Gauge

	mu      sync.RWMutex
	latest  *models.AggregateResult
	history []models.AggregateResult
	clients map[*websocket.Conn]struct{}
}

// New creates a configured server and subscribes it to the monitor.
func New(addr string, mon *monitor.Monitor, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 3 * time.Second,
		},
		mon:      mon,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		clients:  make(map[*websocket.Conn]struct{}),
	}

	s.statusGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "health_status",
		Help: "1=ok, 0.5=degraded, 0=down",
	}, []string{"service", "region"})
	s.latencyMS = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "health_latency_ms",
		Help: "last observed latency",
	}, []string{"service", "region"})
	s.scrapeTS = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "health_scrape_timestamp_ms",
		Help: "unix epoch ms",
	})
	s.registry.MustRegister(s.statusGauge, s.latencyMS, s.scrapeTS)

	s.registerRoutes(mux)
	mon.Subscribe(s.onAggregate)
	return s
}

// Run blocks and serves HTTP traffic.
func (s *Server) Run() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts the server down, closing websocket
// clients first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for conn := range s.clients {
		_ = conn.Close()
	}
	s.clients = make(map[*websocket.Conn]struct{})
	s.mu.Unlock()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/uptime", s.handleUptime)
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
}

// onAggregate records the newest aggregate into the bounded cycle
// history, refreshes the gauges and fans the result out to websocket
// clients.
func (s *Server) onAggregate(agg models.AggregateResult) {
	s.mu.Lock()
	s.latest = &agg
	s.history = append(s.history, agg)
	if overflow := len(s.history) - historyCapacity; overflow > 0 {
		s.history = s.history[overflow:]
	}
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	s.statusGauge.Reset()
	s.latencyMS.Reset()
	for _, r := range agg.Results {
		s.statusGauge.WithLabelValues(r.Name, r.Region).Set(statusValue(r.Status))
		if r.LatencyMS != nil {
			s.latencyMS.WithLabelValues(r.Name, r.Region).Set(*r.LatencyMS)
		}
	}
	s.scrapeTS.Set(float64(agg.CompletedAt.UnixMilli()))

	for _, conn := range conns {
		if err := conn.WriteJSON(agg); err != nil {
			s.dropClient(conn)
		}
	}
}

func statusValue(st models.Status) float64 {
	switch st {
	case models.StatusOK:
		return 1
	case models.StatusDegraded:
		return 0.5
	default:
		return 0
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()
	if latest == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  nil,
			"results": []models.ServiceResult{},
		})
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

// handleHistory serves the most recent cycle aggregates, oldest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, defaultHistoryLimit)

	s.mu.RLock()
	history := s.history
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	out := make([]models.AggregateResult, len(history))
	copy(out, history)
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUptime(w http.ResponseWriter, _ *http.Request) {
	summary := metrics.ComputeServiceUptime(s.mon.Store(), s.mon.Services())
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	latest := s.latest
	s.mu.Unlock()

	if latest != nil {
		if err := conn.WriteJSON(latest); err != nil {
			s.dropClient(conn)
			return
		}
	}

	// Drain (and discard) client frames so pings are answered and
	// closed connections are noticed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.dropClient(conn)
				return
			}
		}
	}()
}

func (s *Server) dropClient(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	_ = conn.Close()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func parseLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}
