// Package health exposes the HTTP health and metrics endpoints for container probes.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"tg_loyalty_bot/internal/logging"
)

const (
	pingTimeout        = 2 * time.Second
	readHeaderTimeout  = 2 * time.Second
	healthListenPrefix = ":"
)

// Checker is anything that can report reachability.
type Checker interface {
	Ping(ctx context.Context) error
}

// StatsReader reports collection sizes.
type StatsReader interface {
	CountUsers(ctx context.Context) (int, error)
	CountPromotions(ctx context.Context) (int, error)
}

// Checks wires the probes behind /healthz and /metrics. Sessions and
// Gatherer are optional.
type Checks struct {
	Store    Checker
	Sessions Checker
	Stats    StatsReader
	Gatherer prometheus.Gatherer
}

// Server hosts the health endpoint and owns the underlying HTTP server.
type Server struct {
	server *http.Server
	logger *logrus.Entry
	checks Checks
}

type response struct {
	Status     string `json:"status"`
	Users      *int   `json:"users,omitempty"`
	Promotions *int   `json:"promotions,omitempty"`
	Store      string `json:"store,omitempty"`
	Sessions   string `json:"sessions,omitempty"`
}

// NewServer constructs a health server exposing GET /healthz and, when a
// gatherer is configured, GET /metrics on the provided port.
func NewServer(port int, checks Checks, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logging.Logger()
	}

	srv := &Server{
		logger: logger,
		checks: checks,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)
	if checks.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(checks.Gatherer, promhttp.HandlerOpts{}))
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf("%s%d", healthListenPrefix, port),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return srv
}

// ListenAndServe starts the health server and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.WithFields(logging.Fields{
		"event": "health_listen",
		"addr":  s.server.Addr,
	}).Info("starting health server")

	if err := s.server.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			s.logger.WithField("event", "health_stopped").Info("health server stopped")
			return nil
		}

		return fmt.Errorf("health server listen: %w", err)
	}

	s.logger.WithField("event", "health_stopped").Info("health server stopped")
	return nil
}

// Shutdown gracefully stops the health server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}

	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := response{Status: "ok"}

	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	if !s.ping(ctx, s.checks.Store, "store") {
		resp.Status = "degraded"
		resp.Store = "error"
	}
	if s.checks.Sessions != nil && !s.ping(ctx, s.checks.Sessions, "sessions") {
		resp.Status = "degraded"
		resp.Sessions = "error"
	}

	if resp.Store == "" && s.checks.Stats != nil {
		if users, err := s.checks.Stats.CountUsers(ctx); err == nil {
			resp.Users = &users
		} else {
			s.logger.WithField("event", "health_stats_error").WithError(err).Warn("failed to count users")
		}
		if promotions, err := s.checks.Stats.CountPromotions(ctx); err == nil {
			resp.Promotions = &promotions
		} else {
			s.logger.WithField("event", "health_stats_error").WithError(err).Warn("failed to count promotions")
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.WithField("event", "health_write_error").WithError(err).Error("failed to encode health response")
	}
}

func (s *Server) ping(ctx context.Context, checker Checker, name string) bool {
	if checker == nil {
		s.logger.WithFields(logging.Fields{
			"event":     "health_check_missing",
			"component": name,
		}).Warn("checker is not configured for health endpoint")
		return false
	}

	if err := checker.Ping(ctx); err != nil {
		s.logger.WithFields(logging.Fields{
			"event":     "health_check_error",
			"component": name,
		}).WithError(err).Warn("ping failed during health check")
		return false
	}
	return true
}
