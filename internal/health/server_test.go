package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

type stubChecker struct {
	err error
}

func (s stubChecker) Ping(context.Context) error {
	return s.err
}

type stubStats struct {
	users      int
	promotions int
	err        error
}

func (s stubStats) CountUsers(context.Context) (int, error) {
	return s.users, s.err
}

func (s stubStats) CountPromotions(context.Context) (int, error) {
	return s.promotions, s.err
}

func serve(t *testing.T, server *Server, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	server.server.Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthHandlerOK(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	server := NewServer(0, Checks{
		Store: stubChecker{},
		Stats: stubStats{users: 0, promotions: 3},
	}, logrus.NewEntry(logger))

	rr := serve(t, server, "/healthz")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected HTTP 200, got %d", rr.Code)
	}

	body := strings.TrimSpace(rr.Body.String())
	if body != `{"status":"ok","users":0,"promotions":3}` {
		t.Fatalf("unexpected body: %s", body)
	}

	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected content-type application/json, got %s", ct)
	}
}

func TestHealthHandlerStoreError(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	server := NewServer(0, Checks{
		Store: stubChecker{err: errors.New("disk gone")},
		Stats: stubStats{users: 5},
	}, logrus.NewEntry(logger))

	body := strings.TrimSpace(serve(t, server, "/healthz").Body.String())
	if body != `{"status":"degraded","store":"error"}` {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestHealthHandlerMissingStoreChecker(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	server := NewServer(0, Checks{}, logrus.NewEntry(logger))

	body := strings.TrimSpace(serve(t, server, "/healthz").Body.String())
	if body != `{"status":"degraded","store":"error"}` {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestHealthHandlerSessionsError(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	server := NewServer(0, Checks{
		Store:    stubChecker{},
		Sessions: stubChecker{err: errors.New("redis down")},
	}, logrus.NewEntry(logger))

	body := strings.TrimSpace(serve(t, server, "/healthz").Body.String())
	if body != `{"status":"degraded","sessions":"error"}` {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestHealthHandlerOmitsFailedCounts(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	server := NewServer(0, Checks{
		Store: stubChecker{},
		Stats: stubStats{err: errors.New("count failed")},
	}, logrus.NewEntry(logger))

	body := strings.TrimSpace(serve(t, server, "/healthz").Body.String())
	if body != `{"status":"ok"}` {
		t.Fatalf("unexpected body: %s", body)
	}
	if entry := hook.LastEntry(); entry == nil || entry.Data["event"] != "health_stats_error" {
		t.Fatalf("expected health_stats_error log, got %v", entry)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "loyalty_bot_probe_total", Help: "probe"})
	reg.MustRegister(counter)
	counter.Inc()

	server := NewServer(0, Checks{Store: stubChecker{}, Gatherer: reg}, logrus.NewEntry(logger))

	rr := serve(t, server, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected HTTP 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "loyalty_bot_probe_total 1") {
		t.Fatalf("expected counter in metrics output, got %s", rr.Body.String())
	}
}

func TestMetricsEndpointDisabledWithoutGatherer(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	server := NewServer(0, Checks{Store: stubChecker{}}, logrus.NewEntry(logger))

	if rr := serve(t, server, "/metrics"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected HTTP 404, got %d", rr.Code)
	}
}
