package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hannes/stoat-bridge/bridge"
)

func newTestServer(t *testing.T) (*Server, *bridge.Table) {
	t.Helper()
	table, err := bridge.NewTable([]int64{100, 200}, []string{"SA", "SB"})
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	registry := prometheus.NewRegistry()
	return NewServer(":0", table, registry), table
}

func TestHealthCheck(t *testing.T) {
	server, _ := newTestServer(t)

	recorder := httptest.NewRecorder()
	server.healthCheck(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))

	if recorder.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", recorder.Code)
	}
	if got := recorder.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if !strings.Contains(recorder.Body.String(), `"status":"healthy"`) {
		t.Errorf("unexpected body: %s", recorder.Body.String())
	}
}

func TestPairStatus(t *testing.T) {
	server, table := newTestServer(t)
	table.SetStoatReady("SA")

	recorder := httptest.NewRecorder()
	server.pairStatus(recorder, httptest.NewRequest(http.MethodGet, "/pairs", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	var statuses []bridge.PairStatus
	if err := json.Unmarshal(recorder.Body.Bytes(), &statuses); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("got %d pairs, want 2", len(statuses))
	}
	if !statuses[0].StoatReady || statuses[0].WebhookReady {
		t.Errorf("first pair status = %+v", statuses[0])
	}
	if statuses[1].DiscordChannelID != 200 || statuses[1].StoatChannelID != "SB" {
		t.Errorf("second pair = %+v", statuses[1])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := bridge.NewMetrics(registry)
	metrics.MessagesRelayed.WithLabelValues(bridge.DirectionDiscordToStoat).Inc()

	recorder := httptest.NewRecorder()
	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "bridge_messages_relayed_total") {
		t.Error("metrics output missing relay counter")
	}
}
