package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ahmadzakiakmal/timetrack/clock"
	"github.com/ahmadzakiakmal/timetrack/engine"
	"github.com/ahmadzakiakmal/timetrack/journal"
	"github.com/ahmadzakiakmal/timetrack/ledger"
	"github.com/ahmadzakiakmal/timetrack/report"
	"github.com/ahmadzakiakmal/timetrack/repository/inmem"
	service_registry "github.com/ahmadzakiakmal/timetrack/srvreg"
)

func newTestServer(t *testing.T) *WebServer {
	t.Helper()
	store := inmem.NewStore()
	clk := clock.NewManual(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	rec := &journal.Memory{}
	eng := engine.New(store, ledger.New(clk, rec), clk, rec)
	aggregator := report.NewAggregator(store, clk)
	registry := service_registry.NewServiceRegistry(eng, aggregator)
	registry.RegisterDefaultServices()
	return NewWebServer("0", registry, nil, "memory")
}

func TestServiceAPIRoundTrip(t *testing.T) {
	ws := newTestServer(t)

	body := strings.NewReader(`{"full_name":"Ada","email":"ada@example.com","password":"secret123"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/register", body)
	rr := httptest.NewRecorder()
	ws.handleServiceAPI(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d, body %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var user map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &user); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if user["id"] == "" || user["id"] == nil {
		t.Error("response carries no user id")
	}
}

func TestServiceAPIUnknownRoute(t *testing.T) {
	ws := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rr := httptest.NewRecorder()
	ws.handleServiceAPI(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}
