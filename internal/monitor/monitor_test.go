package monitor

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	_ "github.com/satcat5/corenet/internal/testutil/testlog"
)

func TestHealthzAndStats(t *testing.T) {
	s := New(func() Stats {
		return Stats{EthDropped: 3, ARPCacheSize: 2, PTPState: "slave"}
	}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("/healthz status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/stats", nil)
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("/stats status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"eth_dropped":3`) {
		t.Errorf("/stats body missing eth_dropped: %s", rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := New(func() Stats { return Stats{} }, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "satcat5_eth_dropped_total") {
		t.Error("/metrics body missing satcat5_eth_dropped_total")
	}
}

