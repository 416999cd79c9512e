package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()
	m.AddDiscovered("P", 5)
	m.IncComposed("P", false)
	m.IncComposed("P", true)
	m.IncSkipped("P", "unreadable_raster")
	m.IncEncode("P", "success")
	m.YearStarted()
	m.YearFinished("P", "completed")

	if got := testutil.ToFloat64(m.discoveredTotal.WithLabelValues("P")); got != 5 {
		t.Fatalf("discovered = %v", got)
	}
	if got := testutil.ToFloat64(m.composedTotal.WithLabelValues("P")); got != 2 {
		t.Fatalf("composed = %v", got)
	}
	if got := testutil.ToFloat64(m.cacheHitsTotal.WithLabelValues("P")); got != 1 {
		t.Fatalf("cache hits = %v", got)
	}
	if got := testutil.ToFloat64(m.activeYears); got != 0 {
		t.Fatalf("active years = %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `animator_frames_skipped_total{product="P",reason="unreadable_raster"} 1`) {
		t.Fatalf("skip counter missing from exposition:\n%s", body)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.AddDiscovered("P", 1)
	m.IncComposed("P", true)
	m.IncSkipped("P", "x")
	m.IncEncode("P", "failure")
	m.YearStarted()
	m.YearFinished("P", "failed")
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Fatalf("code = %d", rec.Code)
	}
}
