package engine

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/sawpanic/orbstream/internal/config"
	"github.com/sawpanic/orbstream/internal/execution"
	"github.com/sawpanic/orbstream/internal/net/circuit"
)

// fakePoller is a controllable Poller double.
type fakePoller struct {
	err   error
	calls int
}

func (p *fakePoller) Reload() error {
	p.calls++
	return p.err
}

func TestHandleHealthz_ReportsOkAndStreamCount(t *testing.T) {
	e := New(testDeps(t), testSpec(), engineTradingDate, false)
	defer e.Stop()
	if err := e.ApplyStream(config.StreamEntry{Stream: "es_0830", Instrument: "ES", Session: "RTH", SlotTime: "08:35", Enabled: true}); err != nil {
		t.Fatalf("ApplyStream failed: %v", err)
	}

	router := NewHTTPServer(e, nil, zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp healthzResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	if !resp.OK {
		t.Error("expected ok=true")
	}
	if resp.Streams != 1 {
		t.Errorf("stream_count = %d, want 1", resp.Streams)
	}
	if resp.AdapterBreaker == nil {
		t.Fatal("expected adapter_breaker to be populated for a dryrun adapter")
	}
	if resp.AdapterBreaker.State != circuit.Closed {
		t.Errorf("AdapterBreaker.State = %v, want Closed", resp.AdapterBreaker.State)
	}
}

func TestHandleStreams_ReturnsSnapshot(t *testing.T) {
	e := New(testDeps(t), testSpec(), engineTradingDate, false)
	defer e.Stop()
	if err := e.ApplyStream(config.StreamEntry{Stream: "es_0830", Instrument: "ES", Session: "RTH", SlotTime: "08:35", Enabled: true}); err != nil {
		t.Fatalf("ApplyStream failed: %v", err)
	}

	router := NewHTTPServer(e, nil, zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/streams", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var snap []StreamSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	if len(snap) != 1 || snap[0].StreamID != "es_0830" {
		t.Errorf("snapshot = %+v, want one entry for es_0830", snap)
	}
}

func TestHandleAccount_NoAdapterConfigured_ReturnsNotImplemented(t *testing.T) {
	deps := testDeps(t)
	deps.Adapter = nil
	e := New(deps, testSpec(), engineTradingDate, false)
	defer e.Stop()

	router := NewHTTPServer(e, nil, zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/account", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", w.Code)
	}
}

func TestHandleAccount_WithAdapter_ReturnsSnapshot(t *testing.T) {
	e := New(testDeps(t), testSpec(), engineTradingDate, false)
	defer e.Stop()

	router := NewHTTPServer(e, nil, zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/account", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var snap execution.AccountSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
}

func TestHandleReload_NoPollerConfigured_ReturnsNotImplemented(t *testing.T) {
	e := New(testDeps(t), testSpec(), engineTradingDate, false)
	defer e.Stop()

	router := NewHTTPServer(e, nil, zerolog.Nop())
	req := httptest.NewRequest(http.MethodPost, "/timetable/reload", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", w.Code)
	}
}

func TestHandleReload_PollerSucceeds_ReturnsAccepted(t *testing.T) {
	e := New(testDeps(t), testSpec(), engineTradingDate, false)
	defer e.Stop()
	poller := &fakePoller{}

	router := NewHTTPServer(e, poller, zerolog.Nop())
	req := httptest.NewRequest(http.MethodPost, "/timetable/reload", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", w.Code)
	}
	if poller.calls != 1 {
		t.Errorf("poller.calls = %d, want 1", poller.calls)
	}
}

func TestHandleReload_PollerRejects_ReturnsTooManyRequests(t *testing.T) {
	e := New(testDeps(t), testSpec(), engineTradingDate, false)
	defer e.Stop()
	poller := &fakePoller{err: errors.New("timetable: manual reload rate limit exceeded")}

	router := NewHTTPServer(e, poller, zerolog.Nop())
	req := httptest.NewRequest(http.MethodPost, "/timetable/reload", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}
}

func TestHandleMetrics_ServesPrometheusExposition(t *testing.T) {
	e := New(testDeps(t), testSpec(), engineTradingDate, false)
	defer e.Stop()
	e.deps.Metrics.IncRangeLockAttempt("es_0830")

	router := NewHTTPServer(e, nil, zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "orbstream_range_lock_attempts_total") {
		t.Error("expected the exposition body to include the range lock attempts metric")
	}
}
