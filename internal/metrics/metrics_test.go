package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareLabelsByPattern(t *testing.T) {
	c := qt.New(t)
	m := New()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/inventory/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	h := m.Middleware(mux)

	for _, path := range []string{"/api/inventory/1", "/api/inventory/2", "/nowhere"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	c.Assert(testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "GET /api/inventory/{id}", "404")), qt.Equals, 2.0)
	c.Assert(testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "unmatched", "404")), qt.Equals, 1.0)
}

func TestDomainCounters(t *testing.T) {
	c := qt.New(t)
	m := New()

	m.RecordLogin(true)
	m.RecordLogin(false)
	m.RecordLogin(false)
	m.RecordScrapSplit()
	m.RecordTransferDecision("approved")
	m.RecordRequisitionDecision("rejected")
	m.RecordInventoryOperation("create")

	c.Assert(testutil.ToFloat64(m.logins.WithLabelValues("failure")), qt.Equals, 2.0)
	c.Assert(testutil.ToFloat64(m.scrapSplits), qt.Equals, 1.0)
	c.Assert(testutil.ToFloat64(m.transferDecisions.WithLabelValues("approved")), qt.Equals, 1.0)
	c.Assert(testutil.ToFloat64(m.requisitionDecision.WithLabelValues("rejected")), qt.Equals, 1.0)
	c.Assert(testutil.ToFloat64(m.inventoryOperations.WithLabelValues("create")), qt.Equals, 1.0)
}

func TestNilMetricsIsNoop(t *testing.T) {
	c := qt.New(t)
	var m *Metrics

	m.RecordLogin(true)
	m.RecordScrapSplit()
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	c.Assert(m.Middleware(next), qt.IsNotNil)
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := qt.New(t)
	m := New()
	m.RecordScrapSplit()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	c.Assert(err, qt.IsNil)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	c.Assert(err, qt.IsNil)
	c.Assert(strings.Contains(string(body), "zavod_scrap_splits_total 1"), qt.IsTrue)
	c.Assert(strings.Contains(string(body), "go_goroutines"), qt.IsTrue)
}
