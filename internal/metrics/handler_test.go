package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// TestHandler_ServesMetrics はレジストリの内容がテキスト形式で返ることを検証する。
func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordLogin(OutcomeSuccess)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `pawrest_logins_total{outcome="success"} 1`) {
		t.Errorf("response should contain pawrest_logins_total, got:\n%s", body)
	}
}

// TestHandler_OnlyOwnRegistry は別レジストリのメトリクスが混ざらないことを検証する。
func TestHandler_OnlyOwnRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewCollector(reg)
	other := prometheus.NewRegistry()
	NewCollector(other).RecordLogin(OutcomeInvalid)

	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, _ := io.ReadAll(w.Result().Body)
	if strings.Contains(string(body), `outcome="invalid"`) {
		t.Error("metrics from another registry leaked into the response")
	}
}
