package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// resetOnce returns a new sync.Once to reset the initialization state
func resetOnce() (o sync.Once) {
	return
}

func TestInitDisabled(t *testing.T) {
	once = resetOnce()
	registry = nil
	Enabled = false

	reg := Init()
	if reg == nil {
		t.Fatal("Init() returned nil even when metrics disabled")
	}

	// collectors work without being registered
	IssuanceTotal.WithLabelValues("auto", "success").Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	if len(families) != 0 {
		t.Errorf("expected empty registry when disabled, got %d families", len(families))
	}
}

func TestInitEnabledServesMetrics(t *testing.T) {
	once = resetOnce()
	registry = nil
	Enabled = true
	defer func() { Enabled = false }()

	Init()
	DNSProviderCallsTotal.WithLabelValues("cloudflare", "create", "success").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "certhub_dns_provider_calls_total") {
		t.Error("expected dns provider counter in exposition output")
	}
	if got := testutil.ToFloat64(Up); got != 1 {
		t.Errorf("Up = %v, want 1", got)
	}
}

func TestGetRegistry(t *testing.T) {
	once = resetOnce()
	registry = nil
	Enabled = false

	reg := GetRegistry()
	if reg == nil {
		t.Fatal("GetRegistry() returned nil")
	}
	if reg2 := GetRegistry(); reg != reg2 {
		t.Error("GetRegistry() returned different registry on second call")
	}
}

func TestResult(t *testing.T) {
	if Result(nil) != "success" {
		t.Error("Result(nil) should be success")
	}
	if Result(errors.New("boom")) != "error" {
		t.Error("Result(err) should be error")
	}
}
