package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "/"},
		{"/health", "/health"},
		{"/ready", "/ready"},
		{"/metrics", "/metrics"},
		{"/dashboard/overview/65f0c2", "/dashboard/overview/{project_id}"},
		{"/dashboard/progress/p1", "/dashboard/progress/{project_id}"},
		{"/dashboard/adjudication/p1", "/dashboard/adjudication/{project_id}"},
		{"/dashboard/download/p1", "/dashboard/download/{project_id}"},
		{"/dashboard/download/p1/archive", "/dashboard/download/{project_id}/archive"},
		{"/dashboard/overview/p1/archive", "other"},
		{"/dashboard/overview/", "other"},
		{"/dashboard/unknown/p1", "other"},
		{"/dashboard", "other"},
		{"/wp-admin", "other"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := normalizePath(tt.path); got != tt.want {
				t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func findMetric(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func TestHTTPMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	handler := HTTPMetrics(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/dashboard/overview/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	for _, path := range []string{"/dashboard/overview/p1", "/dashboard/overview/p2", "/dashboard/overview/missing", "/health"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	family := findMetric(t, reg, MetricHTTPRequestsTotal)
	if family == nil {
		t.Fatalf("%s not gathered", MetricHTTPRequestsTotal)
	}
	counts := map[string]float64{}
	for _, m := range family.GetMetric() {
		labels := map[string]string{}
		for _, lp := range m.GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
		if labels["path"] == "/health" {
			t.Error("health checks should not be recorded")
		}
		counts[labels["path"]+" "+labels["status"]] += m.GetCounter().GetValue()
	}
	if got := counts["/dashboard/overview/{project_id} 200"]; got != 2 {
		t.Errorf("200 count = %v, want 2", got)
	}
	if got := counts["/dashboard/overview/{project_id} 404"]; got != 1 {
		t.Errorf("404 count = %v, want 1", got)
	}

	sizes := findMetric(t, reg, MetricHTTPResponseSizeBytes)
	if sizes == nil {
		t.Fatalf("%s not gathered", MetricHTTPResponseSizeBytes)
	}
}

func TestMetrics_RateLimitCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	metrics.IncRateLimitRequests("export", "user")
	metrics.IncRateLimitRequests("export", "user")
	metrics.IncRateLimitBlocked("export", "user")
	metrics.IncRateLimitRedisErrors()

	tests := []struct {
		name string
		want float64
	}{
		{MetricRateLimitRequests, 2},
		{MetricRateLimitBlocked, 1},
		{MetricRateLimitRedisErrors, 1},
	}
	for _, tt := range tests {
		family := findMetric(t, reg, tt.name)
		if family == nil {
			t.Errorf("%s not gathered", tt.name)
			continue
		}
		if got := family.GetMetric()[0].GetCounter().GetValue(); got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestMetrics_RegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := NewMetrics().Register(reg); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	if err := NewMetrics().Register(reg); err == nil {
		t.Error("second Register() should fail with duplicate collectors")
	}
}
