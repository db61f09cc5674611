package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/hackgods/therapy-booking/internal/api"
)

func TestReadiness(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name   string
		checks []api.Check
		status int
		want   string
	}{
		{"all up", []api.Check{{Name: "postgres", Critical: true, Ping: ok}, {Name: "nats", Ping: ok}}, http.StatusOK, "ok"},
		{"optional down", []api.Check{{Name: "postgres", Critical: true, Ping: ok}, {Name: "nats", Ping: down}}, http.StatusOK, "degraded"},
		{"critical down", []api.Check{{Name: "postgres", Critical: true, Ping: down}, {Name: "nats", Ping: down}}, http.StatusServiceUnavailable, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, &fakeService{}, tt.checks...)
			resp, data := do(t, http.MethodGet, srv.URL+"/health/ready", nil)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			var out api.ReadinessResponse
			if err := json.Unmarshal(data, &out); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if out.Status != tt.want {
				t.Errorf("status field = %q, want %q", out.Status, tt.want)
			}
			if len(out.Dependencies) != len(tt.checks) {
				t.Errorf("dependencies = %v", out.Dependencies)
			}
		})
	}
}

func TestLiveness(t *testing.T) {
	srv := newServer(t, &fakeService{})
	resp, data := do(t, http.MethodGet, srv.URL+"/health/live", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out api.LivenessResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Status != "ok" || out.Version != "dev" {
		t.Errorf("liveness = %+v", out)
	}
}
