package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func TestHealthCheckerNoDependencies(t *testing.T) {
	checker := NewHealthChecker(nil, nil)

	status := checker.Check(context.Background())
	if status.Status != StatusHealthy {
		t.Errorf("expected healthy with no dependencies, got %s", status.Status)
	}
	if len(status.Dependencies) != 0 {
		t.Errorf("expected no dependency entries, got %d", len(status.Dependencies))
	}
}

func TestHealthCheckerRedisDegraded(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	checker := NewHealthChecker(nil, client)

	status := checker.Check(context.Background())
	if status.Status != StatusHealthy {
		t.Fatalf("expected healthy while redis is up, got %s", status.Status)
	}

	mr.Close()

	status = checker.Check(context.Background())
	if status.Status != StatusDegraded {
		t.Errorf("expected degraded when redis is down, got %s", status.Status)
	}
}

func TestLivenessHandler(t *testing.T) {
	checker := NewHealthChecker(nil, nil)

	r := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	w := httptest.NewRecorder()
	checker.Liveness(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}
