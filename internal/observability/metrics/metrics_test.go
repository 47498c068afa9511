package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"AgentTodo/internal/delegate"
	xerrors "AgentTodo/internal/errors"
)

func TestObserveHTTPRequest(t *testing.T) {
	m := New()
	m.ObserveHTTPRequest("plans", http.MethodPost, http.StatusCreated, 20*time.Millisecond)
	m.ObserveHTTPRequest("plans", http.MethodPost, http.StatusInternalServerError, time.Second)

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("plans", "POST", "201")); got != 1 {
		t.Fatalf("expected 1 request with 201, got %v", got)
	}
	if got := testutil.ToFloat64(m.httpErrors.WithLabelValues("plans", "POST")); got != 1 {
		t.Fatalf("expected 1 server error, got %v", got)
	}
}

func TestObserveDelegation(t *testing.T) {
	m := New()
	m.ObserveDelegation(delegate.Event{Server: "echo", Mode: delegate.ModeProcess, Duration: time.Millisecond})
	m.ObserveDelegation(delegate.Event{
		Server: "echo",
		Mode:   delegate.ModeProcess,
		Err:    xerrors.New(delegate.CodeTimeout, "slow"),
	})
	m.ObserveDelegation(delegate.Event{Server: "ghost", Err: delegate.ErrServerNotFound})

	if got := testutil.ToFloat64(m.delegations.WithLabelValues("echo", "process", "OK")); got != 1 {
		t.Fatalf("expected 1 successful call, got %v", got)
	}
	if got := testutil.ToFloat64(m.delegations.WithLabelValues("echo", "process", "DELEGATION_TIMEOUT")); got != 1 {
		t.Fatalf("expected 1 timeout, got %v", got)
	}
	if got := testutil.ToFloat64(m.delegations.WithLabelValues("ghost", "unknown", "SERVER_NOT_FOUND")); got != 1 {
		t.Fatalf("expected 1 not-found, got %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObservePlanCreated()
	m.ObserveTodoStatus("completed")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)
	for _, want := range []string{
		"agenttodo_planner_plans_created_total 1",
		`agenttodo_todo_status_transitions_total{status="completed"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
