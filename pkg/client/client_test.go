package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"AgentTodo/internal/todo"
)

func TestCreatePlan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/plans" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["agent_id"] != "a1" || body["server"] != "echo" {
			t.Errorf("unexpected body %v", body)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(PlanResult{
			Plan:  &todo.WorkPlan{ID: "p1", AgentID: "a1", Todos: []string{"t1"}},
			Todos: []*todo.Todo{{ID: "t1", Title: "Implement fix"}},
		})
	}))
	defer srv.Close()

	c, err := New(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	res, err := c.CreatePlan(context.Background(), "a1", "fix it", "echo")
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	if res.Plan.ID != "p1" || len(res.Todos) != 1 || res.Todos[0].Title != "Implement fix" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestAgentTodosPassesQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/agents/a 1/todos" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("status") != "pending" {
			t.Errorf("missing status query: %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode([]*todo.Todo{{ID: "t1"}, {ID: "t2"}})
	}))
	defer srv.Close()

	c, _ := New(srv.URL, srv.Client())
	todos, err := c.AgentTodos(context.Background(), "a 1", url.Values{"status": {"pending"}})
	if err != nil {
		t.Fatalf("agent todos: %v", err)
	}
	if len(todos) != 2 {
		t.Fatalf("expected 2 todos, got %d", len(todos))
	}
}

func TestAPIErrorDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code":    "DELEGATION_TIMEOUT",
			"message": "slow",
			"details": map[string]string{"server": "slow"},
		})
	}))
	defer srv.Close()

	c, _ := New(srv.URL, srv.Client())
	_, err := c.Delegate(context.Background(), "slow", map[string]int{"x": 1})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusGatewayTimeout || apiErr.Code != "DELEGATION_TIMEOUT" || apiErr.Details["server"] != "slow" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestUpdateTodoNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("unexpected method %s", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, _ := New(srv.URL, srv.Client())
	status := todo.StatusCompleted
	if err := c.UpdateTodo(context.Background(), "t1", TodoUpdate{Status: &status}); err != nil {
		t.Fatalf("update todo: %v", err)
	}
}

func TestNewRejectsInvalidURL(t *testing.T) {
	if _, err := New("not a url", nil); err == nil {
		t.Fatalf("expected error for invalid url")
	}
}

func TestAccessTokenHeader(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(todo.Stats{Total: 1})
	}))
	defer srv.Close()

	c, _ := New(srv.URL, srv.Client())
	c.SetAccessToken(" secret ")
	if _, err := c.AgentStats(context.Background(), "a1"); err != nil {
		t.Fatalf("agent stats: %v", err)
	}
	if got != "Bearer secret" {
		t.Fatalf("unexpected Authorization header %q", got)
	}
}
