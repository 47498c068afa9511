package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"AgentTodo/internal/config"
)

func newService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(config.AuthConfig{Tokens: []config.APIToken{
		{Name: "reader", Token: "r-token"},
		{Name: "ops", Token: "o-token", Permissions: []string{PermWrite, PermDelegate, PermRead}},
	}})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestRequire(t *testing.T) {
	svc := newService(t)
	var seen string
	handler := svc.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SubjectFromContext(r.Context()).Name
		w.WriteHeader(http.StatusNoContent)
	}), PermDelegate)

	cases := map[string]struct {
		header string
		want   int
	}{
		"missing":   {"", http.StatusUnauthorized},
		"invalid":   {"Bearer nope", http.StatusUnauthorized},
		"forbidden": {"Bearer r-token", http.StatusForbidden},
		"allowed":   {"Bearer o-token", http.StatusNoContent},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/delegate/echo", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
	if seen != "ops" {
		t.Fatalf("subject not propagated, got %q", seen)
	}
}

func TestDisabledServicePassesThrough(t *testing.T) {
	svc, err := NewService(config.AuthConfig{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if svc.Enabled() {
		t.Fatalf("service without tokens should be disabled")
	}
	rec := httptest.NewRecorder()
	svc.Require(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}), PermWrite).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
}

func TestNewServiceRejectsDuplicates(t *testing.T) {
	_, err := NewService(config.AuthConfig{Tokens: []config.APIToken{{Name: "a", Token: "x"}, {Name: "b", Token: "x"}}})
	if err == nil {
		t.Fatalf("expected duplicate token error")
	}
	if _, err := NewService(config.AuthConfig{Tokens: []config.APIToken{{Name: "a"}}}); err == nil {
		t.Fatalf("expected empty token error")
	}
}

func TestWildcardPermission(t *testing.T) {
	s := &Subject{Name: "root", Permissions: []string{"*"}}
	if err := s.Authorize(PermWrite, PermDelegate); err != nil {
		t.Fatalf("wildcard should grant all: %v", err)
	}
}
