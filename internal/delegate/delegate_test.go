package delegate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"AgentTodo/internal/config"
	xerrors "AgentTodo/internal/errors"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func requireBinary(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
}

func newDelegator(targets ...Target) *Delegator {
	return New(NewStaticRegistry(targets...), WithLogger(quietLogger()), WithTimeout(5*time.Second))
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) ObserveDelegation(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func TestCallUnknownServer(t *testing.T) {
	rec := &recorder{}
	d := New(NewStaticRegistry(), WithLogger(quietLogger()), WithObserver(rec))

	_, err := d.Call(context.Background(), "ghost", map[string]any{"a": 1})
	if !errors.Is(err, ErrServerNotFound) {
		t.Fatalf("expected ErrServerNotFound, got %v", err)
	}
	if xerrors.CodeOf(err) != CodeServerNotFound || xerrors.RetryableError(err) {
		t.Fatalf("unexpected code/retryable for %v", err)
	}
	if len(rec.events) != 1 || rec.events[0].Err == nil {
		t.Fatalf("observer should see the failure: %+v", rec.events)
	}
}

func TestProcessEcho(t *testing.T) {
	requireBinary(t, "cat")
	d := newDelegator(ProcessTarget{Server: "echo", Command: "cat"})

	payload := map[string]any{"plan_id": "p1", "todo": map[string]any{"title": "Implement fix"}}
	res, err := d.Call(context.Background(), "echo", payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, _ := json.Marshal(payload)
	if res.Output != string(want) {
		t.Fatalf("unexpected output %q, want %q", res.Output, want)
	}
	if res.Mode != ModeProcess || res.Server != "echo" || res.Body != nil {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestProcessEnvAndDir(t *testing.T) {
	requireBinary(t, "sh")
	dir := t.TempDir()
	d := newDelegator(ProcessTarget{
		Server:  "env",
		Command: "sh",
		Args:    []string{"-c", `printf '%s:' "$GREETING"; pwd`},
		Env:     map[string]string{"GREETING": "hi"},
		Dir:     dir,
	})

	res, err := d.Call(context.Background(), "env", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(res.Output, "hi:") || !strings.Contains(res.Output, dir) {
		t.Fatalf("unexpected output %q", res.Output)
	}
}

func TestProcessNonZeroExit(t *testing.T) {
	requireBinary(t, "sh")
	d := newDelegator(ProcessTarget{Server: "bad", Command: "sh", Args: []string{"-c", "echo oops >&2; exit 2"}})

	_, err := d.Call(context.Background(), "bad", map[string]string{"k": "v"})
	if !errors.Is(err, ErrExecFailed) {
		t.Fatalf("expected ErrExecFailed, got %v", err)
	}
	f, ok := AsFailure(err)
	if !ok || f.ExitCode != 2 || f.Detail != "oops" {
		t.Fatalf("unexpected failure: %+v", f)
	}
	xe, _ := xerrors.From(err)
	if code, _ := xe.MetadataValue("exit_code"); code != "2" {
		t.Fatalf("exit_code metadata missing: %v", xe.Metadata())
	}
}

func TestProcessMissingBinary(t *testing.T) {
	d := newDelegator(ProcessTarget{Server: "missing", Command: "agenttodo-no-such-binary"})

	_, err := d.Call(context.Background(), "missing", nil)
	if !errors.Is(err, ErrExecFailed) {
		t.Fatalf("expected ErrExecFailed, got %v", err)
	}
	if f, _ := AsFailure(err); f.ExitCode != -1 {
		t.Fatalf("expected exit code -1, got %d", f.ExitCode)
	}
}

func TestProcessTimeout(t *testing.T) {
	requireBinary(t, "sleep")
	d := newDelegator(ProcessTarget{Server: "slow", Command: "sleep", Args: []string{"5"}, Timeout: 100 * time.Millisecond})

	start := time.Now()
	_, err := d.Call(context.Background(), "slow", nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Fatalf("timeout took too long: %s", time.Since(start))
	}
}

func TestProcessOutputLimit(t *testing.T) {
	requireBinary(t, "cat")
	d := New(NewStaticRegistry(ProcessTarget{Server: "echo", Command: "cat"}),
		WithLogger(quietLogger()), WithMaxOutputBytes(4))

	_, err := d.Call(context.Background(), "echo", "a long payload")
	if !errors.Is(err, ErrExecFailed) {
		t.Fatalf("expected ErrExecFailed for oversized output, got %v", err)
	}
}

func TestHTTPJSONResponse(t *testing.T) {
	var gotType, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		gotType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"items":[1,2]}`))
	}))
	defer srv.Close()

	d := newDelegator(HTTPTarget{Server: "api", URL: srv.URL, Headers: map[string]string{"Authorization": "Bearer t"}})
	res, err := d.Call(context.Background(), "api", map[string]any{"goal": "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotType != "application/json" || gotAuth != "Bearer t" || gotBody["goal"] != "x" {
		t.Fatalf("unexpected request: %s %s %v", gotType, gotAuth, gotBody)
	}
	body, ok := res.Body.(map[string]any)
	if !ok || body["ok"] != true {
		t.Fatalf("unexpected decoded body: %#v", res.Body)
	}
	if res.Output != `{"ok":true,"items":[1,2]}` {
		t.Fatalf("unexpected raw output %q", res.Output)
	}
}

func TestHTTPRawResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("done"))
	}))
	defer srv.Close()

	d := newDelegator(HTTPTarget{Server: "api", URL: srv.URL})
	res, err := d.Call(context.Background(), "api", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Output != "done" || res.Body != nil {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestHTTPUndeclaredJSONStaysRaw(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(`{"a":1}`))
	}))
	defer srv.Close()

	d := newDelegator(HTTPTarget{Server: "api", URL: srv.URL})
	res, err := d.Call(context.Background(), "api", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Body != nil || res.Output != `{"a":1}` {
		t.Fatalf("text/plain body should only be returned raw: %+v", res)
	}
}

func TestHTTPMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	d := newDelegator(HTTPTarget{Server: "api", URL: srv.URL})
	if _, err := d.Call(context.Background(), "api", nil); !errors.Is(err, ErrHTTPFailed) {
		t.Fatalf("expected ErrHTTPFailed, got %v", err)
	}
}

func TestHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := newDelegator(HTTPTarget{Server: "api", URL: srv.URL})
	_, err := d.Call(context.Background(), "api", nil)
	if !errors.Is(err, ErrHTTPFailed) {
		t.Fatalf("expected ErrHTTPFailed, got %v", err)
	}
	f, _ := AsFailure(err)
	if f.StatusCode != http.StatusInternalServerError || f.Detail != "boom" {
		t.Fatalf("unexpected failure: %+v", f)
	}
	if !strings.Contains(err.Error(), "500") {
		t.Fatalf("error should mention status: %v", err)
	}
}

func TestHTTPTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	d := newDelegator(HTTPTarget{Server: "api", URL: srv.URL, Timeout: 50 * time.Millisecond})
	if _, err := d.Call(context.Background(), "api", nil); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestHTTPConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	d := newDelegator(HTTPTarget{Server: "api", URL: addr})
	_, err := d.Call(context.Background(), "api", nil)
	if !errors.Is(err, ErrHTTPFailed) {
		t.Fatalf("expected ErrHTTPFailed, got %v", err)
	}
}

func TestNewRegistryFromConfig(t *testing.T) {
	reg, err := NewRegistry(map[string]config.MCPServer{
		"local":  {Command: "cat", Timeout: config.Duration(time.Second)},
		"remote": {URL: "http://127.0.0.1:9000/run"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(reg.Names(), ",") != "local,remote" {
		t.Fatalf("unexpected names %v", reg.Names())
	}
	local, _ := reg.Lookup("local")
	if local.Mode() != ModeProcess || local.(ProcessTarget).Timeout != time.Second {
		t.Fatalf("unexpected local target %+v", local)
	}
	remote, _ := reg.Lookup("remote")
	if remote.Mode() != ModeHTTP {
		t.Fatalf("unexpected remote target %+v", remote)
	}

	invalid := []config.MCPServer{
		{},
		{Command: "cat", URL: "http://x"},
		{URL: "ftp://x"},
	}
	for i, server := range invalid {
		if _, err := NewRegistry(map[string]config.MCPServer{"s": server}); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}
