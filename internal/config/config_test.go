package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "agentd.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
delegation:
  timeout: 5s
mcpServers:
  echo:
    command: cat
    dir: work
  remote:
    url: http://localhost:9000/run
    timeout: 3
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":8080" || cfg.Queue.Driver != "memory" || cfg.Queue.Workers != 1 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.Planner.Strategy != "keyword" {
		t.Fatalf("unexpected strategy %q", cfg.Planner.Strategy)
	}
	if cfg.Delegation.Timeout.Std() != 5*time.Second {
		t.Fatalf("unexpected timeout %v", cfg.Delegation.Timeout.Std())
	}
	if cfg.MCPServers["remote"].Timeout.Std() != 3*time.Second {
		t.Fatalf("integer seconds not parsed: %v", cfg.MCPServers["remote"].Timeout.Std())
	}
	if want := filepath.Join(filepath.Dir(path), "work"); cfg.MCPServers["echo"].Dir != want {
		t.Fatalf("dir not resolved: got %q want %q", cfg.MCPServers["echo"].Dir, want)
	}
}

func TestLoadAcceptsJSON(t *testing.T) {
	path := writeConfig(t, `{"mcpServers": {"echo": {"command": "cat", "args": ["-u"]}}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.MCPServers["echo"].Args; len(got) != 1 || got[0] != "-u" {
		t.Fatalf("unexpected args: %v", got)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("AGENTD_TEST_TOKEN", "secret")
	path := writeConfig(t, `
mcpServers:
  remote:
    url: http://localhost:9000/run
    headers:
      Authorization: Bearer ${AGENTD_TEST_TOKEN}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.MCPServers["remote"].Headers["Authorization"]; got != "Bearer secret" {
		t.Fatalf("env not expanded: %q", got)
	}
}

func TestLoadKeepsBareDollarReferences(t *testing.T) {
	t.Setenv("x", "leaked")
	t.Setenv("AGENTD_TEST_SHELL", "sh")
	path := writeConfig(t, `
mcpServers:
  script:
    command: ${AGENTD_TEST_SHELL}
    args: ["-c", "read x; echo $x; exit $1"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	server := cfg.MCPServers["script"]
	if server.Command != "sh" {
		t.Fatalf("${VAR} should still expand, got %q", server.Command)
	}
	if len(server.Args) != 2 || server.Args[1] != "read x; echo $x; exit $1" {
		t.Fatalf("shell args were rewritten: %q", server.Args)
	}
}

func TestValidateServerShape(t *testing.T) {
	cases := map[string]string{
		"neither": "mcpServers:\n  bad: {args: [x]}\n",
		"both":    "mcpServers:\n  bad: {command: cat, url: 'http://x/run'}\n",
		"bad url": "mcpServers:\n  bad: {url: 'not a url'}\n",
		"driver":  "queue:\n  driver: kafka\n",
		"rules":   "planner:\n  strategy: rules\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(content))
			if err == nil || !strings.Contains(err.Error(), "配置校验失败") {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestLoadRequiresPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
