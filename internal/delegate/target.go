package delegate

import (
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"
	"time"

	"AgentTodo/internal/config"
	xerrors "AgentTodo/internal/errors"
)

// Mode 表示委派的传输方式。
type Mode string

const (
	ModeProcess Mode = "process"
	ModeHTTP    Mode = "http"
)

// Target 是一个已解析的委派目标，只能是 ProcessTarget 或 HTTPTarget。
type Target interface {
	Name() string
	Mode() Mode
	timeout() time.Duration
}

// ProcessTarget 描述以子进程方式调用的服务。
type ProcessTarget struct {
	Server  string
	Command string
	Args    []string
	Env     map[string]string
	Dir     string
	Timeout time.Duration
}

func (t ProcessTarget) Name() string           { return t.Server }
func (t ProcessTarget) Mode() Mode             { return ModeProcess }
func (t ProcessTarget) timeout() time.Duration { return t.Timeout }

// env 把额外变量追加到继承的环境之后，按键排序以保证可复现。
func (t ProcessTarget) env(base []string) []string {
	if len(t.Env) == 0 {
		return nil
	}
	out := slices.Clone(base)
	for _, key := range slices.Sorted(maps.Keys(t.Env)) {
		out = append(out, key+"="+t.Env[key])
	}
	return out
}

// HTTPTarget 描述通过 HTTP POST 调用的服务。
type HTTPTarget struct {
	Server  string
	URL     string
	Headers map[string]string
	Timeout time.Duration
}

func (t HTTPTarget) Name() string           { return t.Server }
func (t HTTPTarget) Mode() Mode             { return ModeHTTP }
func (t HTTPTarget) timeout() time.Duration { return t.Timeout }

// Registry 保存启动时从配置解析出的全部目标，之后只读。
type Registry struct {
	targets map[string]Target
}

// NewRegistry 根据 mcpServers 配置构建注册表。
// 同时声明 command 与 url 的条目会被拒绝。
func NewRegistry(servers map[string]config.MCPServer) (*Registry, error) {
	targets := make(map[string]Target, len(servers))
	for name, server := range servers {
		target, err := resolve(name, server)
		if err != nil {
			return nil, err
		}
		targets[name] = target
	}
	return &Registry{targets: targets}, nil
}

// NewStaticRegistry 直接以目标列表构建注册表，主要用于嵌入式调用与测试。
func NewStaticRegistry(targets ...Target) *Registry {
	r := &Registry{targets: make(map[string]Target, len(targets))}
	for _, t := range targets {
		if t != nil {
			r.targets[t.Name()] = t
		}
	}
	return r
}

func resolve(name string, server config.MCPServer) (Target, error) {
	command := strings.TrimSpace(server.Command)
	endpoint := strings.TrimSpace(server.URL)
	switch {
	case command != "" && endpoint != "":
		return nil, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("服务 %s 不能同时配置 command 与 url", name))
	case command != "":
		return ProcessTarget{
			Server:  name,
			Command: command,
			Args:    slices.Clone(server.Args),
			Env:     maps.Clone(server.Env),
			Dir:     server.Dir,
			Timeout: server.Timeout.Std(),
		}, nil
	case endpoint != "":
		parsed, err := url.Parse(endpoint)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return nil, xerrors.New(xerrors.CodeInvalidArgument,
				fmt.Sprintf("服务 %s 的 url 无效: %s", name, endpoint))
		}
		return HTTPTarget{
			Server:  name,
			URL:     endpoint,
			Headers: maps.Clone(server.Headers),
			Timeout: server.Timeout.Std(),
		}, nil
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("服务 %s 必须配置 command 或 url", name))
	}
}

// Lookup 按名称查找目标。
func (r *Registry) Lookup(name string) (Target, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.targets[name]
	return t, ok
}

// Names 返回排序后的服务名称。
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(r.targets))
}

// Len 返回目标数量。
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.targets)
}
