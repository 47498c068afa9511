package delegate

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	xerrors "AgentTodo/internal/errors"
	"AgentTodo/pkg/logger"
)

const (
	// DefaultTimeout 在服务与全局配置都未指定时生效。
	DefaultTimeout = 30 * time.Second
	// maxDetailBytes 限制错误中保留的 stderr 或响应体长度。
	maxDetailBytes = 2048
)

// Result 是一次成功委派的输出。
type Result struct {
	Server string `json:"server"`
	Mode   Mode   `json:"mode"`
	// Output 为原始输出文本（进程 stdout 或 HTTP 响应体）。
	Output string `json:"output"`
	// Body 为 HTTP 模式下解码后的 JSON，非 JSON 响应时为 nil。
	Body     any           `json:"body,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Event 描述一次委派的结果，供指标与告警订阅。
type Event struct {
	Server   string
	Mode     Mode
	Duration time.Duration
	Err      error
}

// Observer 接收委派事件，实现方不得阻塞。
type Observer interface {
	ObserveDelegation(Event)
}

// ObserverFunc 让普通函数满足 Observer。
type ObserverFunc func(Event)

// ObserveDelegation 实现 Observer。
func (f ObserverFunc) ObserveDelegation(ev Event) { f(ev) }

// Caller 是 Delegator 的最小抽象，便于上层替换。
type Caller interface {
	Call(ctx context.Context, server string, payload any) (*Result, error)
}

// Delegator 把 JSON 负载转交给已配置的外部服务。
type Delegator struct {
	registry       *Registry
	timeout        time.Duration
	maxOutputBytes int64
	httpClient     *http.Client
	observers      []Observer
	log            *slog.Logger
}

// Option 定义 Delegator 的可选配置。
type Option func(*Delegator)

// WithTimeout 设置全局默认超时，单个服务的超时优先。
func WithTimeout(timeout time.Duration) Option {
	return func(d *Delegator) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithMaxOutputBytes 限制进程输出与 HTTP 响应体大小，0 表示不限制。
func WithMaxOutputBytes(n int64) Option {
	return func(d *Delegator) {
		if n >= 0 {
			d.maxOutputBytes = n
		}
	}
}

// WithHTTPClient 替换 HTTP 客户端。
func WithHTTPClient(client *http.Client) Option {
	return func(d *Delegator) {
		if client != nil {
			d.httpClient = client
		}
	}
}

// WithObserver 注册委派事件订阅者。
func WithObserver(o Observer) Option {
	return func(d *Delegator) {
		if o != nil {
			d.observers = append(d.observers, o)
		}
	}
}

// WithLogger 指定日志输出。
func WithLogger(l *slog.Logger) Option {
	return func(d *Delegator) {
		if l != nil {
			d.log = l
		}
	}
}

// New 创建 Delegator。
func New(registry *Registry, opts ...Option) *Delegator {
	d := &Delegator{
		registry:   registry,
		timeout:    DefaultTimeout,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	if d.log == nil {
		d.log = logger.Named("delegate")
	}
	return d
}

// Registry 返回目标注册表。
func (d *Delegator) Registry() *Registry {
	return d.registry
}

// Call 把 payload 编码为 JSON 并交给名为 server 的服务，返回其输出。
// 未知服务立即返回 ErrServerNotFound，不产生任何 I/O。
func (d *Delegator) Call(ctx context.Context, server string, payload any) (*Result, error) {
	target, ok := d.registry.Lookup(server)
	if !ok {
		err := newFailure(CodeServerNotFound, server, "", nil, "未配置的服务: "+server)
		d.notify(Event{Server: server, Err: err})
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化委派负载失败")
	}

	timeout := target.timeout()
	if timeout <= 0 {
		timeout = d.timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var result *Result
	switch t := target.(type) {
	case ProcessTarget:
		result, err = d.runProcess(callCtx, t, body, timeout)
	case HTTPTarget:
		result, err = d.postHTTP(callCtx, t, body, timeout)
	default:
		err = newFailure(CodeServerNotFound, server, target.Mode(), nil, "不支持的目标类型")
	}
	elapsed := time.Since(start)

	d.notify(Event{Server: server, Mode: target.Mode(), Duration: elapsed, Err: err})
	attrs := []any{
		slog.String("server", server),
		slog.String("mode", string(target.Mode())),
		slog.Duration("duration", elapsed),
	}
	if err != nil {
		d.log.Warn("委派失败", append(attrs, slog.String("code", string(xerrors.CodeOf(err))), slog.Any("error", err))...)
		logger.Audit().Warn("委派失败", append(attrs, slog.String("code", string(xerrors.CodeOf(err))))...)
		return nil, err
	}
	result.Duration = elapsed
	logger.Audit().Info("委派完成", attrs...)
	return result, nil
}

func (d *Delegator) notify(ev Event) {
	for _, o := range d.observers {
		o.ObserveDelegation(ev)
	}
}

func truncate(s string) string {
	if len(s) <= maxDetailBytes {
		return s
	}
	return s[:maxDetailBytes] + "..."
}

var _ Caller = (*Delegator)(nil)
