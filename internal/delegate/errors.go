package delegate

import (
	"errors"
	"fmt"
	"strconv"

	xerrors "AgentTodo/internal/errors"
)

const (
	CodeServerNotFound xerrors.Code = "SERVER_NOT_FOUND"
	CodeExecFailed     xerrors.Code = "DELEGATION_EXEC_FAILED"
	CodeTimeout        xerrors.Code = "DELEGATION_TIMEOUT"
	CodeHTTPFailed     xerrors.Code = "DELEGATION_HTTP_FAILED"
)

var (
	// ErrServerNotFound 表示配置中不存在该委派目标。
	ErrServerNotFound = xerrors.New(CodeServerNotFound, "")
	// ErrExecFailed 表示子进程启动失败或以非零状态退出。
	ErrExecFailed = xerrors.New(CodeExecFailed, "")
	// ErrTimeout 表示委派超过了配置的时限。
	ErrTimeout = xerrors.New(CodeTimeout, "")
	// ErrHTTPFailed 表示 HTTP 传输失败、非 2xx 状态或响应格式错误。
	ErrHTTPFailed = xerrors.New(CodeHTTPFailed, "")
)

func init() {
	xerrors.Register(CodeServerNotFound, xerrors.Attributes{
		Message:   "delegation server not found",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeExecFailed, xerrors.Attributes{
		Message:   "delegated process failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeTimeout, xerrors.Attributes{
		Message:   "delegation timed out",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeHTTPFailed, xerrors.Attributes{
		Message:   "delegated http call failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
}

// Failure 是委派失败的类型化视图，调用方可据此决定重试策略。
type Failure struct {
	Kind   xerrors.Code
	Server string
	Mode   Mode
	// ExitCode 仅在进程模式下有效；进程未能启动时为 -1。
	ExitCode int
	// StatusCode 仅在 HTTP 模式且收到响应时有效。
	StatusCode int
	// Detail 保存 stderr 或响应体片段。
	Detail string
	err    *xerrors.Error
}

func newFailure(kind xerrors.Code, server string, mode Mode, cause error, message string) *Failure {
	f := &Failure{Kind: kind, Server: server, Mode: mode}
	f.err = xerrors.Wrap(kind, cause, message, xerrors.WithMetadata("server", server))
	return f
}

func (f *Failure) withExitCode(code int) *Failure {
	f.ExitCode = code
	f.err = xerrors.Wrap(f.Kind, f.err.Unwrap(), f.err.Message(),
		xerrors.WithMetadata("server", f.Server),
		xerrors.WithMetadata("exit_code", strconv.Itoa(code)),
	)
	return f
}

func (f *Failure) withStatusCode(code int) *Failure {
	f.StatusCode = code
	f.err = xerrors.Wrap(f.Kind, f.err.Unwrap(), f.err.Message(),
		xerrors.WithMetadata("server", f.Server),
		xerrors.WithMetadata("status_code", strconv.Itoa(code)),
	)
	return f
}

// Error 实现 error 接口。
func (f *Failure) Error() string {
	msg := fmt.Sprintf("delegate %s: %s", f.Server, f.err.Error())
	if f.Mode != "" {
		msg = fmt.Sprintf("delegate %s (%s): %s", f.Server, f.Mode, f.err.Error())
	}
	if f.Detail != "" {
		msg += ": " + f.Detail
	}
	return msg
}

// Unwrap 暴露统一错误，使 errors.Is(err, ErrTimeout) 与 xerrors.CodeOf 生效。
func (f *Failure) Unwrap() error {
	return f.err
}

// AsFailure 从错误链中提取 Failure。
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
