package errors

import (
	stdErrors "errors"
	"fmt"
	"maps"
	"sync"
)

// Code 是跨包共享的错误码。
type Code string

// Severity 决定告警与审计的级别。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Attributes 是错误码的默认描述与处理策略。
type Attributes struct {
	Message   string
	Severity  Severity
	Retryable bool
	Alert     bool
}

const (
	CodeUnknown               Code = "UNKNOWN"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeNotFound              Code = "NOT_FOUND"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
	CodeQueueFailure          Code = "QUEUE_FAILURE"
	CodeTimeout               Code = "TIMEOUT"
)

var registry = struct {
	sync.RWMutex
	codes map[Code]Attributes
}{codes: map[Code]Attributes{
	CodeUnknown:               {Message: "unknown error", Severity: SeverityCritical, Alert: true},
	CodeInvalidArgument:       {Message: "invalid argument", Severity: SeverityInfo},
	CodeNotFound:              {Message: "resource not found", Severity: SeverityInfo},
	CodeInitializationFailure: {Message: "component not initialized", Severity: SeverityWarning, Retryable: true, Alert: true},
	CodeQueueFailure:          {Message: "queue failure", Severity: SeverityCritical, Retryable: true, Alert: true},
	CodeTimeout:               {Message: "operation timed out", Severity: SeverityWarning, Retryable: true, Alert: true},
}}

// Register 登记错误码，通常在各包的 init 中调用。重复登记以后者为准。
func Register(code Code, attr Attributes) {
	registry.Lock()
	registry.codes[code] = attr
	registry.Unlock()
}

// AttributesOf 返回错误码的属性，未登记的错误码按 UNKNOWN 处理。
func AttributesOf(code Code) Attributes {
	registry.RLock()
	defer registry.RUnlock()
	if attr, ok := registry.codes[code]; ok {
		return attr
	}
	return registry.codes[CodeUnknown]
}

// Error 携带错误码、原因和附加字段。属性在读取时才查询注册表，
// 因此包级哨兵值可以先于对应错误码的登记创建。
type Error struct {
	code      Code
	message   string
	cause     error
	metadata  map[string]string
	overrides []func(*Attributes)
}

// Option 调整新建错误的属性。
type Option func(*Error)

// WithMetadata 附加一个键值对。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = map[string]string{}
		}
		e.metadata[key] = value
	}
}

// WithRetryable 覆盖是否可重试。
func WithRetryable(retryable bool) Option {
	return override(func(a *Attributes) { a.Retryable = retryable })
}

// WithAlert 覆盖是否告警。
func WithAlert(alert bool) Option {
	return override(func(a *Attributes) { a.Alert = alert })
}

// WithSeverity 覆盖严重程度。
func WithSeverity(sev Severity) Option {
	return override(func(a *Attributes) { a.Severity = sev })
}

func override(fn func(*Attributes)) Option {
	return func(e *Error) { e.overrides = append(e.overrides, fn) }
}

// New 创建错误，message 为空时取错误码的默认描述。
func New(code Code, message string, opts ...Option) *Error {
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 与 New 相同，但记录底层原因。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause != nil:
		return fmt.Sprintf("[%s] %s: %v", e.code, e.Message(), e.cause)
	default:
		return fmt.Sprintf("[%s] %s", e.code, e.Message())
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 让 errors.Is 只比较错误码，因此 New(code, "") 可以作为哨兵值。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t != nil && e.code == t.code
}

// Code 返回错误码，nil 时为 UNKNOWN。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	if e.message == "" {
		return e.attributes().Message
	}
	return e.message
}

func (e *Error) attributes() Attributes {
	attrs := AttributesOf(e.code)
	for _, fn := range e.overrides {
		fn(&attrs)
	}
	return attrs
}

// Metadata 返回附加字段的副本。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	return maps.Clone(e.metadata)
}

func (e *Error) MetadataValue(key string) (string, bool) {
	if e == nil {
		return "", false
	}
	value, ok := e.metadata[key]
	return value, ok
}

func (e *Error) Retryable() bool { return e != nil && e.attributes().Retryable }

func (e *Error) ShouldAlert() bool { return e != nil && e.attributes().Alert }

func (e *Error) Severity() Severity {
	if e == nil {
		return SeverityInfo
	}
	return e.attributes().Severity
}

// From 在错误链中查找 *Error。
func From(err error) (*Error, bool) {
	var target *Error
	if err == nil || !stdErrors.As(err, &target) {
		return nil, false
	}
	return target, true
}

// CodeOf 返回错误链中的错误码，找不到时为 UNKNOWN。
func CodeOf(err error) Code {
	e, _ := From(err)
	return e.Code()
}

// RetryableError 报告任意错误是否可重试，普通错误一律不可重试。
func RetryableError(err error) bool {
	e, _ := From(err)
	return e.Retryable()
}

// ShouldAlert 报告任意错误是否需要告警。
func ShouldAlert(err error) bool {
	e, _ := From(err)
	return e.ShouldAlert()
}

// SeverityOf 返回任意错误的严重程度，普通错误按 UNKNOWN 的级别处理。
func SeverityOf(err error) Severity {
	if e, ok := From(err); ok {
		return e.Severity()
	}
	return AttributesOf(CodeUnknown).Severity
}
