package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"AgentTodo/internal/config"
)

// 权限名称。
const (
	PermRead     = "todos:read"
	PermWrite    = "todos:write"
	PermDelegate = "delegate"
)

// Common errors returned by the authentication subsystem.
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrMissingToken     = errors.New("missing bearer token")
	ErrPermissionDenied = errors.New("permission denied")
)

// Subject 是通过认证的调用方。
type Subject struct {
	Name        string
	Permissions []string

	permissionsSet map[string]struct{}
}

func (s *Subject) normalise() {
	if s == nil || s.permissionsSet != nil {
		return
	}
	s.permissionsSet = make(map[string]struct{}, len(s.Permissions))
	for _, perm := range s.Permissions {
		s.permissionsSet[strings.ToLower(strings.TrimSpace(perm))] = struct{}{}
	}
}

// HasPermission 判断主体是否拥有指定权限，"*" 表示全部权限。
func (s *Subject) HasPermission(permission string) bool {
	if s == nil {
		return false
	}
	s.normalise()
	if _, ok := s.permissionsSet["*"]; ok {
		return true
	}
	_, ok := s.permissionsSet[strings.ToLower(strings.TrimSpace(permission))]
	return ok
}

// Authorize 确认主体拥有全部所需权限。
func (s *Subject) Authorize(perms ...string) error {
	if s == nil {
		return ErrInvalidToken
	}
	for _, perm := range perms {
		if perm == "" {
			continue
		}
		if !s.HasPermission(perm) {
			return fmt.Errorf("%w: missing %s", ErrPermissionDenied, perm)
		}
	}
	return nil
}

type ctxKey int

const subjectCtxKey ctxKey = iota

// WithSubject 把已认证主体放入请求上下文。
func WithSubject(ctx context.Context, subject *Subject) context.Context {
	return context.WithValue(ctx, subjectCtxKey, subject)
}

// SubjectFromContext 取出请求主体，未认证时返回 nil。
func SubjectFromContext(ctx context.Context) *Subject {
	subject, _ := ctx.Value(subjectCtxKey).(*Subject)
	return subject
}

type credential struct {
	digest  [sha256.Size]byte
	subject *Subject
}

// Service 基于配置中的静态 API token 认证请求。未配置 token 时认证关闭。
type Service struct {
	credentials []credential
}

// NewService 根据配置构建认证服务。
func NewService(cfg config.AuthConfig) (*Service, error) {
	s := &Service{}
	seen := map[string]bool{}
	for idx, tok := range cfg.Tokens {
		secret := strings.TrimSpace(tok.Token)
		if secret == "" {
			return nil, fmt.Errorf("第 %d 个 API token 为空", idx)
		}
		if seen[secret] {
			return nil, fmt.Errorf("API token %s 重复", tok.Name)
		}
		seen[secret] = true
		perms := tok.Permissions
		if len(perms) == 0 {
			perms = []string{PermRead}
		}
		subject := &Subject{Name: tok.Name, Permissions: append([]string(nil), perms...)}
		subject.normalise()
		s.credentials = append(s.credentials, credential{digest: sha256.Sum256([]byte(secret)), subject: subject})
	}
	return s, nil
}

// Enabled 报告是否启用了认证。
func (s *Service) Enabled() bool {
	return s != nil && len(s.credentials) > 0
}

// AuthenticateRequest 校验 Authorization 头并返回对应主体。
func (s *Service) AuthenticateRequest(authorization string) (*Subject, error) {
	token, ok := strings.CutPrefix(strings.TrimSpace(authorization), "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return nil, ErrMissingToken
	}
	digest := sha256.Sum256([]byte(token))
	var matched *Subject
	for _, cred := range s.credentials {
		if subtle.ConstantTimeCompare(digest[:], cred.digest[:]) == 1 {
			matched = cred.subject
		}
	}
	if matched == nil {
		return nil, ErrInvalidToken
	}
	return matched, nil
}
