package auth

import (
	"errors"
	"net/http"
	"time"

	"AgentTodo/pkg/logger"
)

// Require 返回一个要求调用方具备 perms 的中间件；认证关闭时直接放行。
func (s *Service) Require(next http.Handler, perms ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		subject, err := s.AuthenticateRequest(r.Header.Get("Authorization"))
		if err == nil {
			err = subject.Authorize(perms...)
		}
		if err != nil {
			status := http.StatusUnauthorized
			if errors.Is(err, ErrPermissionDenied) {
				status = http.StatusForbidden
			}
			http.Error(w, http.StatusText(status), status)
			logger.Audit().Warn("access_denied",
				"path", r.URL.Path,
				"method", r.Method,
				"status", status,
				"error", err.Error(),
			)
			return
		}

		start := time.Now()
		aw := &auditWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(aw, r.WithContext(WithSubject(r.Context(), subject)))
		logger.Audit().Info("api_request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", aw.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"user", subject.Name,
		)
	})
}

// auditWriter 捕获响应状态码。
type auditWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader 捕获响应状态码并调用底层的 WriteHeader 方法。
func (w *auditWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
