package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"AgentTodo/internal/auth"
	"AgentTodo/internal/delegate"
	xerrors "AgentTodo/internal/errors"
	"AgentTodo/internal/observability/metrics"
	"AgentTodo/internal/orchestrator"
	"AgentTodo/internal/todo"
	"AgentTodo/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Server 负责暴露 REST 接口，供外部规划目标、查看待办并委派调用。
type Server struct {
	addr      string
	service   *orchestrator.Service
	store     todo.Store
	delegator delegate.Caller
	metrics   *metrics.Metrics
	auth      *auth.Service
	log       *slog.Logger
}

// Option 定义 Server 的可选配置。
type Option func(*Server)

// WithDelegator 启用 /api/v1/delegate 接口。
func WithDelegator(d delegate.Caller) Option {
	return func(s *Server) {
		s.delegator = d
	}
}

// WithMetrics 启用请求指标与 /metrics 接口。
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithAuth 为业务接口开启 token 认证。
func WithAuth(a *auth.Service) Option {
	return func(s *Server) {
		s.auth = a
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, svc *orchestrator.Service, store todo.Store, opts ...Option) *Server {
	s := &Server{addr: addr, service: svc, store: store, log: logger.Named("api")}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 返回注册了全部路由的处理器。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /api/v1/plans", s.route("plans", s.handleCreatePlan, auth.PermWrite))
	mux.Handle("GET /api/v1/plans/{id}", s.route("plan", s.handlePlanDetail, auth.PermRead))
	mux.Handle("GET /api/v1/plans/{id}/todos", s.route("plan_todos", s.handlePlanTodos, auth.PermRead))
	mux.Handle("GET /api/v1/agents/{id}/todos", s.route("agent_todos", s.handleAgentTodos, auth.PermRead))
	mux.Handle("GET /api/v1/agents/{id}/stats", s.route("agent_stats", s.handleAgentStats, auth.PermRead))
	mux.Handle("GET /api/v1/todos/{id}", s.route("todo", s.handleTodoDetail, auth.PermRead))
	mux.Handle("PATCH /api/v1/todos/{id}", s.route("todo_update", s.handleUpdateTodo, auth.PermWrite))
	mux.Handle("POST /api/v1/delegate/{server}", s.route("delegate", s.handleDelegate, auth.PermDelegate))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("API 服务已启动", slog.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

type createPlanRequest struct {
	AgentID string `json:"agent_id"`
	Goal    string `json:"goal"`
	Server  string `json:"server,omitempty"`
}

type createPlanResponse struct {
	Plan  *todo.WorkPlan `json:"plan"`
	Todos []*todo.Todo   `json:"todos"`
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	if s.service == nil {
		writeError(w, http.StatusServiceUnavailable, xerrors.CodeInitializationFailure, "编排服务未初始化")
		return
	}
	var req createPlanRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, xerrors.CodeInvalidArgument, "请求体解析失败")
		return
	}
	if strings.TrimSpace(req.AgentID) == "" {
		writeError(w, http.StatusBadRequest, xerrors.CodeInvalidArgument, "agent_id 不能为空")
		return
	}
	plan, todos, err := s.service.Submit(r.Context(), req.AgentID, req.Goal, req.Server)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createPlanResponse{Plan: plan, Todos: todos})
}

func (s *Server) handlePlanDetail(w http.ResponseWriter, r *http.Request) {
	plan, ok := s.store.GetPlan(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, xerrors.CodeNotFound, "计划不存在")
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handlePlanTodos(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.store.GetPlan(id); !ok {
		writeError(w, http.StatusNotFound, xerrors.CodeNotFound, "计划不存在")
		return
	}
	writeJSON(w, http.StatusOK, s.store.ListTodos(todo.WithPlan(id)))
}

func (s *Server) handleAgentTodos(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")
	query := r.URL.Query()
	if len(query) == 0 {
		writeJSON(w, http.StatusOK, s.store.GetAgentTodos(agentID))
		return
	}
	opts, err := listOptionsFromQuery(agentID, query)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.store.ListTodos(opts...))
}

func (s *Server) handleAgentStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Stats(r.PathValue("id")))
}

func (s *Server) handleTodoDetail(w http.ResponseWriter, r *http.Request) {
	item, ok := s.store.GetTodo(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, xerrors.CodeNotFound, "待办不存在")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type updateTodoRequest struct {
	Status   *string `json:"status,omitempty"`
	Progress *int    `json:"progress,omitempty"`
}

// handleUpdateTodo 对未知 ID 同样返回 204，与存储层的静默忽略保持一致。
func (s *Server) handleUpdateTodo(w http.ResponseWriter, r *http.Request) {
	var req updateTodoRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, xerrors.CodeInvalidArgument, "请求体解析失败")
		return
	}
	var status todo.Status
	if req.Status != nil {
		parsed, err := todo.ParseStatus(*req.Status)
		if err != nil {
			s.writeErr(w, err)
			return
		}
		status = parsed
	}
	id := r.PathValue("id")
	if status != "" && s.store.UpdateTodoStatus(id, status) && s.metrics != nil {
		s.metrics.ObserveTodoStatus(string(status))
	}
	if req.Progress != nil {
		s.store.UpdateTodoProgress(id, *req.Progress)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelegate(w http.ResponseWriter, r *http.Request) {
	if s.delegator == nil {
		writeError(w, http.StatusServiceUnavailable, xerrors.CodeInitializationFailure, "委派未启用")
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, xerrors.CodeInvalidArgument, "读取请求体失败")
		return
	}
	payload := json.RawMessage("null")
	if trimmed := strings.TrimSpace(string(raw)); trimmed != "" {
		if !json.Valid([]byte(trimmed)) {
			writeError(w, http.StatusBadRequest, xerrors.CodeInvalidArgument, "请求体不是合法的 JSON")
			return
		}
		payload = json.RawMessage(trimmed)
	}
	result, err := s.delegator.Call(r.Context(), r.PathValue("server"), payload)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func listOptionsFromQuery(agentID string, query map[string][]string) ([]todo.ListOption, error) {
	opts := []todo.ListOption{todo.WithAgent(agentID)}
	get := func(key string) string {
		if values := query[key]; len(values) > 0 {
			return values[0]
		}
		return ""
	}
	if raw := query["status"]; len(raw) > 0 {
		statuses := make([]todo.Status, 0, len(raw))
		for _, value := range raw {
			status, err := todo.ParseStatus(value)
			if err != nil {
				return nil, err
			}
			statuses = append(statuses, status)
		}
		opts = append(opts, todo.WithStatuses(statuses...))
	}
	if tags := query["tag"]; len(tags) > 0 {
		opts = append(opts, todo.WithTags(tags...))
	}
	if raw := get("min_priority"); raw != "" {
		priority, err := todo.ParsePriority(raw)
		if err != nil {
			return nil, err
		}
		opts = append(opts, todo.WithMinPriority(priority))
	}
	for key, apply := range map[string]func(int) todo.ListOption{"limit": todo.WithLimit, "offset": todo.WithOffset} {
		if raw := get(key); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				return nil, xerrors.New(xerrors.CodeInvalidArgument, key+" 必须是非负整数")
			}
			opts = append(opts, apply(n))
		}
	}
	if get("sort") == "priority" {
		opts = append(opts, todo.WithSortOrder(todo.SortByPriorityDesc))
	}
	return opts, nil
}

type errorResponse struct {
	Code    xerrors.Code      `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// statusFor 把统一错误码映射为 HTTP 状态码。
func statusFor(code xerrors.Code) int {
	switch code {
	case xerrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case xerrors.CodeNotFound, delegate.CodeServerNotFound:
		return http.StatusNotFound
	case delegate.CodeExecFailed, delegate.CodeHTTPFailed:
		return http.StatusBadGateway
	case delegate.CodeTimeout, xerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case xerrors.CodeQueueFailure, xerrors.CodeInitializationFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeErr(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	status := statusFor(code)
	resp := errorResponse{Code: code, Message: err.Error()}
	if xe, ok := xerrors.From(err); ok {
		resp.Details = xe.Metadata()
	}
	if status >= http.StatusInternalServerError {
		s.log.Warn("请求处理失败", slog.String("code", string(code)), slog.Any("error", err))
	}
	writeJSON(w, status, resp)
}

func writeError(w http.ResponseWriter, status int, code xerrors.Code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// route 组合指标与权限校验。
func (s *Server) route(name string, next http.HandlerFunc, perms ...string) http.Handler {
	var h http.Handler = s.instrument(name, next)
	if s.auth.Enabled() {
		h = s.auth.Require(h, perms...)
	}
	return h
}

func (s *Server) instrument(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		if s.metrics != nil {
			s.metrics.ObserveHTTPRequest(name, r.Method, rec.status, time.Since(start))
		}
	}
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
