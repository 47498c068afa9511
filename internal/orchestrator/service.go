package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"AgentTodo/internal/delegate"
	xerrors "AgentTodo/internal/errors"
	"AgentTodo/internal/planner"
	"AgentTodo/internal/todo"
	"AgentTodo/pkg/logger"
)

// Recorder 接收编排过程中的计数事件，metrics.Metrics 实现了该接口。
type Recorder interface {
	ObservePlanCreated()
	ObserveTodoStatus(status string)
}

// ServerResolver 判断委派目标是否存在。
type ServerResolver interface {
	Lookup(name string) (delegate.Target, bool)
}

// Service 负责把目标拆解为计划，并把待办作业投递到队列。
type Service struct {
	planner  *planner.Planner
	store    todo.Store
	producer Producer
	servers  ServerResolver
	recorder Recorder
}

// ServiceOption 定义 Service 的可选配置。
type ServiceOption func(*Service)

// WithServerResolver 在提交时校验目标服务是否存在。
func WithServerResolver(r ServerResolver) ServiceOption {
	return func(s *Service) {
		s.servers = r
	}
}

// WithRecorder 配置计数器。
func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) {
		s.recorder = r
	}
}

// NewService 构造编排服务。producer 为空时 Submit 只做规划，不执行。
func NewService(p *planner.Planner, store todo.Store, producer Producer, opts ...ServiceOption) *Service {
	s := &Service{planner: p, store: store, producer: producer}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Submit 为 agentID 规划 goal。server 非空时每个待办按模板顺序投递给该服务执行；
// 没有待办的计划直接标记为 completed。
func (s *Service) Submit(ctx context.Context, agentID, goal, server string) (*todo.WorkPlan, []*todo.Todo, error) {
	if s.planner == nil || s.store == nil {
		return nil, nil, xerrors.New(xerrors.CodeInitializationFailure, "编排服务未初始化")
	}
	server = strings.TrimSpace(server)
	if server != "" {
		if s.producer == nil {
			return nil, nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置执行队列")
		}
		if s.servers != nil {
			if _, ok := s.servers.Lookup(server); !ok {
				return nil, nil, xerrors.New(delegate.CodeServerNotFound, "未配置的服务: "+server,
					xerrors.WithMetadata("server", server))
			}
		}
	}

	plan, todos := s.planner.Plan(agentID, goal)
	if s.recorder != nil {
		s.recorder.ObservePlanCreated()
	}
	if server == "" {
		return plan, todos, nil
	}
	if len(todos) == 0 {
		s.store.UpdatePlanStatus(plan.ID, todo.PlanCompleted)
		return s.refresh(plan), todos, nil
	}

	for idx, item := range todos {
		message, err := encodeJob(Job{TodoID: item.ID, Server: server})
		if err == nil {
			err = s.producer.Publish(ctx, message)
		}
		if err != nil {
			logger.L().Error("待办入队失败", slog.Any("error", err), slog.String("todo_id", item.ID))
			for _, rest := range todos[idx:] {
				s.store.UpdateTodoStatus(rest.ID, todo.StatusFailed)
			}
			settlePlan(s.store, plan.ID)
			return nil, nil, xerrors.Wrap(xerrors.CodeQueueFailure, err,
				fmt.Sprintf("计划 %s 的待办入队失败", plan.ID))
		}
	}
	logger.Audit().Info("计划已入队",
		slog.String("plan_id", plan.ID),
		slog.String("agent_id", agentID),
		slog.String("server", server),
		slog.Int("todos", len(todos)),
	)
	return plan, todos, nil
}

// Plan 返回指定计划。
func (s *Service) Plan(id string) (*todo.WorkPlan, error) {
	plan, ok := s.store.GetPlan(id)
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, "计划不存在: "+id)
	}
	return plan, nil
}

// WaitForPlan 轮询直到计划进入终态或 ctx 结束。
func (s *Service) WaitForPlan(ctx context.Context, id string, interval time.Duration) (*todo.WorkPlan, error) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		plan, err := s.Plan(id)
		if err != nil {
			return nil, err
		}
		if plan.Status == todo.PlanCompleted || plan.Status == todo.PlanFailed {
			return plan, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close 释放队列资源。
func (s *Service) Close() error {
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}

func (s *Service) refresh(plan *todo.WorkPlan) *todo.WorkPlan {
	if latest, ok := s.store.GetPlan(plan.ID); ok {
		return latest
	}
	return plan
}

// settlePlan 在计划的全部待办都结束后写入计划终态：任一失败则 failed，否则 completed。
// 返回计划是否已结束。
func settlePlan(store todo.Store, planID string) bool {
	plan, ok := store.GetPlan(planID)
	if !ok {
		return false
	}
	failed := false
	for _, id := range plan.Todos {
		item, ok := store.GetTodo(id)
		if !ok {
			continue
		}
		if !item.Terminal() {
			return false
		}
		if item.Status == todo.StatusFailed {
			failed = true
		}
	}
	status := todo.PlanCompleted
	if failed {
		status = todo.PlanFailed
	}
	if plan.Status != status {
		store.UpdatePlanStatus(planID, status)
		logger.Audit().Info("计划结束",
			slog.String("plan_id", planID),
			slog.String("status", string(status)),
		)
	}
	return true
}
