package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"AgentTodo/internal/delegate"
	xerrors "AgentTodo/internal/errors"
	"AgentTodo/internal/observability/alerting"
	"AgentTodo/internal/todo"
	"AgentTodo/pkg/logger"
)

// Processor 从队列消费待办作业并通过 Delegator 执行。
type Processor struct {
	caller      delegate.Caller
	store       todo.Store
	consumer    Consumer
	workerCount int
	logger      *slog.Logger
	alerter     alerting.Dispatcher
	recorder    Recorder
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// WithProcessorRecorder 配置状态计数器。
func WithProcessorRecorder(r Recorder) ProcessorOption {
	return func(p *Processor) {
		p.recorder = r
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(caller delegate.Caller, store todo.Store, consumer Consumer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		caller:      caller,
		store:       store,
		consumer:    consumer,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.logger == nil {
		p.logger = logger.Named("processor")
	}
	return p
}

// Start 启动作业处理循环，直到 ctx 结束。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置作业消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, message string) error {
	if p.store == nil || p.caller == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	job, err := decodeJob(message)
	if err != nil {
		p.logger.Warn("丢弃无法解析的作业", slog.Any("error", err))
		return nil
	}
	item, ok := p.store.GetTodo(job.TodoID)
	if !ok || item.Terminal() {
		p.logger.Debug("跳过作业", slog.String("todo_id", job.TodoID), slog.Bool("found", ok))
		return nil
	}

	p.setStatus(item.ID, todo.StatusInProgress)
	item.Status = todo.StatusInProgress
	if item.PlanID != "" {
		if plan, ok := p.store.GetPlan(item.PlanID); ok && plan.Status == todo.PlanPending {
			p.store.UpdatePlanStatus(plan.ID, todo.PlanInProgress)
		}
	}

	result, callErr := p.caller.Call(ctx, job.Server, map[string]any{
		"plan_id": item.PlanID,
		"todo":    item,
	})
	if callErr != nil {
		p.setStatus(item.ID, todo.StatusFailed)
		logger.Audit().Warn("待办执行失败",
			slog.String("todo_id", item.ID),
			slog.String("plan_id", item.PlanID),
			slog.String("server", job.Server),
			slog.String("error_code", string(xerrors.CodeOf(callErr))),
		)
		if xerrors.ShouldAlert(callErr) {
			p.emitAlert(ctx, item, job.Server, callErr)
		}
	} else {
		p.store.UpdateTodoProgress(item.ID, 100)
		p.setStatus(item.ID, todo.StatusCompleted)
		logger.Audit().Info("待办执行完成",
			slog.String("todo_id", item.ID),
			slog.String("plan_id", item.PlanID),
			slog.String("server", job.Server),
			slog.Duration("duration", result.Duration),
		)
	}

	if item.PlanID != "" {
		settlePlan(p.store, item.PlanID)
	}
	return nil
}

func (p *Processor) setStatus(id string, status todo.Status) {
	if p.store.UpdateTodoStatus(id, status) && p.recorder != nil {
		p.recorder.ObserveTodoStatus(string(status))
	}
}

func (p *Processor) emitAlert(ctx context.Context, item *todo.Todo, server string, cause error) {
	if p.alerter == nil {
		return
	}
	event := alerting.FromError(cause, nil)
	event.Server = server
	event.AgentID = item.AgentID
	event.PlanID = item.PlanID
	event.TodoID = item.ID
	event.OccurredAt = time.Now()
	if err := p.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("todo_id", item.ID),
		)
	}
}
