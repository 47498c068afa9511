package planner

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"AgentTodo/internal/todo"
	"AgentTodo/pkg/logger"
)

const maxIDAttempts = 3

// Planner 负责创建工作计划，并把目标拆解为带优先级与耗时估算的待办。
// Planner 不会失败：任何目标都能得到一个（可能为空的）待办序列。
type Planner struct {
	store    todo.Store
	strategy Strategy
	now      func() time.Time
	newID    func() string
	log      *slog.Logger
}

// Option 定义可选的 Planner 配置。
type Option func(*Planner)

// WithStrategy 替换默认的关键字策略。
func WithStrategy(s Strategy) Option {
	return func(p *Planner) {
		if s != nil {
			p.strategy = s
		}
	}
}

// WithClock 替换时间来源。
func WithClock(now func() time.Time) Option {
	return func(p *Planner) {
		if now != nil {
			p.now = now
		}
	}
}

// WithIDGenerator 替换 ID 生成器。
func WithIDGenerator(newID func() string) Option {
	return func(p *Planner) {
		if newID != nil {
			p.newID = newID
		}
	}
}

// WithLogger 指定日志输出。
func WithLogger(l *slog.Logger) Option {
	return func(p *Planner) {
		if l != nil {
			p.log = l
		}
	}
}

// New 创建 Planner。store 由调用方持有，Planner 只负责写入。
func New(store todo.Store, opts ...Option) *Planner {
	p := &Planner{
		store:    store,
		strategy: KeywordStrategy{},
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.log == nil {
		p.log = logger.Named("planner")
	}
	return p
}

// Strategy 返回当前使用的拆解策略。
func (p *Planner) Strategy() Strategy {
	return p.strategy
}

// CreateWorkPlan 分配一个新的计划记录：pending、无待办、预计耗时为 0。
func (p *Planner) CreateWorkPlan(agentID, goal string) *todo.WorkPlan {
	now := p.now()
	plan := &todo.WorkPlan{
		AgentID:   agentID,
		Goal:      goal,
		Todos:     []string{},
		Status:    todo.PlanPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	registered := false
	for attempt := 0; attempt < maxIDAttempts && !registered; attempt++ {
		plan.ID = p.newID()
		registered = p.store.AddPlan(plan)
	}
	if !registered {
		p.log.Warn("计划 ID 冲突，计划未登记", slog.String("plan_id", plan.ID), slog.String("agent_id", agentID))
		return plan
	}
	logger.Audit().Info("创建工作计划",
		slog.String("plan_id", plan.ID),
		slog.String("agent_id", agentID),
		slog.String("goal", goal),
	)
	return plan
}

// PlanTodos 按策略给出的模板顺序实例化待办并逐个登记到存储中。
// 没有匹配的模板时返回空切片，存储保持不变。
func (p *Planner) PlanTodos(agentID, goal string) []*todo.Todo {
	templates := p.strategy.Templates(goal)
	todos := make([]*todo.Todo, 0, len(templates))
	for _, tpl := range templates {
		now := p.now()
		item := &todo.Todo{
			AgentID:           agentID,
			Title:             tpl.Title,
			Description:       tpl.Description,
			Status:            todo.StatusPending,
			Priority:          tpl.Priority,
			EstimatedDuration: tpl.EstimatedDuration,
			Tags:              append([]string(nil), tpl.Tags...),
			Progress:          0,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		registered := false
		for attempt := 0; attempt < maxIDAttempts && !registered; attempt++ {
			item.ID = p.newID()
			registered = p.store.AddTodo(item)
		}
		if !registered {
			p.log.Warn("待办 ID 冲突，放弃登记", slog.String("todo_id", item.ID), slog.String("agent_id", agentID))
			continue
		}
		todos = append(todos, item)
	}
	p.log.Debug("目标拆解完成",
		slog.String("agent_id", agentID),
		slog.String("strategy", p.strategy.Name()),
		slog.Int("todos", len(todos)),
	)
	return todos
}

// Plan 创建计划、拆解待办并挂载到计划上，返回挂载后的计划。
func (p *Planner) Plan(agentID, goal string) (*todo.WorkPlan, []*todo.Todo) {
	plan := p.CreateWorkPlan(agentID, goal)
	todos := p.PlanTodos(agentID, goal)
	if len(todos) == 0 {
		return plan, todos
	}
	ids := make([]string, 0, len(todos))
	for _, item := range todos {
		ids = append(ids, item.ID)
		item.PlanID = plan.ID
	}
	p.store.AttachTodos(plan.ID, ids...)
	if attached, ok := p.store.GetPlan(plan.ID); ok {
		plan = attached
	}
	return plan, todos
}
