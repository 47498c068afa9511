package todo

import (
	"slices"
	"sync"
	"time"
)

// Store 抽象了待办与计划的进程内登记表。
// 查找未命中不是错误：读取返回 false 或空切片，写入静默忽略。
type Store interface {
	AddPlan(plan *WorkPlan) bool
	GetPlan(id string) (*WorkPlan, bool)
	AttachTodos(planID string, todoIDs ...string) bool
	UpdatePlanStatus(id string, status PlanStatus) bool

	AddTodo(todo *Todo) bool
	GetTodo(id string) (*Todo, bool)
	GetAgentTodos(agentID string) []*Todo
	UpdateTodoStatus(id string, status Status) bool
	UpdateTodoProgress(id string, progress int) bool
	ListTodos(opts ...ListOption) []*Todo
	Stats(agentID string) Stats
}

// MemoryStore 以内存方式保存计划与待办，生命周期与进程一致。
type MemoryStore struct {
	mu      sync.RWMutex
	now     func() time.Time
	plans   map[string]*WorkPlan
	todos   map[string]*Todo
	order   []string
	byAgent map[string][]string
}

// StoreOption 定义 MemoryStore 的可选配置。
type StoreOption func(*MemoryStore)

// WithClock 替换时间来源，主要用于测试。
func WithClock(now func() time.Time) StoreOption {
	return func(m *MemoryStore) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemoryStore 创建 MemoryStore。每个编排会话持有自己的实例。
func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	m := &MemoryStore{
		now:     time.Now,
		plans:   make(map[string]*WorkPlan),
		todos:   make(map[string]*Todo),
		byAgent: make(map[string][]string),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// AddPlan 登记计划；ID 为空或已存在时返回 false。
func (m *MemoryStore) AddPlan(plan *WorkPlan) bool {
	if plan == nil || plan.ID == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plans[plan.ID]; ok {
		return false
	}
	m.plans[plan.ID] = clonePlan(plan)
	return true
}

// GetPlan 返回计划副本。
func (m *MemoryStore) GetPlan(id string) (*WorkPlan, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	plan, ok := m.plans[id]
	if !ok {
		return nil, false
	}
	return clonePlan(plan), true
}

// AttachTodos 将待办挂到计划上，并按仍在存储中的待办重新计算预计总耗时。
func (m *MemoryStore) AttachTodos(planID string, todoIDs ...string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	plan, ok := m.plans[planID]
	if !ok {
		return false
	}
	for _, id := range todoIDs {
		if slices.Contains(plan.Todos, id) {
			continue
		}
		plan.Todos = append(plan.Todos, id)
		if t, ok := m.todos[id]; ok {
			t.PlanID = planID
		}
	}
	total := 0
	for _, id := range plan.Todos {
		if t, ok := m.todos[id]; ok {
			total += t.EstimatedDuration
		}
	}
	plan.EstimatedTimeTotal = total
	plan.UpdatedAt = m.now()
	return true
}

// UpdatePlanStatus 更新计划状态，计划不存在时忽略。
func (m *MemoryStore) UpdatePlanStatus(id string, status PlanStatus) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	plan, ok := m.plans[id]
	if !ok {
		return false
	}
	plan.Status = status
	plan.UpdatedAt = m.now()
	return true
}

// AddTodo 登记待办；ID 为空或已存在时返回 false。
func (m *MemoryStore) AddTodo(todo *Todo) bool {
	if todo == nil || todo.ID == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.todos[todo.ID]; ok {
		return false
	}
	m.todos[todo.ID] = cloneTodo(todo)
	m.order = append(m.order, todo.ID)
	m.byAgent[todo.AgentID] = append(m.byAgent[todo.AgentID], todo.ID)
	return true
}

// GetTodo 返回待办副本。
func (m *MemoryStore) GetTodo(id string) (*Todo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.todos[id]
	if !ok {
		return nil, false
	}
	return cloneTodo(t), true
}

// GetAgentTodos 按插入顺序返回某个智能体的全部待办，未知智能体返回空切片。
func (m *MemoryStore) GetAgentTodos(agentID string) []*Todo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.byAgent[agentID]
	results := make([]*Todo, 0, len(ids))
	for _, id := range ids {
		results = append(results, cloneTodo(m.todos[id]))
	}
	return results
}

// UpdateTodoStatus 设置状态并刷新 UpdatedAt；待办不存在时静默忽略。
func (m *MemoryStore) UpdateTodoStatus(id string, status Status) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.todos[id]
	if !ok {
		return false
	}
	t.Status = status
	t.UpdatedAt = m.now()
	return true
}

// UpdateTodoProgress 以最后写入为准更新进度，取值限制在 0..100。
func (m *MemoryStore) UpdateTodoProgress(id string, progress int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.todos[id]
	if !ok {
		return false
	}
	t.Progress = min(max(progress, 0), 100)
	t.UpdatedAt = m.now()
	return true
}

// ListTodos 返回符合过滤条件的待办。
func (m *MemoryStore) ListTodos(opts ...ListOption) []*Todo {
	options := buildListOptions(opts)

	m.mu.RLock()
	results := make([]*Todo, 0)
	for _, id := range m.order {
		t := m.todos[id]
		if options.matches(t) {
			results = append(results, cloneTodo(t))
		}
	}
	m.mu.RUnlock()

	if options.Order == SortByPriorityDesc {
		SortByPriority(results)
	}
	if options.Offset >= len(results) {
		return []*Todo{}
	}
	results = results[options.Offset:]
	if options.Limit > 0 && len(results) > options.Limit {
		results = results[:options.Limit]
	}
	return results
}

// Stats 统计某个智能体（为空时统计全部）的待办分布。
func (m *MemoryStore) Stats(agentID string) Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.order
	if agentID != "" {
		ids = m.byAgent[agentID]
	}
	stats := Stats{}
	for _, id := range ids {
		stats.add(m.todos[id])
	}
	return stats
}

// Len 返回已登记的待办数量。
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.todos)
}

// PlanCount 返回已登记的计划数量。
func (m *MemoryStore) PlanCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.plans)
}

var _ Store = (*MemoryStore)(nil)
