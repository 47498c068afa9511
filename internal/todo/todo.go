package todo

import (
	"slices"
	"strings"
	"time"

	xerrors "AgentTodo/internal/errors"
)

// Status 表示待办事项在生命周期中的状态。
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusBlocked    Status = "blocked"
)

// PlanStatus 表示工作计划的状态，不包含 blocked。
type PlanStatus string

const (
	PlanPending    PlanStatus = "pending"
	PlanInProgress PlanStatus = "in_progress"
	PlanCompleted  PlanStatus = "completed"
	PlanFailed     PlanStatus = "failed"
)

// Priority 表示待办事项的优先级，critical > high > medium > low。
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank 返回可比较的优先级权重，未知优先级为 0。
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityCritical:
		return 4
	default:
		return 0
	}
}

// Todo 是一个带有状态、优先级与耗时估算的工作单元。
type Todo struct {
	ID          string   `json:"id"`
	AgentID     string   `json:"agent_id"`
	PlanID      string   `json:"plan_id,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      Status   `json:"status"`
	Priority    Priority `json:"priority"`
	// EstimatedDuration 以分钟为单位，创建后不再重新计算。
	EstimatedDuration int       `json:"estimated_duration"`
	Tags              []string  `json:"tags"`
	Progress          int       `json:"progress"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Terminal 判断待办是否已结束。
func (t *Todo) Terminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// HasTag 判断待办是否带有指定标签。
func (t *Todo) HasTag(tag string) bool {
	return slices.Contains(t.Tags, tag)
}

// WorkPlan 聚合了为同一个目标生成的全部待办。
type WorkPlan struct {
	ID      string   `json:"id"`
	AgentID string   `json:"agent_id"`
	Goal    string   `json:"goal"`
	Todos   []string `json:"todos"`
	// EstimatedTimeTotal 为已挂载待办的预计耗时之和（分钟）。
	EstimatedTimeTotal int        `json:"estimated_time_total"`
	Status             PlanStatus `json:"status"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// IsValidStatus 检查给定的待办状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed, StatusBlocked:
		return true
	default:
		return false
	}
}

// IsValidPlanStatus 检查给定的计划状态是否为支持的枚举值。
func IsValidPlanStatus(status PlanStatus) bool {
	switch status {
	case PlanPending, PlanInProgress, PlanCompleted, PlanFailed:
		return true
	default:
		return false
	}
}

// ParseStatus 将外部输入解析为待办状态。
func ParseStatus(raw string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !IsValidStatus(status) {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "未知的待办状态: "+raw)
	}
	return status, nil
}

// ParsePriority 将外部输入解析为优先级。
func ParsePriority(raw string) (Priority, error) {
	priority := Priority(strings.ToLower(strings.TrimSpace(raw)))
	if priority.Rank() == 0 {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "未知的优先级: "+raw)
	}
	return priority, nil
}

// SortByPriority 按优先级从高到低稳定排序，属于展示层需求，存储本身保持插入顺序。
func SortByPriority(todos []*Todo) {
	slices.SortStableFunc(todos, func(a, b *Todo) int {
		return b.Priority.Rank() - a.Priority.Rank()
	})
}

func cloneTodo(t *Todo) *Todo {
	clone := *t
	clone.Tags = slices.Clone(t.Tags)
	return &clone
}

func clonePlan(p *WorkPlan) *WorkPlan {
	clone := *p
	clone.Todos = slices.Clone(p.Todos)
	if clone.Todos == nil {
		clone.Todos = []string{}
	}
	return &clone
}
