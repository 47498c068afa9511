package planner

import (
	"fmt"
	"slices"
	"sync"

	xerrors "AgentTodo/internal/errors"
)

// Registry 维护按名称注册的拆解策略，默认包含 keyword 策略。
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry 创建策略注册表。
func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: map[string]Strategy{"keyword": KeywordStrategy{}}}
	for _, s := range strategies {
		_ = r.Register(s)
	}
	return r
}

// Register 注册策略，同名策略会被替换。
func (r *Registry) Register(s Strategy) error {
	if s == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "策略不能为空")
	}
	name := s.Name()
	if name == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "策略名称不能为空")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[name] = s
	return nil
}

// Get 按名称查找策略。
func (r *Registry) Get(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("未注册的拆解策略: %s", name))
	}
	return s, nil
}

// Names 返回已注册的策略名称（排序后）。
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
