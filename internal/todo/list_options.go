package todo

// SortOrder defines how todos are ordered when listing.
type SortOrder int

const (
	// SortByInsertion keeps store insertion order (the default).
	SortByInsertion SortOrder = iota
	// SortByPriorityDesc orders critical first, stable within a priority.
	SortByPriorityDesc
)

// ListOptions controls how todos are selected when querying the store.
type ListOptions struct {
	AgentID     string
	PlanID      string
	Statuses    []Status
	Tags        []string
	MinPriority Priority
	Limit       int
	Offset      int
	Order       SortOrder
}

// ListOption mutates ListOptions.
type ListOption func(*ListOptions)

// WithAgent restricts results to one agent.
func WithAgent(agentID string) ListOption {
	return func(opts *ListOptions) {
		opts.AgentID = agentID
	}
}

// WithPlan restricts results to the todos attached to one plan.
func WithPlan(planID string) ListOption {
	return func(opts *ListOptions) {
		opts.PlanID = planID
	}
}

// WithStatuses filters todos by the provided statuses.
func WithStatuses(statuses ...Status) ListOption {
	return func(opts *ListOptions) {
		opts.Statuses = append(opts.Statuses[:0], statuses...)
	}
}

// WithTags keeps todos carrying every listed tag.
func WithTags(tags ...string) ListOption {
	return func(opts *ListOptions) {
		opts.Tags = append(opts.Tags[:0], tags...)
	}
}

// WithMinPriority keeps todos at or above the given priority.
func WithMinPriority(priority Priority) ListOption {
	return func(opts *ListOptions) {
		opts.MinPriority = priority
	}
}

// WithLimit limits the number of todos returned. Zero means unlimited.
func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) {
		opts.Limit = limit
	}
}

// WithOffset skips the first n matching todos.
func WithOffset(offset int) ListOption {
	return func(opts *ListOptions) {
		opts.Offset = offset
	}
}

// WithSortOrder changes the returned order of todos.
func WithSortOrder(order SortOrder) ListOption {
	return func(opts *ListOptions) {
		opts.Order = order
	}
}

func buildListOptions(opts []ListOption) ListOptions {
	options := ListOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.Limit < 0 {
		options.Limit = 0
	}
	if options.Offset < 0 {
		options.Offset = 0
	}
	if options.Order != SortByPriorityDesc {
		options.Order = SortByInsertion
	}
	return options
}

func (opts ListOptions) matches(t *Todo) bool {
	if opts.AgentID != "" && t.AgentID != opts.AgentID {
		return false
	}
	if opts.PlanID != "" && t.PlanID != opts.PlanID {
		return false
	}
	if len(opts.Statuses) > 0 {
		matched := false
		for _, status := range opts.Statuses {
			if t.Status == status {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, tag := range opts.Tags {
		if !t.HasTag(tag) {
			return false
		}
	}
	if opts.MinPriority != "" && t.Priority.Rank() < opts.MinPriority.Rank() {
		return false
	}
	return true
}
