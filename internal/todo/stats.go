package todo

// Stats 聚合了待办状态的统计信息，常用于仪表盘或健康检查。
type Stats struct {
	Total            int `json:"total"`
	Pending          int `json:"pending"`
	InProgress       int `json:"in_progress"`
	Completed        int `json:"completed"`
	Failed           int `json:"failed"`
	Blocked          int `json:"blocked"`
	EstimatedMinutes int `json:"estimated_minutes"`
	RemainingMinutes int `json:"remaining_minutes"`
}

func (s *Stats) add(t *Todo) {
	if t == nil {
		return
	}
	s.Total++
	s.EstimatedMinutes += t.EstimatedDuration
	switch t.Status {
	case StatusPending:
		s.Pending++
	case StatusInProgress:
		s.InProgress++
	case StatusCompleted:
		s.Completed++
	case StatusFailed:
		s.Failed++
	case StatusBlocked:
		s.Blocked++
	}
	if t.Status != StatusCompleted {
		s.RemainingMinutes += t.EstimatedDuration
	}
}
