package todo

import (
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestStore() (*MemoryStore, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewMemoryStore(WithClock(clock.Now)), clock
}

func seed(t *testing.T, store *MemoryStore, todos ...*Todo) {
	t.Helper()
	for _, item := range todos {
		if !store.AddTodo(item) {
			t.Fatalf("add todo %s failed", item.ID)
		}
	}
}

func TestGetAgentTodosKeepsInsertionOrder(t *testing.T) {
	store, _ := newTestStore()
	seed(t, store,
		&Todo{ID: "t1", AgentID: "a1", Priority: PriorityLow},
		&Todo{ID: "t2", AgentID: "a2", Priority: PriorityCritical},
		&Todo{ID: "t3", AgentID: "a1", Priority: PriorityCritical},
		&Todo{ID: "t4", AgentID: "a1", Priority: PriorityMedium},
	)

	got := store.GetAgentTodos("a1")
	if len(got) != 3 {
		t.Fatalf("expected 3 todos, got %d", len(got))
	}
	for i, want := range []string{"t1", "t3", "t4"} {
		if got[i].ID != want {
			t.Fatalf("position %d: got %s want %s", i, got[i].ID, want)
		}
	}
	if unknown := store.GetAgentTodos("nobody"); unknown == nil || len(unknown) != 0 {
		t.Fatalf("unknown agent should yield an empty slice, got %v", unknown)
	}
}

func TestUpdateTodoStatus(t *testing.T) {
	store, clock := newTestStore()
	seed(t, store, &Todo{ID: "t1", AgentID: "a1", Status: StatusPending, UpdatedAt: clock.Now()})

	clock.Advance(time.Minute)
	if !store.UpdateTodoStatus("t1", StatusCompleted) {
		t.Fatalf("expected update to apply")
	}
	got, _ := store.GetTodo("t1")
	if got.Status != StatusCompleted {
		t.Fatalf("unexpected status %s", got.Status)
	}
	if !got.UpdatedAt.Equal(clock.Now()) {
		t.Fatalf("updatedAt not refreshed: %v", got.UpdatedAt)
	}

	before := store.Len()
	if store.UpdateTodoStatus("missing", StatusFailed) {
		t.Fatalf("missing todo must be a no-op")
	}
	if store.Len() != before {
		t.Fatalf("store size changed on missing update: %d -> %d", before, store.Len())
	}
}

func TestUpdateTodoProgressClampsAndLastWriteWins(t *testing.T) {
	store, _ := newTestStore()
	seed(t, store, &Todo{ID: "t1", AgentID: "a1"})

	store.UpdateTodoProgress("t1", 80)
	store.UpdateTodoProgress("t1", 40)
	if got, _ := store.GetTodo("t1"); got.Progress != 40 {
		t.Fatalf("expected last write to win, got %d", got.Progress)
	}
	store.UpdateTodoProgress("t1", 250)
	if got, _ := store.GetTodo("t1"); got.Progress != 100 {
		t.Fatalf("expected clamp to 100, got %d", got.Progress)
	}
}

func TestReturnedValuesAreCopies(t *testing.T) {
	store, _ := newTestStore()
	seed(t, store, &Todo{ID: "t1", AgentID: "a1", Tags: []string{"design"}})

	got, _ := store.GetTodo("t1")
	got.Tags[0] = "mutated"
	got.Status = StatusFailed

	again, _ := store.GetTodo("t1")
	if again.Tags[0] != "design" || again.Status != "" {
		t.Fatalf("store state leaked through returned value: %+v", again)
	}
}

func TestAttachTodosRecomputesTotal(t *testing.T) {
	store, _ := newTestStore()
	if !store.AddPlan(&WorkPlan{ID: "p1", AgentID: "a1", Status: PlanPending}) {
		t.Fatalf("add plan failed")
	}
	seed(t, store,
		&Todo{ID: "t1", AgentID: "a1", EstimatedDuration: 10},
		&Todo{ID: "t2", AgentID: "a1", EstimatedDuration: 15},
	)

	store.AttachTodos("p1", "t1")
	store.AttachTodos("p1", "t1", "t2", "orphan")

	plan, ok := store.GetPlan("p1")
	if !ok {
		t.Fatalf("plan not found")
	}
	if plan.EstimatedTimeTotal != 25 {
		t.Fatalf("unexpected total %d", plan.EstimatedTimeTotal)
	}
	if len(plan.Todos) != 3 {
		t.Fatalf("expected 3 attached ids, got %v", plan.Todos)
	}
	if got, _ := store.GetTodo("t2"); got.PlanID != "p1" {
		t.Fatalf("todo not linked to plan: %+v", got)
	}
	if store.AttachTodos("missing", "t1") {
		t.Fatalf("attach to unknown plan must be a no-op")
	}
	if store.AddPlan(&WorkPlan{ID: "p1"}) {
		t.Fatalf("duplicate plan id must be rejected")
	}
}

func TestListTodosFilters(t *testing.T) {
	store, _ := newTestStore()
	seed(t, store,
		&Todo{ID: "t1", AgentID: "a1", Priority: PriorityHigh, Status: StatusPending, Tags: []string{"analysis"}},
		&Todo{ID: "t2", AgentID: "a1", Priority: PriorityMedium, Status: StatusPending, Tags: []string{"design"}},
		&Todo{ID: "t3", AgentID: "a1", Priority: PriorityCritical, Status: StatusCompleted, Tags: []string{"implementation", "coding"}},
		&Todo{ID: "t4", AgentID: "a2", Priority: PriorityHigh, Status: StatusPending, Tags: []string{"testing"}},
	)

	cases := []struct {
		name string
		opts []ListOption
		want []string
	}{
		{"all", nil, []string{"t1", "t2", "t3", "t4"}},
		{"agent", []ListOption{WithAgent("a2")}, []string{"t4"}},
		{"status", []ListOption{WithStatuses(StatusCompleted)}, []string{"t3"}},
		{"tags", []ListOption{WithTags("implementation", "coding")}, []string{"t3"}},
		{"min priority", []ListOption{WithMinPriority(PriorityHigh)}, []string{"t1", "t3", "t4"}},
		{"priority order", []ListOption{WithAgent("a1"), WithSortOrder(SortByPriorityDesc)}, []string{"t3", "t1", "t2"}},
		{"paging", []ListOption{WithOffset(1), WithLimit(2)}, []string{"t2", "t3"}},
		{"offset past end", []ListOption{WithOffset(10)}, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := store.ListTodos(tc.opts...)
			if len(got) != len(tc.want) {
				t.Fatalf("got %d todos, want %d", len(got), len(tc.want))
			}
			for i, id := range tc.want {
				if got[i].ID != id {
					t.Fatalf("position %d: got %s want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestStats(t *testing.T) {
	store, _ := newTestStore()
	seed(t, store,
		&Todo{ID: "t1", AgentID: "a1", Status: StatusPending, EstimatedDuration: 10},
		&Todo{ID: "t2", AgentID: "a1", Status: StatusCompleted, EstimatedDuration: 30},
		&Todo{ID: "t3", AgentID: "a1", Status: StatusBlocked, EstimatedDuration: 5},
		&Todo{ID: "t4", AgentID: "a2", Status: StatusFailed, EstimatedDuration: 20},
	)

	stats := store.Stats("a1")
	if stats.Total != 3 || stats.Pending != 1 || stats.Completed != 1 || stats.Blocked != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.EstimatedMinutes != 45 || stats.RemainingMinutes != 15 {
		t.Fatalf("unexpected minutes: %+v", stats)
	}
	if all := store.Stats(""); all.Total != 4 || all.Failed != 1 {
		t.Fatalf("unexpected global stats: %+v", all)
	}
}

func TestParseHelpers(t *testing.T) {
	if s, err := ParseStatus(" In_Progress "); err != nil || s != StatusInProgress {
		t.Fatalf("parse status: %v %v", s, err)
	}
	if _, err := ParseStatus("done"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
	if p, err := ParsePriority("CRITICAL"); err != nil || p != PriorityCritical {
		t.Fatalf("parse priority: %v %v", p, err)
	}
	if _, err := ParsePriority("urgent"); err == nil {
		t.Fatalf("expected error for unknown priority")
	}
}
