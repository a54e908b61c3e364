package rollup_test

import (
	"testing"

	"sprintline/internal/domain"
	"sprintline/internal/rollup"
)

func ptr[T any](v T) *T { return &v }

func item(id string, parent *string, status string, effort *float64, unit string) domain.WorkItem {
	return domain.WorkItem{
		ID:             id,
		ParentID:       parent,
		Status:         status,
		EffortEstimate: effort,
		EffortUnit:     unit,
	}
}

func TestComputeEffortWeighted(t *testing.T) {
	// story with three tasks: 3 SP done, 5 SP in progress; the done
	// leaf without an estimate contributes nothing to effort.
	items := []domain.WorkItem{
		item("story", nil, domain.StatusInProgress, nil, domain.UnitStoryPoints),
		item("t1", ptr("story"), domain.StatusDone, ptr(3.0), domain.UnitStoryPoints),
		item("t2", ptr("story"), domain.StatusInProgress, ptr(5.0), domain.UnitStoryPoints),
		item("t3", ptr("story"), domain.StatusDone, nil, domain.UnitStoryPoints),
	}
	s := rollup.Compute("story", items)
	if s.TotalEffort != 8 || s.CompletedEffort != 3 {
		t.Fatalf("effort = %g/%g", s.CompletedEffort, s.TotalEffort)
	}
	if s.CompletionPercent != 38 {
		t.Fatalf("percent = %d, want 38", s.CompletionPercent)
	}
	if s.LeafCount != 3 || s.DoneCount != 2 {
		t.Fatalf("counts = %d leaves, %d done", s.LeafCount, s.DoneCount)
	}
}

func TestComputeCountFallback(t *testing.T) {
	// no estimates anywhere: percent falls back to done/leaves
	items := []domain.WorkItem{
		item("story", nil, domain.StatusInProgress, nil, domain.UnitStoryPoints),
		item("t1", ptr("story"), domain.StatusDone, nil, domain.UnitHours),
		item("t2", ptr("story"), domain.StatusTodo, nil, domain.UnitHours),
	}
	s := rollup.Compute("story", items)
	if s.TotalEffort != 0 {
		t.Fatalf("total = %g", s.TotalEffort)
	}
	if s.CompletionPercent != 50 {
		t.Fatalf("percent = %d, want 50", s.CompletionPercent)
	}
}

func TestComputeFallbackIgnoresDoneNonLeaves(t *testing.T) {
	// a done feature above a done effortless story must not push the
	// fallback percentage past 100
	items := []domain.WorkItem{
		item("epic", nil, domain.StatusInProgress, nil, domain.UnitStoryPoints),
		item("feature", ptr("epic"), domain.StatusDone, nil, domain.UnitStoryPoints),
		item("story", ptr("feature"), domain.StatusDone, nil, domain.UnitStoryPoints),
	}
	s := rollup.Compute("epic", items)
	if s.DoneCount != 2 || s.LeafCount != 1 {
		t.Fatalf("counts = %d done, %d leaves", s.DoneCount, s.LeafCount)
	}
	if s.CompletionPercent != 100 {
		t.Fatalf("percent = %d, want 100", s.CompletionPercent)
	}
}

func TestComputeNonLeafEffortIgnored(t *testing.T) {
	// the parent's own estimate is ignored once it has children
	items := []domain.WorkItem{
		item("story", nil, domain.StatusInProgress, ptr(13.0), domain.UnitStoryPoints),
		item("t1", ptr("story"), domain.StatusDone, ptr(2.0), domain.UnitStoryPoints),
	}
	s := rollup.Compute("story", items)
	if s.TotalEffort != 2 || s.CompletionPercent != 100 {
		t.Fatalf("total = %g, percent = %d", s.TotalEffort, s.CompletionPercent)
	}
}

func TestComputeLeafRoot(t *testing.T) {
	done := []domain.WorkItem{item("t", nil, domain.StatusDone, nil, domain.UnitHours)}
	s := rollup.Compute("t", done)
	if s.LeafCount != 1 || s.DoneCount != 1 || s.CompletionPercent != 100 {
		t.Fatalf("leaf root: %+v", s)
	}

	open := []domain.WorkItem{item("t", nil, domain.StatusBacklog, nil, domain.UnitHours)}
	s = rollup.Compute("t", open)
	if s.CompletionPercent != 0 {
		t.Fatalf("open leaf percent = %d", s.CompletionPercent)
	}
}

func TestComputeMixedUnits(t *testing.T) {
	items := []domain.WorkItem{
		item("story", nil, domain.StatusInProgress, nil, domain.UnitStoryPoints),
		item("t1", ptr("story"), domain.StatusDone, ptr(5.0), domain.UnitStoryPoints),
		item("t2", ptr("story"), domain.StatusTodo, ptr(4.0), domain.UnitHours),
	}
	s := rollup.Compute("story", items)
	if s.StoryPoints.Total != 5 || s.StoryPoints.Completed != 5 {
		t.Fatalf("story points = %+v", s.StoryPoints)
	}
	if s.Hours.Total != 4 || s.Hours.Completed != 0 {
		t.Fatalf("hours = %+v", s.Hours)
	}
	// the numeric blend still sums both units
	if s.TotalEffort != 9 {
		t.Fatalf("total = %g", s.TotalEffort)
	}
}

func TestComputeIgnoresForeignItems(t *testing.T) {
	items := []domain.WorkItem{
		item("story", nil, domain.StatusInProgress, nil, domain.UnitStoryPoints),
		item("t1", ptr("story"), domain.StatusDone, ptr(1.0), domain.UnitStoryPoints),
		item("other", nil, domain.StatusDone, ptr(99.0), domain.UnitStoryPoints),
	}
	s := rollup.Compute("story", items)
	if s.TotalEffort != 1 {
		t.Fatalf("foreign item counted: %+v", s)
	}
}

func TestComputeUnknownRoot(t *testing.T) {
	s := rollup.Compute("missing", nil)
	if s.LeafCount != 0 || s.CompletionPercent != 0 {
		t.Fatalf("unknown root: %+v", s)
	}
}
