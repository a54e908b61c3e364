package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"sprintline/internal/config"
	"sprintline/internal/db"
	"sprintline/internal/domain"
	"sprintline/internal/engine"
	"sprintline/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	if _, err := db.EnsureWorkspace(dir); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("proj-1")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.CreateProject(ctx, engine.ProjectCreateOptions{ID: "proj-1", Name: "Test"}); err != nil {
		t.Fatalf("create project: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func mustCreate(t *testing.T, env testEnv, opts engine.WorkItemCreateOptions) domain.WorkItem {
	t.Helper()
	opts.ProjectID = "proj-1"
	w, err := env.Engine.CreateWorkItem(env.Ctx, opts)
	if err != nil {
		t.Fatalf("create %s %q: %v", opts.Type, opts.Title, err)
	}
	return w
}

// buildChain creates epic > feature > user story > task and returns them.
func buildChain(t *testing.T, env testEnv) (domain.WorkItem, domain.WorkItem, domain.WorkItem, domain.WorkItem) {
	t.Helper()
	epic := mustCreate(t, env, engine.WorkItemCreateOptions{Type: domain.TypeEpic, Title: "Epic"})
	feature := mustCreate(t, env, engine.WorkItemCreateOptions{Type: domain.TypeFeature, Title: "Feature", ParentID: &epic.ID})
	story := mustCreate(t, env, engine.WorkItemCreateOptions{Type: domain.TypeUserStory, Title: "Story", ParentID: &feature.ID})
	task := mustCreate(t, env, engine.WorkItemCreateOptions{Type: domain.TypeTask, Title: "Task", ParentID: &story.ID})
	return epic, feature, story, task
}

func kindOf(t *testing.T, err error) string {
	t.Helper()
	var engErr *engine.Error
	if !errors.As(err, &engErr) {
		t.Fatalf("expected engine error, got %v", err)
	}
	return engErr.Kind
}

func TestHierarchyTyping(t *testing.T) {
	env := newTestEnv(t)
	epic, _, story, task := buildChain(t, env)

	// tasks may nest under tasks
	sub := mustCreate(t, env, engine.WorkItemCreateOptions{Type: domain.TypeTask, Title: "Subtask", ParentID: &task.ID})
	if sub.ParentID == nil || *sub.ParentID != task.ID {
		t.Fatalf("subtask parent = %v", sub.ParentID)
	}

	// a user story directly under an epic is rejected
	_, err := env.Engine.CreateWorkItem(env.Ctx, engine.WorkItemCreateOptions{
		ProjectID: "proj-1", Type: domain.TypeUserStory, Title: "bad", ParentID: &epic.ID,
	})
	if kindOf(t, err) != engine.KindInvalidParent {
		t.Fatalf("expected invalid_parent, got %v", err)
	}

	// epics never take a parent
	_, err = env.Engine.CreateWorkItem(env.Ctx, engine.WorkItemCreateOptions{
		ProjectID: "proj-1", Type: domain.TypeEpic, Title: "bad", ParentID: &story.ID,
	})
	if kindOf(t, err) != engine.KindInvalidParent {
		t.Fatalf("expected invalid_parent, got %v", err)
	}

	// non-epics require a parent
	_, err = env.Engine.CreateWorkItem(env.Ctx, engine.WorkItemCreateOptions{
		ProjectID: "proj-1", Type: domain.TypeFeature, Title: "orphan",
	})
	if kindOf(t, err) != engine.KindInvalidParent {
		t.Fatalf("expected invalid_parent for orphan feature, got %v", err)
	}
}

func TestReparentCycleRejected(t *testing.T) {
	env := newTestEnv(t)
	_, _, _, task := buildChain(t, env)
	child := mustCreate(t, env, engine.WorkItemCreateOptions{Type: domain.TypeTask, Title: "child", ParentID: &task.ID})

	_, err := env.Engine.UpdateWorkItem(env.Ctx, engine.WorkItemUpdateOptions{ID: task.ID, SetParent: &child.ID})
	if err == nil {
		t.Fatalf("expected cycle rejection")
	}
}

func TestStatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	_, _, _, task := buildChain(t, env)

	for _, next := range []string{
		domain.StatusTodo, domain.StatusInProgress, domain.StatusInReview, domain.StatusDone,
	} {
		w, err := env.Engine.SetWorkItemStatus(env.Ctx, task.ID, next)
		if err != nil || w.Status != next {
			t.Fatalf("to %s: %v", next, err)
		}
	}

	// done can be cancelled, and cancelled restores to backlog only
	if _, err := env.Engine.SetWorkItemStatus(env.Ctx, task.ID, domain.StatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := env.Engine.SetWorkItemStatus(env.Ctx, task.ID, domain.StatusDone); err == nil {
		t.Fatalf("cancelled -> done should fail")
	}
	w, err := env.Engine.SetWorkItemStatus(env.Ctx, task.ID, domain.StatusBacklog)
	if err != nil || w.Status != domain.StatusBacklog {
		t.Fatalf("restore: %v", err)
	}
}

func TestBoardSkipRejectedLeavesStatus(t *testing.T) {
	env := newTestEnv(t)
	_, _, _, task := buildChain(t, env)

	_, err := env.Engine.SetWorkItemStatus(env.Ctx, task.ID, domain.StatusInReview)
	if kindOf(t, err) != engine.KindInvalidStatusTransition {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	got, err := env.Engine.Repo.GetWorkItem(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusBacklog {
		t.Fatalf("status changed to %s after rejected move", got.Status)
	}
}

func TestSameStatusIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	_, _, _, task := buildChain(t, env)
	w, err := env.Engine.SetWorkItemStatus(env.Ctx, task.ID, domain.StatusBacklog)
	if err != nil {
		t.Fatalf("no-op move: %v", err)
	}
	if w.UpdatedAt != task.UpdatedAt {
		t.Fatalf("no-op move touched the row")
	}
}

func TestAcceptanceCriteriaPolicy(t *testing.T) {
	env := newTestEnv(t)
	epic := mustCreate(t, env, engine.WorkItemCreateOptions{Type: domain.TypeEpic, Title: "Epic"})
	feature := mustCreate(t, env, engine.WorkItemCreateOptions{Type: domain.TypeFeature, Title: "Feature", ParentID: &epic.ID})

	// default policy is warn: a story without criteria is accepted
	if _, err := env.Engine.CreateWorkItem(env.Ctx, engine.WorkItemCreateOptions{
		ProjectID: "proj-1", Type: domain.TypeUserStory, Title: "no AC", ParentID: &feature.ID,
	}); err != nil {
		t.Fatalf("warn policy should accept: %v", err)
	}

	env.Engine.Config.Validation.AcceptanceCriteria = config.PolicyError
	_, err := env.Engine.CreateWorkItem(env.Ctx, engine.WorkItemCreateOptions{
		ProjectID: "proj-1", Type: domain.TypeUserStory, Title: "still no AC", ParentID: &feature.ID,
	})
	if kindOf(t, err) != engine.KindValidation {
		t.Fatalf("error policy should reject: %v", err)
	}
	if _, err := env.Engine.CreateWorkItem(env.Ctx, engine.WorkItemCreateOptions{
		ProjectID: "proj-1", Type: domain.TypeUserStory, Title: "with AC", ParentID: &feature.ID,
		AcceptanceCriteria: "Given X when Y then Z",
	}); err != nil {
		t.Fatalf("story with criteria rejected: %v", err)
	}
}

func TestEffortUnitDefaults(t *testing.T) {
	env := newTestEnv(t)
	_, _, story, task := buildChain(t, env)
	if story.EffortUnit != domain.UnitStoryPoints {
		t.Fatalf("story unit = %s", story.EffortUnit)
	}
	if task.EffortUnit != domain.UnitHours {
		t.Fatalf("task unit = %s", task.EffortUnit)
	}
}

func TestStaleWriteRejected(t *testing.T) {
	env := newTestEnv(t)
	_, _, _, task := buildChain(t, env)
	title := "renamed"
	_, err := env.Engine.UpdateWorkItem(env.Ctx, engine.WorkItemUpdateOptions{
		ID: task.ID, Title: &title, ExpectedUpdatedAt: "2001-01-01T00:00:00Z",
	})
	if kindOf(t, err) != engine.KindStaleWrite {
		t.Fatalf("expected stale_write, got %v", err)
	}
	// the matching token passes
	if _, err := env.Engine.UpdateWorkItem(env.Ctx, engine.WorkItemUpdateOptions{
		ID: task.ID, Title: &title, ExpectedUpdatedAt: task.UpdatedAt,
	}); err != nil {
		t.Fatalf("matching token rejected: %v", err)
	}
}

func TestCascadeDelete(t *testing.T) {
	env := newTestEnv(t)
	epic, _, _, task := buildChain(t, env)
	mustCreate(t, env, engine.WorkItemCreateOptions{Type: domain.TypeTask, Title: "sub", ParentID: &task.ID})

	n, err := env.Engine.DeleteWorkItem(env.Ctx, epic.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 5 {
		t.Fatalf("deleted %d items, want 5", n)
	}
	if _, err := env.Engine.Repo.GetWorkItem(env.Ctx, task.ID); err == nil {
		t.Fatalf("descendant survived the delete")
	}
}

func TestSprintLifecycle(t *testing.T) {
	env := newTestEnv(t)
	s, err := env.Engine.CreateSprint(env.Ctx, engine.SprintCreateOptions{ProjectID: "proj-1", Name: "Sprint 1"})
	if err != nil {
		t.Fatalf("create sprint: %v", err)
	}
	if s.Status != domain.SprintPlanning {
		t.Fatalf("new sprint status = %s", s.Status)
	}
	if s.StartDate != "2025-03-01" || s.EndDate != "2025-03-15" {
		t.Fatalf("default dates = %s..%s", s.StartDate, s.EndDate)
	}

	completed := domain.SprintCompleted
	_, err = env.Engine.UpdateSprint(env.Ctx, engine.SprintUpdateOptions{ID: s.ID, Status: &completed})
	if kindOf(t, err) != engine.KindInvalidSprintTransition {
		t.Fatalf("planning -> completed should fail: %v", err)
	}

	active := domain.SprintActive
	if _, err := env.Engine.UpdateSprint(env.Ctx, engine.SprintUpdateOptions{ID: s.ID, Status: &active}); err != nil {
		t.Fatalf("start sprint: %v", err)
	}
	if _, err := env.Engine.UpdateSprint(env.Ctx, engine.SprintUpdateOptions{ID: s.ID, Status: &completed}); err != nil {
		t.Fatalf("complete sprint: %v", err)
	}
	// a completed sprint can be reopened
	if _, err := env.Engine.UpdateSprint(env.Ctx, engine.SprintUpdateOptions{ID: s.ID, Status: &active}); err != nil {
		t.Fatalf("reopen sprint: %v", err)
	}
}

func TestSprintDatesValidated(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateSprint(env.Ctx, engine.SprintCreateOptions{
		ProjectID: "proj-1", Name: "bad", StartDate: "2025-03-10", EndDate: "2025-03-01",
	})
	if kindOf(t, err) != engine.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBacklogMembership(t *testing.T) {
	env := newTestEnv(t)
	epic, _, story, task := buildChain(t, env)
	s, err := env.Engine.CreateSprint(env.Ctx, engine.SprintCreateOptions{ProjectID: "proj-1", Name: "Sprint 1"})
	if err != nil {
		t.Fatal(err)
	}

	items, err := env.Engine.AddToBacklog(env.Ctx, s.ID, []string{story.ID, task.ID})
	if err != nil {
		t.Fatalf("add to backlog: %v", err)
	}
	for _, w := range items {
		if w.SprintID == nil || *w.SprintID != s.ID {
			t.Fatalf("item %s not assigned", w.ID)
		}
	}

	// epics are not sprint material, and a bad batch assigns nothing
	s2, err := env.Engine.CreateSprint(env.Ctx, engine.SprintCreateOptions{ProjectID: "proj-1", Name: "Sprint 2"})
	if err != nil {
		t.Fatal(err)
	}
	extra := mustCreate(t, env, engine.WorkItemCreateOptions{Type: domain.TypeTask, Title: "extra", ParentID: &story.ID})
	if _, err := env.Engine.AddToBacklog(env.Ctx, s2.ID, []string{extra.ID, epic.ID}); err == nil {
		t.Fatalf("expected rejection of epic membership")
	}
	got, err := env.Engine.Repo.GetWorkItem(env.Ctx, extra.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.SprintID != nil {
		t.Fatalf("partial batch was applied")
	}

	// an item in one sprint cannot join another
	_, err = env.Engine.AddToBacklog(env.Ctx, s2.ID, []string{task.ID})
	if kindOf(t, err) != engine.KindConflictingMembership {
		t.Fatalf("expected conflicting_membership, got %v", err)
	}

	// removal clears the assignment
	got, err = env.Engine.RemoveFromBacklog(env.Ctx, s.ID, task.ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got.SprintID != nil {
		t.Fatalf("sprint id survived removal")
	}
}

func TestDeleteSprintUnassignsMembers(t *testing.T) {
	env := newTestEnv(t)
	_, _, story, task := buildChain(t, env)
	s, err := env.Engine.CreateSprint(env.Ctx, engine.SprintCreateOptions{ProjectID: "proj-1", Name: "Sprint 1"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddToBacklog(env.Ctx, s.ID, []string{story.ID, task.ID}); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteSprint(env.Ctx, s.ID); err != nil {
		t.Fatalf("delete sprint: %v", err)
	}
	for _, id := range []string{story.ID, task.ID} {
		got, err := env.Engine.Repo.GetWorkItem(env.Ctx, id)
		if err != nil {
			t.Fatalf("member deleted with sprint: %v", err)
		}
		if got.SprintID != nil {
			t.Fatalf("item %s still assigned to deleted sprint", id)
		}
	}
}

func TestRetrospectiveUpsert(t *testing.T) {
	env := newTestEnv(t)
	s, err := env.Engine.CreateSprint(env.Ctx, engine.SprintCreateOptions{ProjectID: "proj-1", Name: "Sprint 1"})
	if err != nil {
		t.Fatal(err)
	}
	sentiment := "positive"
	rating := 4
	r, err := env.Engine.UpsertRetrospective(env.Ctx, engine.RetrospectiveOptions{
		SprintID:     s.ID,
		WhatWentWell: "shipped everything",
		ActionItems: []domain.ActionItem{
			{Item: "write more tests"},
			{Item: "shorter standups", Status: "in_progress"},
		},
		TeamSentiment: &sentiment,
		SprintRating:  &rating,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if r.RetrospectiveDate != "2025-03-01" {
		t.Fatalf("date defaulted to %s", r.RetrospectiveDate)
	}
	if len(r.ActionItems) != 2 || r.ActionItems[0].Item != "write more tests" {
		t.Fatalf("action items = %+v", r.ActionItems)
	}
	if r.ActionItems[0].Status != "pending" {
		t.Fatalf("missing status not defaulted: %+v", r.ActionItems[0])
	}

	// replacing keeps the identity and swaps the content wholesale
	r2, err := env.Engine.UpsertRetrospective(env.Ctx, engine.RetrospectiveOptions{
		SprintID:            s.ID,
		WhatCouldBeImproved: "estimation",
		ActionItems:         []domain.ActionItem{{Item: "re-estimate epics"}},
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if r2.ID != r.ID {
		t.Fatalf("replacement changed id %s -> %s", r.ID, r2.ID)
	}
	if len(r2.ActionItems) != 1 {
		t.Fatalf("action items not replaced: %+v", r2.ActionItems)
	}

	badRating := 6
	_, err = env.Engine.UpsertRetrospective(env.Ctx, engine.RetrospectiveOptions{SprintID: s.ID, SprintRating: &badRating})
	if kindOf(t, err) != engine.KindValidation {
		t.Fatalf("rating 6 accepted: %v", err)
	}

	if err := env.Engine.DeleteRetrospective(env.Ctx, s.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.GetRetrospective(env.Ctx, s.ID); err == nil {
		t.Fatalf("retrospective survived delete")
	}
}

func TestSprintMetrics(t *testing.T) {
	env := newTestEnv(t)
	_, _, story, task := buildChain(t, env)
	five, three := 5.0, 3.0
	if _, err := env.Engine.UpdateWorkItem(env.Ctx, engine.WorkItemUpdateOptions{ID: story.ID, EffortEstimate: &five}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpdateWorkItem(env.Ctx, engine.WorkItemUpdateOptions{ID: task.ID, EffortEstimate: &three}); err != nil {
		t.Fatal(err)
	}
	s, err := env.Engine.CreateSprint(env.Ctx, engine.SprintCreateOptions{ProjectID: "proj-1", Name: "Sprint 1"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddToBacklog(env.Ctx, s.ID, []string{story.ID, task.ID}); err != nil {
		t.Fatal(err)
	}
	for _, next := range []string{domain.StatusTodo, domain.StatusInProgress, domain.StatusInReview, domain.StatusDone} {
		if _, err := env.Engine.SetWorkItemStatus(env.Ctx, story.ID, next); err != nil {
			t.Fatal(err)
		}
	}

	m, err := env.Engine.SprintMetrics(env.Ctx, s.ID)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if m.TotalItems != 2 || m.CompletedItems != 1 {
		t.Fatalf("counts = %d/%d", m.CompletedItems, m.TotalItems)
	}
	if m.ProgressPercent != 50 {
		t.Fatalf("progress = %d", m.ProgressPercent)
	}
	// only story points count toward velocity; the task is in hours
	if m.ActualVelocity != 5 {
		t.Fatalf("actual velocity = %g", m.ActualVelocity)
	}
	// the default dates run 2025-03-01..2025-03-15, two weeks out
	if m.DaysRemaining != 14 {
		t.Fatalf("days remaining = %d, want 14", m.DaysRemaining)
	}
}

func TestSprintStageReference(t *testing.T) {
	env := newTestEnv(t)
	stage := "SB-2"
	s, err := env.Engine.CreateSprint(env.Ctx, engine.SprintCreateOptions{
		ProjectID: "proj-1",
		Name:      "Sprint 1",
		StageID:   &stage,
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := env.Engine.Repo.GetSprint(env.Ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.StageID == nil || *got.StageID != "SB-2" {
		t.Fatalf("stage = %v, want SB-2", got.StageID)
	}

	blank := ""
	if _, err := env.Engine.UpdateSprint(env.Ctx, engine.SprintUpdateOptions{ID: s.ID, StageID: &blank}); err != nil {
		t.Fatal(err)
	}
	got, err = env.Engine.Repo.GetSprint(env.Ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.StageID != nil {
		t.Fatalf("stage = %q, want cleared", *got.StageID)
	}
}

func TestSprintMetricsOverdue(t *testing.T) {
	env := newTestEnv(t)
	s, err := env.Engine.CreateSprint(env.Ctx, engine.SprintCreateOptions{
		ProjectID: "proj-1",
		Name:      "Sprint 0",
		StartDate: "2025-02-10",
		EndDate:   "2025-02-24",
	})
	if err != nil {
		t.Fatal(err)
	}
	// clock sits at 2025-03-01, five days past the end date
	m, err := env.Engine.SprintMetrics(env.Ctx, s.ID)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if m.DaysRemaining != -5 {
		t.Fatalf("days remaining = %d, want -5", m.DaysRemaining)
	}
}
