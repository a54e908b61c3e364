package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sprintline/internal/config"
	"sprintline/internal/domain"
	"sprintline/internal/history"
	"sprintline/internal/repo"
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	History history.Writer
	Config  *config.Config
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		History: history.Writer{DB: db},
		Config:  cfg,
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// history returns the transition writer pinned to the engine clock.
func (e Engine) history() history.Writer {
	w := e.History
	if w.Now == nil {
		w.Now = e.Now
	}
	return w
}

func (e Engine) nowStamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// wrap translates repo-level errors into the typed taxonomy; typed
// errors pass through untouched.
func wrap(err error, what, id string) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	if errors.Is(err, repo.ErrNotFound) {
		return notFoundErr(what, id)
	}
	return &Error{Kind: KindInternal, Message: err.Error()}
}

// --- Projects ---

type ProjectCreateOptions struct {
	ID           string
	Name         string
	Status       string
	Priority     string
	Phase        string
	Size         string
	ManagerID    *string
	SponsorID    *string
	BusinessUnit string
	StartDate    *string
	EndDate      *string
	Budget       *float64
}

func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if opts.Name == "" {
		return domain.Project{}, fieldErr("name", "name is required")
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Status == "" {
		opts.Status = "active"
	}
	if opts.Priority == "" {
		opts.Priority = "medium"
	}
	now := e.nowStamp()
	p := domain.Project{
		ID:           opts.ID,
		Name:         opts.Name,
		Status:       opts.Status,
		Priority:     opts.Priority,
		Phase:        opts.Phase,
		Size:         opts.Size,
		ManagerID:    opts.ManagerID,
		SponsorID:    opts.SponsorID,
		BusinessUnit: opts.BusinessUnit,
		StartDate:    opts.StartDate,
		EndDate:      opts.EndDate,
		Budget:       opts.Budget,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, wrap(err, "project", p.ID)
	}
	defer tx.Rollback()
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return p, wrap(fmt.Errorf("insert project: %w", err), "project", p.ID)
	}
	if err := e.Repo.UpsertProjectConfigTx(ctx, tx, p.ID, config.Default(p.ID)); err != nil {
		return p, wrap(fmt.Errorf("insert project config: %w", err), "project", p.ID)
	}
	if err := tx.Commit(); err != nil {
		return p, wrap(err, "project", p.ID)
	}
	return p, nil
}

type ProjectUpdateOptions struct {
	ID           string
	Name         *string
	Status       *string
	Priority     *string
	Phase        *string
	Size         *string
	ManagerID    *string
	SponsorID    *string
	BusinessUnit *string
	StartDate    *string
	EndDate      *string
	Budget       *float64
	ActualCost   *float64
}

func (e Engine) UpdateProject(ctx context.Context, opts ProjectUpdateOptions) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, opts.ID)
	if err != nil {
		return p, wrap(err, "project", opts.ID)
	}
	if opts.Name != nil {
		if *opts.Name == "" {
			return p, fieldErr("name", "name cannot be empty")
		}
		p.Name = *opts.Name
	}
	if opts.Status != nil {
		p.Status = *opts.Status
	}
	if opts.Priority != nil {
		p.Priority = *opts.Priority
	}
	if opts.Phase != nil {
		p.Phase = *opts.Phase
	}
	if opts.Size != nil {
		p.Size = *opts.Size
	}
	if opts.ManagerID != nil {
		p.ManagerID = optionalString(*opts.ManagerID)
	}
	if opts.SponsorID != nil {
		p.SponsorID = optionalString(*opts.SponsorID)
	}
	if opts.BusinessUnit != nil {
		p.BusinessUnit = *opts.BusinessUnit
	}
	if opts.StartDate != nil {
		p.StartDate = optionalString(*opts.StartDate)
	}
	if opts.EndDate != nil {
		p.EndDate = optionalString(*opts.EndDate)
	}
	if opts.Budget != nil {
		p.Budget = opts.Budget
	}
	if opts.ActualCost != nil {
		p.ActualCost = opts.ActualCost
	}
	p.UpdatedAt = e.nowStamp()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, wrap(err, "project", p.ID)
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateProject(ctx, tx, p); err != nil {
		return p, wrap(err, "project", p.ID)
	}
	if err := tx.Commit(); err != nil {
		return p, wrap(err, "project", p.ID)
	}
	return p, nil
}

func (e Engine) DeleteProject(ctx context.Context, id string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return wrap(err, "project", id)
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteProject(ctx, tx, id); err != nil {
		return wrap(err, "project", id)
	}
	return wrap(tx.Commit(), "project", id)
}

// --- Work items ---

type WorkItemCreateOptions struct {
	ID                 string
	ProjectID          string
	ParentID           *string
	Type               string
	Title              string
	Description        string
	AcceptanceCriteria string
	Status             string
	Priority           string
	EffortEstimate     *float64
	EffortUnit         string
	AssigneeID         *string
	SprintID           *string
}

// CreateWorkItem inserts a new item after enforcing the hierarchy
// rules: epics are roots, every other type hangs under its immediate
// predecessor, tasks may also nest under tasks, and parents never
// cross project boundaries.
func (e Engine) CreateWorkItem(ctx context.Context, opts WorkItemCreateOptions) (domain.WorkItem, error) {
	var w domain.WorkItem
	if opts.Title == "" {
		return w, fieldErr("title", "title is required")
	}
	if !validItemType(opts.Type) {
		return w, fieldErr("type", fmt.Sprintf("unknown work item type %q", opts.Type))
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return w, wrap(err, "project", opts.ProjectID)
	}
	if err := e.ensureParent(ctx, opts.Type, opts.ProjectID, opts.ParentID); err != nil {
		return w, err
	}
	if opts.Type == domain.TypeUserStory && opts.AcceptanceCriteria == "" {
		if e.Config.AcceptanceCriteriaPolicy() == config.PolicyError {
			return w, fieldErr("acceptance_criteria", "user stories require acceptance criteria")
		}
	}
	if opts.SprintID != nil {
		if err := e.ensureSprintEligible(ctx, opts.Type, opts.ProjectID, *opts.SprintID); err != nil {
			return w, err
		}
	}
	if opts.Status == "" {
		opts.Status = domain.StatusBacklog
	}
	if !validItemStatus(opts.Status) {
		return w, fieldErr("status", fmt.Sprintf("unknown status %q", opts.Status))
	}
	if opts.Priority == "" {
		opts.Priority = "medium"
	}
	if opts.EffortUnit == "" {
		opts.EffortUnit = e.Config.EffortUnitFor(opts.Type)
	}
	if opts.EffortUnit != domain.UnitStoryPoints && opts.EffortUnit != domain.UnitHours {
		return w, fieldErr("effort_unit", fmt.Sprintf("unknown effort unit %q", opts.EffortUnit))
	}
	if opts.EffortEstimate != nil && *opts.EffortEstimate < 0 {
		return w, fieldErr("effort_estimate", "effort estimate cannot be negative")
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	now := e.nowStamp()
	w = domain.WorkItem{
		ID:                 opts.ID,
		ProjectID:          opts.ProjectID,
		ParentID:           opts.ParentID,
		Type:               opts.Type,
		Title:              opts.Title,
		Description:        opts.Description,
		AcceptanceCriteria: opts.AcceptanceCriteria,
		Status:             opts.Status,
		Priority:           opts.Priority,
		EffortEstimate:     opts.EffortEstimate,
		EffortUnit:         opts.EffortUnit,
		AssigneeID:         opts.AssigneeID,
		SprintID:           opts.SprintID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return w, wrap(err, "work item", w.ID)
	}
	defer tx.Rollback()
	if err := e.Repo.InsertWorkItem(ctx, tx, w); err != nil {
		return w, wrap(fmt.Errorf("insert work item: %w", err), "work item", w.ID)
	}
	if err := tx.Commit(); err != nil {
		return w, wrap(err, "work item", w.ID)
	}
	return w, nil
}

func validItemType(t string) bool {
	switch t {
	case domain.TypeEpic, domain.TypeFeature, domain.TypeUserStory, domain.TypeTask:
		return true
	}
	return false
}

func validItemStatus(s string) bool {
	switch s {
	case domain.StatusBacklog, domain.StatusTodo, domain.StatusInProgress,
		domain.StatusInReview, domain.StatusDone, domain.StatusCancelled:
		return true
	}
	return false
}

// expectedParentType maps a child type to the type its parent must have.
func expectedParentType(childType string) string {
	switch childType {
	case domain.TypeFeature:
		return domain.TypeEpic
	case domain.TypeUserStory:
		return domain.TypeFeature
	case domain.TypeTask:
		return domain.TypeUserStory
	}
	return ""
}

func (e Engine) ensureParent(ctx context.Context, childType, projectID string, parentID *string) error {
	if childType == domain.TypeEpic {
		if parentID != nil {
			return invalidParentErr("epics cannot have a parent", map[string]string{"parent_id": "must be null for epics"})
		}
		return nil
	}
	if parentID == nil {
		return invalidParentErr(fmt.Sprintf("%s requires a parent", childType),
			map[string]string{"parent_id": "is required for non-epic items"})
	}
	parent, err := e.Repo.GetWorkItem(ctx, *parentID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return invalidParentErr("parent not found", map[string]string{"parent_id": fmt.Sprintf("work item %s not found", *parentID)})
		}
		return wrap(err, "work item", *parentID)
	}
	if parent.ProjectID != projectID {
		return invalidParentErr("parent belongs to a different project",
			map[string]string{"parent_id": "parent must be in the same project"})
	}
	want := expectedParentType(childType)
	if parent.Type != want && !(childType == domain.TypeTask && parent.Type == domain.TypeTask) {
		return invalidParentErr(
			fmt.Sprintf("a %s cannot be the parent of a %s", parent.Type, childType),
			map[string]string{"parent_id": fmt.Sprintf("parent must be a %s", want)})
	}
	return nil
}

func (e Engine) ensureSprintEligible(ctx context.Context, itemType, projectID, sprintID string) error {
	if itemType != domain.TypeUserStory && itemType != domain.TypeTask {
		return fieldErr("sprint_id", "only user stories and tasks can join a sprint")
	}
	s, err := e.Repo.GetSprint(ctx, sprintID)
	if err != nil {
		return wrap(err, "sprint", sprintID)
	}
	if s.ProjectID != projectID {
		return fieldErr("sprint_id", "sprint belongs to a different project")
	}
	return nil
}

type WorkItemUpdateOptions struct {
	ID                 string
	Title              *string
	Description        *string
	AcceptanceCriteria *string
	Status             *string
	Priority           *string
	EffortEstimate     *float64
	EffortUnit         *string
	AssigneeID         *string
	SetParent          *string
	SetSprint          *string
	// ExpectedUpdatedAt is the updated_at the caller last saw; empty
	// skips the stale-write check.
	ExpectedUpdatedAt string
}

func (e Engine) UpdateWorkItem(ctx context.Context, opts WorkItemUpdateOptions) (domain.WorkItem, error) {
	w, err := e.Repo.GetWorkItem(ctx, opts.ID)
	if err != nil {
		return w, wrap(err, "work item", opts.ID)
	}
	if opts.ExpectedUpdatedAt != "" && opts.ExpectedUpdatedAt != w.UpdatedAt {
		return w, staleWriteErr("work item", w.ID)
	}
	original := w
	if opts.Title != nil {
		if *opts.Title == "" {
			return w, fieldErr("title", "title cannot be empty")
		}
		w.Title = *opts.Title
	}
	if opts.Description != nil {
		w.Description = *opts.Description
	}
	if opts.AcceptanceCriteria != nil {
		w.AcceptanceCriteria = *opts.AcceptanceCriteria
	}
	if opts.Priority != nil {
		w.Priority = *opts.Priority
	}
	if opts.EffortEstimate != nil {
		if *opts.EffortEstimate < 0 {
			return w, fieldErr("effort_estimate", "effort estimate cannot be negative")
		}
		w.EffortEstimate = opts.EffortEstimate
	}
	if opts.EffortUnit != nil {
		if *opts.EffortUnit != domain.UnitStoryPoints && *opts.EffortUnit != domain.UnitHours {
			return w, fieldErr("effort_unit", fmt.Sprintf("unknown effort unit %q", *opts.EffortUnit))
		}
		w.EffortUnit = *opts.EffortUnit
	}
	if opts.AssigneeID != nil {
		w.AssigneeID = optionalString(*opts.AssigneeID)
	}
	if opts.SetParent != nil {
		newParent := optionalString(*opts.SetParent)
		if err := e.ensureParent(ctx, w.Type, w.ProjectID, newParent); err != nil {
			return w, err
		}
		if newParent != nil {
			if err := e.ensureNoCycle(ctx, *newParent, w.ID); err != nil {
				return w, err
			}
		}
		w.ParentID = newParent
	}
	if opts.SetSprint != nil {
		if *opts.SetSprint == "" {
			w.SprintID = nil
		} else {
			if err := e.ensureSprintEligible(ctx, w.Type, w.ProjectID, *opts.SetSprint); err != nil {
				return w, err
			}
			if w.SprintID != nil && *w.SprintID != *opts.SetSprint {
				return w, &Error{
					Kind:    KindConflictingMembership,
					Message: fmt.Sprintf("work item %s already belongs to sprint %s", w.ID, *w.SprintID),
				}
			}
			w.SprintID = opts.SetSprint
		}
	}
	statusChanged := false
	if opts.Status != nil && *opts.Status != w.Status {
		if !validItemStatus(*opts.Status) {
			return w, fieldErr("status", fmt.Sprintf("unknown status %q", *opts.Status))
		}
		if err := ensureStatusTransition(w.Status, *opts.Status); err != nil {
			return w, err
		}
		w.Status = *opts.Status
		statusChanged = true
	}
	w.UpdatedAt = e.nowStamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return w, wrap(err, "work item", w.ID)
	}
	defer tx.Rollback()
	ok, err := e.Repo.UpdateWorkItem(ctx, tx, w, original.UpdatedAt)
	if err != nil {
		return w, wrap(err, "work item", w.ID)
	}
	if !ok {
		return w, staleWriteErr("work item", w.ID)
	}
	if statusChanged {
		if err := e.history().Append(ctx, tx, w.ProjectID, w.ID, original.Status, w.Status); err != nil {
			return w, wrap(err, "work item", w.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return w, wrap(err, "work item", w.ID)
	}
	return w, nil
}

// SetWorkItemStatus is the board's drag-and-drop entry point. Dropping
// an item onto its current column succeeds without touching the row.
func (e Engine) SetWorkItemStatus(ctx context.Context, id, status string) (domain.WorkItem, error) {
	w, err := e.Repo.GetWorkItem(ctx, id)
	if err != nil {
		return w, wrap(err, "work item", id)
	}
	if !validItemStatus(status) {
		return w, fieldErr("status", fmt.Sprintf("unknown status %q", status))
	}
	if status == w.Status {
		return w, nil
	}
	if err := ensureStatusTransition(w.Status, status); err != nil {
		return w, err
	}
	original := w
	w.Status = status
	w.UpdatedAt = e.nowStamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return w, wrap(err, "work item", w.ID)
	}
	defer tx.Rollback()
	ok, err := e.Repo.UpdateWorkItem(ctx, tx, w, original.UpdatedAt)
	if err != nil {
		return w, wrap(err, "work item", w.ID)
	}
	if !ok {
		return w, staleWriteErr("work item", w.ID)
	}
	if err := e.history().Append(ctx, tx, w.ProjectID, w.ID, original.Status, w.Status); err != nil {
		return w, wrap(err, "work item", w.ID)
	}
	if err := tx.Commit(); err != nil {
		return w, wrap(err, "work item", w.ID)
	}
	return w, nil
}

func (e Engine) ensureNoCycle(ctx context.Context, parentID, childID string) error {
	seen := map[string]bool{childID: true}
	current := parentID
	for current != "" {
		if seen[current] {
			return invalidParentErr("parent chain would form a cycle",
				map[string]string{"parent_id": "item cannot be its own ancestor"})
		}
		seen[current] = true
		item, err := e.Repo.GetWorkItem(ctx, current)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil
			}
			return wrap(err, "work item", current)
		}
		if item.ParentID == nil {
			return nil
		}
		current = *item.ParentID
	}
	return nil
}

// Descendants walks the subtree breadth-first; each level comes back
// in creation order. The root itself is not included.
func (e Engine) Descendants(ctx context.Context, id string) ([]domain.WorkItem, error) {
	if _, err := e.Repo.GetWorkItem(ctx, id); err != nil {
		return nil, wrap(err, "work item", id)
	}
	var out []domain.WorkItem
	queue := []string{id}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		children, err := e.Repo.ListChildren(ctx, current, "")
		if err != nil {
			return nil, wrap(err, "work item", current)
		}
		for _, c := range children {
			out = append(out, c)
			queue = append(queue, c.ID)
		}
	}
	return out, nil
}

// DeleteWorkItem removes the item and its entire subtree in one
// transaction.
func (e Engine) DeleteWorkItem(ctx context.Context, id string) (int, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrap(err, "work item", id)
	}
	defer tx.Rollback()
	w, err := e.Repo.GetWorkItemTx(ctx, tx, id)
	if err != nil {
		return 0, wrap(err, "work item", id)
	}
	// Collect the subtree inside the tx so concurrent inserts cannot
	// orphan a child between the walk and the delete.
	ids := []string{w.ID}
	queue := []string{w.ID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		children, err := e.Repo.ListChildrenTx(ctx, tx, current)
		if err != nil {
			return 0, wrap(err, "work item", current)
		}
		for _, c := range children {
			ids = append(ids, c.ID)
			queue = append(queue, c.ID)
		}
	}
	// Children first so the parent_id foreign key never dangles.
	for i := len(ids) - 1; i >= 0; i-- {
		if err := e.Repo.DeleteWorkItems(ctx, tx, []string{ids[i]}); err != nil {
			return 0, wrap(err, "work item", ids[i])
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, wrap(err, "work item", id)
	}
	return len(ids), nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
