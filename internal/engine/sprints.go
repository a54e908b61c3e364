package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sprintline/internal/domain"
	"sprintline/internal/repo"
)

const dateLayout = "2006-01-02"

type SprintCreateOptions struct {
	ID              string
	ProjectID       string
	Name            string
	Goal            string
	StageID         *string
	StartDate       string
	EndDate         string
	PlannedVelocity *float64
}

// CreateSprint inserts a sprint in planning. Missing dates fall back to
// today and today plus the configured sprint length.
func (e Engine) CreateSprint(ctx context.Context, opts SprintCreateOptions) (domain.Sprint, error) {
	var s domain.Sprint
	if opts.Name == "" {
		return s, fieldErr("name", "name is required")
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return s, wrap(err, "project", opts.ProjectID)
	}
	if opts.StartDate == "" {
		opts.StartDate = e.now().UTC().Format(dateLayout)
	}
	start, err := time.Parse(dateLayout, opts.StartDate)
	if err != nil {
		return s, fieldErr("start_date", "start date must be YYYY-MM-DD")
	}
	if opts.EndDate == "" {
		opts.EndDate = start.AddDate(0, 0, e.Config.SprintLengthDays()).Format(dateLayout)
	}
	end, err := time.Parse(dateLayout, opts.EndDate)
	if err != nil {
		return s, fieldErr("end_date", "end date must be YYYY-MM-DD")
	}
	if end.Before(start) {
		return s, fieldErr("end_date", "end date must not precede start date")
	}
	planned := e.Config.Sprints.DefaultPlannedVelocity
	if opts.PlannedVelocity != nil {
		if *opts.PlannedVelocity < 0 {
			return s, fieldErr("planned_velocity", "planned velocity cannot be negative")
		}
		planned = *opts.PlannedVelocity
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	now := e.nowStamp()
	s = domain.Sprint{
		ID:              opts.ID,
		ProjectID:       opts.ProjectID,
		Name:            opts.Name,
		Goal:            opts.Goal,
		StageID:         opts.StageID,
		StartDate:       opts.StartDate,
		EndDate:         opts.EndDate,
		Status:          domain.SprintPlanning,
		PlannedVelocity: planned,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return s, wrap(err, "sprint", s.ID)
	}
	defer tx.Rollback()
	if err := e.Repo.InsertSprint(ctx, tx, s); err != nil {
		return s, wrap(fmt.Errorf("insert sprint: %w", err), "sprint", s.ID)
	}
	if err := tx.Commit(); err != nil {
		return s, wrap(err, "sprint", s.ID)
	}
	return s, nil
}

type SprintUpdateOptions struct {
	ID              string
	Name            *string
	Goal            *string
	StageID         *string
	StartDate       *string
	EndDate         *string
	Status          *string
	PlannedVelocity *float64
	// ExpectedUpdatedAt guards against concurrent edits; empty skips
	// the check.
	ExpectedUpdatedAt string
}

func (e Engine) UpdateSprint(ctx context.Context, opts SprintUpdateOptions) (domain.Sprint, error) {
	s, err := e.Repo.GetSprint(ctx, opts.ID)
	if err != nil {
		return s, wrap(err, "sprint", opts.ID)
	}
	if opts.ExpectedUpdatedAt != "" && opts.ExpectedUpdatedAt != s.UpdatedAt {
		return s, staleWriteErr("sprint", s.ID)
	}
	if opts.Name != nil {
		if *opts.Name == "" {
			return s, fieldErr("name", "name cannot be empty")
		}
		s.Name = *opts.Name
	}
	if opts.Goal != nil {
		s.Goal = *opts.Goal
	}
	if opts.StageID != nil {
		// Empty string clears the stage reference.
		if *opts.StageID == "" {
			s.StageID = nil
		} else {
			s.StageID = opts.StageID
		}
	}
	if opts.StartDate != nil {
		s.StartDate = *opts.StartDate
	}
	if opts.EndDate != nil {
		s.EndDate = *opts.EndDate
	}
	start, err := time.Parse(dateLayout, s.StartDate)
	if err != nil {
		return s, fieldErr("start_date", "start date must be YYYY-MM-DD")
	}
	end, err := time.Parse(dateLayout, s.EndDate)
	if err != nil {
		return s, fieldErr("end_date", "end date must be YYYY-MM-DD")
	}
	if end.Before(start) {
		return s, fieldErr("end_date", "end date must not precede start date")
	}
	if opts.PlannedVelocity != nil {
		if *opts.PlannedVelocity < 0 {
			return s, fieldErr("planned_velocity", "planned velocity cannot be negative")
		}
		s.PlannedVelocity = *opts.PlannedVelocity
	}
	if opts.Status != nil && *opts.Status != s.Status {
		if !validSprintStatus(*opts.Status) {
			return s, fieldErr("status", fmt.Sprintf("unknown sprint status %q", *opts.Status))
		}
		if err := ensureSprintTransition(s.Status, *opts.Status); err != nil {
			return s, err
		}
		s.Status = *opts.Status
	}
	s.UpdatedAt = e.nowStamp()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return s, wrap(err, "sprint", s.ID)
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateSprint(ctx, tx, s); err != nil {
		return s, wrap(err, "sprint", s.ID)
	}
	if err := tx.Commit(); err != nil {
		return s, wrap(err, "sprint", s.ID)
	}
	return s, nil
}

func validSprintStatus(s string) bool {
	switch s {
	case domain.SprintPlanning, domain.SprintActive, domain.SprintCompleted, domain.SprintCancelled:
		return true
	}
	return false
}

// DeleteSprint unassigns every member, drops the retrospective if one
// exists, and removes the sprint, all in one transaction. Members
// survive with sprint_id null.
func (e Engine) DeleteSprint(ctx context.Context, id string) error {
	if _, err := e.Repo.GetSprint(ctx, id); err != nil {
		return wrap(err, "sprint", id)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return wrap(err, "sprint", id)
	}
	defer tx.Rollback()
	if err := e.Repo.UnassignSprintMembers(ctx, tx, id, e.nowStamp()); err != nil {
		return wrap(err, "sprint", id)
	}
	if err := e.Repo.DeleteRetrospective(ctx, tx, id); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return wrap(err, "sprint", id)
	}
	if err := e.Repo.DeleteSprint(ctx, tx, id); err != nil {
		return wrap(err, "sprint", id)
	}
	return wrap(tx.Commit(), "sprint", id)
}

// AddToBacklog assigns the given items to the sprint. All items must
// pass or none are written; failures come back keyed by item id.
func (e Engine) AddToBacklog(ctx context.Context, sprintID string, itemIDs []string) ([]domain.WorkItem, error) {
	s, err := e.Repo.GetSprint(ctx, sprintID)
	if err != nil {
		return nil, wrap(err, "sprint", sprintID)
	}
	if len(itemIDs) == 0 {
		return nil, fieldErr("item_ids", "at least one item id is required")
	}
	items := make([]domain.WorkItem, 0, len(itemIDs))
	failures := map[string]string{}
	conflict := false
	for _, id := range itemIDs {
		w, err := e.Repo.GetWorkItem(ctx, id)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				failures[id] = "work item not found"
				continue
			}
			return nil, wrap(err, "work item", id)
		}
		if w.Type != domain.TypeUserStory && w.Type != domain.TypeTask {
			failures[id] = fmt.Sprintf("a %s cannot join a sprint", w.Type)
			continue
		}
		if w.ProjectID != s.ProjectID {
			failures[id] = "work item belongs to a different project"
			continue
		}
		if w.SprintID != nil && *w.SprintID != sprintID {
			failures[id] = fmt.Sprintf("already a member of sprint %s", *w.SprintID)
			conflict = true
			continue
		}
		items = append(items, w)
	}
	if len(failures) > 0 {
		kind := KindValidation
		if conflict {
			kind = KindConflictingMembership
		}
		return nil, &Error{Kind: kind, Message: "some items cannot join the sprint", Fields: failures}
	}
	now := e.nowStamp()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrap(err, "sprint", sprintID)
	}
	defer tx.Rollback()
	for i := range items {
		items[i].SprintID = &sprintID
		items[i].UpdatedAt = now
		if err := e.Repo.SetSprintMembership(ctx, tx, items[i].ID, &sprintID, now); err != nil {
			return nil, wrap(err, "work item", items[i].ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, wrap(err, "sprint", sprintID)
	}
	return items, nil
}

// RemoveFromBacklog clears an item's sprint assignment; the item must
// currently be a member of the given sprint.
func (e Engine) RemoveFromBacklog(ctx context.Context, sprintID, itemID string) (domain.WorkItem, error) {
	w, err := e.Repo.GetWorkItem(ctx, itemID)
	if err != nil {
		return w, wrap(err, "work item", itemID)
	}
	if w.SprintID == nil || *w.SprintID != sprintID {
		return w, fieldErr("item_id", fmt.Sprintf("work item %s is not a member of sprint %s", itemID, sprintID))
	}
	now := e.nowStamp()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return w, wrap(err, "sprint", sprintID)
	}
	defer tx.Rollback()
	if err := e.Repo.SetSprintMembership(ctx, tx, itemID, nil, now); err != nil {
		return w, wrap(err, "work item", itemID)
	}
	if err := tx.Commit(); err != nil {
		return w, wrap(err, "sprint", sprintID)
	}
	w.SprintID = nil
	w.UpdatedAt = now
	return w, nil
}

// SprintMetrics are the per-sprint aggregates the sprint list shows.
type SprintMetrics struct {
	TotalItems      int     `json:"total_items"`
	CompletedItems  int     `json:"completed_items"`
	ProgressPercent int     `json:"progress_percent"`
	ActualVelocity  float64 `json:"actual_velocity"`
	DaysRemaining   int     `json:"days_remaining"`
}

func (e Engine) SprintMetrics(ctx context.Context, sprintID string) (SprintMetrics, error) {
	var m SprintMetrics
	s, err := e.Repo.GetSprint(ctx, sprintID)
	if err != nil {
		return m, wrap(err, "sprint", sprintID)
	}
	m.TotalItems, m.CompletedItems, err = e.Repo.CountSprintMembers(ctx, sprintID)
	if err != nil {
		return m, wrap(err, "sprint", sprintID)
	}
	if m.TotalItems > 0 {
		m.ProgressPercent = roundHalfAway(float64(m.CompletedItems) * 100 / float64(m.TotalItems))
	}
	m.ActualVelocity, err = e.Repo.SumDoneStoryPoints(ctx, sprintID)
	if err != nil {
		return m, wrap(err, "sprint", sprintID)
	}
	if end, err := time.Parse(dateLayout, s.EndDate); err == nil {
		today := e.now().UTC().Truncate(24 * time.Hour)
		// Negative once the end date has passed.
		m.DaysRemaining = int(end.Sub(today).Hours() / 24)
	}
	return m, nil
}

func roundHalfAway(v float64) int {
	if v < 0 {
		return -roundHalfAway(-v)
	}
	return int(v + 0.5)
}

// --- Retrospectives ---

type RetrospectiveOptions struct {
	SprintID            string
	RetrospectiveDate   string
	WhatWentWell        string
	WhatCouldBeImproved string
	ActionItems         []domain.ActionItem
	TeamSentiment       *string
	SprintRating        *int
	Notes               string
}

// UpsertRetrospective creates or replaces a sprint's retrospective.
// Action items are replaced wholesale, preserving the given order.
func (e Engine) UpsertRetrospective(ctx context.Context, opts RetrospectiveOptions) (domain.Retrospective, error) {
	var r domain.Retrospective
	if _, err := e.Repo.GetSprint(ctx, opts.SprintID); err != nil {
		return r, wrap(err, "sprint", opts.SprintID)
	}
	if opts.RetrospectiveDate == "" {
		opts.RetrospectiveDate = e.now().UTC().Format(dateLayout)
	}
	if _, err := time.Parse(dateLayout, opts.RetrospectiveDate); err != nil {
		return r, fieldErr("retrospective_date", "retrospective date must be YYYY-MM-DD")
	}
	if opts.SprintRating != nil && (*opts.SprintRating < 1 || *opts.SprintRating > 5) {
		return r, fieldErr("sprint_rating", "sprint rating must be between 1 and 5")
	}
	if opts.TeamSentiment != nil && !validSentiment(*opts.TeamSentiment) {
		return r, fieldErr("team_sentiment", fmt.Sprintf("unknown sentiment %q", *opts.TeamSentiment))
	}
	for i, a := range opts.ActionItems {
		if a.Item == "" {
			return r, fieldErr(fmt.Sprintf("action_items[%d].item", i), "action item text is required")
		}
		switch a.Status {
		case "", "pending", "in_progress", "completed":
		default:
			return r, fieldErr(fmt.Sprintf("action_items[%d].status", i), fmt.Sprintf("unknown action status %q", a.Status))
		}
		if a.Status == "" {
			opts.ActionItems[i].Status = "pending"
		}
	}
	now := e.nowStamp()
	r = domain.Retrospective{
		ID:                  uuid.NewString(),
		SprintID:            opts.SprintID,
		RetrospectiveDate:   opts.RetrospectiveDate,
		WhatWentWell:        opts.WhatWentWell,
		WhatCouldBeImproved: opts.WhatCouldBeImproved,
		ActionItems:         opts.ActionItems,
		TeamSentiment:       opts.TeamSentiment,
		SprintRating:        opts.SprintRating,
		Notes:               opts.Notes,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if r.ActionItems == nil {
		r.ActionItems = []domain.ActionItem{}
	}
	if existing, err := e.Repo.GetRetrospective(ctx, opts.SprintID); err == nil {
		r.ID = existing.ID
		r.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, repo.ErrNotFound) {
		return r, wrap(err, "retrospective", opts.SprintID)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return r, wrap(err, "retrospective", opts.SprintID)
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertRetrospective(ctx, tx, r); err != nil {
		return r, wrap(err, "retrospective", opts.SprintID)
	}
	if err := tx.Commit(); err != nil {
		return r, wrap(err, "retrospective", opts.SprintID)
	}
	return r, nil
}

func validSentiment(s string) bool {
	switch s {
	case "very_positive", "positive", "neutral", "negative", "very_negative":
		return true
	}
	return false
}

func (e Engine) GetRetrospective(ctx context.Context, sprintID string) (domain.Retrospective, error) {
	r, err := e.Repo.GetRetrospective(ctx, sprintID)
	return r, wrap(err, "retrospective", sprintID)
}

func (e Engine) DeleteRetrospective(ctx context.Context, sprintID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return wrap(err, "retrospective", sprintID)
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteRetrospective(ctx, tx, sprintID); err != nil {
		return wrap(err, "retrospective", sprintID)
	}
	return wrap(tx.Commit(), "retrospective", sprintID)
}

// --- Resources ---

type ResourceOptions struct {
	ID                  string
	Name                string
	Email               string
	Role                string
	Status              string
	HourlyRate          *float64
	AvailabilityPercent *int
}

func (e Engine) CreateResource(ctx context.Context, opts ResourceOptions) (domain.Resource, error) {
	var res domain.Resource
	if opts.Name == "" {
		return res, fieldErr("name", "name is required")
	}
	if opts.Email == "" {
		return res, fieldErr("email", "email is required")
	}
	if opts.Status == "" {
		opts.Status = "active"
	}
	if opts.AvailabilityPercent != nil && (*opts.AvailabilityPercent < 0 || *opts.AvailabilityPercent > 100) {
		return res, fieldErr("availability_percent", "availability must be between 0 and 100")
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	now := e.nowStamp()
	res = domain.Resource{
		ID:                  opts.ID,
		Name:                opts.Name,
		Email:               opts.Email,
		Role:                opts.Role,
		Status:              opts.Status,
		HourlyRate:          opts.HourlyRate,
		AvailabilityPercent: opts.AvailabilityPercent,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, wrap(err, "resource", res.ID)
	}
	defer tx.Rollback()
	if err := e.Repo.InsertResource(ctx, tx, res); err != nil {
		return res, wrap(fmt.Errorf("insert resource: %w", err), "resource", res.ID)
	}
	if err := tx.Commit(); err != nil {
		return res, wrap(err, "resource", res.ID)
	}
	return res, nil
}
