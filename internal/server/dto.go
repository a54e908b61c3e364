package server

import (
	"sprintline/internal/domain"
	"sprintline/internal/engine"
	"sprintline/internal/rollup"
)

// Request payloads

type CreateProjectRequest struct {
	ID           *string  `json:"id,omitempty"`
	Name         string   `json:"name"`
	Status       string   `json:"status,omitempty" enum:"planned,active,on_hold,completed,closed"`
	Priority     string   `json:"priority,omitempty" enum:"low,medium,high,critical"`
	Phase        string   `json:"phase,omitempty"`
	Size         string   `json:"size,omitempty"`
	ManagerID    *string  `json:"manager_id,omitempty"`
	SponsorID    *string  `json:"sponsor_id,omitempty"`
	BusinessUnit string   `json:"business_unit,omitempty"`
	StartDate    *string  `json:"start_date,omitempty" format:"date"`
	EndDate      *string  `json:"end_date,omitempty" format:"date"`
	Budget       *float64 `json:"budget,omitempty"`
}

type UpdateProjectRequest struct {
	Name         *string  `json:"name,omitempty"`
	Status       *string  `json:"status,omitempty" enum:"planned,active,on_hold,completed,closed"`
	Priority     *string  `json:"priority,omitempty" enum:"low,medium,high,critical"`
	Phase        *string  `json:"phase,omitempty"`
	Size         *string  `json:"size,omitempty"`
	ManagerID    *string  `json:"manager_id,omitempty"`
	SponsorID    *string  `json:"sponsor_id,omitempty"`
	BusinessUnit *string  `json:"business_unit,omitempty"`
	StartDate    *string  `json:"start_date,omitempty"`
	EndDate      *string  `json:"end_date,omitempty"`
	Budget       *float64 `json:"budget,omitempty"`
	ActualCost   *float64 `json:"actual_cost,omitempty"`
}

type CreateWorkItemRequest struct {
	ID                 *string  `json:"id,omitempty"`
	Type               string   `json:"type" enum:"epic,feature,user_story,task"`
	ParentID           *string  `json:"parent_id,omitempty"`
	Title              string   `json:"title"`
	Description        string   `json:"description,omitempty"`
	AcceptanceCriteria string   `json:"acceptance_criteria,omitempty"`
	Status             string   `json:"status,omitempty" enum:"backlog,todo,in_progress,in_review,done,cancelled"`
	Priority           string   `json:"priority,omitempty" enum:"low,medium,high,critical"`
	EffortEstimate     *float64 `json:"effort_estimate,omitempty"`
	EffortUnit         string   `json:"effort_unit,omitempty" enum:"story_points,hours"`
	AssigneeID         *string  `json:"assignee_id,omitempty"`
	SprintID           *string  `json:"sprint_id,omitempty"`
}

type UpdateWorkItemRequest struct {
	Title              *string  `json:"title,omitempty"`
	Description        *string  `json:"description,omitempty"`
	AcceptanceCriteria *string  `json:"acceptance_criteria,omitempty"`
	Status             *string  `json:"status,omitempty" enum:"backlog,todo,in_progress,in_review,done,cancelled"`
	Priority           *string  `json:"priority,omitempty" enum:"low,medium,high,critical"`
	EffortEstimate     *float64 `json:"effort_estimate,omitempty"`
	EffortUnit         *string  `json:"effort_unit,omitempty" enum:"story_points,hours"`
	AssigneeID         *string  `json:"assignee_id,omitempty"`
	ParentID           *string  `json:"parent_id,omitempty"`
	SprintID           *string  `json:"sprint_id,omitempty"`
	// UpdatedAt is the updated_at the caller last read; mismatches are
	// rejected as stale writes.
	UpdatedAt string `json:"updated_at,omitempty" format:"date-time"`
}

type SetStatusRequest struct {
	Status string `json:"status" enum:"backlog,todo,in_progress,in_review,done,cancelled"`
}

type CreateSprintRequest struct {
	ID              *string  `json:"id,omitempty"`
	Name            string   `json:"name"`
	Goal            string   `json:"goal,omitempty"`
	StageID         *string  `json:"stage_id,omitempty"`
	StartDate       string   `json:"start_date,omitempty" format:"date"`
	EndDate         string   `json:"end_date,omitempty" format:"date"`
	PlannedVelocity *float64 `json:"planned_velocity,omitempty"`
}

type UpdateSprintRequest struct {
	Name            *string  `json:"name,omitempty"`
	Goal            *string  `json:"goal,omitempty"`
	StageID         *string  `json:"stage_id,omitempty"`
	StartDate       *string  `json:"start_date,omitempty"`
	EndDate         *string  `json:"end_date,omitempty"`
	Status          *string  `json:"status,omitempty" enum:"planning,active,completed,cancelled"`
	PlannedVelocity *float64 `json:"planned_velocity,omitempty"`
	UpdatedAt       string   `json:"updated_at,omitempty" format:"date-time"`
}

type BacklogAddRequest struct {
	ItemIDs []string `json:"item_ids" minItems:"1"`
}

type ActionItemRequest struct {
	Item    string  `json:"item"`
	OwnerID *string `json:"owner_id,omitempty"`
	DueDate *string `json:"due_date,omitempty" format:"date"`
	Status  string  `json:"status,omitempty" enum:"pending,in_progress,completed"`
}

type UpsertRetrospectiveRequest struct {
	RetrospectiveDate   string              `json:"retrospective_date,omitempty" format:"date"`
	WhatWentWell        string              `json:"what_went_well,omitempty"`
	WhatCouldBeImproved string              `json:"what_could_be_improved,omitempty"`
	ActionItems         []ActionItemRequest `json:"action_items,omitempty"`
	TeamSentiment       *string             `json:"team_sentiment,omitempty" enum:"very_positive,positive,neutral,negative,very_negative"`
	SprintRating        *int                `json:"sprint_rating,omitempty" minimum:"1" maximum:"5"`
	Notes               string              `json:"notes,omitempty"`
}

type CreateResourceRequest struct {
	ID                  *string  `json:"id,omitempty"`
	Name                string   `json:"name"`
	Email               string   `json:"email" format:"email"`
	Role                string   `json:"role,omitempty"`
	Status              string   `json:"status,omitempty" enum:"active,inactive"`
	HourlyRate          *float64 `json:"hourly_rate,omitempty"`
	AvailabilityPercent *int     `json:"availability_percent,omitempty" minimum:"0" maximum:"100"`
}

// Response payloads

// ListMeta paginates list responses; Total counts all rows matching
// the filter, not just the current page.
type ListMeta struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

type ProjectListResponse struct {
	Items []domain.Project `json:"items"`
	Meta  ListMeta         `json:"meta"`
}

type WorkItemListResponse struct {
	Items []WorkItemView `json:"items"`
	Meta  ListMeta       `json:"meta"`
}

type SprintListResponse struct {
	Items []SprintView `json:"items"`
	Meta  ListMeta     `json:"meta"`
}

// WorkItemView is a work item plus its derived rollup and resolved
// display names.
type WorkItemView struct {
	domain.WorkItem
	Rollup       *rollup.Summary `json:"rollup,omitempty"`
	AssigneeName *string         `json:"assignee_name,omitempty"`
	SprintName   *string         `json:"sprint_name,omitempty"`
	ChildCount   int             `json:"child_count"`
}

// SprintView is a sprint plus its member metrics.
type SprintView struct {
	domain.Sprint
	Metrics *engine.SprintMetrics `json:"metrics,omitempty"`
}

// ProjectOverview is the dashboard projection of a project. Risk and
// issue counts are owned by external systems and default to zero here.
type ProjectOverview struct {
	domain.Project
	ManagerName         *string        `json:"manager_name,omitempty"`
	SponsorName         *string        `json:"sponsor_name,omitempty"`
	OpenRisks           int            `json:"open_risks"`
	OpenIssues          int            `json:"open_issues"`
	CompletedMilestones int            `json:"completed_milestones"`
	TotalMilestones     int            `json:"total_milestones"`
	ItemStatusCounts    map[string]int `json:"item_status_counts"`
}

type TreeNode struct {
	WorkItemView
	Children []TreeNode `json:"children"`
}
