package domain

type Project struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Status       string   `json:"status" enum:"planned,active,on_hold,completed,closed"`
	Priority     string   `json:"priority" enum:"low,medium,high,critical"`
	Phase        string   `json:"phase,omitempty"`
	Size         string   `json:"size,omitempty"`
	ManagerID    *string  `json:"manager_id,omitempty"`
	SponsorID    *string  `json:"sponsor_id,omitempty"`
	BusinessUnit string   `json:"business_unit,omitempty"`
	StartDate    *string  `json:"start_date,omitempty" format:"date"`
	EndDate      *string  `json:"end_date,omitempty" format:"date"`
	Budget       *float64 `json:"budget,omitempty"`
	ActualCost   *float64 `json:"actual_cost,omitempty"`
	CreatedAt    string   `json:"created_at" format:"date-time"`
	UpdatedAt    string   `json:"updated_at" format:"date-time"`
}

type WorkItem struct {
	ID                 string   `json:"id"`
	ProjectID          string   `json:"project_id"`
	ParentID           *string  `json:"parent_id,omitempty"`
	Type               string   `json:"type" enum:"epic,feature,user_story,task"`
	Title              string   `json:"title"`
	Description        string   `json:"description,omitempty"`
	AcceptanceCriteria string   `json:"acceptance_criteria,omitempty"`
	Status             string   `json:"status" enum:"backlog,todo,in_progress,in_review,done,cancelled"`
	Priority           string   `json:"priority" enum:"low,medium,high,critical"`
	EffortEstimate     *float64 `json:"effort_estimate,omitempty"`
	EffortUnit         string   `json:"effort_unit" enum:"story_points,hours"`
	AssigneeID         *string  `json:"assignee_id,omitempty"`
	SprintID           *string  `json:"sprint_id,omitempty"`
	CreatedAt          string   `json:"created_at" format:"date-time"`
	UpdatedAt          string   `json:"updated_at" format:"date-time"`
}

type Sprint struct {
	ID              string  `json:"id"`
	ProjectID       string  `json:"project_id"`
	Name            string  `json:"name"`
	Goal            string  `json:"goal,omitempty"`
	Status          string  `json:"status" enum:"planning,active,completed,cancelled"`
	StartDate       string  `json:"start_date" format:"date"`
	EndDate         string  `json:"end_date" format:"date"`
	PlannedVelocity float64 `json:"planned_velocity"`
	StageID         *string `json:"stage_id,omitempty"`
	CreatedAt       string  `json:"created_at" format:"date-time"`
	UpdatedAt       string  `json:"updated_at" format:"date-time"`
}

type Retrospective struct {
	ID                  string       `json:"id"`
	SprintID            string       `json:"sprint_id"`
	RetrospectiveDate   string       `json:"retrospective_date" format:"date"`
	WhatWentWell        string       `json:"what_went_well,omitempty"`
	WhatCouldBeImproved string       `json:"what_could_be_improved,omitempty"`
	ActionItems         []ActionItem `json:"action_items"`
	TeamSentiment       *string      `json:"team_sentiment,omitempty" enum:"very_positive,positive,neutral,negative,very_negative"`
	SprintRating        *int         `json:"sprint_rating,omitempty" minimum:"1" maximum:"5"`
	Notes               string       `json:"notes,omitempty"`
	CreatedAt           string       `json:"created_at" format:"date-time"`
	UpdatedAt           string       `json:"updated_at" format:"date-time"`
}

// ActionItem is embedded in a retrospective; list order is preserved.
type ActionItem struct {
	Item    string  `json:"item"`
	OwnerID *string `json:"owner_id,omitempty"`
	DueDate *string `json:"due_date,omitempty" format:"date"`
	Status  string  `json:"status" enum:"pending,in_progress,completed"`
}

type Resource struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Email               string   `json:"email"`
	Role                string   `json:"role,omitempty"`
	Status              string   `json:"status" enum:"active,inactive"`
	HourlyRate          *float64 `json:"hourly_rate,omitempty"`
	AvailabilityPercent *int     `json:"availability_percent,omitempty" minimum:"0" maximum:"100"`
	CreatedAt           string   `json:"created_at" format:"date-time"`
	UpdatedAt           string   `json:"updated_at" format:"date-time"`
}

// StatusTransition records one work-item status change. The burndown
// projection reads it to place completions on the calendar.
type StatusTransition struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	ProjectID  string `json:"project_id"`
	ItemID     string `json:"item_id"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
}

// Work-item types in hierarchy order. Each type's parent must be the
// preceding type; tasks may additionally nest under tasks.
const (
	TypeEpic      = "epic"
	TypeFeature   = "feature"
	TypeUserStory = "user_story"
	TypeTask      = "task"
)

const (
	StatusBacklog    = "backlog"
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusInReview   = "in_review"
	StatusDone       = "done"
	StatusCancelled  = "cancelled"
)

const (
	SprintPlanning  = "planning"
	SprintActive    = "active"
	SprintCompleted = "completed"
	SprintCancelled = "cancelled"
)

const (
	UnitStoryPoints = "story_points"
	UnitHours       = "hours"
)
