package sprintlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Sprintline HTTP API client.
type Client struct {
	BaseURL    string
	ProjectID  string
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, projectID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		ProjectID: projectID,
		Timeout:   10 * time.Second,
	}
}

// WorkItem represents the API work-item model (partial).
type WorkItem struct {
	ID             string   `json:"id"`
	ProjectID      string   `json:"project_id"`
	ParentID       *string  `json:"parent_id,omitempty"`
	Type           string   `json:"type"`
	Title          string   `json:"title"`
	Status         string   `json:"status"`
	Priority       string   `json:"priority"`
	EffortEstimate *float64 `json:"effort_estimate,omitempty"`
	EffortUnit     string   `json:"effort_unit"`
	SprintID       *string  `json:"sprint_id,omitempty"`
	UpdatedAt      string   `json:"updated_at"`
}

// Rollup represents a subtree effort summary.
type Rollup struct {
	TotalEffort       float64 `json:"total_effort"`
	CompletedEffort   float64 `json:"completed_effort"`
	CompletionPercent int     `json:"completion_percent"`
	LeafCount         int     `json:"leaf_count"`
	DoneCount         int     `json:"done_count"`
}

// Sprint represents the API sprint model (partial).
type Sprint struct {
	ID              string  `json:"id"`
	ProjectID       string  `json:"project_id"`
	Name            string  `json:"name"`
	Goal            string  `json:"goal"`
	StageID         *string `json:"stage_id,omitempty"`
	Status          string  `json:"status"`
	StartDate       string  `json:"start_date"`
	EndDate         string  `json:"end_date"`
	PlannedVelocity float64 `json:"planned_velocity"`
	UpdatedAt       string  `json:"updated_at"`
}

// BurndownPoint is one day of a sprint burndown series.
type BurndownPoint struct {
	Day             string  `json:"day"`
	RemainingEffort float64 `json:"remaining_effort"`
	IdealRemaining  float64 `json:"ideal_remaining"`
	CompletedEffort float64 `json:"completed_effort"`
}

// SprintVelocity is one sprint's line of a velocity report.
type SprintVelocity struct {
	SprintID        string   `json:"sprint_id"`
	SprintName      string   `json:"sprint_name"`
	StartDate       string   `json:"start_date"`
	Status          string   `json:"status"`
	Planned         float64  `json:"planned"`
	Actual          float64  `json:"actual"`
	RollingAvg      float64  `json:"rolling_avg"`
	Variance        float64  `json:"variance"`
	VariancePercent *float64 `json:"variance_percent,omitempty"`
}

// VelocityReport aggregates a project's sprint velocities.
type VelocityReport struct {
	Sprints          []SprintVelocity `json:"sprints"`
	AvgPlanned       float64          `json:"avg_planned"`
	AvgActual        float64          `json:"avg_actual"`
	LatestRollingAvg float64          `json:"latest_rolling_avg"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ListMeta carries pagination totals on list responses.
type ListMeta struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// WorkItemPage wraps a work-item listing.
type WorkItemPage struct {
	Items []WorkItem `json:"items"`
	Meta  ListMeta   `json:"meta"`
}

// CreateWorkItem creates a work item under the client's project.
func (c *Client) CreateWorkItem(ctx context.Context, itemType, title string, parentID *string) (WorkItem, error) {
	body := map[string]any{
		"type":  itemType,
		"title": title,
	}
	if parentID != nil {
		body["parent_id"] = *parentID
	}
	var resp WorkItem
	err := c.do(ctx, http.MethodPost, c.projectPath("work-items"), body, &resp)
	return resp, err
}

// GetWorkItem fetches a work item by id.
func (c *Client) GetWorkItem(ctx context.Context, id string) (WorkItem, error) {
	var resp WorkItem
	err := c.do(ctx, http.MethodGet, "v0/work-items/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// WorkItems returns a page of the project's work items. Zero limit
// uses the server default.
func (c *Client) WorkItems(ctx context.Context, offset, limit int) (WorkItemPage, error) {
	endpoint := c.projectPath("work-items")
	if offset > 0 || limit > 0 {
		endpoint = fmt.Sprintf("%s?offset=%d&limit=%d", endpoint, offset, limit)
	}
	var resp WorkItemPage
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// SetStatus moves a work item on the board.
func (c *Client) SetStatus(ctx context.Context, id, status string) (WorkItem, error) {
	var resp WorkItem
	endpoint := "v0/work-items/" + url.PathEscape(id) + "/status"
	err := c.do(ctx, http.MethodPut, endpoint, map[string]any{"status": status}, &resp)
	return resp, err
}

// GetRollup returns the derived effort summary for a work item's subtree.
func (c *Client) GetRollup(ctx context.Context, id string) (Rollup, error) {
	var resp Rollup
	endpoint := "v0/work-items/" + url.PathEscape(id) + "/rollup"
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateSprint creates a sprint in planning.
func (c *Client) CreateSprint(ctx context.Context, name, startDate, endDate string) (Sprint, error) {
	body := map[string]any{"name": name}
	if startDate != "" {
		body["start_date"] = startDate
	}
	if endDate != "" {
		body["end_date"] = endDate
	}
	var resp Sprint
	err := c.do(ctx, http.MethodPost, c.projectPath("sprints"), body, &resp)
	return resp, err
}

// AddToSprint adds work items to a sprint backlog.
func (c *Client) AddToSprint(ctx context.Context, sprintID string, itemIDs []string) ([]WorkItem, error) {
	var resp []WorkItem
	endpoint := "v0/sprints/" + url.PathEscape(sprintID) + "/items"
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"item_ids": itemIDs}, &resp)
	return resp, err
}

// RemoveFromSprint removes a work item from a sprint backlog.
func (c *Client) RemoveFromSprint(ctx context.Context, sprintID, itemID string) (WorkItem, error) {
	var resp WorkItem
	endpoint := "v0/sprints/" + url.PathEscape(sprintID) + "/items/" + url.PathEscape(itemID)
	err := c.do(ctx, http.MethodDelete, endpoint, nil, &resp)
	return resp, err
}

// Burndown returns the daily burndown series for a sprint.
func (c *Client) Burndown(ctx context.Context, sprintID string) ([]BurndownPoint, error) {
	var resp []BurndownPoint
	endpoint := "v0/sprints/" + url.PathEscape(sprintID) + "/burndown"
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Velocity returns the project's velocity report.
func (c *Client) Velocity(ctx context.Context) (VelocityReport, error) {
	var resp VelocityReport
	err := c.do(ctx, http.MethodGet, c.projectPath("velocity"), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(p string) string {
	project := url.PathEscape(c.ProjectID)
	return fmt.Sprintf("v0/projects/%s/%s", project, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
