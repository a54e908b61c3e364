package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"sprintline/internal/analytics"
	"sprintline/internal/config"
	"sprintline/internal/db"
	"sprintline/internal/domain"
	"sprintline/internal/engine"
	"sprintline/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Close() { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("proj-1")
	e := engine.New(conn, cfg)
	e.Now = func() time.Time { return time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC) }
	if _, err := e.CreateProject(context.Background(), engine.ProjectCreateOptions{ID: "proj-1", Name: "Test"}); err != nil {
		t.Fatalf("create project: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *testServer, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	b, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, b
}

func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("decode %s: %v", string(b), err)
	}
	return v
}

func createItem(t *testing.T, ts *testServer, body map[string]any) domain.WorkItem {
	t.Helper()
	resp, b := doJSON(t, ts, http.MethodPost, "/v0/projects/proj-1/work-items", body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create item: status %d body %s", resp.StatusCode, b)
	}
	return decode[domain.WorkItem](t, b)
}

func errorCode(t *testing.T, b []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(b, &envelope); err != nil {
		t.Fatalf("decode error %s: %v", string(b), err)
	}
	return envelope.Error.Code
}

func TestBoardMoveRules(t *testing.T) {
	ts := newTestServer(t)
	epic := createItem(t, ts, map[string]any{"type": "epic", "title": "Epic"})
	feature := createItem(t, ts, map[string]any{"type": "feature", "title": "Feature", "parent_id": epic.ID})
	story := createItem(t, ts, map[string]any{"type": "user_story", "title": "Story", "parent_id": feature.ID})

	// dragging from backlog straight to in_review is rejected
	resp, b := doJSON(t, ts, http.MethodPut, "/v0/work-items/"+story.ID+"/status", map[string]any{"status": "in_review"})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status %d body %s", resp.StatusCode, b)
	}
	if errorCode(t, b) != "invalid_status_transition" {
		t.Fatalf("error body %s", b)
	}

	resp, b = doJSON(t, ts, http.MethodPut, "/v0/work-items/"+story.ID+"/status", map[string]any{"status": "todo"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d body %s", resp.StatusCode, b)
	}
	moved := decode[domain.WorkItem](t, b)
	if moved.Status != domain.StatusTodo {
		t.Fatalf("status = %s", moved.Status)
	}

	// the rejected drag left no trace; the accepted one is logged
	resp, b = doJSON(t, ts, http.MethodGet, "/v0/work-items/"+story.ID+"/history", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history: %d %s", resp.StatusCode, b)
	}
	transitions := decode[[]domain.StatusTransition](t, b)
	if len(transitions) != 1 || transitions[0].ToStatus != domain.StatusTodo {
		t.Fatalf("history = %+v", transitions)
	}

	// feature reports its child in the list projection
	_, b = doJSON(t, ts, http.MethodGet, "/v0/work-items/"+feature.ID, nil)
	view := decode[WorkItemView](t, b)
	if view.ChildCount != 1 {
		t.Fatalf("child count = %d", view.ChildCount)
	}
}

func TestInvalidParentRejected(t *testing.T) {
	ts := newTestServer(t)
	epic := createItem(t, ts, map[string]any{"type": "epic", "title": "Epic"})
	resp, b := doJSON(t, ts, http.MethodPost, "/v0/projects/proj-1/work-items",
		map[string]any{"type": "user_story", "title": "bad", "parent_id": epic.ID})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status %d body %s", resp.StatusCode, b)
	}
	if errorCode(t, b) != "invalid_parent" {
		t.Fatalf("error body %s", b)
	}
}

func TestSchemaErrorsReturnBadRequest(t *testing.T) {
	ts := newTestServer(t)
	resp, b := doJSON(t, ts, http.MethodPost, "/v0/projects/proj-1/work-items",
		map[string]any{"type": "bug", "title": "nope"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d body %s", resp.StatusCode, b)
	}
}

func TestUnknownItemIs404(t *testing.T) {
	ts := newTestServer(t)
	resp, b := doJSON(t, ts, http.MethodGet, "/v0/work-items/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d body %s", resp.StatusCode, b)
	}
	if errorCode(t, b) != "not_found" {
		t.Fatalf("error body %s", b)
	}
}

func TestListPaginationAndSearch(t *testing.T) {
	ts := newTestServer(t)
	epic := createItem(t, ts, map[string]any{"type": "epic", "title": "Epic"})
	feature := createItem(t, ts, map[string]any{"type": "feature", "title": "Feature", "parent_id": epic.ID})
	story := createItem(t, ts, map[string]any{"type": "user_story", "title": "Story", "parent_id": feature.ID})
	for _, title := range []string{"alpha task", "beta task", "gamma task"} {
		createItem(t, ts, map[string]any{"type": "task", "title": title, "parent_id": story.ID})
	}

	resp, b := doJSON(t, ts, http.MethodGet, "/v0/projects/proj-1/work-items?type=task&limit=2", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d body %s", resp.StatusCode, b)
	}
	page := decode[WorkItemListResponse](t, b)
	if len(page.Items) != 2 || page.Meta.Total != 3 || page.Meta.Limit != 2 {
		t.Fatalf("page = %d items, meta %+v", len(page.Items), page.Meta)
	}

	_, b = doJSON(t, ts, http.MethodGet, "/v0/projects/proj-1/work-items?search=alpha", nil)
	page = decode[WorkItemListResponse](t, b)
	if len(page.Items) != 1 || page.Items[0].Title != "alpha task" {
		t.Fatalf("search results: %+v", page.Items)
	}
}

func TestRollupEndpoint(t *testing.T) {
	ts := newTestServer(t)
	epic := createItem(t, ts, map[string]any{"type": "epic", "title": "Epic"})
	feature := createItem(t, ts, map[string]any{"type": "feature", "title": "Feature", "parent_id": epic.ID})
	story := createItem(t, ts, map[string]any{"type": "user_story", "title": "Story", "parent_id": feature.ID})
	t1 := createItem(t, ts, map[string]any{"type": "task", "title": "t1", "parent_id": story.ID, "effort_estimate": 3, "effort_unit": "story_points"})
	createItem(t, ts, map[string]any{"type": "task", "title": "t2", "parent_id": story.ID, "effort_estimate": 5, "effort_unit": "story_points"})

	for _, next := range []string{"todo", "in_progress", "in_review", "done"} {
		if resp, b := doJSON(t, ts, http.MethodPut, "/v0/work-items/"+t1.ID+"/status", map[string]any{"status": next}); resp.StatusCode != http.StatusOK {
			t.Fatalf("move t1 to %s: %s", next, b)
		}
	}

	resp, b := doJSON(t, ts, http.MethodGet, "/v0/work-items/"+epic.ID+"/rollup", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d body %s", resp.StatusCode, b)
	}
	var summary struct {
		TotalEffort       float64 `json:"total_effort"`
		CompletedEffort   float64 `json:"completed_effort"`
		CompletionPercent int     `json:"completion_percent"`
	}
	if err := json.Unmarshal(b, &summary); err != nil {
		t.Fatal(err)
	}
	if summary.TotalEffort != 8 || summary.CompletedEffort != 3 || summary.CompletionPercent != 38 {
		t.Fatalf("rollup = %+v", summary)
	}
}

func TestTreeEndpoint(t *testing.T) {
	ts := newTestServer(t)
	epic := createItem(t, ts, map[string]any{"type": "epic", "title": "Epic"})
	feature := createItem(t, ts, map[string]any{"type": "feature", "title": "Feature", "parent_id": epic.ID})
	createItem(t, ts, map[string]any{"type": "user_story", "title": "Story", "parent_id": feature.ID})

	resp, b := doJSON(t, ts, http.MethodGet, "/v0/work-items/"+epic.ID+"/tree", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d body %s", resp.StatusCode, b)
	}
	tree := decode[TreeNode](t, b)
	if tree.ID != epic.ID || len(tree.Children) != 1 {
		t.Fatalf("root = %s with %d children", tree.ID, len(tree.Children))
	}
	// every node carries a fully built view, child counts included
	if tree.ChildCount != 1 || tree.Children[0].ChildCount != 1 {
		t.Fatalf("child counts = %d/%d", tree.ChildCount, tree.Children[0].ChildCount)
	}
	if tree.Rollup == nil || tree.Rollup.LeafCount != 1 {
		t.Fatalf("root rollup = %+v", tree.Rollup)
	}
	leaf := tree.Children[0].Children[0]
	if leaf.ChildCount != 0 || len(leaf.Children) != 0 {
		t.Fatalf("leaf = %+v", leaf)
	}
}

func TestSprintBurndownAndVelocity(t *testing.T) {
	ts := newTestServer(t)
	epic := createItem(t, ts, map[string]any{"type": "epic", "title": "Epic"})
	feature := createItem(t, ts, map[string]any{"type": "feature", "title": "Feature", "parent_id": epic.ID})
	a := createItem(t, ts, map[string]any{"type": "user_story", "title": "A", "parent_id": feature.ID, "effort_estimate": 8})
	b2 := createItem(t, ts, map[string]any{"type": "user_story", "title": "B", "parent_id": feature.ID, "effort_estimate": 12})

	resp, body := doJSON(t, ts, http.MethodPost, "/v0/projects/proj-1/sprints", map[string]any{
		"name":             "Sprint 1",
		"start_date":       "2025-03-10",
		"end_date":         "2025-03-24",
		"planned_velocity": 15,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create sprint: %d %s", resp.StatusCode, body)
	}
	sprint := decode[domain.Sprint](t, body)

	resp, body = doJSON(t, ts, http.MethodPost, "/v0/sprints/"+sprint.ID+"/items",
		map[string]any{"item_ids": []string{a.ID, b2.ID}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add to backlog: %d %s", resp.StatusCode, body)
	}

	for _, next := range []string{"todo", "in_progress", "in_review", "done"} {
		if resp, b := doJSON(t, ts, http.MethodPut, "/v0/work-items/"+a.ID+"/status", map[string]any{"status": next}); resp.StatusCode != http.StatusOK {
			t.Fatalf("move A to %s: %s", next, b)
		}
	}

	// the clock is pinned to 2025-03-15, five days into the sprint
	resp, body = doJSON(t, ts, http.MethodGet, "/v0/sprints/"+sprint.ID+"/burndown", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("burndown: %d %s", resp.StatusCode, body)
	}
	series := decode[[]analytics.BurndownPoint](t, body)
	if len(series) != 6 {
		t.Fatalf("series length = %d, want 6", len(series))
	}
	if series[0].RemainingEffort != 20 {
		t.Fatalf("day 0 remaining = %g", series[0].RemainingEffort)
	}
	last := series[len(series)-1]
	if last.Day != "2025-03-15" || last.CompletedEffort != 8 || last.RemainingEffort != 12 {
		t.Fatalf("last point: %+v", last)
	}

	resp, body = doJSON(t, ts, http.MethodGet, "/v0/projects/proj-1/velocity", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("velocity: %d %s", resp.StatusCode, body)
	}
	report := decode[analytics.VelocityReport](t, body)
	if len(report.Sprints) != 1 {
		t.Fatalf("report rows = %d", len(report.Sprints))
	}
	row := report.Sprints[0]
	if row.Planned != 15 || row.Actual != 8 || row.RollingAvg != 8 {
		t.Fatalf("velocity row: %+v", row)
	}
	if row.VariancePercent == nil {
		t.Fatalf("variance percent missing")
	}
}

func TestSprintMembershipConflicts(t *testing.T) {
	ts := newTestServer(t)
	epic := createItem(t, ts, map[string]any{"type": "epic", "title": "Epic"})
	feature := createItem(t, ts, map[string]any{"type": "feature", "title": "Feature", "parent_id": epic.ID})
	story := createItem(t, ts, map[string]any{"type": "user_story", "title": "Story", "parent_id": feature.ID})

	var sprints [2]domain.Sprint
	for i := range sprints {
		resp, body := doJSON(t, ts, http.MethodPost, "/v0/projects/proj-1/sprints",
			map[string]any{"name": fmt.Sprintf("Sprint %d", i+1)})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create sprint: %d %s", resp.StatusCode, body)
		}
		sprints[i] = decode[domain.Sprint](t, body)
	}

	if resp, body := doJSON(t, ts, http.MethodPost, "/v0/sprints/"+sprints[0].ID+"/items",
		map[string]any{"item_ids": []string{story.ID}}); resp.StatusCode != http.StatusOK {
		t.Fatalf("first add: %d %s", resp.StatusCode, body)
	}
	resp, body := doJSON(t, ts, http.MethodPost, "/v0/sprints/"+sprints[1].ID+"/items",
		map[string]any{"item_ids": []string{story.ID}})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second add: %d %s", resp.StatusCode, body)
	}
	if errorCode(t, body) != "conflicting_membership" {
		t.Fatalf("error body %s", body)
	}

	// epics never join a sprint
	resp, body = doJSON(t, ts, http.MethodPost, "/v0/sprints/"+sprints[1].ID+"/items",
		map[string]any{"item_ids": []string{epic.ID}})
	if resp.StatusCode != http.StatusUnprocessableEntity && resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("epic add: %d %s", resp.StatusCode, body)
	}
}

func TestRetrospectiveRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	resp, body := doJSON(t, ts, http.MethodPost, "/v0/projects/proj-1/sprints", map[string]any{"name": "Sprint 1"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create sprint: %d %s", resp.StatusCode, body)
	}
	sprint := decode[domain.Sprint](t, body)

	resp, body = doJSON(t, ts, http.MethodPut, "/v0/sprints/"+sprint.ID+"/retrospective", map[string]any{
		"what_went_well": "pairing",
		"sprint_rating":  4,
		"action_items":   []map[string]any{{"item": "rotate on-call"}},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put retro: %d %s", resp.StatusCode, body)
	}
	retro := decode[domain.Retrospective](t, body)
	if retro.SprintID != sprint.ID || len(retro.ActionItems) != 1 {
		t.Fatalf("retro = %+v", retro)
	}
	if retro.ActionItems[0].Status != "pending" {
		t.Fatalf("action item status = %s", retro.ActionItems[0].Status)
	}

	resp, _ = doJSON(t, ts, http.MethodDelete, "/v0/sprints/"+sprint.ID+"/retrospective", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete retro: %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, ts, http.MethodGet, "/v0/sprints/"+sprint.ID+"/retrospective", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get deleted retro: %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp, body := doJSON(t, ts, http.MethodGet, "/v0/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health: %d %s", resp.StatusCode, body)
	}
}
