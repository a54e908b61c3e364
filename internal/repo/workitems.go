package repo

import (
	"context"
	"database/sql"
	"strings"

	"sprintline/internal/domain"
)

const workItemColumns = `id,project_id,parent_id,type,title,description,acceptance_criteria,status,priority,effort_estimate,effort_unit,assignee_id,sprint_id,created_at,updated_at`

func scanWorkItem(scan func(dest ...any) error) (domain.WorkItem, error) {
	var w domain.WorkItem
	var parentID, description, acceptance, assigneeID, sprintID sql.NullString
	var effort sql.NullFloat64
	err := scan(&w.ID, &w.ProjectID, &parentID, &w.Type, &w.Title, &description, &acceptance,
		&w.Status, &w.Priority, &effort, &w.EffortUnit, &assigneeID, &sprintID, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	if err != nil {
		return w, err
	}
	if parentID.Valid {
		w.ParentID = &parentID.String
	}
	w.Description = description.String
	w.AcceptanceCriteria = acceptance.String
	if effort.Valid {
		w.EffortEstimate = &effort.Float64
	}
	if assigneeID.Valid {
		w.AssigneeID = &assigneeID.String
	}
	if sprintID.Valid {
		w.SprintID = &sprintID.String
	}
	return w, nil
}

func (r Repo) InsertWorkItem(ctx context.Context, tx *sql.Tx, w domain.WorkItem) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO work_items(`+workItemColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		w.ID, w.ProjectID, nullableStringPtr(w.ParentID), w.Type, w.Title, nullable(w.Description), nullable(w.AcceptanceCriteria),
		w.Status, w.Priority, nullableFloatPtr(w.EffortEstimate), w.EffortUnit,
		nullableStringPtr(w.AssigneeID), nullableStringPtr(w.SprintID), w.CreatedAt, w.UpdatedAt)
	return err
}

// UpdateWorkItem writes all mutable columns, guarded by the expected
// updated_at token. Zero rows affected means the token was stale (or
// the row is gone); the caller disambiguates.
func (r Repo) UpdateWorkItem(ctx context.Context, tx *sql.Tx, w domain.WorkItem, expectedUpdatedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE work_items SET parent_id=?, title=?, description=?, acceptance_criteria=?, status=?, priority=?, effort_estimate=?, effort_unit=?, assignee_id=?, sprint_id=?, updated_at=? WHERE id=? AND updated_at=?`,
		nullableStringPtr(w.ParentID), w.Title, nullable(w.Description), nullable(w.AcceptanceCriteria),
		w.Status, w.Priority, nullableFloatPtr(w.EffortEstimate), w.EffortUnit,
		nullableStringPtr(w.AssigneeID), nullableStringPtr(w.SprintID), w.UpdatedAt, w.ID, expectedUpdatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r Repo) GetWorkItem(ctx context.Context, id string) (domain.WorkItem, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+workItemColumns+` FROM work_items WHERE id=?`, id)
	return scanWorkItem(row.Scan)
}

func (r Repo) GetWorkItemTx(ctx context.Context, tx *sql.Tx, id string) (domain.WorkItem, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+workItemColumns+` FROM work_items WHERE id=?`, id)
	return scanWorkItem(row.Scan)
}

type WorkItemFilters struct {
	ProjectID  string
	Type       string
	ParentID   string
	SprintID   string
	Status     string
	Priority   string
	AssigneeID string
	Search     string
	Offset     int
	Limit      int
}

func (f WorkItemFilters) clauses() ([]string, []any) {
	var clauses []string
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.ParentID != "" {
		clauses = append(clauses, "parent_id=?")
		args = append(args, f.ParentID)
	}
	if f.SprintID != "" {
		clauses = append(clauses, "sprint_id=?")
		args = append(args, f.SprintID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, f.Priority)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.Search != "" {
		clauses = append(clauses, "(LOWER(title) LIKE ? OR LOWER(COALESCE(description,'')) LIKE ?)")
		pattern := "%" + strings.ToLower(f.Search) + "%"
		args = append(args, pattern, pattern)
	}
	return clauses, args
}

func (r Repo) ListWorkItems(ctx context.Context, f WorkItemFilters) ([]domain.WorkItem, error) {
	clauses, args := f.clauses()
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + workItemColumns + ` FROM work_items ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorkItem
	for rows.Next() {
		w, err := scanWorkItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

func (r Repo) CountWorkItems(ctx context.Context, f WorkItemFilters) (int, error) {
	clauses, args := f.clauses()
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM work_items `+where, args...).Scan(&n)
	return n, err
}

// ListChildren returns immediate children ordered by created_at ascending,
// which keeps descendant traversal deterministic.
func (r Repo) ListChildren(ctx context.Context, parentID, childType string) ([]domain.WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items WHERE parent_id=?`
	args := []any{parentID}
	if childType != "" {
		query += ` AND type=?`
		args = append(args, childType)
	}
	query += ` ORDER BY created_at ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorkItem
	for rows.Next() {
		w, err := scanWorkItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

func (r Repo) ListChildrenTx(ctx context.Context, tx *sql.Tx, parentID string) ([]domain.WorkItem, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+workItemColumns+` FROM work_items WHERE parent_id=? ORDER BY created_at ASC, id ASC`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorkItem
	for rows.Next() {
		w, err := scanWorkItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

func (r Repo) CountChildren(ctx context.Context, parentID, childType string) (int, error) {
	query := `SELECT count(*) FROM work_items WHERE parent_id=?`
	args := []any{parentID}
	if childType != "" {
		query += ` AND type=?`
		args = append(args, childType)
	}
	var n int
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

func (r Repo) DeleteWorkItems(ctx context.Context, tx *sql.Tx, ids []string) error {
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM work_items WHERE id=?`, id); err != nil {
			return err
		}
	}
	return nil
}

// ListSprintMembers returns all work items assigned to a sprint.
func (r Repo) ListSprintMembers(ctx context.Context, sprintID string) ([]domain.WorkItem, error) {
	return r.ListWorkItems(ctx, WorkItemFilters{SprintID: sprintID})
}

func (r Repo) SetSprintMembership(ctx context.Context, tx *sql.Tx, itemID string, sprintID *string, updatedAt string) error {
	_, err := tx.ExecContext(ctx, `UPDATE work_items SET sprint_id=?, updated_at=? WHERE id=?`,
		nullableStringPtr(sprintID), updatedAt, itemID)
	return err
}

func (r Repo) UnassignSprintMembers(ctx context.Context, tx *sql.Tx, sprintID, updatedAt string) error {
	_, err := tx.ExecContext(ctx, `UPDATE work_items SET sprint_id=NULL, updated_at=? WHERE sprint_id=?`, updatedAt, sprintID)
	return err
}

// SumDoneStoryPoints is a sprint's actual velocity: completed members
// estimated in story points.
func (r Repo) SumDoneStoryPoints(ctx context.Context, sprintID string) (float64, error) {
	var sum float64
	err := r.DB.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(effort_estimate),0) FROM work_items WHERE sprint_id=? AND status=? AND effort_unit=?`,
		sprintID, domain.StatusDone, domain.UnitStoryPoints).Scan(&sum)
	return sum, err
}

func (r Repo) CountSprintMembers(ctx context.Context, sprintID string) (total, completed int, err error) {
	err = r.DB.QueryRowContext(ctx,
		`SELECT count(*), COALESCE(SUM(CASE WHEN status=? THEN 1 ELSE 0 END),0) FROM work_items WHERE sprint_id=?`,
		domain.StatusDone, sprintID).Scan(&total, &completed)
	return total, completed, err
}

func (r Repo) CountWorkItemsByStatus(ctx context.Context, projectID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM work_items WHERE project_id=? GROUP BY status`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}
