package repo

import (
	"context"
	"database/sql"
	"strings"

	"sprintline/internal/domain"
)

const sprintColumns = `id,project_id,name,goal,stage_id,start_date,end_date,status,planned_velocity,created_at,updated_at`

func scanSprint(scan func(dest ...any) error) (domain.Sprint, error) {
	var s domain.Sprint
	var goal, stage sql.NullString
	err := scan(&s.ID, &s.ProjectID, &s.Name, &goal, &stage, &s.StartDate, &s.EndDate, &s.Status,
		&s.PlannedVelocity, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.Goal = goal.String
	if stage.Valid {
		s.StageID = &stage.String
	}
	return s, nil
}

func (r Repo) InsertSprint(ctx context.Context, tx *sql.Tx, s domain.Sprint) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO sprints(`+sprintColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.ProjectID, s.Name, nullable(s.Goal), nullableStringPtr(s.StageID), s.StartDate, s.EndDate, s.Status,
		s.PlannedVelocity, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r Repo) UpdateSprint(ctx context.Context, tx *sql.Tx, s domain.Sprint) error {
	res, err := tx.ExecContext(ctx, `UPDATE sprints SET name=?, goal=?, stage_id=?, start_date=?, end_date=?, status=?, planned_velocity=?, updated_at=? WHERE id=?`,
		s.Name, nullable(s.Goal), nullableStringPtr(s.StageID), s.StartDate, s.EndDate, s.Status, s.PlannedVelocity, s.UpdatedAt, s.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetSprint(ctx context.Context, id string) (domain.Sprint, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+sprintColumns+` FROM sprints WHERE id=?`, id)
	return scanSprint(row.Scan)
}

func (r Repo) GetSprintTx(ctx context.Context, tx *sql.Tx, id string) (domain.Sprint, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+sprintColumns+` FROM sprints WHERE id=?`, id)
	return scanSprint(row.Scan)
}

func (r Repo) DeleteSprint(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM sprints WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type SprintFilters struct {
	ProjectID string
	Status    string
	Search    string
	Offset    int
	Limit     int
}

func (f SprintFilters) clauses() ([]string, []any) {
	var clauses []string
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Search != "" {
		clauses = append(clauses, "(LOWER(name) LIKE ? OR LOWER(COALESCE(goal,'')) LIKE ?)")
		pattern := "%" + strings.ToLower(f.Search) + "%"
		args = append(args, pattern, pattern)
	}
	return clauses, args
}

// ListSprints orders by start date so velocity series come out in
// chronological order.
func (r Repo) ListSprints(ctx context.Context, f SprintFilters) ([]domain.Sprint, error) {
	clauses, args := f.clauses()
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + sprintColumns + ` FROM sprints ` + where + ` ORDER BY start_date ASC, created_at ASC, id ASC`
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Sprint
	for rows.Next() {
		s, err := scanSprint(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) CountSprints(ctx context.Context, f SprintFilters) (int, error) {
	clauses, args := f.clauses()
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM sprints `+where, args...).Scan(&n)
	return n, err
}
