package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"sprintline/internal/config"
	"sprintline/internal/domain"

	"gopkg.in/yaml.v3"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

const projectColumns = `id,name,status,priority,phase,size,manager_id,sponsor_id,business_unit,start_date,end_date,budget,actual_cost,created_at,updated_at`

func scanProject(scan func(dest ...any) error) (domain.Project, error) {
	var p domain.Project
	var phase, size, managerID, sponsorID, businessUnit, startDate, endDate sql.NullString
	var budget, actualCost sql.NullFloat64
	err := scan(&p.ID, &p.Name, &p.Status, &p.Priority, &phase, &size, &managerID, &sponsorID, &businessUnit,
		&startDate, &endDate, &budget, &actualCost, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Phase = phase.String
	p.Size = size.String
	p.BusinessUnit = businessUnit.String
	if managerID.Valid {
		p.ManagerID = &managerID.String
	}
	if sponsorID.Valid {
		p.SponsorID = &sponsorID.String
	}
	if startDate.Valid {
		p.StartDate = &startDate.String
	}
	if endDate.Valid {
		p.EndDate = &endDate.String
	}
	if budget.Valid {
		p.Budget = &budget.Float64
	}
	if actualCost.Valid {
		p.ActualCost = &actualCost.Float64
	}
	return p, nil
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(`+projectColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Name, p.Status, p.Priority, nullable(p.Phase), nullable(p.Size),
		nullableStringPtr(p.ManagerID), nullableStringPtr(p.SponsorID), nullable(p.BusinessUnit),
		nullableStringPtr(p.StartDate), nullableStringPtr(p.EndDate),
		nullableFloatPtr(p.Budget), nullableFloatPtr(p.ActualCost), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id)
	return scanProject(row.Scan)
}

func (r Repo) SingleProject(ctx context.Context) (domain.Project, error) {
	projects, err := r.ListProjects(ctx, ProjectFilters{})
	if err != nil {
		return domain.Project{}, err
	}
	if len(projects) == 0 {
		return domain.Project{}, ErrNotFound
	}
	if len(projects) > 1 {
		return domain.Project{}, fmt.Errorf("multiple projects exist; specify --project")
	}
	return projects[0], nil
}

type ProjectFilters struct {
	Status   string
	Priority string
	Manager  string
	Sponsor  string
	Offset   int
	Limit    int
}

func (f ProjectFilters) clauses() ([]string, []any) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, f.Priority)
	}
	if f.Manager != "" {
		clauses = append(clauses, "LOWER(COALESCE(manager_id,'')) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Manager)+"%")
	}
	if f.Sponsor != "" {
		clauses = append(clauses, "LOWER(COALESCE(sponsor_id,'')) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Sponsor)+"%")
	}
	return clauses, args
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, error) {
	clauses, args := f.clauses()
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + projectColumns + ` FROM projects ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) CountProjects(ctx context.Context, f ProjectFilters) (int, error) {
	clauses, args := f.clauses()
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM projects `+where, args...).Scan(&n)
	return n, err
}

func (r Repo) UpdateProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET name=?, status=?, priority=?, phase=?, size=?, manager_id=?, sponsor_id=?, business_unit=?, start_date=?, end_date=?, budget=?, actual_cost=?, updated_at=? WHERE id=?`,
		p.Name, p.Status, p.Priority, nullable(p.Phase), nullable(p.Size),
		nullableStringPtr(p.ManagerID), nullableStringPtr(p.SponsorID), nullable(p.BusinessUnit),
		nullableStringPtr(p.StartDate), nullableStringPtr(p.EndDate),
		nullableFloatPtr(p.Budget), nullableFloatPtr(p.ActualCost), p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProject(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpsertProjectConfig(ctx context.Context, projectID string, cfg *config.Config) error {
	return upsertProjectConfig(ctx, r.DB, nil, projectID, cfg)
}

func (r Repo) UpsertProjectConfigTx(ctx context.Context, tx *sql.Tx, projectID string, cfg *config.Config) error {
	return upsertProjectConfig(ctx, nil, tx, projectID, cfg)
}

func upsertProjectConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, projectID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Project.ID = projectID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO project_configs(project_id,config_yaml,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(project_id) DO UPDATE SET config_yaml=excluded.config_yaml, updated_at=excluded.updated_at`, projectID, string(payload), now, now)
	return err
}

func (r Repo) GetProjectConfig(ctx context.Context, projectID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_yaml FROM project_configs WHERE project_id=?`, projectID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	cfg, err := config.FromYAML([]byte(payload))
	if err != nil {
		return nil, err
	}
	if cfg.Project.ID == "" {
		cfg.Project.ID = projectID
	}
	return cfg, nil
}
