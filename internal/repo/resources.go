package repo

import (
	"context"
	"database/sql"

	"sprintline/internal/domain"
)

const resourceColumns = `id,name,email,role,status,hourly_rate,availability_percent,created_at,updated_at`

func scanResource(scan func(dest ...any) error) (domain.Resource, error) {
	var res domain.Resource
	var role sql.NullString
	var rate sql.NullFloat64
	var availability sql.NullInt64
	err := scan(&res.ID, &res.Name, &res.Email, &role, &res.Status, &rate, &availability, &res.CreatedAt, &res.UpdatedAt)
	if err == sql.ErrNoRows {
		return res, ErrNotFound
	}
	if err != nil {
		return res, err
	}
	res.Role = role.String
	if rate.Valid {
		res.HourlyRate = &rate.Float64
	}
	if availability.Valid {
		v := int(availability.Int64)
		res.AvailabilityPercent = &v
	}
	return res, nil
}

func (r Repo) InsertResource(ctx context.Context, tx *sql.Tx, res domain.Resource) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO resources(`+resourceColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		res.ID, res.Name, res.Email, nullable(res.Role), res.Status,
		nullableFloatPtr(res.HourlyRate), nullableIntPtr(res.AvailabilityPercent), res.CreatedAt, res.UpdatedAt)
	return err
}

func (r Repo) UpdateResource(ctx context.Context, tx *sql.Tx, res domain.Resource) error {
	result, err := tx.ExecContext(ctx, `UPDATE resources SET name=?, email=?, role=?, status=?, hourly_rate=?, availability_percent=?, updated_at=? WHERE id=?`,
		res.Name, res.Email, nullable(res.Role), res.Status,
		nullableFloatPtr(res.HourlyRate), nullableIntPtr(res.AvailabilityPercent), res.UpdatedAt, res.ID)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetResource(ctx context.Context, id string) (domain.Resource, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id=?`, id)
	return scanResource(row.Scan)
}

func (r Repo) ListResources(ctx context.Context, status string) ([]domain.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources`
	var args []any
	if status != "" {
		query += ` WHERE status=?`
		args = append(args, status)
	}
	query += ` ORDER BY name ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Resource
	for rows.Next() {
		item, err := scanResource(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, item)
	}
	return res, rows.Err()
}
