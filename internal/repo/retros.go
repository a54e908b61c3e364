package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"sprintline/internal/domain"
)

const retroColumns = `id,sprint_id,retrospective_date,what_went_well,what_could_be_improved,action_items_json,team_sentiment,sprint_rating,notes,created_at,updated_at`

func scanRetrospective(scan func(dest ...any) error) (domain.Retrospective, error) {
	var r domain.Retrospective
	var wentWell, improved, notes, sentiment sql.NullString
	var rating sql.NullInt64
	var actionItems string
	err := scan(&r.ID, &r.SprintID, &r.RetrospectiveDate, &wentWell, &improved, &actionItems,
		&sentiment, &rating, &notes, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return r, ErrNotFound
	}
	if err != nil {
		return r, err
	}
	r.WhatWentWell = wentWell.String
	r.WhatCouldBeImproved = improved.String
	r.Notes = notes.String
	if sentiment.Valid {
		r.TeamSentiment = &sentiment.String
	}
	if rating.Valid {
		v := int(rating.Int64)
		r.SprintRating = &v
	}
	r.ActionItems = []domain.ActionItem{}
	if actionItems != "" {
		if err := json.Unmarshal([]byte(actionItems), &r.ActionItems); err != nil {
			return r, err
		}
	}
	return r, nil
}

// UpsertRetrospective inserts or replaces the single retrospective a
// sprint can carry; sprint_id is unique in the schema.
func (r Repo) UpsertRetrospective(ctx context.Context, tx *sql.Tx, retro domain.Retrospective) error {
	actionItems, err := json.Marshal(retro.ActionItems)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO retrospectives(`+retroColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(sprint_id) DO UPDATE SET
			retrospective_date=excluded.retrospective_date,
			what_went_well=excluded.what_went_well,
			what_could_be_improved=excluded.what_could_be_improved,
			action_items_json=excluded.action_items_json,
			team_sentiment=excluded.team_sentiment,
			sprint_rating=excluded.sprint_rating,
			notes=excluded.notes,
			updated_at=excluded.updated_at`,
		retro.ID, retro.SprintID, retro.RetrospectiveDate, nullable(retro.WhatWentWell),
		nullable(retro.WhatCouldBeImproved), string(actionItems),
		nullableStringPtr(retro.TeamSentiment), nullableIntPtr(retro.SprintRating), nullable(retro.Notes),
		retro.CreatedAt, retro.UpdatedAt)
	return err
}

func (r Repo) GetRetrospective(ctx context.Context, sprintID string) (domain.Retrospective, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+retroColumns+` FROM retrospectives WHERE sprint_id=?`, sprintID)
	return scanRetrospective(row.Scan)
}

func (r Repo) DeleteRetrospective(ctx context.Context, tx *sql.Tx, sprintID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM retrospectives WHERE sprint_id=?`, sprintID)
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
