// Package history records work-item status transitions. Burndown
// reconstruction reads the log to place completions on the calendar.
package history

import (
	"context"
	"database/sql"
	"time"

	"sprintline/internal/domain"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, projectID, itemID, fromStatus, toStatus string) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx, `INSERT INTO status_transitions(ts,project_id,item_id,from_status,to_status) VALUES (?,?,?,?,?)`,
		ts, projectID, itemID, fromStatus, toStatus)
	return err
}

// ListForItem returns the item's transitions in chronological order.
func (w Writer) ListForItem(ctx context.Context, itemID string) ([]domain.StatusTransition, error) {
	rows, err := w.DB.QueryContext(ctx, `SELECT id,ts,project_id,item_id,from_status,to_status FROM status_transitions WHERE item_id=? ORDER BY ts ASC, id ASC`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StatusTransition
	for rows.Next() {
		var t domain.StatusTransition
		if err := rows.Scan(&t.ID, &t.TS, &t.ProjectID, &t.ItemID, &t.FromStatus, &t.ToStatus); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// LastDoneAt maps each of the given items to the timestamp of its most
// recent transition into done. Items that never reached done, or whose
// transitions predate the log, are absent from the map.
func (w Writer) LastDoneAt(ctx context.Context, itemIDs []string) (map[string]time.Time, error) {
	res := map[string]time.Time{}
	for _, id := range itemIDs {
		var ts sql.NullString
		err := w.DB.QueryRowContext(ctx,
			`SELECT MAX(ts) FROM status_transitions WHERE item_id=? AND to_status=?`,
			id, domain.StatusDone).Scan(&ts)
		if err != nil {
			return nil, err
		}
		if !ts.Valid {
			continue
		}
		at, err := time.Parse(time.RFC3339, ts.String)
		if err != nil {
			return nil, err
		}
		res[id] = at
	}
	return res, nil
}
