package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tellerdesk/internal/domain"
)

// ErrChecklistItemNotFound is returned when updating a step that was never
// materialized for the session.
var ErrChecklistItemNotFound = errors.New("checklist item not found")

// CreateChecklist materializes one item per SOP step, all unchecked. It is
// idempotent: if the session already has items, the existing set is returned
// untouched so a re-entrant lock can never duplicate rows.
func (s *Store) CreateChecklist(ctx context.Context, sessionID string, steps []domain.SOPStep) ([]domain.ChecklistItem, error) {
	existing, err := s.ChecklistItems(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	items := make([]domain.ChecklistItem, 0, len(steps))
	for _, step := range steps {
		id, err := nextID(tx, "checklist_items", "checklist_id", "CE")
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO checklist_items (checklist_id, session_id, step_id, position, label)
			VALUES (?, ?, ?, ?, ?)
		`, id, sessionID, step.ID, step.Number, step.Label)
		if err != nil {
			return nil, fmt.Errorf("insert checklist item: %w", err)
		}
		items = append(items, domain.ChecklistItem{
			ID:        id,
			SessionID: sessionID,
			StepID:    step.ID,
			Position:  step.Number,
			Label:     step.Label,
		})
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return items, nil
}

// ChecklistItems returns a session's checklist in step order.
func (s *Store) ChecklistItems(ctx context.Context, sessionID string) ([]domain.ChecklistItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT checklist_id, session_id, step_id, position, label, checked, checked_at
		FROM checklist_items WHERE session_id = ? ORDER BY position ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query checklist: %w", err)
	}
	defer rows.Close()

	var items []domain.ChecklistItem
	for rows.Next() {
		var (
			item      domain.ChecklistItem
			checked   int
			checkedAt sql.NullInt64
		)
		if err := rows.Scan(&item.ID, &item.SessionID, &item.StepID, &item.Position,
			&item.Label, &checked, &checkedAt); err != nil {
			return nil, fmt.Errorf("scan checklist item: %w", err)
		}
		item.Checked = checked != 0
		if checkedAt.Valid {
			at := fromMillis(checkedAt.Int64)
			item.CheckedAt = &at
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// SetChecklistItem records one step's checked state.
func (s *Store) SetChecklistItem(ctx context.Context, sessionID, stepID string, checked bool, at time.Time) error {
	var checkedAt sql.NullInt64
	if checked {
		checkedAt = sql.NullInt64{Int64: toMillis(at), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE checklist_items SET checked = ?, checked_at = ?
		WHERE session_id = ? AND step_id = ?
	`, boolToInt(checked), checkedAt, sessionID, stepID)
	if err != nil {
		return fmt.Errorf("set checklist item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("step %s of %s: %w", stepID, sessionID, ErrChecklistItemNotFound)
	}
	return nil
}
