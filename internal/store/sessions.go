package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tellerdesk/internal/domain"
)

// ErrSessionNotFound is returned for lookups of unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionClosed is returned when mutating a session that already ended.
var ErrSessionClosed = errors.New("session already closed")

// CreateSession inserts a new open session row and allocates its id.
func (s *Store) CreateSession(ctx context.Context, workstationID, operatorID string, start time.Time) (domain.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Session{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	id, err := nextID(tx, "sessions", "session_id", "SR")
	if err != nil {
		return domain.Session{}, err
	}

	var operator sql.NullString
	if operatorID != "" {
		operator = sql.NullString{String: operatorID, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (session_id, workstation_id, operator_id, start_time)
		VALUES (?, ?, ?, ?)
	`, id, workstationID, operator, toMillis(start))
	if err != nil {
		return domain.Session{}, fmt.Errorf("insert session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Session{}, fmt.Errorf("commit: %w", err)
	}

	return domain.Session{
		ID:            id,
		WorkstationID: workstationID,
		OperatorID:    operatorID,
		StartTime:     start.UTC(),
		IsNormalFlow:  true,
	}, nil
}

// SessionByID loads one session row.
func (s *Store) SessionByID(ctx context.Context, sessionID string) (domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, workstation_id, operator_id, start_time, end_time,
		       duration_sec, service_id, service_label, confidence, transcript,
		       is_normal_flow, reason
		FROM sessions WHERE session_id = ?
	`, sessionID)
	return scanSession(row)
}

// OpenSessionForWorkstation returns the workstation's open session, if any.
// Used on startup to recover registry state after a restart.
func (s *Store) OpenSessionForWorkstation(ctx context.Context, workstationID string) (domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, workstation_id, operator_id, start_time, end_time,
		       duration_sec, service_id, service_label, confidence, transcript,
		       is_normal_flow, reason
		FROM sessions
		WHERE workstation_id = ? AND end_time IS NULL
	`, workstationID)
	return scanSession(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (domain.Session, error) {
	var (
		sess                      domain.Session
		operator, svcID, svcLabel sql.NullString
		transcript, reason        sql.NullString
		startMs                   int64
		endMs, durationSec        sql.NullInt64
		isNormal                  int
	)
	err := row.Scan(&sess.ID, &sess.WorkstationID, &operator, &startMs, &endMs,
		&durationSec, &svcID, &svcLabel, &sess.Confidence, &transcript,
		&isNormal, &reason)
	if err == sql.ErrNoRows {
		return domain.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("scan session: %w", err)
	}

	sess.OperatorID = operator.String
	sess.ServiceID = svcID.String
	sess.ServiceLabel = svcLabel.String
	sess.Transcript = transcript.String
	sess.Reason = reason.String
	sess.StartTime = fromMillis(startMs)
	sess.IsNormalFlow = isNormal != 0
	if endMs.Valid {
		end := fromMillis(endMs.Int64)
		sess.EndTime = &end
	}
	if durationSec.Valid {
		sess.DurationSec = int(durationSec.Int64)
	}
	return sess, nil
}

// AttachOperator records the operator on a session only if none is set yet.
func (s *Store) AttachOperator(ctx context.Context, sessionID, operatorID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET operator_id = ?
		WHERE session_id = ? AND operator_id IS NULL
	`, operatorID, sessionID)
	if err != nil {
		return fmt.Errorf("attach operator: %w", err)
	}
	// Zero rows means the operator was already set; that is a no-op, not
	// an error, but an unknown session id should still surface.
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.SessionByID(ctx, sessionID); err != nil {
			return err
		}
	}
	return nil
}

// LockService commits the detected service onto an open session.
func (s *Store) LockService(ctx context.Context, sessionID, serviceID, label string, confidence float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET service_id = ?, service_label = ?, confidence = ?
		WHERE session_id = ? AND end_time IS NULL AND service_id IS NULL
	`, serviceID, label, confidence, sessionID)
	if err != nil {
		return fmt.Errorf("lock service: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("lock service %s: %w", sessionID, ErrSessionClosed)
	}
	return nil
}

// CloseSession finalizes a session: end time, wall-clock duration, the
// transcript aggregated from its fragments, and the normal-flow verdict.
// Everything commits in one transaction so a failure leaves the session open.
func (s *Store) CloseSession(ctx context.Context, sessionID string, end time.Time, isNormalFlow bool, reason string) (domain.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Session{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	sess, err := scanSession(tx.QueryRowContext(ctx, `
		SELECT session_id, workstation_id, operator_id, start_time, end_time,
		       duration_sec, service_id, service_label, confidence, transcript,
		       is_normal_flow, reason
		FROM sessions WHERE session_id = ?
	`, sessionID))
	if err != nil {
		return domain.Session{}, err
	}
	if sess.EndTime != nil {
		return domain.Session{}, ErrSessionClosed
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT text FROM fragments WHERE session_id = ? ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return domain.Session{}, fmt.Errorf("query fragments: %w", err)
	}
	var parts []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			rows.Close()
			return domain.Session{}, fmt.Errorf("scan fragment: %w", err)
		}
		parts = append(parts, text)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.Session{}, fmt.Errorf("iterate fragments: %w", err)
	}

	transcript := strings.Join(parts, "")
	duration := int(end.Sub(sess.StartTime).Seconds())
	if duration < 0 {
		duration = 0
	}

	var reasonVal sql.NullString
	if reason != "" {
		reasonVal = sql.NullString{String: reason, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sessions
		SET end_time = ?, duration_sec = ?, transcript = ?, is_normal_flow = ?, reason = ?
		WHERE session_id = ?
	`, toMillis(end), duration, transcript, boolToInt(isNormalFlow), reasonVal, sessionID)
	if err != nil {
		return domain.Session{}, fmt.Errorf("close session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Session{}, fmt.Errorf("commit: %w", err)
	}

	endUTC := end.UTC()
	sess.EndTime = &endUTC
	sess.DurationSec = duration
	sess.Transcript = transcript
	sess.IsNormalFlow = isNormalFlow
	sess.Reason = reason
	return sess, nil
}

// AppendFragment stores one ordered transcript fragment.
func (s *Store) AppendFragment(ctx context.Context, sessionID string, seq int, text string, at time.Time) (domain.TranscriptFragment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.TranscriptFragment{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	// A closed session already aggregated its transcript; a late append
	// would be silently lost, so it must surface instead.
	var endMs sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT end_time FROM sessions WHERE session_id = ?`, sessionID).Scan(&endMs)
	if err == sql.ErrNoRows {
		return domain.TranscriptFragment{}, ErrSessionNotFound
	}
	if err != nil {
		return domain.TranscriptFragment{}, fmt.Errorf("query session: %w", err)
	}
	if endMs.Valid {
		return domain.TranscriptFragment{}, fmt.Errorf("append to %s: %w", sessionID, ErrSessionClosed)
	}

	id, err := nextID(tx, "fragments", "fragment_id", "CK")
	if err != nil {
		return domain.TranscriptFragment{}, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO fragments (fragment_id, session_id, seq, text, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, sessionID, seq, text, toMillis(at))
	if err != nil {
		return domain.TranscriptFragment{}, fmt.Errorf("insert fragment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.TranscriptFragment{}, fmt.Errorf("commit: %w", err)
	}

	return domain.TranscriptFragment{
		ID:        id,
		SessionID: sessionID,
		Seq:       seq,
		Text:      text,
		CreatedAt: at.UTC(),
	}, nil
}

// FragmentsForSession returns a session's fragments in sequence order.
func (s *Store) FragmentsForSession(ctx context.Context, sessionID string) ([]domain.TranscriptFragment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fragment_id, session_id, seq, text, created_at
		FROM fragments WHERE session_id = ? ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query fragments: %w", err)
	}
	defer rows.Close()

	var fragments []domain.TranscriptFragment
	for rows.Next() {
		var f domain.TranscriptFragment
		var createdMs int64
		if err := rows.Scan(&f.ID, &f.SessionID, &f.Seq, &f.Text, &createdMs); err != nil {
			return nil, fmt.Errorf("scan fragment: %w", err)
		}
		f.CreatedAt = fromMillis(createdMs)
		fragments = append(fragments, f)
	}
	return fragments, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
