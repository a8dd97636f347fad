package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tellerdesk/internal/domain"
)

// ErrWorkstationNotFound is returned for devices that are not registered.
var ErrWorkstationNotFound = errors.New("workstation not found")

// ErrServiceNotFound is returned for unknown SOP service ids.
var ErrServiceNotFound = errors.New("service not found")

// WorkstationByDevice resolves an RP device id to its registered workstation.
func (s *Store) WorkstationByDevice(ctx context.Context, deviceID string) (domain.Workstation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT workstation_id, device_id, location, is_active
		FROM workstations WHERE device_id = ?
	`, deviceID)

	var ws domain.Workstation
	var active int
	if err := row.Scan(&ws.ID, &ws.DeviceID, &ws.Location, &active); err != nil {
		if err == sql.ErrNoRows {
			return domain.Workstation{}, ErrWorkstationNotFound
		}
		return domain.Workstation{}, fmt.Errorf("scan workstation: %w", err)
	}
	ws.Active = active != 0
	return ws, nil
}

// Workstations lists every registered workstation.
func (s *Store) Workstations(ctx context.Context) ([]domain.Workstation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT workstation_id, device_id, location, is_active
		FROM workstations ORDER BY workstation_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query workstations: %w", err)
	}
	defer rows.Close()

	var out []domain.Workstation
	for rows.Next() {
		var ws domain.Workstation
		var active int
		if err := rows.Scan(&ws.ID, &ws.DeviceID, &ws.Location, &active); err != nil {
			return nil, fmt.Errorf("scan workstation: %w", err)
		}
		ws.Active = active != 0
		out = append(out, ws)
	}
	return out, rows.Err()
}

// UpsertWorkstation registers or updates a workstation/device pairing.
func (s *Store) UpsertWorkstation(ctx context.Context, ws domain.Workstation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workstations (workstation_id, device_id, location, is_active)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(workstation_id) DO UPDATE SET
			device_id = excluded.device_id,
			location = excluded.location,
			is_active = excluded.is_active
	`, ws.ID, ws.DeviceID, ws.Location, boolToInt(ws.Active))
	if err != nil {
		return fmt.Errorf("upsert workstation: %w", err)
	}
	return nil
}

// UpsertService registers a service and replaces its canonical step list.
func (s *Store) UpsertService(ctx context.Context, serviceID, name string, steps []domain.SOPStep) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sop_services (service_id, service_name) VALUES (?, ?)
		ON CONFLICT(service_id) DO UPDATE SET service_name = excluded.service_name
	`, serviceID, name)
	if err != nil {
		return fmt.Errorf("upsert service: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sop_steps WHERE service_id = ?`, serviceID); err != nil {
		return fmt.Errorf("clear steps: %w", err)
	}
	for _, step := range steps {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sop_steps (step_id, service_id, step_number, label)
			VALUES (?, ?, ?, ?)
		`, step.ID, serviceID, step.Number, step.Label)
		if err != nil {
			return fmt.Errorf("insert step %s: %w", step.ID, err)
		}
	}
	return tx.Commit()
}

// SOPStepsForService returns a service's canonical steps in order.
func (s *Store) SOPStepsForService(ctx context.Context, serviceID string) ([]domain.SOPStep, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		`SELECT service_name FROM sop_services WHERE service_id = ?`, serviceID).Scan(&name)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("service %s: %w", serviceID, ErrServiceNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query service: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT step_id, service_id, step_number, label
		FROM sop_steps WHERE service_id = ? ORDER BY step_number ASC
	`, serviceID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	var steps []domain.SOPStep
	for rows.Next() {
		var step domain.SOPStep
		if err := rows.Scan(&step.ID, &step.ServiceID, &step.Number, &step.Label); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}
