package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tellerdesk/internal/domain"
	"tellerdesk/internal/ports"
)

// ErrServiceNotLocked is returned for checklist updates on a session whose
// service is still undetected; there is nothing to materialize steps from.
var ErrServiceNotLocked = errors.New("session has no locked service")

// ChecklistManager materializes and updates per-session SOP checklists and
// pushes a full snapshot to the dashboard after every change.
type ChecklistManager struct {
	store   ports.Store
	catalog ports.SOPCatalog
	events  ports.EventSink
	logger  *slog.Logger
}

// NewChecklistManager builds the manager.
func NewChecklistManager(store ports.Store, catalog ports.SOPCatalog, events ports.EventSink, logger *slog.Logger) *ChecklistManager {
	return &ChecklistManager{
		store:   store,
		catalog: catalog,
		events:  events,
		logger:  logger.With("component", "checklist"),
	}
}

// Materialize creates the session's checklist from the service's canonical
// step list, all unchecked. Safe to call more than once; later calls return
// the existing items.
func (m *ChecklistManager) Materialize(ctx context.Context, sess domain.Session) ([]domain.ChecklistItem, error) {
	if !sess.Locked() {
		return nil, ErrServiceNotLocked
	}
	steps, err := m.catalog.ServiceSteps(ctx, sess.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("load SOP for %s: %w", sess.ServiceID, err)
	}
	items, err := m.store.CreateChecklist(ctx, sess.ID, steps)
	if err != nil {
		return nil, err
	}
	m.logger.Info("checklist materialized", "session", sess.ID, "service", sess.ServiceID, "steps", len(items))
	return items, nil
}

// UpdateItem records a step's checked state. If the item does not exist yet
// (the update raced materialization) the checklist is materialized first and
// the update re-applied; updates are never silently dropped.
func (m *ChecklistManager) UpdateItem(ctx context.Context, sessionID, stepID string, checked bool, at time.Time) error {
	err := m.store.SetChecklistItem(ctx, sessionID, stepID, checked, at)
	if err != nil {
		sess, lookupErr := m.store.SessionByID(ctx, sessionID)
		if lookupErr != nil {
			return lookupErr
		}
		if _, matErr := m.Materialize(ctx, sess); matErr != nil {
			return matErr
		}
		if err = m.store.SetChecklistItem(ctx, sessionID, stepID, checked, at); err != nil {
			return err
		}
	}

	sess, err := m.store.SessionByID(ctx, sessionID)
	if err != nil {
		return err
	}
	items, err := m.store.ChecklistItems(ctx, sessionID)
	if err != nil {
		return err
	}
	m.events.ChecklistSnapshot(sess, items)
	return nil
}

// IsComplete reports whether the checklist exists and every item is checked.
// A session with no materialized checklist is incomplete, never vacuously
// complete.
func (m *ChecklistManager) IsComplete(ctx context.Context, sessionID string) (bool, error) {
	items, err := m.store.ChecklistItems(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if len(items) == 0 {
		return false, nil
	}
	for _, item := range items {
		if !item.Checked {
			return false, nil
		}
	}
	return true, nil
}
