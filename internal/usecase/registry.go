package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"tellerdesk/internal/domain"
	"tellerdesk/internal/ports"
)

// ErrNoActiveSession is returned when an end request targets a workstation
// with no open session.
var ErrNoActiveSession = errors.New("no active session for workstation")

// ErrChecklistIncomplete blocks an automatic end while SOP steps remain
// unchecked (or the checklist was never materialized). It is an expected
// outcome, not a failure; a manual override can still close the session.
var ErrChecklistIncomplete = errors.New("checklist incomplete")

// SessionRegistry is the authoritative session state machine. It enforces
// the single-active-session invariant per workstation and owns the guarded
// end protocol. Locking is per workstation entry so unrelated desks never
// serialize on each other.
type SessionRegistry struct {
	store      ports.Store
	checklists *ChecklistManager
	events     ports.EventSink
	control    ports.DeviceControl
	logger     *slog.Logger

	mu      sync.Mutex
	entries map[string]*wsEntry
}

type wsEntry struct {
	mu     sync.Mutex
	active *sessionState
}

// NewSessionRegistry builds the registry.
func NewSessionRegistry(
	store ports.Store,
	checklists *ChecklistManager,
	events ports.EventSink,
	control ports.DeviceControl,
	logger *slog.Logger,
) *SessionRegistry {
	return &SessionRegistry{
		store:      store,
		checklists: checklists,
		events:     events,
		control:    control,
		logger:     logger.With("component", "registry"),
		entries:    make(map[string]*wsEntry),
	}
}

func (r *SessionRegistry) entry(workstationID string) *wsEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[workstationID]
	if !ok {
		e = &wsEntry{}
		r.entries[workstationID] = e
	}
	return e
}

// StartSession opens a session for the workstation. Starting is idempotent:
// if a session is already active its id is returned and no new one is
// created, so racing start events yield exactly one open session.
func (r *SessionRegistry) StartSession(ctx context.Context, ws domain.Workstation, operatorID string, at time.Time) (string, bool, error) {
	e := r.entry(ws.ID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active != nil {
		r.logger.Info("session already active", "workstation", ws.ID, "session", e.active.id)
		return e.active.id, false, nil
	}

	sess, err := r.store.CreateSession(ctx, ws.ID, operatorID, at)
	if err != nil {
		return "", false, err
	}

	e.active = &sessionState{
		id:            sess.ID,
		workstationID: ws.ID,
		deviceID:      ws.DeviceID,
	}

	r.logger.Info("session started", "session", sess.ID, "workstation", ws.ID)
	r.events.SessionStarted(sess)
	return sess.ID, true, nil
}

// AttachOperator backfills the operator on a session if none is set.
func (r *SessionRegistry) AttachOperator(ctx context.Context, sessionID, operatorID string) error {
	return r.store.AttachOperator(ctx, sessionID, operatorID)
}

// ActiveSessionFor reports the workstation's open session id, if any.
func (r *SessionRegistry) ActiveSessionFor(workstationID string) (string, bool) {
	e := r.entry(workstationID)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return "", false
	}
	return e.active.id, true
}

// EndSession closes the workstation's open session.
//
// An automatic end (manual=false, spoken "done" keyword) requires the
// checklist to exist and be fully checked; otherwise it returns
// ErrChecklistIncomplete and mutates nothing. A manual end always closes,
// marks the session abnormal and records the supplied reason.
func (r *SessionRegistry) EndSession(ctx context.Context, workstationID string, manual bool, reason string, at time.Time) (domain.Session, error) {
	e := r.entry(workstationID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active == nil {
		if manual {
			r.events.EndRejected(workstationID, "no active session")
		}
		return domain.Session{}, ErrNoActiveSession
	}
	state := e.active

	isNormal := true
	if manual {
		isNormal = false
		if reason == "" {
			reason = domain.ReasonManualTermination
		}
	} else {
		complete, err := r.checklists.IsComplete(ctx, state.id)
		if err != nil {
			return domain.Session{}, err
		}
		if !complete {
			r.logger.Info("end blocked, checklist incomplete", "session", state.id, "workstation", workstationID)
			r.events.EndBlocked(workstationID, state.id)
			return domain.Session{}, ErrChecklistIncomplete
		}
		reason = ""
	}

	sess, err := r.store.CloseSession(ctx, state.id, at, isNormal, reason)
	if err != nil {
		// The entry stays active so the close can be retried.
		return domain.Session{}, err
	}
	e.active = nil

	score := domain.SessionScore(sess.IsNormalFlow, sess.Reason)
	r.logger.Info("session ended",
		"session", sess.ID, "workstation", workstationID,
		"manual", manual, "normal", sess.IsNormalFlow, "score", score)

	r.events.SessionEnded(sess, score)
	if err := r.control.EndStream(state.deviceID); err != nil {
		r.logger.Warn("end-stream command failed", "device", state.deviceID, "error", err)
	}
	return sess, nil
}

// LockDetected commits the detected service onto the workstation's open
// session, materializes its checklist and announces the lock. The lock is
// one-way; a session that is already locked is left untouched.
func (r *SessionRegistry) LockDetected(ctx context.Context, workstationID string, det domain.Detection) error {
	e := r.entry(workstationID)
	e.mu.Lock()
	state := e.active
	e.mu.Unlock()

	if state == nil {
		return ErrNoActiveSession
	}
	if state.isLocked() {
		return nil
	}

	// Persist before committing the in-memory flag: a failed write must
	// leave detection running so a later window can retry the lock.
	if err := r.store.LockService(ctx, state.id, det.ServiceID, det.Label, det.Confidence); err != nil {
		return err
	}
	state.lock()
	sess, err := r.store.SessionByID(ctx, state.id)
	if err != nil {
		return err
	}

	items, err := r.checklists.Materialize(ctx, sess)
	if err != nil {
		return err
	}

	r.logger.Info("service locked",
		"session", state.id, "service", det.ServiceID,
		"label", det.Label, "confidence", det.Confidence)

	r.events.ServiceLocked(sess, items)
	return nil
}

// activeState hands the pipeline the runtime state for a workstation's open
// session, or nil when there is none.
func (r *SessionRegistry) activeState(workstationID string) *sessionState {
	e := r.entry(workstationID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Recover reloads open sessions from the store after a restart so inbound
// audio and end events keep resolving to them.
func (r *SessionRegistry) Recover(ctx context.Context, opener SessionOpener, workstations []domain.Workstation) error {
	for _, ws := range workstations {
		sess, err := opener.OpenSessionForWorkstation(ctx, ws.ID)
		if err != nil {
			// Most workstations have nothing open; anything else is
			// logged and skipped rather than failing startup.
			r.logger.Debug("no session to recover", "workstation", ws.ID, "error", err)
			continue
		}

		state := &sessionState{
			id:            sess.ID,
			workstationID: ws.ID,
			deviceID:      ws.DeviceID,
			locked:        sess.Locked(),
		}
		if frags, err := r.store.FragmentsForSession(ctx, sess.ID); err == nil && len(frags) > 0 {
			state.nextSeq = frags[len(frags)-1].Seq + 1
			state.hasText = true
		}

		e := r.entry(ws.ID)
		e.mu.Lock()
		e.active = state
		e.mu.Unlock()
		r.logger.Info("recovered open session", "session", sess.ID, "workstation", ws.ID)
	}
	return nil
}

// SessionOpener is the slice of the store recovery needs.
type SessionOpener interface {
	OpenSessionForWorkstation(ctx context.Context, workstationID string) (domain.Session, error)
}
