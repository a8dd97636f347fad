package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"tellerdesk/internal/domain"
	"tellerdesk/internal/ports"
)

var (
	startAliases = map[string]struct{}{"start": {}, "mulai": {}, "begin": {}}
	endAliases   = map[string]struct{}{"end": {}, "selesai": {}, "stop": {}}
)

// NormalizeKWS maps a raw spoken-keyword label onto its event kind. The
// device firmware localizes the trigger words, so both the English and
// Indonesian aliases are recognized.
func NormalizeKWS(raw string) domain.KWSKind {
	word := strings.ToLower(strings.TrimSpace(raw))
	if _, ok := startAliases[word]; ok {
		return domain.KWSStart
	}
	if _, ok := endAliases[word]; ok {
		return domain.KWSEnd
	}
	return domain.KWSUnknown
}

// EventRouter demultiplexes inbound events by device identity and dispatches
// them to the session registry, checklist manager and audio pipeline. It is
// transport-free: the MQTT and websocket layers construct typed events and
// call one method per kind.
type EventRouter struct {
	store      ports.Store
	registry   *SessionRegistry
	checklists *ChecklistManager
	pipeline   *AudioPipeline
	logger     *slog.Logger
}

// NewEventRouter builds the router.
func NewEventRouter(
	store ports.Store,
	registry *SessionRegistry,
	checklists *ChecklistManager,
	pipeline *AudioPipeline,
	logger *slog.Logger,
) *EventRouter {
	return &EventRouter{
		store:      store,
		registry:   registry,
		checklists: checklists,
		pipeline:   pipeline,
		logger:     logger.With("component", "router"),
	}
}

// resolveDevice maps an RP device id to its registered workstation. Unknown
// or deactivated devices are rejected so a stray publisher can never open
// sessions.
func (rt *EventRouter) resolveDevice(ctx context.Context, deviceID string) (domain.Workstation, bool) {
	ws, err := rt.store.WorkstationByDevice(ctx, strings.ToUpper(strings.TrimSpace(deviceID)))
	if err != nil {
		rt.logger.Warn("unknown device, message dropped", "device", deviceID, "error", err)
		return domain.Workstation{}, false
	}
	if !ws.Active {
		rt.logger.Warn("inactive workstation, message dropped", "device", deviceID, "workstation", ws.ID)
		return domain.Workstation{}, false
	}
	return ws, true
}

// HandleKWS processes a keyword-spotting event from a device.
func (rt *EventRouter) HandleKWS(ctx context.Context, deviceID string, evt domain.KWSEvent) {
	ws, ok := rt.resolveDevice(ctx, deviceID)
	if !ok {
		return
	}
	at := evt.Timestamp
	if at.IsZero() {
		at = time.Now()
	}

	switch evt.Kind {
	case domain.KWSStart:
		if _, _, err := rt.registry.StartSession(ctx, ws, "", at); err != nil {
			rt.logger.Error("start session failed", "workstation", ws.ID, "error", err)
		}
	case domain.KWSEnd:
		_, err := rt.registry.EndSession(ctx, ws.ID, false, "", at)
		switch {
		case errors.Is(err, ErrChecklistIncomplete):
			// Expected guard outcome: the desk keeps the session open
			// until the checklist is finished or a supervisor overrides.
			rt.logger.Info("automatic end blocked", "workstation", ws.ID)
		case errors.Is(err, ErrNoActiveSession):
			rt.logger.Info("end event without active session", "workstation", ws.ID)
		case err != nil:
			rt.logger.Error("end session failed", "workstation", ws.ID, "error", err)
		}
	default:
		rt.logger.Warn("unknown kws event dropped", "workstation", ws.ID, "raw", evt.Raw)
	}
}

// HandleAudio enqueues an audio chunk for the device's workstation.
func (rt *EventRouter) HandleAudio(ctx context.Context, deviceID string, chunk domain.AudioChunk) {
	ws, ok := rt.resolveDevice(ctx, deviceID)
	if !ok {
		return
	}
	chunk.WorkstationID = ws.ID
	rt.pipeline.Enqueue(chunk)
}

// HandleChecklistUpdate applies a checkbox change from the dashboard.
func (rt *EventRouter) HandleChecklistUpdate(ctx context.Context, sessionID, stepID string, checked bool, at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}
	if err := rt.checklists.UpdateItem(ctx, sessionID, stepID, checked, at); err != nil {
		rt.logger.Warn("checklist update failed",
			"session", sessionID, "step", stepID, "error", err)
	}
}

// HandleManualEnd applies a supervisor override: the session closes
// regardless of checklist state and is marked abnormal with the reason.
func (rt *EventRouter) HandleManualEnd(ctx context.Context, workstationID, reason string) {
	_, err := rt.registry.EndSession(ctx, workstationID, true, reason, time.Now())
	if err != nil && !errors.Is(err, ErrNoActiveSession) {
		rt.logger.Error("manual end failed", "workstation", workstationID, "error", err)
	}
}

// HandleOperatorLogin backfills the operator onto the workstation's open
// session once the desk login is known.
func (rt *EventRouter) HandleOperatorLogin(ctx context.Context, workstationID, operatorID string) {
	sessionID, ok := rt.registry.ActiveSessionFor(workstationID)
	if !ok {
		return
	}
	if err := rt.registry.AttachOperator(ctx, sessionID, operatorID); err != nil {
		rt.logger.Warn("operator attach failed", "session", sessionID, "error", err)
	}
}
