package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tellerdesk/internal/domain"
)

// CommandHandler receives inbound dashboard commands.
type CommandHandler interface {
	HandleChecklistUpdate(ctx context.Context, sessionID, stepID string, checked bool, at time.Time)
	HandleManualEnd(ctx context.Context, workstationID, reason string)
	HandleOperatorLogin(ctx context.Context, workstationID, operatorID string)
}

// envelope is the frame broadcast to every dashboard client.
type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// command is the frame dashboards send back.
type command struct {
	Type          string `json:"type"`
	SessionID     string `json:"session_id,omitempty"`
	StepID        string `json:"step_id,omitempty"`
	Checked       bool   `json:"checked,omitempty"`
	Timestamp     string `json:"timestamp,omitempty"`
	WorkstationID string `json:"workstation_id,omitempty"`
	OperatorID    string `json:"operator_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

type lockedEvent struct {
	Session   domain.Session         `json:"session"`
	Checklist []domain.ChecklistItem `json:"sop"`
}

type endedEvent struct {
	Session domain.Session `json:"session"`
	Score   int            `json:"score"`
}

type rejectedEvent struct {
	WorkstationID string `json:"workstationId"`
	Detail        string `json:"detail"`
}

type blockedEvent struct {
	WorkstationID string `json:"workstationId"`
	SessionID     string `json:"sessionId"`
}

// Hub fans session events out to connected dashboard clients over
// websockets. Sends are fire and forget: a client that cannot keep up has
// its frames dropped rather than ever blocking the caller.
type Hub struct {
	logger  *slog.Logger
	upgrade websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	handler CommandHandler
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewHub builds an empty hub. Wire the command handler before serving.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger.With("component", "push"),
		upgrade: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// SetHandler wires the consumer of inbound dashboard commands.
func (h *Hub) SetHandler(handler CommandHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = handler
}

// ServeHTTP upgrades a dashboard connection and pumps frames both ways.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrade.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 32)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("dashboard connected", "remote", r.RemoteAddr)

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) drop(c *client) {
	c.once.Do(func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		close(c.send)
		_ = c.conn.Close()
	})
}

func (h *Hub) writeLoop(c *client) {
	for frame := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			h.drop(c)
			return
		}
	}
}

func (h *Hub) readLoop(c *client) {
	defer h.drop(c)
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		h.dispatch(frame)
	}
}

func (h *Hub) dispatch(frame []byte) {
	h.mu.Lock()
	handler := h.handler
	h.mu.Unlock()
	if handler == nil {
		return
	}

	var cmd command
	if err := json.Unmarshal(frame, &cmd); err != nil {
		h.logger.Warn("malformed dashboard command dropped", "error", err)
		return
	}

	ctx := context.Background()
	switch cmd.Type {
	case "checklist_update":
		at := time.Now()
		if ts, err := time.Parse(time.RFC3339, cmd.Timestamp); err == nil {
			at = ts
		}
		handler.HandleChecklistUpdate(ctx, cmd.SessionID, cmd.StepID, cmd.Checked, at)
	case "manual_end":
		handler.HandleManualEnd(ctx, cmd.WorkstationID, cmd.Reason)
	case "operator_login":
		handler.HandleOperatorLogin(ctx, cmd.WorkstationID, cmd.OperatorID)
	default:
		h.logger.Warn("unknown dashboard command dropped", "type", cmd.Type)
	}
}

func (h *Hub) broadcast(kind string, data any) {
	frame, err := json.Marshal(envelope{Type: kind, Data: data})
	if err != nil {
		h.logger.Error("event marshal failed", "type", kind, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			h.logger.Warn("slow dashboard client, frame dropped", "type", kind)
		}
	}
}

// SessionStarted implements ports.EventSink.
func (h *Hub) SessionStarted(session domain.Session) {
	h.broadcast("session_started", session)
}

// ServiceLocked implements ports.EventSink.
func (h *Hub) ServiceLocked(session domain.Session, checklist []domain.ChecklistItem) {
	h.broadcast("service_locked", lockedEvent{Session: session, Checklist: checklist})
}

// ChecklistSnapshot implements ports.EventSink. Consumers always receive the
// full current checklist, never a delta, so reconnects need no reconciliation.
func (h *Hub) ChecklistSnapshot(session domain.Session, checklist []domain.ChecklistItem) {
	h.broadcast("sop_update", lockedEvent{Session: session, Checklist: checklist})
}

// SessionEnded implements ports.EventSink.
func (h *Hub) SessionEnded(session domain.Session, score int) {
	h.broadcast("session_ended", endedEvent{Session: session, Score: score})
}

// EndBlocked implements ports.EventSink. The desk sees that the spoken
// "done" keyword did not close the session because SOP steps remain open.
func (h *Hub) EndBlocked(workstationID, sessionID string) {
	h.broadcast("end_blocked", blockedEvent{WorkstationID: workstationID, SessionID: sessionID})
}

// EndRejected implements ports.EventSink.
func (h *Hub) EndRejected(workstationID, detail string) {
	h.broadcast("end_rejected", rejectedEvent{WorkstationID: workstationID, Detail: detail})
}
