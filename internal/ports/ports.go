package ports

import (
	"context"
	"time"

	"tellerdesk/internal/domain"
)

// Transcriber converts one audio chunk to text. Implementations may take
// seconds per call and hold no connection state between calls.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, format domain.AudioFormat, sampleRate int) (string, error)
}

// IntentDetector scores transcript text against the candidate services and
// decides when a detection is confident enough to commit.
type IntentDetector interface {
	Detect(text string) domain.Detection
	ShouldLock(serviceKey string, confidence float64) bool
}

// SOPCatalog resolves a locked service to its canonical ordered step list.
type SOPCatalog interface {
	ServiceSteps(ctx context.Context, serviceID string) ([]domain.SOPStep, error)
}

// Store is the durable backing for sessions, transcript fragments and
// checklist state.
type Store interface {
	CreateSession(ctx context.Context, workstationID, operatorID string, start time.Time) (domain.Session, error)
	SessionByID(ctx context.Context, sessionID string) (domain.Session, error)
	AttachOperator(ctx context.Context, sessionID, operatorID string) error
	LockService(ctx context.Context, sessionID, serviceID, label string, confidence float64) error

	// CloseSession sets the end-of-life fields and aggregates the session
	// transcript from its fragments in one transaction.
	CloseSession(ctx context.Context, sessionID string, end time.Time, isNormalFlow bool, reason string) (domain.Session, error)

	AppendFragment(ctx context.Context, sessionID string, seq int, text string, at time.Time) (domain.TranscriptFragment, error)
	FragmentsForSession(ctx context.Context, sessionID string) ([]domain.TranscriptFragment, error)

	CreateChecklist(ctx context.Context, sessionID string, steps []domain.SOPStep) ([]domain.ChecklistItem, error)
	ChecklistItems(ctx context.Context, sessionID string) ([]domain.ChecklistItem, error)
	SetChecklistItem(ctx context.Context, sessionID, stepID string, checked bool, at time.Time) error

	WorkstationByDevice(ctx context.Context, deviceID string) (domain.Workstation, error)
}

// EventSink pushes session progress to the dashboard channel. Deliveries are
// fire and forget; a slow or absent consumer must never block the caller.
type EventSink interface {
	SessionStarted(session domain.Session)
	ServiceLocked(session domain.Session, checklist []domain.ChecklistItem)
	ChecklistSnapshot(session domain.Session, checklist []domain.ChecklistItem)
	SessionEnded(session domain.Session, score int)
	EndBlocked(workstationID, sessionID string)
	EndRejected(workstationID, detail string)
}

// DeviceControl sends commands back to an RP edge device.
type DeviceControl interface {
	EndStream(deviceID string) error
}
