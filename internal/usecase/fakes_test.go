package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"tellerdesk/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var (
	errFakeNotFound = errors.New("not found")
	errFakeClosed   = errors.New("already closed")
)

// fakeStore is an in-memory ports.Store (plus SessionOpener) used across
// the usecase tests.
type fakeStore struct {
	mu        sync.Mutex
	nextSess  int
	sessions  map[string]*domain.Session
	fragments map[string][]domain.TranscriptFragment
	items     map[string][]domain.ChecklistItem
	devices   map[string]domain.Workstation

	failCreate error
	failClose  error
	failLock   error
	lockCalls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions:  make(map[string]*domain.Session),
		fragments: make(map[string][]domain.TranscriptFragment),
		items:     make(map[string][]domain.ChecklistItem),
		devices:   make(map[string]domain.Workstation),
	}
}

func (f *fakeStore) addWorkstation(ws domain.Workstation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices[ws.DeviceID] = ws
}

func (f *fakeStore) CreateSession(_ context.Context, workstationID, operatorID string, start time.Time) (domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate != nil {
		return domain.Session{}, f.failCreate
	}
	for _, sess := range f.sessions {
		if sess.WorkstationID == workstationID && sess.EndTime == nil {
			return domain.Session{}, fmt.Errorf("open session exists for %s", workstationID)
		}
	}
	f.nextSess++
	sess := domain.Session{
		ID:            fmt.Sprintf("SR%04d", f.nextSess),
		WorkstationID: workstationID,
		OperatorID:    operatorID,
		StartTime:     start,
		IsNormalFlow:  true,
	}
	f.sessions[sess.ID] = &sess
	return sess, nil
}

func (f *fakeStore) SessionByID(_ context.Context, sessionID string) (domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[sessionID]
	if !ok {
		return domain.Session{}, errFakeNotFound
	}
	return *sess, nil
}

func (f *fakeStore) AttachOperator(_ context.Context, sessionID, operatorID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[sessionID]
	if !ok {
		return errFakeNotFound
	}
	if sess.OperatorID == "" {
		sess.OperatorID = operatorID
	}
	return nil
}

func (f *fakeStore) LockService(_ context.Context, sessionID, serviceID, label string, confidence float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lockCalls++
	if f.failLock != nil {
		return f.failLock
	}
	sess, ok := f.sessions[sessionID]
	if !ok {
		return errFakeNotFound
	}
	if sess.EndTime != nil || sess.ServiceID != "" {
		return errFakeClosed
	}
	sess.ServiceID = serviceID
	sess.ServiceLabel = label
	sess.Confidence = confidence
	return nil
}

func (f *fakeStore) CloseSession(_ context.Context, sessionID string, end time.Time, isNormalFlow bool, reason string) (domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failClose != nil {
		return domain.Session{}, f.failClose
	}
	sess, ok := f.sessions[sessionID]
	if !ok {
		return domain.Session{}, errFakeNotFound
	}
	if sess.EndTime != nil {
		return domain.Session{}, errFakeClosed
	}
	var parts []string
	for _, frag := range f.fragments[sessionID] {
		parts = append(parts, frag.Text)
	}
	sess.Transcript = strings.Join(parts, "")
	sess.EndTime = &end
	sess.DurationSec = int(end.Sub(sess.StartTime).Seconds())
	sess.IsNormalFlow = isNormalFlow
	sess.Reason = reason
	return *sess, nil
}

func (f *fakeStore) AppendFragment(_ context.Context, sessionID string, seq int, text string, at time.Time) (domain.TranscriptFragment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[sessionID]
	if !ok {
		return domain.TranscriptFragment{}, errFakeNotFound
	}
	if sess.EndTime != nil {
		return domain.TranscriptFragment{}, errFakeClosed
	}
	frag := domain.TranscriptFragment{
		ID:        fmt.Sprintf("CK%04d", len(f.fragments[sessionID])+1),
		SessionID: sessionID,
		Seq:       seq,
		Text:      text,
		CreatedAt: at,
	}
	f.fragments[sessionID] = append(f.fragments[sessionID], frag)
	return frag, nil
}

func (f *fakeStore) FragmentsForSession(_ context.Context, sessionID string) ([]domain.TranscriptFragment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	frags := append([]domain.TranscriptFragment(nil), f.fragments[sessionID]...)
	sort.Slice(frags, func(i, j int) bool { return frags[i].Seq < frags[j].Seq })
	return frags, nil
}

func (f *fakeStore) CreateChecklist(_ context.Context, sessionID string, steps []domain.SOPStep) ([]domain.ChecklistItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing := f.items[sessionID]; len(existing) > 0 {
		return append([]domain.ChecklistItem(nil), existing...), nil
	}
	var items []domain.ChecklistItem
	for i, step := range steps {
		items = append(items, domain.ChecklistItem{
			ID:        fmt.Sprintf("CE%04d", i+1),
			SessionID: sessionID,
			StepID:    step.ID,
			Position:  step.Number,
			Label:     step.Label,
		})
	}
	f.items[sessionID] = items
	return append([]domain.ChecklistItem(nil), items...), nil
}

func (f *fakeStore) ChecklistItems(_ context.Context, sessionID string) ([]domain.ChecklistItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ChecklistItem(nil), f.items[sessionID]...), nil
}

func (f *fakeStore) SetChecklistItem(_ context.Context, sessionID, stepID string, checked bool, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items[sessionID] {
		if f.items[sessionID][i].StepID == stepID {
			f.items[sessionID][i].Checked = checked
			if checked {
				f.items[sessionID][i].CheckedAt = &at
			} else {
				f.items[sessionID][i].CheckedAt = nil
			}
			return nil
		}
	}
	return errFakeNotFound
}

func (f *fakeStore) WorkstationByDevice(_ context.Context, deviceID string) (domain.Workstation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ws, ok := f.devices[deviceID]
	if !ok {
		return domain.Workstation{}, errFakeNotFound
	}
	return ws, nil
}

func (f *fakeStore) OpenSessionForWorkstation(_ context.Context, workstationID string) (domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sess := range f.sessions {
		if sess.WorkstationID == workstationID && sess.EndTime == nil {
			return *sess, nil
		}
	}
	return domain.Session{}, errFakeNotFound
}

func (f *fakeStore) checkAll(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	for i := range f.items[sessionID] {
		f.items[sessionID][i].Checked = true
		f.items[sessionID][i].CheckedAt = &now
	}
}

func (f *fakeStore) session(sessionID string) domain.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sess, ok := f.sessions[sessionID]; ok {
		return *sess
	}
	return domain.Session{}
}

// fakeCatalog serves a fixed two-step procedure for every known service.
type fakeCatalog struct {
	unknown map[string]bool
}

func (f *fakeCatalog) ServiceSteps(_ context.Context, serviceID string) ([]domain.SOPStep, error) {
	if f.unknown[serviceID] {
		return nil, fmt.Errorf("service %s: %w", serviceID, errFakeNotFound)
	}
	return []domain.SOPStep{
		{ID: "ST0001", ServiceID: serviceID, Number: 1, Label: "Verifikasi identitas"},
		{ID: "ST0002", ServiceID: serviceID, Number: 2, Label: "Selesaikan transaksi"},
	}, nil
}

type lockedCall struct {
	session   domain.Session
	checklist []domain.ChecklistItem
}

type endedCall struct {
	session domain.Session
	score   int
}

type blockedCall struct {
	workstationID string
	sessionID     string
}

// fakeSink records every event delivery.
type fakeSink struct {
	mu        sync.Mutex
	started   []domain.Session
	locked    []lockedCall
	snapshots []lockedCall
	ended     []endedCall
	blocked   []blockedCall
	rejected  []string
}

func (f *fakeSink) SessionStarted(session domain.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, session)
}

func (f *fakeSink) ServiceLocked(session domain.Session, checklist []domain.ChecklistItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locked = append(f.locked, lockedCall{session: session, checklist: checklist})
}

func (f *fakeSink) ChecklistSnapshot(session domain.Session, checklist []domain.ChecklistItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, lockedCall{session: session, checklist: checklist})
}

func (f *fakeSink) SessionEnded(session domain.Session, score int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, endedCall{session: session, score: score})
}

func (f *fakeSink) EndBlocked(workstationID, sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocked = append(f.blocked, blockedCall{workstationID: workstationID, sessionID: sessionID})
}

func (f *fakeSink) EndRejected(workstationID, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejected = append(f.rejected, workstationID)
}

// fakeControl records end-stream commands sent to devices.
type fakeControl struct {
	mu      sync.Mutex
	devices []string
	err     error
}

func (f *fakeControl) EndStream(deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices = append(f.devices, deviceID)
	return f.err
}

// fakeTranscriber maps audio payloads to canned text.
type fakeTranscriber struct {
	mu      sync.Mutex
	replies map[string]string
	err     error
	calls   int
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audio []byte, _ domain.AudioFormat, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.replies[string(audio)], nil
}

// fakeDetector returns a fixed verdict and counts invocations.
type fakeDetector struct {
	mu      sync.Mutex
	verdict domain.Detection
	lock    bool
	calls   int
}

func (f *fakeDetector) Detect(string) domain.Detection {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.verdict
}

func (f *fakeDetector) ShouldLock(string, float64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lock
}

func (f *fakeDetector) detectCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
