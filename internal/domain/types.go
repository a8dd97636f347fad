package domain

import "time"

// Session is one customer interaction at a physical workstation.
type Session struct {
	ID            string     `json:"sessionId"`
	WorkstationID string     `json:"workstationId"`
	OperatorID    string     `json:"operatorId,omitempty"`
	StartTime     time.Time  `json:"startTime"`
	EndTime       *time.Time `json:"endTime,omitempty"`
	DurationSec   int        `json:"durationSec,omitempty"`
	ServiceID     string     `json:"serviceId,omitempty"`
	ServiceLabel  string     `json:"serviceLabel,omitempty"`
	Confidence    float64    `json:"confidence"`
	Transcript    string     `json:"transcript,omitempty"`
	IsNormalFlow  bool       `json:"isNormalFlow"`
	Reason        string     `json:"reason,omitempty"`
}

// Locked reports whether a service has been committed for this session.
func (s Session) Locked() bool {
	return s.ServiceID != ""
}

// TranscriptFragment is an immutable, ordered slice of transcribed text.
// Concatenating a session's fragments in Seq order reproduces the full
// transcript exactly as it was appended.
type TranscriptFragment struct {
	ID        string    `json:"fragmentId"`
	SessionID string    `json:"sessionId"`
	Seq       int       `json:"seq"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChecklistItem tracks one SOP step's completion state within a session.
type ChecklistItem struct {
	ID        string     `json:"checklistId"`
	SessionID string     `json:"sessionId"`
	StepID    string     `json:"stepId"`
	Position  int        `json:"position"`
	Label     string     `json:"label"`
	Checked   bool       `json:"checked"`
	CheckedAt *time.Time `json:"checkedAt,omitempty"`
}

// SOPStep is one canonical compliance step of a service's procedure.
type SOPStep struct {
	ID        string `json:"stepId"`
	ServiceID string `json:"serviceId"`
	Number    int    `json:"number"`
	Label     string `json:"label"`
}

// Workstation is a registered service desk paired 1:1 with an RP edge device.
type Workstation struct {
	ID       string `json:"workstationId"`
	DeviceID string `json:"deviceId"`
	Location string `json:"location"`
	Active   bool   `json:"active"`
}

// AudioFormat tags the encoding of an inbound audio chunk.
type AudioFormat string

const (
	AudioFormatPCM16 AudioFormat = "pcm16"
	AudioFormatWAV   AudioFormat = "wav"
	AudioFormatMP3   AudioFormat = "mp3"
)

// Supported reports whether the ingestion pipeline accepts this encoding.
func (f AudioFormat) Supported() bool {
	switch f {
	case AudioFormatPCM16, AudioFormatWAV, AudioFormatMP3:
		return true
	}
	return false
}

// KWSKind classifies a keyword-spotting event from the edge device.
type KWSKind string

const (
	KWSStart   KWSKind = "start"
	KWSEnd     KWSKind = "end"
	KWSUnknown KWSKind = "unknown"
)

// KWSEvent is a spoken-keyword event emitted by an RP unit.
type KWSEvent struct {
	Kind      KWSKind
	Raw       string
	Timestamp time.Time
}

// AudioChunk is one slice of microphone audio addressed to a workstation.
type AudioChunk struct {
	WorkstationID string
	Seq           int
	Data          []byte
	Format        AudioFormat
	SampleRate    int
}

// Detection is the intent detector's verdict over a transcript window.
type Detection struct {
	ServiceKey string
	ServiceID  string
	Label      string
	Confidence float64
	Matched    []string
}
