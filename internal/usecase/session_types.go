package usecase

import (
	"sync"
)

// fragmentPart is one store-bound slice of freshly transcribed text.
type fragmentPart struct {
	seq  int
	text string
}

// sessionState is the in-memory runtime state of one open session. The
// registry owns creation and teardown; the pipeline worker that the session's
// workstation hashes to is the only other writer.
type sessionState struct {
	mu sync.Mutex

	id            string
	workstationID string
	deviceID      string

	locked  bool
	nextSeq int
	hasText bool

	// window holds the tail of the transcript that detection runs over.
	// It doubles as the session's DetectionState: cleared at lock time,
	// after which no further detection happens.
	window string
}

// append slices text into ordered fragments of at most maxFragment runes and
// advances the detection window. It returns the parts to persist, the window
// to score, and whether the session is already locked.
func (s *sessionState) append(text string, maxFragment, windowMax int) (parts []fragmentPart, window string, locked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasText {
		text = " " + text
	}
	s.hasText = true

	runes := []rune(text)
	for len(runes) > 0 {
		n := maxFragment
		if n > len(runes) {
			n = len(runes)
		}
		parts = append(parts, fragmentPart{seq: s.nextSeq, text: string(runes[:n])})
		s.nextSeq++
		runes = runes[n:]
	}

	if !s.locked {
		s.window += text
		if w := []rune(s.window); len(w) > windowMax {
			s.window = string(w[len(w)-windowMax:])
		}
	}
	return parts, s.window, s.locked
}

// lock commits the one-way service lock and discards detection state.
// It reports false if another worker won the race.
func (s *sessionState) lock() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return false
	}
	s.locked = true
	s.window = ""
	return true
}

func (s *sessionState) isLocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}
