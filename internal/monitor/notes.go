package monitor

import (
	"sync"
	"time"
)

// maxNotes bounds the per-job rolling note log.
const maxNotes = 50

// NoteEntry is one advisory line shown to the operator.
type NoteEntry struct {
	At   time.Time
	Text string
}

// noteLog is a bounded rolling log of advisory notes for one job. Oldest
// entries fall off once the bound is reached.
type noteLog struct {
	mu      sync.Mutex
	entries []NoteEntry
}

func (l *noteLog) append(text string) {
	if text == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, NoteEntry{At: time.Now(), Text: text})
	if len(l.entries) > maxNotes {
		l.entries = l.entries[len(l.entries)-maxNotes:]
	}
}

// all returns a copy of the log, oldest first.
func (l *noteLog) all() []NoteEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == 0 {
		return nil
	}
	out := make([]NoteEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
