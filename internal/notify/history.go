package notify

import (
	"sync"
	"time"

	"github.com/carbon-tracker/internal/models"
)

// HistoryCapacity is the number of entries the operation history retains
const HistoryCapacity = 10

// HistoryLog is a bounded, newest-first log of human-readable action
// descriptions. Session only; never persisted.
type HistoryLog struct {
	mu      sync.Mutex
	entries []models.HistoryEntry
	now     func() time.Time
}

// NewHistoryLog creates an empty history log
func NewHistoryLog() *HistoryLog {
	return &HistoryLog{now: time.Now}
}

// Append prepends a timestamped entry, dropping the oldest beyond capacity
func (h *HistoryLog) Append(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry := models.HistoryEntry{Timestamp: h.now(), Text: text}
	h.entries = append([]models.HistoryEntry{entry}, h.entries...)
	if len(h.entries) > HistoryCapacity {
		h.entries = h.entries[:HistoryCapacity]
	}
}

// Entries returns a copy of the log, newest first
func (h *HistoryLog) Entries() []models.HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]models.HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}
