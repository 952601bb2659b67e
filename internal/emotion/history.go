package emotion

import (
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/MoodPipe/internal/models"
)

// HistoryStore keeps a rolling per-user window of prior messages and their
// classifications. The classifier itself is stateless; callers record each
// classified message here and pass the window back on the next call.
//
// The window is capped at models.MaxHistoryEntries; the oldest entry is
// evicted when the cap is reached.
type HistoryStore struct {
	mu      sync.RWMutex
	entries map[string][]models.PriorMessage
}

// NewHistoryStore creates an empty HistoryStore.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{
		entries: make(map[string][]models.PriorMessage),
	}
}

// Record appends one classified message to the user's history, evicting the
// oldest entry when the window is full.
func (h *HistoryStore) Record(userID, body, primaryEmotion string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	window := append(h.entries[userID], models.PriorMessage{
		Body:    body,
		Emotion: primaryEmotion,
		SentAt:  time.Now(),
	})
	if len(window) > models.MaxHistoryEntries {
		evicted := len(window) - models.MaxHistoryEntries
		window = window[evicted:]
		slog.Debug("HistoryStore.Record: evicted oldest entries", "user_id", userID, "evicted", evicted)
	}
	h.entries[userID] = window
}

// Window returns a copy of the user's history, oldest first. Unknown users
// get an empty window.
func (h *HistoryStore) Window(userID string) []models.PriorMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()

	window := h.entries[userID]
	out := make([]models.PriorMessage, len(window))
	copy(out, window)
	return out
}

// Depth returns how many messages are currently retained for the user.
func (h *HistoryStore) Depth(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries[userID])
}
