package store

import (
	"log/slog"

	"github.com/BTreeMap/MoodPipe/internal/bus"
	"github.com/BTreeMap/MoodPipe/internal/models"
)

// Recorder persists completed analyses as mood entries. It runs as a bus
// subscriber so persistence stays off the workflow's critical path.
type Recorder struct {
	store Store
}

// NewRecorder creates a recorder writing into st.
func NewRecorder(st Store) *Recorder {
	return &Recorder{store: st}
}

// Attach subscribes the recorder to completed analyses published on topic.
// The returned function unsubscribes.
func (r *Recorder) Attach(b *bus.Bus, topic string) func() {
	return b.Subscribe(topic, r.handle)
}

// handle is best effort: a failed write is logged and dropped so a storage
// outage cannot stall analysis.
func (r *Recorder) handle(event string, payload any) {
	res, ok := payload.(models.AnalysisResult)
	if !ok {
		slog.Warn("Recorder.handle: unexpected payload type", "event", event)
		return
	}

	if err := r.store.UpsertUser(models.User{ID: res.UserID}); err != nil {
		slog.Error("Recorder.handle: user upsert failed", "error", err, "userID", res.UserID)
	}

	entry := models.MoodEntry{
		ID:               res.InvocationID,
		UserID:           res.UserID,
		Score:            res.Mood.Score,
		Prediction:       res.Mood.Prediction,
		ExtractionMethod: res.Metrics.ExtractionMethod,
		Details:          res,
		RecordedAt:       res.CompletedAt,
	}
	if err := r.store.SaveMoodEntry(entry); err != nil {
		slog.Error("Recorder.handle: mood entry write failed",
			"error", err, "userID", res.UserID, "invocationID", res.InvocationID)
		return
	}
	slog.Debug("Recorder.handle: mood entry persisted", "userID", res.UserID, "score", entry.Score)
}
