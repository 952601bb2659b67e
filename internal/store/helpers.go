package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/MoodPipe/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// The withXTimes helpers fill zero timestamps before a write so rows never
// carry the zero time when the caller left stamping to the store.

func withUserTimes(u models.User) models.User {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = now
	}
	return u
}

func withSessionTimes(sess models.Session) models.Session {
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	return sess
}

func withConversationTimes(c models.Conversation) models.Conversation {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	return c
}

func withMessageTimes(m models.Message) models.Message {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	return m
}

func withDocumentTimes(d models.Document) models.Document {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	return d
}

func withMoodEntryTimes(e models.MoodEntry) models.MoodEntry {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}
	return e
}

// normalizeLimit applies the default window to non-positive limits.
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	return limit
}

// decodeJSONColumn unmarshals a nullable JSON column into out. Corrupt
// payloads are logged and leave out zero-valued; reads never fail on them.
func decodeJSONColumn(col sql.NullString, out any, column string) {
	if !col.Valid || col.String == "" {
		return
	}
	if err := json.Unmarshal([]byte(col.String), out); err != nil {
		slog.Error("store: corrupt JSON column", "column", column, "error", err)
	}
}

// scanMessage scans a Message from sql.Rows.
func scanMessage(rows *sql.Rows) (models.Message, error) {
	var m models.Message
	var conversationID, emotionJSON sql.NullString
	if err := rows.Scan(&m.ID, &conversationID, &m.UserID, &m.Body, &emotionJSON, &m.CreatedAt); err != nil {
		return m, fmt.Errorf("scan message failed: %w", err)
	}
	m.ConversationID = conversationID.String
	decodeJSONColumn(emotionJSON, &m.Emotion, "messages.emotion")
	return m, nil
}

// scanMoodEntry scans a MoodEntry from sql.Rows.
func scanMoodEntry(rows *sql.Rows) (models.MoodEntry, error) {
	var e models.MoodEntry
	var method, detailsJSON sql.NullString
	if err := rows.Scan(&e.ID, &e.UserID, &e.Score, &e.Prediction, &method, &detailsJSON, &e.RecordedAt); err != nil {
		return e, fmt.Errorf("scan mood entry failed: %w", err)
	}
	e.ExtractionMethod = models.ExtractionMethod(method.String)
	decodeJSONColumn(detailsJSON, &e.Details, "mood_entries.details")
	return e, nil
}
