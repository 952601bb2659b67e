package models

import "time"

// User is a known participant. Users are created implicitly the first time a
// user id appears on an inbound request.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Timezone  string    `json:"timezone,omitempty"` // e.g., "America/New_York"
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Session is a user's connection to an external health provider. Tokens are
// persisted but never serialized into API responses.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Provider     string    `json:"provider"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// Expired reports whether the session's access token is past its lifetime.
func (s *Session) Expired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// Conversation groups a user's messages.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one stored user message together with its classification.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id,omitempty"`
	UserID         string         `json:"user_id"`
	Body           string         `json:"body"`
	Emotion        EmotionalState `json:"emotion"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Document is an arbitrary stored artifact (exported reports, provider
// payload snapshots) kept for later inspection.
type Document struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	MimeType  string    `json:"mime_type,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MoodEntry is one persisted analysis outcome. Details carries the full
// structured result; the flat columns exist for cheap querying.
type MoodEntry struct {
	ID               string           `json:"id"`
	UserID           string           `json:"user_id"`
	Score            int              `json:"score"`
	Prediction       MoodPrediction   `json:"prediction"`
	ExtractionMethod ExtractionMethod `json:"extraction_method"`
	Details          AnalysisResult   `json:"details"`
	RecordedAt       time.Time        `json:"recorded_at"`
}
