// Package store provides storage backends for MoodPipe.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "embed"

	"github.com/BTreeMap/MoodPipe/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(strings.TrimPrefix(dsn, "file:"))
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) UpsertUser(u models.User) error {
	u = withUserTimes(u)
	_, err := s.db.Exec(`
		INSERT INTO users (id, name, timezone, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name       = COALESCE(excluded.name, users.name),
			timezone   = COALESCE(excluded.timezone, users.timezone),
			updated_at = excluded.updated_at`,
		u.ID, nilIfEmpty(u.Name), nilIfEmpty(u.Timezone), u.CreatedAt, u.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore UpsertUser failed", "error", err, "userID", u.ID)
		return fmt.Errorf("failed to upsert user %s: %w", u.ID, err)
	}
	slog.Debug("SQLiteStore UpsertUser succeeded", "userID", u.ID)
	return nil
}

func (s *SQLiteStore) GetUser(id string) (*models.User, error) {
	var u models.User
	var name, timezone sql.NullString
	err := s.db.QueryRow(`SELECT id, name, timezone, created_at, updated_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &name, &timezone, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: user %s", models.ErrNotFound, id)
	}
	if err != nil {
		slog.Error("SQLiteStore GetUser failed", "error", err, "userID", id)
		return nil, fmt.Errorf("failed to query user %s: %w", id, err)
	}
	u.Name = name.String
	u.Timezone = timezone.String
	return &u, nil
}

func (s *SQLiteStore) SaveSession(sess models.Session) error {
	sess = withSessionTimes(sess)
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, user_id, provider, access_token, refresh_token, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, provider) DO UPDATE SET
			id            = excluded.id,
			access_token  = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at    = excluded.expires_at,
			created_at    = excluded.created_at`,
		sess.ID, sess.UserID, sess.Provider, sess.AccessToken,
		nilIfEmpty(sess.RefreshToken), sess.ExpiresAt, sess.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "userID", sess.UserID, "provider", sess.Provider)
		return fmt.Errorf("failed to save session for %s/%s: %w", sess.UserID, sess.Provider, err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "userID", sess.UserID, "provider", sess.Provider)
	return nil
}

func (s *SQLiteStore) GetSession(userID, provider string) (*models.Session, error) {
	var sess models.Session
	var refreshToken sql.NullString
	err := s.db.QueryRow(`SELECT id, user_id, provider, access_token, refresh_token, expires_at, created_at
		FROM sessions WHERE user_id = ? AND provider = ?`, userID, provider).
		Scan(&sess.ID, &sess.UserID, &sess.Provider, &sess.AccessToken,
			&refreshToken, &sess.ExpiresAt, &sess.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: session %s/%s", models.ErrNotFound, userID, provider)
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "userID", userID, "provider", provider)
		return nil, fmt.Errorf("failed to query session %s/%s: %w", userID, provider, err)
	}
	sess.RefreshToken = refreshToken.String
	return &sess, nil
}

func (s *SQLiteStore) DeleteSession(userID, provider string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE user_id = ? AND provider = ?`, userID, provider)
	if err != nil {
		slog.Error("SQLiteStore DeleteSession failed", "error", err, "userID", userID, "provider", provider)
		return fmt.Errorf("failed to delete session %s/%s: %w", userID, provider, err)
	}
	slog.Debug("SQLiteStore DeleteSession succeeded", "userID", userID, "provider", provider)
	return nil
}

func (s *SQLiteStore) CreateConversation(c models.Conversation) error {
	c = withConversationTimes(c)
	_, err := s.db.Exec(`
		INSERT INTO conversations (id, user_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		c.ID, c.UserID, nilIfEmpty(c.Title), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateConversation failed", "error", err, "conversationID", c.ID)
		return fmt.Errorf("failed to create conversation %s: %w", c.ID, err)
	}
	return nil
}

func (s *SQLiteStore) AddMessage(m models.Message) error {
	m = withMessageTimes(m)
	emotionJSON, err := json.Marshal(m.Emotion)
	if err != nil {
		slog.Error("SQLiteStore AddMessage marshal failed", "error", err, "userID", m.UserID)
		return fmt.Errorf("failed to encode emotional state: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO messages (id, conversation_id, user_id, body, emotion, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, nilIfEmpty(m.ConversationID), m.UserID, m.Body, string(emotionJSON), m.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddMessage failed", "error", err, "userID", m.UserID)
		return fmt.Errorf("failed to insert message for %s: %w", m.UserID, err)
	}
	slog.Debug("SQLiteStore AddMessage succeeded", "userID", m.UserID, "messageID", m.ID)
	return nil
}

func (s *SQLiteStore) RecentMessages(userID string, limit int) ([]models.Message, error) {
	rows, err := s.db.Query(`SELECT id, conversation_id, user_id, body, emotion, created_at
		FROM messages WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, normalizeLimit(limit))
	if err != nil {
		slog.Error("SQLiteStore RecentMessages query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query messages for %s: %w", userID, err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			slog.Error("SQLiteStore RecentMessages scan failed", "error", err)
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore RecentMessages rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	return messages, nil
}

func (s *SQLiteStore) SaveDocument(d models.Document) error {
	d = withDocumentTimes(d)
	_, err := s.db.Exec(`
		INSERT INTO documents (id, user_id, title, content, mime_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, nilIfEmpty(d.UserID), d.Title, d.Content, nilIfEmpty(d.MimeType), d.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveDocument failed", "error", err, "documentID", d.ID)
		return fmt.Errorf("failed to insert document %s: %w", d.ID, err)
	}
	slog.Debug("SQLiteStore SaveDocument succeeded", "documentID", d.ID)
	return nil
}

func (s *SQLiteStore) GetDocument(id string) (*models.Document, error) {
	var d models.Document
	var userID, mimeType sql.NullString
	err := s.db.QueryRow(`SELECT id, user_id, title, content, mime_type, created_at
		FROM documents WHERE id = ?`, id).
		Scan(&d.ID, &userID, &d.Title, &d.Content, &mimeType, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: document %s", models.ErrNotFound, id)
	}
	if err != nil {
		slog.Error("SQLiteStore GetDocument failed", "error", err, "documentID", id)
		return nil, fmt.Errorf("failed to query document %s: %w", id, err)
	}
	d.UserID = userID.String
	d.MimeType = mimeType.String
	return &d, nil
}

func (s *SQLiteStore) SaveMoodEntry(e models.MoodEntry) error {
	e = withMoodEntryTimes(e)
	detailsJSON, err := json.Marshal(e.Details)
	if err != nil {
		slog.Error("SQLiteStore SaveMoodEntry marshal failed", "error", err, "userID", e.UserID)
		return fmt.Errorf("failed to encode mood entry details: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO mood_entries (id, user_id, score, prediction, extraction_method, details, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Score, e.Prediction, nilIfEmpty(string(e.ExtractionMethod)),
		string(detailsJSON), e.RecordedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveMoodEntry failed", "error", err, "userID", e.UserID)
		return fmt.Errorf("failed to insert mood entry for %s: %w", e.UserID, err)
	}
	slog.Debug("SQLiteStore SaveMoodEntry succeeded", "userID", e.UserID, "score", e.Score)
	return nil
}

func (s *SQLiteStore) RecentMoodEntries(userID string, limit int) ([]models.MoodEntry, error) {
	rows, err := s.db.Query(`SELECT id, user_id, score, prediction, extraction_method, details, recorded_at
		FROM mood_entries WHERE user_id = ? ORDER BY recorded_at DESC, id DESC LIMIT ?`,
		userID, normalizeLimit(limit))
	if err != nil {
		slog.Error("SQLiteStore RecentMoodEntries query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query mood entries for %s: %w", userID, err)
	}
	defer rows.Close()

	var entries []models.MoodEntry
	for rows.Next() {
		e, err := scanMoodEntry(rows)
		if err != nil {
			slog.Error("SQLiteStore RecentMoodEntries scan failed", "error", err)
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore RecentMoodEntries rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate mood entry rows: %w", err)
	}
	return entries, nil
}

func (s *SQLiteStore) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM system_settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: setting %s", models.ErrNotFound, key)
	}
	if err != nil {
		slog.Error("SQLiteStore GetSetting failed", "error", err, "key", key)
		return "", fmt.Errorf("failed to query setting %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStore) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO system_settings (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		slog.Error("SQLiteStore SetSetting failed", "error", err, "key", key)
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}

var _ Store = (*SQLiteStore)(nil)
