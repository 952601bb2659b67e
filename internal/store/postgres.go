// Package store provides storage backends for MoodPipe.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/MoodPipe/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) UpsertUser(u models.User) error {
	u = withUserTimes(u)
	_, err := s.db.Exec(`
		INSERT INTO users (id, name, timezone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name       = COALESCE(excluded.name, users.name),
			timezone   = COALESCE(excluded.timezone, users.timezone),
			updated_at = excluded.updated_at`,
		u.ID, nilIfEmpty(u.Name), nilIfEmpty(u.Timezone), u.CreatedAt, u.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore UpsertUser failed", "error", err, "userID", u.ID)
		return fmt.Errorf("failed to upsert user %s: %w", u.ID, err)
	}
	slog.Debug("PostgresStore UpsertUser succeeded", "userID", u.ID)
	return nil
}

func (s *PostgresStore) GetUser(id string) (*models.User, error) {
	var u models.User
	var name, timezone sql.NullString
	err := s.db.QueryRow(`SELECT id, name, timezone, created_at, updated_at FROM users WHERE id = $1`, id).
		Scan(&u.ID, &name, &timezone, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: user %s", models.ErrNotFound, id)
	}
	if err != nil {
		slog.Error("PostgresStore GetUser failed", "error", err, "userID", id)
		return nil, fmt.Errorf("failed to query user %s: %w", id, err)
	}
	u.Name = name.String
	u.Timezone = timezone.String
	return &u, nil
}

func (s *PostgresStore) SaveSession(sess models.Session) error {
	sess = withSessionTimes(sess)
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, user_id, provider, access_token, refresh_token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			id            = excluded.id,
			access_token  = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at    = excluded.expires_at,
			created_at    = excluded.created_at`,
		sess.ID, sess.UserID, sess.Provider, sess.AccessToken,
		nilIfEmpty(sess.RefreshToken), sess.ExpiresAt, sess.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "userID", sess.UserID, "provider", sess.Provider)
		return fmt.Errorf("failed to save session for %s/%s: %w", sess.UserID, sess.Provider, err)
	}
	slog.Debug("PostgresStore SaveSession succeeded", "userID", sess.UserID, "provider", sess.Provider)
	return nil
}

func (s *PostgresStore) GetSession(userID, provider string) (*models.Session, error) {
	var sess models.Session
	var refreshToken sql.NullString
	err := s.db.QueryRow(`SELECT id, user_id, provider, access_token, refresh_token, expires_at, created_at
		FROM sessions WHERE user_id = $1 AND provider = $2`, userID, provider).
		Scan(&sess.ID, &sess.UserID, &sess.Provider, &sess.AccessToken,
			&refreshToken, &sess.ExpiresAt, &sess.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: session %s/%s", models.ErrNotFound, userID, provider)
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "userID", userID, "provider", provider)
		return nil, fmt.Errorf("failed to query session %s/%s: %w", userID, provider, err)
	}
	sess.RefreshToken = refreshToken.String
	return &sess, nil
}

func (s *PostgresStore) DeleteSession(userID, provider string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE user_id = $1 AND provider = $2`, userID, provider)
	if err != nil {
		slog.Error("PostgresStore DeleteSession failed", "error", err, "userID", userID, "provider", provider)
		return fmt.Errorf("failed to delete session %s/%s: %w", userID, provider, err)
	}
	slog.Debug("PostgresStore DeleteSession succeeded", "userID", userID, "provider", provider)
	return nil
}

func (s *PostgresStore) CreateConversation(c models.Conversation) error {
	c = withConversationTimes(c)
	_, err := s.db.Exec(`
		INSERT INTO conversations (id, user_id, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		c.ID, c.UserID, nilIfEmpty(c.Title), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateConversation failed", "error", err, "conversationID", c.ID)
		return fmt.Errorf("failed to create conversation %s: %w", c.ID, err)
	}
	return nil
}

func (s *PostgresStore) AddMessage(m models.Message) error {
	m = withMessageTimes(m)
	emotionJSON, err := json.Marshal(m.Emotion)
	if err != nil {
		slog.Error("PostgresStore AddMessage marshal failed", "error", err, "userID", m.UserID)
		return fmt.Errorf("failed to encode emotional state: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO messages (id, conversation_id, user_id, body, emotion, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, nilIfEmpty(m.ConversationID), m.UserID, m.Body, string(emotionJSON), m.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore AddMessage failed", "error", err, "userID", m.UserID)
		return fmt.Errorf("failed to insert message for %s: %w", m.UserID, err)
	}
	slog.Debug("PostgresStore AddMessage succeeded", "userID", m.UserID, "messageID", m.ID)
	return nil
}

func (s *PostgresStore) RecentMessages(userID string, limit int) ([]models.Message, error) {
	rows, err := s.db.Query(`SELECT id, conversation_id, user_id, body, emotion, created_at
		FROM messages WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		userID, normalizeLimit(limit))
	if err != nil {
		slog.Error("PostgresStore RecentMessages query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query messages for %s: %w", userID, err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			slog.Error("PostgresStore RecentMessages scan failed", "error", err)
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore RecentMessages rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	return messages, nil
}

func (s *PostgresStore) SaveDocument(d models.Document) error {
	d = withDocumentTimes(d)
	_, err := s.db.Exec(`
		INSERT INTO documents (id, user_id, title, content, mime_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, nilIfEmpty(d.UserID), d.Title, d.Content, nilIfEmpty(d.MimeType), d.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveDocument failed", "error", err, "documentID", d.ID)
		return fmt.Errorf("failed to insert document %s: %w", d.ID, err)
	}
	slog.Debug("PostgresStore SaveDocument succeeded", "documentID", d.ID)
	return nil
}

func (s *PostgresStore) GetDocument(id string) (*models.Document, error) {
	var d models.Document
	var userID, mimeType sql.NullString
	err := s.db.QueryRow(`SELECT id, user_id, title, content, mime_type, created_at
		FROM documents WHERE id = $1`, id).
		Scan(&d.ID, &userID, &d.Title, &d.Content, &mimeType, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: document %s", models.ErrNotFound, id)
	}
	if err != nil {
		slog.Error("PostgresStore GetDocument failed", "error", err, "documentID", id)
		return nil, fmt.Errorf("failed to query document %s: %w", id, err)
	}
	d.UserID = userID.String
	d.MimeType = mimeType.String
	return &d, nil
}

func (s *PostgresStore) SaveMoodEntry(e models.MoodEntry) error {
	e = withMoodEntryTimes(e)
	detailsJSON, err := json.Marshal(e.Details)
	if err != nil {
		slog.Error("PostgresStore SaveMoodEntry marshal failed", "error", err, "userID", e.UserID)
		return fmt.Errorf("failed to encode mood entry details: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO mood_entries (id, user_id, score, prediction, extraction_method, details, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.UserID, e.Score, e.Prediction, nilIfEmpty(string(e.ExtractionMethod)),
		string(detailsJSON), e.RecordedAt)
	if err != nil {
		slog.Error("PostgresStore SaveMoodEntry failed", "error", err, "userID", e.UserID)
		return fmt.Errorf("failed to insert mood entry for %s: %w", e.UserID, err)
	}
	slog.Debug("PostgresStore SaveMoodEntry succeeded", "userID", e.UserID, "score", e.Score)
	return nil
}

func (s *PostgresStore) RecentMoodEntries(userID string, limit int) ([]models.MoodEntry, error) {
	rows, err := s.db.Query(`SELECT id, user_id, score, prediction, extraction_method, details, recorded_at
		FROM mood_entries WHERE user_id = $1 ORDER BY recorded_at DESC, id DESC LIMIT $2`,
		userID, normalizeLimit(limit))
	if err != nil {
		slog.Error("PostgresStore RecentMoodEntries query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query mood entries for %s: %w", userID, err)
	}
	defer rows.Close()

	var entries []models.MoodEntry
	for rows.Next() {
		e, err := scanMoodEntry(rows)
		if err != nil {
			slog.Error("PostgresStore RecentMoodEntries scan failed", "error", err)
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore RecentMoodEntries rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate mood entry rows: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM system_settings WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: setting %s", models.ErrNotFound, key)
	}
	if err != nil {
		slog.Error("PostgresStore GetSetting failed", "error", err, "key", key)
		return "", fmt.Errorf("failed to query setting %s: %w", key, err)
	}
	return value, nil
}

func (s *PostgresStore) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO system_settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET
			value      = excluded.value,
			updated_at = NOW()`,
		key, value)
	if err != nil {
		slog.Error("PostgresStore SetSetting failed", "error", err, "key", key)
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}

var _ Store = (*PostgresStore)(nil)
