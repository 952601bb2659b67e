// Package store provides storage backends for MoodPipe.
//
// Three implementations cover the deployment spectrum: an in-memory store
// for tests and credential-free runs, SQLite for single-node installs, and
// PostgreSQL for shared deployments. All three persist the same schema:
// users, provider sessions, conversations, messages, documents, mood
// entries, and system settings.
package store

import (
	"log/slog"
	"strings"

	"github.com/BTreeMap/MoodPipe/internal/models"
)

// DefaultRecentLimit bounds Recent* queries when the caller passes no limit.
const DefaultRecentLimit = 50

// Store is the persistence surface the pipeline writes into. Get methods
// wrap models.ErrNotFound when no row matches.
type Store interface {
	UpsertUser(u models.User) error
	GetUser(id string) (*models.User, error)

	SaveSession(sess models.Session) error
	GetSession(userID, provider string) (*models.Session, error)
	DeleteSession(userID, provider string) error

	// CreateConversation is idempotent on the conversation ID.
	CreateConversation(c models.Conversation) error
	AddMessage(m models.Message) error
	// RecentMessages returns a user's messages newest first.
	RecentMessages(userID string, limit int) ([]models.Message, error)

	SaveDocument(d models.Document) error
	GetDocument(id string) (*models.Document, error)

	SaveMoodEntry(e models.MoodEntry) error
	// RecentMoodEntries returns a user's mood entries newest first.
	RecentMoodEntries(userID string, limit int) ([]models.MoodEntry, error)

	GetSetting(key string) (string, error)
	SetSetting(key, value string) error

	Close() error
}

// Opts holds configuration for the storage backends.
type Opts struct {
	DSN string
}

// Option configures a store.
type Option func(*Opts)

// WithDSN sets the database DSN.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets a PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option { return WithDSN(dsn) }

// WithSQLiteDSN sets a SQLite database file path.
func WithSQLiteDSN(dsn string) Option { return WithDSN(dsn) }

// DetectDSNType reports which backend a DSN selects: "postgres" for
// postgres URLs and key=value connection strings, "memory" for an empty
// DSN, and "sqlite" for anything else, which is treated as a file path.
func DetectDSNType(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return "memory"
	case strings.HasPrefix(dsn, "postgres://"),
		strings.HasPrefix(dsn, "postgresql://"),
		strings.Contains(dsn, "host="),
		strings.Contains(dsn, "dbname="):
		return "postgres"
	default:
		return "sqlite"
	}
}

// New opens the backend the configured DSN selects.
func New(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	switch DetectDSNType(cfg.DSN) {
	case "postgres":
		return NewPostgresStore(opts...)
	case "sqlite":
		return NewSQLiteStore(opts...)
	default:
		slog.Info("store.New: no DSN configured, using in-memory store")
		return NewInMemoryStore(), nil
	}
}
