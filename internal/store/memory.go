package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/BTreeMap/MoodPipe/internal/models"
)

// InMemoryStore keeps everything in process memory. It is the default
// backend when no DSN is configured and the fixture of choice in tests.
type InMemoryStore struct {
	mu            sync.RWMutex
	users         map[string]models.User
	sessions      map[string]models.Session
	conversations map[string]models.Conversation
	messages      []models.Message
	documents     map[string]models.Document
	moodEntries   []models.MoodEntry
	settings      map[string]string
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:         make(map[string]models.User),
		sessions:      make(map[string]models.Session),
		conversations: make(map[string]models.Conversation),
		documents:     make(map[string]models.Document),
		settings:      make(map[string]string),
	}
}

func sessionKey(userID, provider string) string {
	return userID + "/" + provider
}

func (s *InMemoryStore) UpsertUser(u models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.users[u.ID]; ok {
		u.CreatedAt = existing.CreatedAt
		if u.Name == "" {
			u.Name = existing.Name
		}
		if u.Timezone == "" {
			u.Timezone = existing.Timezone
		}
	}
	s.users[u.ID] = withUserTimes(u)
	return nil
}

func (s *InMemoryStore) GetUser(id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", models.ErrNotFound, id)
	}
	return &u, nil
}

func (s *InMemoryStore) SaveSession(sess models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionKey(sess.UserID, sess.Provider)] = withSessionTimes(sess)
	return nil
}

func (s *InMemoryStore) GetSession(userID, provider string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionKey(userID, provider)]
	if !ok {
		return nil, fmt.Errorf("%w: session %s/%s", models.ErrNotFound, userID, provider)
	}
	return &sess, nil
}

func (s *InMemoryStore) DeleteSession(userID, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionKey(userID, provider))
	return nil
}

func (s *InMemoryStore) CreateConversation(c models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[c.ID]; ok {
		return nil
	}
	s.conversations[c.ID] = withConversationTimes(c)
	return nil
}

func (s *InMemoryStore) AddMessage(m models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, withMessageTimes(m))
	return nil
}

func (s *InMemoryStore) RecentMessages(userID string, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Message
	for _, m := range s.messages {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if n := normalizeLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *InMemoryStore) SaveDocument(d models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[d.ID] = withDocumentTimes(d)
	return nil
}

func (s *InMemoryStore) GetDocument(id string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.documents[id]
	if !ok {
		return nil, fmt.Errorf("%w: document %s", models.ErrNotFound, id)
	}
	return &d, nil
}

func (s *InMemoryStore) SaveMoodEntry(e models.MoodEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moodEntries = append(s.moodEntries, withMoodEntryTimes(e))
	return nil
}

func (s *InMemoryStore) RecentMoodEntries(userID string, limit int) ([]models.MoodEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.MoodEntry
	for _, e := range s.moodEntries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	if n := normalizeLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *InMemoryStore) GetSetting(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.settings[key]
	if !ok {
		return "", fmt.Errorf("%w: setting %s", models.ErrNotFound, key)
	}
	return v, nil
}

func (s *InMemoryStore) SetSetting(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

// Close is a no-op; there is nothing to release.
func (s *InMemoryStore) Close() error { return nil }

var _ Store = (*InMemoryStore)(nil)
