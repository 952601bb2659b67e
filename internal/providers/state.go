package providers

import (
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/BTreeMap/MoodPipe/internal/models"
)

const (
	// DefaultStateTTL bounds how long an issued state token stays valid.
	DefaultStateTTL = 5 * time.Minute
	// stateCacheSize caps concurrently pending authorization attempts.
	stateCacheSize = 512
)

// stateEntry binds a state token to the provider it was issued for.
type stateEntry struct {
	provider string
	issuedAt time.Time
}

// StateCache issues and verifies single-use CSRF state tokens for the
// authorization-code flow.
type StateCache struct {
	ttl   time.Duration
	now   func() time.Time
	cache *lru.Cache[string, stateEntry]
}

// NewStateCache creates a cache whose tokens expire after ttl. A
// non-positive ttl falls back to DefaultStateTTL.
func NewStateCache(ttl time.Duration) *StateCache {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	cache, err := lru.New[string, stateEntry](stateCacheSize)
	if err != nil {
		// lru.New only errors on a non-positive size.
		panic(err)
	}
	return &StateCache{ttl: ttl, now: time.Now, cache: cache}
}

// Issue stores a fresh state token bound to provider and returns it.
func (c *StateCache) Issue(provider string) string {
	state := uuid.NewString()
	c.cache.Add(state, stateEntry{provider: provider, issuedAt: c.now()})
	return state
}

// Consume verifies and removes a state token. Tokens are single-use: a
// second Consume of the same state fails regardless of age.
func (c *StateCache) Consume(state, provider string) error {
	entry, ok := c.cache.Get(state)
	if !ok {
		return models.ErrInvalidStateToken
	}
	c.cache.Remove(state)
	if entry.provider != provider {
		return models.ErrInvalidStateToken
	}
	if c.now().Sub(entry.issuedAt) > c.ttl {
		return models.ErrInvalidStateToken
	}
	return nil
}

// Pending returns how many state tokens are outstanding.
func (c *StateCache) Pending() int {
	return c.cache.Len()
}
