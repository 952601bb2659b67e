package providers

import (
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/MoodPipe/internal/models"
)

func TestStateCacheConsumeOnce(t *testing.T) {
	c := NewStateCache(DefaultStateTTL)

	state := c.Issue(ProviderStrava)
	if state == "" {
		t.Fatalf("Issue returned empty state")
	}
	if err := c.Consume(state, ProviderStrava); err != nil {
		t.Fatalf("first Consume: %v", err)
	}
	if err := c.Consume(state, ProviderStrava); !errors.Is(err, models.ErrInvalidStateToken) {
		t.Errorf("second Consume error = %v, want ErrInvalidStateToken", err)
	}
}

func TestStateCacheRejectsWrongProvider(t *testing.T) {
	c := NewStateCache(DefaultStateTTL)

	state := c.Issue(ProviderStrava)
	if err := c.Consume(state, ProviderWithings); !errors.Is(err, models.ErrInvalidStateToken) {
		t.Fatalf("Consume error = %v, want ErrInvalidStateToken", err)
	}
	// A mismatched attempt burns the token.
	if err := c.Consume(state, ProviderStrava); !errors.Is(err, models.ErrInvalidStateToken) {
		t.Errorf("replay after mismatch error = %v, want ErrInvalidStateToken", err)
	}
}

func TestStateCacheRejectsExpired(t *testing.T) {
	c := NewStateCache(5 * time.Minute)
	base := time.Now()
	c.now = func() time.Time { return base }

	state := c.Issue(ProviderGoogleFit)
	c.now = func() time.Time { return base.Add(6 * time.Minute) }
	if err := c.Consume(state, ProviderGoogleFit); !errors.Is(err, models.ErrInvalidStateToken) {
		t.Fatalf("Consume error = %v, want ErrInvalidStateToken", err)
	}
}

func TestStateCacheRejectsUnknownState(t *testing.T) {
	c := NewStateCache(DefaultStateTTL)

	if err := c.Consume("never-issued", ProviderStrava); !errors.Is(err, models.ErrInvalidStateToken) {
		t.Fatalf("Consume error = %v, want ErrInvalidStateToken", err)
	}
}

func TestStateCachePendingCount(t *testing.T) {
	c := NewStateCache(DefaultStateTTL)

	first := c.Issue(ProviderStrava)
	c.Issue(ProviderWithings)
	if got := c.Pending(); got != 2 {
		t.Fatalf("Pending = %d, want 2", got)
	}
	if err := c.Consume(first, ProviderStrava); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if got := c.Pending(); got != 1 {
		t.Errorf("Pending = %d, want 1", got)
	}
}
