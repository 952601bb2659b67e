// Package providers connects remote health services over the OAuth2
// authorization-code flow and maps their recent metrics into health
// records. Adapters cover Strava, Google Fit, and Withings; a Registry
// issues single-use CSRF state tokens, tracks connections, and drives
// periodic syncs.
package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/BTreeMap/MoodPipe/internal/metrics"
	"github.com/BTreeMap/MoodPipe/internal/models"
)

// Provider names used in routes, record source tags, and metric labels.
const (
	ProviderStrava    = "strava"
	ProviderGoogleFit = "google-fit"
	ProviderWithings  = "withings"
)

const (
	// DefaultFetchTimeout bounds one metrics request to a provider API.
	DefaultFetchTimeout = 15 * time.Second
	// providerConfidence is stamped on records fetched from a connected
	// provider API.
	providerConfidence = 0.95
	// maxErrorBody bounds how much of an error response is read for the
	// error message.
	maxErrorBody = int64(64 << 10)
)

// ErrNotConnected is returned when a sync targets a provider that has not
// completed the authorization flow.
var ErrNotConnected = errors.New("provider is not connected")

// Provider is one remote health service.
type Provider interface {
	// Name returns the stable provider identifier.
	Name() string
	// AuthURL returns the provider's authorization URL carrying state.
	AuthURL(state string) string
	// Exchange trades an authorization code for a token.
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	// FetchMetrics reads a bounded window of recent metrics. Returned
	// records carry only measured fields; the aggregator fills the rest.
	FetchMetrics(ctx context.Context, token *oauth2.Token) (models.HealthMetricsRecord, error)
}

// MetricsSink receives one provider's freshly fetched record.
type MetricsSink interface {
	SetRecord(provider string, rec models.HealthMetricsRecord)
}

// Opts holds configuration options for a provider adapter.
type Opts struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	APIBase      string
	Client       *http.Client
}

// Option defines a configuration option for a provider adapter.
type Option func(*Opts)

// WithCredentials sets the OAuth client ID and secret.
func WithCredentials(id, secret string) Option {
	return func(o *Opts) {
		o.ClientID = id
		o.ClientSecret = secret
	}
}

// WithRedirectURL sets the callback URL registered with the provider.
func WithRedirectURL(u string) Option {
	return func(o *Opts) { o.RedirectURL = u }
}

// WithEndpoints overrides the authorization and token endpoints.
func WithEndpoints(authURL, tokenURL string) Option {
	return func(o *Opts) {
		o.AuthURL = authURL
		o.TokenURL = tokenURL
	}
}

// WithAPIBase overrides the metrics API base URL.
func WithAPIBase(u string) Option {
	return func(o *Opts) { o.APIBase = u }
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.Client = c }
}

// Registry tracks registered providers, pending authorizations, and the
// tokens of completed ones.
type Registry struct {
	states *StateCache

	mu        sync.RWMutex
	providers map[string]Provider
	order     []string
	tokens    map[string]*oauth2.Token
}

// NewRegistry creates a registry over the given providers.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{
		states:    NewStateCache(DefaultStateTTL),
		providers: make(map[string]Provider),
		tokens:    make(map[string]*oauth2.Token),
	}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a provider.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := p.Name()
	if _, ok := r.providers[name]; !ok {
		r.order = append(r.order, name)
	}
	r.providers[name] = p
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownProvider, name)
	}
	return p, nil
}

// Names returns the registered provider names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// BeginAuth issues a single-use state token and returns the provider's
// authorization URL.
func (r *Registry) BeginAuth(name string) (string, error) {
	p, err := r.Get(name)
	if err != nil {
		return "", err
	}
	state := r.states.Issue(name)
	return p.AuthURL(state), nil
}

// CompleteAuth verifies the callback state, exchanges the code, and stores
// the token for future syncs.
func (r *Registry) CompleteAuth(ctx context.Context, name, code, state string) (*oauth2.Token, error) {
	p, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	if err := r.states.Consume(state, name); err != nil {
		return nil, err
	}
	token, err := p.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", name, err)
	}

	r.mu.Lock()
	r.tokens[name] = token
	r.mu.Unlock()
	slog.Info("Registry.CompleteAuth: provider connected", "provider", name)
	return token, nil
}

// Token returns the stored token for a connected provider.
func (r *Registry) Token(name string) (*oauth2.Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	token, ok := r.tokens[name]
	return token, ok
}

// Connected returns the names of providers with a stored token, in
// registration order.
func (r *Registry) Connected() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tokens))
	for _, name := range r.order {
		if _, ok := r.tokens[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Disconnect drops a provider's stored token.
func (r *Registry) Disconnect(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, name)
}

// Sync fetches fresh metrics from one connected provider.
func (r *Registry) Sync(ctx context.Context, name string) (models.HealthMetricsRecord, error) {
	p, err := r.Get(name)
	if err != nil {
		return models.HealthMetricsRecord{}, err
	}
	token, ok := r.Token(name)
	if !ok {
		return models.HealthMetricsRecord{}, fmt.Errorf("%w: %s", ErrNotConnected, name)
	}
	return p.FetchMetrics(ctx, token)
}

// SyncAll fetches every connected provider and feeds successes into sink.
// Per-provider failures are logged and counted, not propagated, so one
// flaky provider cannot block the rest.
func (r *Registry) SyncAll(ctx context.Context, sink MetricsSink) int {
	synced := 0
	for _, name := range r.Connected() {
		rec, err := r.Sync(ctx, name)
		if err != nil {
			metrics.RecordProviderSync(name, false)
			slog.Warn("Registry.SyncAll: provider sync failed", "provider", name, "error", err)
			continue
		}
		metrics.RecordProviderSync(name, true)
		if sink != nil {
			sink.SetRecord(name, rec)
		}
		synced++
	}
	return synced
}
