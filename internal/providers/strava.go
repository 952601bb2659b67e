package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/BTreeMap/MoodPipe/internal/models"
)

const (
	stravaAuthURL  = "https://www.strava.com/oauth/authorize"
	stravaTokenURL = "https://www.strava.com/oauth/token"
	stravaAPIBase  = "https://www.strava.com/api/v3"

	// stravaActivityWindow bounds how many recent activities one sync reads.
	stravaActivityWindow = 7
)

// stravaActivity is the subset of a summary activity the sync maps.
type stravaActivity struct {
	Distance         float64 `json:"distance"`    // meters
	MovingTime       int     `json:"moving_time"` // seconds
	AverageHeartrate float64 `json:"average_heartrate"`
}

// Strava reads recent activities from the Strava v3 API. Strava reports
// per-activity distance and time, not daily step counts, so records carry
// distance, active minutes, and average heart rate only.
type Strava struct {
	cfg     oauth2.Config
	apiBase string
	client  *http.Client
}

// NewStrava creates a Strava adapter.
func NewStrava(opts ...Option) *Strava {
	cfg := Opts{
		AuthURL:  stravaAuthURL,
		TokenURL: stravaTokenURL,
		APIBase:  stravaAPIBase,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	return &Strava{
		cfg: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     oauth2.Endpoint{AuthURL: cfg.AuthURL, TokenURL: cfg.TokenURL},
			Scopes:       []string{"activity:read"},
		},
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		client:  cfg.Client,
	}
}

// Name returns the stable provider identifier.
func (s *Strava) Name() string {
	return ProviderStrava
}

// AuthURL returns the authorization URL carrying state.
func (s *Strava) AuthURL(state string) string {
	return s.cfg.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token.
func (s *Strava) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	token, err := s.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("strava: token exchange failed: %w", err)
	}
	return token, nil
}

// FetchMetrics sums the most recent activities into one record.
func (s *Strava) FetchMetrics(ctx context.Context, token *oauth2.Token) (models.HealthMetricsRecord, error) {
	var rec models.HealthMetricsRecord

	u := fmt.Sprintf("%s/athlete/activities?per_page=%d", s.apiBase, stravaActivityWindow)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return rec, err
	}
	token.SetAuthHeader(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return rec, fmt.Errorf("strava: activities request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return rec, fmt.Errorf("strava: activities request returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var activities []stravaActivity
	if err := json.NewDecoder(resp.Body).Decode(&activities); err != nil {
		return rec, fmt.Errorf("strava: decode activities: %w", err)
	}

	var meters, hrSum float64
	var seconds, hrCount int
	for _, a := range activities {
		meters += a.Distance
		seconds += a.MovingTime
		if a.AverageHeartrate > 0 {
			hrSum += a.AverageHeartrate
			hrCount++
		}
	}
	rec.DistanceKM = math.Round(meters/1000*100) / 100
	rec.ActiveMinutes = seconds / 60
	if hrCount > 0 {
		rec.HeartRate.Current = int(math.Round(hrSum / float64(hrCount)))
	}
	rec.Timestamp = time.Now()
	rec.Source = ProviderStrava
	rec.Confidence = providerConfidence
	return rec, nil
}

var _ Provider = (*Strava)(nil)
