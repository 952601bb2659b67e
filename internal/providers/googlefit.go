package providers

import (
	"bytes"
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
	googleFitAuthURL  = "https://accounts.google.com/o/oauth2/v2/auth"
	googleFitTokenURL = "https://oauth2.googleapis.com/token"
	googleFitAPIBase  = "https://www.googleapis.com/fitness/v1"

	googleFitScope = "https://www.googleapis.com/auth/fitness.activity.read"

	// dayMillis is the aggregation bucket for one sync.
	dayMillis = int64(24 * time.Hour / time.Millisecond)
)

// fitAggregateRequest is the dataset:aggregate request body.
type fitAggregateRequest struct {
	AggregateBy     []fitAggregateBy `json:"aggregateBy"`
	BucketByTime    fitBucketByTime  `json:"bucketByTime"`
	StartTimeMillis int64            `json:"startTimeMillis"`
	EndTimeMillis   int64            `json:"endTimeMillis"`
}

type fitAggregateBy struct {
	DataTypeName string `json:"dataTypeName"`
}

type fitBucketByTime struct {
	DurationMillis int64 `json:"durationMillis"`
}

type fitAggregateResponse struct {
	Bucket []struct {
		Dataset []struct {
			DataSourceID string `json:"dataSourceId"`
			Point        []struct {
				Value []struct {
					IntVal int     `json:"intVal"`
					FpVal  float64 `json:"fpVal"`
				} `json:"value"`
			} `json:"point"`
		} `json:"dataset"`
	} `json:"bucket"`
}

// GoogleFit aggregates the last day of steps, calories, active minutes, and
// heart rate from the Google Fitness REST API.
type GoogleFit struct {
	cfg     oauth2.Config
	apiBase string
	client  *http.Client
}

// NewGoogleFit creates a Google Fit adapter.
func NewGoogleFit(opts ...Option) *GoogleFit {
	cfg := Opts{
		AuthURL:  googleFitAuthURL,
		TokenURL: googleFitTokenURL,
		APIBase:  googleFitAPIBase,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	return &GoogleFit{
		cfg: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     oauth2.Endpoint{AuthURL: cfg.AuthURL, TokenURL: cfg.TokenURL},
			Scopes:       []string{googleFitScope},
		},
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		client:  cfg.Client,
	}
}

// Name returns the stable provider identifier.
func (g *GoogleFit) Name() string {
	return ProviderGoogleFit
}

// AuthURL returns the authorization URL carrying state. Offline access is
// requested so syncs keep working between visits.
func (g *GoogleFit) AuthURL(state string) string {
	return g.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token.
func (g *GoogleFit) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.client)
	token, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("google-fit: token exchange failed: %w", err)
	}
	return token, nil
}

// FetchMetrics aggregates the trailing 24 hours into one record.
func (g *GoogleFit) FetchMetrics(ctx context.Context, token *oauth2.Token) (models.HealthMetricsRecord, error) {
	var rec models.HealthMetricsRecord

	end := time.Now()
	body := fitAggregateRequest{
		AggregateBy: []fitAggregateBy{
			{DataTypeName: "com.google.step_count.delta"},
			{DataTypeName: "com.google.calories.expended"},
			{DataTypeName: "com.google.active_minutes"},
			{DataTypeName: "com.google.heart_rate.bpm"},
		},
		BucketByTime:    fitBucketByTime{DurationMillis: dayMillis},
		StartTimeMillis: end.Add(-24 * time.Hour).UnixMilli(),
		EndTimeMillis:   end.UnixMilli(),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return rec, err
	}

	u := g.apiBase + "/users/me/dataset:aggregate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return rec, err
	}
	req.Header.Set("Content-Type", "application/json")
	token.SetAuthHeader(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return rec, fmt.Errorf("google-fit: aggregate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return rec, fmt.Errorf("google-fit: aggregate request returned %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))
	}

	var parsed fitAggregateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return rec, fmt.Errorf("google-fit: decode aggregate response: %w", err)
	}

	var hrSum float64
	var hrCount int
	for _, bucket := range parsed.Bucket {
		for _, ds := range bucket.Dataset {
			for _, pt := range ds.Point {
				for _, v := range pt.Value {
					switch {
					case strings.Contains(ds.DataSourceID, "step_count"):
						rec.Steps += v.IntVal
					case strings.Contains(ds.DataSourceID, "calories"):
						rec.Calories += int(math.Round(v.FpVal))
					case strings.Contains(ds.DataSourceID, "active_minutes"):
						rec.ActiveMinutes += v.IntVal
					case strings.Contains(ds.DataSourceID, "heart_rate"):
						hrSum += v.FpVal
						hrCount++
					}
				}
			}
		}
	}
	if hrCount > 0 {
		rec.HeartRate.Current = int(math.Round(hrSum / float64(hrCount)))
	}
	rec.Timestamp = time.Now()
	rec.Source = ProviderGoogleFit
	rec.Confidence = providerConfidence
	return rec, nil
}

var _ Provider = (*GoogleFit)(nil)
