package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/BTreeMap/MoodPipe/internal/models"
)

const (
	withingsAuthURL  = "https://account.withings.com/oauth2_user/authorize2"
	withingsTokenURL = "https://wbsapi.withings.net/v2/oauth2"
	withingsAPIBase  = "https://wbsapi.withings.net"

	// withingsMeasureHeartPulse is the getmeas measure type for heart pulse.
	withingsMeasureHeartPulse = 11
)

// Withings wraps every payload in a status envelope; a non-zero status is
// an API-level failure even on HTTP 200.
type withingsMeasureResponse struct {
	Status int `json:"status"`
	Body   struct {
		MeasureGrps []struct {
			Date     int64 `json:"date"`
			Measures []struct {
				Value int `json:"value"`
				Type  int `json:"type"`
				Unit  int `json:"unit"`
			} `json:"measures"`
		} `json:"measuregrps"`
	} `json:"body"`
}

type withingsSleepResponse struct {
	Status int `json:"status"`
	Body   struct {
		Series []struct {
			Data struct {
				TotalSleepTime     int `json:"total_sleep_time"` // seconds
				DeepSleepDuration  int `json:"deepsleepduration"`
				LightSleepDuration int `json:"lightsleepduration"`
				RemSleepDuration   int `json:"remsleepduration"`
				SleepScore         int `json:"sleep_score"`
				HRAverage          int `json:"hr_average"`
			} `json:"data"`
		} `json:"series"`
	} `json:"body"`
}

// Withings reads the latest heart pulse measurement and last night's sleep
// summary from the Withings API.
type Withings struct {
	cfg     oauth2.Config
	apiBase string
	client  *http.Client
}

// NewWithings creates a Withings adapter.
func NewWithings(opts ...Option) *Withings {
	cfg := Opts{
		AuthURL:  withingsAuthURL,
		TokenURL: withingsTokenURL,
		APIBase:  withingsAPIBase,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	return &Withings{
		cfg: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     oauth2.Endpoint{AuthURL: cfg.AuthURL, TokenURL: cfg.TokenURL},
			Scopes:       []string{"user.metrics", "user.activity"},
		},
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		client:  cfg.Client,
	}
}

// Name returns the stable provider identifier.
func (w *Withings) Name() string {
	return ProviderWithings
}

// AuthURL returns the authorization URL carrying state.
func (w *Withings) AuthURL(state string) string {
	return w.cfg.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token.
func (w *Withings) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, w.client)
	token, err := w.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("withings: token exchange failed: %w", err)
	}
	return token, nil
}

// FetchMetrics combines the latest heart pulse and the most recent sleep
// summary into one record.
func (w *Withings) FetchMetrics(ctx context.Context, token *oauth2.Token) (models.HealthMetricsRecord, error) {
	var rec models.HealthMetricsRecord

	pulse, err := w.fetchHeartPulse(ctx, token)
	if err != nil {
		return rec, err
	}
	rec.HeartRate.Current = pulse

	sleep, restingHR, err := w.fetchSleepSummary(ctx, token)
	if err != nil {
		return rec, err
	}
	rec.Sleep = sleep
	rec.HeartRate.Resting = restingHR
	rec.Timestamp = time.Now()
	rec.Source = ProviderWithings
	rec.Confidence = providerConfidence
	return rec, nil
}

// fetchHeartPulse returns the newest heart pulse measurement, 0 when the
// account has none.
func (w *Withings) fetchHeartPulse(ctx context.Context, token *oauth2.Token) (int, error) {
	q := url.Values{}
	q.Set("action", "getmeas")
	q.Set("meastype", fmt.Sprintf("%d", withingsMeasureHeartPulse))
	q.Set("category", "1")

	var parsed withingsMeasureResponse
	if err := w.call(ctx, token, "/measure", q, &parsed); err != nil {
		return 0, err
	}
	if parsed.Status != 0 {
		return 0, fmt.Errorf("withings: measure call returned status %d", parsed.Status)
	}

	for _, grp := range parsed.Body.MeasureGrps {
		for _, m := range grp.Measures {
			if m.Type == withingsMeasureHeartPulse {
				return int(math.Round(float64(m.Value) * math.Pow10(m.Unit))), nil
			}
		}
	}
	return 0, nil
}

// fetchSleepSummary returns the most recent night's sleep plus the average
// sleeping heart rate.
func (w *Withings) fetchSleepSummary(ctx context.Context, token *oauth2.Token) (models.SleepMetrics, int, error) {
	now := time.Now()
	q := url.Values{}
	q.Set("action", "getsummary")
	q.Set("startdateymd", now.AddDate(0, 0, -1).Format("2006-01-02"))
	q.Set("enddateymd", now.Format("2006-01-02"))

	var parsed withingsSleepResponse
	if err := w.call(ctx, token, "/v2/sleep", q, &parsed); err != nil {
		return models.SleepMetrics{}, 0, err
	}
	if parsed.Status != 0 {
		return models.SleepMetrics{}, 0, fmt.Errorf("withings: sleep call returned status %d", parsed.Status)
	}
	if len(parsed.Body.Series) == 0 {
		return models.SleepMetrics{}, 0, nil
	}

	// Summaries arrive oldest first; the last entry is the latest night.
	data := parsed.Body.Series[len(parsed.Body.Series)-1].Data
	sleep := models.SleepMetrics{
		Duration: data.TotalSleepTime / 60,
		Quality:  data.SleepScore,
		Stages: models.SleepStages{
			Deep:  data.DeepSleepDuration / 60,
			Light: data.LightSleepDuration / 60,
			REM:   data.RemSleepDuration / 60,
		},
	}
	return sleep, data.HRAverage, nil
}

// call performs one authorized GET against the Withings API.
func (w *Withings) call(ctx context.Context, token *oauth2.Token, path string, q url.Values, out any) error {
	u := w.apiBase + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	token.SetAuthHeader(req)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("withings: %s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("withings: %s request returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("withings: decode %s response: %w", path, err)
	}
	return nil
}

var _ Provider = (*Withings)(nil)
