// Package health merges metric records from connected data providers and
// derives coarse wellness scores from the merged view.
package health

import (
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/MoodPipe/internal/models"
)

// Wellness weighting: heart recovery counts a little more than activity or
// sleep in the overall number.
const (
	activityWeight = 0.3
	sleepWeight    = 0.3
	heartWeight    = 0.4

	// NeutralScore is reported when no provider data exists at all.
	NeutralScore = 50
)

// Aggregator tracks connected providers, keeps their latest records, and
// merges them into one view with most-recently-connected precedence.
type Aggregator struct {
	mu          sync.RWMutex
	connectedAt map[string]time.Time
	latest      map[string]models.HealthMetricsRecord
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		connectedAt: make(map[string]time.Time),
		latest:      make(map[string]models.HealthMetricsRecord),
	}
}

// Connect marks a provider as connected now. Reconnecting refreshes the
// timestamp, which raises the provider's merge precedence.
func (a *Aggregator) Connect(provider string) {
	a.ConnectAt(provider, time.Now())
}

// ConnectAt marks a provider as connected at a given time.
func (a *Aggregator) ConnectAt(provider string, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connectedAt[provider] = at
	slog.Debug("Aggregator.ConnectAt: provider connected", "provider", provider, "at", at)
}

// Disconnect removes a provider and its latest record.
func (a *Aggregator) Disconnect(provider string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.connectedAt, provider)
	delete(a.latest, provider)
}

// SetRecord stores a provider's latest fetched record, connecting the
// provider first if it was unknown.
func (a *Aggregator) SetRecord(provider string, rec models.HealthMetricsRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.connectedAt[provider]; !ok {
		a.connectedAt[provider] = time.Now()
	}
	a.latest[provider] = rec
}

// Status returns a copy of the provider connection times.
func (a *Aggregator) Status() map[string]time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]time.Time, len(a.connectedAt))
	for name, at := range a.connectedAt {
		out[name] = at
	}
	return out
}

// Snapshot returns a copy of the latest record per provider.
func (a *Aggregator) Snapshot() map[string]models.HealthMetricsRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]models.HealthMetricsRecord, len(a.latest))
	for name, rec := range a.latest {
		out[name] = rec
	}
	return out
}

// Current merges the stored records and normalizes the result.
func (a *Aggregator) Current() models.HealthMetricsRecord {
	return a.Aggregate(a.Snapshot())
}

// Wellness derives scores from the merged provider view. With no provider
// data at all it reports neutral scores rather than an error.
func (a *Aggregator) Wellness() models.WellnessScores {
	if len(a.Snapshot()) == 0 {
		return models.WellnessScores{
			Activity: NeutralScore,
			Sleep:    NeutralScore,
			Heart:    NeutralScore,
			Overall:  NeutralScore,
		}
	}
	return DeriveWellness(a.Current())
}

// Aggregate merges the given records, one per provider. Providers are
// applied oldest connection first, so the most recently connected provider's
// non-zero fields win while gaps fall back to older providers. The merged
// record is normalized before return.
func (a *Aggregator) Aggregate(records map[string]models.HealthMetricsRecord) models.HealthMetricsRecord {
	names := make([]string, 0, len(records))
	for name := range records {
		names = append(names, name)
	}

	connected := a.Status()
	sort.Slice(names, func(i, j int) bool {
		ti, tj := connected[names[i]], connected[names[j]]
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return names[i] < names[j]
	})

	var merged models.HealthMetricsRecord
	for _, name := range names {
		overlay(&merged, records[name])
	}
	if len(names) > 0 {
		merged.Source = strings.Join(names, "+")
	}
	merged.Normalize()
	return merged
}

// overlay copies every non-zero field of src over dst.
func overlay(dst *models.HealthMetricsRecord, src models.HealthMetricsRecord) {
	setInt(&dst.Steps, src.Steps)
	setInt(&dst.Calories, src.Calories)
	setFloat(&dst.DistanceKM, src.DistanceKM)
	setInt(&dst.ActiveMinutes, src.ActiveMinutes)

	setInt(&dst.HeartRate.Current, src.HeartRate.Current)
	setInt(&dst.HeartRate.Resting, src.HeartRate.Resting)
	setInt(&dst.HeartRate.Variability, src.HeartRate.Variability)

	setInt(&dst.Sleep.Duration, src.Sleep.Duration)
	setInt(&dst.Sleep.Quality, src.Sleep.Quality)
	setInt(&dst.Sleep.Stages.Deep, src.Sleep.Stages.Deep)
	setInt(&dst.Sleep.Stages.Light, src.Sleep.Stages.Light)
	setInt(&dst.Sleep.Stages.REM, src.Sleep.Stages.REM)

	setInt(&dst.ScreenTime.Total, src.ScreenTime.Total)
	setInt(&dst.ScreenTime.Social, src.ScreenTime.Social)
	setInt(&dst.ScreenTime.Productivity, src.ScreenTime.Productivity)
	setInt(&dst.ScreenTime.Entertainment, src.ScreenTime.Entertainment)

	setFloat(&dst.Confidence, src.Confidence)
	if src.IsMockData {
		dst.IsMockData = true
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

// DeriveWellness scores one record. Activity rewards steps against a 10k
// goal plus an hour of active minutes; sleep rewards the ideal-duration band
// plus reported quality; heart rewards a low resting rate plus HRV.
func DeriveWellness(rec models.HealthMetricsRecord) models.WellnessScores {
	activity := math.Min(70, float64(rec.Steps)/10000*70) +
		math.Min(30, float64(rec.ActiveMinutes)/60*30)

	sleepDur := 70.0
	if rec.Sleep.Duration < 420 {
		sleepDur = float64(rec.Sleep.Duration) / 420 * 70
	}
	sleep := sleepDur + float64(rec.Sleep.Quality)*0.3

	heartBase := 70.0
	if rhr := rec.HeartRate.Resting; rhr > 60 {
		heartBase = math.Max(0, 70-float64(rhr-60))
	}
	heart := heartBase + math.Min(30, float64(rec.HeartRate.Variability)*2/3)

	scores := models.WellnessScores{
		Activity: models.ClampInt(int(math.Round(activity)), 0, 100),
		Sleep:    models.ClampInt(int(math.Round(sleep)), 0, 100),
		Heart:    models.ClampInt(int(math.Round(heart)), 0, 100),
	}
	overall := activityWeight*float64(scores.Activity) +
		sleepWeight*float64(scores.Sleep) +
		heartWeight*float64(scores.Heart)
	scores.Overall = models.ClampInt(int(math.Round(overall)), 0, 100)
	return scores
}
