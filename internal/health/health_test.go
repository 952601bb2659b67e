package health

import (
	"testing"
	"time"

	"github.com/BTreeMap/MoodPipe/internal/models"
)

func TestAggregateMostRecentProviderWins(t *testing.T) {
	agg := NewAggregator()
	agg.ConnectAt("strava", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	agg.ConnectAt("google-fit", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))

	merged := agg.Aggregate(map[string]models.HealthMetricsRecord{
		"strava":     {Steps: 5000, Sleep: models.SleepMetrics{Duration: 400}},
		"google-fit": {Steps: 8000},
	})

	if merged.Steps != 8000 {
		t.Errorf("Aggregate: most recent provider should win steps, got %d", merged.Steps)
	}
	if merged.Sleep.Duration != 400 {
		t.Errorf("Aggregate: gap should fall back to older provider, got %d", merged.Sleep.Duration)
	}
	if merged.Source != "strava+google-fit" {
		t.Errorf("Aggregate: expected joined source in precedence order, got %q", merged.Source)
	}
}

func TestAggregateNormalizesMergedRecord(t *testing.T) {
	agg := NewAggregator()

	merged := agg.Aggregate(map[string]models.HealthMetricsRecord{
		"fitbit": {Steps: 6000},
	})

	if merged.Sleep.Duration != models.DefaultSleepDurationMinutes {
		t.Errorf("Aggregate: expected normalized sleep duration, got %d", merged.Sleep.Duration)
	}
	if merged.HeartRate.Resting != models.DefaultRestingHeartRate {
		t.Errorf("Aggregate: expected normalized resting heart rate, got %d", merged.HeartRate.Resting)
	}
}

func TestAggregateUnknownProvidersSortByName(t *testing.T) {
	agg := NewAggregator()

	merged := agg.Aggregate(map[string]models.HealthMetricsRecord{
		"zeta":  {Steps: 1000},
		"alpha": {Steps: 2000},
	})

	// Never-connected providers share a zero timestamp; names break the tie,
	// so "zeta" applies last and wins.
	if merged.Steps != 1000 {
		t.Errorf("Aggregate: expected name tie-break, got steps %d", merged.Steps)
	}
	if merged.Source != "alpha+zeta" {
		t.Errorf("Aggregate: expected alphabetical precedence order, got %q", merged.Source)
	}
}

func TestAggregateCarriesMockFlag(t *testing.T) {
	agg := NewAggregator()

	merged := agg.Aggregate(map[string]models.HealthMetricsRecord{
		"a": {Steps: 100, IsMockData: true},
		"b": {Steps: 200},
	})

	if !merged.IsMockData {
		t.Error("Aggregate: mock flag must survive the merge")
	}
}

func TestSetRecordConnectsProvider(t *testing.T) {
	agg := NewAggregator()
	agg.SetRecord("withings", models.HealthMetricsRecord{HeartRate: models.HeartRateMetrics{Resting: 58}})

	if _, ok := agg.Status()["withings"]; !ok {
		t.Fatal("SetRecord: provider should be connected implicitly")
	}
	if got := agg.Current().HeartRate.Resting; got != 58 {
		t.Errorf("Current: expected stored resting heart rate, got %d", got)
	}
}

func TestDisconnectRemovesProvider(t *testing.T) {
	agg := NewAggregator()
	agg.SetRecord("strava", models.HealthMetricsRecord{Steps: 9000})
	agg.Disconnect("strava")

	if len(agg.Status()) != 0 || len(agg.Snapshot()) != 0 {
		t.Error("Disconnect: provider state should be gone")
	}
}

func TestWellnessNeutralWithoutData(t *testing.T) {
	scores := NewAggregator().Wellness()

	want := models.WellnessScores{Activity: 50, Sleep: 50, Heart: 50, Overall: 50}
	if scores != want {
		t.Errorf("Wellness: expected neutral scores, got %+v", scores)
	}
}

func TestDeriveWellnessHealthyDay(t *testing.T) {
	scores := DeriveWellness(models.HealthMetricsRecord{
		Steps:         12000,
		ActiveMinutes: 60,
		Sleep:         models.SleepMetrics{Duration: 480, Quality: 90},
		HeartRate:     models.HeartRateMetrics{Resting: 55, Variability: 60},
	})

	want := models.WellnessScores{Activity: 100, Sleep: 97, Heart: 100, Overall: 99}
	if scores != want {
		t.Errorf("DeriveWellness: got %+v, want %+v", scores, want)
	}
}

func TestDeriveWellnessStaysInBounds(t *testing.T) {
	high := DeriveWellness(models.HealthMetricsRecord{
		Steps:         50000,
		ActiveMinutes: 500,
		Sleep:         models.SleepMetrics{Duration: 700, Quality: 100},
		HeartRate:     models.HeartRateMetrics{Resting: 30, Variability: 200},
	})
	if high.Overall != 100 || high.Activity != 100 || high.Sleep != 100 || high.Heart != 100 {
		t.Errorf("DeriveWellness: extreme highs should clamp to 100, got %+v", high)
	}

	low := DeriveWellness(models.HealthMetricsRecord{
		Sleep:     models.SleepMetrics{Duration: 0, Quality: 0},
		HeartRate: models.HeartRateMetrics{Resting: 140},
	})
	if low.Heart != 0 {
		t.Errorf("DeriveWellness: very high resting rate should floor heart at 0, got %+v", low)
	}
	if low.Activity != 0 || low.Sleep != 0 {
		t.Errorf("DeriveWellness: empty record scores should floor at 0, got %+v", low)
	}
}
