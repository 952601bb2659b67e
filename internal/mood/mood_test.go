package mood

import (
	"testing"

	"github.com/BTreeMap/MoodPipe/internal/models"
)

func TestScoreHealthyDay(t *testing.T) {
	rec := models.HealthMetricsRecord{
		Steps:            12000,
		ActiveMinutes:    40,
		Sleep:            models.SleepMetrics{Duration: 480, Quality: 85},
		HeartRate:        models.HeartRateMetrics{Resting: 58},
		ScreenTime:       models.ScreenTimeMetrics{Total: 200},
		Confidence:       0.95,
		ExtractionMethod: models.ExtractionRemoteAI,
	}

	result := Score(rec)

	if result.Score < 95 {
		t.Errorf("expected score >= 95 for a healthy day, got %d", result.Score)
	}
	if result.Score > 100 {
		t.Errorf("score must clip to 100, got %d", result.Score)
	}
	if result.Prediction != models.PredictionExcellent {
		t.Errorf("expected excellent prediction, got %s", result.Prediction)
	}
	if result.Confidence != ConfidenceStructured {
		t.Errorf("expected structured confidence %v, got %v", ConfidenceStructured, result.Confidence)
	}
	if len(result.Factors) > models.MaxMoodFactors {
		t.Errorf("factors must truncate to %d, got %d", models.MaxMoodFactors, len(result.Factors))
	}
	for _, f := range result.Factors {
		if f.Impact != models.ImpactPositive {
			t.Errorf("healthy day should have only positive factors, got %+v", f)
		}
	}
}

func TestScoreRoughDay(t *testing.T) {
	rec := models.HealthMetricsRecord{
		Steps:            2000,
		Sleep:            models.SleepMetrics{Duration: 300},
		HeartRate:        models.HeartRateMetrics{Resting: 75},
		ScreenTime:       models.ScreenTimeMetrics{Total: 400},
		Confidence:       0.9,
		ExtractionMethod: models.ExtractionRemoteAI,
	}

	result := Score(rec)

	if result.Score > 25 {
		t.Errorf("expected score <= 25 for a rough day, got %d", result.Score)
	}
	if result.Prediction != models.PredictionStruggling && result.Prediction != models.PredictionConcerned {
		t.Errorf("expected struggling or concerned, got %s", result.Prediction)
	}
	if len(result.Recommendations) == 0 {
		t.Error("expected recommendations for negative factors")
	}
	if len(result.Recommendations) > models.MaxRecommendations {
		t.Errorf("recommendations must truncate to %d, got %d", models.MaxRecommendations, len(result.Recommendations))
	}

	negatives := 0
	for _, f := range result.Factors {
		if f.Impact == models.ImpactNegative {
			negatives++
		}
	}
	if negatives < 3 {
		t.Errorf("expected at least 3 negative factors (steps, sleep, screen), got %d", negatives)
	}
}

func TestScoreNeverBelowZero(t *testing.T) {
	// All penalties on a degraded record still land inside [0,100].
	rec := models.HealthMetricsRecord{
		Steps:      100,
		Sleep:      models.SleepMetrics{Duration: 120, Quality: 20},
		HeartRate:  models.HeartRateMetrics{Resting: 90},
		ScreenTime: models.ScreenTimeMetrics{Total: 700},
	}

	result := Score(rec)
	if result.Score < 0 || result.Score > 100 {
		t.Errorf("score out of range: %d", result.Score)
	}
}

func TestScoreDegradedSourceLowersConfidence(t *testing.T) {
	rec := models.HealthMetricsRecord{
		Steps:            8000,
		Confidence:       0.5,
		ExtractionMethod: models.ExtractionMock,
		IsMockData:       true,
	}

	result := Score(rec)
	if result.Confidence != ConfidenceDegraded {
		t.Errorf("expected degraded confidence %v, got %v", ConfidenceDegraded, result.Confidence)
	}
}

func TestScoreZeroRecordUsesDefaults(t *testing.T) {
	// A zero record never fails; defaulted sleep counts as a healthy night,
	// zero steps count as a sedentary day.
	result := Score(models.HealthMetricsRecord{})

	if result.Score < 0 || result.Score > 100 {
		t.Errorf("score out of range: %d", result.Score)
	}
	if result.Prediction == "" {
		t.Error("prediction must always be set")
	}

	foundSleep := false
	for _, f := range result.Factors {
		if f.Name == "healthy sleep duration" {
			foundSleep = true
		}
	}
	if !foundSleep {
		t.Error("defaulted sleep (420min) should fire the healthy sleep rule")
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	rec := models.HealthMetricsRecord{
		Steps:         9000,
		ActiveMinutes: 45,
		Sleep:         models.SleepMetrics{Duration: 450, Quality: 90},
		HeartRate:     models.HeartRateMetrics{Resting: 55},
		ScreenTime:    models.ScreenTimeMetrics{Total: 100},
		Confidence:    0.9,
	}

	a := Score(rec)
	b := Score(rec)
	if a.Score != b.Score || a.Prediction != b.Prediction {
		t.Errorf("scoring should be deterministic: %d/%s vs %d/%s",
			a.Score, a.Prediction, b.Score, b.Prediction)
	}
	if len(a.Factors) != len(b.Factors) {
		t.Errorf("factor lists differ in length: %d vs %d", len(a.Factors), len(b.Factors))
	}
}

func TestScoreFactorsSortedByWeight(t *testing.T) {
	rec := models.HealthMetricsRecord{
		Steps:         12000,
		ActiveMinutes: 40,
		Sleep:         models.SleepMetrics{Duration: 480, Quality: 85},
		HeartRate:     models.HeartRateMetrics{Resting: 50},
		ScreenTime:    models.ScreenTimeMetrics{Total: 100},
		Confidence:    0.9,
	}

	result := Score(rec)
	for i := 1; i < len(result.Factors); i++ {
		if result.Factors[i].Weight > result.Factors[i-1].Weight {
			t.Errorf("factors not sorted by weight: %+v", result.Factors)
		}
	}
	if result.Factors[0].Weight != StepsExcellentBonus {
		t.Errorf("heaviest factor should lead, got %+v", result.Factors[0])
	}
}

func TestPredictLadder(t *testing.T) {
	cases := []struct {
		score int
		want  models.MoodPrediction
	}{
		{100, models.PredictionExcellent},
		{80, models.PredictionExcellent},
		{79, models.PredictionGood},
		{65, models.PredictionGood},
		{64, models.PredictionNeutral},
		{50, models.PredictionNeutral},
		{49, models.PredictionConcerned},
		{35, models.PredictionConcerned},
		{34, models.PredictionStruggling},
		{0, models.PredictionStruggling},
	}
	for _, tc := range cases {
		if got := Predict(tc.score); got != tc.want {
			t.Errorf("Predict(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}
