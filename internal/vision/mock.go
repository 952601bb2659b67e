package vision

import (
	"context"

	"github.com/BTreeMap/MoodPipe/internal/models"
)

// mockConfidence marks synthetic records as degraded; downstream scoring
// lowers its own confidence when it sees this.
const mockConfidence = 0.5

// MockStrategy is the terminal link of the chain. It fabricates a full
// record with no reference to the image at all, so the pipeline always has
// something to score.
type MockStrategy struct{}

// NewMockStrategy creates the terminal fallback strategy.
func NewMockStrategy() *MockStrategy {
	return &MockStrategy{}
}

// Method implements Strategy.
func (s *MockStrategy) Method() models.ExtractionMethod {
	return models.ExtractionMock
}

// Extract implements Strategy. It never fails.
func (s *MockStrategy) Extract(_ context.Context, req Request) (models.HealthMetricsRecord, error) {
	steps := randBetween(2000, 15000)
	sleep := randBetween(300, 540)
	rec := models.HealthMetricsRecord{
		Steps:         steps,
		Calories:      randBetween(1200, 2800),
		DistanceKM:    float64(steps) * kmPerStep,
		ActiveMinutes: randBetween(10, 90),
		HeartRate: models.HeartRateMetrics{
			Current:     randBetween(58, 95),
			Resting:     randBetween(52, 75),
			Variability: randBetween(20, 70),
		},
		Sleep: models.SleepMetrics{
			Duration: sleep,
			Quality:  randBetween(50, 95),
		},
		ScreenTime: models.ScreenTimeMetrics{
			Total:         randBetween(150, 480),
			Social:        randBetween(30, 180),
			Productivity:  randBetween(20, 120),
			Entertainment: randBetween(20, 150),
		},
		Source:     sourceTag(req.AppType),
		Confidence: mockConfidence,
		IsMockData: true,
	}
	return rec, nil
}
