// Package mood derives mood scores from health metrics using a fixed,
// deterministic rule table. Scoring is pure and never fails: missing
// sub-fields are filled with the documented defaults before any rule runs.
package mood

import (
	"sort"
	"time"

	"github.com/BTreeMap/MoodPipe/internal/models"
)

// Score adjustments per dimension. Each rule is independent and additive;
// the summed total is clipped to [0,100].
const (
	BaseScore = 50

	StepsExcellentFloor   = 10000
	StepsGoodFloor        = 7000
	StepsExcellentBonus   = 15
	StepsGoodBonus        = 10
	StepsLowPenalty       = 10
	ActiveMinutesFloor    = 30
	ActiveMinutesBonus    = 10
	SleepIdealMinMinutes  = 420 // 7h
	SleepIdealMaxMinutes  = 540 // 9h
	SleepIdealBonus       = 15
	SleepShortMinutes     = 360 // 6h
	SleepShortPenalty     = 15
	SleepQualityFloor     = 80
	SleepQualityBonus     = 10
	RestingHeartRateCeil  = 60
	RestingHeartBonus     = 10
	ScreenTimeLowCeil     = 240
	ScreenTimeLowBonus    = 10
	ScreenTimeHighFloor   = 360
	ScreenTimeHighPenalty = 10

	// Result confidence by metric provenance.
	ConfidenceStructured = 0.8
	ConfidenceDegraded   = 0.5
)

// rule is one fired adjustment with its user-facing factor name and, for
// negative adjustments, a recommendation.
type rule struct {
	name           string
	adjustment     int
	recommendation string
}

// Score evaluates the rule table against a metrics record and returns the
// mood result. The record's provenance lowers the result confidence when the
// metrics came from a degraded or mock source.
func Score(rec models.HealthMetricsRecord) models.MoodResult {
	rec.Normalize()

	var fired []rule

	switch {
	case rec.Steps >= StepsExcellentFloor:
		fired = append(fired, rule{name: "excellent step count", adjustment: StepsExcellentBonus})
	case rec.Steps >= StepsGoodFloor:
		fired = append(fired, rule{name: "good step count", adjustment: StepsGoodBonus})
	default:
		fired = append(fired, rule{
			name:           "low step count",
			adjustment:     -StepsLowPenalty,
			recommendation: "Try a short walk today; even 10 minutes of movement lifts energy.",
		})
	}

	if rec.ActiveMinutes >= ActiveMinutesFloor {
		fired = append(fired, rule{name: "active lifestyle", adjustment: ActiveMinutesBonus})
	}

	if rec.Sleep.Duration >= SleepIdealMinMinutes && rec.Sleep.Duration <= SleepIdealMaxMinutes {
		fired = append(fired, rule{name: "healthy sleep duration", adjustment: SleepIdealBonus})
	} else if rec.Sleep.Duration < SleepShortMinutes {
		fired = append(fired, rule{
			name:           "insufficient sleep",
			adjustment:     -SleepShortPenalty,
			recommendation: "Aim for 7-9 hours of sleep tonight; set a wind-down alarm an hour before bed.",
		})
	}

	if rec.Sleep.Quality >= SleepQualityFloor {
		fired = append(fired, rule{name: "good sleep quality", adjustment: SleepQualityBonus})
	}

	if rec.HeartRate.Resting <= RestingHeartRateCeil {
		fired = append(fired, rule{name: "healthy resting heart rate", adjustment: RestingHeartBonus})
	}

	if rec.ScreenTime.Total < ScreenTimeLowCeil {
		fired = append(fired, rule{name: "low screen time", adjustment: ScreenTimeLowBonus})
	} else if rec.ScreenTime.Total > ScreenTimeHighFloor {
		fired = append(fired, rule{
			name:           "high screen time",
			adjustment:     -ScreenTimeHighPenalty,
			recommendation: "Screen time is running high; schedule a screen-free hour this evening.",
		})
	}

	score := BaseScore
	factors := make([]models.MoodFactor, 0, len(fired))
	var recommendations []string
	for _, r := range fired {
		score += r.adjustment

		impact := models.ImpactPositive
		if r.adjustment < 0 {
			impact = models.ImpactNegative
		}
		factors = append(factors, models.MoodFactor{
			Name:   r.name,
			Impact: impact,
			Weight: abs(r.adjustment),
		})
		if r.recommendation != "" {
			recommendations = append(recommendations, r.recommendation)
		}
	}

	// Top factors by absolute weight; stable sort keeps rule order for ties.
	sort.SliceStable(factors, func(i, j int) bool {
		return factors[i].Weight > factors[j].Weight
	})
	if len(factors) > models.MaxMoodFactors {
		factors = factors[:models.MaxMoodFactors]
	}
	if len(recommendations) > models.MaxRecommendations {
		recommendations = recommendations[:models.MaxRecommendations]
	}

	score = models.ClampInt(score, 0, 100)

	confidence := ConfidenceStructured
	if rec.Degraded() {
		confidence = ConfidenceDegraded
	}

	return models.MoodResult{
		Score:           score,
		Prediction:      Predict(score),
		Confidence:      confidence,
		Factors:         factors,
		Recommendations: recommendations,
		ScoredAt:        time.Now(),
	}
}

// Predict maps a clipped score onto the prediction ladder.
func Predict(score int) models.MoodPrediction {
	switch {
	case score >= 80:
		return models.PredictionExcellent
	case score >= 65:
		return models.PredictionGood
	case score >= 50:
		return models.PredictionNeutral
	case score >= 35:
		return models.PredictionConcerned
	default:
		return models.PredictionStruggling
	}
}

func abs(v int) float64 {
	if v < 0 {
		return float64(-v)
	}
	return float64(v)
}
