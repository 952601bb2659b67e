// Package models defines the core data structures for MoodPipe.
//
// It includes types for extracted health metrics, emotional states, and mood
// results, which are shared across modules.
package models

import (
	"errors"
	"time"
)

// ExtractionMethod records which strategy of the image-analysis chain
// produced a health metrics record.
type ExtractionMethod string

const (
	// ExtractionRemoteAI indicates metrics were extracted by the remote vision model.
	ExtractionRemoteAI ExtractionMethod = "remote-ai"
	// ExtractionPatternHeuristic indicates metrics were generated by the local per-app heuristic.
	ExtractionPatternHeuristic ExtractionMethod = "pattern-heuristic"
	// ExtractionMock indicates metrics were fabricated by the terminal mock strategy.
	ExtractionMock ExtractionMethod = "mock"
)

// Urgency grades how quickly a classified message should be surfaced.
type Urgency string

const (
	// UrgencyLow indicates no elevated attention is needed.
	UrgencyLow Urgency = "low"
	// UrgencyMedium indicates the message shows notable distress.
	UrgencyMedium Urgency = "medium"
	// UrgencyHigh indicates crisis-level content requiring immediate attention.
	UrgencyHigh Urgency = "high"
)

// MoodPrediction is the qualitative band derived from a mood score.
type MoodPrediction string

const (
	// PredictionExcellent covers scores of 80 and above.
	PredictionExcellent MoodPrediction = "excellent"
	// PredictionGood covers scores of 65 to 79.
	PredictionGood MoodPrediction = "good"
	// PredictionNeutral covers scores of 50 to 64.
	PredictionNeutral MoodPrediction = "neutral"
	// PredictionConcerned covers scores of 35 to 49.
	PredictionConcerned MoodPrediction = "concerned"
	// PredictionStruggling covers scores below 35.
	PredictionStruggling MoodPrediction = "struggling"
)

// FactorImpact marks whether a mood factor raised or lowered the score.
type FactorImpact string

const (
	// ImpactPositive indicates the factor raised the score.
	ImpactPositive FactorImpact = "positive"
	// ImpactNegative indicates the factor lowered the score.
	ImpactNegative FactorImpact = "negative"
)

// EngagementLevel summarizes how much a user writes per message.
type EngagementLevel string

const (
	// EngagementLow indicates short messages (average under 30 characters).
	EngagementLow EngagementLevel = "low"
	// EngagementMedium indicates mid-length messages (average under 80 characters).
	EngagementMedium EngagementLevel = "medium"
	// EngagementHigh indicates long, detailed messages.
	EngagementHigh EngagementLevel = "high"
)

// Validation constants for input validation
const (
	// MaxMessageLength defines the maximum allowed length for inbound message bodies
	MaxMessageLength = 4096
	// MaxImageBase64Length defines the maximum allowed length of a base64 screenshot payload (~8 MiB decoded)
	MaxImageBase64Length = 11 << 20
	// MaxHistoryEntries defines the rolling cap on per-user emotional history
	MaxHistoryEntries = 50
	// MaxMoodFactors defines how many contributing factors a mood result retains
	MaxMoodFactors = 5
	// MaxRecommendations defines how many recommendations a mood result retains
	MaxRecommendations = 4
	// MaxResultLimit defines the largest recent-result window a query may request
	MaxResultLimit = 100
	// MaxInsightHighlights defines how many highlight lines an insight retains
	MaxInsightHighlights = 3
	// ProgressionWindow defines how many prior classifications feed the progression trace
	ProgressionWindow = 5
)

// Fallback constants applied when an extracted record is missing sub-fields.
// Values are chosen so a defaulted field fires no scoring rule, except sleep,
// which defaults to a healthy night.
const (
	// DefaultSleepDurationMinutes is assumed when no sleep duration was captured.
	DefaultSleepDurationMinutes = 420
	// DefaultSleepQuality is assumed when no sleep quality was captured.
	DefaultSleepQuality = 80
	// DefaultRestingHeartRate is assumed when no resting heart rate was captured.
	DefaultRestingHeartRate = 65
	// DefaultHeartRate is assumed when no current heart rate was captured.
	DefaultHeartRate = 72
	// DefaultHeartRateVariability is assumed when no HRV reading was captured.
	DefaultHeartRateVariability = 45
	// DefaultScreenTimeMinutes is assumed when no screen time total was captured.
	DefaultScreenTimeMinutes = 300
	// DegradedConfidenceThreshold marks records at or below this confidence as degraded sources.
	DegradedConfidenceThreshold = 0.5
)

// Error variables for better error handling and testability
var (
	ErrEmptyUserID        = errors.New("user id cannot be empty")
	ErrEmptyMessage       = errors.New("message body cannot be empty")
	ErrMessageTooLong     = errors.New("message body exceeds maximum length")
	ErrEmptyImage         = errors.New("image payload cannot be empty")
	ErrImageTooLarge      = errors.New("image payload exceeds maximum size")
	ErrInvalidImage       = errors.New("image payload is not valid base64")
	ErrUnknownWorkflow    = errors.New("unknown workflow")
	ErrUnknownProvider    = errors.New("unknown provider")
	ErrUnknownInstrument  = errors.New("unknown assessment instrument")
	ErrResponseCount      = errors.New("response count does not match instrument")
	ErrResponseOutOfRange = errors.New("response value out of range")
	ErrInvalidStateToken  = errors.New("state token is invalid or expired")
	ErrNotFound           = errors.New("record not found")
	ErrNoCandidates       = errors.New("model response contained no candidates")
	ErrNoJSONPayload      = errors.New("model response contained no JSON object")
)

// DetectedEmotion is a single keyword hit recorded during classification.
type DetectedEmotion struct {
	Emotion string  `json:"emotion"` // category the keyword belongs to
	Keyword string  `json:"keyword"` // keyword that matched
	Weight  float64 `json:"weight"`  // category weight at match time
}

// EmotionalState is the immutable result of classifying one message.
// Engagement and Progression are auxiliary context derived from history;
// they never override the primary emotion.
type EmotionalState struct {
	PrimaryEmotion    string            `json:"primary_emotion"`
	Confidence        float64           `json:"confidence"` // 0..1
	Urgency           Urgency           `json:"urgency"`
	DetectedEmotions  []DetectedEmotion `json:"detected_emotions,omitempty"`
	ConversationDepth int               `json:"conversation_depth"`
	Engagement        EngagementLevel   `json:"engagement,omitempty"`
	Progression       []string          `json:"progression,omitempty"` // prior primaries, oldest first
	AnalyzedAt        time.Time         `json:"analyzed_at"`
}

// PriorMessage is one entry of a user's rolling conversation history,
// carried into classification for pattern analysis.
type PriorMessage struct {
	Body    string    `json:"body"`
	Emotion string    `json:"emotion,omitempty"` // primary emotion assigned at the time
	SentAt  time.Time `json:"sent_at"`
}

// HeartRateMetrics holds heart readings in bpm (variability in ms).
type HeartRateMetrics struct {
	Current     int `json:"current"`
	Resting     int `json:"resting"`
	Variability int `json:"variability"`
}

// SleepStages breaks a night into stage minutes.
type SleepStages struct {
	Deep  int `json:"deep"`
	Light int `json:"light"`
	REM   int `json:"rem"`
}

// SleepMetrics holds one night of sleep data.
type SleepMetrics struct {
	Duration int         `json:"duration"` // minutes
	Quality  int         `json:"quality"`  // 0..100
	Stages   SleepStages `json:"stages"`
}

// ScreenTimeMetrics holds device usage minutes by bucket.
type ScreenTimeMetrics struct {
	Total         int `json:"total"`
	Social        int `json:"social"`
	Productivity  int `json:"productivity"`
	Entertainment int `json:"entertainment"`
}

// HealthMetricsRecord is the normalized output of any extraction strategy or
// provider fetch. Source identifies the app or provider; ExtractionMethod and
// IsMockData carry provenance through the rest of the pipeline.
type HealthMetricsRecord struct {
	Timestamp        time.Time         `json:"timestamp"`
	Steps            int               `json:"steps"`
	Calories         int               `json:"calories"`
	DistanceKM       float64           `json:"distance_km"`
	ActiveMinutes    int               `json:"active_minutes"`
	HeartRate        HeartRateMetrics  `json:"heart_rate"`
	Sleep            SleepMetrics      `json:"sleep"`
	ScreenTime       ScreenTimeMetrics `json:"screen_time"`
	Confidence       float64           `json:"confidence"`
	Source           string            `json:"source,omitempty"`
	ExtractionMethod ExtractionMethod  `json:"extraction_method"`
	IsMockData       bool              `json:"is_mock_data"`
}

// Normalize fills zero-valued sub-fields with the documented fallback
// constants and clamps bounded fields. Steps, calories, distance and active
// minutes pass through untouched; zero there means nothing was recorded.
func (r *HealthMetricsRecord) Normalize() {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	if r.Sleep.Duration == 0 {
		r.Sleep.Duration = DefaultSleepDurationMinutes
	}
	if r.Sleep.Quality == 0 {
		r.Sleep.Quality = DefaultSleepQuality
	}
	if r.Sleep.Stages.Deep == 0 && r.Sleep.Stages.Light == 0 && r.Sleep.Stages.REM == 0 {
		r.Sleep.Stages = SleepStages{
			Deep:  r.Sleep.Duration * 20 / 100,
			Light: r.Sleep.Duration * 55 / 100,
			REM:   r.Sleep.Duration * 25 / 100,
		}
	}
	if r.HeartRate.Resting == 0 {
		r.HeartRate.Resting = DefaultRestingHeartRate
	}
	if r.HeartRate.Current == 0 {
		r.HeartRate.Current = DefaultHeartRate
	}
	if r.HeartRate.Variability == 0 {
		r.HeartRate.Variability = DefaultHeartRateVariability
	}
	if r.ScreenTime.Total == 0 {
		r.ScreenTime.Total = DefaultScreenTimeMinutes
	}
	r.Sleep.Quality = ClampInt(r.Sleep.Quality, 0, 100)
	r.Confidence = ClampFloat(r.Confidence, 0, 1)
}

// Degraded reports whether the record came from a low-trust source. Mood
// scoring lowers its own confidence when this is true.
func (r *HealthMetricsRecord) Degraded() bool {
	return r.IsMockData || r.ExtractionMethod == ExtractionMock || r.Confidence <= DegradedConfidenceThreshold
}

// MoodFactor is one contributing rule of a mood score.
type MoodFactor struct {
	Name   string       `json:"name"`
	Impact FactorImpact `json:"impact"`
	Weight float64      `json:"weight"` // absolute score adjustment
}

// MoodResult is the outcome of scoring one health metrics record.
type MoodResult struct {
	Score           int            `json:"score"` // 0..100
	Prediction      MoodPrediction `json:"prediction"`
	Confidence      float64        `json:"confidence"`
	Factors         []MoodFactor   `json:"factors,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty"`
	ScoredAt        time.Time      `json:"scored_at"`
}

// WellnessScores are the aggregator-derived sub-scores, each 0..100.
type WellnessScores struct {
	Activity int `json:"activity"`
	Sleep    int `json:"sleep"`
	Heart    int `json:"heart"`
	Overall  int `json:"overall"`
}

// TrendDirection describes where recent mood scores are heading.
type TrendDirection string

const (
	// TrendImproving indicates recent scores are rising.
	TrendImproving TrendDirection = "improving"
	// TrendDeclining indicates recent scores are falling.
	TrendDeclining TrendDirection = "declining"
	// TrendSteady indicates no meaningful movement.
	TrendSteady TrendDirection = "steady"
)

// Insights is the output of the aggregation workflow's insight step.
type Insights struct {
	Summary      string         `json:"summary"`
	Trend        TrendDirection `json:"trend"`
	Highlights   []string       `json:"highlights,omitempty"`
	GeneratedBy  string         `json:"generated_by"` // "remote-ai" or "heuristic"
	SampleSize   int            `json:"sample_size"`
	AverageScore float64        `json:"average_score"`
	GeneratedAt  time.Time      `json:"generated_at"`
}

// ClampInt bounds v to [lo, hi].
func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampFloat bounds v to [lo, hi].
func ClampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
