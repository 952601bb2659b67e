// Package emotion provides keyword-based classification of user messages
// into emotional states, with urgency grading and conversation-pattern
// metadata derived from rolling per-user history.
package emotion

import (
	"strings"
	"time"

	"github.com/BTreeMap/MoodPipe/internal/models"
)

// EmotionNeutral is assigned when no keyword matches.
const EmotionNeutral = "neutral"

// ---- Category table ----

// Category maps one emotion to its keyword set, weight and urgency.
type Category struct {
	Name     string
	Keywords []string
	Weight   float64
	Urgency  models.Urgency
}

// categories is the static classification table. Declaration order is the
// tie-break order: when two categories match with equal weight, the one
// declared first wins. Matching is a plain substring scan of the lower-cased
// input, so multi-word phrases are legal keywords.
var categories = []Category{
	{
		Name: "crisis",
		Keywords: []string{
			"kill myself", "suicide", "suicidal", "end my life", "want to die",
			"harm myself", "self harm", "no reason to live", "better off dead",
		},
		Weight:  1.0,
		Urgency: models.UrgencyHigh,
	},
	{
		Name: "depression",
		Keywords: []string{
			"depressed", "depression", "hopeless", "worthless", "empty inside",
			"numb", "no energy", "pointless",
		},
		Weight:  0.9,
		Urgency: models.UrgencyHigh,
	},
	{
		Name: "anxiety",
		Keywords: []string{
			"anxious", "anxiety", "panic", "worried", "nervous", "overwhelmed",
			"can't breathe", "racing thoughts", "on edge", "stressed",
		},
		Weight:  0.7,
		Urgency: models.UrgencyMedium,
	},
	{
		Name: "anger",
		Keywords: []string{
			"angry", "furious", "rage", "frustrated", "irritated", "fed up",
		},
		Weight:  0.6,
		Urgency: models.UrgencyMedium,
	},
	{
		Name: "sadness",
		Keywords: []string{
			"sad", "crying", "cried", "lonely", "heartbroken", "miserable",
			"grief", "lost someone",
		},
		Weight:  0.6,
		Urgency: models.UrgencyMedium,
	},
	{
		Name: "fear",
		Keywords: []string{
			"scared", "afraid", "terrified", "frightened",
		},
		Weight:  0.6,
		Urgency: models.UrgencyMedium,
	},
	{
		Name: "joy",
		Keywords: []string{
			"happy", "excited", "wonderful", "amazing", "joyful", "glad",
			"thrilled", "fantastic", "great day",
		},
		Weight:  0.5,
		Urgency: models.UrgencyLow,
	},
	{
		Name: "gratitude",
		Keywords: []string{
			"thankful", "grateful", "blessed", "appreciate",
		},
		Weight:  0.4,
		Urgency: models.UrgencyLow,
	},
	{
		Name: "confusion",
		Keywords: []string{
			"confused", "unsure", "uncertain", "don't understand",
		},
		Weight:  0.4,
		Urgency: models.UrgencyLow,
	},
	{
		Name: "calm",
		Keywords: []string{
			"calm", "peaceful", "relaxed", "content", "at ease",
		},
		Weight:  0.3,
		Urgency: models.UrgencyLow,
	},
}

// ---- Engagement thresholds ----

const (
	// Average message lengths (characters) separating engagement levels.
	engagementMediumFloor = 30
	engagementHighFloor   = 80

	// Confidence bonus per additional matched keyword of the winning category.
	extraHitBonus = 0.08
)

// Categories returns a copy of the static classification table, preserving
// declaration order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// ---- Classification ----

// Classify analyzes one message against the static category table and the
// caller-supplied history. It is a pure function: no I/O, no persistence, and
// it always returns a usable state. Unmatched input yields the neutral
// emotion with zero confidence. History feeds only the auxiliary engagement
// and progression fields; it never changes the primary emotion.
func Classify(text string, history []models.PriorMessage) models.EmotionalState {
	lowered := strings.ToLower(text)

	var detected []models.DetectedEmotion
	hitsByCategory := make(map[string]int, len(categories))
	for _, cat := range categories {
		for _, kw := range cat.Keywords {
			if strings.Contains(lowered, kw) {
				detected = append(detected, models.DetectedEmotion{
					Emotion: cat.Name,
					Keyword: kw,
					Weight:  cat.Weight,
				})
				hitsByCategory[cat.Name]++
			}
		}
	}

	state := models.EmotionalState{
		PrimaryEmotion:    EmotionNeutral,
		Confidence:        0,
		Urgency:           models.UrgencyLow,
		DetectedEmotions:  detected,
		ConversationDepth: len(history) + 1,
		Engagement:        engagementLevel(text, history),
		Progression:       progression(history),
		AnalyzedAt:        time.Now(),
	}
	if len(detected) == 0 {
		return state
	}

	// Strictly-greater comparison over the table in declaration order makes
	// the tie-break deterministic: the earliest category with the maximum
	// weight wins.
	var winner *Category
	for i := range categories {
		cat := &categories[i]
		if hitsByCategory[cat.Name] == 0 {
			continue
		}
		if winner == nil || cat.Weight > winner.Weight {
			winner = cat
		}
	}

	state.PrimaryEmotion = winner.Name
	state.Urgency = winner.Urgency
	state.Confidence = models.ClampFloat(
		winner.Weight+extraHitBonus*float64(hitsByCategory[winner.Name]-1), 0, 1)
	return state
}

// engagementLevel averages body length across the history plus the current
// message and maps it onto the three engagement bands.
func engagementLevel(current string, history []models.PriorMessage) models.EngagementLevel {
	total := len(current)
	for _, m := range history {
		total += len(m.Body)
	}
	avg := total / (len(history) + 1)

	switch {
	case avg >= engagementHighFloor:
		return models.EngagementHigh
	case avg >= engagementMediumFloor:
		return models.EngagementMedium
	default:
		return models.EngagementLow
	}
}

// progression returns the primary emotions of the most recent prior messages,
// oldest first, capped at the progression window.
func progression(history []models.PriorMessage) []string {
	start := 0
	if len(history) > models.ProgressionWindow {
		start = len(history) - models.ProgressionWindow
	}

	var trace []string
	for _, m := range history[start:] {
		if m.Emotion != "" {
			trace = append(trace, m.Emotion)
		}
	}
	return trace
}
