// Package assessment scores the standardized screening instruments PHQ-9
// (depression), GAD-7 (anxiety), and PSS-4 (perceived stress), and blends
// them into one weighted comprehensive result. Scoring is pure table
// lookup; no remote calls are involved.
package assessment

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/MoodPipe/internal/models"
)

// Instrument identifies one screening questionnaire.
type Instrument string

const (
	// InstrumentPHQ9 is the Patient Health Questionnaire-9.
	InstrumentPHQ9 Instrument = "phq9"
	// InstrumentGAD7 is the Generalized Anxiety Disorder-7 scale.
	InstrumentGAD7 Instrument = "gad7"
	// InstrumentPSS4 is the 4-item Perceived Stress Scale.
	InstrumentPSS4 Instrument = "pss4"
)

// Total scores at or above these thresholds set RequiresProfessionalHelp.
const (
	PHQ9HelpThreshold = 15
	GAD7HelpThreshold = 15
	PSS4HelpThreshold = 13
)

// instrumentWeights blend the normalized instrument scores into the
// comprehensive score.
var instrumentWeights = map[Instrument]float64{
	InstrumentPHQ9: 0.4,
	InstrumentGAD7: 0.3,
	InstrumentPSS4: 0.3,
}

// Option is one selectable answer of a question.
type Option struct {
	Value int    `json:"value"`
	Text  string `json:"text"`
}

// Question is one item of an instrument.
type Question struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Options []Option `json:"options"`
}

// Template is the full questionnaire of one instrument.
type Template struct {
	Instrument  Instrument `json:"instrument"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	MaxScore    int        `json:"max_score"`
	Questions   []Question `json:"questions"`
}

// Result is one scored instrument.
type Result struct {
	Instrument               Instrument `json:"instrument"`
	TotalScore               int        `json:"total_score"`
	MaxScore                 int        `json:"max_score"`
	Category                 string     `json:"category"`
	RiskLevel                string     `json:"risk_level"`
	Recommendations          []string   `json:"recommendations"`
	RequiresProfessionalHelp bool       `json:"requires_professional_help"`
	ScoredAt                 time.Time  `json:"scored_at"`
}

// ComprehensiveResult combines several instruments into one weighted view.
// OverallScore is 0..100 where higher means more concern.
type ComprehensiveResult struct {
	AssessmentID    string                `json:"assessment_id"`
	OverallScore    float64               `json:"overall_score"`
	OverallCategory string                `json:"overall_category"`
	Results         map[Instrument]Result `json:"results"`
	Recommendations []string              `json:"recommendations"`
	ScoredAt        time.Time             `json:"scored_at"`
}

// band maps an inclusive total-score range to a severity category.
type band struct {
	lo, hi   int
	category string
}

var (
	phq9Bands = []band{
		{0, 4, "minimal"},
		{5, 9, "mild"},
		{10, 14, "moderate"},
		{15, 19, "moderately_severe"},
		{20, 27, "severe"},
	}
	gad7Bands = []band{
		{0, 4, "minimal"},
		{5, 9, "mild"},
		{10, 14, "moderate"},
		{15, 21, "severe"},
	}
	pss4Bands = []band{
		{0, 6, "low_stress"},
		{7, 10, "moderate_stress"},
		{11, 16, "high_stress"},
	}
)

// frequencyOptions is the shared 0..3 scale of PHQ-9 and GAD-7.
func frequencyOptions() []Option {
	return []Option{
		{Value: 0, Text: "Not at all"},
		{Value: 1, Text: "Several days"},
		{Value: 2, Text: "More than half the days"},
		{Value: 3, Text: "Nearly every day"},
	}
}

// stressOptions is the PSS-4 0..4 scale. Items 2 and 3 are positively
// worded, so their option values run in reverse.
func stressOptions(reversed bool) []Option {
	texts := []string{"Never", "Almost never", "Sometimes", "Fairly often", "Very often"}
	opts := make([]Option, len(texts))
	for i, text := range texts {
		value := i
		if reversed {
			value = len(texts) - 1 - i
		}
		opts[i] = Option{Value: value, Text: text}
	}
	return opts
}

func phq9Questions() []Question {
	texts := []string{
		"Little interest or pleasure in doing things",
		"Feeling down, depressed, or hopeless",
		"Trouble falling or staying asleep, or sleeping too much",
		"Feeling tired or having little energy",
		"Poor appetite or overeating",
		"Feeling bad about yourself, or that you are a failure or have let yourself or your family down",
		"Trouble concentrating on things, such as reading the newspaper or watching television",
		"Moving or speaking so slowly that other people could have noticed, or the opposite, being so fidgety or restless that you have been moving around a lot more than usual",
		"Thoughts that you would be better off dead, or of hurting yourself in some way",
	}
	questions := make([]Question, len(texts))
	for i, text := range texts {
		questions[i] = Question{
			ID:      fmt.Sprintf("phq9_%d", i+1),
			Text:    text,
			Options: frequencyOptions(),
		}
	}
	return questions
}

func gad7Questions() []Question {
	texts := []string{
		"Feeling nervous, anxious, or on edge",
		"Not being able to stop or control worrying",
		"Worrying too much about different things",
		"Trouble relaxing",
		"Being so restless that it is hard to sit still",
		"Becoming easily annoyed or irritable",
		"Feeling afraid, as if something awful might happen",
	}
	questions := make([]Question, len(texts))
	for i, text := range texts {
		questions[i] = Question{
			ID:      fmt.Sprintf("gad7_%d", i+1),
			Text:    text,
			Options: frequencyOptions(),
		}
	}
	return questions
}

func pss4Questions() []Question {
	texts := []string{
		"In the last month, how often have you felt that you were unable to control the important things in your life?",
		"In the last month, how often have you felt confident about your ability to handle your personal problems?",
		"In the last month, how often have you felt that things were going your way?",
		"In the last month, how often have you felt difficulties were piling up so high that you could not overcome them?",
	}
	questions := make([]Question, len(texts))
	for i, text := range texts {
		questions[i] = Question{
			ID:      fmt.Sprintf("pss4_%d", i+1),
			Text:    text,
			Options: stressOptions(i == 1 || i == 2),
		}
	}
	return questions
}

var templates = []Template{
	{
		Instrument:  InstrumentPHQ9,
		Name:        "PHQ-9 Depression Screening",
		Description: "Patient Health Questionnaire-9 for depression screening",
		MaxScore:    27,
		Questions:   phq9Questions(),
	},
	{
		Instrument:  InstrumentGAD7,
		Name:        "GAD-7 Anxiety Screening",
		Description: "Generalized Anxiety Disorder-7 for anxiety screening",
		MaxScore:    21,
		Questions:   gad7Questions(),
	},
	{
		Instrument:  InstrumentPSS4,
		Name:        "PSS-4 Perceived Stress Scale",
		Description: "4-item Perceived Stress Scale for stress assessment",
		MaxScore:    16,
		Questions:   pss4Questions(),
	},
}

// Instruments returns the known instruments in presentation order.
func Instruments() []Instrument {
	return []Instrument{InstrumentPHQ9, InstrumentGAD7, InstrumentPSS4}
}

// ParseInstrument maps a request string onto a known instrument.
func ParseInstrument(s string) (Instrument, error) {
	switch Instrument(strings.ToLower(strings.TrimSpace(s))) {
	case InstrumentPHQ9:
		return InstrumentPHQ9, nil
	case InstrumentGAD7:
		return InstrumentGAD7, nil
	case InstrumentPSS4:
		return InstrumentPSS4, nil
	default:
		return "", fmt.Errorf("%w: %s", models.ErrUnknownInstrument, s)
	}
}

// Templates returns every questionnaire in presentation order.
func Templates() []Template {
	return append([]Template(nil), templates...)
}

// TemplateFor returns the questionnaire of one instrument.
func TemplateFor(instrument Instrument) (Template, error) {
	for _, tpl := range templates {
		if tpl.Instrument == instrument {
			return tpl, nil
		}
	}
	return Template{}, fmt.Errorf("%w: %s", models.ErrUnknownInstrument, instrument)
}

// Score validates responses against the instrument's template and returns
// the total, severity category, risk level, and recommendations. Responses
// are the selected option values in question order; PSS-4 reversal is
// encoded in the option values, so totals are plain sums.
func Score(instrument Instrument, responses []int) (Result, error) {
	tpl, err := TemplateFor(instrument)
	if err != nil {
		return Result{}, err
	}
	if len(responses) != len(tpl.Questions) {
		return Result{}, fmt.Errorf("%w: %s expects %d responses, got %d",
			models.ErrResponseCount, instrument, len(tpl.Questions), len(responses))
	}

	total := 0
	for i, v := range responses {
		if v < 0 || v > maxOptionValue(tpl.Questions[i]) {
			return Result{}, fmt.Errorf("%w: question %d value %d", models.ErrResponseOutOfRange, i+1, v)
		}
		total += v
	}

	res := Result{
		Instrument: instrument,
		TotalScore: total,
		MaxScore:   tpl.MaxScore,
		ScoredAt:   time.Now(),
	}
	switch instrument {
	case InstrumentPHQ9:
		res.Category = categorize(phq9Bands, total)
		res.RiskLevel = depressionRiskLevel(total)
		res.Recommendations = depressionRecommendations(total)
		res.RequiresProfessionalHelp = total >= PHQ9HelpThreshold
	case InstrumentGAD7:
		res.Category = categorize(gad7Bands, total)
		res.RiskLevel = anxietyRiskLevel(total)
		res.Recommendations = anxietyRecommendations(total)
		res.RequiresProfessionalHelp = total >= GAD7HelpThreshold
	case InstrumentPSS4:
		res.Category = categorize(pss4Bands, total)
		res.RiskLevel = stressRiskLevel(total)
		res.Recommendations = stressRecommendations(total)
		res.RequiresProfessionalHelp = total >= PSS4HelpThreshold
	}
	return res, nil
}

// ScoreComprehensive scores every submitted section and blends the
// normalized totals into one weighted 0..100 score. Sections can be any
// non-empty subset of the known instruments; weights renormalize over the
// sections present.
func ScoreComprehensive(sections map[Instrument][]int) (ComprehensiveResult, error) {
	if len(sections) == 0 {
		return ComprehensiveResult{}, fmt.Errorf("%w: no instrument sections", models.ErrResponseCount)
	}

	out := ComprehensiveResult{
		AssessmentID: uuid.NewString(),
		Results:      make(map[Instrument]Result, len(sections)),
		ScoredAt:     time.Now(),
	}

	var weightedSum, weightTotal float64
	for _, instrument := range Instruments() {
		responses, ok := sections[instrument]
		if !ok {
			continue
		}
		res, err := Score(instrument, responses)
		if err != nil {
			return ComprehensiveResult{}, err
		}
		out.Results[instrument] = res

		weight := instrumentWeights[instrument]
		weightedSum += weight * float64(res.TotalScore) / float64(res.MaxScore) * 100
		weightTotal += weight
	}
	for instrument := range sections {
		if _, ok := out.Results[instrument]; !ok {
			return ComprehensiveResult{}, fmt.Errorf("%w: %s", models.ErrUnknownInstrument, instrument)
		}
	}

	out.OverallScore = math.Round(weightedSum/weightTotal*100) / 100
	out.OverallCategory = overallCategory(out.OverallScore)
	out.Recommendations = comprehensiveRecommendations(out)
	return out, nil
}

func maxOptionValue(q Question) int {
	maxValue := 0
	for _, opt := range q.Options {
		if opt.Value > maxValue {
			maxValue = opt.Value
		}
	}
	return maxValue
}

func categorize(bands []band, total int) string {
	for _, b := range bands {
		if total >= b.lo && total <= b.hi {
			return b.category
		}
	}
	return bands[len(bands)-1].category
}

func overallCategory(score float64) string {
	switch {
	case score < 25:
		return "excellent"
	case score < 40:
		return "good"
	case score < 60:
		return "mild_concerns"
	case score < 80:
		return "moderate_concerns"
	default:
		return "significant_concerns"
	}
}

func depressionRiskLevel(score int) string {
	switch {
	case score >= 20:
		return "severe"
	case score >= 15:
		return "moderately_severe"
	case score >= 10:
		return "moderate"
	case score >= 5:
		return "mild"
	default:
		return "minimal"
	}
}

func anxietyRiskLevel(score int) string {
	switch {
	case score >= 15:
		return "severe"
	case score >= 10:
		return "moderate"
	case score >= 5:
		return "mild"
	default:
		return "minimal"
	}
}

func stressRiskLevel(score int) string {
	switch {
	case score >= 13:
		return "high"
	case score >= 7:
		return "moderate"
	default:
		return "low"
	}
}

func depressionRecommendations(score int) []string {
	switch {
	case score >= 20:
		return []string{
			"Seek immediate professional help from a mental health provider",
			"Consider contacting a crisis helpline if you have thoughts of self-harm",
			"Discuss treatment options with a healthcare provider",
		}
	case score >= 15:
		return []string{
			"Schedule an appointment with a mental health professional",
			"Consider starting therapy or counseling",
			"Discuss medication options with your doctor",
		}
	case score >= 10:
		return []string{
			"Consider talking to a counselor or therapist",
			"Practice regular physical activity",
			"Maintain a consistent sleep schedule",
			"Reach out to friends and family for support",
		}
	case score >= 5:
		return []string{
			"Practice self-care activities",
			"Engage in regular exercise",
			"Ensure adequate sleep",
			"Consider mindfulness or meditation",
		}
	default:
		return []string{
			"Continue maintaining healthy habits",
			"Stay connected with supportive relationships",
			"Practice stress management techniques",
		}
	}
}

func anxietyRecommendations(score int) []string {
	switch {
	case score >= 15:
		return []string{
			"Seek professional help from a mental health provider",
			"Consider cognitive behavioral therapy (CBT)",
			"Discuss medication options with your doctor",
			"Practice structured relaxation techniques",
		}
	case score >= 10:
		return []string{
			"Consider talking to a counselor about anxiety management",
			"Practice regular deep breathing exercises",
			"Try progressive muscle relaxation",
			"Limit caffeine and alcohol intake",
		}
	case score >= 5:
		return []string{
			"Practice mindfulness meditation",
			"Engage in regular physical activity",
			"Maintain a consistent sleep schedule",
			"Try journaling to process anxious thoughts",
		}
	default:
		return []string{
			"Continue healthy stress management practices",
			"Maintain work-life balance",
			"Practice regular self-care",
		}
	}
}

func stressRecommendations(score int) []string {
	switch {
	case score >= 13:
		return []string{
			"Seek professional help for stress management",
			"Consider therapy to develop coping strategies",
			"Practice daily stress reduction techniques",
			"Evaluate and reduce major stressors if possible",
		}
	case score >= 7:
		return []string{
			"Practice regular relaxation techniques",
			"Ensure adequate sleep and rest",
			"Engage in regular physical activity",
			"Consider time management strategies",
		}
	default:
		return []string{
			"Maintain current healthy coping strategies",
			"Continue regular exercise and good sleep habits",
			"Practice work-life balance",
		}
	}
}

func comprehensiveRecommendations(res ComprehensiveResult) []string {
	var recs []string
	if res.OverallCategory == "moderate_concerns" || res.OverallCategory == "significant_concerns" {
		recs = append(recs,
			"Consider seeking professional mental health support",
			"Practice regular self-care and stress management",
			"Maintain a healthy lifestyle with exercise and good nutrition",
			"Stay connected with supportive friends and family",
		)
	}
	for _, instrument := range Instruments() {
		if r, ok := res.Results[instrument]; ok {
			recs = append(recs, r.Recommendations...)
		}
	}
	return dedupe(recs)
}

// dedupe removes repeated entries while preserving first-seen order.
func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
