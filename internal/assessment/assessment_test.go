package assessment

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/BTreeMap/MoodPipe/internal/models"
)

// responsesTotaling builds a valid response vector summing to total by
// filling questions greedily up to their option maximum.
func responsesTotaling(t *testing.T, instrument Instrument, total int) []int {
	t.Helper()
	tpl, err := TemplateFor(instrument)
	if err != nil {
		t.Fatalf("TemplateFor(%s): %v", instrument, err)
	}
	responses := make([]int, len(tpl.Questions))
	remaining := total
	for i, q := range tpl.Questions {
		v := maxOptionValue(q)
		if v > remaining {
			v = remaining
		}
		responses[i] = v
		remaining -= v
	}
	if remaining != 0 {
		t.Fatalf("cannot reach total %d for %s", total, instrument)
	}
	return responses
}

func TestScoreBands(t *testing.T) {
	cases := []struct {
		instrument Instrument
		total      int
		category   string
		risk       string
		help       bool
	}{
		{InstrumentPHQ9, 0, "minimal", "minimal", false},
		{InstrumentPHQ9, 4, "minimal", "minimal", false},
		{InstrumentPHQ9, 5, "mild", "mild", false},
		{InstrumentPHQ9, 9, "mild", "mild", false},
		{InstrumentPHQ9, 10, "moderate", "moderate", false},
		{InstrumentPHQ9, 14, "moderate", "moderate", false},
		{InstrumentPHQ9, 15, "moderately_severe", "moderately_severe", true},
		{InstrumentPHQ9, 19, "moderately_severe", "moderately_severe", true},
		{InstrumentPHQ9, 20, "severe", "severe", true},
		{InstrumentPHQ9, 27, "severe", "severe", true},
		{InstrumentGAD7, 4, "minimal", "minimal", false},
		{InstrumentGAD7, 5, "mild", "mild", false},
		{InstrumentGAD7, 10, "moderate", "moderate", false},
		{InstrumentGAD7, 14, "moderate", "moderate", false},
		{InstrumentGAD7, 15, "severe", "severe", true},
		{InstrumentGAD7, 21, "severe", "severe", true},
		{InstrumentPSS4, 0, "low_stress", "low", false},
		{InstrumentPSS4, 6, "low_stress", "low", false},
		{InstrumentPSS4, 7, "moderate_stress", "moderate", false},
		{InstrumentPSS4, 10, "moderate_stress", "moderate", false},
		{InstrumentPSS4, 11, "high_stress", "moderate", false},
		{InstrumentPSS4, 12, "high_stress", "moderate", false},
		{InstrumentPSS4, 13, "high_stress", "high", true},
		{InstrumentPSS4, 16, "high_stress", "high", true},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s_%d", tc.instrument, tc.total), func(t *testing.T) {
			res, err := Score(tc.instrument, responsesTotaling(t, tc.instrument, tc.total))
			if err != nil {
				t.Fatalf("Score: %v", err)
			}
			if res.TotalScore != tc.total {
				t.Errorf("TotalScore = %d, want %d", res.TotalScore, tc.total)
			}
			if res.Category != tc.category {
				t.Errorf("Category = %q, want %q", res.Category, tc.category)
			}
			if res.RiskLevel != tc.risk {
				t.Errorf("RiskLevel = %q, want %q", res.RiskLevel, tc.risk)
			}
			if res.RequiresProfessionalHelp != tc.help {
				t.Errorf("RequiresProfessionalHelp = %v, want %v", res.RequiresProfessionalHelp, tc.help)
			}
			if len(res.Recommendations) == 0 {
				t.Error("expected recommendations at every severity")
			}
			if res.ScoredAt.IsZero() {
				t.Error("ScoredAt not stamped")
			}
		})
	}
}

func TestScoreReversedStressItems(t *testing.T) {
	// Answering "Never" on every PSS-4 item submits option values 0,4,4,0
	// because the two positively worded items carry reversed values.
	tpl, err := TemplateFor(InstrumentPSS4)
	if err != nil {
		t.Fatalf("TemplateFor: %v", err)
	}
	responses := make([]int, len(tpl.Questions))
	for i, q := range tpl.Questions {
		responses[i] = q.Options[0].Value
	}
	if want := []int{0, 4, 4, 0}; fmt.Sprint(responses) != fmt.Sprint(want) {
		t.Fatalf("first-option values = %v, want %v", responses, want)
	}

	res, err := Score(InstrumentPSS4, responses)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if res.TotalScore != 8 {
		t.Errorf("TotalScore = %d, want 8", res.TotalScore)
	}
	if res.Category != "moderate_stress" {
		t.Errorf("Category = %q, want moderate_stress", res.Category)
	}
}

func TestScoreRejectsBadInput(t *testing.T) {
	if _, err := Score(InstrumentPHQ9, make([]int, 8)); !errors.Is(err, models.ErrResponseCount) {
		t.Errorf("short vector: err = %v, want ErrResponseCount", err)
	}
	if _, err := Score(InstrumentPHQ9, []int{4, 0, 0, 0, 0, 0, 0, 0, 0}); !errors.Is(err, models.ErrResponseOutOfRange) {
		t.Errorf("value above scale: err = %v, want ErrResponseOutOfRange", err)
	}
	if _, err := Score(InstrumentPSS4, []int{-1, 0, 0, 0}); !errors.Is(err, models.ErrResponseOutOfRange) {
		t.Errorf("negative value: err = %v, want ErrResponseOutOfRange", err)
	}
	if _, err := Score(Instrument("sleep"), []int{1}); !errors.Is(err, models.ErrUnknownInstrument) {
		t.Errorf("unknown instrument: err = %v, want ErrUnknownInstrument", err)
	}
}

func TestParseInstrument(t *testing.T) {
	got, err := ParseInstrument(" PHQ9 ")
	if err != nil {
		t.Fatalf("ParseInstrument: %v", err)
	}
	if got != InstrumentPHQ9 {
		t.Errorf("ParseInstrument = %q, want %q", got, InstrumentPHQ9)
	}
	if _, err := ParseInstrument("mmpi"); !errors.Is(err, models.ErrUnknownInstrument) {
		t.Errorf("err = %v, want ErrUnknownInstrument", err)
	}
}

func TestTemplatesShape(t *testing.T) {
	tpls := Templates()
	if len(tpls) != 3 {
		t.Fatalf("Templates returned %d entries, want 3", len(tpls))
	}
	wantOrder := []Instrument{InstrumentPHQ9, InstrumentGAD7, InstrumentPSS4}
	wantCounts := []int{9, 7, 4}
	wantMax := []int{27, 21, 16}
	for i, tpl := range tpls {
		if tpl.Instrument != wantOrder[i] {
			t.Errorf("templates[%d] = %s, want %s", i, tpl.Instrument, wantOrder[i])
		}
		if len(tpl.Questions) != wantCounts[i] {
			t.Errorf("%s has %d questions, want %d", tpl.Instrument, len(tpl.Questions), wantCounts[i])
		}
		if tpl.MaxScore != wantMax[i] {
			t.Errorf("%s MaxScore = %d, want %d", tpl.Instrument, tpl.MaxScore, wantMax[i])
		}
		if tpl.Name == "" || tpl.Description == "" {
			t.Errorf("%s missing name or description", tpl.Instrument)
		}
	}

	q1 := tpls[0].Questions[0]
	if q1.ID != "phq9_1" {
		t.Errorf("first question ID = %q, want phq9_1", q1.ID)
	}
	if len(q1.Options) != 4 || q1.Options[3].Text != "Nearly every day" {
		t.Errorf("unexpected PHQ-9 option scale: %+v", q1.Options)
	}
}

func TestTemplateMaxScoresMatchOptions(t *testing.T) {
	for _, tpl := range Templates() {
		sum := 0
		for _, q := range tpl.Questions {
			sum += maxOptionValue(q)
		}
		if sum != tpl.MaxScore {
			t.Errorf("%s: option maxima sum to %d, MaxScore is %d", tpl.Instrument, sum, tpl.MaxScore)
		}
	}
}

func TestScoreComprehensiveWeighting(t *testing.T) {
	sections := map[Instrument][]int{
		InstrumentPHQ9: make([]int, 9),
		InstrumentGAD7: responsesTotaling(t, InstrumentGAD7, 21),
		InstrumentPSS4: responsesTotaling(t, InstrumentPSS4, 16),
	}
	res, err := ScoreComprehensive(sections)
	if err != nil {
		t.Fatalf("ScoreComprehensive: %v", err)
	}
	// 0.4*0 + 0.3*100 + 0.3*100 over a weight total of 1.0.
	if res.OverallScore != 60 {
		t.Errorf("OverallScore = %.2f, want 60.00", res.OverallScore)
	}
	if res.OverallCategory != "moderate_concerns" {
		t.Errorf("OverallCategory = %q, want moderate_concerns", res.OverallCategory)
	}
	if len(res.Results) != 3 {
		t.Errorf("Results has %d entries, want 3", len(res.Results))
	}
	if res.AssessmentID == "" {
		t.Error("AssessmentID not assigned")
	}
	if res.Results[InstrumentGAD7].Category != "severe" {
		t.Errorf("gad7 category = %q, want severe", res.Results[InstrumentGAD7].Category)
	}
}

func TestScoreComprehensiveSubsetRenormalizes(t *testing.T) {
	sections := map[Instrument][]int{
		InstrumentPHQ9: responsesTotaling(t, InstrumentPHQ9, 15),
		InstrumentGAD7: responsesTotaling(t, InstrumentGAD7, 21),
	}
	res, err := ScoreComprehensive(sections)
	if err != nil {
		t.Fatalf("ScoreComprehensive: %v", err)
	}
	// (0.4*(15/27*100) + 0.3*100) / 0.7 rounded to two decimals.
	if res.OverallScore != 74.6 {
		t.Errorf("OverallScore = %.2f, want 74.60", res.OverallScore)
	}
	if res.OverallCategory != "moderate_concerns" {
		t.Errorf("OverallCategory = %q, want moderate_concerns", res.OverallCategory)
	}

	if len(res.Recommendations) == 0 || res.Recommendations[0] != "Consider seeking professional mental health support" {
		t.Fatalf("expected the general support recommendation first, got %v", res.Recommendations)
	}
	// Both instruments recommend discussing medication; dedupe keeps one.
	const medication = "Discuss medication options with your doctor"
	count := 0
	for _, r := range res.Recommendations {
		if r == medication {
			count++
		}
	}
	if count != 1 {
		t.Errorf("medication recommendation appears %d times, want 1", count)
	}
	if len(res.Recommendations) != 10 {
		t.Errorf("got %d recommendations, want 10: %v", len(res.Recommendations), res.Recommendations)
	}
}

func TestScoreComprehensiveLowScoresSkipGeneralAdvice(t *testing.T) {
	sections := map[Instrument][]int{
		InstrumentPHQ9: make([]int, 9),
		InstrumentGAD7: make([]int, 7),
		InstrumentPSS4: make([]int, 4),
	}
	res, err := ScoreComprehensive(sections)
	if err != nil {
		t.Fatalf("ScoreComprehensive: %v", err)
	}
	if res.OverallScore != 0 {
		t.Errorf("OverallScore = %.2f, want 0", res.OverallScore)
	}
	if res.OverallCategory != "excellent" {
		t.Errorf("OverallCategory = %q, want excellent", res.OverallCategory)
	}
	for _, r := range res.Recommendations {
		if strings.Contains(r, "professional mental health support") {
			t.Errorf("general escalation advice present at low severity: %q", r)
		}
	}
	if res.Recommendations[0] != "Continue maintaining healthy habits" {
		t.Errorf("first recommendation = %q", res.Recommendations[0])
	}
}

func TestScoreComprehensiveRejectsBadSections(t *testing.T) {
	if _, err := ScoreComprehensive(nil); !errors.Is(err, models.ErrResponseCount) {
		t.Errorf("empty sections: err = %v, want ErrResponseCount", err)
	}
	bad := map[Instrument][]int{Instrument("vo2max"): {1}}
	if _, err := ScoreComprehensive(bad); !errors.Is(err, models.ErrUnknownInstrument) {
		t.Errorf("unknown section: err = %v, want ErrUnknownInstrument", err)
	}
	short := map[Instrument][]int{InstrumentPHQ9: {1, 2, 3}}
	if _, err := ScoreComprehensive(short); !errors.Is(err, models.ErrResponseCount) {
		t.Errorf("short section: err = %v, want ErrResponseCount", err)
	}
}
