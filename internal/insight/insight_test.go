package insight

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/openai/openai-go"

	"github.com/BTreeMap/MoodPipe/internal/models"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp  openai.ChatCompletion
	err   error
	calls int
}

func (m *mockChatService) Create(_ context.Context, _ openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	m.calls++
	return m.resp, m.err
}

func chatReply(content string) openai.ChatCompletion {
	return openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func testGenerator(chat chatService) *Generator {
	return &Generator{
		chat:                chat,
		model:               "test-model",
		temperature:         0.2,
		maxCompletionTokens: 100,
		timeout:             time.Second,
	}
}

func resultsWithScores(scores ...int) []models.AnalysisResult {
	out := make([]models.AnalysisResult, len(scores))
	for i, s := range scores {
		out[i] = models.AnalysisResult{Mood: models.MoodResult{Score: s}}
	}
	return out
}

func TestGenerateRemoteSuccess(t *testing.T) {
	mock := &mockChatService{resp: chatReply(
		`{"summary": "A steady week overall.", "highlights": ["one", "two", "three", "four"]}`)}
	g := testGenerator(mock)

	out := g.Generate(context.Background(), resultsWithScores(60, 62, 61))

	if out.GeneratedBy != GeneratedByRemote {
		t.Fatalf("Generate: expected remote provenance, got %q", out.GeneratedBy)
	}
	if out.Summary != "A steady week overall." {
		t.Errorf("Generate: wrong summary: %q", out.Summary)
	}
	if len(out.Highlights) != models.MaxInsightHighlights {
		t.Errorf("Generate: highlights not capped: %v", out.Highlights)
	}
	if out.SampleSize != 3 {
		t.Errorf("Generate: expected sample size 3, got %d", out.SampleSize)
	}
	if out.AverageScore != 61 {
		t.Errorf("Generate: expected average 61, got %f", out.AverageScore)
	}
	if mock.calls != 1 {
		t.Errorf("Generate: expected one chat call, got %d", mock.calls)
	}
}

func TestGenerateRepairsModelJSON(t *testing.T) {
	mock := &mockChatService{resp: chatReply(
		"```json\n{\"summary\": \"Fixed up fine.\", \"highlights\": [\"a\",],}\n```")}
	g := testGenerator(mock)

	out := g.Generate(context.Background(), resultsWithScores(50))

	if out.GeneratedBy != GeneratedByRemote {
		t.Fatalf("Generate: near-JSON should be repaired, fell back instead: %q", out.Summary)
	}
	if out.Summary != "Fixed up fine." {
		t.Errorf("Generate: wrong summary after repair: %q", out.Summary)
	}
}

func TestGenerateFallsBackOnServiceError(t *testing.T) {
	mock := &mockChatService{err: errors.New("service failure")}
	g := testGenerator(mock)

	out := g.Generate(context.Background(), resultsWithScores(90, 88))

	if out.GeneratedBy != GeneratedByHeuristic {
		t.Fatalf("Generate: expected heuristic fallback, got %q", out.GeneratedBy)
	}
	if out.Summary == "" {
		t.Error("Generate: heuristic summary must not be empty")
	}
	if !strings.Contains(out.Summary, "excellent") {
		t.Errorf("Generate: expected excellent band for avg 89, got %q", out.Summary)
	}
}

func TestGenerateFallsBackOnEmptyChoices(t *testing.T) {
	mock := &mockChatService{resp: openai.ChatCompletion{}}
	g := testGenerator(mock)

	out := g.Generate(context.Background(), resultsWithScores(20, 22))

	if out.GeneratedBy != GeneratedByHeuristic {
		t.Fatalf("Generate: expected heuristic fallback, got %q", out.GeneratedBy)
	}
	if !strings.Contains(out.Summary, "rough") {
		t.Errorf("Generate: expected rough band for avg 21, got %q", out.Summary)
	}
}

func TestGenerateHeuristicOnlyWithoutClient(t *testing.T) {
	g := testGenerator(nil)

	out := g.Generate(context.Background(), resultsWithScores(70))

	if out.GeneratedBy != GeneratedByHeuristic {
		t.Fatalf("Generate: expected heuristic without a client, got %q", out.GeneratedBy)
	}
}

func TestGenerateEmptyWindow(t *testing.T) {
	mock := &mockChatService{resp: chatReply(`{"summary": "unused"}`)}
	g := testGenerator(mock)

	out := g.Generate(context.Background(), nil)

	if out.SampleSize != 0 || out.Trend != models.TrendSteady {
		t.Errorf("Generate: wrong empty-window aggregates: %+v", out)
	}
	if !strings.Contains(out.Summary, "No analyses recorded yet") {
		t.Errorf("Generate: wrong empty-window summary: %q", out.Summary)
	}
	if mock.calls != 0 {
		t.Errorf("Generate: empty window must not call the model, got %d calls", mock.calls)
	}
}

func TestGenerateHighlightsSurfaceFactorsAndDataQuality(t *testing.T) {
	results := []models.AnalysisResult{
		{Mood: models.MoodResult{Score: 40, Factors: []models.MoodFactor{{Name: "steps"}}}},
		{Mood: models.MoodResult{Score: 45, Factors: []models.MoodFactor{{Name: "steps"}, {Name: "sleep_duration"}}}},
		{
			Metrics: models.HealthMetricsRecord{IsMockData: true},
			Mood:    models.MoodResult{Score: 50},
		},
	}
	g := testGenerator(nil)

	out := g.Generate(context.Background(), results)

	if len(out.Highlights) != 2 {
		t.Fatalf("Generate: expected factor and data-quality highlights, got %v", out.Highlights)
	}
	if !strings.Contains(out.Highlights[0], "steps influenced 2 of 3") {
		t.Errorf("Generate: wrong factor highlight: %q", out.Highlights[0])
	}
	if !strings.Contains(out.Highlights[1], "1 of 3 analyses relied on degraded data") {
		t.Errorf("Generate: wrong data-quality highlight: %q", out.Highlights[1])
	}
}

func TestTrend(t *testing.T) {
	tests := []struct {
		name   string
		scores []int
		want   models.TrendDirection
	}{
		{name: "improving", scores: []int{40, 40, 60, 60}, want: models.TrendImproving},
		{name: "declining", scores: []int{70, 70, 50, 50}, want: models.TrendDeclining},
		{name: "steady", scores: []int{55, 57, 56, 55}, want: models.TrendSteady},
		{name: "single result", scores: []int{80}, want: models.TrendSteady},
		{name: "empty", scores: nil, want: models.TrendSteady},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Trend(resultsWithScores(tt.scores...)); got != tt.want {
				t.Errorf("Trend(%v) = %q, want %q", tt.scores, got, tt.want)
			}
		})
	}
}

func TestDecodeInsightsRejectsMissingSummary(t *testing.T) {
	if _, err := decodeInsights(`{"highlights": ["a"]}`); err == nil {
		t.Error("decodeInsights: expected error for missing summary")
	}
	if _, err := decodeInsights("not json at all"); err == nil {
		t.Error("decodeInsights: expected error for non-JSON reply")
	}
}

func TestNewGeneratorWithoutKeyIsHeuristicOnly(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	g := NewGenerator()
	if g.chat != nil {
		t.Error("NewGenerator: expected no chat client without a key")
	}
}

func TestNewGeneratorWithKey(t *testing.T) {
	g := NewGenerator(WithAPIKey("test-key"), WithModel("test-model"), WithTimeout(time.Second))
	if g.chat == nil {
		t.Error("NewGenerator: expected chat client with a key")
	}
	if g.model != "test-model" || g.timeout != time.Second {
		t.Errorf("NewGenerator: options not applied: %+v", g)
	}
}
