// Package insight turns buffered analysis results into trend insights. Like
// the vision chain it degrades instead of failing: a chat-completion call
// produces the narrative when a key is configured, a local heuristic built
// from the same aggregates answers otherwise.
package insight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/BTreeMap/MoodPipe/internal/models"
)

// Defaults for the remote insight call.
const (
	DefaultModel               = string(openai.ChatModelGPT4oMini)
	DefaultTemperature         = 0.4
	DefaultMaxCompletionTokens = 512
	DefaultTimeout             = 20 * time.Second
)

// Provenance tags for the generated insights.
const (
	GeneratedByRemote    = "remote-ai"
	GeneratedByHeuristic = "heuristic"
)

// Trend thresholds: mean score movement between the older and newer half of
// the window.
const trendDelta = 5.0

// ErrNoChoicesReturned indicates the chat API answered with an empty choice list.
var ErrNoChoicesReturned = errors.New("no choices returned")

const insightSystemPrompt = `You are a wellbeing analyst summarizing recent mood analyses for the user. Respond with a single JSON object and no other text: {"summary": "<two supportive sentences about the overall picture>", "highlights": ["<up to three short observations>"]}`

// chatService defines the minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// openaiChat adapts the real client to chatService.
type openaiChat struct {
	client openai.Client
}

func (c openaiChat) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Opts holds configuration options for the insight generator.
type Opts struct {
	APIKey              string
	Model               string
	Temperature         float64
	MaxCompletionTokens int
	Timeout             time.Duration
}

// Option defines a configuration option for the insight generator.
type Option func(*Opts)

// WithAPIKey overrides the OPENAI_API_KEY environment variable.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the default chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTimeout overrides the remote call timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *Opts) { o.Timeout = timeout }
}

// Generator produces Insights from a window of analysis results.
type Generator struct {
	chat                chatService // nil runs heuristic-only
	model               string
	temperature         float64
	maxCompletionTokens int
	timeout             time.Duration
}

// NewGenerator creates a generator. A missing API key is not an error; the
// generator simply never leaves heuristic mode.
func NewGenerator(opts ...Option) *Generator {
	cfg := Opts{
		APIKey:              os.Getenv("OPENAI_API_KEY"),
		Model:               DefaultModel,
		Temperature:         DefaultTemperature,
		MaxCompletionTokens: DefaultMaxCompletionTokens,
		Timeout:             DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var chat chatService
	if cfg.APIKey != "" {
		chat = openaiChat{client: openai.NewClient(option.WithAPIKey(cfg.APIKey))}
	}
	slog.Debug("NewGenerator: configured",
		"model", cfg.Model, "api_key_set", cfg.APIKey != "")

	return &Generator{
		chat:                chat,
		model:               cfg.Model,
		temperature:         cfg.Temperature,
		maxCompletionTokens: cfg.MaxCompletionTokens,
		timeout:             cfg.Timeout,
	}
}

// Generate summarizes the results, oldest first. It never fails: remote
// errors are logged and the heuristic answers instead.
func (g *Generator) Generate(ctx context.Context, results []models.AnalysisResult) models.Insights {
	base := models.Insights{
		Trend:        Trend(results),
		SampleSize:   len(results),
		AverageScore: AverageScore(results),
		GeneratedAt:  time.Now(),
		GeneratedBy:  GeneratedByHeuristic,
	}
	if len(results) == 0 {
		base.Summary = "No analyses recorded yet. Upload a screenshot or send a message to get started."
		return base
	}

	if g.chat != nil {
		remote, err := g.generateRemote(ctx, results)
		if err == nil {
			base.Summary = remote.Summary
			base.Highlights = capHighlights(remote.Highlights)
			base.GeneratedBy = GeneratedByRemote
			return base
		}
		slog.Warn("Generator.Generate: remote insights failed, using heuristic",
			"sample_size", len(results), "error", err)
	}

	base.Summary = heuristicSummary(base.AverageScore, base.Trend)
	base.Highlights = heuristicHighlights(results)
	return base
}

// remoteInsights is the JSON shape the model is asked to produce.
type remoteInsights struct {
	Summary    string   `json:"summary"`
	Highlights []string `json:"highlights"`
}

func (g *Generator) generateRemote(ctx context.Context, results []models.AnalysisResult) (remoteInsights, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.chat.Create(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(insightSystemPrompt),
			openai.UserMessage(buildPrompt(results)),
		},
		Temperature:         openai.Float(g.temperature),
		MaxCompletionTokens: openai.Int(int64(g.maxCompletionTokens)),
	})
	if err != nil {
		return remoteInsights{}, err
	}
	if len(resp.Choices) == 0 {
		return remoteInsights{}, ErrNoChoicesReturned
	}
	return decodeInsights(resp.Choices[0].Message.Content)
}

// buildPrompt lists the window as one line per analysis plus aggregates.
func buildPrompt(results []models.AnalysisResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Recent mood analyses, oldest first (%d total):\n", len(results))
	for _, r := range results {
		names := make([]string, 0, len(r.Mood.Factors))
		for _, f := range r.Mood.Factors {
			names = append(names, fmt.Sprintf("%s(%s)", f.Name, f.Impact))
		}
		fmt.Fprintf(&b, "- score %d (%s), factors: %s\n",
			r.Mood.Score, r.Mood.Prediction, strings.Join(names, ", "))
	}
	if n := degradedCount(results); n > 0 {
		fmt.Fprintf(&b, "%d of these analyses used degraded (mock or low-confidence) data.\n", n)
	}
	return b.String()
}

// decodeInsights parses the model reply, repairing near-JSON before giving up.
func decodeInsights(content string) (remoteInsights, error) {
	payload := content
	if start := strings.IndexByte(content, '{'); start >= 0 {
		if end := strings.LastIndexByte(content, '}'); end > start {
			payload = content[start : end+1]
		}
	}

	var out remoteInsights
	if err := json.Unmarshal([]byte(payload), &out); err == nil && out.Summary != "" {
		return out, nil
	}

	repaired, err := jsonrepair.JSONRepair(payload)
	if err != nil {
		return remoteInsights{}, fmt.Errorf("insight JSON unrepairable: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		return remoteInsights{}, fmt.Errorf("failed to decode repaired insight JSON: %w", err)
	}
	if out.Summary == "" {
		return remoteInsights{}, errors.New("insight JSON missing summary")
	}
	return out, nil
}

// AverageScore is the mean mood score of the window, 0 when empty.
func AverageScore(results []models.AnalysisResult) float64 {
	if len(results) == 0 {
		return 0
	}
	sum := 0
	for _, r := range results {
		sum += r.Mood.Score
	}
	return float64(sum) / float64(len(results))
}

// Trend compares the mean of the newer half of the window against the older
// half. Fewer than two results read as steady.
func Trend(results []models.AnalysisResult) models.TrendDirection {
	if len(results) < 2 {
		return models.TrendSteady
	}
	mid := len(results) / 2
	older := AverageScore(results[:mid])
	newer := AverageScore(results[mid:])
	switch {
	case newer-older >= trendDelta:
		return models.TrendImproving
	case older-newer >= trendDelta:
		return models.TrendDeclining
	default:
		return models.TrendSteady
	}
}

func degradedCount(results []models.AnalysisResult) int {
	n := 0
	for _, r := range results {
		if r.Metrics.Degraded() {
			n++
		}
	}
	return n
}

func heuristicSummary(avg float64, dir models.TrendDirection) string {
	var level string
	switch {
	case avg >= 80:
		level = "Your recent mood scores look excellent"
	case avg >= 65:
		level = "Your recent mood scores look good"
	case avg >= 50:
		level = "Your recent mood scores are holding in a fair range"
	case avg >= 35:
		level = "Your recent mood scores have been on the low side"
	default:
		level = "Your recent mood scores suggest a rough stretch"
	}

	var movement string
	switch dir {
	case models.TrendImproving:
		movement = "and they are trending upward."
	case models.TrendDeclining:
		movement = "and they have been slipping lately."
	default:
		movement = "and they have been fairly steady."
	}
	return level + " " + movement
}

// heuristicHighlights surfaces the most frequent factors across the window,
// plus a data-quality note when degraded records were involved.
func heuristicHighlights(results []models.AnalysisResult) []string {
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, r := range results {
		for _, f := range r.Mood.Factors {
			if counts[f.Name] == 0 {
				order = append(order, f.Name)
			}
			counts[f.Name]++
		}
	}

	top := ""
	topCount := 0
	for _, name := range order {
		if counts[name] > topCount {
			top, topCount = name, counts[name]
		}
	}

	highlights := make([]string, 0, models.MaxInsightHighlights)
	if top != "" {
		highlights = append(highlights,
			fmt.Sprintf("%s influenced %d of %d analyses", top, topCount, len(results)))
	}
	if n := degradedCount(results); n > 0 {
		highlights = append(highlights,
			fmt.Sprintf("%d of %d analyses relied on degraded data", n, len(results)))
	}
	return capHighlights(highlights)
}

func capHighlights(highlights []string) []string {
	if len(highlights) > models.MaxInsightHighlights {
		return highlights[:models.MaxInsightHighlights]
	}
	return highlights
}
