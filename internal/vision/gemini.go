package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"

	"github.com/BTreeMap/MoodPipe/internal/models"
)

// Defaults for the remote vision call.
const (
	DefaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta/models"
	DefaultGeminiModel    = "gemini-1.5-flash"
	DefaultGeminiTimeout  = 25 * time.Second

	// Assigned when the model omits its own confidence estimate.
	defaultRemoteConfidence = 0.9

	generationTemperature = 0.1
	generationTopK        = 32
	generationTopP        = 1.0
	generationMaxTokens   = 2048
)

// ErrNoAPIKey indicates the remote strategy was invoked without credentials.
var ErrNoAPIKey = errors.New("vision api key not configured")

// extractionPrompt instructs the model to answer with exactly the record
// schema. Fields the model cannot see stay absent and are defaulted later.
const extractionPrompt = `You are analyzing a screenshot from a health or fitness app. Extract every health metric visible in the image and respond with a single JSON object and no other text, using exactly this schema (omit fields that are not visible):
{
  "steps": <integer>,
  "calories": <integer>,
  "distance_km": <number>,
  "active_minutes": <integer>,
  "heart_rate": {"current": <bpm>, "resting": <bpm>, "variability": <ms>},
  "sleep": {"duration": <minutes>, "quality": <0-100>, "stages": {"deep": <minutes>, "light": <minutes>, "rem": <minutes>}},
  "screen_time": {"total": <minutes>, "social": <minutes>, "productivity": <minutes>, "entertainment": <minutes>},
  "confidence": <0-1, your confidence in this extraction>
}`

// GeminiOpts holds configuration options for the remote vision strategy.
type GeminiOpts struct {
	APIKey   string
	Model    string
	Endpoint string
	Timeout  time.Duration
	Client   *http.Client
}

// GeminiOption defines a configuration option for the remote vision strategy.
type GeminiOption func(*GeminiOpts)

// WithAPIKey sets the API key used to authenticate model calls.
func WithAPIKey(key string) GeminiOption {
	return func(o *GeminiOpts) { o.APIKey = key }
}

// WithModel overrides the default model name.
func WithModel(model string) GeminiOption {
	return func(o *GeminiOpts) { o.Model = model }
}

// WithEndpoint overrides the default API endpoint (used by tests).
func WithEndpoint(endpoint string) GeminiOption {
	return func(o *GeminiOpts) { o.Endpoint = endpoint }
}

// WithTimeout overrides the default request timeout.
func WithTimeout(timeout time.Duration) GeminiOption {
	return func(o *GeminiOpts) { o.Timeout = timeout }
}

// WithHTTPClient injects a custom HTTP client; its timeout wins over the
// timeout option.
func WithHTTPClient(client *http.Client) GeminiOption {
	return func(o *GeminiOpts) { o.Client = client }
}

// GeminiStrategy is the first link of the chain: a real vision-model call.
type GeminiStrategy struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewGeminiStrategy creates the remote strategy. Missing credentials are not
// an error here; Extract reports them so the chain can fall through.
func NewGeminiStrategy(opts ...GeminiOption) *GeminiStrategy {
	cfg := GeminiOpts{
		Model:    DefaultGeminiModel,
		Endpoint: DefaultGeminiEndpoint,
		Timeout:  DefaultGeminiTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	slog.Debug("NewGeminiStrategy: configured",
		"model", cfg.Model, "endpoint", cfg.Endpoint, "api_key_set", cfg.APIKey != "")
	return &GeminiStrategy{
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		client:   client,
	}
}

// Method implements Strategy.
func (s *GeminiStrategy) Method() models.ExtractionMethod {
	return models.ExtractionRemoteAI
}

// Wire types for the generateContent call.

type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
	SafetySettings   []safetySetting  `json:"safetySettings"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

var defaultSafetySettings = []safetySetting{
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_ONLY_HIGH"},
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_ONLY_HIGH"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_ONLY_HIGH"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_ONLY_HIGH"},
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Extract implements Strategy. Any network error, non-2xx status, or
// unusable response body is returned as an error; the caller degrades.
func (s *GeminiStrategy) Extract(ctx context.Context, req Request) (models.HealthMetricsRecord, error) {
	if s.apiKey == "" {
		return models.HealthMetricsRecord{}, ErrNoAPIKey
	}

	prompt := extractionPrompt
	if req.AppType != "" {
		prompt += fmt.Sprintf("\nThe screenshot is reported to come from the app: %s.", req.AppType)
	}
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = models.DefaultMimeType
	}

	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: prompt},
				{InlineData: &inlineData{
					MimeType: mimeType,
					Data:     base64.StdEncoding.EncodeToString(req.Image),
				}},
			},
		}},
		GenerationConfig: generationConfig{
			Temperature:     generationTemperature,
			TopK:            generationTopK,
			TopP:            generationTopP,
			MaxOutputTokens: generationMaxTokens,
		},
		SafetySettings: defaultSafetySettings,
	})
	if err != nil {
		return models.HealthMetricsRecord{}, fmt.Errorf("failed to marshal vision request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", s.endpoint, s.model, s.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return models.HealthMetricsRecord{}, fmt.Errorf("failed to build vision request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return models.HealthMetricsRecord{}, fmt.Errorf("vision request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.HealthMetricsRecord{}, fmt.Errorf("failed to read vision response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.HealthMetricsRecord{}, fmt.Errorf("vision api returned status %d: %s",
			resp.StatusCode, truncateForLog(respBody))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return models.HealthMetricsRecord{}, fmt.Errorf("failed to decode vision response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return models.HealthMetricsRecord{}, models.ErrNoCandidates
	}

	rec, err := decodeMetricsJSON(parsed.Candidates[0].Content.Parts[0].Text)
	if err != nil {
		return models.HealthMetricsRecord{}, err
	}

	if rec.Confidence == 0 {
		rec.Confidence = defaultRemoteConfidence
	}
	rec.Source = sourceTag(req.AppType)
	return rec, nil
}

// decodeMetricsJSON pulls the first {...} object out of the model's text and
// unmarshals it, repairing near-JSON (trailing commas, single quotes, fences)
// before giving up.
func decodeMetricsJSON(text string) (models.HealthMetricsRecord, error) {
	payload, err := extractJSONObject(text)
	if err != nil {
		return models.HealthMetricsRecord{}, err
	}

	var rec models.HealthMetricsRecord
	if err := json.Unmarshal([]byte(payload), &rec); err == nil {
		return rec, nil
	}

	repaired, err := jsonrepair.JSONRepair(payload)
	if err != nil {
		return models.HealthMetricsRecord{}, fmt.Errorf("model JSON unrepairable: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &rec); err != nil {
		return models.HealthMetricsRecord{}, fmt.Errorf("failed to decode repaired model JSON: %w", err)
	}
	return rec, nil
}

// extractJSONObject returns the first balanced {...} span of the text. When
// braces never balance (truncated output), it falls back to first-{ through
// last-} and lets repair handle the rest.
func extractJSONObject(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", models.ErrNoJSONPayload
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}

	end := strings.LastIndexByte(text, '}')
	if end <= start {
		return "", models.ErrNoJSONPayload
	}
	return text[start : end+1], nil
}

// truncateForLog keeps error messages bounded when the API returns a page of
// HTML or a long error body.
func truncateForLog(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

// sourceTag normalizes the app hint into the record's source field.
func sourceTag(appType string) string {
	tag := strings.ToLower(strings.TrimSpace(appType))
	if tag == "" {
		return "screenshot"
	}
	return tag
}
