// Package engine declares and runs the wellbeing workflows. Definitions are
// data (embedded YAML); node semantics are code, bound by node ID at
// construction. Every invocation publishes a strict event sequence on the
// bus: started, one processing event per node in declared order, then
// exactly one completed or error.
package engine

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/BTreeMap/MoodPipe/internal/bus"
	"github.com/BTreeMap/MoodPipe/internal/insight"
	"github.com/BTreeMap/MoodPipe/internal/metrics"
	"github.com/BTreeMap/MoodPipe/internal/models"
	"github.com/BTreeMap/MoodPipe/internal/mood"
	"github.com/BTreeMap/MoodPipe/internal/vision"
)

//go:embed definitions.yaml
var definitionsYAML []byte

// DefaultBufferSize caps the in-memory result buffer.
const DefaultBufferSize = 50

// Workflow IDs declared in definitions.yaml.
const (
	// WorkflowHealthAnalysis turns one screenshot into a scored analysis.
	WorkflowHealthAnalysis = "health-analysis"
	// WorkflowInsightAggregation summarizes the buffered results.
	WorkflowInsightAggregation = "insight-aggregation"
)

// Node IDs bound to effects. Trigger and output nodes are structural.
const (
	NodeScreenshotReceived = "screenshot-received"
	NodeExtractMetrics     = "extract-metrics"
	NodeNormalizeMetrics   = "normalize-metrics"
	NodeValidateMetrics    = "validate-metrics"
	NodeScoreMood          = "score-mood"
	NodePublishResult      = "publish-result"

	NodeValidateResults   = "validate-results"
	NodeGenerateInsights  = "generate-insights"
	NodeAnalyzeTrends     = "analyze-trends"
	NodeBroadcastInsights = "broadcast-insights"
)

// Bus topics published by the engine.
const (
	// TopicWorkflowEvents carries every models.WorkflowEvent.
	TopicWorkflowEvents = "workflow.events"
	// TopicAnalysisCompleted carries each models.AnalysisResult after a successful analysis.
	TopicAnalysisCompleted = "analysis.completed"
	// TopicInsightsUpdated carries models.Insights after each successful aggregation.
	TopicInsightsUpdated = "insights.updated"
)

// definitionsFile is the on-disk shape of the embedded definitions.
type definitionsFile struct {
	Workflows []models.WorkflowDefinition `yaml:"workflows"`
}

// nodeEffect runs one node's work against the invocation state.
type nodeEffect func(ctx context.Context, st *runState) error

// runState carries one invocation's data between node effects.
type runState struct {
	shot     ScreenshotInput
	metrics  models.HealthMetricsRecord
	mood     models.MoodResult
	window   []models.AnalysisResult
	insights models.Insights
}

// ScreenshotInput is the trigger payload for the health-analysis workflow.
type ScreenshotInput struct {
	UserID   string
	Image    []byte
	MimeType string
	AppType  string
}

// RunCounts tallies finished invocations of one workflow.
type RunCounts struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Status is a point-in-time view of the engine.
type Status struct {
	UptimeSeconds int64                `json:"uptime_seconds"`
	Workflows     []string             `json:"workflows"`
	Runs          map[string]RunCounts `json:"runs"`
	BufferDepth   int                  `json:"buffer_depth"`
	BufferCap     int                  `json:"buffer_cap"`
	Subscribers   map[string]int       `json:"subscribers"`
}

// Opts holds configuration options for the engine.
type Opts struct {
	Adapter    *vision.Adapter
	Generator  *insight.Generator
	Bus        *bus.Bus
	BufferSize int
}

// Option defines a configuration option for the engine.
type Option func(*Opts)

// WithAdapter sets the vision extraction chain.
func WithAdapter(a *vision.Adapter) Option {
	return func(o *Opts) { o.Adapter = a }
}

// WithGenerator sets the insight generator.
func WithGenerator(g *insight.Generator) Option {
	return func(o *Opts) { o.Generator = g }
}

// WithBus sets the event bus invocations publish on.
func WithBus(b *bus.Bus) Option {
	return func(o *Opts) { o.Bus = b }
}

// WithBufferSize overrides the result buffer capacity.
func WithBufferSize(n int) Option {
	return func(o *Opts) { o.BufferSize = n }
}

// Engine executes the declared workflows over the wired subsystems.
type Engine struct {
	adapter   *vision.Adapter
	generator *insight.Generator
	bus       *bus.Bus
	defs      map[string]models.WorkflowDefinition
	order     []string
	effects   map[string]nodeEffect
	started   time.Time
	bufferCap int

	mu             sync.Mutex
	results        []models.AnalysisResult // oldest first
	runs           map[string]*RunCounts
	latestInsights models.Insights
}

// New parses and validates the embedded definitions and binds node effects.
// A definition node without a bound effect (other than trigger/output) is a
// construction error, so the YAML and the code cannot drift apart silently.
func New(opts ...Option) (*Engine, error) {
	cfg := Opts{BufferSize: DefaultBufferSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Adapter == nil {
		cfg.Adapter = vision.NewAdapter()
	}
	if cfg.Generator == nil {
		cfg.Generator = insight.NewGenerator()
	}
	if cfg.Bus == nil {
		cfg.Bus = bus.New()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}

	var file definitionsFile
	if err := yaml.Unmarshal(definitionsYAML, &file); err != nil {
		return nil, fmt.Errorf("failed to parse workflow definitions: %w", err)
	}

	e := &Engine{
		adapter:   cfg.Adapter,
		generator: cfg.Generator,
		bus:       cfg.Bus,
		defs:      make(map[string]models.WorkflowDefinition, len(file.Workflows)),
		started:   time.Now(),
		bufferCap: cfg.BufferSize,
		runs:      make(map[string]*RunCounts),
	}
	e.effects = map[string]nodeEffect{
		NodeExtractMetrics:   e.effectExtractMetrics,
		NodeNormalizeMetrics: e.effectNormalizeMetrics,
		NodeValidateMetrics:  e.effectValidateMetrics,
		NodeScoreMood:        e.effectScoreMood,
		NodeValidateResults:  e.effectValidateResults,
		NodeGenerateInsights: e.effectGenerateInsights,
		NodeAnalyzeTrends:    e.effectAnalyzeTrends,
	}

	for _, def := range file.Workflows {
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("invalid workflow definition: %w", err)
		}
		if _, dup := e.defs[def.ID]; dup {
			return nil, fmt.Errorf("duplicate workflow id %s", def.ID)
		}
		for _, n := range def.Nodes {
			if n.Type == models.NodeTrigger || n.Type == models.NodeOutput {
				continue
			}
			if e.effects[n.ID] == nil {
				return nil, fmt.Errorf("workflow %s: node %s (%s) has no bound effect", def.ID, n.ID, n.Type)
			}
		}
		e.defs[def.ID] = def
		e.order = append(e.order, def.ID)
	}
	for _, id := range []string{WorkflowHealthAnalysis, WorkflowInsightAggregation} {
		if _, ok := e.defs[id]; !ok {
			return nil, fmt.Errorf("embedded definitions missing workflow %s", id)
		}
	}

	// Empty-window insights are deterministic, so the accessor is always valid.
	e.latestInsights = e.generator.Generate(context.Background(), nil)

	slog.Info("engine.New: workflows loaded", "count", len(e.order), "buffer_cap", e.bufferCap)
	return e, nil
}

// Run executes one workflow by ID. Callers that know the workflow use the
// typed wrappers instead.
func (e *Engine) Run(ctx context.Context, workflowID string, input any) (any, error) {
	switch workflowID {
	case WorkflowHealthAnalysis:
		in, ok := input.(ScreenshotInput)
		if !ok {
			return nil, fmt.Errorf("workflow %s: expected ScreenshotInput, got %T", workflowID, input)
		}
		return e.AnalyzeScreenshot(ctx, in)
	case WorkflowInsightAggregation:
		return e.AggregateInsights(ctx)
	default:
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownWorkflow, workflowID)
	}
}

// AnalyzeScreenshot runs the health-analysis workflow, buffers the result,
// and chains an insight aggregation. The chained run's failure is logged
// only; the analysis already succeeded.
func (e *Engine) AnalyzeScreenshot(ctx context.Context, in ScreenshotInput) (models.AnalysisResult, error) {
	st := &runState{shot: in}
	startedAt := time.Now()

	invocationID, err := e.run(ctx, e.defs[WorkflowHealthAnalysis], st)
	if err != nil {
		return models.AnalysisResult{}, err
	}

	result := models.AnalysisResult{
		InvocationID: invocationID,
		UserID:       in.UserID,
		Metrics:      st.metrics,
		Mood:         st.mood,
		StartedAt:    startedAt,
		CompletedAt:  time.Now(),
	}
	e.appendResult(result)
	e.bus.Publish(TopicAnalysisCompleted, result)

	if _, aggErr := e.AggregateInsights(ctx); aggErr != nil {
		slog.Warn("Engine.AnalyzeScreenshot: chained aggregation failed",
			"invocation_id", invocationID, "error", aggErr)
	}
	return result, nil
}

// AggregateInsights runs the insight-aggregation workflow over a snapshot of
// the buffer and stores the outcome as the latest insights.
func (e *Engine) AggregateInsights(ctx context.Context) (models.Insights, error) {
	st := &runState{window: e.window()}

	if _, err := e.run(ctx, e.defs[WorkflowInsightAggregation], st); err != nil {
		return models.Insights{}, err
	}

	e.mu.Lock()
	e.latestInsights = st.insights
	e.mu.Unlock()
	e.bus.Publish(TopicInsightsUpdated, st.insights)
	return st.insights, nil
}

// run drives one invocation through the definition's nodes in order.
func (e *Engine) run(ctx context.Context, def models.WorkflowDefinition, st *runState) (string, error) {
	invocationID := uuid.NewString()
	start := time.Now()
	logger := slog.With("workflow", def.ID, "invocation_id", invocationID)

	e.emit(models.WorkflowEvent{
		WorkflowID:   def.ID,
		InvocationID: invocationID,
		Phase:        models.PhaseStarted,
	})

	for _, node := range def.Nodes {
		if err := ctx.Err(); err != nil {
			return invocationID, e.fail(def, invocationID, node, start, err, logger)
		}

		e.emit(models.WorkflowEvent{
			WorkflowID:   def.ID,
			InvocationID: invocationID,
			NodeID:       node.ID,
			NodeType:     node.Type,
			Phase:        models.PhaseProcessing,
			Message:      node.Name,
		})

		effect := e.effects[node.ID]
		if effect == nil {
			continue // structural trigger/output marker
		}
		if err := effect(ctx, st); err != nil {
			return invocationID, e.fail(def, invocationID, node, start, err, logger)
		}
	}

	e.emit(models.WorkflowEvent{
		WorkflowID:   def.ID,
		InvocationID: invocationID,
		Phase:        models.PhaseCompleted,
	})
	metrics.RecordWorkflowRun(def.ID, string(models.PhaseCompleted), time.Since(start))
	e.recordRun(def.ID, true)
	logger.Info("Engine.run: invocation completed", "elapsed", time.Since(start))
	return invocationID, nil
}

// fail publishes the error event, records the failed run, and wraps the error.
func (e *Engine) fail(def models.WorkflowDefinition, invocationID string, node models.WorkflowNode, start time.Time, err error, logger *slog.Logger) error {
	e.emit(models.WorkflowEvent{
		WorkflowID:   def.ID,
		InvocationID: invocationID,
		NodeID:       node.ID,
		NodeType:     node.Type,
		Phase:        models.PhaseError,
		Message:      err.Error(),
	})
	metrics.RecordWorkflowRun(def.ID, string(models.PhaseError), time.Since(start))
	e.recordRun(def.ID, false)
	logger.Error("Engine.run: invocation failed", "node", node.ID, "error", err)
	return fmt.Errorf("workflow %s, node %s: %w", def.ID, node.ID, err)
}

func (e *Engine) emit(ev models.WorkflowEvent) {
	ev.Timestamp = time.Now()
	e.bus.Publish(TopicWorkflowEvents, ev)
}

// Node effects.

func (e *Engine) effectExtractMetrics(ctx context.Context, st *runState) error {
	st.metrics = e.adapter.Analyze(ctx, vision.Request{
		Image:    st.shot.Image,
		MimeType: st.shot.MimeType,
		AppType:  st.shot.AppType,
	})
	return nil
}

func (e *Engine) effectNormalizeMetrics(_ context.Context, st *runState) error {
	st.metrics.Normalize()
	return nil
}

func (e *Engine) effectValidateMetrics(_ context.Context, st *runState) error {
	m := &st.metrics
	if m.ExtractionMethod == "" {
		return errors.New("record missing extraction method")
	}
	if m.Confidence < 0 || m.Confidence > 1 {
		return fmt.Errorf("confidence %.2f out of range", m.Confidence)
	}
	if m.Steps < 0 || m.Calories < 0 || m.ActiveMinutes < 0 ||
		m.Sleep.Duration < 0 || m.ScreenTime.Total < 0 {
		return errors.New("negative metric value")
	}
	return nil
}

func (e *Engine) effectScoreMood(_ context.Context, st *runState) error {
	st.mood = mood.Score(st.metrics)
	return nil
}

func (e *Engine) effectValidateResults(_ context.Context, st *runState) error {
	if len(st.window) == 0 {
		return errors.New("no analyses buffered yet")
	}
	return nil
}

func (e *Engine) effectGenerateInsights(ctx context.Context, st *runState) error {
	st.insights = e.generator.Generate(ctx, st.window)
	return nil
}

func (e *Engine) effectAnalyzeTrends(_ context.Context, st *runState) error {
	st.insights.Trend = insight.Trend(st.window)
	st.insights.AverageScore = insight.AverageScore(st.window)
	st.insights.SampleSize = len(st.window)
	return nil
}

// Buffer and accessors.

func (e *Engine) appendResult(result models.AnalysisResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results = append(e.results, result)
	if len(e.results) > e.bufferCap {
		e.results = e.results[len(e.results)-e.bufferCap:]
	}
}

// window returns the buffered results oldest first.
func (e *Engine) window() []models.AnalysisResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.AnalysisResult(nil), e.results...)
}

// RecentResults returns up to limit buffered results, newest first. A
// non-positive limit returns the whole buffer.
func (e *Engine) RecentResults(limit int) []models.AnalysisResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.results)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.AnalysisResult, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, e.results[i])
	}
	return out
}

// Workflows returns the definitions in declaration order.
func (e *Engine) Workflows() []models.WorkflowDefinition {
	out := make([]models.WorkflowDefinition, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.defs[id])
	}
	return out
}

// LatestInsights returns the outcome of the most recent aggregation.
func (e *Engine) LatestInsights() models.Insights {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latestInsights
}

// Status reports uptime, run counters, buffer depth, and subscriber counts.
func (e *Engine) Status() Status {
	e.mu.Lock()
	runs := make(map[string]RunCounts, len(e.runs))
	for id, c := range e.runs {
		runs[id] = *c
	}
	depth := len(e.results)
	e.mu.Unlock()

	return Status{
		UptimeSeconds: int64(time.Since(e.started).Seconds()),
		Workflows:     append([]string(nil), e.order...),
		Runs:          runs,
		BufferDepth:   depth,
		BufferCap:     e.bufferCap,
		Subscribers: map[string]int{
			TopicWorkflowEvents:    e.bus.SubscriberCount(TopicWorkflowEvents),
			TopicAnalysisCompleted: e.bus.SubscriberCount(TopicAnalysisCompleted),
			TopicInsightsUpdated:   e.bus.SubscriberCount(TopicInsightsUpdated),
		},
	}
}

func (e *Engine) recordRun(workflowID string, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.runs[workflowID]
	if c == nil {
		c = &RunCounts{}
		e.runs[workflowID] = c
	}
	if ok {
		c.Completed++
	} else {
		c.Failed++
	}
}
