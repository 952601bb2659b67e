// Package vision extracts health metrics from fitness-app screenshots
// through an ordered degradation chain: a remote vision model first, then a
// per-app pattern heuristic, then randomized mock data. Analysis never fails;
// every record is stamped with the strategy that produced it so downstream
// consumers can tell real data from degraded data.
package vision

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/MoodPipe/internal/metrics"
	"github.com/BTreeMap/MoodPipe/internal/models"
)

// Request carries one screenshot into the chain.
type Request struct {
	Image    []byte
	MimeType string
	AppType  string // source app hint, e.g. "google-fit"
}

// Strategy is one link of the extraction chain.
type Strategy interface {
	// Method identifies the strategy in record provenance.
	Method() models.ExtractionMethod
	// Extract attempts to produce a metrics record. An error hands control
	// to the next strategy.
	Extract(ctx context.Context, req Request) (models.HealthMetricsRecord, error)
}

// Adapter runs the strategy chain in order. The terminal mock strategy is
// always appended at construction, so Analyze cannot fail.
type Adapter struct {
	chain []Strategy
}

// NewAdapter builds an adapter from the preferred strategies in order,
// followed by the terminal mock strategy. Callers list only the links ahead
// of the mock.
func NewAdapter(strategies ...Strategy) *Adapter {
	chain := make([]Strategy, 0, len(strategies)+1)
	chain = append(chain, strategies...)
	chain = append(chain, NewMockStrategy())
	return &Adapter{chain: chain}
}

// Analyze tries each strategy in sequence and returns the first successful
// record, normalized and stamped with the producing strategy. Failures are
// logged and swallowed here; this is the degradation boundary.
func (a *Adapter) Analyze(ctx context.Context, req Request) models.HealthMetricsRecord {
	for _, s := range a.chain {
		rec, err := s.Extract(ctx, req)
		if err != nil {
			metrics.RecordExtraction(string(s.Method()), false)
			slog.Warn("Adapter.Analyze: strategy failed, falling through",
				"strategy", s.Method(), "app_type", req.AppType, "error", err)
			continue
		}

		metrics.RecordExtraction(string(s.Method()), true)
		rec.ExtractionMethod = s.Method()
		rec.Normalize()
		slog.Debug("Adapter.Analyze: extraction succeeded",
			"strategy", s.Method(), "source", rec.Source, "confidence", rec.Confidence)
		return rec
	}

	// Unreachable with the terminal mock in place; kept so the no-fail
	// contract survives a misconfigured chain.
	rec := models.HealthMetricsRecord{
		Confidence:       mockConfidence,
		Source:           sourceTag(req.AppType),
		ExtractionMethod: models.ExtractionMock,
		IsMockData:       true,
	}
	rec.Normalize()
	return rec
}

// Strategies returns the extraction methods of the chain in order.
func (a *Adapter) Strategies() []models.ExtractionMethod {
	methods := make([]models.ExtractionMethod, len(a.chain))
	for i, s := range a.chain {
		methods[i] = s.Method()
	}
	return methods
}
