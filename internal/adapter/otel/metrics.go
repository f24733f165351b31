package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "memcore"

// Metrics holds all MemCore metric instruments.
type Metrics struct {
	FactsStored          metric.Int64Counter
	FactsDeduped         metric.Int64Counter
	FactsSuperseded      metric.Int64Counter
	RetrievalCandidates  metric.Int64Histogram
	ContextTruncated     metric.Int64Counter
	ValidatorCorrections metric.Int64Counter
	EmbeddingsBackfilled metric.Int64Counter
	StoreDuration        metric.Float64Histogram
	RetrieveDuration     metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.FactsStored, err = meter.Int64Counter("memcore.facts.stored",
		metric.WithDescription("Number of facts stored as new records"))
	if err != nil {
		return nil, err
	}

	m.FactsDeduped, err = meter.Int64Counter("memcore.facts.deduped",
		metric.WithDescription("Number of facts resolved by boosting an existing record"))
	if err != nil {
		return nil, err
	}

	m.FactsSuperseded, err = meter.Int64Counter("memcore.facts.superseded",
		metric.WithDescription("Number of facts that superseded an older record"))
	if err != nil {
		return nil, err
	}

	m.RetrievalCandidates, err = meter.Int64Histogram("memcore.retrieval.candidates",
		metric.WithDescription("Candidate count per retrieval"))
	if err != nil {
		return nil, err
	}

	m.ContextTruncated, err = meter.Int64Counter("memcore.context.truncated",
		metric.WithDescription("Number of context assemblies that trimmed a source"))
	if err != nil {
		return nil, err
	}

	m.ValidatorCorrections, err = meter.Int64Counter("memcore.validator.corrections",
		metric.WithDescription("Number of validator corrections applied"))
	if err != nil {
		return nil, err
	}

	m.EmbeddingsBackfilled, err = meter.Int64Counter("memcore.embeddings.backfilled",
		metric.WithDescription("Number of embeddings generated by the backfill worker"))
	if err != nil {
		return nil, err
	}

	m.StoreDuration, err = meter.Float64Histogram("memcore.store.duration_seconds",
		metric.WithDescription("Store pipeline duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.RetrieveDuration, err = meter.Float64Histogram("memcore.retrieve.duration_seconds",
		metric.WithDescription("Retrieval pipeline duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
