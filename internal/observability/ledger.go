package observability

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
)

// LedgerMetrics instruments posting and settlement outcomes.
type LedgerMetrics struct {
	postings        *prometheus.CounterVec
	postingDuration *prometheus.HistogramVec
	settlements     *prometheus.CounterVec
	mappingCache    *prometheus.CounterVec
}

// NewLedgerMetrics registers ledger collectors against registerer.
func NewLedgerMetrics(registerer prometheus.Registerer) *LedgerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gl_postings_total",
		Help: "Journal postings partitioned by source and outcome.",
	}, []string{"source", "outcome"})
	postingDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gl_posting_duration_seconds",
		Help:    "Time spent committing a journal posting.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"source"})
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gl_settlements_total",
		Help: "Settlement submissions partitioned by partner and outcome.",
	}, []string{"partner", "outcome"})
	mappingCache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gl_mapping_cache_total",
		Help: "Mapping resolver cache lookups by result.",
	}, []string{"result"})
	registerer.MustRegister(postings, postingDuration, settlements, mappingCache)
	return &LedgerMetrics{
		postings:        postings,
		postingDuration: postingDuration,
		settlements:     settlements,
		mappingCache:    mappingCache,
	}
}

// ObservePosting records a posting attempt.
func (m *LedgerMetrics) ObservePosting(source, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.postings.WithLabelValues(source, outcome).Inc()
	if outcome == OutcomeOK {
		m.postingDuration.WithLabelValues(source).Observe(took.Seconds())
	}
}

// ObserveSettlement records a settlement submission.
func (m *LedgerMetrics) ObserveSettlement(partner, outcome string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(partner, outcome).Inc()
}

// ObserveMappingCache records a resolver cache hit or miss.
func (m *LedgerMetrics) ObserveMappingCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.mappingCache.WithLabelValues(result).Inc()
}

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeConflict = "conflict"
	OutcomeFailed   = "failed"
)

// OutcomeOf classifies an operation result into an outcome label.
func OutcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, accounting.ErrConcurrencyConflict):
		return OutcomeConflict
	case errors.Is(err, accounting.ErrValidation),
		errors.Is(err, accounting.ErrMappingNotFound),
		errors.Is(err, accounting.ErrInsufficientLiability):
		return OutcomeRejected
	}
	return OutcomeFailed
}
