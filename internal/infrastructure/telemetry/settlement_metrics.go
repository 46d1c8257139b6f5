package telemetry

import (
	"context"
	"time"

	"github.com/erp/reconciler/internal/domain/settlement"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// SettlementMetrics tracks source fetches and data quality of the
// reconciliation engine. A nil *SettlementMetrics is a valid no-op.
type SettlementMetrics struct {
	logger *zap.Logger

	pagesFetched   *Counter
	recordsFetched *Counter
	fetchOutcomes  *Counter
	issuesTotal    *Counter
	fetchDuration  *Histogram
	partiesGauge   *Gauge
}

// SettlementMetricsConfig holds configuration for settlement metrics.
type SettlementMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// NewSettlementMetrics registers the settlement instruments on cfg.Meter.
func NewSettlementMetrics(cfg SettlementMetricsConfig) (*SettlementMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sm := &SettlementMetrics{logger: logger}

	var err error
	if sm.pagesFetched, err = NewCounter(cfg.Meter,
		"settlement_source_pages_total", "Pages requested from transaction sources", "{pages}"); err != nil {
		return nil, err
	}
	if sm.recordsFetched, err = NewCounter(cfg.Meter,
		"settlement_source_records_total", "Records received from transaction sources", "{records}"); err != nil {
		return nil, err
	}
	if sm.fetchOutcomes, err = NewCounter(cfg.Meter,
		"settlement_source_fetches_total", "Completed source fetches by terminal cursor state", "{fetches}"); err != nil {
		return nil, err
	}
	if sm.issuesTotal, err = NewCounter(cfg.Meter,
		"settlement_issues_total", "Data-quality and availability issues reported", "{issues}"); err != nil {
		return nil, err
	}
	if sm.fetchDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "settlement_source_fetch_duration_seconds",
		Description: "Duration of a full paginated source fetch",
		Unit:        "s",
		Boundaries:  FetchDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if sm.partiesGauge, err = NewGauge(cfg.Meter,
		"settlement_parties", "Parties in the last computed summary", "{parties}"); err != nil {
		return nil, err
	}

	logger.Debug("Settlement metrics registered")
	return sm, nil
}

// RecordPage records one page request and the number of records it returned
func (m *SettlementMetrics) RecordPage(ctx context.Context, source string, items int) {
	if m == nil {
		return
	}
	m.pagesFetched.Inc(ctx, AttrSourceKind.String(source))
	m.recordsFetched.Add(ctx, int64(items), AttrSourceKind.String(source))
}

// RecordFetch records a finished source fetch
func (m *SettlementMetrics) RecordFetch(ctx context.Context, source, state, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.fetchOutcomes.Inc(ctx,
		AttrSourceKind.String(source),
		AttrCursorState.String(state),
		AttrFetchStatus.String(status),
	)
	m.fetchDuration.RecordDuration(ctx, d, AttrSourceKind.String(source))
}

// RecordIssues records issue counts keyed by kind and severity
func (m *SettlementMetrics) RecordIssues(ctx context.Context, operation string, issues settlement.Issues) {
	if m == nil {
		return
	}
	for kind, n := range issues.CountByKind() {
		m.issuesTotal.Add(ctx, int64(n),
			AttrOperation.String(operation),
			AttrIssueKind.String(string(kind)),
			AttrIssueSeverity.String(kind.Severity()),
		)
	}
}

// RecordParties records the number of parties in a summary
func (m *SettlementMetrics) RecordParties(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.partiesGauge.Record(ctx, int64(n))
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewSettlementMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
