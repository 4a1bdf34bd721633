package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// LedgerMetrics tracks ingestion, line generation, corrections and lineage health.
// A nil *LedgerMetrics is valid and records nothing.
type LedgerMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	eventsIngested         *Counter
	eventsReplayed         *Counter
	linesGenerated         *Counter
	duplicateTriggers      *Counter
	immutabilityViolations *Counter
	adjustmentsAppended    *Counter
	lineageFaults          *Counter
	bindingsRecorded       *Counter
	transientRetries       *Counter

	traceDuration *Histogram
}

// LedgerMetricsConfig holds configuration for ledger metrics.
type LedgerMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// NewLedgerMetrics creates the ledger instruments on the given meter.
func NewLedgerMetrics(cfg LedgerMetricsConfig) (*LedgerMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	lm := &LedgerMetrics{meter: cfg.Meter, logger: logger}

	counters := []struct {
		target      **Counter
		name        string
		description string
		unit        string
	}{
		{&lm.eventsIngested, "ledger_billable_events_ingested_total", "Billable events stored for the first time", "{events}"},
		{&lm.eventsReplayed, "ledger_billable_events_replayed_total", "Billable events received again after being stored", "{events}"},
		{&lm.linesGenerated, "ledger_invoice_lines_generated_total", "Invoice lines generated from triggers", "{lines}"},
		{&lm.duplicateTriggers, "ledger_duplicate_triggers_total", "Line generations rejected because the trigger was already used", "{attempts}"},
		{&lm.immutabilityViolations, "ledger_immutability_violations_total", "Writes rejected against sealed records", "{attempts}"},
		{&lm.adjustmentsAppended, "ledger_adjustments_appended_total", "Adjustments appended to invoices", "{adjustments}"},
		{&lm.lineageFaults, "ledger_lineage_faults_total", "Faults found while resolving invoice lineage", "{faults}"},
		{&lm.bindingsRecorded, "ledger_bindings_recorded_total", "Document bindings recorded", "{bindings}"},
		{&lm.transientRetries, "ledger_transient_retries_total", "Transactions retried after a transient storage failure", "{retries}"},
	}
	for _, c := range counters {
		counter, err := NewCounter(cfg.Meter, c.name, c.description, c.unit)
		if err != nil {
			return nil, err
		}
		*c.target = counter
	}

	var err error
	lm.traceDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "ledger_lineage_trace_duration_seconds",
		Description: "Time spent resolving an invoice lineage graph",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	return lm, nil
}

// RecordIngested counts a stored or replayed billable event.
func (lm *LedgerMetrics) RecordIngested(ctx context.Context, tenantID uuid.UUID, eventType string, replayed bool) {
	if lm == nil {
		return
	}
	attrs := []attribute.KeyValue{AttrTenantID.String(tenantID.String()), AttrEventType.String(eventType)}
	if replayed {
		lm.eventsReplayed.Inc(ctx, attrs...)
		return
	}
	lm.eventsIngested.Inc(ctx, attrs...)
}

// RecordLineGenerated counts a generated line by trigger kind.
func (lm *LedgerMetrics) RecordLineGenerated(ctx context.Context, tenantID uuid.UUID, triggerKind string) {
	if lm == nil {
		return
	}
	lm.linesGenerated.Inc(ctx, AttrTenantID.String(tenantID.String()), AttrTriggerKind.String(triggerKind))
}

// RecordDuplicateTrigger counts a rejected second use of a trigger.
func (lm *LedgerMetrics) RecordDuplicateTrigger(ctx context.Context, tenantID uuid.UUID, triggerKind string) {
	if lm == nil {
		return
	}
	lm.duplicateTriggers.Inc(ctx, AttrTenantID.String(tenantID.String()), AttrTriggerKind.String(triggerKind))
}

// RecordImmutabilityViolation counts a rejected write against a sealed record.
func (lm *LedgerMetrics) RecordImmutabilityViolation(ctx context.Context, tenantID uuid.UUID, recordKind, operation string) {
	if lm == nil {
		return
	}
	lm.immutabilityViolations.Inc(ctx,
		AttrTenantID.String(tenantID.String()),
		AttrRecordKind.String(recordKind),
		AttrOperation.String(operation),
	)
}

// RecordAdjustment counts an appended adjustment.
func (lm *LedgerMetrics) RecordAdjustment(ctx context.Context, tenantID uuid.UUID) {
	if lm == nil {
		return
	}
	lm.adjustmentsAppended.Inc(ctx, AttrTenantID.String(tenantID.String()))
}

// RecordLineageFault counts one lineage fault by code.
func (lm *LedgerMetrics) RecordLineageFault(ctx context.Context, tenantID uuid.UUID, code string) {
	if lm == nil {
		return
	}
	lm.lineageFaults.Inc(ctx, AttrTenantID.String(tenantID.String()), AttrFaultCode.String(code))
}

// RecordBinding counts a recorded binding by purpose.
func (lm *LedgerMetrics) RecordBinding(ctx context.Context, tenantID uuid.UUID, purpose string, rebind bool) {
	if lm == nil {
		return
	}
	lm.bindingsRecorded.Inc(ctx,
		AttrTenantID.String(tenantID.String()),
		AttrPurpose.String(purpose),
		attribute.Bool("rebind", rebind),
	)
}

// RecordTransientRetry counts a retried transaction.
func (lm *LedgerMetrics) RecordTransientRetry(ctx context.Context, attempt int) {
	if lm == nil {
		return
	}
	lm.transientRetries.Inc(ctx, attribute.Int("attempt", attempt))
}

// RecordTraceDuration records how long a lineage trace took.
func (lm *LedgerMetrics) RecordTraceDuration(ctx context.Context, tenantID uuid.UUID, d time.Duration, consistent bool) {
	if lm == nil {
		return
	}
	lm.traceDuration.RecordDuration(ctx, d,
		AttrTenantID.String(tenantID.String()),
		attribute.Bool("consistent", consistent),
	)
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewLedgerMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
