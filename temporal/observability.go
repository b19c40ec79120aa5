package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Logger interface for operational messages, debug output, and error reporting.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ContextualLogger interface for context-aware logging with automatic trace correlation.
type ContextualLogger interface {
	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}

// MetricsCollector interface for collecting snapshot performance and failure metrics.
type MetricsCollector interface {
	RecordDuration(metric string, duration time.Duration, labels map[string]string)
	IncrementCounter(metric string, labels map[string]string)
	RecordValue(metric string, value float64, labels map[string]string)
}

// ContextualMetricsCollector extends MetricsCollector with context-aware methods.
// It is optional: the engine uses the context-aware methods when the configured collector implements them.
type ContextualMetricsCollector interface {
	MetricsCollector
	RecordDurationContext(ctx context.Context, metric string, duration time.Duration, labels map[string]string)
	IncrementCounterContext(ctx context.Context, metric string, labels map[string]string)
	RecordValueContext(ctx context.Context, metric string, value float64, labels map[string]string)
}

// SpanContext represents an active tracing span that can be finished and updated with attributes.
type SpanContext interface {
	SetStatus(status string)
	AddAttribute(key, value string)
}

// TracingCollector interface for collecting tracing information about snapshot captures.
type TracingCollector interface {
	StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, SpanContext)
	FinishSpan(spanCtx SpanContext, status string, attrs map[string]string)
}

const (
	logMsgVersioningAttached   = "versioning attached"
	logMsgSnapshotCaptured     = "snapshot captured"
	logMsgSnapshotFailed       = "snapshot failed"
	logMsgSnapshotDiscarded    = "detached snapshot discarded after rollback"
	logMsgAssociationsMirrored = "associations mirrored onto shadow entities"
	logAttrError               = "error"
	logAttrEntity              = "entity"
	logAttrShadow              = "shadow"
	logAttrTransition          = "transition"
	logAttrMode                = "mode"
	logAttrBlocking            = "blocking"
	logAttrRows                = "rows"
	logAttrPrimaryKey          = "primary_key"
	logAttrDurationMS          = "duration_ms"
	logAttrAssociationCount    = "association_count"

	metricSnapshotDuration = "temporal_snapshot_duration_seconds"
	metricSnapshots        = "temporal_snapshots_total"
	metricSnapshotErrors   = "temporal_snapshot_errors_total"
	metricSnapshotBatch    = "temporal_snapshot_batch_rows"

	spanNameCapture      = "temporal.capture"
	spanNameCaptureBatch = "temporal.capture_batch"

	labelEntity     = "entity"
	labelTransition = "transition"
	labelMode       = "mode"
	labelStatus     = "status"
	labelRows       = "rows"
	labelErrorType  = "error_type"

	statusSuccess = "success"
	statusError   = "error"
)

func (c *config) logDebug(ctx context.Context, msg string, args ...any) {
	switch {
	case c.contextualLogger != nil:
		c.contextualLogger.DebugContext(ctx, msg, args...)
	case c.logger != nil:
		c.logger.Debug(msg, args...)
	}
}

func (c *config) logInfo(ctx context.Context, msg string, args ...any) {
	switch {
	case c.contextualLogger != nil:
		c.contextualLogger.InfoContext(ctx, msg, args...)
	case c.logger != nil:
		c.logger.Info(msg, args...)
	}
}

// logError logs at error level. Without any configured logger it falls back to slog.Default,
// so failures of detached snapshots are never dropped silently.
func (c *config) logError(ctx context.Context, msg string, err error, args ...any) {
	allArgs := []any{logAttrError, err.Error()}
	allArgs = append(allArgs, args...)

	switch {
	case c.contextualLogger != nil:
		c.contextualLogger.ErrorContext(ctx, msg, allArgs...)
	case c.logger != nil:
		c.logger.Error(msg, allArgs...)
	default:
		slog.Default().ErrorContext(ctx, msg, allArgs...)
	}
}

func (c *config) recordDuration(ctx context.Context, duration time.Duration, labels map[string]string) {
	if c.metricsCollector == nil {
		return
	}

	if contextual, ok := c.metricsCollector.(ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metricSnapshotDuration, duration, labels)
		return
	}

	c.metricsCollector.RecordDuration(metricSnapshotDuration, duration, labels)
}

func (c *config) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if c.metricsCollector == nil {
		return
	}

	if contextual, ok := c.metricsCollector.(ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metric, labels)
		return
	}

	c.metricsCollector.IncrementCounter(metric, labels)
}

func (c *config) recordValue(ctx context.Context, metric string, value float64, labels map[string]string) {
	if c.metricsCollector == nil {
		return
	}

	if contextual, ok := c.metricsCollector.(ContextualMetricsCollector); ok {
		contextual.RecordValueContext(ctx, metric, value, labels)
		return
	}

	c.metricsCollector.RecordValue(metric, value, labels)
}

// startTraceSpan starts a tracing span if the tracing collector is configured.
func (c *config) startTraceSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, SpanContext) {
	if c.tracingCollector != nil {
		return c.tracingCollector.StartSpan(ctx, name, attrs)
	}

	return ctx, nil
}

// finishTraceSpan finishes a tracing span if the tracing collector is configured.
func (c *config) finishTraceSpan(span SpanContext, status string, attrs map[string]string) {
	if c.tracingCollector != nil && span != nil {
		c.tracingCollector.FinishSpan(span, status, attrs)
	}
}

// captureLabels are the labels shared by the metrics and spans of one capture.
func (c *config) captureLabels(entity string, transition Transition) map[string]string {
	return map[string]string{
		labelEntity:     entity,
		labelTransition: transition.String(),
		labelMode:       c.captureMode.String(),
	}
}

// observeCapture records the outcome of one capture: metrics, span status, and a log line.
func (c *config) observeCapture(
	ctx context.Context,
	span SpanContext,
	labels map[string]string,
	rows int,
	duration time.Duration,
	err error,
) {
	status := statusSuccess
	if err != nil {
		status = statusError
	}

	withStatus := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		withStatus[k] = v
	}
	withStatus[labelStatus] = status

	c.recordDuration(ctx, duration, withStatus)

	if span != nil {
		span.SetStatus(status)
		span.AddAttribute(labelRows, fmt.Sprintf("%d", rows))
		span.AddAttribute(logAttrDurationMS, fmt.Sprintf("%.2f", float64(duration.Nanoseconds())/1e6))
	}

	if err != nil {
		c.incrementCounter(ctx, metricSnapshotErrors, withStatus)
		c.finishTraceSpan(span, statusError, map[string]string{labelErrorType: errorType(err)})

		return
	}

	c.incrementCounter(ctx, metricSnapshots, withStatus)
	c.finishTraceSpan(span, statusSuccess, map[string]string{labelRows: fmt.Sprintf("%d", rows)})
	c.logDebug(
		ctx,
		logMsgSnapshotCaptured,
		logAttrEntity, labels[labelEntity],
		logAttrTransition, labels[labelTransition],
		logAttrRows, rows,
		logAttrDurationMS, float64(duration.Nanoseconds())/1e6,
	)
}

// errorType names the failure class of a capture for metrics and spans.
func errorType(err error) string {
	switch {
	case errors.Is(err, ErrSnapshotDiscarded):
		return "discarded"
	case errors.Is(err, ErrReloadFailed):
		return "reload_failed"
	case errors.Is(err, ErrBulkMaterializationFailed):
		return "materialization_failed"
	case errors.Is(err, ErrSnapshotWriteFailed):
		return "write_failed"
	default:
		return "unknown"
	}
}
