package temporal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	defaultShadowSuffix = "History"
)

// CaptureMode selects when snapshots are taken.
type CaptureMode int

const (
	// CaptureDiff stores the values an instance held before each update and destroy.
	CaptureDiff CaptureMode = iota

	// CaptureFull stores the values an instance holds after each create, update, destroy and restore.
	CaptureFull
)

func (m CaptureMode) String() string {
	switch m {
	case CaptureDiff:
		return "diff"
	case CaptureFull:
		return "full"
	default:
		return fmt.Sprintf("CaptureMode(%d)", int(m))
	}
}

func (m CaptureMode) valid() bool {
	return m == CaptureDiff || m == CaptureFull
}

// ParseCaptureMode parses "diff" or "full", case-insensitively.
func ParseCaptureMode(s string) (CaptureMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "diff":
		return CaptureDiff, nil
	case "full":
		return CaptureFull, nil
	default:
		return 0, errors.Join(ErrUnknownCaptureMode, fmt.Errorf("%q", s))
	}
}

// SnapshotFailure describes a detached snapshot write that did not persist.
// PrimaryKeys holds one key for a single capture and every matched key for a bulk capture.
type SnapshotFailure struct {
	Entity      string
	Shadow      string
	Transition  Transition
	PrimaryKeys []any
	Err         error
}

// FailureHandler receives failures of snapshots written in non-blocking mode.
type FailureHandler func(ctx context.Context, failure SnapshotFailure)

// Option defines a functional option for configuring versioning of one entity.
type Option func(*config) error

type config struct {
	blocking             bool
	captureMode          CaptureMode
	shadowSuffix         string
	mirrorAssociations   bool
	excludedFields       map[string]bool
	skipIfSilentMutation bool
	failureHandler       FailureHandler
	clock                func() time.Time
	logger               Logger
	contextualLogger     ContextualLogger
	metricsCollector     MetricsCollector
	tracingCollector     TracingCollector
}

func newConfig(options ...Option) (*config, error) {
	cfg := &config{
		blocking:       true,
		captureMode:    CaptureDiff,
		shadowSuffix:   defaultShadowSuffix,
		excludedFields: make(map[string]bool),
	}

	for _, option := range options {
		if err := option(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// WithBlocking controls whether the triggering mutation waits for its snapshot.
// Non-blocking snapshots are best effort: their failures go to the FailureHandler.
func WithBlocking(blocking bool) Option {
	return func(c *config) error {
		c.blocking = blocking
		return nil
	}
}

// WithCaptureMode sets the capture mode.
func WithCaptureMode(mode CaptureMode) Option {
	return func(c *config) error {
		if !mode.valid() {
			return errors.Join(ErrUnknownCaptureMode, fmt.Errorf("%d", int(mode)))
		}

		c.captureMode = mode

		return nil
	}
}

// WithShadowSuffix sets the suffix appended to the origin name to form the shadow name.
func WithShadowSuffix(suffix string) Option {
	return func(c *config) error {
		if suffix == "" {
			return ErrEmptyShadowSuffix
		}

		c.shadowSuffix = suffix

		return nil
	}
}

// WithMirrorAssociations enables replicating the origin's associations onto the shadow at schema sync.
func WithMirrorAssociations(enabled bool) Option {
	return func(c *config) error {
		c.mirrorAssociations = enabled
		return nil
	}
}

// WithExcludedFields keeps the named origin attributes out of the shadow entity.
func WithExcludedFields(fields ...string) Option {
	return func(c *config) error {
		for _, f := range fields {
			c.excludedFields[f] = true
		}

		return nil
	}
}

// WithSkipIfSilentMutation skips snapshots of mutations flagged Silent.
func WithSkipIfSilentMutation(skip bool) Option {
	return func(c *config) error {
		c.skipIfSilentMutation = skip
		return nil
	}
}

// WithFailureHandler sets the receiver of non-blocking snapshot failures.
// Without one, failures are logged at error level.
func WithFailureHandler(handler FailureHandler) Option {
	return func(c *config) error {
		if handler == nil {
			return ErrNilFailureHandler
		}

		c.failureHandler = handler

		return nil
	}
}

// WithClock sets the clock stamping archivedAt. Defaults to the clock of the data layer handle.
func WithClock(clock func() time.Time) Option {
	return func(c *config) error {
		if clock == nil {
			return ErrNilClock
		}

		c.clock = clock

		return nil
	}
}

// WithLogger sets the logger.
// Debug level: captured snapshots. Info level: attached versioning, mirrored associations.
// Error level: failed snapshots.
func WithLogger(logger Logger) Option {
	return func(c *config) error {
		c.logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger, preferred over the Logger when both are set.
func WithContextualLogger(logger ContextualLogger) Option {
	return func(c *config) error {
		c.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector receiving snapshot durations, counts and errors.
func WithMetrics(collector MetricsCollector) Option {
	return func(c *config) error {
		c.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector receiving one span per capture.
func WithTracing(collector TracingCollector) Option {
	return func(c *config) error {
		c.tracingCollector = collector
		return nil
	}
}

// reportFailure hands a failed detached snapshot to the failure handler, or logs it at error level.
func (c *config) reportFailure(ctx context.Context, failure SnapshotFailure) {
	if c.failureHandler != nil {
		c.failureHandler(ctx, failure)
		return
	}

	c.logError(
		ctx,
		logMsgSnapshotFailed,
		failure.Err,
		logAttrEntity, failure.Entity,
		logAttrShadow, failure.Shadow,
		logAttrTransition, failure.Transition.String(),
		logAttrPrimaryKey, fmt.Sprintf("%v", failure.PrimaryKeys),
	)
}
