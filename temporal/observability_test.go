package temporal_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/temporal-history-go/datalayer"
	. "github.com/AntonStoeckl/temporal-history-go/temporal"
	"github.com/AntonStoeckl/temporal-history-go/testutil/helper"
)

func Test_Capture_Records_Metrics_And_Spans(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	metricsSpy := helper.NewMetricsCollectorSpy()
	tracingSpy := helper.NewTracingCollectorSpy()
	_, users, _ := givenVersionedUsers(
		t,
		ctxWithTimeout,
		datalayer.EntityOptions{},
		WithCaptureMode(CaptureFull),
		WithMetrics(metricsSpy),
		WithTracing(tracingSpy),
	)

	// act
	user := helper.GivenInstance(t, ctxWithTimeout, users, datalayer.Values{"name": "alice"})
	require.NoError(t, users.Update(ctxWithTimeout, user, datalayer.Values{"name": "bob"}, datalayer.MutationOptions{}))

	// assert
	created := map[string]string{"entity": "User", "transition": "create", "mode": "full"}
	updated := map[string]string{"entity": "User", "transition": "update", "mode": "full"}
	succeeded := map[string]string{"entity": "User", "transition": "create", "mode": "full", "status": "success"}

	assert.Equal(t, 1, metricsSpy.CountDurationRecords("temporal_snapshot_duration_seconds", succeeded))
	assert.Equal(t, 1, metricsSpy.CountCounterRecords("temporal_snapshots_total", created))
	assert.Equal(t, 1, metricsSpy.CountCounterRecords("temporal_snapshots_total", updated))
	assert.Equal(t, 0, metricsSpy.CountCounterRecords("temporal_snapshot_errors_total", nil))
	assert.Positive(t, metricsSpy.GetContextualCallCount())

	assert.Equal(t, 1, tracingSpy.CountSpanRecords("temporal.capture", "success", created))
	assert.Equal(t, 1, tracingSpy.CountSpanRecords("temporal.capture", "success", updated))
	for _, record := range tracingSpy.GetSpanRecords() {
		assert.Equal(t, "1", record.EndAttributes["rows"])
		assert.Equal(t, "1", record.SpanContext.GetAttributes()["rows"])
		assert.Contains(t, record.SpanContext.GetAttributes(), "duration_ms")
	}
}

func Test_Capture_Uses_A_Plain_Metrics_Collector(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	metricsSpy := helper.NewMetricsCollectorSpy()
	_, users, _ := givenVersionedUsers(
		t,
		ctxWithTimeout,
		datalayer.EntityOptions{},
		WithMetrics(helper.NewPlainMetricsCollectorSpy(metricsSpy)),
	)
	user := helper.GivenInstance(t, ctxWithTimeout, users, datalayer.Values{"name": "alice"})

	// act
	err := users.Destroy(ctxWithTimeout, user, datalayer.MutationOptions{})

	// assert
	require.NoError(t, err)
	assert.Equal(t, 0, metricsSpy.GetContextualCallCount())
	assert.Equal(t, 1, metricsSpy.CountCounterRecords("temporal_snapshots_total", map[string]string{
		"entity": "User", "transition": "destroy", "mode": "diff", "status": "success",
	}))
}

func Test_Capture_Failure_Records_Error_Metrics_And_Spans(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	metricsSpy := helper.NewMetricsCollectorSpy()
	tracingSpy := helper.NewTracingCollectorSpy()
	_, users, history := givenVersionedUsers(
		t,
		ctxWithTimeout,
		datalayer.EntityOptions{},
		WithMetrics(metricsSpy),
		WithTracing(tracingSpy),
	)
	user := helper.GivenInstance(t, ctxWithTimeout, users, datalayer.Values{"name": "alice"})

	// arrange
	require.NoError(t, history.AddHook(datalayer.BeforeCreate, "failing", func(context.Context, *datalayer.Instance, *datalayer.MutationOptions) error {
		return errors.New("boom")
	}))

	// act
	err := users.Update(ctxWithTimeout, user, datalayer.Values{"name": "bob"}, datalayer.MutationOptions{})

	// assert
	require.Error(t, err)
	failed := map[string]string{"entity": "User", "transition": "update", "status": "error"}
	assert.Equal(t, 1, metricsSpy.CountCounterRecords("temporal_snapshot_errors_total", failed))
	assert.Equal(t, 1, metricsSpy.CountDurationRecords("temporal_snapshot_duration_seconds", failed))
	assert.Equal(t, 0, metricsSpy.CountCounterRecords("temporal_snapshots_total", nil))

	records := tracingSpy.GetSpanRecords()
	require.Len(t, records, 1)
	assert.Equal(t, "error", records[0].Status)
	assert.Equal(t, "write_failed", records[0].EndAttributes["error_type"])
}

func Test_Bulk_Capture_Records_The_Batch_Size(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	metricsSpy := helper.NewMetricsCollectorSpy()
	tracingSpy := helper.NewTracingCollectorSpy()
	_, users, _ := givenVersionedUsers(
		t,
		ctxWithTimeout,
		datalayer.EntityOptions{},
		WithMetrics(metricsSpy),
		WithTracing(tracingSpy),
	)
	for _, name := range []string{"a", "b", "c"} {
		helper.GivenInstance(t, ctxWithTimeout, users, datalayer.Values{"name": name})
	}

	// act
	_, err := users.UpdateWhere(ctxWithTimeout, datalayer.Values{"score": 1}, datalayer.BulkOptions{})

	// assert
	require.NoError(t, err)
	assert.True(t, metricsSpy.HasValueRecord("temporal_snapshot_batch_rows", 3))
	assert.Equal(t, 1, tracingSpy.CountSpanRecords("temporal.capture_batch", "success", map[string]string{"transition": "update"}))

	records := tracingSpy.GetSpanRecords()
	require.Len(t, records, 1)
	assert.Equal(t, "3", records[0].EndAttributes["rows"])
}

func Test_Discarded_Capture_Finishes_Its_Span(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tracingSpy := helper.NewTracingCollectorSpy()
	_, users, _ := givenVersionedUsers(
		t,
		ctxWithTimeout,
		datalayer.EntityOptions{},
		WithBlocking(false),
		WithTracing(tracingSpy),
	)
	user := helper.GivenInstance(t, ctxWithTimeout, users, datalayer.Values{"name": "alice"})

	// arrange
	require.NoError(t, users.AddHook(datalayer.BeforeUpdate, "failing", func(context.Context, *datalayer.Instance, *datalayer.MutationOptions) error {
		return errors.New("boom")
	}))

	// act
	err := users.Update(ctxWithTimeout, user, datalayer.Values{"name": "bob"}, datalayer.MutationOptions{})

	// assert
	require.Error(t, err)
	require.NoError(t, WaitForPendingSnapshots(ctxWithTimeout, users))
	records := tracingSpy.GetSpanRecords()
	require.Len(t, records, 1)
	assert.True(t, records[0].Finished)
	assert.Equal(t, "error", records[0].Status)
	assert.Equal(t, "discarded", records[0].EndAttributes["error_type"])
}
