package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/taskflow/internal/application/dispatcher"
	"github.com/garyjia/taskflow/internal/domain/event"
)

func TestRecorderCountsEvents(t *testing.T) {
	r := NewRecorder()
	d := dispatcher.NewDispatcher()
	r.Subscribe(d)
	ctx := context.Background()

	require.NoError(t, d.Dispatch(ctx, event.NewEvent(event.TypeTaskTransitioned, 1, 1, map[string]interface{}{
		event.KeyToStateType: "COMPLETED",
		event.KeyAutomatic:   false,
	})))
	require.NoError(t, d.Dispatch(ctx, event.NewEvent(event.TypeTaskTransitioned, 2, 1, map[string]interface{}{
		event.KeyToStateType: "IN_PROGRESS",
		event.KeyAutomatic:   true,
	})))
	require.NoError(t, d.Dispatch(ctx, event.NewEvent(event.TypeTransitionRejected, 3, 0, map[string]interface{}{
		event.KeyReason: "ConditionsNotMet",
	})))
	require.NoError(t, d.Dispatch(ctx, event.NewEvent(event.TypeAutomaticPassCompleted, 0, 0, map[string]interface{}{
		event.KeyExamined:  4,
		event.KeyProcessed: 1,
		event.KeyFailed:    1,
	})))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.transitionsTotal.WithLabelValues("COMPLETED", "manual")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.transitionsTotal.WithLabelValues("IN_PROGRESS", "automatic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.rejectionsTotal.WithLabelValues("ConditionsNotMet")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.automaticPassesTotal))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.automaticTasksTotal.WithLabelValues("examined")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.automaticTasksTotal.WithLabelValues("processed")))
}

func TestRecorderHandlerExposesMetrics(t *testing.T) {
	r := NewRecorder()
	r.ObserveHTTP("POST", "/api/v1/tasks/:id/transition", 200, 15*time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "taskflow_http_request_duration_seconds")
	assert.Contains(t, string(body), "go_goroutines")
}
