package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestJobTracker(t *testing.T) {
	tracker := ForTask("test-task")

	done := tracker.Start()
	assert.Equal(t, float64(1), testutil.ToFloat64(WorkerJobsActive.WithLabelValues("test-task")))
	done("")

	tracker.Start()("MALFORMED_INPUT")

	assert.Equal(t, float64(0), testutil.ToFloat64(WorkerJobsActive.WithLabelValues("test-task")))
	assert.Equal(t, float64(1), testutil.ToFloat64(WorkerJobsCompleted.WithLabelValues("test-task")))
	assert.Equal(t, float64(1), testutil.ToFloat64(WorkerJobsFailed.WithLabelValues("test-task", "MALFORMED_INPUT")))
}

func TestDomainCounters(t *testing.T) {
	before := testutil.ToFloat64(FallbackTotal.WithLabelValues("web", "hit"))
	FallbackTotal.WithLabelValues("web", "hit").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(FallbackTotal.WithLabelValues("web", "hit")))

	GeocodeAttempts.Observe(2)
	assert.Equal(t, 1, testutil.CollectAndCount(GeocodeAttempts))
}
