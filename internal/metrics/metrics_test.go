package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveRunCountsByStatus(t *testing.T) {
	ok := testutil.ToFloat64(runsTotal.WithLabelValues("map", StatusOK))
	failed := testutil.ToFloat64(runsTotal.WithLabelValues("map", StatusFailed))

	ObserveRun("map", time.Now(), nil)
	ObserveRun("map", time.Now(), errors.New("boom"))
	ObserveRun("map", time.Now(), nil)

	assert.Equal(t, ok+2, testutil.ToFloat64(runsTotal.WithLabelValues("map", StatusOK)))
	assert.Equal(t, failed+1, testutil.ToFloat64(runsTotal.WithLabelValues("map", StatusFailed)))
}

func TestObserveAction(t *testing.T) {
	before := testutil.ToFloat64(actionsTotal.WithLabelValues("hover", StatusSkip))

	ObserveAction("hover", StatusSkip)

	assert.Equal(t, before+1, testutil.ToFloat64(actionsTotal.WithLabelValues("hover", StatusSkip)))
}

func TestSessionGauge(t *testing.T) {
	before := testutil.ToFloat64(activeSessions)

	SessionOpened()
	SessionOpened()
	SessionClosed()

	assert.Equal(t, before+1, testutil.ToFloat64(activeSessions))
	SessionClosed()
}
