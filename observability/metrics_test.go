package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRPCMetricsObserve(t *testing.T) {
	m := RPC()
	m.Observe("offer_get", 0, 10*time.Millisecond)
	m.Observe("offer_get", -32602, time.Millisecond)
	m.RecordThrottle("rate_limit")

	require.GreaterOrEqual(t, testutil.ToFloat64(m.requests.WithLabelValues("offer_get", "success")), 1.0)
	require.GreaterOrEqual(t, testutil.ToFloat64(m.requests.WithLabelValues("offer_get", "error")), 1.0)
	require.GreaterOrEqual(t, testutil.ToFloat64(m.errors.WithLabelValues("offer_get", "-32602")), 1.0)
	require.GreaterOrEqual(t, testutil.ToFloat64(m.throttles.WithLabelValues("rate_limit")), 1.0)
}

func TestEventMetrics(t *testing.T) {
	m := Events()
	before := testutil.ToFloat64(m.published.WithLabelValues("offer.created"))
	m.RecordPublished(" Offer.Created ")
	require.Equal(t, before+1, testutil.ToFloat64(m.published.WithLabelValues("offer.created")))

	var nilMetrics *eventMetrics
	nilMetrics.RecordPublished("x")
	nilMetrics.RecordSinkFailure()
}
