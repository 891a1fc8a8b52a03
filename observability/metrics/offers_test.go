package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestOfferMetrics(t *testing.T) {
	m := Offers()
	require.Same(t, m, Offers())

	before := testutil.ToFloat64(m.instructions.WithLabelValues("accept_offer", ResultFailed))
	m.RecordInstruction("accept_offer", ResultFailed)
	require.Equal(t, before+1, testutil.ToFloat64(m.instructions.WithLabelValues("accept_offer", ResultFailed)))

	m.RecordInstruction(" ", ResultSuccess)
	require.GreaterOrEqual(t, testutil.ToFloat64(m.instructions.WithLabelValues("unknown", ResultSuccess)), 1.0)

	m.RecordError(6006, "state")
	require.GreaterOrEqual(t, testutil.ToFloat64(m.errors.WithLabelValues("6006", "state")), 1.0)

	m.SetCustody(10)
	m.AddCustody(5)
	m.AddCustody(-3)
	require.Equal(t, 12.0, testutil.ToFloat64(m.custody))
}

func TestOfferMetricsNilSafe(t *testing.T) {
	var m *OfferMetrics
	m.RecordInstruction("create_offer", ResultSuccess)
	m.RecordError(1, "validation")
	m.AddCustody(1)
	m.SetCustody(1)
}
