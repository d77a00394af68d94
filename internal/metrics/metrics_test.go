package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/dcabot/internal/domain"
)

func TestMetrics(t *testing.T) {
	m := New()

	m.Decision(domain.DecisionTypeDCACheck, false)
	m.Decision(domain.DecisionTypeDCACheck, true)
	m.Decision(domain.DecisionTypeDCACheck, false)
	m.OrderFilled(domain.SideSell)
	m.TickError("invalid_position")
	m.AutopilotTier(domain.TierMedium)

	require.Equal(t, 2.0, testutil.ToFloat64(m.decisions.WithLabelValues(string(domain.DecisionTypeDCACheck), "false")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.orders.WithLabelValues("sell")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.tickErrors.WithLabelValues("invalid_position")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.tier.WithLabelValues("medium")))
	require.Equal(t, 0.0, testutil.ToFloat64(m.tier.WithLabelValues("none")))

	m.AutopilotTier(domain.TierHigh)
	require.Equal(t, 0.0, testutil.ToFloat64(m.tier.WithLabelValues("medium")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.tier.WithLabelValues("high")))
}
