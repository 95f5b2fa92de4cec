package metrics_test

import (
	"net/http/httptest"
	"testing"

	"github.com/canonical/landscape-client-sub002/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperatorExposesExchangeAndStoreMetrics(t *testing.T) {
	op, err := metrics.NewOperator(nil)
	require.NoError(t, err)

	done := op.ExchangeStarted()
	done(true)
	op.SetPendingMessages(7)
	op.RegistrationAttempt(false)

	families, err := op.GatherMetrics()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["landscape_exchange_total"])
	assert.True(t, names["landscape_exchange_duration_seconds"])
	assert.True(t, names["landscape_store_pending_messages"])
	assert.True(t, names["landscape_registration_attempts_total"])
}

func TestMetricsHandlerServesExpositionFormat(t *testing.T) {
	op, err := metrics.NewOperator(nil)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	op.MetricsHandler().ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)
}
