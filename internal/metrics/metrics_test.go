package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casaluna/order-service/internal/metrics"
)

func TestRecordersIncrement(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := metrics.NewWithRegisterer(registry)

	m.RecordOrderConfirmed()
	m.RecordPaymentRegistered()
	m.RecordPaymentFailed()
	m.RecordCartItemAdded()
	m.RecordCartItemAdded()
	m.RecordPaymentDuration(250 * time.Millisecond)

	families, err := registry.Gather()
	require.NoError(t, err)

	byName := make(map[string]float64)
	for _, fam := range families {
		for _, metric := range fam.GetMetric() {
			if metric.GetCounter() != nil {
				byName[fam.GetName()] = metric.GetCounter().GetValue()
			}
		}
	}

	assert.Equal(t, 1.0, byName["orders_confirmed_total"])
	assert.Equal(t, 1.0, byName["payments_registered_total"])
	assert.Equal(t, 1.0, byName["payments_failed_total"])
	assert.Equal(t, 2.0, byName["cart_items_added_total"])
}

func TestDoubleRegistrationReusesCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()

	first := metrics.NewWithRegisterer(registry)
	second := metrics.NewWithRegisterer(registry)

	first.RecordPaymentRegistered()
	second.RecordPaymentRegistered()

	families, err := registry.Gather()
	require.NoError(t, err)

	for _, fam := range families {
		if fam.GetName() == "payments_registered_total" {
			require.Len(t, fam.GetMetric(), 1)
			assert.Equal(t, 2.0, fam.GetMetric()[0].GetCounter().GetValue())
		}
	}
}
