package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the order-service Prometheus collectors. A nil *Metrics is
// valid in tests; callers guard their Record calls.
type Metrics struct {
	ordersConfirmed    prometheus.Counter
	paymentsRegistered prometheus.Counter
	paymentsFailed     prometheus.Counter
	paymentDuration    prometheus.Histogram
	cartItemsAdded     prometheus.Counter
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		ordersConfirmed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orders_confirmed_total",
			Help: "Total number of orders confirmed by customers",
		}),
		paymentsRegistered: registerCounter(registerer, prometheus.CounterOpts{
			Name: "payments_registered_total",
			Help: "Total number of payments registered successfully",
		}),
		paymentsFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "payments_failed_total",
			Help: "Total number of payment registrations that aborted",
		}),
		paymentDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "payment_registration_duration_seconds",
			Help:    "Duration of the payment registration transaction in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		cartItemsAdded: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cart_items_added_total",
			Help: "Total number of products added to carts",
		}),
	}
}

func (m *Metrics) RecordOrderConfirmed() { m.ordersConfirmed.Inc() }
func (m *Metrics) RecordPaymentRegistered() { m.paymentsRegistered.Inc() }
func (m *Metrics) RecordPaymentFailed() { m.paymentsFailed.Inc() }
func (m *Metrics) RecordCartItemAdded() { m.cartItemsAdded.Inc() }

func (m *Metrics) RecordPaymentDuration(d time.Duration) {
	m.paymentDuration.Observe(d.Seconds())
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return already.ExistingCollector.(prometheus.Counter)
		}
		panic(err)
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return already.ExistingCollector.(prometheus.Histogram)
		}
		panic(err)
	}
	return collector
}
