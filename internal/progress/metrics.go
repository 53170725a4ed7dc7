package progress

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics reports broadcaster activity. A nil *Metrics is a no-op.
type Metrics struct {
	published   prometheus.Counter
	delivered   prometheus.Counter
	dropped     prometheus.Counter
	subscribers prometheus.Gauge
}

// MustNewMetrics registers the broadcaster collectors with reg, reusing
// collectors that are already registered under the same name.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "meetflow",
			Subsystem: "progress",
			Name:      "events_published_total",
			Help:      "Events handed to the broadcaster.",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "meetflow",
			Subsystem: "progress",
			Name:      "events_delivered_total",
			Help:      "Event deliveries to observer queues.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "meetflow",
			Subsystem: "progress",
			Name:      "events_dropped_total",
			Help:      "Events dropped because an observer queue was full.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "meetflow",
			Subsystem: "progress",
			Name:      "subscribers",
			Help:      "Currently registered observers.",
		}),
	}
	m.published = register(reg, m.published)
	m.delivered = register(reg, m.delivered)
	m.dropped = register(reg, m.dropped)
	m.subscribers = register(reg, m.subscribers)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) incPublished() {
	if m == nil {
		return
	}
	m.published.Inc()
}

func (m *Metrics) incDelivered() {
	if m == nil {
		return
	}
	m.delivered.Inc()
}

func (m *Metrics) incDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

func (m *Metrics) setSubscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}
