package wsoutlet

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are shared by every outlet created from one factory, so a rate
// change does not re-register collectors.
type Metrics struct {
	outletsCreated prometheus.Counter
	samplesPushed  prometheus.Counter
	framesDropped  prometheus.Counter
	consumers      prometheus.Gauge
}

// NewMetrics creates the outlet collectors and registers them with reg.
// A nil reg registers with the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		outletsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ellsl_outlets_created_total",
			Help: "Outlets opened since start; one per tracking start or rate change.",
		}),
		samplesPushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ellsl_samples_pushed_total",
			Help: "Samples pushed into an outlet.",
		}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ellsl_frames_dropped_total",
			Help: "Frames overwritten in a consumer queue before they were sent.",
		}),
		consumers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ellsl_consumers",
			Help: "Consumers currently subscribed to the live outlet.",
		}),
	}

	reg.MustRegister(m.outletsCreated, m.samplesPushed, m.framesDropped, m.consumers)
	return m
}

// the helpers below are nil-safe so an outlet can run without metrics

func (m *Metrics) outletCreated() {
	if m != nil {
		m.outletsCreated.Inc()
	}
}

func (m *Metrics) samplePushed() {
	if m != nil {
		m.samplesPushed.Inc()
	}
}

func (m *Metrics) framesOverwritten(n uint32) {
	if m != nil && n > 0 {
		m.framesDropped.Add(float64(n))
	}
}

func (m *Metrics) setConsumers(n int) {
	if m != nil {
		m.consumers.Set(float64(n))
	}
}
