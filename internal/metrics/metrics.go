package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics mapper 引擎的 prometheus 指标集
type Metrics struct {
	Registry *prometheus.Registry

	CommandsReceived *prometheus.CounterVec
	CommandsFailed   *prometheus.CounterVec
	EventsEmitted    *prometheus.CounterVec
	ActiveContexts   prometheus.Gauge
	ActiveRequests   prometheus.Gauge
}

// New 创建并注册指标
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		CommandsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bidimapper",
			Name:      "commands_received_total",
			Help:      "Commands received, by method.",
		}, []string{"method"}),
		CommandsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bidimapper",
			Name:      "commands_failed_total",
			Help:      "Commands that resolved to an error frame, by error code.",
		}, []string{"error"}),
		EventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bidimapper",
			Name:      "events_emitted_total",
			Help:      "BiDi events delivered to at least one channel, by method.",
		}, []string{"method"}),
		ActiveContexts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bidimapper",
			Name:      "active_contexts",
			Help:      "Browsing contexts currently tracked.",
		}),
		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bidimapper",
			Name:      "active_requests",
			Help:      "Network requests currently in flight.",
		}),
	}
	m.Registry.MustRegister(m.CommandsReceived, m.CommandsFailed, m.EventsEmitted, m.ActiveContexts, m.ActiveRequests)
	return m
}
