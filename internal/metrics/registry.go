package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns every eventbridge metric so nothing is registered globally.
type Registry struct {
	registry *prometheus.Registry

	eventsEmitted   *prometheus.CounterVec
	eventsDelivered *prometheus.CounterVec
	listenersActive prometheus.Gauge
	downloadInfos   *prometheus.CounterVec
	queueDepth      prometheus.Gauge
}

// NewRegistry creates a registry with all metrics initialized.
func NewRegistry() *Registry {
	registry := prometheus.NewRegistry()

	r := &Registry{
		registry: registry,

		eventsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventbridge_events_emitted_total",
				Help: "Events broadcast by the backend",
			},
			[]string{"event"},
		),

		eventsDelivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventbridge_events_delivered_total",
				Help: "Event frames queued for individual listeners",
			},
			[]string{"event"},
		),

		listenersActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "eventbridge_listeners_active",
				Help: "Connected event channel clients",
			},
		),

		downloadInfos: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventbridge_download_infos_total",
				Help: "Download file infos received over HTTP",
			},
			[]string{"status"}, // status: success, error
		),

		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "eventbridge_queue_depth",
				Help: "Messages waiting in the emitter queue",
			},
		),
	}

	registry.MustRegister(
		r.eventsEmitted,
		r.eventsDelivered,
		r.listenersActive,
		r.downloadInfos,
		r.queueDepth,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// Recording methods are no-ops on a nil Registry.
func (r *Registry) RecordEmitted(event string) {
	if r == nil {
		return
	}
	r.eventsEmitted.WithLabelValues(event).Inc()
}

func (r *Registry) RecordDelivered(event string) {
	if r == nil {
		return
	}
	r.eventsDelivered.WithLabelValues(event).Inc()
}

func (r *Registry) SetListeners(n int) {
	if r == nil {
		return
	}
	r.listenersActive.Set(float64(n))
}

func (r *Registry) RecordDownloadInfo(status string) {
	if r == nil {
		return
	}
	r.downloadInfos.WithLabelValues(status).Inc()
}

func (r *Registry) SetQueueDepth(n int) {
	if r == nil {
		return
	}
	r.queueDepth.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
