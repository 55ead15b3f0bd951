// Package metrics exposes workflow activity as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyjia/taskflow/internal/application/dispatcher"
	"github.com/garyjia/taskflow/internal/domain/event"
)

const namespace = "taskflow"

// Recorder owns a private registry so several instances can coexist in tests
type Recorder struct {
	registry *prometheus.Registry

	// transitionsTotal counts committed transitions by target state type and mode
	transitionsTotal *prometheus.CounterVec

	// rejectionsTotal counts failed transition attempts by error kind
	rejectionsTotal *prometheus.CounterVec

	// automaticPassesTotal counts completed automatic passes
	automaticPassesTotal prometheus.Counter

	// automaticTasksTotal counts tasks examined by automatic passes by outcome
	automaticTasksTotal *prometheus.CounterVec

	// httpRequestDuration is a histogram of API request latency
	httpRequestDuration *prometheus.HistogramVec
}

// NewRecorder creates a recorder with Go runtime and process collectors
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Total number of executed workflow transitions",
			},
			[]string{"to_state_type", "mode"}, // mode: manual, automatic
		),
		rejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transition_rejections_total",
				Help:      "Total number of rejected or failed transition requests",
			},
			[]string{"reason"},
		),
		automaticPassesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "automatic_passes_total",
				Help:      "Total number of completed automatic transition passes",
			},
		),
		automaticTasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "automatic_tasks_total",
				Help:      "Total number of tasks handled by automatic passes",
			},
			[]string{"outcome"}, // outcome: examined, processed, failed
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP API requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.transitionsTotal,
		r.rejectionsTotal,
		r.automaticPassesTotal,
		r.automaticTasksTotal,
		r.httpRequestDuration,
	)
	return r
}

// Subscribe registers the recorder's event handlers on d
func (r *Recorder) Subscribe(d dispatcher.Dispatcher) {
	d.SubscribeNamed(event.TypeTaskTransitioned, "metrics-transitioned", r.onTransitioned)
	d.SubscribeNamed(event.TypeTransitionRejected, "metrics-rejected", r.onRejected)
	d.SubscribeNamed(event.TypeAutomaticPassCompleted, "metrics-automatic-pass", r.onAutomaticPass)
}

func (r *Recorder) onTransitioned(_ context.Context, evt *event.Event) error {
	mode := "manual"
	if evt.GetPayloadBool(event.KeyAutomatic) {
		mode = "automatic"
	}
	r.transitionsTotal.WithLabelValues(evt.GetPayloadString(event.KeyToStateType), mode).Inc()
	return nil
}

func (r *Recorder) onRejected(_ context.Context, evt *event.Event) error {
	r.rejectionsTotal.WithLabelValues(evt.GetPayloadString(event.KeyReason)).Inc()
	return nil
}

func (r *Recorder) onAutomaticPass(_ context.Context, evt *event.Event) error {
	r.automaticPassesTotal.Inc()
	r.automaticTasksTotal.WithLabelValues("examined").Add(float64(evt.GetPayloadInt(event.KeyExamined)))
	r.automaticTasksTotal.WithLabelValues("processed").Add(float64(evt.GetPayloadInt(event.KeyProcessed)))
	r.automaticTasksTotal.WithLabelValues("failed").Add(float64(evt.GetPayloadInt(event.KeyFailed)))
	return nil
}

// ObserveHTTP records one API request
func (r *Recorder) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	r.httpRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
