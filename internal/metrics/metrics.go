// Package metrics exposes Prometheus collectors for dispatcher runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder records dispatcher activity.
type Recorder struct {
	deliveries *prometheus.CounterVec
	runs       *prometheus.CounterVec
	duration   prometheus.Histogram
	checked    prometheus.Counter
}

// New creates a Recorder and registers its collectors with reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reminders",
			Name:      "deliveries_total",
			Help:      "Reminder delivery attempts by channel and outcome.",
		}, []string{"channel", "outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reminders",
			Name:      "dispatch_runs_total",
			Help:      "Dispatcher runs by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "reminders",
			Name:      "dispatch_run_duration_seconds",
			Help:      "Duration of dispatcher runs.",
			Buckets:   prometheus.DefBuckets,
		}),
		checked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reminders",
			Name:      "checked_total",
			Help:      "Due reminders picked up by the dispatcher.",
		}),
	}

	reg.MustRegister(r.deliveries, r.runs, r.duration, r.checked)

	return r
}

// Delivery counts one delivery attempt.
func (r *Recorder) Delivery(channel string, ok bool) {
	if r == nil {
		return
	}
	outcome := "sent"
	if !ok {
		outcome = "failed"
	}
	r.deliveries.WithLabelValues(channel, outcome).Inc()
}

// Run records a finished run.
func (r *Recorder) Run(checked int, took time.Duration, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.runs.WithLabelValues(result).Inc()
	r.duration.Observe(took.Seconds())
	r.checked.Add(float64(checked))
}
