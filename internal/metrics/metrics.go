// Package metrics exposes dispatch and scheduling counters via Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	PostsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "postbot_posts_sent_total",
		Help: "Posts delivered successfully.",
	})
	PostsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "postbot_posts_failed_total",
		Help: "Post deliveries that failed.",
	})
	DispatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "postbot_dispatch_duration_seconds",
		Help:    "Wall time of one post dispatch, send included.",
		Buckets: prometheus.DefBuckets,
	})
	ScheduledJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "postbot_scheduled_jobs",
		Help: "Triggers currently held by the job registry.",
	})
)

// MustRegister installs all collectors on the given registerer.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(PostsSent, PostsFailed, DispatchDuration, ScheduledJobs)
}

// ObserveDispatch records one dispatch outcome.
func ObserveDispatch(start time.Time, ok bool) {
	DispatchDuration.Observe(time.Since(start).Seconds())
	if ok {
		PostsSent.Inc()
	} else {
		PostsFailed.Inc()
	}
}
