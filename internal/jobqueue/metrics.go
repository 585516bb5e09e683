// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package jobqueue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for queue operations
var (
	// jobsScheduledTotal counts jobs written to the queue.
	jobsScheduledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobqueue_jobs_scheduled_total",
		Help: "Total number of jobs scheduled",
	}, []string{"name"})

	// jobsProcessedTotal counts handler runs by outcome.
	jobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobqueue_jobs_processed_total",
		Help: "Total number of job handler runs by result (success, retry, dropped)",
	}, []string{"name", "result"})

	// jobsPending is the number of jobs in the queue after the last poll.
	jobsPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jobqueue_pending_jobs",
		Help: "Current number of queued jobs",
	})

	// jobDuration measures handler latency.
	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jobqueue_job_duration_seconds",
		Help:    "Job handler duration in seconds",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"name"})
)

func recordScheduled(name string) {
	jobsScheduledTotal.WithLabelValues(name).Inc()
}

func recordProcessed(name, result string, d time.Duration) {
	jobsProcessedTotal.WithLabelValues(name, result).Inc()
	if d > 0 {
		jobDuration.WithLabelValues(name).Observe(d.Seconds())
	}
}

func setPending(n int) {
	jobsPending.Set(float64(n))
}
