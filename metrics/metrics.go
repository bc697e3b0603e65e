// Package metrics exposes thread pool activity as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jirevwe/threadpool/pool"
)

// Collector is a pool.Observer that feeds Prometheus metrics.
type Collector struct {
	JobsSubmitted prometheus.Counter
	JobsCompleted prometheus.Counter
	JobsPanicked  prometheus.Counter
	JobsQueued    prometheus.Gauge
	WorkersBusy   prometheus.Gauge
	JobDuration   *prometheus.HistogramVec
	JobWait       prometheus.Histogram
}

// New registers the pool metrics with registerer under the given namespace.
// A nil registerer uses prometheus.DefaultRegisterer.
func New(registerer prometheus.Registerer, namespace string) *Collector {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Collector{
		JobsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_jobs_submitted_total",
			Help:      "Total number of jobs submitted to the pool",
		}),
		JobsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_jobs_completed_total",
			Help:      "Total number of jobs that finished running, including panicked ones",
		}),
		JobsPanicked: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_jobs_panicked_total",
			Help:      "Total number of jobs that panicked and were recovered",
		}),
		JobsQueued: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_jobs_queued",
			Help:      "Number of jobs submitted but not yet picked up by a worker",
		}),
		WorkersBusy: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_workers_busy",
			Help:      "Number of workers currently running a job",
		}),
		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pool_job_duration_seconds",
			Help:      "Job execution time in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		JobWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pool_job_wait_seconds",
			Help:      "Time jobs spent queued before a worker picked them up",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (c *Collector) JobSubmitted(pool.JobInfo) {
	c.JobsSubmitted.Inc()
	c.JobsQueued.Inc()
}

func (c *Collector) JobStarted(info pool.JobInfo) {
	c.JobsQueued.Dec()
	c.WorkersBusy.Inc()
	c.JobWait.Observe(info.StartedAt.Sub(info.SubmittedAt).Seconds())
}

func (c *Collector) JobFinished(info pool.JobInfo) {
	c.WorkersBusy.Dec()
	c.JobsCompleted.Inc()

	outcome := "ok"
	if info.Failed() {
		outcome = "panic"
		c.JobsPanicked.Inc()
	}
	c.JobDuration.WithLabelValues(outcome).Observe(info.Duration().Seconds())
}

var _ pool.Observer = (*Collector)(nil)
