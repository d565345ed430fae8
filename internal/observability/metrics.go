package observability

import (
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder tracks collaborator call counts and durations.
type Recorder struct {
	registry *prometheus.Registry
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec

	mu    sync.Mutex
	times []time.Duration
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wheelctl",
				Subsystem: "pip",
				Name:      "calls_total",
				Help:      "Total pip invocations.",
			},
			[]string{"op", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "wheelctl",
				Subsystem: "pip",
				Name:      "call_duration_seconds",
				Help:      "pip invocation duration in seconds.",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"op"},
		),
	}
	r.registry.MustRegister(r.calls, r.duration)
	return r
}

// RecordCall stores one pip invocation. A nil Recorder ignores the call.
func (r *Recorder) RecordCall(op string, d time.Duration, success bool) {
	if r == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	r.calls.WithLabelValues(op, outcome).Inc()
	r.duration.WithLabelValues(op).Observe(d.Seconds())

	r.mu.Lock()
	r.times = append(r.times, d)
	r.mu.Unlock()
}

// Registry exposes the private registry for export and tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes the prometheus text exposition of every metric to path.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}

// CallStats summarizes recorded call durations.
type CallStats struct {
	Count   int
	Total   time.Duration
	Min     time.Duration
	Max     time.Duration
	Average time.Duration
}

func (r *Recorder) Stats() CallStats {
	if r == nil {
		return CallStats{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.times) == 0 {
		return CallStats{}
	}
	stats := CallStats{Count: len(r.times), Min: time.Duration(math.MaxInt64)}
	for _, d := range r.times {
		stats.Total += d
		if d < stats.Min {
			stats.Min = d
		}
		if d > stats.Max {
			stats.Max = d
		}
	}
	stats.Average = stats.Total / time.Duration(len(r.times))
	return stats
}
