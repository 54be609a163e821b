// Package prometheus exports engine metrics through client_golang.
package prometheus

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder implements core.MetricsRecorder with a counter and a
// latency histogram labelled by operation and outcome.
type Recorder struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewRecorder registers the collectors on reg under subsystem ("engine" when
// empty). A nil reg uses a private registry, which keeps repeated
// construction in tests legal.
func NewRecorder(reg prometheus.Registerer, subsystem string) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if subsystem == "" {
		subsystem = "engine"
	}
	r := &Recorder{
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "entitysync",
			Subsystem: subsystem,
			Name:      "operations_total",
			Help:      "Operations by name and outcome.",
		}, []string{"operation", "success"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "entitysync",
			Subsystem: subsystem,
			Name:      "operation_duration_seconds",
			Help:      "Operation latency in seconds.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"operation", "success"}),
	}
	for _, c := range []prometheus.Collector{r.total, r.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Observe records one finished operation.
func (r *Recorder) Observe(_ context.Context, operation string, success bool, d time.Duration) {
	labels := prometheus.Labels{"operation": operation, "success": strconv.FormatBool(success)}
	r.total.With(labels).Inc()
	r.duration.With(labels).Observe(d.Seconds())
}
