package health

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// FromMetrics reads the P95 quantile of the named summary metric directly
// out of a Prometheus gatherer (typically the same *prometheus.Registry
// passed to metrics.WithRegistry), feeding ratelimitd's own observed request
// latency back into the adaptive controller's health signal — closing the
// loop between what the controller measures and what it reacts to.
type FromMetrics struct {
	gatherer   prometheus.Gatherer
	metricName string
}

// NewFromMetrics creates a Source reading the 0.95 quantile of metricName
// (e.g. "ratelimit_request_latency_summary_seconds") out of gatherer.
func NewFromMetrics(gatherer prometheus.Gatherer, metricName string) *FromMetrics {
	return &FromMetrics{gatherer: gatherer, metricName: metricName}
}

func (f *FromMetrics) FetchMetrics() (Snapshot, error) {
	mfs, err := f.gatherer.Gather()
	if err != nil {
		return Snapshot{}, err
	}

	var maxP95 float64
	for _, mf := range mfs {
		if mf.GetName() != f.metricName {
			continue
		}
		for _, m := range mf.GetMetric() {
			if v := quantileValue(m.GetSummary(), 0.95); v > maxP95 {
				maxP95 = v
			}
		}
	}
	return Snapshot{P95LatencyMs: maxP95 * 1000}, nil
}

func quantileValue(s *dto.Summary, want float64) float64 {
	for _, q := range s.GetQuantile() {
		if q.GetQuantile() == want {
			return q.GetValue()
		}
	}
	return 0
}
