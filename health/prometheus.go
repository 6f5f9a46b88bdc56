package health

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// PromQL queries for the three signals the adaptive controller's rule table
// consumes. Named as constants so an operator can see exactly what ratelimitd
// asks Prometheus for.
const (
	cpuQuery       = `avg(rate(process_cpu_seconds_total[1m])) * 100`
	p95LatQuery    = `histogram_quantile(0.95, sum(rate(ratelimitd_request_duration_seconds_bucket[5m])) by (le)) * 1000`
	errorRateQuery = `sum(rate(ratelimitd_requests_total{status="error"}[1m])) / sum(rate(ratelimitd_requests_total[1m])) * 100`
)

// Prometheus polls a Prometheus server's HTTP API for CPU, P95 latency, and
// error-rate signals. Grounded on omd02-GoRateLimiter's pkg/health/real.go.
type Prometheus struct {
	client v1.API

	cpuQuery       string
	p95LatQuery    string
	errorRateQuery string
}

// NewPrometheus dials addr (e.g. "http://prometheus:9090") and returns a
// Source backed by it. The queries used can be overridden with
// WithPrometheusQueries for deployments that expose these metrics under
// different names.
func NewPrometheus(addr string) (*Prometheus, error) {
	c, err := api.NewClient(api.Config{Address: addr})
	if err != nil {
		return nil, fmt.Errorf("health: creating prometheus client: %w", err)
	}
	return &Prometheus{
		client:         v1.NewAPI(c),
		cpuQuery:       cpuQuery,
		p95LatQuery:    p95LatQuery,
		errorRateQuery: errorRateQuery,
	}, nil
}

// WithPrometheusQueries overrides the default PromQL expressions.
func (p *Prometheus) WithPrometheusQueries(cpu, p95Lat, errorRate string) *Prometheus {
	if cpu != "" {
		p.cpuQuery = cpu
	}
	if p95Lat != "" {
		p.p95LatQuery = p95Lat
	}
	if errorRate != "" {
		p.errorRateQuery = errorRate
	}
	return p
}

func (p *Prometheus) FetchMetrics() (Snapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cpu, err := p.queryScalar(ctx, p.cpuQuery)
	if err != nil {
		return Snapshot{}, fmt.Errorf("health: querying cpu: %w", err)
	}
	lat, err := p.queryScalar(ctx, p.p95LatQuery)
	if err != nil {
		return Snapshot{}, fmt.Errorf("health: querying p95 latency: %w", err)
	}
	errRate, err := p.queryScalar(ctx, p.errorRateQuery)
	if err != nil {
		return Snapshot{}, fmt.Errorf("health: querying error rate: %w", err)
	}

	return Snapshot{
		CPUUtilization: cpu,
		P95LatencyMs:   lat,
		ErrorRatePct:   errRate,
	}, nil
}

func (p *Prometheus) queryScalar(ctx context.Context, query string) (float64, error) {
	result, warnings, err := p.client.Query(ctx, query, time.Now())
	if err != nil {
		return 0, err
	}
	if len(warnings) > 0 {
		// Warnings are not fatal and are discarded.
		_ = warnings
	}

	vec, ok := result.(model.Vector)
	if !ok || len(vec) == 0 {
		return 0, nil
	}
	return float64(vec[0].Value), nil
}
