package adaptive

import (
	"math"

	"github.com/arclane/ratelimitd/health"
)

// AnomalySeverity buckets how far a key's current traffic deviates from its
// own rolling baseline, independent of the absolute system-health rule.
type AnomalySeverity string

const (
	AnomalyNone     AnomalySeverity = "none"
	AnomalyLow      AnomalySeverity = "low"
	AnomalyMedium   AnomalySeverity = "medium"
	AnomalyHigh     AnomalySeverity = "high"
	AnomalyCritical AnomalySeverity = "critical"
)

// ClassifyAnomaly buckets |z| at the 3/4/5/6 thresholds.
func ClassifyAnomaly(z float64) AnomalySeverity {
	abs := math.Abs(z)
	switch {
	case abs > 6:
		return AnomalyCritical
	case abs > 5:
		return AnomalyHigh
	case abs > 4:
		return AnomalyMedium
	case abs > 3:
		return AnomalyLow
	default:
		return AnomalyNone
	}
}

// AnomalyType labels the direction and shape of an anomaly.
type AnomalyType string

const (
	AnomalyTypeNone          AnomalyType = "none"
	AnomalyTypeSpike         AnomalyType = "spike"
	AnomalyTypeSustainedHigh AnomalyType = "sustained_high"
	AnomalyTypeDrop          AnomalyType = "drop"
	AnomalyTypeSustainedLow  AnomalyType = "sustained_low"
)

// ClassifyAnomalyType labels a signed z-score: a sharp positive deviation is
// a SPIKE, a milder sustained positive deviation is SUSTAINED_HIGH, and the
// negative side mirrors with DROP/SUSTAINED_LOW.
func ClassifyAnomalyType(z float64) AnomalyType {
	switch {
	case z > 5:
		return AnomalyTypeSpike
	case z > 3:
		return AnomalyTypeSustainedHigh
	case z < -5:
		return AnomalyTypeDrop
	case z < -3:
		return AnomalyTypeSustainedLow
	default:
		return AnomalyTypeNone
	}
}

// Rule-table thresholds, named after the literal rule text they implement.
// CPU and error rate are carried on health.Snapshot's 0-100 scale; the
// fractional thresholds below are that scale's equivalent of the spec's
// 0-1 fractions (CPU > 0.8 -> 80, errorRate < 0.001 -> 0.1).
const (
	highResourceCPU  = 80.0
	highResourceP95  = 2000.0
	calmLowCPU       = 30.0
	calmLowErrorRate = 0.1
	calmModCPU       = 50.0
	calmModErrorRate = 0.5
)

// Factor and confidence constants, one pair per rule, in the fixed values
// the rule table specifies - these are not tunable, a rule's confidence is
// part of what the rule means.
const (
	FactorHighResourcePressure = 0.7
	FactorAnomalyCritical      = 0.6
	FactorAnomalyElevated      = 0.8
	FactorCalmLow              = 1.3
	FactorCalmModerate         = 1.1
	FactorNoChange             = 1.0

	ConfidenceHighResourcePressure = 0.85
	ConfidenceAnomalyCritical      = 0.90
	ConfidenceAnomalyElevated      = 0.75
	ConfidenceCalmLow              = 0.75
	ConfidenceCalmModerate         = 0.65
	ConfidenceNoChange             = 1.0
)

// Decision is the result of evaluating the rule table once for one key.
type Decision struct {
	Factor     float64
	Confidence float64
	Reason     string
}

// Evaluate applies the ordered rule table: the first rule that fires wins.
// snap is the shared system-health reading for this tick; anomaly is the
// key's own anomaly severity against its rolling traffic baseline.
func Evaluate(snap health.Snapshot, anomaly AnomalySeverity) Decision {
	switch {
	case snap.CPUUtilization > highResourceCPU || snap.P95LatencyMs > highResourceP95:
		return Decision{FactorHighResourcePressure, ConfidenceHighResourcePressure, "cpu_or_latency_pressure"}
	case anomaly == AnomalyCritical:
		return Decision{FactorAnomalyCritical, ConfidenceAnomalyCritical, "anomaly_critical"}
	case anomaly == AnomalyHigh || anomaly == AnomalyMedium:
		return Decision{FactorAnomalyElevated, ConfidenceAnomalyElevated, "anomaly_elevated"}
	case snap.CPUUtilization < calmLowCPU && snap.ErrorRatePct < calmLowErrorRate && anomaly == AnomalyNone:
		return Decision{FactorCalmLow, ConfidenceCalmLow, "calm_low_load"}
	case snap.CPUUtilization < calmModCPU && snap.ErrorRatePct < calmModErrorRate && anomaly == AnomalyNone:
		return Decision{FactorCalmModerate, ConfidenceCalmModerate, "calm_moderate_load"}
	default:
		return Decision{FactorNoChange, ConfidenceNoChange, "no_change"}
	}
}
