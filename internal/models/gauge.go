package models

// GaugeTier is the severity tier of a utilization percentage. The
// thresholds are part of the contract between the aggregation pipeline,
// the alerting layer, and any dashboard rendering the values.
type GaugeTier string

const (
	TierOK      GaugeTier = "ok"
	TierWarning GaugeTier = "warning"
	TierDanger  GaugeTier = "danger"
	// TierUnknown marks a value of exactly zero with no known reset time,
	// which usually means the window was never successfully queried rather
	// than genuinely unused.
	TierUnknown GaugeTier = "unknown"
)

// ClassifyGauge maps a 0-100 utilization value to a severity tier.
func ClassifyGauge(value float64, resetKnown bool) GaugeTier {
	if value == 0 && !resetKnown {
		return TierUnknown
	}
	switch {
	case value >= 80:
		return TierDanger
	case value >= 50:
		return TierWarning
	default:
		return TierOK
	}
}
