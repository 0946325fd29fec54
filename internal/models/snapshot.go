package models

import (
	"fmt"
	"sort"
	"time"
)

// Metric names one persisted utilization window.
type Metric string

const (
	MetricFiveHour       Metric = "five_hour"
	MetricSevenDay       Metric = "seven_day"
	MetricSevenDaySonnet Metric = "seven_day_sonnet"
)

// SnapshotMetrics lists the windows recorded by the snapshot pipeline.
func SnapshotMetrics() []Metric {
	return []Metric{MetricFiveHour, MetricSevenDay, MetricSevenDaySonnet}
}

// Valid reports whether m is a known snapshot metric.
func (m Metric) Valid() bool {
	switch m {
	case MetricFiveHour, MetricSevenDay, MetricSevenDaySonnet:
		return true
	}
	return false
}

// UsageSnapshot is one persisted utilization sample for an account/metric
// pair. Rows are immutable; they leave the store only through retention
// pruning.
type UsageSnapshot struct {
	ID          int64     `json:"id"`
	Account     string    `json:"account"`
	Metric      Metric    `json:"metric"`
	Utilization float64   `json:"utilization"`
	Timestamp   time.Time `json:"timestamp"`
}

// SeriesPoint is one point of a utilization time series.
type SeriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// MergedRow is one row of a multi-metric chart dataset: the union join of
// several series on exact timestamp equality, with absent samples reported
// as zero.
type MergedRow struct {
	Timestamp time.Time          `json:"timestamp"`
	Values    map[Metric]float64 `json:"values"`
}

// Range selects the lower time bound of a history query. The upper bound
// is always "now".
type Range string

const (
	RangeFiveHours      Range = "5h"
	RangeDay            Range = "24h"
	RangeWeek           Range = "7d"
	RangeMonth          Range = "30d"
)

// ParseRange validates a range token from a query string.
func ParseRange(s string) (Range, error) {
	switch Range(s) {
	case RangeFiveHours, RangeDay, RangeWeek, RangeMonth:
		return Range(s), nil
	case "":
		return RangeDay, nil
	}
	return "", fmt.Errorf("unknown range %q", s)
}

// Since returns the lower timestamp bound for the range relative to now.
func (r Range) Since(now time.Time) time.Time {
	switch r {
	case RangeFiveHours:
		return now.Add(-5 * time.Hour)
	case RangeDay:
		return now.Add(-24 * time.Hour)
	case RangeWeek:
		return now.Add(-7 * 24 * time.Hour)
	case RangeMonth:
		return now.Add(-30 * 24 * time.Hour)
	default:
		return now.Add(-24 * time.Hour)
	}
}

// SortPoints orders points ascending by timestamp. Merging requires
// ascending input, so callers sort before any merge regardless of the
// store's ordering.
func SortPoints(points []SeriesPoint) {
	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
}
