package history

import (
	"context"
	"sort"
	"time"

	apperrors "github.com/usagedeck/usagedeck/internal/errors"
	"github.com/usagedeck/usagedeck/internal/models"
)

// Assembler answers time-series queries against the snapshot store.
type Assembler struct {
	store *Store
}

// NewAssembler creates an Assembler. store may be nil when history is
// disabled; queries then report the distinct unavailable outcome.
func NewAssembler(store *Store) *Assembler {
	return &Assembler{store: store}
}

// Available reports whether the snapshot store is configured.
func (a *Assembler) Available() bool {
	return a.store != nil
}

// GetSeries returns the ordered points for one (account, metric) pair
// within the range. Re-querying reproduces the sequence; the store is the
// only state. An unconfigured store is reported as unavailable, never as
// an empty series.
func (a *Assembler) GetSeries(ctx context.Context, account string, metric models.Metric, rng models.Range) ([]models.SeriesPoint, error) {
	if a.store == nil {
		return nil, &apperrors.ErrHistoryUnavailable{Reason: "snapshot store not configured"}
	}

	points, err := a.store.Query(ctx, account, metric, rng.Since(time.Now().UTC()))
	if err != nil {
		return nil, err
	}

	// The merge below depends on ascending order, so enforce it here
	// rather than trust the index alone.
	models.SortPoints(points)
	return points, nil
}

// GetMergedSeries fetches every snapshot metric for one account and
// merges them into chart rows.
func (a *Assembler) GetMergedSeries(ctx context.Context, account string, rng models.Range) ([]models.MergedRow, error) {
	series := make(map[models.Metric][]models.SeriesPoint, 3)
	for _, metric := range models.SnapshotMetrics() {
		points, err := a.GetSeries(ctx, account, metric, rng)
		if err != nil {
			return nil, err
		}
		series[metric] = points
	}
	return MergeSeries(series), nil
}

// MergeSeries joins several series on exact timestamp equality: the output
// has one row per distinct timestamp across all inputs, with series that
// have no point at that timestamp reported as zero. No interpolation and
// no time bucketing; series sampled on a shared cadence line up exactly,
// drifting cadences produce sparse zero-filled rows.
func MergeSeries(series map[models.Metric][]models.SeriesPoint) []models.MergedRow {
	rowIndex := make(map[int64]*models.MergedRow)
	for metric, points := range series {
		for _, p := range points {
			key := p.Timestamp.UnixNano()
			row, ok := rowIndex[key]
			if !ok {
				row = &models.MergedRow{
					Timestamp: p.Timestamp,
					Values:    make(map[models.Metric]float64, len(series)),
				}
				rowIndex[key] = row
			}
			row.Values[metric] = p.Value
		}
	}

	rows := make([]models.MergedRow, 0, len(rowIndex))
	for _, row := range rowIndex {
		for metric := range series {
			if _, ok := row.Values[metric]; !ok {
				row.Values[metric] = 0
			}
		}
		rows = append(rows, *row)
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Timestamp.Before(rows[j].Timestamp)
	})
	return rows
}
