// Package history persists timestamped utilization snapshots and serves
// them back as time series for charting.
package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/usagedeck/usagedeck/internal/errors"
	"github.com/usagedeck/usagedeck/internal/logging"
	"github.com/usagedeck/usagedeck/internal/models"
	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed snapshot store with WAL mode. Writers only
// append or delete by absolute age, so no locking beyond the driver's is
// needed.
type Store struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewStore opens (or creates) the snapshot database at dbPath and runs
// migrations.
func NewStore(dbPath string, logger *logging.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &apperrors.ErrDirectoryCreate{Path: dir, Err: err}
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, &apperrors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &apperrors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger}, nil
}

func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return &apperrors.ErrDatabaseQuery{Operation: "create migrations table", Err: err}
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return &apperrors.ErrDatabaseQuery{Operation: "get current migration version", Err: err}
	}

	migrations := []struct {
		version int
		up      string
	}{
		{
			version: 1,
			up: `
				CREATE TABLE IF NOT EXISTS usage_snapshots (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					account TEXT NOT NULL,
					metric TEXT NOT NULL,
					utilization REAL NOT NULL,
					timestamp DATETIME NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_snapshots_account_metric_ts
					ON usage_snapshots(account, metric, timestamp);
				CREATE INDEX IF NOT EXISTS idx_snapshots_ts
					ON usage_snapshots(timestamp);
			`,
		},
	}

	tx, err := db.Begin()
	if err != nil {
		return &apperrors.ErrDatabaseQuery{Operation: "begin transaction", Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, m := range migrations {
		if m.version > currentVersion {
			if _, err := tx.Exec(m.up); err != nil {
				return &apperrors.ErrDatabaseMigration{Version: m.version, Err: err}
			}
			if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
				return &apperrors.ErrDatabaseMigration{Version: m.version, Err: err}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return &apperrors.ErrDatabaseQuery{Operation: "commit migrations", Err: err}
	}

	return nil
}

// InsertBatch appends a batch of snapshots in a single transaction.
func (s *Store) InsertBatch(ctx context.Context, snapshots []models.UsageSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &apperrors.ErrDatabaseQuery{Operation: "begin snapshot batch", Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO usage_snapshots (account, metric, utilization, timestamp)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return &apperrors.ErrDatabaseQuery{Operation: "prepare snapshot insert", Err: err}
	}
	defer stmt.Close()

	for _, snap := range snapshots {
		if _, err := stmt.ExecContext(ctx, snap.Account, string(snap.Metric), snap.Utilization, snap.Timestamp.UTC()); err != nil {
			return &apperrors.ErrDatabaseQuery{Operation: "insert snapshot", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &apperrors.ErrDatabaseQuery{Operation: "commit snapshot batch", Err: err}
	}

	return nil
}

// Prune deletes all snapshots older than the cutoff, store-wide, and
// returns the number of rows removed. Deleting by absolute age is
// idempotent; racing prunes only produce no-op deletes.
func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM usage_snapshots WHERE timestamp < ?", olderThan.UTC())
	if err != nil {
		return 0, &apperrors.ErrDatabaseQuery{Operation: "prune snapshots", Err: err}
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}

// Query returns all points for one (account, metric) pair at or after
// since, ordered by timestamp ascending.
func (s *Store) Query(ctx context.Context, account string, metric models.Metric, since time.Time) ([]models.SeriesPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT utilization, timestamp
		FROM usage_snapshots
		WHERE account = ? AND metric = ? AND timestamp >= ?
		ORDER BY timestamp ASC
	`, account, string(metric), since.UTC())
	if err != nil {
		return nil, &apperrors.ErrDatabaseQuery{Operation: "query snapshots", Err: err}
	}
	defer rows.Close()

	var points []models.SeriesPoint
	for rows.Next() {
		var p models.SeriesPoint
		if err := rows.Scan(&p.Value, &p.Timestamp); err != nil {
			return nil, &apperrors.ErrDatabaseQuery{Operation: "scan snapshot row", Err: err}
		}
		p.Timestamp = p.Timestamp.UTC()
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &apperrors.ErrDatabaseQuery{Operation: "iterate snapshot rows", Err: err}
	}

	return points, nil
}

// Latest returns the most recent snapshot value for one (account, metric)
// pair. The second return is false when no snapshot exists.
func (s *Store) Latest(ctx context.Context, account string, metric models.Metric) (models.UsageSnapshot, bool) {
	var snap models.UsageSnapshot
	var metricStr string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, account, metric, utilization, timestamp
		FROM usage_snapshots
		WHERE account = ? AND metric = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`, account, string(metric)).Scan(&snap.ID, &snap.Account, &metricStr, &snap.Utilization, &snap.Timestamp)
	if err != nil {
		return models.UsageSnapshot{}, false
	}

	snap.Metric = models.Metric(metricStr)
	snap.Timestamp = snap.Timestamp.UTC()
	return snap, true
}

// Count returns the total number of stored snapshots.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM usage_snapshots").Scan(&count); err != nil {
		return 0, &apperrors.ErrDatabaseQuery{Operation: "count snapshots", Err: err}
	}
	return count, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
