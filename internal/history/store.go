// Package history persists run results in a SQLite database so pass
// rates and regressions can be tracked across soundcheck invocations.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mstaack/sw-usb-audio/internal/models"
)

// Record represents a single stored run
type Record struct {
	ID             int64
	RunID          string
	CaseNumber     string
	CaseName       string
	Device         string
	Config         string
	SampleRate     int
	Channel        string
	Direction      string
	Status         string // PASSED, FAILED, ERROR
	Failures       []string
	ErrorMessage   string
	DurationSecs   float64
	TranscriptPath string
	StartedAt      time.Time
	RecordedAt     time.Time
}

// DeviceStats represents aggregated run statistics for one device
type DeviceStats struct {
	Device      string
	TotalRuns   int
	Passed      int
	Failed      int
	Errors      int
	PassRate    float64
	AvgDuration float64
	LastRun     time.Time
}

// Store manages the SQLite database for run history
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore creates a new Store instance and initializes the database
func NewStore(dbPath string) (*Store, error) {
	// Handle in-memory database
	if dbPath == ":memory:" {
		return openAndInitStore(dbPath)
	}

	// Ensure parent directory exists for file-based databases
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	return openAndInitStore(dbPath)
}

// openAndInitStore opens the database connection and initializes schema
func openAndInitStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Configure SQLite for concurrent access with retry logic.
	// Set busy_timeout FIRST so subsequent operations wait on locks.
	// "database is locked" can still occur during concurrent
	// initialization of the same file, hence the retry.
	pragmas := []string{
		"PRAGMA busy_timeout=5000", // Must be first
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	store := &Store{
		db:     db,
		dbPath: dbPath,
	}

	if err := store.ApplyMigrations(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return store, nil
}

// execWithRetry executes a SQL statement with exponential backoff retry on lock errors.
func execWithRetry(db *sql.DB, sql string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(sql)
		if err == nil {
			return nil
		}

		// Only retry on "database is locked" errors
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}

		lastErr = err
		delay := baseDelay * time.Duration(1<<attempt)
		time.Sleep(delay)
	}
	return lastErr
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// NewRunID generates a unique identifier for a run
func NewRunID() string {
	return uuid.NewString()
}

// tableExists checks if a table exists in the database
func (s *Store) tableExists(tableName string) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`
	err := s.db.QueryRow(query, tableName).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check table existence: %w", err)
	}
	return count > 0, nil
}

// indexExists checks if an index exists in the database
func (s *Store) indexExists(indexName string) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?`
	err := s.db.QueryRow(query, indexName).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check index existence: %w", err)
	}
	return count > 0, nil
}

// RecordFromResult flattens a run result into a history record
func RecordFromResult(res *models.RunResult) *Record {
	rec := &Record{
		RunID:          res.RunID,
		CaseNumber:     res.Case.Number,
		CaseName:       res.Case.Name,
		Device:         res.Case.Device,
		Config:         res.Case.Config,
		SampleRate:     res.Case.SampleRate,
		Channel:        res.Case.Channel,
		Direction:      string(res.Case.Side()),
		Status:         res.Status,
		Failures:       res.Failures,
		DurationSecs:   res.Duration.Seconds(),
		TranscriptPath: res.TranscriptPath,
		StartedAt:      res.StartedAt,
	}
	if res.Error != nil {
		rec.ErrorMessage = res.Error.Error()
	}
	return rec
}

// RecordRun inserts a run record. A missing RunID or StartedAt is
// filled in so partial records from aborted runs still land.
func (s *Store) RecordRun(ctx context.Context, rec *Record) error {
	if rec.RunID == "" {
		rec.RunID = NewRunID()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}

	failuresJSON := "[]"
	if len(rec.Failures) > 0 {
		data, err := json.Marshal(rec.Failures)
		if err != nil {
			return fmt.Errorf("marshal failures: %w", err)
		}
		failuresJSON = string(data)
	}

	query := `INSERT INTO runs
		(run_id, case_number, case_name, device, config, sample_rate, channel, direction, status, failures, error_message, duration_seconds, transcript_path, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query,
		rec.RunID,
		rec.CaseNumber,
		rec.CaseName,
		rec.Device,
		rec.Config,
		rec.SampleRate,
		rec.Channel,
		rec.Direction,
		rec.Status,
		failuresJSON,
		rec.ErrorMessage,
		rec.DurationSecs,
		rec.TranscriptPath,
		rec.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	rec.ID = id

	return nil
}

const selectRuns = `SELECT id, run_id, case_number, case_name, device, config, sample_rate, channel, direction, status, failures, error_message, duration_seconds, transcript_path, started_at, recorded_at
	FROM runs`

// RecentRuns retrieves the most recent runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]*Record, error) {
	query := selectRuns + ` ORDER BY id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryRecords(ctx, query, args...)
}

// RunsForDevice retrieves runs for a specific device, newest first.
func (s *Store) RunsForDevice(ctx context.Context, device string, limit int) ([]*Record, error) {
	query := selectRuns + ` WHERE device = ? ORDER BY id DESC`
	args := []interface{}{device}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryRecords(ctx, query, args...)
}

// RunsForCase retrieves runs for a specific case number, newest first.
func (s *Store) RunsForCase(ctx context.Context, caseNumber string, limit int) ([]*Record, error) {
	query := selectRuns + ` WHERE case_number = ? ORDER BY id DESC`
	args := []interface{}{caseNumber}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryRecords(ctx, query, args...)
}

// FindRun retrieves a single run by its run ID.
func (s *Store) FindRun(ctx context.Context, runID string) (*Record, error) {
	records, err := s.queryRecords(ctx, selectRuns+` WHERE run_id = ?`, runID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	return records[0], nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...interface{}) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec := &Record{}
		var config, channel, direction, failures, errorMessage, transcriptPath sql.NullString
		var sampleRate sql.NullInt64
		var durationSecs sql.NullFloat64
		err := rows.Scan(
			&rec.ID,
			&rec.RunID,
			&rec.CaseNumber,
			&rec.CaseName,
			&rec.Device,
			&config,
			&sampleRate,
			&channel,
			&direction,
			&rec.Status,
			&failures,
			&errorMessage,
			&durationSecs,
			&transcriptPath,
			&rec.StartedAt,
			&rec.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}

		if config.Valid {
			rec.Config = config.String
		}
		if sampleRate.Valid {
			rec.SampleRate = int(sampleRate.Int64)
		}
		if channel.Valid {
			rec.Channel = channel.String
		}
		if direction.Valid {
			rec.Direction = direction.String
		}
		if errorMessage.Valid {
			rec.ErrorMessage = errorMessage.String
		}
		if durationSecs.Valid {
			rec.DurationSecs = durationSecs.Float64
		}
		if transcriptPath.Valid {
			rec.TranscriptPath = transcriptPath.String
		}
		if failures.Valid && failures.String != "" {
			if err := json.Unmarshal([]byte(failures.String), &rec.Failures); err != nil {
				return nil, fmt.Errorf("unmarshal failures: %w", err)
			}
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}

	return records, nil
}

// Stats returns per-device aggregates ordered by run count descending.
func (s *Store) Stats(ctx context.Context) ([]DeviceStats, error) {
	query := `SELECT
		device,
		COUNT(*) as total_runs,
		COUNT(CASE WHEN status = ? THEN 1 END) as passed,
		COUNT(CASE WHEN status = ? THEN 1 END) as failed,
		COUNT(CASE WHEN status = ? THEN 1 END) as errors,
		AVG(duration_seconds) as avg_duration,
		MAX(started_at) as last_run
		FROM runs
		GROUP BY device
		ORDER BY total_runs DESC`

	rows, err := s.db.QueryContext(ctx, query,
		models.StatusPassed, models.StatusFailed, models.StatusError)
	if err != nil {
		return nil, fmt.Errorf("query device stats: %w", err)
	}
	defer rows.Close()

	var stats []DeviceStats
	for rows.Next() {
		var ds DeviceStats
		var avgDuration sql.NullFloat64
		var lastRunStr sql.NullString

		if err := rows.Scan(
			&ds.Device,
			&ds.TotalRuns,
			&ds.Passed,
			&ds.Failed,
			&ds.Errors,
			&avgDuration,
			&lastRunStr,
		); err != nil {
			return nil, fmt.Errorf("scan device stats row: %w", err)
		}

		if ds.TotalRuns > 0 {
			ds.PassRate = float64(ds.Passed) / float64(ds.TotalRuns)
		}
		if avgDuration.Valid {
			ds.AvgDuration = avgDuration.Float64
		}
		// MAX() loses the column's time affinity, so parse the text form.
		if lastRunStr.Valid {
			if t, err := time.Parse(time.RFC3339, lastRunStr.String); err == nil {
				ds.LastRun = t
			} else if t, err := time.Parse("2006-01-02 15:04:05.999999999-07:00", lastRunStr.String); err == nil {
				ds.LastRun = t
			} else if t, err := time.Parse("2006-01-02 15:04:05", lastRunStr.String); err == nil {
				ds.LastRun = t
			}
		}

		stats = append(stats, ds)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate device stats: %w", err)
	}

	return stats, nil
}

// PruneOlderThan removes run records older than the specified number of days.
// Returns the number of deleted records. Zero or negative keepDays keeps everything.
func (s *Store) PruneOlderThan(ctx context.Context, keepDays int) (int64, error) {
	if keepDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -keepDays)

	query := `DELETE FROM runs WHERE started_at < ?`
	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune old runs: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}

	return deleted, nil
}
