package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"sketchreel/internal/config"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const attemptColumns = "id, cycle_id, input_name, outcome, reason, exit_code, artifact_path, error_message, started_at, finished_at"

// Store records job attempts in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger at the configured state path.
func Open(cfg *config.Config) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	return OpenPath(cfg.LedgerPath())
}

// OpenPath initializes or connects to the ledger database at path.
func OpenPath(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends an attempt and returns its identifier.
func (s *Store) Record(ctx context.Context, attempt Attempt) (int64, error) {
	if strings.TrimSpace(attempt.InputName) == "" {
		return 0, errors.New("attempt input name required")
	}
	if attempt.Outcome == "" {
		return 0, errors.New("attempt outcome required")
	}
	if attempt.FinishedAt.IsZero() {
		attempt.FinishedAt = time.Now()
	}
	if attempt.StartedAt.IsZero() {
		attempt.StartedAt = attempt.FinishedAt
	}

	var exitCode any
	if attempt.ExitCode != nil {
		exitCode = *attempt.ExitCode
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (cycle_id, input_name, outcome, reason, exit_code, artifact_path, error_message, started_at, finished_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.CycleID,
		attempt.InputName,
		string(attempt.Outcome),
		nullableString(attempt.Reason),
		exitCode,
		nullableString(attempt.ArtifactPath),
		nullableString(attempt.ErrorMessage),
		formatTime(attempt.StartedAt),
		formatTime(attempt.FinishedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert attempt: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// Failures counts consecutive failed attempts for input since its most recent
// non-failed attempt (success or dead-letter).
func (s *Store) Failures(ctx context.Context, input string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM attempts
         WHERE input_name = ? AND outcome = ?
           AND id > COALESCE((SELECT MAX(id) FROM attempts WHERE input_name = ? AND outcome <> ?), 0)`,
		input, string(OutcomeFailed), input, string(OutcomeFailed),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count failures: %w", err)
	}
	return count, nil
}

// LastAttempt returns the most recent attempt for input, or nil.
func (s *Store) LastAttempt(ctx context.Context, input string) (*Attempt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE input_name = ? ORDER BY id DESC LIMIT 1`, input)
	attempt, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last attempt: %w", err)
	}
	return attempt, nil
}

// Recent returns up to limit attempts, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attemptColumns+` FROM attempts ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempts = append(attempts, *attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return attempts, nil
}

// Summary aggregates attempt counts by outcome.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	summary := Summary{Counts: make(map[Outcome]int)}

	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(1) FROM attempts GROUP BY outcome`)
	if err != nil {
		return summary, fmt.Errorf("summarize outcomes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			outcome string
			count   int
		)
		if err := rows.Scan(&outcome, &count); err != nil {
			return summary, fmt.Errorf("scan outcome count: %w", err)
		}
		summary.Counts[Outcome(outcome)] = count
		summary.Total += count
	}
	if err := rows.Err(); err != nil {
		return summary, fmt.Errorf("iterate outcome counts: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT input_name) FROM attempts`).Scan(&summary.Inputs); err != nil {
		return summary, fmt.Errorf("count inputs: %w", err)
	}

	var (
		finished sql.NullString
		cycleID  sql.NullString
	)
	err = s.db.QueryRowContext(ctx, `SELECT finished_at, cycle_id FROM attempts ORDER BY id DESC LIMIT 1`).Scan(&finished, &cycleID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return summary, fmt.Errorf("latest attempt: %w", err)
	}
	summary.LastFinished = parseTime(finished)
	summary.LastCycleID = cycleID.String
	return summary, nil
}

// Forget removes every attempt recorded for input and reports how many rows
// were deleted.
func (s *Store) Forget(ctx context.Context, input string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM attempts WHERE input_name = ?`, input)
	if err != nil {
		return 0, fmt.Errorf("forget input: %w", err)
	}
	return res.RowsAffected()
}

// Prune removes attempts that finished before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM attempts WHERE finished_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune attempts: %w", err)
	}
	return res.RowsAffected()
}

func scanAttempt(scanner interface{ Scan(dest ...any) error }) (*Attempt, error) {
	var (
		attempt     Attempt
		outcome     string
		reason      sql.NullString
		exitCode    sql.NullInt64
		artifact    sql.NullString
		errorText   sql.NullString
		startedRaw  sql.NullString
		finishedRaw sql.NullString
	)
	if err := scanner.Scan(
		&attempt.ID,
		&attempt.CycleID,
		&attempt.InputName,
		&outcome,
		&reason,
		&exitCode,
		&artifact,
		&errorText,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}
	attempt.Outcome = Outcome(outcome)
	attempt.Reason = reason.String
	if exitCode.Valid {
		code := int(exitCode.Int64)
		attempt.ExitCode = &code
	}
	attempt.ArtifactPath = artifact.String
	attempt.ErrorMessage = errorText.String
	attempt.StartedAt = parseTime(startedRaw)
	attempt.FinishedAt = parseTime(finishedRaw)
	return &attempt, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw sql.NullString) time.Time {
	if !raw.Valid || raw.String == "" {
		return time.Time{}
	}
	for _, layout := range []string{timeLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, raw.String); err == nil {
			return t
		}
	}
	return time.Time{}
}
