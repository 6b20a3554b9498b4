package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"kiln/internal/config"
)

// Store manages build job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the job database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, "jobs.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the on-disk database location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// New inserts a queued job for a template and target.
func (s *Store) New(ctx context.Context, templateRef string, target Target, overridesJSON string) (*Job, error) {
	if templateRef == "" {
		return nil, errors.New("template ref required")
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	id := uuid.NewString()

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO build_jobs (
            id, template_ref, target, status, overrides_json, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id,
		templateRef,
		string(target),
		string(StatusQueued),
		nullableString(overridesJSON),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a job by identifier. Returns nil when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM build_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Update persists changes to an existing job.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE build_jobs
         SET template_ref = ?, target = ?, status = ?, overrides_json = ?,
             error_message = ?, last_log_line = ?, result_ref = ?,
             web_archive_ref = ?, web_entry_ref = ?, android_package_ref = ?,
             cover_ref = ?, screenshot_refs_json = ?, video_ref = ?,
             timings_json = ?, started_at = ?, finished_at = ?, updated_at = ?
         WHERE id = ?`,
		job.TemplateRef,
		string(job.Target),
		string(job.Status),
		nullableString(job.OverridesJSON),
		nullableString(job.ErrorMessage),
		nullableString(job.LastLogLine),
		nullableString(job.ResultRef),
		nullableString(job.WebArchiveRef),
		nullableString(job.WebEntryRef),
		nullableString(job.AndroidPackageRef),
		nullableString(job.CoverRef),
		nullableString(job.ScreenshotRefsJSON),
		nullableString(job.VideoRef),
		nullableString(job.TimingsJSON),
		nullableTime(job.StartedAt),
		nullableTime(job.FinishedAt),
		job.UpdatedAt.Format(time.RFC3339Nano),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// UpdateLastLogLine persists only the throttled progress line for a job.
func (s *Store) UpdateLastLogLine(ctx context.Context, id, line string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE build_jobs SET last_log_line = ?, updated_at = ? WHERE id = ?`,
		nullableString(line),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("update last log line: %w", err)
	}
	return nil
}

// List returns jobs filtered by status set (or all jobs when none given),
// newest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + jobColumns + ` FROM build_jobs`
	orderClause := ` ORDER BY created_at DESC`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = string(status)
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// ResetStuckRunning fails jobs left running by a previous daemon process.
func (s *Store) ResetStuckRunning(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE build_jobs
         SET status = ?, error_message = ?, finished_at = ?, updated_at = ?
         WHERE status IN (?, ?)`,
		string(StatusFailed),
		RestartReason,
		now,
		now,
		string(StatusQueued),
		string(StatusRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck jobs: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM build_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

const jobColumns = "id, template_ref, target, status, overrides_json, error_message, last_log_line, result_ref, web_archive_ref, web_entry_ref, android_package_ref, cover_ref, screenshot_refs_json, video_ref, timings_json, started_at, finished_at, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id             string
		templateRef    string
		targetStr      string
		statusStr      string
		overrides      sql.NullString
		errorMessage   sql.NullString
		lastLogLine    sql.NullString
		resultRef      sql.NullString
		webArchiveRef  sql.NullString
		webEntryRef    sql.NullString
		androidPkgRef  sql.NullString
		coverRef       sql.NullString
		screenshotRefs sql.NullString
		videoRef       sql.NullString
		timings        sql.NullString
		startedRaw     sql.NullString
		finishedRaw    sql.NullString
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&templateRef,
		&targetStr,
		&statusStr,
		&overrides,
		&errorMessage,
		&lastLogLine,
		&resultRef,
		&webArchiveRef,
		&webEntryRef,
		&androidPkgRef,
		&coverRef,
		&screenshotRefs,
		&videoRef,
		&timings,
		&startedRaw,
		&finishedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:                 id,
		TemplateRef:        templateRef,
		Target:             Target(targetStr),
		Status:             Status(statusStr),
		OverridesJSON:      overrides.String,
		ErrorMessage:       errorMessage.String,
		LastLogLine:        lastLogLine.String,
		ResultRef:          resultRef.String,
		WebArchiveRef:      webArchiveRef.String,
		WebEntryRef:        webEntryRef.String,
		AndroidPackageRef:  androidPkgRef.String,
		CoverRef:           coverRef.String,
		ScreenshotRefsJSON: screenshotRefs.String,
		VideoRef:           videoRef.String,
		TimingsJSON:        timings.String,
	}
	if started, err := parseTimeString(startedRaw.String); err == nil {
		job.StartedAt = &started
	}
	if finished, err := parseTimeString(finishedRaw.String); err == nil {
		job.FinishedAt = &finished
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
