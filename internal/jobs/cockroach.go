package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// CockroachConfig bounds the connection pool of a CockroachStore.
type CockroachConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

func defaultCockroachConfig() *CockroachConfig {
	return &CockroachConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// CockroachStore is a Store over CockroachDB (or plain Postgres; the SQL
// stays in the shared subset). Job results round-trip through a JSONB
// column.
type CockroachStore struct {
	db *sql.DB
}

const createJobsTable = `
CREATE TABLE IF NOT EXISTS tool_jobs (
	id            TEXT PRIMARY KEY,
	tool_name     TEXT NOT NULL,
	tool_call_id  TEXT NOT NULL,
	status        TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	started_at    TIMESTAMPTZ,
	finished_at   TIMESTAMPTZ,
	result        JSONB,
	error_message TEXT
)`

const jobColumns = "id, tool_name, tool_call_id, status, created_at, started_at, finished_at, result, error_message"

// NewCockroachStoreFromDSN opens, pings, and bootstraps the tool_jobs
// table.
func NewCockroachStoreFromDSN(dsn string, config *CockroachConfig) (*CockroachStore, error) {
	if dsn == "" {
		return nil, errors.New("dsn is required")
	}
	if config == nil {
		config = defaultCockroachConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, createJobsTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure tool_jobs table: %w", err)
	}
	return &CockroachStore{db: db}, nil
}

// NewCockroachStore wraps an existing connection without pinging or
// bootstrapping; the caller owns the schema. Used by tests.
func NewCockroachStore(db *sql.DB) *CockroachStore {
	return &CockroachStore{db: db}
}

// Close releases database resources.
func (s *CockroachStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *CockroachStore) Create(ctx context.Context, job *Job) error {
	if job == nil {
		return nil
	}
	args, err := insertArgs(job)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tool_jobs (`+jobColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, args...)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *CockroachStore) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return nil
	}
	args, err := insertArgs(job)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE tool_jobs
		SET tool_name = $2, tool_call_id = $3, status = $4, created_at = $5,
			started_at = $6, finished_at = $7, result = $8, error_message = $9
		WHERE id = $1`, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func (s *CockroachStore) Get(ctx context.Context, id string) (*Job, error) {
	if id == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM tool_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns jobs newest-first.
func (s *CockroachStore) List(ctx context.Context, limit, offset int) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM tool_jobs ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return out, nil
}

func (s *CockroachStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tool_jobs WHERE created_at < $1`, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return n, nil
}

// Cancel fails a queued or running job; the WHERE clause leaves terminal
// rows untouched so a late cancel cannot clobber a recorded result.
func (s *CockroachStore) Cancel(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE tool_jobs
		SET status = $2, error_message = $3, finished_at = $4
		WHERE id = $1 AND status IN ($5, $6)`,
		id, string(StatusFailed), "job cancelled", time.Now(),
		string(StatusQueued), string(StatusRunning))
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	return nil
}

func insertArgs(job *Job) ([]any, error) {
	var resultJSON []byte
	if job.Result != nil {
		var err error
		if resultJSON, err = json.Marshal(job.Result); err != nil {
			return nil, fmt.Errorf("marshal job result: %w", err)
		}
	}
	return []any{
		job.ID, job.ToolName, job.ToolCallID, string(job.Status), job.CreatedAt,
		nullTime(job.StartedAt), nullTime(job.FinishedAt), resultJSON, nullString(job.Error),
	}, nil
}

func scanJob(row interface{ Scan(...any) error }) (*Job, error) {
	var (
		job        Job
		status     string
		startedAt  sql.NullTime
		finishedAt sql.NullTime
		result     []byte
		errMsg     sql.NullString
	)
	if err := row.Scan(&job.ID, &job.ToolName, &job.ToolCallID, &status, &job.CreatedAt,
		&startedAt, &finishedAt, &result, &errMsg); err != nil {
		return nil, err
	}
	job.Status = Status(status)
	job.StartedAt = startedAt.Time
	job.FinishedAt = finishedAt.Time
	if len(result) > 0 {
		var r ToolResult
		if err := json.Unmarshal(result, &r); err != nil {
			return nil, fmt.Errorf("unmarshal job result: %w", err)
		}
		job.Result = &r
	}
	if errMsg.Valid {
		job.Error = errMsg.String
	}
	return &job, nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullTime(v time.Time) sql.NullTime {
	return sql.NullTime{Time: v, Valid: !v.IsZero()}
}
