package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/arena/internal/domain/battle"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/types"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const defaultBusyTimeout = 5 * time.Second

// SQLiteStore implements Store on SQLite.
type SQLiteStore struct {
	db          *sql.DB
	now         func() time.Time
	busyTimeout time.Duration
}

var _ Store = (*SQLiteStore)(nil)

// Open opens (and creates if needed) the database at path.
func Open(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	s := &SQLiteStore{now: time.Now, busyTimeout: defaultBusyTimeout}
	for _, opt := range opts {
		opt(s)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		path, s.busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	s.db = db
	return s, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS models (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			version TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			model_type TEXT NOT NULL DEFAULT '',
			parameters_count TEXT NOT NULL DEFAULT '',
			owner_id TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			active INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL,
			updated_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS benchmarks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			model_id INTEGER NOT NULL REFERENCES models(id),
			submission_id TEXT UNIQUE,
			test_name TEXT NOT NULL,
			accuracy REAL,
			speed_ms REAL,
			memory_mb REAL,
			throughput REAL,
			latency_p50 REAL,
			latency_p95 REAL,
			latency_p99 REAL,
			test_dataset TEXT NOT NULL DEFAULT '',
			test_size INTEGER,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_benchmarks_model_created ON benchmarks(model_id, created_at DESC, id DESC);`,
		`CREATE TABLE IF NOT EXISTS battles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			model_a_id INTEGER NOT NULL REFERENCES models(id),
			model_b_id INTEGER NOT NULL REFERENCES models(id),
			winner_id INTEGER REFERENCES models(id),
			mode TEXT NOT NULL,
			config TEXT NOT NULL DEFAULT '{}',
			results TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_battles_created ON battles(created_at DESC, id DESC);`,
	}
	for _, q := range queries {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Models.

const modelColumns = `id, name, version, description, model_type, parameters_count, owner_id, metadata, active, created_at, updated_at`

func (s *SQLiteStore) CreateModel(ctx context.Context, m model.Model) (model.Model, error) {
	meta, err := encodeJSON(m.Metadata)
	if err != nil {
		return model.Model{}, err
	}
	m.CreatedAt = s.now().UTC()
	m.UpdatedAt = nil
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO models (name, version, description, model_type, parameters_count, owner_id, metadata, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Name, m.Version, m.Description, string(m.Type), m.ParametersCount, m.OwnerID, meta, m.Active, m.CreatedAt.UnixNano())
	if err != nil {
		return model.Model{}, wrapWriteErr("model "+m.Name, err)
	}
	if m.ID, err = res.LastInsertId(); err != nil {
		return model.Model{}, err
	}
	if m.Metadata == nil {
		m.Metadata = map[string]any{}
	}
	return m, nil
}

func (s *SQLiteStore) UpdateModel(ctx context.Context, m model.Model) (model.Model, error) {
	meta, err := encodeJSON(m.Metadata)
	if err != nil {
		return model.Model{}, err
	}
	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE models SET name = ?, description = ?, metadata = ?, active = ?, updated_at = ? WHERE id = ?`,
		m.Name, m.Description, meta, m.Active, now.UnixNano(), m.ID)
	if err != nil {
		return model.Model{}, wrapWriteErr("model "+m.Name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Model{}, fmt.Errorf("model %d: %w", m.ID, ErrNotFound)
	}
	return s.GetModel(ctx, m.ID)
}

func (s *SQLiteStore) GetModel(ctx context.Context, id int64) (model.Model, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+modelColumns+` FROM models WHERE id = ?`, id)
	m, err := scanModel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Model{}, fmt.Errorf("model %d: %w", id, ErrNotFound)
	}
	return m, err
}

func (s *SQLiteStore) ListModels(ctx context.Context, f ModelFilter) ([]model.Model, error) {
	if f.Limit <= 0 || f.Offset < 0 {
		return nil, ErrInvalidLimit
	}
	var (
		where []string
		args  []any
	)
	if f.Type != "" {
		where = append(where, "model_type = ?")
		args = append(args, string(f.Type))
	}
	if f.Active != nil {
		where = append(where, "active = ?")
		args = append(args, *f.Active)
	}
	q := `SELECT ` + modelColumns + ` FROM models`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []model.Model{}
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanModel(r scanner) (model.Model, error) {
	var (
		m       model.Model
		typ     string
		meta    string
		created int64
		updated sql.NullInt64
	)
	if err := r.Scan(&m.ID, &m.Name, &m.Version, &m.Description, &typ, &m.ParametersCount,
		&m.OwnerID, &meta, &m.Active, &created, &updated); err != nil {
		return model.Model{}, err
	}
	m.Type = model.Type(typ)
	m.CreatedAt = time.Unix(0, created).UTC()
	if updated.Valid {
		t := time.Unix(0, updated.Int64).UTC()
		m.UpdatedAt = &t
	}
	if err := json.Unmarshal([]byte(meta), &m.Metadata); err != nil {
		return model.Model{}, fmt.Errorf("decode model metadata: %w", err)
	}
	if m.Metadata == nil {
		m.Metadata = map[string]any{}
	}
	return m, nil
}

// Benchmarks.

const benchmarkColumns = `id, model_id, submission_id, test_name, accuracy, speed_ms, memory_mb, throughput,
	latency_p50, latency_p95, latency_p99, test_dataset, test_size, metadata, created_at`

func (s *SQLiteStore) CreateBenchmark(ctx context.Context, b model.Benchmark) (model.Benchmark, error) {
	meta, err := encodeJSON(b.Metadata)
	if err != nil {
		return model.Benchmark{}, err
	}
	b.CreatedAt = s.now().UTC()
	if b.RecordedAt.IsZero() {
		b.RecordedAt = b.CreatedAt
	}
	var submission any
	if b.SubmissionID != "" {
		submission = b.SubmissionID
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO benchmarks (model_id, submission_id, test_name, accuracy, speed_ms, memory_mb, throughput,
			latency_p50, latency_p95, latency_p99, test_dataset, test_size, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ModelID, submission, b.TestName, b.Accuracy, b.SpeedMS, b.MemoryMB, b.Throughput,
		b.LatencyP50, b.LatencyP95, b.LatencyP99, b.TestDataset, b.SampleSize, meta, b.CreatedAt.UnixNano())
	if err != nil {
		return model.Benchmark{}, wrapWriteErr("benchmark "+b.SubmissionID, err)
	}
	if b.ID, err = res.LastInsertId(); err != nil {
		return model.Benchmark{}, err
	}
	if b.Metadata == nil {
		b.Metadata = map[string]any{}
	}
	return b, nil
}

func (s *SQLiteStore) BenchmarkBySubmission(ctx context.Context, submissionID string) (model.Benchmark, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+benchmarkColumns+` FROM benchmarks WHERE submission_id = ?`, submissionID)
	b, err := scanBenchmark(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Benchmark{}, fmt.Errorf("submission %s: %w", submissionID, ErrNotFound)
	}
	return b, err
}

func (s *SQLiteStore) LatestBenchmark(ctx context.Context, modelID int64) (model.Benchmark, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+benchmarkColumns+` FROM benchmarks WHERE model_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`, modelID)
	b, err := scanBenchmark(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Benchmark{}, fmt.Errorf("benchmarks of model %d: %w", modelID, ErrNotFound)
	}
	return b, err
}

func (s *SQLiteStore) ListBenchmarks(ctx context.Context, modelID int64, limit int) ([]model.Benchmark, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+benchmarkColumns+` FROM benchmarks WHERE model_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, modelID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []model.Benchmark{}
	for rows.Next() {
		b, err := scanBenchmark(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBenchmark(r scanner) (model.Benchmark, error) {
	var (
		b          model.Benchmark
		submission sql.NullString
		meta       string
		created    int64
	)
	if err := r.Scan(&b.ID, &b.ModelID, &submission, &b.TestName, &b.Accuracy, &b.SpeedMS, &b.MemoryMB, &b.Throughput,
		&b.LatencyP50, &b.LatencyP95, &b.LatencyP99, &b.TestDataset, &b.SampleSize, &meta, &created); err != nil {
		return model.Benchmark{}, err
	}
	b.SubmissionID = submission.String
	b.CreatedAt = time.Unix(0, created).UTC()
	b.RecordedAt = b.CreatedAt
	if err := json.Unmarshal([]byte(meta), &b.Metadata); err != nil {
		return model.Benchmark{}, fmt.Errorf("decode benchmark metadata: %w", err)
	}
	if b.Metadata == nil {
		b.Metadata = map[string]any{}
	}
	return b, nil
}

// Battles.

func (s *SQLiteStore) CreateBattle(ctx context.Context, r battle.Record) (battle.Record, error) {
	cfg, err := encodeJSON(r.Config)
	if err != nil {
		return battle.Record{}, err
	}
	results, err := json.Marshal(r.Results)
	if err != nil {
		return battle.Record{}, fmt.Errorf("encode battle results: %w", err)
	}
	r.CreatedAt = s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO battles (model_a_id, model_b_id, winner_id, mode, config, results, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ModelA, r.ModelB, r.WinnerID, string(r.Mode), cfg, string(results), r.CreatedAt.UnixNano())
	if err != nil {
		return battle.Record{}, wrapWriteErr("battle", err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return battle.Record{}, err
	}
	return r, nil
}

func (s *SQLiteStore) RecentBattles(ctx context.Context, limit int) ([]battle.Record, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, model_a_id, model_b_id, winner_id, mode, config, results, created_at
		 FROM battles ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []battle.Record{}
	for rows.Next() {
		var (
			r       battle.Record
			mode    string
			cfg     string
			results string
			created int64
		)
		if err := rows.Scan(&r.ID, &r.ModelA, &r.ModelB, &r.WinnerID, &mode, &cfg, &results, &created); err != nil {
			return nil, err
		}
		r.Mode = battle.Mode(mode)
		r.CreatedAt = time.Unix(0, created).UTC()
		if err := json.Unmarshal([]byte(cfg), &r.Config); err != nil {
			return nil, fmt.Errorf("decode battle config: %w", err)
		}
		if err := json.Unmarshal([]byte(results), &r.Results); err != nil {
			return nil, fmt.Errorf("decode battle results: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const leaderboardQuery = `
WITH battle_stats AS (
	SELECT
		m.id,
		m.name,
		m.version,
		COUNT(DISTINCT b.id) AS total_battles,
		COUNT(DISTINCT CASE WHEN b.winner_id = m.id THEN b.id END) AS wins
	FROM models m
	LEFT JOIN battles b
		ON (m.id = b.model_a_id OR m.id = b.model_b_id) AND (? = '' OR b.mode = ?)
	WHERE m.active = 1
	GROUP BY m.id, m.name, m.version
)
SELECT
	id,
	name,
	version,
	total_battles,
	wins,
	ROUND(CAST(wins AS REAL) / total_battles * 100, 2) AS win_rate
FROM battle_stats
WHERE total_battles > 0
ORDER BY win_rate DESC, total_battles DESC, id ASC
LIMIT ?`

func (s *SQLiteStore) Leaderboard(ctx context.Context, mode battle.Mode, limit int) ([]types.Entry, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	rows, err := s.db.QueryContext(ctx, leaderboardQuery, string(mode), string(mode), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []types.Entry{}
	for rows.Next() {
		var e types.Entry
		if err := rows.Scan(&e.ModelID, &e.Name, &e.Version, &e.TotalBattles, &e.Wins, &e.WinRate); err != nil {
			return nil, err
		}
		e.Rank = len(out) + 1
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM models), (SELECT COUNT(*) FROM benchmarks), (SELECT COUNT(*) FROM battles)`).
		Scan(&c.Models, &c.Benchmarks, &c.Battles)
	return c, err
}

func encodeJSON(v map[string]any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode json column: %w", err)
	}
	return string(raw), nil
}

// wrapWriteErr maps constraint violations to ErrConflict.
func wrapWriteErr(what string, err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%s: %w", what, ErrConflict)
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%s: %w", what, ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}
