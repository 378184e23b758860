package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/anizozina/nestjs-als-vs-request-scope/internal/benchmark"
)

const schema = `
CREATE TABLE IF NOT EXISTS bench_runs (
	run_id           TEXT PRIMARY KEY,
	created_at       TIMESTAMPTZ NOT NULL,
	base_url         TEXT NOT NULL,
	connections      INTEGER NOT NULL,
	duration_seconds INTEGER NOT NULL,
	pipelining       INTEGER NOT NULL,
	report           JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS bench_endpoint_results (
	run_id              TEXT NOT NULL REFERENCES bench_runs(run_id) ON DELETE CASCADE,
	name                TEXT NOT NULL,
	path                TEXT NOT NULL,
	rps                 DOUBLE PRECISION NOT NULL,
	latency_mean_ms     DOUBLE PRECISION NOT NULL,
	latency_p50_ms      DOUBLE PRECISION NOT NULL,
	latency_p95_ms      DOUBLE PRECISION NOT NULL,
	latency_p99_ms      DOUBLE PRECISION NOT NULL,
	throughput_bps      DOUBLE PRECISION NOT NULL,
	mem_avg_mb          DOUBLE PRECISION,
	mem_peak_mb         DOUBLE PRECISION,
	cpu_avg_percent     DOUBLE PRECISION,
	cpu_limit           DOUBLE PRECISION,
	heap_peak_mb        DOUBLE PRECISION,
	heap_avg_mb         DOUBLE PRECISION,
	rps_ratio_percent   DOUBLE PRECISION,
	degradation_percent DOUBLE PRECISION,
	PRIMARY KEY (run_id, name)
)`

const insertRun = `INSERT INTO bench_runs
	(run_id, created_at, base_url, connections, duration_seconds, pipelining, report)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

const insertResult = `INSERT INTO bench_endpoint_results
	(run_id, name, path, rps, latency_mean_ms, latency_p50_ms, latency_p95_ms, latency_p99_ms,
	 throughput_bps, mem_avg_mb, mem_peak_mb, cpu_avg_percent, cpu_limit, heap_peak_mb, heap_avg_mb,
	 rps_ratio_percent, degradation_percent)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

// Store keeps a history of benchmark runs in PostgreSQL
type Store struct {
	db *sql.DB
}

// Open connects to dsn and verifies the connection
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the history tables if they do not exist
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create history tables: %w", err)
	}
	return nil
}

// SaveReport records the run and each endpoint result in one transaction
func (s *Store) SaveReport(ctx context.Context, report benchmark.Report) error {
	report = report.Rounded()

	doc, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	cfg := report.Config
	if _, err := tx.ExecContext(ctx, insertRun,
		report.RunID, report.Timestamp, cfg.URL,
		cfg.Connections, cfg.DurationSeconds, cfg.Pipelining, string(doc),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, r := range report.Results {
		ratio := report.Comparison[r.Name]
		if _, err := tx.ExecContext(ctx, insertResult,
			report.RunID, r.Name, r.Path, r.RPS,
			r.Latency.Mean, r.Latency.P50, r.Latency.P95, r.Latency.P99,
			r.ThroughputBytesPerSec,
			r.CgroupStats.MemAvgMB, r.CgroupStats.MemPeakMB,
			r.CgroupStats.CPUAvgPercent, r.CgroupStats.CPULimit,
			r.ProcessStats.PeakHeapMB, r.ProcessStats.AvgHeapMB,
			ratio.RPSRatioPercent, ratio.DegradationPercent,
		); err != nil {
			return fmt.Errorf("insert result %s: %w", r.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
