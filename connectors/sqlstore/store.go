// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sqlstore keeps the run history in PostgreSQL or MySQL.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver

	"creditlens/platform/connectors/base"
	"creditlens/platform/orchestrator/history"
)

// Dialect holds the driver-specific SQL.
type Dialect struct {
	Driver      string
	CreateTable string
	Upsert      string
	SelectOne   string
	SelectMany  string
}

// Postgres is the lib/pq dialect.
var Postgres = Dialect{
	Driver: "postgres",
	CreateTable: `CREATE TABLE IF NOT EXISTS creditlens_runs (
		run_id VARCHAR(64) PRIMARY KEY,
		strategy VARCHAR(32) NOT NULL,
		status VARCHAR(16) NOT NULL,
		record JSONB NOT NULL,
		error TEXT,
		started_at TIMESTAMPTZ NOT NULL,
		duration_ms BIGINT NOT NULL
	)`,
	Upsert: `INSERT INTO creditlens_runs (run_id, strategy, status, record, error, started_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id) DO UPDATE SET strategy = EXCLUDED.strategy, status = EXCLUDED.status,
		record = EXCLUDED.record, error = EXCLUDED.error, started_at = EXCLUDED.started_at,
		duration_ms = EXCLUDED.duration_ms`,
	SelectOne:  `SELECT record FROM creditlens_runs WHERE run_id = $1`,
	SelectMany: `SELECT record FROM creditlens_runs ORDER BY started_at DESC LIMIT $1`,
}

// MySQL is the go-sql-driver/mysql dialect.
var MySQL = Dialect{
	Driver: "mysql",
	CreateTable: `CREATE TABLE IF NOT EXISTS creditlens_runs (
		run_id VARCHAR(64) PRIMARY KEY,
		strategy VARCHAR(32) NOT NULL,
		status VARCHAR(16) NOT NULL,
		record JSON NOT NULL,
		error TEXT,
		started_at DATETIME(6) NOT NULL,
		duration_ms BIGINT NOT NULL
	)`,
	Upsert: `INSERT INTO creditlens_runs (run_id, strategy, status, record, error, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE strategy = VALUES(strategy), status = VALUES(status),
		record = VALUES(record), error = VALUES(error), started_at = VALUES(started_at),
		duration_ms = VALUES(duration_ms)`,
	SelectOne:  `SELECT record FROM creditlens_runs WHERE run_id = ?`,
	SelectMany: `SELECT record FROM creditlens_runs ORDER BY started_at DESC LIMIT ?`,
}

// DialectFor returns the dialect for a driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "postgres", "postgresql":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported history driver %q", driver)
	}
}

// Store is a history.Store over database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *log.Logger
}

var _ history.Store = (*Store)(nil)

// Open connects, configures the pool and creates the table.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, base.NewConnectorError(dialect.Driver, "Connect", "failed to open connection", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, base.NewConnectorError(dialect.Driver, "Connect", "failed to ping database", err)
	}

	s := New(db, dialect)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Printf("Connected to %s run history", dialect.Driver)
	return s, nil
}

// New wraps an open database.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		logger:  log.New(os.Stdout, "[RUN_HISTORY] ", log.LstdFlags),
	}
}

// Migrate creates the runs table if needed.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.CreateTable); err != nil {
		return base.NewConnectorError(s.dialect.Driver, "Migrate", "failed to create runs table", err)
	}
	return nil
}

// Save inserts or replaces a run record.
func (s *Store) Save(ctx context.Context, rec *history.RunRecord) error {
	if rec == nil || rec.ID == "" {
		return errors.New("run record has no id")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode run record: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.dialect.Upsert,
		rec.ID, rec.Strategy, rec.Status, string(data), rec.Error, rec.StartedAt.UTC(), rec.DurationMs)
	if err != nil {
		return base.NewConnectorError(s.dialect.Driver, "Save", "failed to save run "+rec.ID, err)
	}
	return nil
}

// Get loads one run record.
func (s *Store) Get(ctx context.Context, id string) (*history.RunRecord, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, s.dialect.SelectOne, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, history.ErrRunNotFound
	}
	if err != nil {
		return nil, base.NewConnectorError(s.dialect.Driver, "Get", "failed to load run "+id, err)
	}
	return decode(raw)
}

// List loads the newest records.
func (s *Store) List(ctx context.Context, limit int) ([]*history.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.SelectMany, limit)
	if err != nil {
		return nil, base.NewConnectorError(s.dialect.Driver, "List", "failed to list runs", err)
	}
	defer rows.Close()

	var out []*history.RunRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, base.NewConnectorError(s.dialect.Driver, "List", "failed to scan run", err)
		}
		rec, err := decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, base.NewConnectorError(s.dialect.Driver, "List", "row iteration failed", err)
	}
	return out, nil
}

// HealthCheck pings the database.
func (s *Store) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	start := time.Now()
	err := s.db.PingContext(ctx)
	status := &base.HealthStatus{
		Healthy:   err == nil,
		Latency:   time.Since(start),
		Details:   map[string]string{"driver": s.dialect.Driver},
		Timestamp: time.Now(),
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func decode(raw string) (*history.RunRecord, error) {
	var rec history.RunRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode run record: %w", err)
	}
	return &rec, nil
}
