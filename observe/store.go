// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package observe

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gogpu/framegraph"
)

//go:embed schema.sql
var schemaFS embed.FS

// writeTimeout bounds the writes made through the Observer methods, which
// run on the frame path.
const writeTimeout = time.Second

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithRetention keeps at most maxRows rows per table, pruning after every
// `every` writes. maxRows <= 0 keeps everything.
func WithRetention(maxRows, every int) StoreOption {
	return func(s *Store) {
		s.maxRows = maxRows
		if every > 0 {
			s.pruneEvery = uint64(every)
		}
	}
}

// WithBusyTimeout sets the SQLite busy timeout.
func WithBusyTimeout(d time.Duration) StoreOption {
	return func(s *Store) { s.busyTimeout = d }
}

// Store persists section samples and warnings in SQLite. It implements
// framegraph.Observer; write errors on that path are logged and counted
// rather than returned.
type Store struct {
	db *sql.DB

	maxRows     int
	pruneEvery  uint64
	busyTimeout time.Duration

	opCount atomic.Uint64
	failed  atomic.Uint64
}

// OpenStore opens or creates the database at path.
func OpenStore(path string, opts ...StoreOption) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("observe: sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, maxRows: 100_000, pruneEvery: 500}
	for _, opt := range opts {
		opt(s)
	}

	if s.busyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", s.busyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, string(b)); err != nil {
		return fmt.Errorf("observe: migrate: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AppendSample stores one section sample.
func (s *Store) AppendSample(ctx context.Context, x framegraph.SectionSample) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO section_samples(at, frame, section, label, parallel, graphics_ns, compute_ns, sync_wait_ns)
		 VALUES(?,?,?,?,?,?,?,?)`,
		time.Now().Format(time.RFC3339Nano), int64(x.Frame), x.Section, x.Label, x.Parallel,
		int64(x.Graphics), int64(x.Compute), int64(x.SyncWait),
	)
	if err == nil {
		s.maybePrune()
	}
	return err
}

// AppendWarning stores one warning.
func (s *Store) AppendWarning(ctx context.Context, w framegraph.Warning) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO warnings(at, kind, section, label, graphics, compute, ratio)
		 VALUES(?,?,?,?,?,?,?)`,
		time.Now().Format(time.RFC3339Nano), w.Kind.String(), w.Section, w.Label, w.Graphics, w.Compute, w.Ratio,
	)
	if err == nil {
		s.maybePrune()
	}
	return err
}

// ObserveSection implements framegraph.Observer.
func (s *Store) ObserveSection(x framegraph.SectionSample) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	s.record(s.AppendSample(ctx, x))
}

// Warn implements framegraph.Observer.
func (s *Store) Warn(w framegraph.Warning) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	s.record(s.AppendWarning(ctx, w))
}

func (s *Store) record(err error) {
	if err != nil {
		s.failed.Add(1)
		framegraph.Logger().Warn("observe: sqlite write failed", "err", err)
	}
}

// Errors returns the number of failed writes through the Observer methods.
func (s *Store) Errors() uint64 { return s.failed.Load() }

func (s *Store) maybePrune() {
	if s.maxRows <= 0 || s.opCount.Add(1)%s.pruneEvery != 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Prune(ctx); err != nil {
		framegraph.Logger().Debug("observe: prune failed", "err", err)
	}
}

// Prune deletes the oldest rows beyond the retention limit.
func (s *Store) Prune(ctx context.Context) error {
	if s.maxRows <= 0 {
		return nil
	}
	for _, table := range []string{"section_samples", "warnings"} {
		q := fmt.Sprintf(`DELETE FROM %s WHERE id <= (SELECT id FROM %s ORDER BY id DESC LIMIT 1 OFFSET ?)`, table, table)
		if _, err := s.db.ExecContext(ctx, q, s.maxRows); err != nil {
			return fmt.Errorf("observe: prune %s: %w", table, err)
		}
	}
	return nil
}

// Samples returns up to limit samples of the labeled section, newest
// first. An empty label matches every section.
func (s *Store) Samples(ctx context.Context, label string, limit int) ([]framegraph.SectionSample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT frame, section, label, parallel, graphics_ns, compute_ns, sync_wait_ns
		 FROM section_samples WHERE ? = '' OR label = ? ORDER BY id DESC LIMIT ?`,
		label, label, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []framegraph.SectionSample
	for rows.Next() {
		var x framegraph.SectionSample
		var frame, g, c, w int64
		if err := rows.Scan(&frame, &x.Section, &x.Label, &x.Parallel, &g, &c, &w); err != nil {
			return nil, err
		}
		x.Frame = uint64(frame)
		x.Graphics, x.Compute, x.SyncWait = time.Duration(g), time.Duration(c), time.Duration(w)
		out = append(out, x)
	}
	return out, rows.Err()
}

// Warnings returns up to limit warnings, newest first.
func (s *Store) Warnings(ctx context.Context, limit int) ([]framegraph.Warning, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, section, label, graphics, compute, ratio FROM warnings ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []framegraph.Warning
	for rows.Next() {
		var w framegraph.Warning
		var kind string
		if err := rows.Scan(&kind, &w.Section, &w.Label, &w.Graphics, &w.Compute, &w.Ratio); err != nil {
			return nil, err
		}
		switch kind {
		case framegraph.WarnNegativeSpeedup.String():
			w.Kind = framegraph.WarnNegativeSpeedup
		default:
			w.Kind = framegraph.WarnImbalance
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Summary aggregates the stored samples of one section into an A/B
// comparison of its sequential and parallel runs.
type Summary struct {
	Label string

	Sequential int
	Parallel   int

	// Mean wall time of each kind of run.
	SequentialWall time.Duration
	ParallelWall   time.Duration
}

// Verdict turns the summary into the measured signal of the capability
// policy.
func (s Summary) Verdict(margin float64) framegraph.Tristate {
	return framegraph.MeasureSpeedup(s.SequentialWall, s.ParallelWall, margin)
}

// Summarize aggregates the samples stored for label.
func (s *Store) Summarize(ctx context.Context, label string) (Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT parallel, COUNT(*),
		        AVG(CASE WHEN parallel THEN MAX(graphics_ns, compute_ns) + sync_wait_ns
		                 ELSE graphics_ns + compute_ns + sync_wait_ns END)
		 FROM section_samples WHERE label = ? GROUP BY parallel`,
		label,
	)
	if err != nil {
		return Summary{}, err
	}
	defer rows.Close()

	sum := Summary{Label: label}
	for rows.Next() {
		var parallel bool
		var n int
		var wall float64
		if err := rows.Scan(&parallel, &n, &wall); err != nil {
			return Summary{}, err
		}
		if parallel {
			sum.Parallel, sum.ParallelWall = n, time.Duration(wall)
		} else {
			sum.Sequential, sum.SequentialWall = n, time.Duration(wall)
		}
	}
	return sum, rows.Err()
}
