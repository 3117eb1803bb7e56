package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"strategy-sim/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a dataset or run does not exist.
var ErrNotFound = errors.New("sqlite: not found")

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/sim.db"
}

// Store persists datasets and the run journal in one SQLite database.
// Writes are serialized through a single connection.
type Store struct {
	mu sync.Mutex
	db *sql.DB

	// OnCommit, when set, observes the latency of each write transaction.
	OnCommit func(time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database with WAL mode and creates the schema.
func New(cfg Config) (*Store, error) {
	dsn := cfg.DBPath
	if dsn == "" {
		return nil, errors.New("sqlite: empty db path")
	}
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		dsn += "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS datasets (
			name       TEXT    PRIMARY KEY,
			candles    INTEGER NOT NULL,
			first_ts   TEXT    NOT NULL,
			last_ts    TEXT    NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS candles (
			dataset TEXT    NOT NULL REFERENCES datasets(name) ON DELETE CASCADE,
			seq     INTEGER NOT NULL,
			ts      TEXT    NOT NULL,
			open    REAL    NOT NULL,
			high    REAL    NOT NULL,
			low     REAL    NOT NULL,
			close   REAL    NOT NULL,
			volume  REAL    NOT NULL,
			PRIMARY KEY (dataset, seq)
		);

		CREATE TABLE IF NOT EXISTS runs (
			run_id           TEXT    PRIMARY KEY,
			session          TEXT    NOT NULL,
			dataset          TEXT    NOT NULL,
			strategy         TEXT    NOT NULL,
			initial_capital  REAL    NOT NULL,
			final_value      REAL    NOT NULL,
			return_pct       REAL    NOT NULL,
			max_drawdown_pct REAL    NOT NULL,
			trades           INTEGER NOT NULL,
			steps            INTEGER NOT NULL,
			created_at       INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_dataset ON runs(dataset, strategy);

		CREATE TABLE IF NOT EXISTS trades (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id    TEXT    NOT NULL,
			idx       INTEGER NOT NULL,
			ts        TEXT    NOT NULL,
			side      TEXT    NOT NULL,
			price     REAL    NOT NULL,
			qty       INTEGER NOT NULL,
			reason    TEXT,
			UNIQUE (run_id, idx)
		);

		CREATE TABLE IF NOT EXISTS equity (
			run_id TEXT    NOT NULL,
			idx    INTEGER NOT NULL,
			ts     TEXT    NOT NULL,
			value  REAL    NOT NULL,
			PRIMARY KEY (run_id, idx)
		);
	`)
	return err
}

// tx runs fn in a write transaction and reports the commit latency.
func (s *Store) tx(ctx context.Context, fn func(*sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if s.OnCommit != nil {
		s.OnCommit(time.Since(start))
	}
	return nil
}

// SaveDataset replaces the named dataset with candles in a single transaction.
func (s *Store) SaveDataset(ctx context.Context, name string, candles []model.Candle) error {
	if name == "" {
		return errors.New("sqlite: empty dataset name")
	}
	if len(candles) == 0 {
		return fmt.Errorf("sqlite: dataset %q has no candles", name)
	}
	err := s.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM candles WHERE dataset = ?`, name); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO datasets (name, candles, first_ts, last_ts, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, name, len(candles), candles[0].Timestamp, candles[len(candles)-1].Timestamp, time.Now().Unix())
		if err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO candles (dataset, seq, ts, open, high, low, close, volume)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, c := range candles {
			if _, err := stmt.ExecContext(ctx, name, i, c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlite save dataset %q: %w", name, err)
	}
	log.Printf("[sqlite] saved dataset %q (%d candles)", name, len(candles))
	return nil
}

// DeleteDataset removes a dataset and its candles.
func (s *Store) DeleteDataset(ctx context.Context, name string) error {
	var n int64
	err := s.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM candles WHERE dataset = ?`, name); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM datasets WHERE name = ?`, name)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("sqlite delete dataset %q: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("dataset %q: %w", name, ErrNotFound)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
