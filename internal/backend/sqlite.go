// ABOUTME: SQLite implementation of service.Service using modernc.org/sqlite
// ABOUTME: Creates its schema on open and tracks in-flight calls as its activity level

package backend

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/recgate/internal/service"
)

// Version is reported in Status.
const Version = "1.0"

const (
	kindUser = "user"
	kindItem = "item"
)

// Store is a SQLite-backed Service.
type Store struct {
	db        *sql.DB
	name      string
	startedAt time.Time
	inFlight  atomic.Int64
	logger    *slog.Logger
}

// Open opens (or creates) the database at path. ":memory:" keeps everything in
// one private in-memory connection.
func Open(path, name string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "backend", "name", name)

	memory := path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if memory {
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{db: db, name: name, startedAt: time.Now().UTC(), logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("backend store initialized", "path", path)
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS ratings (
			user_id    INTEGER NOT NULL,
			item_id    INTEGER NOT NULL,
			value      REAL NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (user_id, item_id)
		);

		CREATE INDEX IF NOT EXISTS idx_ratings_item ON ratings(item_id);

		CREATE TABLE IF NOT EXISTS profiles (
			kind        TEXT NOT NULL,
			id          INTEGER NOT NULL,
			external_id TEXT NOT NULL DEFAULT '',
			attributes  TEXT NOT NULL DEFAULT '{}',
			PRIMARY KEY (kind, id),
			CHECK (kind IN ('user', 'item'))
		);

		CREATE INDEX IF NOT EXISTS idx_profiles_external ON profiles(kind, external_id);

		CREATE TABLE IF NOT EXISTS nominals (
			attribute    TEXT NOT NULL,
			idx          INTEGER NOT NULL,
			value        TEXT NOT NULL,
			parent_index INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (attribute, idx)
		);

		CREATE TABLE IF NOT EXISTS accounts (
			name          TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL,
			privileges    INTEGER NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// track counts a call as in flight until the returned func runs.
func (s *Store) track() func() {
	s.inFlight.Add(1)
	return func() { s.inFlight.Add(-1) }
}

// Activity reports the number of calls in flight.
func (s *Store) Activity(context.Context) (service.Activity, error) {
	return service.Activity{Level: float64(s.inFlight.Load())}, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Status reports table sizes and the current activity.
func (s *Store) Status(ctx context.Context) (*service.Status, error) {
	defer s.track()()

	st := &service.Status{
		Name:      s.name,
		Version:   Version,
		StartedAt: s.startedAt,
		Activity:  service.Activity{Level: float64(s.inFlight.Load() - 1)},
	}
	counts := []struct {
		dst   *int
		query string
	}{
		{&st.Users, `SELECT COUNT(*) FROM (SELECT user_id FROM ratings UNION SELECT id FROM profiles WHERE kind = 'user')`},
		{&st.Items, `SELECT COUNT(*) FROM (SELECT item_id FROM ratings UNION SELECT id FROM profiles WHERE kind = 'item')`},
		{&st.Ratings, `SELECT COUNT(*) FROM ratings`},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("counting: %w", err)
		}
	}
	return st, nil
}

var _ service.Service = (*Store)(nil)
