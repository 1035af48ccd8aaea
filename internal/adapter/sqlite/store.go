package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"

	"github.com/neomorfeo/enrolliq/internal/domain"

	_ "modernc.org/sqlite" // Register SQLite driver.
)

//go:embed migrations/*.sql
var migrations embed.FS

// Compile-time checks: Store implements the persistence ports.
var (
	_ domain.OfferingRepository   = (*Store)(nil)
	_ domain.EnrollmentRepository = (*Store)(nil)
	_ domain.LedgerStore          = (*Store)(nil)
)

// Store implements offering and enrollment persistence on SQLite. The
// per-offering critical section combines an in-process keyed mutex (the
// single-writer-per-key discipline) with a database transaction (atomic
// commit or rollback of every write in the section).
type Store struct {
	db *sql.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New opens a SQLite database, runs migrations, and returns a ready store.
func New(dataSourceName string) (*Store, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	// Enable foreign keys (off by default in SQLite).
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return NewFromDB(db)
}

// NewFromDB wraps an existing database connection, runs migrations, and
// returns a ready store. Use this when the *sql.DB has been pre-configured
// (e.g., with otelsql instrumentation).
func NewFromDB(db *sql.DB) (*Store, error) {
	if err := runMigrations(db); err != nil {
		return nil, err
	}

	return &Store{
		db:    db,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for use by other adapters
// (e.g., river).
func (s *Store) DB() *sql.DB {
	return s.db
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

// offeringLock returns the mutex serializing writers of one offering. Lock
// entries are never removed; the map grows with the number of distinct
// offerings touched by this process, which is bounded and small.
func (s *Store) offeringLock(tenantID, offeringID string) *sync.Mutex {
	key := tenantID + "/" + offeringID
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

// WithLedger runs fn inside the exclusive per-offering critical section. The
// section's writes commit atomically when fn returns nil and are discarded
// when it returns an error. The context is checked before the lock is taken
// so a cancelled caller aborts without side effects.
func (s *Store) WithLedger(ctx context.Context, tenantID, offeringID string, fn func(ctx context.Context, ledger domain.Ledger) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := s.offeringLock(tenantID, offeringID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning ledger transaction: %w", err)
	}

	ledger := &txLedger{tx: tx, tenantID: tenantID, offeringID: offeringID}

	if err := fn(ctx, ledger); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back after %w: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing ledger transaction: %w", err)
	}
	return nil
}
