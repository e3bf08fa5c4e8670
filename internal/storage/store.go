// Package storage implements the persistence layer (C2): two embedded
// SQLite databases, WAL-journaled, single-writer per database. The
// "memory" database holds conversations, facts, tasks, scheduled jobs,
// and chat bindings; the "state" database holds plans, outcomes, pending
// actions, and alerts. An implementation MAY fuse them; they are kept
// separate here, as in the source material, because a write failure on
// state must propagate while a write failure on memory is logged and
// swallowed (conversation history is best-effort).
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	_ "modernc.org/sqlite"
)

// Store owns the two logical databases, one *sql.DB handle each.
type Store struct {
	memory *sql.DB
	state  *sql.DB
}

// Open opens (creating if necessary) the memory and state SQLite files at
// the given paths with WAL journaling and a single writer connection each.
func Open(memoryPath, statePath string) (*Store, error) {
	memory, err := openDB(memoryPath)
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	state, err := openDB(statePath)
	if err != nil {
		memory.Close()
		return nil, fmt.Errorf("open state db: %w", err)
	}
	return &Store{memory: memory, state: state}, nil
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	// Serialize all writers through one connection; modernc.org/sqlite has
	// no internal connection-level locking of its own.
	db.SetMaxOpenConns(1)
	return db, nil
}

// Close closes both underlying databases.
func (s *Store) Close() error {
	errMemory := s.memory.Close()
	errState := s.state.Close()
	if errState != nil {
		return errState
	}
	return errMemory
}

// Migrate runs idempotent schema creation and best-effort column additions
// against both databases. It is safe to call on every startup.
func (s *Store) Migrate(ctx context.Context) error {
	for _, ddl := range memorySchema {
		if _, err := s.memory.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("migrate memory db: %w", err)
		}
	}
	for _, ddl := range memoryMigrations {
		if _, err := s.memory.ExecContext(ctx, ddl); err != nil {
			log.Printf("storage: memory migration step skipped: %v", err)
		}
	}

	for _, ddl := range stateSchema {
		if _, err := s.state.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("migrate state db: %w", err)
		}
	}
	for _, ddl := range stateMigrations {
		if _, err := s.state.ExecContext(ctx, ddl); err != nil {
			log.Printf("storage: state migration step skipped: %v", err)
		}
	}
	return nil
}

// swallowMemoryWrite logs a memory-db write error rather than propagating
// it, per C2's failure-mode contract: conversation history is best-effort.
func swallowMemoryWrite(op string, err error) {
	if err != nil {
		log.Printf("storage: memory write %q failed (swallowed): %v", op, err)
	}
}
