// Package repository is the MySQL persistence layer.  The Store type
// implements scheduling.Store: plain reads run on the pool, mutations
// run through InTx which owns the transaction lifecycle, and the
// ...ForUpdate readers issue SELECT ... FOR UPDATE so concurrent
// writers on the same window or day serialize on row locks.  Legacy
// status strings ("Activa", "Pendiente", ...) live exclusively in this
// package; everything above it sees the model enums.
package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/citasalud/agenda/internal/scheduling"
)

// Store wraps the connection pool.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// DB exposes the underlying pool for auxiliary repositories (users,
// refresh tokens) that share it.
func (s *Store) DB() *sql.DB { return s.db }

// InTx runs fn inside one transaction and commits iff fn returns nil.
// Rollback on failure is unconditional so an interrupted operation
// never leaves partial state.
func (s *Store) InTx(ctx context.Context, fn func(scheduling.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&storeTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

// storeTx implements scheduling.Tx over a live *sql.Tx.  Its methods
// are spread across the entity-specific files of this package.
type storeTx struct {
	tx *sql.Tx
}
