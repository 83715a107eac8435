package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

func InitialiseDB(ctx context.Context, db *sqlx.DB) error {
	if err := CreateEventsTable(ctx, db); err != nil {
		return fmt.Errorf("creating events table: %w", err)
	}

	if err := CreateTicketTypesTable(ctx, db); err != nil {
		return fmt.Errorf("creating ticket types table: %w", err)
	}

	if err := CreateContestantsTable(ctx, db); err != nil {
		return fmt.Errorf("creating contestants table: %w", err)
	}

	if err := CreatePaymentsTable(ctx, db); err != nil {
		return fmt.Errorf("creating payments table: %w", err)
	}

	if err := CreateOrdersTable(ctx, db); err != nil {
		return fmt.Errorf("creating orders table: %w", err)
	}

	if err := CreateVotesTable(ctx, db); err != nil {
		return fmt.Errorf("creating votes table: %w", err)
	}

	return nil
}

// Outbox stores messages in the same transaction as the state change they
// describe.
type Outbox interface {
	PublishInTx(ctx context.Context, tx *sql.Tx, event any) error
	SendInTx(ctx context.Context, tx *sql.Tx, cmd any) error
}

func runInTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func rowsAffected(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}

	return n, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == constraint
}

type notEnoughTicketsError struct {
	remaining int
	requested int
}

func (e notEnoughTicketsError) Error() string {
	return fmt.Sprintf("not enough tickets: tickets remaining %d, tickets requested %d", e.remaining, e.requested)
}

func (e notEnoughTicketsError) NotEnoughTickets() int {
	return e.remaining
}

type capacityReachedError struct {
	spots int
}

func (e capacityReachedError) Error() string {
	return fmt.Sprintf("event capacity reached: %d spots remaining", e.spots)
}

func (e capacityReachedError) CapacityReached() int {
	return e.spots
}

type providerReferenceTakenError struct {
	providerReference string
}

func (e providerReferenceTakenError) Error() string {
	return fmt.Sprintf("provider reference %s already settles another payment", e.providerReference)
}

func (e providerReferenceTakenError) ProviderReferenceTaken() bool {
	return true
}
