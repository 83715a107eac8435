package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"eventhub/command"
	"eventhub/entity"
	"eventhub/event"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

func CreatePaymentsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS payments (
		reference VARCHAR(64) PRIMARY KEY,
		method VARCHAR(16) NOT NULL,
		amount NUMERIC(12, 2) NOT NULL,
		currency CHAR(3) NOT NULL,
		status VARCHAR(16) NOT NULL,
		provider_reference VARCHAR(255) CONSTRAINT payments_provider_reference_key UNIQUE,
		purpose_kind VARCHAR(32) NOT NULL,
		purpose JSONB NOT NULL,
		details JSONB,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		settled_at TIMESTAMP WITH TIME ZONE
	);`)
	return err
}

func CreateVotesTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS votes (
		vote_id UUID PRIMARY KEY,
		event_id UUID NOT NULL REFERENCES events (event_id),
		contestant_id UUID NOT NULL REFERENCES contestants (contestant_id),
		voter_id VARCHAR(128) NOT NULL,
		vote_count INTEGER NOT NULL CHECK (vote_count > 0),
		payment_reference VARCHAR(64) NOT NULL UNIQUE REFERENCES payments (reference),
		created_at TIMESTAMP WITH TIME ZONE NOT NULL
	);
	CREATE INDEX IF NOT EXISTS votes_event_idx ON votes (event_id, contestant_id);`)
	return err
}

const paymentColumns = `reference, method, amount, currency, status, provider_reference,
	purpose_kind, purpose, created_at, settled_at`

type paymentRow struct {
	Reference         string               `db:"reference"`
	Method            entity.PaymentMethod `db:"method"`
	Amount            decimal.Decimal      `db:"amount"`
	Currency          string               `db:"currency"`
	Status            entity.PaymentStatus `db:"status"`
	ProviderReference sql.NullString       `db:"provider_reference"`
	PurposeKind       entity.PurposeKind   `db:"purpose_kind"`
	Purpose           []byte               `db:"purpose"`
	CreatedAt         time.Time            `db:"created_at"`
	SettledAt         *time.Time           `db:"settled_at"`
}

func (r paymentRow) toEntity() (entity.Payment, error) {
	purpose, err := entity.UnmarshalPurpose(r.PurposeKind, r.Purpose)
	if err != nil {
		return entity.Payment{}, err
	}

	return entity.Payment{
		Reference:         r.Reference,
		Method:            r.Method,
		Amount:            entity.Money{Amount: r.Amount, Currency: r.Currency},
		Status:            r.Status,
		ProviderReference: r.ProviderReference.String,
		Purpose:           purpose,
		CreatedAt:         r.CreatedAt,
		SettledAt:         r.SettledAt,
	}, nil
}

type PaymentRepo struct {
	db     *sqlx.DB
	outbox Outbox
}

func NewPaymentRepo(db *sqlx.DB, outbox Outbox) PaymentRepo {
	return PaymentRepo{
		db:     db,
		outbox: outbox,
	}
}

func (r PaymentRepo) CreatePayment(ctx context.Context, payment entity.Payment) error {
	return insertPayment(ctx, r.db, payment)
}

func insertPayment(ctx context.Context, e sqlx.ExecerContext, p entity.Payment) error {
	kind, purpose, err := entity.MarshalPurpose(p.Purpose)
	if err != nil {
		return err
	}

	_, err = e.ExecContext(ctx, `INSERT INTO payments
		(reference, method, amount, currency, status, purpose_kind, purpose, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`,
		p.Reference, p.Method, p.Amount.Amount, p.Amount.Currency, p.Status, kind, string(purpose), p.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting payment: %w", err)
	}

	return nil
}

func (r PaymentRepo) Payment(ctx context.Context, reference string) (entity.Payment, error) {
	return getPayment(ctx, r.db, reference)
}

func getPayment(ctx context.Context, q sqlx.QueryerContext, reference string) (entity.Payment, error) {
	var row paymentRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+paymentColumns+` FROM payments WHERE reference = $1`, reference)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Payment{}, fmt.Errorf("payment %s: %w", reference, entity.ErrNotFound)
	}
	if err != nil {
		return entity.Payment{}, fmt.Errorf("querying payment: %w", err)
	}

	return row.toEntity()
}

func (r PaymentRepo) AttachProviderReference(ctx context.Context, reference, providerReference string) error {
	n, err := rowsAffected(r.db.ExecContext(ctx, `UPDATE payments SET provider_reference = $2
		WHERE reference = $1`, reference, providerReference))
	if err != nil {
		return fmt.Errorf("updating payment: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("payment %s: %w", reference, entity.ErrNotFound)
	}

	return nil
}

// SettlePayment is safe to call any number of times: only the call that moves
// the payment out of pending applies its purpose and emits messages.
func (r PaymentRepo) SettlePayment(
	ctx context.Context,
	reference string,
	providerReference string,
	details json.RawMessage,
	at time.Time,
) (entity.Payment, bool, error) {
	var settled *entity.Payment
	err := runInTx(ctx, r.db, func(tx *sqlx.Tx) error {
		n, err := rowsAffected(tx.ExecContext(ctx, `UPDATE payments
			SET status = 'succeeded', provider_reference = $2, details = $3, settled_at = $4
			WHERE reference = $1 AND status IN ('pending', 'expired')`,
			reference, providerReference, jsonArg(details), at))
		if isUniqueViolation(err, "payments_provider_reference_key") {
			return providerReferenceTakenError{providerReference: providerReference}
		}
		if err != nil {
			return fmt.Errorf("settling payment: %w", err)
		}
		if n == 0 {
			return nil
		}

		p, err := getPayment(ctx, tx, reference)
		if err != nil {
			return err
		}

		if err := r.applyPurpose(ctx, tx, &p, at); err != nil {
			return err
		}

		settled = &p
		return nil
	})
	if err != nil {
		return entity.Payment{}, false, err
	}

	if settled == nil {
		p, err := r.Payment(ctx, reference)
		return p, false, err
	}

	return *settled, true, nil
}

func (r PaymentRepo) applyPurpose(ctx context.Context, tx *sqlx.Tx, p *entity.Payment, at time.Time) error {
	switch purpose := p.Purpose.(type) {
	case entity.TicketPurchase:
		return r.completeOrder(ctx, tx, p, purpose, at)
	case entity.VoteBallot:
		return r.recordVote(ctx, tx, *p, purpose, at)
	case entity.EventRegistration:
		return r.publishEvent(ctx, tx, p, purpose)
	default:
		return fmt.Errorf("unhandled payment purpose %T", purpose)
	}
}

func (r PaymentRepo) completeOrder(ctx context.Context, tx *sqlx.Tx, p *entity.Payment, purpose entity.TicketPurchase, at time.Time) error {
	var row orderRow
	err := tx.GetContext(ctx, &row, `UPDATE orders
		SET status = 'completed', updated_at = $2
		WHERE order_id = $1 AND status = 'pending'
		RETURNING `+orderColumns, purpose.OrderID, at)
	if errors.Is(err, sql.ErrNoRows) {
		// The reservation ended while the buyer was paying.
		return r.flagForRefund(ctx, tx, p, "reservation no longer held")
	}
	if err != nil {
		return fmt.Errorf("completing order: %w", err)
	}

	if err := r.outbox.PublishInTx(ctx, tx.Tx, event.NewOrderConfirmed(row.toEntity())); err != nil {
		return fmt.Errorf("publishing event in transaction: %w", err)
	}

	return nil
}

// flagForRefund marks money that was collected for nothing and asks for it to
// be returned.
func (r PaymentRepo) flagForRefund(ctx context.Context, tx *sqlx.Tx, p *entity.Payment, reason string) error {
	if _, err := tx.ExecContext(ctx, `UPDATE payments SET status = 'refund_due' WHERE reference = $1`, p.Reference); err != nil {
		return fmt.Errorf("flagging payment for refund: %w", err)
	}
	p.Status = entity.PaymentStatusRefundDue

	if err := r.outbox.SendInTx(ctx, tx.Tx, command.NewRefundPayment(*p, reason)); err != nil {
		return fmt.Errorf("sending command in transaction: %w", err)
	}

	return nil
}

func (r PaymentRepo) recordVote(ctx context.Context, tx *sqlx.Tx, p entity.Payment, purpose entity.VoteBallot, at time.Time) error {
	vote := entity.Vote{
		ID:               uuid.NewString(),
		EventID:          purpose.EventID,
		ContestantID:     purpose.ContestantID,
		VoterID:          purpose.VoterID,
		Count:            purpose.Count,
		PaymentReference: p.Reference,
		CreatedAt:        at,
	}

	n, err := rowsAffected(tx.ExecContext(ctx, `INSERT INTO votes
		(vote_id, event_id, contestant_id, voter_id, vote_count, payment_reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (payment_reference) DO NOTHING`,
		vote.ID, vote.EventID, vote.ContestantID, vote.VoterID, vote.Count, vote.PaymentReference, vote.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting vote: %w", err)
	}
	if n == 0 {
		return nil
	}

	if err := r.outbox.PublishInTx(ctx, tx.Tx, event.NewVoteRecorded(vote)); err != nil {
		return fmt.Errorf("publishing event in transaction: %w", err)
	}

	return nil
}

func (r PaymentRepo) publishEvent(ctx context.Context, tx *sqlx.Tx, p *entity.Payment, purpose entity.EventRegistration) error {
	published, err := publishDraftEvent(ctx, tx, r.outbox, purpose.EventID)
	if err != nil {
		return err
	}
	if !published {
		return r.flagForRefund(ctx, tx, p, "event was no longer a draft")
	}

	return nil
}

// FailPayment records a declined payment. A ticket payment also cancels its
// order and puts the units back on sale.
func (r PaymentRepo) FailPayment(ctx context.Context, reference string, details json.RawMessage, at time.Time) (entity.Payment, bool, error) {
	var failed *entity.Payment
	err := runInTx(ctx, r.db, func(tx *sqlx.Tx) error {
		n, err := rowsAffected(tx.ExecContext(ctx, `UPDATE payments
			SET status = 'failed', details = $2, settled_at = $3
			WHERE reference = $1 AND status = 'pending'`, reference, jsonArg(details), at))
		if err != nil {
			return fmt.Errorf("failing payment: %w", err)
		}
		if n == 0 {
			return nil
		}

		p, err := getPayment(ctx, tx, reference)
		if err != nil {
			return err
		}

		if purpose, ok := p.Purpose.(entity.TicketPurchase); ok {
			if _, _, err := cancelPendingOrder(ctx, tx, r.outbox, purpose.OrderID, "payment failed", entity.PaymentStatusFailed, at); err != nil {
				return err
			}
		}

		failed = &p
		return nil
	})
	if err != nil {
		return entity.Payment{}, false, err
	}

	if failed == nil {
		p, err := r.Payment(ctx, reference)
		return p, false, err
	}

	return *failed, true, nil
}

func jsonArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
