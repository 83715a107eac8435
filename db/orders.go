package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"eventhub/entity"
	"eventhub/event"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// expiryBatch bounds how many reservations one sweep releases.
const expiryBatch = 500

func CreateOrdersTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS orders (
		order_id UUID PRIMARY KEY,
		buyer_id VARCHAR(128) NOT NULL,
		buyer_email VARCHAR(255) NOT NULL,
		ticket_type_id UUID NOT NULL REFERENCES ticket_types (ticket_type_id),
		event_id UUID NOT NULL REFERENCES events (event_id),
		quantity INTEGER NOT NULL CHECK (quantity BETWEEN 1 AND 10),
		total_amount NUMERIC(12, 2) NOT NULL,
		total_currency CHAR(3) NOT NULL,
		status VARCHAR(16) NOT NULL,
		payment_reference VARCHAR(64) NOT NULL UNIQUE REFERENCES payments (reference),
		payment_method VARCHAR(16) NOT NULL,
		cancel_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
		used_at TIMESTAMP WITH TIME ZONE
	);
	CREATE INDEX IF NOT EXISTS orders_buyer_idx ON orders (buyer_id, status);
	CREATE INDEX IF NOT EXISTS orders_event_idx ON orders (event_id, status);
	CREATE INDEX IF NOT EXISTS orders_pending_idx ON orders (created_at) WHERE status = 'pending';`)
	return err
}

const orderColumns = `order_id, buyer_id, buyer_email, ticket_type_id, event_id, quantity,
	total_amount, total_currency, status, payment_reference, payment_method, cancel_reason,
	created_at, updated_at, used_at`

type orderRow struct {
	entity.Order
	TotalAmount   decimal.Decimal `db:"total_amount"`
	TotalCurrency string          `db:"total_currency"`
}

func (r orderRow) toEntity() entity.Order {
	o := r.Order
	o.Total = entity.Money{Amount: r.TotalAmount, Currency: r.TotalCurrency}
	return o
}

type OrderRepo struct {
	db     *sqlx.DB
	outbox Outbox
}

func NewOrderRepo(db *sqlx.DB, outbox Outbox) OrderRepo {
	return OrderRepo{
		db:     db,
		outbox: outbox,
	}
}

// PlaceOrder stores a pending order with its payment and takes the order's
// units out of the ticket type's remaining count. Nothing is stored when too
// few units remain.
func (r OrderRepo) PlaceOrder(ctx context.Context, order entity.Order, payment entity.Payment) error {
	return runInTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return r.placeOrder(ctx, tx, order, payment)
	})
}

func (r OrderRepo) placeOrder(ctx context.Context, tx *sqlx.Tx, order entity.Order, payment entity.Payment) error {
	if err := insertPayment(ctx, tx, payment); err != nil {
		return err
	}

	_, err := tx.ExecContext(ctx, `INSERT INTO orders
		(order_id, buyer_id, buyer_email, ticket_type_id, event_id, quantity, total_amount, total_currency,
		status, payment_reference, payment_method, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);`,
		order.ID, order.BuyerID, order.BuyerEmail, order.TicketTypeID, order.EventID, order.Quantity,
		order.Total.Amount, order.Total.Currency, order.Status, order.PaymentReference, order.PaymentMethod,
		order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting order: %w", err)
	}

	n, err := rowsAffected(tx.ExecContext(ctx, `UPDATE ticket_types
		SET remaining = remaining - $1
		WHERE ticket_type_id = $2 AND remaining >= $1`, order.Quantity, order.TicketTypeID))
	if err != nil {
		return fmt.Errorf("reserving tickets: %w", err)
	}
	if n == 0 {
		var remaining int
		if err := tx.GetContext(ctx, &remaining, `SELECT remaining FROM ticket_types WHERE ticket_type_id = $1`, order.TicketTypeID); err != nil {
			return fmt.Errorf("counting remaining tickets: %w", err)
		}
		return notEnoughTicketsError{remaining: remaining, requested: order.Quantity}
	}

	if err := r.outbox.PublishInTx(ctx, tx.Tx, event.NewOrderPlaced(order)); err != nil {
		return fmt.Errorf("publishing event in transaction: %w", err)
	}

	return nil
}

func (r OrderRepo) Order(ctx context.Context, orderID string) (entity.Order, error) {
	return getOrder(ctx, r.db, orderID, false)
}

func getOrder(ctx context.Context, q sqlx.QueryerContext, orderID string, forUpdate bool) (entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var row orderRow
	err := sqlx.GetContext(ctx, q, &row, query, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Order{}, fmt.Errorf("order %s: %w", orderID, entity.ErrNotFound)
	}
	if err != nil {
		return entity.Order{}, fmt.Errorf("querying order: %w", err)
	}

	return row.toEntity(), nil
}

// OrdersByBuyer lists a buyer's orders, newest first. An empty status lists
// orders in every status.
func (r OrderRepo) OrdersByBuyer(ctx context.Context, buyerID string, status entity.OrderStatus) ([]entity.Order, error) {
	return r.selectOrders(ctx, `buyer_id = $1`, buyerID, status)
}

func (r OrderRepo) OrdersByEvent(ctx context.Context, eventID string, status entity.OrderStatus) ([]entity.Order, error) {
	return r.selectOrders(ctx, `event_id = $1`, eventID, status)
}

func (r OrderRepo) selectOrders(ctx context.Context, ownerClause string, ownerID string, status entity.OrderStatus) ([]entity.Order, error) {
	var rows []orderRow
	err := r.db.SelectContext(ctx, &rows, `SELECT `+orderColumns+` FROM orders
		WHERE `+ownerClause+` AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC`, ownerID, status)
	if err != nil {
		return nil, fmt.Errorf("querying orders: %w", err)
	}

	orders := make([]entity.Order, 0, len(rows))
	for _, row := range rows {
		orders = append(orders, row.toEntity())
	}

	return orders, nil
}

// CancelOrder cancels a pending order and releases its units. Orders in any
// other status are returned unchanged.
func (r OrderRepo) CancelOrder(ctx context.Context, orderID, reason string) (entity.Order, error) {
	var order entity.Order
	err := runInTx(ctx, r.db, func(tx *sqlx.Tx) error {
		cancelled, ok, err := cancelPendingOrder(ctx, tx, r.outbox, orderID, reason, entity.PaymentStatusFailed, time.Now().UTC())
		if err != nil {
			return err
		}
		if ok {
			order = cancelled
			return nil
		}

		order, err = getOrder(ctx, tx, orderID, false)
		return err
	})
	if err != nil {
		return entity.Order{}, err
	}

	return order, nil
}

func (r OrderRepo) ExpirePendingOrders(ctx context.Context, cutoff time.Time) ([]entity.Order, error) {
	var expired []entity.Order
	err := runInTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var orderIDs []string
		err := tx.SelectContext(ctx, &orderIDs, `SELECT order_id FROM orders
			WHERE status = 'pending' AND created_at < $1
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED`, cutoff, expiryBatch)
		if err != nil {
			return fmt.Errorf("querying stale orders: %w", err)
		}

		now := time.Now().UTC()
		for _, orderID := range orderIDs {
			order, ok, err := cancelPendingOrder(ctx, tx, r.outbox, orderID, "reservation expired", entity.PaymentStatusExpired, now)
			if err != nil {
				return err
			}
			if ok {
				expired = append(expired, order)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return expired, nil
}

// cancelPendingOrder returns ok=false, and changes nothing, when the order is
// missing or no longer pending.
func cancelPendingOrder(
	ctx context.Context,
	tx *sqlx.Tx,
	outbox Outbox,
	orderID string,
	reason string,
	paymentStatus entity.PaymentStatus,
	at time.Time,
) (entity.Order, bool, error) {
	var row orderRow
	err := tx.GetContext(ctx, &row, `UPDATE orders
		SET status = 'cancelled', cancel_reason = $2, updated_at = $3
		WHERE order_id = $1 AND status = 'pending'
		RETURNING `+orderColumns, orderID, reason, at)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Order{}, false, nil
	}
	if err != nil {
		return entity.Order{}, false, fmt.Errorf("cancelling order: %w", err)
	}
	order := row.toEntity()

	_, err = tx.ExecContext(ctx, `UPDATE ticket_types
		SET remaining = remaining + $1
		WHERE ticket_type_id = $2`, order.Quantity, order.TicketTypeID)
	if err != nil {
		return entity.Order{}, false, fmt.Errorf("releasing tickets: %w", err)
	}

	_, err = tx.ExecContext(ctx, `UPDATE payments
		SET status = $2, settled_at = $3
		WHERE reference = $1 AND status = 'pending'`, order.PaymentReference, paymentStatus, at)
	if err != nil {
		return entity.Order{}, false, fmt.Errorf("closing payment: %w", err)
	}

	if err := outbox.PublishInTx(ctx, tx.Tx, event.NewOrderCancelled(order)); err != nil {
		return entity.Order{}, false, fmt.Errorf("publishing event in transaction: %w", err)
	}

	return order, true, nil
}

// RedeemOrder locks the order row so concurrent scans of the same ticket are
// serialised; the loser sees the order as used.
func (r OrderRepo) RedeemOrder(ctx context.Context, orderID string, usedAt time.Time, check func(entity.Order) error) (entity.Order, error) {
	var redeemed entity.Order
	err := runInTx(ctx, r.db, func(tx *sqlx.Tx) error {
		order, err := getOrder(ctx, tx, orderID, true)
		if err != nil {
			return err
		}

		if err := check(order); err != nil {
			return err
		}

		n, err := rowsAffected(tx.ExecContext(ctx, `UPDATE orders
			SET status = 'used', used_at = $2, updated_at = $2
			WHERE order_id = $1 AND status = 'completed'`, orderID, usedAt))
		if err != nil {
			return fmt.Errorf("marking order used: %w", err)
		}
		if n != 1 {
			return fmt.Errorf("marking order used: unexpected exec result: %d rows affected", n)
		}

		n, err = rowsAffected(tx.ExecContext(ctx, `UPDATE events
			SET attendance_count = attendance_count + $1
			WHERE event_id = $2 AND (max_attendees IS NULL OR attendance_count + $1 <= max_attendees)`,
			order.Quantity, order.EventID))
		if err != nil {
			return fmt.Errorf("recording attendance: %w", err)
		}
		if n == 0 {
			var spots int
			if err := tx.GetContext(ctx, &spots, `SELECT GREATEST(max_attendees - attendance_count, 0)
				FROM events WHERE event_id = $1`, order.EventID); err != nil {
				return fmt.Errorf("counting spots: %w", err)
			}
			return capacityReachedError{spots: spots}
		}

		order.Status = entity.OrderStatusUsed
		order.UsedAt = &usedAt
		order.UpdatedAt = usedAt

		if err := r.outbox.PublishInTx(ctx, tx.Tx, event.NewOrderRedeemed(order, usedAt)); err != nil {
			return fmt.Errorf("publishing event in transaction: %w", err)
		}

		redeemed = order
		return nil
	})
	if err != nil {
		return entity.Order{}, err
	}

	return redeemed, nil
}
