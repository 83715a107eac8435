package ticketing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eventhub/entity"

	"github.com/google/uuid"
)

type RedemptionStore interface {
	// RedeemOrder locks the order, runs check against it and, when check
	// passes, marks the order used and adds its quantity to the event's
	// attendance in the same transaction.
	RedeemOrder(ctx context.Context, orderID string, usedAt time.Time, check func(entity.Order) error) (entity.Order, error)
}

type Validator struct {
	store RedemptionStore
}

func NewValidator(store RedemptionStore) Validator {
	return Validator{store: store}
}

func (v Validator) Redeem(ctx context.Context, token, eventID string) (entity.Order, error) {
	orderID, err := entity.ParseTicketToken(token)
	if err != nil {
		return entity.Order{}, orderNotFound(err)
	}
	if _, err := uuid.Parse(orderID); err != nil {
		return entity.Order{}, orderNotFound(err)
	}

	order, err := v.store.RedeemOrder(ctx, orderID, time.Now().UTC(), func(o entity.Order) error {
		return checkRedeemable(o, eventID)
	})
	if err != nil {
		var flowErr *Error
		if errors.As(err, &flowErr) {
			return entity.Order{}, flowErr
		}
		if errors.Is(err, entity.ErrNotFound) {
			return entity.Order{}, orderNotFound(err)
		}
		var full interface{ CapacityReached() int }
		if errors.As(err, &full) {
			return entity.Order{}, capacityExceeded(full.CapacityReached())
		}
		return entity.Order{}, fmt.Errorf("redeeming order: %w", err)
	}

	return order, nil
}

func checkRedeemable(order entity.Order, eventID string) error {
	if order.EventID != eventID {
		return wrongEvent(order)
	}

	switch order.Status {
	case entity.OrderStatusCompleted:
		return nil
	case entity.OrderStatusUsed:
		return alreadyUsed(order)
	default:
		return paymentNotConfirmed(order)
	}
}
