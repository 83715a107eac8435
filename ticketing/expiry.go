package ticketing

import (
	"context"
	"fmt"
	"time"

	"eventhub/entity"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
)

type ExpiryStore interface {
	// ExpirePendingOrders cancels pending orders created before cutoff and
	// returns their units to the ticket type.
	ExpirePendingOrders(ctx context.Context, cutoff time.Time) ([]entity.Order, error)
}

// Expirer ends reservations whose payment never arrived.
type Expirer struct {
	store ExpiryStore
	ttl   time.Duration
}

func NewExpirer(store ExpiryStore, ttl time.Duration) Expirer {
	return Expirer{
		store: store,
		ttl:   ttl,
	}
}

func (e Expirer) Expire(ctx context.Context, now time.Time) (int, error) {
	expired, err := e.store.ExpirePendingOrders(ctx, now.Add(-e.ttl))
	if err != nil {
		return 0, fmt.Errorf("expiring pending orders: %w", err)
	}

	logger := log.FromContext(ctx)
	for _, o := range expired {
		logger.WithField("order_id", o.ID).WithField("quantity", o.Quantity).Info("Reservation expired")
	}

	return len(expired), nil
}
