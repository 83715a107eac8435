package message

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"
)

type RouterDeps struct {
	Changes     ChangeNotifier
	Logger      watermill.LoggerAdapter
	Notifier    BuyerNotifier
	RedisClient *redis.Client
	Refunder    Refunder
}

type Router struct {
	*message.Router
}

func NewRouter(deps RouterDeps) (*Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating router: %w", err)
	}

	addMiddlewares(router, deps.Logger)

	h := NewHandler(deps.Notifier, deps.Changes, deps.Refunder)

	ep, err := cqrs.NewEventProcessorWithConfig(router, newEventProcessorConfig(deps.Logger, deps.RedisClient))
	if err != nil {
		return nil, fmt.Errorf("creating event processor: %w", err)
	}

	err = ep.AddHandlers(
		cqrs.NewEventHandler("notify-buyer-confirmed", h.NotifyBuyerConfirmed),
		cqrs.NewEventHandler("notify-buyer-cancelled", h.NotifyBuyerCancelled),
		cqrs.NewEventHandler("broadcast-attendance", h.BroadcastAttendance),
		cqrs.NewEventHandler("broadcast-tally", h.BroadcastTally),
	)
	if err != nil {
		return nil, fmt.Errorf("adding event handlers: %w", err)
	}

	cp, err := cqrs.NewCommandProcessorWithConfig(router, newCommandProcessorConfig(deps.Logger, deps.RedisClient))
	if err != nil {
		return nil, fmt.Errorf("creating command processor: %w", err)
	}

	if err := cp.AddHandlers(cqrs.NewCommandHandler("refund-payment", h.RefundPayment)); err != nil {
		return nil, fmt.Errorf("adding command handlers: %w", err)
	}

	return &Router{router}, nil
}
