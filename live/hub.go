package live

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
)

type Hub struct {
	broker Broker
}

func NewHub(broker Broker) *Hub {
	return &Hub{broker: broker}
}

// Notify tells subscribers of topic to refresh.
func (h *Hub) Notify(ctx context.Context, topic string) error {
	return h.broker.Publish(ctx, topic)
}

type Subscription struct {
	cancel context.CancelFunc
	feed   Feed
	done   chan struct{}
}

// Done is closed once the subscription stops delivering, either because it was
// closed or because deliver failed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close stops delivery and releases the broker subscription. It waits for an
// in-flight deliver call to return.
func (s *Subscription) Close() error {
	s.cancel()
	err := s.feed.Close()
	<-s.done
	return err
}

// Subscribe delivers the current state of topic, then delivers it again after
// every change notification until the subscription is closed or ctx is done.
// A failed load is logged and retried on the next notification; a failed
// deliver ends the subscription.
func Subscribe[T any](
	ctx context.Context,
	hub *Hub,
	topic string,
	load func(context.Context) (T, error),
	deliver func(T) error,
) (*Subscription, error) {
	feed, err := hub.broker.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}

	initial, err := load(ctx)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("loading %s: %w", topic, err), feed.Close())
	}
	if err := deliver(initial); err != nil {
		return nil, errors.Join(fmt.Errorf("delivering %s: %w", topic, err), feed.Close())
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		cancel: cancel,
		feed:   feed,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(sub.done)
		defer cancel()

		logger := log.FromContext(ctx).WithField("topic", topic)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-feed.C():
				if !ok {
					return
				}
			}

			state, err := load(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.WithError(err).Warn("Failed to load live state")
				continue
			}

			if err := deliver(state); err != nil {
				logger.WithError(err).Info("Live subscriber went away")
				return
			}
		}
	}()

	return sub, nil
}
