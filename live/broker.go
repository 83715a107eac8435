package live

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "eventhub.live."

func AttendanceTopic(eventID string) string {
	return "attendance." + eventID
}

func TallyTopic(eventID string) string {
	return "tally." + eventID
}

// Broker fans change notifications out to every instance of the service.
// Notifications carry no state; subscribers re-read what they show.
type Broker interface {
	Publish(ctx context.Context, topic string) error
	Subscribe(ctx context.Context, topic string) (Feed, error)
}

// Feed delivers one tick per burst of notifications.
type Feed interface {
	C() <-chan struct{}
	Close() error
}

type RedisBroker struct {
	rdb redis.UniversalClient
}

func NewRedisBroker(rdb redis.UniversalClient) RedisBroker {
	return RedisBroker{rdb: rdb}
}

func (b RedisBroker) Publish(ctx context.Context, topic string) error {
	if err := b.rdb.Publish(ctx, channelPrefix+topic, "changed").Err(); err != nil {
		return fmt.Errorf("publishing change on %s: %w", topic, err)
	}
	return nil
}

func (b RedisBroker) Subscribe(ctx context.Context, topic string) (Feed, error) {
	ps := b.rdb.Subscribe(ctx, channelPrefix+topic)

	// Wait for the confirmation so no notification sent after Subscribe
	// returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("subscribing to %s: %w", topic, err), ps.Close())
	}

	f := newTickFeed(ps.Close)
	go func() {
		defer f.stop()
		for range ps.Channel() {
			f.tick()
		}
	}()

	return f, nil
}

type tickFeed struct {
	ch      chan struct{}
	closeFn func() error

	once sync.Once
	err  error
}

func newTickFeed(closeFn func() error) *tickFeed {
	return &tickFeed{
		ch:      make(chan struct{}, 1),
		closeFn: closeFn,
	}
}

// tick never blocks: a pending tick already covers this change.
func (f *tickFeed) tick() {
	select {
	case f.ch <- struct{}{}:
	default:
	}
}

func (f *tickFeed) stop() {
	close(f.ch)
}

func (f *tickFeed) C() <-chan struct{} {
	return f.ch
}

func (f *tickFeed) Close() error {
	f.once.Do(func() {
		f.err = f.closeFn()
	})
	return f.err
}

// MemoryBroker serves a single process.
type MemoryBroker struct {
	lock  sync.Mutex
	feeds map[string]map[*memoryFeed]struct{}
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{feeds: map[string]map[*memoryFeed]struct{}{}}
}

type memoryFeed struct {
	*tickFeed
}

func (b *MemoryBroker) Publish(_ context.Context, topic string) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	for f := range b.feeds[topic] {
		f.tick()
	}
	return nil
}

func (b *MemoryBroker) Subscribe(_ context.Context, topic string) (Feed, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	f := &memoryFeed{}
	f.tickFeed = newTickFeed(func() error {
		b.lock.Lock()
		defer b.lock.Unlock()

		delete(b.feeds[topic], f)
		f.stop()
		return nil
	})

	if b.feeds[topic] == nil {
		b.feeds[topic] = map[*memoryFeed]struct{}{}
	}
	b.feeds[topic][f] = struct{}{}

	return f, nil
}
