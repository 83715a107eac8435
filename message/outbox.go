package message

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	watermillSQL "github.com/ThreeDotsLabs/watermill-sql/v2/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/components/forwarder"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

const outboxTopic = "events_to_forward"

// Forwarder moves messages stored by Outbox from Postgres to Redis streams.
type Forwarder struct {
	*forwarder.Forwarder
}

func NewForwarder(
	db *sqlx.DB,
	rdb *redis.Client,
	logger watermill.LoggerAdapter,
) (*Forwarder, error) {
	subscriber, err := watermillSQL.NewSubscriber(db, watermillSQL.SubscriberConfig{
		SchemaAdapter:  watermillSQL.DefaultPostgreSQLSchema{},
		OffsetsAdapter: watermillSQL.DefaultPostgreSQLOffsetsAdapter{},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating subscriber: %w", err)
	}

	// Creates the outbox table, so this has to happen before the first
	// PublishInTx.
	if err := subscriber.SubscribeInitialize(outboxTopic); err != nil {
		return nil, fmt.Errorf("initialising subscriber: %w", err)
	}

	publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client: rdb,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating publisher: %w", err)
	}

	decoratedPublisher := log.CorrelationPublisherDecorator{Publisher: publisher}

	f, err := forwarder.NewForwarder(subscriber, decoratedPublisher, logger, forwarder.Config{
		ForwarderTopic: outboxTopic,
	})
	if err != nil {
		return nil, fmt.Errorf("creating forwarder: %w", err)
	}

	return &Forwarder{f}, nil
}

// Outbox stores events and commands in the caller's transaction, so they are
// published exactly when the state change they describe commits.
type Outbox struct {
	logger watermill.LoggerAdapter
}

func NewOutbox(logger watermill.LoggerAdapter) Outbox {
	return Outbox{logger: logger}
}

func (o Outbox) publisher(tx *sql.Tx) (message.Publisher, error) {
	sqlPublisher, err := watermillSQL.NewPublisher(
		tx,
		watermillSQL.PublisherConfig{
			SchemaAdapter: watermillSQL.DefaultPostgreSQLSchema{},
		},
		o.logger,
	)
	if err != nil {
		return nil, fmt.Errorf("creating sql publisher: %w", err)
	}

	publisher := forwarder.NewPublisher(sqlPublisher, forwarder.PublisherConfig{
		ForwarderTopic: outboxTopic,
	})

	return log.CorrelationPublisherDecorator{Publisher: publisher}, nil
}

func (o Outbox) PublishInTx(ctx context.Context, tx *sql.Tx, event any) error {
	publisher, err := o.publisher(tx)
	if err != nil {
		return err
	}

	eventBus, err := NewEventBus(publisher, o.logger)
	if err != nil {
		return fmt.Errorf("creating sql event bus: %w", err)
	}

	if err := eventBus.Publish(ctx, event); err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}

	return nil
}

func (o Outbox) SendInTx(ctx context.Context, tx *sql.Tx, cmd any) error {
	publisher, err := o.publisher(tx)
	if err != nil {
		return err
	}

	commandBus, err := NewCommandBus(publisher, o.logger)
	if err != nil {
		return fmt.Errorf("creating sql command bus: %w", err)
	}

	if err := commandBus.Send(ctx, cmd); err != nil {
		return fmt.Errorf("sending command: %w", err)
	}

	return nil
}
