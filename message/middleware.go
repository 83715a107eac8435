package message

import (
	"time"

	"eventhub/metrics"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/lithammer/shortuuid/v3"
	"github.com/sirupsen/logrus"
)

func addMiddlewares(router *message.Router, logger watermill.LoggerAdapter) {
	router.AddMiddleware(
		middleware.Recoverer,
		messageContextMiddleware,
		observeMiddleware,
		middleware.Retry{
			MaxRetries:      10,
			InitialInterval: time.Millisecond * 100,
			MaxInterval:     time.Second,
			Multiplier:      2,
			Logger:          logger,
		}.Middleware,
	)
}

// messageContextMiddleware carries the publisher's correlation id into the
// handler's context, together with a logger describing the message.
func messageContextMiddleware(next message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		correlationID := middleware.MessageCorrelationID(msg)
		if correlationID == "" {
			correlationID = "msg_" + shortuuid.New()
		}

		ctx := log.ContextWithCorrelationID(msg.Context(), correlationID)
		ctx = log.ToContext(ctx, logrus.WithFields(logrus.Fields{
			"message_uuid":   msg.UUID,
			"message_name":   msg.Metadata.Get("name"),
			"handler":        message.HandlerNameFromCtx(msg.Context()),
			"correlation_id": correlationID,
		}))
		msg.SetContext(ctx)

		return next(msg)
	}
}

// observeMiddleware sits outside Retry, so it sees one outcome per delivery.
func observeMiddleware(next message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		logger := log.FromContext(msg.Context())
		start := time.Now()

		msgs, err := next(msg)

		handler := message.HandlerNameFromCtx(msg.Context())
		took := time.Since(start)
		if err != nil {
			metrics.TrackMessage(handler, "error")
			logger.WithError(err).WithField("took", took).Error("Message handling failed, it will be redelivered")
			return msgs, err
		}

		metrics.TrackMessage(handler, metrics.OutcomeOK)
		logger.WithField("took", took).Debug("Message handled")
		return msgs, nil
	}
}
