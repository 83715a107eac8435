package jobs

import (
	"context"
	"fmt"
	"time"

	"eventhub/metrics"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/go-co-op/gocron/v2"
	"github.com/lithammer/shortuuid/v3"
)

type Expirer interface {
	Expire(ctx context.Context, now time.Time) (int, error)
}

// ReservationSweep periodically releases reservations whose payment never
// arrived.
type ReservationSweep struct {
	expirer  Expirer
	interval time.Duration
}

func NewReservationSweep(expirer Expirer, interval time.Duration) ReservationSweep {
	return ReservationSweep{
		expirer:  expirer,
		interval: interval,
	}
}

// Run starts the sweep and blocks until ctx is done.
func (s ReservationSweep) Run(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.sweep, ctx),
		gocron.WithName("expire-reservations"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("scheduling reservation sweep: %w", err)
	}

	log.FromContext(ctx).WithField("interval", s.interval).Info("Starting reservation sweep...")
	scheduler.Start()

	<-ctx.Done()

	if err := scheduler.Shutdown(); err != nil {
		return fmt.Errorf("shutting down scheduler: %w", err)
	}
	return nil
}

func (s ReservationSweep) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	ctx = log.ContextWithCorrelationID(ctx, "sweep_"+shortuuid.New())
	logger := log.FromContext(ctx).WithField("correlation_id", log.CorrelationIDFromContext(ctx))

	expired, err := s.expirer.Expire(ctx, time.Now().UTC())
	if err != nil {
		logger.WithError(err).Error("Reservation sweep failed")
		return
	}

	metrics.TrackExpiredReservations(expired)
	if expired > 0 {
		logger.WithField("expired", expired).Info("Released expired reservations")
	}
}
