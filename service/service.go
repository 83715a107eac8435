package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eventhub/clients"
	"eventhub/config"
	"eventhub/db"
	"eventhub/entity"
	"eventhub/http"
	"eventhub/jobs"
	"eventhub/live"
	"eventhub/message"
	"eventhub/ticketing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Deps struct {
	Config      config.Config
	DB          *sqlx.DB
	RedisClient *redis.Client
	Logger      watermill.LoggerAdapter

	Auth     http.Authenticator
	Notifier message.BuyerNotifier
	Payments *clients.Payments
	// Stripe receives checkout webhooks; nil when Stripe is disabled.
	Stripe http.StripeWebhook
}

type Service struct {
	msgRouter  *message.Router
	forwarder  *message.Forwarder
	httpRouter *echo.Echo
	httpAddr   string
	sweep      jobs.ReservationSweep
}

func New(deps Deps) (*Service, error) {
	cfg := deps.Config

	forwarder, err := message.NewForwarder(deps.DB, deps.RedisClient, deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating forwarder: %w", err)
	}

	store := db.NewStore(deps.DB, message.NewOutbox(deps.Logger))
	hub := live.NewHub(live.NewRedisBroker(deps.RedisClient))

	msgRouter, err := message.NewRouter(message.RouterDeps{
		Changes:     hub,
		Logger:      deps.Logger,
		Notifier:    deps.Notifier,
		RedisClient: deps.RedisClient,
		Refunder:    deps.Payments,
	})
	if err != nil {
		return nil, fmt.Errorf("creating message router: %w", err)
	}

	listingFee := entity.Money{Amount: cfg.ListingFee, Currency: cfg.Currency}

	httpRouter := http.NewRouter(http.Deps{
		Auth:      deps.Auth,
		Events:    store,
		Orders:    store,
		Purchaser: ticketing.NewOrchestrator(store, deps.Payments),
		Redeemer:  ticketing.NewValidator(store),
		Confirmer: ticketing.NewConfirmer(store, deps.Payments),
		Ballot:    ticketing.NewBallot(store, deps.Payments),
		Lister:    ticketing.NewLister(store, deps.Payments, listingFee),
		Stripe:    deps.Stripe,
		Hub:       hub,
		Features:  cfg.Features,
	})

	sweep := jobs.NewReservationSweep(ticketing.NewExpirer(store, cfg.ReservationTTL), cfg.SweepInterval)

	return &Service{
		msgRouter:  msgRouter,
		forwarder:  forwarder,
		httpRouter: httpRouter,
		httpAddr:   cfg.HTTPAddr,
		sweep:      sweep,
	}, nil
}

func (s Service) Run(ctx context.Context) error {
	g, runCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.msgRouter.Run(runCtx); err != nil {
			return fmt.Errorf("running messaging router: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		if err := s.forwarder.Run(runCtx); err != nil {
			return fmt.Errorf("running outbox forwarder: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		if err := s.sweep.Run(runCtx); err != nil {
			return fmt.Errorf("running reservation sweep: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		// Wait for message router
		<-s.msgRouter.Running()

		logrus.WithField("addr", s.httpAddr).Info("Starting HTTP server...")
		err := s.httpRouter.Start(s.httpAddr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("starting http server: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-runCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		logrus.Info("Shutting down HTTP server...")
		if err := s.httpRouter.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("waiting for shutdown: %w", err)
	}
	logrus.Info("Shutdown complete.")

	return nil
}
