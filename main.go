package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"eventhub/clients"
	"eventhub/config"
	"eventhub/db"
	"eventhub/entity"
	"eventhub/service"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v82"
)

func main() {
	log.Init(logrus.InfoLevel)
	logger := watermill.NewStdLogger(false, false)

	if err := run(logger); err != nil {
		logger.Error("failed to run", err, nil)
		os.Exit(1)
	}
}

func run(logger watermill.LoggerAdapter) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("failed to close redis connection", err, nil)
		}
	}()

	dbConn, err := sqlx.Open("postgres", cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("connecting to db: %w", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close db connection", err, nil)
		}
	}()

	if err := db.InitialiseDB(ctx, dbConn); err != nil {
		return fmt.Errorf("initialising db: %w", err)
	}

	firebaseApp, err := clients.NewFirebaseApp(ctx, cfg.FirebaseCredentialsFile)
	if err != nil {
		return err
	}
	auth, err := clients.NewFirebaseAuth(ctx, firebaseApp)
	if err != nil {
		return err
	}

	deps := service.Deps{
		Config:      cfg,
		DB:          dbConn,
		RedisClient: rdb,
		Logger:      logger,
		Auth:        auth,
		Notifier:    clients.LogNotifier{},
		Payments:    clients.NewPayments(),
	}

	if cfg.FirebaseCredentialsFile != "" {
		notifier, err := clients.NewPushNotifier(ctx, firebaseApp)
		if err != nil {
			return err
		}
		deps.Notifier = notifier
	}

	verifyURL := cfg.PublicURL + "/payments/verify"

	if cfg.Features.Paystack {
		deps.Payments.Register(entity.PaymentMethodPaystack, clients.NewPaystack(cfg.PaystackURL, cfg.PaystackSecretKey, verifyURL))
	}

	if cfg.Features.Stripe {
		s := clients.NewStripe(stripe.NewClient(cfg.StripeSecretKey), cfg.StripeWebhookSecret, verifyURL, cfg.PublicURL, cfg.ReservationTTL)
		deps.Payments.Register(entity.PaymentMethodStripe, s)
		deps.Stripe = s
	}

	if cfg.Features.CryptoPayments {
		chain, err := ethclient.DialContext(ctx, cfg.EthRPCURL)
		if err != nil {
			return fmt.Errorf("connecting to ethereum node: %w", err)
		}
		defer chain.Close()

		ledger, err := clients.NewLedger(chain, cfg.EthWallet, cfg.EthChainID, cfg.EthRate, cfg.EthRateCurrency)
		if err != nil {
			return fmt.Errorf("creating ledger backend: %w", err)
		}
		deps.Payments.Register(entity.PaymentMethodCrypto, ledger)
	}

	svc, err := service.New(deps)
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}

	return svc.Run(ctx)
}
