package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type FeatureFlags struct {
	Voting         bool `json:"voting"`
	Paystack       bool `json:"paystack"`
	Stripe         bool `json:"stripe"`
	CryptoPayments bool `json:"crypto_payments"`
	QRTickets      bool `json:"qr_tickets"`
	LiveAttendance bool `json:"live_attendance"`
}

type Config struct {
	HTTPAddr    string
	PostgresURL string
	RedisAddr   string
	// PublicURL is where buyers reach this service; payment processors
	// redirect back to it.
	PublicURL string

	PaystackURL       string
	PaystackSecretKey string

	StripeSecretKey     string
	StripeWebhookSecret string

	EthRPCURL       string
	EthWallet       string
	EthChainID      int64
	EthRate         decimal.Decimal
	EthRateCurrency string

	FirebaseCredentialsFile string

	ReservationTTL time.Duration
	SweepInterval  time.Duration
	ListingFee     decimal.Decimal
	Currency       string

	Features FeatureFlags
}

// Load reads the configuration from the environment. Variables from a .env
// file (ENV_FILE, default ".env") fill in what the environment leaves unset.
func Load() (Config, error) {
	envFile := getEnvOrDefault("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("loading %s: %w", envFile, err)
	}

	e := &env{}
	cfg := Config{
		HTTPAddr:    getEnvOrDefault("HTTP_ADDR", ":8080"),
		PostgresURL: os.Getenv("POSTGRES_URL"),
		RedisAddr:   getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		PublicURL:   getEnvOrDefault("PUBLIC_URL", "http://localhost:8080"),

		PaystackURL:       getEnvOrDefault("PAYSTACK_URL", "https://api.paystack.co"),
		PaystackSecretKey: os.Getenv("PAYSTACK_SECRET_KEY"),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),

		EthRPCURL:       os.Getenv("ETH_RPC_URL"),
		EthWallet:       os.Getenv("ETH_WALLET_ADDRESS"),
		EthChainID:      e.int64("ETH_CHAIN_ID", 1),
		EthRate:         e.decimal("ETH_RATE", decimal.Zero),
		EthRateCurrency: getEnvOrDefault("ETH_RATE_CURRENCY", "NGN"),

		FirebaseCredentialsFile: os.Getenv("FIREBASE_CREDENTIALS_FILE"),

		ReservationTTL: e.duration("RESERVATION_TTL", 15*time.Minute),
		SweepInterval:  e.duration("SWEEP_INTERVAL", time.Minute),
		ListingFee:     e.decimal("LISTING_FEE", decimal.Zero),
		Currency:       getEnvOrDefault("CURRENCY", "NGN"),

		Features: FeatureFlags{
			Voting:         true,
			Paystack:       true,
			QRTickets:      true,
			LiveAttendance: true,
		},
	}

	if path := os.Getenv("FEATURE_FLAGS_FILE"); path != "" {
		if err := loadFeatureFlags(path, &cfg.Features); err != nil {
			e.errs = append(e.errs, err)
		}
	}
	cfg.Features.Voting = e.bool("FEATURE_VOTING", cfg.Features.Voting)
	cfg.Features.Paystack = e.bool("FEATURE_PAYSTACK", cfg.Features.Paystack)
	cfg.Features.Stripe = e.bool("FEATURE_STRIPE", cfg.Features.Stripe)
	cfg.Features.CryptoPayments = e.bool("FEATURE_CRYPTO_PAYMENTS", cfg.Features.CryptoPayments)
	cfg.Features.QRTickets = e.bool("FEATURE_QR_TICKETS", cfg.Features.QRTickets)
	cfg.Features.LiveAttendance = e.bool("FEATURE_LIVE_ATTENDANCE", cfg.Features.LiveAttendance)

	if err := errors.Join(e.errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.PostgresURL == "" {
		errs = append(errs, errors.New("POSTGRES_URL is required"))
	}
	if c.Features.Paystack && c.PaystackSecretKey == "" {
		errs = append(errs, errors.New("PAYSTACK_SECRET_KEY is required when paystack is enabled"))
	}
	if c.Features.Stripe && (c.StripeSecretKey == "" || c.StripeWebhookSecret == "") {
		errs = append(errs, errors.New("STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET are required when stripe is enabled"))
	}
	if c.Features.CryptoPayments {
		if c.EthRPCURL == "" || c.EthWallet == "" {
			errs = append(errs, errors.New("ETH_RPC_URL and ETH_WALLET_ADDRESS are required when crypto payments are enabled"))
		}
		if !c.EthRate.IsPositive() {
			errs = append(errs, errors.New("ETH_RATE must be positive when crypto payments are enabled"))
		}
	}
	if !c.Features.Paystack && !c.Features.Stripe && !c.Features.CryptoPayments {
		errs = append(errs, errors.New("at least one payment method must be enabled"))
	}
	if c.ReservationTTL <= 0 || c.SweepInterval <= 0 {
		errs = append(errs, errors.New("RESERVATION_TTL and SWEEP_INTERVAL must be positive"))
	}
	if c.ListingFee.IsNegative() {
		errs = append(errs, errors.New("LISTING_FEE must not be negative"))
	}
	return errors.Join(errs...)
}

type featureFlagsFile struct {
	Features FeatureFlags `json:"features"`
}

func loadFeatureFlags(path string, flags *FeatureFlags) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading feature flags: %w", err)
	}

	file := featureFlagsFile{Features: *flags}
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing feature flags %s: %w", path, err)
	}

	*flags = file.Features
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// env collects parse errors so Load can report every bad variable at once.
type env struct {
	errs []error
}

func (e *env) bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (e *env) int64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (e *env) decimal(key string, def decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}
