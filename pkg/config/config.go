package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type App struct {
	// HTTP
	HTTPAddr       string   `envconfig:"HTTP_ADDR" default:":5000"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"https://villapurabali.com,http://localhost:5173"`
	Env            string   `envconfig:"ENV" default:"dev"`

	// DB
	StoreDriver   string `envconfig:"STORE_DRIVER" default:"postgres"`
	PGBookingDSN  string `envconfig:"PG_BOOKING_DSN"`
	MongoURI      string `envconfig:"MONGODB_URI"`
	MongoDatabase string `envconfig:"MONGODB_DATABASE" default:"villapura"`
	RedisURL      string `envconfig:"REDIS_URL"`
	SnapshotKey   string `envconfig:"SNAPSHOT_KEY" default:"villapura:blocked-dates"`

	// Calendar feed
	ICalURL      string        `envconfig:"ICAL_URL"`
	FeedSchedule string        `envconfig:"FEED_SCHEDULE" default:"0 */30 * * * *"`
	FeedTimeout  time.Duration `envconfig:"FEED_TIMEOUT" default:"10s"`

	// Payments
	PaymentProvider     string        `envconfig:"PAYMENT_PROVIDER" default:"stripe"`
	PaymentCurrency     string        `envconfig:"PAYMENT_CURRENCY" default:"aud"`
	PaymentTimeout      time.Duration `envconfig:"PAYMENT_TIMEOUT" default:"15s"`
	StripeSecretKey     string        `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string        `envconfig:"STRIPE_WEBHOOK_SECRET"`
	OmisePublicKey      string        `envconfig:"OMISE_PUBLIC_KEY"`
	OmiseSecretKey      string        `envconfig:"OMISE_SECRET_KEY"`
	OmiseWebhookSecret  string        `envconfig:"OMISE_WEBHOOK_SECRET"`
	OmiseSourceType     string        `envconfig:"OMISE_SOURCE_TYPE" default:"promptpay"`
	FreeDiscountCodes   []string      `envconfig:"FREE_DISCOUNT_CODES" default:"TESTFREE"`
	EnforceAvailability bool          `envconfig:"ENFORCE_AVAILABILITY" default:"false"`
	PendingHold         time.Duration `envconfig:"PENDING_HOLD" default:"30m"`

	// Mail
	ResendAPIKey string `envconfig:"RESEND_API_KEY"`
	MailFrom     string `envconfig:"MAIL_FROM" default:"Villa Pura <no-reply@villapurabali.com>"`
	OwnerEmail   string `envconfig:"OWNER_EMAIL"`
	SiteURL      string `envconfig:"SITE_URL" default:"https://villapurabali.com"`

	// RabbitMQ, optional: when set, notifications go through the worker
	RabbitURL       string `envconfig:"RABBIT_URL"`
	BookingExchange string `envconfig:"BOOKING_EXCHANGE" default:"booking.exchange"`

	// JWT
	JWTSecret    string `envconfig:"JWT_SECRET"`
	JWTExpireMin int    `envconfig:"JWT_EXPIRE_MIN" default:"720"`

	// Tracing, empty disables the exporter
	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load reads .env when present, then the process environment.
func Load() (App, error) {
	_ = godotenv.Load(".env")
	var c App
	err := envconfig.Process("", &c)
	return c, err
}

// Presence reports which secrets and endpoints are configured, without values.
func (c App) Presence() map[string]bool {
	return map[string]bool{
		"PG_BOOKING_DSN":        c.PGBookingDSN != "",
		"MONGODB_URI":           c.MongoURI != "",
		"ICAL_URL":              c.ICalURL != "",
		"STRIPE_SECRET_KEY":     c.StripeSecretKey != "",
		"STRIPE_WEBHOOK_SECRET": c.StripeWebhookSecret != "",
		"OMISE_SECRET_KEY":      c.OmiseSecretKey != "",
		"OMISE_WEBHOOK_SECRET":  c.OmiseWebhookSecret != "",
		"RESEND_API_KEY":        c.ResendAPIKey != "",
		"OWNER_EMAIL":           c.OwnerEmail != "",
		"RABBIT_URL":            c.RabbitURL != "",
		"REDIS_URL":             c.RedisURL != "",
		"JWT_SECRET":            c.JWTSecret != "",
	}
}
