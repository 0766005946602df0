package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/NathalieLiekens/vp-backend/pkg/auth"
	"github.com/NathalieLiekens/vp-backend/pkg/config"
	"github.com/NathalieLiekens/vp-backend/pkg/db"
	"github.com/NathalieLiekens/vp-backend/pkg/mail"
	"github.com/NathalieLiekens/vp-backend/pkg/mq"
	"github.com/NathalieLiekens/vp-backend/pkg/obs"
	"github.com/NathalieLiekens/vp-backend/services/booking-service/internal/availability"
	httpx "github.com/NathalieLiekens/vp-backend/services/booking-service/internal/http"
	"github.com/NathalieLiekens/vp-backend/services/booking-service/internal/notifier"
	"github.com/NathalieLiekens/vp-backend/services/booking-service/internal/payment"
	"github.com/NathalieLiekens/vp-backend/services/booking-service/internal/repository"
	"github.com/NathalieLiekens/vp-backend/services/booking-service/internal/service"
)

const serviceName = "booking-service"

func must[T any](v T, err error) T {
	if err != nil {
		log.Fatal(err)
	}
	return v
}

func main() {
	cfg := must(config.Load())
	logger := obs.NewLogger(serviceName, cfg.Env)
	logger.WithFields(presence(cfg)).Info("[booking] configuration")

	shutdownTracer := must(obs.InitTracer(serviceName, cfg.OTLPEndpoint, cfg.Env))
	defer func() { _ = shutdownTracer(context.Background()) }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	repo, closeStore := must2(openStore(ctx, cfg, logger))
	defer closeStore()
	must(0, repo.Migrate(ctx))

	pay, err := openProvider(cfg)
	if err != nil {
		// bookings without a payment still go through
		logger.WithError(err).Error("[booking] payment provider unavailable")
	}

	n, closeNotifier := must2(openNotifier(cfg, logger))
	defer closeNotifier()

	// Calendar feed
	cache := availability.NewCache()
	syncOpts := []availability.Option{availability.WithSyncTimeout(cfg.FeedTimeout)}
	if cfg.RedisURL != "" {
		opt := must(redis.ParseURL(cfg.RedisURL))
		rdb := redis.NewClient(opt)
		defer rdb.Close()
		syncOpts = append(syncOpts, availability.WithSnapshots(availability.NewRedisSnapshot(rdb, cfg.SnapshotKey)))
	}
	if cfg.ICalURL == "" {
		logger.Warn("[booking] ICAL_URL not set, blocked dates will stay empty")
	}
	feed := availability.NewSynchronizer(cache, availability.NewHTTPFetcher(cfg.ICalURL, cfg.FeedTimeout), logger, syncOpts...)
	feed.Warm(ctx)
	go func() {
		if _, err := feed.Sync(ctx); err != nil {
			logger.WithError(err).Warn("[booking] initial feed sync failed")
		}
	}()
	sched := must(availability.NewScheduler(feed, cfg.FeedSchedule, cfg.FeedTimeout))
	sched.Start()

	svc := service.NewBookingSvc(repo, pay, n, logger, service.Options{
		Currency:            cfg.PaymentCurrency,
		FreeCodes:           cfg.FreeDiscountCodes,
		PaymentTimeout:      cfg.PaymentTimeout,
		EnforceAvailability: cfg.EnforceAvailability,
		PendingHold:         cfg.PendingHold,
		Blocks:              cache,
	})

	var signer *auth.Signer
	if cfg.JWTSecret != "" {
		signer = must(auth.NewSigner(cfg.JWTSecret))
	} else {
		logger.Warn("[booking] JWT_SECRET not set, owner API disabled")
	}

	router := httpx.NewRouter(httpx.NewHandler(svc, feed, pay, logger), httpx.RouterConfig{
		ServiceName:    serviceName,
		AllowedOrigins: cfg.AllowedOrigins,
		Signer:         signer,
	}, logger)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		logger.Info("[booking] HTTP listening on ", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("[booking] http server")
		}
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)
	sched.Stop()
	cancel()
	svc.Wait()
	logger.Info("[booking] stopped")
}

func must2[A, B any](a A, b B, err error) (A, B) {
	if err != nil {
		log.Fatal(err)
	}
	return a, b
}

func presence(cfg config.App) logrus.Fields {
	f := logrus.Fields{}
	for k, v := range cfg.Presence() {
		f[k] = v
	}
	return f
}

func openStore(ctx context.Context, cfg config.App, logger *logrus.Logger) (repository.BookingStore, func(), error) {
	switch cfg.StoreDriver {
	case "postgres":
		gdb, err := db.Open(cfg.PGBookingDSN)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if sqlDB, err := gdb.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return repository.NewBookingRepo(gdb), closeFn, nil
	case "mongo":
		client, err := db.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() { _ = client.Disconnect(context.Background()) }
		return repository.NewMongoBookingRepo(client.Database(cfg.MongoDatabase), logger), closeFn, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

func openProvider(cfg config.App) (payment.Provider, error) {
	switch cfg.PaymentProvider {
	case "stripe":
		s, err := payment.NewStripe(payment.StripeConfig{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			Timeout:       cfg.PaymentTimeout,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "omise":
		o, err := payment.NewOmise(payment.OmiseConfig{
			PublicKey:     cfg.OmisePublicKey,
			SecretKey:     cfg.OmiseSecretKey,
			WebhookSecret: cfg.OmiseWebhookSecret,
			SourceType:    cfg.OmiseSourceType,
			Timeout:       cfg.PaymentTimeout,
		})
		if err != nil {
			return nil, err
		}
		return o, nil
	default:
		return nil, fmt.Errorf("unknown PAYMENT_PROVIDER %q", cfg.PaymentProvider)
	}
}

// openNotifier publishes to RabbitMQ when RABBIT_URL is set and mails inline
// otherwise.
func openNotifier(cfg config.App, logger *logrus.Logger) (service.Notifier, func(), error) {
	if cfg.RabbitURL != "" {
		pub, err := mq.NewPublisher(cfg.RabbitURL, cfg.BookingExchange)
		if err != nil {
			return nil, nil, err
		}
		return notifier.NewEvents(pub), func() { _ = pub.Close() }, nil
	}
	if cfg.ResendAPIKey == "" {
		logger.Warn("[booking] RESEND_API_KEY not set, no emails will be sent")
		return nil, func() {}, nil
	}
	m := mail.NewMailer(mail.NewResendSender(cfg.ResendAPIKey), cfg.MailFrom, cfg.OwnerEmail, logger, mail.WithSiteURL(cfg.SiteURL))
	return notifier.NewMail(m), func() {}, nil
}
