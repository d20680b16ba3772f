package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"ms-enrollment/internal/auth"
	"ms-enrollment/internal/catalog"
	"ms-enrollment/internal/config"
	"ms-enrollment/internal/database/migrations"
	"ms-enrollment/internal/identity"
	"ms-enrollment/internal/kafka"
	"ms-enrollment/internal/logger"
	"ms-enrollment/internal/mailer"
	"ms-enrollment/internal/messaging"
	"ms-enrollment/internal/models"
	"ms-enrollment/internal/notify"
	"ms-enrollment/internal/order"
	"ms-enrollment/internal/order/db"
	"ms-enrollment/internal/order/order_api"
	"ms-enrollment/internal/reminder"
	"ms-enrollment/internal/reminder/reminder_api"
	"ms-enrollment/internal/sse"
	"ms-enrollment/internal/telemetry"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/go-resty/resty/v2"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func connectDatabase(cfg config.DatabaseConfig, log *logger.Logger) *bun.DB {
	if cfg.DSN == "" {
		log.Fatal("CONFIG", "POSTGRES_DSN not set")
	}

	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err == nil {
			err = sqldb.Ping()
		}
		if err == nil {
			break
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func newRestClient(timeout time.Duration) *resty.Client {
	return resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", "ms-enrollment/1.0")
}

func healthz(bunDB *bun.DB, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := bunDB.PingContext(ctx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Enrollment Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}
	cfg := config.Load()

	if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN, AttachStacktrace: true}); err != nil {
		log.Warn("SENTRY", fmt.Sprintf("Sentry disabled: %v", err))
	}
	defer sentry.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Storage ---
	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(cfg.Database.DSN, log)
		if err := runner.MigrateUp(); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Migration failed: %v", err))
		}
		if err := runner.Close(); err != nil {
			log.Warn("DATABASE", err.Error())
		}
	}
	bunDB := connectDatabase(cfg.Database, log)
	defer bunDB.Close()
	store := &db.DB{Bun: bunDB}

	redisClient, err := auth.InitializeRedis(cfg.Redis, log)
	if err != nil {
		log.Fatal("REDIS", fmt.Sprintf("Redis connection error: %v", err))
	}
	defer redisClient.Close()

	counters := telemetry.NewCounters(redisClient, log)

	// --- External collaborators ---
	tokens := auth.NewM2MTokenSource(models.Config{
		KeycloakURL:   cfg.Identity.BaseURL,
		KeycloakRealm: cfg.Identity.Realm,
		ClientID:      cfg.Identity.ClientID,
		ClientSecret:  cfg.Identity.ClientSecret,
	}, newRestClient(cfg.Identity.Timeout), auth.NewRedisTokenCache(redisClient), log)
	identityClient := identity.NewClient(cfg.Identity.BaseURL, cfg.Identity.Realm, newRestClient(cfg.Identity.Timeout), tokens, log)
	catalogClient := catalog.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.APIToken, newRestClient(cfg.Catalog.Timeout), redisClient, cfg.Catalog.CacheTTL, log)
	mailClient := mailer.NewSendGridClient(mailer.Options{
		BaseURL:   cfg.Email.BaseURL,
		APIKey:    cfg.Email.APIKey,
		FromEmail: cfg.Email.FromEmail,
		FromName:  cfg.Email.FromName,
		MockMode:  cfg.Email.MockMode,
	}, newRestClient(cfg.Email.Timeout), log)
	pushClient := messaging.NewClient(cfg.Push.BaseURL, cfg.Push.ChannelToken, newRestClient(cfg.Push.Timeout), log)

	// --- Notification fan-out ---
	adminChannel := notify.NewAdminChannel(pushClient, cfg.Staff.PushTargets, cfg.Staff.ConsoleURL, log, counters)
	orchestrator := notify.NewOrchestrator(
		notify.NewEmailChannel(mailClient, cfg.Email.TemplateID, log, counters),
		notify.NewPushChannel(pushClient, cfg.Push.CheckRelationship, log, counters),
		adminChannel,
		cfg.Site, log, counters,
	)
	resolver := reminder.NewResolver(store, identityClient, catalogClient)

	dispatcher := reminder.NewDispatcher(reminder.DispatcherOptions{
		TriggerURL:    cfg.Reminder.TriggerURL,
		Origin:        cfg.Site.BaseURL,
		InternalToken: cfg.Reminder.InternalToken,
		Workers:       cfg.Reminder.Workers,
		QueueSize:     cfg.Reminder.QueueSize,
		Telemetry:     counters,
	}, newRestClient(2*time.Minute), log)
	dispatcher.Start()

	// --- Events ---
	emitter := sse.NewOrderEventEmitter()
	var events order.EventPublisher
	if cfg.Kafka.Enabled {
		topics := []string{cfg.Kafka.Topics.OrderCreated, cfg.Kafka.Topics.OrderStateChanged, cfg.Kafka.Topics.UserRegistered}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}

		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics, log)
		defer producer.Close()
		events = producer

		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.UserRegistered, cfg.Kafka.GroupID, log)
		defer consumer.Close()
		go func() {
			err := consumer.Run(ctx, func(ctx context.Context, ev models.UserRegisteredEvent) error {
				p := ev.Profile()
				if err := store.UpsertProfile(ctx, &p); err != nil {
					return fmt.Errorf("upsert profile: %w", err)
				}
				adminChannel.NotifyRegistration(ctx, ev)
				return nil
			})
			if err != nil {
				log.Error("KAFKA", fmt.Sprintf("Registration consumer stopped: %v", err))
			}
		}()
	} else {
		log.Warn("KAFKA", "Kafka disabled, lifecycle events stay in-process")
	}

	orderService := order.NewOrderService(store, catalogClient, dispatcher, events, emitter, log)

	// --- HTTP ---
	verifier, err := auth.NewOIDCVerifier(ctx, cfg.Auth.OIDCIssuer)
	if err != nil {
		log.Fatal("AUTH", fmt.Sprintf("Failed to initialize token verifier: %v", err))
	}
	authMiddleware := auth.NewMiddleware(verifier, log)

	handler := order_api.NewHandler(orderService, store, counters, log)
	sseHandler := order_api.NewSSEHandler(orderService, emitter, log)
	reminderHandler := reminder_api.NewHandler(
		resolver, orchestrator, adminChannel,
		reminder_api.NewOriginSet(cfg.Site.AllowedOrigins),
		reminder_api.NewClientLimiter(cfg.Reminder.RatePerMin, cfg.Reminder.RateBurst),
		counters, log,
	)
	reminderHandler.InternalToken = cfg.Reminder.InternalToken

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Site.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// --- Public Routes ---
	r.Get("/healthz", healthz(bunDB, redisClient))
	r.Post("/reminders/payment", reminderHandler.TriggerPaymentReminder)
	log.Info("ROUTER", "Reminder trigger registered at /reminders/payment")

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Route("/api/orders", func(r chi.Router) {
			r.Post("/", handler.CreateOrder)
			r.Get("/", handler.ListOrders)
			r.Get("/events", sseHandler.HandleUserEvents)
			r.Get("/{orderId}", handler.GetOrder)
			r.Get("/{orderId}/events", sseHandler.HandleOrderEvents)
			r.Post("/{orderId}/payment-report", handler.ReportPayment)
			r.Post("/{orderId}/messaged", handler.ReportMessaged)
		})
		log.Info("ROUTER", "Order routes registered under /api/orders")

		r.Route("/internal", func(r chi.Router) {
			r.Use(authMiddleware.RequireRole(cfg.Auth.StaffRole))
			r.Post("/orders/{orderId}/confirm", handler.ConfirmOrder)
			r.Get("/notifications/stats", handler.NotificationStats)
		})
		log.Info("ROUTER", fmt.Sprintf("Staff routes registered under /internal (role %q)", cfg.Auth.StaffRole))
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Enrollment Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP", fmt.Sprintf("HTTP server error: %v", err))
			stop()
		}
	}()

	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Queued reminders call back into this server, so drain them first
	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Reminder.DrainPeriod)
	defer drainCancel()
	dispatcher.Shutdown(drainCtx)

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	}
	log.Info("APP", "Enrollment Service shutdown complete")
}
