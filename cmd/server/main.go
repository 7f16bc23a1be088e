package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/chargenet/csms/internal/adapter/cache"
	"github.com/chargenet/csms/internal/adapter/http/fiber/handlers"
	"github.com/chargenet/csms/internal/adapter/http/fiber/middleware"
	v16 "github.com/chargenet/csms/internal/adapter/ocpp/v16"
	"github.com/chargenet/csms/internal/adapter/queue"
	"github.com/chargenet/csms/internal/adapter/storage/postgres"
	"github.com/chargenet/csms/internal/adapter/vault"
	wsAdapter "github.com/chargenet/csms/internal/adapter/websocket"
	"github.com/chargenet/csms/internal/observability/telemetry"
	"github.com/chargenet/csms/internal/ports"
	"github.com/chargenet/csms/internal/service/audit"
	"github.com/chargenet/csms/internal/service/auth"
	"github.com/chargenet/csms/internal/service/charger"
	"github.com/chargenet/csms/internal/service/email"
	"github.com/chargenet/csms/internal/service/payment"
	"github.com/chargenet/csms/internal/service/session"
	"github.com/chargenet/csms/internal/service/ticket"
	"github.com/chargenet/csms/internal/service/wallet"
	"github.com/chargenet/csms/pkg/config"
)

const (
	serviceName    = "chargenet-csms"
	serviceVersion = "v1.0.0"
)

func main() {
	// 1. Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// 2. Logger
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	logger.Info("Starting ChargeNet CSMS",
		zap.String("service", serviceName),
		zap.String("version", serviceVersion),
		zap.String("environment", cfg.App.Environment),
	)

	// 3. Vault (optional): secrets in Vault override the environment.
	if cfg.Vault.Enabled {
		secrets, err := vault.NewSecretManager(cfg.Vault.Address, cfg.Vault.Token)
		if err != nil {
			logger.Fatal("Failed to connect to Vault", zap.Error(err))
		}
		if dbURL, err := secrets.GetDatabaseURL(); err == nil && dbURL != "" {
			cfg.Database.URL = dbURL
		}
		if jwtSecret, err := secrets.GetJWTSecret(); err == nil && jwtSecret != "" {
			cfg.JWT.SecretKey = jwtSecret
		}
		logger.Info("Vault secrets loaded")
	}
	if cfg.JWT.SecretKey == "" {
		logger.Fatal("JWT secret key is not configured")
	}

	// 4. Distributed tracing
	if cfg.OpenTelemetry.Enabled {
		tracerProvider, err := telemetry.InitTracer(serviceName, cfg.OpenTelemetry.JaegerEndpoint)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			if err := tracerProvider.Shutdown(context.Background()); err != nil {
				logger.Error("Error shutting down tracer provider", zap.Error(err))
			}
		}()
	}

	// 5. PostgreSQL
	db, err := postgres.NewConnection(cfg.Database.URL, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("Failed to get underlying SQL DB", zap.Error(err))
	}
	defer sqlDB.Close()

	if cfg.Database.AutoMigrate {
		if err := postgres.RunMigrations(db); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
	}

	// 6. Cache: Redis when configured, in-memory otherwise.
	var appCache ports.Cache
	if cfg.Redis.URL != "" {
		appCache, err = cache.NewRedisCache(cfg.Redis.URL, logger)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
	} else {
		appCache = cache.NewLocalCache(time.Minute, logger)
	}
	defer appCache.Close()

	// 7. Event broker (optional).
	var messageQueue queue.MessageQueue
	var events ports.EventPublisher
	switch cfg.Queue.Driver {
	case "nats":
		messageQueue, err = queue.NewNATSQueue(cfg.Queue.NATSURL, logger)
	case "rabbitmq":
		messageQueue, err = queue.NewRabbitMQQueue(cfg.Queue.RabbitMQURL, logger)
	case "":
		logger.Info("Event broker disabled")
	default:
		logger.Fatal("Unknown queue driver", zap.String("driver", cfg.Queue.Driver))
	}
	if err != nil {
		logger.Fatal("Failed to connect to event broker", zap.Error(err))
	}
	if messageQueue != nil {
		defer messageQueue.Close()
		events = queue.NewPublisher(messageQueue)
	}

	// 8. Repositories
	chargerRepo := postgres.NewChargerRepository(db, logger)
	sessionRepo := postgres.NewSessionRepository(db, logger)
	userRepo := postgres.NewUserRepository(db, logger)
	walletRepo := postgres.NewWalletRepository(db, logger)
	paymentRepo := postgres.NewPaymentRepository(db, logger)
	ticketRepo := postgres.NewTicketRepository(db, logger)
	auditRepo := postgres.NewAuditRepository(db, logger)
	maintenanceRepo := postgres.NewMaintenanceRepository(db, logger)
	pricingRepo := postgres.NewPricingRepository(db, logger)

	clock := ports.RealClock{}
	auditRecorder := audit.NewRecorder(auditRepo, clock, logger)

	// 9. Mailer
	mailer, err := email.NewService(&email.Config{
		Provider:       cfg.Email.Provider,
		FromEmail:      cfg.Email.FromEmail,
		FromName:       cfg.Email.FromName,
		SendGridAPIKey: cfg.Email.SendGridAPIKey,
		SMTPHost:       cfg.Email.SMTPHost,
		SMTPPort:       cfg.Email.SMTPPort,
		SMTPUsername:   cfg.Email.SMTPUsername,
		SMTPPassword:   cfg.Email.SMTPPassword,
		SMTPUseTLS:     cfg.Email.SMTPUseTLS,
		BaseURL:        cfg.App.BaseURL,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize mailer", zap.Error(err))
	}

	// 10. Auth
	jwtService := auth.NewJWTService(cfg.JWT.SecretKey,
		cfg.JWT.AccessDuration(), cfg.JWT.RefreshDuration(), appCache, logger)
	authService := auth.NewService(userRepo, jwtService, auditRecorder, mailer, clock, logger)
	if err := authService.EnsureAdmin(context.Background(),
		cfg.Admin.Name, cfg.Admin.Email, cfg.Admin.Password); err != nil {
		logger.Fatal("Failed to bootstrap admin account", zap.Error(err))
	}

	// 11. Domain services
	walletService := wallet.NewService(walletRepo, auditRecorder, events, clock, logger)
	chargerService := charger.NewService(chargerRepo, userRepo, appCache, events, clock, logger)

	paymentService := payment.NewService(paymentRepo, userRepo, walletService,
		auditRecorder, events, clock, logger)
	registerGateways(paymentService, cfg.Payment, logger)

	ticketService := ticket.NewService(ticketRepo, userRepo, mailer, events, clock,
		time.Duration(cfg.Tickets.ReminderCooldownHours)*time.Hour, logger)

	// 12. OCPP gateway. The server is built first, then handlers are bound,
	// so the session engine can send commands through the same server.
	ocppServer := v16.NewServer(logger)
	sessionService := session.NewService(sessionRepo, chargerRepo, pricingRepo,
		ocppServer, events, clock, logger)
	ocppServer.Bind(v16.NewHandlers(chargerService, sessionService, logger))

	go func() {
		logger.Info("Starting OCPP WebSocket server", zap.Int("port", cfg.OCPP.Port))
		if err := ocppServer.Start(cfg.OCPP.Port); err != nil {
			logger.Fatal("OCPP server failed", zap.Error(err))
		}
	}()

	// 13. Live-update hub
	wsHub := wsAdapter.NewHub(logger)
	go wsHub.Run()
	if messageQueue != nil {
		if err := wsHub.BindQueue(messageQueue,
			ports.SubjectChargerEvents, ports.SubjectSessionEvents,
			ports.SubjectPaymentEvents, ports.SubjectTicketEvents); err != nil {
			logger.Error("Failed to bind hub to event broker", zap.Error(err))
		}
	}

	// 14. SLA reminder loop
	reminderCtx, cancelReminders := context.WithCancel(context.Background())
	defer cancelReminders()
	go ticketService.RunReminderLoop(reminderCtx,
		time.Duration(cfg.Tickets.ReminderCheckMinutes)*time.Minute)

	// 15. HTTP server
	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           cfg.HTTP.ReadTimeout,
		WriteTimeout:          cfg.HTTP.WriteTimeout,
		IdleTimeout:           cfg.HTTP.IdleTimeout,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(middleware.NewCORS(cfg.CORS))
	if cfg.CircuitBreaker.Enabled {
		app.Use(middleware.CircuitBreaker(logger))
	}

	app.Get("/health/live", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})
	app.Get("/health/ready", func(c *fiber.Ctx) error {
		if err := sqlDB.Ping(); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).SendString("Database not ready")
		}
		if err := appCache.Ping(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).SendString("Cache not ready")
		}
		return c.SendString("Ready")
	})

	if cfg.Prometheus.Enabled {
		metricsHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
		app.Get(cfg.Prometheus.Path, func(c *fiber.Ctx) error {
			metricsHandler(c.Context())
			return nil
		})
	}

	registerRoutes(app, routeDeps{
		auth:           authService,
		sessions:       sessionService,
		chargers:       chargerService,
		wallet:         walletService,
		payments:       paymentService,
		tickets:        ticketService,
		ticketSvc:      ticketService,
		ocpp:           ocppServer,
		maintenance:    maintenanceRepo,
		pricing:        pricingRepo,
		audit:          auditRecorder,
		hub:            wsHub,
		callbackSecret: cfg.Payment.CallbackSecret,
		log:            logger,
	})

	go func() {
		logger.Info("Starting HTTP server", zap.Int("port", cfg.HTTP.Port))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.HTTP.Port)); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 16. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	cancelReminders()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error("HTTP server forced to shut down", zap.Error(err))
	}
	ocppServer.Stop()

	logger.Info("Server exited")
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		zapCfg.Level = level
	}
	return zapCfg.Build()
}

// registerGateways wires every payment provider with credentials configured.
// The manual gateway is always available unless explicitly disabled.
func registerGateways(svc *payment.Service, cfg config.PaymentConfig, logger *zap.Logger) {
	if cfg.ManualEnabled {
		svc.RegisterGateway(payment.NewManualGateway())
	}
	if cfg.Billplz.APIKey != "" {
		svc.RegisterGateway(payment.NewBillplzGateway(payment.BillplzConfig{
			BaseURL:       cfg.Billplz.BaseURL,
			APIKey:        cfg.Billplz.APIKey,
			XSignatureKey: cfg.Billplz.XSignatureKey,
			CollectionID:  cfg.Billplz.CollectionID,
		}, logger))
	}
	if cfg.OCBC.APIKey != "" {
		svc.RegisterGateway(payment.NewOCBCGateway(payment.OCBCConfig{
			BaseURL:   cfg.OCBC.BaseURL,
			APIKey:    cfg.OCBC.APIKey,
			APISecret: cfg.OCBC.APISecret,
		}, logger))
	}
	if cfg.Stripe.SecretKey != "" {
		svc.RegisterGateway(payment.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret))
	}
}

type routeDeps struct {
	auth           ports.AuthService
	sessions       ports.SessionService
	chargers       ports.ChargerService
	wallet         ports.WalletService
	payments       ports.PaymentService
	tickets        ports.TicketService
	ticketSvc      *ticket.Service
	ocpp           *v16.Server
	maintenance    ports.MaintenanceRepository
	pricing        ports.PricingRepository
	audit          *audit.Recorder
	hub            *wsAdapter.Hub
	callbackSecret string
	log            *zap.Logger
}

func registerRoutes(app *fiber.App, d routeDeps) {
	api := app.Group("/api")

	// Public
	authHandler := handlers.NewAuthHandler(d.auth, d.log)
	api.Post("/auth/register", authHandler.Register)
	api.Post("/auth/login", authHandler.Login)
	api.Post("/auth/refresh", authHandler.Refresh)

	paymentHandler := handlers.NewPaymentHandler(d.payments, d.sessions, d.wallet, d.callbackSecret, d.log)
	api.Post("/payment/callback/:gateway", paymentHandler.Callback)

	// Anyone can open a support ticket; a bearer token, when present, ties
	// it to the account.
	ticketHandler := handlers.NewTicketHandler(d.tickets, d.auth, d.log)
	api.Post("/tickets", middleware.AuthOptional(d.auth), ticketHandler.Create)

	// Authenticated
	protected := api.Group("", middleware.AuthRequired(d.auth))
	protected.Post("/auth/logout", authHandler.Logout)
	protected.Get("/auth/me", authHandler.Me)
	protected.Post("/auth/change-password", authHandler.ChangePassword)

	chargerHandler := handlers.NewChargerHandler(d.chargers, d.ocpp, d.log)
	protected.Get("/chargers", chargerHandler.List)
	protected.Get("/chargers/:cpid", chargerHandler.Get)

	chargingHandler := handlers.NewChargingHandler(d.sessions, d.log)
	protected.Post("/charging/start", chargingHandler.RemoteStart)
	protected.Post("/charging/stop", chargingHandler.RemoteStop)
	protected.Get("/charging/sessions", chargingHandler.ListSessions)
	protected.Get("/charging/sessions/:id", chargingHandler.GetSession)

	walletHandler := handlers.NewWalletHandler(d.wallet, d.log)
	protected.Get("/wallet", walletHandler.Get)
	protected.Get("/wallet/transactions", walletHandler.ListTransactions)
	protected.Post("/wallet/redeem", walletHandler.Redeem)
	protected.Get("/wallet/rewards", walletHandler.ListRewards)

	protected.Post("/payment/topup", paymentHandler.CreateTopup)
	protected.Post("/payment/process", paymentHandler.ProcessSessionPayment)
	protected.Post("/payment/approve/:ref", middleware.AdminRequired(), paymentHandler.ApproveManual)
	protected.Get("/payment", paymentHandler.ListMine)
	protected.Get("/payment/gateways", paymentHandler.ListGateways)
	protected.Get("/payment/:ref", paymentHandler.Get)
	protected.Post("/payment/:ref/check", paymentHandler.CheckStatus)

	protected.Get("/tickets", ticketHandler.List)
	protected.Get("/tickets/:id", ticketHandler.Get)
	protected.Post("/tickets/:id/messages", ticketHandler.AddMessage)
	protected.Get("/tickets/:id/messages", ticketHandler.ListMessages)

	// Outbound OCPP commands, one endpoint per action.
	commandHandler := handlers.NewCommandHandler(d.ocpp, d.log)
	ocpp := protected.Group("/ocpp/:cpid", middleware.AdminRequired())
	ocpp.Post("/get-configuration", commandHandler.GetConfiguration)
	ocpp.Post("/change-configuration", commandHandler.ChangeConfiguration)
	ocpp.Post("/change-availability", commandHandler.ChangeAvailability)
	ocpp.Post("/clear-cache", commandHandler.ClearCache)
	ocpp.Post("/reset", commandHandler.Reset)
	ocpp.Post("/unlock-connector", commandHandler.UnlockConnector)
	ocpp.Post("/get-diagnostics", commandHandler.GetDiagnostics)
	ocpp.Post("/update-firmware", commandHandler.UpdateFirmware)
	ocpp.Post("/reserve-now", commandHandler.ReserveNow)
	ocpp.Post("/cancel-reservation", commandHandler.CancelReservation)
	ocpp.Post("/data-transfer", commandHandler.DataTransfer)
	ocpp.Post("/get-local-list-version", commandHandler.GetLocalListVersion)
	ocpp.Post("/send-local-list", commandHandler.SendLocalList)
	ocpp.Post("/trigger-message", commandHandler.TriggerMessage)
	ocpp.Post("/get-composite-schedule", commandHandler.GetCompositeSchedule)
	ocpp.Post("/clear-charging-profile", commandHandler.ClearChargingProfile)
	ocpp.Post("/set-charging-profile", commandHandler.SetChargingProfile)

	// Admin
	admin := protected.Group("/admin", middleware.AdminRequired())
	admin.Post("/chargers", chargerHandler.Register)
	admin.Get("/chargers/connected", chargerHandler.Connected)
	admin.Patch("/chargers/:cpid/config", chargerHandler.UpdateConfig)
	admin.Delete("/chargers/:id", chargerHandler.Delete)
	admin.Get("/chargers/:cpid/meter-values", chargingHandler.ListMeterValues)
	admin.Get("/chargers/:cpid/faults", chargingHandler.ListFaults)

	admin.Post("/wallet/credit", walletHandler.AdminCredit)

	admin.Patch("/tickets/:id/status", ticketHandler.UpdateStatus)
	admin.Patch("/tickets/:id/priority", ticketHandler.UpdatePriority)
	admin.Patch("/tickets/:id/assign", ticketHandler.AssignStaff)
	admin.Get("/tickets-stats", ticketHandler.Stats)
	admin.Get("/tickets-overdue", ticketHandler.ListOverdue)

	adminHandler := handlers.NewAdminHandler(d.maintenance, d.pricing, d.ticketSvc, d.audit, d.log)
	admin.Post("/maintenance", adminHandler.CreateMaintenance)
	admin.Patch("/maintenance/:id", adminHandler.UpdateMaintenance)
	admin.Get("/maintenance", adminHandler.ListMaintenance)
	admin.Post("/pricing", adminHandler.SavePricing)
	admin.Get("/pricing", adminHandler.ListPricing)
	admin.Get("/pricing/active", adminHandler.GetActivePricing)
	admin.Post("/staff", adminHandler.CreateStaff)
	admin.Get("/staff", adminHandler.ListStaff)
	admin.Get("/audit-log", adminHandler.ListAuditLog)

	// Live updates for dashboards
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/updates", websocket.New(func(c *websocket.Conn) {
		d.hub.AddClient(c, c.Query("userId", "guest"))
	}))
}
