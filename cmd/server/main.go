// Server runs the workforce-auth HTTP API and its gRPC health endpoint.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"workforce-auth/internal/audit"
	auditrepo "workforce-auth/internal/audit/repository"
	"workforce-auth/internal/channel"
	channelhandler "workforce-auth/internal/channel/handler"
	"workforce-auth/internal/config"
	"workforce-auth/internal/db"
	"workforce-auth/internal/devotp"
	devotphandler "workforce-auth/internal/devotp/handler"
	employeerepo "workforce-auth/internal/employee/repository"
	healthhandler "workforce-auth/internal/health/handler"
	"workforce-auth/internal/identity"
	"workforce-auth/internal/idp"
	"workforce-auth/internal/jobs"
	"workforce-auth/internal/mfa/challenge"
	"workforce-auth/internal/notify"
	"workforce-auth/internal/notify/email"
	"workforce-auth/internal/notify/sms"
	"workforce-auth/internal/notify/twilio"
	"workforce-auth/internal/notify/whatsapp"
	"workforce-auth/internal/platform/logging"
	"workforce-auth/internal/policy/engine"
	policyrepo "workforce-auth/internal/policy/repository"
	"workforce-auth/internal/qr"
	qrhandler "workforce-auth/internal/qr/handler"
	"workforce-auth/internal/security"
	"workforce-auth/internal/server"
	"workforce-auth/internal/server/middleware"
	"workforce-auth/internal/session"
	sessionhandler "workforce-auth/internal/session/handler"
	"workforce-auth/internal/telemetry"
	telemetryotel "workforce-auth/internal/telemetry/otel"
	"workforce-auth/internal/telemetry/producer"
	"workforce-auth/internal/throttle"
	"workforce-auth/internal/verification"
	verificationhandler "workforce-auth/internal/verification/handler"
)

const (
	shutdownTimeout = 15 * time.Second
	readyInterval   = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	otelProviders, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, cfg.OTelServiceName, cfg.OTLPInsecure)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	otelProviders.SetGlobal()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelProviders.Shutdown(sctx); err != nil {
			logger.Warn("otel shutdown", zap.Error(err))
		}
	}()

	emitters := []telemetry.EventEmitter{telemetryotel.NewEventEmitter(otelProviders.LoggerProvider)}
	if kp := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.AuthEventsTopic); kp != nil {
		defer kp.Close()
		emitters = append(emitters, kp)
		logger.Info("auth events are also written to kafka", zap.String("topic", cfg.AuthEventsTopic))
	}
	recorder, err := telemetry.NewRecorder(otelProviders.Meter(), telemetry.Multi(emitters...), logger)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer database.Close()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	} else {
		logger.Warn("REDIS_ADDR not set: codes, links and sessions are kept in process memory")
	}

	employees := employeerepo.NewPostgresRepository(database)
	auditRepo := auditrepo.NewPostgresRepository(database)
	auditLogger := audit.NewLogger(auditRepo, middleware.ClientIP, logger)
	evaluator := engine.NewOPAEvaluator(policyrepo.NewPostgresRepository(database), logger)
	resolver := identity.NewResolver(employees, logger)

	provider, err := newProvider(cfg, rdb, employees, logger)
	if err != nil {
		return err
	}

	deps := channel.Deps{
		Resolver:           resolver,
		Policy:             evaluator,
		Issuer:             provider,
		Throttle:           throttle.New(cfg.SendInterval(), cfg.SendRateBurst, nil),
		DefaultCountryCode: cfg.DefaultCountryCode,
		Recorder:           recorder,
		Logger:             logger,
	}
	var devHandler *devotphandler.Handler
	if cfg.OTPReturnToClient {
		store := devotp.NewMemoryStore(nil)
		deps.DevOTP = store
		devHandler = devotphandler.NewHandler(store, cfg.DefaultCountryCode)
	}
	smsChain := notify.NewChain(logger,
		twilio.NewSMS(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioSMSFrom, cfg.TwilioBaseURL),
		sms.NewSMSLocalClient(cfg.SMSLocalAPIKey, cfg.SMSLocalBaseURL, cfg.SMSLocalSender),
	)
	whatsAppChain := notify.NewChain(logger,
		whatsapp.NewCloudAPIClient(cfg.WhatsAppCloudToken, cfg.WhatsAppCloudPhoneNumberID, cfg.WhatsAppCloudBaseURL),
		twilio.NewWhatsApp(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppFrom, cfg.TwilioBaseURL),
		whatsapp.NewWebhookClient(cfg.WhatsAppWebhookURL, cfg.WhatsAppWebhookSecret),
	)
	if !cfg.OTPReturnToClient && !smsChain.Configured() && !whatsAppChain.Configured() {
		logger.Warn("no SMS or WhatsApp provider configured: phone codes cannot be delivered")
	}
	links := channel.NewMagicLinkSender(deps)
	orchestrator := channel.NewOrchestrator(channel.NewSMSSender(deps, smsChain), links, auditLogger, logger)
	whatsAppSender := channel.NewWhatsAppSender(deps, whatsAppChain)

	verifier := verification.NewEngine(provider, resolver, cfg.DefaultCountryCode, recorder, logger)

	sm := session.NewManager(session.ManagerOptions{
		Client:     rdb,
		CookieName: cfg.SessionCookieName,
		Lifetime:   cfg.SessionTTL(),
		Secure:     strings.HasPrefix(cfg.PublicBaseURL, "https://"),
	})
	persister := session.NewSCSPersister(sm)

	var alerts *jobs.Enqueuer
	if cfg.RedisAddr != "" {
		client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer client.Close()
		alerts = jobs.NewEnqueuer(client)
	}
	completer := session.NewCompleter(provider, persister, recorder, auditLogger, alerts, middleware.ClientIP, logger)

	qrService := qr.NewService(qrStore(cfg, rdb, database), cfg.QRLifetime(), cfg.PublicBaseURL, recorder, auditLogger, logger)

	checks := []healthhandler.Check{healthhandler.Database(database), healthhandler.Policy(evaluator)}
	if rdb != nil {
		checks = append(checks, healthhandler.Redis(rdb))
	}
	health := healthhandler.NewServer(logger, checks...)

	router := server.NewRouter(server.Handlers{
		Channels:     channelhandler.NewHandler(orchestrator, whatsAppSender, links, persister, cfg.PublicBaseURL, logger),
		Verification: verificationhandler.NewHandler(verifier, completer, persister, cfg.PublicBaseURL, logger),
		QR:           qrhandler.NewHandler(qrService, employees, completer, verifier, provider, qr.NewRenderer(), logger).WithDevices(persister),
		Session:      sessionhandler.NewHandler(completer, auditRepo, logger),
		Health:       health,
		DevOTP:       devHandler,
	}, server.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins(),
		IPLimiter:      throttle.PerMinute(cfg.IPRatePerMinute, nil),
		Sessions:       persister,
		Logger:         logger,
	})

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           sm.LoadAndSave(router),
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcSrv := server.NewGRPCServer(health, logger)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}

	errc := make(chan error, 2)
	go health.Watch(ctx, clockwork.NewRealClock(), readyInterval)
	go func() {
		logger.Info("gRPC health server listening", zap.String("addr", cfg.GRPCAddr))
		errc <- grpcSrv.Serve(lis)
	}()
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr), zap.String("env", cfg.Env))
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errc:
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(sctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	grpcSrv.GracefulStop()
	logger.Info("stopped")
	return serveErr
}

// newProvider builds the in-process identity provider over Redis when available.
func newProvider(cfg *config.Config, rdb *redis.Client, creds idp.Credentials, logger *zap.Logger) (*idp.Local, error) {
	signer, pub, generated, err := security.LoadSigningKeys(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		return nil, fmt.Errorf("signing keys: %w", err)
	}
	if generated {
		if cfg.IsProduction() {
			return nil, errors.New("JWT_PRIVATE_KEY must be set in production")
		}
		logger.Warn("JWT keys not set: magic links are signed with an ephemeral key")
	}
	tokens := security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.MagicLinkLifetime())

	var mail email.Sender
	if client := email.NewHTTPClient(cfg.EmailAPIURL, cfg.EmailAPIKey, cfg.EmailFrom); client.Configured() {
		mail = client
	} else if cfg.IsProduction() {
		return nil, errors.New("EMAIL_API_URL and EMAIL_API_KEY must be set in production")
	} else {
		logger.Warn("EMAIL_API_URL not set: magic links are written to the log")
		mail = &email.LogSender{Logger: logger}
	}

	opts := challenge.Options{TTL: cfg.OTPLifetime(), MaxAttempts: cfg.OTPMaxAttempts}
	var (
		challenges challenge.Store
		sessions   idp.SessionStore
		usedLinks  idp.UsedLinks
	)
	if rdb != nil {
		challenges = challenge.NewRedisStore(rdb, opts)
		sessions = idp.NewRedisSessionStore(rdb, nil)
		usedLinks = idp.NewRedisUsedLinks(rdb, nil)
	} else {
		challenges = challenge.NewMemoryStore(opts)
		sessions = idp.NewMemorySessionStore(nil)
		usedLinks = idp.NewMemoryUsedLinks(nil)
	}
	callback := strings.TrimRight(cfg.PublicBaseURL, "/") + "/v1/auth/magic-link/callback"
	return idp.NewLocal(challenges, tokens, mail, creds, security.NewHasher(cfg.BcryptCost), sessions, usedLinks, callback, logger), nil
}

// qrStore picks the shared QR store. Without one every session is local to this instance.
func qrStore(cfg *config.Config, rdb *redis.Client, database *sql.DB) qr.Store {
	switch {
	case cfg.QRStore == "postgres":
		return qr.NewPostgresStore(database)
	case rdb != nil:
		return qr.NewRedisStore(rdb, nil)
	}
	return nil
}
