package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"firebase.google.com/go/v4/db"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/marketdesk/admin/internal/handlers"
	"github.com/marketdesk/admin/internal/platform/auth"
	"github.com/marketdesk/admin/internal/platform/config"
	pfirestore "github.com/marketdesk/admin/internal/platform/firestore"
	"github.com/marketdesk/admin/internal/platform/httpx"
	"github.com/marketdesk/admin/internal/platform/idempotency"
	"github.com/marketdesk/admin/internal/platform/jobs"
	"github.com/marketdesk/admin/internal/platform/observability"
	prtdb "github.com/marketdesk/admin/internal/platform/rtdb"
	"github.com/marketdesk/admin/internal/platform/secrets"
	firestoreRepo "github.com/marketdesk/admin/internal/repositories/firestore"
	rtdbRepo "github.com/marketdesk/admin/internal/repositories/rtdb"
	"github.com/marketdesk/admin/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("admin")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)))
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	firebaseApp, err := auth.NewFirebaseApp(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase app", zap.Error(err))
	}
	tokenService, err := auth.NewFirebaseTokenService(ctx, firebaseApp, auth.WithFirebaseTimeout(cfg.Firebase.AuthTimeout))
	if err != nil {
		logger.Fatal("failed to initialise firebase token service", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(tokenService)

	rtdbClient, err := prtdb.NewClient(ctx, firebaseApp, cfg.Firebase.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to initialise realtime database client", zap.Error(err))
	}

	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	auditRepo, err := firestoreRepo.NewAuditLogRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise audit log repository", zap.Error(err))
	}
	profileRepo, err := rtdbRepo.NewProfileRepository(rtdbClient)
	if err != nil {
		logger.Fatal("failed to initialise profile repository", zap.Error(err))
	}

	var eventPublisher services.OrderEventPublisher
	if topicID := strings.TrimSpace(cfg.PubSub.OrderEventsTopic); topicID != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		topic := pubsubClient.Topic(topicID)
		defer topic.Stop()
		publisher, err := jobs.NewPubSubOrderEventPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		eventPublisher = publisher
	} else {
		logger.Info("order events disabled; no pubsub topic configured")
	}

	auditService, err := services.NewAuditLogService(services.AuditLogServiceDeps{
		Repository: auditRepo,
		Clock:      time.Now,
		Logger:     observability.NewPrintfAdapter(logger.Named("audit")),
		HashSalt:   cfg.Security.AuditHashSalt,
	})
	if err != nil {
		logger.Fatal("failed to initialise audit log service", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders: orderRepo,
		Audit:  auditService,
		Events: eventPublisher,
		Clock:  time.Now,
		Logger: observability.EventLogger(logger.Named("orders")),
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	repairService, err := services.NewOrderRepairService(services.OrderRepairServiceDeps{
		Orders: orderRepo,
		Audit:  auditService,
		Clock:  time.Now,
		Logger: observability.EventLogger(logger.Named("repair")),
	})
	if err != nil {
		logger.Fatal("failed to initialise order repair service", zap.Error(err))
	}

	authorizationService, err := services.NewAuthorizationService(services.AuthorizationServiceDeps{
		Profiles: profileRepo,
		Claims:   tokenService,
		Clock:    time.Now,
		Logger:   observability.EventLogger(logger.Named("authz")),
	})
	if err != nil {
		logger.Fatal("failed to initialise authorization service", zap.Error(err))
	}

	userService, err := services.NewUserAdminService(services.UserAdminServiceDeps{
		Profiles:               profileRepo,
		Claims:                 tokenService,
		Audit:                  auditService,
		Clock:                  time.Now,
		Logger:                 observability.EventLogger(logger.Named("users")),
		SyncClaimsOnRoleChange: cfg.Admin.SyncClaimsOnRoleChange,
		RevokeSessionsOnBan:    cfg.Admin.RevokeSessionsOnBan,
		PollInterval:           cfg.Admin.ProfilePollInterval,
	})
	if err != nil {
		logger.Fatal("failed to initialise user admin service", zap.Error(err))
	}

	idempotencyStore, err := idempotency.NewFirestoreStore(firestoreProvider, "")
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}
	idempotencyLogger := observability.NewPrintfAdapter(logger.Named("idempotency"))
	idempotencyMiddleware := idempotency.Middleware(idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(idempotencyLogger),
	)

	purgeCtx, purgeCancel := context.WithCancel(context.Background())
	var purgeWG sync.WaitGroup
	purgeWG.Add(1)
	go func() {
		defer purgeWG.Done()
		idempotency.RunPurge(purgeCtx, idempotencyStore, cfg.Idempotency.CleanupInterval, cfg.Idempotency.CleanupBatchSize, idempotencyLogger)
	}()

	adminHandlers := handlers.NewAdminHandlers(handlers.AdminHandlersDeps{
		Authenticator:        authenticator,
		Authorization:        authorizationService,
		Orders:               orderService,
		Repair:               repairService,
		Users:                userService,
		Audit:                auditService,
		EnforceRoleHierarchy: cfg.Admin.EnforceRoleHierarchy,
		Idempotency:          idempotencyMiddleware,
	})
	maintenanceHandlers := handlers.NewInternalMaintenanceHandlers(repairService)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithReadinessCheck("firestore", firestoreCheck(firestoreClient)),
		handlers.WithReadinessCheck("rtdb", rtdbCheck(rtdbClient)),
	)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(cfg.Firestore.ProjectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithAdminRoutes(adminHandlers.Routes),
		handlers.WithInternalRoutes(maintenanceHandlers.Routes),
	}
	if oidcMiddleware, jwks := buildOIDCMiddleware(logger.Named("auth"), cfg); oidcMiddleware != nil {
		defer jwks.Close()
		opts = append(opts, handlers.WithInternalMiddlewares(oidcMiddleware))
	} else {
		logger.Warn("auth: OIDC not configured; internal routes are disabled")
		opts = append(opts, handlers.WithInternalMiddlewares(rejectInternal))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("marketdesk admin listening", zap.String("version", buildInfo.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	purgeCancel()
	purgeWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(env["ADMIN_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["ADMIN_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func firestoreCheck(client *firestore.Client) handlers.ReadinessCheck {
	return func(ctx context.Context) error {
		iter := client.Collections(ctx)
		_, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		return err
	}
}

func rtdbCheck(client *db.Client) handlers.ReadinessCheck {
	return func(ctx context.Context) error {
		return prtdb.Ping(ctx, client, "users")
	}
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) (func(http.Handler) http.Handler, *auth.JWKSCache) {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, auth.WithJWKSLogger(logger))
	validator := auth.NewOIDCValidator(cache, auth.WithOIDCLogger(logger))

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	return validator.RequireOIDC(audience, cfg.Security.OIDC.Issuers), cache
}

func rejectInternal(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(r.Context(), w, httpx.NewError("internal_disabled", "internal routes are not configured", http.StatusServiceUnavailable))
	})
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	project := lookup("ADMIN_SECRET_DEFAULT_PROJECT_ID")
	if project == "" {
		project = lookup("ADMIN_FIREBASE_PROJECT_ID")
	}
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(project),
	}
	if path := lookup("ADMIN_SECRET_FALLBACK_FILE"); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	return secrets.NewFetcher(ctx, opts...)
}
