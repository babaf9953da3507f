// Command repair runs the order consistency repair once and prints the report as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/marketdesk/admin/internal/platform/config"
	pfirestore "github.com/marketdesk/admin/internal/platform/firestore"
	"github.com/marketdesk/admin/internal/platform/observability"
	"github.com/marketdesk/admin/internal/platform/secrets"
	firestoreRepo "github.com/marketdesk/admin/internal/repositories/firestore"
	"github.com/marketdesk/admin/internal/services"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "report the corrections without writing them")
	actorID := flag.String("actor", "system:repair-cli", "actor id recorded in the audit log")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall deadline for the run")
	envFile := flag.String("env-file", ".env", "dotenv file read before the process environment")
	flag.Parse()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("repair")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	ctx = observability.WithLogger(ctx, logger)

	if err := run(ctx, logger, *envFile, *actorID, *dryRun); err != nil {
		logger.Error("order repair failed", zap.Error(err))
		_ = baseLogger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *zap.Logger, envFile, actorID string, dryRun bool) error {
	fetcher, err := secrets.NewFetcher(ctx, secrets.WithLogger(logger.Named("secrets")))
	if err != nil {
		return fmt.Errorf("initialise secret fetcher: %w", err)
	}
	defer fetcher.Close()

	cfg, err := config.Load(ctx,
		config.WithEnvFile(envFile),
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
	)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	provider := pfirestore.NewProvider(cfg.Firestore)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	orders, err := firestoreRepo.NewOrderRepository(provider)
	if err != nil {
		return err
	}
	auditRepo, err := firestoreRepo.NewAuditLogRepository(provider)
	if err != nil {
		return err
	}
	audit, err := services.NewAuditLogService(services.AuditLogServiceDeps{
		Repository: auditRepo,
		Logger:     observability.NewPrintfAdapter(logger.Named("audit")),
		HashSalt:   cfg.Security.AuditHashSalt,
	})
	if err != nil {
		return err
	}
	repair, err := services.NewOrderRepairService(services.OrderRepairServiceDeps{
		Orders: orders,
		Audit:  audit,
		Logger: observability.EventLogger(logger),
	})
	if err != nil {
		return err
	}

	report, err := repair.Repair(ctx, services.RepairOptions{
		Actor:  services.Actor{ID: actorID},
		DryRun: dryRun,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
