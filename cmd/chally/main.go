// Command chally is the financial-core process entrypoint: it loads
// configuration, opens the database, wires every repository/service/
// adapter, and serves the HTTP API until signaled to shut down.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/peerpush/chally/internal/adapters/httpapi"
	"github.com/peerpush/chally/internal/adapters/postgres"
	"github.com/peerpush/chally/internal/adapters/stripeprocessor"
	"github.com/peerpush/chally/internal/platform/config"
	"github.com/peerpush/chally/internal/platform/mlog"
	"github.com/peerpush/chally/internal/platform/mtrace"
	"github.com/peerpush/chally/internal/platform/storage"
	"github.com/peerpush/chally/internal/services/depositsvc"
	"github.com/peerpush/chally/internal/services/ledgersvc"
	"github.com/peerpush/chally/internal/services/settlementsvc"
	"github.com/peerpush/chally/internal/services/walletsvc"
	"github.com/peerpush/chally/internal/services/withdrawalsvc"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := mlog.NewZapLogger(cfg.EnvName)
	if err != nil {
		return err
	}
	defer logger.Sync()
	ctx = mlog.ContextWithLogger(ctx, logger)

	shutdownTracing, err := mtrace.Init(ctx, "chally", cfg.OTelExporterEndpoint)
	if err != nil {
		return err
	}
	defer shutdownTracing(ctx)

	conn, err := storage.Connect(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	logger.Infof("database connected: %t", conn.Connected)

	ledgerRepo := postgres.NewLedgerRepository(conn.DB)
	allocationRepo := postgres.NewAllocationRepository(conn.DB)
	refundRepo := postgres.NewRefundRepository(conn.DB)
	challengeRepo := postgres.NewChallengeRepository(conn.DB)
	participantRepo := postgres.NewParticipantRepository(conn.DB)

	const currency = "USD"

	ledgerSvc := ledgersvc.New(ledgerRepo)
	walletSvc := walletsvc.New(conn.DB, ledgerSvc, allocationRepo, currency)

	processor := stripeprocessor.New(cfg.StripeSecretKey, nil)

	platformUserID, err := uuid.Parse(cfg.PlatformUserID)
	if err != nil {
		return err
	}

	depositSvc := depositsvc.New(ledgerSvc, walletSvc, processor, cfg.WebhookSecret, cfg.TokenPriceCents, cfg.DailyCap())
	withdrawalSvc := withdrawalsvc.New(conn.DB, ledgerSvc, allocationRepo, refundRepo, processor, currency, cfg.TokenPriceCents, cfg.RefundWindowDays, cfg.WithdrawalsEnabled)
	settlementSvc := settlementsvc.New(conn.DB, challengeRepo, participantRepo, ledgerSvc, allocationRepo, currency, platformUserID, false)

	handlers := &httpapi.Handlers{
		Deposit:    depositSvc,
		Withdrawal: withdrawalSvc,
		Ledger:     ledgerSvc,
		Settlement: settlementSvc,
	}

	app := httpapi.New(handlers, cfg.JWTSigningKey)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(cfg.ServerAddress)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return app.ShutdownWithContext(ctx)
	case err := <-errCh:
		return err
	}
}
