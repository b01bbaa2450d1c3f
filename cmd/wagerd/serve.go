package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/atmx/wager-engine/internal/aggregate"
	"github.com/atmx/wager-engine/internal/api"
	"github.com/atmx/wager-engine/internal/blob"
	"github.com/atmx/wager-engine/internal/config"
	"github.com/atmx/wager-engine/internal/exposure"
	"github.com/atmx/wager-engine/internal/live"
	"github.com/atmx/wager-engine/internal/pricing"
	"github.com/atmx/wager-engine/internal/settlement"
	"github.com/atmx/wager-engine/internal/store"
	"github.com/atmx/wager-engine/internal/tracker"
	"github.com/atmx/wager-engine/internal/wager"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	if cfg.Database.RunMigrations && b.pool != nil {
		if err := b.migrate(ctx); err != nil {
			return err
		}
	}

	pricer, err := pricing.New(cfg.Pricing.Model, decimal.NewFromFloat(cfg.Pricing.Liquidity))
	if err != nil {
		return err
	}
	limiter := exposure.NewLimiter(
		decimal.NewFromFloat(cfg.Limits.MaxStakePerMarket),
		decimal.NewFromFloat(cfg.Limits.MaxStakePerCategory),
	)

	// --- Settlement lock ---
	var locker settlement.Locker
	if b.rdb != nil {
		locker = store.NewRedisLocker(b.rdb, cfg.Redis.LockTTL.Duration)
		slog.Info("distributed settlement lock enabled")
	}

	// --- Image store ---
	var images blob.ImageStore
	if cfg.S3.Bucket != "" {
		s3, err := blob.NewS3(ctx, blob.S3Config{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			PublicBaseURL:  cfg.S3.PublicBaseURL,
		})
		if err != nil {
			return err
		}
		if err := s3.Health(ctx); err != nil {
			slog.Warn("image bucket unreachable", "bucket", cfg.S3.Bucket, "err", err)
		}
		images = s3
		slog.Info("image uploads enabled", "bucket", cfg.S3.Bucket)
	}

	// --- WebSocket hub ---
	hub := live.NewHub()
	go hub.Run(ctx)

	tr := tracker.New(b.store, pricer, hub)
	srv := api.New(api.Deps{
		Store:      b.store,
		Recorder:   wager.NewRecorder(b.store, tr, limiter),
		Tracker:    tr,
		Settlement: settlement.NewEngine(b.store, locker, hub),
		Aggregate:  aggregate.NewEngine(b.store),
		Images:     images,
		Hub:        hub,
	}, api.Options{
		Network:        cfg.Network.Name,
		RPCURL:         cfg.Network.RPCURL,
		StoreKind:      b.kind,
		Pricing:        pricer.Name(),
		RequestTimeout: cfg.Server.RequestTimeout.Duration,
		RateLimit:      cfg.Server.RateLimit,
		RateBurst:      cfg.Server.RateBurst,
		CORSOrigins:    cfg.Server.CORSOrigins,
		MaxUploadBytes: cfg.S3.MaxUploadBytes,
	})

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  cfg.Server.IdleTimeout.Duration,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("wager-engine listening",
			"port", cfg.Server.Port, "store", b.kind, "pricing", pricer.Name(), "network", cfg.Network.Name)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
	defer cancel()

	slog.Info("shutting down wager-engine...")
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	slog.Info("wager-engine stopped")
	return nil
}
