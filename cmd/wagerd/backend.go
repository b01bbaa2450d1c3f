package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/wager-engine/internal/config"
	"github.com/atmx/wager-engine/internal/store"
)

// backend holds the opened storage clients. close releases them in
// reverse order of opening.
type backend struct {
	store   store.Store
	kind    string
	pool    *pgxpool.Pool
	rdb     *redis.Client
	cleanup []func()
}

// openBackend picks PostgreSQL when a DSN is set, optionally wrapped in the
// Redis market cache, and falls back to the in-memory store.
func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	b := &backend{}

	if cfg.Database.DSN == "" {
		slog.Warn("database dsn not set, using in-memory store (data will not persist)")
		b.store = store.NewMemoryStore()
		b.kind = "memory"
		return b, nil
	}

	pool, err := store.Connect(ctx, store.PoolConfig{
		DSN:      cfg.Database.DSN,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		return nil, err
	}
	b.pool = pool
	b.cleanup = append(b.cleanup, pool.Close)
	b.store = store.NewPostgresStore(pool)
	b.kind = "postgres"
	slog.Info("connected to PostgreSQL")

	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			b.close()
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		rdb := redis.NewClient(opt)
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			b.close()
			return nil, fmt.Errorf("redis: ping: %w", err)
		}
		b.rdb = rdb
		b.cleanup = append(b.cleanup, func() { rdb.Close() })
		b.store = store.NewCachedStore(b.store, rdb, cfg.Redis.CacheTTL.Duration)
		b.kind = "postgres+redis"
		slog.Info("Redis cache enabled", "ttl", cfg.Redis.CacheTTL.String())
	}
	return b, nil
}

func (b *backend) migrate(ctx context.Context) error {
	if b.pool == nil {
		return fmt.Errorf("migrations need a database dsn")
	}
	applied, err := store.RunMigrations(ctx, b.pool)
	for _, name := range applied {
		slog.Info("applied migration", "file", name)
	}
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		slog.Info("schema up to date")
	}
	return nil
}

func (b *backend) close() {
	for i := len(b.cleanup) - 1; i >= 0; i-- {
		b.cleanup[i]()
	}
	b.cleanup = nil
}
