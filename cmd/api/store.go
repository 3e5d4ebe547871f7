package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"bookshelf/internal/book"
	"bookshelf/internal/config"
	"bookshelf/internal/user"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// stores bundles the repositories selected by STORE_DRIVER.
type stores struct {
	books book.Repository
	users user.Repository
	ping  func(ctx context.Context) error
	close func()
}

func openStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (stores, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		return openPostgres(ctx, cfg, logger)
	case config.DriverMongo:
		return openMongo(ctx, cfg, logger)
	default:
		logger.Warn("using in-memory store, data is lost on restart")
		return stores{
			books: book.NewMemoryRepo(),
			users: user.NewMemoryRepo(),
			close: func() {},
		}, nil
	}
}

func openPostgres(ctx context.Context, cfg config.Config, logger *slog.Logger) (stores, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		return stores{}, fmt.Errorf("create db pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return stores{}, fmt.Errorf("ping database (%s): %w", redactDSN(cfg.DatabaseDSN), err)
	}
	logger.Info("database connection OK", "driver", config.DriverPostgres)

	return stores{
		books: book.NewPostgresRepo(pool, cfg.StoreTimeout),
		users: user.NewPostgresRepo(pool, cfg.StoreTimeout),
		ping:  pool.Ping,
		close: pool.Close,
	}, nil
}

func openMongo(ctx context.Context, cfg config.Config, logger *slog.Logger) (stores, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return stores{}, fmt.Errorf("connect to mongo (%s): %w", redactDSN(cfg.MongoURI), err)
	}
	disconnect := func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(dctx); err != nil {
			logger.Warn("mongo disconnect", "error", err)
		}
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		disconnect()
		return stores{}, fmt.Errorf("ping mongo (%s): %w", redactDSN(cfg.MongoURI), err)
	}

	db := client.Database(cfg.MongoDatabase)
	books := book.NewMongoRepo(db, cfg.StoreTimeout)
	users := user.NewMongoRepo(db, cfg.StoreTimeout)
	if err := books.EnsureIndexes(ctx); err != nil {
		disconnect()
		return stores{}, fmt.Errorf("book indexes: %w", err)
	}
	if err := users.EnsureIndexes(ctx); err != nil {
		disconnect()
		return stores{}, fmt.Errorf("user indexes: %w", err)
	}
	logger.Info("database connection OK", "driver", config.DriverMongo, "database", cfg.MongoDatabase)

	return stores{
		books: books,
		users: users,
		ping: func(ctx context.Context) error {
			return client.Ping(ctx, nil)
		},
		close: disconnect,
	}, nil
}

// redactDSN hides the credentials of a connection string.
func redactDSN(dsn string) string {
	const marker = "://"
	start := strings.Index(dsn, marker)
	if start < 0 {
		return dsn
	}
	start += len(marker)
	end := strings.Index(dsn[start:], "@")
	if end < 0 {
		return dsn
	}
	return dsn[:start] + "***" + dsn[start+end:]
}
