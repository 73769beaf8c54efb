package main

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	// SQL drivers selectable via storage.driver.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/resolvent-dev/resolvent/internal/cache"
	"github.com/resolvent-dev/resolvent/internal/config"
	"github.com/resolvent-dev/resolvent/internal/descriptor"
	"github.com/resolvent-dev/resolvent/internal/pagination"
	"github.com/resolvent-dev/resolvent/internal/resolver"
	"github.com/resolvent-dev/resolvent/internal/storage"
	"github.com/resolvent-dev/resolvent/internal/web"
)

var serveDev bool

func init() {
	serveCmd.Flags().BoolVar(&serveDev, "dev", false, "Enable development logging")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the query-resolution server",
	Long:  "Load the resource descriptors, build the GraphQL schema, and serve /graphql",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		logger, err := buildLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		registry, err := descriptor.LoadFile(cfg.Resources)
		if err != nil {
			return fmt.Errorf("failed to load resources: %w", err)
		}
		logger.Info("loaded resource descriptors",
			zap.Int("resources", len(registry.Resources())),
			zap.String("file", cfg.Resources))

		store, err := buildStore(cfg, registry)
		if err != nil {
			return err
		}

		opts := []resolver.Option{
			resolver.WithLogger(logger),
			resolver.WithPager(&pagination.Engine{
				DefaultSize: cfg.Pagination.DefaultPageSize,
				MaxSize:     cfg.Pagination.MaxPageSize,
			}),
		}
		if cfg.Redis.Enabled {
			counts, err := cache.NewRedisCache(cache.RedisConfig{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
				Config:   cache.DefaultConfig(),
			})
			if err != nil {
				return fmt.Errorf("failed to connect to redis: %w", err)
			}
			defer counts.Close()
			opts = append(opts, resolver.WithCountCache(counts))
		}

		engine, err := resolver.New(registry, store, opts...)
		if err != nil {
			return err
		}

		schema, err := resolver.NewSchemaBuilder(engine).Build()
		if err != nil {
			return fmt.Errorf("failed to build schema: %w", err)
		}

		handler := web.NewGraphQLHandler(schema, logger)
		router := web.NewRouter(handler, cfg.Auth.JWTSecret, logger)

		serverCfg := web.DefaultServerConfig()
		serverCfg.Address = cfg.Server.Address
		serverCfg.ReadTimeout = cfg.Server.ReadTimeout
		serverCfg.WriteTimeout = cfg.Server.WriteTimeout
		serverCfg.IdleTimeout = cfg.Server.IdleTimeout
		serverCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout

		return web.NewServer(serverCfg, router, logger).Run()
	},
}

func buildLogger() (*zap.Logger, error) {
	if serveDev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func buildStore(cfg *config.Config, registry *descriptor.Registry) (storage.DataSource, error) {
	if cfg.Storage.Driver == "memory" {
		return storage.NewMemoryStore(registry), nil
	}

	db, err := sql.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return storage.NewSQLStore(db, registry), nil
}
