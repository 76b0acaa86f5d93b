package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/tbourn/astro-chat-relay/internal/astro"
	"github.com/tbourn/astro-chat-relay/internal/config"
	httpapi "github.com/tbourn/astro-chat-relay/internal/http"
	"github.com/tbourn/astro-chat-relay/internal/lock"
	"github.com/tbourn/astro-chat-relay/internal/observability"
	"github.com/tbourn/astro-chat-relay/internal/oracle"
	"github.com/tbourn/astro-chat-relay/internal/services"
)

const shutdownGrace = 30 * time.Second

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}
			gin.SetMode(cfg.GinMode)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx = log.WithContext(ctx)

			shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
			if err != nil {
				return fmt.Errorf("otel: %w", err)
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownOTel(sctx); err != nil {
					log.Warn().Err(err).Msg("otel shutdown")
				}
			}()

			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer closeDB(db)
			if cfg.OTEL.Enabled {
				if err := observability.InstrumentDB(db); err != nil {
					return fmt.Errorf("instrument db: %w", err)
				}
			}

			cat, err := loadCatalog(cfg.Upstream.CatalogPath)
			if err != nil {
				return err
			}

			locker, closeLocker, err := newLocker(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeLocker()

			if cfg.Auth.APIKey == "" {
				log.Warn().Msg("API_KEY is empty: the API accepts unauthenticated requests")
			}
			if cfg.Oracle.APIKey == "" {
				log.Warn().Msg("ORACLE_API_KEY is empty: predictions will fail")
			}

			r := gin.New()
			httpapi.RegisterRoutes(r, httpapi.Backends{
				DB:       db,
				Upstream: astro.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.APIKey, cfg.Upstream.Timeout, cat),
				Oracle: oracle.New(oracle.Config{
					BaseURL: cfg.Oracle.BaseURL,
					APIKey:  cfg.Oracle.APIKey,
					Model:   cfg.Oracle.Model,
					Timeout: cfg.Oracle.Timeout,
				}),
				Locker:  locker,
				Catalog: cat,
			}, cfg)

			reaper := &services.Reaper{DB: db, ProfileRetention: cfg.Chat.ProfileRetention}
			go reaper.Run(ctx, cfg.Chat.SweepInterval)

			srv := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           r,
				ReadTimeout:       cfg.ReadTimeout,
				ReadHeaderTimeout: cfg.ReadHeaderTimeout,
				WriteTimeout:      cfg.WriteTimeout,
				IdleTimeout:       cfg.IdleTimeout,
				MaxHeaderBytes:    cfg.MaxHeaderBytes,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", srv.Addr).Str("db", cfg.Storage.Driver).Int("endpoints", len(cat.Endpoints)).Msg("listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err, ok := <-errCh:
				if ok {
					return fmt.Errorf("listen: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			log.Info().Msg("shutting down")
			sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (overrides PORT)")
	return cmd
}

// loadCatalog reads the catalog file when one is configured, otherwise the
// embedded default.
func loadCatalog(path string) (*astro.Catalog, error) {
	if path == "" {
		cat, err := astro.DefaultCatalog()
		if err != nil {
			return nil, fmt.Errorf("default catalog: %w", err)
		}
		return cat, nil
	}
	cat, err := astro.LoadCatalog(path)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return cat, nil
}

// newLocker returns a Redis-backed locker when REDIS_URL is set and an
// in-process one otherwise. A Redis lock outlives the longest oracle call.
func newLocker(ctx context.Context, cfg config.Config) (lock.Locker, func(), error) {
	if cfg.Storage.RedisURL == "" {
		return lock.NewKeyedMutex(), func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.Storage.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return lock.NewRedisLocker(client, cfg.Oracle.Timeout+30*time.Second), func() { _ = client.Close() }, nil
}
