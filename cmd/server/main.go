// Command server runs the odin OData service.
//
// Configuration is read from a YAML file (-config, ODIN_CONFIG,
// ./config.yaml or /etc/odin/config.yaml) and ODIN_* environment
// variables:
//
//	ODIN_SCHEMA_FILE   - YAML schema document (required)
//	ODIN_SERVICE_ROOT  - URL path the service is mounted under (default: "/odata/")
//	ODIN_PORT          - Listen port (default: 8080)
//	ODIN_STORAGE       - Record store: "memory" or "postgres" (default: "memory")
//	ODIN_POSTGRES_DSN  - PostgreSQL connection string
//	ODIN_AUTH_TYPE     - "none", "apikey" or "jwt" (default: "none")
//	ODIN_DEBUG         - Debug categories (dispatch,metadata,storage,batch,auth,transport,config,all)
//	ODIN_LOG_LEVEL     - trace, debug, info, warn or error
//
// SIGHUP reloads the schema document; the previous schema stays in
// service when the new one does not load.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/rhuss/odin/pkg/auth"
	"github.com/rhuss/odin/pkg/auth/apikey"
	"github.com/rhuss/odin/pkg/auth/jwt"
	"github.com/rhuss/odin/pkg/auth/noop"
	"github.com/rhuss/odin/pkg/config"
	"github.com/rhuss/odin/pkg/debug"
	"github.com/rhuss/odin/pkg/dispatch"
	"github.com/rhuss/odin/pkg/metadata"
	"github.com/rhuss/odin/pkg/observability"
	"github.com/rhuss/odin/pkg/storage"
	"github.com/rhuss/odin/pkg/storage/memory"
	"github.com/rhuss/odin/pkg/storage/postgres"
	transporthttp "github.com/rhuss/odin/pkg/transport/http"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	debug.Init(cfg.Logging.Debug, cfg.Logging.Level, cfg.Logging.Format)
	logger := slog.Default()
	if cats := debug.EnabledCategories(); len(cats) > 0 {
		slog.Info("debug logging enabled", "categories", cats)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg, err := metadata.Load(cfg.Metadata.SchemaFile)
	if err != nil {
		return fmt.Errorf("loading schema: %w", err)
	}
	snapshot := metadata.NewSnapshot(reg)
	slog.Info("schema loaded", "file", cfg.Metadata.SchemaFile, "container", reg.ContainerName().String())

	store, err := newStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	handler := storage.NewHandler(store,
		storage.WithLogger(logger),
		storage.WithMaxPageSize(cfg.Metadata.MaxPageSize),
	)
	dispatcher := dispatch.New(snapshot, handler, dispatch.WithLogger(logger))

	authMW, err := newAuthMiddleware(cfg.Auth, cfg.Observability.Metrics.Path)
	if err != nil {
		return err
	}

	opts := []transporthttp.ServerOption{
		transporthttp.WithAddr(":" + strconv.Itoa(cfg.Server.Port)),
		transporthttp.WithMaxBodySize(cfg.Server.MaxBodySize),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithServicePath(cfg.Metadata.ServiceRoot),
		transporthttp.WithLogger(logger),
		transporthttp.WithHTTPMiddleware(observability.MetricsMiddleware, authMW),
	}
	if cfg.Observability.Metrics.Enabled {
		opts = append(opts, transporthttp.WithMetrics(cfg.Observability.Metrics.Path, promhttp.Handler()))
	}
	if pg, ok := store.(*postgres.Store); ok {
		opts = append(opts, transporthttp.WithReadinessCheck(pg.HealthCheck))
	}
	srv := transporthttp.NewServer(dispatcher, opts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		reloadOnHangup(gctx, snapshot, cfg.Metadata.SchemaFile)
		return nil
	})
	return g.Wait()
}

// newStore opens the configured record store.
func newStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "postgres":
		pg, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
			MigrateOnStart:  cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		slog.Info("storage enabled", "type", "postgres", "max_conns", cfg.Postgres.MaxConns)
		return pg, nil
	case "memory":
		slog.Info("storage enabled", "type", "memory")
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
}

// newAuthMiddleware builds the authentication chain and rate limiter.
func newAuthMiddleware(cfg config.AuthConfig, metricsPath string) (func(http.Handler) http.Handler, error) {
	chain := &auth.Chain{Default: auth.No}

	switch cfg.Type {
	case "apikey":
		keys := make([]apikey.Key, 0, len(cfg.APIKeys))
		for _, k := range cfg.APIKeys {
			keys = append(keys, apikey.Key{
				Key: k.Key,
				Identity: auth.Identity{
					Subject: k.Subject,
					Tenant:  k.TenantID,
					Tier:    k.Tier,
					Scopes:  k.Scopes,
				},
			})
		}
		chain.Authenticators = append(chain.Authenticators, apikey.New(keys))
		slog.Info("authentication enabled", "type", "apikey", "keys", len(keys))
	case "jwt":
		a, err := jwt.New(jwt.Config{
			Issuer:       cfg.JWT.Issuer,
			Audience:     cfg.JWT.Audience,
			JWKSURL:      cfg.JWT.JWKSURL,
			Secret:       []byte(cfg.JWT.Secret),
			SubjectClaim: cfg.JWT.SubjectClaim,
			TenantClaim:  cfg.JWT.TenantClaim,
			TierClaim:    cfg.JWT.TierClaim,
			ScopesClaim:  cfg.JWT.ScopesClaim,
			CacheTTL:     cfg.JWT.CacheTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("configuring jwt authentication: %w", err)
		}
		chain.Authenticators = append(chain.Authenticators, a)
		slog.Info("authentication enabled", "type", "jwt", "issuer", cfg.JWT.Issuer)
	default:
		chain.Authenticators = append(chain.Authenticators, &noop.Authenticator{})
	}

	var limiter auth.RateLimiter
	if cfg.RateLimit.Enabled {
		tiers := make(map[string]auth.TierConfig, len(cfg.RateLimit.Tiers))
		for name, t := range cfg.RateLimit.Tiers {
			tiers[name] = auth.TierConfig{RequestsPerSecond: t.RequestsPerSecond, Burst: t.Burst}
		}
		limiter = auth.NewTokenBucketLimiter(tiers, auth.TierConfig{
			RequestsPerSecond: cfg.RateLimit.Default.RequestsPerSecond,
			Burst:             cfg.RateLimit.Default.Burst,
		})
	}

	bypass := append([]string(nil), auth.DefaultBypassPaths...)
	if metricsPath != "" {
		bypass = append(bypass, metricsPath)
	}
	return auth.Middleware(chain, limiter, bypass), nil
}

// reloadOnHangup reloads the schema on SIGHUP until ctx is done.
func reloadOnHangup(ctx context.Context, snapshot *metadata.Snapshot, path string) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
		}
		err := snapshot.Reload(func() (*metadata.Registry, error) {
			return metadata.Load(path)
		})
		if err != nil {
			observability.MetadataReloadsTotal.WithLabelValues("error").Inc()
			slog.Error("schema reload failed, keeping previous schema", "file", path, "error", err)
			continue
		}
		observability.MetadataReloadsTotal.WithLabelValues("ok").Inc()
		slog.Info("schema reloaded", "file", path, "version", snapshot.Version())
		debug.Log(debug.Metadata, "schema published", "version", snapshot.Version())
	}
}
