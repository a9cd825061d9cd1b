// Command passportd serves the passport HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aidevplatform/passport"
	"github.com/aidevplatform/passport/config"
	"github.com/aidevplatform/passport/oauth2"
	fsstore "github.com/aidevplatform/passport/stores/fs"
	gaestore "github.com/aidevplatform/passport/stores/gae"
	gormstore "github.com/aidevplatform/passport/stores/gorm"
	redisstore "github.com/aidevplatform/passport/stores/redis"
)

func main() {
	configPath := flag.String("config", os.Getenv("PASSPORT_CONFIG"), "path to a config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("passportd exited", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func openDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		dialector = sqlite.Open(cfg.DSN)
	}
	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", cfg.Driver, err)
	}
	if err := gormstore.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrating: %w", err)
	}
	return db, nil
}

// openStore returns the credential store named by cfg.Driver and a func
// releasing whatever it holds open.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (passport.CredentialStore, func(), error) {
	switch cfg.Driver {
	case "datastore":
		client, err := datastore.NewClient(ctx, cfg.Project)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to datastore: %w", err)
		}
		return gaestore.NewCredentialStore(client, cfg.Namespace), func() { client.Close() }, nil
	case "fs":
		store, err := fsstore.NewCredentialStore(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}
	return gormstore.NewCredentialStore(db), func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}, nil
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := passport.NewMetrics(registry)

	store, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore()
	logger.Info("credential store ready", "driver", cfg.Database.Driver)

	codecOpts := []passport.CodecOption{
		passport.WithTokenTTL(cfg.JWT.TTL),
		passport.WithIssuer(cfg.JWT.Issuer),
		passport.WithCodecLogger(logger),
	}
	if cfg.JWT.StrictKeyLength {
		codecOpts = append(codecOpts, passport.WithStrictKeyLength())
	}
	codec, err := passport.NewTokenCodec(cfg.JWT.Secret, codecOpts...)
	if err != nil {
		return err
	}

	svc := passport.NewCredentialService(store, codec,
		passport.WithResetTicketTTL(cfg.Auth.ResetTicketTTL),
		passport.WithResetLinkBase(cfg.Auth.ResetLinkBase),
		passport.WithServiceLogger(logger),
		passport.WithServiceMetrics(metrics),
	)

	g, ctx := errgroup.WithContext(ctx)

	var states passport.StateStore
	switch cfg.OAuth.StateBackend {
	case "redis":
		client, err := redisstore.NewClient(ctx, redisstore.Config{Addr: cfg.OAuth.RedisAddr})
		if err != nil {
			return err
		}
		defer client.Close()
		states = redisstore.NewStateStore(client, cfg.OAuth.StateTTL, redisstore.WithLogger(logger))
	default:
		mem := passport.NewMemoryStateStore(cfg.OAuth.StateTTL,
			passport.WithStateLogger(logger),
			passport.WithStateMetrics(metrics))
		mem.Start(ctx)
		defer mem.Stop()
		states = mem
	}

	githubExchange, providers := newExchanges(cfg.OAuth, func(p oauth2.Provider) *oauth2.Exchange {
		return &oauth2.Exchange{
			Provider:         p,
			States:           states,
			Service:          svc,
			FrontendRedirect: cfg.OAuth.FrontendRedirect,
			Timeout:          cfg.OAuth.RequestTimeout,
			Logger:           logger,
			Metrics:          metrics,
		}
	})
	if !cfg.OAuth.GitHub.Enabled() {
		logger.Warn("github client credentials not set, federated login will fail")
	}

	if cfg.Auth.ExposeResetToken {
		logger.Warn("auth.expose_reset_token is on: /forgot returns reset tokens, do not run like this in production")
	}

	router := passport.NewRouter(passport.RouterConfig{
		Prefix: cfg.HTTP.Prefix,
		Local: &passport.LocalAuth{
			Service:          svc,
			ExposeResetToken: cfg.Auth.ExposeResetToken,
			Logger:           logger,
		},
		Federated: githubExchange,
		Providers: providers,
		Gate:      &passport.Gate{Verifier: codec, Logger: logger, Metrics: metrics},
	})
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	g.Go(func() error {
		logger.Info("listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		purgeExpiredTickets(ctx, store, cfg.Auth.PurgeInterval, logger)
		return nil
	})

	return g.Wait()
}

// newExchanges builds one exchange per provider with its defaults in place.
// GitHub is returned separately for the unqualified /oauth routes and is
// also served at /oauth/github; Google is added when it has credentials.
func newExchanges(cfg config.OAuthConfig, build func(oauth2.Provider) *oauth2.Exchange) (*oauth2.Exchange, map[string]passport.FederatedLogin) {
	newExchange := func(p oauth2.Provider) *oauth2.Exchange {
		e := build(p)
		e.EnsureDefaults()
		return e
	}

	gh := cfg.GitHub
	github := oauth2.NewGithubOAuth2(gh.ClientID, gh.ClientSecret, gh.RedirectURI)
	if len(gh.Scopes) > 0 {
		github.Config().Scopes = gh.Scopes
	}
	githubExchange := newExchange(github)
	providers := map[string]passport.FederatedLogin{"github": githubExchange}
	if gc := cfg.Google; gc.Enabled() {
		providers["google"] = newExchange(oauth2.NewGoogleOAuth2(gc.ClientID, gc.ClientSecret, gc.RedirectURI))
	}
	return githubExchange, providers
}

func purgeExpiredTickets(ctx context.Context, store passport.ResetTicketStore, every time.Duration, logger *slog.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := store.DeleteExpiredResetTickets(ctx, now)
			if err != nil {
				logger.Warn("purging reset tickets", "error", err)
			} else if n > 0 {
				logger.Info("purged expired reset tickets", "count", n)
			}
		}
	}
}
