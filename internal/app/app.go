package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/httplog/v2"
	"github.com/okhomenko/shortline/internal/config"
	"github.com/okhomenko/shortline/internal/database/postgres"
	"github.com/okhomenko/shortline/internal/event"
	"github.com/okhomenko/shortline/internal/service"
	pkgpostgres "github.com/okhomenko/shortline/pkg/postgres"
	"golang.org/x/sync/errgroup"

	api "github.com/okhomenko/shortline/internal/api/http"
)

func Run(ctx context.Context, cfg *config.Config) error {
	const op = "app.Run"

	logger := httplog.NewLogger("shortline", httplog.Options{
		LogLevel: slog.LevelInfo,
		Concise:  cfg.Env != config.EnvProd,
		JSON:     cfg.Env == config.EnvProd,
	})

	db, err := pkgpostgres.New(
		ctx,
		cfg.Postgres.DSN(),
		pkgpostgres.WithConnMaxIdleTime(cfg.Postgres.ConnMaxIdleTime),
		pkgpostgres.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
		pkgpostgres.WithMaxIdleConns(cfg.Postgres.MaxIdleConns),
		pkgpostgres.WithMaxOpenConns(cfg.Postgres.MaxOpenConns),
	)
	if err != nil {
		return fmt.Errorf("%s: failed to connect to database: %w", op, err)
	}
	defer db.Close()

	if err := pkgpostgres.RunMigrations("file://migrations", cfg.Postgres.DSN()); err != nil {
		return fmt.Errorf("%s: failed to run migrations: %w", op, err)
	}

	urlRepo := postgres.NewURLRepository(db)
	userRepo := postgres.NewUserRepository(db)

	bus := event.NewBus(cfg.Events.BufferSize)

	urlSvc := service.NewURLService(urlRepo, userRepo, bus, cfg.ShortCodeLength)
	userSvc := service.NewUserService(userRepo)

	router := api.NewRouter(logger, urlSvc, userSvc, bus, api.RouterConfig{
		BaseURL:           cfg.BaseURL,
		HeartbeatInterval: cfg.Events.HeartbeatInterval,
	})

	server := &http.Server{
		Addr:        cfg.HTTPServer.Addr(),
		Handler:     router,
		ReadTimeout: cfg.HTTPServer.ReadTimeout,
		// WriteTimeout stays unset unless configured: the event stream is a
		// long-lived response and a global write deadline would cut it off.
		WriteTimeout:   cfg.HTTPServer.WriteTimeout,
		IdleTimeout:    cfg.HTTPServer.IdleTimeout,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error

		switch cfg.Env {
		case config.EnvProd:
			err = server.ListenAndServeTLS(cfg.HTTPServer.CertFile, cfg.HTTPServer.KeyFile)
		default:
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server error occurred: %w", op, err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		if err := server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("%s: failed to shutdown server: %w", op, err)
		}

		return nil
	})

	return g.Wait()
}
