// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/scribe/internal/api"
	"github.com/starford/scribe/internal/composer"
	"github.com/starford/scribe/internal/feed"
	"github.com/starford/scribe/internal/feedsession"
	"github.com/starford/scribe/internal/mcpserver"
	"github.com/starford/scribe/internal/models"
	"github.com/starford/scribe/internal/notify"
	"github.com/starford/scribe/internal/reconcile"
	"github.com/starford/scribe/internal/sse"
)

const (
	noticeBacklog = 50
	eventThrottle = 250 * time.Millisecond
)

// Run starts the studio server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := newLogger(cfg, app.logs)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("api_base_url", cfg.API.BaseURL),
		slog.String("store_backend", cfg.Store.Backend),
		slog.String("media_backend", cfg.Media.Backend),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c, err := newCore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.session.Init(ctx); err != nil {
		logger.Warn("session restore failed", slog.String("error", err.Error()))
	}

	broker := sse.NewBroker(eventThrottle)
	defer broker.Close()

	st := newStudio(c, broker)
	defer st.Feed.Close()
	defer st.Composer.Unmount()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", api.NewRouter(st, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// newStudio wires one composer and one feed session to the event broker.
func newStudio(c *core, broker *sse.Broker) *api.Studio {
	cfg := c.cfg
	center := notify.NewCenter(noticeBacklog, c.logger)
	center.Subscribe(broker.PublishNotice)

	loc := api.NewLocation(func(string) { broker.PublishChange("location") })
	sentinel := feed.NewSentinel()

	comp := composer.New(composer.Deps{
		Drafts:    c.drafts,
		Writer:    c.client,
		Reader:    c.client,
		Uploader:  c.uploader,
		Navigator: loc,
		Notifier:  center,
		Logger:    c.logger,
		Watcher:   c.watcher(),
		OnChange:  func() { broker.PublishChange("composer") },
	}, composer.Options{
		AutosaveDelay: cfg.Editor.AutosaveDelay,
		MediaMode:     cfg.Editor.MediaMode,
		ImageAlt:      cfg.Editor.ImageAlt,
	})

	fs := feedsession.New(feedsession.Deps{
		API:       c.client,
		Confirmer: reconcile.ConfirmFunc(api.Confirmed),
		Navigator: loc,
		Notifier:  center,
		Logger:    c.logger,
		Observer:  sentinel,
		OnChange:  func(ch feedsession.Change) { broker.PublishChange(string(ch)) },
		OnProfile: func(u models.UserInfo) {
			c.session.UpdateUser(func(cur *models.UserInfo) { *cur = u })
		},
	}, feedsession.Options{
		PageSize:       cfg.Feed.PageSize,
		SearchPageSize: cfg.Feed.SearchPageSize,
		FetchTimeout:   cfg.Feed.FetchTimeout,
	})

	// Logging out drops everything that belonged to the author.
	c.session.OnLogout(func() {
		comp.Unmount()
		fs.Leave()
	})

	return &api.Studio{
		Composer: comp,
		Feed:     fs,
		Sentinel: sentinel,
		Notices:  center,
		Location: loc,
		Logger:   c.logger,
		Logout:   c.session.Logout,
	}
}

// RunMCP serves the MCP tools on stdio until the client disconnects.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	logger := newLogger(app.config, app.logs)
	slog.SetDefault(logger)

	c, err := newCore(ctx, app.config, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.session.Init(ctx); err != nil {
		logger.Warn("session restore failed", slog.String("error", err.Error()))
	}

	logger.Info("MCP server starting on stdio")
	return mcpserver.New(c.client, c.drafts, c.uploader, logger).ServeStdio()
}
