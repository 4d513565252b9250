package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vbonduro/folio/internal/content"
	"github.com/vbonduro/folio/internal/service"
	"github.com/vbonduro/folio/internal/web"
	"github.com/vbonduro/folio/internal/web/static"
	"github.com/vbonduro/folio/internal/web/templates"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the portfolio and keep it in sync with the cloud mirror",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return err
	}
	defer a.close(logger)

	authn, err := newAuthenticator(cfg, logger)
	if err != nil {
		logger.Error("failed to configure admin access", "error", err)
		return err
	}

	src, err := content.NewSource(cfg.ContentPath, logger)
	if err != nil {
		logger.Error("failed to load portfolio content", "path", cfg.ContentPath, "error", err)
		return err
	}

	server := web.NewServer(a.service, src, authn, templates.FS, static.FS, web.Options{
		PublicURL:           cfg.PublicURL,
		DefaultProfileImage: cfg.DefaultProfileImage,
	}, logger)
	httpServer := server.HTTPServer(cfg.ListenAddr)
	syncer := service.NewSyncer(a.service, cfg.SyncInterval, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting server", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down server")
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return syncer.Run(ctx) })
	g.Go(func() error { return src.Watch(ctx) })

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", "error", err)
		return err
	}
	logger.Info("server stopped")
	return nil
}
