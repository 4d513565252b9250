package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/vbonduro/folio/internal/auth"
	"github.com/vbonduro/folio/internal/config"
	"github.com/vbonduro/folio/internal/db"
	"github.com/vbonduro/folio/internal/kvstore/local"
	"github.com/vbonduro/folio/internal/localstore"
	"github.com/vbonduro/folio/internal/mirror"
	"github.com/vbonduro/folio/internal/mirror/s3mirror"
	"github.com/vbonduro/folio/internal/service"
	"github.com/vbonduro/folio/internal/store"
)

// app holds the storage stack shared by serve and sync.
type app struct {
	db      *sql.DB
	service *service.PortfolioService
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		// The flat store alone can still serve and persist uploads.
		logger.Error("failed to open database, continuing with flat store only", "path", cfg.DBPath, "error", err)
		database = nil
	}

	flat, err := local.NewFileStore(cfg.FlatStorePath)
	if err != nil {
		closeDB(database, logger)
		return nil, fmt.Errorf("failed to initialize flat store: %w", err)
	}

	remote, err := newMirror(ctx, cfg, logger)
	if err != nil {
		closeDB(database, logger)
		return nil, err
	}

	localStore := localstore.New(store.NewRecordStore(database), flat, logger)
	svc := service.NewPortfolioService(localStore, remote, logger)
	svc.Load(ctx)
	return &app{db: database, service: svc}, nil
}

func (a *app) close(logger *slog.Logger) {
	closeDB(a.db, logger)
}

func closeDB(database *sql.DB, logger *slog.Logger) {
	if database == nil {
		return
	}
	if err := database.Close(); err != nil {
		logger.Error("failed to close database", "error", err)
	}
}

func newMirror(ctx context.Context, cfg *config.Config, logger *slog.Logger) (mirror.Mirror, error) {
	switch cfg.MirrorBackend {
	case "s3":
		m, err := s3mirror.NewS3Mirror(ctx, s3mirror.Config{
			Bucket:    cfg.S3Bucket,
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize s3 mirror: %w", err)
		}
		logger.Info("using s3 mirror", "bucket", cfg.S3Bucket, "endpoint", cfg.S3Endpoint)
		return m, nil
	case "", "none":
		logger.Info("cloud mirror disabled")
		return mirror.Disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown MIRROR_BACKEND %q", cfg.MirrorBackend)
	}
}

func newAuthenticator(cfg *config.Config, logger *slog.Logger) (*auth.Authenticator, error) {
	hash := cfg.AdminSecretHash
	if hash == "" && cfg.AdminSecret != "" {
		h, err := auth.HashSecret(cfg.AdminSecret)
		if err != nil {
			return nil, err
		}
		hash = h
	}
	if hash == "" {
		logger.Warn("no admin secret configured, admin actions are disabled")
		return nil, nil
	}
	if cfg.SessionKey == "" {
		logger.Warn("SESSION_KEY not set, admin sessions will not survive a restart")
	}
	return auth.New(hash, []byte(cfg.SessionKey), cfg.SessionTTL)
}
