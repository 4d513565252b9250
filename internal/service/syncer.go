package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vbonduro/folio/internal/domain"
)

const (
	DefaultSyncInterval = 5 * time.Minute
	syncPassTimeout     = 30 * time.Second
)

// Syncer re-runs PortfolioService.Sync on a fixed interval so long-lived
// processes converge to the latest mirrored upload.
type Syncer struct {
	svc      *PortfolioService
	interval time.Duration
	logger   *slog.Logger
}

func NewSyncer(svc *PortfolioService, interval time.Duration, logger *slog.Logger) *Syncer {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return &Syncer{svc: svc, interval: interval, logger: logger}
}

// Run syncs once immediately and then every interval until ctx is done.
func (s *Syncer) Run(ctx context.Context) error {
	s.logger.Info("mirror sync started", "interval", s.interval.String())
	s.pass(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("mirror sync stopped")
			return nil
		case <-ticker.C:
			s.pass(ctx)
		}
	}
}

func (s *Syncer) pass(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, syncPassTimeout)
	defer cancel()

	updated, err := s.svc.Sync(ctx)
	switch {
	case errors.Is(err, domain.ErrRemoteUnavailable):
		s.logger.Debug("mirror sync skipped", "error", err)
	case err != nil:
		s.logger.Warn("mirror sync failed", "error", err)
	}
	if len(updated) > 0 {
		s.logger.Info("mirror sync updated records", "kinds", updated)
	}
}
