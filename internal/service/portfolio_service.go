package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vbonduro/folio/internal/domain"
	"github.com/vbonduro/folio/internal/mirror"
)

// localRepository is the subset of localstore.Store that PortfolioService
// requires.
type localRepository interface {
	Put(ctx context.Context, rec *domain.Record) error
	Get(ctx context.Context, kind domain.Kind) (*domain.Record, error)
}

const defaultUpdatedBy = "admin"

type PortfolioService struct {
	local   localRepository
	remote  mirror.Mirror
	display *Display
	logger  *slog.Logger

	now       func() time.Time
	updatedBy string

	mu         sync.Mutex
	lastIssued time.Time
}

type Option func(*PortfolioService)

// WithClock replaces time.Now as the source of record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *PortfolioService) { s.now = now }
}

// WithUpdatedBy sets the origin written into mirrored records.
func WithUpdatedBy(name string) Option {
	return func(s *PortfolioService) { s.updatedBy = name }
}

func NewPortfolioService(local localRepository, remote mirror.Mirror, logger *slog.Logger, opts ...Option) *PortfolioService {
	s := &PortfolioService{
		local:     local,
		remote:    remote,
		display:   NewDisplay(),
		logger:    logger,
		now:       time.Now,
		updatedBy: defaultUpdatedBy,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current returns the record shown for kind, or nil when the built-in
// default applies.
func (s *PortfolioService) Current(kind domain.Kind) *domain.Record {
	return s.display.Get(kind)
}

// Load fills the display from the local store. A local read failure leaves
// that kind on its default.
func (s *PortfolioService) Load(ctx context.Context) {
	for _, kind := range domain.Kinds {
		rec, err := s.local.Get(ctx, kind)
		if err != nil {
			s.logger.Error("load local record failed", "kind", kind, "error", err)
			continue
		}
		if s.display.Offer(rec) {
			s.logger.Info("loaded local record", "kind", kind, "timestamp", rec.Timestamp)
		}
	}
}

// SaveProfileImage stores a cropped image data URL as the new profile image.
func (s *PortfolioService) SaveProfileImage(ctx context.Context, data string) (*domain.Record, error) {
	rec := s.newRecord(domain.KindProfileImage, data, "")
	return rec, s.persist(ctx, rec)
}

// persist shows rec, writes it locally and then mirrors it. The display is
// updated first and is not rolled back if the local write fails. Mirror
// failures are logged only.
func (s *PortfolioService) persist(ctx context.Context, rec *domain.Record) error {
	s.display.Offer(rec)

	// Once the local write starts the action runs to completion even if the
	// client goes away.
	ctx = context.WithoutCancel(ctx)

	if err := s.local.Put(ctx, rec); err != nil {
		s.logger.Error("local save failed", "kind", rec.Kind, "error", err)
		return fmt.Errorf("failed to save %s: %w", rec.Kind, err)
	}
	s.logger.Info("record saved", "kind", rec.Kind, "timestamp", rec.Timestamp, "bytes", len(rec.Data))

	if err := s.remote.Save(ctx, rec); err != nil {
		s.logRemoteError("mirror save failed", rec.Kind, err)
	}
	return nil
}

// Sync pulls each kind from the mirror and adopts it when it is newer than
// what is shown. It returns the kinds that changed.
func (s *PortfolioService) Sync(ctx context.Context) ([]domain.Kind, error) {
	var updated []domain.Kind
	var errs []error

	for _, kind := range domain.Kinds {
		remote, err := s.remote.Load(ctx, kind)
		if err != nil {
			if errors.Is(err, domain.ErrRemoteUnavailable) {
				return updated, err
			}
			errs = append(errs, fmt.Errorf("load %s: %w", kind, err))
			continue
		}
		if !remote.NewerThan(s.display.Get(kind)) {
			continue
		}

		if err := s.local.Put(ctx, remote); err != nil {
			s.logger.Error("local save of mirrored record failed", "kind", kind, "error", err)
		}
		s.display.Offer(remote)
		updated = append(updated, kind)
		s.logger.Info("adopted newer mirrored record", "kind", kind, "timestamp", remote.Timestamp)
	}
	return updated, errors.Join(errs...)
}

func (s *PortfolioService) newRecord(kind domain.Kind, data, fileName string) *domain.Record {
	return &domain.Record{
		Kind:      kind,
		Data:      data,
		FileName:  fileName,
		Timestamp: s.nextTimestamp(kind),
		UpdatedBy: s.updatedBy,
	}
}

// nextTimestamp returns the current time at millisecond precision, never
// earlier than a timestamp this service already issued or the record on
// display.
func (s *PortfolioService) nextTimestamp(kind domain.Kind) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := time.UnixMilli(s.now().UnixMilli())
	if ts.Before(s.lastIssued) {
		ts = s.lastIssued
	}
	if cur := s.display.Get(kind); cur != nil && ts.Before(cur.Timestamp) {
		ts = cur.Timestamp
	}
	s.lastIssued = ts
	return ts
}

func (s *PortfolioService) logRemoteError(msg string, kind domain.Kind, err error) {
	if errors.Is(err, domain.ErrRemoteUnavailable) {
		s.logger.Debug(msg, "kind", kind, "error", err)
		return
	}
	s.logger.Warn(msg, "kind", kind, "error", err)
}
