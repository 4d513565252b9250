// Package localstore is the durable local copy of uploaded records: a
// structured sqlite store with a flat key-value store behind it.
package localstore

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/vbonduro/folio/internal/domain"
	"github.com/vbonduro/folio/internal/kvstore"
)

// Flat store keys, one set per kind.
const (
	keyProfileImage          = "profileImage"
	keyProfileImageTimestamp = "profileImageTimestamp"
	keyResume                = "resume"
	keyResumeFileName        = "resumeFileName"
	keyResumeTimestamp       = "resumeTimestamp"
)

// recordRepository is the subset of store.RecordStore that Store requires.
type recordRepository interface {
	Put(ctx context.Context, rec *domain.Record) error
	Get(ctx context.Context, kind domain.Kind) (*domain.Record, error)
}

type Store struct {
	records recordRepository
	flat    kvstore.Store
	logger  *slog.Logger
}

func New(records recordRepository, flat kvstore.Store, logger *slog.Logger) *Store {
	return &Store{records: records, flat: flat, logger: logger}
}

// Put writes rec to the structured store and mirrors it into the flat store.
// A structured store failure degrades to a flat-only write; Put only fails
// when the flat write fails too.
func (s *Store) Put(ctx context.Context, rec *domain.Record) error {
	if err := s.records.Put(ctx, rec); err != nil {
		s.logger.Warn("structured store write failed, using flat store", "kind", rec.Kind, "error", err)
	}
	if err := s.putFlat(ctx, rec); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	return nil
}

// Get returns the newer of the structured and flat records of kind, or nil if
// neither store has one. A structured write that failed after an earlier
// success leaves a stale row behind, so both stores are always read. Ties go
// to the structured record.
func (s *Store) Get(ctx context.Context, kind domain.Kind) (*domain.Record, error) {
	rec, err := s.records.Get(ctx, kind)
	if err != nil {
		s.logger.Warn("structured store read failed, using flat store", "kind", kind, "error", err)
	}

	flat, err := s.getFlat(ctx, kind)
	if err != nil {
		if rec != nil {
			s.logger.Warn("flat store read failed", "kind", kind, "error", err)
			return rec, nil
		}
		return nil, fmt.Errorf("failed to read flat store: %w", err)
	}

	if flat.NewerThan(rec) {
		return flat, nil
	}
	return rec, nil
}

func (s *Store) putFlat(ctx context.Context, rec *domain.Record) error {
	ts := strconv.FormatInt(rec.Timestamp.UnixMilli(), 10)

	var pairs [][2]string
	switch rec.Kind {
	case domain.KindProfileImage:
		pairs = [][2]string{{keyProfileImage, rec.Data}, {keyProfileImageTimestamp, ts}}
	case domain.KindResume:
		pairs = [][2]string{{keyResume, rec.Data}, {keyResumeFileName, rec.FileName}, {keyResumeTimestamp, ts}}
	default:
		return fmt.Errorf("unknown kind %q", rec.Kind)
	}

	for _, kv := range pairs {
		if err := s.flat.Set(ctx, kv[0], kv[1]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) getFlat(ctx context.Context, kind domain.Kind) (*domain.Record, error) {
	var dataKey, tsKey string
	switch kind {
	case domain.KindProfileImage:
		dataKey, tsKey = keyProfileImage, keyProfileImageTimestamp
	case domain.KindResume:
		dataKey, tsKey = keyResume, keyResumeTimestamp
	default:
		return nil, fmt.Errorf("unknown kind %q", kind)
	}

	data, ok, err := s.flat.Get(ctx, dataKey)
	if err != nil || !ok || data == "" {
		return nil, err
	}

	rec := &domain.Record{Kind: kind, Data: data}

	// A missing or unparsable timestamp reads as the zero instant so any
	// timestamped record wins over it.
	if raw, ok, err := s.flat.Get(ctx, tsKey); err == nil && ok {
		if ms, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
			rec.Timestamp = time.UnixMilli(ms)
		}
	}

	if kind == domain.KindResume {
		name, _, err := s.flat.Get(ctx, keyResumeFileName)
		if err != nil {
			return nil, err
		}
		rec.FileName = name
	}
	return rec, nil
}
