package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vbonduro/folio/internal/domain"
)

// RecordStore keeps the singleton profile image and resume records in sqlite.
// A nil *sql.DB means the database could not be opened; every call then fails
// with domain.ErrStorageUnavailable.
type RecordStore struct {
	db *sql.DB
}

func NewRecordStore(db *sql.DB) *RecordStore {
	return &RecordStore{db: db}
}

// Put upserts rec under its kind's fixed id, replacing any earlier upload.
func (s *RecordStore) Put(ctx context.Context, rec *domain.Record) error {
	if s.db == nil {
		return domain.ErrStorageUnavailable
	}
	if !rec.Kind.Valid() {
		return fmt.Errorf("failed to put record: unknown kind %q", rec.Kind)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (id, kind, data, file_name, timestamp_ms, updated_by)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data,
			file_name = excluded.file_name,
			timestamp_ms = excluded.timestamp_ms,
			updated_by = excluded.updated_by
	`, rec.Kind.RecordID(), string(rec.Kind), rec.Data, rec.FileName, rec.Timestamp.UnixMilli(), rec.UpdatedBy)
	if err != nil {
		return fmt.Errorf("failed to put record: %w", err)
	}
	return nil
}

// Get returns the stored record of kind, or nil if none was ever written.
func (s *RecordStore) Get(ctx context.Context, kind domain.Kind) (*domain.Record, error) {
	if s.db == nil {
		return nil, domain.ErrStorageUnavailable
	}

	rec := &domain.Record{Kind: kind}
	var ts int64
	err := s.db.QueryRowContext(ctx, `
		SELECT data, file_name, timestamp_ms, updated_by FROM records WHERE id = ?
	`, kind.RecordID()).Scan(&rec.Data, &rec.FileName, &ts, &rec.UpdatedBy)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	rec.Timestamp = time.UnixMilli(ts)
	return rec, nil
}
