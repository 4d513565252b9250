package localstore

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vbonduro/folio/internal/db"
	"github.com/vbonduro/folio/internal/domain"
	"github.com/vbonduro/folio/internal/kvstore/local"
	"github.com/vbonduro/folio/internal/store"
)

// failingFlat is a kvstore.Store whose writes always fail.
type failingFlat struct{}

func (failingFlat) Set(context.Context, string, string) error { return errors.New("disk full") }
func (failingFlat) Get(context.Context, string) (string, bool, error) {
	return "", false, nil
}

// switchableRecords delegates to a real record store until failPut is set.
type switchableRecords struct {
	*store.RecordStore
	failPut bool
}

func (r *switchableRecords) Put(ctx context.Context, rec *domain.Record) error {
	if r.failPut {
		return errors.New("database is locked")
	}
	return r.RecordStore.Put(ctx, rec)
}

func newFlat(t *testing.T) *local.FileStore {
	t.Helper()
	flat, err := local.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return flat
}

func newRecords(t *testing.T) *store.RecordStore {
	t.Helper()
	d, err := db.OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return store.NewRecordStore(d)
}

func TestPutMirrorsIntoFlatStore(t *testing.T) {
	flat := newFlat(t)
	s := New(newRecords(t), flat, slog.Default())
	ctx := context.Background()

	err := s.Put(ctx, &domain.Record{
		Kind:      domain.KindResume,
		Data:      "data:application/pdf;base64,JVBE",
		FileName:  "cv.pdf",
		Timestamp: time.UnixMilli(1234),
	})
	require.NoError(t, err)

	for key, want := range map[string]string{
		"resume":          "data:application/pdf;base64,JVBE",
		"resumeFileName":  "cv.pdf",
		"resumeTimestamp": "1234",
	} {
		got, ok, err := flat.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}
}

func TestPutFallsBackWhenStructuredStoreUnavailable(t *testing.T) {
	flat := newFlat(t)
	s := New(store.NewRecordStore(nil), flat, slog.Default())
	ctx := context.Background()

	err := s.Put(ctx, &domain.Record{Kind: domain.KindProfileImage, Data: "data:image/jpeg;base64,AA==", Timestamp: time.UnixMilli(99)})
	require.NoError(t, err)

	got, err := s.Get(ctx, domain.KindProfileImage)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "data:image/jpeg;base64,AA==", got.Data)
	assert.Equal(t, int64(99), got.Timestamp.UnixMilli())
}

func TestGetSurvivesStructuredStoreLoss(t *testing.T) {
	flat := newFlat(t)
	ctx := context.Background()

	require.NoError(t, New(newRecords(t), flat, slog.Default()).Put(ctx, &domain.Record{
		Kind: domain.KindResume, Data: "data:application/pdf;base64,AA==", FileName: "a.pdf", Timestamp: time.UnixMilli(7),
	}))

	// Same flat store, structured store gone.
	got, err := New(store.NewRecordStore(nil), flat, slog.Default()).Get(ctx, domain.KindResume)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a.pdf", got.FileName)
	assert.Equal(t, int64(7), got.Timestamp.UnixMilli())
}

func TestGetMissing(t *testing.T) {
	s := New(newRecords(t), newFlat(t), slog.Default())

	got, err := s.Get(context.Background(), domain.KindProfileImage)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPutFailsWhenBothStoresFail(t *testing.T) {
	s := New(store.NewRecordStore(nil), failingFlat{}, slog.Default())

	err := s.Put(context.Background(), &domain.Record{Kind: domain.KindResume, Data: "x"})
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

func TestGetPrefersNewerFlatRecordOverStaleRow(t *testing.T) {
	records := &switchableRecords{RecordStore: newRecords(t)}
	s := New(records, newFlat(t), slog.Default())
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &domain.Record{Kind: domain.KindProfileImage, Data: "data:image/jpeg;base64,OLD", Timestamp: time.UnixMilli(1000)}))

	records.failPut = true
	require.NoError(t, s.Put(ctx, &domain.Record{Kind: domain.KindProfileImage, Data: "data:image/jpeg;base64,NEW", Timestamp: time.UnixMilli(2000)}))

	got, err := s.Get(ctx, domain.KindProfileImage)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "data:image/jpeg;base64,NEW", got.Data)
	assert.Equal(t, int64(2000), got.Timestamp.UnixMilli())
}

func TestGetPrefersStructuredRecordOnTie(t *testing.T) {
	s := New(newRecords(t), newFlat(t), slog.Default())
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &domain.Record{
		Kind: domain.KindResume, Data: "data:application/pdf;base64,AA==", FileName: "cv.pdf",
		Timestamp: time.UnixMilli(5), UpdatedBy: "admin",
	}))

	got, err := s.Get(ctx, domain.KindResume)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "admin", got.UpdatedBy)
	assert.Equal(t, "cv.pdf", got.FileName)
}
