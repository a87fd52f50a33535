package s3blob

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtrenches/trenchbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeBlobWriter struct {
	puts        []string
	body        string
	contentType string
	err         error
}

func (f *fakeBlobWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	if f.err != nil {
		return f.err
	}
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.puts = append(f.puts, path)
	f.body = string(body)
	f.contentType = contentType
	return nil
}

type fakeClosedStore struct {
	trades    []domain.Trade
	deleteErr error
	deletes   int
}

func (f *fakeClosedStore) ListClosedBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	return f.trades, nil
}

func (f *fakeClosedStore) DeleteClosedBefore(ctx context.Context, before time.Time) (int64, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	f.deletes++
	return int64(len(f.trades)), nil
}

func closedTrade(id string) domain.Trade {
	return domain.Trade{
		ID:           id,
		UserID:       "u1",
		TokenAddress: "mintA",
		Status:       domain.TradeStatusClosed,
	}
}

func TestArchiveUploadsThenDeletes(t *testing.T) {
	writer := &fakeBlobWriter{}
	store := &fakeClosedStore{trades: []domain.Trade{closedTrade("t1"), closedTrade("t2")}}
	a := NewArchiver(writer, store, testLogger())

	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	count, err := a.Archive(context.Background(), cutoff)

	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, []string{"archive/trades/2026-08.jsonl"}, writer.puts)
	assert.Equal(t, "application/x-ndjson", writer.contentType)
	assert.Equal(t, 1, store.deletes)

	// Two JSONL records, one per line.
	lines := strings.Split(strings.TrimSpace(writer.body), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"t1"`)
}

func TestArchiveEmptyIsNoOp(t *testing.T) {
	writer := &fakeBlobWriter{}
	store := &fakeClosedStore{}
	a := NewArchiver(writer, store, testLogger())

	count, err := a.Archive(context.Background(), time.Now())

	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, writer.puts)
	assert.Zero(t, store.deletes)
}

func TestArchiveUploadFailureSkipsDelete(t *testing.T) {
	writer := &fakeBlobWriter{err: errors.New("bucket unreachable")}
	store := &fakeClosedStore{trades: []domain.Trade{closedTrade("t1")}}
	a := NewArchiver(writer, store, testLogger())

	count, err := a.Archive(context.Background(), time.Now())

	require.Error(t, err)
	assert.Zero(t, count)
	assert.Zero(t, store.deletes)
}

func TestArchiveDeleteFailureStillReportsUpload(t *testing.T) {
	writer := &fakeBlobWriter{}
	store := &fakeClosedStore{
		trades:    []domain.Trade{closedTrade("t1")},
		deleteErr: errors.New("db down"),
	}
	a := NewArchiver(writer, store, testLogger())

	count, err := a.Archive(context.Background(), time.Now())

	require.Error(t, err)
	assert.Equal(t, int64(1), count)
	assert.Len(t, writer.puts, 1)
}
