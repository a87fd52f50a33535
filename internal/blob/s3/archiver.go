package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/xtrenches/trenchbot/internal/domain"
)

// ClosedTradeStore is the slice of the trade store the archiver needs:
// listing and pruning closed trades older than a cutoff.
type ClosedTradeStore interface {
	ListClosedBefore(ctx context.Context, before time.Time) ([]domain.Trade, error)
	DeleteClosedBefore(ctx context.Context, before time.Time) (int64, error)
}

// BlobWriter uploads one object. Implemented by Writer.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver moves closed trades past their retention window out of Postgres
// and into object storage as JSONL, then deletes the archived rows. Rows are
// only deleted after the upload has succeeded.
type Archiver struct {
	writer BlobWriter
	trades ClosedTradeStore
	logger *slog.Logger
}

func NewArchiver(writer BlobWriter, trades ClosedTradeStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		trades: trades,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// Archive uploads every closed trade older than the cutoff and prunes the
// archived rows. Returns the number of trades archived.
func (a *Archiver) Archive(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListClosedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: list closed trades: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: marshal trades: %w", err)
	}

	path := archivePath(before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: upload archive: %w", err)
	}

	deleted, err := a.trades.DeleteClosedBefore(ctx, before)
	if err != nil {
		// The upload succeeded; the rows will be picked up again on the next
		// run, producing a duplicate archive object rather than data loss.
		return int64(len(trades)), fmt.Errorf("s3blob: prune archived trades: %w", err)
	}

	a.logger.InfoContext(ctx, "trades archived",
		slog.String("path", path),
		slog.Int("uploaded", len(trades)),
		slog.Int64("deleted", deleted),
	)
	return int64(len(trades)), nil
}

// archivePath partitions archive objects by the cutoff's year-month, e.g.
// archive/trades/2026-08.jsonl.
func archivePath(before time.Time) string {
	return fmt.Sprintf("archive/trades/%s.jsonl", before.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
