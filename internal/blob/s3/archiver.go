package s3blob

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xness/riskcore/internal/domain"
)

// TickArchiveStore is the narrow slice of the tick store the archiver needs:
// a time-ranged read and the matching delete once the archive landed.
type TickArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Tick, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// TickArchiver drains aged ticks from the hot store into object storage as
// gzip-compressed NDJSON. Rows are deleted only after the upload succeeded,
// so a failed run leaves the tape intact and the next run retries the same
// window.
type TickArchiver struct {
	writer    domain.BlobWriter
	ticks     TickArchiveStore
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
}

// NewTickArchiver creates a TickArchiver that keeps retention worth of ticks
// hot and archives the rest every interval.
func NewTickArchiver(writer domain.BlobWriter, ticks TickArchiveStore, retention, interval time.Duration, logger *slog.Logger) *TickArchiver {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &TickArchiver{
		writer:    writer,
		ticks:     ticks,
		retention: retention,
		interval:  interval,
		logger:    logger.With(slog.String("component", "tick_archiver")),
	}
}

// Run archives on the configured interval until ctx is cancelled.
func (a *TickArchiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info("tick archiver started",
		slog.Duration("retention", a.retention),
		slog.Duration("interval", a.interval),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if count, err := a.ArchiveOnce(ctx); err != nil && ctx.Err() == nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			} else if count > 0 {
				a.logger.Info("ticks archived", slog.Int64("count", count))
			}
		}
	}
}

// ArchiveOnce uploads every tick older than the retention window and then
// deletes the archived rows. It returns the number of ticks archived.
func (a *TickArchiver) ArchiveOnce(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-a.retention)

	ticks, err := a.ticks.ListBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(ticks) == 0 {
		return 0, nil
	}

	buf, err := gzipNDJSON(ticks)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive encode: %w", err)
	}

	path := archivePath(cutoff)
	if int64(len(buf)) >= minPartSize {
		// A window this large (a long archiver outage, or retention cranked
		// way down) goes through the multipart uploader.
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson+gzip")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	deleted, err := a.ticks.DeleteBefore(ctx, cutoff)
	if err != nil {
		// The upload landed; the rows will be re-archived next run, which
		// produces an overlapping object rather than data loss.
		return int64(len(ticks)), fmt.Errorf("s3blob: archive cleanup: %w", err)
	}

	a.logger.Debug("archive window complete",
		slog.String("path", path),
		slog.Int("uploaded", len(ticks)),
		slog.Int64("deleted", deleted),
	)
	return int64(len(ticks)), nil
}

// archivePath builds the object key for an archive window, partitioned by
// day and stamped with the cutoff to keep successive windows distinct.
//
//	ticks/2026/08/29/ticks-20260829T150405Z.ndjson.gz
func archivePath(cutoff time.Time) string {
	return fmt.Sprintf("ticks/%s/ticks-%s.ndjson.gz",
		cutoff.Format("2006/01/02"),
		cutoff.Format("20060102T150405Z"),
	)
}

// gzipNDJSON serialises ticks as newline-delimited JSON and compresses the
// result.
func gzipNDJSON(ticks []domain.Tick) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)

	enc := json.NewEncoder(gz)
	enc.SetEscapeHTML(false)
	for i, t := range ticks {
		if err := enc.Encode(t); err != nil {
			return nil, fmt.Errorf("encode tick %d: %w", i, err)
		}
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
