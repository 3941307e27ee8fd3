package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/signalrelay/internal/domain"
)

const jsonlContentType = "application/x-ndjson"

// multipartThreshold is the encoded size above which uploads go through
// the multipart manager.
const multipartThreshold = 16 << 20

// SizeChecker reports the stored size of an uploaded object.
type SizeChecker interface {
	Size(ctx context.Context, path string) (int64, bool, error)
}

// SignalArchiver implements domain.Archiver. It writes signals older than a
// cutoff to one JSONL object, checks the upload landed, and only then
// deletes the rows from the store.
type SignalArchiver struct {
	writer   domain.BlobWriter
	store    domain.SignalStore
	verifier SizeChecker       // optional
	audit    domain.AuditStore // optional
	prefix   string
	logger   *slog.Logger
}

// NewSignalArchiver creates a SignalArchiver. verifier and audit may be nil.
func NewSignalArchiver(
	writer domain.BlobWriter,
	store domain.SignalStore,
	verifier SizeChecker,
	audit domain.AuditStore,
	prefix string,
	logger *slog.Logger,
) *SignalArchiver {
	if prefix == "" {
		prefix = "archive"
	}
	return &SignalArchiver{
		writer:   writer,
		store:    store,
		verifier: verifier,
		audit:    audit,
		prefix:   prefix,
		logger:   logger.With(slog.String("component", "s3_archiver")),
	}
}

// ArchiveSignals moves every signal received before the cutoff to object
// storage and returns how many were moved. Nothing is deleted when the
// upload or its verification fails.
func (a *SignalArchiver) ArchiveSignals(ctx context.Context, before time.Time) (int64, error) {
	events, err := a.store.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive signals query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive signals marshal: %w", err)
	}

	key := archivePath(a.prefix, before, uuid.NewString())
	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, key, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, key, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive signals upload: %w", err)
	}

	if a.verifier != nil {
		size, ok, err := a.verifier.Size(ctx, key)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive signals verify: %w", err)
		}
		if !ok || size != int64(len(buf)) {
			return 0, fmt.Errorf("s3blob: archive signals verify %s: stored %d bytes (exists=%t), wrote %d",
				key, size, ok, len(buf))
		}
	}

	deleted, err := a.store.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive signals delete: %w", err)
	}
	if deleted != int64(len(events)) {
		a.logger.WarnContext(ctx, "archived and deleted counts differ",
			slog.Int("archived", len(events)),
			slog.Int64("deleted", deleted),
		)
	}

	count := int64(len(events))
	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.signals", map[string]any{
			"path":   key,
			"count":  count,
			"bytes":  len(buf),
			"before": before.UTC().Format(time.RFC3339),
		}); err != nil {
			a.logger.WarnContext(ctx, "archive audit log failed", slog.String("error", err.Error()))
		}
	}
	return count, nil
}

// archivePath partitions objects by the cutoff day:
//
//	archive/signals/2024/01/15/<id>.jsonl
func archivePath(prefix string, before time.Time, id string) string {
	return path.Join(prefix, "signals", before.UTC().Format("2006/01/02"), id+".jsonl")
}

// marshalJSONL encodes records as newline-delimited JSON.
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

var _ domain.Archiver = (*SignalArchiver)(nil)
