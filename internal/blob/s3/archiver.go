package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pmradar/pmradar/internal/domain"
)

// multipartThreshold is the payload size above which the archiver switches
// to the multipart upload path.
const multipartThreshold = 8 * 1024 * 1024

// Archiver writes expired patterns to the object store as JSONL before the
// garbage collector deletes them. Deletion is the caller's responsibility
// and must happen only after the archive upload succeeds.
type Archiver struct {
	writer *Writer
	now    func() time.Time
}

// NewArchiver creates an Archiver that uploads through the given writer.
func NewArchiver(writer *Writer) *Archiver {
	return &Archiver{writer: writer, now: time.Now}
}

// ArchivePatterns serializes the patterns to newline-delimited JSON and
// uploads them under archive/patterns/, partitioned by month with a
// timestamped object name so successive GC passes never overwrite each
// other.
func (a *Archiver) ArchivePatterns(ctx context.Context, patterns []domain.Pattern) error {
	if len(patterns) == 0 {
		return nil
	}

	buf, err := marshalJSONL(patterns)
	if err != nil {
		return fmt.Errorf("s3blob: archive patterns marshal: %w", err)
	}

	now := a.now().UTC()
	path := fmt.Sprintf("archive/patterns/%s/%s.jsonl",
		now.Format("2006-01"), now.Format("20060102T150405Z"))

	if int64(len(buf)) >= multipartThreshold {
		err = a.writer.PutLarge(ctx, path, bytes.NewReader(buf), 0)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return fmt.Errorf("s3blob: archive patterns upload: %w", err)
	}
	return nil
}

// marshalJSONL serializes records as newline-delimited JSON, one compact
// line per record.
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
