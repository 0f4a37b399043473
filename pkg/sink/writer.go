package sink

import (
	"context"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/hublift/hublift/pkg/errors"
	"github.com/hublift/hublift/pkg/jsonpool"
	"github.com/hublift/hublift/pkg/logger"
	"github.com/hublift/hublift/pkg/metrics"
	"github.com/hublift/hublift/pkg/normalize"
)

// Writer turns record groups into NDJSON blobs: records are flattened to a
// single level, keys are snake-cased, and each record becomes one JSON line.
type Writer struct {
	store    ObjectStore
	bucket   string
	compress bool
	object   string
}

// NewWriter creates a Writer targeting bucket. object labels metrics only.
func NewWriter(store ObjectStore, bucket, object string, compress bool) *Writer {
	return &Writer{store: store, bucket: bucket, object: object, compress: compress}
}

// Extension returns the file extension blobs written by this Writer carry.
func (w *Writer) Extension() string {
	if w.compress {
		return ".json.gz"
	}
	return ".json"
}

// Write serializes records and uploads them under key. An empty record slice
// writes nothing and returns nil, so empty groups never produce blobs.
func (w *Writer) Write(ctx context.Context, records []normalize.RawRecord, key string) error {
	if len(records) == 0 {
		return nil
	}

	shaped := make([]map[string]interface{}, 0, len(records))
	for _, record := range records {
		shaped = append(shaped, shapeRecord(record))
	}

	content, err := jsonpool.MarshalLines(shaped)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to serialize records").
			WithDetail("key", key)
	}

	if w.compress {
		content, err = gzipBytes(content)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to compress blob").
				WithDetail("key", key)
		}
	}

	start := time.Now()
	if err := w.store.Put(ctx, content, w.bucket, key); err != nil {
		return err
	}

	metrics.UploadBytes.WithLabelValues(w.object).Add(float64(len(content)))
	metrics.UploadDuration.WithLabelValues(w.object).Observe(time.Since(start).Seconds())
	logger.WithContext(ctx).Debug("wrote blob",
		zap.String("bucket", w.bucket),
		zap.String("key", key),
		zap.Int("records", len(records)),
		zap.Int("bytes", len(content)))
	return nil
}

// shapeRecord flattens nesting and snake-cases the resulting keys. When two
// source keys collapse to the same snake-case name the later one wins.
func shapeRecord(record normalize.RawRecord) map[string]interface{} {
	flat := normalize.Flatten(record)
	shaped := make(map[string]interface{}, len(flat))
	for k, v := range flat {
		shaped[normalize.Constrict(k)] = v
	}
	return shaped
}

func gzipBytes(content []byte) ([]byte, error) {
	buf := jsonpool.GetBuffer()
	defer jsonpool.PutBuffer(buf)

	gz := gzip.NewWriter(buf)
	if _, err := gz.Write(content); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}
