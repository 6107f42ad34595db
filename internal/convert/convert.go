// Package convert streams a completed transform output file into columnar
// batches. The source file is read a chunk of rows at a time, so memory use
// is bounded by one chunk regardless of file size.
package convert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/withObsrvr/transform-worker/internal/logging"
	"github.com/withObsrvr/transform-worker/internal/metrics"
	"github.com/withObsrvr/transform-worker/internal/sink"
)

// AvgCellBytes is the rule-of-thumb size of one cell. Request schedulers
// divide their memory budget by this constant to derive the per-request
// chunk size; the converter itself only ever consumes the resulting row
// count.
const AvgCellBytes = 42

// Stats accumulates observability counters for one conversion.
type Stats struct {
	Batches   int
	Rows      int64
	Bytes     int64         // encoded bytes handed to the sink
	FlushTime time.Duration // cumulative time spent in sink flushes
}

// Converter reads parquet output files and delivers row batches to a sink.
type Converter struct {
	sink sink.Sink
	log  *slog.Logger
}

func New(s sink.Sink) *Converter {
	return &Converter{
		sink: s,
		log:  logging.Component("converter"),
	}
}

// Convert streams the file at path to the sink in batches of at most
// chunkSize rows. The schema is discovered from the file before iteration
// and applied to every batch. The pass is single-shot: consuming it
// exhausts the source file handle.
func (c *Converter) Convert(ctx context.Context, requestID, path string, chunkSize int) (Stats, error) {
	var stats Stats

	if chunkSize <= 0 {
		return stats, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}

	f, err := os.Open(path)
	if err != nil {
		return stats, fmt.Errorf("open source %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return stats, fmt.Errorf("stat source %s: %w", path, err)
	}

	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return stats, fmt.Errorf("read schema from %s: %w", path, err)
	}

	schema := pf.Schema()
	c.log.Info("discovered schema",
		"table", schema.Name(),
		"columns", len(schema.Fields()),
		"rows", pf.NumRows(),
	)

	// scratch receives rows from the reader; chunk owns cloned rows until
	// the batch flushes. Rows returned by ReadRows are only valid until
	// the next read, hence the clone.
	scratch := make([]parquet.Row, chunkSize)
	chunk := make([]parquet.Row, 0, chunkSize)
	seq := 0

	for _, rg := range pf.RowGroups() {
		rows := rg.Rows()

		for {
			n, readErr := rows.ReadRows(scratch[:chunkSize-len(chunk)])
			for _, row := range scratch[:n] {
				chunk = append(chunk, row.Clone())
			}

			if len(chunk) == chunkSize {
				if err := c.flush(ctx, requestID, seq, schema, chunk, &stats); err != nil {
					rows.Close()
					return stats, err
				}
				seq++
				chunk = chunk[:0]
			}

			if readErr == io.EOF || (readErr == nil && n == 0) {
				break
			}
			if readErr != nil {
				rows.Close()
				return stats, fmt.Errorf("read rows from %s: %w", path, readErr)
			}
		}

		rows.Close()
	}

	if len(chunk) > 0 {
		if err := c.flush(ctx, requestID, seq, schema, chunk, &stats); err != nil {
			return stats, err
		}
	}

	c.log.Info("conversion complete",
		"batches", stats.Batches,
		"rows", stats.Rows,
		"bytes", stats.Bytes,
		"flush_time", stats.FlushTime.String(),
	)
	return stats, nil
}

// flush encodes one chunk with the discovered schema and hands it to the sink.
func (c *Converter) flush(ctx context.Context, requestID string, seq int, schema *parquet.Schema, rows []parquet.Row, stats *Stats) error {
	var buf bytes.Buffer
	w := parquet.NewWriter(&buf, schema, parquet.Compression(&parquet.Snappy))

	if _, err := w.WriteRows(rows); err != nil {
		return fmt.Errorf("encode batch %d: %w", seq, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close batch %d: %w", seq, err)
	}

	batch := sink.Batch{
		RequestID: requestID,
		Seq:       seq,
		Rows:      len(rows),
		Data:      buf.Bytes(),
	}

	start := time.Now()
	if err := c.sink.Flush(ctx, batch); err != nil {
		return fmt.Errorf("flush batch %d: %w", seq, err)
	}
	elapsed := time.Since(start)

	stats.Batches++
	stats.Rows += int64(len(rows))
	stats.Bytes += int64(len(batch.Data))
	stats.FlushTime += elapsed
	metrics.Get().ObserveBatchFlush(batch.Rows, len(batch.Data), elapsed.Seconds())

	return nil
}
