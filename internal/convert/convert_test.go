package convert

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/withObsrvr/transform-worker/internal/sink"
)

type event struct {
	ID    int64  `parquet:"id"`
	Label string `parquet:"label"`
}

// captureSink records flushed batches in memory.
type captureSink struct {
	batches []sink.Batch
	failAt  int // flush index to fail at, -1 to never fail
}

func (c *captureSink) Flush(_ context.Context, b sink.Batch) error {
	if c.failAt >= 0 && len(c.batches) == c.failAt {
		return fmt.Errorf("sink rejected batch %d", b.Seq)
	}
	c.batches = append(c.batches, b)
	return nil
}

func (c *captureSink) Close() error { return nil }

func writeSource(t *testing.T, rows []event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.parquet")

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	w := parquet.NewGenericWriter[event](f)
	if _, err := w.Write(rows); err != nil {
		t.Fatalf("write source rows: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close source writer: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close source: %v", err)
	}
	return path
}

func makeRows(n int) []event {
	rows := make([]event, n)
	for i := range rows {
		rows[i] = event{ID: int64(i), Label: fmt.Sprintf("row-%d", i)}
	}
	return rows
}

func decodeBatch(t *testing.T, data []byte) []event {
	t.Helper()
	rows, err := parquet.Read[event](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	return rows
}

func TestConvert_ChunksCoverAllRowsInOrder(t *testing.T) {
	const n, chunkSize = 25, 10
	path := writeSource(t, makeRows(n))
	cs := &captureSink{failAt: -1}

	stats, err := New(cs).Convert(context.Background(), "req-1", path, chunkSize)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	// ceil(25/10) = 3 batches: 10, 10, 5
	if len(cs.batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(cs.batches))
	}
	if stats.Batches != 3 || stats.Rows != n {
		t.Errorf("stats = %+v", stats)
	}

	next := int64(0)
	for i, b := range cs.batches {
		if b.Seq != i {
			t.Errorf("batch %d has seq %d", i, b.Seq)
		}
		if b.Rows > chunkSize {
			t.Errorf("batch %d has %d rows, want <= %d", i, b.Rows, chunkSize)
		}
		for _, row := range decodeBatch(t, b.Data) {
			if row.ID != next {
				t.Fatalf("row out of order: got id %d, want %d", row.ID, next)
			}
			next++
		}
	}
	if next != n {
		t.Errorf("covered %d rows, want %d", next, n)
	}
}

func TestConvert_ExactMultipleOfChunkSize(t *testing.T) {
	path := writeSource(t, makeRows(20))
	cs := &captureSink{failAt: -1}

	if _, err := New(cs).Convert(context.Background(), "req-2", path, 10); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if len(cs.batches) != 2 {
		t.Errorf("got %d batches, want 2", len(cs.batches))
	}
	for _, b := range cs.batches {
		if b.Rows != 10 {
			t.Errorf("batch %d rows = %d, want 10", b.Seq, b.Rows)
		}
	}
}

func TestConvert_SingleBatchWhenChunkExceedsRows(t *testing.T) {
	path := writeSource(t, makeRows(4))
	cs := &captureSink{failAt: -1}

	if _, err := New(cs).Convert(context.Background(), "req-3", path, 100); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if len(cs.batches) != 1 || cs.batches[0].Rows != 4 {
		t.Fatalf("batches = %+v", cs.batches)
	}
}

func TestConvert_SinkErrorSurfaces(t *testing.T) {
	path := writeSource(t, makeRows(30))
	cs := &captureSink{failAt: 1}

	_, err := New(cs).Convert(context.Background(), "req-4", path, 10)
	if err == nil {
		t.Fatal("expected sink error to surface")
	}
}

func TestConvert_UnreadableSourceFails(t *testing.T) {
	cs := &captureSink{failAt: -1}

	_, err := New(cs).Convert(context.Background(), "req-5", filepath.Join(t.TempDir(), "missing.parquet"), 10)
	if err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestConvert_NotParquetFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.parquet")
	if err := os.WriteFile(path, []byte("definitely not parquet"), 0644); err != nil {
		t.Fatalf("write bogus: %v", err)
	}
	cs := &captureSink{failAt: -1}

	_, err := New(cs).Convert(context.Background(), "req-6", path, 10)
	if err == nil {
		t.Fatal("expected schema error for non-parquet source")
	}
}

func TestConvert_RejectsNonPositiveChunkSize(t *testing.T) {
	cs := &captureSink{failAt: -1}

	if _, err := New(cs).Convert(context.Background(), "req-7", "irrelevant", 0); err == nil {
		t.Fatal("expected error for chunk size 0")
	}
}
