// Package sink delivers converted columnar batches to their destination:
// the object store or a per-request message topic.
package sink

import (
	"context"
	"fmt"
)

// Batch is one chunk of rows, already encoded as a parquet payload.
type Batch struct {
	RequestID string
	Seq       int // 0-based position within the source file
	Rows      int
	Data      []byte
}

// Key returns the storage key for a batch.
func (b Batch) Key() string {
	return fmt.Sprintf("%s/chunk-%05d.parquet", b.RequestID, b.Seq)
}

// Sink receives completed batches. A flush error is surfaced to the caller
// rather than retried here; retry happens at the job level by re-running
// the whole job.
type Sink interface {
	Flush(ctx context.Context, b Batch) error
	Close() error
}
