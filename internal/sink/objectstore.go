package sink

import (
	"context"

	"github.com/withObsrvr/transform-worker/internal/storage"
)

// ObjectStoreSink writes each batch as one object keyed by request and
// chunk sequence.
type ObjectStoreSink struct {
	store *storage.ObjectStore
}

func NewObjectStoreSink(store *storage.ObjectStore) *ObjectStoreSink {
	return &ObjectStoreSink{store: store}
}

func (s *ObjectStoreSink) Flush(ctx context.Context, b Batch) error {
	return s.store.Write(ctx, b.Key(), b.Data)
}

// Close is a no-op: the store handle is owned by the caller.
func (s *ObjectStoreSink) Close() error {
	return nil
}
