package crawler

import (
	"context"
	"io"
	"time"
)

// SchemaProvider lists the content types in scope for a crawl.
type SchemaProvider interface {
	ContentTypes(ctx context.Context) ([]ContentType, error)
}

// EntryProvider pages through the entries of one content type, all locales,
// with one level of link expansion.
type EntryProvider interface {
	Entries(ctx context.Context, contentTypeID string, skip, limit int) (EntryPage, error)
}

// IndexWriter is the search index consumed by the crawl.
type IndexWriter interface {
	IndexExists(ctx context.Context, index string) (bool, error)
	CreateIndex(ctx context.Context, index string, mapping []byte) error
	DeleteIndex(ctx context.Context, index string) error
	BulkUpsert(ctx context.Context, index string, docs []IndexedDocument) (BulkResult, error)
	PartialUpdate(ctx context.Context, index, id string, update AppendIfAbsent) (UpdateOutcome, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
