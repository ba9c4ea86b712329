package ports

import (
	"context"
	"io"

	"github.com/ValentinOzeel/RAGalactic/internal/core/domain"
)

// DocumentRegistry is the durable per-user record of ingested documents.
type DocumentRegistry interface {
	// Register is idempotent: an existing (user, file_name) record is left
	// untouched, tags included.
	Register(ctx context.Context, record *domain.DocumentRecord) error
	AlreadyRegistered(ctx context.Context, userID, fileName string) (bool, error)
	// ListDocuments returns file names sorted lexicographically.
	ListDocuments(ctx context.Context, userID string) ([]string, error)
	// ListRecords returns full records ordered by file name.
	ListRecords(ctx context.Context, userID string) ([]domain.DocumentRecord, error)
}

// BlobStager holds uploaded bytes for the duration of one ingestion.
type BlobStager interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

// TextExtractor turns a staged document into ordered page texts.
type TextExtractor interface {
	Extract(ctx context.Context, key string) ([]domain.PageText, error)
}

// Chunker splits page text into retrievable chunks.
type Chunker interface {
	Split(text string) []string
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore owns one partition per user. Partition creation is idempotent
// and performed lazily on first ingest.
type VectorStore interface {
	// IngestUnits appends one embedded batch; the batch is atomic, a failed
	// call leaves the partition unchanged.
	IngestUnits(ctx context.Context, userID string, units []domain.RetrievalUnit, vectors [][]float32) error
	// Retrieve returns the topK most relevant units, optionally restricted to
	// the given file names (OR semantics). Empty fileNames means the whole
	// partition is eligible.
	Retrieve(ctx context.Context, userID string, queryVector []float32, topK int, fileNames []string) ([]domain.RetrievedUnit, error)
}

// LanguageModel invokes the chat model with a system prompt, prior history and
// the new user turn.
type LanguageModel interface {
	Complete(ctx context.Context, systemPrompt string, history []domain.Turn, userText string) (string, error)
	// CompleteStream forwards each response fragment to emit as it arrives and
	// returns the fully assembled text once the stream is drained. An error
	// from emit aborts the call.
	CompleteStream(ctx context.Context, systemPrompt string, history []domain.Turn, userText string, emit func(fragment string) error) (string, error)
}

// EventPublisher notifies downstream consumers about completed ingestions.
type EventPublisher interface {
	PublishDocumentIngested(ctx context.Context, userID, fileName string) error
}
