package ports

import (
	"context"
	"io"

	"github.com/ValentinOzeel/RAGalactic/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	// IngestNew deduplicates on (user, file_name): re-uploading a registered
	// name skips extraction and embedding entirely and returns a handle to the
	// existing content with created=false.
	IngestNew(ctx context.Context, userID, fileName, tagsRaw string, body io.Reader) (handle *domain.RetrieverHandle, created bool, err error)
	// LoadExisting builds a retriever over previously ingested documents,
	// OR-filtered across the given non-empty name set.
	LoadExisting(ctx context.Context, userID string, fileNames []string) (*domain.RetrieverHandle, error)
}

// DocumentCatalog is the inbound read model over the registry: listing,
// distinct tags, and tag-based filtering.
type DocumentCatalog interface {
	ListDocuments(ctx context.Context, userID string) ([]string, error)
	DistinctTags(ctx context.Context, userID string) ([]domain.Tag, error)
	FilterAll(ctx context.Context, userID string, tags []domain.Tag) ([]string, error)
	FilterAny(ctx context.Context, userID string, tags []domain.Tag) ([]string, error)
}

// TokenSink receives answer fragments during a streaming turn. A non-nil
// return aborts the turn before history is updated.
type TokenSink func(fragment string) error

// TurnRunner executes conversation turns for one session.
type TurnRunner interface {
	Configure(cfg domain.SessionConfig)
	RunTurn(ctx context.Context, handle *domain.RetrieverHandle, userText string, sink TokenSink) (*domain.Answer, error)
	History() []domain.Turn
	// Reset discards accumulated turn history. Called when the session's
	// document scope changes: prior turns were answered against a different
	// corpus and must not leak into later prompts.
	Reset()
}
