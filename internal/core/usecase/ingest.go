package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ValentinOzeel/RAGalactic/internal/core/domain"
	"github.com/ValentinOzeel/RAGalactic/internal/core/ports"
)

type IngestionPipeline struct {
	registry  ports.DocumentRegistry
	stager    ports.BlobStager
	extractor ports.TextExtractor
	chunker   ports.Chunker
	embedder  ports.Embedder
	vectors   ports.VectorStore
	events    ports.EventPublisher
	topK      int
	logger    *slog.Logger

	inflight keyedMutex
}

func NewIngestionPipeline(
	registry ports.DocumentRegistry,
	stager ports.BlobStager,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	vectors ports.VectorStore,
	events ports.EventPublisher,
	topK int,
	logger *slog.Logger,
) *IngestionPipeline {
	if topK <= 0 {
		topK = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestionPipeline{
		registry:  registry,
		stager:    stager,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		vectors:   vectors,
		events:    events,
		topK:      topK,
		logger:    logger,
	}
}

func (p *IngestionPipeline) IngestNew(
	ctx context.Context,
	userID, fileName, tagsRaw string,
	body io.Reader,
) (*domain.RetrieverHandle, bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, false, domain.WrapError(domain.ErrValidation, "ingest document", fmt.Errorf("user id is empty"))
	}
	fileName = strings.TrimSpace(fileName)
	if err := domain.ValidateFileName(fileName); err != nil {
		return nil, false, err
	}
	tags, err := domain.ParseTags(tagsRaw)
	if err != nil {
		return nil, false, err
	}

	// The in-flight marker is held across the registered-check and the full
	// ingestion so two concurrent uploads of the same new file cannot both
	// pass the check and double-ingest.
	key := userID + "\x00" + fileName
	p.inflight.lock(key)
	defer p.inflight.unlock(key)

	registered, err := p.registry.AlreadyRegistered(ctx, userID, fileName)
	if err != nil {
		return nil, false, fmt.Errorf("check registry: %w", err)
	}
	if registered {
		return p.handleFor(userID, fileName), false, nil
	}

	stageKey := fmt.Sprintf("%s_%s", uuid.NewString(), sanitizeFileName(fileName))
	if err := p.stager.Save(ctx, stageKey, body); err != nil {
		return nil, false, domain.WrapError(domain.ErrExtraction, "stage upload", err)
	}
	defer func() {
		if err := p.stager.Remove(context.WithoutCancel(ctx), stageKey); err != nil {
			p.logger.Warn("remove staged upload", "key", stageKey, "error", err)
		}
	}()

	units, err := p.extractAndChunk(ctx, stageKey, fileName, tags)
	if err != nil {
		return nil, false, err
	}

	if err := p.embedAndIndex(ctx, userID, units); err != nil {
		return nil, false, err
	}

	// Registry write happens last: a failure anywhere above leaves no record.
	record := &domain.DocumentRecord{
		UserID:    userID,
		FileName:  fileName,
		Tags:      tags,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.registry.Register(ctx, record); err != nil {
		return nil, false, fmt.Errorf("register document: %w", err)
	}

	if p.events != nil {
		if err := p.events.PublishDocumentIngested(ctx, userID, fileName); err != nil {
			p.logger.Warn("publish ingestion event", "user_id", userID, "file_name", fileName, "error", err)
		}
	}

	return p.handleFor(userID, fileName), true, nil
}

func (p *IngestionPipeline) LoadExisting(ctx context.Context, userID string, fileNames []string) (*domain.RetrieverHandle, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.WrapError(domain.ErrValidation, "load documents", fmt.Errorf("user id is empty"))
	}
	if len(fileNames) == 0 {
		return nil, domain.WrapError(domain.ErrValidation, "load documents", fmt.Errorf("file name selection is empty"))
	}

	known, err := p.registry.ListDocuments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list registry: %w", err)
	}
	knownSet := make(map[string]struct{}, len(known))
	for _, name := range known {
		knownSet[name] = struct{}{}
	}

	selected := make([]string, 0, len(fileNames))
	for _, name := range fileNames {
		name = strings.TrimSpace(name)
		if _, ok := knownSet[name]; !ok {
			return nil, domain.WrapError(domain.ErrNotFound, "load documents",
				fmt.Errorf("document %q is not registered for this user", name))
		}
		selected = append(selected, name)
	}

	return &domain.RetrieverHandle{UserID: userID, FileNames: selected, TopK: p.topK}, nil
}

func (p *IngestionPipeline) extractAndChunk(ctx context.Context, stageKey, fileName string, tags []domain.Tag) ([]domain.RetrievalUnit, error) {
	pages, err := p.extractor.Extract(ctx, stageKey)
	if err != nil {
		return nil, domain.WrapError(domain.ErrExtraction, "extract text", err)
	}

	units := make([]domain.RetrievalUnit, 0, len(pages))
	chunkIndex := 0
	for _, page := range pages {
		for _, chunk := range p.chunker.Split(page.Text) {
			units = append(units, domain.RetrievalUnit{
				FileName:   fileName,
				Page:       page.Page,
				ChunkIndex: chunkIndex,
				Text:       chunk,
				Tags:       tags,
			})
			chunkIndex++
		}
	}
	if len(units) == 0 {
		return nil, domain.WrapError(domain.ErrExtraction, "extract text", fmt.Errorf("document yielded no text"))
	}
	return units, nil
}

func (p *IngestionPipeline) embedAndIndex(ctx context.Context, userID string, units []domain.RetrievalUnit) error {
	texts := make([]string, len(units))
	for i, unit := range units {
		texts[i] = unit.Text
	}

	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return domain.WrapError(domain.ErrIndexing, "embed chunks", err)
	}
	if len(vectors) != len(units) {
		return domain.WrapError(domain.ErrIndexing, "embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(units)))
	}

	if err := p.vectors.IngestUnits(ctx, userID, units, vectors); err != nil {
		return domain.WrapError(domain.ErrIndexing, "index chunks", err)
	}
	return nil
}

func (p *IngestionPipeline) handleFor(userID, fileName string) *domain.RetrieverHandle {
	return &domain.RetrieverHandle{UserID: userID, FileNames: []string{fileName}, TopK: p.topK}
}

func sanitizeFileName(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.pdf"
	}
	return base
}

// keyedMutex serializes ingestion per (user, file_name) pair.
type keyedMutex struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func (k *keyedMutex) lock(key string) {
	for {
		k.mu.Lock()
		if k.held == nil {
			k.held = make(map[string]chan struct{})
		}
		ch, taken := k.held[key]
		if !taken {
			k.held[key] = make(chan struct{})
			k.mu.Unlock()
			return
		}
		k.mu.Unlock()
		<-ch
	}
}

func (k *keyedMutex) unlock(key string) {
	k.mu.Lock()
	ch := k.held[key]
	delete(k.held, key)
	k.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}
