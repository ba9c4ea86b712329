package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/ValentinOzeel/RAGalactic/internal/core/domain"
	"github.com/ValentinOzeel/RAGalactic/internal/core/ports"
)

// CatalogUseCase answers listing, distinct-tag and tag-filter queries over the
// registry's current snapshot.
type CatalogUseCase struct {
	registry ports.DocumentRegistry
}

func NewCatalogUseCase(registry ports.DocumentRegistry) *CatalogUseCase {
	return &CatalogUseCase{registry: registry}
}

func (uc *CatalogUseCase) ListDocuments(ctx context.Context, userID string) ([]string, error) {
	names, err := uc.registry.ListDocuments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return names, nil
}

func (uc *CatalogUseCase) DistinctTags(ctx context.Context, userID string) ([]domain.Tag, error) {
	records, err := uc.registry.ListRecords(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	seen := make(map[domain.Tag]struct{})
	tags := make([]domain.Tag, 0)
	for _, record := range records {
		for _, tag := range record.Tags {
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			tags = append(tags, tag)
		}
	}
	domain.SortTags(tags)
	return tags, nil
}

// FilterAll returns documents whose tags are a superset of the given set.
func (uc *CatalogUseCase) FilterAll(ctx context.Context, userID string, tags []domain.Tag) ([]string, error) {
	return uc.filter(ctx, userID, tags, domain.ContainsAllTags)
}

// FilterAny returns documents sharing at least one tag with the given set.
func (uc *CatalogUseCase) FilterAny(ctx context.Context, userID string, tags []domain.Tag) ([]string, error) {
	return uc.filter(ctx, userID, tags, domain.ContainsAnyTag)
}

func (uc *CatalogUseCase) filter(
	ctx context.Context,
	userID string,
	tags []domain.Tag,
	match func(have, want []domain.Tag) bool,
) ([]string, error) {
	if len(tags) == 0 {
		// The index never silently widens to "all documents".
		return nil, domain.WrapError(domain.ErrValidation, "filter documents", fmt.Errorf("tag set is empty"))
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.WrapError(domain.ErrValidation, "filter documents", fmt.Errorf("user id is empty"))
	}

	records, err := uc.registry.ListRecords(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	names := make([]string, 0, len(records))
	for _, record := range records {
		if match(record.Tags, tags) {
			names = append(names, record.FileName)
		}
	}
	return names, nil
}
