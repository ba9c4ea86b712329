package httpadapter

import (
	"net/http"

	"github.com/ValentinOzeel/RAGalactic/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrValidation):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrConfiguration):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrExtraction),
		domain.IsKind(err, domain.ErrIndexing),
		domain.IsKind(err, domain.ErrRetrieval),
		domain.IsKind(err, domain.ErrModel):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
