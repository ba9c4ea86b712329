package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation    = errors.New("validation failure")
	ErrExtraction    = errors.New("extraction failure")
	ErrIndexing      = errors.New("indexing failure")
	ErrRetrieval     = errors.New("retrieval failure")
	ErrModel         = errors.New("model failure")
	ErrConfiguration = errors.New("configuration failure")
	ErrNotFound      = errors.New("not found")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
