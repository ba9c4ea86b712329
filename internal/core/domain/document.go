package domain

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// MaxFileNameLength bounds uploaded file names, extension included.
const MaxFileNameLength = 42

// Two-level tag syntax: "name::value//name::value".
const (
	TagSeparator      = "//"
	TagNameValueDelim = "::"
	PDFFileExtension  = ".pdf"
)

// Tag is one user-supplied (name, value) assignment on a document.
type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (t Tag) String() string {
	return t.Name + TagNameValueDelim + t.Value
}

// DocumentRecord is the durable per-user record of one ingested document.
// FileName is unique within a user and immutable; tags are fixed at first
// ingestion.
type DocumentRecord struct {
	UserID    string    `json:"user_id"`
	FileName  string    `json:"file_name"`
	Tags      []Tag     `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
}

// ParseTags parses the delimited tag text entered at upload time. Empty input
// means zero tags and is valid.
func ParseTags(raw string) ([]Tag, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, TagSeparator)
	tags := make([]Tag, 0, len(parts))
	for _, part := range parts {
		name, value, ok := strings.Cut(part, TagNameValueDelim)
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if !ok || name == "" || value == "" {
			return nil, WrapError(ErrValidation, "parse tags",
				fmt.Errorf("tag %q does not match name%svalue", part, TagNameValueDelim))
		}
		tags = append(tags, Tag{Name: name, Value: value})
	}
	return tags, nil
}

// ValidateFileName enforces the upload contract: a non-empty bare .pdf file
// name within the length cap.
func ValidateFileName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return WrapError(ErrValidation, "validate file name", fmt.Errorf("file name is empty"))
	}
	if trimmed != filepath.Base(trimmed) {
		return WrapError(ErrValidation, "validate file name", fmt.Errorf("file name %q contains a path", name))
	}
	if len(trimmed) > MaxFileNameLength {
		return WrapError(ErrValidation, "validate file name",
			fmt.Errorf("file name %q exceeds %d characters", name, MaxFileNameLength))
	}
	if !strings.EqualFold(filepath.Ext(trimmed), PDFFileExtension) {
		return WrapError(ErrValidation, "validate file name", fmt.Errorf("file name %q is not a pdf", name))
	}
	return nil
}

// SortTags orders tags by name then value, in place.
func SortTags(tags []Tag) {
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Name != tags[j].Name {
			return tags[i].Name < tags[j].Name
		}
		return tags[i].Value < tags[j].Value
	})
}

// ContainsAllTags reports whether every tag in want appears among have
// (semantic set containment, order-insensitive).
func ContainsAllTags(have, want []Tag) bool {
	for _, w := range want {
		if !containsTag(have, w) {
			return false
		}
	}
	return true
}

// ContainsAnyTag reports whether at least one tag in want appears among have.
func ContainsAnyTag(have, want []Tag) bool {
	for _, w := range want {
		if containsTag(have, w) {
			return true
		}
	}
	return false
}

func containsTag(tags []Tag, tag Tag) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
