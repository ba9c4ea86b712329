package domain

import (
	"reflect"
	"strings"
	"testing"
)

func TestParseTags(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    []Tag
		wantErr bool
	}{
		{"empty means zero tags", "", nil, false},
		{"blank means zero tags", "   ", nil, false},
		{"single tag", "topic::physics", []Tag{{Name: "topic", Value: "physics"}}, false},
		{
			"multiple tags",
			"topic::physics//year::2024",
			[]Tag{{Name: "topic", Value: "physics"}, {Name: "year", Value: "2024"}},
			false,
		},
		{
			"whitespace around parts",
			" topic :: physics // year :: 2024 ",
			[]Tag{{Name: "topic", Value: "physics"}, {Name: "year", Value: "2024"}},
			false,
		},
		{"missing delimiter", "topic-physics", nil, true},
		{"missing value", "topic::", nil, true},
		{"missing name", "::physics", nil, true},
		{"trailing separator", "topic::physics//", nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseTags(tc.raw)
			if tc.wantErr {
				if !IsKind(err, ErrValidation) {
					t.Fatalf("ParseTags(%q) error = %v, want ErrValidation", tc.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTags(%q) error = %v", tc.raw, err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ParseTags(%q) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestTagStringRoundTrip(t *testing.T) {
	tags := []Tag{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}}
	joined := tags[0].String() + TagSeparator + tags[1].String()
	if joined != "a::1//b::2" {
		t.Fatalf("joined = %q", joined)
	}
	parsed, err := ParseTags(joined)
	if err != nil {
		t.Fatalf("ParseTags() error = %v", err)
	}
	if !reflect.DeepEqual(parsed, tags) {
		t.Fatalf("round trip = %v, want %v", parsed, tags)
	}
}

func TestValidateFileName(t *testing.T) {
	cases := []struct {
		name     string
		fileName string
		ok       bool
	}{
		{"plain pdf", "report.pdf", true},
		{"uppercase extension", "REPORT.PDF", true},
		{"at the length cap", strings.Repeat("a", MaxFileNameLength-4) + ".pdf", true},
		{"empty", "", false},
		{"whitespace only", "  ", false},
		{"over the length cap", strings.Repeat("a", MaxFileNameLength-3) + ".pdf", false},
		{"wrong extension", "report.txt", false},
		{"no extension", "report", false},
		{"path traversal", "../report.pdf", false},
		{"nested path", "docs/report.pdf", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateFileName(tc.fileName)
			if tc.ok && err != nil {
				t.Fatalf("ValidateFileName(%q) error = %v", tc.fileName, err)
			}
			if !tc.ok && !IsKind(err, ErrValidation) {
				t.Fatalf("ValidateFileName(%q) error = %v, want ErrValidation", tc.fileName, err)
			}
		})
	}
}

func TestTagContainment(t *testing.T) {
	have := []Tag{{Name: "topic", Value: "x"}, {Name: "year", Value: "2024"}}

	if !ContainsAllTags(have, []Tag{{Name: "year", Value: "2024"}, {Name: "topic", Value: "x"}}) {
		t.Fatalf("containment must be order-insensitive")
	}
	if ContainsAllTags(have, []Tag{{Name: "topic", Value: "x"}, {Name: "topic", Value: "y"}}) {
		t.Fatalf("missing tag must fail all-of containment")
	}
	if !ContainsAnyTag(have, []Tag{{Name: "topic", Value: "y"}, {Name: "year", Value: "2024"}}) {
		t.Fatalf("one shared tag must satisfy any-of containment")
	}
	if ContainsAnyTag(have, []Tag{{Name: "topic", Value: "y"}}) {
		t.Fatalf("disjoint sets must fail any-of containment")
	}
}

func TestSortTags(t *testing.T) {
	tags := []Tag{{Name: "b", Value: "2"}, {Name: "a", Value: "2"}, {Name: "a", Value: "1"}}
	SortTags(tags)
	want := []Tag{{Name: "a", Value: "1"}, {Name: "a", Value: "2"}, {Name: "b", Value: "2"}}
	if !reflect.DeepEqual(tags, want) {
		t.Fatalf("SortTags() = %v, want %v", tags, want)
	}
}
