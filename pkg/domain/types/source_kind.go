package types

import "fmt"

// SourceKind represents the kind of content source a document came from
type SourceKind string

const (
	SourceKindVideo  SourceKind = "video"
	SourceKindNews   SourceKind = "news"
	SourceKindSocial SourceKind = "social"
)

// AllSourceKinds returns all source kinds in their display order
func AllSourceKinds() []SourceKind {
	return []SourceKind{
		SourceKindVideo,
		SourceKindNews,
		SourceKindSocial,
	}
}

// IsValid checks if the source kind is valid
func (k SourceKind) IsValid() bool {
	switch k {
	case SourceKindVideo,
		SourceKindNews,
		SourceKindSocial:
		return true
	default:
		return false
	}
}

// String returns the string representation of the source kind
func (k SourceKind) String() string {
	return string(k)
}

// ParseSourceKind parses a string into a SourceKind
func ParseSourceKind(s string) (SourceKind, error) {
	kind := SourceKind(s)
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid source kind: %s", s)
	}
	return kind, nil
}
