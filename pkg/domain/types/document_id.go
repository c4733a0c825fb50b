package types

import (
	"crypto/sha256"
	"encoding/hex"
)

// DocumentID is a stable identifier derived from the source kind and the source-native id
type DocumentID string

// NewDocumentID hashes "<kind>:<nativeID>". The same input always yields the same id.
func NewDocumentID(kind SourceKind, nativeID string) DocumentID {
	sum := sha256.Sum256([]byte(string(kind) + ":" + nativeID))
	return DocumentID(hex.EncodeToString(sum[:]))
}

func (id DocumentID) String() string {
	return string(id)
}

// Short returns a truncated form for logs and terminal output
func (id DocumentID) Short() string {
	if len(id) <= 12 {
		return string(id)
	}
	return string(id[:12])
}
