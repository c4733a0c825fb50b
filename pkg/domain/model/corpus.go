package model

import (
	"sync"

	"github.com/secmon-lab/trendscope/pkg/domain/types"
)

// SourceLimits caps the number of documents kept per source kind
type SourceLimits map[types.SourceKind]int

// DefaultSourceLimits returns the default per-kind caps
func DefaultSourceLimits() SourceLimits {
	return SourceLimits{
		types.SourceKindVideo:  5,
		types.SourceKindNews:   5,
		types.SourceKindSocial: 50,
	}
}

// Corpus holds the documents gathered for one query. Order within a kind is arrival order.
type Corpus struct {
	mu     sync.RWMutex
	limits SourceLimits
	docs   map[types.SourceKind][]*Document
	byID   map[types.DocumentID]*Document
}

// NewCorpus creates an empty corpus enforcing the given per-kind caps
func NewCorpus(limits SourceLimits) *Corpus {
	if limits == nil {
		limits = DefaultSourceLimits()
	}
	return &Corpus{
		limits: limits,
		docs:   make(map[types.SourceKind][]*Document),
		byID:   make(map[types.DocumentID]*Document),
	}
}

// Add appends documents of one kind in order. Documents beyond the kind's cap,
// documents of another kind and duplicate ids are skipped. Returns the number added.
func (c *Corpus) Add(kind types.SourceKind, docs []*Document) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	limit := c.limits[kind]
	added := 0
	for _, doc := range docs {
		if doc == nil || doc.Kind != kind {
			continue
		}
		if len(c.docs[kind]) >= limit {
			break
		}
		if _, exists := c.byID[doc.ID]; exists {
			continue
		}
		c.docs[kind] = append(c.docs[kind], doc)
		c.byID[doc.ID] = doc
		added++
	}
	return added
}

// Documents returns a copy of the documents of one kind in arrival order
func (c *Corpus) Documents(kind types.SourceKind) []*Document {
	c.mu.RLock()
	defer c.mu.RUnlock()

	docs := c.docs[kind]
	result := make([]*Document, len(docs))
	copy(result, docs)
	return result
}

// All returns every document, grouped by kind in AllSourceKinds order
func (c *Corpus) All() []*Document {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []*Document
	for _, kind := range types.AllSourceKinds() {
		result = append(result, c.docs[kind]...)
	}
	return result
}

// Get looks up a document by id
func (c *Corpus) Get(id types.DocumentID) (*Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.byID[id]
	return doc, ok
}

// Len returns the total number of documents
func (c *Corpus) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// Count returns the number of documents of one kind
func (c *Corpus) Count(kind types.SourceKind) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs[kind])
}

// Limit returns the cap configured for a kind
func (c *Corpus) Limit(kind types.SourceKind) int {
	return c.limits[kind]
}

// Kinds returns the kinds that hold at least one document, in AllSourceKinds order
func (c *Corpus) Kinds() []types.SourceKind {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var kinds []types.SourceKind
	for _, kind := range types.AllSourceKinds() {
		if len(c.docs[kind]) > 0 {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}
