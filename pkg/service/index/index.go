package index

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/trendscope/pkg/domain/interfaces"
	"github.com/secmon-lab/trendscope/pkg/domain/model"
	"github.com/secmon-lab/trendscope/pkg/domain/types"
	"github.com/secmon-lab/trendscope/pkg/utils/logging"
)

const (
	DefaultDimension = 384
	DefaultK         = 5
	DefaultMaxChars  = 2000
)

// Hit is one query result
type Hit struct {
	DocumentID types.DocumentID
	Score      float64
}

type entry struct {
	doc    *model.Document
	vector []float32
}

// Index is an append-only in-memory vector index. Vectors are L2-normalized on
// insert so cosine similarity reduces to an inner product. Results with equal
// scores keep insertion order.
type Index struct {
	embedder  interfaces.Embedder
	dimension int
	maxChars  int

	mu      sync.RWMutex
	entries []entry
	byID    map[types.DocumentID]int
}

type Option func(*Index)

// WithDimension sets the expected vector dimension
func WithDimension(dim int) Option {
	return func(idx *Index) {
		idx.dimension = dim
	}
}

// WithMaxChars sets the number of characters of each document that is embedded
func WithMaxChars(n int) Option {
	return func(idx *Index) {
		idx.maxChars = n
	}
}

// New creates an index. The embedder must produce vectors of the index dimension;
// a mismatch is reported as model.ErrConfiguration.
func New(embedder interfaces.Embedder, opts ...Option) (*Index, error) {
	if embedder == nil {
		return nil, goerr.Wrap(model.ErrConfiguration, "embedder is required")
	}

	idx := &Index{
		embedder:  embedder,
		dimension: DefaultDimension,
		maxChars:  DefaultMaxChars,
		byID:      make(map[types.DocumentID]int),
	}
	for _, opt := range opts {
		opt(idx)
	}

	if idx.dimension <= 0 {
		return nil, goerr.Wrap(model.ErrConfiguration, "index dimension must be positive", goerr.V("dimension", idx.dimension))
	}
	if d := embedder.Dimension(); d != idx.dimension {
		return nil, goerr.Wrap(model.ErrConfiguration, "embedder dimension does not match index",
			goerr.V("index_dimension", idx.dimension),
			goerr.V("embedder_dimension", d))
	}
	if idx.maxChars <= 0 {
		idx.maxChars = DefaultMaxChars
	}

	return idx, nil
}

func (idx *Index) truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= idx.maxChars {
		return text
	}
	return string(runes[:idx.maxChars])
}

func (idx *Index) checkDimension(vec []float32) error {
	if len(vec) != idx.dimension {
		return goerr.Wrap(model.ErrConfiguration, "embedding dimension mismatch",
			goerr.V("expected", idx.dimension),
			goerr.V("actual", len(vec)))
	}
	return nil
}

func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	out := make([]float32, len(vec))
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Ingest embeds title and body of each document and appends it. Documents already
// in the index are skipped. Nothing is appended when embedding fails.
func (idx *Index) Ingest(ctx context.Context, docs []*model.Document) error {
	idx.mu.RLock()
	pending := make([]*model.Document, 0, len(docs))
	seen := make(map[types.DocumentID]bool, len(docs))
	for _, doc := range docs {
		if doc == nil || seen[doc.ID] {
			continue
		}
		if _, exists := idx.byID[doc.ID]; exists {
			continue
		}
		seen[doc.ID] = true
		pending = append(pending, doc)
	}
	idx.mu.RUnlock()

	if len(pending) == 0 {
		return nil
	}

	texts := make([]string, len(pending))
	for i, doc := range pending {
		texts[i] = idx.truncate(doc.Text())
	}

	vectors, err := idx.embedder.Embed(ctx, texts)
	if err != nil {
		return goerr.Wrap(err, "failed to embed documents", goerr.V("count", len(texts)))
	}
	if len(vectors) != len(pending) {
		return goerr.New("embedder returned wrong number of vectors",
			goerr.V("expected", len(pending)),
			goerr.V("actual", len(vectors)))
	}
	for _, vec := range vectors {
		if err := idx.checkDimension(vec); err != nil {
			return err
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	for i, doc := range pending {
		if _, exists := idx.byID[doc.ID]; exists {
			continue
		}
		idx.byID[doc.ID] = len(idx.entries)
		idx.entries = append(idx.entries, entry{doc: doc, vector: normalize(vectors[i])})
	}

	logging.From(ctx).Debug("documents ingested", "added", len(pending), "total", len(idx.entries))
	return nil
}

// Query returns up to k documents most similar to text, highest score first.
// k <= 0 means DefaultK.
func (idx *Index) Query(ctx context.Context, text string, k int) ([]Hit, error) {
	if k <= 0 {
		k = DefaultK
	}

	idx.mu.RLock()
	empty := len(idx.entries) == 0
	idx.mu.RUnlock()
	if empty {
		return []Hit{}, nil
	}

	vectors, err := idx.embedder.Embed(ctx, []string{idx.truncate(text)})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed query")
	}
	if len(vectors) != 1 {
		return nil, goerr.New("embedder returned wrong number of vectors", goerr.V("actual", len(vectors)))
	}
	if err := idx.checkDimension(vectors[0]); err != nil {
		return nil, err
	}
	query := normalize(vectors[0])

	idx.mu.RLock()
	hits := make([]Hit, len(idx.entries))
	for i, e := range idx.entries {
		hits[i] = Hit{DocumentID: e.doc.ID, Score: dot(query, e.vector)}
	}
	idx.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Document returns an indexed document by id
func (idx *Index) Document(id types.DocumentID) (*model.Document, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	pos, ok := idx.byID[id]
	if !ok {
		return nil, false
	}
	return idx.entries[pos].doc, true
}

// Len returns the number of indexed documents
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Dimension returns the vector dimension
func (idx *Index) Dimension() int {
	return idx.dimension
}
