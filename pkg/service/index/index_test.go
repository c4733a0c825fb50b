package index_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/trendscope/pkg/domain/model"
	"github.com/secmon-lab/trendscope/pkg/domain/types"
	"github.com/secmon-lab/trendscope/pkg/service/index"
	"github.com/secmon-lab/trendscope/pkg/service/llm"
)

// stubEmbedder returns fixed vectors keyed by text
type stubEmbedder struct {
	dim     int
	vectors map[string][]float32
	err     error
	calls   int
}

func (s *stubEmbedder) Dimension() int { return s.dim }

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, ok := s.vectors[text]
		if !ok {
			vec = make([]float32, s.dim)
		}
		out[i] = vec
	}
	return out, nil
}

func newDoc(nativeID, title, body string) *model.Document {
	return &model.Document{
		ID:    types.NewDocumentID(types.SourceKindNews, nativeID),
		Kind:  types.SourceKindNews,
		Title: title,
		Body:  body,
	}
}

func TestIndex_RoundTrip(t *testing.T) {
	idx, err := index.New(llm.NewHashEmbedder(index.DefaultDimension))
	gt.NoError(t, err).Required()

	docs := []*model.Document{
		newDoc("1", "Battery prices", "Lithium battery prices fell sharply this quarter"),
		newDoc("2", "Charging network", "New fast charging stations open along the highway"),
		newDoc("3", "Policy", "Government extends tax credits for electric vehicles"),
	}
	gt.NoError(t, idx.Ingest(t.Context(), docs)).Required()
	gt.Value(t, idx.Len()).Equal(3)

	for _, d := range docs {
		hits, err := idx.Query(t.Context(), d.Text(), 1)
		gt.NoError(t, err).Required()
		gt.Array(t, hits).Length(1)
		gt.Value(t, hits[0].DocumentID).Equal(d.ID)
		gt.Number(t, hits[0].Score).GreaterOrEqual(0.999)
	}
}

func TestIndex_Query(t *testing.T) {
	emb := &stubEmbedder{
		dim: 2,
		vectors: map[string][]float32{
			"a\nx": {1, 0},
			"b\nx": {0, 1},
			"c\nx": {1, 1},
			"d\nx": {2, 0},
			"q":    {1, 0},
		},
	}
	idx, err := index.New(emb, index.WithDimension(2))
	gt.NoError(t, err).Required()

	a, b, c, d := newDoc("a", "a", "x"), newDoc("b", "b", "x"), newDoc("c", "c", "x"), newDoc("d", "d", "x")
	gt.NoError(t, idx.Ingest(t.Context(), []*model.Document{a, b, c, d})).Required()

	t.Run("sorted by descending score with insertion order tie-break", func(t *testing.T) {
		hits, err := idx.Query(t.Context(), "q", 4)
		gt.NoError(t, err).Required()
		gt.Array(t, hits).Length(4)
		// a and d normalize to the same vector; a was inserted first
		gt.Value(t, hits[0].DocumentID).Equal(a.ID)
		gt.Value(t, hits[1].DocumentID).Equal(d.ID)
		gt.Value(t, hits[2].DocumentID).Equal(c.ID)
		gt.Value(t, hits[3].DocumentID).Equal(b.ID)
		for i := 1; i < len(hits); i++ {
			gt.Bool(t, hits[i-1].Score >= hits[i].Score).True()
		}
	})

	t.Run("returns at most k", func(t *testing.T) {
		hits, err := idx.Query(t.Context(), "q", 2)
		gt.NoError(t, err).Required()
		gt.Array(t, hits).Length(2)
	})

	t.Run("returns all when fewer than k", func(t *testing.T) {
		hits, err := idx.Query(t.Context(), "q", 10)
		gt.NoError(t, err).Required()
		gt.Array(t, hits).Length(4)
	})

	t.Run("default k", func(t *testing.T) {
		hits, err := idx.Query(t.Context(), "q", 0)
		gt.NoError(t, err).Required()
		gt.Array(t, hits).Length(4)
	})
}

func TestIndex_DefaultKCapsResults(t *testing.T) {
	idx, err := index.New(llm.NewHashEmbedder(64), index.WithDimension(64))
	gt.NoError(t, err).Required()

	var docs []*model.Document
	for i := range 12 {
		docs = append(docs, newDoc(fmt.Sprint(i), "title", fmt.Sprintf("document number %d", i)))
	}
	gt.NoError(t, idx.Ingest(t.Context(), docs)).Required()

	hits, err := idx.Query(t.Context(), "document number", 0)
	gt.NoError(t, err).Required()
	gt.Array(t, hits).Length(index.DefaultK)

	ingested := make(map[types.DocumentID]bool)
	for _, d := range docs {
		ingested[d.ID] = true
	}
	for _, h := range hits {
		gt.Bool(t, ingested[h.DocumentID]).True()
	}
}

func TestIndex_Ingest(t *testing.T) {
	t.Run("re-ingesting the same document is a no-op", func(t *testing.T) {
		idx, err := index.New(llm.NewHashEmbedder(32), index.WithDimension(32))
		gt.NoError(t, err).Required()

		d := newDoc("1", "t", "body")
		gt.NoError(t, idx.Ingest(t.Context(), []*model.Document{d, d})).Required()
		gt.NoError(t, idx.Ingest(t.Context(), []*model.Document{d})).Required()
		gt.Value(t, idx.Len()).Equal(1)

		got, ok := idx.Document(d.ID)
		gt.Bool(t, ok).True()
		gt.Value(t, got).Equal(d)
	})

	t.Run("dimension mismatch is a configuration error", func(t *testing.T) {
		emb := &stubEmbedder{dim: 3, vectors: map[string][]float32{"t\nbody": {1, 2}}}
		idx, err := index.New(emb, index.WithDimension(3))
		gt.NoError(t, err).Required()

		err = idx.Ingest(t.Context(), []*model.Document{newDoc("1", "t", "body")})
		gt.Error(t, err).Is(model.ErrConfiguration)
		gt.Value(t, idx.Len()).Equal(0)
	})

	t.Run("embedder failure leaves the index unchanged", func(t *testing.T) {
		emb := &stubEmbedder{dim: 2, err: errors.New("backend down")}
		idx, err := index.New(emb, index.WithDimension(2))
		gt.NoError(t, err).Required()

		gt.Error(t, idx.Ingest(t.Context(), []*model.Document{newDoc("1", "t", "b")}))
		gt.Value(t, idx.Len()).Equal(0)
	})

	t.Run("text is truncated before embedding", func(t *testing.T) {
		emb := &stubEmbedder{dim: 2, vectors: map[string][]float32{"abcd": {1, 0}}}
		idx, err := index.New(emb, index.WithDimension(2), index.WithMaxChars(4))
		gt.NoError(t, err).Required()

		gt.NoError(t, idx.Ingest(t.Context(), []*model.Document{newDoc("1", "", "abcdefgh")})).Required()
		hits, err := idx.Query(t.Context(), "abcd", 1)
		gt.NoError(t, err).Required()
		gt.Number(t, hits[0].Score).GreaterOrEqual(0.999)
	})
}

func TestIndex_New(t *testing.T) {
	t.Run("embedder dimension must match", func(t *testing.T) {
		_, err := index.New(llm.NewHashEmbedder(128))
		gt.Error(t, err).Is(model.ErrConfiguration)
	})

	t.Run("embedder is required", func(t *testing.T) {
		_, err := index.New(nil)
		gt.Error(t, err).Is(model.ErrConfiguration)
	})

	t.Run("empty index returns no hits without embedding", func(t *testing.T) {
		emb := &stubEmbedder{dim: 2}
		idx, err := index.New(emb, index.WithDimension(2))
		gt.NoError(t, err).Required()

		hits, err := idx.Query(t.Context(), "anything", 5)
		gt.NoError(t, err).Required()
		gt.Array(t, hits).Length(0)
		gt.Value(t, emb.calls).Equal(0)
	})
}
