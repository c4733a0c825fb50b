package llm

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/secmon-lab/trendscope/pkg/domain/interfaces"
)

// HashEmbedder is a deterministic offline embedder based on signed feature
// hashing of word unigrams and bigrams. It needs no model or network access.
type HashEmbedder struct {
	dimension int
}

var _ interfaces.Embedder = &HashEmbedder{}

func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &HashEmbedder{dimension: dimension}
}

func (h *HashEmbedder) Dimension() int {
	return h.dimension
}

func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result[i] = h.vector(text)
	}
	return result, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func (h *HashEmbedder) add(vec []float32, feature string, weight float32) {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(feature))
	sum := hasher.Sum64()

	idx := int(sum % uint64(h.dimension))
	if (sum>>63)&1 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

func (h *HashEmbedder) vector(text string) []float32 {
	vec := make([]float32, h.dimension)
	tokens := tokenize(text)
	for i, tok := range tokens {
		h.add(vec, "u:"+tok, 1)
		if i > 0 {
			h.add(vec, "b:"+tokens[i-1]+" "+tok, 0.5)
		}
	}
	return vec
}
