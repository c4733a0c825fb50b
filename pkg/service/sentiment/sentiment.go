package sentiment

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/jonreiter/govader"
	"github.com/russross/blackfriday/v2"
	"github.com/secmon-lab/trendscope/pkg/domain/model"
	"github.com/secmon-lab/trendscope/pkg/domain/types"
)

var (
	markdownLink = regexp.MustCompile(`\[(.*?)\]\((https?:\/\/[^\s\)]+)\)`)
	bareURL      = regexp.MustCompile(`https?://\S+|www\.\S+`)
	htmlTag      = regexp.MustCompile(`<[^>]*>`)
)

// Scorer assigns lexicon-based polarity to documents. It holds only the
// read-only VADER lexicon and can be shared across goroutines.
type Scorer struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

func New() *Scorer {
	return &Scorer{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

// Clean renders markdown to plain text and removes links
func Clean(input string) string {
	input = markdownLink.ReplaceAllString(input, "$1")
	rendered := blackfriday.Run([]byte(input), blackfriday.WithNoExtensions())
	plain := htmlTag.ReplaceAllString(string(rendered), " ")
	plain = bareURL.ReplaceAllString(plain, "")
	return strings.Join(strings.Fields(plain), " ")
}

// ScoreText scores free text
func (s *Scorer) ScoreText(text string) model.SentimentScore {
	scores := s.analyzer.PolarityScores(Clean(text))
	return model.SentimentScore{
		Polarity: scores.Compound,
		Label:    types.LabelOf(scores.Compound),
		Positive: scores.Positive,
		Negative: scores.Negative,
		Neutral:  scores.Neutral,
	}
}

// Score scores a document's title and body
func (s *Scorer) Score(doc *model.Document) model.SentimentScore {
	score := s.ScoreText(doc.Text())
	score.DocumentID = doc.ID
	return score
}

// ScoreAll scores every document
func (s *Scorer) ScoreAll(docs []*model.Document) model.Sentiments {
	result := make(model.Sentiments, len(docs))
	for _, doc := range docs {
		result[doc.ID] = s.Score(doc)
	}
	return result
}

// Distribution counts labels per source kind. Every kind present in the corpus
// gets an entry for every label, zero included.
func Distribution(corpus *model.Corpus, sentiments model.Sentiments) model.SentimentDistribution {
	dist := make(model.SentimentDistribution)
	for _, kind := range types.AllSourceKinds() {
		docs := corpus.Documents(kind)
		if len(docs) == 0 {
			continue
		}
		counts := make(map[types.SentimentLabel]int, 3)
		for _, label := range types.AllSentimentLabels() {
			counts[label] = 0
		}
		for _, doc := range docs {
			if score, ok := sentiments[doc.ID]; ok {
				counts[score.Label]++
			}
		}
		dist[kind] = counts
	}
	return dist
}

// AveragePolarity returns the mean polarity of the scored documents, 0 when none are scored
func AveragePolarity(docs []*model.Document, sentiments model.Sentiments) float64 {
	var sum float64
	var n int
	for _, doc := range docs {
		if score, ok := sentiments[doc.ID]; ok {
			sum += score.Polarity
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "this": true, "that": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "have": true, "has": true,
	"had": true, "do": true, "does": true, "did": true, "will": true, "would": true,
	"could": true, "should": true, "from": true, "about": true, "they": true,
	"their": true, "there": true, "what": true, "which": true, "your": true,
}

// KeyThemes returns the n most frequent words longer than three letters, excluding
// stop words. Ties are broken alphabetically so the result is deterministic.
func KeyThemes(texts []string, n int) []string {
	counts := make(map[string]int)
	for _, text := range texts {
		words := strings.FieldsFunc(strings.ToLower(Clean(text)), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, w := range words {
			if len([]rune(w)) > 3 && !stopWords[w] {
				counts[w]++
			}
		}
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})

	if len(words) > n {
		words = words[:n]
	}
	return words
}
