package normalizer

import (
	"strings"

	"github.com/secmon-lab/trendscope/pkg/domain/model"
	"github.com/secmon-lab/trendscope/pkg/domain/types"
)

const youtubeWatchURL = "https://www.youtube.com/watch?v="

// fieldMap names the raw fields a source kind uses for each document attribute.
// Fallbacks are tried in order.
type fieldMap struct {
	id        []string
	title     []string
	body      []string
	author    []string
	published []string
	url       []string
}

var fieldMaps = map[types.SourceKind]fieldMap{
	types.SourceKindVideo: {
		id:        []string{"videoId"},
		title:     []string{"title"},
		body:      []string{"description", "title"},
		author:    []string{"channelTitle"},
		published: []string{"publishedAt"},
		url:       []string{"url"},
	},
	types.SourceKindNews: {
		id:        []string{"url"},
		title:     []string{"title"},
		body:      []string{"description", "content"},
		author:    []string{"author", "source"},
		published: []string{"publishedAt"},
		url:       []string{"url"},
	},
	types.SourceKindSocial: {
		id:        []string{"id"},
		title:     []string{"title"},
		body:      []string{"text"},
		author:    []string{"author"},
		published: []string{"created_at"},
		url:       []string{"url"},
	},
}

func first(raw model.RawRecord, keys []string) string {
	for _, k := range keys {
		if v := collapse(raw.String(k)); v != "" {
			return v
		}
	}
	return ""
}

// collapse squeezes runs of whitespace into single spaces
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Normalize converts a raw record into a Document. It returns false when the
// record has no stable identifier or no body text.
func Normalize(raw model.RawRecord, kind types.SourceKind) (*model.Document, bool) {
	fm, ok := fieldMaps[kind]
	if !ok || raw == nil {
		return nil, false
	}

	nativeID := first(raw, fm.id)
	body := first(raw, fm.body)
	if nativeID == "" || body == "" {
		return nil, false
	}

	doc := &model.Document{
		ID:          types.NewDocumentID(kind, nativeID),
		Kind:        kind,
		Title:       first(raw, fm.title),
		Body:        body,
		Author:      first(raw, fm.author),
		PublishedAt: nil,
		URL:         first(raw, fm.url),
		Metadata:    make(map[string]any),
	}

	for _, k := range fm.published {
		if ts := raw.Time(k); ts != nil {
			doc.PublishedAt = ts
			break
		}
	}

	switch kind {
	case types.SourceKindVideo:
		if doc.URL == "" {
			doc.URL = youtubeWatchURL + nativeID
		}
	case types.SourceKindSocial:
		if doc.Title == "" {
			author := doc.Author
			if author == "" {
				author = "unknown"
			}
			doc.Title = "Post by " + author
		}
	}

	used := make(map[string]bool)
	for _, keys := range [][]string{fm.id, fm.title, fm.body, fm.author, fm.published, fm.url} {
		for _, k := range keys {
			used[k] = true
		}
	}
	for k, v := range raw {
		if !used[k] {
			doc.Metadata[k] = v
		}
	}

	return doc, true
}

// NormalizeAll normalizes records of one kind, dropping rejected records and keeping order
func NormalizeAll(records []model.RawRecord, kind types.SourceKind) []*model.Document {
	docs := make([]*model.Document, 0, len(records))
	for _, raw := range records {
		if doc, ok := Normalize(raw, kind); ok {
			docs = append(docs, doc)
		}
	}
	return docs
}
