package rss

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/mmcdole/gofeed"
	"github.com/secmon-lab/trendscope/pkg/domain/interfaces"
	"github.com/secmon-lab/trendscope/pkg/domain/model"
	"github.com/secmon-lab/trendscope/pkg/domain/types"
	"github.com/secmon-lab/trendscope/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

// Client reads a fixed set of RSS or Atom feeds and keeps the items that mention
// the query. Items are returned as news records.
type Client struct {
	feeds      []string
	httpClient *http.Client
}

var _ interfaces.SourceClient = &Client{}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.httpClient = client }
}

func New(feeds []string, opts ...Option) (*Client, error) {
	var urls []string
	for _, f := range feeds {
		if f = strings.TrimSpace(f); f != "" {
			urls = append(urls, f)
		}
	}
	if len(urls) == 0 {
		return nil, goerr.Wrap(model.ErrConfiguration, "at least one feed URL is required")
	}

	c := &Client{feeds: urls}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Kind() types.SourceKind {
	return types.SourceKindNews
}

func (c *Client) Fetch(ctx context.Context, query string, limit int) ([]model.RawRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	logger := logging.From(ctx)

	feeds := make([]*gofeed.Feed, len(c.feeds))
	var (
		mu   sync.Mutex
		errs []error
	)

	var eg errgroup.Group
	for i, u := range c.feeds {
		eg.Go(func() error {
			parser := gofeed.NewParser()
			if c.httpClient != nil {
				parser.Client = c.httpClient
			}
			feed, err := parser.ParseURLWithContext(u, ctx)
			if err != nil {
				logger.Warn("failed to read feed", "url", u, "error", err)
				mu.Lock()
				errs = append(errs, goerr.Wrap(err, "failed to read feed", goerr.V("url", u)))
				mu.Unlock()
				return nil
			}
			feeds[i] = feed
			return nil
		})
	}
	_ = eg.Wait()

	if len(errs) == len(c.feeds) {
		return nil, goerr.Wrap(errors.Join(errs...), "no feed could be read")
	}

	terms := queryTerms(query)
	var records []model.RawRecord
	for _, feed := range feeds {
		if feed == nil {
			continue
		}
		for _, item := range feed.Items {
			if len(records) >= limit {
				return records, nil
			}
			if item.Link == "" || !matches(item, terms) {
				continue
			}
			records = append(records, toRecord(feed, item))
		}
	}

	return records, nil
}

func toRecord(feed *gofeed.Feed, item *gofeed.Item) model.RawRecord {
	record := model.RawRecord{
		"url":         item.Link,
		"title":       item.Title,
		"description": item.Description,
		"content":     item.Content,
		"source":      feed.Title,
		"guid":        item.GUID,
	}
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		record["author"] = item.Authors[0].Name
	}
	if item.PublishedParsed != nil {
		record["publishedAt"] = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		record["publishedAt"] = *item.UpdatedParsed
	}
	if len(item.Categories) > 0 {
		record["categories"] = item.Categories
	}
	return record
}

func queryTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) > 2 {
			terms = append(terms, w)
		}
	}
	return terms
}

// matches reports whether the item mentions any query term. An empty term list matches everything.
func matches(item *gofeed.Item, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	text := strings.ToLower(item.Title + " " + item.Description + " " + item.Content)
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}
