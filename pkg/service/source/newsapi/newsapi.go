package newsapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/trendscope/pkg/domain/interfaces"
	"github.com/secmon-lab/trendscope/pkg/domain/model"
	"github.com/secmon-lab/trendscope/pkg/domain/types"
	"github.com/secmon-lab/trendscope/pkg/utils/logging"
	"github.com/secmon-lab/trendscope/pkg/utils/safe"
)

const (
	DefaultBaseURL = "https://newsapi.org"
	// maxPageSize is the upper bound accepted by /v2/everything
	maxPageSize = 100
)

// Client searches articles with NewsAPI's everything endpoint
type Client struct {
	apiKey     string
	baseURL    string
	language   string
	httpClient *http.Client
}

var _ interfaces.SourceClient = &Client{}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.httpClient = client }
}

// WithLanguage sets the article language filter. Empty disables it.
func WithLanguage(lang string) Option {
	return func(c *Client) { c.language = lang }
}

func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, goerr.Wrap(model.ErrConfiguration, "news API key is required")
	}

	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		language:   "en",
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Kind() types.SourceKind {
	return types.SourceKindNews
}

type article struct {
	Source struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	URLToImage  string `json:"urlToImage"`
	PublishedAt string `json:"publishedAt"`
	Content     string `json:"content"`
}

type response struct {
	Status       string    `json:"status"`
	Code         string    `json:"code"`
	Message      string    `json:"message"`
	TotalResults int       `json:"totalResults"`
	Articles     []article `json:"articles"`
}

func (c *Client) Fetch(ctx context.Context, query string, limit int) ([]model.RawRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("sortBy", "relevancy")
	params.Set("pageSize", strconv.Itoa(limit))
	if c.language != "" {
		params.Set("language", c.language)
	}
	endpoint := c.baseURL + "/v2/everything?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create news request")
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to request news", goerr.V("query", query))
	}
	defer safe.Close(ctx, resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read news response")
	}

	var data response
	if err := json.Unmarshal(body, &data); err != nil && resp.StatusCode == http.StatusOK {
		return nil, goerr.Wrap(err, "failed to parse news response", goerr.V("body", string(body)))
	}

	if err := statusError(resp.StatusCode, &data); err != nil {
		return nil, goerr.Wrap(err, "news request failed",
			goerr.V("query", query),
			goerr.V("status", resp.StatusCode),
			goerr.V("code", data.Code),
			goerr.V("message", data.Message))
	}

	records := make([]model.RawRecord, 0, len(data.Articles))
	for _, a := range data.Articles {
		// removed articles are returned as placeholders
		if a.URL == "" || a.Title == "[Removed]" {
			continue
		}
		records = append(records, model.RawRecord{
			"url":         a.URL,
			"title":       a.Title,
			"description": a.Description,
			"content":     a.Content,
			"author":      a.Author,
			"source":      a.Source.Name,
			"publishedAt": a.PublishedAt,
			"image":       a.URLToImage,
		})
	}

	logging.From(ctx).Debug("news search done", "query", query, "articles", len(records), "total", data.TotalResults)
	return records, nil
}

var errUnexpectedStatus = goerr.New("unexpected news API status")

func statusError(status int, data *response) error {
	switch {
	case status == http.StatusOK && data.Status != "error":
		return nil
	case status == http.StatusUnauthorized,
		data.Code == "apiKeyInvalid", data.Code == "apiKeyMissing", data.Code == "apiKeyDisabled":
		return model.ErrAuthentication
	case status == http.StatusTooManyRequests, data.Code == "rateLimited":
		return model.ErrQuotaExceeded
	}
	return errors.Join(errUnexpectedStatus, errors.New(data.Message))
}
