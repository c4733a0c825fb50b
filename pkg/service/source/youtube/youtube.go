package youtube

import (
	"context"
	"errors"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/trendscope/pkg/domain/interfaces"
	"github.com/secmon-lab/trendscope/pkg/domain/model"
	"github.com/secmon-lab/trendscope/pkg/domain/types"
	"github.com/secmon-lab/trendscope/pkg/utils/logging"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

// maxResultsPerPage is the upper bound accepted by search.list
const maxResultsPerPage = 50

// Client searches videos with the YouTube Data API
type Client struct {
	service *yt.Service
}

var _ interfaces.SourceClient = &Client{}

type Option func(*config)

type config struct {
	endpoint   string
	httpClient *http.Client
}

// WithEndpoint overrides the API base URL
func WithEndpoint(endpoint string) Option {
	return func(c *config) { c.endpoint = endpoint }
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.httpClient = client }
}

func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, goerr.Wrap(model.ErrConfiguration, "youtube API key is required")
	}

	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	clientOpts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if cfg.endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.endpoint))
	}
	if cfg.httpClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(cfg.httpClient))
	}

	service, err := yt.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create youtube service")
	}

	return &Client{service: service}, nil
}

func (c *Client) Kind() types.SourceKind {
	return types.SourceKindVideo
}

func (c *Client) Fetch(ctx context.Context, query string, limit int) ([]model.RawRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	if limit > maxResultsPerPage {
		limit = maxResultsPerPage
	}

	resp, err := c.service.Search.List([]string{"snippet"}).
		Q(query).
		Type("video").
		Order("relevance").
		MaxResults(int64(limit)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapError(err, query)
	}

	records := make([]model.RawRecord, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Id == nil || item.Id.VideoId == "" || item.Snippet == nil {
			continue
		}
		records = append(records, model.RawRecord{
			"videoId":      item.Id.VideoId,
			"title":        item.Snippet.Title,
			"description":  item.Snippet.Description,
			"channelTitle": item.Snippet.ChannelTitle,
			"channelId":    item.Snippet.ChannelId,
			"publishedAt":  item.Snippet.PublishedAt,
		})
	}

	logging.From(ctx).Debug("youtube search done", "query", query, "items", len(records))
	return records, nil
}

var quotaReasons = map[string]bool{
	"quotaExceeded":           true,
	"dailyLimitExceeded":      true,
	"rateLimitExceeded":       true,
	"userRateLimitExceeded":   true,
	"servingLimitExceeded":    true,
	"dailyLimitExceededUnreg": true,
}

// wrapError maps API status codes onto the fetch error taxonomy. YouTube reports
// quota exhaustion as 403 with a reason, so the reason decides between quota and
// authentication.
func wrapError(err error, query string) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return goerr.Wrap(err, "youtube search failed", goerr.V("query", query))
	}

	wrap := func(cause error, msg string) error {
		return goerr.Wrap(cause, msg, goerr.V("query", query), goerr.V("code", gerr.Code))
	}
	switch gerr.Code {
	case http.StatusUnauthorized:
		return wrap(errors.Join(model.ErrAuthentication, err), "youtube rejected the API key")
	case http.StatusTooManyRequests:
		return wrap(errors.Join(model.ErrQuotaExceeded, err), "youtube rate limit exceeded")
	case http.StatusForbidden:
		for _, item := range gerr.Errors {
			if quotaReasons[item.Reason] {
				return wrap(errors.Join(model.ErrQuotaExceeded, err), "youtube quota exceeded")
			}
		}
		return wrap(errors.Join(model.ErrAuthentication, err), "youtube access forbidden")
	}
	return wrap(err, "youtube search failed")
}
