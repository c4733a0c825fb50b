package reddit

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
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	DefaultTokenURL  = "https://www.reddit.com/api/v1/access_token"
	DefaultAPIURL    = "https://oauth.reddit.com"
	DefaultUserAgent = "trendscope/0.1"
	permalinkBase    = "https://www.reddit.com"
	// maxLimit is the upper bound accepted by /search
	maxLimit = 100
)

// Client searches posts with the Reddit API using an application-only token
type Client struct {
	oauth      *clientcredentials.Config
	apiURL     string
	userAgent  string
	httpClient *http.Client
}

var _ interfaces.SourceClient = &Client{}

type Option func(*Client)

func WithTokenURL(u string) Option {
	return func(c *Client) { c.oauth.TokenURL = u }
}

func WithAPIURL(u string) Option {
	return func(c *Client) { c.apiURL = u }
}

// WithUserAgent overrides the User-Agent header. Empty keeps the default.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithHTTPClient sets the base client used for both token and API requests
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.httpClient = client }
}

func New(clientID, clientSecret string, opts ...Option) (*Client, error) {
	if clientID == "" || clientSecret == "" {
		return nil, goerr.Wrap(model.ErrConfiguration, "reddit client id and secret are required")
	}

	c := &Client{
		oauth: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     DefaultTokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		apiURL:    DefaultAPIURL,
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Kind() types.SourceKind {
	return types.SourceKindSocial
}

type listing struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Data post `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type post struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Subreddit   string  `json:"subreddit"`
	Author      string  `json:"author"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Permalink   string  `json:"permalink"`
	Ups         int     `json:"ups"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	Over18      bool    `json:"over_18"`
}

func (c *Client) client(ctx context.Context) *http.Client {
	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}
	return c.oauth.Client(ctx)
}

func (c *Client) Fetch(ctx context.Context, query string, limit int) ([]model.RawRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("sort", "relevance")
	params.Set("type", "link")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("raw_json", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create reddit request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client(ctx).Do(req)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil &&
			(rerr.Response.StatusCode == http.StatusUnauthorized || rerr.Response.StatusCode == http.StatusForbidden) {
			return nil, goerr.Wrap(errors.Join(model.ErrAuthentication, err), "reddit token request rejected")
		}
		return nil, goerr.Wrap(err, "failed to request reddit", goerr.V("query", query))
	}
	defer safe.Close(ctx, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, goerr.Wrap(model.ErrAuthentication, "reddit rejected the credentials", goerr.V("status", resp.StatusCode))
	case http.StatusTooManyRequests:
		return nil, goerr.Wrap(model.ErrQuotaExceeded, "reddit rate limit exceeded",
			goerr.V("reset", resp.Header.Get("X-Ratelimit-Reset")))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, goerr.New("unexpected reddit status", goerr.V("status", resp.StatusCode), goerr.V("body", string(body)))
	}

	var data listing
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, goerr.Wrap(err, "failed to parse reddit response")
	}

	records := make([]model.RawRecord, 0, len(data.Data.Children))
	for _, child := range data.Data.Children {
		p := child.Data
		if p.ID == "" || p.Over18 {
			continue
		}
		text := p.Selftext
		if text == "" {
			text = p.Title
		}
		records = append(records, model.RawRecord{
			"id":           p.ID,
			"title":        p.Title,
			"text":         text,
			"author":       p.Author,
			"created_at":   p.CreatedUTC,
			"url":          permalinkBase + p.Permalink,
			"subreddit":    p.Subreddit,
			"ups":          p.Ups,
			"num_comments": p.NumComments,
		})
	}

	logging.From(ctx).Debug("reddit search done", "query", query, "posts", len(records))
	return records, nil
}
