package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/trendscope/pkg/domain/interfaces"
	"github.com/secmon-lab/trendscope/pkg/domain/types"
	"github.com/secmon-lab/trendscope/pkg/service/source"
	"github.com/secmon-lab/trendscope/pkg/service/source/newsapi"
	"github.com/secmon-lab/trendscope/pkg/service/source/reddit"
	"github.com/secmon-lab/trendscope/pkg/service/source/rss"
	"github.com/secmon-lab/trendscope/pkg/service/source/youtube"
	"github.com/secmon-lab/trendscope/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// Sources holds credentials of the content sources. A source without
// credentials is left unconfigured and reported as such in every analysis.
type Sources struct {
	youtubeAPIKey      string `masq:"secret"`
	newsAPIKey         string `masq:"secret"`
	newsLanguage       string
	rssFeeds           []string
	redditClientID     string
	redditClientSecret string `masq:"secret"`
	redditUserAgent    string
}

func (x *Sources) Flags() []cli.Flag {
	category := "Sources"
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "youtube-api-key",
			Category:    category,
			Usage:       "YouTube Data API key (video source)",
			Sources:     cli.EnvVars("TRENDSCOPE_YOUTUBE_API_KEY"),
			Destination: &x.youtubeAPIKey,
		},
		&cli.StringFlag{
			Name:        "news-api-key",
			Category:    category,
			Usage:       "NewsAPI key (news source)",
			Sources:     cli.EnvVars("TRENDSCOPE_NEWS_API_KEY"),
			Destination: &x.newsAPIKey,
		},
		&cli.StringFlag{
			Name:        "news-language",
			Category:    category,
			Usage:       "Language filter of news articles",
			Value:       "en",
			Sources:     cli.EnvVars("TRENDSCOPE_NEWS_LANGUAGE"),
			Destination: &x.newsLanguage,
		},
		&cli.StringSliceFlag{
			Name:        "rss-feed",
			Category:    category,
			Usage:       "RSS or Atom feed URL searched as an additional news source (repeatable)",
			Sources:     cli.EnvVars("TRENDSCOPE_RSS_FEEDS"),
			Destination: &x.rssFeeds,
		},
		&cli.StringFlag{
			Name:        "reddit-client-id",
			Category:    category,
			Usage:       "Reddit application client ID (social source)",
			Sources:     cli.EnvVars("TRENDSCOPE_REDDIT_CLIENT_ID"),
			Destination: &x.redditClientID,
		},
		&cli.StringFlag{
			Name:        "reddit-client-secret",
			Category:    category,
			Usage:       "Reddit application client secret",
			Sources:     cli.EnvVars("TRENDSCOPE_REDDIT_CLIENT_SECRET"),
			Destination: &x.redditClientSecret,
		},
		&cli.StringFlag{
			Name:        "reddit-user-agent",
			Category:    category,
			Usage:       "User-Agent sent to the Reddit API",
			Value:       reddit.DefaultUserAgent,
			Sources:     cli.EnvVars("TRENDSCOPE_REDDIT_USER_AGENT"),
			Destination: &x.redditUserAgent,
		},
	}
}

func (x *Sources) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.Bool("youtube", x.youtubeAPIKey != ""),
		slog.Bool("newsapi", x.newsAPIKey != ""),
		slog.Int("rss_feeds", len(x.rssFeeds)),
		slog.Bool("reddit", x.redditClientID != "" && x.redditClientSecret != ""),
	}
}

// Configure creates one client per source kind that has credentials
func (x *Sources) Configure(ctx context.Context) ([]interfaces.SourceClient, error) {
	logger := logging.From(ctx)
	var clients []interfaces.SourceClient

	if x.youtubeAPIKey != "" {
		client, err := youtube.New(ctx, x.youtubeAPIKey)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to configure youtube source")
		}
		clients = append(clients, client)
	}

	var news []interfaces.SourceClient
	if x.newsAPIKey != "" {
		client, err := newsapi.New(x.newsAPIKey, newsapi.WithLanguage(x.newsLanguage))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to configure news source")
		}
		news = append(news, client)
	}
	if len(x.rssFeeds) > 0 {
		client, err := rss.New(x.rssFeeds)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to configure rss source")
		}
		news = append(news, client)
	}
	if merged := source.Merge(types.SourceKindNews, news...); merged != nil {
		clients = append(clients, merged)
	}

	if x.redditClientID != "" || x.redditClientSecret != "" {
		client, err := reddit.New(x.redditClientID, x.redditClientSecret, reddit.WithUserAgent(x.redditUserAgent))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to configure reddit source")
		}
		clients = append(clients, client)
	}

	for _, kind := range types.AllSourceKinds() {
		configured := false
		for _, c := range clients {
			if c.Kind() == kind {
				configured = true
			}
		}
		if !configured {
			logger.Warn("source not configured", "kind", kind)
		}
	}
	return clients, nil
}
