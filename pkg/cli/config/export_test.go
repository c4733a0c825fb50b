package config

// NewLoggerForTest creates a Logger config for testing purposes
func NewLoggerForTest(level, format, output string) *Logger {
	return &Logger{level: level, format: format, output: output}
}

// NewLLMForTest creates an LLM config for testing purposes
func NewLLMForTest(provider, embedder string, dimension int) *LLM {
	return &LLM{
		provider:  provider,
		embedder:  embedder,
		dimension: dimension,
	}
}

// NewSourcesForTest creates a Sources config for testing purposes
func NewSourcesForTest(youtubeAPIKey, newsAPIKey string, rssFeeds []string, redditClientID, redditClientSecret string) *Sources {
	return &Sources{
		youtubeAPIKey:      youtubeAPIKey,
		newsAPIKey:         newsAPIKey,
		newsLanguage:       "en",
		rssFeeds:           rssFeeds,
		redditClientID:     redditClientID,
		redditClientSecret: redditClientSecret,
	}
}

// NewEngineForTest creates an Engine config for testing purposes
func NewEngineForTest(path string) *Engine {
	return &Engine{path: path}
}
