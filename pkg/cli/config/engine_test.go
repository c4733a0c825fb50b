package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/trendscope/pkg/cli/config"
	"github.com/secmon-lab/trendscope/pkg/domain/types"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	gt.NoError(t, os.WriteFile(path, []byte(content), 0600)).Required()
	return path
}

func TestLoadTuning(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		tuning := config.DefaultTuning()
		gt.NoError(t, tuning.Validate())

		limits := tuning.SourceLimits()
		gt.Value(t, limits[types.SourceKindVideo]).Equal(5)
		gt.Value(t, limits[types.SourceKindNews]).Equal(5)
		gt.Value(t, limits[types.SourceKindSocial]).Equal(50)
		gt.Value(t, time.Duration(tuning.Fetch.TaskTimeout)).Equal(15 * time.Second)
		gt.Value(t, time.Duration(tuning.Fetch.GlobalTimeout)).Equal(45 * time.Second)
		gt.Value(t, tuning.RAG.K).Equal(5)
		gt.Value(t, tuning.RAG.HistoryTurns).Equal(3)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := writeFile(t, "trendscope.toml", `
[limits]
social = 20

[fetch]
task_timeout = "5s"
global_timeout = "20s"
max_retries = 1

[rag]
k = 8
similarity_floor = 0.35
timeout = "30s"

[rate_limits."fetch:social"]
requests_per_second = 1.0
burst = 2
`)
		tuning, err := config.LoadTuning(path)
		gt.NoError(t, err).Required()

		gt.Value(t, tuning.Limits.Social).Equal(20)
		gt.Value(t, tuning.Limits.News).Equal(5)
		gt.Value(t, time.Duration(tuning.Fetch.TaskTimeout)).Equal(5 * time.Second)
		gt.Value(t, time.Duration(tuning.Fetch.GlobalTimeout)).Equal(20 * time.Second)
		gt.Value(t, tuning.Fetch.MaxRetries).Equal(1)
		gt.Value(t, time.Duration(tuning.Fetch.BackoffBase)).Equal(time.Second)
		gt.Value(t, tuning.RAG.K).Equal(8)
		gt.Value(t, tuning.RAG.SimilarityFloor).Equal(0.35)
		gt.Value(t, tuning.RateLimits["fetch:social"].Burst).Equal(2)

		gt.Value(t, len(tuning.FetchOptions())).Equal(5)
		gt.Value(t, len(tuning.RAGOptions())).Equal(8)
		gt.Value(t, tuning.NewTracker()).NotNil()
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := config.LoadTuning(filepath.Join(t.TempDir(), "missing.toml"))
		gt.Error(t, err).Is(config.ErrConfigNotFound)
	})

	t.Run("malformed duration", func(t *testing.T) {
		path := writeFile(t, "bad.toml", `
[fetch]
task_timeout = "soon"
`)
		_, err := config.LoadTuning(path)
		gt.Error(t, err).Is(config.ErrInvalidConfig)
	})

	t.Run("out of range values", func(t *testing.T) {
		cases := map[string]string{
			"negative limit":         "[limits]\nvideo = -1\n",
			"ceiling below attempt":  "[fetch]\ntask_timeout = \"30s\"\nglobal_timeout = \"10s\"\n",
			"zero k":                 "[rag]\nk = 0\n",
			"floor above one":        "[rag]\nsimilarity_floor = 1.5\n",
			"zero workers":           "[fetch]\nworkers = 0\n",
			"rate limit without rps": "[rate_limits.generate]\nburst = 1\n",
		}
		for name, content := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := config.LoadTuning(writeFile(t, "tuning.toml", content))
				gt.Error(t, err).Is(config.ErrInvalidConfig)
			})
		}
	})

	t.Run("engine without path uses defaults", func(t *testing.T) {
		tuning, err := config.NewEngineForTest("").Configure()
		gt.NoError(t, err).Required()
		gt.Value(t, tuning.RAG.MaxTurns).Equal(20)
	})
}
