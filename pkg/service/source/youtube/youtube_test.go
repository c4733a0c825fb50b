package youtube_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/trendscope/pkg/domain/model"
	"github.com/secmon-lab/trendscope/pkg/domain/types"
	"github.com/secmon-lab/trendscope/pkg/service/source/youtube"
)

const searchResponse = `{
  "kind": "youtube#searchListResponse",
  "items": [
    {
      "id": {"kind": "youtube#video", "videoId": "abc123"},
      "snippet": {
        "title": "EV range test",
        "description": "We drove it until the battery died",
        "channelTitle": "Car Channel",
        "channelId": "UC1",
        "publishedAt": "2024-03-01T10:00:00Z"
      }
    },
    {
      "id": {"kind": "youtube#channel", "channelId": "UC2"},
      "snippet": {"title": "not a video"}
    }
  ]
}`

func newServer(t *testing.T, status int, body string, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch(t *testing.T) {
	t.Run("maps search results to raw records", func(t *testing.T) {
		var gotQuery, gotKey, gotMax string
		srv := newServer(t, http.StatusOK, searchResponse, func(r *http.Request) {
			gotQuery = r.URL.Query().Get("q")
			gotKey = r.URL.Query().Get("key")
			gotMax = r.URL.Query().Get("maxResults")
		})

		client, err := youtube.New(t.Context(), "test-key", youtube.WithEndpoint(srv.URL+"/"))
		gt.NoError(t, err).Required()
		gt.Value(t, client.Kind()).Equal(types.SourceKindVideo)

		records, err := client.Fetch(t.Context(), "electric vehicles", 5)
		gt.NoError(t, err).Required()
		gt.Array(t, records).Length(1).Required()
		gt.Value(t, records[0].String("videoId")).Equal("abc123")
		gt.Value(t, records[0].String("channelTitle")).Equal("Car Channel")
		gt.Value(t, records[0].Time("publishedAt")).NotNil()

		gt.Value(t, gotQuery).Equal("electric vehicles")
		gt.Value(t, gotKey).Equal("test-key")
		gt.Value(t, gotMax).Equal("5")
	})

	t.Run("quota exhaustion", func(t *testing.T) {
		srv := newServer(t, http.StatusForbidden, `{"error": {"code": 403, "message": "quota", "errors": [{"reason": "quotaExceeded", "domain": "youtube.quota", "message": "quota"}]}}`, nil)
		client, err := youtube.New(t.Context(), "test-key", youtube.WithEndpoint(srv.URL+"/"))
		gt.NoError(t, err).Required()

		_, err = client.Fetch(t.Context(), "q", 5)
		gt.Error(t, err).Is(model.ErrQuotaExceeded)
	})

	t.Run("forbidden without quota reason", func(t *testing.T) {
		srv := newServer(t, http.StatusForbidden, `{"error": {"code": 403, "message": "forbidden", "errors": [{"reason": "forbidden"}]}}`, nil)
		client, err := youtube.New(t.Context(), "test-key", youtube.WithEndpoint(srv.URL+"/"))
		gt.NoError(t, err).Required()

		_, err = client.Fetch(t.Context(), "q", 5)
		gt.Error(t, err).Is(model.ErrAuthentication)
	})

	t.Run("invalid key", func(t *testing.T) {
		srv := newServer(t, http.StatusUnauthorized, `{"error": {"code": 401, "message": "bad key"}}`, nil)
		client, err := youtube.New(t.Context(), "test-key", youtube.WithEndpoint(srv.URL+"/"))
		gt.NoError(t, err).Required()

		_, err = client.Fetch(t.Context(), "q", 5)
		gt.Error(t, err).Is(model.ErrAuthentication)
	})

	t.Run("api key is required", func(t *testing.T) {
		_, err := youtube.New(t.Context(), "")
		gt.Error(t, err).Is(model.ErrConfiguration)
	})
}
