package errutil_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/trendscope/pkg/utils/errutil"
	"github.com/secmon-lab/trendscope/pkg/utils/logging"
)

func TestHandle(t *testing.T) {
	var buf bytes.Buffer
	ctx := logging.With(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)))

	err := goerr.New("boom", goerr.V("query", "electric vehicles"))
	got := errutil.Handle(ctx, err, "analysis failed")

	gt.Value(t, got).Equal(error(err))
	gt.String(t, buf.String()).Contains("analysis failed")
	gt.String(t, buf.String()).Contains("electric vehicles")

	gt.NoError(t, errutil.Handle(ctx, nil, "unused"))
}

func TestHandleHTTP(t *testing.T) {
	w := httptest.NewRecorder()
	errutil.HandleHTTP(context.Background(), w, goerr.New("session not found"), http.StatusNotFound)

	gt.Value(t, w.Code).Equal(http.StatusNotFound)
	gt.String(t, w.Header().Get("Content-Type")).Contains("application/json")

	var body map[string]string
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &body)).Required()
	gt.Value(t, body["error"]).Equal("session not found")
}
