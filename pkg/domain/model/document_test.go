package model_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/trendscope/pkg/domain/model"
	"github.com/secmon-lab/trendscope/pkg/domain/types"
)

func TestRawRecord_Time(t *testing.T) {
	want := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value any
		want  *time.Time
	}{
		{name: "rfc3339", value: "2024-05-01T12:00:00Z", want: &want},
		{name: "unix seconds", value: float64(want.Unix()), want: &want},
		{name: "time value", value: want, want: &want},
		{name: "garbage", value: "yesterday", want: nil},
		{name: "missing", value: nil, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := model.RawRecord{"at": tt.value}.Time("at")
			if tt.want == nil {
				gt.Value(t, got).Nil()
				return
			}
			gt.Value(t, got).NotNil()
			gt.Bool(t, got.Equal(*tt.want)).True()
		})
	}
}

func TestRawRecord_String(t *testing.T) {
	r := model.RawRecord{"s": "  padded ", "n": float64(3), "m": map[string]any{}}
	gt.Value(t, r.String("s")).Equal("padded")
	gt.Value(t, r.String("n")).Equal("3")
	gt.Value(t, r.String("m")).Equal("")
	gt.Value(t, r.String("missing")).Equal("")
}

func TestDocument_Text(t *testing.T) {
	gt.Value(t, (&model.Document{Title: "T", Body: "B"}).Text()).Equal("T\nB")
	gt.Value(t, (&model.Document{Body: "B"}).Text()).Equal("B")
}

func TestFetchError(t *testing.T) {
	fe := &model.FetchError{
		Kind:  types.SourceKindNews,
		Cause: types.FetchCauseTimeout,
		Err:   model.ErrQuotaExceeded,
	}
	gt.Bool(t, errors.Is(fe, model.ErrFetch)).True()
	gt.Bool(t, errors.Is(fe, model.ErrQuotaExceeded)).True()
	gt.Value(t, fe.Note()).Equal("news: timeout")
	gt.String(t, fe.Error()).Contains("news")
}

func TestGenerationError(t *testing.T) {
	err := &model.GenerationError{Err: context.DeadlineExceeded}
	gt.Bool(t, errors.Is(err, model.ErrGeneration)).True()
	gt.Bool(t, errors.Is(err, context.DeadlineExceeded)).True()
	gt.String(t, err.Error()).Contains("deadline")
}
