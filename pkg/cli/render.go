package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/trendscope/pkg/domain/model"
	"github.com/secmon-lab/trendscope/pkg/domain/types"
)

var (
	headingColor    = color.New(color.FgCyan, color.Bold)
	labelColor      = color.New(color.Bold)
	warnColor       = color.New(color.FgYellow)
	dimColor        = color.New(color.Faint)
	sentimentColors = map[types.SentimentLabel]*color.Color{
		types.SentimentPositive: color.New(color.FgGreen),
		types.SentimentNeutral:  color.New(color.FgWhite),
		types.SentimentNegative: color.New(color.FgRed),
	}
)

type fetchErrorView struct {
	Kind  types.SourceKind `json:"kind"`
	Cause types.FetchCause `json:"cause"`
	Error string           `json:"error"`
}

type analysisView struct {
	SessionID   model.SessionID          `json:"session_id"`
	Query       string                   `json:"query"`
	Report      *model.AnalysisReport    `json:"report"`
	Documents   map[types.SourceKind]int `json:"documents"`
	FetchErrors []fetchErrorView         `json:"fetch_errors"`
	CreatedAt   time.Time                `json:"created_at"`
}

func renderAnalysisJSON(w io.Writer, a *model.Analysis) error {
	view := analysisView{
		SessionID:   a.SessionID,
		Query:       a.Query,
		Report:      a.Report,
		Documents:   make(map[types.SourceKind]int),
		FetchErrors: []fetchErrorView{},
		CreatedAt:   a.CreatedAt,
	}
	for _, kind := range types.AllSourceKinds() {
		view.Documents[kind] = a.Corpus.Count(kind)
	}
	for _, fe := range a.FetchErrors {
		v := fetchErrorView{Kind: fe.Kind, Cause: fe.Cause}
		if fe.Err != nil {
			v.Error = fe.Err.Error()
		}
		view.FetchErrors = append(view.FetchErrors, v)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(view); err != nil {
		return goerr.Wrap(err, "failed to encode analysis")
	}
	return nil
}

func renderReport(w io.Writer, a *model.Analysis) {
	r := a.Report

	headingColor.Fprintf(w, "Analysis: %s\n", r.Query)
	dimColor.Fprintf(w, "session %s, generated %s\n\n", a.SessionID, r.GeneratedAt.Format(time.RFC3339))

	if r.Degraded {
		warnColor.Fprintln(w, "Report is degraded")
	}
	labelColor.Fprintln(w, "Summary")
	fmt.Fprintf(w, "  %s\n\n", r.Summary)

	if len(r.Insights) > 0 {
		labelColor.Fprintln(w, "Insights")
		for i, insight := range r.Insights {
			fmt.Fprintf(w, "  %d. %s\n", i+1, insight)
		}
		fmt.Fprintln(w)
	}

	for _, kind := range types.AllSourceKinds() {
		stats, ok := r.SourceStats[kind]
		if !ok || stats.DocumentCount == 0 {
			continue
		}
		labelColor.Fprintf(w, "%s (%d documents, average polarity %+.2f)\n", kind, stats.DocumentCount, stats.AveragePolarity)
		if summary := r.SourceSummaries[kind]; summary != "" {
			fmt.Fprintf(w, "  %s\n", summary)
		}

		var parts []string
		for _, label := range types.AllSentimentLabels() {
			n := r.SentimentDistribution[kind][label]
			parts = append(parts, sentimentColors[label].Sprintf("%s %d", label, n))
		}
		fmt.Fprintf(w, "  sentiment: %s\n", strings.Join(parts, ", "))
		if len(stats.KeyThemes) > 0 {
			fmt.Fprintf(w, "  themes: %s\n", strings.Join(stats.KeyThemes, ", "))
		}
		fmt.Fprintln(w)
	}

	if len(r.FailureNotes) > 0 {
		warnColor.Fprintln(w, "Notes")
		notes := append([]string(nil), r.FailureNotes...)
		sort.Strings(notes)
		for _, note := range notes {
			warnColor.Fprintf(w, "  - %s\n", note)
		}
		fmt.Fprintln(w)
	}
}

func renderTurn(w io.Writer, turn *model.ConversationTurn, corpus *model.Corpus) {
	switch turn.Status {
	case types.TurnStatusFailed:
		warnColor.Fprintln(w, turn.Answer)
	default:
		fmt.Fprintln(w, turn.Answer)
	}

	if len(turn.CitedDocumentIDs) > 0 {
		labelColor.Fprintf(w, "\nSources (confidence %.2f)\n", turn.Confidence)
		for i, id := range turn.CitedDocumentIDs {
			doc, ok := corpus.Get(id)
			if !ok {
				dimColor.Fprintf(w, "  [%d] %s\n", i+1, id.Short())
				continue
			}
			fmt.Fprintf(w, "  [%d] (%s) %s\n", i+1, doc.Kind, doc.Title)
			if doc.URL != "" {
				dimColor.Fprintf(w, "      %s\n", doc.URL)
			}
		}
	}

	if len(turn.FollowUps) > 0 {
		labelColor.Fprintln(w, "\nYou might also ask")
		for _, q := range turn.FollowUps {
			fmt.Fprintf(w, "  - %s\n", q)
		}
	}
	fmt.Fprintln(w)
}

func renderHistory(w io.Writer, turns []model.ConversationTurn) {
	if len(turns) == 0 {
		dimColor.Fprintln(w, "No conversation yet")
		return
	}
	for i, turn := range turns {
		labelColor.Fprintf(w, "Q%d: %s\n", i+1, turn.Question)
		fmt.Fprintf(w, "A%d: %s\n", i+1, turn.Answer)
		dimColor.Fprintf(w, "    %s, %d sources, %s\n", turn.Status, len(turn.CitedDocumentIDs), turn.Timestamp.Format(time.Kitchen))
	}
}

func renderSuggestions(w io.Writer, suggestions []string) {
	labelColor.Fprintln(w, "Suggested questions")
	for _, s := range suggestions {
		fmt.Fprintf(w, "  - %s\n", s)
	}
}
