package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/trendscope/pkg/domain/interfaces"
	"github.com/secmon-lab/trendscope/pkg/domain/model"
	"github.com/secmon-lab/trendscope/pkg/domain/types"
	"github.com/secmon-lab/trendscope/pkg/utils/logging"
)

// MaxSuggestions bounds the suggested question list
const MaxSuggestions = 6

// ConversationUseCase answers questions about a finished analysis
type ConversationUseCase struct {
	repo     interfaces.AnalysisRepository
	sessions *sessionRegistry
}

// Ask answers question within the session's conversation
func (uc *ConversationUseCase) Ask(ctx context.Context, id model.SessionID, question string) (*model.ConversationTurn, error) {
	if strings.TrimSpace(question) == "" {
		return nil, goerr.Wrap(ErrEmptyQuestion, "cannot ask", goerr.V(SessionIDKey, id))
	}

	session, err := uc.sessions.get(id)
	if err != nil {
		return nil, err
	}

	ctx = logging.With(ctx, logging.From(ctx).With(SessionIDKey, id))
	turn, err := session.Ask(ctx, question)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to answer question", goerr.V(SessionIDKey, id))
	}

	logging.From(ctx).Info("question answered",
		"status", turn.Status,
		"citations", len(turn.CitedDocumentIDs),
		"confidence", turn.Confidence,
	)
	return turn, nil
}

// History returns the conversation turns of a session, oldest first
func (uc *ConversationUseCase) History(ctx context.Context, id model.SessionID) ([]model.ConversationTurn, error) {
	session, err := uc.sessions.get(id)
	if err != nil {
		return nil, err
	}
	return session.History(), nil
}

// Clear drops the conversation of a session. The analysis stays available.
func (uc *ConversationUseCase) Clear(ctx context.Context, id model.SessionID) error {
	session, err := uc.sessions.get(id)
	if err != nil {
		return err
	}
	if err := session.Clear(ctx); err != nil {
		return goerr.Wrap(err, "failed to clear conversation", goerr.V(SessionIDKey, id))
	}
	return nil
}

var suggestionTemplates = map[types.SourceKind][]string{
	types.SourceKindNews: {
		"What do news sources say about %s?",
		"What are the latest developments regarding %s?",
	},
	types.SourceKindSocial: {
		"What is the public opinion on %s?",
		"How are people reacting to %s on social media?",
	},
	types.SourceKindVideo: {
		"Are there any educational videos about %s?",
		"What explanations are available for %s?",
	},
}

var generalSuggestions = []string{
	"What are the main controversies around %s?",
	"How has the perception of %s changed over time?",
	"What are the different perspectives on %s?",
}

// Suggestions returns starter questions for the session, built from the source
// kinds that delivered documents
func (uc *ConversationUseCase) Suggestions(ctx context.Context, id model.SessionID) ([]string, error) {
	analysis, err := uc.repo.Get(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(errors.Join(model.ErrSessionNotFound, err), "failed to get analysis", goerr.V(SessionIDKey, id))
	}

	return BuildSuggestions(analysis.Query, analysis.Corpus.Kinds()), nil
}

// BuildSuggestions fills the question templates of the given kinds, in news,
// social, video order, followed by general questions
func BuildSuggestions(query string, kinds []types.SourceKind) []string {
	available := make(map[types.SourceKind]bool, len(kinds))
	for _, k := range kinds {
		available[k] = true
	}

	var templates []string
	for _, kind := range []types.SourceKind{types.SourceKindNews, types.SourceKindSocial, types.SourceKindVideo} {
		if available[kind] {
			templates = append(templates, suggestionTemplates[kind]...)
		}
	}
	templates = append(templates, generalSuggestions...)

	if len(templates) > MaxSuggestions {
		templates = templates[:MaxSuggestions]
	}
	result := make([]string, len(templates))
	for i, tmpl := range templates {
		result[i] = fmt.Sprintf(tmpl, query)
	}
	return result
}
