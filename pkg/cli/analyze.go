package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/trendscope/pkg/domain/model"
	"github.com/secmon-lab/trendscope/pkg/usecase"
	"github.com/secmon-lab/trendscope/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const (
	formatText = "text"
	formatJSON = "json"
)

func cmdAnalyze() *cli.Command {
	var engineCfg engineConfig
	var interactive bool
	var format string

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "interactive",
			Aliases:     []string{"i"},
			Usage:       "Ask follow-up questions about the results after the report",
			Destination: &interactive,
		},
		&cli.StringFlag{
			Name:        "format",
			Aliases:     []string{"f"},
			Usage:       "Report format [text|json]",
			Value:       formatText,
			Sources:     cli.EnvVars("TRENDSCOPE_FORMAT"),
			Destination: &format,
		},
	}
	flags = append(flags, engineCfg.Flags()...)

	return &cli.Command{
		Name:      "analyze",
		Aliases:   []string{"a"},
		Usage:     "Analyze a topic across video, news and social media",
		ArgsUsage: "<query>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if query == "" {
				return goerr.New("query is required")
			}
			if format != formatText && format != formatJSON {
				return goerr.New("invalid format", goerr.V("format", format))
			}

			uc, err := engineCfg.build(ctx)
			if err != nil {
				return err
			}

			analysis, err := uc.Analysis.Analyze(ctx, query)
			if err != nil {
				return goerr.Wrap(err, "failed to analyze", goerr.V("query", query))
			}

			if format == formatJSON {
				if err := renderAnalysisJSON(os.Stdout, analysis); err != nil {
					return err
				}
			} else {
				renderReport(os.Stdout, analysis)
			}

			if !interactive {
				return nil
			}
			return converse(ctx, os.Stdin, os.Stdout, uc, analysis)
		},
	}
}

// converse runs the question loop until EOF or an exit command
func converse(ctx context.Context, in io.Reader, out io.Writer, uc *usecase.UseCases, analysis *model.Analysis) error {
	logger := logging.From(ctx)

	if suggestions, err := uc.Conversation.Suggestions(ctx, analysis.SessionID); err == nil {
		renderSuggestions(out, suggestions)
	} else {
		logger.Warn("failed to build suggestions", "error", err)
	}
	dimColor.Fprintln(out, "Commands: /history, /clear, /suggest, exit")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "/history":
			turns, err := uc.Conversation.History(ctx, analysis.SessionID)
			if err != nil {
				return err
			}
			renderHistory(out, turns)
			continue
		case "/clear":
			if err := uc.Conversation.Clear(ctx, analysis.SessionID); err != nil {
				return err
			}
			dimColor.Fprintln(out, "Conversation cleared")
			continue
		case "/suggest":
			suggestions, err := uc.Conversation.Suggestions(ctx, analysis.SessionID)
			if err != nil {
				return err
			}
			renderSuggestions(out, suggestions)
			continue
		}

		turn, err := uc.Conversation.Ask(ctx, analysis.SessionID, line)
		if err != nil {
			return err
		}
		renderTurn(out, turn, analysis.Corpus)
	}

	if err := scanner.Err(); err != nil {
		return goerr.Wrap(err, "failed to read question")
	}
	return nil
}
