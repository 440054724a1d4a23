package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/domain/services"
)

// analysis is the offline verdict for one message
type analysis struct {
	Text           string                       `json:"text"`
	Classification models.Classification        `json:"classification"`
	Stage          models.Stage                 `json:"stage,omitempty"`
	Replies        []string                     `json:"candidate_replies,omitempty"`
	Intelligence   models.ExtractedIntelligence `json:"intelligence"`
}

func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze [text...]",
		Short: "Classify a message and show what the honeypot would extract",
		Long: `Runs the classifier, stage selector and extractor on one message as if it
opened a new conversation. Reads the message from stdin when no arguments are given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if text == "" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = strings.TrimSpace(string(data))
			}
			if text == "" {
				return errors.New("no message given")
			}

			out, err := json.MarshalIndent(analyze(text), "", "  ")
			if err != nil {
				return fmt.Errorf("encode analysis: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
}

func analyze(text string) analysis {
	km := services.NewScamKeywordMatcher()
	cls := services.NewScamClassifier(km).Classify(text)

	result := analysis{
		Text:           text,
		Classification: cls,
		Intelligence:   services.NewIntelligenceExtractor(km).Extract(text),
	}
	if cls.IsScam {
		signals := services.AnalyzeConversation(nil, text)
		result.Stage = services.SelectStage(0, signals)
		result.Replies = services.CandidateReplies(result.Stage, signals)
	}
	return result
}
