package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/sentiment"
	"github.com/spf13/cobra"
)

type classifyResult struct {
	Text        string   `json:"text"`
	Sentiment   string   `json:"sentiment"`
	Score       int      `json:"score"`
	Comparative float64  `json:"comparative"`
	Positive    []string `json:"positive"`
	Negative    []string `json:"negative"`
}

func newClassifyCommand(classifier *sentiment.LexiconClassifier) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "classify [text...]",
		Short: "Print the sentiment the journal would assign to the text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(cmd.OutOrStdout(), classifier, strings.Join(args, " "), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full analysis as JSON")
	return cmd
}

func runClassify(out io.Writer, classifier *sentiment.LexiconClassifier, text string, asJSON bool) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("text is required")
	}
	analysis := classifier.Analyze(text)
	if !asJSON {
		_, err := fmt.Fprintf(out, "%s (score %d)\n", analysis.Sentiment(), analysis.Score)
		return err
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(classifyResult{
		Text:        text,
		Sentiment:   analysis.Sentiment().String(),
		Score:       analysis.Score,
		Comparative: analysis.Comparative,
		Positive:    nonNil(analysis.Positive),
		Negative:    nonNil(analysis.Negative),
	})
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
