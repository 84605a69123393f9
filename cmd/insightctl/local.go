package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/insightd/internal/conversation"
	"github.com/fyrsmithlabs/insightd/internal/detector"
	"github.com/fyrsmithlabs/insightd/internal/indicators"
)

func newDetectCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "detect [file]",
		Short: "Scan text from a file or stdin for patterns",
		Long: `Scan text for behavioral patterns without recording anything.

Examples:
  # Scan a file
  insightctl detect journal.txt

  # Scan from stdin
  echo "I always mess things up" | insightctl detect -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			det, err := localDetector(opts)
			if err != nil {
				return err
			}
			results := det.Detect(string(content))
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), results)
			}
			renderResults(cmd.OutOrStdout(), results)
			return nil
		},
	}
}

func newAnalyzeCmd(opts *options) *cobra.Command {
	var maxTurns int

	cmd := &cobra.Command{
		Use:   "analyze <transcript.jsonl>",
		Short: "Analyze the user turns of a JSONL transcript",
		Long: `Analyze the latest user turns of a JSONL conversation transcript.

Conversations with fewer than three user turns report no patterns.

Examples:
  insightctl analyze ~/.config/insightd/conversations/conv-1.jsonl
  insightctl analyze --max-turns 10 session.jsonl`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := conversation.NewParser().ParseFile(args[0])
			if err != nil {
				return err
			}
			if parsed.ErrorCount > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "[insightctl] skipped %d malformed line(s)\n", parsed.ErrorCount)
			}

			det, err := localDetector(opts)
			if err != nil {
				return err
			}
			analyzer := conversation.NewAnalyzer(nil, det, nil, conversation.WithMaxTurns(maxTurns))
			results := analyzer.AnalyzeTurns(parsed.Turns)

			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), results)
			}
			renderResults(cmd.OutOrStdout(), results)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxTurns, "max-turns", conversation.DefaultMaxTurns, "number of latest user turns to analyze")
	return cmd
}

// localDetector builds a detector on the built-in catalog or the one named
// by --catalog.
func localDetector(opts *options) (*detector.Detector, error) {
	if opts.catalogPath == "" {
		return detector.New(nil), nil
	}
	catalog, err := indicators.Load(opts.catalogPath)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	return detector.New(catalog), nil
}

// readInput reads the named file, or stdin when no file or "-" is given.
func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		content, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
		return content, nil
	}
	content, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", args[0], err)
	}
	return content, nil
}
