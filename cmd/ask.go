package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/coachkit/coachd/internal/config"
)

var askImageURL string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask the coach a one-shot question",
	Long: `Ask a question from the terminal and print the grounded answer.

The question is embedded, the nearest stored lessons are retrieved, and
the answer is generated from them. Runs as an anonymous user, so only
public lessons ground the answer.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askImageURL, "image", "", "image URL or data URI to extract text from")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	if err := cfg.RequireProviderKeys(); err != nil {
		return err
	}

	logger := newLogger(cfg)

	app, err := buildStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	question := strings.Join(args, " ")

	answer, err := app.Coach.Explain(ctx, uuid.Nil, question, askImageURL)
	if err != nil {
		return fmt.Errorf("generating answer: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), answer)
	return nil
}
