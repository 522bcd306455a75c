// Package cmd implements the coachd command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "coachd",
	Short: "coachd - retrieval-grounded learning coach backend",
	Long: `coachd serves a REST API for a personal learning coach.

Lessons are stored in PostgreSQL and indexed with pgvector embeddings.
Questions are answered by a Mistral model grounded on the most relevant
stored lessons.

Commands:
  serve    start the HTTP API server
  migrate  apply database migrations
  ask      ask a one-shot question from the terminal
  version  show version and configuration`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
