package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coachkit/coachd/internal/config"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVersion(cmd)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "coachd %s\n", AppVersion)
	fmt.Fprintf(out, "Build Time: %s\n", BuildTime)
	fmt.Fprintf(out, "Git Commit: %s\n", GitCommit)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  Embedding model: %s (%d dimensions)\n", cfg.CohereModel, cfg.EmbedDimension)
	fmt.Fprintf(out, "  Generation model: %s\n", cfg.MistralModel)
	fmt.Fprintf(out, "  Search: top %d, %s mode\n", cfg.TopK, cfg.SearchMode)
	fmt.Fprintf(out, "  Database: %s:%d/%s\n", cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDBName)
	fmt.Fprintf(out, "  COACHD_COHERE_API_KEY: %s\n", keyStatus(cfg.CohereAPIKey))
	fmt.Fprintf(out, "  COACHD_MISTRAL_API_KEY: %s\n", keyStatus(cfg.MistralAPIKey))

	return nil
}

// keyStatus reports whether a credential is set without revealing it.
func keyStatus(key string) string {
	if key == "" {
		return "not set"
	}
	return "configured"
}
