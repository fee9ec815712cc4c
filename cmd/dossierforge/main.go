package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dossierforge/internal/compileloop"
	"dossierforge/internal/config"
	"dossierforge/internal/llm"
	"dossierforge/internal/logging"
	"dossierforge/internal/pipeline"
	"dossierforge/internal/supplement"
)

var (
	// Global flags
	configPath string
	verbose    bool

	logger *zap.Logger
	cfg    *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "dossierforge",
	Short: "dossierforge - resilient long-form dossier generation",
	Long: `dossierforge assembles regulatory dossiers from source documents.

Documents are batched under a cost ceiling, analyzed batch by batch,
enriched with supplemental data, synthesized into a single LaTeX
document, and compiled to PDF through a bounded repair loop. Transient
provider failures are retried; oversized prompts are shrunk until they
fit.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		logger, err = logging.New(logging.Options{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			File:   cfg.Logging.File,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// generateCmd runs one generation end to end
var generateCmd = &cobra.Command{
	Use:   "generate <manifest>",
	Short: "Generate a dossier from a document manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		subject, _ := cmd.Flags().GetString("subject")
		if subject == "" {
			return fmt.Errorf("--subject is required")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client, err := llm.NewGenAIClient(ctx, llm.GenAIConfig{
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MinInterval: cfg.LLM.MinInterval,
		}, logging.Stage(logger, logging.StageLLM))
		if err != nil {
			return err
		}

		channels := supplement.ChannelsFromEndpoints(cfg.Supplement.Endpoints, cfg.Supplement.Timeout)
		compiler := compileloop.NewPDFLaTeX(cfg.Compile.Command, cfg.Compile.WorkDir, cfg.Compile.Timeout,
			logging.Stage(logger, logging.StageCompile))

		p := pipeline.New(cfg, client, channels, compiler, logger)
		result, err := p.Run(ctx, args[0], subject)
		if err != nil {
			return err
		}

		if result.Converged {
			fmt.Printf("Artifact: %s\n", result.ArtifactPath)
		} else {
			fmt.Println("Compilation did not converge; writing document source instead.")
			out := "dossier-" + result.RunID + ".tex"
			if err := os.WriteFile(out, []byte(result.Document), 0644); err != nil {
				return fmt.Errorf("failed to write document source: %w", err)
			}
			fmt.Printf("Document: %s\n", out)
		}
		if result.PlaceholderBatches > 0 {
			fmt.Printf("Warning: %d batch(es) degraded to placeholder analyses.\n", result.PlaceholderBatches)
		}
		for _, e := range result.SupplementalErrors {
			fmt.Printf("Warning: supplemental channel failed: %s\n", e)
		}
		return nil
	},
}

// checkCmd screens a LaTeX file without calling any provider
var checkCmd = &cobra.Command{
	Use:   "check <file.tex>",
	Short: "Screen a LaTeX file for structural problems",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		issues := compileloop.StructuralIssues(string(data))
		if len(issues) == 0 {
			fmt.Println("No structural issues found.")
			return nil
		}
		for _, issue := range issues {
			fmt.Printf("- %s\n", issue)
		}
		return fmt.Errorf("%d structural issue(s)", len(issues))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	generateCmd.Flags().String("subject", "", "subject key for supplemental data channels")
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
