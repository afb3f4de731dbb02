package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/coderag/internal/config"
	"github.com/dshills/coderag/internal/engine"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// cfgFile holds the path to the configuration file (set via --config)
var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "coderag",
	Short: "Hybrid code search and question answering over a code graph",
	Long: `coderag indexes code-graph symbols and answers questions about them
using vector search, keyword search, reranking and answer synthesis.
Every stage degrades gracefully when its provider is unavailable.`,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "Path to a configuration file (YAML or JSON)")
	flags.String("data-dir", "", "Directory holding the index (default .coderag)")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("vector-backend", "", "Vector store backend: memory, sqlite, qdrant")
	flags.String("embedding-provider", "", "Embedding provider: auto, openai, jina, local, none")
	flags.String("llm-provider", "", "Answer provider: auto, openai, ollama, none")
	flags.String("llm-model", "", "Model used for answer generation")
}

func main() {
	// Logs go to stderr; stdout is reserved for MCP and command output
	log.SetOutput(os.Stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves configuration for a command
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return config.Load(config.Options{
		Dir:   cwd,
		File:  cfgFile,
		Flags: cmd.Flags(),
	})
}

// openEngine loads configuration and builds the engine for a command
func openEngine(cmd *cobra.Command) (*engine.Engine, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	eng, err := engine.New(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start engine: %w", err)
	}
	return eng, cfg, nil
}
