package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dshills/coderag/internal/graph"
	"github.com/dshills/coderag/internal/indexer"
	"github.com/dshills/coderag/internal/mcp"
	"github.com/dshills/coderag/internal/vectorstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cfg, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		log.Printf("coderag MCP server v%s starting (backend %s, data %s)", version, cfg.Vector.Backend, cfg.DataDir)
		server := mcp.NewServer(eng)

		errChan := make(chan error, 1)
		go func() {
			log.Println("MCP server ready, listening on stdio...")
			errChan <- server.Serve(cmd.Context())
		}()

		select {
		case <-cmd.Context().Done():
			log.Println("Received shutdown signal, shutting down gracefully...")
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
		}

		log.Println("Server stopped")
		return nil
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index a code-graph JSON file or a Go source directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		graphPath, _ := cmd.Flags().GetString("graph")
		sourceDir, _ := cmd.Flags().GetString("source")
		includeTests, _ := cmd.Flags().GetBool("include-tests")
		if (graphPath == "") == (sourceDir == "") {
			return errors.New("exactly one of --graph or --source is required")
		}

		eng, _, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		spinner, _ := newSpinner().Start("Indexing...")

		var stats *indexer.Statistics
		if graphPath != "" {
			stats, err = eng.IndexGraphFile(cmd.Context(), graphPath)
		} else {
			stats, err = eng.IndexGoSource(cmd.Context(), sourceDir, graph.GoSourceOptions{IncludeTests: includeTests})
		}
		_ = spinner.Stop()
		fmt.Print("\r")
		if err != nil {
			fmt.Println(Red.Render(fmt.Sprintf("Indexing failed: %v", err)))
			return err
		}

		printIndexStats(stats)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		eng, _, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		resp := eng.Search(cmd.Context(), strings.Join(args, " "), limit)
		printSearch(resp)
		return nil
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about the indexed code",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		spinner, _ := newSpinner().Start("Thinking...")
		ans := eng.Answer(cmd.Context(), strings.Join(args, " "))
		_ = spinner.Stop()
		fmt.Print("\r")

		return printAnswer(ans)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index size and provider availability",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		eng, _, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		status := eng.Status(cmd.Context())
		if asJSON {
			data, err := json.MarshalIndent(status, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}
		printStatus(status)
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the index and its persisted state",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		if err := eng.Clear(cmd.Context()); err != nil {
			fmt.Println(Red.Render(fmt.Sprintf("Error clearing index: %v", err)))
			return err
		}
		fmt.Println(Green.Render("Index cleared."))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("coderag\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", vectorstore.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", vectorstore.DriverName)
	},
}

func init() {
	indexCmd.Flags().String("graph", "", "Path to a code-graph JSON file")
	indexCmd.Flags().String("source", "", "Path to a Go project to build a graph from")
	indexCmd.Flags().Bool("include-tests", true, "With --source: index *_test.go files")

	searchCmd.Flags().IntP("limit", "n", 0, "Maximum number of results (default from config)")
	statusCmd.Flags().Bool("json", false, "Print status as JSON")

	rootCmd.AddCommand(serveCmd, indexCmd, searchCmd, askCmd, statusCmd, clearCmd, versionCmd)
}

func newSpinner() *pterm.SpinnerPrinter {
	return pterm.DefaultSpinner.WithStyle(pterm.NewStyle(pterm.FgLightBlue)).
		WithSequence("⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏").
		WithDelay(100).WithRemoveWhenDone(true)
}
