package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TobiSchelling/chatlens/internal/classify"
	"github.com/TobiSchelling/chatlens/internal/config"
	"github.com/TobiSchelling/chatlens/internal/database"
	"github.com/TobiSchelling/chatlens/internal/engine"
	"github.com/TobiSchelling/chatlens/internal/logging"
	"github.com/TobiSchelling/chatlens/internal/pipeline"
	"github.com/TobiSchelling/chatlens/internal/report"
	"github.com/TobiSchelling/chatlens/internal/server"
	"github.com/TobiSchelling/chatlens/internal/taxonomy"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     = zap.NewNop()
)

func main() {
	err := rootCmd.ExecuteContext(context.Background())
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "chatlens",
	Short:   "Customer chat log analysis",
	Long:    "chatlens ingests assistant chat exports, classifies every turn and derives referral and failure reports.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		logCfg := cfg.Logging
		if verbose {
			logCfg = logging.Verbose(logCfg)
		}
		logger, err = logging.New(logCfg)
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(correctCmd)
	rootCmd.AddCommand(reportCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("chatlens", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/chatlens/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Printf("Put the raw export and taxonomy documents in %s.\n", config.DataDir())
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and last ingestion status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := cmd.Context()
		stats, err := db.GetStats(ctx)
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}
		run, err := db.GetLastIngestRun(ctx)
		if err != nil {
			return fmt.Errorf("getting last run: %w", err)
		}

		fmt.Printf("Today: %s\n", database.GetToday())
		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Println("Messages:")
		fmt.Printf("  Total: %d\n", stats.Messages)
		fmt.Printf("  Threads: %d\n", stats.Threads)
		fmt.Printf("  Customer turns: %d\n", stats.HumanTurns)
		fmt.Printf("  Awaiting review: %d\n", stats.NeedsReview)
		fmt.Printf("  Manual corrections: %d\n", stats.Corrections)
		fmt.Println("\nEvents:")
		fmt.Printf("  Referrals: %d\n", stats.Referrals)
		fmt.Printf("  Failures: %d\n", stats.Failures)
		fmt.Println("\nLast ingestion:")
		if run == nil {
			fmt.Println("  never")
			return nil
		}
		fmt.Printf("  %s (%s) started %s\n", run.RunID, run.Status, run.StartedAt)
		if run.Error != nil {
			fmt.Printf("  Error: %s\n", *run.Error)
		}
		return nil
	},
}

// --- ingest command ---

var dryRun bool

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run ingestion: read -> normalize -> dedup -> propagate -> classify -> detect -> persist",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe := pipeline.New(cfg, db, logger)
		var result *pipeline.Result
		if dryRun {
			result, err = pipe.DryRun(cmd.Context())
		} else {
			result, err = pipeline.NewRunner(pipe, nil, logger).RunNow(cmd.Context())
		}

		if result != nil {
			for i, step := range result.Steps {
				fmt.Printf("\nStep %d: %s\n", i+1, step.Name)
				if step.Err != nil {
					fmt.Printf("  Error: %v\n", step.Err)
				} else {
					fmt.Printf("  %s\n", step.Summary)
				}
			}
		}
		if err != nil {
			return err
		}

		if !dryRun {
			fmt.Println("\nIngestion complete! Run 'chatlens serve' to explore the results.")
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Run every step except writing to the database")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		pipe := pipeline.New(cfg, db, logger)
		eng := engine.New(db, pipe, logger)
		if err := eng.Init(ctx); err != nil {
			return fmt.Errorf("initializing engine: %w", err)
		}
		runner := pipeline.NewRunner(pipe, eng, logger)

		port := cfg.Server.Port
		if servePort > 0 {
			port = servePort
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, server.New(eng, runner, db, server.Taxonomy{
			CategoriesPath: cfg.CategoriesPath(),
			ProductsPath:   cfg.ProductsPath(),
		}, logger), port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

// --- review command ---

var (
	reviewPage  int
	reviewLimit int
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "List messages awaiting manual classification",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		msgs, total, err := db.GetReviewQueue(cmd.Context(), reviewPage, reviewLimit)
		if err != nil {
			return err
		}
		if total == 0 {
			fmt.Println("Review queue is empty.")
			return nil
		}

		fmt.Printf("Review queue: %d messages (page %d)\n\n", total, reviewPage)
		for _, m := range msgs {
			date := "-"
			if m.Date != nil {
				date = *m.Date
			}
			text := m.Text
			if len([]rune(text)) > 70 {
				text = string([]rune(text)[:70]) + "..."
			}
			fmt.Printf("  [%s] %s thread %s\n", m.ID, date, m.ThreadID)
			fmt.Printf("        %s\n", text)
		}
		fmt.Println("\nClassify one with: chatlens correct <message-id> <category>")
		return nil
	},
}

func init() {
	reviewCmd.Flags().IntVar(&reviewPage, "page", 1, "Page number")
	reviewCmd.Flags().IntVar(&reviewLimit, "limit", 20, "Messages per page")
}

// --- correct command ---

var (
	correctMacro     string
	correctSentiment string
	correctProduct   string
	correctKeyword   string
)

var correctCmd = &cobra.Command{
	Use:   "correct [message-id] [category]",
	Short: "Store a manual classification for a message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		tax, err := taxonomy.Load(cfg.CategoriesPath(), cfg.ProductsPath(), logger)
		if err != nil {
			return err
		}

		c, err := classify.BuildCorrection(tax, classify.CorrectionInput{
			MessageID:     args[0],
			Category:      args[1],
			CategoryMacro: correctMacro,
			Sentiment:     correctSentiment,
			Product:       correctProduct,
		})
		if err != nil {
			return err
		}

		found, err := db.SaveCorrection(cmd.Context(), c)
		if err != nil {
			return err
		}
		if found {
			fmt.Printf("Classified [%s] as %s (%s)\n", c.MessageID, c.Category, c.CategoryMacro)
		} else {
			fmt.Printf("Message %s is not in the database; the correction applies on the next ingestion.\n", c.MessageID)
		}

		if correctKeyword != "" {
			learned, err := taxonomy.AppendKeyword(cfg.CategoriesPath(), c.Category, correctKeyword)
			if err != nil {
				return fmt.Errorf("learning keyword: %w", err)
			}
			if learned {
				fmt.Printf("Learned keyword %q for %s\n", taxonomy.CleanKeyword(correctKeyword), c.Category)
			} else {
				fmt.Println("Keyword not added (already present, empty, or unknown category).")
			}
		}
		return nil
	},
}

func init() {
	correctCmd.Flags().StringVar(&correctMacro, "macro", "", "Macro category (default from taxonomy)")
	correctCmd.Flags().StringVar(&correctSentiment, "sentiment", "", "Override sentiment")
	correctCmd.Flags().StringVar(&correctProduct, "product", "", "Override product")
	correctCmd.Flags().StringVar(&correctKeyword, "keyword", "", "Add a trigger keyword to the category")
}

// --- report command ---

var (
	reportHTML   bool
	reportOutput string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the run report",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		in, err := report.Load(cmd.Context(), db)
		if err != nil {
			return err
		}
		out := report.Compose(in)
		if reportHTML {
			if out, err = report.RenderHTML(out); err != nil {
				return err
			}
		}

		if reportOutput == "" {
			fmt.Print(out)
			return nil
		}
		if err := os.WriteFile(reportOutput, []byte(out), 0o644); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		fmt.Printf("Report written to %s\n", reportOutput)
		return nil
	},
}

func init() {
	reportCmd.Flags().BoolVar(&reportHTML, "html", false, "Render HTML instead of markdown")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "Write to file instead of stdout")
}

func openDB() (*database.DB, error) {
	if err := os.MkdirAll(cfg.GetDataDir(), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.Open(cfg.DBPath())
}
