package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/digest/internal/config"
	"github.com/TobiSchelling/digest/internal/database"
	"github.com/TobiSchelling/digest/internal/news"
	"github.com/TobiSchelling/digest/internal/pipeline"
	"github.com/TobiSchelling/digest/internal/server"
	"github.com/TobiSchelling/digest/internal/store"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "digest",
	Short:   "Daily digests from Hacker News and V2EX",
	Long:    "digest collects Hacker News and V2EX into daily pools, ranks them by time-decayed engagement and writes daily digests.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

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
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(generateAICmd)
	rootCmd.AddCommand(generateOpenClawCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("digest", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/digest/",
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
		fmt.Println("Edit it to configure sources, API keys, and the LLM provider.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pool, ledger and archive status",
	RunE: func(cmd *cobra.Command, args []string) error {
		today := database.GetToday()
		fmt.Printf("Today: %s\n\n", today)

		fmt.Println("Pools:")
		for _, src := range []news.Source{news.HackerNews, news.V2EX} {
			s, err := store.Open(filepath.Join(cfg.GetDataDir(), string(src)))
			if err != nil {
				return err
			}
			days, err := s.Days()
			if err != nil {
				return fmt.Errorf("listing %s pools: %w", src, err)
			}
			items, _ := s.Load(today)
			fmt.Printf("  %s: %d days, %d items today\n", src, len(days), len(items))
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Println("\nPublished:")
		fmt.Printf("  Items: %d across %d days\n", stats.PublishedItems, stats.PublishedDays)
		sources := make([]string, 0, len(stats.BySource))
		for src := range stats.BySource {
			sources = append(sources, src)
		}
		sort.Strings(sources)
		for _, src := range sources {
			fmt.Printf("  %s: %d\n", src, stats.BySource[src])
		}
		fmt.Println("\nOutput:")
		fmt.Printf("  Digests: %d\n", stats.Digests)
		fmt.Printf("  Directory: %s\n", cfg.GetOutDir())
		return nil
	},
}

// --- collect command ---

var collectSel pipeline.Selection

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Fetch sources and merge them into today's pools",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkSelection(collectSel); err != nil {
			return err
		}
		pipe, err := pipeline.New(cfg, nil)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		today := database.GetToday()
		fmt.Printf("Collecting for %s...\n", today)
		result, err := pipe.Collect(ctx, today, collectSel)
		if err != nil {
			return err
		}
		printSteps(result)
		fmt.Println("\nData collected. Run 'digest generate' when ready to produce the digest.")
		return nil
	},
}

func init() {
	collectCmd.Flags().BoolVar(&collectSel.HNOnly, "hn-only", false, "Only Hacker News")
	collectCmd.Flags().BoolVar(&collectSel.V2EXOnly, "v2ex-only", false, "Only V2EX")
}

// --- generate commands ---

var (
	genOpts    pipeline.GenerateOptions
	genProfile string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate today's digest from the pools (--profile ai_digest | openclaw)",
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := pipeline.ParseMode(genProfile)
		if err != nil {
			return err
		}
		return runGenerate(mode)
	},
}

var generateAICmd = &cobra.Command{
	Use:   "generate-ai",
	Short: "Generate the AI digest (requires an API key)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGenerate(pipeline.AIDigest)
	},
}

var generateOpenClawCmd = &cobra.Command{
	Use:   "generate-openclaw",
	Short: "Generate top-N JSON with full content, without AI",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGenerate(pipeline.OpenClaw)
	},
}

func init() {
	generateCmd.Flags().StringVar(&genProfile, "profile", "", "ai_digest | openclaw")
	generateCmd.MarkFlagRequired("profile")

	for _, c := range []*cobra.Command{generateCmd, generateAICmd, generateOpenClawCmd} {
		c.Flags().IntVarP(&genOpts.TopN, "top-n", "t", 0, "Override top_n for each source")
		c.Flags().BoolVar(&genOpts.HNOnly, "hn-only", false, "Only Hacker News")
		c.Flags().BoolVar(&genOpts.V2EXOnly, "v2ex-only", false, "Only V2EX")
	}
}

func runGenerate(mode pipeline.Mode) error {
	if err := checkSelection(genOpts.Selection); err != nil {
		return err
	}
	db, err := openDB()
	if err != nil {
		log.Printf("Publication ledger unavailable, nothing will be skipped: %v", err)
	} else {
		defer db.Close()
	}

	pipe, err := pipeline.New(cfg, db)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	today := database.GetToday()
	fmt.Printf("Generating %s for %s...\n", mode, today)
	result, err := pipe.Generate(ctx, today, mode, genOpts)
	if err != nil {
		return err
	}
	printSteps(result)

	if len(result.Outputs) > 0 {
		fmt.Println("\nWrote:")
		for _, path := range result.Outputs {
			fmt.Printf("  %s\n", path)
		}
	}
	if mode == pipeline.AIDigest {
		fmt.Println("\nDone! Run 'digest serve' to browse the archive.")
	}
	return nil
}

func checkSelection(sel pipeline.Selection) error {
	if sel.HNOnly && sel.V2EXOnly {
		return fmt.Errorf("--hn-only and --v2ex-only are mutually exclusive")
	}
	return nil
}

func printSteps(result *pipeline.Result) {
	for _, step := range result.Steps {
		fmt.Printf("\n%s\n", step.Name)
		if step.Err != nil {
			fmt.Printf("  Error: %v\n", step.Err)
		} else {
			fmt.Printf("  %s\n", step.Summary)
		}
	}
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local digest viewer",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := servePort
		if !cmd.Flags().Changed("port") && cfg.Server.Port != 0 {
			port = cfg.Server.Port
		}

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.Open(filepath.Join(dataDir, database.FileName))
}
