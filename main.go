package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	resultsPath    string
	rulesPath      string
	settingsPath   string
	promptPath     string
	apiKey         string
	filterBrowsers bool
	requireRawURL  bool
	autoCount      int
	decideMode     bool
	debugMode      bool
)

var rootCmd = &cobra.Command{
	Use:   "url-labeler [dataset-file]",
	Short: "Human-in-the-loop labeling of work-related URLs",
	Long: `Presents URLs from a CSV dataset, proposes a work-related label from precedence
rules, a scraped-text language-model check, or a random fallback, and records the
operator's confirmed label in an append-only CSV result log.`,
	Args:         cobra.MaximumNArgs(2),
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&resultsPath, "results", "results.csv", "Result log CSV (appended)")
	rootCmd.Flags().StringVar(&rulesPath, "rules", "url_config.json", "Precedence rules file (exclude_urls, include_urls)")
	rootCmd.Flags().StringVar(&settingsPath, "settings", "", "Path to settings YAML (default .url-labeler/settings.yaml)")
	rootCmd.Flags().StringVar(&promptPath, "prompt", "", "Path to custom classifier prompt template")
	rootCmd.Flags().StringVar(&apiKey, "api-key", "", "Anthropic API key")
	rootCmd.Flags().BoolVar(&filterBrowsers, "filter-browsers", false, "Only label browser rows whose URL matches the configured filter")
	rootCmd.Flags().BoolVar(&requireRawURL, "require-raw-url", false, "Skip rows with an empty raw_url")
	rootCmd.Flags().IntVar(&autoCount, "auto", 0, "Write N engine decisions without confirmation and exit (0 or less: all)")
	rootCmd.Flags().BoolVar(&decideMode, "decide", false, "Print the decision for a URL [RAW_URL] and exit")
	rootCmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
}

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := loadEnvFiles(); err != nil {
		return err
	}

	overrides := &ConfigOverrides{}
	if settingsPath != "" {
		overrides.SettingsPath = &settingsPath
	}
	if promptPath != "" {
		overrides.PromptPath = &promptPath
	}

	config, err := NewConfig(overrides)
	if err != nil {
		return err
	}
	settings := config.Settings

	interactive := !decideMode && !cmd.Flags().Changed("auto")
	logger, err := newRunLogger(settings.Log, interactive)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	model, err := NewModel(settings.Agent, apiKey)
	if err != nil {
		return err
	}

	engine, err := newEngine(config, model, logger)
	if err != nil {
		return err
	}

	if decideMode {
		return decideOne(ctx, cmd, engine, args)
	}

	datasetPath := "dataset.csv"
	if len(args) > 0 {
		datasetPath = args[0]
	}

	filter := Filter{RequireRawURL: requireRawURL}
	if filterBrowsers {
		filter.Applications = settings.Filters.Applications
		filter.URLContains = settings.Filters.URLContains
	}

	session, err := LoadSession(SessionOptions{
		DatasetPath: datasetPath,
		ResultsPath: resultsPath,
		Filter:      filter,
	}, engine, logger)
	if err != nil {
		return err
	}

	if !interactive {
		n := autoCount
		if n <= 0 {
			n = session.Total()
		}
		written, err := session.BatchAdvance(ctx, n)
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d results to %s (%d/%d processed)\n",
			written, resultsPath, session.Processed(), session.Total())
		return err
	}

	return RunConsole(ctx, session, settings.FastForward)
}

// newRunLogger tags every entry with a run id. Interactive runs keep logs out
// of the terminal; headless runs log to stderr.
func newRunLogger(cfg LogSettings, interactive bool) (Logger, error) {
	if debugMode {
		cfg.Level = "debug"
	}
	if !interactive {
		cfg.OutputPaths = []string{"stderr"}
	}
	for _, path := range cfg.OutputPaths {
		if path == "stdout" || path == "stderr" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
	}

	logger, err := NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	return logger.With(String("run_id", uuid.NewString())), nil
}

func newEngine(config *Config, model Model, logger Logger) (*Engine, error) {
	settings := config.Settings

	rules, err := LoadRules(rulesPath)
	if err != nil {
		return nil, err
	}

	promptText, err := config.PromptTemplate()
	if err != nil {
		return nil, err
	}
	prompts, err := NewPromptBuilder(promptText, settings.Topic, config.ResponseTemplate())
	if err != nil {
		return nil, err
	}

	fetcher := NewContentFetcher(settings.Fetch, logger)

	return NewEngine(*rules, fetcher, model, prompts, settings.Thresholds, settings.Fetch.MaxChars,
		WithLogger(logger)), nil
}

func decideOne(ctx context.Context, cmd *cobra.Command, engine Decider, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("URL required for decide mode")
	}

	rec := URLRecord{URL: args[0], RawURL: args[0]}
	if len(args) > 1 {
		rec.RawURL = args[1]
	}

	d := engine.Decide(ctx, rec)
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t%s\t%s\n", rec.URL, d.Value, d.Label(), d.Reason)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
