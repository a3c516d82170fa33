// mctrans — AI-assisted localization of Minecraft modpacks: scans mods,
// resource packs and FTB Quests files, translates them in batches through
// an OpenAI-compatible endpoint, and emits a ready-to-use resource pack.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/mc-localize/mctrans/config"
	"github.com/mc-localize/mctrans/dispatch"
	"github.com/mc-localize/mctrans/i18n"
	"github.com/mc-localize/mctrans/langmeta"
	"github.com/mc-localize/mctrans/pipeline"
	"github.com/mc-localize/mctrans/settings"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARN]"+colorReset+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+format+"\n", args...)
}

// ---------------------------------------------------------------------------
// Global flag
// ---------------------------------------------------------------------------

var configPath string

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mctrans",
		Short: "AI-assisted Minecraft modpack localization",
		Long: `mctrans — AI-assisted Minecraft modpack localization.

Scans a modpack for translatable assets (mod .jar language resources,
assets/ and kubejs/ lang files, FTB Quests .snbt files), translates them
in batches through an OpenAI-compatible chat endpoint, and writes a
resource pack with the results. Reruns are incremental: accepted
translations are reused, only new or changed strings are dispatched.

Commands:
  init        Create a default mctrans.yaml configuration file
  models      List models available at the configured endpoint
  translate   Run the translation pipeline`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global persistent flag — inherited by all subcommands
	root.PersistentFlags().StringVar(&configPath, "config", config.FileName, "Configuration file path")

	root.AddCommand(
		newInitCmd(),
		newModelsCmd(),
		newTranslateCmd(),
		newAuthCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	i18n.Init("")
	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// auth (manage stored API credentials)
// ---------------------------------------------------------------------------

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage stored API credentials",
		Long: `Store the endpoint API key outside mctrans.yaml, so the config can be
shared with a modpack without leaking the key. Keys are stored per
base_url in ` + settings.FilePath() + `.`,
	}

	var key string
	set := &cobra.Command{
		Use:   "set",
		Short: "Store an API key for the configured endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if key == "" {
				return fmt.Errorf("--key is required")
			}
			if err := settings.SetAPIKey(cfg.BaseURL, key); err != nil {
				return err
			}
			logSuccess("Stored key %s for %s", settings.MaskKey(key), cfg.BaseURL)
			return nil
		},
	}
	set.Flags().StringVarP(&key, "key", "k", "", "API key to store")

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the stored key (masked) for the configured endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			stored := settings.GetAPIKey(cfg.BaseURL)
			if stored == "" {
				logInfo("No key stored for %s", cfg.BaseURL)
				return nil
			}
			fmt.Printf("%s: %s\n", cfg.BaseURL, settings.MaskKey(stored))
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove",
		Short: "Remove the stored key for the configured endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := settings.RemoveAPIKey(cfg.BaseURL); err != nil {
				return err
			}
			logSuccess("Removed stored key for %s", cfg.BaseURL)
			return nil
		},
	}

	cmd.AddCommand(set, show, remove)
	return cmd
}

// ---------------------------------------------------------------------------
// version (display version information)
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mctrans version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}
}

// ---------------------------------------------------------------------------
// init (write a default configuration file)
// ---------------------------------------------------------------------------

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a default configuration file",
		Long: `Write a mctrans.yaml populated with defaults to the --config path.
Edit api_key and input_path before running translate.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if fileExists(configPath) {
				logWarning(i18n.T("Configuration file already exists: %s"), configPath)
				return nil
			}
			if err := config.Default().Save(configPath); err != nil {
				return err
			}
			logSuccess(i18n.T("Configuration file created: %s"), configPath)
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// models (list models at the endpoint, doubles as a connectivity check)
// ---------------------------------------------------------------------------

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models available at the configured endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			resolveAPIKey(cfg)

			client := dispatch.New(dispatch.Options{
				BaseURL:    cfg.BaseURL,
				APIKey:     cfg.APIKey,
				Proxy:      cfg.Proxy,
				Timeout:    cfg.TimeoutDuration(),
				MaxRetries: cfg.MaxRetries,
				RetryDelay: cfg.RetryDelayDuration(),
			}, nil)

			models, err := client.FetchModels(interruptContext())
			if err != nil {
				return err
			}

			logInfo(i18n.T("Available models:"))
			for _, m := range models {
				fmt.Println(m)
			}
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// translate (the pipeline run)
// ---------------------------------------------------------------------------

type translateArgs struct {
	input      string
	output     string
	apiKey     string
	baseURL    string
	model      string
	sourceLang string
	targetLang string
	baseline   string
	proxy      string
	batchSize  int
	update     bool
	force      bool
	verbose    bool
}

func newTranslateCmd() *cobra.Command {
	a := &translateArgs{}

	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Translate the modpack and write the resource pack",
		Long: `Scan the input modpack, translate every discovered asset and write
the output resource pack. Flags override the configuration file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			applyOverrides(cfg, a, cmd.Flags().Changed)

			return runTranslate(cfg, a.verbose)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&a.input, "input", "i", "", "Modpack root to scan")
	f.StringVarP(&a.output, "output", "o", "", "Output resource pack directory")
	f.StringVarP(&a.apiKey, "key", "k", "", "API key")
	f.StringVar(&a.baseURL, "base-url", "", "OpenAI-compatible API base URL")
	f.StringVarP(&a.model, "model", "m", "", "Model identifier")
	f.StringVar(&a.sourceLang, "source-lang", "", "Source language code (e.g. en_us)")
	f.StringVar(&a.targetLang, "target-lang", "", "Target language code (e.g. zh_cn)")
	f.StringVar(&a.baseline, "baseline", "", "Baseline translation pack to reuse")
	f.StringVar(&a.proxy, "proxy", "", "HTTP/HTTPS proxy URL")
	f.IntVar(&a.batchSize, "batch-size", 0, "Units per translation request")
	f.BoolVarP(&a.update, "update", "u", false, "Merge new entries into existing output files")
	f.BoolVarP(&a.force, "force", "f", false, "Retranslate even when output files exist")
	f.BoolVarP(&a.verbose, "verbose", "v", false, "Verbose progress output")

	return cmd
}

// applyOverrides copies set flags over the loaded configuration. changed
// reports whether the user passed the flag explicitly, so zero values do
// not clobber configured ones.
func applyOverrides(cfg *config.Config, a *translateArgs, changed func(string) bool) {
	if changed("input") {
		cfg.InputPath = a.input
	}
	if changed("output") {
		cfg.OutputPath = a.output
	}
	if changed("key") {
		cfg.APIKey = a.apiKey
	}
	if changed("base-url") {
		cfg.BaseURL = a.baseURL
	}
	if changed("model") {
		cfg.Model = a.model
	}
	if changed("source-lang") {
		cfg.SourceLang = a.sourceLang
	}
	if changed("target-lang") {
		cfg.TargetLang = a.targetLang
	}
	if changed("baseline") {
		cfg.BaselinePath = a.baseline
	}
	if changed("proxy") {
		cfg.Proxy = a.proxy
	}
	if changed("batch-size") {
		cfg.BatchSize = a.batchSize
	}
	if changed("update") {
		cfg.UpdateExisting = a.update
	}
	if changed("force") {
		cfg.SkipExisting = !a.force
	}
}

// resolveAPIKey fills in a missing key from the environment or the
// credential store. An explicitly configured key always wins.
func resolveAPIKey(cfg *config.Config) {
	if cfg.APIKey != "" {
		return
	}
	if key := os.Getenv(settings.EnvKey); key != "" {
		cfg.APIKey = key
		return
	}
	cfg.APIKey = settings.GetAPIKey(cfg.BaseURL)
}

func runTranslate(cfg *config.Config, verbose bool) error {
	resolveAPIKey(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	onLog := func(format string, args ...any) {
		if verbose {
			logInfo(format, args...)
		}
	}

	runner, err := pipeline.New(pipeline.Options{
		Config:  cfg,
		OnLog:   onLog,
		OnError: logWarning,
	})
	if err != nil {
		return err
	}

	ctx := interruptContext()
	logInfo(i18n.T("Starting translation run"))
	logInfo("%s -> %s", langmeta.Label(cfg.SourceLang), langmeta.Label(cfg.TargetLang))
	logInfo("%s -> %s (model %s)", cfg.InputPath, cfg.OutputPath, cfg.Model)

	report, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	if ctx.Err() != nil {
		logWarning(i18n.T("Run interrupted, partial results were saved"))
	}

	for _, o := range report.Outcomes {
		switch {
		case o.Status == pipeline.StatusFailed:
			logError("failed: %s: %v", o.Path, o.Err)
		case o.Err != nil:
			logWarning("partial: %s: %v", o.Path, o.Err)
		}
	}

	translated, skipped, failed := report.Counts()
	units, reused, rejected := report.Units()
	logInfo(i18n.T("%d translated, %d skipped, %d failed"), translated, skipped, failed)
	logInfo(i18n.T("%d unit(s) translated, %d reused, %d rejected"), units, reused, rejected)

	if failed > 0 && translated == 0 && skipped == 0 {
		return fmt.Errorf("all %d document(s) failed", failed)
	}
	logSuccess(i18n.T("Translated resource pack written to %s"), cfg.OutputPath)
	return nil
}

// interruptContext returns a context cancelled by the first Ctrl-C. The
// pipeline stops admitting work and saves what already finished; a second
// interrupt kills the process the usual way.
func interruptContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		logWarning("Interrupted, saving progress...")
		cancel()
		signal.Stop(sigCh)
	}()

	return ctx
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
