// Package cli implements the deidentify command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/deidentify/internal/model"
	"github.com/ppiankov/deidentify/internal/pipeline"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "deidentify",
	Short: "deidentify - replace personal data in tables with placeholders",
	Long: `deidentify finds personal data in tabular files (CSV, TSV, HTML tables)
and replaces it with entity placeholders such as <PERSON> or <EMAIL_ADDRESS>.

Detection is done per cell by pluggable recognizers: built-in patterns for
structured identifiers, an optional NER model sidecar, and an optional LLM.
The output table has exactly the shape of the input.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("deidentify v%s\n", pipeline.Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.deidentify/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads .env, the config file and DEIDENTIFY_* variables
func initConfig() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		viper.AddConfigPath(filepath.Join(home, ".deidentify"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("DEIDENTIFY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	bindEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// envKeys are the config keys that can be set through DEIDENTIFY_* variables.
// Unmarshal only sees keys viper knows about, so they are bound explicitly.
var envKeys = []string{
	"target_language",
	"entities",
	"lower_case",
	"columns_to_skip",
	"recognizers.pattern.enabled",
	"recognizers.pattern.pattern_file",
	"recognizers.pattern.min_score",
	"recognizers.ner.enabled",
	"recognizers.ner.url",
	"recognizers.ner.timeout",
	"recognizers.llm.enabled",
	"recognizers.llm.provider",
	"recognizers.llm.model",
	"recognizers.llm.api_key",
	"recognizers.llm.base_url",
	"concurrency.workers",
	"cache.enabled",
	"cache.dir",
	"rate_limiting.requests_per_second",
	"rate_limiting.burst_size",
	"http.http_proxy",
	"http.https_proxy",
	"http.no_proxy",
	"server.listen_addr",
	"server.api_key",
}

func bindEnv() {
	for _, key := range envKeys {
		_ = viper.BindEnv(key)
	}
}

func setupLogging() {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
}

// loadConfig merges defaults, the config file and the environment
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cfg.Recognizers.LLM.APIKey == "" {
		switch strings.ToLower(cfg.Recognizers.LLM.Provider) {
		case "openai":
			cfg.Recognizers.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic", "claude":
			cfg.Recognizers.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if cfg.Recognizers.LLM.BaseURL == "" && strings.EqualFold(cfg.Recognizers.LLM.Provider, "ollama") {
		cfg.Recognizers.LLM.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}
	return cfg, nil
}
