package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samsaffron/llm-gateway/internal/config"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/llm-gateway/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: console or json")
}

var rootCmd = &cobra.Command{
	Use:   "llm-gateway",
	Short: "Streaming LLM gateway and terminal chat client",
	Long: `llm-gateway routes chat requests to Gemini, OpenRouter, Groq, OpenAI or
Anthropic by model id and relays the answer as a delimited frame stream.

Examples:
  llm-gateway serve                          # start the gateway
  llm-gateway serve --pprof                  # with a localhost profiler
  llm-gateway chat                           # interactive chat against the gateway
  llm-gateway ask "explain goroutines"       # one-shot question
  llm-gateway models                         # routing table
  llm-gateway config init                    # write a default config file`,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	SilenceUsage:      true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		appConfig = cfg
		logger = newLogger(cfg.Log, os.Stderr)
		return nil
	},
}

var (
	configPath string
	debug      bool
	logFormat  string

	appConfig *config.Config
	logger    zerolog.Logger
)

// newLogger builds the process logger: a console writer for people, JSON
// for log collectors.
func newLogger(cfg config.LogConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	if debug {
		level = zerolog.DebugLevel
	}

	format := cfg.Format
	if logFormat != "" {
		format = logFormat
	}

	var l zerolog.Logger
	if format == "json" {
		l = zerolog.New(out)
	} else {
		l = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}
	return l.Level(level).With().Timestamp().Logger()
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
