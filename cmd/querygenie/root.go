package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"querygenie/internal/config"
	"querygenie/internal/logging"
)

var (
	cfgFile string
	v       = viper.New()
	cfg     *config.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "querygenie",
	Short: "QueryGenie - business insights generated and validated against your database",
	Long: `QueryGenie turns a job description into a handful of business questions,
each backed by a SQL query that has been executed against the configured
database, and summarizes what the results say.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(v, cfgFile)
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		logger, err = logging.New(cfg.Logging.Level, cfg.Logging.Format)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./querygenie.yaml)")

	// Database flags
	rootCmd.PersistentFlags().String("dsn", "", "database DSN or URL (or DATABASE_URL)")
	rootCmd.PersistentFlags().String("db-driver", "", "database driver (mysql, postgres, pgx, sqlite); inferred from the DSN when empty")

	// LLM flags
	rootCmd.PersistentFlags().String("llm-provider", "openai", "LLM provider (openai, anthropic, ollama)")
	rootCmd.PersistentFlags().String("llm-model", "", "model name (provider default when empty)")
	rootCmd.PersistentFlags().String("ollama-endpoint", "http://localhost:11434", "Ollama endpoint")

	// Logging flags
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "Log format (json, console)")

	// Bind flags to viper
	_ = v.BindPFlag("database.dsn", rootCmd.PersistentFlags().Lookup("dsn"))
	_ = v.BindPFlag("database.driver", rootCmd.PersistentFlags().Lookup("db-driver"))

	_ = v.BindPFlag("llm.provider", rootCmd.PersistentFlags().Lookup("llm-provider"))
	_ = v.BindPFlag("llm.model", rootCmd.PersistentFlags().Lookup("llm-model"))
	_ = v.BindPFlag("llm.ollama_endpoint", rootCmd.PersistentFlags().Lookup("ollama-endpoint"))

	_ = v.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}
