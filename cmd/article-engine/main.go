// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the article-engine CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/article-engine/internal/logging"
	"github.com/pdiddy/article-engine/internal/secrets"
	"github.com/pdiddy/article-engine/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the article-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "article-engine",
	Short: "Generate researched, reviewed long-form articles",
	Long: `article-engine turns a topic into a finished article. A run researches the
topic on the web, plans an outline, drafts and deepens each chapter, adds code
samples and illustrations, reviews every chapter against a score threshold,
and assembles Markdown and HTML with a references section.

Runs are archived in SQLite; use "runs" to inspect them. Supplementary notes
can be indexed with "knowledge" and referenced from a run.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./article-engine.yaml or ~/.config/article-engine/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "auto", "log format: console, json, auto")
	rootCmd.PersistentFlags().String("secrets-dir", ".secrets/", "directory holding one file per API key")
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file with OPENAI_API_KEY, IMAGE_API_KEY, SEARCH_API_KEY")

	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("article-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "article-engine"))
		}
	}

	viper.SetEnvPrefix("ARTICLE_ENGINE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig decodes the viper settings over the defaults, fills API keys
// from the secrets directory and dotenv file, and builds the logger.
func loadConfig(cmd *cobra.Command) (types.Config, *slog.Logger, error) {
	cfg := types.DefaultConfig()
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, nil, fmt.Errorf("decoding config: %w", err)
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return cfg, nil, err
	}

	secretsDir, _ := cmd.Flags().GetString("secrets-dir")
	dirSecrets, err := secrets.Load(secretsDir, logger)
	if err != nil {
		return cfg, nil, err
	}
	envFile, _ := cmd.Flags().GetString("env-file")
	envSecrets, err := secrets.LoadEnv(envFile)
	if err != nil {
		return cfg, nil, err
	}
	loaded := secrets.Merge(envSecrets, dirSecrets)
	if len(loaded) > 0 {
		keys := make([]string, 0, len(loaded))
		for k := range loaded {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		logger.Debug("secrets loaded", logging.Any("keys", keys))
	}
	secrets.Apply(&cfg, loaded)
	return cfg, logger, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
