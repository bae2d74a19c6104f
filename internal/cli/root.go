// Package cli is the cobra command surface. It owns flag parsing, env
// bootstrap and operator output; the pipeline underneath never reads
// flags or prompts for input.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "newsbridge",
	Short: "Newsbridge - campus news discovery and localization pipeline",
	Long: `Newsbridge discovers news from configured campus sources, verifies
recency and audience relevance with an AI model, writes an English
working summary, localizes it into a publishable Chinese report, and
ranks the merged results across institutions.

The output is a single JSON report per job covering the configured
date window.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("newsbridge v0.3.1")
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.newsbridge/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig loads .env files, the config file and NEWSBRIDGE_* env vars
func initConfig() {
	// Local .env is a development convenience; absence is not an error
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		viper.AddConfigPath(home + "/.newsbridge")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("NEWSBRIDGE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if cfgFile == "" {
			cfgFile = viper.ConfigFileUsed()
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}
}

// newLogger builds the job logger. Verbose runs get debug-level stage
// detail; normal runs stay at info.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
