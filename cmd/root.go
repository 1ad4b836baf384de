package main

import (
	"fmt"
	"os"

	"github.com/deepgram/wayfinder/internal/config"
	"github.com/deepgram/wayfinder/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	verbose  bool
	jsonLogs bool
	cfg      *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wayfinder",
	Short: "Chat with the Wayfinder assistant and run place searches",
	Long: `Wayfinder is a streaming conversation client for the Wayfinder assistant,
and the reference backend it talks to.

Quick Start:
  wayfinder serve                 # Run the backend on $PORT
  wayfinder chat                  # Start an interactive chat
  wayfinder search "ramen"        # Run an enhanced search with progress
  wayfinder history               # Print this session's history
  wayfinder health                # Check the backend`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger.Init(os.Stderr, !jsonLogs)
		if verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}

		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Write logs as JSON lines")
}
