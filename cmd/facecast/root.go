package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/teslashibe/go-facecast/internal/config"
	"github.com/teslashibe/go-facecast/internal/log"
)

// Version is the application version.
const Version = "0.3.0"

var (
	// configPath is the settings file; empty uses config.DefaultPath.
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "facecast",
	Short:         "Stream tracked faces and eye state over UDP",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if logLevel == "" {
			logLevel = config.LogLevel()
		}
		log.Init(logLevel)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("facecast v" + Version)
	},
}

// Execute runs the command tree with a context cancelled on SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "settings file (default: $FACECAST_CONFIG or ~/.config/facecast/settings.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (default: $LOG_LEVEL or info)")
	rootCmd.AddCommand(versionCmd)
}
