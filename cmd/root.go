// Package cmd is the reference host application: a small cobra CLI that
// drives the runtime for manual testing. The runtime itself has no CLI
// surface — an IDE frontend would use internal/transport
// or embed internal/agent directly.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/agentrt/internal/crashlog"
)

// Version is set at build time via -ldflags "-X github.com/nextlevelbuilder/agentrt/cmd.Version=v1.0.0"
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "agentrt",
	Short: "agentrt — local agentic chat runtime",
	Long:  "agentrt drives a local GGUF model through a bounded agentic loop with sandboxed tools: files, terminal, git, web, browser, and memory.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.agentrt/config.json5 or $AGENTRT_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("agentrt", Version)
		},
	}
}

// Execute runs the CLI. The deferred recover is the process's only panic
// catcher: it writes a crash log and exits non-zero.
func Execute() {
	defer func() {
		if p := recover(); p != nil {
			path := crashlog.Write(p)
			fmt.Fprintf(os.Stderr, "fatal error; crash log written to %s\n", path)
			os.Exit(2)
		}
	}()

	initLogging()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogging maps LOG_LEVEL (default info; debug enables per-iteration
// prompt dumps) and the -v flag onto slog.
func initLogging() {
	level := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
