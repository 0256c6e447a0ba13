package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hairizuanbinnoorazman/cua-agent/logger"
	"github.com/hairizuanbinnoorazman/cua-agent/runner"
	"github.com/spf13/cobra"
)

var (
	// Version is the application version (set during build).
	Version = "dev"

	// Commit is the git commit hash (set during build).
	Commit = "unknown"

	// BuildDate is the build date (set during build).
	BuildDate = "unknown"
)

// ErrTaskFailed is returned by a local run whose task did not succeed.
var ErrTaskFailed = errors.New("task failed")

var rootCmd = &cobra.Command{
	Use:   "cuaagent",
	Short: "Run a Gemini computer-use task in a Kernel browser",
	Long: `Provisions a Kernel remote browser, lets a Gemini computer-use agent work through
one task in it and always deletes the browser afterwards. Without a subcommand the
task runs once and the exit status reports whether it succeeded.`,
	SilenceUsage: true,
	RunE:         runLocally,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("cuaagent %s (commit: %s, built: %s)\n", Version, Commit, BuildDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runLocally(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := LoadConfig("")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	return executeLocally(ctx, cfg, newLogger(cfg), buildRunner)
}

// executeLocally runs the task once. Credentials are checked before
// anything is built, so a misconfigured run never reaches the network.
func executeLocally(ctx context.Context, cfg *Config, log logger.Logger, build runnerBuilder) error {
	if err := cfg.Validate(); err != nil {
		log.Error(ctx, "configuration invalid", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}

	r, _, cleanup, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	log.Info(ctx, "running task", map[string]interface{}{
		"version": Version,
		"model":   cfg.Agent.Model,
	})

	res, err := r.Run(ctx, runner.Invocation{})
	if err != nil {
		log.Error(ctx, "task run failed", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}

	log.Info(ctx, "task result", map[string]interface{}{
		"success": res.Success,
		"result":  res.Result,
	})
	if !res.Success {
		return ErrTaskFailed
	}
	return nil
}
