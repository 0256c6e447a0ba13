package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hairizuanbinnoorazman/cua-agent/action"
	"github.com/hairizuanbinnoorazman/cua-agent/logger"
	"github.com/spf13/cobra"
)

var configFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the task as a remote action over HTTP",
	RunE:  runAsRemoteAction,
}

func init() {
	serveCmd.Flags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.AddCommand(serveCmd)
}

func runAsRemoteAction(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := newLogger(cfg)
	log.Info(ctx, "starting server", map[string]interface{}{
		"version": Version,
		"commit":  Commit,
		"date":    BuildDate,
	})

	if err := cfg.Validate(); err != nil {
		return err
	}

	actions, cleanup, err := newActionHandler(ctx, cfg, log, buildRunner)
	if err != nil {
		return err
	}
	defer cleanup()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := newActionServer(cfg, actions, log)
	go func() {
		log.Info(ctx, "server listening", map[string]interface{}{
			"address": addr,
			"app":     cfg.App.Name,
			"action":  cfg.App.Action,
		})
		if err := srv.serve(ln); err != nil {
			log.Error(ctx, "server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info(ctx, "shutting down server", nil)
	srv.shutdown(ctx, cfg.Server.ShutdownTimeout)
	log.Info(ctx, "server stopped", nil)
	return nil
}

// actionServer is the HTTP server for remote actions. Requests run under a
// root context that shutdown cancels once the grace period is over.
type actionServer struct {
	http    *http.Server
	actions *action.Server
	cancel  context.CancelFunc
	logger  logger.Logger
}

func newActionServer(cfg *Config, actions *action.Server, log logger.Logger) *actionServer {
	root, cancel := context.WithCancel(context.Background())
	return &actionServer{
		http: &http.Server{
			Handler:      actions.Handler(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			BaseContext:  func(net.Listener) context.Context { return root },
		},
		actions: actions,
		cancel:  cancel,
		logger:  log,
	}
}

func (s *actionServer) serve(ln net.Listener) error {
	if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// shutdown stops accepting requests and waits up to timeout for in-flight
// actions. Actions still running after that are cancelled, and shutdown
// waits for them to return so every remote browser is released.
func (s *actionServer) shutdown(ctx context.Context, timeout time.Duration) {
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn(ctx, "grace period over, cancelling in-flight actions", map[string]interface{}{
			"error": err.Error(),
		})
	}
	s.cancel()
	s.actions.Wait()
}

// newActionHandler registers the task under the configured app and action
// names on a new action server.
func newActionHandler(ctx context.Context, cfg *Config, log logger.Logger, build runnerBuilder) (*action.Server, func(), error) {
	r, store, cleanup, err := build(ctx, cfg, log)
	if err != nil {
		return nil, func() {}, err
	}

	var opts []action.ServerOption
	if store != nil {
		opts = append(opts, action.WithRunHistory(store))
	}

	srv := action.NewServer(log, cfg.Server.MaxConcurrentActions, opts...)
	srv.Register(action.NewApp(cfg.App.Name).Action(cfg.App.Action, action.TaskHandler(r)))

	return srv, cleanup, nil
}
