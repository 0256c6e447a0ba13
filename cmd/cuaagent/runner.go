package main

import (
	"context"
	"fmt"

	"github.com/hairizuanbinnoorazman/cua-agent/artifact"
	"github.com/hairizuanbinnoorazman/cua-agent/automation"
	"github.com/hairizuanbinnoorazman/cua-agent/logger"
	"github.com/hairizuanbinnoorazman/cua-agent/remotebrowser"
	"github.com/hairizuanbinnoorazman/cua-agent/runner"
	"github.com/hairizuanbinnoorazman/cua-agent/taskrun"
)

// taskRunner is the part of *runner.Runner the entry points use.
type taskRunner interface {
	Run(ctx context.Context, inv runner.Invocation) (runner.Result, error)
}

// runnerBuilder constructs the task runner and a cleanup func for whatever
// it opened.
type runnerBuilder func(ctx context.Context, cfg *Config, log logger.Logger) (taskRunner, taskrun.Store, func(), error)

// buildRunner wires the Kernel provider, the automation session factory and
// the optional run history and artifact sink into a Runner.
func buildRunner(ctx context.Context, cfg *Config, log logger.Logger) (taskRunner, taskrun.Store, func(), error) {
	cleanup := func() {}
	var opts []runner.Option

	var store taskrun.Store
	if cfg.History.Driver != "" {
		db, err := taskrun.Open(taskrun.DBConfig{
			Driver:       cfg.History.Driver,
			DSN:          cfg.History.DSN,
			MaxOpenConns: cfg.History.MaxOpenConns,
			MaxIdleConns: cfg.History.MaxIdleConns,
		})
		if err != nil {
			return nil, nil, cleanup, fmt.Errorf("failed to open run history: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, cleanup, fmt.Errorf("failed to get database instance: %w", err)
		}
		cleanup = func() { sqlDB.Close() }

		store = taskrun.NewGormStore(db, log)
		opts = append(opts, runner.WithHistory(store))

		log.Info(ctx, "run history enabled", map[string]interface{}{
			"driver": cfg.History.Driver,
		})
	}

	sink, err := artifact.New(ctx, artifact.Config{
		Type:          cfg.Artifacts.Type,
		BaseDir:       cfg.Artifacts.BaseDir,
		S3Bucket:      cfg.Artifacts.S3Bucket,
		S3Region:      cfg.Artifacts.S3Region,
		PresignExpiry: cfg.Artifacts.S3PresignExpiry,
	})
	if err != nil {
		cleanup()
		return nil, nil, func() {}, fmt.Errorf("failed to initialize artifacts: %w", err)
	}
	if sink != nil {
		opts = append(opts, runner.WithArtifacts(sink))
		log.Info(ctx, "artifacts enabled", map[string]interface{}{
			"type": cfg.Artifacts.Type,
		})
	}

	provider := remotebrowser.NewKernelProvider(cfg.Credentials.KernelAPIKey, log)

	newSession := func(b *remotebrowser.Session) runner.Session {
		return automation.NewSession(automation.Options{
			CDPURL:        b.CDPURL,
			Driver:        cfg.Automation.Driver,
			SettleTimeout: cfg.Automation.DOMSettleTimeout,
			ExtractModel:  cfg.Automation.Model,
			OpenAIAPIKey:  cfg.Credentials.OpenAIAPIKey,
			OpenAIBaseURL: cfg.Credentials.OpenAIBaseURL,
		}, log)
	}

	r := runner.New(runner.Config{
		StartURL:      cfg.Task.StartURL,
		Instruction:   cfg.Task.Instruction,
		MaxSteps:      cfg.Agent.MaxSteps,
		Stealth:       cfg.Browser.Stealth,
		AgentProvider: cfg.Agent.Provider,
		AgentModel:    cfg.Agent.Model,
		AgentAPIKey:   cfg.Credentials.GoogleAPIKey,
	}, provider, newSession, log, opts...)

	return r, store, cleanup, nil
}

func newLogger(cfg *Config) logger.Logger {
	return logger.NewLogrusLoggerWithOptions(logger.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
}
