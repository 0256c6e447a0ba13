// Package runner executes one computer-use task against a freshly
// provisioned remote browser and always tears the browser down again.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hairizuanbinnoorazman/cua-agent/agent"
	"github.com/hairizuanbinnoorazman/cua-agent/artifact"
	"github.com/hairizuanbinnoorazman/cua-agent/logger"
	"github.com/hairizuanbinnoorazman/cua-agent/remotebrowser"
	"github.com/hairizuanbinnoorazman/cua-agent/taskrun"
)

// Session is an automation session attached to a remote browser.
type Session interface {
	Init(ctx context.Context) error
	Page() agent.Page
	BuildAgent(ctx context.Context, spec agent.Spec) (agent.Executor, error)
	Close() error
}

// SessionFactory creates an automation session for an acquired remote browser.
type SessionFactory func(browser *remotebrowser.Session) Session

// Config holds the task and agent settings shared by every run.
type Config struct {
	StartURL    string
	Instruction string
	MaxSteps    int
	Stealth     bool

	AgentProvider string
	AgentModel    string
	AgentAPIKey   string
}

// Invocation is one request to run the task. Zero fields fall back to Config.
type Invocation struct {
	InvocationID string
	Instruction  string
	StartURL     string
	MaxSteps     int
}

// Result is the normalised outcome of a run.
type Result struct {
	Success bool   `json:"success"`
	Result  string `json:"result"`
}

// Runner drives the provisioning, session, execution and teardown of a task.
type Runner struct {
	cfg        Config
	provider   remotebrowser.Provider
	newSession SessionFactory
	history    taskrun.Store
	artifacts  artifact.Sink
	logger     logger.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithHistory records every run and its state transitions in store.
func WithHistory(store taskrun.Store) Option {
	return func(r *Runner) {
		r.history = store
	}
}

// WithArtifacts saves the result text and final screenshot of successful runs.
func WithArtifacts(sink artifact.Sink) Option {
	return func(r *Runner) {
		r.artifacts = sink
	}
}

// New creates a Runner.
func New(cfg Config, provider remotebrowser.Provider, newSession SessionFactory, log logger.Logger, opts ...Option) *Runner {
	if log == nil {
		log = logger.Nop()
	}
	r := &Runner{
		cfg:        cfg,
		provider:   provider,
		newSession: newSession,
		logger:     log.WithField("component", "runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the task once. An error is returned only when no remote
// browser could be acquired; every later failure yields an unsuccessful
// Result. The remote browser is released exactly once before Run returns.
func (r *Runner) Run(ctx context.Context, inv Invocation) (res Result, err error) {
	task, startURL := r.resolve(inv)
	log := r.logger.WithField("invocation_id", inv.InvocationID)

	rec := r.startRecord(ctx, inv, task)
	r.record(ctx, rec, taskrun.SetState(taskrun.StateProvisioning))

	browser, err := r.provider.Acquire(ctx, remotebrowser.AcquireOptions{
		InvocationID: inv.InvocationID,
		Stealth:      r.cfg.Stealth,
	})
	if err != nil {
		log.Error(ctx, "failed to acquire remote browser", map[string]interface{}{
			"error": err.Error(),
		})
		r.record(ctx, rec, taskrun.SetError(err), taskrun.SetFinished(false, ""))
		if !errors.Is(err, remotebrowser.ErrProvisioning) {
			err = fmt.Errorf("%w: %v", remotebrowser.ErrProvisioning, err)
		}
		return Result{}, err
	}

	log = log.WithField("session_id", browser.ID)
	log.Info(ctx, "remote browser acquired", map[string]interface{}{
		"live_view_url": browser.LiveViewURL,
	})
	r.record(ctx, rec,
		taskrun.SetSession(browser.ID, browser.LiveViewURL),
		taskrun.SetState(taskrun.StateSessionInit),
	)

	var session Session
	var runErr error
	defer func() {
		tctx := context.WithoutCancel(ctx)
		r.record(tctx, rec, taskrun.SetState(taskrun.StateFinalizing))

		teardownErr := r.teardown(tctx, log, browser.ID, session)
		r.record(tctx, rec,
			taskrun.SetError(runErr),
			taskrun.SetTeardownError(teardownErr),
			taskrun.SetFinished(res.Success, res.Result),
		)
		log.Info(tctx, "task finished", map[string]interface{}{
			"success": res.Success,
		})
	}()

	session = r.newSession(browser)
	res, runErr = r.execute(ctx, log, rec, session, task, startURL)
	if runErr != nil {
		log.Error(ctx, "task failed", map[string]interface{}{
			"error": runErr.Error(),
		})
		return Result{}, nil
	}
	return res, nil
}

// execute runs the session-init and executing states.
func (r *Runner) execute(ctx context.Context, log logger.Logger, rec *taskrun.Run, session Session, task agent.Task, startURL string) (Result, error) {
	if err := session.Init(ctx); err != nil {
		return Result{}, err
	}
	page := session.Page()
	if page == nil {
		return Result{}, errors.New("automation session has no page")
	}

	pageURL, err := page.URL(ctx)
	if err != nil {
		log.Warn(ctx, "failed to read current page url", map[string]interface{}{
			"error": err.Error(),
		})
		pageURL = ""
	}
	executor, err := session.BuildAgent(ctx, agent.Spec{
		Provider:     r.cfg.AgentProvider,
		Model:        r.cfg.AgentModel,
		Instructions: agent.Instructions(pageURL),
		APIKey:       r.cfg.AgentAPIKey,
	})
	if err != nil {
		return Result{}, err
	}

	r.record(ctx, rec, taskrun.SetState(taskrun.StateExecuting))
	if err := page.Goto(ctx, startURL); err != nil {
		return Result{}, fmt.Errorf("%w: navigate to %s: %v", agent.ErrExecution, startURL, err)
	}

	out, err := executor.Execute(ctx, task)
	if err != nil {
		return Result{}, err
	}
	message, err := normalize(out)
	if err != nil {
		return Result{}, err
	}
	log.Info(ctx, "agent result", map[string]interface{}{
		"message":   message,
		"completed": out.Completed,
		"actions":   len(out.Actions),
	})

	r.saveArtifacts(ctx, log, rec, page, message)
	return Result{Success: true, Result: message}, nil
}

// teardown closes the automation session and releases the remote browser.
// Both steps are always attempted.
func (r *Runner) teardown(ctx context.Context, log logger.Logger, sessionID string, session Session) error {
	var errs []error
	if session != nil {
		if err := session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close automation session: %w", err))
		}
	}
	if err := r.provider.Release(ctx, sessionID); err != nil {
		errs = append(errs, fmt.Errorf("release remote browser: %w", err))
	}

	err := errors.Join(errs...)
	if err != nil {
		log.Warn(ctx, "teardown failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return err
}

func (r *Runner) resolve(inv Invocation) (agent.Task, string) {
	task := agent.Task{Instruction: r.cfg.Instruction, MaxSteps: r.cfg.MaxSteps}
	if strings.TrimSpace(inv.Instruction) != "" {
		task.Instruction = inv.Instruction
	}
	if inv.MaxSteps > 0 {
		task.MaxSteps = inv.MaxSteps
	}
	startURL := r.cfg.StartURL
	if inv.StartURL != "" {
		startURL = inv.StartURL
	}
	return task, startURL
}

func normalize(out *agent.Result) (string, error) {
	if out == nil {
		return "", fmt.Errorf("%w: no result", agent.ErrUnusableResult)
	}
	if strings.TrimSpace(out.Message) == "" {
		return "", fmt.Errorf("%w: empty message", agent.ErrUnusableResult)
	}
	return out.Message, nil
}
