// Package agent relays a computer-use model's browser actions to a page until
// the model reports an answer or the step budget runs out.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hairizuanbinnoorazman/cua-agent/logger"
	"google.golang.org/genai"
)

const screenshotMIME = "image/png"

// Agent is a computer-use agent bound to one page.
type Agent struct {
	model        Model
	page         Page
	extractor    Extractor
	logger       logger.Logger
	waitDuration time.Duration
}

// Option configures an Agent.
type Option func(*Agent)

// WithExtractor lets the model call extract_page_content.
func WithExtractor(e Extractor) Option {
	return func(a *Agent) {
		a.extractor = e
	}
}

// WithWaitDuration overrides how long wait_5_seconds sleeps.
func WithWaitDuration(d time.Duration) Option {
	return func(a *Agent) {
		a.waitDuration = d
	}
}

// New creates an agent driving page with model.
func New(model Model, page Page, log logger.Logger, opts ...Option) *Agent {
	if log == nil {
		log = logger.Nop()
	}
	a := &Agent{
		model:        model,
		page:         page,
		logger:       log,
		waitDuration: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Execute runs the perception-action loop for task. Action failures are
// reported back to the model; model or screenshot failures end the run
// with ErrExecution.
func (a *Agent) Execute(ctx context.Context, task Task) (*Result, error) {
	if strings.TrimSpace(task.Instruction) == "" {
		return nil, fmt.Errorf("%w: instruction is empty", ErrExecution)
	}
	if task.MaxSteps <= 0 {
		return nil, fmt.Errorf("%w: max steps must be positive, got %d", ErrExecution, task.MaxSteps)
	}

	shot, err := a.page.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: initial screenshot: %v", ErrExecution, err)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(task.Instruction),
			genai.NewPartFromBytes(shot, screenshotMIME),
		}, genai.RoleUser),
	}

	result := &Result{Actions: []ActionRecord{}}
	for turn := 1; len(result.Actions) < task.MaxSteps; turn++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrExecution, err)
		}

		reply, err := a.model.Generate(ctx, contents)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrExecution, err)
		}
		if reply == nil {
			return nil, fmt.Errorf("%w: model returned an empty turn", ErrExecution)
		}
		contents = append(contents, reply)

		calls, text := splitReply(reply)
		if text != "" {
			result.Message = text
		}
		if len(calls) == 0 {
			result.Completed = true
			a.logger.Info(ctx, "agent finished", map[string]interface{}{
				"turns":   turn,
				"actions": len(result.Actions),
			})
			return result, nil
		}

		parts := make([]*genai.Part, 0, len(calls)+1)
		for _, call := range calls {
			if len(result.Actions) >= task.MaxSteps {
				break
			}
			record, response := a.relay(ctx, call)
			result.Actions = append(result.Actions, record)
			parts = append(parts, &genai.Part{FunctionResponse: response})
		}

		shot, err := a.page.Screenshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: screenshot: %v", ErrExecution, err)
		}
		parts = append(parts, genai.NewPartFromBytes(shot, screenshotMIME))
		contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
	}

	a.logger.Warn(ctx, "agent step budget exhausted", map[string]interface{}{
		"max_steps": task.MaxSteps,
	})
	return result, nil
}

// relay performs one function call and builds the function response for the model.
func (a *Agent) relay(ctx context.Context, call *genai.FunctionCall) (ActionRecord, *genai.FunctionResponse) {
	record := ActionRecord{Name: call.Name, Args: call.Args}

	extra, err := a.perform(ctx, call.Name, call.Args)
	if err != nil {
		record.Error = err.Error()
		a.logger.Warn(ctx, "agent action failed", map[string]interface{}{
			"action": call.Name,
			"error":  err.Error(),
		})
	} else {
		a.logger.Debug(ctx, "agent action performed", map[string]interface{}{
			"action": call.Name,
		})
	}

	response := map[string]interface{}{}
	for k, v := range extra {
		response[k] = v
	}
	if url, urlErr := a.page.URL(ctx); urlErr == nil {
		record.URL = url
		response["url"] = url
	}
	if record.Error != "" {
		response["error"] = record.Error
	}
	if _, ok := call.Args["safety_decision"]; ok {
		response["safety_acknowledgement"] = "true"
	}

	return record, &genai.FunctionResponse{
		ID:       call.ID,
		Name:     call.Name,
		Response: response,
	}
}

// splitReply separates function calls from the text of a model turn.
func splitReply(reply *genai.Content) ([]*genai.FunctionCall, string) {
	var calls []*genai.FunctionCall
	var texts []string
	for _, part := range reply.Parts {
		if part == nil {
			continue
		}
		if part.FunctionCall != nil {
			calls = append(calls, part.FunctionCall)
			continue
		}
		if part.Thought {
			continue
		}
		if t := strings.TrimSpace(part.Text); t != "" {
			texts = append(texts, t)
		}
	}
	return calls, strings.Join(texts, "\n")
}
