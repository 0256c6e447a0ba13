package agent

import (
	"context"
	"errors"
)

// ProviderGoogle selects the Gemini computer-use model.
const ProviderGoogle = "google"

var (
	// ErrExecution is returned when the agent loop fails.
	ErrExecution = errors.New("agent execution failed")

	// ErrUnsupportedProvider is returned when an agent is requested for an unknown model provider.
	ErrUnsupportedProvider = errors.New("unsupported agent provider")

	// ErrUnusableResult is returned when an agent finishes without anything to report.
	ErrUnusableResult = errors.New("agent returned an unusable result")
)

// Spec describes the agent to build.
type Spec struct {
	Provider string

	// Model is the provider's model id, e.g. "gemini-2.5-computer-use-preview-10-2025".
	Model string

	// Instructions is the system prompt. It should describe the page the
	// agent is on at build time.
	Instructions string

	APIKey string
}

// Task is one natural-language instruction with an action budget.
type Task struct {
	Instruction string

	// MaxSteps bounds the number of browser actions the agent may take.
	MaxSteps int
}

// Result is what the agent reports when it stops.
type Result struct {
	// Message is the model's final free-text answer.
	Message string `json:"message"`

	// Completed is false when the agent stopped because MaxSteps ran out.
	Completed bool `json:"completed"`

	Actions []ActionRecord `json:"actions"`
}

// ActionRecord is one relayed browser action.
type ActionRecord struct {
	Name  string                 `json:"name"`
	Args  map[string]interface{} `json:"args,omitempty"`
	URL   string                 `json:"url,omitempty"`
	Error string                 `json:"error,omitempty"`
}

// Executor runs tasks. It is the handle callers get back from building an agent.
type Executor interface {
	Execute(ctx context.Context, task Task) (*Result, error)
}

// Page is the browser surface the agent drives. Coordinates are CSS pixels.
type Page interface {
	URL(ctx context.Context) (string, error)
	Goto(ctx context.Context, url string) error
	GoBack(ctx context.Context) error
	GoForward(ctx context.Context) error
	Screenshot(ctx context.Context) ([]byte, error)
	Viewport(ctx context.Context) (width, height int, err error)
	Click(ctx context.Context, x, y int) error
	Hover(ctx context.Context, x, y int) error
	Type(ctx context.Context, text string) error

	// Press sends a key combination, e.g. Press(ctx, "Control", "a").
	Press(ctx context.Context, keys ...string) error

	Scroll(ctx context.Context, x, y, deltaX, deltaY int) error
	Drag(ctx context.Context, fromX, fromY, toX, toY int) error

	// Text returns the visible text of the page.
	Text(ctx context.Context) (string, error)
}

// Extractor answers questions about the current page using a page-understanding model.
type Extractor interface {
	Extract(ctx context.Context, instruction string) (string, error)
}
