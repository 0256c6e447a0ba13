// Package action exposes named task handlers as remotely invocable actions.
package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrActionNotFound is returned when invoking an action that was never registered.
	ErrActionNotFound = errors.New("action not found")

	// ErrAppNotFound is returned when a request names an unknown app.
	ErrAppNotFound = errors.New("app not found")
)

// InvocationContext identifies one call of an action.
type InvocationContext struct {
	InvocationID string `json:"invocation_id"`
	AppName      string `json:"app_name"`
	ActionName   string `json:"action_name"`
}

// Handler runs an action. payload is the raw JSON body, possibly empty.
type Handler func(ctx context.Context, ic InvocationContext, payload json.RawMessage) (interface{}, error)

// App is a named set of actions.
type App struct {
	name string

	mu      sync.RWMutex
	actions map[string]Handler
}

// NewApp creates an app with no actions.
func NewApp(name string) *App {
	return &App{
		name:    name,
		actions: make(map[string]Handler),
	}
}

func (a *App) Name() string {
	return a.name
}

// Action registers h under name, replacing any previous handler.
func (a *App) Action(name string, h Handler) *App {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions[name] = h
	return a
}

// Actions lists registered action names in order.
func (a *App) Actions() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.actions))
	for name := range a.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether an action is registered under name.
func (a *App) Has(name string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.actions[name]
	return ok
}

// Invoke runs the named action.
func (a *App) Invoke(ctx context.Context, actionName string, ic InvocationContext, payload json.RawMessage) (interface{}, error) {
	a.mu.RLock()
	h, ok := a.actions[actionName]
	a.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrActionNotFound, a.name, actionName)
	}

	ic.AppName = a.name
	ic.ActionName = actionName
	return h(ctx, ic, payload)
}
