package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hairizuanbinnoorazman/cua-agent/runner"
)

// ErrInvalidPayload is returned when an action body cannot be decoded.
var ErrInvalidPayload = errors.New("invalid task payload")

// TaskRunner runs the computer-use task.
type TaskRunner interface {
	Run(ctx context.Context, inv runner.Invocation) (runner.Result, error)
}

// TaskPayload optionally overrides the configured task.
type TaskPayload struct {
	InvocationID string `json:"invocation_id,omitempty"`
	Instruction  string `json:"instruction,omitempty"`
	StartURL     string `json:"start_url,omitempty"`
	MaxSteps     int    `json:"max_steps,omitempty"`
}

// TaskHandler adapts r into an action handler returning {success, result}.
func TaskHandler(r TaskRunner) Handler {
	return func(ctx context.Context, ic InvocationContext, payload json.RawMessage) (interface{}, error) {
		var p TaskPayload
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &p); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
			}
		}
		if p.MaxSteps < 0 {
			return nil, fmt.Errorf("%w: max_steps must not be negative", ErrInvalidPayload)
		}

		res, err := r.Run(ctx, runner.Invocation{
			InvocationID: ic.InvocationID,
			Instruction:  p.Instruction,
			StartURL:     p.StartURL,
			MaxSteps:     p.MaxSteps,
		})
		if err != nil {
			return nil, err
		}
		return res, nil
	}
}
