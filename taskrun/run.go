// Package taskrun records each task run and the states it passes through.
package taskrun

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrRunNotFound        = errors.New("task run not found")
	ErrInvalidState       = errors.New("invalid task run state")
	ErrInvalidTransition  = errors.New("invalid task run state transition")
	ErrRunAlreadyFinished = errors.New("task run already finished")
)

// State is a Task Runner state.
type State string

const (
	StateIdle         State = "idle"
	StateProvisioning State = "provisioning"
	StateSessionInit  State = "session_init"
	StateExecuting    State = "executing"
	StateFinalizing   State = "finalizing"
	StateDone         State = "done"
)

func (s State) IsValid() bool {
	switch s {
	case StateIdle, StateProvisioning, StateSessionInit, StateExecuting, StateFinalizing, StateDone:
		return true
	}
	return false
}

// next lists the states reachable from each state.
var next = map[State][]State{
	StateIdle:         {StateProvisioning},
	StateProvisioning: {StateSessionInit, StateDone},
	StateSessionInit:  {StateExecuting, StateFinalizing},
	StateExecuting:    {StateFinalizing},
	StateFinalizing:   {StateDone},
}

// CanTransition reports whether a run in s may move to to.
func (s State) CanTransition(to State) bool {
	for _, allowed := range next[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

type Run struct {
	ID            uuid.UUID  `json:"id" gorm:"type:char(36);primaryKey"`
	InvocationID  string     `json:"invocation_id,omitempty" gorm:"type:varchar(128);index:idx_task_runs_invocation_id"`
	SessionID     string     `json:"session_id,omitempty" gorm:"type:varchar(128)"`
	LiveViewURL   string     `json:"live_view_url,omitempty" gorm:"type:text"`
	Instruction   string     `json:"instruction" gorm:"type:text"`
	State         State      `json:"state" gorm:"type:varchar(20);not null;default:'idle'"`
	Success       bool       `json:"success"`
	Result        string     `json:"result" gorm:"type:text"`
	Error         string     `json:"error,omitempty" gorm:"type:text"`
	TeardownError string     `json:"teardown_error,omitempty" gorm:"type:text"`
	ArtifactURL   string     `json:"artifact_url,omitempty" gorm:"type:text"`
	StartTime     *time.Time `json:"start_time,omitempty"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	Duration      *int64     `json:"duration,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (Run) TableName() string {
	return "task_runs"
}

func (r *Run) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.State == "" {
		r.State = StateIdle
	}
	return nil
}

// Transition moves the run to state. Leaving idle stamps the start time.
func (r *Run) Transition(state State) error {
	if !state.IsValid() {
		return ErrInvalidState
	}
	if r.State == StateDone {
		return ErrRunAlreadyFinished
	}
	if !r.State.CanTransition(state) {
		return ErrInvalidTransition
	}
	if r.State == StateIdle {
		now := time.Now()
		r.StartTime = &now
	}
	r.State = state
	return nil
}

// Finish marks the run done with its verdict.
func (r *Run) Finish(success bool, result string) error {
	if err := r.Transition(StateDone); err != nil {
		return err
	}
	now := time.Now()
	r.Success = success
	r.Result = result
	r.EndTime = &now
	if r.StartTime != nil {
		duration := now.Sub(*r.StartTime).Milliseconds()
		r.Duration = &duration
	}
	return nil
}
