package taskrun

import (
	"context"

	"github.com/google/uuid"
)

type Store interface {
	Create(ctx context.Context, run *Run) error
	GetByID(ctx context.Context, id uuid.UUID) (*Run, error)
	Update(ctx context.Context, id uuid.UUID, setters ...UpdateSetter) error
	List(ctx context.Context, limit, offset int) ([]*Run, error)
	Count(ctx context.Context) (int, error)
	ListByInvocation(ctx context.Context, invocationID string) ([]*Run, error)
}

type UpdateSetter func(*Run) error
