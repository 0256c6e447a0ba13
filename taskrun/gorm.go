package taskrun

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/cua-agent/logger"
	"gorm.io/gorm"
)

// GormStore implements the Store interface using GORM. It works against the
// sqlite and mysql dialects opened by Open.
type GormStore struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewGormStore creates a new GORM-backed task run store.
func NewGormStore(db *gorm.DB, log logger.Logger) *GormStore {
	return &GormStore{
		db:     db,
		logger: log,
	}
}

// Create creates a new task run in the database.
func (s *GormStore) Create(ctx context.Context, r *Run) error {
	if r.State != "" && !r.State.IsValid() {
		return ErrInvalidState
	}

	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		s.logger.Error(ctx, "failed to create task run", map[string]interface{}{
			"error":         err.Error(),
			"invocation_id": r.InvocationID,
		})
		return err
	}

	s.logger.Debug(ctx, "task run created", map[string]interface{}{
		"run_id":        r.ID.String(),
		"invocation_id": r.InvocationID,
	})

	return nil
}

// GetByID retrieves a task run by its ID.
func (s *GormStore) GetByID(ctx context.Context, id uuid.UUID) (*Run, error) {
	var r Run
	err := s.db.WithContext(ctx).
		Where("id = ?", id).
		First(&r).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		s.logger.Error(ctx, "failed to get task run by ID", map[string]interface{}{
			"error":  err.Error(),
			"run_id": id.String(),
		})
		return nil, err
	}

	return &r, nil
}

// Update applies setters to a task run and saves it.
func (s *GormStore) Update(ctx context.Context, id uuid.UUID, setters ...UpdateSetter) error {
	r, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	for _, setter := range setters {
		if err := setter(r); err != nil {
			return err
		}
	}

	if err := s.db.WithContext(ctx).Save(r).Error; err != nil {
		s.logger.Error(ctx, "failed to update task run", map[string]interface{}{
			"error":  err.Error(),
			"run_id": id.String(),
		})
		return err
	}

	return nil
}

// List retrieves a paginated list of task runs, newest first.
func (s *GormStore) List(ctx context.Context, limit, offset int) ([]*Run, error) {
	var runs []*Run
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&runs).Error

	if err != nil {
		s.logger.Error(ctx, "failed to list task runs", map[string]interface{}{
			"error":  err.Error(),
			"limit":  limit,
			"offset": offset,
		})
		return nil, err
	}

	return runs, nil
}

// Count returns the total number of task runs.
func (s *GormStore) Count(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Run{}).Count(&count).Error; err != nil {
		s.logger.Error(ctx, "failed to count task runs", map[string]interface{}{
			"error": err.Error(),
		})
		return 0, err
	}
	return int(count), nil
}

// ListByInvocation returns every run started for an action invocation.
func (s *GormStore) ListByInvocation(ctx context.Context, invocationID string) ([]*Run, error) {
	var runs []*Run
	err := s.db.WithContext(ctx).
		Where("invocation_id = ?", invocationID).
		Order("created_at DESC").
		Find(&runs).Error

	if err != nil {
		s.logger.Error(ctx, "failed to list task runs by invocation", map[string]interface{}{
			"error":         err.Error(),
			"invocation_id": invocationID,
		})
		return nil, err
	}

	return runs, nil
}
