package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ferrum/internal/ferrors"
	"github.com/ternarybob/ferrum/internal/interfaces"
	"github.com/ternarybob/ferrum/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// TaskStorage implements the TaskStorage interface for Badger
type TaskStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTaskStorage creates a new TaskStorage instance
func NewTaskStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TaskStorage {
	return &TaskStorage{
		db:     db,
		logger: logger,
	}
}

func (s *TaskStorage) SaveTask(ctx context.Context, record *models.TaskRecord) error {
	if record.ID == "" {
		return fmt.Errorf("task ID is required")
	}
	if err := s.db.Store().Upsert(record.ID, record); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

func (s *TaskStorage) GetTask(ctx context.Context, taskID string) (*models.TaskRecord, error) {
	var record models.TaskRecord
	if err := s.db.Store().Get(taskID, &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, ferrors.TaskNotFound(taskID)
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &record, nil
}

func (s *TaskStorage) ListTasksByNode(ctx context.Context, nodeID string) ([]*models.TaskRecord, error) {
	var records []models.TaskRecord
	if err := s.db.Store().Find(&records, badgerhold.Where("NodeID").Eq(nodeID)); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return taskPointers(records), nil
}

func (s *TaskStorage) ListTasksByStatus(ctx context.Context, status models.TaskStatus) ([]*models.TaskRecord, error) {
	var records []models.TaskRecord
	if err := s.db.Store().Find(&records, badgerhold.Where("Status").Eq(status)); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return taskPointers(records), nil
}

// UpdateTaskStatus moves a task through its lifecycle, stamping the
// start and finish times as it goes.
func (s *TaskStorage) UpdateTaskStatus(ctx context.Context, taskID string, status models.TaskStatus, errMsg string) error {
	record, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	now := time.Now()
	record.Status = status
	record.Error = errMsg
	record.Heartbeat = now

	switch status {
	case models.TaskStatusRunning:
		if record.StartedAt == nil {
			record.StartedAt = &now
		}
	case models.TaskStatusCompleted, models.TaskStatusFailed, models.TaskStatusCancelled:
		record.FinishedAt = &now
	}

	return s.SaveTask(ctx, record)
}

func (s *TaskStorage) TouchHeartbeat(ctx context.Context, taskID string) error {
	record, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	record.Heartbeat = time.Now()
	return s.SaveTask(ctx, record)
}

// GetStaleTasks returns running tasks whose heartbeat stopped
func (s *TaskStorage) GetStaleTasks(ctx context.Context, maxAgeMinutes int) ([]*models.TaskRecord, error) {
	running, err := s.ListTasksByStatus(ctx, models.TaskStatusRunning)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-time.Duration(maxAgeMinutes) * time.Minute)
	var stale []*models.TaskRecord
	for _, record := range running {
		if record.Heartbeat.Before(cutoff) {
			stale = append(stale, record)
		}
	}
	return stale, nil
}

func taskPointers(records []models.TaskRecord) []*models.TaskRecord {
	result := make([]*models.TaskRecord, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result
}
