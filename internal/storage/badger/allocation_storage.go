package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ferrum/internal/ferrors"
	"github.com/ternarybob/ferrum/internal/interfaces"
	"github.com/ternarybob/ferrum/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// AllocationStorage implements the AllocationStorage interface for Badger
type AllocationStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewAllocationStorage creates a new AllocationStorage instance
func NewAllocationStorage(db *BadgerDB, logger arbor.ILogger) interfaces.AllocationStorage {
	return &AllocationStorage{
		db:     db,
		logger: logger,
	}
}

func (s *AllocationStorage) SaveAllocation(ctx context.Context, alloc *models.Allocation) error {
	if alloc.ID == "" {
		return fmt.Errorf("allocation ID is required")
	}
	if err := s.db.Store().Upsert(alloc.ID, alloc); err != nil {
		return fmt.Errorf("failed to save allocation: %w", err)
	}
	return nil
}

func (s *AllocationStorage) GetAllocation(ctx context.Context, allocID string) (*models.Allocation, error) {
	var alloc models.Allocation
	if err := s.db.Store().Get(allocID, &alloc); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, ferrors.AllocationNotFound(allocID)
		}
		return nil, fmt.Errorf("failed to get allocation: %w", err)
	}
	return &alloc, nil
}

func (s *AllocationStorage) GetAllocationByNode(ctx context.Context, nodeID string) (*models.Allocation, error) {
	var allocs []models.Allocation
	if err := s.db.Store().Find(&allocs, badgerhold.Where("NodeID").Eq(nodeID)); err != nil {
		return nil, fmt.Errorf("failed to find allocation: %w", err)
	}
	if len(allocs) == 0 {
		return nil, ferrors.AllocationNotFound(nodeID)
	}
	return &allocs[0], nil
}

func (s *AllocationStorage) ListAllocations(ctx context.Context) ([]*models.Allocation, error) {
	var allocs []models.Allocation
	if err := s.db.Store().Find(&allocs, nil); err != nil {
		return nil, fmt.Errorf("failed to list allocations: %w", err)
	}

	result := make([]*models.Allocation, len(allocs))
	for i := range allocs {
		result[i] = &allocs[i]
	}
	return result, nil
}

func (s *AllocationStorage) DeleteAllocation(ctx context.Context, allocID string) error {
	if err := s.db.Store().Delete(allocID, &models.Allocation{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete allocation: %w", err)
	}
	return nil
}
