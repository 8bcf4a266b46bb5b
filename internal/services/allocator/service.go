package allocator

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ferrum/internal/common"
	"github.com/ternarybob/ferrum/internal/ferrors"
	"github.com/ternarybob/ferrum/internal/interfaces"
	"github.com/ternarybob/ferrum/internal/models"
)

// Service allocates available nodes to flavor requests
type Service struct {
	storage  interfaces.StorageManager
	events   interfaces.EventService
	filters  []NodeFilter
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewService creates an allocator with the exact-match filter chain
func NewService(storage interfaces.StorageManager, events interfaces.EventService) *Service {
	logger := common.GetLogger()
	return &Service{
		storage: storage,
		events:  events,
		filters: []NodeFilter{
			&ExactCoreFilter{logger: logger},
			&ExactRAMFilter{logger: logger},
			&ExactDiskFilter{logger: logger},
		},
		validate: validator.New(),
		logger:   logger,
	}
}

// Allocate finds an available, unreserved node matching the flavor and
// records the allocation against it.
func (s *Service) Allocate(ctx context.Context, flavor *models.Flavor) (*models.Allocation, error) {
	if err := s.validate.Struct(flavor); err != nil {
		return nil, ferrors.InvalidParameterValue("invalid flavor: %v", err)
	}

	candidates, err := s.storage.NodeStorage().ListNodes(ctx, &interfaces.NodeListOptions{
		ProvisionState: string(models.ProvisionAvailable),
	})
	if err != nil {
		return nil, err
	}

	for _, node := range candidates {
		if node.Maintenance || node.IsReserved() {
			continue
		}
		if _, err := s.storage.AllocationStorage().GetAllocationByNode(ctx, node.ID); err == nil {
			continue // Already allocated
		}
		if !s.passesAll(node, flavor) {
			continue
		}

		alloc := models.NewAllocation(node.ID, flavor)
		if err := s.storage.AllocationStorage().SaveAllocation(ctx, alloc); err != nil {
			return nil, err
		}

		s.logger.Info().
			Str("allocation_id", alloc.ID).
			Str("node_id", node.ID).
			Str("flavor", flavor.Name).
			Msg("Allocated node to flavor")

		s.events.Publish(interfaces.Event{
			Type:      interfaces.EventNodeUpdated,
			NodeID:    node.ID,
			Timestamp: alloc.CreatedAt,
			Data: map[string]interface{}{
				"allocation_id": alloc.ID,
				"flavor":        flavor.Name,
			},
		})
		return alloc, nil
	}

	return nil, ferrors.NoFreeNode(flavor.Name)
}

// Deallocate removes an allocation
func (s *Service) Deallocate(ctx context.Context, allocID string) error {
	alloc, err := s.storage.AllocationStorage().GetAllocation(ctx, allocID)
	if err != nil {
		return err
	}

	if err := s.storage.AllocationStorage().DeleteAllocation(ctx, allocID); err != nil {
		return err
	}

	s.logger.Info().
		Str("allocation_id", allocID).
		Str("node_id", alloc.NodeID).
		Msg("Deallocated node")
	return nil
}

func (s *Service) passesAll(node *models.Node, flavor *models.Flavor) bool {
	for _, filter := range s.filters {
		if !filter.Passes(node, flavor) {
			return false
		}
	}
	return true
}
