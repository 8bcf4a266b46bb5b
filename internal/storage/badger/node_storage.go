package badger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ferrum/internal/ferrors"
	"github.com/ternarybob/ferrum/internal/interfaces"
	"github.com/ternarybob/ferrum/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// NodeStorage implements the NodeStorage interface for Badger
type NodeStorage struct {
	db     *BadgerDB
	logger arbor.ILogger

	// reserveMu serializes reservation changes so the check-and-set on
	// Node.Reservation is atomic within this conductor.
	reserveMu sync.Mutex
}

// NewNodeStorage creates a new NodeStorage instance
func NewNodeStorage(db *BadgerDB, logger arbor.ILogger) interfaces.NodeStorage {
	return &NodeStorage{
		db:     db,
		logger: logger,
	}
}

func (s *NodeStorage) SaveNode(ctx context.Context, node *models.Node) error {
	if node.ID == "" {
		return fmt.Errorf("node ID is required")
	}

	node.UpdatedAt = time.Now()
	if node.CreatedAt.IsZero() {
		node.CreatedAt = node.UpdatedAt
	}

	if err := s.db.Store().Upsert(node.ID, node); err != nil {
		return fmt.Errorf("failed to save node: %w", err)
	}
	return nil
}

func (s *NodeStorage) GetNode(ctx context.Context, nodeID string) (*models.Node, error) {
	var node models.Node
	if err := s.db.Store().Get(nodeID, &node); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, ferrors.NodeNotFound(nodeID)
		}
		return nil, fmt.Errorf("failed to get node: %w", err)
	}
	return &node, nil
}

func (s *NodeStorage) GetNodeByName(ctx context.Context, name string) (*models.Node, error) {
	var nodes []models.Node
	if err := s.db.Store().Find(&nodes, badgerhold.Where("Name").Eq(name)); err != nil {
		return nil, fmt.Errorf("failed to find node: %w", err)
	}
	if len(nodes) == 0 {
		return nil, ferrors.NodeNotFound(name)
	}
	return &nodes[0], nil
}

func (s *NodeStorage) ListNodes(ctx context.Context, opts *interfaces.NodeListOptions) ([]*models.Node, error) {
	var query *badgerhold.Query
	if opts != nil && opts.ProvisionState != "" {
		query = badgerhold.Where("ProvisionState").Eq(models.ProvisionState(opts.ProvisionState))
	}

	var nodes []models.Node
	if err := s.db.Store().Find(&nodes, query); err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	result := make([]*models.Node, 0, len(nodes))
	for i := range nodes {
		if opts != nil && opts.Maintenance != nil && nodes[i].Maintenance != *opts.Maintenance {
			continue
		}
		result = append(result, &nodes[i])
	}

	if opts != nil && opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return []*models.Node{}, nil
		}
		result = result[opts.Offset:]
	}
	if opts != nil && opts.Limit > 0 && opts.Limit < len(result) {
		result = result[:opts.Limit]
	}
	return result, nil
}

func (s *NodeStorage) DeleteNode(ctx context.Context, nodeID string) error {
	if err := s.db.Store().Delete(nodeID, &models.Node{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete node: %w", err)
	}
	return nil
}

// Reserve takes the exclusive task lock on a node
func (s *NodeStorage) Reserve(ctx context.Context, nodeID, holder string) (*models.Node, error) {
	s.reserveMu.Lock()
	defer s.reserveMu.Unlock()

	node, err := s.GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	if node.Reservation != "" && node.Reservation != holder {
		return nil, ferrors.NodeLocked(nodeID, node.Reservation)
	}

	node.Reservation = holder
	if err := s.SaveNode(ctx, node); err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("node_id", nodeID).
		Str("holder", holder).
		Msg("Reserved node")
	return node, nil
}

// Release drops the exclusive task lock when owned by holder
func (s *NodeStorage) Release(ctx context.Context, nodeID, holder string) error {
	s.reserveMu.Lock()
	defer s.reserveMu.Unlock()

	node, err := s.GetNode(ctx, nodeID)
	if err != nil {
		return err
	}

	if node.Reservation == "" {
		return nil
	}
	if node.Reservation != holder {
		return ferrors.NodeLocked(nodeID, node.Reservation)
	}

	node.Reservation = ""
	return s.SaveNode(ctx, node)
}

// ReleaseAll clears every reservation held by holder. Called on startup
// so locks left behind by an unclean shutdown do not wedge nodes.
func (s *NodeStorage) ReleaseAll(ctx context.Context, holder string) (int, error) {
	s.reserveMu.Lock()
	defer s.reserveMu.Unlock()

	var nodes []models.Node
	if err := s.db.Store().Find(&nodes, badgerhold.Where("Reservation").Eq(holder)); err != nil {
		return 0, fmt.Errorf("failed to find reserved nodes: %w", err)
	}

	released := 0
	for i := range nodes {
		nodes[i].Reservation = ""
		if err := s.SaveNode(ctx, &nodes[i]); err != nil {
			return released, err
		}
		released++
	}

	if released > 0 {
		s.logger.Info().
			Str("holder", holder).
			Int("count", released).
			Msg("Released stale node reservations")
	}
	return released, nil
}
