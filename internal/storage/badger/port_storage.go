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

// PortStorage implements the PortStorage interface for Badger
type PortStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewPortStorage creates a new PortStorage instance
func NewPortStorage(db *BadgerDB, logger arbor.ILogger) interfaces.PortStorage {
	return &PortStorage{
		db:     db,
		logger: logger,
	}
}

// SavePort stores a port. MAC addresses are unique across all nodes,
// saving a port with another port's address is a conflict.
func (s *PortStorage) SavePort(ctx context.Context, port *models.Port) error {
	if port.ID == "" {
		return fmt.Errorf("port ID is required")
	}

	mac, err := models.NormalizeMAC(port.Address)
	if err != nil {
		return err
	}
	port.Address = mac

	existing, err := s.GetPortByAddress(ctx, mac)
	if err == nil && existing.ID != port.ID {
		return ferrors.MACAlreadyExists(mac, existing.NodeID)
	}

	if err := s.db.Store().Upsert(port.ID, port); err != nil {
		return fmt.Errorf("failed to save port: %w", err)
	}
	return nil
}

func (s *PortStorage) GetPort(ctx context.Context, portID string) (*models.Port, error) {
	var port models.Port
	if err := s.db.Store().Get(portID, &port); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, ferrors.PortNotFound(portID)
		}
		return nil, fmt.Errorf("failed to get port: %w", err)
	}
	return &port, nil
}

func (s *PortStorage) GetPortByAddress(ctx context.Context, mac string) (*models.Port, error) {
	normalized, err := models.NormalizeMAC(mac)
	if err != nil {
		return nil, err
	}

	var ports []models.Port
	if err := s.db.Store().Find(&ports, badgerhold.Where("Address").Eq(normalized)); err != nil {
		return nil, fmt.Errorf("failed to find port: %w", err)
	}
	if len(ports) == 0 {
		return nil, ferrors.PortNotFound(mac)
	}
	return &ports[0], nil
}

func (s *PortStorage) ListPortsByNode(ctx context.Context, nodeID string) ([]*models.Port, error) {
	var ports []models.Port
	if err := s.db.Store().Find(&ports, badgerhold.Where("NodeID").Eq(nodeID)); err != nil {
		return nil, fmt.Errorf("failed to list ports: %w", err)
	}

	result := make([]*models.Port, len(ports))
	for i := range ports {
		result[i] = &ports[i]
	}
	return result, nil
}

func (s *PortStorage) DeletePort(ctx context.Context, portID string) error {
	if err := s.db.Store().Delete(portID, &models.Port{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete port: %w", err)
	}
	return nil
}

func (s *PortStorage) DeletePortsByNode(ctx context.Context, nodeID string) error {
	if err := s.db.Store().DeleteMatching(&models.Port{}, badgerhold.Where("NodeID").Eq(nodeID)); err != nil {
		return fmt.Errorf("failed to delete ports for node: %w", err)
	}
	return nil
}
