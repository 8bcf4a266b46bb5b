package badger

import (
	"context"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ferrum/internal/common"
	"github.com/ternarybob/ferrum/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db         *BadgerDB
	node       interfaces.NodeStorage
	port       interfaces.PortStorage
	allocation interfaces.AllocationStorage
	task       interfaces.TaskStorage
	kv         interfaces.KeyValueStorage
	logger     arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:         db,
		node:       NewNodeStorage(db, logger),
		port:       NewPortStorage(db, logger),
		allocation: NewAllocationStorage(db, logger),
		task:       NewTaskStorage(db, logger),
		kv:         NewKVStorage(db, logger),
		logger:     logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// NodeStorage returns the Node storage interface
func (m *Manager) NodeStorage() interfaces.NodeStorage {
	return m.node
}

// PortStorage returns the Port storage interface
func (m *Manager) PortStorage() interfaces.PortStorage {
	return m.port
}

// AllocationStorage returns the Allocation storage interface
func (m *Manager) AllocationStorage() interfaces.AllocationStorage {
	return m.allocation
}

// TaskStorage returns the Task storage interface
func (m *Manager) TaskStorage() interfaces.TaskStorage {
	return m.task
}

// KeyValueStorage returns the KeyValue storage interface
func (m *Manager) KeyValueStorage() interfaces.KeyValueStorage {
	return m.kv
}

// Ping runs an empty read transaction to confirm the store is usable
func (m *Manager) Ping(ctx context.Context) error {
	if m.db == nil || m.db.Store() == nil {
		return fmt.Errorf("storage not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.db.Store().Badger().View(func(txn *badgerdb.Txn) error {
		return nil
	})
}

// DB returns the underlying database connection
func (m *Manager) DB() interface{} {
	if m.db != nil {
		return m.db.Store()
	}
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
