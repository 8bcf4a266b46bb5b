package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/ferrum/internal/models"
)

// ErrKeyNotFound is returned by KeyValueStorage lookups that miss
var ErrKeyNotFound = errors.New("key not found")

// KeyValuePair is a stored setting
type KeyValuePair struct {
	Key       string    `json:"key" badgerhold:"key"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NodeListOptions filters node listing
type NodeListOptions struct {
	ProvisionState string
	Maintenance    *bool
	Limit          int
	Offset         int
}

// NodeStorage persists the node inventory
type NodeStorage interface {
	SaveNode(ctx context.Context, node *models.Node) error
	GetNode(ctx context.Context, nodeID string) (*models.Node, error)
	GetNodeByName(ctx context.Context, name string) (*models.Node, error)
	ListNodes(ctx context.Context, opts *NodeListOptions) ([]*models.Node, error)
	DeleteNode(ctx context.Context, nodeID string) error

	// Reserve atomically sets the reservation when it is empty.
	// Returns ferrors.ErrNodeLocked when another holder owns it.
	Reserve(ctx context.Context, nodeID, holder string) (*models.Node, error)
	// Release clears the reservation when held by holder.
	Release(ctx context.Context, nodeID, holder string) error
	// ReleaseAll clears every reservation held by holder (startup recovery).
	ReleaseAll(ctx context.Context, holder string) (int, error)
}

// PortStorage persists node NICs
type PortStorage interface {
	SavePort(ctx context.Context, port *models.Port) error
	GetPort(ctx context.Context, portID string) (*models.Port, error)
	GetPortByAddress(ctx context.Context, mac string) (*models.Port, error)
	ListPortsByNode(ctx context.Context, nodeID string) ([]*models.Port, error)
	DeletePort(ctx context.Context, portID string) error
	DeletePortsByNode(ctx context.Context, nodeID string) error
}

// AllocationStorage persists flavor allocations
type AllocationStorage interface {
	SaveAllocation(ctx context.Context, alloc *models.Allocation) error
	GetAllocation(ctx context.Context, allocID string) (*models.Allocation, error)
	GetAllocationByNode(ctx context.Context, nodeID string) (*models.Allocation, error)
	ListAllocations(ctx context.Context) ([]*models.Allocation, error)
	DeleteAllocation(ctx context.Context, allocID string) error
}

// TaskStorage persists conductor task runtime records
type TaskStorage interface {
	SaveTask(ctx context.Context, record *models.TaskRecord) error
	GetTask(ctx context.Context, taskID string) (*models.TaskRecord, error)
	ListTasksByNode(ctx context.Context, nodeID string) ([]*models.TaskRecord, error)
	ListTasksByStatus(ctx context.Context, status models.TaskStatus) ([]*models.TaskRecord, error)
	UpdateTaskStatus(ctx context.Context, taskID string, status models.TaskStatus, errMsg string) error
	TouchHeartbeat(ctx context.Context, taskID string) error
	// GetStaleTasks returns running tasks whose heartbeat is older than
	// maxAgeMinutes minutes.
	GetStaleTasks(ctx context.Context, maxAgeMinutes int) ([]*models.TaskRecord, error)
}

// KeyValueStorage is a generic string KV store for small settings
type KeyValueStorage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	GetAll(ctx context.Context) (map[string]string, error)
}

// StorageManager provides access to all storage interfaces
type StorageManager interface {
	NodeStorage() NodeStorage
	PortStorage() PortStorage
	AllocationStorage() AllocationStorage
	TaskStorage() TaskStorage
	KeyValueStorage() KeyValueStorage

	// DB returns the underlying database connection
	DB() interface{}

	// Ping confirms the store is reachable for health reporting
	Ping(ctx context.Context) error

	Close() error
}
