package models

import (
	"time"

	"github.com/ternarybob/ferrum/internal/common"
)

// Flavor is an exact-match resource request: bare metal machines are
// allocated whole, so a flavor either matches a node exactly or not at all.
type Flavor struct {
	Name     string `json:"name"`
	VCPUs    int    `json:"vcpus" validate:"min=0"`
	MemoryMB int    `json:"memory_mb" validate:"min=0"`
	LocalGB  int    `json:"local_gb" validate:"min=0"`
}

// Allocation records that a node has been claimed for a flavor
type Allocation struct {
	ID        string    `json:"id" badgerhold:"key"`
	NodeID    string    `json:"node_id"`
	Flavor    Flavor    `json:"flavor"`
	CreatedAt time.Time `json:"created_at"`
}

// NewAllocation creates an allocation claiming a node for a flavor
func NewAllocation(nodeID string, flavor *Flavor) *Allocation {
	return &Allocation{
		ID:        common.NewAllocationID(),
		NodeID:    nodeID,
		Flavor:    *flavor,
		CreatedAt: time.Now(),
	}
}
