// Package allocator matches flavor requests to available nodes. Bare
// metal cannot be subdivided, so filters demand exact resource matches
// rather than best fit.
package allocator

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ferrum/internal/models"
)

// NodeFilter decides whether a node can serve a flavor
type NodeFilter interface {
	Name() string
	Passes(node *models.Node, flavor *models.Flavor) bool
}

// ExactCoreFilter passes nodes whose CPU count exactly matches the
// flavor. A node with zero recorded CPUs passes, assuming the hardware
// inventory is incomplete rather than the node unusable.
type ExactCoreFilter struct {
	logger arbor.ILogger
}

func (f *ExactCoreFilter) Name() string { return "exact_core" }

func (f *ExactCoreFilter) Passes(node *models.Node, flavor *models.Flavor) bool {
	if node.Properties.CPUs == 0 {
		// Fail safe
		f.logger.Warn().
			Str("node_id", node.ID).
			Msg("CPUs not set; assuming CPU collection broken")
		return true
	}

	if node.Properties.CPUs != flavor.VCPUs {
		f.logger.Debug().
			Str("node_id", node.ID).
			Int("node_cpus", node.Properties.CPUs).
			Int("requested_cpus", flavor.VCPUs).
			Msg("Node CPU count does not match flavor")
		return false
	}
	return true
}

// ExactRAMFilter passes nodes whose memory exactly matches the flavor
type ExactRAMFilter struct {
	logger arbor.ILogger
}

func (f *ExactRAMFilter) Name() string { return "exact_ram" }

func (f *ExactRAMFilter) Passes(node *models.Node, flavor *models.Flavor) bool {
	if node.Properties.MemoryMB == 0 {
		// Fail safe
		f.logger.Warn().
			Str("node_id", node.ID).
			Msg("Memory not set; assuming memory collection broken")
		return true
	}

	if node.Properties.MemoryMB != flavor.MemoryMB {
		f.logger.Debug().
			Str("node_id", node.ID).
			Int("node_memory_mb", node.Properties.MemoryMB).
			Int("requested_memory_mb", flavor.MemoryMB).
			Msg("Node memory does not match flavor")
		return false
	}
	return true
}

// ExactDiskFilter passes nodes whose local disk exactly matches the
// flavor.
type ExactDiskFilter struct {
	logger arbor.ILogger
}

func (f *ExactDiskFilter) Name() string { return "exact_disk" }

func (f *ExactDiskFilter) Passes(node *models.Node, flavor *models.Flavor) bool {
	if node.Properties.LocalGB == 0 {
		// Fail safe
		f.logger.Warn().
			Str("node_id", node.ID).
			Msg("Disk size not set; assuming disk collection broken")
		return true
	}

	if node.Properties.LocalGB != flavor.LocalGB {
		f.logger.Debug().
			Str("node_id", node.ID).
			Int("node_local_gb", node.Properties.LocalGB).
			Int("requested_local_gb", flavor.LocalGB).
			Msg("Node disk size does not match flavor")
		return false
	}
	return true
}
