package allocator

import (
	"testing"

	"github.com/ternarybob/ferrum/internal/common"
	"github.com/ternarybob/ferrum/internal/models"
)

func filterNode(cpus, memoryMB, localGB int) *models.Node {
	node := models.NewNode("compute-01", "ipmi")
	node.Properties = models.Properties{
		CPUs:     cpus,
		MemoryMB: memoryMB,
		LocalGB:  localGB,
	}
	return node
}

func smallFlavor() *models.Flavor {
	return &models.Flavor{
		Name:     "baremetal.small",
		VCPUs:    4,
		MemoryMB: 8192,
		LocalGB:  100,
	}
}

func TestExactFilters(t *testing.T) {
	logger := common.GetLogger()
	filters := []NodeFilter{
		&ExactCoreFilter{logger: logger},
		&ExactRAMFilter{logger: logger},
		&ExactDiskFilter{logger: logger},
	}

	tests := []struct {
		name string
		node *models.Node
		want [3]bool
	}{
		{
			name: "exact match",
			node: filterNode(4, 8192, 100),
			want: [3]bool{true, true, true},
		},
		{
			name: "larger node rejected",
			node: filterNode(8, 16384, 200),
			want: [3]bool{false, false, false},
		},
		{
			name: "smaller node rejected",
			node: filterNode(2, 4096, 50),
			want: [3]bool{false, false, false},
		},
		{
			// Zero-valued properties mean the inventory is incomplete,
			// not that the node has no hardware.
			name: "unset properties pass",
			node: filterNode(0, 0, 0),
			want: [3]bool{true, true, true},
		},
		{
			name: "mixed",
			node: filterNode(4, 0, 200),
			want: [3]bool{true, true, false},
		},
	}

	flavor := smallFlavor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i, filter := range filters {
				if got := filter.Passes(tt.node, flavor); got != tt.want[i] {
					t.Errorf("%s.Passes = %v, want %v", filter.Name(), got, tt.want[i])
				}
			}
		})
	}
}

func TestFilterNames(t *testing.T) {
	logger := common.GetLogger()
	if name := (&ExactCoreFilter{logger: logger}).Name(); name != "exact_core" {
		t.Errorf("unexpected name %s", name)
	}
	if name := (&ExactRAMFilter{logger: logger}).Name(); name != "exact_ram" {
		t.Errorf("unexpected name %s", name)
	}
	if name := (&ExactDiskFilter{logger: logger}).Name(); name != "exact_disk" {
		t.Errorf("unexpected name %s", name)
	}
}
