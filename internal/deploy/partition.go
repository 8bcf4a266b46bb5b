package deploy

import (
	"context"
	"fmt"

	"github.com/ternarybob/ferrum/internal/execcmd"
)

// PartitionSet holds the device paths of partitions created on a disk
type PartitionSet struct {
	Root      string
	Swap      string
	Ephemeral string
}

// Partitioner lays out MBR partitions with parted. Sizes are MiB.
// Partitions start at 1 MiB for alignment.
type Partitioner struct {
	exec execcmd.Executor
	dev  string

	partitions []partition
}

type partition struct {
	sizeMB int
	fsType string
}

// NewPartitioner creates a partitioner for a device
func NewPartitioner(executor execcmd.Executor, dev string) *Partitioner {
	return &Partitioner{exec: executor, dev: dev}
}

// AddPartition appends a primary partition and returns its number.
// fsType may be empty, or a parted fs-type such as "linux-swap".
func (p *Partitioner) AddPartition(sizeMB int, fsType string) int {
	p.partitions = append(p.partitions, partition{sizeMB: sizeMB, fsType: fsType})
	return len(p.partitions)
}

// Commit writes the partition table in a single parted invocation
func (p *Partitioner) Commit(ctx context.Context) error {
	args := []string{"-a", "optimal", "-s", p.dev, "--",
		"unit", "MiB", "mklabel", "msdos"}

	start := 1
	for _, part := range p.partitions {
		end := start + part.sizeMB
		args = append(args, "mkpart", "primary")
		if part.fsType != "" {
			args = append(args, part.fsType)
		}
		args = append(args, fmt.Sprintf("%d", start), fmt.Sprintf("%d", end))
		start = end
	}

	_, _, err := p.exec.Run(ctx, "parted", args...)
	if err != nil {
		return fmt.Errorf("failed to partition %s: %w", p.dev, err)
	}
	return nil
}

// partitionPath returns the by-path partition node for a parent device
func partitionPath(dev string, num int) string {
	return fmt.Sprintf("%s-part%d", dev, num)
}

// MakePartitions creates ephemeral, swap and root partitions on dev.
// Zero sized swap and ephemeral partitions are skipped. The root
// partition is placed last so it can later be grown to the end of the
// disk. When commit is false the layout is computed but not written,
// used when an existing ephemeral partition must be preserved.
func MakePartitions(ctx context.Context, executor execcmd.Executor, dev string,
	rootMB, swapMB, ephemeralMB int, commit bool) (*PartitionSet, error) {

	p := NewPartitioner(executor, dev)
	set := &PartitionSet{}

	if ephemeralMB > 0 {
		num := p.AddPartition(ephemeralMB, "")
		set.Ephemeral = partitionPath(dev, num)
	}
	if swapMB > 0 {
		num := p.AddPartition(swapMB, "linux-swap")
		set.Swap = partitionPath(dev, num)
	}
	num := p.AddPartition(rootMB, "")
	set.Root = partitionPath(dev, num)

	if commit {
		if err := p.Commit(ctx); err != nil {
			return nil, err
		}
	}
	return set, nil
}
