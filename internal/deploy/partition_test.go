package deploy

import (
	"context"
	"strings"
	"testing"

	"github.com/ternarybob/ferrum/internal/execcmd"
)

func TestMakePartitionsFullLayout(t *testing.T) {
	fake := execcmd.NewFakeExecutor()

	set, err := MakePartitions(context.Background(), fake,
		"/dev/disk/by-path/ip-10.0.0.9:3260-iscsi-iqn.node-lun-1",
		10240, 512, 2048, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Ephemeral and swap come first, root last so it can be grown.
	if !strings.HasSuffix(set.Ephemeral, "-part1") {
		t.Errorf("expected ephemeral on partition 1, got %s", set.Ephemeral)
	}
	if !strings.HasSuffix(set.Swap, "-part2") {
		t.Errorf("expected swap on partition 2, got %s", set.Swap)
	}
	if !strings.HasSuffix(set.Root, "-part3") {
		t.Errorf("expected root on partition 3, got %s", set.Root)
	}

	calls := fake.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected a single parted invocation, got %d calls", len(calls))
	}
	if calls[0].Name != "parted" {
		t.Fatalf("expected parted, got %s", calls[0].Name)
	}

	line := strings.Join(calls[0].Args, " ")
	wantSuffix := "unit MiB mklabel msdos " +
		"mkpart primary 1 2049 " +
		"mkpart primary linux-swap 2049 2561 " +
		"mkpart primary 2561 12801"
	if !strings.HasSuffix(line, wantSuffix) {
		t.Errorf("parted layout mismatch\n got: %s\nwant suffix: %s", line, wantSuffix)
	}
	if !strings.HasPrefix(line, "-a optimal -s ") {
		t.Errorf("expected aligned scripted invocation, got: %s", line)
	}
}

func TestMakePartitionsRootOnly(t *testing.T) {
	fake := execcmd.NewFakeExecutor()

	set, err := MakePartitions(context.Background(), fake, "/dev/sda", 10240, 0, 0, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if set.Ephemeral != "" || set.Swap != "" {
		t.Errorf("expected no ephemeral or swap partitions, got %+v", set)
	}
	if set.Root != "/dev/sda-part1" {
		t.Errorf("expected root on partition 1, got %s", set.Root)
	}

	line := strings.Join(fake.Calls()[0].Args, " ")
	if strings.Count(line, "mkpart") != 1 {
		t.Errorf("expected a single mkpart, got: %s", line)
	}
}

func TestMakePartitionsNoCommit(t *testing.T) {
	fake := execcmd.NewFakeExecutor()

	set, err := MakePartitions(context.Background(), fake, "/dev/sda", 10240, 0, 2048, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.Root != "/dev/sda-part2" {
		t.Errorf("expected root on partition 2, got %s", set.Root)
	}
	if len(fake.Calls()) != 0 {
		t.Errorf("expected no parted invocation without commit, got %d calls", len(fake.Calls()))
	}
}
