package allocator

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ternarybob/ferrum/internal/common"
	"github.com/ternarybob/ferrum/internal/ferrors"
	"github.com/ternarybob/ferrum/internal/interfaces"
	"github.com/ternarybob/ferrum/internal/models"
	"github.com/ternarybob/ferrum/internal/services/events"
	badgerstorage "github.com/ternarybob/ferrum/internal/storage/badger"
)

func newTestService(t *testing.T) (*Service, interfaces.StorageManager) {
	t.Helper()

	logger := common.GetLogger()
	storage, err := badgerstorage.NewManager(logger, &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "data"),
	})
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { storage.Close() })

	eventSvc := events.NewService(logger)
	t.Cleanup(eventSvc.Close)

	return NewService(storage, eventSvc), storage
}

func saveMatchingNode(t *testing.T, storage interfaces.StorageManager, name string) *models.Node {
	t.Helper()

	node := models.NewNode(name, "ipmi")
	node.Properties = models.Properties{CPUs: 4, MemoryMB: 8192, LocalGB: 100}
	if err := storage.NodeStorage().SaveNode(context.Background(), node); err != nil {
		t.Fatalf("failed to save node: %v", err)
	}
	return node
}

func TestAllocate(t *testing.T) {
	svc, storage := newTestService(t)
	ctx := context.Background()
	node := saveMatchingNode(t, storage, "compute-01")

	alloc, err := svc.Allocate(ctx, smallFlavor())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alloc.NodeID != node.ID {
		t.Errorf("expected node %s, got %s", node.ID, alloc.NodeID)
	}
	if alloc.Flavor.Name != "baremetal.small" {
		t.Errorf("unexpected flavor: %+v", alloc.Flavor)
	}

	// The node is consumed; a second request finds nothing.
	if _, err := svc.Allocate(ctx, smallFlavor()); !ferrors.IsNotFound(err) {
		t.Errorf("expected no free node, got %v", err)
	}
}

func TestAllocateSkipsUnusableNodes(t *testing.T) {
	svc, storage := newTestService(t)
	ctx := context.Background()

	maint := saveMatchingNode(t, storage, "compute-01")
	maint.Maintenance = true
	if err := storage.NodeStorage().SaveNode(ctx, maint); err != nil {
		t.Fatal(err)
	}

	reserved := saveMatchingNode(t, storage, "compute-02")
	reserved.Reservation = "conductor-a"
	if err := storage.NodeStorage().SaveNode(ctx, reserved); err != nil {
		t.Fatal(err)
	}

	deployed := saveMatchingNode(t, storage, "compute-03")
	deployed.ProvisionState = models.ProvisionActive
	if err := storage.NodeStorage().SaveNode(ctx, deployed); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Allocate(ctx, smallFlavor()); !ferrors.IsNotFound(err) {
		t.Errorf("expected no free node, got %v", err)
	}
}

func TestAllocateWrongSize(t *testing.T) {
	svc, storage := newTestService(t)
	saveMatchingNode(t, storage, "compute-01")

	flavor := smallFlavor()
	flavor.MemoryMB = 16384
	if _, err := svc.Allocate(context.Background(), flavor); !ferrors.IsNotFound(err) {
		t.Errorf("expected no free node for mismatched flavor, got %v", err)
	}
}

func TestAllocateInvalidFlavor(t *testing.T) {
	svc, _ := newTestService(t)

	flavor := &models.Flavor{Name: "bad", VCPUs: -1}
	if _, err := svc.Allocate(context.Background(), flavor); !ferrors.IsInvalidParameter(err) {
		t.Errorf("expected invalid parameter, got %v", err)
	}
}

func TestDeallocate(t *testing.T) {
	svc, storage := newTestService(t)
	ctx := context.Background()
	saveMatchingNode(t, storage, "compute-01")

	alloc, err := svc.Allocate(ctx, smallFlavor())
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}

	if err := svc.Deallocate(ctx, alloc.ID); err != nil {
		t.Fatalf("deallocate failed: %v", err)
	}

	// The node is free again.
	if _, err := svc.Allocate(ctx, smallFlavor()); err != nil {
		t.Errorf("expected node to be allocatable again: %v", err)
	}

	// Deallocating a missing allocation reports not found.
	if err := svc.Deallocate(ctx, "no-such-allocation"); !ferrors.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}
