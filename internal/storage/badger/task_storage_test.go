package badger

import (
	"context"
	"testing"
	"time"

	"github.com/ternarybob/ferrum/internal/ferrors"
	"github.com/ternarybob/ferrum/internal/models"
)

func newTaskRecord(nodeID string) *models.TaskRecord {
	task := models.NewConductorTask(nodeID, models.TaskTypeDeploy, nil)
	return models.NewTaskRecord(task)
}

func TestTaskLifecycle(t *testing.T) {
	storage := newTestManager(t).TaskStorage()
	ctx := context.Background()

	record := newTaskRecord("node-1")
	if err := storage.SaveTask(ctx, record); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := storage.GetTask(ctx, record.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != models.TaskStatusPending {
		t.Errorf("expected pending, got %s", got.Status)
	}
	if got.StartedAt != nil || got.FinishedAt != nil {
		t.Error("fresh record must not carry start or finish times")
	}

	if err := storage.UpdateTaskStatus(ctx, record.ID, models.TaskStatusRunning, ""); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	got, _ = storage.GetTask(ctx, record.ID)
	if got.Status != models.TaskStatusRunning {
		t.Errorf("expected running, got %s", got.Status)
	}
	if got.StartedAt == nil {
		t.Error("expected StartedAt set")
	}

	if err := storage.UpdateTaskStatus(ctx, record.ID, models.TaskStatusFailed, "deploy blew up"); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	got, _ = storage.GetTask(ctx, record.ID)
	if got.Status != models.TaskStatusFailed {
		t.Errorf("expected failed, got %s", got.Status)
	}
	if got.Error != "deploy blew up" {
		t.Errorf("unexpected error message: %q", got.Error)
	}
	if got.FinishedAt == nil {
		t.Error("expected FinishedAt set")
	}
}

func TestGetTaskMissing(t *testing.T) {
	storage := newTestManager(t).TaskStorage()

	if _, err := storage.GetTask(context.Background(), "no-such-task"); !ferrors.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestListTasks(t *testing.T) {
	storage := newTestManager(t).TaskStorage()
	ctx := context.Background()

	a := newTaskRecord("node-1")
	b := newTaskRecord("node-1")
	c := newTaskRecord("node-2")
	for _, r := range []*models.TaskRecord{a, b, c} {
		if err := storage.SaveTask(ctx, r); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}
	if err := storage.UpdateTaskStatus(ctx, a.ID, models.TaskStatusRunning, ""); err != nil {
		t.Fatal(err)
	}

	byNode, err := storage.ListTasksByNode(ctx, "node-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(byNode) != 2 {
		t.Errorf("expected 2 tasks for node-1, got %d", len(byNode))
	}

	running, err := storage.ListTasksByStatus(ctx, models.TaskStatusRunning)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(running) != 1 || running[0].ID != a.ID {
		t.Errorf("expected only task %s running, got %d tasks", a.ID, len(running))
	}
}

func TestGetStaleTasks(t *testing.T) {
	storage := newTestManager(t).TaskStorage()
	ctx := context.Background()

	stale := newTaskRecord("node-1")
	stale.Status = models.TaskStatusRunning
	stale.Heartbeat = time.Now().Add(-30 * time.Minute)

	fresh := newTaskRecord("node-2")
	fresh.Status = models.TaskStatusRunning
	fresh.Heartbeat = time.Now()

	done := newTaskRecord("node-3")
	done.Status = models.TaskStatusCompleted
	done.Heartbeat = time.Now().Add(-30 * time.Minute)

	for _, r := range []*models.TaskRecord{stale, fresh, done} {
		if err := storage.SaveTask(ctx, r); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	result, err := storage.GetStaleTasks(ctx, 15)
	if err != nil {
		t.Fatalf("stale query failed: %v", err)
	}
	if len(result) != 1 || result[0].ID != stale.ID {
		t.Errorf("expected only the stale running task, got %d tasks", len(result))
	}
}

func TestTouchHeartbeat(t *testing.T) {
	storage := newTestManager(t).TaskStorage()
	ctx := context.Background()

	record := newTaskRecord("node-1")
	record.Heartbeat = time.Now().Add(-time.Hour)
	if err := storage.SaveTask(ctx, record); err != nil {
		t.Fatal(err)
	}

	if err := storage.TouchHeartbeat(ctx, record.ID); err != nil {
		t.Fatalf("touch failed: %v", err)
	}

	got, err := storage.GetTask(ctx, record.ID)
	if err != nil {
		t.Fatal(err)
	}
	if time.Since(got.Heartbeat) > time.Minute {
		t.Errorf("heartbeat not refreshed: %s", got.Heartbeat)
	}
}
