// -----------------------------------------------------------------------
// Conductor Task - Immutable work item for queue persistence
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskType identifies which conductor worker handles a task
type TaskType string

const (
	TaskTypeDeploy   TaskType = "deploy"
	TaskTypeTeardown TaskType = "teardown"
	TaskTypePower    TaskType = "power"
)

// TaskStatus tracks runtime state of a conductor task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// ConductorTask is the immutable work item sent to the queue and stored
// in the database. Once created and enqueued it should not be modified;
// runtime state lives in TaskRecord.
type ConductorTask struct {
	ID     string   `json:"id"`
	NodeID string   `json:"node_id"`
	Type   TaskType `json:"type"`

	// Configuration snapshot at creation time (power state target,
	// deploy overrides, ...)
	Config map[string]interface{} `json:"config"`

	CreatedAt time.Time `json:"created_at"`
}

// NewConductorTask creates a task for a node
func NewConductorTask(nodeID string, taskType TaskType, config map[string]interface{}) *ConductorTask {
	if config == nil {
		config = map[string]interface{}{}
	}
	return &ConductorTask{
		ID:        uuid.New().String(),
		NodeID:    nodeID,
		Type:      taskType,
		Config:    config,
		CreatedAt: time.Now(),
	}
}

// ConfigString returns a string config value, or "" when absent
func (t *ConductorTask) ConfigString(key string) string {
	if v, ok := t.Config[key].(string); ok {
		return v
	}
	return ""
}

// ToJSON serializes the task for queue storage
func (t *ConductorTask) ToJSON() ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conductor task: %w", err)
	}
	return data, nil
}

// TaskFromJSON deserializes a task from queue storage
func TaskFromJSON(data []byte) (*ConductorTask, error) {
	var task ConductorTask
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conductor task: %w", err)
	}
	return &task, nil
}

// TaskRecord is the persisted runtime view of a conductor task. The
// stale-deploy sweep uses Heartbeat to detect hung work.
type TaskRecord struct {
	ID         string     `json:"id" badgerhold:"key"`
	NodeID     string     `json:"node_id"`
	Type       TaskType   `json:"type"`
	Status     TaskStatus `json:"status"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Heartbeat  time.Time  `json:"heartbeat"`
}

// NewTaskRecord creates the runtime record for an enqueued task
func NewTaskRecord(task *ConductorTask) *TaskRecord {
	return &TaskRecord{
		ID:        task.ID,
		NodeID:    task.NodeID,
		Type:      task.Type,
		Status:    TaskStatusPending,
		CreatedAt: task.CreatedAt,
		Heartbeat: task.CreatedAt,
	}
}
