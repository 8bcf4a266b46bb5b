package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ferrum/internal/common"
	"github.com/ternarybob/ferrum/internal/interfaces"
	"github.com/ternarybob/ferrum/internal/models"
)

// TaskHandler exposes conductor task records for monitoring
type TaskHandler struct {
	storage interfaces.StorageManager
	logger  arbor.ILogger
}

// NewTaskHandler creates a task handler
func NewTaskHandler(storage interfaces.StorageManager) *TaskHandler {
	return &TaskHandler{
		storage: storage,
		logger:  common.GetLogger(),
	}
}

// ListTasksHandler returns tasks filtered by node or status
func (h *TaskHandler) ListTasksHandler(w http.ResponseWriter, r *http.Request) {
	var (
		tasks []*models.TaskRecord
		err   error
	)

	if nodeID := r.URL.Query().Get("node_id"); nodeID != "" {
		tasks, err = h.storage.TaskStorage().ListTasksByNode(r.Context(), nodeID)
	} else {
		status := r.URL.Query().Get("status")
		if status == "" {
			status = string(models.TaskStatusRunning)
		}
		tasks, err = h.storage.TaskStorage().ListTasksByStatus(r.Context(), models.TaskStatus(status))
	}
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": tasks,
		"count": len(tasks),
	})
}

// GetTaskHandler returns a single task record
func (h *TaskHandler) GetTaskHandler(w http.ResponseWriter, r *http.Request, taskID string) {
	task, err := h.storage.TaskStorage().GetTask(r.Context(), taskID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, task)
}
