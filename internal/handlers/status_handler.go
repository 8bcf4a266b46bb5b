package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ferrum/internal/common"
	"github.com/ternarybob/ferrum/internal/interfaces"
	"github.com/ternarybob/ferrum/internal/models"
)

// StatusHandler reports conductor status: node counts per provision
// state and queue depth.
type StatusHandler struct {
	storage   interfaces.StorageManager
	queue     interfaces.QueueManager
	queueName string
	startedAt time.Time
	logger    arbor.ILogger
}

// NewStatusHandler creates a status handler
func NewStatusHandler(storage interfaces.StorageManager, queue interfaces.QueueManager, queueName string) *StatusHandler {
	return &StatusHandler{
		storage:   storage,
		queue:     queue,
		queueName: queueName,
		startedAt: time.Now(),
		logger:    common.GetLogger(),
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	nodes, err := h.storage.NodeStorage().ListNodes(r.Context(), nil)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	states := map[string]int{}
	maintenance := 0
	for _, node := range nodes {
		states[string(node.ProvisionState)]++
		if node.Maintenance {
			maintenance++
		}
	}

	status := map[string]interface{}{
		"nodes": map[string]interface{}{
			"total":       len(nodes),
			"by_state":    states,
			"maintenance": maintenance,
		},
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
		"timestamp":      time.Now(),
	}

	if h.queue != nil {
		if stats, err := h.queue.Stats(r.Context(), h.queueName); err == nil {
			status["queue"] = stats
		}
	}
	if running, err := h.storage.TaskStorage().ListTasksByStatus(r.Context(), models.TaskStatusRunning); err == nil {
		status["running_tasks"] = len(running)
	}

	WriteJSON(w, http.StatusOK, status)
}
