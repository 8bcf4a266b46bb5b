package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ferrum/internal/common"
	"github.com/ternarybob/ferrum/internal/interfaces"
	"github.com/ternarybob/ferrum/internal/models"
	"github.com/ternarybob/ferrum/internal/services/allocator"
)

// AllocationHandler serves the node allocation API
type AllocationHandler struct {
	storage   interfaces.StorageManager
	allocator *allocator.Service
	logger    arbor.ILogger
}

// NewAllocationHandler creates an allocation handler
func NewAllocationHandler(storage interfaces.StorageManager, a *allocator.Service) *AllocationHandler {
	return &AllocationHandler{
		storage:   storage,
		allocator: a,
		logger:    common.GetLogger(),
	}
}

// ListAllocationsHandler returns all current allocations
func (h *AllocationHandler) ListAllocationsHandler(w http.ResponseWriter, r *http.Request) {
	allocations, err := h.storage.AllocationStorage().ListAllocations(r.Context())
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"allocations": allocations,
		"count":       len(allocations),
	})
}

// CreateAllocationHandler claims a free node matching the requested flavor
func (h *AllocationHandler) CreateAllocationHandler(w http.ResponseWriter, r *http.Request) {
	var flavor models.Flavor
	if err := DecodeJSON(r, &flavor); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	allocation, err := h.allocator.Allocate(r.Context(), &flavor)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	h.logger.Info().
		Str("allocation_id", allocation.ID).
		Str("node_id", allocation.NodeID).
		Msg("Allocation created")
	WriteJSON(w, http.StatusCreated, allocation)
}

// GetAllocationHandler returns a single allocation
func (h *AllocationHandler) GetAllocationHandler(w http.ResponseWriter, r *http.Request, allocID string) {
	allocation, err := h.storage.AllocationStorage().GetAllocation(r.Context(), allocID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, allocation)
}

// DeleteAllocationHandler releases a node back to the free pool
func (h *AllocationHandler) DeleteAllocationHandler(w http.ResponseWriter, r *http.Request, allocID string) {
	if err := h.allocator.Deallocate(r.Context(), allocID); err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteSuccess(w, "allocation deleted")
}
