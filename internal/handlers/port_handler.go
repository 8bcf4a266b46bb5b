package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ferrum/internal/common"
	"github.com/ternarybob/ferrum/internal/interfaces"
	"github.com/ternarybob/ferrum/internal/models"
)

// PortHandler serves the per-node port API
type PortHandler struct {
	storage interfaces.StorageManager
	logger  arbor.ILogger
}

// NewPortHandler creates a port handler
func NewPortHandler(storage interfaces.StorageManager) *PortHandler {
	return &PortHandler{
		storage: storage,
		logger:  common.GetLogger(),
	}
}

type createPortRequest struct {
	Address    string `json:"address"`
	PXEEnabled *bool  `json:"pxe_enabled"`
}

// ListPortsHandler returns the ports of a node
func (h *PortHandler) ListPortsHandler(w http.ResponseWriter, r *http.Request, nodeID string) {
	if _, err := h.storage.NodeStorage().GetNode(r.Context(), nodeID); err != nil {
		WriteDomainError(w, err)
		return
	}
	ports, err := h.storage.PortStorage().ListPortsByNode(r.Context(), nodeID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ports": ports,
		"count": len(ports),
	})
}

// CreatePortHandler registers a NIC on a node
func (h *PortHandler) CreatePortHandler(w http.ResponseWriter, r *http.Request, nodeID string) {
	if _, err := h.storage.NodeStorage().GetNode(r.Context(), nodeID); err != nil {
		WriteDomainError(w, err)
		return
	}

	var req createPortRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Address == "" {
		WriteError(w, http.StatusBadRequest, "address is required")
		return
	}

	port := models.NewPort(nodeID, req.Address)
	if req.PXEEnabled != nil {
		port.PXEEnabled = *req.PXEEnabled
	}
	if err := h.storage.PortStorage().SavePort(r.Context(), port); err != nil {
		WriteDomainError(w, err)
		return
	}

	h.logger.Info().
		Str("node_id", nodeID).
		Str("address", port.Address).
		Msg("Port created")
	WriteJSON(w, http.StatusCreated, port)
}

// DeletePortHandler removes a port from a node
func (h *PortHandler) DeletePortHandler(w http.ResponseWriter, r *http.Request, nodeID, portID string) {
	port, err := h.storage.PortStorage().GetPort(r.Context(), portID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	if port.NodeID != nodeID {
		WriteError(w, http.StatusNotFound, "port does not belong to node "+nodeID)
		return
	}
	if err := h.storage.PortStorage().DeletePort(r.Context(), portID); err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteSuccess(w, "port deleted")
}
