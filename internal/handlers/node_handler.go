package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ferrum/internal/common"
	"github.com/ternarybob/ferrum/internal/conductor"
	"github.com/ternarybob/ferrum/internal/interfaces"
	"github.com/ternarybob/ferrum/internal/models"
)

// NodeHandler serves the node inventory API
type NodeHandler struct {
	storage   interfaces.StorageManager
	conductor *conductor.Conductor
	validate  *validator.Validate
	logger    arbor.ILogger
}

// NewNodeHandler creates a node handler
func NewNodeHandler(storage interfaces.StorageManager, c *conductor.Conductor) *NodeHandler {
	return &NodeHandler{
		storage:   storage,
		conductor: c,
		validate:  validator.New(),
		logger:    common.GetLogger(),
	}
}

type createNodeRequest struct {
	Name       string                 `json:"name" validate:"required"`
	Driver     string                 `json:"driver"`
	DriverInfo map[string]interface{} `json:"driver_info"`
	Properties models.Properties      `json:"properties"`
}

type updateNodeRequest struct {
	DriverInfo   map[string]interface{} `json:"driver_info"`
	InstanceInfo map[string]interface{} `json:"instance_info"`
	Properties   *models.Properties     `json:"properties"`
	Maintenance  *bool                  `json:"maintenance"`
}

// ListNodesHandler returns the node inventory, optionally filtered by
// provision state or maintenance flag.
func (h *NodeHandler) ListNodesHandler(w http.ResponseWriter, r *http.Request) {
	opts := &interfaces.NodeListOptions{
		ProvisionState: r.URL.Query().Get("provision_state"),
	}
	if m := r.URL.Query().Get("maintenance"); m != "" {
		maintenance := m == "true"
		opts.Maintenance = &maintenance
	}

	nodes, err := h.storage.NodeStorage().ListNodes(r.Context(), opts)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"nodes": nodes,
		"count": len(nodes),
	})
}

// CreateNodeHandler enrolls a new node
func (h *NodeHandler) CreateNodeHandler(w http.ResponseWriter, r *http.Request) {
	var req createNodeRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.storage.NodeStorage().GetNodeByName(r.Context(), req.Name); err == nil {
		WriteError(w, http.StatusConflict, "node name already in use: "+req.Name)
		return
	}

	driver := req.Driver
	if driver == "" {
		driver = "ipmi"
	}
	node := models.NewNode(req.Name, driver)
	if req.DriverInfo != nil {
		node.DriverInfo = req.DriverInfo
	}
	node.Properties = req.Properties

	if err := h.storage.NodeStorage().SaveNode(r.Context(), node); err != nil {
		WriteDomainError(w, err)
		return
	}

	h.logger.Info().
		Str("node_id", node.ID).
		Str("name", node.Name).
		Msg("Node enrolled")
	WriteJSON(w, http.StatusCreated, node)
}

// GetNodeHandler returns a single node by ID
func (h *NodeHandler) GetNodeHandler(w http.ResponseWriter, r *http.Request, nodeID string) {
	node, err := h.storage.NodeStorage().GetNode(r.Context(), nodeID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, node)
}

// UpdateNodeHandler patches mutable node fields
func (h *NodeHandler) UpdateNodeHandler(w http.ResponseWriter, r *http.Request, nodeID string) {
	node, err := h.storage.NodeStorage().GetNode(r.Context(), nodeID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	if node.IsReserved() {
		WriteError(w, http.StatusConflict, "node is reserved by "+node.Reservation)
		return
	}

	var req updateNodeRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.DriverInfo != nil {
		node.DriverInfo = req.DriverInfo
	}
	if req.InstanceInfo != nil {
		node.InstanceInfo = req.InstanceInfo
	}
	if req.Properties != nil {
		node.Properties = *req.Properties
	}
	if req.Maintenance != nil {
		node.Maintenance = *req.Maintenance
	}

	if err := h.storage.NodeStorage().SaveNode(r.Context(), node); err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, node)
}

// DeleteNodeHandler removes a node and its ports. Nodes with an
// instance or active work must be torn down first.
func (h *NodeHandler) DeleteNodeHandler(w http.ResponseWriter, r *http.Request, nodeID string) {
	node, err := h.storage.NodeStorage().GetNode(r.Context(), nodeID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	if node.IsReserved() {
		WriteError(w, http.StatusConflict, "node is reserved by "+node.Reservation)
		return
	}
	switch node.ProvisionState {
	case models.ProvisionAvailable, models.ProvisionDeployFailed, models.ProvisionError:
		// deletable
	default:
		WriteError(w, http.StatusConflict,
			"cannot delete node in provision state "+string(node.ProvisionState))
		return
	}

	if err := h.storage.PortStorage().DeletePortsByNode(r.Context(), nodeID); err != nil {
		WriteDomainError(w, err)
		return
	}
	if err := h.storage.NodeStorage().DeleteNode(r.Context(), nodeID); err != nil {
		WriteDomainError(w, err)
		return
	}

	h.logger.Info().Str("node_id", nodeID).Msg("Node deleted")
	WriteSuccess(w, "node deleted")
}

type powerRequest struct {
	Target string `json:"target" validate:"required"`
}

// PowerHandler queues a power state change for a node
func (h *NodeHandler) PowerHandler(w http.ResponseWriter, r *http.Request, nodeID string) {
	if !RequireMethod(w, r, http.MethodPut) {
		return
	}

	var req powerRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	target := models.PowerState(req.Target)
	switch target {
	case models.PowerOn, models.PowerOff, models.PowerRebooting:
	default:
		WriteError(w, http.StatusBadRequest, "invalid power target: "+req.Target)
		return
	}

	task, err := h.conductor.ChangePowerState(r.Context(), nodeID, target)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteAccepted(w, task.ID)
}

type provisionRequest struct {
	Target string `json:"target" validate:"required"`
}

// ProvisionHandler queues a provision state change, "active" to deploy
// and "deleted" to tear down.
func (h *NodeHandler) ProvisionHandler(w http.ResponseWriter, r *http.Request, nodeID string) {
	if !RequireMethod(w, r, http.MethodPut) {
		return
	}

	var req provisionRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	task, err := h.conductor.Provision(r.Context(), nodeID, req.Target)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteAccepted(w, task.ID)
}

type bootDeviceRequest struct {
	Device     string `json:"device" validate:"required"`
	Persistent bool   `json:"persistent"`
}

// BootDeviceHandler sets the node's next boot device
func (h *NodeHandler) BootDeviceHandler(w http.ResponseWriter, r *http.Request, nodeID string) {
	if !RequireMethod(w, r, http.MethodPut) {
		return
	}

	var req bootDeviceRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	err := h.conductor.SetBootDevice(r.Context(), nodeID,
		interfaces.BootDevice(req.Device), req.Persistent)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteSuccess(w, "boot device set")
}

// ConsoleHandler starts (POST) or stops (DELETE) the SOL console
func (h *NodeHandler) ConsoleHandler(w http.ResponseWriter, r *http.Request, nodeID string) {
	switch r.Method {
	case http.MethodPost:
		if err := h.conductor.StartConsole(r.Context(), nodeID); err != nil {
			WriteDomainError(w, err)
			return
		}
		WriteSuccess(w, "console started")
	case http.MethodDelete:
		if err := h.conductor.StopConsole(r.Context(), nodeID); err != nil {
			WriteDomainError(w, err)
			return
		}
		WriteSuccess(w, "console stopped")
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
