package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ferrum/internal/common"
	"github.com/ternarybob/ferrum/internal/conductor"
)

// DeployHandler receives deploy ramdisk callbacks
type DeployHandler struct {
	conductor *conductor.Conductor
	logger    arbor.ILogger
}

// NewDeployHandler creates a deploy handler
func NewDeployHandler(c *conductor.Conductor) *DeployHandler {
	return &DeployHandler{
		conductor: c,
		logger:    common.GetLogger(),
	}
}

type deployCallbackRequest struct {
	Address string `json:"address"`
	IQN     string `json:"iqn"`
	Key     string `json:"key"`
}

// CallbackHandler is hit by the deploy ramdisk once its iSCSI target is
// up. It resumes the deployment that parked in the wait state.
func (h *DeployHandler) CallbackHandler(w http.ResponseWriter, r *http.Request, nodeID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req deployCallbackRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	h.logger.Info().
		Str("node_id", nodeID).
		Str("address", req.Address).
		Msg("Deploy callback received")

	task, err := h.conductor.ContinueDeploy(r.Context(), nodeID, req.Key, req.Address, req.IQN)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteAccepted(w, task.ID)
}
