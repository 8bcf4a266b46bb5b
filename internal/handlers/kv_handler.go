package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ferrum/internal/common"
	"github.com/ternarybob/ferrum/internal/interfaces"
)

// KVHandler handles operator settings (key/value) storage HTTP requests
type KVHandler struct {
	storage interfaces.KeyValueStorage
	logger  arbor.ILogger
}

// NewKVHandler creates a new KV handler
func NewKVHandler(storage interfaces.KeyValueStorage) *KVHandler {
	return &KVHandler{
		storage: storage,
		logger:  common.GetLogger(),
	}
}

// ListKVHandler handles GET /api/kv
func (h *KVHandler) ListKVHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	pairs, err := h.storage.GetAll(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list key/value pairs")
		WriteError(w, http.StatusInternalServerError, "Failed to list key/value pairs")
		return
	}
	WriteJSON(w, http.StatusOK, pairs)
}

type setKVRequest struct {
	Value string `json:"value"`
}

// KVItemHandler handles GET/PUT/DELETE /api/kv/{key}
func (h *KVHandler) KVItemHandler(w http.ResponseWriter, r *http.Request, encodedKey string) {
	key, err := url.QueryUnescape(encodedKey)
	if err != nil || key == "" {
		WriteError(w, http.StatusBadRequest, "invalid key")
		return
	}

	switch r.Method {
	case http.MethodGet:
		value, err := h.storage.Get(r.Context(), key)
		if err != nil {
			if errors.Is(err, interfaces.ErrKeyNotFound) {
				WriteError(w, http.StatusNotFound, "key not found")
				return
			}
			WriteError(w, http.StatusInternalServerError, "failed to retrieve key")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})

	case http.MethodPut:
		var req setKVRequest
		if err := DecodeJSON(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if err := h.storage.Set(r.Context(), key, req.Value); err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to store key")
			return
		}
		WriteSuccess(w, "key stored")

	case http.MethodDelete:
		if err := h.storage.Delete(r.Context(), key); err != nil {
			if errors.Is(err, interfaces.ErrKeyNotFound) {
				WriteError(w, http.StatusNotFound, "key not found")
				return
			}
			WriteError(w, http.StatusInternalServerError, "failed to delete key")
			return
		}
		WriteSuccess(w, "key deleted")

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
