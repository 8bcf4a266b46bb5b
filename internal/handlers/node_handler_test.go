package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/ferrum/internal/common"
	"github.com/ternarybob/ferrum/internal/interfaces"
	"github.com/ternarybob/ferrum/internal/models"
	badgerstorage "github.com/ternarybob/ferrum/internal/storage/badger"
)

func newTestStorage(t *testing.T) interfaces.StorageManager {
	t.Helper()

	manager, err := badgerstorage.NewManager(common.GetLogger(), &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "data"),
	})
	if err != nil {
		t.Fatalf("failed to create storage manager: %v", err)
	}
	t.Cleanup(func() { manager.Close() })
	return manager
}

func newNodeHandler(storage interfaces.StorageManager) *NodeHandler {
	return &NodeHandler{
		storage:  storage,
		validate: validator.New(),
		logger:   common.GetLogger(),
	}
}

func TestCreateNodeHandler(t *testing.T) {
	storage := newTestStorage(t)
	h := newNodeHandler(storage)

	body := `{"name":"compute-01","driver_info":{"ipmi_address":"10.0.0.5"},
		"properties":{"cpus":4,"memory_mb":8192,"local_gb":100}}`
	r := httptest.NewRequest(http.MethodPost, "/api/nodes", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.CreateNodeHandler(w, r)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var node models.Node
	if err := json.Unmarshal(w.Body.Bytes(), &node); err != nil {
		t.Fatal(err)
	}
	if node.ID == "" {
		t.Error("expected a generated node ID")
	}
	if node.Driver != "ipmi" {
		t.Errorf("expected default driver ipmi, got %s", node.Driver)
	}
	if node.ProvisionState != models.ProvisionAvailable {
		t.Errorf("expected available, got %s", node.ProvisionState)
	}
	if node.Properties.CPUs != 4 {
		t.Errorf("properties not stored: %+v", node.Properties)
	}
}

func TestCreateNodeHandlerValidation(t *testing.T) {
	h := newNodeHandler(newTestStorage(t))

	// Name is required.
	r := httptest.NewRequest(http.MethodPost, "/api/nodes", strings.NewReader(`{"driver":"ipmi"}`))
	w := httptest.NewRecorder()
	h.CreateNodeHandler(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}

	// Unknown fields are rejected.
	r = httptest.NewRequest(http.MethodPost, "/api/nodes",
		strings.NewReader(`{"name":"compute-01","bogus":1}`))
	w = httptest.NewRecorder()
	h.CreateNodeHandler(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown field, got %d", w.Code)
	}
}

func TestCreateNodeHandlerDuplicateName(t *testing.T) {
	storage := newTestStorage(t)
	h := newNodeHandler(storage)

	body := `{"name":"compute-01"}`
	r := httptest.NewRequest(http.MethodPost, "/api/nodes", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.CreateNodeHandler(w, r)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}

	r = httptest.NewRequest(http.MethodPost, "/api/nodes", strings.NewReader(body))
	w = httptest.NewRecorder()
	h.CreateNodeHandler(w, r)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate name, got %d", w.Code)
	}
}

func TestGetNodeHandler(t *testing.T) {
	storage := newTestStorage(t)
	h := newNodeHandler(storage)

	node := models.NewNode("compute-01", "ipmi")
	if err := storage.NodeStorage().SaveNode(context.Background(), node); err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest(http.MethodGet, "/api/nodes/"+node.ID, nil)
	w := httptest.NewRecorder()
	h.GetNodeHandler(w, r, node.ID)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.GetNodeHandler(w, r, "no-such-node")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestUpdateNodeHandler(t *testing.T) {
	storage := newTestStorage(t)
	h := newNodeHandler(storage)
	ctx := context.Background()

	node := models.NewNode("compute-01", "ipmi")
	if err := storage.NodeStorage().SaveNode(ctx, node); err != nil {
		t.Fatal(err)
	}

	body := `{"maintenance":true,"instance_info":{"image_source":"http://images/cirros.img","root_gb":10}}`
	r := httptest.NewRequest(http.MethodPatch, "/api/nodes/"+node.ID, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.UpdateNodeHandler(w, r, node.ID)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	got, err := storage.NodeStorage().GetNode(ctx, node.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Maintenance {
		t.Error("expected maintenance set")
	}
	if got.InstanceInfo["image_source"] != "http://images/cirros.img" {
		t.Errorf("instance_info not updated: %+v", got.InstanceInfo)
	}
}

func TestUpdateNodeHandlerReserved(t *testing.T) {
	storage := newTestStorage(t)
	h := newNodeHandler(storage)
	ctx := context.Background()

	node := models.NewNode("compute-01", "ipmi")
	node.Reservation = "conductor-a"
	if err := storage.NodeStorage().SaveNode(ctx, node); err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest(http.MethodPatch, "/api/nodes/"+node.ID,
		strings.NewReader(`{"maintenance":true}`))
	w := httptest.NewRecorder()
	h.UpdateNodeHandler(w, r, node.ID)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for reserved node, got %d", w.Code)
	}
}

func TestDeleteNodeHandler(t *testing.T) {
	storage := newTestStorage(t)
	h := newNodeHandler(storage)
	ctx := context.Background()

	node := models.NewNode("compute-01", "ipmi")
	if err := storage.NodeStorage().SaveNode(ctx, node); err != nil {
		t.Fatal(err)
	}
	port := models.NewPort(node.ID, "aa:bb:cc:dd:ee:ff")
	if err := storage.PortStorage().SavePort(ctx, port); err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest(http.MethodDelete, "/api/nodes/"+node.ID, nil)
	w := httptest.NewRecorder()
	h.DeleteNodeHandler(w, r, node.ID)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if _, err := storage.NodeStorage().GetNode(ctx, node.ID); err == nil {
		t.Error("expected node gone")
	}
	ports, err := storage.PortStorage().ListPortsByNode(ctx, node.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(ports) != 0 {
		t.Errorf("expected ports deleted with node, got %d", len(ports))
	}
}

func TestDeleteNodeHandlerActiveNode(t *testing.T) {
	storage := newTestStorage(t)
	h := newNodeHandler(storage)
	ctx := context.Background()

	node := models.NewNode("compute-01", "ipmi")
	node.ProvisionState = models.ProvisionActive
	if err := storage.NodeStorage().SaveNode(ctx, node); err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest(http.MethodDelete, "/api/nodes/"+node.ID, nil)
	w := httptest.NewRecorder()
	h.DeleteNodeHandler(w, r, node.ID)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for active node, got %d", w.Code)
	}
}

func TestListNodesHandlerFilters(t *testing.T) {
	storage := newTestStorage(t)
	h := newNodeHandler(storage)
	ctx := context.Background()

	active := models.NewNode("compute-01", "ipmi")
	active.ProvisionState = models.ProvisionActive
	available := models.NewNode("compute-02", "ipmi")
	for _, n := range []*models.Node{active, available} {
		if err := storage.NodeStorage().SaveNode(ctx, n); err != nil {
			t.Fatal(err)
		}
	}

	r := httptest.NewRequest(http.MethodGet, "/api/nodes?provision_state=active", nil)
	w := httptest.NewRecorder()
	h.ListNodesHandler(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Nodes []models.Node `json:"nodes"`
		Count int           `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 1 || len(resp.Nodes) != 1 {
		t.Fatalf("expected 1 active node, got %d", resp.Count)
	}
	if resp.Nodes[0].ID != active.ID {
		t.Errorf("expected node %s, got %s", active.ID, resp.Nodes[0].ID)
	}
}
