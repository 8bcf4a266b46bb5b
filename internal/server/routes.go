package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route (event stream)
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Node inventory and actions
	mux.HandleFunc("/api/nodes", s.handleNodesRoute)
	mux.HandleFunc("/api/nodes/", s.handleNodeRoutes) // GET/PUT/DELETE /{id} and subresources

	// API routes - Allocations
	mux.HandleFunc("/api/allocations", s.handleAllocationsRoute)
	mux.HandleFunc("/api/allocations/", s.handleAllocationRoutes)

	// API routes - Conductor tasks (read-only monitoring)
	mux.HandleFunc("/api/tasks", s.app.TaskHandler.ListTasksHandler)
	mux.HandleFunc("/api/tasks/", s.handleTaskRoutes)

	// API routes - Deploy ramdisk callback
	mux.HandleFunc("/api/deploys/", s.handleDeployRoutes)

	// API routes - Operator settings
	mux.HandleFunc("/api/kv", s.app.KVHandler.ListKVHandler)
	mux.HandleFunc("/api/kv/", s.handleKVRoutes)

	// API routes - System
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/shutdown", s.ShutdownHandler) // Graceful shutdown endpoint (dev mode)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleNodesRoute routes /api/nodes requests (list and create)
func (s *Server) handleNodesRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r,
		s.app.NodeHandler.ListNodesHandler,
		s.app.NodeHandler.CreateNodeHandler)
}

// handleNodeRoutes routes /api/nodes/{id} requests and node subresources:
// power, provision, bootdev, console and ports.
func (s *Server) handleNodeRoutes(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/nodes/"), "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	nodeID := parts[0]

	// /api/nodes/{id}
	if len(parts) == 1 {
		RouteResourceItem(w, r,
			func(w http.ResponseWriter, r *http.Request) { s.app.NodeHandler.GetNodeHandler(w, r, nodeID) },
			func(w http.ResponseWriter, r *http.Request) { s.app.NodeHandler.UpdateNodeHandler(w, r, nodeID) },
			func(w http.ResponseWriter, r *http.Request) { s.app.NodeHandler.DeleteNodeHandler(w, r, nodeID) })
		return
	}

	// /api/nodes/{id}/{subresource}
	if len(parts) == 2 {
		switch parts[1] {
		case "power":
			s.app.NodeHandler.PowerHandler(w, r, nodeID)
		case "provision":
			s.app.NodeHandler.ProvisionHandler(w, r, nodeID)
		case "bootdev":
			s.app.NodeHandler.BootDeviceHandler(w, r, nodeID)
		case "console":
			s.app.NodeHandler.ConsoleHandler(w, r, nodeID)
		case "ports":
			RouteResourceCollection(w, r,
				func(w http.ResponseWriter, r *http.Request) { s.app.PortHandler.ListPortsHandler(w, r, nodeID) },
				func(w http.ResponseWriter, r *http.Request) { s.app.PortHandler.CreatePortHandler(w, r, nodeID) })
		default:
			http.Error(w, "Not found", http.StatusNotFound)
		}
		return
	}

	// /api/nodes/{id}/ports/{portID}
	if len(parts) == 3 && parts[1] == "ports" {
		if r.Method != "DELETE" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.app.PortHandler.DeletePortHandler(w, r, nodeID, parts[2])
		return
	}

	http.Error(w, "Not found", http.StatusNotFound)
}

// handleAllocationsRoute routes /api/allocations requests (list and create)
func (s *Server) handleAllocationsRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r,
		s.app.AllocationHandler.ListAllocationsHandler,
		s.app.AllocationHandler.CreateAllocationHandler)
}

// handleAllocationRoutes routes /api/allocations/{id} requests
func (s *Server) handleAllocationRoutes(w http.ResponseWriter, r *http.Request) {
	allocID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/allocations/"), "/")
	if allocID == "" || strings.Contains(allocID, "/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	RouteResourceItem(w, r,
		func(w http.ResponseWriter, r *http.Request) {
			s.app.AllocationHandler.GetAllocationHandler(w, r, allocID)
		},
		nil,
		func(w http.ResponseWriter, r *http.Request) {
			s.app.AllocationHandler.DeleteAllocationHandler(w, r, allocID)
		})
}

// handleTaskRoutes routes /api/tasks/{id} requests
func (s *Server) handleTaskRoutes(w http.ResponseWriter, r *http.Request) {
	taskID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/tasks/"), "/")
	if taskID == "" || strings.Contains(taskID, "/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	if r.Method != "GET" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.app.TaskHandler.GetTaskHandler(w, r, taskID)
}

// handleKVRoutes routes /api/kv/{key} requests
func (s *Server) handleKVRoutes(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/api/kv/")
	if key == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	s.app.KVHandler.KVItemHandler(w, r, key)
}

// handleDeployRoutes routes /api/deploys/{nodeID}/callback requests
func (s *Server) handleDeployRoutes(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/deploys/"), "/"), "/")
	if len(parts) == 2 && parts[1] == "callback" && parts[0] != "" {
		s.app.DeployHandler.CallbackHandler(w, r, parts[0])
		return
	}
	http.Error(w, "Not found", http.StatusNotFound)
}
