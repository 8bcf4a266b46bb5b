package server

import "net/http"

// RouteHandler is the handler signature the route dispatchers accept
type RouteHandler func(http.ResponseWriter, *http.Request)

func dispatch(w http.ResponseWriter, r *http.Request, routes map[string]RouteHandler) {
	handler, ok := routes[r.Method]
	if !ok || handler == nil {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	handler(w, r)
}

// RouteResourceCollection dispatches a collection URL: GET lists,
// POST creates.
func RouteResourceCollection(w http.ResponseWriter, r *http.Request, list, create RouteHandler) {
	dispatch(w, r, map[string]RouteHandler{
		http.MethodGet:  list,
		http.MethodPost: create,
	})
}

// RouteResourceItem dispatches an item URL: GET reads, PUT updates,
// DELETE removes.
func RouteResourceItem(w http.ResponseWriter, r *http.Request, get, update, remove RouteHandler) {
	dispatch(w, r, map[string]RouteHandler{
		http.MethodGet:    get,
		http.MethodPut:    update,
		http.MethodDelete: remove,
	})
}
