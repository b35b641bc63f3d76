// Package relay wires HTTP handlers into a ServeMux via routing helpers.
package relay

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application
// routes: health check, WebSocket endpoint, and the browser test page.
func SetupRoutes(hub *Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", hub.WebSocketHandler)
	mux.HandleFunc("/test", TestPageHandler)
	return mux
}
