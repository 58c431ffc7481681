package gateway

import "github.com/gorilla/mux"

// Register mounts the Gateway's /v2/ask and /v2/query endpoints on r
// (§4.12, §4.5).
func Register(r *mux.Router, h *Handler) {
	r.HandleFunc("/v2/ask", h.ServeAsk).Methods("POST")
	r.HandleFunc("/v2/query", h.ServeQuery).Methods("POST")
}
