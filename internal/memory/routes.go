package memory

import "github.com/gorilla/mux"

// Register mounts the Memory service's four endpoints on r (§4.5).
func Register(r *mux.Router, h *Handlers) {
	r.HandleFunc("/api/enrich", h.HandleEnrich).Methods("GET", "POST")
	r.HandleFunc("/api/enrich/batch", h.HandleEnrichBatch).Methods("POST")
	r.HandleFunc("/api/resolve/text", h.HandleResolveText).Methods("POST")
	r.HandleFunc("/api/graph/expand_candidates", h.HandleExpandCandidates).Methods("POST")
}
