// Command memory starts the Memory service's HTTP server (§4.5): policy
// enforced, snapshot-pinned graph reads over a storage.Adapter.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/batvault/batvault/internal/cache"
	"github.com/batvault/batvault/internal/config"
	"github.com/batvault/batvault/internal/memory"
	"github.com/batvault/batvault/internal/metrics"
	"github.com/batvault/batvault/internal/policy"
	"github.com/batvault/batvault/internal/storage"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricsMiddleware records one outcome counter per request, keyed by the
// matched route template (e.g. "/api/enrich").
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		outcome := "ok"
		if rec.status >= 400 {
			outcome = "error"
		}
		metrics.IncMemoryRequest(r.URL.Path, outcome)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func buildAdapter(ctx context.Context, cfg *config.Config) storage.Adapter {
	if len(cfg.Storage.ArangoEndpoints) == 0 {
		log.Printf("⚠️  no arango_endpoints configured, running against the in-memory stub adapter")
		return storage.NewStubAdapter()
	}
	adapter, err := storage.DialArango(ctx, cfg.Storage.ArangoEndpoints, cfg.Storage.ArangoUser, cfg.Storage.ArangoPassword, cfg.Storage.ArangoDatabase, cfg.Storage.BatchSize, cfg.IsDevelopment())
	if err != nil {
		log.Fatalf("memory: dial arango: %v", err)
	}
	return adapter
}

func main() {
	log.Println("🧠 Starting BatVault Memory service...")

	cfg := config.Get()
	ctx := context.Background()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis.URL)
	if err != nil {
		log.Printf("⚠️  redis unavailable (%v), running without resolver/expand caching", err)
		redisClient = nil
	}

	adapter := buildAdapter(ctx, cfg)
	svc := memory.NewService(adapter, redisClient, cfg.SensitivityOrderList(), time.Duration(cfg.Redis.TTLResolverSec)*time.Second)
	roles := policy.NewRoleLoader(cfg.Policy.PolicyDir)
	schemas := memory.NewSchemaCache(time.Duration(cfg.Redis.TTLSchemaSec) * time.Second)
	handlers := memory.NewHandlers(svc, roles, cfg.SensitivityOrderList(), schemas)

	r := mux.NewRouter()
	r.Use(corsMiddleware, metricsMiddleware)
	memory.Register(r, handlers)
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	addr := fmt.Sprintf(":%s", envOr("MEMORY_PORT", cfg.Server.Port))
	log.Printf("🚀 Memory service listening on %s", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatalf("memory: server failed: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
