// Command gateway starts the Gateway service's HTTP server (§4.12): evidence
// collection, the budget gate, LLM routing and validation behind /v2/ask.
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
	"github.com/batvault/batvault/internal/evidence"
	"github.com/batvault/batvault/internal/gateway"
	"github.com/batvault/batvault/internal/idem"
	"github.com/batvault/batvault/internal/llmrouter"
	"github.com/batvault/batvault/internal/loadshed"
	"github.com/batvault/batvault/internal/policy"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

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

func buildRouter(cfg *config.Config) *llmrouter.Router {
	httpClient := &http.Client{Timeout: time.Duration(cfg.Timeouts.LLMMs) * time.Millisecond}
	vllm := llmrouter.NewVLLMAdapter(envOr("LLM_MODEL", "batvault-control"), httpClient)
	tgi := llmrouter.NewTGIAdapter(httpClient)
	control := llmrouter.PickAdapter(cfg.LLM.ControlEndpoint, vllm, tgi)
	canary := llmrouter.PickAdapter(cfg.LLM.CanaryEndpoint, vllm, tgi)
	return llmrouter.NewRouter(cfg.LLM, control, canary)
}

func main() {
	log.Println("🚪 Starting BatVault Gateway service...")

	cfg := config.Get()
	ctx := context.Background()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis.URL)
	if err != nil {
		log.Printf("⚠️  redis unavailable (%v), running without bundle caching or idempotency/load-shed gating", err)
		redisClient = nil
	}

	memoryURL := envOr("MEMORY_SERVICE_URL", "http://localhost:8081")
	memClient := evidence.NewHTTPMemoryClient(memoryURL, &http.Client{Timeout: time.Duration(cfg.Timeouts.EnrichMs) * time.Millisecond})
	var bundleCache *cache.BundleCache
	if redisClient != nil {
		bundleCache = cache.NewBundleCache(redisClient)
	}
	builder := evidence.NewBuilder(memClient, bundleCache)

	roles := policy.NewRoleLoader(cfg.Policy.PolicyDir)
	router := buildRouter(cfg)

	var idemGuard *idem.Guard
	var shed *loadshed.Sampler
	if redisClient != nil {
		idemGuard = idem.NewGuard(redisClient)
		shed = loadshed.NewSampler(redisClient, time.Duration(cfg.Redis.LoadShedLatencyMs)*time.Millisecond, memoryURL+"/healthz")
	}

	handler := gateway.NewHandler(cfg, roles, builder, router, idemGuard, shed)

	r := mux.NewRouter()
	r.Use(corsMiddleware)
	gateway.Register(r, handler)
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	addr := fmt.Sprintf(":%s", envOr("GATEWAY_PORT", cfg.Server.Port))
	log.Printf("🚀 Gateway service listening on %s", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatalf("gateway: server failed: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
