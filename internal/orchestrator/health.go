package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"time"
)

// Pinger checks the synchronization backend. *blackboard.Client satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthServer serves a rank's liveness and tick progress over HTTP.
type HealthServer struct {
	addr   string
	engine *Engine
	pinger Pinger // nil in single-process runs
	server *http.Server
}

// NewHealthServer creates a health server for engine. pinger may be nil.
func NewHealthServer(addr string, engine *Engine, pinger Pinger) *HealthServer {
	return &HealthServer{
		addr:   addr,
		engine: engine,
		pinger: pinger,
	}
}

// Start listens on the configured address and serves in the background.
func (h *HealthServer) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.healthCheckHandler)

	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return err
	}

	h.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[Health] Server error: %v", err)
		}
	}()

	log.Printf("[Health] Listening on %s", ln.Addr())
	return nil
}

// Shutdown gracefully shuts down the health check server.
func (h *HealthServer) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

// healthCheckHandler handles GET /healthz requests.
// Returns 503 once the engine is terminal or Redis is unreachable.
func (h *HealthServer) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{Status: "healthy"}
	code := http.StatusOK

	if h.engine != nil {
		response.Rank = h.engine.opts.Rank
		response.Tick = h.engine.Tick()
		response.Phase = h.engine.Phase().String()
		if h.engine.Phase() == PhaseTerminal {
			response.Status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}

	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.pinger.Ping(ctx); err != nil {
			response.Status = "unhealthy"
			response.Redis = "disconnected"
			response.Error = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			response.Redis = "connected"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(response)
}

// HealthResponse is the JSON response structure for health checks.
type HealthResponse struct {
	Status string `json:"status"`
	Rank   int    `json:"rank"`
	Tick   uint64 `json:"tick"`
	Phase  string `json:"phase,omitempty"`
	Redis  string `json:"redis,omitempty"`
	Error  string `json:"error,omitempty"`
}
