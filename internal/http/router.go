package httpx

import (
	"context"
	"net/http"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wasmgate/internal/service/admission"
	"wasmgate/internal/service/apikey"
	"wasmgate/internal/service/auth"
	"wasmgate/internal/service/sandbox"
	"wasmgate/internal/service/usage"
	"wasmgate/internal/ws"
	"wasmgate/pkg/config"
)

// Router wires HTTP endpoints to the core pipeline.
type Router struct {
	mux       *http.ServeMux
	logger    *slog.Logger
	cfg       config.APIConfig
	auth      *auth.Service
	admission *admission.Controller
	executor  *sandbox.Service
	recorder  *usage.Recorder
	keys      *apikey.Service
	usageHub  *ws.Hub
	upgrader  websocket.Upgrader
	dbHealth  func(context.Context) error
}

const healthCheckTimeout = 2 * time.Second

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, cfg config.APIConfig, authSvc *auth.Service, controller *admission.Controller, executor *sandbox.Service, recorder *usage.Recorder, keys *apikey.Service, usageHub *ws.Hub, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:       http.NewServeMux(),
		logger:    logger,
		cfg:       cfg,
		auth:      authSvc,
		admission: controller,
		executor:  executor,
		recorder:  recorder,
		keys:      keys,
		usageHub:  usageHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		dbHealth: dbHealth,
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to the underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/v1/execute", r.audit("/v1/execute", r.requireAuth(r.withAdmission(r.handleExecute))))
	r.mux.HandleFunc("/admin/keys", r.audit("/admin/keys", r.requireAdmin(r.handleKeys)))
	r.mux.HandleFunc("/admin/keys/", r.audit("/admin/keys/", r.requireAdmin(r.handleKeyByID)))
	r.mux.HandleFunc("/ws/usage", r.requireAdmin(r.handleUsageFeed))
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
	defer cancel()

	status := http.StatusOK
	checks := map[string]string{"database": "ok"}
	if r.dbHealth != nil {
		if err := r.dbHealth(ctx); err != nil {
			checks["database"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, map[string]any{"status": http.StatusText(status), "checks": checks})
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
