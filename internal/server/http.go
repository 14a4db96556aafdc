// Package server assembles the HTTP router and the gRPC server.
package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	healthhandler "github.com/xboybx/Authentication-System/internal/health/handler"
	identityhandler "github.com/xboybx/Authentication-System/internal/identity/handler"
	"github.com/xboybx/Authentication-System/internal/policy/engine"
	"github.com/xboybx/Authentication-System/internal/server/middleware"
	"github.com/xboybx/Authentication-System/internal/server/response"
)

const serviceVersion = "1.0.0"

// Deps holds the dependencies of the HTTP API.
type Deps struct {
	// Auth serves /api/auth and authenticates Bearer tokens.
	Auth interface {
		identityhandler.AuthAPI
		middleware.Authenticator
	}
	// Policy decides admin-only routes.
	Policy engine.Evaluator
	// Health serves /health. If nil, /health always answers ok.
	Health *healthhandler.Server
	// Logger is used by request logging and recovery. Defaults to a no-op logger.
	Logger *zap.Logger
	// CORSOrigins lists allowed browser origins. Empty disables CORS headers.
	CORSOrigins []string
	// RequestTimeout bounds each request context. Zero disables it.
	RequestTimeout time.Duration
}

// NewRouter returns the HTTP handler for the whole API, wrapped in the middleware chain:
// OpenTelemetry, CORS, request context, recovery, logging and timeout.
func NewRouter(deps Deps) http.Handler {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	r := mux.NewRouter()
	r.Use(middleware.Recovery(log), middleware.Logging(log), middleware.Timeout(deps.RequestTimeout))

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	if deps.Health != nil {
		r.Handle("/health", deps.Health).Methods(http.MethodGet)
	} else {
		r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
			response.JSON(w, http.StatusOK, "Server is running", nil)
		}).Methods(http.MethodGet)
	}
	r.HandleFunc("/", serviceInfo).Methods(http.MethodGet)
	r.HandleFunc("/favicon.ico", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	api := r.PathPrefix("/api/auth").Subrouter()
	h := identityhandler.NewHandler(deps.Auth, log)
	h.Routes(api,
		middleware.Authenticate(deps.Auth, log),
		middleware.OptionalAuth(deps.Auth),
		middleware.AuthorizeRoles(deps.Policy, engine.ActionPurgeSessions, log),
	)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, response.CodeNotFound, "Route "+r.URL.Path+" not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, response.CodeNotFound, "Method not allowed")
	})

	var handler http.Handler = middleware.RequestContext(r)
	if len(deps.CORSOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins:   deps.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID", middleware.TokenExpiringHeader},
			AllowCredentials: true,
		}).Handler(handler)
	}
	return otelhttp.NewHandler(handler, "http.request",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

type serviceInfoBody struct {
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

func serviceInfo(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusOK, "Authentication API Server", serviceInfoBody{
		Version: serviceVersion,
		Endpoints: map[string]string{
			"health":  "/health",
			"metrics": "/metrics",
			"auth":    "/api/auth",
		},
	})
}
