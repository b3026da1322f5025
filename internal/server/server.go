// Package server wires the HTTP surface of the gateway: routing,
// middleware and the request handlers.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/doohee323/chat-gateway/internal/config"
	"github.com/doohee323/chat-gateway/internal/identity"
	"github.com/doohee323/chat-gateway/internal/metrics"
	"github.com/doohee323/chat-gateway/internal/provider"
	"github.com/doohee323/chat-gateway/internal/storage"
	"github.com/doohee323/chat-gateway/internal/sync"
	"github.com/doohee323/chat-gateway/internal/tenant"
)

// requestTimeout bounds every inbound request. It must exceed the
// provider's blocking chat timeout.
const requestTimeout = 90 * time.Second

// ProviderClient is the slice of the provider client handlers use.
type ProviderClient interface {
	SendMessage(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error)
	ListConversations(ctx context.Context, user string) ([]provider.Conversation, error)
	ListMessages(ctx context.Context, conversationID, user string) ([]provider.Message, error)
	DeleteConversation(ctx context.Context, conversationID, user string) error
}

// ProviderFactory builds a provider client for a tenant, failing with
// NotConfigured when the tenant has no usable provider config.
type ProviderFactory func(tenantID string) (ProviderClient, error)

// Deps carries everything the HTTP layer needs.
type Deps struct {
	Config         *config.Config
	Store          storage.Store
	Registry       *tenant.Registry
	Resolver       *tenant.Resolver
	Verifier       *identity.Verifier
	Engine         *sync.Engine
	Providers      ProviderFactory
	Metrics        *metrics.GatewayMetrics
	MetricsHandler http.Handler
	Logger         *slog.Logger
}

// Server is the gateway's HTTP front.
type Server struct {
	Router *chi.Mux
	Port   int

	cfg       *config.Config
	store     storage.Store
	registry  *tenant.Registry
	resolver  *tenant.Resolver
	verifier  *identity.Verifier
	engine    *sync.Engine
	providers ProviderFactory
	metrics   *metrics.GatewayMetrics
	logger    *slog.Logger

	httpServer *http.Server
}

// New builds the router with the full middleware stack and all routes.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		Router:    chi.NewRouter(),
		Port:      deps.Config.Server.Port,
		cfg:       deps.Config,
		store:     deps.Store,
		registry:  deps.Registry,
		resolver:  deps.Resolver,
		verifier:  deps.Verifier,
		engine:    deps.Engine,
		providers: deps.Providers,
		metrics:   deps.Metrics,
		logger:    logger,
	}

	r := s.Router
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(CORSMiddleware(s.allowedOrigins))
	r.Use(TimeoutMiddleware(requestTimeout))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "chat-gateway")
	})

	r.Get("/healthz", s.handleHealth)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Get("/conversations", s.handleListConversations)
		r.Get("/conversations/{conversationID}/messages", s.handleListMessages)
		r.Delete("/conversations/{conversationID}", s.handleDeleteConversation)

		r.Post("/sync", s.handleSyncAll)
		r.Post("/sync/me", s.handleSyncMe)
		r.Get("/chat-token", s.handleChatToken)
		r.Get("/status", s.handleStatus)

		r.Get("/cache/conversations", s.handleCachedConversations)
		r.Get("/cache/conversations/{conversationID}/messages", s.handleCachedMessages)

		r.Route("/admin/tenants", func(r chi.Router) {
			r.Get("/", s.handleAdminListTenants)
			r.Post("/", s.handleAdminCreateTenant)
			r.Get("/{tenantID}", s.handleAdminGetTenant)
			r.Put("/{tenantID}", s.handleAdminUpdateTenant)
			r.Delete("/{tenantID}", s.handleAdminDeleteTenant)
		})
	})

	return s
}

// allowedOrigins combines the static CORS list with the per-tenant
// origins carried by the registry snapshot.
func (s *Server) allowedOrigins() []string {
	origins := s.cfg.TokenOriginsList()
	return append(origins, s.resolver.AllowedOrigins()...)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Start serves until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.Port),
		Handler: s.Router,
	}
	s.logger.Info("starting server", slog.Int("port", s.Port))
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
