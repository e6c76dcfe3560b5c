package api

import (
	"context"
	"log"
	"net/http"

	"routesolver/internal/auth"
	"routesolver/internal/config"
	"routesolver/internal/routing"
	"routesolver/internal/store"
	"routesolver/internal/webhooks"
)

type Server struct {
	Store  store.Store
	Pub    *webhooks.Publisher
	Auth   *auth.Verifier
	Broker EventBroker
	Solver *routing.Solver

	cfg     config.Config
	sem     chan struct{}
	limiter *tenantLimiter
}

// NewServer wires the backends named by cfg. Without DATABASE_URL the store
// is in memory; without REDIS_URL so is the event broker.
func NewServer(cfg config.Config) (*Server, error) {
	var st store.Store
	if cfg.DatabaseURL == "" {
		st = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if cfg.DBMigrate {
			if err := sp.MigrateDir(cfg.MigrationsDir); err != nil {
				return nil, err
			}
		}
		st = sp
	}
	var broker EventBroker = NewBroker()
	if cfg.RedisURL != "" {
		rb, err := NewRedisBroker(cfg.RedisURL)
		if err != nil {
			log.Printf("broker: redis unavailable, using in-memory broker err=%v", err)
		} else {
			broker = rb
		}
	}
	return New(cfg, st, broker), nil
}

// New builds a Server over the given store and broker.
func New(cfg config.Config, st store.Store, broker EventBroker) *Server {
	n := cfg.Solver.MaxConcurrent
	if n <= 0 {
		n = 1
	}
	return &Server{
		Store:   st,
		Pub:     webhooks.NewPublisher(st),
		Auth:    auth.NewVerifier(cfg.Auth),
		Broker:  broker,
		Solver:  routing.NewSolver(),
		cfg:     cfg,
		sem:     make(chan struct{}, n),
		limiter: newTenantLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
	}
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.cfg.Webhooks.MaxAttempts)
}

// Routes registers every endpoint on a new mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Solving
	mux.HandleFunc("/v1/solve", s.SolveHandler)
	mux.HandleFunc("/v1/solve/stops", s.SolveStopsHandler)
	mux.HandleFunc("/v1/solver/config", s.SolverConfigHandler)

	// Solve records and events
	mux.HandleFunc("/v1/solves", s.SolvesIndexHandler)
	mux.HandleFunc("/v1/solves/", s.SolveByIDHandler) // includes /events/stream
	mux.HandleFunc("/v1/ws", s.WSHandler)

	// Subscriptions
	mux.HandleFunc("/v1/subscriptions", s.SubscriptionsHandler)
	mux.HandleFunc("/v1/subscriptions/", s.SubscriptionByIDHandler)

	// Admin
	mux.HandleFunc("/v1/admin/solves/stats", s.SolveStatsHandler)
	mux.HandleFunc("/v1/admin/webhook-deliveries", s.WebhookDeliveriesHandler)
	mux.HandleFunc("/v1/admin/webhook-deliveries/", s.WebhookDeliveryRetryHandler)
	mux.HandleFunc("/v1/admin/webhook-dlq", s.WebhookDLQHandler)
	mux.HandleFunc("/v1/admin/webhook-dlq/", s.WebhookDLQHandler)

	// Ops
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.Handle("/metrics", metricsHandler())
	mux.HandleFunc("/debug/info", s.DebugJSON)
	mux.HandleFunc("/openapi.yaml", s.OpenAPIHandler)
	mux.HandleFunc("/openapi.json", s.OpenAPIJSONHandler)
	mux.HandleFunc("/docs", s.DocsHandler)
	return mux
}

// Handler is Routes behind the request id, metrics and rate limit middleware.
func (s *Server) Handler() http.Handler {
	return withRequestID(instrument(s.rateLimit(s.Routes())))
}

// Close releases the store and broker connections, when they hold any.
func (s *Server) Close() {
	type closer interface{ Close() error }
	if c, ok := s.Store.(closer); ok {
		_ = c.Close()
	}
	if c, ok := s.Broker.(closer); ok {
		_ = c.Close()
	}
}

// acquire takes a solver slot, waiting until one is free or ctx is done.
func (s *Server) acquire(ctx context.Context) (release func(), err error) {
	select {
	case s.sem <- struct{}{}:
		return func() { <-s.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
