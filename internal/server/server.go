package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gogratta/pm-contracts/internal/domain"
	"github.com/gogratta/pm-contracts/internal/server/handler"
	"github.com/gogratta/pm-contracts/internal/server/middleware"
	"github.com/gogratta/pm-contracts/internal/server/ws"
)

const (
	readTimeout  = 15 * time.Second
	writeTimeout = 30 * time.Second
	idleTimeout  = 60 * time.Second
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	RateLimit   int           // requests per client per window, 0 disables
	RateWindow  time.Duration // rate limit window, defaults to one minute
	ReadOnly    bool          // mutating routes are not mounted when set
	Faucet      bool          // mint endpoint is only mounted when set
}

// Handlers aggregates all HTTP handlers the server registers.
type Handlers struct {
	Health     *handler.HealthHandler
	Status     *handler.StatusHandler
	Auth       *handler.AuthHandler
	Conditions *handler.ConditionHandler
	Positions  *handler.PositionHandler
	Transfers  *handler.TransferHandler
	Collateral *handler.CollateralHandler
	Events     *handler.EventHandler
	Pipeline   *handler.PipelineHandler
}

// Auth groups the verifiers the route middleware needs. Sessions guards
// account-scoped ledger writes, Keys guards operator endpoints.
type Auth struct {
	Sessions middleware.SessionVerifier
	Keys     middleware.KeyChecker
}

// Server is the headless HTTP + WebSocket API for the conditional ledger.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer mounts the API and wraps it in the middleware chain. Read
// endpoints are open; ledger writes require a session token and operator
// endpoints require the API key. Read-only deployments do not mount the
// mutating routes at all, so those 404 rather than 403.
func NewServer(cfg Config, handlers Handlers, auth Auth, limiter domain.RateLimiter, wsHub *ws.Hub, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      wrap(routes(cfg, handlers, auth, wsHub), cfg, limiter, logger),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  idleTimeout,
		},
		logger: logger,
	}
}

func routes(cfg Config, handlers Handlers, auth Auth, wsHub *ws.Hub) *http.ServeMux {
	mux := http.NewServeMux()

	session := middleware.Session(auth.Sessions)
	operator := middleware.APIKey(auth.Keys)

	// Health and status (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Condition reads.
	mux.HandleFunc("GET /api/conditions", handlers.Conditions.ListConditions)
	mux.HandleFunc("GET /api/conditions/compute", handlers.Conditions.ComputeConditionID)
	mux.HandleFunc("GET /api/conditions/{id}", handlers.Conditions.GetCondition)

	// Position reads.
	mux.HandleFunc("GET /api/positions", handlers.Positions.ListPositions)
	mux.HandleFunc("GET /api/positions/compute", handlers.Positions.ComputePositionID)
	mux.HandleFunc("GET /api/positions/{id}/balances/{account}", handlers.Positions.GetBalance)

	// Allowance and collateral reads.
	mux.HandleFunc("GET /api/allowances", handlers.Transfers.GetAllowance)
	mux.HandleFunc("GET /api/collateral", handlers.Collateral.ListAssets)
	mux.HandleFunc("GET /api/collateral/{address}", handlers.Collateral.GetAsset)
	mux.HandleFunc("GET /api/collateral/{address}/holdings/{account}", handlers.Collateral.GetHolding)

	// Journal reads.
	mux.HandleFunc("GET /api/events", handlers.Events.ListEvents)

	if !cfg.ReadOnly {
		// Session issuance.
		mux.HandleFunc("POST /api/auth/login", handlers.Auth.Login)

		// Ledger writes, keyed to the session account.
		mux.Handle("POST /api/conditions", session(http.HandlerFunc(handlers.Conditions.PrepareCondition)))
		mux.Handle("POST /api/reports", session(http.HandlerFunc(handlers.Conditions.ReportPayouts)))
		mux.Handle("POST /api/positions/split", session(http.HandlerFunc(handlers.Positions.SplitPosition)))
		mux.Handle("POST /api/positions/merge", session(http.HandlerFunc(handlers.Positions.MergePosition)))
		mux.Handle("POST /api/positions/redeem", session(http.HandlerFunc(handlers.Positions.RedeemPayout)))
		mux.Handle("POST /api/transfers", session(http.HandlerFunc(handlers.Transfers.Transfer)))
		mux.Handle("POST /api/approvals", session(http.HandlerFunc(handlers.Transfers.Approve)))

		// Operator endpoints.
		mux.Handle("POST /api/pipeline/trigger", operator(http.HandlerFunc(handlers.Pipeline.Trigger)))
		if cfg.Faucet {
			mux.Handle("POST /api/collateral/mint", operator(http.HandlerFunc(handlers.Collateral.Mint)))
		}
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	return mux
}

// wrap builds the middleware chain, innermost first.
func wrap(mux *http.ServeMux, cfg Config, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	var h http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start listens until the server fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the ctx deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
