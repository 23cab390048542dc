package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/iho/bondtab/internal/adapter/http/handler"
	"github.com/iho/bondtab/internal/adapter/http/middleware"
	"github.com/iho/bondtab/internal/infrastructure/metrics"
	"github.com/iho/bondtab/internal/usecase"
)

// RouterConfig holds dependencies for the router. Optional fields may be nil.
type RouterConfig struct {
	GroupHandler          *handler.GroupHandler
	LedgerHandler         *handler.LedgerHandler
	ExpenseHandler        *handler.ExpenseHandler
	DisputeHandler        *handler.DisputeHandler
	ReputationHandler     *handler.ReputationHandler
	VaultHandler          *handler.VaultHandler
	EventHandler          *handler.EventHandler
	ReconciliationHandler *handler.ReconciliationHandler
	HealthHandler         *handler.HealthHandler

	Authenticator    *middleware.Authenticator
	IdempotencyStore usecase.IdempotencyStore
	IdempotencyTTL   time.Duration
	RateLimiter      *middleware.RateLimiter
	Metrics          *metrics.Metrics
	MetricsHandler   http.Handler
	Logger           zerolog.Logger
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Limit)
	}

	// Health endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		authenticator := cfg.Authenticator
		if authenticator == nil {
			authenticator = middleware.NewAuthenticator(nil, cfg.Metrics)
		}
		r.Use(authenticator.Wrap)

		// Idempotency runs after authentication so keys are scoped per caller
		if cfg.IdempotencyStore != nil {
			idempotency := middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore, cfg.IdempotencyTTL, cfg.Metrics, cfg.Logger)
			r.Use(idempotency.Wrap)
		}

		r.Route("/groups", func(r chi.Router) {
			r.Post("/", cfg.GroupHandler.Create)
			r.Get("/", cfg.GroupHandler.List)

			r.Route("/{group}", func(r chi.Router) {
				r.Get("/", cfg.GroupHandler.Get)

				r.Post("/members", cfg.LedgerHandler.AddMember)
				r.Get("/members", cfg.LedgerHandler.ListMembers)
				r.Get("/members/{address}", cfg.LedgerHandler.GetMember)
				r.Delete("/members/{address}", cfg.LedgerHandler.RemoveMember)

				r.Post("/bond/deposit", cfg.LedgerHandler.DepositBond)
				r.Post("/bond/withdraw", cfg.LedgerHandler.WithdrawBond)

				r.Post("/settlements", cfg.LedgerHandler.SettleBatch)
				r.Post("/settlements/forced", cfg.LedgerHandler.SettleFromBond)
				r.Get("/settlements/suggested", cfg.LedgerHandler.SuggestSettlements)
				r.Get("/consistency", cfg.LedgerHandler.CheckConsistency)

				r.Route("/expenses", func(r chi.Router) {
					r.Post("/", cfg.ExpenseHandler.Propose)
					r.Get("/", cfg.ExpenseHandler.List)
					r.Get("/{id}", cfg.ExpenseHandler.Get)
					r.Post("/{id}/finalize", cfg.ExpenseHandler.Finalize)

					r.Post("/{id}/dispute", cfg.DisputeHandler.Challenge)
					r.Get("/{id}/dispute", cfg.DisputeHandler.Get)
					r.Post("/{id}/dispute/votes", cfg.DisputeHandler.Vote)
					r.Get("/{id}/dispute/votes/{voter}", cfg.DisputeHandler.GetVote)
					r.Post("/{id}/dispute/resolve", cfg.DisputeHandler.Resolve)
				})

				r.Get("/events", cfg.EventHandler.ListByGroup)
				r.Get("/replay", cfg.EventHandler.Replay)
				r.Get("/reconciliation", cfg.ReconciliationHandler.Group)
			})
		})

		r.Get("/members/{address}/groups", cfg.GroupHandler.ListByMember)
		r.Get("/members/{address}/events", cfg.EventHandler.ListByMember)

		r.Get("/reputation", cfg.ReputationHandler.List)
		r.Get("/reputation/{address}", cfg.ReputationHandler.Get)

		r.Route("/registry", func(r chi.Router) {
			r.Get("/capabilities/{address}", cfg.ReputationHandler.Capabilities)
			r.Post("/factories", cfg.ReputationHandler.GrantFactory)
			r.Post("/reporters", cfg.ReputationHandler.GrantReporter)
		})

		r.Route("/vault", func(r chi.Router) {
			r.Post("/approve", cfg.VaultHandler.Approve)
			r.Post("/mint", cfg.VaultHandler.Mint)
			r.Get("/balances/{address}", cfg.VaultHandler.Balance)
			r.Get("/allowances/{owner}/{spender}", cfg.VaultHandler.Allowance)
		})

		r.Get("/reconciliation", cfg.ReconciliationHandler.Report)
	})

	return r
}
