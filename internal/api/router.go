// Package api serves the deckslayer HTTP surface and the operator MCP tools.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/Bharath-code/deckslayer/internal/auth"
	"github.com/Bharath-code/deckslayer/internal/committee"
	"github.com/Bharath-code/deckslayer/internal/extract"
	"github.com/Bharath-code/deckslayer/internal/metrics"
	"github.com/Bharath-code/deckslayer/internal/payments"
	"github.com/Bharath-code/deckslayer/internal/ratelimit"
	"github.com/Bharath-code/deckslayer/internal/storage"
)

// Committee runs the reviewer personas and the orchestrator.
type Committee interface {
	Analyze(ctx context.Context, req committee.AnalysisRequest, onPartial committee.PartialFunc) (committee.AnalysisResult, error)
	Compare(ctx context.Context, req committee.CompareRequest) (committee.ComparisonResult, error)
	Rebut(ctx context.Context, req committee.RebuttalRequest) (string, error)
}

// Balances reads credit balances. Require returns
// ledger.ErrInsufficientCredit when the user cannot spend n credits.
type Balances interface {
	GetBalance(ctx context.Context, userID string) (int, error)
	Require(ctx context.Context, userID string, n int) error
}

// Records reads stored analyses and market insight aggregates.
type Records interface {
	GetAnalysis(ctx context.Context, id string) (storage.Analysis, error)
	ListAnalyses(ctx context.Context, userID string, limit int) ([]storage.Analysis, error)
	ListComparisons(ctx context.Context, userID string, limit int) ([]storage.Comparison, error)
	CountMarketInsights(ctx context.Context) (int, error)
	SectorStats(ctx context.Context) ([]storage.SectorStat, error)
	NarrativeTagCounts(ctx context.Context, limit int) ([]storage.TagCount, error)
}

// Payments creates checkouts and applies verified webhook events.
type Payments interface {
	Checkout(ctx context.Context, productID, userID, email, analysisID string) (string, error)
	HandleEvent(ctx context.Context, webhookID string, ev payments.Event) (payments.Outcome, error)
}

// Archiver keeps a copy of uploaded decks.
type Archiver interface {
	Archive(ctx context.Context, userID, name string, data []byte) (string, error)
}

type Deps struct {
	Committee Committee
	Ledger    Balances
	Records   Records
	Payments  Payments
	Auth      auth.Authenticator
	Admins    auth.Admins
	Limiter   *ratelimit.Limiter

	AnalyzePolicy ratelimit.Policy
	RebutPolicy   ratelimit.Policy

	WebhookKey string
	Origins    []string

	Archive Archiver                     // optional; nil disables archiving
	Metrics *metrics.Metrics             // optional; nil disables /metrics and instrumentation
	Now     func() time.Time             // optional; webhook clock
	Extract func([]byte) (string, error) // optional; defaults to extract.Text
}

// NewHandler builds the router. Paths used by the browser front-end are also
// mounted under /api with their historical names.
func NewHandler(deps Deps) http.Handler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Extract == nil {
		deps.Extract = extract.Text
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
		r.Handle("/metrics", metrics.Handler())
	}

	r.Get("/health", handleHealth)

	webhook := handleWebhook(deps)
	r.Post("/webhook", webhook)
	r.Post("/api/webhook", webhook)

	r.Group(func(r chi.Router) {
		r.Use(identify(deps.Auth))

		analyze := chain(handleAnalyze(deps), rateLimit(deps, "roast", deps.AnalyzePolicy))
		r.Post("/analyze", analyze)
		r.Post("/api/roast", analyze)

		compare := handleCompare(deps)
		r.Post("/compare", compare)
		r.Post("/api/compare", compare)

		rebut := chain(handleRebut(deps), rateLimit(deps, "interrogate", deps.RebutPolicy))
		r.Post("/rebut", rebut)
		r.Post("/api/interrogate", rebut)

		checkout := handleCheckout(deps)
		r.Post("/checkout", checkout)
		r.Post("/api/checkout", checkout)

		r.Get("/history", handleHistory(deps))
		r.Get("/history/{id}", handleGetAnalysis(deps))
		r.Get("/internal/trends", handleTrends(deps))
	})

	return r
}

func chain(h http.HandlerFunc, mw func(http.Handler) http.Handler) http.HandlerFunc {
	return mw(h).ServeHTTP
}

// identify resolves the caller when credentials are present. Requests without
// credentials, or with rejected ones, continue anonymously; handlers that need
// a user call requireUser.
func identify(a auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.Token(r)
			if token == "" || a == nil {
				next.ServeHTTP(w, r)
				return
			}
			u, err := a.Authenticate(r.Context(), token)
			if err != nil {
				if !errors.Is(err, auth.ErrUnauthenticated) {
					slog.Warn("resolving caller", "error", err)
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), u)))
		})
	}
}

func requireUser(w http.ResponseWriter, r *http.Request) (auth.User, bool) {
	u, ok := auth.FromContext(r.Context())
	if !ok {
		httpError(w, http.StatusUnauthorized, "authentication_error", "Authentication required")
		return auth.User{}, false
	}
	return u, true
}
