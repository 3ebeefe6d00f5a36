package httpserver

import (
	"net/http"

	"paperledger/internal/health"
	"paperledger/internal/query"
	"paperledger/internal/webhook"

	"github.com/go-chi/chi/v5"
)

type RouterDeps struct {
	WebhookHandler *webhook.Handler
	QueryHandler   *query.Handler
	HealthHandler  *health.Handler
	WSHandler      http.Handler
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(SecurityHeaders)
	r.Use(RateLimitMiddleware)

	r.Get("/health", d.HealthHandler.Ready)
	r.Get("/health/live", d.HealthHandler.Live)
	r.Get("/health/ready", d.HealthHandler.Ready)

	// TradingView only knows one URL, so the webhook stays unversioned.
	r.Post("/tv-webhook", d.WebhookHandler.Webhook)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/trades", d.QueryHandler.Trades)
		r.Get("/summary", d.QueryHandler.Summary)
		r.Get("/wallet", d.QueryHandler.Wallet)
		r.Get("/ledger", d.QueryHandler.Ledger)
		r.Get("/events", d.QueryHandler.Events)
		r.Post("/funds", d.WebhookHandler.Funds)
		r.Get("/ws", d.WSHandler.ServeHTTP)
	})
	return r
}
