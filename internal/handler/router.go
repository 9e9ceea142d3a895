package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/Fodi999/fodi-ledger/internal/middleware"
	"github.com/Fodi999/fodi-ledger/internal/service"
)

// SetupRouter настраивает HTTP-маршруты и middleware леджера.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	if len(h.opts.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: h.opts.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "Content-Encoding"},
			MaxAge:         300,
		}))
	}
	r.Use(custommiddleware.Logger(h.logger))
	if h.opts.Metrics != nil {
		r.Use(custommiddleware.HTTPMetrics(h.opts.Metrics))
	}

	// promhttp сам сжимает ответ по Accept-Encoding
	r.Handle("/metrics", promhttp.HandlerFor(h.opts.Gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(custommiddleware.GzipMiddleware)

		r.Get("/health", h.Health)
		r.Route("/api", h.apiRoutes)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}

func (h *Handler) apiRoutes(r chi.Router) {
	r.Use(h.authMiddleware.Middleware)
	r.Use(callerContext)

	r.Route("/balances/{userID}", func(r chi.Router) {
		r.Get("/", h.GetBalance)
		r.Get("/transactions", h.GetTransactions)
		r.Post("/deposit", h.Deposit)
		r.Post("/withdraw", h.Withdraw)
		r.Post("/purchase", h.Purchase)
		r.Post("/lock", h.Lock)
		r.Post("/unlock", h.Unlock)
	})

	r.Post("/transfers", h.Transfer)

	r.Route("/rewards", func(r chi.Router) {
		r.Post("/order-completion", h.RewardOrderCompletion)
		r.Post("/referral", h.RewardReferral)
		r.Post("/daily-login", h.RewardDailyLogin)
		r.Post("/review", h.RewardReview)
	})

	r.Route("/burns", func(r chi.Router) {
		r.Post("/purchase", h.BurnOnPurchase)
		r.Post("/manual", h.BurnTokens)
	})

	r.Post("/transactions/{txID}/signature", h.AttachSignature)
}

// callerContext переносит имя вызывающей системы из токена в контекст сервиса,
// чтобы оно попало в метаданные операций.
func callerContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := custommiddleware.GetCallerFromContext(r.Context())
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(service.WithCaller(r.Context(), caller)))
	})
}
