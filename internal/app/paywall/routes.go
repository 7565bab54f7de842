package paywall

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/paywall/internal/config"
	"github.com/magabrotheeeer/paywall/internal/http/handlers/entitlement"
	"github.com/magabrotheeeer/paywall/internal/http/handlers/health"
	"github.com/magabrotheeeer/paywall/internal/http/handlers/payment/paymentwebhook"
	"github.com/magabrotheeeer/paywall/internal/http/handlers/subscription/applycoupon"
	"github.com/magabrotheeeer/paywall/internal/http/handlers/subscription/history"
	"github.com/magabrotheeeer/paywall/internal/http/handlers/subscription/subscribe"
	"github.com/magabrotheeeer/paywall/internal/http/middlewarectx"
	"github.com/magabrotheeeer/paywall/internal/metrics"
)

// SubscriptionService — операции над подписками, доступные через HTTP.
type SubscriptionService interface {
	subscribe.Service
	applycoupon.Service
	history.Service
	paymentwebhook.Service
}

// Deps собирает зависимости маршрутов.
type Deps struct {
	Subscriptions SubscriptionService
	Checkout      subscribe.CheckoutService
	Entitlements  entitlement.Resolver
	Tokens        middlewarectx.TokenParser
	Health        map[string]health.Pinger
	WebhookSecret string
	RateLimit     config.RateLimit
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, d Deps) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		metrics.Middleware,
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middlewarectx.RateLimitMiddleware(logger, d.RateLimit))

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(d.Tokens, logger))
			r.Post("/subscriptions", subscribe.New(logger, d.Subscriptions).ServeHTTP)
			r.Post("/subscriptions/checkout", subscribe.NewCheckout(logger, d.Checkout).ServeHTTP)
			r.Post("/subscriptions/apply-coupon", applycoupon.New(logger, d.Subscriptions).ServeHTTP)
			r.Get("/subscriptions/history", history.New(logger, d.Subscriptions).ServeHTTP)
			r.Get("/entitlement", entitlement.New(logger, d.Entitlements).ServeHTTP)
		})

		// Webhook подписан HMAC, JWT не нужен
		r.Post("/payments/webhook", paymentwebhook.New(logger, d.Subscriptions, d.WebhookSecret).ServeHTTP)
	})

	r.Get("/health", health.New(logger, d.Health).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
