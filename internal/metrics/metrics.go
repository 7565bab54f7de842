// Package metrics объявляет счётчики Prometheus для HTTP-слоя, подписок, купонов,
// фоновых проходов и кеша прав доступа.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paywall_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "paywall_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	SubscriptionsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paywall_subscriptions_created_total",
			Help: "Total number of subscription records created",
		},
		[]string{"plan", "scope", "status"},
	)

	PaymentsConfirmedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "paywall_payments_confirmed_total",
			Help: "Total number of pending subscriptions activated by payment confirmation",
		},
	)

	CouponsAppliedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paywall_coupon_applications_total",
			Help: "Coupon application attempts by result",
		},
		[]string{"result"},
	)

	SweepProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paywall_sweep_processed_total",
			Help: "Records processed by background sweeps",
		},
		[]string{"sweep"},
	)

	SweepErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paywall_sweep_errors_total",
			Help: "Errors encountered by background sweeps",
		},
		[]string{"sweep"},
	)

	EntitlementLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paywall_entitlement_lookups_total",
			Help: "Entitlement lookups by cache result",
		},
		[]string{"cache"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paywall_notifications_total",
			Help: "Notifications published or delivered",
		},
		[]string{"type", "status"},
	)
)

func RecordHTTPRequest(method, route, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration)
}

func RecordSubscription(plan, scope, status string) {
	SubscriptionsCreatedTotal.WithLabelValues(plan, scope, status).Inc()
}

func RecordPaymentConfirmed() {
	PaymentsConfirmedTotal.Inc()
}

func RecordCouponApplication(result string) {
	CouponsAppliedTotal.WithLabelValues(result).Inc()
}

// RecordSweep учитывает результат одного прохода.
func RecordSweep(sweep string, processed, errs int) {
	SweepProcessedTotal.WithLabelValues(sweep).Add(float64(processed))
	SweepErrorsTotal.WithLabelValues(sweep).Add(float64(errs))
}

func RecordEntitlementLookup(hit bool) {
	if hit {
		EntitlementLookupsTotal.WithLabelValues("hit").Inc()
		return
	}
	EntitlementLookupsTotal.WithLabelValues("miss").Inc()
}

func RecordNotification(kind, status string) {
	NotificationsTotal.WithLabelValues(kind, status).Inc()
}

// Middleware считает запросы по шаблону маршрута chi, чтобы идентификаторы
// из пути не раздували кардинальность.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordHTTPRequest(r.Method, route, strconv.Itoa(status), time.Since(start).Seconds())
	})
}
