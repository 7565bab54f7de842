// Package paymentwebhook принимает уведомления платёжного шлюза и активирует оплаченные подписки.
package paymentwebhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/paywall/internal/http/response"
	"github.com/magabrotheeeer/paywall/internal/lib/apperr"
	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	"github.com/magabrotheeeer/paywall/internal/models"
)

// SignatureHeader — заголовок с подписью тела запроса.
const SignatureHeader = "X-Api-Signature"

// События шлюза.
const (
	PaymentSucceeded         = "payment.succeeded"
	PaymentWaitingForCapture = "payment.waiting_for_capture"
	PaymentCanceled          = "payment.canceled"
	PaymentRefunded          = "payment.refunded"
)

const maxBodyBytes = 1 << 20

// Service активирует pending-запись по подтверждённому платежу.
type Service interface {
	MarkPaymentConfirmed(ctx context.Context, recordID, paymentID string) (*models.Subscription, error)
}

// Handler проверяет подпись уведомления и обрабатывает событие.
type Handler struct {
	log           *slog.Logger
	service       Service
	webhookSecret string
}

// New создает Handler с секретом для проверки подписи.
func New(log *slog.Logger, service Service, secret string) *Handler {
	return &Handler{
		log:           log,
		service:       service,
		webhookSecret: secret,
	}
}

// Payload — тело уведомления шлюза.
type Payload struct {
	Event  string `json:"event"`
	Object struct {
		ID     string `json:"id"`     // payment ID
		Status string `json:"status"` // статус платежа
		Amount struct {
			Value    string `json:"value"`
			Currency string `json:"currency"`
		} `json:"amount"`
		Metadata map[string]string `json:"metadata"` // subscription_id и др.
	} `json:"object"`
}

// Sign возвращает подпись body: base64(HMAC-SHA256(secret, body)).
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func verifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}

// ServeHTTP godoc
// @Summary Уведомление об оплате
// @Description Принимает событие платёжного шлюза. payment.succeeded активирует pending-подписку из metadata.subscription_id.
// @Tags Payments
// @Accept  json
// @Produce  json
// @Param X-Api-Signature header string true "base64(HMAC-SHA256(body))"
// @Success 200 {object} map[string]any
// @Failure 400 {object} response.ErrorResponse "Некорректное тело"
// @Failure 401 {object} response.ErrorResponse "Неверная подпись"
// @Failure 404 {object} response.ErrorResponse "Подписка не найдена"
// @Router /payments/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.webhook"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error(apperr.CodeInvalidRequest, "invalid request body"))
		return
	}

	if !verifySignature(h.webhookSecret, body, r.Header.Get(SignatureHeader)) {
		log.Warn("invalid or missing webhook signature")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error(apperr.CodeInvalidRequest, "invalid signature"))
		return
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Error("failed to unmarshal webhook payload", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error(apperr.CodeInvalidRequest, "invalid request body"))
		return
	}
	log = log.With(slog.String("event", payload.Event), slog.String("payment_id", payload.Object.ID))

	if strings.ToLower(payload.Event) != PaymentSucceeded {
		log.Info("ignored webhook event")
		render.JSON(w, r, response.StatusOKWithData(map[string]any{"processed": false}))
		return
	}

	recordID := payload.Object.Metadata["subscription_id"]
	if recordID == "" {
		log.Error("subscription_id missing in metadata")
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error(apperr.CodeInvalidRequest, "metadata.subscription_id is required"))
		return
	}

	sub, err := h.service.MarkPaymentConfirmed(r.Context(), recordID, payload.Object.ID)
	if err != nil {
		log.Error("failed to confirm payment", slog.String("subscription_id", recordID), sl.Err(err))
		response.RenderError(w, r, err)
		return
	}

	log.Info("payment confirmed", slog.String("subscription_id", sub.ID))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"processed":    true,
		"subscription": sub,
	}))
}
