// Package subscribe реализует HTTP-обработчики оформления подписки: сразу активной
// и через платёжный шлюз (checkout).
package subscribe

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/paywall/internal/http/middlewarectx"
	"github.com/magabrotheeeer/paywall/internal/http/response"
	"github.com/magabrotheeeer/paywall/internal/lib/apperr"
	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	"github.com/magabrotheeeer/paywall/internal/models"
)

// Service описывает бизнес-логику оформления подписки.
type Service interface {
	Subscribe(ctx context.Context, req models.SubscribeRequest) (*models.SubscribeResult, error)
}

// CheckoutService создаёт pending-запись и платёж в шлюзе.
type CheckoutService interface {
	StartCheckout(ctx context.Context, req models.SubscribeRequest) (*models.CheckoutResult, error)
}

type createFunc func(ctx context.Context, req models.SubscribeRequest) (*models.Subscription, any, error)

// Handler обрабатывает запросы на оформление подписки.
type Handler struct {
	log      *slog.Logger
	create   createFunc
	validate *validator.Validate
	checkout bool
}

// New создает Handler, оформляющий активную подписку.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log: log,
		create: func(ctx context.Context, req models.SubscribeRequest) (*models.Subscription, any, error) {
			res, err := service.Subscribe(ctx, req)
			if err != nil {
				return nil, nil, err
			}
			return res.Subscription, res, nil
		},
		validate: validator.New(),
	}
}

// NewCheckout создает Handler, оформляющий pending-запись и платёж до подтверждения оплаты.
func NewCheckout(log *slog.Logger, service CheckoutService) *Handler {
	return &Handler{
		log: log,
		create: func(ctx context.Context, req models.SubscribeRequest) (*models.Subscription, any, error) {
			res, err := service.StartCheckout(ctx, req)
			if err != nil {
				return nil, nil, err
			}
			return res.Subscription, res, nil
		},
		validate: validator.New(),
		checkout: true,
	}
}

// ServeHTTP godoc
// @Summary Оформить подписку
// @Description Создает подписку на все категории ("all") или на одну категорию по выбранному плану.
// @Tags Subscriptions
// @Accept  json
// @Produce  json
// @Param request body models.DummySubscribe true "Параметры подписки"
// @Success 201 {object} models.SubscribeResult
// @Failure 400 {object} response.ErrorResponse "Некорректный запрос"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "План не найден"
// @Failure 409 {object} response.ErrorResponse "Активная подписка уже есть"
// @Failure 422 {object} response.ErrorResponse "Купон недействителен"
// @Failure 502 {object} response.ErrorResponse "Платёжный шлюз недоступен"
// @Router /subscriptions [post]
// @Router /subscriptions/checkout [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.subscribe"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.Bool("checkout", h.checkout),
	)

	userID, ok := middlewarectx.UserIDFromContext(r.Context())
	if !ok {
		log.Error("user id not found in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error(apperr.CodeInvalidRequest, "unauthorized"))
		return
	}

	var req models.DummySubscribe
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error(apperr.CodeInvalidRequest, "invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			log.Warn("validation failed", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationError(verrs))
			return
		}
		log.Error("failed to validate request", sl.Err(err))
		response.RenderError(w, r, err)
		return
	}

	sreq := models.SubscribeRequest{
		UserID:     userID,
		Category:   req.Category,
		PlanName:   req.PlanName,
		PlanType:   req.PlanType,
		CouponCode: req.CouponCode,
	}

	sub, res, err := h.create(r.Context(), sreq)
	if err != nil {
		log.Warn("failed to create subscription", sl.Err(err))
		response.RenderError(w, r, err)
		return
	}

	log.Info("subscription created",
		slog.String("id", sub.ID),
		slog.String("status", string(sub.Status)),
	)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.StatusOKWithData(res))
}
