// Package applycoupon реализует HTTP-обработчик применения купона к активной подписке.
package applycoupon

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

// Service описывает бизнес-логику применения купона.
type Service interface {
	ApplyCoupon(ctx context.Context, req models.ApplyCouponRequest) (*models.ApplyCouponResult, error)
}

// Handler обрабатывает запросы на применение купона.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Применить купон
// @Description Применяет купон к самой свежей активной подписке пользователя в выбранной области.
// @Description Повторное применение возвращает 409 вместе с неизменённой подпиской.
// @Tags Subscriptions
// @Accept  json
// @Produce  json
// @Param request body models.DummyApplyCoupon true "Купон и область подписки"
// @Success 200 {object} models.ApplyCouponResult
// @Failure 400 {object} response.ErrorResponse "Некорректный запрос"
// @Failure 404 {object} response.ErrorResponse "Подписка или купон не найдены"
// @Failure 409 {object} response.ErrorResponse "Купон уже применён"
// @Failure 422 {object} response.ErrorResponse "Купон истёк или исчерпан"
// @Router /subscriptions/apply-coupon [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.applycoupon"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userID, ok := middlewarectx.UserIDFromContext(r.Context())
	if !ok {
		log.Error("user id not found in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error(apperr.CodeInvalidRequest, "unauthorized"))
		return
	}

	var req models.DummyApplyCoupon
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
		response.RenderError(w, r, err)
		return
	}

	res, err := h.service.ApplyCoupon(r.Context(), models.ApplyCouponRequest{
		UserID:     userID,
		Category:   req.Category,
		PlanID:     req.PlanID,
		CouponCode: req.CouponCode,
	})
	if errors.Is(err, apperr.ErrCouponAlreadyApplied) && res != nil {
		log.Info("coupon already applied", slog.String("subscription_id", res.Subscription.ID))
		response.RenderErrorWithData(w, r, err, res)
		return
	}
	if err != nil {
		log.Warn("failed to apply coupon", sl.Err(err))
		response.RenderError(w, r, err)
		return
	}

	log.Info("coupon applied",
		slog.String("subscription_id", res.Subscription.ID),
		slog.String("discount_amount", res.DiscountAmount.String()),
	)
	render.JSON(w, r, response.StatusOKWithData(res))
}
