// Package entitlement реализует HTTP-обработчик проверки прав доступа к платному контенту.
package entitlement

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/paywall/internal/http/middlewarectx"
	"github.com/magabrotheeeer/paywall/internal/http/response"
	"github.com/magabrotheeeer/paywall/internal/lib/apperr"
	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	"github.com/magabrotheeeer/paywall/internal/models"
)

// Resolver вычисляет право доступа пользователя.
type Resolver interface {
	ResolveEntitlement(ctx context.Context, userID string) (models.Entitlement, error)
}

// Handler возвращает текущее право доступа пользователя.
type Handler struct {
	log      *slog.Logger
	resolver Resolver
}

// New создает новый Handler.
func New(log *slog.Logger, resolver Resolver) *Handler {
	return &Handler{
		log:      log,
		resolver: resolver,
	}
}

// ServeHTTP godoc
// @Summary Право доступа
// @Description Возвращает область доступа пользователя. С параметром category_id дополнительно
// @Description сообщает, открыт ли контент этой категории.
// @Tags Entitlement
// @Produce  json
// @Param category_id query string false "Категория контента"
// @Success 200 {object} map[string]any
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 503 {object} response.ErrorResponse "Хранилище недоступно"
// @Router /entitlement [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.entitlement"
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

	ent, err := h.resolver.ResolveEntitlement(r.Context(), userID)
	if err != nil {
		log.Error("failed to resolve entitlement", sl.Err(err))
		response.RenderError(w, r, err)
		return
	}

	data := map[string]any{"entitlement": ent}
	if category := r.URL.Query().Get("category_id"); category != "" {
		data["category_id"] = category
		data["has_access"] = ent.Allows(category)
	}
	render.JSON(w, r, response.StatusOKWithData(data))
}
