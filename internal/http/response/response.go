// Package response содержит вспомогательные типы и функции для формирования
// унифицированных JSON‑ответов HTTP‑обработчиков.
package response

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/paywall/internal/lib/apperr"
)

// Response описывает стандартную структуру JSON‑ответа сервера.
// Поле Status — статус запроса ("OK" или "Error").
// Поле Code — машиночитаемый код ошибки (только при неуспехе).
// Поле Error — текст ошибки (опционально, при неуспехе).
// Поле Data — данные ответа (опционально).
type Response struct {
	Status string `json:"status"`
	Code   string `json:"code,omitempty"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// ErrorResponse — структура ошибки для Swagger-документации.
type ErrorResponse struct {
	Status string `json:"status" example:"Error"`
	Code   string `json:"code" example:"INVALID_REQUEST"`
	Error  string `json:"error" example:"invalid request body"`
}

const (
	// StatusOK — значение статуса для успешного ответа.
	StatusOK = "OK"
	// StatusError — значение статуса для ответа с ошибкой.
	StatusError = "Error"
)

var httpStatuses = map[string]int{
	apperr.CodeInvalidCategory:         http.StatusBadRequest,
	apperr.CodeInvalidPlanType:         http.StatusBadRequest,
	apperr.CodeInvalidCouponCode:       http.StatusBadRequest,
	apperr.CodeInvalidDiscount:         http.StatusBadRequest,
	apperr.CodeInvalidRequest:          http.StatusBadRequest,
	apperr.CodePlanNotFound:            http.StatusNotFound,
	apperr.CodeCouponNotFound:          http.StatusNotFound,
	apperr.CodeSubscriptionNotFound:    http.StatusNotFound,
	apperr.CodeCouponExpired:           http.StatusUnprocessableEntity,
	apperr.CodeCouponInactive:          http.StatusUnprocessableEntity,
	apperr.CodeInvalidOrExpiredCoupon:  http.StatusUnprocessableEntity,
	apperr.CodeCouponUsageLimitReached: http.StatusUnprocessableEntity,
	apperr.CodeCouponAlreadyApplied:    http.StatusConflict,
	apperr.CodeSubscriptionExists:      http.StatusConflict,
	apperr.CodeStoreUnavailable:        http.StatusServiceUnavailable,
	apperr.CodePaymentUnavailable:      http.StatusBadGateway,
}

// StatusOKWithData возвращает успешный Response с переданными данными.
func StatusOKWithData(data any) Response {
	return Response{
		Status: StatusOK,
		Data:   data,
	}
}

// Error возвращает Response с ошибкой и переданным сообщением.
func Error(code, msg string) Response {
	return Response{
		Status: StatusError,
		Code:   code,
		Error:  msg,
	}
}

// HTTPStatus переводит код ошибки предметной области в HTTP-статус.
func HTTPStatus(err error) int {
	if st, ok := httpStatuses[apperr.Code(err)]; ok {
		return st
	}
	return http.StatusInternalServerError
}

// FromError строит Response по ошибке. Внутренние ошибки не раскрываются клиенту.
func FromError(err error) Response {
	var e *apperr.Error
	if !errors.As(err, &e) {
		return Error(apperr.CodeInternal, "internal error")
	}
	return Error(e.Code, e.Message)
}

// RenderError пишет ошибку с соответствующим статусом.
func RenderError(w http.ResponseWriter, r *http.Request, err error) {
	render.Status(r, HTTPStatus(err))
	render.JSON(w, r, FromError(err))
}

// RenderErrorWithData пишет ошибку вместе с данными, например итог уже применённого купона.
func RenderErrorWithData(w http.ResponseWriter, r *http.Request, err error, data any) {
	resp := FromError(err)
	resp.Data = data
	render.Status(r, HTTPStatus(err))
	render.JSON(w, r, resp)
}

// ValidationError формирует Response со статусом Error на основе ошибок валидации.
// Каждое нарушение формируется в человеко‑читаемый текст, объединённый через запятую.
func ValidationError(errs validator.ValidationErrors) Response {
	var errsMsgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is a required field", err.Field()))
		case "alphanum":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s can contain only numbers and letters", err.Field()))
		case "numeric":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s can contain only numbers", err.Field()))
		case "uuid":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s can contain only uuid", err.Field()))
		case "oneof":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be one of: %s", err.Field(), err.Param()))
		case "gte":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be at least %s", err.Field(), err.Param()))
		default:
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is not a valid", err.Field()))
		}
	}
	return Response{
		Status: StatusError,
		Code:   apperr.CodeInvalidRequest,
		Error:  strings.Join(errsMsgs, ", "),
	}
}
