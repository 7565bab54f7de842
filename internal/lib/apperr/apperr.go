// Package apperr описывает таксономию ошибок ядра подписок.
//
// Каждая ошибка имеет стабильный машиночитаемый код и человекочитаемое сообщение.
// HTTP-слой переводит код в статус ответа, сервисы оборачивают сентинели через
// fmt.Errorf("%s: %w", op, apperr.ErrX), поэтому errors.Is и Code работают по всей цепочке.
package apperr

import (
	"errors"
	"fmt"
)

// Error описывает ошибку предметной области с постоянным кодом.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Коды ошибок.
const (
	CodeInvalidCategory         = "INVALID_CATEGORY"
	CodePlanNotFound            = "PLAN_NOT_FOUND"
	CodeInvalidPlanType         = "INVALID_PLAN_TYPE"
	CodeCouponNotFound          = "COUPON_NOT_FOUND"
	CodeCouponExpired           = "COUPON_EXPIRED"
	CodeCouponInactive          = "COUPON_INACTIVE"
	CodeCouponAlreadyApplied    = "COUPON_ALREADY_APPLIED"
	CodeInvalidOrExpiredCoupon  = "INVALID_OR_EXPIRED_COUPON"
	CodeInvalidCouponCode       = "INVALID_COUPON_CODE"
	CodeCouponUsageLimitReached = "COUPON_USAGE_LIMIT_REACHED"
	CodeSubscriptionExists      = "SUBSCRIPTION_ALREADY_EXISTS"
	CodeSubscriptionNotFound    = "SUBSCRIPTION_NOT_FOUND"
	CodeInvalidDiscount         = "INVALID_DISCOUNT"
	CodeInvalidRequest          = "INVALID_REQUEST"
	CodeStoreUnavailable        = "STORE_UNAVAILABLE"
	CodePaymentUnavailable      = "PAYMENT_UNAVAILABLE"
	CodeInternal                = "INTERNAL"
)

var (
	ErrInvalidCategory         = &Error{Code: CodeInvalidCategory, Message: "category must be \"all\" or an existing category id"}
	ErrPlanNotFound            = &Error{Code: CodePlanNotFound, Message: "subscription plan not found"}
	ErrInvalidPlanType         = &Error{Code: CodeInvalidPlanType, Message: "plan type must be monthly, quarterly or yearly"}
	ErrCouponNotFound          = &Error{Code: CodeCouponNotFound, Message: "coupon not found"}
	ErrCouponExpired           = &Error{Code: CodeCouponExpired, Message: "coupon has expired"}
	ErrCouponInactive          = &Error{Code: CodeCouponInactive, Message: "coupon is inactive"}
	ErrCouponAlreadyApplied    = &Error{Code: CodeCouponAlreadyApplied, Message: "coupon already applied to this subscription"}
	ErrInvalidOrExpiredCoupon  = &Error{Code: CodeInvalidOrExpiredCoupon, Message: "invalid or expired coupon"}
	ErrInvalidCouponCode       = &Error{Code: CodeInvalidCouponCode, Message: "malformed coupon code"}
	ErrCouponUsageLimitReached = &Error{Code: CodeCouponUsageLimitReached, Message: "coupon usage limit reached"}
	ErrSubscriptionExists      = &Error{Code: CodeSubscriptionExists, Message: "user already has an active subscription"}
	ErrSubscriptionNotFound    = &Error{Code: CodeSubscriptionNotFound, Message: "subscription not found"}
	ErrInvalidDiscount         = &Error{Code: CodeInvalidDiscount, Message: "discount percentage must be between 0 and 100"}
	ErrInvalidRequest          = &Error{Code: CodeInvalidRequest, Message: "invalid request"}
	ErrStoreUnavailable        = &Error{Code: CodeStoreUnavailable, Message: "storage is temporarily unavailable"}
	ErrPaymentUnavailable      = &Error{Code: CodePaymentUnavailable, Message: "payment provider is temporarily unavailable"}
)

// Unavailable помечает инфраструктурную ошибку хранилища как StoreUnavailable,
// сохраняя исходную причину в цепочке. Причина, которая уже несёт код
// предметной области, только оборачивается.
func Unavailable(op string, cause error) error {
	var e *Error
	if errors.As(cause, &e) {
		return fmt.Errorf("%s: %w", op, cause)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, cause)
}

// Code возвращает код первой ошибки предметной области в цепочке или CodeInternal.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Message возвращает сообщение ошибки предметной области, пригодное для показа пользователю.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// IsRetryable сообщает, можно ли повторить операцию целиком.
// Повторяемы только временные сбои хранилища.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
