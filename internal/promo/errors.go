package promo

import "net/http"

type ErrorCode string

const (
	ErrPromoNotFound       ErrorCode = "PROMO_NOT_FOUND"
	ErrPromoInactive       ErrorCode = "PROMO_INACTIVE"
	ErrPromoNotActiveYet   ErrorCode = "PROMO_NOT_ACTIVE_YET"
	ErrPromoExpired        ErrorCode = "PROMO_EXPIRED"
	ErrPromoExhausted      ErrorCode = "PROMO_EXHAUSTED"
	ErrPromoMinOrderNotMet ErrorCode = "PROMO_MIN_ORDER_NOT_MET"
	ErrPromoDiscountZero   ErrorCode = "PROMO_DISCOUNT_ZERO"
)

type Error struct {
	Code       ErrorCode
	Message    string
	StatusCode int
	Details    map[string]any
}

func (e *Error) Error() string {
	return e.Message
}

func newError(code ErrorCode, message string, status int, details map[string]any) *Error {
	return &Error{Code: code, Message: message, StatusCode: status, Details: details}
}

func ValidationError(code ErrorCode, message string, details map[string]any) *Error {
	return newError(code, message, http.StatusBadRequest, details)
}
