package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/smallbiznis/classbill/internal/checkout/domain"
	"github.com/smallbiznis/classbill/internal/gateway"
	plandomain "github.com/smallbiznis/classbill/internal/plan/domain"
	userdomain "github.com/smallbiznis/classbill/internal/user/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	case errors.Is(err, plandomain.ErrInvalidInterval):
		return http.StatusBadRequest, validationPayload("interval", "invalid_interval")
	case errors.Is(err, plandomain.ErrPlanPriceMissing):
		return http.StatusBadRequest, validationPayload("interval", "plan_price_missing")
	case errors.Is(err, checkoutdomain.ErrInvalidPlanType):
		return http.StatusBadRequest, validationPayload("plan_type", "invalid_plan_type")
	case errors.Is(err, checkoutdomain.ErrInvalidCouponMode):
		return http.StatusBadRequest, validationPayload("coupon_mode", "invalid_coupon_mode")
	case errors.Is(err, checkoutdomain.ErrMissingPaymentRef):
		return http.StatusBadRequest, validationPayload("subscription_id", "missing_payment_reference")
	case errors.Is(err, gateway.ErrInvalidSignature):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_signature",
			Message: "invalid webhook signature",
		}
	case errors.Is(err, checkoutdomain.ErrCustomerMismatch):
		return http.StatusNotFound, errorPayload{
			Type:    "customer_mismatch",
			Message: "subscription does not belong to this customer",
		}
	case errors.Is(err, plandomain.ErrPlanNotFound),
		errors.Is(err, userdomain.ErrUserNotFound),
		errors.Is(err, gateway.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isGatewayError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "gateway_error",
			Message: gatewayErrorMessage(err),
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func validationPayload(field, code string) errorPayload {
	return errorPayload{
		Type:    "validation_error",
		Message: "validation error",
		Errors: []ValidationError{
			{Field: field, Code: code, Message: code},
		},
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isGatewayError(err error) bool {
	var gwErr *gateway.Error
	return errors.As(err, &gwErr)
}

func gatewayErrorMessage(err error) string {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) && gwErr.Message != "" {
		return gwErr.Message
	}
	return "payment gateway error"
}
