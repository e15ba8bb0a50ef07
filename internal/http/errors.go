package http

import (
	"errors"
	"net/http"

	"github.com/jmehdipour/cablesync/internal/lifecycle"
	"github.com/jmehdipour/cablesync/internal/logger"
	"github.com/jmehdipour/cablesync/internal/service/customers"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// serviceError maps service errors to responses. Anything unrecognized is a
// store failure: logged and answered 500 with no detail.
func serviceError(c echo.Context, op string, err error) error {
	status, msg := http.StatusInternalServerError, "store error"
	switch {
	case errors.Is(err, lifecycle.ErrForbidden):
		status, msg = http.StatusForbidden, "access denied"
	case errors.Is(err, customers.ErrNotFound):
		status, msg = http.StatusNotFound, "customer not found"
	case errors.Is(err, lifecycle.ErrInvalidTransition),
		errors.Is(err, customers.ErrSubscriptionInUse):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, customers.ErrConfirmationRequired):
		status, msg = http.StatusPreconditionRequired, err.Error()
	case errors.Is(err, lifecycle.ErrMissingDates),
		errors.Is(err, lifecycle.ErrInvalidDates),
		errors.Is(err, lifecycle.ErrIncompleteForm),
		errors.Is(err, lifecycle.ErrMissingSubscription):
		status, msg = http.StatusBadRequest, err.Error()
	default:
		logger.Log.Error(op+" failed", zap.Error(err))
	}
	return c.JSON(status, map[string]string{"error": msg})
}
