package http

import (
	"context"
	"net/http"

	"github.com/jmehdipour/cablesync/internal/http/middleware"
	"github.com/jmehdipour/cablesync/internal/lifecycle"
	"github.com/jmehdipour/cablesync/internal/model"
	"github.com/jmehdipour/cablesync/internal/session"
	echo "github.com/labstack/echo/v4"
)

type selfService interface {
	Me(ctx context.Context, id session.Identity) (model.Customer, bool, error)
	Checkout(ctx context.Context, id session.Identity, subscriptionID string, p lifecycle.Profile) (model.Customer, error)
}

type customerView struct {
	Customer      model.Customer `json:"customer"`
	Stored        bool           `json:"stored"`
	DisplayStatus string         `json:"displayStatus"`
	Bucket        model.Bucket   `json:"bucket"`
	CanCheckout   bool           `json:"canCheckout"`
	Subscribed    bool           `json:"subscribed"`
}

func viewOf(c model.Customer, stored bool) customerView {
	return customerView{
		Customer:      c,
		Stored:        stored,
		DisplayStatus: c.Status.Label(),
		Bucket:        c.Status.Bucket(),
		CanCheckout:   lifecycle.Allowed(lifecycle.ActionCheckout, c.Status),
		Subscribed:    c.Status.Subscribed(),
	}
}

func meHandler(svc selfService) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := middleware.IdentityFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		cust, stored, err := svc.Me(c.Request().Context(), id)
		if err != nil {
			return serviceError(c, "load customer", err)
		}
		return c.JSON(http.StatusOK, viewOf(cust, stored))
	}
}

type checkoutReq struct {
	SubscriptionID string        `json:"subscriptionID" validate:"required"`
	FirstName      string        `json:"firstName"`
	LastName       string        `json:"lastName"`
	Phone          string        `json:"phone"          validate:"required"`
	Devices        model.Devices `json:"devices"        validate:"required,min=1,dive"`
}

// checkoutHandler records a checkout the payment widget reported as approved.
func checkoutHandler(svc selfService) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := middleware.IdentityFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		var req checkoutReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		if err := c.Validate(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": lifecycle.ErrIncompleteForm.Error()})
		}

		cust, err := svc.Checkout(c.Request().Context(), id, req.SubscriptionID, lifecycle.Profile{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Phone:     req.Phone,
			Devices:   req.Devices,
		})
		if err != nil {
			return serviceError(c, "checkout", err)
		}
		return c.JSON(http.StatusOK, viewOf(cust, true))
	}
}
