package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/jmehdipour/cablesync/internal/http/middleware"
	"github.com/jmehdipour/cablesync/internal/model"
	"github.com/jmehdipour/cablesync/internal/repository"
	"github.com/jmehdipour/cablesync/internal/session"
	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

type adminService interface {
	List(ctx context.Context, id session.Identity, status model.Status, orderBy string) ([]model.Customer, error)
	Get(ctx context.Context, id session.Identity, customerID string) (model.Customer, error)
	Activate(ctx context.Context, id session.Identity, customerID, start, end string) (model.Customer, error)
	EndService(ctx context.Context, id session.Identity, customerID string) (model.Customer, error)
	MarkProcessed(ctx context.Context, id session.Identity, customerID string, confirmed bool) (model.Customer, error)
	Delete(ctx context.Context, id session.Identity, customerID string, confirmed bool) error
}

type adminRow struct {
	model.Customer
	DisplayStatus string       `json:"displayStatus"`
	Bucket        model.Bucket `json:"bucket"`
	Notification  string       `json:"notification,omitempty"`
}

func adminRowOf(c model.Customer) adminRow {
	row := adminRow{Customer: c, DisplayStatus: c.Status.Label(), Bucket: c.Status.Bucket()}
	if c.Status == model.StatusCanceled {
		row.Notification = "Process cancellation of service."
	}
	return row
}

func listCustomersHandler(svc adminService) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, _ := middleware.IdentityFromCtx(c)

		var st model.Status
		if raw := strings.TrimSpace(c.QueryParam("status")); raw != "" && !strings.EqualFold(raw, "all") {
			parsed, ok := model.ParseStatus(raw)
			if !ok {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid status"})
			}
			st = parsed
		}

		orderBy := strings.TrimSpace(c.QueryParam("order_by"))
		if orderBy != "" {
			if _, ok := repository.OrderColumn(orderBy); !ok {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid order_by"})
			}
		}

		list, err := svc.List(c.Request().Context(), id, st, orderBy)
		if err != nil {
			return serviceError(c, "list customers", err)
		}

		rows := make([]adminRow, 0, len(list))
		for _, cust := range list {
			rows = append(rows, adminRowOf(cust))
		}
		return c.JSON(http.StatusOK, map[string]any{
			"count":   len(rows),
			"results": rows,
		})
	}
}

func getCustomerHandler(svc adminService) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, _ := middleware.IdentityFromCtx(c)
		cust, err := svc.Get(c.Request().Context(), id, c.Param("id"))
		if err != nil {
			return serviceError(c, "get customer", err)
		}
		return c.JSON(http.StatusOK, adminRowOf(cust))
	}
}

type activateReq struct {
	StartDate string `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `json:"endDate"   validate:"omitempty,datetime=2006-01-02"`
}

func activateHandler(svc adminService) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, _ := middleware.IdentityFromCtx(c)

		var req activateReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		if err := c.Validate(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "dates must be YYYY-MM-DD"})
		}

		cust, err := svc.Activate(c.Request().Context(), id, c.Param("id"), req.StartDate, req.EndDate)
		if err != nil {
			return serviceError(c, "activate", err)
		}
		return c.JSON(http.StatusOK, adminRowOf(cust))
	}
}

func endServiceHandler(svc adminService) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, _ := middleware.IdentityFromCtx(c)
		cust, err := svc.EndService(c.Request().Context(), id, c.Param("id"))
		if err != nil {
			return serviceError(c, "end service", err)
		}
		return c.JSON(http.StatusOK, adminRowOf(cust))
	}
}

func processCancellationHandler(svc adminService) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, _ := middleware.IdentityFromCtx(c)
		cust, err := svc.MarkProcessed(c.Request().Context(), id, c.Param("id"), confirmed(c))
		if err != nil {
			return serviceError(c, "process cancellation", err)
		}
		return c.JSON(http.StatusOK, adminRowOf(cust))
	}
}

func deleteCustomerHandler(svc adminService) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, _ := middleware.IdentityFromCtx(c)
		if err := svc.Delete(c.Request().Context(), id, c.Param("id"), confirmed(c)); err != nil {
			return serviceError(c, "delete customer", err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func historyHandler(history repository.HistoryRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		rows, err := history.ListByCustomer(c.Request().Context(), c.Param("id"), limit, offset)
		if err != nil {
			log.Errorf("clickhouse history failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(rows),
			"results": rows,
		})
	}
}

// confirmed reads the operator confirmation from ?confirm=true.
func confirmed(c echo.Context) bool {
	ok, _ := strconv.ParseBool(c.QueryParam("confirm"))
	return ok
}
