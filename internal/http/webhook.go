package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/jmehdipour/cablesync/internal/http/middleware"
	"github.com/jmehdipour/cablesync/internal/logger"
	"github.com/jmehdipour/cablesync/internal/metrics"
	"github.com/jmehdipour/cablesync/internal/service/customers"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// EventSubscriptionCancelled is the only payment event acted upon.
const EventSubscriptionCancelled = "BILLING.SUBSCRIPTION.CANCELLED"

const maxWebhookBody = 1 << 20

type webhookEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID string `json:"id"`
	} `json:"resource"`
}

type subscriptionCanceler interface {
	CancelSubscription(ctx context.Context, subscriptionID string) (customers.CancelResult, error)
}

type webhookConfig struct {
	Secret          string
	SignatureHeader string
}

// paymentWebhookHandler acknowledges every well-formed delivery with 200 and
// answers 500 only when the store could not be reached, so the provider
// redelivers.
func paymentWebhookHandler(svc subscriptionCanceler, cfg webhookConfig) echo.HandlerFunc {
	return func(c echo.Context) error {
		body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
		if err != nil {
			metrics.WebhookEventsTotal.WithLabelValues("rejected").Inc()
			return c.String(http.StatusBadRequest, "Bad Request")
		}

		if cfg.Secret != "" {
			if !middleware.VerifySignature(body, c.Request().Header.Get(cfg.SignatureHeader), cfg.Secret) {
				metrics.WebhookEventsTotal.WithLabelValues("rejected").Inc()
				logger.Log.Warn("webhook signature mismatch", zap.String("remote", c.RealIP()))
				return c.String(http.StatusUnauthorized, "Invalid signature")
			}
		}

		var ev webhookEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			metrics.WebhookEventsTotal.WithLabelValues("rejected").Inc()
			return c.String(http.StatusBadRequest, "Bad Request")
		}

		log := logger.Log.With(zap.String("event_id", ev.ID), zap.String("event_type", ev.EventType))
		if ev.EventType != EventSubscriptionCancelled {
			metrics.WebhookEventsTotal.WithLabelValues("ignored").Inc()
			log.Debug("webhook event ignored")
			return c.String(http.StatusOK, "OK")
		}

		subID := strings.TrimSpace(ev.Resource.ID)
		if subID == "" {
			metrics.WebhookEventsTotal.WithLabelValues("ignored").Inc()
			log.Warn("cancellation event without subscription id")
			return c.String(http.StatusOK, "OK")
		}

		log.Info("received subscription cancellation", zap.String("subscription_id", subID))
		res, err := svc.CancelSubscription(c.Request().Context(), subID)
		if err != nil {
			metrics.WebhookEventsTotal.WithLabelValues("error").Inc()
			log.Error("cancel subscription failed", zap.String("subscription_id", subID), zap.Error(err))
			return c.String(http.StatusInternalServerError, "Error")
		}

		switch {
		case res.Matched == 0:
			metrics.WebhookEventsTotal.WithLabelValues("unmatched").Inc()
		case res.Updated == 0:
			metrics.WebhookEventsTotal.WithLabelValues("noop").Inc()
		default:
			metrics.WebhookEventsTotal.WithLabelValues("applied").Inc()
		}
		return c.String(http.StatusOK, "OK")
	}
}
