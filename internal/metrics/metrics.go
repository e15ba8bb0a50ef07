package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cablesync_transitions_total",
			Help: "Applied customer status transitions by action and resulting status",
		},
		[]string{"action", "to"}, // checkout|activate|end_service|cancel|mark_processed|delete
	)

	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cablesync_webhook_events_total",
			Help: "Payment webhook deliveries by outcome",
		},
		[]string{"outcome"}, // applied|unmatched|noop|ignored|rejected|error
	)

	LifecycleEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cablesync_lifecycle_events_total",
			Help: "Lifecycle events handled by the worker by stage",
		},
		[]string{"stage"}, // stored|notified|notify_failed|poison
	)
)

var once sync.Once

// MustRegister registers the collectors once; serve and worker may both call it.
func MustRegister(r prometheus.Registerer) {
	once.Do(func() {
		r.MustRegister(
			TransitionsTotal,
			WebhookEventsTotal,
			LifecycleEventsTotal,
		)
	})
}
