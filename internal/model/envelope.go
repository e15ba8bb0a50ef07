package model

import "time"

// Actor is who triggered a lifecycle transition.
type Actor string

const (
	ActorCustomer Actor = "customer"
	ActorAdmin    Actor = "admin"
	ActorWebhook  Actor = "webhook"
)

func (a Actor) String() string { return string(a) }

// LifecycleEvent is the payload written to the outbox for every applied
// transition and consumed by the lifecycle worker.
type LifecycleEvent struct {
	ID             string    `json:"id"` // ULID
	CustomerID     string    `json:"customer_id"`
	Email          string    `json:"email"`
	From           Status    `json:"from"`
	To             Status    `json:"to"`
	Actor          Actor     `json:"actor"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	Deleted        bool      `json:"deleted,omitempty"`
	At             time.Time `json:"at"`
}

// StatusChange is a row of the ClickHouse status history.
type StatusChange struct {
	EventID        string    `db:"event_id"        json:"eventID"`
	CustomerID     string    `db:"customer_id"     json:"customerID"`
	FromStatus     string    `db:"from_status"     json:"from"`
	ToStatus       string    `db:"to_status"       json:"to"`
	Actor          string    `db:"actor"           json:"actor"`
	SubscriptionID string    `db:"subscription_id" json:"subscriptionID,omitempty"`
	Deleted        uint8     `db:"deleted"         json:"deleted"`
	At             time.Time `db:"at"              json:"at"`
}

// StatusChange flattens the event into a history row.
func (e LifecycleEvent) StatusChange() StatusChange {
	var deleted uint8
	if e.Deleted {
		deleted = 1
	}
	return StatusChange{
		EventID:        e.ID,
		CustomerID:     e.CustomerID,
		FromStatus:     e.From.String(),
		ToStatus:       e.To.String(),
		Actor:          e.Actor.String(),
		SubscriptionID: e.SubscriptionID,
		Deleted:        deleted,
		At:             e.At,
	}
}
