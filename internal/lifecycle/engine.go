// Package lifecycle holds the customer status rules: which statuses exist,
// which transitions are valid, who may trigger them, and which fields each
// transition writes. It does no I/O; callers persist the returned Change
// atomically and only then mirror it with Change.Apply.
package lifecycle

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jmehdipour/cablesync/internal/model"
	"github.com/jmehdipour/cablesync/internal/util"
)

type Action string

const (
	ActionCheckout      Action = "checkout"
	ActionActivate      Action = "activate"
	ActionEndService    Action = "end_service"
	ActionCancel        Action = "cancel"
	ActionMarkProcessed Action = "mark_processed"
	ActionDelete        Action = "delete"
)

func (a Action) String() string { return string(a) }

var (
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrForbidden           = errors.New("actor may not perform this action")
	ErrMissingDates        = errors.New("start and end dates are required")
	ErrInvalidDates        = errors.New("invalid service dates")
	ErrIncompleteForm      = errors.New("phone and device details are incomplete")
	ErrMissingSubscription = errors.New("subscription id is required")
	ErrUnknownAction       = errors.New("unknown action")
)

type rule struct {
	actor model.Actor
	from  []model.Status
	to    model.Status
	// noop lists source statuses where the action is accepted without effect.
	noop []model.Status
}

var rules = map[Action]rule{
	ActionCheckout: {
		actor: model.ActorCustomer,
		from:  []model.Status{model.StatusNoService, model.StatusCanceled, model.StatusCanceledProcessed},
		to:    model.StatusPendingActivation,
	},
	ActionActivate: {
		actor: model.ActorAdmin,
		from:  []model.Status{model.StatusPendingActivation, model.StatusNoService, model.StatusCanceled, model.StatusCanceledProcessed},
		to:    model.StatusActive,
	},
	ActionEndService: {
		actor: model.ActorAdmin,
		from:  []model.Status{model.StatusActive},
		to:    model.StatusNoService,
	},
	ActionCancel: {
		actor: model.ActorWebhook,
		from:  []model.Status{model.StatusActive, model.StatusPendingActivation},
		to:    model.StatusCanceled,
		noop:  []model.Status{model.StatusCanceled, model.StatusCanceledProcessed, model.StatusNoService},
	},
	ActionMarkProcessed: {
		actor: model.ActorAdmin,
		from:  []model.Status{model.StatusCanceled},
		to:    model.StatusCanceledProcessed,
	},
	ActionDelete: {
		actor: model.ActorAdmin,
	},
}

// Allowed reports whether action is a valid transition out of status.
func Allowed(action Action, status model.Status) bool {
	r, ok := rules[action]
	if !ok {
		return false
	}
	if action == ActionDelete {
		return true
	}
	return contains(r.from, normalize(status))
}

// Profile is the self-service form merged into the record on checkout.
type Profile struct {
	FirstName string
	LastName  string
	Phone     string
	Devices   model.Devices
}

// Eligible is the checkout gate: ten phone digits and a non-empty list of
// complete devices.
func (p Profile) Eligible() bool {
	return util.ValidPhone(p.Phone) && p.Devices.Complete()
}

// Request asks for one transition.
type Request struct {
	Action         Action
	Actor          model.Actor
	SubscriptionID string  // checkout
	StartDate      string  // activate, YYYY-MM-DD
	EndDate        string  // activate, YYYY-MM-DD
	Profile        Profile // checkout
}

// Change is the composite update a transition produces. All fields are
// written together or not at all.
type Change struct {
	Action Action
	Actor  model.Actor
	From   model.Status
	To     model.Status

	// Noop is set when the request is valid but changes nothing (a redelivered
	// cancellation). Callers skip the store write.
	Noop   bool
	Delete bool

	SetSubscription   string
	ClearSubscription bool

	StartDate   string // MM/DD/YYYY
	EndDate     string // MM/DD/YYYY
	ClearWindow bool

	Profile *Profile
}

// Plan validates req against the current record and returns the change to persist.
func Plan(c model.Customer, req Request) (Change, error) {
	r, ok := rules[req.Action]
	if !ok {
		return Change{}, fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
	}
	if req.Actor != r.actor {
		return Change{}, fmt.Errorf("%w: %s cannot %s", ErrForbidden, req.Actor, req.Action)
	}

	from := normalize(c.Status)
	ch := Change{Action: req.Action, Actor: req.Actor, From: from, To: r.to}

	if req.Action == ActionDelete {
		ch.To = from
		ch.Delete = true
		return ch, nil
	}

	if contains(r.noop, from) {
		ch.To = from
		ch.Noop = true
		return ch, nil
	}
	if !contains(r.from, from) {
		return Change{}, fmt.Errorf("%w: %s from %q", ErrInvalidTransition, req.Action, from)
	}

	switch req.Action {
	case ActionCheckout:
		sub := strings.TrimSpace(req.SubscriptionID)
		if sub == "" {
			return Change{}, ErrMissingSubscription
		}
		if !req.Profile.Eligible() {
			return Change{}, ErrIncompleteForm
		}
		p := req.Profile
		p.Phone = util.FormatPhone(p.Phone)
		p.Devices = trimDevices(p.Devices)
		ch.Profile = &p
		ch.SetSubscription = sub

	case ActionActivate:
		if strings.TrimSpace(req.StartDate) == "" || strings.TrimSpace(req.EndDate) == "" {
			return Change{}, ErrMissingDates
		}
		start, err := model.FormatServiceDate(req.StartDate)
		if err != nil {
			return Change{}, fmt.Errorf("%w: %v", ErrInvalidDates, err)
		}
		end, err := model.FormatServiceDate(req.EndDate)
		if err != nil {
			return Change{}, fmt.Errorf("%w: %v", ErrInvalidDates, err)
		}
		if strings.TrimSpace(req.EndDate) < strings.TrimSpace(req.StartDate) {
			return Change{}, fmt.Errorf("%w: end %s is before start %s", ErrInvalidDates, req.EndDate, req.StartDate)
		}
		ch.StartDate, ch.EndDate = start, end

	case ActionEndService:
		ch.ClearWindow = true
		ch.ClearSubscription = true
	}

	return ch, nil
}

// Apply mirrors the change onto an in-memory record.
func (ch Change) Apply(c model.Customer) model.Customer {
	if ch.Noop || ch.Delete {
		return c
	}
	c.Status = ch.To
	if ch.Profile != nil {
		if ch.Profile.FirstName != "" {
			c.FirstName = ch.Profile.FirstName
		}
		if ch.Profile.LastName != "" {
			c.LastName = ch.Profile.LastName
		}
		c.Phone = ch.Profile.Phone
		c.Devices = append(model.Devices(nil), ch.Profile.Devices...)
	}
	if ch.SetSubscription != "" {
		sub := ch.SetSubscription
		c.SubscriptionID = &sub
	}
	if ch.ClearSubscription {
		c.SubscriptionID = nil
	}
	if ch.StartDate != "" {
		start, end := ch.StartDate, ch.EndDate
		c.ServiceStartDate, c.ServiceEndDate = &start, &end
	}
	if ch.ClearWindow {
		c.ServiceStartDate, c.ServiceEndDate = nil, nil
	}
	return c
}

// Event describes the applied change for the outbox.
func (ch Change) Event(c model.Customer) model.LifecycleEvent {
	sub := c.Subscription()
	if ch.SetSubscription != "" {
		sub = ch.SetSubscription
	}
	return model.LifecycleEvent{
		CustomerID:     c.ID,
		Email:          c.Email,
		From:           ch.From,
		To:             ch.To,
		Actor:          ch.Actor,
		SubscriptionID: sub,
		Deleted:        ch.Delete,
	}
}

// a missing status on a stored record reads as the initial one
func normalize(s model.Status) model.Status {
	if s == "" {
		return model.StatusNoService
	}
	return s
}

func trimDevices(ds model.Devices) model.Devices {
	out := make(model.Devices, 0, len(ds))
	for _, d := range ds {
		out = append(out, model.Device{
			MACAddress: strings.TrimSpace(d.MACAddress),
			DeviceKey:  strings.TrimSpace(d.DeviceKey),
		})
	}
	return out
}

func contains(list []model.Status, s model.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
