package model

import "strings"

// Status is the lifecycle stage of a customer record. The string values are
// what the store and the API carry.
type Status string

const (
	StatusNoService         Status = "No service"
	StatusPendingActivation Status = "Pending Activation"
	StatusActive            Status = "Active"
	StatusCanceled          Status = "Canceled"
	StatusCanceledProcessed Status = "Canceled (Processed)"
)

// Statuses lists every status in admin filter order.
var Statuses = []Status{
	StatusPendingActivation,
	StatusActive,
	StatusNoService,
	StatusCanceled,
	StatusCanceledProcessed,
}

func (s Status) String() string { return string(s) }

func (s Status) Valid() bool {
	switch s {
	case StatusNoService, StatusPendingActivation, StatusActive, StatusCanceled, StatusCanceledProcessed:
		return true
	}
	return false
}

// ParseStatus matches case-insensitively; returns (value, true) if valid.
func ParseStatus(raw string) (Status, bool) {
	raw = strings.TrimSpace(raw)
	for _, s := range Statuses {
		if strings.EqualFold(raw, string(s)) {
			return s, true
		}
	}
	return "", false
}

// Bucket groups statuses for display. Both canceled states share one bucket.
type Bucket string

const (
	BucketInactive Bucket = "inactive"
	BucketPending  Bucket = "pending"
	BucketActive   Bucket = "active"
	BucketCanceled Bucket = "canceled"
)

func (s Status) Bucket() Bucket {
	switch s {
	case StatusActive:
		return BucketActive
	case StatusPendingActivation:
		return BucketPending
	case StatusCanceled, StatusCanceledProcessed:
		return BucketCanceled
	default:
		return BucketInactive
	}
}

// Label is the customer-facing name: canceled states collapse to "Canceled".
func (s Status) Label() string {
	if s.Bucket() == BucketCanceled {
		return string(StatusCanceled)
	}
	if s == "" {
		return string(StatusNoService)
	}
	return string(s)
}

// Subscribed reports whether the customer already holds a live checkout
// (Pending Activation or Active) and so cannot start another one.
func (s Status) Subscribed() bool {
	return s == StatusPendingActivation || s == StatusActive
}
