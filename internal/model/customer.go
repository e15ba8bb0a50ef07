package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	// ServiceDateLayout is how service window dates are stored and shown (MM/DD/YYYY).
	ServiceDateLayout = "01/02/2006"
	// InputDateLayout is the calendar-picker form (YYYY-MM-DD) admins submit.
	InputDateLayout = "2006-01-02"
)

type Customer struct {
	ID               string    `db:"id"                 json:"id"`
	FirstName        string    `db:"first_name"         json:"firstName"`
	LastName         string    `db:"last_name"          json:"lastName"`
	Email            string    `db:"email"              json:"email"`
	Phone            string    `db:"phone"              json:"phone"`
	Devices          Devices   `db:"devices"            json:"devices"`
	Status           Status    `db:"status"             json:"status"`
	SubscriptionID   *string   `db:"subscription_id"    json:"subscriptionID,omitempty"`
	ServiceStartDate *string   `db:"service_start_date" json:"serviceStartDate,omitempty"`
	ServiceEndDate   *string   `db:"service_end_date"   json:"serviceEndDate,omitempty"`
	CreatedAt        time.Time `db:"created_at"         json:"createdAt"`
	UpdatedAt        time.Time `db:"updated_at"         json:"updatedAt"`
}

// CustomerID derives the record key from an email address.
func CustomerID(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewTransient builds the unsaved record shown to a signed-in customer who has
// never checked out.
func NewTransient(email, firstName, lastName string) Customer {
	if firstName == "" {
		firstName = "Customer"
	}
	return Customer{
		ID:        CustomerID(email),
		FirstName: firstName,
		LastName:  lastName,
		Email:     strings.TrimSpace(email),
		Devices:   Devices{},
		Status:    StatusNoService,
	}
}

func (c Customer) Subscription() string {
	if c.SubscriptionID == nil {
		return ""
	}
	return *c.SubscriptionID
}

// Device is one MAC address / device key pair registered by the customer.
type Device struct {
	MACAddress string `json:"macAddress" validate:"required"`
	DeviceKey  string `json:"deviceKey"  validate:"required"`
}

func (d Device) Complete() bool {
	return strings.TrimSpace(d.MACAddress) != "" && strings.TrimSpace(d.DeviceKey) != ""
}

// Devices is stored as a JSON column.
type Devices []Device

// Complete is false for an empty list or when any entry is missing a field.
func (ds Devices) Complete() bool {
	if len(ds) == 0 {
		return false
	}
	for _, d := range ds {
		if !d.Complete() {
			return false
		}
	}
	return true
}

func (ds Devices) Value() (driver.Value, error) {
	if ds == nil {
		ds = Devices{}
	}
	b, err := json.Marshal(ds)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (ds *Devices) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*ds = Devices{}
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("devices: unsupported scan type %T", src)
	}
	if len(b) == 0 {
		*ds = Devices{}
		return nil
	}
	return json.Unmarshal(b, ds)
}

// FormatServiceDate converts a YYYY-MM-DD picker value to MM/DD/YYYY.
func FormatServiceDate(input string) (string, error) {
	t, err := time.Parse(InputDateLayout, strings.TrimSpace(input))
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", input, err)
	}
	return t.Format(ServiceDateLayout), nil
}
