package console

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmehdipour/cablesync/internal/client"
	"github.com/jmehdipour/cablesync/internal/lifecycle"
	"github.com/jmehdipour/cablesync/internal/model"
	"github.com/jmehdipour/cablesync/internal/util"
)

type SelfAPI interface {
	Me(ctx context.Context) (client.Me, error)
	Checkout(ctx context.Context, req client.CheckoutRequest) (client.Me, error)
}

// SelfService is the customer's form: phone, devices and the checkout gate.
type SelfService struct {
	api SelfAPI

	record  model.Customer
	stored  bool
	phone   string
	devices model.Devices
}

func NewSelfService(api SelfAPI) *SelfService {
	return &SelfService{api: api}
}

// Load reads the caller's record and seeds the form from it. A customer
// without devices starts with one blank row.
func (s *SelfService) Load(ctx context.Context) error {
	me, err := s.api.Me(ctx)
	if err != nil {
		return fmt.Errorf("load record: %w", err)
	}
	s.setRecord(me)
	return nil
}

func (s *SelfService) setRecord(me client.Me) {
	s.record, s.stored = me.Customer, me.Stored
	s.phone = util.FormatPhone(me.Customer.Phone)
	s.devices = append(model.Devices(nil), me.Customer.Devices...)
	if len(s.devices) == 0 {
		s.devices = model.Devices{{}}
	}
}

func (s *SelfService) Record() model.Customer { return s.record }
func (s *SelfService) Stored() bool           { return s.stored }
func (s *SelfService) Phone() string          { return s.phone }

func (s *SelfService) Devices() model.Devices {
	return append(model.Devices(nil), s.devices...)
}

// SetPhone keeps the display form of whatever was typed.
func (s *SelfService) SetPhone(raw string) string {
	s.phone = util.FormatPhone(raw)
	return s.phone
}

func (s *SelfService) AddDevice() {
	s.devices = append(s.devices, model.Device{})
}

func (s *SelfService) RemoveDevice(i int) error {
	if i < 0 || i >= len(s.devices) {
		return fmt.Errorf("no device at %d", i)
	}
	s.devices = append(s.devices[:i], s.devices[i+1:]...)
	return nil
}

func (s *SelfService) EditDevice(i int, mac, key string) error {
	if i < 0 || i >= len(s.devices) {
		return fmt.Errorf("no device at %d", i)
	}
	s.devices[i] = model.Device{MACAddress: strings.TrimSpace(mac), DeviceKey: strings.TrimSpace(key)}
	return nil
}

// CanCheckout is the gate for starting a payment checkout.
func (s *SelfService) CanCheckout() bool {
	p := lifecycle.Profile{Phone: s.phone, Devices: s.devices}
	return p.Eligible() && lifecycle.Allowed(lifecycle.ActionCheckout, s.record.Status)
}

// CheckoutSucceeded records a checkout the payment widget approved. The local
// record is replaced with what the API stored.
func (s *SelfService) CheckoutSucceeded(ctx context.Context, subscriptionID string) error {
	if strings.TrimSpace(subscriptionID) == "" {
		return lifecycle.ErrMissingSubscription
	}
	if !s.CanCheckout() {
		return lifecycle.ErrIncompleteForm
	}
	me, err := s.api.Checkout(ctx, client.CheckoutRequest{
		SubscriptionID: subscriptionID,
		FirstName:      s.record.FirstName,
		LastName:       s.record.LastName,
		Phone:          s.phone,
		Devices:        s.Devices(),
	})
	if err != nil {
		return err
	}
	s.setRecord(me)
	return nil
}
