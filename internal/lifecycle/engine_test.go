package lifecycle

import (
	"testing"

	"github.com/jmehdipour/cablesync/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

func completeProfile() Profile {
	return Profile{
		Phone:   "5551234567",
		Devices: model.Devices{{MACAddress: "AA:BB:CC:DD", DeviceKey: "998877"}},
	}
}

func TestCheckoutFromNoService(t *testing.T) {
	c := model.NewTransient("jane@example.com", "Jane", "Doe")

	ch, err := Plan(c, Request{
		Action:         ActionCheckout,
		Actor:          model.ActorCustomer,
		SubscriptionID: "I-SUB1",
		Profile:        completeProfile(),
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusNoService, ch.From)
	assert.Equal(t, model.StatusPendingActivation, ch.To)

	got := ch.Apply(c)
	assert.Equal(t, model.StatusPendingActivation, got.Status)
	assert.Equal(t, "I-SUB1", got.Subscription())
	assert.Equal(t, "(555) 123-4567", got.Phone)
	assert.Len(t, got.Devices, 1)
	assert.Equal(t, "Jane", got.FirstName)
}

func TestCheckoutReactivatesCanceled(t *testing.T) {
	for _, st := range []model.Status{model.StatusCanceled, model.StatusCanceledProcessed} {
		c := model.Customer{ID: "c1", Status: st, SubscriptionID: strptr("I-OLD")}
		ch, err := Plan(c, Request{Action: ActionCheckout, Actor: model.ActorCustomer, SubscriptionID: "I-NEW", Profile: completeProfile()})
		require.NoError(t, err, st.String())

		got := ch.Apply(c)
		assert.Equal(t, model.StatusPendingActivation, got.Status)
		assert.Equal(t, "I-NEW", got.Subscription())
	}
}

func TestCheckoutGate(t *testing.T) {
	c := model.NewTransient("jane@example.com", "Jane", "")
	tests := []struct {
		name    string
		profile Profile
	}{
		{"no devices", Profile{Phone: "5551234567"}},
		{"empty mac", Profile{Phone: "5551234567", Devices: model.Devices{{DeviceKey: "k"}}}},
		{"empty key", Profile{Phone: "5551234567", Devices: model.Devices{{MACAddress: "m"}}}},
		{"one incomplete of two", Profile{Phone: "5551234567", Devices: model.Devices{{MACAddress: "m", DeviceKey: "k"}, {MACAddress: "m2"}}}},
		{"short phone", Profile{Phone: "555123", Devices: model.Devices{{MACAddress: "m", DeviceKey: "k"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, tt.profile.Eligible())
			_, err := Plan(c, Request{Action: ActionCheckout, Actor: model.ActorCustomer, SubscriptionID: "I-1", Profile: tt.profile})
			assert.ErrorIs(t, err, ErrIncompleteForm)
		})
	}
}

func TestCheckoutRejectsSubscribedCustomer(t *testing.T) {
	for _, st := range []model.Status{model.StatusPendingActivation, model.StatusActive} {
		_, err := Plan(model.Customer{Status: st}, Request{Action: ActionCheckout, Actor: model.ActorCustomer, SubscriptionID: "I-1", Profile: completeProfile()})
		assert.ErrorIs(t, err, ErrInvalidTransition, st.String())
	}
}

func TestCheckoutRequiresSubscription(t *testing.T) {
	_, err := Plan(model.Customer{}, Request{Action: ActionCheckout, Actor: model.ActorCustomer, SubscriptionID: "  ", Profile: completeProfile()})
	assert.ErrorIs(t, err, ErrMissingSubscription)
}

func TestActivate(t *testing.T) {
	c := model.Customer{ID: "c1", Status: model.StatusPendingActivation}

	ch, err := Plan(c, Request{Action: ActionActivate, Actor: model.ActorAdmin, StartDate: "2024-01-05", EndDate: "2024-02-05"})
	require.NoError(t, err)

	got := ch.Apply(c)
	assert.Equal(t, model.StatusActive, got.Status)
	require.NotNil(t, got.ServiceStartDate)
	require.NotNil(t, got.ServiceEndDate)
	assert.Equal(t, "01/05/2024", *got.ServiceStartDate)
	assert.Equal(t, "02/05/2024", *got.ServiceEndDate)
}

func TestActivateRequiresBothDates(t *testing.T) {
	c := model.Customer{ID: "c1", Status: model.StatusPendingActivation}

	for _, dates := range [][2]string{{"", "2024-02-05"}, {"2024-01-05", ""}, {"", ""}} {
		_, err := Plan(c, Request{Action: ActionActivate, Actor: model.ActorAdmin, StartDate: dates[0], EndDate: dates[1]})
		assert.ErrorIs(t, err, ErrMissingDates)
	}

	_, err := Plan(c, Request{Action: ActionActivate, Actor: model.ActorAdmin, StartDate: "01/05/2024", EndDate: "2024-02-05"})
	assert.ErrorIs(t, err, ErrInvalidDates)

	_, err = Plan(c, Request{Action: ActionActivate, Actor: model.ActorAdmin, StartDate: "2024-03-05", EndDate: "2024-02-05"})
	assert.ErrorIs(t, err, ErrInvalidDates)
}

func TestActivateFromActiveIsInvalid(t *testing.T) {
	_, err := Plan(model.Customer{Status: model.StatusActive}, Request{Action: ActionActivate, Actor: model.ActorAdmin, StartDate: "2024-01-05", EndDate: "2024-02-05"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestEndServiceClearsWindowAndSubscription(t *testing.T) {
	c := model.Customer{
		Status:           model.StatusActive,
		SubscriptionID:   strptr("I-1"),
		ServiceStartDate: strptr("01/05/2024"),
		ServiceEndDate:   strptr("02/05/2024"),
	}
	ch, err := Plan(c, Request{Action: ActionEndService, Actor: model.ActorAdmin})
	require.NoError(t, err)

	got := ch.Apply(c)
	assert.Equal(t, model.StatusNoService, got.Status)
	assert.Nil(t, got.SubscriptionID)
	assert.Nil(t, got.ServiceStartDate)
	assert.Nil(t, got.ServiceEndDate)
}

func TestCancelIsIdempotent(t *testing.T) {
	c := model.Customer{Status: model.StatusActive, SubscriptionID: strptr("SUB-1"), ServiceStartDate: strptr("01/05/2024")}

	ch, err := Plan(c, Request{Action: ActionCancel, Actor: model.ActorWebhook})
	require.NoError(t, err)
	require.False(t, ch.Noop)
	once := ch.Apply(c)
	assert.Equal(t, model.StatusCanceled, once.Status)
	assert.Equal(t, "01/05/2024", *once.ServiceStartDate)

	ch, err = Plan(once, Request{Action: ActionCancel, Actor: model.ActorWebhook})
	require.NoError(t, err)
	assert.True(t, ch.Noop)
	assert.Equal(t, once, ch.Apply(once))
}

func TestCancelDoesNotReopenProcessed(t *testing.T) {
	ch, err := Plan(model.Customer{Status: model.StatusCanceledProcessed}, Request{Action: ActionCancel, Actor: model.ActorWebhook})
	require.NoError(t, err)
	assert.True(t, ch.Noop)
	assert.Equal(t, model.StatusCanceledProcessed, ch.To)
}

func TestMarkProcessed(t *testing.T) {
	ch, err := Plan(model.Customer{Status: model.StatusCanceled}, Request{Action: ActionMarkProcessed, Actor: model.ActorAdmin})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCanceledProcessed, ch.To)

	_, err = Plan(model.Customer{Status: model.StatusActive}, Request{Action: ActionMarkProcessed, Actor: model.ActorAdmin})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestActorPermissions(t *testing.T) {
	tests := []struct {
		action Action
		actor  model.Actor
	}{
		{ActionActivate, model.ActorCustomer},
		{ActionEndService, model.ActorWebhook},
		{ActionCancel, model.ActorAdmin},
		{ActionCheckout, model.ActorAdmin},
		{ActionDelete, model.ActorCustomer},
	}
	for _, tt := range tests {
		_, err := Plan(model.Customer{Status: model.StatusActive}, Request{Action: tt.action, Actor: tt.actor})
		assert.ErrorIs(t, err, ErrForbidden, "%s by %s", tt.action, tt.actor)
	}
}

func TestDeleteFromAnyStatus(t *testing.T) {
	for _, st := range model.Statuses {
		ch, err := Plan(model.Customer{Status: st}, Request{Action: ActionDelete, Actor: model.ActorAdmin})
		require.NoError(t, err)
		assert.True(t, ch.Delete)
		assert.True(t, Allowed(ActionDelete, st))
	}
}

func TestUnknownAction(t *testing.T) {
	_, err := Plan(model.Customer{}, Request{Action: "expire", Actor: model.ActorAdmin})
	assert.ErrorIs(t, err, ErrUnknownAction)
	assert.False(t, Allowed("expire", model.StatusActive))
}

func TestEventCarriesNewSubscription(t *testing.T) {
	c := model.Customer{ID: "c1", Email: "c1@example.com", Status: model.StatusCanceled, SubscriptionID: strptr("I-OLD")}
	ch, err := Plan(c, Request{Action: ActionCheckout, Actor: model.ActorCustomer, SubscriptionID: "I-NEW", Profile: completeProfile()})
	require.NoError(t, err)

	ev := ch.Event(c)
	assert.Equal(t, "I-NEW", ev.SubscriptionID)
	assert.Equal(t, model.StatusCanceled, ev.From)
	assert.Equal(t, model.StatusPendingActivation, ev.To)
	assert.Equal(t, model.ActorCustomer, ev.Actor)
}
