package console

import (
	"context"
	"errors"
	"testing"

	"github.com/jmehdipour/cablesync/internal/client"
	"github.com/jmehdipour/cablesync/internal/lifecycle"
	"github.com/jmehdipour/cablesync/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAdminAPI struct{ mock.Mock }

func (m *mockAdminAPI) ListCustomers(ctx context.Context, status model.Status, orderBy string) ([]client.Row, error) {
	args := m.Called(ctx, status, orderBy)
	rows, _ := args.Get(0).([]client.Row)
	return rows, args.Error(1)
}

func (m *mockAdminAPI) Activate(ctx context.Context, id, start, end string) (client.Row, error) {
	args := m.Called(ctx, id, start, end)
	return args.Get(0).(client.Row), args.Error(1)
}

func (m *mockAdminAPI) EndService(ctx context.Context, id string) (client.Row, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(client.Row), args.Error(1)
}

func (m *mockAdminAPI) ProcessCancellation(ctx context.Context, id string) (client.Row, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(client.Row), args.Error(1)
}

func (m *mockAdminAPI) DeleteCustomer(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func row(id string, st model.Status) client.Row {
	return client.Row{Customer: model.Customer{ID: id, Email: id, FirstName: "Jane", LastName: "Doe", Status: st}}
}

func str(s string) *string { return &s }

func loadedAdmin(t *testing.T, confirm ConfirmFunc, filter model.Status, rows ...client.Row) (*Admin, *mockAdminAPI) {
	t.Helper()
	api := &mockAdminAPI{}
	api.On("ListCustomers", mock.Anything, filter, "email").Return(rows, nil).Once()
	a := NewAdmin(api, confirm)
	require.NoError(t, a.Load(context.Background(), filter, "email"))
	return a, api
}

func TestActivateRejectsMissingDatesWithoutCallingAPI(t *testing.T) {
	a, api := loadedAdmin(t, nil, "", row("c1", model.StatusPendingActivation))

	tests := []struct {
		start, end string
		want       error
	}{
		{"2024-01-05", "", lifecycle.ErrMissingDates},
		{"", "2024-02-05", lifecycle.ErrMissingDates},
		{"01/05/2024", "2024-02-05", lifecycle.ErrInvalidDates},
		{"2024-03-05", "2024-02-05", lifecycle.ErrInvalidDates},
	}
	for _, tt := range tests {
		_, err := a.Activate(context.Background(), "c1", tt.start, tt.end)
		assert.ErrorIs(t, err, tt.want, tt.start+" "+tt.end)
	}

	api.AssertNumberOfCalls(t, "Activate", 0)
	assert.Equal(t, model.StatusPendingActivation, a.Rows()[0].Status)
}

func TestActivateMirrorsAcknowledgedRow(t *testing.T) {
	a, api := loadedAdmin(t, nil, "", row("c1", model.StatusPendingActivation), row("c2", model.StatusActive))

	acked := row("c1", model.StatusActive)
	acked.ServiceStartDate, acked.ServiceEndDate = str("01/05/2024"), str("02/05/2024")
	api.On("Activate", mock.Anything, "c1", "2024-01-05", "2024-02-05").Return(acked, nil).Once()

	res, err := a.Activate(context.Background(), "c1", "2024-01-05", "2024-02-05")
	require.NoError(t, err)
	assert.Equal(t, acked, res)
	got := a.Rows()[0]
	assert.Equal(t, model.StatusActive, got.Status)
	assert.Equal(t, "01/05/2024", *got.ServiceStartDate)
	assert.Equal(t, "02/05/2024", *got.ServiceEndDate)
	api.AssertExpectations(t)
}

func TestFailedWriteLeavesMirrorUntouched(t *testing.T) {
	a, api := loadedAdmin(t, nil, "", row("c1", model.StatusActive))
	api.On("EndService", mock.Anything, "c1").Return(client.Row{}, &client.APIError{Status: 500, Message: "store error"}).Once()

	_, err := a.EndService(context.Background(), "c1")
	require.Error(t, err)
	assert.Equal(t, model.StatusActive, a.Rows()[0].Status)
}

func TestFilteredRowDropsOutAfterTransition(t *testing.T) {
	a, api := loadedAdmin(t, nil, model.StatusActive, row("c1", model.StatusActive), row("c2", model.StatusActive))
	api.On("EndService", mock.Anything, "c1").Return(row("c1", model.StatusNoService), nil).Once()

	res, err := a.EndService(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusNoService, res.Status)
	rows := a.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "c2", rows[0].ID)
}

func TestTransitionReturnsRowOutsideLoadedList(t *testing.T) {
	a, api := loadedAdmin(t, nil, model.StatusCanceled, row("c2", model.StatusCanceled))
	api.On("EndService", mock.Anything, "c9").Return(row("c9", model.StatusNoService), nil).Once()

	res, err := a.EndService(context.Background(), "c9")
	require.NoError(t, err)
	assert.Equal(t, "c9", res.ID)
	assert.Equal(t, model.StatusNoService, res.Status)
	assert.Len(t, a.Rows(), 1)
}

func TestProcessCancellationNeedsConfirmation(t *testing.T) {
	var prompt string
	decline := func(p string) bool { prompt = p; return false }
	a, api := loadedAdmin(t, decline, "", row("c1", model.StatusCanceled))

	_, err := a.ProcessCancellation(context.Background(), "c1")
	assert.ErrorIs(t, err, ErrDeclined)
	assert.Contains(t, prompt, "Jane Doe")
	api.AssertNumberOfCalls(t, "ProcessCancellation", 0)

	a.confirm = func(string) bool { return true }
	api.On("ProcessCancellation", mock.Anything, "c1").Return(row("c1", model.StatusCanceledProcessed), nil).Once()
	_, err = a.ProcessCancellation(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCanceledProcessed, a.Rows()[0].Status)
	assert.Equal(t, 1, a.Counts()[model.BucketCanceled])
}

func TestDelete(t *testing.T) {
	a, api := loadedAdmin(t, func(string) bool { return true }, "", row("c1", model.StatusActive), row("c2", model.StatusNoService))

	api.On("DeleteCustomer", mock.Anything, "c2").Return(errors.New("connection reset")).Once()
	require.Error(t, a.Delete(context.Background(), "c2"))
	assert.Len(t, a.Rows(), 2)

	api.On("DeleteCustomer", mock.Anything, "c1").Return(nil).Once()
	require.NoError(t, a.Delete(context.Background(), "c1"))
	rows := a.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "c2", rows[0].ID)
}

type fakeSelfAPI struct {
	me        client.Me
	checkouts []client.CheckoutRequest
	err       error
}

func (f *fakeSelfAPI) Me(context.Context) (client.Me, error) { return f.me, nil }

func (f *fakeSelfAPI) Checkout(_ context.Context, req client.CheckoutRequest) (client.Me, error) {
	if f.err != nil {
		return client.Me{}, f.err
	}
	f.checkouts = append(f.checkouts, req)
	c := f.me.Customer
	c.Status = model.StatusPendingActivation
	c.SubscriptionID = &req.SubscriptionID
	c.Phone = req.Phone
	c.Devices = req.Devices
	return client.Me{Customer: c, Stored: true}, nil
}

func newSelf(t *testing.T) (*SelfService, *fakeSelfAPI) {
	t.Helper()
	api := &fakeSelfAPI{me: client.Me{Customer: model.NewTransient("jane@example.com", "Jane", "Doe")}}
	s := NewSelfService(api)
	require.NoError(t, s.Load(context.Background()))
	return s, api
}

func TestSelfServiceGate(t *testing.T) {
	s, _ := newSelf(t)
	assert.False(t, s.Stored())
	require.Len(t, s.Devices(), 1, "starts with one blank device row")
	assert.False(t, s.CanCheckout())

	assert.Equal(t, "(555) 123-4567", s.SetPhone("555-123-4567"))
	assert.False(t, s.CanCheckout(), "blank device")

	require.NoError(t, s.EditDevice(0, "AA:BB:CC", "key-1"))
	assert.True(t, s.CanCheckout())

	s.AddDevice()
	assert.False(t, s.CanCheckout(), "second device incomplete")
	require.NoError(t, s.EditDevice(1, "AA:BB:CD", ""))
	assert.False(t, s.CanCheckout())
	require.NoError(t, s.RemoveDevice(1))
	assert.True(t, s.CanCheckout())

	require.NoError(t, s.RemoveDevice(0))
	assert.False(t, s.CanCheckout(), "no devices")
	assert.Error(t, s.RemoveDevice(0))

	s.AddDevice()
	require.NoError(t, s.EditDevice(0, "AA:BB:CC", "key-1"))
	s.SetPhone("555123456")
	assert.False(t, s.CanCheckout(), "nine digits")
}

func TestSelfServiceCheckout(t *testing.T) {
	s, api := newSelf(t)
	s.SetPhone("5551234567")
	require.NoError(t, s.EditDevice(0, "AA:BB:CC", "key-1"))

	assert.ErrorIs(t, s.CheckoutSucceeded(context.Background(), " "), lifecycle.ErrMissingSubscription)

	require.NoError(t, s.CheckoutSucceeded(context.Background(), "I-NEW"))
	require.Len(t, api.checkouts, 1)
	assert.Equal(t, "(555) 123-4567", api.checkouts[0].Phone)

	rec := s.Record()
	assert.Equal(t, model.StatusPendingActivation, rec.Status)
	assert.Equal(t, "I-NEW", rec.Subscription())
	assert.True(t, s.Stored())
	assert.False(t, s.CanCheckout(), "pending customers cannot check out again")
}

func TestSelfServiceCheckoutFailureKeepsForm(t *testing.T) {
	s, api := newSelf(t)
	s.SetPhone("5551234567")
	require.NoError(t, s.EditDevice(0, "AA:BB:CC", "key-1"))
	api.err = errors.New("payment provider unavailable")

	require.Error(t, s.CheckoutSucceeded(context.Background(), "I-NEW"))
	assert.Equal(t, model.StatusNoService, s.Record().Status)
	assert.Equal(t, "(555) 123-4567", s.Phone())
}
