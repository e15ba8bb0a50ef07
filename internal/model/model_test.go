package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusBuckets(t *testing.T) {
	tests := []struct {
		status Status
		bucket Bucket
		label  string
	}{
		{StatusNoService, BucketInactive, "No service"},
		{StatusPendingActivation, BucketPending, "Pending Activation"},
		{StatusActive, BucketActive, "Active"},
		{StatusCanceled, BucketCanceled, "Canceled"},
		{StatusCanceledProcessed, BucketCanceled, "Canceled"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.bucket, tt.status.Bucket(), tt.status.String())
		assert.Equal(t, tt.label, tt.status.Label(), tt.status.String())
		assert.True(t, tt.status.Valid())
	}
	assert.NotEqual(t, StatusCanceled, StatusCanceledProcessed)
}

func TestStatusSubscribed(t *testing.T) {
	for _, s := range Statuses {
		want := s == StatusPendingActivation || s == StatusActive
		assert.Equal(t, want, s.Subscribed(), s.String())
	}
	assert.False(t, Status("Requested Activation").Subscribed())
}

func TestParseStatus(t *testing.T) {
	s, ok := ParseStatus("canceled (processed)")
	require.True(t, ok)
	assert.Equal(t, StatusCanceledProcessed, s)

	_, ok = ParseStatus("Requested Activation")
	assert.False(t, ok)
	_, ok = ParseStatus("")
	assert.False(t, ok)
}

func TestDevicesComplete(t *testing.T) {
	assert.False(t, Devices{}.Complete())
	assert.False(t, Devices(nil).Complete())
	assert.False(t, Devices{{MACAddress: "AA:BB", DeviceKey: ""}}.Complete())
	assert.False(t, Devices{{MACAddress: "  ", DeviceKey: "k"}}.Complete())
	assert.False(t, Devices{
		{MACAddress: "AA:BB", DeviceKey: "k1"},
		{MACAddress: "", DeviceKey: "k2"},
	}.Complete())
	assert.True(t, Devices{{MACAddress: "AA:BB", DeviceKey: "k1"}}.Complete())
}

func TestDevicesScanValue(t *testing.T) {
	in := Devices{{MACAddress: "AA:BB:CC", DeviceKey: "123456"}}
	v, err := in.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `[{"macAddress":"AA:BB:CC","deviceKey":"123456"}]`, v.(string))

	var out Devices
	require.NoError(t, out.Scan([]byte(v.(string))))
	assert.Equal(t, in, out)

	require.NoError(t, out.Scan(nil))
	assert.Empty(t, out)

	assert.Error(t, out.Scan(42))
}

func TestFormatServiceDate(t *testing.T) {
	got, err := FormatServiceDate("2024-01-05")
	require.NoError(t, err)
	assert.Equal(t, "01/05/2024", got)

	_, err = FormatServiceDate("")
	assert.Error(t, err)
	_, err = FormatServiceDate("01/05/2024")
	assert.Error(t, err)
}

func TestNewTransient(t *testing.T) {
	c := NewTransient(" Jane@Example.com ", "", "")
	assert.Equal(t, "jane@example.com", c.ID)
	assert.Equal(t, "Jane@Example.com", c.Email)
	assert.Equal(t, "Customer", c.FirstName)
	assert.Equal(t, StatusNoService, c.Status)
	assert.Nil(t, c.SubscriptionID)
	assert.Empty(t, c.Subscription())
}
