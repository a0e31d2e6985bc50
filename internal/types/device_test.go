package types

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceDerive(t *testing.T) {
	d := Device{Brand: "Dell", Model: "Inspiron 15", Processor: "i5 11th Gen", RAM: "8GB", Storage: "256GB SSD"}
	d.Derive()

	assert.Equal(t, "Dell Inspiron 15", d.Name)
	assert.Equal(t, "i5 11th Gen, 8GB, 256GB SSD", d.Specs)
}

func TestStatusAfterCheck(t *testing.T) {
	all := CheckRecord{Keyboard: true, Mouse: true, Monitor: true, Cables: true, Software: true}
	assert.Equal(t, DeviceOperational, StatusAfterCheck(all))
	assert.Empty(t, all.Issues())

	cases := []func(*CheckRecord){
		func(r *CheckRecord) { r.Keyboard = false },
		func(r *CheckRecord) { r.Mouse = false },
		func(r *CheckRecord) { r.Monitor = false },
		func(r *CheckRecord) { r.Cables = false },
		func(r *CheckRecord) { r.Software = false },
	}
	for i, mutate := range cases {
		t.Run(fmt.Sprintf("flag_%d", i), func(t *testing.T) {
			r := all
			mutate(&r)
			assert.Equal(t, DeviceMaintenance, StatusAfterCheck(r))
			assert.Len(t, r.Issues(), 1)
		})
	}
}

func TestParseDeviceStatus(t *testing.T) {
	s, ok := ParseDeviceStatus("manutenção")
	require.True(t, ok)
	assert.Equal(t, DeviceMaintenance, s)

	s, ok = ParseDeviceStatus("Broken")
	require.True(t, ok)
	assert.Equal(t, DeviceBroken, s)

	_, ok = ParseDeviceStatus("on fire")
	assert.False(t, ok)
}

func TestDevicePatchKeepsHistoryUnlessSet(t *testing.T) {
	d := Device{
		ID:           "PAT-001",
		CheckHistory: []CheckRecord{{Date: "2024-01-01"}},
		Logs:         []LogEntry{{ID: 1, Description: "x"}},
	}
	brand := "HP"
	DevicePatch{Brand: &brand}.Apply(&d)

	assert.Equal(t, "HP", d.Brand)
	assert.Len(t, d.CheckHistory, 1)
	assert.Len(t, d.Logs, 1)
	assert.True(t, DevicePatch{Brand: &brand}.TouchesDerived())

	empty := []LogEntry{}
	DevicePatch{Logs: &empty}.Apply(&d)
	assert.Empty(t, d.Logs)
	assert.Len(t, d.CheckHistory, 1)
}

func TestErrorTaxonomy(t *testing.T) {
	err := fmt.Errorf("failed to create user: %w", Duplicate("user", "email"))
	assert.True(t, IsValidation(err))
	assert.True(t, IsDuplicate(err))
	assert.False(t, IsNotFound(err))

	assert.True(t, IsNotFound(NotFound("device", "PAT-9")))
	assert.EqualError(t, NotFound("device", "PAT-9"), "device PAT-9 not found")

	authErr := NewAuthError(ErrUserBlocked)
	assert.True(t, IsAuth(authErr))
	assert.ErrorIs(t, authErr, ErrUserBlocked)
	assert.NotErrorIs(t, authErr, ErrInvalidCredentials)

	assert.True(t, IsUnavailable(Unavailable("list devices", fmt.Errorf("dial tcp: refused"))))
}
