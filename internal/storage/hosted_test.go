package storage

import (
	"testing"

	"github.com/KevinKickass/OpenLabManager/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestHostedValueMapping(t *testing.T) {
	for _, s := range []types.DeviceStatus{types.DeviceOperational, types.DeviceMaintenance, types.DeviceBroken, types.DeviceMissing} {
		assert.Equal(t, s, CanonicalDeviceStatus(HostedDeviceStatus(s)))
	}
	assert.Equal(t, "Manutenção", HostedDeviceStatus(types.DeviceMaintenance))
	assert.Equal(t, types.DeviceOperational, CanonicalDeviceStatus("garbage"))

	for _, s := range []types.TaskStatus{types.TaskPending, types.TaskInProgress, types.TaskDone, types.TaskCancelled} {
		assert.Equal(t, s, CanonicalTaskStatus(HostedTaskStatus(s)))
	}
	assert.Equal(t, "progresso", HostedTaskStatus(types.TaskInProgress))

	for _, p := range []types.TaskPriority{types.PriorityNormal, types.PriorityHigh, types.PriorityCritical, types.PriorityUrgent} {
		assert.Equal(t, p, CanonicalPriority(HostedPriority(p)))
	}
	assert.Equal(t, "critica", HostedPriority(types.PriorityCritical))
}
