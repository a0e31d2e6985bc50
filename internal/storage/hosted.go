package storage

import "github.com/KevinKickass/OpenLabManager/internal/types"

// Table names of the hosted schema shared by the remote and postgres
// adapters.
const (
	HostedSites          = "sedes"
	HostedLabs           = "labs"
	HostedDevices        = "computadores"
	HostedUsers          = "users"
	HostedGroups         = "groups"
	HostedTasks          = "tasks"
	HostedSubtasks       = "subtasks"
	HostedComments       = "task_comments"
	HostedAttachments    = "task_attachments"
	HostedMessages       = "messages"
	HostedCheckRecords   = "check_records"
	HostedDeviceLogs     = "device_logs"
	HostedAttachmentPath = "task_attachments"
)

var hostedDeviceStatus = map[types.DeviceStatus]string{
	types.DeviceOperational: "Operacional",
	types.DeviceMaintenance: "Manutenção",
	types.DeviceBroken:      "Quebrado",
	types.DeviceMissing:     "Desaparecido",
}

var hostedTaskStatus = map[types.TaskStatus]string{
	types.TaskPending:    "pendente",
	types.TaskInProgress: "progresso",
	types.TaskDone:       "concluido",
	types.TaskCancelled:  "cancelado",
}

var hostedPriority = map[types.TaskPriority]string{
	types.PriorityNormal:   "normal",
	types.PriorityHigh:     "alta",
	types.PriorityCritical: "critica",
	types.PriorityUrgent:   "urgente",
}

func HostedDeviceStatus(s types.DeviceStatus) string {
	if v, ok := hostedDeviceStatus[s]; ok {
		return v
	}
	return string(s)
}

// CanonicalDeviceStatus maps a hosted value back. Unknown values fall back
// to Operational, like the importer does.
func CanonicalDeviceStatus(v string) types.DeviceStatus {
	if s, ok := types.ParseDeviceStatus(v); ok {
		return s
	}
	return types.DeviceOperational
}

func HostedTaskStatus(s types.TaskStatus) string {
	if v, ok := hostedTaskStatus[s]; ok {
		return v
	}
	return string(s)
}

func CanonicalTaskStatus(v string) types.TaskStatus {
	for canonical, hosted := range hostedTaskStatus {
		if v == hosted || v == string(canonical) {
			return canonical
		}
	}
	return types.TaskPending
}

func HostedPriority(p types.TaskPriority) string {
	if v, ok := hostedPriority[p]; ok {
		return v
	}
	return string(p)
}

func CanonicalPriority(v string) types.TaskPriority {
	for canonical, hosted := range hostedPriority {
		if v == hosted || v == string(canonical) {
			return canonical
		}
	}
	return types.PriorityNormal
}
