package types

import (
	"fmt"
	"strings"
)

type DeviceStatus string

const (
	DeviceOperational DeviceStatus = "Operational"
	DeviceMaintenance DeviceStatus = "Maintenance"
	DeviceBroken      DeviceStatus = "Broken"
	DeviceMissing     DeviceStatus = "Missing"
)

// deviceStatusLabels holds the Portuguese labels used by the UI and by
// spreadsheets produced from it.
var deviceStatusLabels = map[DeviceStatus]string{
	DeviceOperational: "Operacional",
	DeviceMaintenance: "Manutenção",
	DeviceBroken:      "Quebrado",
	DeviceMissing:     "Desaparecido",
}

func (s DeviceStatus) Valid() bool {
	_, ok := deviceStatusLabels[s]
	return ok
}

func (s DeviceStatus) Label() string {
	if l, ok := deviceStatusLabels[s]; ok {
		return l
	}
	return string(s)
}

// ParseDeviceStatus accepts the canonical value or its Portuguese label,
// case-insensitively.
func ParseDeviceStatus(v string) (DeviceStatus, bool) {
	v = strings.TrimSpace(v)
	for status, label := range deviceStatusLabels {
		if strings.EqualFold(v, string(status)) || strings.EqualFold(v, label) {
			return status, true
		}
	}
	return "", false
}

type LogType string

const (
	LogMaintenance LogType = "maintenance"
	LogError       LogType = "error"
	LogInfo        LogType = "info"
)

func (t LogType) Valid() bool {
	switch t {
	case LogMaintenance, LogError, LogInfo:
		return true
	}
	return false
}

// Device is a tracked asset. ID is the caller-assigned asset tag.
type Device struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Brand        string        `json:"brand"`
	Model        string        `json:"model"`
	Processor    string        `json:"processor"`
	RAM          string        `json:"ram"`
	Storage      string        `json:"storage"`
	Specs        string        `json:"specs"`
	LabID        int64         `json:"labId,omitempty"`
	Lab          string        `json:"lab"`
	Site         string        `json:"site,omitempty"`
	Status       DeviceStatus  `json:"status"`
	LastCheck    string        `json:"lastCheck,omitempty"`
	CheckHistory []CheckRecord `json:"checkHistory"`
	Logs         []LogEntry    `json:"logs"`
}

type CheckRecord struct {
	Date     string `json:"date"`
	Time     string `json:"time"`
	Keyboard bool   `json:"keyboard"`
	Mouse    bool   `json:"mouse"`
	Monitor  bool   `json:"monitor"`
	Cables   bool   `json:"cables"`
	Software bool   `json:"software"`
	Notes    string `json:"notes,omitempty"`
	UserID   int64  `json:"userId,omitempty"`
	UserName string `json:"userName,omitempty"`
}

// AllOK reports whether every component passed the check.
func (r CheckRecord) AllOK() bool {
	return r.Keyboard && r.Mouse && r.Monitor && r.Cables && r.Software
}

// Issues lists the components that failed, in checklist order.
func (r CheckRecord) Issues() []string {
	issues := make([]string, 0, 5)
	if !r.Keyboard {
		issues = append(issues, "Keyboard")
	}
	if !r.Mouse {
		issues = append(issues, "Mouse")
	}
	if !r.Monitor {
		issues = append(issues, "Monitor")
	}
	if !r.Cables {
		issues = append(issues, "Cables")
	}
	if !r.Software {
		issues = append(issues, "Software")
	}
	return issues
}

// StatusAfterCheck is the status a device takes after the given check.
func StatusAfterCheck(r CheckRecord) DeviceStatus {
	if r.AllOK() {
		return DeviceOperational
	}
	return DeviceMaintenance
}

type LogEntry struct {
	ID          int64   `json:"id"`
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Type        LogType `json:"type"`
	UserID      int64   `json:"userId,omitempty"`
	UserName    string  `json:"userName,omitempty"`
}

// DeviceName derives the display name from brand and model.
func DeviceName(brand, model string) string {
	return fmt.Sprintf("%s %s", brand, model)
}

// DeviceSpecs derives the hardware summary line from its components.
func DeviceSpecs(processor, ram, storage string) string {
	return fmt.Sprintf("%s, %s, %s", processor, ram, storage)
}

// Derive recomputes Name and Specs from their components.
func (d *Device) Derive() {
	d.Name = DeviceName(d.Brand, d.Model)
	d.Specs = DeviceSpecs(d.Processor, d.RAM, d.Storage)
}

// DevicePatch carries a merge patch. Nil fields are left untouched. The
// history slices replace the stored arrays only when non-nil.
type DevicePatch struct {
	Brand        *string        `json:"brand,omitempty"`
	Model        *string        `json:"model,omitempty"`
	Processor    *string        `json:"processor,omitempty"`
	RAM          *string        `json:"ram,omitempty"`
	Storage      *string        `json:"storage,omitempty"`
	LabID        *int64         `json:"labId,omitempty"`
	Lab          *string        `json:"lab,omitempty"`
	Site         *string        `json:"site,omitempty"`
	Status       *DeviceStatus  `json:"status,omitempty"`
	LastCheck    *string        `json:"lastCheck,omitempty"`
	CheckHistory *[]CheckRecord `json:"checkHistory,omitempty"`
	Logs         *[]LogEntry    `json:"logs,omitempty"`

	// Name and Specs are filled by the repository, never by callers.
	Name  *string `json:"-"`
	Specs *string `json:"-"`
}

// TouchesDerived reports whether the patch changes a component of Name or Specs.
func (p DevicePatch) TouchesDerived() bool {
	return p.Brand != nil || p.Model != nil || p.Processor != nil || p.RAM != nil || p.Storage != nil
}

// Apply merges the patch into d. Derived fields are not recomputed here.
func (p DevicePatch) Apply(d *Device) {
	if p.Brand != nil {
		d.Brand = *p.Brand
	}
	if p.Model != nil {
		d.Model = *p.Model
	}
	if p.Processor != nil {
		d.Processor = *p.Processor
	}
	if p.RAM != nil {
		d.RAM = *p.RAM
	}
	if p.Storage != nil {
		d.Storage = *p.Storage
	}
	if p.LabID != nil {
		d.LabID = *p.LabID
	}
	if p.Lab != nil {
		d.Lab = *p.Lab
	}
	if p.Status != nil {
		d.Status = *p.Status
	}
	if p.LastCheck != nil {
		d.LastCheck = *p.LastCheck
	}
	if p.CheckHistory != nil {
		d.CheckHistory = append([]CheckRecord(nil), (*p.CheckHistory)...)
	}
	if p.Logs != nil {
		d.Logs = append([]LogEntry(nil), (*p.Logs)...)
	}
	if p.Name != nil {
		d.Name = *p.Name
	}
	if p.Specs != nil {
		d.Specs = *p.Specs
	}
}
