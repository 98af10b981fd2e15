// Package control defines the device-facing surface the local consumers
// (MQTT bridge, Lua scripts) share: read-only state snapshots and the
// command shape relayed to the device workers.
package control

import "context"

// Device kinds as reported by the vendor's semanticDescriptionKey.
const (
	KindLight = "light"
	KindFan   = "fan"
)

// Snapshot is a read-only view of one device's last known state. Workers
// rebuild it after every synchronization operation; consumers read it without
// touching the device model.
type Snapshot struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Available   bool     `json:"available"`
	On          bool     `json:"on"`
	Brightness  *int     `json:"brightness,omitempty"`   // 0-255
	ColorTemp   *int     `json:"color_temp,omitempty"`   // mireds
	Percentage  *int     `json:"percentage,omitempty"`   // fan speed, 0-100
	PresetMode  string   `json:"preset_mode,omitempty"`  // fans only
	PresetModes []string `json:"preset_modes,omitempty"` // fans only
}

// Command is one user-facing mutation request. Nil fields are not part of
// the request. Power "off" wins over every other field.
type Command struct {
	Power      *string `json:"power,omitempty"` // "on" or "off"
	Brightness *int    `json:"brightness,omitempty"`
	ColorTemp  *int    `json:"color_temp,omitempty"`
	Percentage *int    `json:"percentage,omitempty"`
	PresetMode *string `json:"preset_mode,omitempty"`
}

// Dispatcher hands commands to the per-device workers and exposes the
// current snapshots. Dispatch only enqueues; execution is asynchronous and
// serialized per device.
type Dispatcher interface {
	Snapshots() []Snapshot
	Snapshot(deviceID string) (Snapshot, bool)
	Dispatch(ctx context.Context, deviceID string, cmd Command) error
}
