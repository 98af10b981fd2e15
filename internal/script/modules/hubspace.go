package modules

import (
	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/hubspaced/internal/control"
)

const deviceTypeName = "hubspace.device"

// HubspaceModule exposes the account's devices to Lua.
type HubspaceModule struct {
	dispatcher control.Dispatcher
}

// NewHubspaceModule creates a new hubspace module.
func NewHubspaceModule(dispatcher control.Dispatcher) *HubspaceModule {
	return &HubspaceModule{dispatcher: dispatcher}
}

// Loader is the module loader for Lua
func (m *HubspaceModule) Loader(L *lua.LState) int {
	mod := L.NewTable()
	L.SetField(mod, "devices", L.NewFunction(m.devices))
	L.SetField(mod, "find", L.NewFunction(m.find))

	L.Push(mod)
	return 1
}

// devices returns all known devices
// hubspace.devices() -> {device, ...}
func (m *HubspaceModule) devices(L *lua.LState) int {
	tbl := L.NewTable()
	for _, snap := range m.dispatcher.Snapshots() {
		tbl.Append(newDevice(L, snap, m.dispatcher))
	}
	L.Push(tbl)
	return 1
}

// find looks a device up by id or friendly name
// hubspace.find("Bedroom Fan") -> device or nil
func (m *HubspaceModule) find(L *lua.LState) int {
	query := L.CheckString(1)
	for _, snap := range m.dispatcher.Snapshots() {
		if snap.ID == query || snap.Name == query {
			L.Push(newDevice(L, snap, m.dispatcher))
			return 1
		}
	}
	L.Push(lua.LNil)
	return 1
}

// deviceUserdata wraps a device snapshot plus the dispatcher for commands.
// Commands are enqueued on the device worker; the snapshot is the state as
// of the last completed operation.
type deviceUserdata struct {
	snap       control.Snapshot
	dispatcher control.Dispatcher
}

// RegisterDeviceType registers the hubspace.device metatable. Must run once
// per LState before any device userdata is pushed, including the on_update
// arguments built outside the module loader.
func RegisterDeviceType(L *lua.LState) {
	mt := L.NewTypeMetatable(deviceTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), deviceMethods))
}

var deviceMethods = map[string]lua.LGFunction{
	// Getters (return values)
	"id":           deviceGetID,
	"name":         deviceGetName,
	"kind":         deviceGetKind,
	"is_available": deviceIsAvailable,
	"is_on":        deviceIsOn,
	"brightness":   deviceGetBrightness,
	"color_temp":   deviceGetColorTemp,
	"percentage":   deviceGetPercentage,
	"preset":       deviceGetPreset,
	"presets":      deviceGetPresets,

	// Chainable command setters (return self for chaining)
	"on":             deviceOn,
	"off":            deviceOff,
	"set_brightness": deviceSetBrightness,
	"set_color_temp": deviceSetColorTemp,
	"set_percentage": deviceSetPercentage,
	"set_preset":     deviceSetPreset,
}

// newDevice creates a device userdata value.
func newDevice(L *lua.LState, snap control.Snapshot, dispatcher control.Dispatcher) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = &deviceUserdata{snap: snap, dispatcher: dispatcher}
	L.SetMetatable(ud, L.GetTypeMetatable(deviceTypeName))
	return ud
}

// PushDevice pushes a device userdata onto the stack. Used by the runtime to
// build on_update arguments.
func PushDevice(L *lua.LState, snap control.Snapshot, dispatcher control.Dispatcher) {
	L.Push(newDevice(L, snap, dispatcher))
}

// checkDevice retrieves the deviceUserdata from the Lua stack
func checkDevice(L *lua.LState) (*deviceUserdata, *lua.LUserData) {
	ud := L.CheckUserData(1)
	if v, ok := ud.Value.(*deviceUserdata); ok {
		return v, ud
	}
	L.ArgError(1, "hubspace.device expected")
	return nil, nil
}

// dispatch enqueues a command on the device worker.
func (d *deviceUserdata) dispatch(L *lua.LState, cmd control.Command) {
	if err := d.dispatcher.Dispatch(L.Context(), d.snap.ID, cmd); err != nil {
		log.Error().Err(err).Str("device", d.snap.ID).Msg("Failed to dispatch Lua command")
	}
}

// device:id() -> string
func deviceGetID(L *lua.LState) int {
	d, _ := checkDevice(L)
	L.Push(lua.LString(d.snap.ID))
	return 1
}

// device:name() -> string
func deviceGetName(L *lua.LState) int {
	d, _ := checkDevice(L)
	L.Push(lua.LString(d.snap.Name))
	return 1
}

// device:kind() -> "light" or "fan"
func deviceGetKind(L *lua.LState) int {
	d, _ := checkDevice(L)
	L.Push(lua.LString(d.snap.Kind))
	return 1
}

// device:is_available() -> bool
func deviceIsAvailable(L *lua.LState) int {
	d, _ := checkDevice(L)
	L.Push(lua.LBool(d.snap.Available))
	return 1
}

// device:is_on() -> bool
func deviceIsOn(L *lua.LState) int {
	d, _ := checkDevice(L)
	L.Push(lua.LBool(d.snap.On))
	return 1
}

// device:brightness() -> number or nil
func deviceGetBrightness(L *lua.LState) int {
	d, _ := checkDevice(L)
	if d.snap.Brightness == nil {
		L.Push(lua.LNil)
	} else {
		L.Push(lua.LNumber(*d.snap.Brightness))
	}
	return 1
}

// device:color_temp() -> mireds or nil
func deviceGetColorTemp(L *lua.LState) int {
	d, _ := checkDevice(L)
	if d.snap.ColorTemp == nil {
		L.Push(lua.LNil)
	} else {
		L.Push(lua.LNumber(*d.snap.ColorTemp))
	}
	return 1
}

// device:percentage() -> number or nil
func deviceGetPercentage(L *lua.LState) int {
	d, _ := checkDevice(L)
	if d.snap.Percentage == nil {
		L.Push(lua.LNil)
	} else {
		L.Push(lua.LNumber(*d.snap.Percentage))
	}
	return 1
}

// device:preset() -> string
func deviceGetPreset(L *lua.LState) int {
	d, _ := checkDevice(L)
	L.Push(lua.LString(d.snap.PresetMode))
	return 1
}

// device:presets() -> {string, ...}
func deviceGetPresets(L *lua.LState) int {
	d, _ := checkDevice(L)
	tbl := L.NewTable()
	for _, mode := range d.snap.PresetModes {
		tbl.Append(lua.LString(mode))
	}
	L.Push(tbl)
	return 1
}

// deviceOn turns the device on, with optional attributes (chainable)
// device:on({brightness = 200, color_temp = 300, percentage = 66, preset = "eco"}) -> self
func deviceOn(L *lua.LState) int {
	d, ud := checkDevice(L)
	power := "on"
	cmd := control.Command{Power: &power}

	if tbl, ok := L.Get(2).(*lua.LTable); ok {
		if v, ok := tbl.RawGetString("brightness").(lua.LNumber); ok {
			b := int(v)
			cmd.Brightness = &b
		}
		if v, ok := tbl.RawGetString("color_temp").(lua.LNumber); ok {
			ct := int(v)
			cmd.ColorTemp = &ct
		}
		if v, ok := tbl.RawGetString("percentage").(lua.LNumber); ok {
			p := int(v)
			cmd.Percentage = &p
		}
		if v, ok := tbl.RawGetString("preset").(lua.LString); ok {
			m := string(v)
			cmd.PresetMode = &m
		}
	}

	d.dispatch(L, cmd)
	L.Push(ud)
	return 1
}

// device:off() -> self
func deviceOff(L *lua.LState) int {
	d, ud := checkDevice(L)
	power := "off"
	d.dispatch(L, control.Command{Power: &power})
	L.Push(ud)
	return 1
}

// device:set_brightness(value) -> self
func deviceSetBrightness(L *lua.LState) int {
	d, ud := checkDevice(L)
	b := L.CheckInt(2)

	// Clamp to valid range
	if b < 0 {
		b = 0
	}
	if b > 255 {
		b = 255
	}

	d.dispatch(L, control.Command{Brightness: &b})
	L.Push(ud)
	return 1
}

// device:set_color_temp(mireds) -> self
func deviceSetColorTemp(L *lua.LState) int {
	d, ud := checkDevice(L)
	ct := L.CheckInt(2)
	d.dispatch(L, control.Command{ColorTemp: &ct})
	L.Push(ud)
	return 1
}

// device:set_percentage(value) -> self
func deviceSetPercentage(L *lua.LState) int {
	d, ud := checkDevice(L)
	p := L.CheckInt(2)

	// Clamp to valid range
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}

	d.dispatch(L, control.Command{Percentage: &p})
	L.Push(ud)
	return 1
}

// device:set_preset(mode) -> self
func deviceSetPreset(L *lua.LState) int {
	d, ud := checkDevice(L)
	mode := L.CheckString(2)
	d.dispatch(L, control.Command{PresetMode: &mode})
	L.Push(ud)
	return 1
}
