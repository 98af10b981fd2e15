package hubspace

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"
)

// PresetModeAuto is the synthetic preset meaning "no toggle instance
// enabled". It never appears in the vendor catalog.
const PresetModeAuto = "auto"

// Fan adapts a generic Device to fan semantics: boolean power, ordinal speed
// percentages over the suffix-sorted fan-speed tokens, and preset modes
// backed by per-instance toggle flags.
type Fan struct {
	*Device
}

// NewFan builds a fan adapter from a metadevice payload.
func NewFan(meta *Metadevice, accountID string, transport Transport, logger zerolog.Logger) *Fan {
	return &Fan{NewDevice(meta, accountID, transport, fanProfile{}, logger)}
}

// fanProfile orders fan-speed tokens by their embedded numeric suffix, so
// "fan-speed-025" sorts before "fan-speed-100".
type fanProfile struct {
	BaseProfile
}

func (fanProfile) ValueOrder(class Class, value string) (float64, bool) {
	if class != ClassFanSpeed {
		return 0, false
	}
	if len(value) < 3 {
		return 0, true
	}
	n, err := strconv.Atoi(value[len(value)-3:])
	if err != nil {
		return 0, true
	}
	return float64(n), true
}

// IsOn reports whether the fan is powered on. Unknown means off.
func (f *Fan) IsOn() bool {
	v, ok := f.StateValue(ClassKey(ClassPower))
	return ok && v == StateOn
}

// SupportsSpeed reports whether the catalog carries a fan-speed function.
func (f *Fan) SupportsSpeed() bool {
	return f.catalog.Has(ClassFanSpeed)
}

// speedValues returns the user-facing speed tokens: the catalog list minus
// its first entry, which is the off speed.
func (f *Fan) speedValues() []string {
	values := f.FunctionValues(ClassKey(ClassFanSpeed))
	if len(values) > 0 {
		return values[1:]
	}
	return nil
}

// SpeedCount returns the number of user-facing speeds.
func (f *Fan) SpeedCount() int {
	return len(f.speedValues())
}

// Percentage returns the current speed as an ordinal percentage of the
// user-facing speed list.
func (f *Fan) Percentage() (int, bool) {
	speeds := f.speedValues()
	if len(speeds) == 0 {
		return 0, false
	}
	v, ok := f.StateValue(ClassKey(ClassFanSpeed))
	if !ok {
		return 0, false
	}
	token, ok := v.(string)
	if !ok {
		return 0, false
	}
	return orderedListItemToPercentage(speeds, token)
}

// PresetMode returns the enabled toggle instance, or PresetModeAuto when no
// toggle instance is enabled.
func (f *Fan) PresetMode() string {
	for _, sv := range f.states.Class(ClassToggle) {
		if sv.Instance != "" && sv.Value == ToggleEnabled {
			return sv.Instance
		}
	}
	return PresetModeAuto
}

// PresetModes returns the catalog's toggle instances with PresetModeAuto
// prepended, or nil when the fan has no presets.
func (f *Fan) PresetModes() []string {
	instances := f.catalog.Instances(ClassToggle)
	if len(instances) == 0 {
		return nil
	}
	return append([]string{PresetModeAuto}, instances...)
}

// FanOptions are the optional attributes of a turn-on command.
type FanOptions struct {
	// Percentage of the ordinal speed list.
	Percentage *int
	// PresetMode enables one toggle instance.
	PresetMode *string
}

// TurnOn powers the fan on, applies the requested attributes to the local
// state and pushes the result to the vendor.
func (f *Fan) TurnOn(ctx context.Context, opts FanOptions) error {
	f.SetStateValue(ClassKey(ClassPower), StateOn)
	if opts.Percentage != nil {
		f.setSpeed(*opts.Percentage)
	}
	if opts.PresetMode != nil {
		f.SetStateValue(InstanceKey(ClassToggle, *opts.PresetMode), ToggleEnabled)
	}
	return f.PushState(ctx)
}

// TurnOff powers the fan off and pushes the result to the vendor.
func (f *Fan) TurnOff(ctx context.Context) error {
	f.SetStateValue(ClassKey(ClassPower), StateOff)
	return f.PushState(ctx)
}

// SetPercentage sets the fan speed by ordinal percentage and pushes.
func (f *Fan) SetPercentage(ctx context.Context, percentage int) error {
	f.setSpeed(percentage)
	return f.PushState(ctx)
}

func (f *Fan) setSpeed(percentage int) {
	if token, ok := percentageToOrderedListItem(f.speedValues(), float64(percentage)); ok {
		f.SetStateValue(ClassKey(ClassFanSpeed), token)
	}
}

// SetPresetMode selects a preset and pushes. Selecting PresetModeAuto
// disables every toggle instance; selecting a named preset enables that one
// instance and deliberately leaves the others untouched, which is the
// vendor's observed behavior.
func (f *Fan) SetPresetMode(ctx context.Context, mode string) error {
	if mode == PresetModeAuto {
		for _, m := range f.PresetModes() {
			f.SetStateValue(InstanceKey(ClassToggle, m), ToggleDisabled)
		}
	} else {
		f.SetStateValue(InstanceKey(ClassToggle, mode), ToggleEnabled)
	}
	return f.PushState(ctx)
}
