package hubspace

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func testFanMetadevice() *Metadevice {
	return &Metadevice{
		ID:                     "fan-1",
		FriendlyName:           "Bedroom Fan",
		SemanticDescriptionKey: "fan",
		Description: MetadeviceDescription{Functions: []FunctionDef{
			defsWithValues("power", "", "on", "off"),
			defsWithValues("fan-speed", "",
				"fan-speed-100", "fan-speed-000", "fan-speed-050", "fan-speed-025", "fan-speed-075"),
			defsWithValues("toggle", "comfort-breeze", "enabled", "disabled"),
			defsWithValues("toggle", "sleep", "enabled", "disabled"),
		}},
		State: &StatePayload{Values: []WireValue{
			{FunctionClass: "power", Value: "on"},
			{FunctionClass: "fan-speed", Value: "fan-speed-050"},
			{FunctionClass: "toggle", FunctionInstance: "comfort-breeze", Value: "disabled"},
			{FunctionClass: "toggle", FunctionInstance: "sleep", Value: "disabled"},
			{FunctionClass: "available", Value: true},
		}},
	}
}

func TestFanSpeeds(t *testing.T) {
	f := NewFan(testFanMetadevice(), "acct", &fakeTransport{}, zerolog.Nop())

	if !f.SupportsSpeed() {
		t.Fatal("expected speed support")
	}
	// The off speed is excluded from the user-facing list.
	if got := f.SpeedCount(); got != 4 {
		t.Fatalf("SpeedCount() = %d, want 4", got)
	}
	// fan-speed-050 is the second of four speeds.
	if pct, ok := f.Percentage(); !ok || pct != 50 {
		t.Fatalf("Percentage() = %d/%v, want 50", pct, ok)
	}
}

func TestFanPercentageUnknownSpeed(t *testing.T) {
	f := NewFan(testFanMetadevice(), "acct", &fakeTransport{}, zerolog.Nop())

	f.States().Replace([]WireValue{{FunctionClass: "power", Value: "on"}})
	if _, ok := f.Percentage(); ok {
		t.Fatal("missing fan-speed state must report ok=false")
	}
}

func TestFanSetPercentage(t *testing.T) {
	tr := &fakeTransport{}
	f := NewFan(testFanMetadevice(), "acct", tr, zerolog.Nop())

	if err := f.SetPercentage(context.Background(), 70); err != nil {
		t.Fatal(err)
	}

	// 70% falls into the third bucket of four.
	for _, wv := range tr.lastPut.Values {
		if wv.FunctionClass == "fan-speed" && wv.Value != "fan-speed-075" {
			t.Fatalf("pushed fan-speed = %v, want fan-speed-075", wv.Value)
		}
	}
	if pct, _ := f.Percentage(); pct != 75 {
		t.Fatalf("Percentage() = %d, want 75 after push echo", pct)
	}
}

func TestFanPresetModes(t *testing.T) {
	f := NewFan(testFanMetadevice(), "acct", &fakeTransport{}, zerolog.Nop())

	want := []string{PresetModeAuto, "comfort-breeze", "sleep"}
	got := f.PresetModes()
	if len(got) != len(want) {
		t.Fatalf("PresetModes() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("PresetModes()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFanPresetModesNoToggles(t *testing.T) {
	meta := testFanMetadevice()
	meta.Description.Functions = meta.Description.Functions[:2]
	f := NewFan(meta, "acct", &fakeTransport{}, zerolog.Nop())

	if got := f.PresetModes(); got != nil {
		t.Fatalf("PresetModes() = %v, want nil without toggle functions", got)
	}
	if got := f.PresetMode(); got != PresetModeAuto {
		t.Fatalf("PresetMode() = %q, want auto", got)
	}
}

func TestFanPresetModeSelection(t *testing.T) {
	tr := &fakeTransport{}
	f := NewFan(testFanMetadevice(), "acct", tr, zerolog.Nop())

	if got := f.PresetMode(); got != PresetModeAuto {
		t.Fatalf("initial PresetMode() = %q, want auto", got)
	}

	// Selecting a named preset enables only that toggle instance.
	if err := f.SetPresetMode(context.Background(), "sleep"); err != nil {
		t.Fatal(err)
	}
	if got := f.PresetMode(); got != "sleep" {
		t.Fatalf("PresetMode() = %q, want sleep", got)
	}
	if sv := f.States().Instance(ClassToggle, "comfort-breeze"); sv.Value != ToggleDisabled {
		t.Fatalf("comfort-breeze = %v, want untouched disabled", sv.Value)
	}

	// Selecting auto disables every toggle instance.
	if err := f.SetPresetMode(context.Background(), PresetModeAuto); err != nil {
		t.Fatal(err)
	}
	if got := f.PresetMode(); got != PresetModeAuto {
		t.Fatalf("PresetMode() = %q, want auto", got)
	}
	for _, sv := range f.States().Class(ClassToggle) {
		if sv.Value != ToggleDisabled {
			t.Fatalf("toggle %q = %v, want disabled", sv.Instance, sv.Value)
		}
	}
}

func TestFanTurnOnWithOptions(t *testing.T) {
	tr := &fakeTransport{}
	f := NewFan(testFanMetadevice(), "acct", tr, zerolog.Nop())

	percentage := 100
	preset := "comfort-breeze"
	err := f.TurnOn(context.Background(), FanOptions{
		Percentage: &percentage,
		PresetMode: &preset,
	})
	if err != nil {
		t.Fatal(err)
	}

	if !f.IsOn() {
		t.Fatal("fan must report on")
	}
	if pct, _ := f.Percentage(); pct != 100 {
		t.Fatalf("Percentage() = %d, want 100", pct)
	}
	if got := f.PresetMode(); got != "comfort-breeze" {
		t.Fatalf("PresetMode() = %q, want comfort-breeze", got)
	}
}

func TestFanTurnOff(t *testing.T) {
	tr := &fakeTransport{}
	f := NewFan(testFanMetadevice(), "acct", tr, zerolog.Nop())

	if err := f.TurnOff(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.IsOn() {
		t.Fatal("fan must report off")
	}
	if tr.putCalls != 1 {
		t.Fatalf("putCalls = %d, want 1", tr.putCalls)
	}
}
